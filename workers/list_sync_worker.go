package workers

import (
	"context"
	"log"

	"strata-waitlist/models"
	"strata-waitlist/services"
)

// ListSyncWorker drains a signup queue into MailerLite. The queue is bounded
// and lossy: when the list-sync provider is down the queue fills, new signups
// are dropped from sync (logged) and the signups themselves are untouched.
type ListSyncWorker struct {
	client *services.MailerLiteClient
	queue  chan *models.WaitlistEntry
}

func NewListSyncWorker(client *services.MailerLiteClient, buffer int) *ListSyncWorker {
	if buffer <= 0 {
		buffer = 256
	}
	return &ListSyncWorker{
		client: client,
		queue:  make(chan *models.WaitlistEntry, buffer),
	}
}

// NotifySignup implements services.SignupNotifier. Never blocks the caller.
func (w *ListSyncWorker) NotifySignup(entry *models.WaitlistEntry) {
	select {
	case w.queue <- entry:
	default:
		log.Printf("⚠️ list-sync queue full, skipping %s", entry.Email)
	}
}

// Start consumes the queue until the context is cancelled.
func (w *ListSyncWorker) Start(ctx context.Context) {
	if !w.client.Enabled() {
		log.Println("⚠️  MailerLite not configured, list sync disabled")
		return
	}
	log.Println("✅ List sync worker running")
	for {
		select {
		case <-ctx.Done():
			return
		case entry := <-w.queue:
			if err := w.client.AddSubscriber(ctx, entry.Email, entry.FirstName, entry.LastName); err != nil {
				log.Printf("⚠️ list sync failed for %s: %v", entry.Email, err)
			} else {
				log.Printf("✅ Synced %s to mailing list", entry.Email)
			}
		}
	}
}

package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"strata-waitlist/models"
	"strata-waitlist/services"
)

func TestWorkerPushesQueuedSignups(t *testing.T) {
	received := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.URL.Path
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := &services.MailerLiteClient{
		APIKey:     "key",
		GroupID:    "group",
		BaseURL:    srv.URL,
		HTTPClient: http.DefaultClient,
	}
	worker := NewListSyncWorker(client, 4)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go worker.Start(ctx)

	worker.NotifySignup(&models.WaitlistEntry{
		Email: "anna@example.com", FirstName: "Anna", LastName: "Smith",
	})

	select {
	case path := <-received:
		assert.Equal(t, "/subscribers", path)
	case <-time.After(2 * time.Second):
		t.Fatal("worker never delivered the signup")
	}
}

func TestNotifySignupNeverBlocks(t *testing.T) {
	client := &services.MailerLiteClient{
		APIKey: "key", GroupID: "group",
		BaseURL: "http://127.0.0.1:0", HTTPClient: http.DefaultClient,
	}
	worker := NewListSyncWorker(client, 1)
	// No Start: the queue fills and overflow is dropped, not blocked on.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			worker.NotifySignup(&models.WaitlistEntry{Email: "x@example.com"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("NotifySignup blocked on a full queue")
	}
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"strata-waitlist/models"
)

var (
	// ErrNotFound is the normal miss outcome of lookups.
	ErrNotFound = errors.New("entry not found")

	// ErrDuplicateEmail means the email is already on the list. Callers
	// treat it as "already joined", not a fault.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrImmutableField rejects updates touching id, email, created_at or
	// referral_link. The update is not applied at all.
	ErrImmutableField = errors.New("field is immutable")

	// ErrUnavailable wraps backend failures that are nobody's request error.
	ErrUnavailable = errors.New("store unavailable")
)

// immutableColumns are never stripped; an update naming one fails whole.
var immutableColumns = map[string]struct{}{
	"id":            {},
	"email":         {},
	"created_at":    {},
	"referral_link": {},
}

// CheckMutable validates a partial-update change set before any write.
func CheckMutable(changes map[string]interface{}) error {
	for col := range changes {
		if _, bad := immutableColumns[col]; bad {
			return fmt.Errorf("%w: %s", ErrImmutableField, col)
		}
	}
	return nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

// Store is the persistence contract the referral ledger runs against. Two
// implementations exist: GormStore (sqlite file or postgres) and DynamoStore.
// Application code never sees which one it got.
type Store interface {
	// CreateEntry inserts a fully-populated entry. Returns
	// ErrDuplicateEmail when the email unique constraint trips.
	CreateEntry(ctx context.Context, entry *models.WaitlistEntry) error

	GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error)
	GetByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error)
	GetByReferralLink(ctx context.Context, code string) (*models.WaitlistEntry, error)

	// UpdateEntry merges a partial change set into the row and returns the
	// updated entry. Immutable columns are rejected with ErrImmutableField
	// before anything is written.
	UpdateEntry(ctx context.Context, id string, changes map[string]interface{}) (*models.WaitlistEntry, error)

	// CreditReferral bumps referral_count by one, points by the given
	// amount and stamps last_referral_at, as a single server-side
	// conditional update, never a read-modify-write round trip.
	CreditReferral(ctx context.Context, referrerID string, points int64, at time.Time) error

	// AddPoints grants points atomically (achievement/admin path).
	AddPoints(ctx context.Context, id string, points int64) error

	SetTierLevel(ctx context.Context, id string, tier int) error

	// Leaderboard returns up to limit entries ordered by points desc,
	// referral_count desc, created_at asc (first joined ranks higher).
	Leaderboard(ctx context.Context, limit int) ([]models.WaitlistEntry, error)

	// ListEntries returns every entry. The waitlist table stays small
	// enough for full reads.
	ListEntries(ctx context.Context) ([]models.WaitlistEntry, error)

	ListRewards(ctx context.Context) ([]models.ReferralReward, error)

	CreateAchievement(ctx context.Context, a *models.UserAchievement) error
	ListAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error)

	Close() error
}

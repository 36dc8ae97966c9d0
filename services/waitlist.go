package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"strata-waitlist/models"
	"strata-waitlist/store"
	"strata-waitlist/utils"
)

const (
	defaultLeaderboardLimit = 10
	maxLeaderboardLimit     = 100

	// linkAttempts bounds referral link regeneration: the link is derived
	// from the id, so a collision means regenerating the id.
	linkAttempts = 5
)

var validate = validator.New()

// SignupNotifier receives successful signups for list sync. Failures over
// there must never reach the signup path, so the ledger only hands entries off.
type SignupNotifier interface {
	NotifySignup(entry *models.WaitlistEntry)
}

// WaitlistService is the referral ledger: it owns every read and write on the
// waitlist table and is the only mutator of referral_count and points.
type WaitlistService struct {
	Store    store.Store
	Notifier SignupNotifier
}

func NewWaitlistService(st store.Store) *WaitlistService {
	return &WaitlistService{Store: st}
}

// ReferralRewardPoints is read at call time so operators can retune the reward
// without a rebuild.
func ReferralRewardPoints() int64 {
	return int64(utils.GetenvInt("REFERRAL_REWARD_POINTS", 10))
}

// CreateEntryInput carries the signup payload. ReferralCode is the optional
// code from a share link.
type CreateEntryInput struct {
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	ReferralCode string `json:"referral_code" validate:"omitempty,max=64"`
}

// CreateEntry runs the signup flow: duplicate check, referral resolution,
// insert, then best-effort referrer credit.
//
// On a duplicate email it returns the existing entry together with
// store.ErrDuplicateEmail so the boundary can answer "already joined". A
// referral code that matches nothing is silently ignored. A referrer credit
// failure is logged and never fails the signup that triggered it.
func (s *WaitlistService) CreateEntry(ctx context.Context, in CreateEntryInput) (*models.WaitlistEntry, error) {
	in.Email = utils.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}

	existing, err := s.Store.GetByEmail(ctx, in.Email)
	if err == nil {
		return existing, store.ErrDuplicateEmail
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	var referrer *models.WaitlistEntry
	if in.ReferralCode != "" {
		referrer, err = s.Store.GetByReferralLink(ctx, in.ReferralCode)
		if errors.Is(err, store.ErrNotFound) {
			referrer = nil // invalid or expired codes are inert
		} else if err != nil {
			return nil, err
		}
	}

	entry, err := s.newEntry(ctx, in, referrer)
	if err != nil {
		return nil, err
	}

	if err := s.Store.CreateEntry(ctx, entry); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			// Lost the race against a concurrent signup with the same
			// email; hand back whichever row won.
			if existing, getErr := s.Store.GetByEmail(ctx, in.Email); getErr == nil {
				return existing, store.ErrDuplicateEmail
			}
		}
		return nil, err
	}

	// Credit is keyed off the stored attribution, so a credit can never fire
	// for an entry that carries no referred_by.
	if entry.ReferredBy != nil {
		reward := ReferralRewardPoints()
		if err := s.Store.CreditReferral(ctx, *entry.ReferredBy, reward, time.Now()); err != nil {
			log.Printf("⚠️ referral credit failed for %s (code %s): %v", *entry.ReferredBy, in.ReferralCode, err)
		}
	}

	if s.Notifier != nil {
		s.Notifier.NotifySignup(entry)
	}
	return entry, nil
}

// newEntry populates a fresh row. The referral link is derived from the id;
// uniqueness is verified and the id regenerated on the (unlikely) collision of
// the short prefix, so the scheme stays collision-free rather than probable.
func (s *WaitlistService) newEntry(ctx context.Context, in CreateEntryInput, referrer *models.WaitlistEntry) (*models.WaitlistEntry, error) {
	var id, link string
	for attempt := 0; ; attempt++ {
		if attempt == linkAttempts {
			return nil, fmt.Errorf("could not allocate a unique referral link after %d attempts", linkAttempts)
		}
		id = uuid.NewString()
		link = "ref_" + id[:8]
		_, err := s.Store.GetByReferralLink(ctx, link)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, err
		}
	}

	first := utils.NormalizeName(in.FirstName)
	last := utils.NormalizeName(in.LastName)
	entry := &models.WaitlistEntry{
		ID:            id,
		FirstName:     first,
		LastName:      last,
		Email:         in.Email,
		ReferralLink:  link,
		DisplayHandle: utils.DisplayHandle(first, last),
		ReferralCount: 0,
		Points:        0,
		TierLevel:     1,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}
	if referrer != nil && referrer.ID != id {
		referrerID := referrer.ID
		entry.ReferredBy = &referrerID
	}
	return entry, nil
}

func (s *WaitlistService) GetByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error) {
	return s.Store.GetByEmail(ctx, utils.NormalizeEmail(email))
}

func (s *WaitlistService) GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	return s.Store.GetByID(ctx, id)
}

func (s *WaitlistService) GetByReferralLink(ctx context.Context, code string) (*models.WaitlistEntry, error) {
	return s.Store.GetByReferralLink(ctx, code)
}

// Leaderboard returns the ranked view: points desc, referral_count desc, then
// created_at asc so whoever joined first ranks higher on a full tie.
func (s *WaitlistService) Leaderboard(ctx context.Context, limit int) ([]models.WaitlistEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	return s.Store.Leaderboard(ctx, limit)
}

// UpdateEntry merges a caller-supplied change set. The store rejects immutable
// columns; the error passes through untranslated.
func (s *WaitlistService) UpdateEntry(ctx context.Context, id string, changes map[string]interface{}) (*models.WaitlistEntry, error) {
	return s.Store.UpdateEntry(ctx, id, changes)
}

func (s *WaitlistService) ListEntries(ctx context.Context) ([]models.WaitlistEntry, error) {
	return s.Store.ListEntries(ctx)
}

func (s *WaitlistService) ListRewards(ctx context.Context) ([]models.ReferralReward, error) {
	return s.Store.ListRewards(ctx)
}

// GrantAchievement records an achievement and grants its points through the
// atomic add-points path. Like the referral credit, the points grant is
// best-effort once the achievement row exists.
func (s *WaitlistService) GrantAchievement(ctx context.Context, userID, achievementType string, points int64) (*models.UserAchievement, error) {
	if _, err := s.Store.GetByID(ctx, userID); err != nil {
		return nil, err
	}
	a := &models.UserAchievement{
		ID:              uuid.NewString(),
		UserID:          userID,
		AchievementType: achievementType,
		PointsEarned:    points,
		CreatedAt:       time.Now(),
	}
	if err := s.Store.CreateAchievement(ctx, a); err != nil {
		return nil, err
	}
	if err := s.Store.AddPoints(ctx, userID, points); err != nil {
		log.Printf("⚠️ points grant failed for %s (%s): %v", userID, achievementType, err)
	}
	return a, nil
}

func (s *WaitlistService) ListAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	return s.Store.ListAchievements(ctx, userID)
}

// Dashboard bundles what the logged-in view needs: the entry, its leaderboard
// rank, the rewards track with unlock state, and recent achievements.
type Dashboard struct {
	User         *models.WaitlistEntry    `json:"user"`
	Rank         int                      `json:"rank"`
	Rewards      []RewardProgress         `json:"rewards"`
	Achievements []models.UserAchievement `json:"achievements"`
}

type RewardProgress struct {
	models.ReferralReward
	Unlocked bool `json:"unlocked"`
}

func (s *WaitlistService) DashboardFor(ctx context.Context, id string) (*Dashboard, error) {
	entry, err := s.Store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	rewards, err := s.Store.ListRewards(ctx)
	if err != nil {
		return nil, err
	}
	achievements, err := s.Store.ListAchievements(ctx, id)
	if err != nil {
		return nil, err
	}
	rank, err := s.rankOf(ctx, entry)
	if err != nil {
		return nil, err
	}

	progress := make([]RewardProgress, len(rewards))
	for i, r := range rewards {
		progress[i] = RewardProgress{
			ReferralReward: r,
			Unlocked:       entry.ReferralCount >= r.ReferralsRequired,
		}
	}
	return &Dashboard{User: entry, Rank: rank, Rewards: progress, Achievements: achievements}, nil
}

// rankOf is the entry's 1-based position under the leaderboard ordering
// (points desc, referral_count desc, created_at asc).
func (s *WaitlistService) rankOf(ctx context.Context, entry *models.WaitlistEntry) (int, error) {
	entries, err := s.Store.ListEntries(ctx)
	if err != nil {
		return 0, err
	}
	rank := 1
	for i := range entries {
		if entries[i].ID == entry.ID {
			continue
		}
		if ranksAbove(&entries[i], entry) {
			rank++
		}
	}
	return rank, nil
}

func ranksAbove(a, b *models.WaitlistEntry) bool {
	if a.Points != b.Points {
		return a.Points > b.Points
	}
	if a.ReferralCount != b.ReferralCount {
		return a.ReferralCount > b.ReferralCount
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

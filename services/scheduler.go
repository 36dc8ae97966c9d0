package services

import (
	"context"
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"strata-waitlist/models"
)

// StartTierScheduler keeps tier_level in step with the rewards track.
// tier_level is informational (the rewards UI reads it), so drift between runs
// is fine; the job just reconciles it from referral_count.
func (s *WaitlistService) StartTierScheduler(ctx context.Context) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		log.Printf("[Scheduler] init failed: %v", err)
		return
	}
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(10*time.Minute),
		gocron.NewTask(func() {
			s.RefreshTiers(ctx)
		}),
	)

	go func() {
		<-ctx.Done()
		_ = sched.Shutdown()
	}()
}

// RefreshTiers recomputes every entry's tier from the reward thresholds.
func (s *WaitlistService) RefreshTiers(ctx context.Context) {
	rewards, err := s.Store.ListRewards(ctx)
	if err != nil {
		log.Printf("[Scheduler] rewards lookup failed: %v", err)
		return
	}
	entries, err := s.Store.ListEntries(ctx)
	if err != nil {
		log.Printf("[Scheduler] entries lookup failed: %v", err)
		return
	}

	for _, e := range entries {
		tier := tierFor(e.ReferralCount, rewards)
		if tier == e.TierLevel {
			continue
		}
		if err := s.Store.SetTierLevel(ctx, e.ID, tier); err != nil {
			log.Printf("[Scheduler] tier update failed for %s: %v", e.ID, err)
		} else {
			log.Printf("✅ Tier updated: %s → %d", e.DisplayHandle, tier)
		}
	}
}

// tierFor is 1 plus the number of reward thresholds reached, so the 5/10/25
// track yields tiers 1 through 4.
func tierFor(referralCount int64, rewards []models.ReferralReward) int {
	tier := 1
	for _, r := range rewards {
		if referralCount >= r.ReferralsRequired {
			tier++
		}
	}
	return tier
}

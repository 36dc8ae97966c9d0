package store

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"strata-waitlist/models"
)

// GormStore backs the ledger with a relational database. The sqlite flavor is
// the local file store; the postgres flavor is the same code path behind a DSN.
type GormStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the waitlist database file. The connection
// pool is pinned to a single writer: sqlite serializes writers anyway, and a
// single pooled connection keeps concurrent credits queued instead of failing
// with a busy error.
func OpenSQLite(path string) (*GormStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_busy_timeout=5000"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, unavailable(err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, unavailable(err)
	}
	sqlDB.SetMaxOpenConns(1)
	return newGormStore(db)
}

// OpenPostgres connects using a DATABASE_URL style DSN.
func OpenPostgres(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, unavailable(err)
	}
	return newGormStore(db)
}

func newGormStore(db *gorm.DB) (*GormStore, error) {
	if err := db.AutoMigrate(
		&models.WaitlistEntry{},
		&models.ReferralReward{},
		&models.UserAchievement{},
	); err != nil {
		return nil, unavailable(err)
	}
	s := &GormStore{db: db}
	if err := s.seedRewards(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *GormStore) seedRewards() error {
	for _, r := range models.DefaultRewards() {
		reward := r
		if err := s.db.Where("id = ?", reward.ID).FirstOrCreate(&reward).Error; err != nil {
			return unavailable(err)
		}
	}
	return nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value violates unique constraint")
}

func (s *GormStore) CreateEntry(ctx context.Context, entry *models.WaitlistEntry) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		if isDuplicateKey(err) {
			// Two unique constraints can trip here. Only the email one
			// means "already joined"; a referral_link collision is a
			// lost id-prefix race, not a duplicate signup.
			if strings.Contains(err.Error(), "email") {
				return ErrDuplicateEmail
			}
			return unavailable(err)
		}
		return unavailable(err)
	}
	return nil
}

func (s *GormStore) getBy(ctx context.Context, query string, arg interface{}) (*models.WaitlistEntry, error) {
	var entry models.WaitlistEntry
	err := s.db.WithContext(ctx).Where(query, arg).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}
	return &entry, nil
}

func (s *GormStore) GetByID(ctx context.Context, id string) (*models.WaitlistEntry, error) {
	return s.getBy(ctx, "id = ?", id)
}

func (s *GormStore) GetByEmail(ctx context.Context, email string) (*models.WaitlistEntry, error) {
	return s.getBy(ctx, "email = ?", email)
}

func (s *GormStore) GetByReferralLink(ctx context.Context, code string) (*models.WaitlistEntry, error) {
	return s.getBy(ctx, "referral_link = ?", code)
}

func (s *GormStore) UpdateEntry(ctx context.Context, id string, changes map[string]interface{}) (*models.WaitlistEntry, error) {
	if err := CheckMutable(changes); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return s.GetByID(ctx, id)
	}
	res := s.db.WithContext(ctx).Model(&models.WaitlistEntry{}).Where("id = ?", id).Updates(changes)
	if res.Error != nil {
		return nil, unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

// CreditReferral is the one statement that must never be split into a read and
// a write: the arithmetic runs inside the database, so two concurrent
// referrals both land.
func (s *GormStore) CreditReferral(ctx context.Context, referrerID string, points int64, at time.Time) error {
	res := s.db.WithContext(ctx).Model(&models.WaitlistEntry{}).
		Where("id = ?", referrerID).
		Updates(map[string]interface{}{
			"referral_count":   gorm.Expr("referral_count + 1"),
			"points":           gorm.Expr("points + ?", points),
			"last_referral_at": at,
		})
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) AddPoints(ctx context.Context, id string, points int64) error {
	res := s.db.WithContext(ctx).Model(&models.WaitlistEntry{}).
		Where("id = ?", id).
		Update("points", gorm.Expr("points + ?", points))
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) SetTierLevel(ctx context.Context, id string, tier int) error {
	res := s.db.WithContext(ctx).Model(&models.WaitlistEntry{}).
		Where("id = ?", id).
		Update("tier_level", tier)
	if res.Error != nil {
		return unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Leaderboard(ctx context.Context, limit int) ([]models.WaitlistEntry, error) {
	entries := []models.WaitlistEntry{}
	err := s.db.WithContext(ctx).
		Order("points DESC, referral_count DESC, created_at ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return entries, nil
}

func (s *GormStore) ListEntries(ctx context.Context) ([]models.WaitlistEntry, error) {
	entries := []models.WaitlistEntry{}
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return nil, unavailable(err)
	}
	return entries, nil
}

func (s *GormStore) ListRewards(ctx context.Context) ([]models.ReferralReward, error) {
	rewards := []models.ReferralReward{}
	err := s.db.WithContext(ctx).Order("referrals_required ASC").Find(&rewards).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return rewards, nil
}

func (s *GormStore) CreateAchievement(ctx context.Context, a *models.UserAchievement) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *GormStore) ListAchievements(ctx context.Context, userID string) ([]models.UserAchievement, error) {
	achievements := []models.UserAchievement{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&achievements).Error
	if err != nil {
		return nil, unavailable(err)
	}
	return achievements, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	log.Println("✅ Database connection closed")
	return sqlDB.Close()
}

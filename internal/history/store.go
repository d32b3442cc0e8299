// Package history keeps the results of recent races in an in-memory SQLite
// database. Nothing survives a restart.
package history

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// RaceRecord is one archived race.
type RaceRecord struct {
	ID        string `gorm:"primaryKey"`
	Level     int
	LapTarget int
	Entrants  int
	Cancelled bool
	StartedAt time.Time
	EndedAt   time.Time `gorm:"index"`
	Finishers []Finisher `gorm:"foreignKey:RaceID;constraint:OnDelete:CASCADE"`
}

// Finisher is one classified participant of a race.
type Finisher struct {
	ID          uint   `gorm:"primaryKey"`
	RaceID      string `gorm:"index"`
	Place       int
	Participant string
	Name        string
	Payout      int
}

// Store is the race archive.
type Store struct {
	db    *gorm.DB
	limit int
}

// Open creates a private in-memory archive that keeps the newest limit races.
func Open(limit int) (*Store, error) {
	if limit < 1 {
		limit = 1
	}
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(err, "open history db")
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, errors.Wrap(err, "history db handle")
	}
	// the memory database lives as long as one connection stays open
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetConnMaxLifetime(0)

	if err := db.Exec("PRAGMA foreign_keys = ON;").Error; err != nil {
		return nil, errors.Wrap(err, "enable foreign keys")
	}
	if err := db.AutoMigrate(&RaceRecord{}, &Finisher{}); err != nil {
		return nil, errors.Wrap(err, "migrate history")
	}
	return &Store{db: db, limit: limit}, nil
}

// Save archives rec with its finishers and prunes the oldest races beyond
// the limit.
func (s *Store) Save(rec *RaceRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(rec).Error; err != nil {
			return err
		}
		return s.prune(tx)
	})
	return errors.Wrapf(err, "save race %s", rec.ID)
}

func (s *Store) prune(tx *gorm.DB) error {
	var total int64
	if err := tx.Model(&RaceRecord{}).Count(&total).Error; err != nil {
		return err
	}
	excess := int(total) - s.limit
	if excess <= 0 {
		return nil
	}

	var stale []string
	err := tx.Model(&RaceRecord{}).
		Order("ended_at asc").
		Limit(excess).
		Pluck("id", &stale).Error
	if err != nil || len(stale) == 0 {
		return err
	}
	if err := tx.Where("race_id IN ?", stale).Delete(&Finisher{}).Error; err != nil {
		return err
	}
	return tx.Where("id IN ?", stale).Delete(&RaceRecord{}).Error
}

// Recent returns up to n races, newest first, finishers in place order.
func (s *Store) Recent(n int) ([]RaceRecord, error) {
	var out []RaceRecord
	err := s.db.
		Preload("Finishers", func(db *gorm.DB) *gorm.DB { return db.Order("place") }).
		Order("ended_at desc").
		Limit(n).
		Find(&out).Error
	return out, errors.Wrap(err, "recent races")
}

// Count returns the number of archived races.
func (s *Store) Count() (int64, error) {
	var n int64
	err := s.db.Model(&RaceRecord{}).Count(&n).Error
	return n, errors.Wrap(err, "count races")
}

// Close releases the database, discarding its contents.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

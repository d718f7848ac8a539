package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// EventCheckpoint is one row of event_checkpoints.
type EventCheckpoint struct {
	GameID    string `gorm:"primaryKey;size:128"`
	EventID   string `gorm:"size:128;not null"`
	UpdatedAt time.Time
}

func (EventCheckpoint) TableName() string { return "event_checkpoints" }

// GormStore keeps checkpoints in Postgres.
type GormStore struct {
	db *gorm.DB
}

func OpenPostgres(ctx context.Context, dsn string) (*GormStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("checkpoint dsn is required")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open checkpoint database: %w", err)
	}
	return NewGormStore(ctx, db)
}

// NewGormStore migrates the checkpoint table on db.
func NewGormStore(ctx context.Context, db *gorm.DB) (*GormStore, error) {
	if err := db.WithContext(ctx).AutoMigrate(&EventCheckpoint{}); err != nil {
		return nil, fmt.Errorf("migrate checkpoints: %w", err)
	}
	return &GormStore{db: db}, nil
}

func (s *GormStore) Get(ctx context.Context, gameID string) (string, error) {
	var row EventCheckpoint
	err := s.db.WithContext(ctx).Where("game_id = ?", gameID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load checkpoint: %w", err)
	}
	return row.EventID, nil
}

func (s *GormStore) Set(ctx context.Context, gameID, eventID string) error {
	if err := validate(gameID); err != nil {
		return err
	}
	row := EventCheckpoint{GameID: gameID, EventID: eventID}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "game_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"event_id", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

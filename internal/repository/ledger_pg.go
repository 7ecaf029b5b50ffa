package repository

import (
	"context"
	"fmt"

	"github.com/darkpool-labs/relaygate/internal/config"
	"github.com/darkpool-labs/relaygate/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// PostgresLedger persists settlement and sponsorship accounting rows.
// It is only ever written from the detached background path; write
// failures are logged by the caller and never affect a sent response.
type PostgresLedger struct {
	db *gorm.DB
}

func NewPostgresLedger(cfg *config.Config) (*PostgresLedger, error) {
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	db, err := gorm.Open(postgres.Open(cfg.Database.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to db: %w", err)
	}
	if err := db.AutoMigrate(&model.MatchRecord{}, &model.SponsorshipRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return &PostgresLedger{db: db}, nil
}

func (l *PostgresLedger) InsertMatch(ctx context.Context, rec *model.MatchRecord) error {
	return l.db.WithContext(ctx).Create(rec).Error
}

func (l *PostgresLedger) InsertSponsorship(ctx context.Context, rec *model.SponsorshipRecord) error {
	return l.db.WithContext(ctx).Create(rec).Error
}

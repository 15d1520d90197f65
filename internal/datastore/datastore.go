// Package datastore persists the daemon's local state in a SQLite
// database: the last-known-good settings snapshot per tenant and a log of
// every sound played. Both are best-effort conveniences, the daemon runs
// fine without them.
package datastore

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/beyproweb/beypro-notify/internal/errors"
	"github.com/beyproweb/beypro-notify/internal/logging"
	"github.com/beyproweb/beypro-notify/internal/soundsettings"
)

// SettingsSnapshot is the last-known-good settings value for one tenant,
// stored as the normalized JSON blob.
type SettingsSnapshot struct {
	ID        uint   `gorm:"primaryKey"`
	Tenant    string `gorm:"uniqueIndex;not null"`
	Settings  string `gorm:"not null"`
	UpdatedAt time.Time
}

// SoundEvent is one row of the playback history.
type SoundEvent struct {
	ID        uint   `gorm:"primaryKey"`
	Event     string `gorm:"index;not null"`
	Asset     string `gorm:"not null"`
	Volume    float64
	CreatedAt time.Time `gorm:"index"`
}

// settingsRecord mirrors soundsettings.Settings for the JSON column.
type settingsRecord struct {
	Enabled      bool              `json:"enabled"`
	EnableSounds bool              `json:"enableSounds"`
	Volume       float64           `json:"volume"`
	DefaultSound string            `json:"defaultSound"`
	EventSounds  map[string]string `json:"eventSounds"`
}

// Store is the SQLite-backed datastore.
type Store struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens (creating if needed) the database at path and migrates the
// schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("path", path).
			Build()
	}

	if err := db.AutoMigrate(&SettingsSnapshot{}, &SoundEvent{}); err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("operation", "auto-migrate").
			Build()
	}

	return &Store{
		db:     db,
		logger: logging.ForService("datastore"),
	}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveSnapshot upserts the settings snapshot for a tenant.
func (s *Store) SaveSnapshot(tenant string, settings soundsettings.Settings) error {
	blob, err := json.Marshal(settingsRecord{
		Enabled:      settings.Enabled,
		EnableSounds: settings.EnableSounds,
		Volume:       settings.Volume,
		DefaultSound: settings.DefaultSound,
		EventSounds:  settings.EventSounds,
	})
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	snapshot := SettingsSnapshot{Tenant: tenant, Settings: string(blob)}
	err = s.db.Where(SettingsSnapshot{Tenant: tenant}).
		Assign(map[string]any{"settings": string(blob)}).
		FirstOrCreate(&snapshot).Error
	if err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("tenant", tenant).
			Build()
	}
	return nil
}

// LoadSnapshot returns the persisted snapshot for a tenant, false when
// none exists.
func (s *Store) LoadSnapshot(tenant string) (soundsettings.Settings, bool, error) {
	var snapshot SettingsSnapshot
	err := s.db.Where("tenant = ?", tenant).First(&snapshot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return soundsettings.Settings{}, false, nil
		}
		return soundsettings.Settings{}, false, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("tenant", tenant).
			Build()
	}

	var record settingsRecord
	if err := json.Unmarshal([]byte(snapshot.Settings), &record); err != nil {
		// A corrupt snapshot is treated as absent, the next fetch will
		// overwrite it.
		s.logger.Warn("discarding corrupt settings snapshot", "tenant", tenant, "error", err)
		return soundsettings.Settings{}, false, nil
	}

	settings := soundsettings.Settings{
		Enabled:      record.Enabled,
		EnableSounds: record.EnableSounds,
		Volume:       record.Volume,
		DefaultSound: record.DefaultSound,
		EventSounds:  record.EventSounds,
	}
	if settings.EventSounds == nil {
		settings.EventSounds = map[string]string{}
	}
	return settings, true, nil
}

// RecordSoundEvent appends one row to the playback history.
func (s *Store) RecordSoundEvent(ctx context.Context, event, asset string, volume float64) error {
	row := SoundEvent{Event: event, Asset: asset, Volume: volume}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("event", event).
			Build()
	}
	return nil
}

// RecentSoundEvents returns up to limit history rows, newest first.
func (s *Store) RecentSoundEvents(ctx context.Context, limit int) ([]SoundEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []SoundEvent
	err := s.db.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return rows, nil
}

// PruneSoundEvents deletes history rows older than the retention window.
func (s *Store) PruneSoundEvents(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&SoundEvent{})
	if result.Error != nil {
		return 0, errors.New(result.Error).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if result.RowsAffected > 0 {
		s.logger.Debug("pruned sound event history", "rows", result.RowsAffected)
	}
	return result.RowsAffected, nil
}

package persistence

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/glebarez/sqlite" // pure-Go SQLite driver, no CGO required
	"github.com/lucsky/cuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps a GORM connection scoped to scene and FX preset persistence.
type Store struct {
	db *gorm.DB
}

// Config mirrors the teacher's database.Config shape.
type Config struct {
	URL         string
	MaxIdleConn int
	MaxOpenConn int
	Debug       bool
}

// Open connects to a SQLite database and migrates the persistence schema.
func Open(cfg Config) (*Store, error) {
	dbPath := strings.TrimPrefix(cfg.URL, "file:")

	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("persistence: create database directory: %w", err)
		}
	}

	logLevel := logger.Silent
	if cfg.Debug {
		logLevel = logger.Info
	}
	gormLogger := logger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
			Colorful:                  true,
		},
	)

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000", dbPath)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("persistence: connect: %w", err)
	}

	if err := db.AutoMigrate(&SceneRecord{}, &SceneChannelRecord{}, &FxPresetRecord{}, &FxPresetParameter{}); err != nil {
		return nil, fmt.Errorf("persistence: migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("persistence: underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &Store{db: db}, nil
}

// Close releases the underlying database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveScene persists a scene snapshot as `{universe, channel, value}`
// channel records (spec.md §6).
func (s *Store) SaveScene(ctx context.Context, id, name string, channels map[string]map[int]uint8) error {
	if id == "" {
		id = cuid.New()
	}

	record := SceneRecord{ID: id, Name: name}
	for universeKey, byChannel := range channels {
		for channel, value := range byChannel {
			record.Channels = append(record.Channels, SceneChannelRecord{
				ID:          cuid.New(),
				UniverseKey: universeKey,
				Channel:     channel,
				Value:       value,
			})
		}
	}

	return s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(&record).Error
}

// LoadScene returns a scene with its channel records preloaded, or nil if
// no scene has that id.
func (s *Store) LoadScene(ctx context.Context, id string) (*SceneRecord, error) {
	var record SceneRecord
	result := s.db.WithContext(ctx).Preload("Channels").First(&record, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, result.Error
	}
	return &record, nil
}

// DeleteScene removes a scene and its channel records.
func (s *Store) DeleteScene(ctx context.Context, id string) error {
	if err := s.db.WithContext(ctx).Where("scene_id = ?", id).Delete(&SceneChannelRecord{}).Error; err != nil {
		return err
	}
	return s.db.WithContext(ctx).Delete(&SceneRecord{}, "id = ?", id).Error
}

// ListScenes returns every persisted scene without its channel records.
func (s *Store) ListScenes(ctx context.Context) ([]SceneRecord, error) {
	var records []SceneRecord
	result := s.db.WithContext(ctx).Order("created_at DESC").Find(&records)
	return records, result.Error
}

// SaveFxPreset persists an FxInstance's reusable configuration as a
// `{effectType, beatDivision, blendMode, distribution, phaseOffset, parameters}`
// record (spec.md §6).
func (s *Store) SaveFxPreset(ctx context.Context, preset FxPresetRecord, params map[string]float64) error {
	if preset.ID == "" {
		preset.ID = cuid.New()
	}
	preset.Parameters = nil
	for key, value := range params {
		preset.Parameters = append(preset.Parameters, FxPresetParameter{
			ID:       cuid.New(),
			PresetID: preset.ID,
			Key:      key,
			Value:    strconv.FormatFloat(value, 'f', -1, 64),
		})
	}
	return s.db.WithContext(ctx).Session(&gorm.Session{FullSaveAssociations: true}).Save(&preset).Error
}

// LoadFxPreset returns a preset with its parameters deserialized back to
// float64, the shape internal/fx.FxInstance.Params expects.
func (s *Store) LoadFxPreset(ctx context.Context, id string) (*FxPresetRecord, map[string]float64, error) {
	var record FxPresetRecord
	result := s.db.WithContext(ctx).Preload("Parameters").First(&record, "id = ?", id)
	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			return nil, nil, nil
		}
		return nil, nil, result.Error
	}

	params := make(map[string]float64, len(record.Parameters))
	for _, p := range record.Parameters {
		v, err := strconv.ParseFloat(p.Value, 64)
		if err != nil {
			continue
		}
		params[p.Key] = v
	}
	return &record, params, nil
}

// ListFxPresets returns every stored preset, without parameters.
func (s *Store) ListFxPresets(ctx context.Context) ([]FxPresetRecord, error) {
	var records []FxPresetRecord
	result := s.db.WithContext(ctx).Order("created_at DESC").Find(&records)
	return records, result.Error
}

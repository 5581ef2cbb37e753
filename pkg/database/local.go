package database

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ekaya-inc/survey-engine/pkg/models"
)

// LocalConfig holds local record store settings.
type LocalConfig struct {
	// Path of the SQLite file. ":memory:" opens a private in-memory database.
	Path  string
	Debug bool
}

// OpenLocal opens the SQLite record store and migrates its tables.
func OpenLocal(cfg *LocalConfig, logger *zap.Logger) (*gorm.DB, error) {
	dsn := cfg.Path
	if dsn != ":memory:" {
		if dir := filepath.Dir(dsn); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create local store directory: %w", err)
			}
		}
	}
	// Foreign keys are off by default in SQLite; cascades depend on them.
	dsn += "?_foreign_keys=on"

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         newGormLogger(logger, cfg.Debug),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open local store: %w", err)
	}

	if cfg.Path == ":memory:" {
		// Each pooled connection would otherwise get its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access local store pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := MigrateLocal(db); err != nil {
		return nil, err
	}

	logger.Info("Local record store ready", zap.String("path", cfg.Path))
	return db, nil
}

// MigrateLocal creates or updates the local tables.
func MigrateLocal(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.SurveyRecord{},
		&models.SurveyRow{},
		&models.MappingRecord{},
		&models.SourceEntry{},
		&models.LearnedMapping{},
	); err != nil {
		return fmt.Errorf("failed to migrate local store: %w", err)
	}
	return nil
}

// gormWriter routes GORM's printf-style logging into zap.
type gormWriter struct {
	sugar *zap.SugaredLogger
}

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.sugar.Debugf(format, args...)
}

func newGormLogger(logger *zap.Logger, debug bool) gormlogger.Interface {
	level := gormlogger.Warn
	if debug {
		level = gormlogger.Info
	}
	return gormlogger.New(gormWriter{sugar: logger.Sugar()}, gormlogger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}

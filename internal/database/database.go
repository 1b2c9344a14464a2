package database

import (
	"fmt"
	"strings"

	"paper-trade-go/internal/config"
	"paper-trade-go/internal/models"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDatabase opens the configured database and migrates the schema.
func NewDatabase(cfg config.Database, log *zap.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Every connection to an in-memory sqlite database gets its own empty
	// database, so the pool must stay at one.
	if strings.Contains(cfg.DSN, ":memory:") {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access connection pool: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	log.Info("Database ready", zap.String("driver", dialector.Name()))

	return db, nil
}

// AutoMigrate creates or updates the tables for all models. Existing data is kept.
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Order{},
		&models.Instrument{},
		&models.WatchlistEntry{},
		&models.RevokedToken{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}
	return nil
}

// SeedInstruments populates the 'instruments' table from the config.
// Configured symbols are enabled and get their name refreshed; any other stored
// instrument is disabled.
func SeedInstruments(db *gorm.DB, instruments []config.Instrument) error {
	if len(instruments) == 0 {
		return nil
	}

	symbols := make([]string, 0, len(instruments))
	for _, in := range instruments {
		symbol := strings.ToUpper(strings.TrimSpace(in.Symbol))
		if symbol == "" {
			continue
		}
		symbols = append(symbols, symbol)

		var instrument models.Instrument
		err := db.Where(models.Instrument{Symbol: symbol}).
			Assign(models.Instrument{Name: in.Name, Enabled: true}).
			FirstOrCreate(&instrument).Error
		if err != nil {
			return fmt.Errorf("failed to populate instrument '%s': %w", symbol, err)
		}
	}

	err := db.Model(&models.Instrument{}).
		Where("symbol NOT IN ?", symbols).
		Update("enabled", false).Error
	if err != nil {
		return fmt.Errorf("failed to disable unlisted instruments: %w", err)
	}
	return nil
}

package database

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"metachrome-options-go/internal/config"
	"metachrome-options-go/internal/models"
)

// NewDatabase creates a new database connection and performs auto-migration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(cfg.Database.DSN), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db, cfg); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate creates or updates the schema and seeds the duration tiers
// from config. Existing rows are never dropped: trades, balances and
// transactions must survive restarts.
func Migrate(db *gorm.DB, cfg *config.Config) error {
	err := db.AutoMigrate(
		&models.Trade{},
		&models.Balance{},
		&models.Transaction{},
		&models.OutcomeControl{},
		&models.OptionsSetting{},
	)
	if err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// Seed the duration tiers. FirstOrCreate keeps tiers an operator
	// has tuned in the database since the last boot.
	for _, tier := range cfg.Trading.Tiers {
		setting := models.OptionsSetting{
			Duration:         tier.Duration,
			MinAmount:        decimal.NewFromFloat(tier.MinAmount),
			ProfitPercentage: decimal.NewFromFloat(tier.ProfitPercentage),
			IsActive:         true,
		}
		if err := db.FirstOrCreate(&setting, models.OptionsSetting{Duration: tier.Duration}).Error; err != nil {
			return fmt.Errorf("failed to seed options setting for duration %d: %w", tier.Duration, err)
		}
	}

	return nil
}

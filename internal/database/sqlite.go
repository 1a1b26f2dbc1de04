package database

import (
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/codyseavey/pokefolio/internal/models"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the database for the given driver. For sqlite the DSN is a
// file path, for postgres a connection string.
func Open(driver, dsn string) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	var dialector gorm.Dialector
	switch driver {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if driver == DriverPostgres {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	} else {
		// sqlite allows a single writer; parallel holding updates queue on the pool
		// instead of failing with SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// Initialize opens the database and brings the schema up to date
func Initialize(driver, dsn string) (*gorm.DB, error) {
	db, err := Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate runs the pre-migration cleanups, AutoMigrate and data migrations
func Migrate(db *gorm.DB) error {
	if err := cleanupDuplicateHistory(db, "card_price_histories", "card_id"); err != nil {
		return fmt.Errorf("cleanup card price history: %w", err)
	}
	if err := cleanupDuplicateHistory(db, "portfolio_value_histories", "user_id"); err != nil {
		return fmt.Errorf("cleanup portfolio value history: %w", err)
	}

	err := db.AutoMigrate(
		&models.Card{},
		&models.PortfolioHolding{},
		&models.CardPriceHistory{},
		&models.PortfolioValueHistory{},
	)
	if err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	return RunMigrations(db)
}

// Close closes the underlying connection pool
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

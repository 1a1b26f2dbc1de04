package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// cleanupDuplicateHistory removes rows that share (key, day) before the unique
// index is added. The most recently inserted row of each group is kept.
// This runs BEFORE AutoMigrate to prevent constraint violations.
func cleanupDuplicateHistory(db *gorm.DB, table, keyColumn string) error {
	if !db.Migrator().HasTable(table) {
		return nil
	}
	if !db.Migrator().HasColumn(table, "day") {
		return nil
	}

	result := db.Exec(`
		DELETE FROM ` + table + `
		WHERE id NOT IN (
			SELECT MAX(id)
			FROM ` + table + `
			GROUP BY ` + keyColumn + `, day
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		zap.L().Info("Cleaned up duplicate history entries",
			zap.String("table", table), zap.Int64("rows", result.RowsAffected))
	}

	return nil
}

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB) error {
	return backfillHoldingPrices(db)
}

// backfillHoldingPrices copies the cached card price onto holdings that were
// created before the tracker ever priced them. Safe to run repeatedly: it only
// touches holdings still at zero.
func backfillHoldingPrices(db *gorm.DB) error {
	result := db.Exec(`
		UPDATE portfolio_holdings
		SET current_price = (
			SELECT cards.current_price FROM cards WHERE cards.id = portfolio_holdings.card_id
		)
		WHERE current_price = 0
		AND EXISTS (
			SELECT 1 FROM cards
			WHERE cards.id = portfolio_holdings.card_id AND cards.current_price > 0
		)
	`)
	if result.Error != nil {
		zap.L().Warn("Failed to backfill holding prices", zap.Error(result.Error))
		return nil
	}
	if result.RowsAffected > 0 {
		zap.L().Info("Backfilled holding current prices", zap.Int64("rows", result.RowsAffected))
	}
	return nil
}

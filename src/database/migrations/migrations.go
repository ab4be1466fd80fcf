// package migrations
package migrations

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DataMigration tracks executed data migrations (like Django).
// Table name is fixed to avoid collisions with other models.
type DataMigration struct {
	ID        string    `gorm:"primaryKey;size:200;column:id"`
	AppliedAt time.Time `gorm:"not null;column:applied_at"`
}

func (DataMigration) TableName() string { return "data_migrations" }

func ensureDataMigrationsTable(db *gorm.DB) error {
	return db.AutoMigrate(&DataMigration{})
}

// RunOnce runs fn only if migrationID was not executed before.
// It records the migration as executed only after fn succeeds.
func RunOnce(db *gorm.DB, migrationID string, fn func(*gorm.DB) error) error {
	if db == nil {
		return nil
	}
	if migrationID == "" {
		return fmt.Errorf("migration id is empty")
	}
	if fn == nil {
		return fmt.Errorf("migration %q has nil fn", migrationID)
	}

	if err := ensureDataMigrationsTable(db); err != nil {
		return fmt.Errorf("ensure data migrations table: %w", err)
	}

	return db.Transaction(func(tx *gorm.DB) error {
		var m DataMigration
		err := tx.First(&m, "id = ?", migrationID).Error
		if err == nil {
			// already applied
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check migration %q: %w", migrationID, err)
		}

		if err := fn(tx); err != nil {
			return fmt.Errorf("run migration %q: %w", migrationID, err)
		}

		rec := DataMigration{
			ID:        migrationID,
			AppliedAt: time.Now().UTC(),
		}
		if err := tx.Create(&rec).Error; err != nil {
			return fmt.Errorf("record migration %q: %w", migrationID, err)
		}

		return nil
	})
}

// Run executes all migrations that go beyond schema auto-migrations.
// Append new migrations at the bottom with a stable unique id.
func Run(db *gorm.DB) error {
	if db == nil {
		return nil
	}

	if err := RunOnce(db, "00001_positions_single_active_per_account_symbol", createActivePositionIndex); err != nil {
		return err
	}

	if err := RunOnce(db, "00002_execution_records_positive_amounts", addExecutionAmountChecks); err != nil {
		return err
	}

	if err := RunOnce(db, "00003_positions_active_ref_unique", createActivePositionRefIndex); err != nil {
		return err
	}

	return nil
}

// createActivePositionIndex allows at most one OPEN or CLOSING row per account and symbol.
// Partial indexes are understood by both PostgreSQL and SQLite.
func createActivePositionIndex(db *gorm.DB) error {
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_active_account_symbol
		ON positions (broker_account_id, symbol)
		WHERE position_status IN ('OPEN', 'CLOSING')`).Error
}

// createActivePositionRefIndex replaces the global unique index on position_ref.
// Brokers reuse their position id once a position is flat, so only live rows must be unique.
func createActivePositionRefIndex(db *gorm.DB) error {
	if err := db.Exec(`DROP INDEX IF EXISTS idx_positions_position_ref`).Error; err != nil {
		return err
	}
	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_positions_active_account_ref
		ON positions (broker_account_id, position_ref)
		WHERE position_status IN ('OPEN', 'CLOSING')`).Error
}

// addExecutionAmountChecks mirrors the application validation in the schema.
// SQLite cannot add constraints to an existing table, so it is skipped there.
func addExecutionAmountChecks(db *gorm.DB) error {
	if db.Dialector.Name() != "postgres" {
		return nil
	}
	return db.Exec(`ALTER TABLE execution_records
		ADD CONSTRAINT chk_execution_records_positive
		CHECK (executed_quantity > 0 AND execution_price > 0)`).Error
}

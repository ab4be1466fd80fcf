package database

import (
	"fmt"

	"positionledger/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ReadOnlyDB serves the position queries (open positions, portfolio summary).
// It points at a replica when DATABASE_URL_READONLY is set and at MainDB otherwise.
var ReadOnlyDB *gorm.DB

// InitReadOnlyDB initializes the read-only database connection.
// It does not run any migrations and must be called after InitMainDB.
func InitReadOnlyDB() error {
	config := GetConfig()
	if config.DatabaseURLReadOnly == "" {
		logrus.Info("[ReadOnlyDB] no replica configured, queries use MainDB")
		ReadOnlyDB = MainDB
		return nil
	}

	db, err := gorm.Open(postgres.Open(config.DatabaseURLReadOnly),
		&gorm.Config{
			PrepareStmt:    true,
			TranslateError: true,
			Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to connect to read-only database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB from ReadOnlyDB: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping ReadOnlyDB: %w", err)
	}

	var dbName, schema string
	if err := db.
		Raw("SELECT current_database(), current_schema()").
		Row().
		Scan(&dbName, &schema); err != nil {
		return fmt.Errorf("failed to query current db/schema on ReadOnlyDB: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"dbName": dbName, "schema": schema}).Info("[ReadOnlyDB] connected")

	// The replica must already carry the ledger schema.
	var count int64
	if err := db.Model(&model.Position{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to access positions on ReadOnlyDB: %w", err)
	}

	logrus.WithFields(map[string]interface{}{"count": count}).Info("[ReadOnlyDB] positions reachable")

	ReadOnlyDB = db

	return nil
}

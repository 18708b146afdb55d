// Package database opens the MySQL-backed gorm.DB and migrates the schema
// for every entity this module persists.
package database

import (
	"fmt"
	"time"

	"real-estate-portal/internal/models"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to MySQL using the given connection parameters.
func Open(host, port, user, password, dbname string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, dbname)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
		NowFunc: func() time.Time {
			return time.Now().Local()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("database: open failed: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("database: underlying *sql.DB unavailable: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database: ping failed: %w", err)
	}

	return db, nil
}

// InitSchema migrates every entity this module persists.
func InitSchema(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Building{},
		&models.BuildingExternalID{},
		&models.MasterProperty{},
		&models.PropertyListing{},
		&models.ListingPriceHistory{},
		&models.Url404Retry{},
		&models.ValidationErrorRetry{},
		&models.PriceMismatchRetry{},
		&models.ScraperAlert{},
		&models.JobExecutionLog{},
	)
}

package store

import (
	"fmt"

	"storefront-checkout/internal/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open opens the checkout client's durable storage and migrates its tables.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open client storage: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("client storage handle: %w", err)
	}
	// sqlite serializes writers anyway; one connection avoids "database is locked"
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(
		&model.CartCacheEntry{},
		&model.ClientSession{},
		&model.PendingPaymentHandle{},
	); err != nil {
		return nil, fmt.Errorf("migrate client storage: %w", err)
	}

	return db, nil
}

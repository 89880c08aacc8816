// Package database opens the gorm connection, migrates the schema and provides
// the transaction helper used by every service.
package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres" // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3"              // SQLite driver

	"cafehub/internal/config"
	"cafehub/internal/models"
)

// Open connects to the configured database and tunes the pool.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.LogMode(cfg.LogMode)

	maxOpen := cfg.MaxOpenConns
	if cfg.Driver == "sqlite3" {
		// sqlite allows a single writer; serializing connections avoids "database is locked".
		maxOpen = 1
	}
	if maxOpen > 0 {
		db.DB().SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdleConns > 0 {
		db.DB().SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.DB().SetConnMaxLifetime(time.Hour)

	return db, nil
}

// OpenMemory opens a private in-memory sqlite database with the schema migrated.
func OpenMemory(name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	db.LogMode(false)
	db.DB().SetMaxOpenConns(1)
	db.DB().SetMaxIdleConns(1)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.User{},
		&models.Ingredient{},
		&models.StockTransaction{},
		&models.MenuItem{},
		&models.Table{},
		&models.TableHistory{},
		&models.Order{},
		&models.OrderItem{},
		&models.Booking{},
		&models.BookingItem{},
		&models.Notification{},
	).Error
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// WithTx runs fn inside a transaction. The transaction is committed when fn
// returns nil and rolled back on error or panic.
func WithTx(db *gorm.DB, fn func(tx *gorm.DB) error) (err error) {
	tx := db.Begin()
	if tx.Error != nil {
		return fmt.Errorf("failed to begin transaction: %w", tx.Error)
	}

	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	if err = fn(tx); err != nil {
		tx.Rollback()
		return err
	}

	if err = tx.Commit().Error; err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// IsUniqueViolation reports whether err comes from a unique constraint.
func IsUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key value") ||
		strings.Contains(msg, "violates unique constraint")
}

// IsNotFound reports whether err is gorm's record-not-found error.
func IsNotFound(err error) bool {
	return gorm.IsRecordNotFoundError(err)
}

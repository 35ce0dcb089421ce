package database

import (
	"os"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/interbroker/bridge-api/internal/config"
	"github.com/interbroker/bridge-api/internal/types"
	"github.com/interbroker/bridge-api/internal/webhook"
)

// NewDatabase opens the ledger database and migrates the schema. The
// path comes from DATABASE_PATH, defaulting to bridge.db.
func NewDatabase() (*gorm.DB, error) {
	path := os.Getenv("DATABASE_PATH")
	if path == "" {
		path = "bridge.db"
	}
	return Open(path)
}

// Open opens a database at the given path and migrates the schema.
// Tests pass an in-memory DSN.
func Open(path string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(
		&types.Order{},
		&webhook.Webhook{},
		&config.GatewayConfig{},
	); err != nil {
		return nil, err
	}

	return db, nil
}

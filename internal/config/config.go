// Package config holds the persisted venue gateway configuration. The
// active row selects which gateway endpoint sessions connect to;
// environment variables seed a default row on first run.
package config

import (
	"errors"
	"os"
	"strconv"

	"gorm.io/gorm"
)

// GatewayConfig is a venue gateway endpoint. Exactly one row should be
// active at a time.
type GatewayConfig struct {
	gorm.Model `json:"-"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	ClientID   int    `json:"client_id"`
	IsActive   bool   `json:"is_active"`
}

// ErrNoActiveConfig indicates no gateway configuration row is active.
var ErrNoActiveConfig = errors.New("no active gateway configuration found")

// Database owns the gateway configuration queries.
type Database struct {
	db *gorm.DB
}

func NewDatabase(db *gorm.DB) *Database {
	return &Database{db: db}
}

// GetActive returns the active gateway configuration.
func (d *Database) GetActive() (*GatewayConfig, error) {
	var cfg GatewayConfig
	if err := d.db.Where("is_active = ?", true).First(&cfg).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoActiveConfig
		}
		return nil, err
	}
	return &cfg, nil
}

// Save persists a configuration row. Activating a row deactivates every
// other row.
func (d *Database) Save(cfg *GatewayConfig) error {
	return d.db.Transaction(func(tx *gorm.DB) error {
		if cfg.IsActive {
			if err := tx.Model(&GatewayConfig{}).Where("id <> ?", cfg.ID).Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return tx.Save(cfg).Error
	})
}

// EnsureDefault creates an active configuration from the environment
// when none exists. GATEWAY_HOST, GATEWAY_PORT and GATEWAY_CLIENT_ID
// override the paper-trading defaults.
func (d *Database) EnsureDefault() (*GatewayConfig, error) {
	cfg, err := d.GetActive()
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, ErrNoActiveConfig) {
		return nil, err
	}

	cfg = &GatewayConfig{
		Host:     envString("GATEWAY_HOST", "127.0.0.1"),
		Port:     envInt("GATEWAY_PORT", 4002),
		ClientID: envInt("GATEWAY_CLIENT_ID", 1),
		IsActive: true,
	}
	if err := d.db.Create(cfg).Error; err != nil {
		return nil, err
	}
	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// Package postgres implements the journal on PostgreSQL through the GORM
// backend.
package postgres

import (
	"fmt"

	"github.com/navbridge/extension/internal/config"
	"github.com/navbridge/extension/internal/database"
	gormstorage "github.com/navbridge/extension/internal/storage/gorm"
	"github.com/rs/zerolog"
)

// Backend connects on Init and delegates recording to the GORM backend.
type Backend struct {
	*gormstorage.Backend
	cfg config.PostgresConfig
}

// New creates a Postgres backend. No connection is made until Init.
func New(cfg config.PostgresConfig, deps gormstorage.Dependencies, log zerolog.Logger) *Backend {
	deps.Logger = log
	return &Backend{
		Backend: gormstorage.New(deps),
		cfg:     cfg,
	}
}

// Init connects, enables PostGIS and migrates the schema.
func (b *Backend) Init() error {
	db, err := database.OpenPostgres(b.cfg)
	if err != nil {
		return err
	}
	if err := db.Exec(`CREATE EXTENSION IF NOT EXISTS postgis;`).Error; err != nil {
		return fmt.Errorf("failed to create PostGIS extension: %w", err)
	}

	b.Backend.SetDB(db)
	return b.Backend.Init()
}

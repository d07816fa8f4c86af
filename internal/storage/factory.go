package storage

import (
	"fmt"
	"log/slog"

	"github.com/navbridge/extension/internal/config"
	gormstorage "github.com/navbridge/extension/internal/storage/gorm"
	"github.com/navbridge/extension/internal/storage/memory"
	"github.com/navbridge/extension/internal/storage/postgres"
	sqlitestorage "github.com/navbridge/extension/internal/storage/sqlite"
	"github.com/navbridge/extension/internal/storage/websocket"
	"github.com/rs/zerolog"
)

// Dependencies holds what the backends need beyond their configuration.
type Dependencies struct {
	Logger   *slog.Logger
	ZLogger  zerolog.Logger
	Service  string
	Instance string
}

// NewBackend creates a journal backend based on configuration. The backend
// is not initialized.
func NewBackend(cfg config.StorageConfig, deps Dependencies) (Backend, error) {
	journal := gormstorage.Dependencies{
		Service:       deps.Service,
		Instance:      deps.Instance,
		FlushInterval: cfg.FlushInterval,
		FlushSize:     cfg.FlushSize,
		MaxPending:    cfg.MaxPending,
	}

	switch cfg.Type {
	case "postgres":
		return postgres.New(cfg.Postgres, journal, deps.ZLogger), nil
	case "sqlite":
		return sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
			Journal:      journal,
		}, deps.Logger, deps.ZLogger)
	case "websocket":
		return websocket.New(websocket.Config{
			URL:      cfg.WebSocket.URL,
			Secret:   cfg.WebSocket.Secret,
			Service:  deps.Service,
			Instance: deps.Instance,
		}, deps.Logger), nil
	case "memory":
		return memory.New(cfg.Memory), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

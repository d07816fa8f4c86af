package postgres

import (
	"testing"

	"github.com/navbridge/extension/internal/config"
	gormstorage "github.com/navbridge/extension/internal/storage/gorm"
	"github.com/navbridge/extension/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInit_Unreachable(t *testing.T) {
	b := New(config.PostgresConfig{
		Host:     "127.0.0.1",
		Port:     "1",
		Username: "u",
		Password: "p",
		Database: "d",
	}, gormstorage.Dependencies{}, zerolog.Nop())

	err := b.Init()
	assert.ErrorContains(t, err, "postgres")
}

func TestRecordBeforeInitQueues(t *testing.T) {
	b := New(config.PostgresConfig{}, gormstorage.Dependencies{}, zerolog.Nop())

	assert.NoError(t, b.RecordNavigationEvent(&core.NavigationEvent{Type: "ROUTE_BUILDING"}))
	assert.Equal(t, 1, b.Pending())
	assert.NoError(t, b.Close())
}

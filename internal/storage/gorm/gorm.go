// Package gormstorage implements the journal over GORM with internal queues
// and a background writer goroutine. The sqlite and postgres backends embed
// it and only add connection handling.
package gormstorage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/navbridge/extension/internal/model"
	"github.com/navbridge/extension/internal/model/convert"
	"github.com/navbridge/extension/internal/queue"
	"github.com/navbridge/extension/pkg/core"
	"github.com/rs/zerolog"

	"gorm.io/gorm"
)

const (
	DefaultFlushInterval = 2 * time.Second
	DefaultFlushSize     = 100
	DefaultMaxPending    = 50000
)

// ErrNoDatabase is returned by Init when no connection was injected.
var ErrNoDatabase = errors.New("gorm backend has no database")

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB     *gorm.DB
	Logger zerolog.Logger
	// Service and Instance identify the bridge in journal_infos.
	Service  string
	Instance string
	// FlushInterval and FlushSize bound how long and how many records wait
	// in the queues.
	FlushInterval time.Duration
	FlushSize     int
	// MaxPending bounds each queue while the database is unreachable. The
	// oldest records are dropped first.
	MaxPending int
}

// queues holds the write queues for batch DB insertion.
type queues struct {
	Taps       *queue.Queue[model.MarkerTap]
	Navigation *queue.Queue[model.NavigationEvent]
	Scenes     *queue.Queue[model.SceneSnapshot]
}

func newQueues(limit int) *queues {
	return &queues{
		Taps:       queue.NewBounded[model.MarkerTap](limit),
		Navigation: queue.NewBounded[model.NavigationEvent](limit),
		Scenes:     queue.NewBounded[model.SceneSnapshot](limit),
	}
}

// Backend implements storage.Backend and storage.Queryable with queue-based
// batch writes.
type Backend struct {
	deps   Dependencies
	log    zerolog.Logger
	queues *queues

	writeMu   sync.Mutex
	flushCh   chan struct{}
	stopChan  chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.FlushInterval <= 0 {
		deps.FlushInterval = DefaultFlushInterval
	}
	if deps.FlushSize <= 0 {
		deps.FlushSize = DefaultFlushSize
	}
	if deps.MaxPending <= 0 {
		deps.MaxPending = DefaultMaxPending
	}
	return &Backend{
		deps:   deps,
		log:    deps.Logger.With().Str("component", "journal").Logger(),
		queues: newQueues(deps.MaxPending),
	}
}

// DB returns the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// SetDB injects the connection of a backend that connects lazily. It must be
// called before Init.
func (b *Backend) SetDB(db *gorm.DB) {
	b.deps.DB = db
}

// Init runs schema migration and starts the DB writer goroutine.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return ErrNoDatabase
	}
	if err := b.setupDB(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.flushCh = make(chan struct{}, 1)
	b.stopChan = make(chan struct{})
	b.done = make(chan struct{})
	go b.writer()
	return nil
}

// setupDB migrates tables and registers the owning instance.
func (b *Backend) setupDB() error {
	db := b.deps.DB

	b.log.Info().Msg("Migrating schema")
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if b.deps.Instance != "" {
		info := model.JournalInfo{Service: b.deps.Service, Instance: b.deps.Instance}
		if err := db.Where(model.JournalInfo{Instance: b.deps.Instance}).FirstOrCreate(&info).Error; err != nil {
			return fmt.Errorf("failed to register journal instance: %w", err)
		}
	}

	b.log.Info().Msg("Database setup complete")
	return nil
}

// Close stops the writer after a final flush.
func (b *Backend) Close() error {
	b.closeOnce.Do(func() {
		if b.stopChan == nil {
			return
		}
		close(b.stopChan)
		<-b.done
	})
	return nil
}

// RecordMarkerTap queues a tap. Its ID is assigned when it is written.
func (b *Backend) RecordMarkerTap(t *core.MarkerTap) error {
	b.signal(b.queues.Taps.Push(convert.CoreToMarkerTap(*t)))
	return nil
}

// RecordNavigationEvent queues a navigation event.
func (b *Backend) RecordNavigationEvent(e *core.NavigationEvent) error {
	b.signal(b.queues.Navigation.Push(convert.CoreToNavigationEvent(*e)))
	return nil
}

// RecordSceneSnapshot queues a rendered scene.
func (b *Backend) RecordSceneSnapshot(s *core.SceneSnapshot) error {
	b.signal(b.queues.Scenes.Push(convert.CoreToSceneSnapshot(*s)))
	return nil
}

// Pending returns the number of queued, unwritten records.
func (b *Backend) Pending() int {
	return b.queues.Taps.Len() + b.queues.Navigation.Len() + b.queues.Scenes.Len()
}

// Dropped returns the number of records discarded because a queue was full.
func (b *Backend) Dropped() int {
	return b.queues.Taps.Dropped() + b.queues.Navigation.Dropped() + b.queues.Scenes.Dropped()
}

func (b *Backend) signal(queued int) {
	if queued < b.deps.FlushSize || b.flushCh == nil {
		return
	}
	select {
	case b.flushCh <- struct{}{}:
	default:
	}
}

// Flush writes every queued record.
func (b *Backend) Flush() {
	if b.deps.DB == nil {
		return
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()

	writeQueue(b.deps.DB, b.queues.Taps, "marker taps", b.log)
	writeQueue(b.deps.DB, b.queues.Navigation, "navigation events", b.log)
	writeQueue(b.deps.DB, b.queues.Scenes, "scene snapshots", b.log)
}

// writeQueue writes all items from a queue to the database in a transaction.
// On failure the items go back in front of the queue.
func writeQueue[T any](db *gorm.DB, q *queue.Queue[T], name string, log zerolog.Logger) {
	if q.Empty() {
		return
	}

	tx := db.Begin()
	items := q.Drain()
	if err := tx.Create(&items).Error; err != nil {
		log.Error().Err(err).Int("count", len(items)).Msgf("Error creating %s", name)
		tx.Rollback()
		q.Requeue(items)
		return
	}

	tx.Commit()
	log.Debug().Int("count", len(items)).Msgf("Wrote %s", name)
}

// writer periodically drains the queues into the DB.
func (b *Backend) writer() {
	defer close(b.done)

	ticker := time.NewTicker(b.deps.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			b.Flush()
			return
		case <-ticker.C:
			b.Flush()
		case <-b.flushCh:
			b.Flush()
		}
	}
}

// Query flushes the queues and returns the newest matching entries.
func (b *Backend) Query(q core.JournalQuery) ([]core.JournalEntry, error) {
	q = q.Normalized()
	b.Flush()

	db := b.deps.DB
	entries := []core.JournalEntry{}

	if q.Matches(core.CategoryMarkerTap) {
		var rows []model.MarkerTap
		if err := db.Order("time desc").Limit(q.Limit).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("querying marker taps: %w", err)
		}
		for _, r := range rows {
			entries = append(entries, convert.MarkerTapToCore(r).Entry())
		}
	}
	if q.Matches(core.CategoryNavigation) {
		var rows []model.NavigationEvent
		if err := db.Order("time desc").Limit(q.Limit).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("querying navigation events: %w", err)
		}
		for _, r := range rows {
			entries = append(entries, convert.NavigationEventToCore(r).Entry())
		}
	}
	if q.Matches(core.CategoryScene) {
		var rows []model.SceneSnapshot
		if err := db.Order("time desc").Limit(q.Limit).Find(&rows).Error; err != nil {
			return nil, fmt.Errorf("querying scene snapshots: %w", err)
		}
		for _, r := range rows {
			entries = append(entries, convert.SceneSnapshotToCore(r).Entry())
		}
	}

	return core.Latest(entries, q.Limit), nil
}

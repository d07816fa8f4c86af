package influx

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/influxdata/influxdb-client-go/v2/domain"
	"github.com/rs/zerolog"

	"github.com/navbridge/extension/internal/config"
	"github.com/navbridge/extension/internal/monitor"
	"github.com/navbridge/extension/internal/navigation"
	"github.com/navbridge/extension/pkg/core"
)

const (
	MeasurementRouteProgress = "route_progress"
	MeasurementMarkerTap     = "marker_tap"
	MeasurementBridgeStatus  = "bridge_status"

	// retention of created buckets
	retentionSeconds = 60 * 60 * 24 * 90
)

// ErrDisabled is returned by Connect when influx.enabled is false.
var ErrDisabled = errors.New("influx is disabled")

// Manager handles InfluxDB connections and writes. Points go to a gzip
// line protocol backup file when the server cannot be reached.
type Manager struct {
	Client       influxdb2.Client
	Writers      map[string]influxdb2_api.WriteAPI
	BackupWriter *gzip.Writer
	IsValid      bool
	BucketNames  []string
	Logger       zerolog.Logger

	cfg        config.InfluxConfig
	backupFile *os.File
	mu         sync.Mutex
}

// NewManager creates a manager for the configured bucket.
func NewManager(cfg config.InfluxConfig, log zerolog.Logger) *Manager {
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "navbridge"
	}
	return &Manager{
		Writers:     make(map[string]influxdb2_api.WriteAPI),
		IsValid:     false,
		BucketNames: []string{bucket},
		Logger:      log.With().Str("component", "influx").Logger(),
		cfg:         cfg,
	}
}

// Bucket returns the bucket journal points are written to.
func (m *Manager) Bucket() string {
	return m.BucketNames[0]
}

// URL returns the server address built from the configuration.
func (m *Manager) URL() string {
	return fmt.Sprintf("%s://%s:%s", m.cfg.Protocol, m.cfg.Host, m.cfg.Port)
}

// Connect establishes a connection to InfluxDB, falling back to the backup
// file when the server does not answer a ping.
func (m *Manager) Connect(ctx context.Context) error {
	if !m.cfg.Enabled {
		return ErrDisabled
	}

	m.Client = influxdb2.NewClientWithOptions(
		m.URL(),
		m.cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(2500).
			SetFlushInterval(1000),
	)

	// validate client connection health
	running, err := m.Client.Ping(ctx)

	if err != nil || !running {
		m.IsValid = false
		if err := m.openBackup(); err != nil {
			return err
		}
		m.Logger.Warn().Err(err).Str("backupPath", m.cfg.BackupPath).
			Msg("InfluxDB client failed to initialize, using backup writer")
		return nil
	}

	if err := m.setupOrganizationAndBuckets(ctx); err != nil {
		return err
	}
	m.CreateWriters()
	m.IsValid = true
	m.Logger.Info().Str("url", m.URL()).Msg("InfluxDB client initialized")
	return nil
}

func (m *Manager) openBackup() error {
	if m.BackupWriter != nil {
		return nil
	}
	if m.cfg.BackupPath == "" {
		return errors.New("influx unreachable and no backup path configured")
	}
	file, err := os.OpenFile(m.cfg.BackupPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("error creating backup file: %v", err)
	}
	m.backupFile = file
	m.BackupWriter = gzip.NewWriter(file)
	return nil
}

func (m *Manager) setupOrganizationAndBuckets(ctx context.Context) error {
	orgName := m.cfg.Org

	// ensure org exists
	influxOrg, err := m.Client.OrganizationsAPI().FindOrganizationByName(ctx, orgName)
	if err != nil {
		m.Logger.Info().Str("org", orgName).Msg("Organization not found, creating")
		influxOrg, err = m.Client.OrganizationsAPI().CreateOrganizationWithName(ctx, orgName)
		if err != nil {
			m.Logger.Error().Err(err).Str("org", orgName).Msg("Error creating organization")
			return err
		}
	}

	for _, bucket := range m.BucketNames {
		if _, err = m.Client.BucketsAPI().FindBucketByName(ctx, bucket); err == nil {
			continue
		}
		m.Logger.Info().Str("bucket", bucket).Msg("Bucket not found, creating")

		rule := domain.RetentionRuleTypeExpire
		_, err = m.Client.BucketsAPI().CreateBucketWithName(ctx, influxOrg, bucket, domain.RetentionRule{
			Type:         &rule,
			EverySeconds: retentionSeconds,
		})
		if err != nil {
			m.Logger.Error().Err(err).Str("bucket", bucket).Msg("Error creating bucket")
			return err
		}
	}

	return nil
}

// CreateWriters creates write APIs for all configured buckets.
func (m *Manager) CreateWriters() {
	for _, bucket := range m.BucketNames {
		m.Logger.Trace().Str("bucket", bucket).Msg("Creating InfluxDB writer")
		m.Writers[bucket] = m.Client.WriteAPI(m.cfg.Org, bucket)

		errorsCh := m.Writers[bucket].Errors()
		go func(bucketName string, errorsCh <-chan error) {
			for writeErr := range errorsCh {
				m.Logger.Error().Err(writeErr).Str("bucket", bucketName).
					Msg("Error sending data to InfluxDB")
			}
		}(bucket, errorsCh)
	}

	m.Logger.Debug().Msg("InfluxDB writers initialized")
}

// WritePoint writes a point to InfluxDB or the backup file.
func (m *Manager) WritePoint(ctx context.Context, bucket string, point *influxdb2_write.Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.IsValid {
		w, ok := m.Writers[bucket]
		if !ok {
			return fmt.Errorf("influxDB bucket '%s' not registered", bucket)
		}
		w.WritePoint(point)
		return nil
	}

	if m.BackupWriter == nil {
		return fmt.Errorf("influxDB client not initialized and backup writer not available")
	}

	lineProtocol := influxdb2_write.PointToLineProtocol(point, time.Nanosecond)
	if _, err := m.BackupWriter.Write([]byte(lineProtocol)); err != nil {
		return fmt.Errorf("error writing to InfluxDB backup file: %s", err)
	}
	return nil
}

// RecordProgress writes one PROGRESS_CHANGE sample of a navigation session.
func (m *Manager) RecordProgress(ctx context.Context, sessionID string, at time.Time, p navigation.Progress) error {
	return m.WritePoint(ctx, m.Bucket(), ProgressPoint(sessionID, at, p))
}

// RecordMarkerTap writes a tap on a rendered marker.
func (m *Manager) RecordMarkerTap(ctx context.Context, tap *core.MarkerTap) error {
	return m.WritePoint(ctx, m.Bucket(), MarkerTapPoint(tap))
}

// RecordStatus writes a bridge_status point for a monitor sample.
func (m *Manager) RecordStatus(ctx context.Context, st monitor.Status) error {
	return m.WritePoint(ctx, m.Bucket(), StatusPoint(st))
}

// Close flushes pending writes and releases the client or backup file.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, w := range m.Writers {
		w.Flush()
	}
	if m.Client != nil {
		m.Client.Close()
	}

	var errs []error
	if m.BackupWriter != nil {
		errs = append(errs, m.BackupWriter.Close())
		m.BackupWriter = nil
	}
	if m.backupFile != nil {
		errs = append(errs, m.backupFile.Close())
		m.backupFile = nil
	}
	return errors.Join(errs...)
}

// ProgressPoint builds the route_progress point for a progress sample.
func ProgressPoint(sessionID string, at time.Time, p navigation.Progress) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		MeasurementRouteProgress,
		map[string]string{
			"session": sessionID,
		},
		map[string]interface{}{
			"distance":          p.Distance,
			"duration":          p.Duration,
			"distance_traveled": p.DistanceTraveled,
			"leg":               p.CurrentLegIndex,
			"step":              p.CurrentStepIndex,
			"lat":               p.Latitude,
			"lng":               p.Longitude,
			"arrived":           p.Arrived,
		},
		at,
	)
}

// MarkerTapPoint builds the marker_tap point for a recorded tap.
func MarkerTapPoint(tap *core.MarkerTap) *influxdb2_write.Point {
	return influxdb2.NewPoint(
		MeasurementMarkerTap,
		map[string]string{
			"marker":   tap.MarkerID,
			"category": tap.Category,
		},
		map[string]interface{}{
			"title": tap.Title,
			"lat":   tap.Latitude,
			"lng":   tap.Longitude,
		},
		tap.Time,
	)
}

// StatusPoint builds the bridge_status point for a monitor sample.
func StatusPoint(st monitor.Status) *influxdb2_write.Point {
	fields := map[string]interface{}{
		"connections":     st.Connections,
		"markers":         st.Markers,
		"visible_markers": st.VisibleMarkers,
		"journal_pending": st.JournalPending,
		"journal_dropped": st.JournalDropped,
		"navigating":      st.Session != "",
	}
	for category, n := range st.Subscribers {
		fields["subscribers_"+category] = n
	}
	return influxdb2.NewPoint(MeasurementBridgeStatus, map[string]string{}, fields, st.Time)
}

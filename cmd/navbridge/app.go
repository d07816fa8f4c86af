package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/navbridge/extension/internal/bridge"
	"github.com/navbridge/extension/internal/config"
	"github.com/navbridge/extension/internal/dispatcher"
	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/influx"
	"github.com/navbridge/extension/internal/logging"
	"github.com/navbridge/extension/internal/mapview"
	"github.com/navbridge/extension/internal/marker"
	"github.com/navbridge/extension/internal/monitor"
	"github.com/navbridge/extension/internal/navigation"
	"github.com/navbridge/extension/internal/provider/resilience"
	"github.com/navbridge/extension/internal/routing"
	"github.com/navbridge/extension/internal/routing/openrouteservice"
	"github.com/navbridge/extension/internal/storage"
	"github.com/navbridge/extension/internal/storage/memory"
	"github.com/navbridge/extension/internal/transport"
	"github.com/navbridge/extension/internal/worker"
)

const influxConnectTimeout = 5 * time.Second

// app holds the wired services of one process.
type app struct {
	log *slog.Logger

	hub     *events.Hub
	store   *marker.Store
	adapter *mapview.Adapter
	nav     *navigation.Service
	bridge  *bridge.Service

	backend storage.Backend
	influx  *influx.Manager // nil unless enabled and connected
	journal *worker.Manager

	journalDispatcher *dispatcher.Dispatcher
	server            *transport.Server
	monitor           *monitor.Service // nil when disabled
}

func newApp(ctx context.Context, log *slog.Logger, zlog zerolog.Logger) (*app, error) {
	bridgeCfg := config.GetBridgeConfig()
	navCfg := config.GetNavigationConfig()

	a := &app{log: log}
	a.hub = events.NewHub(log)

	a.adapter = mapview.NewAdapter(mapview.Dependencies{
		Surfaces: []mapview.Surface{
			mapview.NewAnnotationLayer(),
			mapview.NewOverlaySurface(a.hub.Overlay),
		},
		Icons:   mapview.NewIconMapper(bridgeCfg.IconAliases),
		MapTaps: a.hub.Navigation,
		Logger:  log,
	})

	a.store = marker.NewStore(marker.Dependencies{
		Renderer:   a.adapter,
		Taps:       a.hub.Marker,
		Logger:     log,
		Clustering: clusterStrategy(bridgeCfg.Clustering, log),
	})
	a.adapter.Bind(a.store)

	a.nav = navigation.NewService(navigation.Dependencies{
		Provider:        newProvider(config.GetRoutingConfig(), log, zlog),
		Events:          a.hub.Navigation,
		Markers:         a.store,
		Logger:          log,
		TickInterval:    navCfg.TickInterval,
		SimulationSpeed: navCfg.SimulationSpeed,
		BuildTimeout:    navCfg.BuildTimeout,
		IdleMode:        marker.ModeIdle,
	})

	bridgeDispatcher, err := dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return nil, fmt.Errorf("create bridge dispatcher: %w", err)
	}
	a.bridge, err = bridge.NewService(bridge.Dependencies{
		Markers:    a.store,
		Map:        a.adapter,
		Navigation: a.nav,
		Dispatcher: bridgeDispatcher,
		Logger:     log,
	})
	if err != nil {
		return nil, err
	}

	a.backend, err = openBackend(config.GetStorageConfig(), log, zlog)
	if err != nil {
		return nil, err
	}

	var metrics worker.MetricsWriter
	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		m := influx.NewManager(influxCfg, zlog)
		connectCtx, cancel := context.WithTimeout(ctx, influxConnectTimeout)
		err := m.Connect(connectCtx)
		cancel()
		if err != nil {
			log.Warn("InfluxDB unavailable, progress metrics disabled", "url", m.URL(), "error", err)
			_ = m.Close()
		} else {
			a.influx = m
			metrics = m
		}
	}

	a.journalDispatcher, err = dispatcher.New(logging.NewDispatcherLogger(zlog))
	if err != nil {
		return nil, fmt.Errorf("create journal dispatcher: %w", err)
	}
	a.journal = worker.NewManager(worker.Dependencies{
		Hub:     a.hub,
		Backend: a.backend,
		Metrics: metrics,
		Logger:  log,
	})
	a.journal.RegisterHandlers(a.journalDispatcher)

	deps := transport.Dependencies{
		Bridge:  a.bridge,
		Hub:     a.hub,
		Markers: a.store,
		Logger:  zlog,
		Buffer:  bridgeCfg.EventBuffer,
	}
	if q, ok := a.backend.(storage.Queryable); ok {
		deps.Journal = q
	}

	if monCfg := config.GetMonitorConfig(); monCfg.Enabled {
		a.monitor = a.newMonitor(monCfg)
		deps.Status = a.monitor
	}

	a.server = transport.NewServer(config.GetServerConfig(), deps)
	if a.monitor != nil {
		a.monitor.SetServer(a.server)
	}

	return a, nil
}

func (a *app) newMonitor(cfg config.MonitorConfig) *monitor.Service {
	deps := monitor.Dependencies{
		Markers:    a.store,
		Hub:        a.hub,
		Session:    a.sessionID,
		StatusFile: cfg.StatusFile,
		Interval:   cfg.Interval,
		Logger:     a.log,
	}
	if p, ok := a.backend.(monitor.PendingCounter); ok {
		deps.Journal = p
	}
	if a.influx != nil {
		deps.Metrics = a.influx
	}
	return monitor.NewService(deps)
}

// sessionID returns the id of the active navigation session, if any.
func (a *app) sessionID() string {
	if info, ok := a.nav.Session(); ok {
		return info.ID.String()
	}
	return ""
}

// run starts the journal and serves until ctx is done or the listener fails.
func (a *app) run(ctx context.Context) error {
	// The journal outlives ctx so events published during shutdown are kept.
	a.journal.Start(context.WithoutCancel(ctx), a.journalDispatcher)
	if a.monitor != nil {
		a.monitor.Start(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		a.log.Info("Shutdown requested")
		return nil
	case err := <-errCh:
		return err
	}
}

// shutdown stops intake first, then drains the journal into the backend.
func (a *app) shutdown(ctx context.Context) error {
	var errs []error
	if err := a.server.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	if a.monitor != nil {
		a.monitor.Stop()
	}
	if a.nav.Finish() {
		a.log.Info("Navigation session ended")
	}
	a.journal.Stop()
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("journal backend: %w", err))
	}
	if a.influx != nil {
		if err := a.influx.Close(); err != nil {
			errs = append(errs, fmt.Errorf("influx: %w", err))
		}
	}
	a.hub.Close()
	return errors.Join(errs...)
}

func clusterStrategy(name string, log *slog.Logger) marker.ClusterStrategy {
	switch s := marker.ClusterStrategy(name); s {
	case marker.ClusterByIdentity, marker.ClusterGreedy:
		return s
	default:
		log.Warn("Unknown clustering strategy, using default", "clustering", name, "default", marker.ClusterByIdentity)
		return marker.ClusterByIdentity
	}
}

// newProvider builds the directions provider named by the routing config.
func newProvider(cfg config.RoutingConfig, log *slog.Logger, zlog zerolog.Logger) routing.Provider {
	switch cfg.Provider {
	case openrouteservice.ProviderName:
		if cfg.APIKey == "" {
			log.Warn("OpenRouteService has no API key, using direct routes")
			return routing.DirectProvider{}
		}
		clientCfg := resilience.DefaultClientConfig(openrouteservice.ProviderName)
		if cfg.Timeout > 0 {
			clientCfg.Timeout = cfg.Timeout
		}
		if cfg.MaxRetries > 0 {
			clientCfg.MaxRetries = uint64(cfg.MaxRetries)
		}
		log.Info("Using OpenRouteService directions", "baseUrl", cfg.BaseURL)
		return openrouteservice.NewClient(openrouteservice.ClientConfig{
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.BaseURL,
			HTTPClient: resilience.NewClient(clientCfg),
			Timeout:    cfg.Timeout,
			Logger:     zlog,
		})
	case "", routing.DirectProviderName:
		return routing.DirectProvider{}
	default:
		log.Warn("Unknown routing provider, using direct routes", "provider", cfg.Provider)
		return routing.DirectProvider{}
	}
}

// openBackend creates and initializes the configured journal backend. When
// it cannot be initialized the journal is kept in memory instead.
func openBackend(cfg config.StorageConfig, log *slog.Logger, zlog zerolog.Logger) (storage.Backend, error) {
	instance, err := os.Hostname()
	if err != nil {
		instance = "unknown"
	}

	backend, err := storage.NewBackend(cfg, storage.Dependencies{
		Logger:   log,
		ZLogger:  zlog,
		Service:  serviceName,
		Instance: instance,
	})
	if err == nil {
		err = backend.Init()
	}
	if err == nil {
		log.Info("Journal backend initialized", "type", cfg.Type)
		return backend, nil
	}

	log.Error("Failed to initialize journal backend, using memory", "type", cfg.Type, "error", err)
	fallback := memory.New(cfg.Memory)
	if err := fallback.Init(); err != nil {
		return nil, fmt.Errorf("init memory journal: %w", err)
	}
	return fallback, nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/spf13/pflag"

	"github.com/navbridge/extension/internal/config"
	"github.com/navbridge/extension/internal/logging"
	"github.com/navbridge/extension/internal/navigation"
	intOtel "github.com/navbridge/extension/internal/otel"
)

// BuildDate and Version can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const serviceName = "navbridge"

// shutdownTimeout bounds the graceful shutdown after a signal.
const shutdownTimeout = 10 * time.Second

func main() {
	if len(os.Args) > 1 && os.Args[1] == "journal" {
		os.Exit(runJournal(os.Args[2:]))
	}
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := pflag.NewFlagSet(serviceName, pflag.ContinueOnError)
	configDir := fs.String("config", ".", "directory holding "+config.FileName)
	showVersion := fs.Bool("version", false, "print the version and exit")
	config.Flags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	if *showVersion {
		fmt.Printf("%s %s (built %s)\n", serviceName, Version, BuildDate)
		return 0
	}

	loadErr := config.Load(*configDir)
	if err := config.BindFlags(fs); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	sessionStart := time.Now()
	logLevel := config.GetString("logLevel")

	var logFile *os.File
	if config.GetBool("logToFile") {
		f, err := openLogFile(config.GetString("logsDir"), sessionStart)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create log file, logging to console: %v\n", err)
		} else {
			logFile = f
			defer logFile.Close()
		}
	}

	var out io.Writer = os.Stdout
	var slogFile io.Writer
	if logFile != nil {
		out = logFile
		slogFile = logFile
	}

	otelCfg := config.GetOTelConfig()
	var provider *intOtel.Provider
	var otelErr error
	if otelCfg.Enabled {
		cfg := intOtel.Config{
			Enabled:        true,
			ServiceName:    otelCfg.ServiceName,
			BatchTimeout:   otelCfg.BatchTimeout,
			LogWriter:      out,
			MetricInterval: otelCfg.MetricInterval,
			Endpoint:       otelCfg.Endpoint,
			Insecure:       otelCfg.Insecure,
		}
		if otelCfg.Metrics {
			cfg.MetricWriter = out
		}
		provider, otelErr = intOtel.New(cfg)
	}

	var gelfWriter *gelf.Writer
	var gelfErr error
	if gl := config.GetGraylogConfig(); gl.Enabled {
		gelfWriter, gelfErr = gelf.NewWriter(gl.Address)
	}

	// The context provider runs on every record, before and after the
	// navigation service exists.
	var nav atomic.Pointer[navigation.Service]

	opts := logging.Options{
		Level:   logLevel,
		File:    slogFile,
		Service: serviceName,
		Context: func(context.Context) []slog.Attr {
			svc := nav.Load()
			if svc == nil {
				return nil
			}
			if info, ok := svc.Session(); ok {
				return []slog.Attr{slog.String("session", info.ID.String())}
			}
			return nil
		},
	}
	if provider != nil {
		opts.Provider = provider.LoggerProvider()
	}
	if gelfWriter != nil {
		opts.GELF = gelfWriter
		defer gelfWriter.Close()
	}

	slogManager := logging.NewSlogManager()
	slogManager.Setup(opts)
	logger := slogManager.Logger()
	zlog := logging.NewZerolog(out, logLevel)

	logger.Info("Starting", "version", Version, "buildDate", BuildDate)
	if loadErr != nil {
		logger.Warn("Failed to load config, using defaults!", "error", loadErr)
	} else {
		logger.Info("Loaded config", "dir", *configDir)
	}
	if logFile != nil {
		logger.Info("Logging to file", "path", logFile.Name())
	}
	if otelErr != nil {
		logger.Error("Failed to initialize OTel provider", "error", otelErr)
	} else if provider != nil {
		logger.Info("OTel provider initialized", "endpoint", otelCfg.Endpoint, "metrics", otelCfg.Metrics)
	}
	if gelfErr != nil {
		logger.Error("Failed to connect to Graylog", "error", gelfErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, logger, zlog)
	if err != nil {
		logger.Error("Failed to start", "error", err)
		return 1
	}
	nav.Store(a.nav)

	runErr := a.run(ctx)
	if runErr != nil {
		logger.Error("Server stopped", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := a.shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown incomplete", "error", err)
	}
	logger.Info("Stopped")

	if err := slogManager.Flush(shutdownCtx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to flush logs: %v\n", err)
	}
	if provider != nil {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to shut down OTel: %v\n", err)
		}
	}

	if runErr != nil {
		return 1
	}
	return 0
}

// openLogFile creates the log file of this process in logsDir. A file left
// by a process started in the same second is kept as .old.
func openLogFile(logsDir string, sessionStart time.Time) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	path := logging.LogFilePath(logsDir, serviceName, sessionStart)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	}
	return os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
}

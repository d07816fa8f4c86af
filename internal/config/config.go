package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the configuration file looked up in the config directory.
const FileName = "navbridge.cfg.json"

// ServerConfig holds the HTTP and WebSocket listener settings.
type ServerConfig struct {
	Address      string        `json:"address" mapstructure:"address"`
	WriteTimeout time.Duration `json:"writeTimeout" mapstructure:"writeTimeout"`
	PingInterval time.Duration `json:"pingInterval" mapstructure:"pingInterval"`
}

// BridgeConfig holds marker store and event stream settings.
type BridgeConfig struct {
	Clustering  string            `json:"clustering" mapstructure:"clustering"`
	EventBuffer int               `json:"eventBuffer" mapstructure:"eventBuffer"`
	IconAliases map[string]string `json:"iconAliases" mapstructure:"iconAliases"`
}

// RoutingConfig selects and configures the directions provider.
type RoutingConfig struct {
	Provider   string        `json:"provider" mapstructure:"provider"`
	APIKey     string        `json:"apiKey" mapstructure:"apiKey"`
	BaseURL    string        `json:"baseUrl" mapstructure:"baseUrl"`
	Timeout    time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxRetries int           `json:"maxRetries" mapstructure:"maxRetries"`
}

// NavigationConfig holds session timing settings.
type NavigationConfig struct {
	TickInterval    time.Duration `json:"tickInterval" mapstructure:"tickInterval"`
	SimulationSpeed float64       `json:"simulationSpeed" mapstructure:"simulationSpeed"`
	BuildTimeout    time.Duration `json:"buildTimeout" mapstructure:"buildTimeout"`
}

// MemoryConfig holds in-memory journal settings.
type MemoryConfig struct {
	Capacity       int    `json:"capacity" mapstructure:"capacity"`
	OutputDir      string `json:"outputDir" mapstructure:"outputDir"`
	CompressOutput bool   `json:"compressOutput" mapstructure:"compressOutput"`
}

// SQLiteConfig holds SQLite journal settings.
type SQLiteConfig struct {
	DumpInterval time.Duration `json:"dumpInterval" mapstructure:"dumpInterval"`
	DumpPath     string        `json:"dumpPath" mapstructure:"dumpPath"`
}

// PostgresConfig holds Postgres journal settings.
type PostgresConfig struct {
	Host     string `json:"host" mapstructure:"host"`
	Port     string `json:"port" mapstructure:"port"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	Database string `json:"database" mapstructure:"database"`
}

// WebSocketConfig holds remote collector settings.
type WebSocketConfig struct {
	URL    string `json:"url" mapstructure:"url"`
	Secret string `json:"secret" mapstructure:"secret"`
}

// StorageConfig selects the journal backend.
type StorageConfig struct {
	Type          string          `json:"type" mapstructure:"type"`
	FlushSize     int             `json:"flushSize" mapstructure:"flushSize"`
	FlushInterval time.Duration   `json:"flushInterval" mapstructure:"flushInterval"`
	MaxPending    int             `json:"maxPending" mapstructure:"maxPending"`
	Memory        MemoryConfig    `json:"memory" mapstructure:"memory"`
	SQLite        SQLiteConfig    `json:"sqlite" mapstructure:"sqlite"`
	Postgres      PostgresConfig  `json:"postgres" mapstructure:"postgres"`
	WebSocket     WebSocketConfig `json:"websocket" mapstructure:"websocket"`
}

// InfluxConfig holds InfluxDB settings.
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       string `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// GraylogConfig holds GELF log shipping settings.
type GraylogConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Address string `json:"address" mapstructure:"address"`
}

// OTelConfig holds OpenTelemetry settings.
type OTelConfig struct {
	Enabled        bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName    string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout   time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Metrics        bool          `json:"metrics" mapstructure:"metrics"`
	MetricInterval time.Duration `json:"metricInterval" mapstructure:"metricInterval"`
	Endpoint       string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure       bool          `json:"insecure" mapstructure:"insecure"`
}

// MonitorConfig holds status sampling settings.
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// SetDefaults registers the default value of every key.
func SetDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./navbridgelogs")
	viper.SetDefault("logToFile", false)

	viper.SetDefault("server.address", ":8088")
	viper.SetDefault("server.writeTimeout", "10s")
	viper.SetDefault("server.pingInterval", "30s")

	viper.SetDefault("bridge.clustering", "deterministic")
	viper.SetDefault("bridge.eventBuffer", 64)
	viper.SetDefault("bridge.iconAliases", map[string]string{})

	viper.SetDefault("routing.provider", "direct")
	viper.SetDefault("routing.apiKey", "")
	viper.SetDefault("routing.baseUrl", "https://api.openrouteservice.org")
	viper.SetDefault("routing.timeout", "10s")
	viper.SetDefault("routing.maxRetries", 3)

	viper.SetDefault("navigation.tickInterval", "1s")
	viper.SetDefault("navigation.simulationSpeed", 0)
	viper.SetDefault("navigation.buildTimeout", "30s")

	viper.SetDefault("storage.type", "memory")
	viper.SetDefault("storage.flushSize", 100)
	viper.SetDefault("storage.flushInterval", "2s")
	viper.SetDefault("storage.maxPending", 50000)
	viper.SetDefault("storage.memory.capacity", 10000)
	viper.SetDefault("storage.memory.outputDir", "")
	viper.SetDefault("storage.memory.compressOutput", true)
	viper.SetDefault("storage.sqlite.dumpInterval", "3m")
	viper.SetDefault("storage.sqlite.dumpPath", "./navbridge_journal.db")
	viper.SetDefault("storage.postgres.host", "localhost")
	viper.SetDefault("storage.postgres.port", "5432")
	viper.SetDefault("storage.postgres.username", "postgres")
	viper.SetDefault("storage.postgres.password", "postgres")
	viper.SetDefault("storage.postgres.database", "navbridge")
	viper.SetDefault("storage.websocket.url", "ws://localhost:5000/journal")
	viper.SetDefault("storage.websocket.secret", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", "8086")
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "supersecrettoken")
	viper.SetDefault("influx.org", "navbridge")
	viper.SetDefault("influx.bucket", "navbridge")
	viper.SetDefault("influx.backupPath", "./navbridge_influx_backup.log.gz")

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "10s")
	viper.SetDefault("monitor.statusFile", "")

	viper.SetDefault("graylog.enabled", false)
	viper.SetDefault("graylog.address", "localhost:12201")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "navbridge")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.metrics", false)
	viper.SetDefault("otel.metricInterval", "30s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load sets default values, enables NAVBRIDGE_ environment overrides and
// reads the JSON file from configDir. Defaults stay in effect when the file
// cannot be read.
func Load(configDir string) error {
	SetDefaults()

	viper.SetEnvPrefix("NAVBRIDGE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.AddConfigPath(configDir)
	viper.SetConfigType("json")

	err := viper.ReadInConfig()
	if err != nil {
		return fmt.Errorf("error reading config file: %v", err)
	}

	return nil
}

// Flags registers the command line overrides on fs. Values given on the
// command line take precedence over the file and the environment.
func Flags(fs *pflag.FlagSet) {
	fs.String("address", "", "listen address (server.address)")
	fs.String("log-level", "", "log level (logLevel)")
	fs.String("storage", "", "journal backend: memory, sqlite, postgres or websocket (storage.type)")
	fs.String("routing", "", "directions provider: direct or openrouteservice (routing.provider)")
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"address":   "server.address",
	"log-level": "logLevel",
	"storage":   "storage.type",
	"routing":   "routing.provider",
}

// BindFlags binds the flags registered by Flags to their config keys.
func BindFlags(fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetDuration returns a duration config value.
func GetDuration(key string) time.Duration {
	return viper.GetDuration(key)
}

func GetServerConfig() ServerConfig {
	return ServerConfig{
		Address:      viper.GetString("server.address"),
		WriteTimeout: viper.GetDuration("server.writeTimeout"),
		PingInterval: viper.GetDuration("server.pingInterval"),
	}
}

func GetBridgeConfig() BridgeConfig {
	return BridgeConfig{
		Clustering:  viper.GetString("bridge.clustering"),
		EventBuffer: viper.GetInt("bridge.eventBuffer"),
		IconAliases: viper.GetStringMapString("bridge.iconAliases"),
	}
}

func GetRoutingConfig() RoutingConfig {
	return RoutingConfig{
		Provider:   viper.GetString("routing.provider"),
		APIKey:     viper.GetString("routing.apiKey"),
		BaseURL:    viper.GetString("routing.baseUrl"),
		Timeout:    viper.GetDuration("routing.timeout"),
		MaxRetries: viper.GetInt("routing.maxRetries"),
	}
}

func GetNavigationConfig() NavigationConfig {
	return NavigationConfig{
		TickInterval:    viper.GetDuration("navigation.tickInterval"),
		SimulationSpeed: viper.GetFloat64("navigation.simulationSpeed"),
		BuildTimeout:    viper.GetDuration("navigation.buildTimeout"),
	}
}

func GetStorageConfig() StorageConfig {
	return StorageConfig{
		Type:          viper.GetString("storage.type"),
		FlushSize:     viper.GetInt("storage.flushSize"),
		FlushInterval: viper.GetDuration("storage.flushInterval"),
		MaxPending:    viper.GetInt("storage.maxPending"),
		Memory: MemoryConfig{
			Capacity:       viper.GetInt("storage.memory.capacity"),
			OutputDir:      viper.GetString("storage.memory.outputDir"),
			CompressOutput: viper.GetBool("storage.memory.compressOutput"),
		},
		SQLite: SQLiteConfig{
			DumpInterval: viper.GetDuration("storage.sqlite.dumpInterval"),
			DumpPath:     viper.GetString("storage.sqlite.dumpPath"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("storage.postgres.host"),
			Port:     viper.GetString("storage.postgres.port"),
			Username: viper.GetString("storage.postgres.username"),
			Password: viper.GetString("storage.postgres.password"),
			Database: viper.GetString("storage.postgres.database"),
		},
		WebSocket: WebSocketConfig{
			URL:    viper.GetString("storage.websocket.url"),
			Secret: viper.GetString("storage.websocket.secret"),
		},
	}
}

func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetString("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

func GetGraylogConfig() GraylogConfig {
	return GraylogConfig{
		Enabled: viper.GetBool("graylog.enabled"),
		Address: viper.GetString("graylog.address"),
	}
}

func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:        viper.GetBool("otel.enabled"),
		ServiceName:    viper.GetString("otel.serviceName"),
		BatchTimeout:   viper.GetDuration("otel.batchTimeout"),
		Metrics:        viper.GetBool("otel.metrics"),
		MetricInterval: viper.GetDuration("otel.metricInterval"),
		Endpoint:       viper.GetString("otel.endpoint"),
		Insecure:       viper.GetBool("otel.insecure"),
	}
}

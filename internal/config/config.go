package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simaogato/wealthflow-performance/internal/adapter/repository/sqlstore"
	"github.com/simaogato/wealthflow-performance/internal/domain"
)

// EnvConfigPath names the environment variable holding the config file path
const EnvConfigPath = "WEALTHFLOW_CONFIG"

// DefaultPath is read when neither an explicit path nor EnvConfigPath is set
const DefaultPath = "config.yaml"

// Config is the root configuration structure
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Cache     CacheConfig     `yaml:"cache"`
	Table     TableConfig     `yaml:"table"`
	Log       LogConfig       `yaml:"log"`
	Audit     AuditConfig     `yaml:"audit"`
}

// ServerConfig configures the gRPC and metrics listeners
type ServerConfig struct {
	GRPCAddr    string `yaml:"grpc_addr"`    // e.g. ":8080"
	MetricsAddr string `yaml:"metrics_addr"` // Empty disables /metrics
	APIToken    string `yaml:"api_token"`
}

// DatabaseConfig configures the calculation store
type DatabaseConfig struct {
	Driver string `yaml:"driver"` // "postgres" or "sqlite"
	DSN    string `yaml:"dsn"`    // Connection string or SQLite file path
}

// IngestionConfig configures the file-based ingestion client
type IngestionConfig struct {
	Dir           string `yaml:"dir"`
	SeedOnStart   bool   `yaml:"seed_on_start"` // Load funds and benchmarks into the store at startup
	RunOnStart    bool   `yaml:"run_on_start"`  // Start one calculation run after startup
	PerPoolCursor bool   `yaml:"per_pool_cursor"`
}

// SchedulerConfig tunes the pool worker scheduler
type SchedulerConfig struct {
	Parallelism    int           `yaml:"parallelism"` // 0 means runtime.NumCPU()
	PollInterval   time.Duration `yaml:"poll_interval"`
	HardStopAfter  time.Duration `yaml:"hard_stop_after"`
	StrictMetadata bool          `yaml:"strict_metadata"` // Fail a pool when a fund has no metadata

}

// CacheConfig configures the reference data cache
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// TableConfig holds the display table defaults
type TableConfig struct {
	Levels             []string `yaml:"levels"`
	AssetClassOrder    []string `yaml:"asset_class_order"`
	SubAssetClassOrder []string `yaml:"sub_asset_class_order"`
	Horizons           []int    `yaml:"horizons"` // Annualized horizons in years
}

// LogConfig configures logging
type LogConfig struct {
	Level  string `yaml:"level"`  // zerolog level name
	Format string `yaml:"format"` // "json" or "console"
}

// AuditConfig configures the change audit export
type AuditConfig struct {
	Path string `yaml:"path"` // JSONL file; empty disables the export
}

// Default returns the configuration used for every field a file leaves unset
func Default() Config {
	return Config{
		Server: ServerConfig{
			GRPCAddr:    ":8080",
			MetricsAddr: ":9090",
			APIToken:    "dev-token",
		},
		Database: DatabaseConfig{
			Driver: string(sqlstore.DialectSQLite),
			DSN:    "wealthflow.db",
		},
		Ingestion: IngestionConfig{
			Dir:         "data",
			SeedOnStart: true,
		},
		Scheduler: SchedulerConfig{
			PollInterval:  100 * time.Millisecond,
			HardStopAfter: 5 * time.Second,
		},
		Cache: CacheConfig{TTL: 10 * time.Minute},
		Table: TableConfig{
			Levels:   []string{domain.LevelAssetClass, domain.LevelSubAssetClass},
			Horizons: []int{1, 3, 5, 10},
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads configuration from a YAML file, then applies environment overrides.
// An empty path falls back to EnvConfigPath and then DefaultPath.
// A missing file is not an error: defaults and environment apply.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		path = os.Getenv(EnvConfigPath)
		explicit = path != ""
	}
	if path == "" {
		path = DefaultPath
	}

	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// applyEnv overrides file values with the environment
func applyEnv(cfg *Config) {
	setString(&cfg.Server.GRPCAddr, "GRPC_ADDR")
	setString(&cfg.Server.MetricsAddr, "METRICS_ADDR")
	setString(&cfg.Server.APIToken, "API_TOKEN")
	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Ingestion.Dir, "INGESTION_DIR")
	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")

	if dsn := os.Getenv("DB_CONN_STR"); dsn != "" {
		cfg.Database.DSN = dsn
		return
	}
	// If explicit string is missing, build it from individual vars (Docker friendly)
	if cfg.Database.Driver == string(sqlstore.DialectPostgres) && os.Getenv("DB_HOST") != "" {
		cfg.Database.DSN = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			os.Getenv("DB_HOST"),
			envOr("DB_PORT", "5432"),
			envOr("DB_USER", "postgres"),
			envOr("DB_PASSWORD", "postgres"),
			envOr("DB_NAME", "wealthflow"),
		)
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// Validate reports the first invalid setting
func (c *Config) Validate() error {
	switch sqlstore.Dialect(c.Database.Driver) {
	case sqlstore.DialectPostgres, sqlstore.DialectSQLite:
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database.dsn must be set")
	}
	if c.Server.GRPCAddr == "" {
		return errors.New("server.grpc_addr must be set")
	}
	if c.Server.APIToken == "" {
		return errors.New("server.api_token must be set")
	}
	if c.Scheduler.Parallelism < 0 {
		return fmt.Errorf("scheduler.parallelism must not be negative, got %d", c.Scheduler.Parallelism)
	}
	if c.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must not be negative, got %s", c.Cache.TTL)
	}
	for _, level := range c.Table.Levels {
		if !knownLevel(level) {
			return fmt.Errorf("table.levels: %w: %q", domain.ErrUnknownLevel, level)
		}
	}
	for _, years := range c.Table.Horizons {
		if years <= 0 {
			return fmt.Errorf("table.horizons must be positive, got %d", years)
		}
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

func knownLevel(level string) bool {
	switch level {
	case domain.LevelPool, domain.LevelInvestor, domain.LevelFamilyBranch,
		domain.LevelAssetClass, domain.LevelSubAssetClass, domain.LevelSleeve:
		return true
	}
	return false
}

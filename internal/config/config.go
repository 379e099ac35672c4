package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	HTTP       HTTPConfig       `mapstructure:"http"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Scan       ScanConfig       `mapstructure:"scan"`
	Screenshot ScreenshotConfig `mapstructure:"screenshot"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type HTTPConfig struct {
	ListenAddr      string        `mapstructure:"listen_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig selects Postgres when URL is set, in-memory storage otherwise.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// RedisConfig enables the report cache when Address is set.
type RedisConfig struct {
	Address   string        `mapstructure:"address"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	ReportTTL time.Duration `mapstructure:"report_ttl"`
}

type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

type ScanConfig struct {
	TimeScale        float64 `mapstructure:"time_scale"`
	IssueProbability float64 `mapstructure:"issue_probability"`
	UpliftFactor     float64 `mapstructure:"uplift_factor"`
	UpliftMode       string  `mapstructure:"uplift_mode"`
	Catalog          string  `mapstructure:"catalog"`
	MaxActive        int     `mapstructure:"max_active"`
}

type ScreenshotConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Dimension string        `mapstructure:"dimension"`
	Probe     bool          `mapstructure:"probe"`
	RateLimit float64       `mapstructure:"rate_limit"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

const (
	CatalogStatic    = "static"
	CatalogTemplated = "templated"
)

// Load reads config.yaml (and config.<env>.yaml) from ./configs or the working
// directory, then applies environment overrides. A .env file is loaded first
// when present.
func Load() (*Config, error) {
	loadEnvFile()
	return load(viper.New(), []string{"./configs", "."})
}

func load(v *viper.Viper, paths []string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range paths {
		v.AddConfigPath(p)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	bindAliases(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}
	v.SetConfigName("config." + v.GetString("app.env"))
	_ = v.MergeInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("http.listen_addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 90*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("database.url", "")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.migrate", true)
	v.SetDefault("redis.address", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.report_ttl", 24*time.Hour)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 100)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 30)
	v.SetDefault("scan.time_scale", 1.0)
	v.SetDefault("scan.issue_probability", 0.5)
	v.SetDefault("scan.uplift_factor", 0.65)
	v.SetDefault("scan.uplift_mode", "fixed")
	v.SetDefault("scan.catalog", CatalogStatic)
	v.SetDefault("scan.max_active", 100)
	v.SetDefault("screenshot.enabled", false)
	v.SetDefault("screenshot.base_url", "https://api.screenshotmachine.com")
	v.SetDefault("screenshot.api_key", "")
	v.SetDefault("screenshot.dimension", "1024x768")
	v.SetDefault("screenshot.probe", false)
	v.SetDefault("screenshot.rate_limit", 2.0)
	v.SetDefault("screenshot.timeout", 10*time.Second)
}

// bindAliases accepts the short variable names used by deployments.
func bindAliases(v *viper.Viper) {
	_ = v.BindEnv("app.env", "APP_ENV", "APP_ENVIRONMENT")
	_ = v.BindEnv("http.listen_addr", "HTTP_LISTEN_ADDR", "LISTEN_ADDR")
	_ = v.BindEnv("database.url", "DATABASE_URL")
	_ = v.BindEnv("logging.level", "LOGGING_LEVEL", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOGGING_FORMAT", "LOG_FORMAT")
	_ = v.BindEnv("screenshot.api_key", "SCREENSHOT_API_KEY")
}

// applyDefaults repairs zero values a config file may have set explicitly.
func applyDefaults(cfg *Config) {
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	if cfg.HTTP.ListenAddr == "" {
		cfg.HTTP.ListenAddr = ":8080"
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 15 * time.Second
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Redis.ReportTTL <= 0 {
		cfg.Redis.ReportTTL = 24 * time.Hour
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Scan.UpliftMode == "" {
		cfg.Scan.UpliftMode = "fixed"
	}
	if cfg.Scan.Catalog == "" {
		cfg.Scan.Catalog = CatalogStatic
	}
	if cfg.Screenshot.Dimension == "" {
		cfg.Screenshot.Dimension = "1024x768"
	}
}

func validate(cfg *Config) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q is not one of debug, info, warn, error", cfg.Logging.Level)
	}
	if cfg.Scan.TimeScale < 0 {
		return fmt.Errorf("scan.time_scale must not be negative")
	}
	if cfg.Scan.IssueProbability < 0 || cfg.Scan.IssueProbability > 1 {
		return fmt.Errorf("scan.issue_probability must be within [0, 1]")
	}
	if cfg.Scan.UpliftFactor < 0 {
		return fmt.Errorf("scan.uplift_factor must not be negative")
	}
	switch cfg.Scan.UpliftMode {
	case "fixed", "issue_weighted":
	default:
		return fmt.Errorf("scan.uplift_mode %q is not one of fixed, issue_weighted", cfg.Scan.UpliftMode)
	}
	switch cfg.Scan.Catalog {
	case CatalogStatic, CatalogTemplated:
	default:
		return fmt.Errorf("scan.catalog %q is not one of %s, %s", cfg.Scan.Catalog, CatalogStatic, CatalogTemplated)
	}
	if cfg.Scan.MaxActive < 0 {
		return fmt.Errorf("scan.max_active must not be negative")
	}
	if cfg.Screenshot.Enabled && cfg.Screenshot.APIKey == "" {
		return fmt.Errorf("screenshot.api_key is required when screenshots are enabled")
	}
	return nil
}

// loadEnvFile loads the first .env found in the working directory, its
// parents up to the module root, or the module root itself.
func loadEnvFile() {
	candidates := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		candidates = append(candidates, filepath.Join(root, ".env"))
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

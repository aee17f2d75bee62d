// Package config loads and validates service configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/JakeFAU/gpsjus-scraper/internal/auth"
	"github.com/JakeFAU/gpsjus-scraper/internal/browser"
	"github.com/JakeFAU/gpsjus-scraper/internal/notify"
	"github.com/JakeFAU/gpsjus-scraper/internal/policy/ratelimit"
	"github.com/JakeFAU/gpsjus-scraper/internal/scraper"
	"github.com/JakeFAU/gpsjus-scraper/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. GPSJUS_SERVER_PORT.
const EnvPrefix = "GPSJUS"

// DotEnvFile is loaded, when present, before the environment is read.
const DotEnvFile = ".env"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Server  ServerConfig   `mapstructure:"server"`
	Logging LoggingConfig  `mapstructure:"logging"`
	Scraper ScraperConfig  `mapstructure:"scraper"`
	Browser browser.Config `mapstructure:"browser"`
	Layout  scraper.Layout `mapstructure:"layout"`
	Storage storage.Config `mapstructure:"storage"`
	Notify  notify.Config  `mapstructure:"notify"`
	Auth    auth.Config    `mapstructure:"auth"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port            int              `mapstructure:"port"`
	RequestTimeout  time.Duration    `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration    `mapstructure:"shutdown_timeout"`
	// TokenRateLimit throttles POST /api/v1/auth/token per client IP.
	TokenRateLimit  ratelimit.Config `mapstructure:"token_rate_limit"`
}

// Addr is the listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

// LoggingConfig selects the zap preset and level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// ScraperConfig governs a scrape run.
type ScraperConfig struct {
	BaseURL          string        `mapstructure:"base_url"`
	Headless         bool          `mapstructure:"headless"`
	MaxUnits         int           `mapstructure:"max_units"`
	UnitInterval     time.Duration `mapstructure:"unit_interval"`
	PageTimeout      time.Duration `mapstructure:"page_timeout"`
	NavTimeout       time.Duration `mapstructure:"nav_timeout"`
	TableTimeout     time.Duration `mapstructure:"table_timeout"`
	PollInterval     time.Duration `mapstructure:"poll_interval"`
	Preflight        bool          `mapstructure:"preflight"`
	PreflightTimeout time.Duration `mapstructure:"preflight_timeout"`
}

// Options converts the settings for the orchestrator.
func (s ScraperConfig) Options() scraper.Options {
	return scraper.Options{
		BaseURL:      s.BaseURL,
		UnitInterval: s.UnitInterval,
		PageTimeout:  s.PageTimeout,
		NavTimeout:   s.NavTimeout,
		TableTimeout: s.TableTimeout,
		PollInterval: s.PollInterval,
	}
}

// Load builds a Config from an optional .env file, an optional config file
// and the environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	if err := loadDotEnv(DotEnvFile); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// loadDotEnv exports the variables of file without overriding ones already set.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("load %s: %w", file, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.token_rate_limit.rps", 1)
	v.SetDefault("server.token_rate_limit.burst", 5)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("scraper.base_url", scraper.DefaultBaseURL)
	v.SetDefault("scraper.headless", true)
	v.SetDefault("scraper.max_units", 0)
	v.SetDefault("scraper.unit_interval", "1s")
	v.SetDefault("scraper.page_timeout", scraper.DefaultPageTimeout.String())
	v.SetDefault("scraper.nav_timeout", scraper.DefaultNavTimeout.String())
	v.SetDefault("scraper.table_timeout", scraper.DefaultTableTimeout.String())
	v.SetDefault("scraper.poll_interval", "250ms")
	v.SetDefault("scraper.preflight", true)
	v.SetDefault("scraper.preflight_timeout", "15s")
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.user_agent", "")
	v.SetDefault("browser.profile_prefix", "gpsjus-chrome")
	v.SetDefault("browser.temp_dir", "")
	v.SetDefault("browser.page_load_timeout", "30s")
	v.SetDefault("storage.backend", storage.BackendFile)
	v.SetDefault("storage.file_path", storage.DefaultFilePath)
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table", "gpsjus_dataset")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.object", "dados_tjrn.json")
	v.SetDefault("notify.project_id", "")
	v.SetDefault("notify.topic", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.token_ttl", auth.DefaultTokenTTL.String())
	v.SetDefault("auth.db_path", "data/users.db")

	def := scraper.DefaultLayout()
	v.SetDefault("layout.unit_select_id", def.UnitSelectID)
	v.SetDefault("layout.ready_marker", def.ReadyMarker)
	v.SetDefault("layout.total_backlog", def.TotalBacklog)
	v.SetDefault("layout.pending_cases", def.PendingCases)
	v.SetDefault("layout.pending_proceedings", def.PendingProceedings)
	v.SetDefault("layout.suspended", def.Suspended)
	v.SetDefault("layout.closed_by_type", def.ClosedByType)
	v.SetDefault("layout.custody", def.Custody)
	v.SetDefault("layout.diligence", def.Diligence)
	v.SetDefault("layout.monthly_distribution", def.MonthlyDistribution)
	v.SetDefault("layout.closed_last_12_months", def.ClosedLast12Months)
	v.SetDefault("layout.judicial_acts", def.JudicialActs)
}

// Validate enforces required values and reasonable limits. Auth settings are
// only checked by the API server, see Config.Auth.Validate.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.TokenRateLimit.Burst < 0 {
		return fmt.Errorf("server.token_rate_limit.burst must be >= 0")
	}
	if c.Scraper.BaseURL == "" {
		return fmt.Errorf("scraper.base_url must be set")
	}
	if c.Scraper.MaxUnits < 0 {
		return fmt.Errorf("scraper.max_units must be >= 0")
	}
	if c.Scraper.UnitInterval < 0 {
		return fmt.Errorf("scraper.unit_interval must be >= 0")
	}
	if c.Scraper.TableTimeout <= 0 || c.Scraper.NavTimeout <= 0 || c.Scraper.PageTimeout <= 0 {
		return fmt.Errorf("scraper timeouts must be > 0")
	}
	if c.Layout.UnitSelectID == "" {
		return fmt.Errorf("layout.unit_select_id must be set")
	}
	switch strings.ToLower(c.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if c.Notify.Enabled() && c.Notify.ProjectID == "" {
		return fmt.Errorf("notify.project_id must be set when notify.topic is set")
	}
	return nil
}

package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	WebSearch WebSearchConfig `yaml:"websearch" mapstructure:"websearch"`
	Intents   IntentsConfig   `yaml:"intents" mapstructure:"intents"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Port              int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins    []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	MaxConcurrentRuns int64    `yaml:"max_concurrent_runs" mapstructure:"max_concurrent_runs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DiscoveryConfig holds system-wide run ceilings and defaults. Intent
// overrides are clamped to the ceilings, never rejected for exceeding them.
type DiscoveryConfig struct {
	MaxCompaniesCeiling int      `yaml:"max_companies_ceiling" mapstructure:"max_companies_ceiling"`
	MaxLeadsCeiling     int      `yaml:"max_leads_ceiling" mapstructure:"max_leads_ceiling"`
	MaxQueriesPerRun    int      `yaml:"max_queries_per_run" mapstructure:"max_queries_per_run"`
	TimeBudgetCeilingMs int64    `yaml:"time_budget_ceiling_ms" mapstructure:"time_budget_ceiling_ms"`
	DefaultTimeBudgetMs int64    `yaml:"default_time_budget_ms" mapstructure:"default_time_budget_ms"`
	DirectoryBlocklist  []string `yaml:"directory_blocklist" mapstructure:"directory_blocklist"`
}

// PlacesConfig holds Google Places API settings for the places channel.
type PlacesConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// WebSearchConfig holds web search API settings for the web channel.
type WebSearchConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// IntentsConfig locates the intent definition file.
type IntentsConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ScheduleConfig configures the daily run scheduler.
type ScheduleConfig struct {
	Entries []ScheduleEntry `yaml:"entries" mapstructure:"entries"`
}

// ScheduleEntry binds a cron expression to an intent.
type ScheduleEntry struct {
	Cron   string `yaml:"cron" mapstructure:"cron"`
	Intent string `yaml:"intent" mapstructure:"intent"`
	DryRun bool   `yaml:"dry_run" mapstructure:"dry_run"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PROSPECT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.max_concurrent_runs", 4)
	v.SetDefault("discovery.max_companies_ceiling", 500)
	v.SetDefault("discovery.max_leads_ceiling", 500)
	v.SetDefault("discovery.max_queries_per_run", 50)
	v.SetDefault("discovery.time_budget_ceiling_ms", 600000)
	v.SetDefault("discovery.default_time_budget_ms", 120000)
	v.SetDefault("discovery.directory_blocklist", []string{
		"yelp.com", "yellowpages.com", "facebook.com", "linkedin.com",
		"bbb.org", "mapquest.com", "angi.com", "thumbtack.com",
	})
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("places.rate_limit", 10)
	v.SetDefault("websearch.base_url", "https://s.jina.ai")
	v.SetDefault("websearch.rate_limit", 5)
	v.SetDefault("intents.path", "intents.yaml")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}

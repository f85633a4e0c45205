// Package config loads census-map configuration from an optional
// config.yaml and CENSUSMAP_* environment variables.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Default source locations.
const (
	DefaultCountiesURL   = "https://raw.githubusercontent.com/austinlasseter/dash-virginia-counties/master/resources/acs2017_county_data.csv"
	DefaultRUCCURL       = "https://github.com/austinlasseter/dash-virginia-counties/raw/master/resources/ruralurbancodes2013.xls"
	DefaultBoundariesURL = "https://raw.githubusercontent.com/plotly/datasets/master/geojson-counties-fips.json"
	DefaultGithubURL     = "https://github.com/psgrewal42/305-virginia-census-data"
	DefaultSourceURL     = "https://www.kaggle.com/muonneutrino/us-census-demographic-data"
)

// Config holds the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Sources SourcesConfig `yaml:"sources" mapstructure:"sources"`
	Fetch   FetchConfig   `yaml:"fetch" mapstructure:"fetch"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Render  RenderConfig  `yaml:"render" mapstructure:"render"`
}

// ServerConfig configures the dashboard HTTP server.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	SiteTitle          string   `yaml:"site_title" mapstructure:"site_title"`
	GithubURL          string   `yaml:"github_url" mapstructure:"github_url"`
	SourceURL          string   `yaml:"source_url" mapstructure:"source_url"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SourcesConfig locates the startup datasets. Each may be an http(s)://,
// ftp:// or file:// URL or a local path.
type SourcesConfig struct {
	CountiesURL     string `yaml:"counties_url" mapstructure:"counties_url"`
	CountiesCharset string `yaml:"counties_charset" mapstructure:"counties_charset"`
	RUCCURL         string `yaml:"rucc_url" mapstructure:"rucc_url"`
	BoundariesURL   string `yaml:"boundaries_url" mapstructure:"boundaries_url"`
	// BoundariesShapefile, when set, replaces BoundariesURL with a local
	// TIGER/Line county shapefile (.shp or .zip).
	BoundariesShapefile string `yaml:"boundaries_shapefile" mapstructure:"boundaries_shapefile"`
}

// FetchConfig tunes remote retrieval.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// StoreConfig selects the local table store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RenderConfig controls the map viewport and the figure cache.
type RenderConfig struct {
	Zoom         float64 `yaml:"zoom" mapstructure:"zoom"`
	MapStyle     string  `yaml:"map_style" mapstructure:"map_style"`
	ColorScale   string  `yaml:"color_scale" mapstructure:"color_scale"`
	CacheEntries int     `yaml:"cache_entries" mapstructure:"cache_entries"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CENSUSMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8050)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 30)
	v.SetDefault("server.site_title", "US Census 2017")
	v.SetDefault("server.github_url", DefaultGithubURL)
	v.SetDefault("server.source_url", DefaultSourceURL)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("sources.counties_url", DefaultCountiesURL)
	v.SetDefault("sources.counties_charset", "utf-8")
	v.SetDefault("sources.rucc_url", DefaultRUCCURL)
	v.SetDefault("sources.boundaries_url", DefaultBoundariesURL)
	v.SetDefault("sources.boundaries_shapefile", "")
	v.SetDefault("fetch.timeout_secs", 60)
	v.SetDefault("fetch.max_retries", 1)
	v.SetDefault("fetch.user_agent", "census-map/1.0")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "census.db")
	v.SetDefault("render.zoom", 5)
	v.SetDefault("render.map_style", "carto-positron")
	v.SetDefault("render.color_scale", "Earth")
	v.SetDefault("render.cache_entries", 256)

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

// Validate checks the settings a command mode depends on. Modes are
// "serve" and "snapshot".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			problems = append(problems, "server.port must be between 1 and 65535")
		}
		if c.Server.RequestTimeoutSecs < 0 {
			problems = append(problems, "server.request_timeout_secs must be >= 0")
		}
		if c.Sources.BoundariesURL == "" && c.Sources.BoundariesShapefile == "" {
			problems = append(problems, "sources.boundaries_url or sources.boundaries_shapefile is required")
		}
		if c.Render.Zoom < 0 || c.Render.Zoom > 22 {
			problems = append(problems, "render.zoom must be between 0 and 22")
		}
	case "snapshot":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Sources.CountiesURL == "" {
		problems = append(problems, "sources.counties_url is required")
	}
	if c.Sources.RUCCURL == "" {
		problems = append(problems, "sources.rucc_url is required")
	}
	if c.Fetch.MaxRetries < 1 {
		problems = append(problems, "fetch.max_retries must be >= 1")
	}
	switch c.Store.Driver {
	case "sqlite":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required for postgres")
		}
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
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

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8050, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 30, cfg.Server.RequestTimeoutSecs)
	assert.Equal(t, "US Census 2017", cfg.Server.SiteTitle)
	assert.Equal(t, DefaultGithubURL, cfg.Server.GithubURL)
	assert.Equal(t, DefaultSourceURL, cfg.Server.SourceURL)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, DefaultCountiesURL, cfg.Sources.CountiesURL)
	assert.Equal(t, DefaultRUCCURL, cfg.Sources.RUCCURL)
	assert.Equal(t, DefaultBoundariesURL, cfg.Sources.BoundariesURL)
	assert.Empty(t, cfg.Sources.BoundariesShapefile)
	assert.Equal(t, "utf-8", cfg.Sources.CountiesCharset)
	assert.Equal(t, 60, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 1, cfg.Fetch.MaxRetries)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "census.db", cfg.Store.DatabaseURL)
	assert.InDelta(t, 5.0, cfg.Render.Zoom, 0.001)
	assert.Equal(t, "carto-positron", cfg.Render.MapStyle)
	assert.Equal(t, "Earth", cfg.Render.ColorScale)
	assert.Equal(t, 256, cfg.Render.CacheEntries)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/census
log:
  level: debug
  format: console
server:
  port: 9090
  cors_origins: ["https://example.com"]
sources:
  counties_url: ./data/acs2017_county_data.csv
  counties_charset: windows-1252
render:
  zoom: 6
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "postgres://localhost/census", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, []string{"https://example.com"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "./data/acs2017_county_data.csv", cfg.Sources.CountiesURL)
	assert.Equal(t, "windows-1252", cfg.Sources.CountiesCharset)
	assert.InDelta(t, 6.0, cfg.Render.Zoom, 0.001)
	// Defaults still apply for unset values
	assert.Equal(t, DefaultRUCCURL, cfg.Sources.RUCCURL)
	assert.Equal(t, "carto-positron", cfg.Render.MapStyle)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("CENSUSMAP_STORE_DRIVER", "postgres")
	t.Setenv("CENSUSMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("CENSUSMAP_SERVER_PORT", "3000")
	t.Setenv("CENSUSMAP_SOURCES_RUCC_URL", "/data/rucc.xlsx")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "/data/rucc.xlsx", cfg.Sources.RUCCURL)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [port"), 0644))

	_, err := Load()
	assert.Error(t, err)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Server.Port = 8050
	cfg.Server.RequestTimeoutSecs = 30
	cfg.Sources.CountiesURL = DefaultCountiesURL
	cfg.Sources.RUCCURL = DefaultRUCCURL
	cfg.Sources.BoundariesURL = DefaultBoundariesURL
	cfg.Fetch.MaxRetries = 1
	cfg.Store.Driver = "sqlite"
	cfg.Render.Zoom = 5
	return cfg
}

func TestValidateServe(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("serve"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be between 1 and 65535")
}

func TestValidateServe_NoBoundaries(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources.BoundariesURL = ""

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boundaries")

	cfg.Sources.BoundariesShapefile = "tl_2017_us_county.zip"
	assert.NoError(t, cfg.Validate("serve"))
}

func TestValidateServe_Zoom(t *testing.T) {
	cfg := validDefaults()
	cfg.Render.Zoom = 30

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "render.zoom")
}

func TestValidateSnapshot_MissingSources(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources.CountiesURL = ""
	cfg.Sources.RUCCURL = ""

	err := cfg.Validate("snapshot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sources.counties_url is required")
	assert.Contains(t, err.Error(), "sources.rucc_url is required")
}

func TestValidatePostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("snapshot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url is required for postgres")

	cfg.Store.DatabaseURL = "postgres://localhost/census"
	assert.NoError(t, cfg.Validate("snapshot"))
}

func TestValidateUnknownDriver(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver must be sqlite or postgres")
}

func TestValidateMaxRetries(t *testing.T) {
	cfg := validDefaults()
	cfg.Fetch.MaxRetries = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch.max_retries")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

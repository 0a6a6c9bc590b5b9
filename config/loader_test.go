package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9000
  rate_limit_rps: 50
store:
  backend: database
database:
  driver: postgres
  host: db.internal
  port: 5432
  user: tideflow
  password: secret
  name: tideflow
  ssl_mode: disable
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.HTTPPort)
	assert.Equal(t, 50, cfg.Server.RateLimitRPS)
	assert.Equal(t, "database", cfg.Store.Backend)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched sections keep defaults
	assert.Equal(t, 9091, cfg.Server.MetricsPort)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
}

func TestLoad_FileMissing(t *testing.T) {
	cfg, err := NewLoader().WithConfigPath("/nonexistent/config.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("TIDEFLOW_SERVER_HTTP_PORT", "7070")
	t.Setenv("TIDEFLOW_STORE_BACKEND", "mongo")
	t.Setenv("TIDEFLOW_STORE_MONGO_URI", "mongodb://localhost:27017")
	t.Setenv("TIDEFLOW_REDIS_CACHE_TTL", "90s")
	t.Setenv("TIDEFLOW_SERVER_API_KEYS", "key-a, key-b")
	t.Setenv("TIDEFLOW_TELEMETRY_ENABLED", "true")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "mongo", cfg.Store.Backend)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Store.MongoURI)
	assert.Equal(t, 90*time.Second, cfg.Redis.CacheTTL)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.Server.APIKeys)
	assert.True(t, cfg.Telemetry.Enabled)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9000\n"), 0o600))

	t.Setenv("TIDEFLOW_SERVER_HTTP_PORT", "7070")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort)
}

func TestLoad_ValidatorRuns(t *testing.T) {
	_, err := NewLoader().
		WithValidator(func(c *Config) error { return assert.AnError }).
		Load()
	assert.Error(t, err)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "bad http port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 0 },
			wantErr: true,
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "etcd" },
			wantErr: true,
		},
		{
			name:    "mongo without uri",
			mutate:  func(c *Config) { c.Store.Backend = "mongo" },
			wantErr: true,
		},
		{
			name: "database without driver",
			mutate: func(c *Config) {
				c.Store.Backend = "database"
				c.Database.Driver = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDatabaseConfig_DSN(t *testing.T) {
	pg := DatabaseConfig{
		Driver: "postgres", Host: "h", Port: 5432,
		User: "u", Password: "p", Name: "db", SSLMode: "disable",
	}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=db sslmode=disable", pg.DSN())

	my := DatabaseConfig{
		Driver: "mysql", Host: "h", Port: 3306,
		User: "u", Password: "p", Name: "db",
	}
	assert.Equal(t, "u:p@tcp(h:3306)/db?parseTime=true", my.DSN())

	lite := DatabaseConfig{Driver: "sqlite", Name: "tideflow.db"}
	assert.Equal(t, "tideflow.db", lite.DSN())

	other := DatabaseConfig{Driver: "oracle"}
	assert.Equal(t, "", other.DSN())
}

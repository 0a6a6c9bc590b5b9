// =============================================================================
// Tideflow configuration loader
// =============================================================================
// Unified configuration loading: YAML file plus environment overrides.
//
// Usage:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("TIDEFLOW").
//	    Load()
//
// Precedence: defaults, then YAML file, then environment variables.
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete Tideflow service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" env:"SERVER"`
	Database  DatabaseConfig  `yaml:"database" env:"DATABASE"`
	Redis     RedisConfig     `yaml:"redis" env:"REDIS"`
	Store     StoreConfig     `yaml:"store" env:"STORE"`
	Log       LogConfig       `yaml:"log" env:"LOG"`
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	MetricsPort     int           `yaml:"metrics_port" env:"METRICS_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// API keys accepted by the key auth middleware. Empty disables key auth.
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`

	// JWTSecret enables bearer token auth when non-empty.
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`

	// CORS allowed origins. Empty means same-origin only.
	AllowedOrigins []string `yaml:"allowed_origins" env:"ALLOWED_ORIGINS"`

	RateLimitRPS   int `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// DatabaseConfig holds relational database settings.
type DatabaseConfig struct {
	// Driver selects the dialect: postgres, mysql, sqlite.
	Driver          string        `yaml:"driver" env:"DRIVER"`
	Host            string        `yaml:"host" env:"HOST"`
	Port            int           `yaml:"port" env:"PORT"`
	User            string        `yaml:"user" env:"USER"`
	Password        string        `yaml:"password" env:"PASSWORD"`
	Name            string        `yaml:"name" env:"NAME"`
	SSLMode         string        `yaml:"ssl_mode" env:"SSL_MODE"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// RedisConfig holds cache settings.
type RedisConfig struct {
	Enabled      bool          `yaml:"enabled" env:"ENABLED"`
	Addr         string        `yaml:"addr" env:"ADDR"`
	Password     string        `yaml:"password" env:"PASSWORD"`
	DB           int           `yaml:"db" env:"DB"`
	PoolSize     int           `yaml:"pool_size" env:"POOL_SIZE"`
	MinIdleConns int           `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	CacheTTL     time.Duration `yaml:"cache_ttl" env:"CACHE_TTL"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	// Backend: memory, database, mongo.
	Backend  string `yaml:"backend" env:"BACKEND"`
	MongoURI string `yaml:"mongo_uri" env:"MONGO_URI"`
	MongoDB  string `yaml:"mongo_db" env:"MONGO_DB"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	// Level: debug, info, warn, error.
	Level string `yaml:"level" env:"LEVEL"`
	// Format: json, console.
	Format           string   `yaml:"format" env:"FORMAT"`
	OutputPaths      []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	EnableCaller     bool     `yaml:"enable_caller" env:"ENABLE_CALLER"`
	EnableStacktrace bool     `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig holds OpenTelemetry settings.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// =============================================================================
// Loader
// =============================================================================

// Loader loads configuration with a builder API.
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader creates a loader with the default env prefix.
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "TIDEFLOW",
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath sets the YAML file path.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the environment variable prefix.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithValidator registers a validation hook.
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load resolves the configuration. Precedence: defaults, YAML, env.
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// absent file falls back to defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetUint(u)

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// comma-separated string slices
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}
	}

	return nil
}

// MustLoad loads configuration or panics.
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// LoadFromEnv loads configuration from environment variables only.
func LoadFromEnv() (*Config, error) {
	return NewLoader().Load()
}

// Validate checks the configuration for obvious mistakes.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}

	switch c.Store.Backend {
	case "", "memory", "database", "mongo":
	default:
		errs = append(errs, fmt.Sprintf("unknown store backend %q", c.Store.Backend))
	}

	if c.Store.Backend == "mongo" && c.Store.MongoURI == "" {
		errs = append(errs, "mongo backend requires mongo_uri")
	}

	if c.Store.Backend == "database" && c.Database.Driver == "" {
		errs = append(errs, "database backend requires a driver")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN returns the database connection string for the configured driver.
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}

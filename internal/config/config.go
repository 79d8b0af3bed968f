// Package config loads server settings from defaults, an optional config
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"go-board/internal/ratelimit"
)

const (
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverDynamoDB = "dynamodb"
)

type Config struct {
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log_level"`
	// TrustProxyHeaders takes client addresses from X-Forwarded-For and
	// X-Real-IP. Only enable it behind a proxy that overwrites them.
	TrustProxyHeaders bool             `mapstructure:"trust_proxy_headers"`
	Storage           StorageConfig    `mapstructure:"storage"`
	Redis             RedisConfig      `mapstructure:"redis"`
	Session           SessionConfig    `mapstructure:"session"`
	RateLimit         ratelimit.Config `mapstructure:"ratelimit"`
	Events            EventsConfig     `mapstructure:"events"`
	AWS               AWSConfig        `mapstructure:"aws"`
}

type StorageConfig struct {
	// Driver is one of redis, postgres, sqlite or dynamodb.
	Driver string `mapstructure:"driver"`
	// DSN is the database source for postgres and sqlite.
	DSN string `mapstructure:"dsn"`
	// Prefix namespaces every Redis key.
	Prefix string `mapstructure:"prefix"`
	// Table is the DynamoDB table.
	Table string `mapstructure:"table"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SessionConfig struct {
	Secret string `mapstructure:"secret"`
	// SecretParam names an SSM parameter that replaces Secret.
	SecretParam string        `mapstructure:"secret_param"`
	TTL         time.Duration `mapstructure:"ttl"`
	Secure      bool          `mapstructure:"secure"`
	// BoardKey keys board id derivation. Empty means unkeyed.
	BoardKey      string `mapstructure:"board_key"`
	BoardKeyParam string `mapstructure:"board_key_param"`
}

type EventsConfig struct {
	// Enabled mirrors every board broadcast onto Redis pub/sub.
	Enabled bool `mapstructure:"enabled"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
	// Endpoint overrides the service endpoint, for local DynamoDB.
	Endpoint string `mapstructure:"endpoint"`
}

func setDefaults(v *viper.Viper) {
	limits := ratelimit.DefaultConfig()

	v.SetDefault("addr", ":8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("trust_proxy_headers", false)
	v.SetDefault("storage.driver", DriverRedis)
	v.SetDefault("storage.dsn", "")
	v.SetDefault("storage.prefix", "board")
	v.SetDefault("storage.table", "board-storage")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("session.secret", "")
	v.SetDefault("session.secret_param", "")
	v.SetDefault("session.ttl", time.Hour)
	v.SetDefault("session.secure", false)
	v.SetDefault("session.board_key", "")
	v.SetDefault("session.board_key_param", "")
	v.SetDefault("ratelimit.allowance", limits.Allowance)
	v.SetDefault("ratelimit.window", limits.Window)
	v.SetDefault("ratelimit.lease", limits.Lease)
	v.SetDefault("events.enabled", false)
	v.SetDefault("aws.region", "")
	v.SetDefault("aws.endpoint", "")
}

// Load reads configuration into v. path names a config file; when empty a
// board.{toml,yaml,json} in the working directory is used if present.
// Environment variables use the BOARD_ prefix, with dots turned into
// underscores, and the older REDIS_ADDR, DB_DSN, JWT_SECRET and
// SESSION_SECRET names are still honoured.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	setDefaults(v)

	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range map[string][]string{
		"redis.addr":     {"BOARD_REDIS_ADDR", "REDIS_ADDR"},
		"storage.dsn":    {"BOARD_STORAGE_DSN", "DB_DSN"},
		"session.secret": {"BOARD_SESSION_SECRET", "SESSION_SECRET", "JWT_SECRET"},
	} {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return Config{}, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("board")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks everything that can be checked before secrets are
// resolved.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case DriverRedis:
	case DriverPostgres, DriverSQLite:
		if c.Storage.DSN == "" {
			return fmt.Errorf("config: storage.dsn is required for the %s driver", c.Storage.Driver)
		}
	case DriverDynamoDB:
		if c.Storage.Table == "" {
			return errors.New("config: storage.table is required for the dynamodb driver")
		}
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if c.Session.Secret == "" && c.Session.SecretParam == "" {
		return errors.New("config: session.secret or session.secret_param must be set")
	}
	return c.RateLimit.Validate()
}

// NeedsRedis reports whether any configured component talks to Redis.
func (c Config) NeedsRedis() bool {
	return c.Storage.Driver == DriverRedis || c.Events.Enabled
}

// NeedsAWS reports whether any configured component talks to AWS.
func (c Config) NeedsAWS() bool {
	return c.Storage.Driver == DriverDynamoDB || c.Session.SecretParam != "" || c.Session.BoardKeyParam != ""
}

// Package config loads the server configuration.
//
// Sources, lowest precedence first:
//
//  1. built-in defaults (see setDefaults)
//  2. an optional YAML file (-config flag or PLATIDEA_CONFIG)
//  3. environment variables prefixed PLATIDEA_, with dots turned into
//     underscores: session.secret → PLATIDEA_SESSION_SECRET
//
// A .env file in the working directory is loaded into the environment
// first, so it behaves like step 3.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "PLATIDEA"

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	SessionStoreDatabase = "database"
	SessionStoreRedis    = "redis"
)

// MinSecretLength is the shortest accepted session secret.
const MinSecretLength = 16

type ServerConfig struct {
	Port          int  `mapstructure:"port"`
	SecureCookies bool `mapstructure:"secure_cookies"`
}

type LogConfig struct {
	Level string `mapstructure:"level"` // debug, info, warn, error
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"` // sqlite file
	URL    string `mapstructure:"url"`  // postgres DSN
}

type SessionConfig struct {
	Secret        string        `mapstructure:"secret"`
	TTL           time.Duration `mapstructure:"ttl"`
	Store         string        `mapstructure:"store"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type StoreConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
}

type SecurityConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

type GitHubConfig struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	CallbackURL  string `mapstructure:"callback_url"`
}

// Enabled reports whether GitHub sign-in is configured.
func (g GitHubConfig) Enabled() bool {
	return g.ClientID != "" && g.ClientSecret != ""
}

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Log      LogConfig      `mapstructure:"log"`
	Database DatabaseConfig `mapstructure:"database"`
	Session  SessionConfig  `mapstructure:"session"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Store    StoreConfig    `mapstructure:"store"`
	Security SecurityConfig `mapstructure:"security"`
	GitHub   GitHubConfig   `mapstructure:"github"`
}

// setDefaults registers every key. Viper only maps environment variables
// onto keys it already knows, so keys without a sensible default are
// registered with their zero value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.path", "data/platidea.db")
	v.SetDefault("database.url", "")

	v.SetDefault("session.secret", "")
	v.SetDefault("session.ttl", 24*time.Hour)
	v.SetDefault("session.store", SessionStoreDatabase)
	v.SetDefault("session.sweep_interval", 10*time.Minute)

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("security.bcrypt_cost", 12)

	v.SetDefault("github.client_id", "")
	v.SetDefault("github.client_secret", "")
	v.SetDefault("github.callback_url", "")
}

// Load reads the configuration. path may be empty; PLATIDEA_CONFIG is then
// consulted, and without either only defaults and the environment apply.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: loading .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = v.GetString("config")
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}

	if c.GitHub.CallbackURL == "" {
		c.GitHub.CallbackURL = fmt.Sprintf("http://localhost:%d/auth/github/callback", c.Server.Port)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate rejects configurations the server cannot start with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range", c.Server.Port))
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, errors.New("database.path is required for the sqlite driver"))
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url is required for the postgres driver"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown database.driver %q", c.Database.Driver))
	}

	if len(c.Session.Secret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("session.secret must be at least %d characters", MinSecretLength))
	}
	if c.Session.TTL <= 0 {
		errs = append(errs, errors.New("session.ttl must be positive"))
	}
	switch c.Session.Store {
	case SessionStoreDatabase:
	case SessionStoreRedis:
		if c.Redis.Addr == "" {
			errs = append(errs, errors.New("redis.addr is required when session.store is redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown session.store %q", c.Session.Store))
	}

	if c.Store.Timeout <= 0 {
		errs = append(errs, errors.New("store.timeout must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

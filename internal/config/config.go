// Package config loads server settings from a .env file, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-yaml/yaml"
	"github.com/joho/godotenv"
)

// Config holds the server settings.
type Config struct {
	Addr          string
	DBPath        string
	JWTSecret     string
	TokenTTL      time.Duration
	RequireAuth   bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	// SubscriberBuffer is the per-subscription realtime event buffer.
	SubscriberBuffer int
	DebtCacheTTL     time.Duration
	AllowedOrigin    string
	LogLevel         string
	LogFormat        string
}

// file mirrors the YAML layout. Durations are strings such as "24h".
type file struct {
	Server struct {
		Addr          string `yaml:"addr"`
		DBPath        string `yaml:"dbPath"`
		AllowedOrigin string `yaml:"allowedOrigin"`
	} `yaml:"server"`
	Auth struct {
		JWTSecret   string `yaml:"jwtSecret"`
		TokenTTL    string `yaml:"tokenTTL"`
		RequireAuth bool   `yaml:"requireAuth"`
	} `yaml:"auth"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Realtime struct {
		SubscriberBuffer int    `yaml:"subscriberBuffer"`
		DebtCacheTTL     string `yaml:"debtCacheTTL"`
	} `yaml:"realtime"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Addr:             ":8080",
		DBPath:           "./data/ledger.db",
		JWTSecret:        "dev-secret-change-me",
		TokenTTL:         24 * time.Hour,
		SubscriberBuffer: 16,
		DebtCacheTTL:     5 * time.Minute,
		AllowedOrigin:    "*",
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load builds the configuration. path names a YAML file; when empty the
// CONFIG_FILE variable is used, and when that is empty too no file is read.
func Load(path string) (Config, error) {
	godotenv.Load() // Load .env file if present

	cfg := Default()

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}

	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	var raw file
	if err := yaml.NewDecoder(f).Decode(&raw); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}

	setString(&c.Addr, raw.Server.Addr)
	setString(&c.DBPath, raw.Server.DBPath)
	setString(&c.AllowedOrigin, raw.Server.AllowedOrigin)
	setString(&c.JWTSecret, raw.Auth.JWTSecret)
	c.RequireAuth = c.RequireAuth || raw.Auth.RequireAuth
	setString(&c.RedisAddr, raw.Redis.Addr)
	setString(&c.RedisPassword, raw.Redis.Password)
	if raw.Redis.DB != 0 {
		c.RedisDB = raw.Redis.DB
	}
	if raw.Realtime.SubscriberBuffer != 0 {
		c.SubscriberBuffer = raw.Realtime.SubscriberBuffer
	}
	setString(&c.LogLevel, raw.Log.Level)
	setString(&c.LogFormat, raw.Log.Format)

	if err := setDuration(&c.TokenTTL, "tokenTTL", raw.Auth.TokenTTL); err != nil {
		return err
	}
	return setDuration(&c.DebtCacheTTL, "debtCacheTTL", raw.Realtime.DebtCacheTTL)
}

func (c *Config) loadEnv() error {
	c.Addr = getEnv("ADDR", c.Addr)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.JWTSecret = getEnv("JWT_SECRET", c.JWTSecret)
	c.RedisAddr = getEnv("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = getEnv("REDIS_PASSWORD", c.RedisPassword)
	c.AllowedOrigin = getEnv("ALLOWED_ORIGIN", c.AllowedOrigin)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)

	if v := os.Getenv("REQUIRE_AUTH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid REQUIRE_AUTH %q: %w", v, err)
		}
		c.RequireAuth = b
	}
	for key, dst := range map[string]*int{"REDIS_DB": &c.RedisDB, "SUBSCRIBER_BUFFER": &c.SubscriberBuffer} {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", key, v, err)
			}
			*dst = n
		}
	}
	if err := setDuration(&c.TokenTTL, "TOKEN_TTL", os.Getenv("TOKEN_TTL")); err != nil {
		return err
	}
	return setDuration(&c.DebtCacheTTL, "DEBT_CACHE_TTL", os.Getenv("DEBT_CACHE_TTL"))
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, name, v string) error {
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", name, v, err)
	}
	*dst = d
	return nil
}

package config

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Configuration struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Logging  LoggingConfig  `mapstructure:"logging" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Upstream UpstreamConfig `mapstructure:"upstream" validate:"required"`
	Session  SessionConfig  `mapstructure:"session" validate:"required"`
	Catalog  CatalogConfig  `mapstructure:"catalog" validate:"required"`
	Auth     AuthConfig     `mapstructure:"auth"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address" validate:"required"`
	Mode           string   `mapstructure:"mode" validate:"oneof=debug release test"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=postgres sqlite"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is the sqlite file (or "file::memory:?cache=shared").
	Path string `mapstructure:"path"`
}

// UpstreamConfig points at the REST API the back office edits documents through.
type UpstreamConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"required,url"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"required"`
	RetryMax     int           `mapstructure:"retry_max" validate:"gte=0"`
	RetryWaitMin time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration `mapstructure:"retry_wait_max"`
}

type SessionConfig struct {
	TTL             time.Duration `mapstructure:"ttl" validate:"required"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"required"`
}

type CatalogConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl" validate:"required"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://127.0.0.1:5173"})
	v.SetDefault("logging.level", "info")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.path", "backoffice.db")
	v.SetDefault("upstream.base_url", "http://localhost:3000")
	v.SetDefault("upstream.timeout", 15*time.Second)
	v.SetDefault("upstream.retry_max", 3)
	v.SetDefault("upstream.retry_wait_min", 200*time.Millisecond)
	v.SetDefault("upstream.retry_wait_max", 2*time.Second)
	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.cleanup_interval", 5*time.Minute)
	v.SetDefault("catalog.cache_ttl", 5*time.Minute)
	v.SetDefault("auth.jwt_secret", "")
}

// NewConfig loads configs/.env, then config.yaml (or file when non-empty), then BACKOFFICE_* env vars.
func NewConfig(file string) (*Configuration, error) {
	if err := godotenv.Load("configs/.env"); err != nil {
		log.Println("No configs/.env file found or error loading it")
	}

	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("./internal/config")
	}

	v.SetEnvPrefix("BACKOFFICE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Configuration
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

func (c Configuration) Validate() error {
	return validator.New().Struct(c)
}

// JWTSecret returns the HMAC secret for access tokens. A development fallback is
// only allowed outside release mode.
func (c Configuration) JWTSecret() ([]byte, error) {
	if c.Auth.JWTSecret != "" {
		return []byte(c.Auth.JWTSecret), nil
	}
	if c.Server.Mode == "release" {
		return nil, errors.New("auth.jwt_secret is required in release mode")
	}
	return []byte("default_super_secret_key"), nil
}

func (c DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// Package config loads service configuration from an optional YAML file,
// a .env file and the environment, in that order of precedence reversed:
// environment variables always win.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Payment  PaymentConfig  `yaml:"payment"`
	Auth     AuthConfig     `yaml:"auth"`
	Audit    AuditConfig    `yaml:"audit"`
	Logger   LoggerConfig   `yaml:"logger"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"          env:"SERVER_ADDR"          env-default:":8080" validate:"required"`
	ReadTimeout  time.Duration `yaml:"read_timeout"  env:"SERVER_READ_TIMEOUT"  env-default:"15s"   validate:"gt=0"`
	WriteTimeout time.Duration `yaml:"write_timeout" env:"SERVER_WRITE_TIMEOUT" env-default:"15s"   validate:"gt=0"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"  env:"SERVER_IDLE_TIMEOUT"  env-default:"60s"   validate:"gt=0"`
	// BackendTimeout bounds every round trip to the store. A timeout is an
	// infrastructure failure, never a business rejection.
	BackendTimeout time.Duration `yaml:"backend_timeout" env:"BACKEND_TIMEOUT" env-default:"30s" validate:"gt=0"`
}

type PostgresConfig struct {
	Host            string        `yaml:"host"              env:"DB_HOST"              env-default:"localhost"      validate:"required"`
	Port            int           `yaml:"port"              env:"DB_PORT"              env-default:"5432"           validate:"required,min=1,max=65535"`
	User            string        `yaml:"user"              env:"DB_USER"              env-default:"postgres"       validate:"required"`
	Password        string        `yaml:"password"          env:"DB_PASSWORD"          env-default:"postgres"       validate:"required"`
	Database        string        `yaml:"database"          env:"DB_NAME"              env-default:"eventlifecycle" validate:"required"`
	SSLMode         string        `yaml:"sslmode"           env:"DB_SSLMODE"           env-default:"disable"        validate:"required,oneof=disable require verify-ca verify-full"`
	MaxConns        int32         `yaml:"max_conns"         env:"DB_MAX_CONNS"         env-default:"20"             validate:"min=1"`
	MinConns        int32         `yaml:"min_conns"         env:"DB_MIN_CONNS"         env-default:"2"              validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"30m"            validate:"gt=0"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle"     env:"DB_CONN_MAX_IDLE"     env-default:"5m"             validate:"gt=0"`
}

// DSN builds a libpq-compatible connection string.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"   env:"REDIS_ENABLED"   env-default:"false"`
	Addr     string        `yaml:"addr"      env:"REDIS_ADDR"      env-default:"localhost:6379" validate:"required_if=Enabled true"`
	Password string        `yaml:"password"  env:"REDIS_PASSWORD"`
	DB       int           `yaml:"db"        env:"REDIS_DB"        env-default:"0"  validate:"min=0"`
	CacheTTL time.Duration `yaml:"cache_ttl" env:"REDIS_CACHE_TTL" env-default:"30s" validate:"gt=0"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"     env:"SMTP_HOST"`
	Port     int    `yaml:"port"     env:"SMTP_PORT"     env-default:"587" validate:"min=1,max=65535"`
	Username string `yaml:"username" env:"SMTP_USERNAME"`
	Password string `yaml:"password" env:"SMTP_PASSWORD"`
	From     string `yaml:"from"     env:"SMTP_FROM"     env-default:"tickets@localhost"`
}

// Enabled reports whether email delivery is configured.
func (s SMTPConfig) Enabled() bool {
	return s.Host != ""
}

type PaymentConfig struct {
	BaseURL string        `yaml:"base_url" env:"PAYMENT_BASE_URL" env-default:"http://localhost:9090" validate:"required,url"`
	APIKey  string        `yaml:"api_key"  env:"PAYMENT_API_KEY"`
	Timeout time.Duration `yaml:"timeout"  env:"PAYMENT_TIMEOUT"  env-default:"30s" validate:"gt=0"`
	// WebhookSecret keys the HMAC-SHA256 signature the gateway puts on every
	// webhook delivery.
	WebhookSecret string `yaml:"webhook_secret" env:"PAYMENT_WEBHOOK_SECRET" validate:"required,min=16"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET" validate:"required,min=16"`
}

type AuditConfig struct {
	Schedule  string `yaml:"schedule"  env:"AUDIT_SCHEDULE"  env-default:"@every 10m" validate:"required"`
	Reconcile bool   `yaml:"reconcile" env:"AUDIT_RECONCILE" env-default:"false"`
}

type LoggerConfig struct {
	Level  string `yaml:"level"  env:"LOG_LEVEL"  env-default:"info" validate:"required,oneof=debug info warn error"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json" validate:"required,oneof=json text"`
}

// SlogLevel converts the configured level name.
func (c LoggerConfig) SlogLevel() slog.Level {
	switch c.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger builds the process logger writing to w.
func (c LoggerConfig) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Load reads configuration. When path is empty only the environment is used.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	if path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// MustLoad reads configuration from CONFIG_PATH (or the environment) and
// panics on failure.
func MustLoad() *Config {
	cfg, err := Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

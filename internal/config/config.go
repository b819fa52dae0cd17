package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

const (
	DefaultJWTSecret   = "your_super_secret_jwt_key_here_change_in_production"
	MinJWTSecretLength = 32
)

type Config struct {
	Env  string `env:"APP_ENV" envDefault:"dev"`
	Port int    `env:"PORT" envDefault:"8080"`

	// Store selects the user store backend: postgres or memory.
	Store string `env:"STORE" envDefault:"postgres"`
	DBURL string `env:"DATABASE_URL"`

	DBHost     string `env:"DB_HOST" envDefault:"127.0.0.1"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER" envDefault:"accounthub"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"accounthub"`
	DBName     string `env:"DB_NAME" envDefault:"accounthub"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"your_super_secret_jwt_key_here_change_in_production"`
	JWTExpire string `env:"JWT_EXPIRE" envDefault:"30d"`
	// derived from JWTExpire
	JWTTTL time.Duration

	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`

	RedisAddr     string        `env:"REDIS_ADDR"`
	RedisPassword string        `env:"REDIS_PASSWORD"`
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`
	UserCacheTTL  time.Duration `env:"USER_CACHE_TTL" envDefault:"30s"`

	CORSOrigins  []string `env:"CORS_ORIGINS" envSeparator:","`
	MaxBodyBytes int64    `env:"MAX_BODY_BYTES" envDefault:"10485760"`

	OTelEnabled  bool   `env:"OTEL_ENABLED" envDefault:"false"`
	OTelEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4317"`
	ServiceName  string `env:"SERVICE_NAME" envDefault:"accounthub"`

	AdminEmail    string `env:"ADMIN_EMAIL"`
	AdminPassword string `env:"ADMIN_PASSWORD"`
	AdminName     string `env:"ADMIN_NAME" envDefault:"Administrator"`
}

func (c Config) IsProd() bool {
	return c.Env == "prod"
}

func (c Config) UseRedis() bool {
	return c.RedisAddr != ""
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return Config{}, fmt.Errorf("load .env: %w", err)
		}
	}

	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}

	ttl, err := ParseTTL(cfg.JWTExpire)
	if err != nil {
		return Config{}, fmt.Errorf("JWT_EXPIRE: %w", err)
	}
	cfg.JWTTTL = ttl

	if cfg.DBURL == "" {
		cfg.DBURL = cfg.buildDBURL()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	switch c.Store {
	case "postgres", "memory":
	default:
		return fmt.Errorf("STORE must be postgres or memory, got %q", c.Store)
	}

	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}

	if c.IsProd() {
		if c.JWTSecret == DefaultJWTSecret {
			return errors.New("JWT_SECRET is a known default value and must not be used in prod")
		}
		if len(c.JWTSecret) < MinJWTSecretLength {
			return fmt.Errorf("JWT_SECRET must be at least %d bytes long in prod, got %d",
				MinJWTSecretLength, len(c.JWTSecret))
		}
	}

	return nil
}

func (c Config) buildDBURL() string {
	return "postgres://" + c.DBUser + ":" + c.DBPassword + "@" + c.DBHost + ":" + c.DBPort + "/" + c.DBName + "?sslmode=" + c.DBSSLMode
}

// ParseTTL accepts Go durations ("720h") and a day suffix ("30d").
func ParseTTL(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("ttl must be positive, got %s", s)
	}
	return d, nil
}

// StoreTimeout bounds every credential store call made while serving a request.
const StoreTimeout = 3 * time.Second

// WithTimeout derives a bounded context from parent, falling back to
// context.Background when parent is nil.
func WithTimeout(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithTimeout(parent, duration)
}

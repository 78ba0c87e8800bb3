package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/Skotchmaster/lookaly/internal/domain"
	"github.com/Skotchmaster/lookaly/internal/hash"
	"github.com/Skotchmaster/lookaly/internal/throttle"
	"github.com/Skotchmaster/lookaly/internal/tokens"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendDatabase = "database"
)

type Config struct {
	AppName     string `env:"APP_NAME"     envDefault:"Lookaly API"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`
	Addr        string `env:"AUTH_ADDR"    envDefault:":8080"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`
	FrontendURL string `env:"FRONTEND_URL" envDefault:"http://localhost:5173"`

	DBDriver    string `env:"DB_DRIVER"    envDefault:"postgres"`
	DatabaseURL string `env:"DATABASE_URL"`

	SecretKey          string `env:"SECRET_KEY"`
	Algorithm          string `env:"ALGORITHM"                   envDefault:"HS256"`
	AccessTokenMinutes int    `env:"ACCESS_TOKEN_EXPIRE_MINUTES" envDefault:"30"`
	RefreshTokenDays   int    `env:"REFRESH_TOKEN_EXPIRE_DAYS"   envDefault:"7"`

	PasswordMinLength  int `env:"PASSWORD_MIN_LENGTH"  envDefault:"8"`
	PasswordMaxLength  int `env:"PASSWORD_MAX_LENGTH"  envDefault:"72"`
	PasswordExpireDays int `env:"PASSWORD_EXPIRE_DAYS" envDefault:"0"`
	PasswordHashCost   int `env:"PASSWORD_HASH_COST"   envDefault:"12"`
	HashConcurrency    int `env:"PASSWORD_HASH_CONCURRENCY" envDefault:"0"`

	TOTPIssuer string `env:"TOTP_ISSUER" envDefault:"Lookaly"`

	GoogleClientID     string        `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string        `env:"GOOGLE_CLIENT_SECRET"`
	GoogleRedirectURI  string        `env:"GOOGLE_REDIRECT_URI" envDefault:"http://localhost:8080/api/auth/google/callback"`
	FederationTimeout  time.Duration `env:"FEDERATION_TIMEOUT"  envDefault:"10s"`

	RegisterRateLimit throttle.Rule `env:"RATE_LIMIT_REGISTER" envDefault:"5/1m"`
	LoginRateLimit    throttle.Rule `env:"RATE_LIMIT_LOGIN"    envDefault:"10/1m"`

	RevocationBackend string   `env:"REVOCATION_BACKEND" envDefault:"memory"`
	ThrottleBackend   string   `env:"THROTTLE_BACKEND"   envDefault:"memory"`
	RedisURL          string   `env:"REDIS_URL"`
	KafkaBrokers      []string `env:"KAFKA_BROKERS" envSeparator:","`
	Roles             []string `env:"ROLES"         envSeparator:"," envDefault:"customer,inventory_manager,sales,it,analyst,administrative,super_admin"`
}

// Load reads .env when present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("config: .env not loaded: %v", err)
	}
	return Parse(env.Options{})
}

func Parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
	}
	cfg.KafkaBrokers = trimAll(cfg.KafkaBrokers)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var problems []string
	if c.SecretKey == "" {
		problems = append(problems, "SECRET_KEY is required")
	} else if len(c.SecretKey) < tokens.MinSecretBytes {
		problems = append(problems, fmt.Sprintf("SECRET_KEY must be at least %d bytes", tokens.MinSecretBytes))
	}
	if !strings.HasPrefix(strings.ToUpper(c.Algorithm), "HS") {
		problems = append(problems, "ALGORITHM must be an HMAC variant")
	}
	if c.AccessTokenMinutes <= 0 {
		problems = append(problems, "ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if c.RefreshTokenDays <= 0 {
		problems = append(problems, "REFRESH_TOKEN_EXPIRE_DAYS must be positive")
	}
	if c.PasswordMinLength <= 0 || c.PasswordMinLength > c.PasswordMaxLength {
		problems = append(problems, "PASSWORD_MIN_LENGTH must be positive and not above PASSWORD_MAX_LENGTH")
	}
	if c.PasswordMaxLength > hash.MaxPasswordBytes {
		problems = append(problems, fmt.Sprintf("PASSWORD_MAX_LENGTH cannot exceed %d", hash.MaxPasswordBytes))
	}
	if c.PasswordExpireDays < 0 {
		problems = append(problems, "PASSWORD_EXPIRE_DAYS cannot be negative")
	}
	if c.RegisterRateLimit.Requests <= 0 || c.LoginRateLimit.Requests <= 0 {
		problems = append(problems, "rate limits must be positive")
	}
	backends := []string{BackendMemory, BackendRedis, BackendDatabase}
	if !slices.Contains(backends, c.RevocationBackend) {
		problems = append(problems, "REVOCATION_BACKEND must be memory, redis or database")
	}
	if c.ThrottleBackend != BackendMemory && c.ThrottleBackend != BackendRedis {
		problems = append(problems, "THROTTLE_BACKEND must be memory or redis")
	}
	if (c.RevocationBackend == BackendRedis || c.ThrottleBackend == BackendRedis) && c.RedisURL == "" {
		problems = append(problems, "REDIS_URL is required for the redis backend")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) AccessTTL() time.Duration {
	return time.Duration(c.AccessTokenMinutes) * time.Minute
}

func (c *Config) RefreshTTL() time.Duration {
	return time.Duration(c.RefreshTokenDays) * 24 * time.Hour
}

func (c *Config) FederationEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

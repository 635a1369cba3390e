package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all application configuration
type Config struct {
	Env          string `envconfig:"APP_ENV" default:"development"`
	Port         int    `envconfig:"APP_PORT" default:"8080"`
	DB           DBConfig
	Redis        RedisConfig
	CORS         CORSConfig
	JWT          JWTConfig
	Generation   GenerationConfig
	Availability AvailabilityConfig
	Notify       NotifyConfig
	Engine       EngineConfig
}

// database configuration
type DBConfig struct {
	DSN          string        `envconfig:"DATABASE_URL" required:"true"`
	MaxOpenConns int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
	MaxIdleTime  time.Duration `envconfig:"DB_MAX_IDLE_TIME" default:"15m"`
}

type RedisConfig struct {
	Addr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	Password string        `envconfig:"REDIS_PASSWORD" default:""`
	DB       int           `envconfig:"REDIS_DB" default:"0"`
	CacheTTL time.Duration `envconfig:"AVAILABILITY_CACHE_TTL" default:"5m"`
}

// CORS configuration
type CORSConfig struct {
	TrustedOrigins []string `envconfig:"CORS_TRUSTED_ORIGINS" default:"http://localhost:3000,http://localhost:5173"`
}

// JWT configuration. Tokens are issued by the external identity
// service; the secret here is for verification only.
type JWTConfig struct {
	Secret string `envconfig:"JWT_SECRET" required:"true"`
}

// text-generation collaborator configuration
type GenerationConfig struct {
	BaseURL string        `envconfig:"GENERATION_BASE_URL" required:"true"`
	APIKey  string        `envconfig:"GENERATION_API_KEY" required:"true"`
	Timeout time.Duration `envconfig:"GENERATION_TIMEOUT" default:"30s"`
}

// availability-source collaborator configuration
type AvailabilityConfig struct {
	BaseURL     string        `envconfig:"AVAILABILITY_BASE_URL" required:"true"`
	Timeout     time.Duration `envconfig:"AVAILABILITY_TIMEOUT" default:"10s"`
	HorizonDays int           `envconfig:"AVAILABILITY_HORIZON_DAYS" default:"14"`
}

// notification dispatch configuration
type NotifyConfig struct {
	BaseURL   string        `envconfig:"NOTIFY_BASE_URL" required:"true"`
	Timeout   time.Duration `envconfig:"NOTIFY_TIMEOUT" default:"10s"`
	Recipient string        `envconfig:"NOTIFY_RECIPIENT" default:"scheduling-ops"`
}

// workflow engine configuration
type EngineConfig struct {
	MaxParallel int           `envconfig:"ENGINE_MAX_PARALLEL" default:"8"`
	TaskTimeout time.Duration `envconfig:"ENGINE_TASK_TIMEOUT" default:"60s"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	validEnvs := map[string]bool{
		"development": true,
		"staging":     true,
		"production":  true,
		"test":        true,
	}
	if !validEnvs[c.Env] {
		return fmt.Errorf("invalid environment: %s (must be one of: development, staging, production, test)", c.Env)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
	}
	if c.DB.MaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if c.Engine.MaxParallel < 1 {
		return fmt.Errorf("ENGINE_MAX_PARALLEL must be at least 1")
	}
	if c.Availability.HorizonDays < 1 {
		return fmt.Errorf("AVAILABILITY_HORIZON_DAYS must be at least 1")
	}
	if len(c.CORS.TrustedOrigins) == 0 {
		return fmt.Errorf("at least one trusted origin must be specified")
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// GetCORSOrigins returns the list of trusted CORS origins
func (c *Config) GetCORSOrigins() []string {
	origins := make([]string, 0, len(c.CORS.TrustedOrigins))
	for _, origin := range c.CORS.TrustedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	return origins
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/gommon/random"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config is the complete runtime configuration of the API server.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Minio     MinioConfig
	Token     TokenConfig
	Security  SecurityConfig
	Scheduler SchedulerConfig
}

type AppConfig struct {
	Env     string
	Version string
}

type HTTPConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type DatabaseConfig struct {
	URL         string
	AutoMigrate bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	URLExpiry time.Duration
}

// TokenConfig carries the signing secrets and lifetimes handed to the token service.
type TokenConfig struct {
	AccessSecret  string
	RefreshSecret string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	Issuer        string
}

type SecurityConfig struct {
	BcryptCost           int
	LoginMaxAttempts     int
	LoginWindow          time.Duration
	EmailVerificationTTL time.Duration
	PhoneDefaultRegion   string
}

type SchedulerConfig struct {
	Enabled               bool
	RefreshSweepInterval  time.Duration
	BacklogReportInterval time.Duration
}

// Load reads an optional .env file and builds the configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Env:     getEnv("APP_ENV", EnvDevelopment),
			Version: getEnv("APP_VERSION", "1.0.0"),
		},
		HTTP: HTTPConfig{
			Port:            getEnvInt("PORT", 8080),
			ShutdownTimeout: getEnvDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:         os.Getenv("DATABASE_URL"),
			AutoMigrate: getEnvBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", "minioadmin"),
			SecretKey: getEnv("MINIO_SECRET_KEY", "minioadmin"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
			Bucket:    getEnv("MINIO_BUCKET", "service-images"),
			URLExpiry: getEnvDuration("MINIO_URL_EXPIRY", 7*24*time.Hour),
		},
		Token: TokenConfig{
			AccessSecret:  os.Getenv("ACCESS_TOKEN_SECRET"),
			RefreshSecret: os.Getenv("REFRESH_TOKEN_SECRET"),
			AccessTTL:     getEnvDuration("ACCESS_TOKEN_EXPIRY", 24*time.Hour),
			RefreshTTL:    getEnvDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			Issuer:        getEnv("TOKEN_ISSUER", "servicehub"),
		},
		Security: SecurityConfig{
			BcryptCost:           getEnvInt("BCRYPT_COST", 10),
			LoginMaxAttempts:     getEnvInt("LOGIN_MAX_ATTEMPTS", 5),
			LoginWindow:          getEnvDuration("LOGIN_WINDOW", 15*time.Minute),
			EmailVerificationTTL: getEnvDuration("EMAIL_VERIFICATION_TTL", 24*time.Hour),
			PhoneDefaultRegion:   getEnv("PHONE_DEFAULT_REGION", "IN"),
		},
		Scheduler: SchedulerConfig{
			Enabled:               getEnvBool("SCHEDULER_ENABLED", true),
			RefreshSweepInterval:  getEnvDuration("REFRESH_SWEEP_INTERVAL", time.Hour),
			BacklogReportInterval: getEnvDuration("BACKLOG_REPORT_INTERVAL", 24*time.Hour),
		},
	}

	if cfg.IsDevelopment() {
		// generated secrets invalidate all tokens on restart
		if cfg.Token.AccessSecret == "" {
			cfg.Token.AccessSecret = random.String(32)
		}
		if cfg.Token.RefreshSecret == "" {
			cfg.Token.RefreshSecret = random.String(32)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot safely start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Database.URL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable is required"))
	}
	if c.Token.AccessSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET environment variable is required"))
	}
	if c.Token.RefreshSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET environment variable is required"))
	}
	if c.Token.AccessSecret != "" && c.Token.AccessSecret == c.Token.RefreshSecret {
		errs = append(errs, errors.New("access and refresh token secrets must differ"))
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		errs = append(errs, errors.New("token lifetimes must be positive"))
	}
	if c.Security.BcryptCost < 4 || c.Security.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("BCRYPT_COST %d out of range", c.Security.BcryptCost))
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid port %d", c.HTTP.Port))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

// getEnvDuration accepts Go durations ("15m") and day suffixes ("7d").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if days, ok := strings.CutSuffix(v, "d"); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * 24 * time.Hour
		}
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return fallback
}

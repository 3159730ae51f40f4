package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Auth       AuthConfig
	Encryption EncryptionConfig
	SMTP       SMTPConfig
	RateLimit  RateLimitConfig
	Worker     WorkerConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	Env         string
	MultiTenant bool
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type JWTConfig struct {
	Secret           string
	AccessTTLMinutes int
	RefreshTTLDays   int
}

type AuthConfig struct {
	LockoutThreshold     int
	LockoutWindowMinutes int
	ResetTTLMinutes      int
	MinPasswordLength    int
}

type EncryptionConfig struct {
	Key string
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	UseTLS   bool
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

type WorkerConfig struct {
	Concurrency      int
	PurgeSchedule    string // cron expression for the credential purge job
	AttemptMaxAgeHrs int    // login attempts older than this are purged
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (j *JWTConfig) AccessTTL() time.Duration {
	return time.Duration(j.AccessTTLMinutes) * time.Minute
}

func (j *JWTConfig) RefreshTTL() time.Duration {
	return time.Duration(j.RefreshTTLDays) * 24 * time.Hour
}

func (a *AuthConfig) LockoutWindow() time.Duration {
	return time.Duration(a.LockoutWindowMinutes) * time.Minute
}

func (a *AuthConfig) ResetTTL() time.Duration {
	return time.Duration(a.ResetTTLMinutes) * time.Minute
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("MULTI_TENANT", true)
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "schoolhub")
	v.SetDefault("DATABASE_PASSWORD", "schoolhub_secret")
	v.SetDefault("DATABASE_NAME", "schoolhub")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ACCESS_TTL_MINUTES", 15)
	v.SetDefault("JWT_REFRESH_TTL_DAYS", 30)
	v.SetDefault("AUTH_LOCKOUT_THRESHOLD", 5)
	v.SetDefault("AUTH_LOCKOUT_WINDOW_MINUTES", 15)
	v.SetDefault("AUTH_RESET_TTL_MINUTES", 30)
	v.SetDefault("AUTH_MIN_PASSWORD_LENGTH", 8)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "noreply@schoolhub.local")
	v.SetDefault("SMTP_USE_TLS", false)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_PURGE_SCHEDULE", "0 3 * * *")
	v.SetDefault("WORKER_ATTEMPT_MAX_AGE_HOURS", 720)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host:        v.GetString("SERVER_HOST"),
			Port:        v.GetInt("SERVER_PORT"),
			Env:         v.GetString("SERVER_ENV"),
			MultiTenant: v.GetBool("MULTI_TENANT"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		JWT: JWTConfig{
			Secret:           v.GetString("JWT_SECRET"),
			AccessTTLMinutes: v.GetInt("JWT_ACCESS_TTL_MINUTES"),
			RefreshTTLDays:   v.GetInt("JWT_REFRESH_TTL_DAYS"),
		},
		Auth: AuthConfig{
			LockoutThreshold:     v.GetInt("AUTH_LOCKOUT_THRESHOLD"),
			LockoutWindowMinutes: v.GetInt("AUTH_LOCKOUT_WINDOW_MINUTES"),
			ResetTTLMinutes:      v.GetInt("AUTH_RESET_TTL_MINUTES"),
			MinPasswordLength:    v.GetInt("AUTH_MIN_PASSWORD_LENGTH"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		SMTP: SMTPConfig{
			Host:     v.GetString("SMTP_HOST"),
			Port:     v.GetInt("SMTP_PORT"),
			Username: v.GetString("SMTP_USERNAME"),
			Password: v.GetString("SMTP_PASSWORD"),
			From:     v.GetString("SMTP_FROM"),
			UseTLS:   v.GetBool("SMTP_USE_TLS"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Worker: WorkerConfig{
			Concurrency:      v.GetInt("WORKER_CONCURRENCY"),
			PurgeSchedule:    v.GetString("WORKER_PURGE_SCHEDULE"),
			AttemptMaxAgeHrs: v.GetInt("WORKER_ATTEMPT_MAX_AGE_HOURS"),
		},
	}

	return cfg, nil
}

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
	Perplexity PerplexityConfig
	Export     ExportConfig
	Scheduler  SchedulerConfig
	RateLimit  RateLimitConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Driver   string // "sqlite" or "postgres"
	Path     string // sqlite file
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	Debug    bool
	// AutoMigrate upgrades the schema at startup. When false an older store
	// keeps working without follow-up links.
	AutoMigrate bool
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
}

type PerplexityConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float64
	TopP           float64
	TimeoutSeconds int
	MaxRetries     int
}

type ExportConfig struct {
	Enabled         bool
	CredentialsFile string
	TokenFile       string
	TokenKey        string // age X25519 identity; empty stores the token in plain JSON
	FolderName      string
}

type SchedulerConfig struct {
	FollowupDelayMinutes int
	Dispatch             string // "inline" or "queue"
	WorkerConcurrency    int
}

type RateLimitConfig struct {
	Requests      int
	WindowSeconds int
}

const (
	DispatchInline = "inline"
	DispatchQueue  = "queue"
)

func (d *DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.Path
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (p *PerplexityConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (s *SchedulerConfig) UsesQueue() bool {
	return s.Dispatch == DispatchQueue
}

func Load() (*Config, error) {
	return load(".", "/app")
}

func load(paths ...string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 3000)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("LOG_LEVEL", "")
	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("DATABASE_DRIVER", "sqlite")
	v.SetDefault("DATABASE_PATH", "queries.db")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "goscout")
	v.SetDefault("DATABASE_PASSWORD", "goscout_secret")
	v.SetDefault("DATABASE_NAME", "goscout")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("DATABASE_DEBUG", false)
	v.SetDefault("DATABASE_AUTO_MIGRATE", true)
	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("PERPLEXITY_API_KEY", "")
	v.SetDefault("PERPLEXITY_BASE_URL", "https://api.perplexity.ai")
	v.SetDefault("PERPLEXITY_MODEL", "sonar-pro")
	v.SetDefault("PERPLEXITY_MAX_TOKENS", 1000)
	v.SetDefault("PERPLEXITY_TEMPERATURE", 0.2)
	v.SetDefault("PERPLEXITY_TOP_P", 0.9)
	v.SetDefault("PERPLEXITY_TIMEOUT_SECONDS", 120)
	v.SetDefault("PERPLEXITY_MAX_RETRIES", 2)
	v.SetDefault("EXPORT_ENABLED", false)
	v.SetDefault("EXPORT_CREDENTIALS_FILE", "credentials.json")
	v.SetDefault("EXPORT_TOKEN_FILE", "token.json")
	v.SetDefault("EXPORT_TOKEN_KEY", "")
	v.SetDefault("EXPORT_FOLDER_NAME", "Query Scheduler Results")
	v.SetDefault("FOLLOWUP_DELAY_MINUTES", 5)
	v.SetDefault("SCHEDULER_DISPATCH", DispatchInline)
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("RATE_LIMIT_REQUESTS", 100)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	for _, p := range paths {
		v.AddConfigPath(p)
	}

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
			Host:           v.GetString("SERVER_HOST"),
			Port:           v.GetInt("SERVER_PORT"),
			Env:            v.GetString("SERVER_ENV"),
			LogLevel:       v.GetString("LOG_LEVEL"),
			AllowedOrigins: splitList(v.GetString("ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			Driver:   v.GetString("DATABASE_DRIVER"),
			Path:     v.GetString("DATABASE_PATH"),
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
			Debug:    v.GetBool("DATABASE_DEBUG"),

			AutoMigrate: v.GetBool("DATABASE_AUTO_MIGRATE"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("REDIS_ENABLED"),
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Perplexity: PerplexityConfig{
			APIKey:         v.GetString("PERPLEXITY_API_KEY"),
			BaseURL:        v.GetString("PERPLEXITY_BASE_URL"),
			Model:          v.GetString("PERPLEXITY_MODEL"),
			MaxTokens:      v.GetInt("PERPLEXITY_MAX_TOKENS"),
			Temperature:    v.GetFloat64("PERPLEXITY_TEMPERATURE"),
			TopP:           v.GetFloat64("PERPLEXITY_TOP_P"),
			TimeoutSeconds: v.GetInt("PERPLEXITY_TIMEOUT_SECONDS"),
			MaxRetries:     v.GetInt("PERPLEXITY_MAX_RETRIES"),
		},
		Export: ExportConfig{
			Enabled:         v.GetBool("EXPORT_ENABLED"),
			CredentialsFile: v.GetString("EXPORT_CREDENTIALS_FILE"),
			TokenFile:       v.GetString("EXPORT_TOKEN_FILE"),
			TokenKey:        v.GetString("EXPORT_TOKEN_KEY"),
			FolderName:      v.GetString("EXPORT_FOLDER_NAME"),
		},
		Scheduler: SchedulerConfig{
			FollowupDelayMinutes: v.GetInt("FOLLOWUP_DELAY_MINUTES"),
			Dispatch:             v.GetString("SCHEDULER_DISPATCH"),
			WorkerConcurrency:    v.GetInt("WORKER_CONCURRENCY"),
		},
		RateLimit: RateLimitConfig{
			Requests:      v.GetInt("RATE_LIMIT_REQUESTS"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.Database.Driver)
	}
	switch c.Scheduler.Dispatch {
	case DispatchInline, DispatchQueue:
	default:
		return fmt.Errorf("unsupported SCHEDULER_DISPATCH %q", c.Scheduler.Dispatch)
	}
	if c.Scheduler.UsesQueue() && !c.Redis.Enabled {
		return fmt.Errorf("SCHEDULER_DISPATCH=queue requires REDIS_ENABLED=true")
	}
	if c.Scheduler.FollowupDelayMinutes <= 0 || c.Scheduler.FollowupDelayMinutes >= 60 {
		return fmt.Errorf("FOLLOWUP_DELAY_MINUTES must be between 1 and 59")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

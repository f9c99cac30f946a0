package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage drivers
const (
	StorageMemory    = "memory"
	StoragePostgres  = "postgres"
	StorageSQLServer = "sqlserver"
)

// LLM providers
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	SQLServer SQLServerConfig
	LLM       LLMConfig
	Report    ReportConfig
	KurrentDB KurrentDBConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port        int
	Env         string
	CORSOrigins []string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable behind a proxy that overwrites those headers.
	TrustProxy bool
}

// LogConfig controls the zerolog root logger.
type LogConfig struct {
	// Level is a zerolog level name: debug, info, warn, error
	Level string
	// Format is "console" for human readable output or "json"
	Format string
}

type StorageConfig struct {
	// Driver is one of memory, postgres, sqlserver
	Driver string
}

type DatabaseConfig struct {
	URL      string
	MaxConns int32
	MinConns int32
}

type SQLServerConfig struct {
	DSN string
}

// LLMConfig selects and configures the text-generation endpoint.
type LLMConfig struct {
	// Provider: "ollama" talks to /api/generate, "openai" to an OpenAI-compatible /v1 API
	Provider string
	// BaseURL of the model runner, e.g. http://localhost:11434
	BaseURL string
	// APIKey is only sent by the openai provider
	APIKey string
	// Timeout bounds a single generation call
	Timeout time.Duration
}

type ReportConfig struct {
	// StrictSchema makes the parser fall back when a parsed JSON object
	// does not satisfy the report contract, not only when it fails to parse.
	StrictSchema bool
}

// KurrentDBConfig holds configuration for KurrentDB (EventStoreDB).
type KurrentDBConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Insecure bool
	Username string
	Password string
}

type AuthConfig struct {
	JWTSecret string
}

type RateLimitConfig struct {
	RPS   float64
	Burst int
}

// Load reads configuration from the environment and an optional .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "")
	v.SetDefault("STORAGE_DRIVER", StorageMemory)
	v.SetDefault("DB_MAX_CONNS", 25)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("LLM_PROVIDER", ProviderOllama)
	v.SetDefault("OLLAMA_URL", "http://localhost:11434")
	v.SetDefault("LLM_TIMEOUT", 120*time.Second)
	v.SetDefault("REPORT_STRICT_SCHEMA", false)
	v.SetDefault("KURRENTDB_ENABLED", false)
	v.SetDefault("KURRENTDB_HOST", "localhost")
	v.SetDefault("KURRENTDB_PORT", 2113)
	v.SetDefault("KURRENTDB_INSECURE", true)
	v.SetDefault("JWT_SECRET", "dev-secret-change-in-prod")
	v.SetDefault("RATE_LIMIT_RPS", 10)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	// Missing .env is fine
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        v.GetInt("SERVER_PORT"),
			Env:         v.GetString("ENV"),
			CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
			TrustProxy:  v.GetBool("TRUST_PROXY"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
		Storage: StorageConfig{
			Driver: strings.ToLower(v.GetString("STORAGE_DRIVER")),
		},
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			MaxConns: v.GetInt32("DB_MAX_CONNS"),
			MinConns: v.GetInt32("DB_MIN_CONNS"),
		},
		SQLServer: SQLServerConfig{
			DSN: v.GetString("SQLSERVER_DSN"),
		},
		LLM: LLMConfig{
			Provider: strings.ToLower(v.GetString("LLM_PROVIDER")),
			BaseURL:  strings.TrimRight(v.GetString("OLLAMA_URL"), "/"),
			APIKey:   v.GetString("OPENAI_API_KEY"),
			Timeout:  v.GetDuration("LLM_TIMEOUT"),
		},
		Report: ReportConfig{
			StrictSchema: v.GetBool("REPORT_STRICT_SCHEMA"),
		},
		KurrentDB: KurrentDBConfig{
			Enabled:  v.GetBool("KURRENTDB_ENABLED"),
			Host:     v.GetString("KURRENTDB_HOST"),
			Port:     v.GetInt("KURRENTDB_PORT"),
			Insecure: v.GetBool("KURRENTDB_INSECURE"),
			Username: v.GetString("KURRENTDB_USERNAME"),
			Password: v.GetString("KURRENTDB_PASSWORD"),
		},
		Auth: AuthConfig{
			JWTSecret: v.GetString("JWT_SECRET"),
		},
		RateLimit: RateLimitConfig{
			RPS:   v.GetFloat64("RATE_LIMIT_RPS"),
			Burst: v.GetInt("RATE_LIMIT_BURST"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the selected drivers have what they need.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageMemory:
	case StoragePostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER is %q", StoragePostgres)
		}
	case StorageSQLServer:
		if c.SQLServer.DSN == "" {
			return fmt.Errorf("SQLSERVER_DSN is required when STORAGE_DRIVER is %q", StorageSQLServer)
		}
	default:
		return fmt.Errorf("STORAGE_DRIVER must be %q, %q or %q, got %q",
			StorageMemory, StoragePostgres, StorageSQLServer, c.Storage.Driver)
	}

	if c.LLM.Provider != ProviderOllama && c.LLM.Provider != ProviderOpenAI {
		return fmt.Errorf("LLM_PROVIDER must be %q or %q, got %q", ProviderOllama, ProviderOpenAI, c.LLM.Provider)
	}
	if c.LLM.Timeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT must be positive, got %s", c.LLM.Timeout)
	}

	if c.IsProduction() && c.Auth.JWTSecret == "dev-secret-change-in-prod" {
		return fmt.Errorf("JWT_SECRET must be changed in production")
	}

	return nil
}

func (c *Config) IsDev() bool {
	return c.Server.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	Server        ServerConfig
	MongoDB       MongoDBConfig
	Redis         RedisConfig
	MinIO         MinIOConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Tasks         TasksConfig
	ImportSources []ImportSource `validate:"dive"`
}

type ServerConfig struct {
	Port            string `validate:"required"`
	Host            string
	Environment     string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string `validate:"required_with=URI"`
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Addr returns host:port or "" when Redis is not configured.
func (r RedisConfig) Addr() string {
	if r.Host == "" {
		return ""
	}
	return r.Host + ":" + r.Port
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string `validate:"required_with=Endpoint"`
}

type AuthConfig struct {
	JWTSecret        string
	AdminRole        string `validate:"required"`
	KeycloakURL      string
	KeycloakRealm    string
	KeycloakClientID string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64 `validate:"gte=0"`
	Burst         int     `validate:"gte=0"`
	WindowSeconds int     `validate:"gte=0"`
}

// TasksConfig controls the task worker.
type TasksConfig struct {
	MaxAttempts  int           `validate:"gte=1"`
	// LockTTL is renewed every half period while a task runs.
	LockTTL      time.Duration `validate:"gt=0"`
	PollInterval time.Duration `validate:"gt=0"`
	Concurrency  int           `validate:"gte=1"`
	ChunkSize    int           `validate:"gte=1"`
	// LockBackend selects the lock store: redis, mongo or memory.
	LockBackend string `validate:"oneof=redis mongo memory"`
	// WorkerEnabled starts the background poller inside the API process.
	WorkerEnabled bool
}

// ImportSource is a remote instance documents can be imported from.
type ImportSource struct {
	Name          string `json:"name" validate:"required"`
	HostName      string `json:"hostName" validate:"required,hostname_port|hostname"`
	APIKey        string `json:"apiKey" validate:"required"`
	AllowInsecure bool   `json:"allowInsecure"`
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("SERVER_PORT"),
			Host:            v.GetString("SERVER_HOST"),
			Environment:     v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: v.GetDuration("SERVER_SHUTDOWN_TIMEOUT"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		Auth: AuthConfig{
			JWTSecret:        os.Getenv("JWT_SECRET"),
			AdminRole:        v.GetString("AUTH_ADMIN_ROLE"),
			KeycloakURL:      v.GetString("KEYCLOAK_URL"),
			KeycloakRealm:    v.GetString("KEYCLOAK_REALM"),
			KeycloakClientID: v.GetString("KEYCLOAK_CLIENT_ID"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Tasks: TasksConfig{
			MaxAttempts:   v.GetInt("TASKS_MAX_ATTEMPTS"),
			LockTTL:       v.GetDuration("TASKS_LOCK_TTL"),
			PollInterval:  v.GetDuration("TASKS_POLL_INTERVAL"),
			Concurrency:   v.GetInt("TASKS_CONCURRENCY"),
			ChunkSize:     v.GetInt("TASKS_CHUNK_SIZE"),
			LockBackend:   strings.ToLower(v.GetString("TASKS_LOCK_BACKEND")),
			WorkerEnabled: v.GetBool("TASKS_WORKER_ENABLED"),
		},
	}

	if raw := strings.TrimSpace(os.Getenv("IMPORT_SOURCES")); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.ImportSources); err != nil {
			return nil, fmt.Errorf("parse IMPORT_SOURCES: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "5001")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second)
	v.SetDefault("MONGODB_DATABASE", "coursebay")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("MINIO_BUCKET", "coursebay-cdn")
	v.SetDefault("AUTH_ADMIN_ROLE", "admin")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)
	v.SetDefault("TASKS_MAX_ATTEMPTS", 3)
	v.SetDefault("TASKS_LOCK_TTL", 2*time.Minute)
	v.SetDefault("TASKS_POLL_INTERVAL", 10*time.Second)
	v.SetDefault("TASKS_CONCURRENCY", 2)
	v.SetDefault("TASKS_CHUNK_SIZE", 50)
	v.SetDefault("TASKS_LOCK_BACKEND", "redis")
	v.SetDefault("TASKS_WORKER_ENABLED", true)
}

var validate = validator.New()

// Validate checks field constraints and cross-section requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	switch c.Tasks.LockBackend {
	case "redis":
		if c.Redis.Addr() == "" {
			return fmt.Errorf("invalid config: TASKS_LOCK_BACKEND=redis requires REDIS_HOST")
		}
	case "mongo":
		if c.MongoDB.URI == "" {
			return fmt.Errorf("invalid config: TASKS_LOCK_BACKEND=mongo requires MONGODB_URI")
		}
	}
	seen := map[string]bool{}
	for _, s := range c.ImportSources {
		if seen[s.Name] {
			return fmt.Errorf("invalid config: duplicate import source %q", s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

// ImportSource returns the configured source with the given name.
func (c *Config) ImportSource(name string) (ImportSource, bool) {
	for _, s := range c.ImportSources {
		if s.Name == name {
			return s, true
		}
	}
	return ImportSource{}, false
}

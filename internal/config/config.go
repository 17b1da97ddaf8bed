package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config holds all application configuration, loaded from environment
// variables.
type Config struct {
	// Mode selects the runtime mode: "api", "worker", or "migrate".
	Mode string `env:"DEPLOYIFY_MODE" envDefault:"api"`

	// Server
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"8080"`

	// Database — assembled from the enumerated parts rather than one URL.
	DBHost     string `env:"DB_HOST" envDefault:"localhost"`
	DBPort     int    `env:"DB_PORT" envDefault:"5432"`
	DBUsername string `env:"DB_USERNAME" envDefault:"deployify"`
	DBPassword string `env:"DB_PASSWORD" envDefault:"deployify"`
	DBDatabase string `env:"DB_DATABASE" envDefault:"deployify"`

	// Redis — backs the job queue and the log bus fan-out relay.
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Container daemon endpoint for the Container Builder (C5). Empty means
	// the Docker client's default platform socket.
	ContainerHost string `env:"CONTAINER_HOST"`

	// Vault master key (hex or base64). If empty, the vault generates an
	// ephemeral key at startup and logs a warning (spec §4.1 degraded mode).
	EncryptionKey string `env:"ENCRYPTION_KEY"`

	// Worker pool size. 0 means runtime.NumCPU().
	WorkerCount int `env:"WORKER_COUNT" envDefault:"0"`

	// Per-job wall-clock timeout, in milliseconds.
	JobTimeoutMS int `env:"JOB_TIMEOUT_MS" envDefault:"900000"`

	// Max delivery attempts per job.
	MaxAttempts int `env:"MAX_ATTEMPTS" envDefault:"3"`

	// Intake throttle, requests per caller per minute. 0 disables the limiter.
	RateLimitPerMinute int `env:"RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	// Workspace base directory for clones (C5).
	WorkspaceBaseDir string `env:"WORKSPACE_BASE_DIR" envDefault:"/tmp/deployify-workspaces"`

	// Log retention sweep age (supplemental feature, spec §3).
	LogRetention string `env:"LOG_RETENTION" envDefault:"168h"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// Migrations
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseURL assembles a libpq-style connection string from the enumerated
// DB_* variables.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.DBUsername, c.DBPassword, c.DBHost, c.DBPort, c.DBDatabase)
}

// RedisURL assembles a redis:// connection string from the enumerated
// REDIS_* variables.
func (c *Config) RedisURL() string {
	if c.RedisPassword == "" {
		return fmt.Sprintf("redis://%s:%d/0", c.RedisHost, c.RedisPort)
	}
	return fmt.Sprintf("redis://:%s@%s:%d/0", c.RedisPassword, c.RedisHost, c.RedisPort)
}

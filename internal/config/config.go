package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the service configuration read from the environment.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"lms"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	DBDriver         string `env:"DB_DRIVER" envDefault:"postgres"` // postgres, mysql or sqlite
	PostgresHost     string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort     int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser     string `env:"POSTGRES_USER" envDefault:"postgres"`
	PostgresPassword string `env:"POSTGRES_PASSWORD" envDefault:"postgres"`
	PostgresDB       string `env:"POSTGRES_DB" envDefault:"lms"`
	MySQLDSN         string `env:"MYSQL_DSN"`
	SQLitePath       string `env:"SQLITE_PATH" envDefault:"lms.db"`

	RedisEnabled  bool   `env:"REDIS_ENABLED" envDefault:"true"`
	RedisHost     string `env:"REDIS_HOST" envDefault:"localhost"`
	RedisPort     int    `env:"REDIS_PORT" envDefault:"6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	NATSURL   string `env:"NATS_URL"` // empty disables event forwarding
	JWTSecret string `env:"JWT_SECRET,required"`

	LogFile  string `env:"LOG_FILE" envDefault:"app.log"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	AuditLogging       bool          `env:"AUDIT_LOGGING" envDefault:"true"`
	CacheTTL           time.Duration `env:"CACHE_TTL" envDefault:"30m"`
	PropagationWorkers int           `env:"PROPAGATION_WORKERS" envDefault:"8"`
	SweepWorkers       int           `env:"SWEEP_WORKERS" envDefault:"10"`
	EscalationTargets  []string      `env:"ESCALATION_TARGETS" envSeparator:"," envDefault:"none,manager,department_head,compliance_officer"`

	CertificateWorkers     int             `env:"CERTIFICATE_WORKERS" envDefault:"2"`
	CertificateQueueSize   int             `env:"CERTIFICATE_QUEUE_SIZE" envDefault:"100"`
	CertificateRetries     int             `env:"CERTIFICATE_RETRIES" envDefault:"3"`
	CertificateRetryDelays []time.Duration `env:"CERTIFICATE_RETRY_DELAYS" envSeparator:"," envDefault:"60s,120s,180s"`
	CertificateDir         string          `env:"CERTIFICATE_DIR" envDefault:"certificates"`
}

// LoadEnv loads the first existing .env files into the process environment.
func LoadEnv(files ...string) (int, error) {
	var existing []string
	for _, f := range files {
		if _, err := os.Stat(f); err == nil {
			existing = append(existing, f)
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

// LoadConfig reads .env and .env.local when present, then parses the environment.
func LoadConfig() (*Config, error) {
	if _, err := LoadEnv(".env", ".env.local"); err != nil {
		return nil, fmt.Errorf("failed to load env files: %w", err)
	}
	return Parse()
}

// Parse reads the configuration from the environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values env tags cannot express.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite":
	case "mysql":
		if c.MySQLDSN == "" {
			return fmt.Errorf("MYSQL_DSN is required when DB_DRIVER is mysql")
		}
	default:
		return fmt.Errorf("DB_DRIVER must be postgres, mysql or sqlite, got %q", c.DBDriver)
	}
	if c.AppPort <= 0 || c.AppPort > 65535 {
		return fmt.Errorf("APP_PORT out of range: %d", c.AppPort)
	}
	if c.PropagationWorkers <= 0 || c.SweepWorkers <= 0 || c.CertificateWorkers <= 0 {
		return fmt.Errorf("worker counts must be positive")
	}
	if c.CertificateRetries <= 0 {
		return fmt.Errorf("CERTIFICATE_RETRIES must be positive, got %d", c.CertificateRetries)
	}
	if len(c.EscalationTargets) != 4 {
		return fmt.Errorf("ESCALATION_TARGETS needs 4 labels, got %d", len(c.EscalationTargets))
	}
	return nil
}

// RedisAddr returns host:port of the Redis server.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// PostgresDSN returns the lib/pq style connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB)
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

type Server struct {
	Addr            string        `env:"HTTP_ADDR"        env-default:":8080"`
	GinMode         string        `env:"GIN_MODE"         env-default:"release"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"15s"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" env-default:"10s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" env-default:"10s"`
}

type GRPC struct {
	Addr string `env:"GRPC_ADDR" env-default:":50051"`
}

type DB struct {
	Driver          string        `env:"DB_DRIVER"             env-default:"sqlite"`
	DSN             string        `env:"DATABASE_URL"          env-default:"file:linkpulse.db?_time_format=sqlite&_pragma=busy_timeout(5000)"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS"     env-default:"25"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS"     env-default:"5"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME"  env-default:"30m"`
}

type Redis struct {
	Addr     string        `env:"REDIS_ADDR"      env-default:""`
	Password string        `env:"REDIS_PASSWORD"  env-default:""`
	DB       int           `env:"REDIS_DB"        env-default:"0"`
	TTL      time.Duration `env:"REDIS_TTL"       env-default:"1h"`
	LocalTTL time.Duration `env:"REDIS_LOCAL_TTL" env-default:"30s"`
}

type Geo struct {
	BaseURL      string        `env:"GEO_BASE_URL"      env-default:"https://ipinfo.io"`
	Token        string        `env:"GEO_TOKEN"         env-default:""`
	Timeout      time.Duration `env:"GEO_TIMEOUT"       env-default:"2s"`
	MaxFailures  int           `env:"GEO_MAX_FAILURES"  env-default:"5"`
	ResetTimeout time.Duration `env:"GEO_RESET_TIMEOUT" env-default:"30s"`
}

type Redirect struct {
	BaseURL       string        `env:"BASE_URL"                env-default:"http://localhost:8080"`
	Deadline      time.Duration `env:"REDIRECT_DEADLINE"       env-default:"5s"`
	FuzzyFallback bool          `env:"RESOLVER_FUZZY_FALLBACK" env-default:"true"`
	RoutePrefixes []string      `env:"RESOLVER_ROUTE_PREFIXES" env-default:"/r/,/go/" env-separator:","`
}

type Analytics struct {
	Workers     int           `env:"ANALYTICS_WORKERS"      env-default:"8"`
	QueueSize   int           `env:"ANALYTICS_QUEUE_SIZE"   env-default:"1024"`
	TaskTimeout time.Duration `env:"ANALYTICS_TASK_TIMEOUT" env-default:"10s"`
}

type Quota struct {
	Links            int64 `env:"QUOTA_LINKS"              env-default:"25"`
	// QRCodes is reported in usage reads only; QR creation is never blocked.
	QRCodes          int64 `env:"QUOTA_QR_CODES"           env-default:"10" env-description:"informational QR code allowance, not enforced"`
	CustomBackHalves int64 `env:"QUOTA_CUSTOM_BACK_HALVES" env-default:"5"`
}

type RateLimit struct {
	Requests int           `env:"RATE_LIMIT_REQUESTS" env-default:"100"`
	Per      time.Duration `env:"RATE_LIMIT_PER"      env-default:"1m"`
}

type Kafka struct {
	Brokers []string `env:"KAFKA_BROKERS" env-default:"" env-separator:","`
	Topic   string   `env:"KAFKA_TOPIC"   env-default:"link-visits"`
}

type Tracing struct {
	Endpoint    string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	SampleRatio float64 `env:"OTEL_SAMPLE_RATIO"           env-default:"1"`
}

type Config struct {
	Env       string `env:"APP_ENV"   env-default:"production"`
	LogLevel  string `env:"LOG_LEVEL" env-default:"info"`
	Server    Server
	GRPC      GRPC
	DB        DB
	Redis     Redis
	Geo       Geo
	Redirect  Redirect
	Analytics Analytics
	Quota     Quota
	RateLimit RateLimit
	Kafka     Kafka
	Tracing   Tracing
}

// Load reads an optional .env file at path, then the process environment.
// Variables already set in the environment win over the file.
func Load(path string) (*Config, error) {
	if path != "" {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("DB_DRIVER must be postgres or sqlite, got %q", c.DB.Driver)
	}
	if !strings.HasPrefix(c.Redirect.BaseURL, "http://") && !strings.HasPrefix(c.Redirect.BaseURL, "https://") {
		return fmt.Errorf("BASE_URL must be an absolute http(s) URL, got %q", c.Redirect.BaseURL)
	}
	for _, prefix := range c.Redirect.RoutePrefixes {
		if !strings.HasPrefix(prefix, "/") || !strings.HasSuffix(prefix, "/") {
			return fmt.Errorf("route prefix %q must start and end with /", prefix)
		}
	}
	return nil
}

// KafkaBrokers drops empty entries left by an unset KAFKA_BROKERS.
func (c *Config) KafkaBrokers() []string {
	var brokers []string
	for _, b := range c.Kafka.Brokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// Usage prints the supported environment variables.
func Usage() (string, error) {
	var cfg Config
	return cleanenv.GetDescription(&cfg, nil)
}

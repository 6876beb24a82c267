package configuration

import (
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/onboarding/pkg/logging"
)

const Production = "production"

var singleton = sync.OnceValue(func() *Configuration {
	c := &Configuration{}
	if err := c.load([]string{".env", ".env.local"}); err != nil {
		c.Unload()
		panic(err)
	}
	return c
})

// LoadEnv loads the env files that exist, looking in the working directory first
// and then in the nearest directory holding a go.mod.
func LoadEnv(envFiles []string) (int, error) {
	existing := make([]string, 0, len(envFiles))
	for _, file := range envFiles {
		if fileExists(file) {
			existing = append(existing, file)
		}
	}
	if len(existing) == 0 {
		if root, ok := findModuleRoot(); ok {
			for _, file := range envFiles {
				p := filepath.Join(root, file)
				if fileExists(p) {
					existing = append(existing, p)
				}
			}
		}
	}
	if len(existing) == 0 {
		return 0, nil
	}
	return len(existing), godotenv.Load(existing...)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func findModuleRoot() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for {
		if fileExists(filepath.Join(dir, "go.mod")) {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

type DatabaseOptions struct {
	Opts     string `env:"-"`
	Name     string `env:"DB_NAME" envDefault:"onboarding"`
	Host     string `env:"DB_HOST" envDefault:"localhost"`
	Port     string `env:"DB_PORT" envDefault:"5432"`
	User     string `env:"DB_USER" envDefault:"postgres"`
	Password string `env:"DB_PASSWORD" envDefault:"postgres"`
}

func (d *DatabaseOptions) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s dbname=%s password=%s sslmode=disable",
		d.Host, d.Port, d.User, d.Name, d.Password,
	)
}

type QueueOptions struct {
	Broker        string        `env:"QUEUE_BROKER" envDefault:"redis"` // redis, postgres or memory
	Stream        string        `env:"QUEUE_STREAM" envDefault:"onboarding:work_items"`
	Table         string        `env:"QUEUE_TABLE" envDefault:"public.onboarding_work_items"`
	Group         string        `env:"QUEUE_CONSUMER_GROUP" envDefault:"onboarding"`
	Consumer      string        `env:"QUEUE_CONSUMER_ID"`
	MaxAttempts   int           `env:"QUEUE_MAX_ATTEMPTS" envDefault:"3"`
	IdleBackoff   time.Duration `env:"QUEUE_IDLE_BACKOFF" envDefault:"1s"`
	ClaimTimeout  time.Duration `env:"QUEUE_CLAIM_TIMEOUT" envDefault:"5m"`
	ReapInterval  time.Duration `env:"QUEUE_REAP_INTERVAL" envDefault:"1m"`
	RetryTerminal bool          `env:"QUEUE_RETRY_TERMINAL" envDefault:"false"`
	MaxBackoff    time.Duration `env:"QUEUE_MAX_BACKOFF" envDefault:"60s"`
}

func (q *QueueOptions) Validate() error {
	switch q.Broker {
	case "redis", "postgres", "memory":
	default:
		return fmt.Errorf("invalid QUEUE_BROKER=%q (expected redis|postgres|memory)", q.Broker)
	}
	if q.MaxAttempts <= 0 {
		return fmt.Errorf("QUEUE_MAX_ATTEMPTS must be positive, got %d", q.MaxAttempts)
	}
	if strings.TrimSpace(q.Group) == "" {
		return errors.New("QUEUE_CONSUMER_GROUP is required")
	}
	if q.ClaimTimeout <= 0 {
		return fmt.Errorf("QUEUE_CLAIM_TIMEOUT must be positive, got %s", q.ClaimTimeout)
	}
	return nil
}

type DirectoryOptions struct {
	BaseURL    string        `env:"DIRECTORY_BASE_URL" envDefault:"http://localhost:8080"`
	Token      string        `env:"DIRECTORY_TOKEN"`
	Timeout    time.Duration `env:"DIRECTORY_TIMEOUT" envDefault:"30s"`
	RPS        float64       `env:"DIRECTORY_RPS" envDefault:"10"`
	MaxRetries uint64        `env:"DIRECTORY_MAX_RETRIES" envDefault:"3"`
}

type SourceOptions struct {
	BaseURL    string        `env:"SOURCE_BASE_URL" envDefault:"http://localhost:8081"`
	APIKey     string        `env:"SOURCE_API_KEY"`
	Timeout    time.Duration `env:"SOURCE_TIMEOUT" envDefault:"30s"`
	MaxRetries uint64        `env:"SOURCE_MAX_RETRIES" envDefault:"3"`
}

func validateBaseURL(name, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid %s: %q", name, raw)
	}
	return nil
}

type CacheOptions struct {
	LRUSize     int           `env:"CACHE_LRU_SIZE" envDefault:"50"`
	NegativeTTL time.Duration `env:"CACHE_NEGATIVE_TTL" envDefault:"60s"`
	ScopeTTL    time.Duration `env:"CACHE_SCOPE_TTL" envDefault:"5m"`
}

type OpenTelemetryOptions struct {
	Enabled     bool   `env:"OTEL_ENABLED" envDefault:"false"`
	TempoURL    string `env:"OTEL_TEMPO_URL" envDefault:"localhost:4318"`
	ServiceName string `env:"OTEL_SERVICE_NAME" envDefault:"onboarding"`
}

type PrometheusOptions struct {
	Enabled bool   `env:"PROMETHEUS_METRICS_ENABLED" envDefault:"false"`
	Path    string `env:"PROMETHEUS_METRICS_PATH" envDefault:"/debug/prometheus"`
	Address string `env:"PROMETHEUS_METRICS_ADDR" envDefault:":9090"`
}

type Configuration struct {
	Database      DatabaseOptions
	Queue         QueueOptions
	Directory     DirectoryOptions
	Source        SourceOptions
	Cache         CacheOptions
	OpenTelemetry OpenTelemetryOptions
	Prometheus    PrometheusOptions

	RedisURL         string `env:"REDIS_URL" envDefault:"localhost:6379"`
	GoAppEnvironment string `env:"GO_APP_ENV" envDefault:"development"`
	LogLevel         string `env:"LOG_LEVEL" envDefault:"error"`
	LogPath          string `env:"LOG_PATH" envDefault:""`

	logFile *os.File
	logger  *logrus.Logger
}

func (c *Configuration) Logger() *logrus.Logger {
	return c.logger
}

func (c *Configuration) LogrusLogLevel() logrus.Level {
	switch c.LogLevel {
	case "silent":
		return logrus.PanicLevel
	case "error":
		return logrus.ErrorLevel
	case "warn":
		return logrus.WarnLevel
	case "info":
		return logrus.InfoLevel
	case "debug":
		return logrus.DebugLevel
	default:
		return logrus.ErrorLevel
	}
}

func Use() *Configuration {
	return singleton()
}

func (c *Configuration) load(envFiles []string) error {
	n, err := LoadEnv(envFiles)
	if err != nil {
		return err
	}
	if n == 0 {
		wd, _ := os.Getwd()
		log.Println("No .env files found. Tried:")
		for _, file := range envFiles {
			log.Println(filepath.Join(wd, file))
		}
	}
	if err := env.Parse(c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}

	f, logger, err := logging.FileLogger(c.LogrusLogLevel(), c.LogPath)
	if err != nil {
		return err
	}
	c.logFile = f
	c.logger = logger

	c.Database.Opts = c.Database.ConnectionString()
	if c.Queue.Consumer == "" {
		host, _ := os.Hostname()
		c.Queue.Consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	return nil
}

// Validate checks cross-field constraints that env tags cannot express.
func (c *Configuration) Validate() error {
	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue configuration error: %w", err)
	}
	if err := validateBaseURL("DIRECTORY_BASE_URL", c.Directory.BaseURL); err != nil {
		return err
	}
	if err := validateBaseURL("SOURCE_BASE_URL", c.Source.BaseURL); err != nil {
		return err
	}
	if c.Directory.RPS < 0 {
		return fmt.Errorf("DIRECTORY_RPS must be non-negative, got %v", c.Directory.RPS)
	}
	if c.Cache.LRUSize < 0 {
		return fmt.Errorf("CACHE_LRU_SIZE must be non-negative, got %d", c.Cache.LRUSize)
	}
	return nil
}

// Unload handles a graceful shutdown.
func (c *Configuration) Unload() {
	if c.logFile != nil {
		if err := c.logFile.Close(); err != nil {
			log.Printf("Failed to close log file: %v", err)
		}
	}
}

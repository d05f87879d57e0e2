// Package config provides runtime configuration values for the service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// PostgresConfig represents the configuration needed to connect to a
// PostgreSQL database.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

func (pc PostgresConfig) GetConnectionString() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		pc.Host, pc.Port, pc.User, pc.Password, pc.DBName)
}

// Config holds configuration knobs for the HTTP server, storage backends,
// the order-event dispatcher, and rate limiting.
type Config struct {
	HTTPAddr        string
	ShutdownTimeout time.Duration

	StorageBackend string // "file" or "postgres"
	DataDir        string
	SeedFile       string
	Postgres       PostgresConfig

	AMQPURL string

	RateLimitRPS   int
	RateLimitBurst int

	InitialWorkerCount      int
	WorkerMin               int
	WorkerMax               int
	ScaleInterval           time.Duration
	ScaleUpBacklogPerWorker int
	ScaleDownIdleTicks      int
	QueueHighWatermark      int
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func atoienv(key string, def int) int {
	v := getenv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func durenvms(key string, defMs int) time.Duration {
	ms := atoienv(key, defMs)
	return time.Duration(ms) * time.Millisecond
}

func durenvs(key string, defSec int) time.Duration {
	sec := atoienv(key, defSec)
	return time.Duration(sec) * time.Second
}

// Load collects configuration from environment with defaults.
func Load() Config {
	minWorkers := atoienv("WORKER_MIN", 2)
	maxWorkers := atoienv("WORKER_MAX", 8)
	initialWorkers := atoienv("WORKER_COUNT", minWorkers)
	return Config{
		HTTPAddr:        getenv("HTTP_ADDR", ":8080"),
		ShutdownTimeout: durenvs("SHUTDOWN_TIMEOUT", 15),
		StorageBackend:  getenv("STORAGE_BACKEND", "file"),
		DataDir:         getenv("DATA_DIR", "data"),
		SeedFile:        getenv("SEED_FILE", ""),
		Postgres: PostgresConfig{
			Host:     getenv("POSTGRES_HOST", "localhost"),
			Port:     getenv("POSTGRES_PORT", "5432"),
			User:     getenv("POSTGRES_USER", "postgres"),
			Password: getenv("POSTGRES_PASSWORD", "postgres"),
			DBName:   getenv("POSTGRES_NAME", "postgres"),
		},
		AMQPURL:                 getenv("AMQP_URL", ""),
		RateLimitRPS:            atoienv("RATE_LIMIT_RPS", 0),
		RateLimitBurst:          atoienv("RATE_LIMIT_BURST", 0),
		InitialWorkerCount:      initialWorkers,
		WorkerMin:               minWorkers,
		WorkerMax:               maxWorkers,
		ScaleInterval:           durenvms("SCALE_INTERVAL_MS", 500),
		ScaleUpBacklogPerWorker: atoienv("SCALE_UP_BACKLOG_PER_WORKER", 100),
		ScaleDownIdleTicks:      atoienv("SCALE_DOWN_IDLE_TICKS", 6),
		QueueHighWatermark:      atoienv("QUEUE_HIGH_WATERMARK", 5000),
	}
}

// fileConfig is the YAML overlay shape. Only structural settings live in
// the file; tuning knobs stay environment-only.
type fileConfig struct {
	HTTPAddr string `yaml:"http_addr"`
	Storage  struct {
		Backend  string `yaml:"backend"`
		DataDir  string `yaml:"data_dir"`
		SeedFile string `yaml:"seed_file"`
	} `yaml:"storage"`
	Postgres PostgresConfig `yaml:"postgres"`
	AMQPURL  string         `yaml:"amqp_url"`
}

// ApplyFile overlays non-empty values from a YAML config file.
func (c *Config) ApplyFile(filename string) error {
	file, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	fc := &fileConfig{}
	if err := decoder.Decode(fc); err != nil {
		return err
	}
	if fc.HTTPAddr != "" {
		c.HTTPAddr = fc.HTTPAddr
	}
	if fc.Storage.Backend != "" {
		c.StorageBackend = fc.Storage.Backend
	}
	if fc.Storage.DataDir != "" {
		c.DataDir = fc.Storage.DataDir
	}
	if fc.Storage.SeedFile != "" {
		c.SeedFile = fc.Storage.SeedFile
	}
	if fc.Postgres.Host != "" {
		c.Postgres.Host = fc.Postgres.Host
	}
	if fc.Postgres.Port != "" {
		c.Postgres.Port = fc.Postgres.Port
	}
	if fc.Postgres.User != "" {
		c.Postgres.User = fc.Postgres.User
	}
	if fc.Postgres.Password != "" {
		c.Postgres.Password = fc.Postgres.Password
	}
	if fc.Postgres.DBName != "" {
		c.Postgres.DBName = fc.Postgres.DBName
	}
	if fc.AMQPURL != "" {
		c.AMQPURL = fc.AMQPURL
	}
	return nil
}

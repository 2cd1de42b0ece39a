// Package config assembles a Config from CLI flags and an optional
// YAML file, CLI flags taking precedence, grounded on the shape of
// cmd/periodic/main.go's flag set.
package config

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"
)

// Config holds everything the gearmand entry point needs to construct
// a broker, its queue adapter, and the listeners around it.
type Config struct {
	Listen        string `yaml:"listen"`
	AdminListen   string `yaml:"admin_listen"`
	MetricsListen string `yaml:"metrics_listen"`

	QueueType string `yaml:"queue_type"` // memory, leveldb, redis, badger
	DBPath    string `yaml:"db_path"`
	RedisAddr string `yaml:"redis_addr"`

	JobRetries int `yaml:"job_retries"`
	LogLevel   string `yaml:"log_level"`
}

// Default returns the zero-configuration daemon: in-memory queue, no
// admin or metrics listeners, terminal WORK_FAIL (no retries).
func Default() Config {
	return Config{
		Listen:     "0.0.0.0:4730",
		QueueType:  "memory",
		DBPath:     "gearman.db",
		RedisAddr:  "127.0.0.1:6379",
		JobRetries: 0,
		LogLevel:   "info",
	}
}

// LoadFile merges YAML file values over the defaults; a missing file
// is not an error, since the file is optional.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// ApplyFlags overlays any explicitly-set CLI flags onto cfg, so flags
// beat both the YAML file and the built-in defaults.
func ApplyFlags(c *cli.Context, cfg *Config) {
	if c.IsSet("listen") {
		cfg.Listen = c.String("listen")
	}
	if c.IsSet("admin-listen") {
		cfg.AdminListen = c.String("admin-listen")
	}
	if c.IsSet("metrics-listen") {
		cfg.MetricsListen = c.String("metrics-listen")
	}
	if c.IsSet("queue-type") {
		cfg.QueueType = c.String("queue-type")
	}
	if c.IsSet("dbpath") {
		cfg.DBPath = c.String("dbpath")
	}
	if c.IsSet("redis") {
		cfg.RedisAddr = c.String("redis")
	}
	if c.IsSet("job-retries") {
		cfg.JobRetries = c.Int("job-retries")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
}

// Flags is the flag set cmd/gearmand registers on its cli.App.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "config", Usage: "path to an optional YAML config file"},
		&cli.StringFlag{Name: "listen", Value: "0.0.0.0:4730", Usage: "address the binary/TEXT protocol listens on"},
		&cli.StringFlag{Name: "admin-listen", Usage: "address the JSON admin dashboard listens on (disabled if empty)"},
		&cli.StringFlag{Name: "metrics-listen", Usage: "address the Prometheus /metrics endpoint listens on (disabled if empty)"},
		&cli.StringFlag{Name: "queue-type", Value: "memory", Usage: "persistent queue backend [memory, leveldb, redis, badger]"},
		&cli.StringFlag{Name: "dbpath", Value: "gearman.db", Usage: "database path, for queue-type leveldb/badger"},
		&cli.StringFlag{Name: "redis", Value: "127.0.0.1:6379", Usage: "redis server address, for queue-type redis"},
		&cli.IntFlag{Name: "job-retries", Value: 0, Usage: "WORK_FAIL occurrences tolerated before a job is terminal"},
		&cli.StringFlag{Name: "log-level", Value: "info", Usage: "debug, info, warn, error"},
	}
}

// Package config holds application configuration loaded from an optional
// YAML file, with struct-tag defaults applied first.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Config holds application configuration.
type Config struct {
	LogLevel       string        `yaml:"log_level" default:"info"`
	ScanTimeout    time.Duration `yaml:"scan_timeout" default:"10s"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"30s"`
	ReconnectDelay time.Duration `yaml:"reconnect_delay" default:"3s"`
	HistorySize    int           `yaml:"history_size" default:"10"`

	// MemberID tags readings handed across the persistence boundary.
	MemberID int64 `yaml:"member_id"`

	// AMQPURL enables reading publication when non-empty.
	AMQPURL   string `yaml:"amqp_url"`
	AMQPQueue string `yaml:"amqp_queue" default:"bp-readings"`
}

// Default returns the configuration with struct-tag defaults applied.
func Default() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// Load reads path into a default-initialized Config. An empty path returns
// defaults; a missing file is an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %q: %w", path, err)
	}
	return cfg, nil
}

// UnmarshalYAML decodes the file form, parsing duration strings ("30s",
// "5m") and leaving unset keys at their defaults.
func (c *Config) UnmarshalYAML(value *yaml.Node) error {
	type rawConfig struct {
		LogLevel       *string `yaml:"log_level"`
		ScanTimeout    *string `yaml:"scan_timeout"`
		ConnectTimeout *string `yaml:"connect_timeout"`
		ReconnectDelay *string `yaml:"reconnect_delay"`
		HistorySize    *int    `yaml:"history_size"`
		MemberID       *int64  `yaml:"member_id"`
		AMQPURL        *string `yaml:"amqp_url"`
		AMQPQueue      *string `yaml:"amqp_queue"`
	}

	var raw rawConfig
	if err := value.Decode(&raw); err != nil {
		return err
	}

	setDuration := func(dst *time.Duration, src *string, key string) error {
		if src == nil {
			return nil
		}
		d, err := time.ParseDuration(*src)
		if err != nil {
			return fmt.Errorf("invalid duration for %s: %w", key, err)
		}
		*dst = d
		return nil
	}

	if raw.LogLevel != nil {
		c.LogLevel = *raw.LogLevel
	}
	if err := setDuration(&c.ScanTimeout, raw.ScanTimeout, "scan_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.ConnectTimeout, raw.ConnectTimeout, "connect_timeout"); err != nil {
		return err
	}
	if err := setDuration(&c.ReconnectDelay, raw.ReconnectDelay, "reconnect_delay"); err != nil {
		return err
	}
	if raw.HistorySize != nil {
		c.HistorySize = *raw.HistorySize
	}
	if raw.MemberID != nil {
		c.MemberID = *raw.MemberID
	}
	if raw.AMQPURL != nil {
		c.AMQPURL = *raw.AMQPURL
	}
	if raw.AMQPQueue != nil {
		c.AMQPQueue = *raw.AMQPQueue
	}
	return nil
}

// NewLogger creates a logger configured from LogLevel.
func (c *Config) NewLogger() (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	logger := logrus.New()
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})
	return logger, nil
}

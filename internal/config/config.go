// Package config provides configuration for the salesink handler and its
// replay tool.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultTable is the DynamoDB table sales are written to.
const DefaultTable = "Sales"

// Config holds the configuration for salesink.
type Config struct {
	// Store configuration
	Store StoreConfig `json:"store" yaml:"store"`

	// Log configuration
	Log LogConfig `json:"log" yaml:"log"`

	// Replay tool configuration
	Replay ReplayConfig `json:"replay" yaml:"replay"`
}

// StoreConfig holds DynamoDB configuration.
type StoreConfig struct {
	// Table is the target table name
	Table string `json:"table" yaml:"table"`

	// Region is the AWS region (empty = ambient AWS configuration)
	Region string `json:"region" yaml:"region"`

	// Endpoint is a custom DynamoDB endpoint (DynamoDB Local, LocalStack)
	Endpoint string `json:"endpoint" yaml:"endpoint"`

	// FlushSize is the number of puts per BatchWriteItem call (1–25, default 25)
	FlushSize int `json:"flush_size" yaml:"flush_size"`

	// MaxFlushRounds bounds consecutive flushes that leave items unprocessed
	MaxFlushRounds int `json:"max_flush_rounds" yaml:"max_flush_rounds"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`

	// Development switches to a human readable console encoder
	Development bool `json:"development" yaml:"development"`
}

// ReplayConfig holds configuration for salesink-replay.
type ReplayConfig struct {
	// Brokers is the list of Kafka bootstrap brokers
	Brokers []string `json:"brokers" yaml:"brokers"`

	// Topic is the sales topic to read from
	Topic string `json:"topic" yaml:"topic"`

	// GroupID is the consumer group used to commit replayed offsets
	GroupID string `json:"group_id" yaml:"group_id"`

	// MaxMessages caps the number of messages in one replayed batch
	MaxMessages int `json:"max_messages" yaml:"max_messages"`

	// Timeout bounds how long to wait for messages
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			Table:          DefaultTable,
			FlushSize:      25,
			MaxFlushRounds: 8,
		},
		Log: LogConfig{
			Level: "info",
		},
		Replay: ReplayConfig{
			Brokers:     []string{"localhost:9092"},
			Topic:       "sales",
			GroupID:     "salesink-replay",
			MaxMessages: 100,
			Timeout:     10 * time.Second,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Store.Table == "" {
		return fmt.Errorf("store.table is required")
	}

	if c.Store.FlushSize < 1 || c.Store.FlushSize > 25 {
		return fmt.Errorf("store.flush_size must be between 1 and 25, got %d", c.Store.FlushSize)
	}

	if c.Store.MaxFlushRounds < 1 {
		return fmt.Errorf("store.max_flush_rounds must be positive, got %d", c.Store.MaxFlushRounds)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
		// Valid levels
	default:
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn or error)", c.Log.Level)
	}

	return nil
}

// ValidateReplay validates the settings only the replay tool needs when
// reading from Kafka.
func (c *Config) ValidateReplay() error {
	if len(c.Replay.Brokers) == 0 {
		return fmt.Errorf("replay.brokers is required")
	}
	if c.Replay.Topic == "" {
		return fmt.Errorf("replay.topic is required")
	}
	if c.Replay.MaxMessages < 1 {
		return fmt.Errorf("replay.max_messages must be positive, got %d", c.Replay.MaxMessages)
	}
	if c.Replay.Timeout <= 0 {
		return fmt.Errorf("replay.timeout must be positive, got %s", c.Replay.Timeout)
	}
	return nil
}

// Load builds the configuration from defaults, an optional file and the
// environment, then validates it.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		var err error
		cfg, err = LoadFromFile(path)
		if err != nil {
			return nil, err
		}
	}

	LoadFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the SALESINK_ prefix; the AWS region falls back
// to AWS_REGION, which the Lambda runtime always sets.
func LoadFromEnv(cfg *Config) {
	// Store configuration
	if v := os.Getenv("SALESINK_TABLE"); v != "" {
		cfg.Store.Table = v
	}
	if v := os.Getenv("SALESINK_REGION"); v != "" {
		cfg.Store.Region = v
	} else if v := os.Getenv("AWS_REGION"); v != "" && cfg.Store.Region == "" {
		cfg.Store.Region = v
	}
	if v := os.Getenv("SALESINK_DYNAMODB_ENDPOINT"); v != "" {
		cfg.Store.Endpoint = v
	}
	if v := os.Getenv("SALESINK_FLUSH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.FlushSize = n
		}
	}
	if v := os.Getenv("SALESINK_MAX_FLUSH_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Store.MaxFlushRounds = n
		}
	}

	// Log configuration
	if v := os.Getenv("SALESINK_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("SALESINK_LOG_DEVELOPMENT"); v != "" {
		cfg.Log.Development = v == "true" || v == "1"
	}

	// Replay configuration
	if v := os.Getenv("SALESINK_KAFKA_BROKERS"); v != "" {
		cfg.Replay.Brokers = splitList(v)
	}
	if v := os.Getenv("SALESINK_KAFKA_TOPIC"); v != "" {
		cfg.Replay.Topic = v
	}
	if v := os.Getenv("SALESINK_KAFKA_GROUP_ID"); v != "" {
		cfg.Replay.GroupID = v
	}
	if v := os.Getenv("SALESINK_REPLAY_MAX_MESSAGES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Replay.MaxMessages = n
		}
	}
	if v := os.Getenv("SALESINK_REPLAY_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Replay.Timeout = d
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Package daemon manages the clawmarket node lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"

	"github.com/clawchain/clawmarket/internal/app/market"
	"github.com/clawchain/clawmarket/internal/app/reputation"
)

// Config holds all daemon configuration.
type Config struct {
	Node        NodeConfig        `toml:"node"`
	API         APIConfig         `toml:"api"`
	Market      market.Config     `toml:"market"`
	Reputation  reputation.Config `toml:"reputation"`
	Events      EventsConfig      `toml:"events"`
	Telemetry   TelemetryConfig   `toml:"telemetry"`
	Logging     LoggingConfig     `toml:"logging"`
	GenesisFile string            `toml:"genesis_file"`
}

// NodeConfig identifies this node and its privileged account.
type NodeConfig struct {
	// ID names the node; empty derives one from the node key.
	ID string `toml:"id"`
	// RootAccount is the account whose signed calls are treated as root.
	RootAccount string `toml:"root_account"`
	// DevAuth accepts an X-Account header in place of a bearer token.
	DevAuth bool `toml:"dev_auth"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	JWTSecret   string   `toml:"jwt_secret"`
	CORSOrigins []string `toml:"cors_origins"`
}

// EventsConfig controls external event delivery.
type EventsConfig struct {
	KafkaBrokers string `toml:"kafka_brokers"` // comma-separated; empty disables Kafka
	KafkaTopic   string `toml:"kafka_topic"`
	SSEBuffer    int    `toml:"sse_buffer"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Node: NodeConfig{
			RootAccount: "sudo",
		},
		API: APIConfig{
			Host:        "127.0.0.1",
			Port:        9944,
			CORSOrigins: []string{"*"},
		},
		Market:     market.DefaultConfig(),
		Reputation: reputation.DefaultConfig(),
		Events: EventsConfig{
			KafkaTopic: "clawmarket.events",
			SSEBuffer:  64,
		},
		Telemetry: TelemetryConfig{Prometheus: true},
		Logging:   LoggingConfig{Level: "info"},
	}
}

// LoadConfig reads config from $CLAWMARKET_HOME/config.toml, falling back
// to defaults, then applies CLAWMARKET_* environment overrides.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(clawHome(), "config.toml")

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays CLAWMARKET_<SECTION>_<KEY> variables, e.g.
// CLAWMARKET_API_PORT or CLAWMARKET_EVENTS_KAFKA_BROKERS.
func applyEnv(cfg *Config) {
	v := viper.New()
	v.SetEnvPrefix("CLAWMARKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	str := func(key string, dst *string) {
		if s := v.GetString(key); s != "" {
			*dst = s
		}
	}
	str("node.id", &cfg.Node.ID)
	str("node.root_account", &cfg.Node.RootAccount)
	str("api.host", &cfg.API.Host)
	str("api.jwt_secret", &cfg.API.JWTSecret)
	str("events.kafka_brokers", &cfg.Events.KafkaBrokers)
	str("events.kafka_topic", &cfg.Events.KafkaTopic)
	str("logging.level", &cfg.Logging.Level)
	str("logging.file", &cfg.Logging.File)
	str("genesis_file", &cfg.GenesisFile)

	if v.GetString("api.port") != "" {
		cfg.API.Port = v.GetInt("api.port")
	}
	if v.GetString("node.dev_auth") != "" {
		cfg.Node.DevAuth = v.GetBool("node.dev_auth")
	}
	if v.GetString("telemetry.prometheus") != "" {
		cfg.Telemetry.Prometheus = v.GetBool("telemetry.prometheus")
	}
}

// Validate rejects configurations the node cannot run with.
func (c Config) Validate() error {
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("config: api.port %d out of range", c.API.Port)
	}
	if c.Node.RootAccount == "" {
		return fmt.Errorf("config: node.root_account is required")
	}
	if c.API.JWTSecret == "" && !c.Node.DevAuth {
		return fmt.Errorf("config: api.jwt_secret is required unless node.dev_auth is set")
	}
	if c.Market.MinTaskReward == 0 {
		return fmt.Errorf("config: market.min_task_reward must be positive")
	}
	return nil
}

// SaveConfig writes the config to $CLAWMARKET_HOME/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(clawHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// clawHome returns the data directory.
func clawHome() string {
	if env := os.Getenv("CLAWMARKET_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clawmarket")
}

// Home is exported for use by other packages.
func Home() string {
	return clawHome()
}

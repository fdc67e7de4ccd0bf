package config

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"plantbook/internal/mqtt"
)

// ServerConfig holds the HTTP API listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// StoreConfig holds the persistence settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// APIConfig holds the OpenPlantBook endpoint settings. Credentials live in
// the store, not here; they are entered through the setup flow.
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
}

// MQTTConfig extends the broker settings with the discovery prefix.
type MQTTConfig struct {
	Enabled         bool   `yaml:"enabled"`
	DiscoveryPrefix string `yaml:"discovery_prefix"`
	mqtt.Config     `yaml:",inline"`
}

// Config represents the plantbook.yaml structure.
type Config struct {
	// ConfigRoot is the directory relative image paths resolve against,
	// typically the Home Assistant config directory.
	ConfigRoot string       `yaml:"config_root"`
	Server     ServerConfig `yaml:"server"`
	Store      StoreConfig  `yaml:"store"`
	API        APIConfig    `yaml:"api"`
	MQTT       MQTTConfig   `yaml:"mqtt"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() *Config {
	return &Config{
		ConfigRoot: "/config",
		Server:     ServerConfig{Addr: ":8099"},
		Store:      StoreConfig{Path: "plantbook_store.json"},
	}
}

// Load reads the YAML configuration file, fills in defaults and applies
// environment overrides. A missing file is not an error; defaults and the
// environment carry the configuration then.
func Load(path string, logger *zap.Logger) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		logger.Info("No configuration file, using defaults", zap.String("path", path))
	case err != nil:
		return nil, fmt.Errorf("failed to read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		logger.Info("Configuration loaded", zap.String("path", path))
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

// applyEnvOverrides lets the environment win over the file, matching how
// container deployments inject settings.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PLANTBOOK_CONFIG_ROOT"); v != "" {
		cfg.ConfigRoot = v
	}
	if v := os.Getenv("PLANTBOOK_LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("PLANTBOOK_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("PLANTBOOK_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("MQTT_URL"); v != "" {
		cfg.MQTT.Enabled = true
		cfg.MQTT.BrokerURL = v
	}
	if v := os.Getenv("MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}
	if v := os.Getenv("MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.ConfigRoot == "" {
		cfg.ConfigRoot = "/config"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8099"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "plantbook_store.json"
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "plantbook"
	}
}

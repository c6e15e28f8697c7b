package server

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/adityaraj/storegate/internal/communication"
	"github.com/adityaraj/storegate/internal/log_service"
	"github.com/adityaraj/storegate/internal/resource_registry"
)

type CoordinatorConfig struct {
	ListenAddress    string `yaml:"listen_address"`
	Namespace        string `yaml:"namespace"`
	BaseDir          string `yaml:"base_dir"`
	ConcurrencyLimit int    `yaml:"concurrency_limit"`
	LogLevel         string `yaml:"log_level"`

	Heartbeat struct {
		SuspectAfterSeconds int `yaml:"suspect_after_seconds"`
		DownAfterSeconds    int `yaml:"down_after_seconds"`
	} `yaml:"heartbeat"`
}

func DefaultCoordinatorConfig() *CoordinatorConfig {
	cfg := &CoordinatorConfig{
		ListenAddress:    ":7410",
		Namespace:        communication.DefaultNamespace,
		BaseDir:          "./shared-files",
		ConcurrencyLimit: resource_registry.DefaultSlotCapacity,
		LogLevel:         log_service.InfoLevel,
	}
	cfg.Heartbeat.SuspectAfterSeconds = 5
	cfg.Heartbeat.DownAfterSeconds = 15
	return cfg
}

// LoadConfig reads the yaml config at path, writing the default config there
// first when the file does not exist yet.
func LoadConfig(path string) (*CoordinatorConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		defaultConfig := DefaultCoordinatorConfig()

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}

		data, err := yaml.Marshal(defaultConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal default config: %w", err)
		}

		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, fmt.Errorf("failed to write default config: %w", err)
		}

		return defaultConfig, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultCoordinatorConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

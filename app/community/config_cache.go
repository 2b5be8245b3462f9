package community

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

type ConfigCache struct {
	communitiesDir string
	cache          map[string]*Config
	mu             sync.RWMutex
}

func NewConfigCache(communitiesDir string) *ConfigCache {
	return &ConfigCache{
		communitiesDir: communitiesDir,
		cache:          make(map[string]*Config),
	}
}

// Run loads every community configuration file found in the configured
// directory. A file that fails validation is logged and skipped so one
// broken community cannot take down the others.
func (cc *ConfigCache) Run() error {
	if _, err := os.Stat(cc.communitiesDir); os.IsNotExist(err) {
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.communitiesDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		fileName := filepath.Base(file)
		communityName := fileName[:len(fileName)-4] // Remove .yml extension

		config, err := cc.LoadConfig(communityName)
		if err != nil {
			slog.Error("Invalid community configuration, skipping", "community", communityName, "error", err)
			continue
		}

		slog.Debug("Configuration loaded", "community", communityName,
			"source", config.Source, "enabled", config.Settings.Enabled,
			"thresholds", len(config.Decision.Thresholds))
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(communityName string) (*Config, error) {
	configFile := cc.getConfigFilePath(communityName)
	config, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	// Set community name from parameter
	config.Name = communityName

	if err := cc.validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[config.Name] = config

	return config, nil
}

func (cc *ConfigCache) GetConfig(communityName string) (*Config, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	config, ok := cc.cache[communityName]
	if !ok {
		return nil, fmt.Errorf("community config with name '%s' not found", communityName)
	}
	return config, nil
}

func (cc *ConfigCache) GetConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	configsCopy := make(map[string]*Config, len(cc.cache))
	for k, v := range cc.cache {
		configsCopy[k] = v
	}
	return configsCopy
}

func (cc *ConfigCache) GetEnabledConfigs() map[string]*Config {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	enabledConfigs := make(map[string]*Config)
	for k, v := range cc.cache {
		if v.Settings.Enabled {
			enabledConfigs[k] = v
		}
	}
	return enabledConfigs
}

func (cc *ConfigCache) GetConfigCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if config.Settings.RefreshInterval == 0 {
		config.Settings.RefreshInterval = 3600
	}
	if config.Settings.Timeout == 0 {
		config.Settings.Timeout = 30
	}

	return &config, nil
}

func (cc *ConfigCache) validateConfig(config *Config) error {
	if config == nil {
		return fmt.Errorf("config is nil")
	}

	requiredFields := map[string]string{
		"community name":   config.Name,
		"source":           config.Source,
		"account name":     config.Account.Name,
		"account password": config.Account.Password,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if len(config.Decision.Thresholds) == 0 {
		return fmt.Errorf("decision thresholds are required")
	}
	for i, threshold := range config.Decision.Thresholds {
		if threshold < 0 {
			return fmt.Errorf("threshold at position %d must be non-negative", i)
		}
	}

	nonNegativeFields := map[string]int{
		"refresh interval": config.Settings.RefreshInterval,
		"fetch limit":      config.Settings.FetchLimit,
		"timeout":          config.Settings.Timeout,
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(communityName string) string {
	return filepath.Join(cc.communitiesDir, communityName+".yml")
}

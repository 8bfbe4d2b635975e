package di

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadConfig reads a YAML configuration file. Missing keys keep their
// defaults, durations are written as strings such as "5m". The shared cache
// is off unless shared_cache is set.
//
//	shared_cache: true
//	preload_concurrency: 8
//	cache:
//	  capacity: 5000
//	  ttl: 10m
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("di: read config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML data on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("di: parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

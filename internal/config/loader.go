package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// DeviceConfig declares one accelerator device available to the node.
type DeviceConfig struct {
	Name     string `json:"name" yaml:"name" toml:"name"`
	MemoryMB int    `json:"memory_mb" yaml:"memory_mb" toml:"memory_mb"`
}

// Config holds runtime parameters for the node.
// Zero values mean "unspecified" and will be replaced by defaults in main.
type Config struct {
	Addr              string         `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir         string         `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	Devices           []DeviceConfig `json:"devices" yaml:"devices" toml:"devices"`
	MinDeviceMemoryMB int            `json:"min_device_memory_mb" yaml:"min_device_memory_mb" toml:"min_device_memory_mb"`
	DeviceReserveMB   int            `json:"device_reserve_mb" yaml:"device_reserve_mb" toml:"device_reserve_mb"`
	QueueCapacity     int            `json:"queue_capacity" yaml:"queue_capacity" toml:"queue_capacity"`
	IdlePollMS        int            `json:"idle_poll_ms" yaml:"idle_poll_ms" toml:"idle_poll_ms"`
	SubmitWaitMS      int            `json:"submit_wait_ms" yaml:"submit_wait_ms" toml:"submit_wait_ms"`
	MaxBodyBytes      int64          `json:"max_body_bytes" yaml:"max_body_bytes" toml:"max_body_bytes"`
	CORSOrigins       []string       `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	LogLevel          string         `json:"log_level" yaml:"log_level" toml:"log_level"`
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, err
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}

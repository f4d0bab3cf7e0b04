// Package config loads a taskflow.SystemConfig from a YAML document,
// starting from taskflow.DefaultSystemConfig and overriding only the
// fields present in the file — the way
// cklxx-elephant.ai/evaluation/swe_bench's ConfigManager.LoadConfig
// starts from a default struct value and unmarshals YAML on top of it.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/taskflow-go/taskflow"
)

// Load reads path and decodes it into a taskflow.SystemConfig seeded with
// taskflow.DefaultSystemConfig. An empty path returns the defaults
// unchanged.
func Load(path string) (taskflow.SystemConfig, error) {
	cfg := taskflow.DefaultSystemConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

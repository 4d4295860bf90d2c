package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	DefaultSteps = 1000
	DefaultDt    = 0.001
	DefaultFPS   = 30
)

type Config struct {
	System  string  `yaml:"system"`
	Steps   int     `yaml:"steps"`
	Dt      float64 `yaml:"dt"`
	Workers int     `yaml:"workers"`
	DataDir string  `yaml:"data_dir"`
	FPS     int     `yaml:"fps"`
}

func DefaultConfig() *Config {
	return &Config{
		Steps:   DefaultSteps,
		Dt:      DefaultDt,
		DataDir: ".pairlab",
		FPS:     DefaultFPS,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Steps <= 0 {
		return fmt.Errorf("steps must be positive, got %d", c.Steps)
	}
	if c.Dt <= 0 {
		return fmt.Errorf("dt must be positive, got %f", c.Dt)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative, got %d", c.Workers)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %d", c.FPS)
	}
	return nil
}

func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Presets are named run settings for common workflows.
var Presets = map[string]*Config{
	"quick": {
		Steps: 200, Dt: 0.002, DataDir: ".pairlab", FPS: DefaultFPS,
	},
	"standard": {
		Steps: DefaultSteps, Dt: DefaultDt, DataDir: ".pairlab", FPS: DefaultFPS,
	},
	"fine": {
		Steps: 20000, Dt: 0.0002, DataDir: ".pairlab", FPS: DefaultFPS,
	},
}

func GetPreset(name string) *Config {
	return Presets[name]
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	return names
}

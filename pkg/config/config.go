// Package config loads runtime tuning from YAML. Defaults reproduce the fixed
// constants of the value runtime, so an empty file changes nothing.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"nativert/pkg/errors"
)

type HeapConfig struct {
	MinArrayCapacity      int `yaml:"min_array_capacity"`
	StringBuilderCapacity int `yaml:"string_builder_capacity"`
	StringGrowthFloor     int `yaml:"string_growth_floor"`
}

type SchedulerConfig struct {
	// MaxDrainIterations bounds the tasks a single drain may run; 0 means no bound.
	MaxDrainIterations int           `yaml:"max_drain_iterations"`
	TimerResolution    time.Duration `yaml:"timer_resolution"`
}

type BridgeConfig struct {
	MaxConversionDepth int      `yaml:"max_conversion_depth"`
	Extensions         []string `yaml:"extensions"`
	Prefetch           int      `yaml:"prefetch"` // readers for static requires, 0 = off
}

type ModulesConfig struct {
	BaseDir   string        `yaml:"base_dir"`
	CacheSize int           `yaml:"cache_size"` // 0 = unlimited
	CacheTTL  time.Duration `yaml:"cache_ttl"`  // 0 = no expiry
}

type Config struct {
	Heap      HeapConfig      `yaml:"heap"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Modules   ModulesConfig   `yaml:"modules"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Heap: HeapConfig{
			MinArrayCapacity:      16,
			StringBuilderCapacity: 16,
			StringGrowthFloor:     32,
		},
		Scheduler: SchedulerConfig{
			MaxDrainIterations: 0,
			TimerResolution:    time.Millisecond,
		},
		Bridge: BridgeConfig{
			MaxConversionDepth: 8,
			Extensions:         []string{".js", ".mjs", ".cjs"},
			Prefetch:           4,
		},
		Modules: ModulesConfig{
			BaseDir: ".",
		},
	}
}

// Parse overlays YAML onto the defaults. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && err != io.EOF {
		return nil, (&errors.ConfigError{Msg: "invalid YAML"}).CausedBy(err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads and parses a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, (&errors.ConfigError{Path: path, Msg: "cannot read file"}).CausedBy(err)
	}
	cfg, err := Parse(data)
	if err != nil {
		if ce, ok := err.(*errors.ConfigError); ok {
			ce.Path = path
		}
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	checks := []struct {
		name string
		v    int
		min  int
	}{
		{"heap.min_array_capacity", c.Heap.MinArrayCapacity, 1},
		{"heap.string_builder_capacity", c.Heap.StringBuilderCapacity, 1},
		{"heap.string_growth_floor", c.Heap.StringGrowthFloor, 1},
		{"scheduler.max_drain_iterations", c.Scheduler.MaxDrainIterations, 0},
		{"bridge.max_conversion_depth", c.Bridge.MaxConversionDepth, 1},
		{"bridge.prefetch", c.Bridge.Prefetch, 0},
		{"modules.cache_size", c.Modules.CacheSize, 0},
	}
	for _, chk := range checks {
		if chk.v < chk.min {
			return &errors.ConfigError{Msg: fmt.Sprintf("%s must be >= %d, got %d", chk.name, chk.min, chk.v)}
		}
	}
	if len(c.Bridge.Extensions) == 0 {
		return &errors.ConfigError{Msg: "bridge.extensions must not be empty"}
	}
	return nil
}

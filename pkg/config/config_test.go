package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nativert/pkg/errors"
)

func TestConfig_DefaultsMatchRuntimeConstants(t *testing.T) {
	cfg := Default()
	if cfg.Heap.MinArrayCapacity != 16 {
		t.Errorf("Expected min array capacity 16, got %d", cfg.Heap.MinArrayCapacity)
	}
	if cfg.Heap.StringBuilderCapacity != 16 || cfg.Heap.StringGrowthFloor != 32 {
		t.Errorf("Unexpected string defaults: %+v", cfg.Heap)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate: %v", err)
	}
}

func TestConfig_ParseEmptyKeepsDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Heap.MinArrayCapacity != 16 {
		t.Errorf("Expected defaults, got %+v", cfg.Heap)
	}
}

func TestConfig_ParseOverlay(t *testing.T) {
	src := `
heap:
  min_array_capacity: 64
scheduler:
  max_drain_iterations: 1000
  timer_resolution: 5ms
modules:
  cache_ttl: 2s
`
	cfg, err := Parse([]byte(src))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Heap.MinArrayCapacity != 64 {
		t.Errorf("Expected 64, got %d", cfg.Heap.MinArrayCapacity)
	}
	if cfg.Heap.StringGrowthFloor != 32 {
		t.Errorf("Untouched keys should keep defaults, got %d", cfg.Heap.StringGrowthFloor)
	}
	if cfg.Scheduler.MaxDrainIterations != 1000 || cfg.Scheduler.TimerResolution != 5*time.Millisecond {
		t.Errorf("Scheduler overlay mismatch: %+v", cfg.Scheduler)
	}
	if cfg.Modules.CacheTTL != 2*time.Second {
		t.Errorf("Expected 2s TTL, got %v", cfg.Modules.CacheTTL)
	}
}

func TestConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := Parse([]byte("heap:\n  bogus: 1\n"))
	if err == nil {
		t.Fatal("Expected an error for an unknown key")
	}
	if errors.KindOf(err) != "Config" {
		t.Errorf("Expected a Config error, got %v", err)
	}
}

func TestConfig_RejectsInvalidValues(t *testing.T) {
	_, err := Parse([]byte("heap:\n  min_array_capacity: 0\n"))
	if err == nil || !strings.Contains(err.Error(), "min_array_capacity") {
		t.Errorf("Expected a validation error naming the key, got %v", err)
	}
}

func TestConfig_Load(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "runtime.yaml")
	if err := os.WriteFile(path, []byte("bridge:\n  max_conversion_depth: 3\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if cfg.Bridge.MaxConversionDepth != 3 {
		t.Errorf("Expected depth 3, got %d", cfg.Bridge.MaxConversionDepth)
	}

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	if err == nil || !strings.Contains(err.Error(), "missing.yaml") {
		t.Errorf("Expected an error naming the missing file, got %v", err)
	}
}

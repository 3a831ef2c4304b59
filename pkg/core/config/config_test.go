package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.MaxTokens <= 0 {
		t.Errorf("Engine.MaxTokens = %d, want positive default", cfg.Engine.MaxTokens)
	}
	if cfg.Engine.OptimizeThreshold <= 0 || cfg.Engine.OptimizeThreshold > 1 {
		t.Errorf("Engine.OptimizeThreshold = %v", cfg.Engine.OptimizeThreshold)
	}
	if cfg.Memory.ShortTermTTL <= 0 {
		t.Errorf("Memory.ShortTermTTL = %v, want positive default", cfg.Memory.ShortTermTTL)
	}
	if cfg.Session.Timeout != 30*time.Minute {
		t.Errorf("Session.Timeout = %v, want 30m", cfg.Session.Timeout)
	}
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memflow.yaml")
	data := []byte("engine:\n  model: gpt-4o\n  max_tokens: 4096\nsession:\n  timeout: 10m\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.Model != "gpt-4o" {
		t.Errorf("Engine.Model = %q", cfg.Engine.Model)
	}
	if cfg.Engine.MaxTokens != 4096 {
		t.Errorf("Engine.MaxTokens = %d", cfg.Engine.MaxTokens)
	}
	if cfg.Session.Timeout != 10*time.Minute {
		t.Errorf("Session.Timeout = %v", cfg.Session.Timeout)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memflow.yaml")
	if err := os.WriteFile(path, []byte("engine:\n  max_tokens: 4096\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEMFLOW_ENGINE_MAX_TOKENS", "2048")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.MaxTokens != 2048 {
		t.Errorf("Engine.MaxTokens = %d, want env override 2048", cfg.Engine.MaxTokens)
	}
}

func TestMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Engine.MaxTokens <= 0 {
		t.Errorf("Engine.MaxTokens = %d", cfg.Engine.MaxTokens)
	}
}

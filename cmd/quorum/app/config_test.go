package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/agentstation/quorum/pkg/constants"
	"github.com/agentstation/quorum/pkg/errors"
)

// TestLoadConfig verifies defaults are applied when nothing is configured.
func TestLoadConfig(t *testing.T) {
	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.Engine.MaxRounds != constants.DefaultMaxRounds {
		t.Errorf("Engine.MaxRounds = %d, want %d", config.Engine.MaxRounds, constants.DefaultMaxRounds)
	}
	if config.Engine.Concurrency != constants.DefaultConcurrency {
		t.Errorf("Engine.Concurrency = %d, want %d", config.Engine.Concurrency, constants.DefaultConcurrency)
	}
	if config.Overlay.FilterField != "id" {
		t.Errorf("Overlay.FilterField = %q, want id", config.Overlay.FilterField)
	}
	if config.Cache.Format != "json" {
		t.Errorf("Cache.Format = %q, want json", config.Cache.Format)
	}
	if config.Source.Container != "body" {
		t.Errorf("Source.Container = %q, want body", config.Source.Container)
	}
	if config.Policy.MinFull == 0 {
		t.Error("Policy.MinFull not set to default")
	}
	if config.Log.Format == "" {
		t.Error("Log.Format not set to default")
	}
}

// TestConfig_EnvironmentVariables verifies QUORUM_* variables override defaults.
func TestConfig_EnvironmentVariables(t *testing.T) {
	t.Setenv("QUORUM_ENGINE_MAX_ROUNDS", "7")
	t.Setenv("QUORUM_ENGINE_ROUND_SLEEP", "2s")
	t.Setenv("QUORUM_SOURCE_URL", "https://records.test/detail/{id}")
	t.Setenv("QUORUM_VERBOSE", "true")

	config, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.Engine.MaxRounds != 7 {
		t.Errorf("Engine.MaxRounds = %d, want 7", config.Engine.MaxRounds)
	}
	if config.Engine.RoundSleep != 2*time.Second {
		t.Errorf("Engine.RoundSleep = %v, want 2s", config.Engine.RoundSleep)
	}
	if config.Source.URL != "https://records.test/detail/{id}" {
		t.Errorf("Source.URL = %q", config.Source.URL)
	}
	if !config.Verbose {
		t.Error("QUORUM_VERBOSE not loaded")
	}
}

// TestConfig_File verifies an explicit config file is read.
func TestConfig_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quorum.yaml")
	content := `source:
  url: https://records.test/detail/{id}
  container: div.record
  volatile: [visits]
overlay:
  url: https://maps.test/wms
  layers: [parcels, buildings]
  filter_field: code
engine:
  tolerance: 3
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	config, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() failed: %v", err)
	}

	if config.ConfigFile != path {
		t.Errorf("ConfigFile = %q, want %q", config.ConfigFile, path)
	}
	if config.Source.Container != "div.record" {
		t.Errorf("Source.Container = %q, want div.record", config.Source.Container)
	}
	if len(config.Source.Volatile) != 1 || config.Source.Volatile[0] != "visits" {
		t.Errorf("Source.Volatile = %v, want [visits]", config.Source.Volatile)
	}
	if config.Overlay.BaseURL != "https://maps.test/wms" {
		t.Errorf("Overlay.BaseURL = %q", config.Overlay.BaseURL)
	}
	if len(config.Overlay.Layers) != 2 {
		t.Errorf("Overlay.Layers = %v, want 2 layers", config.Overlay.Layers)
	}
	if config.Overlay.FilterField != "code" {
		t.Errorf("Overlay.FilterField = %q, want code", config.Overlay.FilterField)
	}
	if config.Engine.Tolerance != 3 {
		t.Errorf("Engine.Tolerance = %d, want 3", config.Engine.Tolerance)
	}
	// Unset keys keep their defaults.
	if config.Engine.MaxRounds != constants.DefaultMaxRounds {
		t.Errorf("Engine.MaxRounds = %d, want default", config.Engine.MaxRounds)
	}
}

// TestConfig_MissingFile verifies an explicit but missing file is an error.
func TestConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("LoadConfig() succeeded for a missing file")
	}
	var cerr *errors.ConfigError
	if !errors.As(err, &cerr) {
		t.Errorf("error = %T, want *errors.ConfigError", err)
	}
}

// TestConfig_UpdateFromFlags verifies flags win over loaded values.
func TestConfig_UpdateFromFlags(t *testing.T) {
	config := &Config{Format: "yaml"}
	config.Log.Level = "info"

	config.UpdateFromFlags(true, false, true, "json", "trace")

	if !config.Verbose || !config.NoColor {
		t.Error("boolean flags not applied")
	}
	if config.Format != "json" {
		t.Errorf("Format = %q, want json", config.Format)
	}
	if config.Log.Level != "trace" {
		t.Errorf("Log.Level = %q, want trace", config.Log.Level)
	}

	config.UpdateFromFlags(false, false, false, "", "")
	if config.Format != "json" || config.Log.Level != "trace" {
		t.Error("empty flags must not clear values")
	}
}

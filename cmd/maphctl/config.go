package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"
)

// Config holds maphctl's optional on-disk defaults, loaded once per
// invocation via --config. Flags always take precedence over a loaded
// config value (trimmed to a single file, with no global/project
// layering, since maphctl has no per-project working directory).
type Config struct {
	SlotCount uint64 `json:"slot_count,omitempty"`
	LogLevel  string `json:"log_level,omitempty"`
}

// DefaultConfig returns maphctl's built-in defaults.
func DefaultConfig() Config {
	return Config{SlotCount: 1024, LogLevel: "info"}
}

// LoadConfig reads a JSONC (JSON-with-comments) config file at path,
// standardizing it to plain JSON before unmarshaling. A missing path
// (empty string) returns DefaultConfig unmodified.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC in %s: %w", path, err)
	}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

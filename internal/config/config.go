// Package config loads client configuration from JSONC files and
// environment variables.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/tidwall/jsonc"
)

// Config is the client's runtime configuration.
type Config struct {
	// BaseURL is the sidecar backend address.
	BaseURL string `json:"baseUrl,omitempty"`
	// LogLevel is a zerolog level name (trace/debug/info/warn/error).
	LogLevel string `json:"logLevel,omitempty"`
	// PrettyLogs switches from JSON to console log output.
	PrettyLogs bool `json:"prettyLogs,omitempty"`
	// DisableTypewriter turns off the adaptive reveal effect.
	DisableTypewriter bool `json:"disableTypewriter,omitempty"`
	// InactivityMinutes overrides the archive threshold.
	InactivityMinutes int `json:"inactivityMinutes,omitempty"`
	// StatePath overrides where the previous-session snapshot lives.
	StatePath string `json:"statePath,omitempty"`
}

// InactivityThreshold returns the archive threshold as a duration, zero
// meaning "use the engine default".
func (c *Config) InactivityThreshold() time.Duration {
	return time.Duration(c.InactivityMinutes) * time.Minute
}

// Load assembles configuration in priority order:
// 1. Global config (~/.config/familiar/familiar.json or .jsonc)
// 2. FAMILIAR_CONFIG file override
// 3. FAMILIAR_* environment variables
func Load() (*Config, error) {
	config := &Config{}

	globalDir := GetPaths().Config
	loadConfigFile(filepath.Join(globalDir, "familiar.json"), config)
	loadConfigFile(filepath.Join(globalDir, "familiar.jsonc"), config)

	if path := os.Getenv("FAMILIAR_CONFIG"); path != "" {
		loadConfigFile(path, config)
	}

	applyEnvOverrides(config)

	if config.StatePath == "" {
		config.StatePath = GetPaths().State
	}
	return config, nil
}

// loadConfigFile merges one config file into config. A missing or
// malformed file is skipped.
func loadConfigFile(path string, config *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data)

	var fileConfig Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return err
	}

	mergeConfig(config, &fileConfig)
	return nil
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate replaces {env:VAR} placeholders with environment values.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(name)))
	})
}

func mergeConfig(target, source *Config) {
	if source.BaseURL != "" {
		target.BaseURL = source.BaseURL
	}
	if source.LogLevel != "" {
		target.LogLevel = source.LogLevel
	}
	if source.PrettyLogs {
		target.PrettyLogs = true
	}
	if source.DisableTypewriter {
		target.DisableTypewriter = true
	}
	if source.InactivityMinutes > 0 {
		target.InactivityMinutes = source.InactivityMinutes
	}
	if source.StatePath != "" {
		target.StatePath = source.StatePath
	}
}

// applyEnvOverrides applies FAMILIAR_* variables, the highest-priority
// source.
func applyEnvOverrides(config *Config) {
	if v := os.Getenv("FAMILIAR_BASE_URL"); v != "" {
		config.BaseURL = v
	}
	if v := os.Getenv("FAMILIAR_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("FAMILIAR_PRETTY_LOGS"); v != "" {
		config.PrettyLogs = v == "1" || v == "true"
	}
	if v := os.Getenv("FAMILIAR_NO_TYPEWRITER"); v != "" {
		config.DisableTypewriter = v == "1" || v == "true"
	}
	if v := os.Getenv("FAMILIAR_INACTIVITY_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			config.InactivityMinutes = n
		}
	}
	if v := os.Getenv("FAMILIAR_STATE_PATH"); v != "" {
		config.StatePath = v
	}
}

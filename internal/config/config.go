// Package config loads the recorder's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds all recorder configuration.
type Config struct {
	// Master switch: when false the session hands out no-op tracers.
	Enabled bool `yaml:"enabled"`

	// Stamp wall-clock times on records. Turning this off removes the
	// per-step clock reads but makes the completeness check inapplicable.
	Timing bool `yaml:"timing"`

	// Artifact output
	OutputDir  string `yaml:"output_dir"`
	WriteFiles bool   `yaml:"write_files"`

	// How a sibling that aborted early participates in the ignored-set
	// merge: count-aborted or exclude-aborted.
	AbortedSiblings string `yaml:"aborted_siblings"`

	// Which artifacts the writer produces.
	Formats FormatsConfig `yaml:"formats"`
}

// FormatsConfig selects the artifacts written per session.
type FormatsConfig struct {
	Text      bool `yaml:"text"`      // indented text dump
	Structure bool `yaml:"structure"` // type-tag-only dump
	Dot       bool `yaml:"dot"`       // GraphViz digraph
	Tree      bool `yaml:"tree"`      // browser-viewable JS tree data
	Chrome    bool `yaml:"chrome"`    // Chrome trace event log
	Generic   bool `yaml:"generic"`   // generic-node graph JSON
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Enabled:         true,
		Timing:          true,
		OutputDir:       "traces",
		WriteFiles:      false,
		AbortedSiblings: "exclude-aborted",
		Formats: FormatsConfig{
			Text:      true,
			Structure: true,
			Dot:       true,
			Tree:      true,
			Chrome:    true,
			Generic:   true,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment variables win over file values.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets the environment adjust a loaded configuration so a
// single run can be redirected without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SYMTRACE_ENABLED"); v != "" {
		c.Enabled = parseBool(v, c.Enabled)
	}
	if v := os.Getenv("SYMTRACE_TIMING"); v != "" {
		c.Timing = parseBool(v, c.Timing)
	}
	if v := os.Getenv("SYMTRACE_TRACE_DIR"); v != "" {
		c.OutputDir = v
	}
	if v := os.Getenv("SYMTRACE_WRITE_FILES"); v != "" {
		c.WriteFiles = parseBool(v, c.WriteFiles)
	}
}

func parseBool(s string, fallback bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return fallback
	}
	return b
}

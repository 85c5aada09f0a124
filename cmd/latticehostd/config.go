package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// knownFeatureFlags is the additive set WasmbusHostConfig allows; any
// other name in a config file's features list is rejected.
var knownFeatureFlags = map[string]bool{
	"builtin_http_server": true,
	"builtin_messaging":   true,
	"messaging_v3":        true,
}

// FileConfig is the optional YAML host config file, following a plain
// read-file-then-yaml.Unmarshal idiom for CLI resource loading.
type FileConfig struct {
	HostKey       string            `yaml:"host_key"`
	Lattice       string            `yaml:"lattice"`
	Prefix        string            `yaml:"prefix"`
	NATSURL       string            `yaml:"nats_url"`
	Labels        map[string]string `yaml:"labels"`
	AllowFileLoad bool              `yaml:"allow_file_load"`
	Features      []string          `yaml:"features"`
}

// loadFileConfig reads and validates a YAML host config file. A missing
// path is not an error: callers fall back to flags/defaults.
func loadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg FileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	for _, f := range cfg.Features {
		if !knownFeatureFlags[f] {
			return nil, fmt.Errorf("unknown feature flag %q", f)
		}
	}
	return &cfg, nil
}

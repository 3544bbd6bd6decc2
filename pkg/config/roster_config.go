// Package config provides configuration loading for the service binaries.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RosterConfig maps role names to the identities that hold them. Deployments
// without an identity service maintain this file by hand.
type RosterConfig struct {
	Roles map[string][]string `yaml:"roles"`
}

// LoadRosterConfig loads a role directory from a YAML file.
func LoadRosterConfig(filepath string) (*RosterConfig, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read roster file %s: %w", filepath, err)
	}

	var config RosterConfig

	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse roster file %s: %w", filepath, err)
	}

	return &config, ValidateRosterConfig(&config)
}

// LoadRosterConfigOrDefault loads the roster file, falling back to an empty
// directory when the file does not exist. Stages with required roles will
// error their instances at activation until roles are populated.
func LoadRosterConfigOrDefault(filepath string) *RosterConfig {
	config, err := LoadRosterConfig(filepath)
	if err != nil {
		return &RosterConfig{Roles: map[string][]string{}}
	}

	return config
}

// ValidateRosterConfig rejects rosters with unnamed roles or duplicate
// identities within a role.
func ValidateRosterConfig(config *RosterConfig) error {
	for role, identities := range config.Roles {
		if role == "" {
			return fmt.Errorf("roster contains an unnamed role")
		}

		seen := make(map[string]bool, len(identities))

		for _, identity := range identities {
			if identity == "" {
				return fmt.Errorf("role %q contains an empty identity", role)
			}

			if seen[identity] {
				return fmt.Errorf("role %q lists identity %q twice", role, identity)
			}

			seen[identity] = true
		}
	}

	return nil
}

package config

import (
	"fmt"
	"os"
	"strings"
)

// RegistryConfig holds the connection settings for the external CPMS study
// registry API.
type RegistryConfig struct {
	BaseURL  string
	Username string
	Password string
}

// LoadRegistryConfig reads the registry settings from the environment. All
// three values are required; a sync run must fail before any fetch when one
// is missing.
func LoadRegistryConfig() (*RegistryConfig, error) {
	cfg := &RegistryConfig{
		BaseURL:  strings.TrimSpace(os.Getenv("CPMS_API_URL")),
		Username: strings.TrimSpace(os.Getenv("CPMS_API_USERNAME")),
		Password: strings.TrimSpace(os.Getenv("CPMS_API_PASSWORD")),
	}

	var missing []string
	if cfg.BaseURL == "" {
		missing = append(missing, "CPMS_API_URL")
	}
	if cfg.Username == "" {
		missing = append(missing, "CPMS_API_USERNAME")
	}
	if cfg.Password == "" {
		missing = append(missing, "CPMS_API_PASSWORD")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("registry config incomplete: missing %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

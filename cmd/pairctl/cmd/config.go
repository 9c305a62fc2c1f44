package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config is the pairctl configuration file, YAML at
// ~/.config/pairctl/config.yaml by default. All fields are optional;
// flags override config values.
type Config struct {
	// DB is the pairing database path.
	DB string `yaml:"db,omitempty"`

	// KeyFile is the identity key file path.
	KeyFile string `yaml:"key_file,omitempty"`

	// InviteTTLMinutes overrides the default one-hour invite lifetime.
	InviteTTLMinutes int `yaml:"invite_ttl_minutes,omitempty"`

	// TrustedOperators lists operator IDs the local policy treats as
	// trusted for elevated permissions and unattended access.
	TrustedOperators []string `yaml:"trusted_operators,omitempty"`
}

// LoadConfig reads the config file at path, or the default location when
// path is empty. A missing file yields an empty config.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = defaultConfigPath()
	}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return &cfg, nil
}

func defaultConfigPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func defaultKeyPath() string {
	return filepath.Join(configDir(), "identity.pem")
}

func configDir() string {
	if dir := os.Getenv("XDG_CONFIG_HOME"); dir != "" {
		return filepath.Join(dir, "pairctl")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "pairctl"
	}
	return filepath.Join(home, ".config", "pairctl")
}

package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// LocalConfig is the subset of config.yaml read directly from the file
// rather than through the viper singleton: settings the daemon re-reads at
// runtime (on a config-file change) and settings needed before viper is
// initialized.
type LocalConfig struct {
	DB        string `yaml:"db"`
	Actor     string `yaml:"actor"`
	RolesFile string `yaml:"roles-file"`

	Daemon struct {
		ActivationInterval   string `yaml:"activation-interval"`
		ObsolescenceInterval string `yaml:"obsolescence-interval"`
		EscalationInterval   string `yaml:"escalation-interval"`
		ReviewInterval       string `yaml:"review-interval"`
	} `yaml:"daemon"`
}

// LoadLocalConfig reads and parses config.yaml directly from the given
// config directory, bypassing the viper singleton. Returns an empty
// LocalConfig (not nil) when the file is missing or malformed.
func LoadLocalConfig(configDir string) *LocalConfig {
	data, err := os.ReadFile(filepath.Join(configDir, "config.yaml"))
	if err != nil {
		return &LocalConfig{}
	}
	var cfg LocalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return &LocalConfig{}
	}
	return &cfg
}

// Package config wires the viper-backed configuration for the vellum CLI
// and daemon.
//
// Configuration lives in .vellum/config.yaml, discovered by walking up from
// the working directory, with VELLUM_* environment variables taking
// precedence over file values. LocalConfig in local_config.go reads the
// file directly for the few settings needed before viper is initialized.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigDirName is the per-project configuration directory.
const ConfigDirName = ".vellum"

// Defaults applied when neither file nor environment provides a value.
var defaults = map[string]interface{}{
	"db":                           "",
	"actor":                        "",
	"json":                         false,
	"roles-file":                   "",
	"review-task-ttl":              "72h",
	"approval-task-ttl":            "120h",
	"review-interval":              "8760h",
	"scheduler.workers":            4,
	"scheduler.batch-limit":        0,
	"daemon.activation-interval":   "1h",
	"daemon.obsolescence-interval": "3h",
	"daemon.escalation-interval":   "3h",
	"daemon.review-interval":       "24h",
}

// Initialize sets up the viper singleton: defaults, config file discovery
// and environment overrides. Safe to call when no config file exists.
func Initialize() error {
	for key, val := range defaults {
		viper.SetDefault(key, val)
	}

	viper.SetEnvPrefix("VELLUM")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	dir, err := FindConfigDir()
	if err != nil {
		return nil // no project config; defaults and env still apply
	}
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(dir)
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// FindConfigDir walks up from the working directory looking for a .vellum
// directory.
func FindConfigDir() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ConfigDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}
		if dir == filepath.Dir(dir) {
			return "", fmt.Errorf("no %s directory found", ConfigDirName)
		}
	}
}

// GetString reads a string setting.
func GetString(key string) string { return viper.GetString(key) }

// GetBool reads a boolean setting.
func GetBool(key string) bool { return viper.GetBool(key) }

// GetInt reads an integer setting.
func GetInt(key string) int { return viper.GetInt(key) }

// GetDuration reads a duration setting, tolerating plain strings like
// "72h". A malformed value falls back to the compiled-in default.
func GetDuration(key string) time.Duration {
	if d := viper.GetDuration(key); d > 0 {
		return d
	}
	if raw, ok := defaults[key].(string); ok {
		if d, err := time.ParseDuration(raw); err == nil {
			return d
		}
	}
	return 0
}

// Package config layers bamsync configuration: built-in defaults, the global
// config file under the user config directory, BAMSYNC_* environment
// variables, and the project-local .bamsync/policy.yaml reconcile policy that
// overrides the globals for one project.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/ipamtools/bamsync/internal/diff"
	"github.com/ipamtools/bamsync/internal/throttle"
)

// v is the process-wide viper instance. Nil until Initialize succeeds; every
// getter tolerates nil so early-startup paths never panic.
var v *viper.Viper

// Defaults for global settings.
const (
	DefaultTimeout       = 60 * time.Second
	DefaultRetentionDays = 30
)

// ProjectDirName holds per-project state and the policy file.
const ProjectDirName = ".bamsync"

// Initialize loads defaults, the global config file when present, and
// BAMSYNC_* environment bindings. Later calls rebuild the instance.
func Initialize() error {
	return initialize("")
}

// InitializeFromFile is Initialize with an explicit config file, for the
// --config flag. The file must exist.
func InitializeFromFile(path string) error {
	if path == "" {
		return Initialize()
	}
	return initialize(path)
}

func initialize(explicitPath string) error {
	newV := viper.New()

	newV.SetDefault("server", "")
	newV.SetDefault("username", "")
	newV.SetDefault("token", "")
	newV.SetDefault("timeout", DefaultTimeout)
	newV.SetDefault("db", "")
	newV.SetDefault("state-dir", "")
	newV.SetDefault("json", false)
	newV.SetDefault("color", true)
	newV.SetDefault("retention-days", DefaultRetentionDays)

	newV.SetDefault("policy.update-mode", string(diff.ModeUpsert))
	newV.SetDefault("policy.safe-mode", false)
	newV.SetDefault("policy.orphan-detection", false)

	newV.SetDefault("concurrency.initial", throttle.DefaultInitial)
	newV.SetDefault("concurrency.min", throttle.DefaultMin)
	newV.SetDefault("concurrency.max", throttle.DefaultMax)
	newV.SetDefault("concurrency.healthy-latency", throttle.DefaultHealthyLatency)
	newV.SetDefault("concurrency.raise-streak", throttle.DefaultRaiseStreak)

	newV.SetEnvPrefix("BAMSYNC")
	newV.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	newV.AutomaticEnv()

	if explicitPath != "" {
		newV.SetConfigFile(explicitPath)
		if err := newV.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", explicitPath, err)
		}
	} else {
		newV.SetConfigName("config")
		newV.SetConfigType("yaml")
		newV.AddConfigPath(GlobalDir())
		if err := newV.ReadInConfig(); err != nil {
			// A missing global config is normal; anything else is real.
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return fmt.Errorf("failed to read global config: %w", err)
			}
		}
	}

	v = newV
	return nil
}

// GlobalDir is where the global config file lives. BAMSYNC_CONFIG_DIR
// overrides the user config directory.
func GlobalDir() string {
	if dir := os.Getenv("BAMSYNC_CONFIG_DIR"); dir != "" {
		return dir
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return ProjectDirName
	}
	return filepath.Join(base, "bamsync")
}

// GlobalFile is the path of the global config file, which may not exist yet.
func GlobalFile() string {
	if v != nil {
		if used := v.ConfigFileUsed(); used != "" {
			return used
		}
	}
	return filepath.Join(GlobalDir(), "config.yaml")
}

// FindProjectDir walks up from start looking for a .bamsync directory.
func FindProjectDir(start string) (string, bool) {
	for dir := start; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, ProjectDirName)
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, true
		}
		if dir == filepath.Dir(dir) {
			return "", false
		}
	}
}

// StateDir resolves where per-project run state lives (session database, lock
// file, reports): the state-dir setting when set, else the nearest .bamsync
// directory, else .bamsync under the working directory.
func StateDir() string {
	if dir := GetString("state-dir"); dir != "" {
		return dir
	}
	cwd, err := os.Getwd()
	if err != nil {
		return ProjectDirName
	}
	if dir, ok := FindProjectDir(cwd); ok {
		return dir
	}
	return filepath.Join(cwd, ProjectDirName)
}

// GetString returns the string value for key, or "" before initialization.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool returns the boolean value for key.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt returns the integer value for key.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration returns the duration value for key.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice returns the string-slice value for key, never nil.
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	s := v.GetStringSlice(key)
	if s == nil {
		return []string{}
	}
	return s
}

// Set overrides a value for the rest of the process. No-op before
// initialization.
func Set(key string, value any) {
	if v == nil {
		return
	}
	v.Set(key, value)
}

// AllSettings returns every effective setting, never nil.
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

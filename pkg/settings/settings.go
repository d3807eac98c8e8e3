// Package settings manages persistent driver settings for nxshell.
//
// Settings live in a YAML file (~/.nxshell/settings.yaml by default). Every
// key can be overridden by an NXSHELL_<KEY> environment variable, e.g.
// NXSHELL_REDIS_ADDR=10.0.0.5:6379.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix for environment overrides.
const EnvPrefix = "NXSHELL"

// Settings holds persistent driver preferences
type Settings struct {
	// LogLevel is the logrus level name (debug, info, warn, error)
	LogLevel string `yaml:"log_level,omitempty" mapstructure:"log_level"`

	// LogFormat is "text" or "json"
	LogFormat string `yaml:"log_format,omitempty" mapstructure:"log_format"`

	// LogDir enables per-reservation command logs under <dir>/<reservation>/
	LogDir string `yaml:"log_dir,omitempty" mapstructure:"log_dir"`

	// AuditLog is the JSON-lines audit file
	AuditLog string `yaml:"audit_log,omitempty" mapstructure:"audit_log"`

	// RedisAddr enables the cross-process resource lock when set
	RedisAddr     string `yaml:"redis_addr,omitempty" mapstructure:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty" mapstructure:"redis_password"`
	RedisDB       int    `yaml:"redis_db,omitempty" mapstructure:"redis_db"`

	// LockTTLSeconds bounds how long a crashed holder can keep a resource locked
	LockTTLSeconds int `yaml:"lock_ttl_seconds,omitempty" mapstructure:"lock_ttl_seconds"`

	// MetricsTextfile is written in Prometheus text format after each command
	MetricsTextfile string `yaml:"metrics_textfile,omitempty" mapstructure:"metrics_textfile"`

	SSHTimeoutSeconds     int    `yaml:"ssh_timeout_seconds,omitempty" mapstructure:"ssh_timeout_seconds"`
	CommandTimeoutSeconds int    `yaml:"command_timeout_seconds,omitempty" mapstructure:"command_timeout_seconds"`
	KnownHostsFile        string `yaml:"known_hosts_file,omitempty" mapstructure:"known_hosts_file"`

	// ReloadTimeoutSeconds is how long firmware load waits for the switch to return
	ReloadTimeoutSeconds int `yaml:"reload_timeout_seconds,omitempty" mapstructure:"reload_timeout_seconds"`

	// DecryptPasswords asks the platform API to decrypt password attributes
	DecryptPasswords bool `yaml:"decrypt_passwords" mapstructure:"decrypt_passwords"`
}

// defaults are applied beneath the file and environment.
var defaults = map[string]interface{}{
	"log_level":               "info",
	"log_format":              "text",
	"log_dir":                 "",
	"audit_log":               "",
	"redis_addr":              "",
	"redis_password":          "",
	"redis_db":                0,
	"lock_ttl_seconds":        3600,
	"metrics_textfile":        "",
	"ssh_timeout_seconds":     30,
	"command_timeout_seconds": 120,
	"known_hosts_file":        "",
	"reload_timeout_seconds":  1200,
	"decrypt_passwords":       true,
}

// DefaultSettingsPath returns the default path for the settings file.
// NXSHELL_SETTINGS overrides it.
func DefaultSettingsPath() string {
	if p := os.Getenv(EnvPrefix + "_SETTINGS"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "nxshell_settings.yaml"
	}
	return filepath.Join(home, ".nxshell", "settings.yaml")
}

// Load reads settings from the default location
func Load() (*Settings, error) {
	return LoadFrom(DefaultSettingsPath())
}

// LoadFrom reads settings from a specific path. A missing file yields the
// defaults plus any environment overrides.
func LoadFrom(path string) (*Settings, error) {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.Is(err, fs.ErrNotExist) && !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading settings %s: %w", path, err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("decoding settings %s: %w", path, err)
	}
	return s, nil
}

// Save writes settings to the default location
func (s *Settings) Save() error {
	return s.SaveTo(DefaultSettingsPath())
}

// SaveTo writes settings to a specific path
func (s *Settings) SaveTo(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Clear resets all settings to defaults
func (s *Settings) Clear() {
	*s = Settings{DecryptPasswords: true}
}

// GetAuditLog returns the audit log path (with fallback)
func (s *Settings) GetAuditLog() string {
	if s.AuditLog != "" {
		return s.AuditLog
	}
	return filepath.Join(filepath.Dir(DefaultSettingsPath()), "audit.log")
}

// LockTTL returns the distributed lock TTL.
func (s *Settings) LockTTL() time.Duration {
	return secondsOr(s.LockTTLSeconds, 3600)
}

// SSHTimeout returns the CLI connect timeout.
func (s *Settings) SSHTimeout() time.Duration {
	return secondsOr(s.SSHTimeoutSeconds, 30)
}

// CommandTimeout returns the per-command prompt wait.
func (s *Settings) CommandTimeout() time.Duration {
	return secondsOr(s.CommandTimeoutSeconds, 120)
}

// ReloadTimeout returns how long to wait for a reloaded switch.
func (s *Settings) ReloadTimeout() time.Duration {
	return secondsOr(s.ReloadTimeoutSeconds, 1200)
}

func secondsOr(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

// Keys lists the settable keys in sorted order.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the string form of a setting.
func (s *Settings) Get(key string) (string, error) {
	switch key {
	case "log_level":
		return s.LogLevel, nil
	case "log_format":
		return s.LogFormat, nil
	case "log_dir":
		return s.LogDir, nil
	case "audit_log":
		return s.AuditLog, nil
	case "redis_addr":
		return s.RedisAddr, nil
	case "redis_password":
		if s.RedisPassword != "" {
			return "********", nil
		}
		return "", nil
	case "redis_db":
		return strconv.Itoa(s.RedisDB), nil
	case "lock_ttl_seconds":
		return strconv.Itoa(s.LockTTLSeconds), nil
	case "metrics_textfile":
		return s.MetricsTextfile, nil
	case "ssh_timeout_seconds":
		return strconv.Itoa(s.SSHTimeoutSeconds), nil
	case "command_timeout_seconds":
		return strconv.Itoa(s.CommandTimeoutSeconds), nil
	case "known_hosts_file":
		return s.KnownHostsFile, nil
	case "reload_timeout_seconds":
		return strconv.Itoa(s.ReloadTimeoutSeconds), nil
	case "decrypt_passwords":
		return strconv.FormatBool(s.DecryptPasswords), nil
	}
	return "", fmt.Errorf("unknown setting: %s (valid: %s)", key, strings.Join(Keys(), ", "))
}

// Set parses value into the named setting.
func (s *Settings) Set(key, value string) error {
	atoi := func() (int, error) {
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, value)
		}
		return n, nil
	}

	var err error
	switch key {
	case "log_level":
		s.LogLevel = value
	case "log_format":
		if value != "text" && value != "json" {
			return fmt.Errorf("log_format: must be text or json, got %q", value)
		}
		s.LogFormat = value
	case "log_dir":
		s.LogDir = value
	case "audit_log":
		s.AuditLog = value
	case "redis_addr":
		s.RedisAddr = value
	case "redis_password":
		s.RedisPassword = value
	case "redis_db":
		s.RedisDB, err = atoi()
	case "lock_ttl_seconds":
		s.LockTTLSeconds, err = atoi()
	case "metrics_textfile":
		s.MetricsTextfile = value
	case "ssh_timeout_seconds":
		s.SSHTimeoutSeconds, err = atoi()
	case "command_timeout_seconds":
		s.CommandTimeoutSeconds, err = atoi()
	case "known_hosts_file":
		s.KnownHostsFile = value
	case "reload_timeout_seconds":
		s.ReloadTimeoutSeconds, err = atoi()
	case "decrypt_passwords":
		s.DecryptPasswords, err = strconv.ParseBool(value)
	default:
		return fmt.Errorf("unknown setting: %s (valid: %s)", key, strings.Join(Keys(), ", "))
	}
	return err
}

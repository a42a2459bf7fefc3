// Package config handles configuration loading, validation, and management
// for handsoffd.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"handsoffd/internal/keycode"
)

// Version is the current configuration schema version.
const Version = 1

// Config holds the complete daemon configuration.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Passphrase holds the unlock credential at rest.
	Passphrase PassphraseConfig `toml:"passphrase" json:"passphrase" yaml:"passphrase"`

	// Timeouts holds the lock timing settings.
	Timeouts TimeoutConfig `toml:"timeouts" json:"timeouts" yaml:"timeouts"`

	// Hotkeys holds the chord letter bindings.
	Hotkeys HotkeyConfig `toml:"hotkeys" json:"hotkeys" yaml:"hotkeys"`

	// IPC configuration for the control socket.
	IPC IPCConfig `toml:"ipc" json:"ipc" yaml:"ipc"`

	// Logging configuration.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	// History configuration for the audit trail.
	History HistoryConfig `toml:"history" json:"history" yaml:"history"`

	// Notifications configuration for desktop alerts.
	Notifications NotificationConfig `toml:"notifications" json:"notifications" yaml:"notifications"`

	// mu protects concurrent access to the config.
	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// PassphraseConfig holds the unlock credential at rest.
type PassphraseConfig struct {
	// Encrypted is the AES-256-GCM sealed passphrase,
	// base64(nonce || ciphertext). Written by the setup flow; the daemon
	// unseals it once at startup and keeps only the digest in memory.
	Encrypted string `toml:"encrypted" json:"encrypted" yaml:"encrypted"`
}

// TimeoutConfig holds the lock timing settings, all in seconds.
type TimeoutConfig struct {
	// AutoLockSec is the inactivity window before the lock engages.
	AutoLockSec int `toml:"auto_lock_sec" json:"auto_lock_sec" yaml:"auto_lock_sec"`

	// BufferResetSec is the typing-idle window before a partial
	// passphrase is discarded.
	BufferResetSec int `toml:"buffer_reset_sec" json:"buffer_reset_sec" yaml:"buffer_reset_sec"`

	// AutoUnlockSec is the safety window after which a lock releases on
	// its own. Zero disables the safety release.
	AutoUnlockSec int `toml:"auto_unlock_sec" json:"auto_unlock_sec" yaml:"auto_unlock_sec"`
}

// HotkeyConfig holds the chord letter bindings. Each value is a single
// letter; the chord modifiers are fixed (Ctrl+Cmd+Shift).
type HotkeyConfig struct {
	// LockKey triggers the lock. Default "l".
	LockKey string `toml:"lock_key" json:"lock_key" yaml:"lock_key"`

	// TalkKey is the push-to-talk hold. Default "t".
	TalkKey string `toml:"talk_key" json:"talk_key" yaml:"talk_key"`
}

// IPCConfig holds control socket configuration.
type IPCConfig struct {
	// Enabled determines whether the control socket is served.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// SocketPath is the unix socket path.
	SocketPath string `toml:"socket_path" json:"socket_path" yaml:"socket_path"`

	// MaxConnections is the maximum number of concurrent clients.
	MaxConnections int `toml:"max_connections" json:"max_connections" yaml:"max_connections"`

	// TimeoutSec is the per-request timeout in seconds.
	TimeoutSec int `toml:"timeout_sec" json:"timeout_sec" yaml:"timeout_sec"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int64  `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" json:"max_age_days" yaml:"max_age_days"`
	Compress   bool   `toml:"compress" json:"compress" yaml:"compress"`
}

// HistoryConfig holds audit trail configuration.
type HistoryConfig struct {
	// Enabled determines whether lock transitions are recorded.
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`

	// Path is the SQLite database file.
	Path string `toml:"path" json:"path" yaml:"path"`

	// RetentionDays is how long transition records are kept.
	RetentionDays int `toml:"retention_days" json:"retention_days" yaml:"retention_days"`
}

// NotificationConfig holds desktop notification configuration.
type NotificationConfig struct {
	Enabled bool `toml:"enabled" json:"enabled" yaml:"enabled"`
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(HandsoffDir(), "config.toml")
}

// DigestPath returns the path of the stored passphrase digest, the
// daemon's fallback credential when the config carries no sealed
// passphrase.
func DigestPath() string {
	return filepath.Join(HandsoffDir(), "passphrase.digest")
}

// HandsoffDir returns the base data directory, honoring the
// HANDSOFF_DATA_DIR override.
func HandsoffDir() string {
	if envDir := os.Getenv("HANDSOFF_DATA_DIR"); envDir != "" {
		return envDir
	}
	return PlatformDataDir()
}

// Load reads configuration from the specified path. If the file doesn't
// exist, returns default configuration. The format follows the file
// extension: TOML (default), JSON, or YAML.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		path = ConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	switch filepath.Ext(path) {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode JSON: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("decode YAML: %w", err)
		}
	default:
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return nil, fmt.Errorf("decode TOML: %w", err)
		}
	}

	cfg.ApplyEnvOverrides()
	return cfg, nil
}

// ApplyEnvOverrides applies environment variable overrides. Variables take
// precedence over file values; command-line flags override both.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("HANDSOFF_AUTO_LOCK"); v != "" {
		if sec, err := parseSeconds(v); err == nil {
			c.Timeouts.AutoLockSec = sec
		}
	}
	if v := os.Getenv("HANDSOFF_AUTO_UNLOCK"); v != "" {
		if sec, err := parseSeconds(v); err == nil {
			c.Timeouts.AutoUnlockSec = sec
		}
	}
	if v := os.Getenv("HANDSOFF_SOCKET"); v != "" {
		c.IPC.SocketPath = v
	}
	if v := os.Getenv("HANDSOFF_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}

func parseSeconds(s string) (int, error) {
	return strconv.Atoi(strings.TrimSpace(s))
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// AutoLockTimeout returns the inactivity timeout as a duration.
func (c *Config) AutoLockTimeout() time.Duration {
	return time.Duration(c.Timeouts.AutoLockSec) * time.Second
}

// BufferResetTimeout returns the buffer expiry timeout as a duration.
func (c *Config) BufferResetTimeout() time.Duration {
	return time.Duration(c.Timeouts.BufferResetSec) * time.Second
}

// AutoUnlockTimeout returns the safety timeout as a duration, 0 when
// disabled.
func (c *Config) AutoUnlockTimeout() time.Duration {
	return time.Duration(c.Timeouts.AutoUnlockSec) * time.Second
}

// Bindings resolves the configured hotkey letters into keycode bindings.
func (c *Config) Bindings() (keycode.Bindings, error) {
	lock := []rune(c.Hotkeys.LockKey)
	talk := []rune(c.Hotkeys.TalkKey)
	if len(lock) != 1 || len(talk) != 1 {
		return keycode.Bindings{}, fmt.Errorf("hotkey bindings must be single letters, got %q and %q",
			c.Hotkeys.LockKey, c.Hotkeys.TalkKey)
	}
	return keycode.NewBindings(lock[0], talk[0])
}

// EnsureDirectories creates the directories the daemon writes into.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		HandsoffDir(),
		filepath.Dir(c.Logging.FilePath),
		filepath.Dir(c.History.Path),
		filepath.Dir(c.IPC.SocketPath),
	}

	for _, dir := range dirs {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// Save writes the configuration as TOML with owner-only permissions. The
// file holds the sealed passphrase, so 0600 is enforced, not advisory.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ConfigPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create config file: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(c); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close config file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace config file: %w", err)
	}
	return nil
}

// CheckFilePermissions reports whether the config file is readable by
// group or other. Callers log the warning; a loose mode is not fatal.
func CheckFilePermissions(path string) (loose bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}
	return info.Mode().Perm()&0077 != 0, nil
}

package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Default timeout values and bounds, in seconds.
const (
	DefaultAutoLockSec    = 120
	MinAutoLockSec        = 20
	MaxAutoLockSec        = 600
	DefaultBufferResetSec = 3
	MinBufferResetSec     = 1
	MaxBufferResetSec     = 60
	MinAutoUnlockSec      = 60
	MaxAutoUnlockSec      = 900
)

// DefaultConfig returns the default daemon configuration.
func DefaultConfig() *Config {
	dir := HandsoffDir()
	return &Config{
		Version: Version,
		Timeouts: TimeoutConfig{
			AutoLockSec:    DefaultAutoLockSec,
			BufferResetSec: DefaultBufferResetSec,
			AutoUnlockSec:  0, // safety release off unless configured
		},
		Hotkeys: HotkeyConfig{
			LockKey: "l",
			TalkKey: "t",
		},
		IPC: IPCConfig{
			Enabled:        true,
			SocketPath:     defaultSocketPath(),
			MaxConnections: 10,
			TimeoutSec:     30,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(dir, "handsoffd.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 14,
			Compress:   true,
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          filepath.Join(dir, "history.db"),
			RetentionDays: 90,
		},
		Notifications: NotificationConfig{
			Enabled: true,
		},
	}
}

// PlatformDataDir returns the platform-specific data directory.
//
// Platform paths:
//   - macOS:   ~/Library/Application Support/handsoffd/
//   - Linux:   $XDG_DATA_HOME/handsoffd/ or ~/.local/share/handsoffd/
//   - Windows: %APPDATA%\handsoffd\
//
// Falls back to ~/.handsoffd if platform detection fails.
func PlatformDataDir() string {
	switch runtime.GOOS {
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fallbackDataDir()
		}
		return filepath.Join(homeDir, "Library", "Application Support", "handsoffd")
	case "linux":
		if dataHome := os.Getenv("XDG_DATA_HOME"); dataHome != "" {
			return filepath.Join(dataHome, "handsoffd")
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return fallbackDataDir()
		}
		return filepath.Join(homeDir, ".local", "share", "handsoffd")
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "handsoffd")
		}
		return fallbackDataDir()
	default:
		return fallbackDataDir()
	}
}

func fallbackDataDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".handsoffd"
	}
	return filepath.Join(homeDir, ".handsoffd")
}

// defaultSocketPath returns the platform-specific control socket path.
func defaultSocketPath() string {
	switch runtime.GOOS {
	case "windows":
		return `\\.\pipe\handsoffd`
	case "linux":
		if runtimeDir := os.Getenv("XDG_RUNTIME_DIR"); runtimeDir != "" {
			return filepath.Join(runtimeDir, "handsoffd.sock")
		}
		return filepath.Join(HandsoffDir(), "handsoffd.sock")
	default:
		return filepath.Join(HandsoffDir(), "handsoffd.sock")
	}
}

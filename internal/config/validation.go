package config

import (
	"fmt"
	"strings"
	"unicode"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidateConfig performs comprehensive validation of the configuration.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateTimeouts(&c.Timeouts)...)
	errs = append(errs, validateHotkeys(&c.Hotkeys)...)
	errs = append(errs, validateIPC(&c.IPC)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateHistory(&c.History)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateTimeouts(t *TimeoutConfig) ValidationErrors {
	var errs ValidationErrors

	if t.AutoLockSec < MinAutoLockSec || t.AutoLockSec > MaxAutoLockSec {
		errs = append(errs, ValidationError{
			Field: "timeouts.auto_lock_sec",
			Message: fmt.Sprintf("%d out of range [%d, %d]",
				t.AutoLockSec, MinAutoLockSec, MaxAutoLockSec),
		})
	}

	if t.BufferResetSec < MinBufferResetSec || t.BufferResetSec > MaxBufferResetSec {
		errs = append(errs, ValidationError{
			Field: "timeouts.buffer_reset_sec",
			Message: fmt.Sprintf("%d out of range [%d, %d]",
				t.BufferResetSec, MinBufferResetSec, MaxBufferResetSec),
		})
	}

	// Zero disables the safety release; anything else must be in range.
	if t.AutoUnlockSec != 0 && (t.AutoUnlockSec < MinAutoUnlockSec || t.AutoUnlockSec > MaxAutoUnlockSec) {
		errs = append(errs, ValidationError{
			Field: "timeouts.auto_unlock_sec",
			Message: fmt.Sprintf("%d out of range [%d, %d] (0 disables)",
				t.AutoUnlockSec, MinAutoUnlockSec, MaxAutoUnlockSec),
		})
	}

	return errs
}

func validateHotkeys(h *HotkeyConfig) ValidationErrors {
	var errs ValidationErrors

	lock := []rune(h.LockKey)
	talk := []rune(h.TalkKey)

	if len(lock) != 1 || !unicode.IsLetter(lock[0]) {
		errs = append(errs, ValidationError{
			Field:   "hotkeys.lock_key",
			Message: fmt.Sprintf("%q is not a single letter", h.LockKey),
		})
	}
	if len(talk) != 1 || !unicode.IsLetter(talk[0]) {
		errs = append(errs, ValidationError{
			Field:   "hotkeys.talk_key",
			Message: fmt.Sprintf("%q is not a single letter", h.TalkKey),
		})
	}
	if len(lock) == 1 && len(talk) == 1 && unicode.ToLower(lock[0]) == unicode.ToLower(talk[0]) {
		errs = append(errs, ValidationError{
			Field:   "hotkeys",
			Message: "lock_key and talk_key must differ",
		})
	}

	return errs
}

func validateIPC(i *IPCConfig) ValidationErrors {
	var errs ValidationErrors

	if !i.Enabled {
		return nil
	}
	if i.SocketPath == "" {
		errs = append(errs, ValidationError{
			Field:   "ipc.socket_path",
			Message: "required when ipc is enabled",
		})
	}
	if i.MaxConnections < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.max_connections",
			Message: "must be at least 1",
		})
	}
	if i.TimeoutSec < 1 {
		errs = append(errs, ValidationError{
			Field:   "ipc.timeout_sec",
			Message: "must be at least 1",
		})
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("unknown level %q", l.Level),
		})
	}

	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("unknown format %q", l.Format),
		})
	}

	switch strings.ToLower(l.Output) {
	case "stdout", "stderr", "file", "both":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("unknown output %q", l.Output),
		})
	}

	if (l.Output == "file" || l.Output == "both") && l.FilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "logging.file_path",
			Message: "required when output includes file",
		})
	}

	return errs
}

func validateHistory(h *HistoryConfig) ValidationErrors {
	var errs ValidationErrors

	if !h.Enabled {
		return nil
	}
	if h.Path == "" {
		errs = append(errs, ValidationError{
			Field:   "history.path",
			Message: "required when history is enabled",
		})
	}
	if h.RetentionDays < 1 {
		errs = append(errs, ValidationError{
			Field:   "history.retention_days",
			Message: "must be at least 1",
		})
	}

	return errs
}

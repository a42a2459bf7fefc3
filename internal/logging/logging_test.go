package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"info", LevelInfo, false},
		{"warn", LevelWarn, false},
		{"warning", LevelWarn, false},
		{"error", LevelError, false},
		{"DEBUG", LevelDebug, false},
		{"bogus", LevelInfo, true},
		{"", LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("default level = %v, want info", cfg.Level)
	}
	if cfg.Component != "handsoffd" {
		t.Errorf("default component = %q", cfg.Component)
	}
	if cfg.FilePath == "" {
		t.Error("default file path is empty")
	}
}

func TestLoggerNew(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "stderr"

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.Logger == nil {
		t.Fatal("nil embedded slog.Logger")
	}
}

func TestShouldRedact(t *testing.T) {
	redacted := []string{
		"passphrase", "Passphrase", "password", "secret_value",
		"input_buffer", "digest", "auth_token", "typed_chars",
	}
	for _, key := range redacted {
		if !shouldRedact(key) {
			t.Errorf("shouldRedact(%q) = false, want true", key)
		}
	}

	clear := []string{"locked", "reason", "elapsed", "component", "keycode"}
	for _, key := range clear {
		if shouldRedact(key) {
			t.Errorf("shouldRedact(%q) = true, want false", key)
		}
	}
}

func TestRedactionInOutput(t *testing.T) {
	var buf bytes.Buffer
	opts := &slog.HandlerOptions{
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue("[REDACTED]")
			}
			return a
		},
	}
	logger := slog.New(slog.NewJSONHandler(&buf, opts))
	logger.Info("unlock attempt", "passphrase", "hunter2", "locked", true)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if entry["passphrase"] != "[REDACTED]" {
		t.Fatalf("passphrase leaked: %v", entry["passphrase"])
	}
	if strings.Contains(buf.String(), "hunter2") {
		t.Fatal("plaintext value present in log output")
	}
	if entry["locked"] != true {
		t.Fatal("non-sensitive attribute altered")
	}
}

func TestWithComponent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Output = "stderr"

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	child := logger.WithComponent("tray")
	if child.Logger == logger.Logger {
		t.Error("WithComponent returned the same underlying logger")
	}
}

func TestFileRotator(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "test.log")

	cfg := &Config{
		FilePath:   logPath,
		MaxSize:    1, // 1 MB
		MaxAge:     7,
		MaxBackups: 3,
		Compress:   false, // faster tests
	}

	rotator, err := NewFileRotator(cfg)
	if err != nil {
		t.Fatalf("failed to create rotator: %v", err)
	}
	defer rotator.Close()

	testData := []byte("test log line\n")
	n, err := rotator.Write(testData)
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	if n != len(testData) {
		t.Errorf("wrote %d bytes, want %d", n, len(testData))
	}

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		t.Error("log file was not created")
	}
	if err := rotator.Sync(); err != nil {
		t.Errorf("sync failed: %v", err)
	}
}

func TestFileOutput(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "out.log")

	cfg := DefaultConfig()
	cfg.Output = "file"
	cfg.FilePath = logPath
	cfg.Format = FormatJSON

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("daemon started", "locked", false)
	if err := logger.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	defer logger.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "daemon started") {
		t.Fatalf("log file missing entry: %q", data)
	}
}

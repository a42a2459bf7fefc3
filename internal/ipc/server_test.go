//go:build !windows

package ipc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"handsoffd/internal/session"
	"handsoffd/internal/store"
)

// fakeController implements Controller with scripted state.
type fakeController struct {
	mu       sync.Mutex
	locked   bool
	disabled bool
	reloaded bool
}

func (f *fakeController) Status() session.StatusReport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return session.StatusReport{
		Version:       "test",
		StartedAt:     time.Now().Add(-time.Minute),
		Locked:        f.locked,
		Disabled:      f.disabled,
		HasPermission: true,
		TapRunning:    !f.disabled,
	}
}

func (f *fakeController) Lock(reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.disabled {
		return session.ErrDisabled
	}
	f.locked = true
	return nil
}

func (f *fakeController) Unlock(passphrase string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.locked {
		return session.ErrNotLocked
	}
	if passphrase != "sec" {
		return session.ErrBadPassphrase
	}
	f.locked = false
	return nil
}

func (f *fakeController) Enable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disabled = false
	return nil
}

func (f *fakeController) Disable() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return session.ErrLocked
	}
	f.disabled = true
	return nil
}

func (f *fakeController) RestartTap() error { return nil }

func (f *fakeController) ReloadConfig() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloaded = true
	return nil
}

// fakeHistory serves a fixed transition list.
type fakeHistory struct {
	transitions []store.Transition
}

func (f *fakeHistory) Recent(ctx context.Context, limit int, since time.Time) ([]store.Transition, error) {
	if limit > 0 && limit < len(f.transitions) {
		return f.transitions[:limit], nil
	}
	return f.transitions, nil
}

func startTestServer(t *testing.T, ctrl Controller, history HistorySource) (*Server, *Client) {
	t.Helper()

	dir, err := os.MkdirTemp("", "ipc")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	socketPath := filepath.Join(dir, "test.sock")
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))

	handler := NewDaemonHandler(ctrl, history, nil, logger)
	cfg := DefaultServerConfig(dir)
	cfg.SocketPath = socketPath

	srv := NewServer(cfg, handler, logger)
	if err := srv.Start(); err != nil {
		t.Fatalf("server start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	clientCfg := DefaultClientConfig(dir)
	clientCfg.SocketPath = socketPath
	client := NewClient(clientCfg)
	if err := client.Connect(); err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return srv, client
}

func TestClientServerHandshake(t *testing.T) {
	_, client := startTestServer(t, &fakeController{}, nil)

	if !client.IsConnected() {
		t.Fatal("client not connected after Connect")
	}
	if client.ClientID() == "" {
		t.Error("handshake did not assign a client ID")
	}
	if client.ServerVersion() != "1.0.0" {
		t.Errorf("server version = %q", client.ServerVersion())
	}
	if err := client.Ping(); err != nil {
		t.Errorf("Ping: %v", err)
	}
}

func TestStatusOverIPC(t *testing.T) {
	ctrl := &fakeController{locked: true}
	_, client := startTestServer(t, ctrl, nil)

	status, err := client.Status()
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Locked || status.Disabled {
		t.Errorf("unexpected status: %+v", status)
	}
	if status.Version != "test" {
		t.Errorf("version = %q, want test", status.Version)
	}
	if status.Uptime <= 0 {
		t.Errorf("uptime = %v, want positive", status.Uptime)
	}
}

func TestLockUnlockOverIPC(t *testing.T) {
	ctrl := &fakeController{}
	_, client := startTestServer(t, ctrl, nil)

	if err := client.Lock("cli"); err != nil {
		t.Fatalf("Lock: %v", err)
	}

	err := client.Unlock("wrong")
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Code != ErrCodeBadPassphrase {
		t.Errorf("code = %d, want %d", remote.Code, ErrCodeBadPassphrase)
	}

	if err := client.Unlock("sec"); err != nil {
		t.Fatalf("Unlock: %v", err)
	}
}

func TestDisableWhileLockedOverIPC(t *testing.T) {
	ctrl := &fakeController{locked: true}
	_, client := startTestServer(t, ctrl, nil)

	err := client.Disable()
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Code != ErrCodeLocked {
		t.Errorf("code = %d, want %d", remote.Code, ErrCodeLocked)
	}
}

func TestHistoryOverIPC(t *testing.T) {
	history := &fakeHistory{
		transitions: []store.Transition{
			{ID: 2, Timestamp: time.Now(), Event: store.EventUnlocked, Reason: "passphrase"},
			{ID: 1, Timestamp: time.Now().Add(-time.Minute), Event: store.EventLocked, Reason: "hotkey"},
		},
	}
	_, client := startTestServer(t, &fakeController{}, history)

	resp, err := client.History(10, time.Time{})
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if resp.Total != 2 || len(resp.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(resp.Entries))
	}
	if resp.Entries[0].Event != store.EventUnlocked {
		t.Errorf("first entry = %s", resp.Entries[0].Event)
	}
}

func TestHistoryDisabledOverIPC(t *testing.T) {
	_, client := startTestServer(t, &fakeController{}, nil)

	_, err := client.History(10, time.Time{})
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
	if remote.Code != ErrCodeInvalidRequest {
		t.Errorf("code = %d, want %d", remote.Code, ErrCodeInvalidRequest)
	}
}

func TestReloadConfigOverIPC(t *testing.T) {
	ctrl := &fakeController{}
	_, client := startTestServer(t, ctrl, nil)

	if err := client.ReloadConfig(); err != nil {
		t.Fatalf("ReloadConfig: %v", err)
	}
	ctrl.mu.Lock()
	reloaded := ctrl.reloaded
	ctrl.mu.Unlock()
	if !reloaded {
		t.Error("reload did not reach the controller")
	}
}

func TestShutdownRefusedWithoutCallback(t *testing.T) {
	_, client := startTestServer(t, &fakeController{}, nil)

	err := client.Shutdown()
	var remote *RemoteError
	if !errors.As(err, &remote) {
		t.Fatalf("expected RemoteError, got %v", err)
	}
}

func TestConnectToMissingSocket(t *testing.T) {
	dir, err := os.MkdirTemp("", "ipc")
	if err != nil {
		t.Fatalf("MkdirTemp: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	cfg := DefaultClientConfig(dir)
	client := NewClient(cfg)
	err = client.Connect()
	if !errors.Is(err, ErrDaemonNotRunning) {
		t.Errorf("expected ErrDaemonNotRunning, got %v", err)
	}
}

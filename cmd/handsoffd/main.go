// handsoffd is the input-lock daemon: it intercepts keyboard and mouse
// events system-wide, engages a lock on a hotkey or after inactivity, and
// releases it only when the unlock passphrase is typed blind.
//
//	handsoffd                 Run with the default config
//	handsoffd --locked        Start with the lock already engaged
//	handsoffd --auto-lock 300 Override the inactivity window (seconds)
//
// Run `handsoffctl setup` first to choose a passphrase.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"handsoffd/internal/auth"
	"handsoffd/internal/config"
	"handsoffd/internal/ipc"
	"handsoffd/internal/logging"
	"handsoffd/internal/notify"
	"handsoffd/internal/permissions"
	"handsoffd/internal/session"
	"handsoffd/internal/state"
	"handsoffd/internal/store"
)

const version = "1.0.0"

var (
	configPath  = flag.String("config", "", "path to config file")
	startLocked = flag.Bool("locked", false, "engage the lock immediately on startup")
	autoLock    = flag.Int("auto-lock", 0, "auto-lock timeout in seconds (overrides env and config)")
	logLevel    = flag.String("log-level", "", "log level: debug, info, warn, error")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("handsoffd %s\n", version)
		return
	}

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "handsoffd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}

	loader := config.NewLoader(path)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Precedence for the auto-lock window: flag > environment > file.
	// The environment is already applied inside Load.
	if *autoLock > 0 {
		cfg.Timeouts.AutoLockSec = *autoLock
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("set up logging: %w", err)
	}
	defer logger.Close()
	logging.SetDefault(logger)

	if loose, err := config.CheckFilePermissions(path); err == nil && loose {
		logger.Warn("config file is readable by other users", "path", path)
	}

	var digest string
	if cfg.Passphrase.Encrypted != "" {
		passphrase, err := config.OpenPassphrase(cfg.Passphrase.Encrypted)
		if err != nil {
			return fmt.Errorf("unseal passphrase: %w", err)
		}
		digest = auth.HashPassphrase(passphrase)
		passphrase = ""
	} else {
		// No sealed passphrase in the config; fall back to the digest
		// the setup wizard persisted.
		digests := auth.NewDigestStore(config.DigestPath())
		digest, err = digests.Load()
		if errors.Is(err, auth.ErrNoDigest) {
			return fmt.Errorf("no passphrase configured; run `handsoffctl setup` first")
		}
		if err != nil {
			return fmt.Errorf("load passphrase digest: %w", err)
		}
		if err := digests.CheckPermissions(); err != nil {
			logger.Warn("digest file permissions", "error", err)
		}
	}

	bindings, err := cfg.Bindings()
	if err != nil {
		return fmt.Errorf("hotkey bindings: %w", err)
	}

	st := state.New()
	st.SetPassphraseDigest(digest)
	st.SetAutoLockTimeout(cfg.AutoLockTimeout())
	st.SetBufferResetTimeout(cfg.BufferResetTimeout())
	st.SetAutoUnlockTimeout(cfg.AutoUnlockTimeout())

	var auditStore *store.Store
	if cfg.History.Enabled {
		auditStore, err = store.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer auditStore.Close()

		retention := time.Duration(cfg.History.RetentionDays) * 24 * time.Hour
		if n, err := auditStore.Prune(context.Background(), retention); err != nil {
			logger.Warn("history prune failed", "error", err)
		} else if n > 0 {
			logger.Info("pruned history", "rows", n)
		}
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifications.Enabled {
		notifier = notify.New(logger.Logger)
	}

	oracle := permissions.System()
	if !oracle.Granted() {
		logger.Warn("input monitoring permission missing, requesting")
		if !oracle.Request() {
			logger.Warn("permission not granted", "instructions", oracle.Instructions())
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var ctrl *session.Controller
	opts := session.Options{
		State:    st,
		Bindings: bindings,
		Oracle:   oracle,
		Notifier: notifier,
		Logger:   logger.Logger,
		OnExit:   cancel,
		Version:  version,
		Reloader: func() error {
			c, err := loader.Load()
			if err != nil {
				return err
			}
			ctrl.ApplyTimeouts(c.AutoLockTimeout(), c.BufferResetTimeout(), c.AutoUnlockTimeout())
			return nil
		},
	}
	if auditStore != nil {
		opts.Recorder = auditStore
	}

	ctrl, err = session.New(opts)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	if err := ctrl.Start(ctx); err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer ctrl.Stop()

	if *startLocked {
		if err := ctrl.Lock("startup"); err != nil {
			logger.Warn("startup lock failed", "error", err)
		}
	}

	var server *ipc.Server
	if cfg.IPC.Enabled {
		var history ipc.HistorySource
		if auditStore != nil {
			history = auditStore
		}
		handler := ipc.NewDaemonHandler(ctrl, history, cancel, logger.Logger)

		server = ipc.NewServer(ipc.ServerConfig{
			SocketPath:     cfg.IPC.SocketPath,
			Version:        version,
			ReadTimeout:    time.Duration(cfg.IPC.TimeoutSec) * time.Second,
			MaxConnections: cfg.IPC.MaxConnections,
		}, handler, logger.Logger)

		if err := server.Start(); err != nil {
			return fmt.Errorf("start ipc server: %w", err)
		}
		defer server.Stop()
	}

	// Timeout settings follow the config file while running; structural
	// settings (socket path, logging, history) need a restart.
	loader.OnChange(func(c *config.Config) {
		ctrl.ApplyTimeouts(c.AutoLockTimeout(), c.BufferResetTimeout(), c.AutoUnlockTimeout())
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch unavailable", "error", err)
	}
	defer loader.Close()
	go func() {
		for err := range loader.Errors() {
			logger.Warn("config reload rejected", "error", err)
		}
	}()

	logger.Info("handsoffd running", "version", version, "config", path)
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func buildLogger(cfg *config.Config) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}

	format := logging.FormatText
	if cfg.Logging.Format == "json" {
		format = logging.FormatJSON
	}

	return logging.New(&logging.Config{
		Level:      level,
		Format:     format,
		Output:     cfg.Logging.Output,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSizeMB,
		MaxAge:     cfg.Logging.MaxAgeDays,
		MaxBackups: cfg.Logging.MaxBackups,
		Compress:   cfg.Logging.Compress,
		Component:  "handsoffd",
	})
}

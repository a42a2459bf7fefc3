// handsoffctl is the control CLI for handsoffd.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"handsoffd/internal/auth"
	"handsoffd/internal/config"
	"handsoffd/internal/ipc"
)

var configPath string

func main() {
	args := os.Args[1:]

	// Global -config flag, accepted before the subcommand.
	if len(args) >= 2 && (args[0] == "-config" || args[0] == "--config") {
		configPath = args[1]
		args = args[2:]
	}

	if len(args) < 1 {
		usage()
		os.Exit(1)
	}

	cmd := args[0]
	rest := args[1:]

	var err error
	switch cmd {
	case "status":
		err = cmdStatus()
	case "lock":
		err = cmdLock()
	case "unlock":
		err = cmdUnlock()
	case "enable":
		err = cmdEnable()
	case "disable":
		err = cmdDisable()
	case "restart-tap":
		err = cmdRestartTap()
	case "reload":
		err = cmdReload()
	case "history":
		err = cmdHistory(rest)
	case "setup":
		err = cmdSetup()
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "handsoffctl: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `handsoffctl - Control utility for handsoffd

Usage: handsoffctl [-config <path>] <command> [args]

Commands:
  status          Show daemon status
  lock            Engage the input lock
  unlock          Release the lock (prompts for the passphrase)
  enable          Resume input interception
  disable         Suspend input interception
  restart-tap     Tear down and recreate the interception handle
  reload          Re-read the configuration file
  history [n]     Show the last n recorded transitions (default 20)
  setup           Interactive first-run setup (passphrase and timeouts)
  help            Show this help message

Options:
  -config <path>  Path to config file (default: ~/.handsoffd or platform dir)`)
}

// connect loads the config for the socket path and dials the daemon.
func connect() (*ipc.Client, error) {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	clientCfg := ipc.DefaultClientConfig(config.HandsoffDir())
	if cfg.IPC.SocketPath != "" {
		clientCfg.SocketPath = cfg.IPC.SocketPath
	}

	client := ipc.NewClient(clientCfg)
	if err := client.Connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func cmdStatus() error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	status, err := client.Status()
	if err != nil {
		return err
	}

	fmt.Printf("Daemon:      handsoffd %s (up %s)\n", status.Version, status.Uptime.Round(time.Second))
	fmt.Printf("Locked:      %v\n", status.Locked)
	fmt.Printf("Enabled:     %v\n", !status.Disabled)
	fmt.Printf("Permission:  %v\n", status.HasPermission)
	fmt.Printf("Tap running: %v\n", status.TapRunning)
	if status.Locked {
		fmt.Printf("Locked for:  %s\n", status.LockElapsed.Round(time.Second))
		if status.AutoUnlockRemaining > 0 {
			fmt.Printf("Safety release in: %s\n", status.AutoUnlockRemaining.Round(time.Second))
		}
		if status.BufferLen > 0 {
			fmt.Printf("Typed buffer: %d chars\n", status.BufferLen)
		}
	} else if status.AutoLockRemaining > 0 {
		fmt.Printf("Auto-lock in: %s\n", status.AutoLockRemaining.Round(time.Second))
	}
	fmt.Printf("Taps:        %d created / %d released\n", status.TapsCreated, status.TapsReleased)
	return nil
}

func cmdLock() error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Lock("cli"); err != nil {
		return err
	}
	fmt.Println("Locked.")
	return nil
}

func cmdUnlock() error {
	passphrase, err := readHidden("Passphrase: ")
	if err != nil {
		return err
	}

	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Unlock(passphrase); err != nil {
		return err
	}
	fmt.Println("Unlocked.")
	return nil
}

func cmdEnable() error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Enable(); err != nil {
		return err
	}
	fmt.Println("Interception enabled.")
	return nil
}

func cmdDisable() error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.Disable(); err != nil {
		return err
	}
	fmt.Println("Interception disabled.")
	return nil
}

func cmdRestartTap() error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.RestartTap(); err != nil {
		return err
	}
	fmt.Println("Tap restarted.")
	return nil
}

func cmdReload() error {
	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.ReloadConfig(); err != nil {
		return err
	}
	fmt.Println("Configuration reloaded.")
	return nil
}

func cmdHistory(args []string) error {
	limit := 20
	if len(args) >= 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid count: %s", args[0])
		}
		limit = n
	}

	client, err := connect()
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.History(limit, time.Time{})
	if err != nil {
		return err
	}
	if resp.Total == 0 {
		fmt.Println("No recorded transitions.")
		return nil
	}

	for _, e := range resp.Entries {
		ts := e.Timestamp.Local().Format("2006-01-02 15:04:05")
		if e.Reason != "" {
			fmt.Printf("%s  %-20s %s\n", ts, e.Event, e.Reason)
		} else {
			fmt.Printf("%s  %s\n", ts, e.Event)
		}
	}
	return nil
}

// cmdSetup is the interactive first-run wizard. It writes the sealed
// passphrase and timeout settings to the config file with 0600 perms.
func cmdSetup() error {
	path := configPath
	if path == "" {
		path = config.ConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Println("handsoffd setup")
	fmt.Println()
	fmt.Println("Choose the unlock passphrase. While locked you will type it")
	fmt.Println("blind; every keystroke is checked against it.")
	fmt.Println()

	passphrase, err := readHidden("Passphrase: ")
	if err != nil {
		return err
	}
	if passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}
	confirm, err := readHidden("Confirm passphrase: ")
	if err != nil {
		return err
	}
	if passphrase != confirm {
		return fmt.Errorf("passphrases do not match")
	}

	sealed, err := config.SealPassphrase(passphrase)
	if err != nil {
		return fmt.Errorf("seal passphrase: %w", err)
	}
	cfg.Passphrase.Encrypted = sealed

	reader := bufio.NewReader(os.Stdin)

	cfg.Timeouts.AutoLockSec, err = promptSeconds(reader,
		fmt.Sprintf("Auto-lock after inactivity, %d-%d seconds", config.MinAutoLockSec, config.MaxAutoLockSec),
		cfg.Timeouts.AutoLockSec)
	if err != nil {
		return err
	}

	cfg.Timeouts.AutoUnlockSec, err = promptSeconds(reader,
		fmt.Sprintf("Safety auto-unlock, %d-%d seconds, 0 to disable", config.MinAutoUnlockSec, config.MaxAutoUnlockSec),
		cfg.Timeouts.AutoUnlockSec)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	// Persist the digest too, so the daemon can still verify unlocks if
	// the sealed passphrase is ever stripped from the config.
	digests := auth.NewDigestStore(config.DigestPath())
	if err := digests.Save(auth.HashPassphrase(passphrase)); err != nil {
		return fmt.Errorf("store passphrase digest: %w", err)
	}

	fmt.Println()
	fmt.Printf("Configuration written to %s\n", path)
	fmt.Println("Start the daemon with: handsoffd")
	return nil
}

// readHidden reads a line without echo when stdin is a terminal.
func readHidden(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}

	// Piped input, used in scripts and tests.
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// promptSeconds asks for a number of seconds, keeping the default on an
// empty answer.
func promptSeconds(reader *bufio.Reader, label string, def int) (int, error) {
	fmt.Printf("%s [%d]: ", label, def)
	line, err := reader.ReadString('\n')
	if err != nil && strings.TrimSpace(line) == "" {
		return def, nil
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return def, nil
	}
	n, err := strconv.Atoi(line)
	if err != nil {
		return 0, fmt.Errorf("not a number: %s", line)
	}
	return n, nil
}

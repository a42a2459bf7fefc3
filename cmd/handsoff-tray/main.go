// handsoff-tray is the menu-bar front-end for handsoffd. It polls the
// daemon's status socket and offers lock / enable / disable actions.
// Unlocking is deliberately absent: the lock releases only when the
// passphrase is typed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/getlantern/systray"

	"handsoffd/internal/config"
	"handsoffd/internal/ipc"
)

// Poll faster while interception is live so the lock indicator feels
// immediate; back off when the daemon is disabled or unreachable.
const (
	pollActive = 500 * time.Millisecond
	pollIdle   = 5 * time.Second
)

var configPath = flag.String("config", "", "path to config file")

type trayApp struct {
	client *ipc.Client

	statusItem *systray.MenuItem
	permItem   *systray.MenuItem
	lockItem   *systray.MenuItem
	toggleItem *systray.MenuItem
	quitItem   *systray.MenuItem

	mu     sync.Mutex
	status *ipc.StatusResponse
}

func main() {
	flag.Parse()

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "handsoff-tray: load config: %v\n", err)
		os.Exit(1)
	}

	clientCfg := ipc.DefaultClientConfig(config.HandsoffDir())
	if cfg.IPC.SocketPath != "" {
		clientCfg.SocketPath = cfg.IPC.SocketPath
	}
	clientCfg.ClientName = "handsoff-tray"
	clientCfg.AutoReconnect = true

	app := &trayApp{client: ipc.NewClient(clientCfg)}

	ctx, cancel := context.WithCancel(context.Background())
	systray.Run(func() { app.onReady(ctx) }, func() {
		cancel()
		app.client.Close()
	})
}

func (a *trayApp) onReady(ctx context.Context) {
	systray.SetTitle("HandsOff")
	systray.SetTooltip("handsoffd input lock")

	a.statusItem = systray.AddMenuItem("Connecting...", "Daemon status")
	a.statusItem.Disable()
	a.permItem = systray.AddMenuItem("Input monitoring permission missing", "Grant permission in system settings")
	a.permItem.Disable()
	a.permItem.Hide()
	systray.AddSeparator()
	a.lockItem = systray.AddMenuItem("Lock Input", "Engage the input lock now")
	a.toggleItem = systray.AddMenuItem("Disable", "Suspend input interception")
	systray.AddSeparator()
	a.quitItem = systray.AddMenuItem("Quit", "Quit the tray (the daemon keeps running)")

	go a.clickLoop(ctx)
	go a.pollLoop(ctx)
}

func (a *trayApp) clickLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case <-a.lockItem.ClickedCh:
			if err := a.client.Lock("tray"); err == nil {
				a.refresh()
			}

		case <-a.toggleItem.ClickedCh:
			if a.currentStatus() != nil && a.currentStatus().Disabled {
				a.client.Enable()
			} else {
				a.client.Disable()
			}
			a.refresh()

		case <-a.quitItem.ClickedCh:
			// Quitting the status surface while locked would hide the
			// only visible indicator of the lock.
			if s := a.currentStatus(); s == nil || !s.Locked {
				systray.Quit()
				return
			}
		}
	}
}

func (a *trayApp) pollLoop(ctx context.Context) {
	for {
		interval := a.refresh()
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// refresh fetches the daemon status, redraws the menu, and returns the
// next poll interval.
func (a *trayApp) refresh() time.Duration {
	if !a.client.IsConnected() {
		if err := a.client.Connect(); err != nil {
			a.setStatus(nil)
			return pollIdle
		}
	}

	status, err := a.client.Status()
	if err != nil {
		a.setStatus(nil)
		return pollIdle
	}
	a.setStatus(status)

	if status.Disabled {
		return pollIdle
	}
	return pollActive
}

func (a *trayApp) currentStatus() *ipc.StatusResponse {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

func (a *trayApp) setStatus(status *ipc.StatusResponse) {
	a.mu.Lock()
	a.status = status
	a.mu.Unlock()

	if status == nil {
		systray.SetTitle("HandsOff")
		a.statusItem.SetTitle("Daemon not running")
		a.permItem.Hide()
		a.lockItem.Disable()
		a.toggleItem.Disable()
		a.quitItem.Enable()
		return
	}

	a.toggleItem.Enable()

	switch {
	case status.Locked:
		systray.SetTitle("HandsOff [locked]")
		a.statusItem.SetTitle(fmt.Sprintf("Locked for %s", status.LockElapsed.Round(time.Second)))
		a.lockItem.Disable()
		a.toggleItem.Disable()
		a.quitItem.Disable()
	case status.Disabled:
		systray.SetTitle("HandsOff [off]")
		a.statusItem.SetTitle("Interception disabled")
		a.lockItem.Disable()
		a.toggleItem.SetTitle("Enable")
		a.quitItem.Enable()
	default:
		systray.SetTitle("HandsOff")
		a.statusItem.SetTitle("Unlocked")
		a.lockItem.Enable()
		a.toggleItem.SetTitle("Disable")
		a.quitItem.Enable()
	}

	if status.HasPermission {
		a.permItem.Hide()
	} else {
		a.permItem.Show()
		a.lockItem.Disable()
	}
}

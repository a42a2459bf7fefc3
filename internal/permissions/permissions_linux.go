//go:build linux

package permissions

import (
	"os"
	"path/filepath"

	"golang.org/x/sys/unix"
)

type systemOracle struct{}

// Granted checks for read access to at least one input event device.
// Membership in the input group (or root) is what grants it.
func (systemOracle) Granted() bool {
	devices, err := filepath.Glob("/dev/input/event*")
	if err != nil || len(devices) == 0 {
		return false
	}
	for _, dev := range devices {
		if unix.Access(dev, unix.R_OK) == nil {
			return true
		}
	}
	return false
}

// Request cannot prompt on Linux; group membership is an admin action.
func (o systemOracle) Request() bool {
	return o.Granted()
}

func (systemOracle) Instructions() string {
	user := os.Getenv("USER")
	if user == "" {
		user = "<user>"
	}
	return "Add your user to the input group: sudo usermod -aG input " + user + ", then log out and back in."
}

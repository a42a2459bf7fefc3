//go:build !windows

package ipc

import (
	"errors"
	"net"
)

// dialWindows is never reached off Windows; Connect dispatches on GOOS.
func (c *Client) dialWindows() (net.Conn, error) {
	return nil, errors.New("named pipes are windows-only")
}

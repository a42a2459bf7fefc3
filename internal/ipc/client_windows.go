//go:build windows

package ipc

import (
	"net"
	"os"
	"syscall"
	"time"
)

// dialWindows establishes a named pipe connection, retrying briefly when
// every pipe instance is busy.
func (c *Client) dialWindows() (net.Conn, error) {
	pipeName := WindowsPipePath(c.socketPath)

	namePtr, err := syscall.UTF16PtrFromString(pipeName)
	if err != nil {
		return nil, err
	}

	var handle syscall.Handle
	for i := 0; i < 3; i++ {
		handle, err = syscall.CreateFile(
			namePtr,
			syscall.GENERIC_READ|syscall.GENERIC_WRITE,
			0,
			nil,
			syscall.OPEN_EXISTING,
			0,
			0,
		)
		if err == nil {
			break
		}

		errno, ok := err.(syscall.Errno)
		if ok && errno == syscall.ERROR_FILE_NOT_FOUND {
			return nil, ErrDaemonNotRunning
		}
		if !ok || errno != 231 { // ERROR_PIPE_BUSY
			return nil, err
		}
		time.Sleep(100 * time.Millisecond)
	}
	if err != nil {
		return nil, err
	}

	return &pipeConn{
		file: os.NewFile(uintptr(handle), pipeName),
		name: pipeName,
	}, nil
}

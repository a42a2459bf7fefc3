//go:build windows

package ipc

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"
	"unsafe"
)

const (
	pipeAccessDuplex       = 0x00000003
	pipeTypeByte           = 0x00000000
	pipeWait               = 0x00000000
	pipeUnlimitedInstances = 255
	pipeBufferSize         = 64 * 1024
)

var (
	kernel32                = syscall.NewLazyDLL("kernel32.dll")
	procCreateNamedPipeW    = kernel32.NewProc("CreateNamedPipeW")
	procConnectNamedPipe    = kernel32.NewProc("ConnectNamedPipe")
	procDisconnectNamedPipe = kernel32.NewProc("DisconnectNamedPipe")
)

// PeerCredentials holds the credentials of a peer process. Named pipes do
// not expose UID/GID; only the PID is meaningful on Windows.
type PeerCredentials struct {
	PID int
	UID int
	GID int
}

// WindowsPipePath maps a socket path to a named pipe path.
func WindowsPipePath(socketPath string) string {
	if strings.HasPrefix(socketPath, `\\.\pipe\`) {
		return socketPath
	}
	name := strings.TrimSuffix(filepath.Base(socketPath), ".sock")
	return `\\.\pipe\` + name
}

// pipeAddr implements net.Addr for named pipes
type pipeAddr string

func (a pipeAddr) Network() string { return "pipe" }
func (a pipeAddr) String() string  { return string(a) }

// pipeConn adapts a named pipe handle to net.Conn. Deadlines are not
// supported; Set*Deadline calls are accepted and ignored.
type pipeConn struct {
	file *os.File
	name string
}

func (c *pipeConn) Read(p []byte) (int, error)  { return c.file.Read(p) }
func (c *pipeConn) Write(p []byte) (int, error) { return c.file.Write(p) }

func (c *pipeConn) Close() error {
	procDisconnectNamedPipe.Call(c.file.Fd())
	return c.file.Close()
}

func (c *pipeConn) LocalAddr() net.Addr                { return pipeAddr(c.name) }
func (c *pipeConn) RemoteAddr() net.Addr               { return pipeAddr(c.name) }
func (c *pipeConn) SetDeadline(t time.Time) error      { return nil }
func (c *pipeConn) SetReadDeadline(t time.Time) error  { return nil }
func (c *pipeConn) SetWriteDeadline(t time.Time) error { return nil }

// pipeListener implements net.Listener over named pipe instances. Each
// Accept creates a fresh pipe instance and blocks until a client connects.
type pipeListener struct {
	name string

	mu      sync.Mutex
	pending syscall.Handle
	closed  bool
}

func (l *pipeListener) Accept() (net.Conn, error) {
	handle, err := l.createInstance()
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		syscall.CloseHandle(handle)
		return nil, net.ErrClosed
	}
	l.pending = handle
	l.mu.Unlock()

	ret, _, connErr := procConnectNamedPipe.Call(uintptr(handle), 0)

	l.mu.Lock()
	l.pending = syscall.InvalidHandle
	closed := l.closed
	l.mu.Unlock()

	if closed {
		syscall.CloseHandle(handle)
		return nil, net.ErrClosed
	}

	// ERROR_PIPE_CONNECTED means the client raced ahead of us; the pipe
	// is usable.
	if ret == 0 {
		if errno, ok := connErr.(syscall.Errno); !ok || errno != syscall.ERROR_PIPE_CONNECTED {
			syscall.CloseHandle(handle)
			return nil, fmt.Errorf("connect named pipe: %w", connErr)
		}
	}

	return &pipeConn{
		file: os.NewFile(uintptr(handle), l.name),
		name: l.name,
	}, nil
}

func (l *pipeListener) createInstance() (syscall.Handle, error) {
	namePtr, err := syscall.UTF16PtrFromString(l.name)
	if err != nil {
		return syscall.InvalidHandle, err
	}

	ret, _, callErr := procCreateNamedPipeW.Call(
		uintptr(unsafe.Pointer(namePtr)),
		pipeAccessDuplex,
		pipeTypeByte|pipeWait,
		pipeUnlimitedInstances,
		pipeBufferSize,
		pipeBufferSize,
		0,
		0,
	)
	handle := syscall.Handle(ret)
	if handle == syscall.InvalidHandle {
		return syscall.InvalidHandle, fmt.Errorf("create named pipe: %w", callErr)
	}
	return handle, nil
}

func (l *pipeListener) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.pending != syscall.InvalidHandle {
		// Unblocks a pending ConnectNamedPipe.
		syscall.CloseHandle(l.pending)
		l.pending = syscall.InvalidHandle
	}
	return nil
}

func (l *pipeListener) Addr() net.Addr {
	return pipeAddr(l.name)
}

// listen creates the named pipe listener.
func listen(socketPath string) (net.Listener, error) {
	return &pipeListener{
		name:    WindowsPipePath(socketPath),
		pending: syscall.InvalidHandle,
	}, nil
}

// cleanupListener is a no-op; pipe instances vanish with their handles.
func cleanupListener(socketPath string) {}

// verifyPeer accepts all local pipe connections; the default pipe security
// descriptor restricts access to the creating user.
func verifyPeer(conn net.Conn) (bool, error) {
	return true, nil
}

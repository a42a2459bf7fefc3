package ipc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
)

// Common errors
var (
	ErrNotConnected     = errors.New("not connected to daemon")
	ErrConnectionLost   = errors.New("connection to daemon lost")
	ErrTimeout          = errors.New("request timeout")
	ErrDaemonNotRunning = errors.New("daemon is not running")
)

// RemoteError is an error reported by the daemon with a protocol error code.
type RemoteError struct {
	Code    int
	Message string
	Details string
}

func (e *RemoteError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Client is the IPC client for communicating with the handsoffd daemon
type Client struct {
	mu         sync.RWMutex
	conn       net.Conn
	socketPath string
	clientID   string
	serverVer  string

	// Connection state
	connected    atomic.Bool
	reconnecting atomic.Bool

	// Request handling
	pending   map[uint32]chan *Message
	pendingMu sync.Mutex
	nextReqID atomic.Uint32

	// Reconnection
	autoReconnect bool
	reconnectWait time.Duration
	maxReconnect  int

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	config ClientConfig
}

// ClientConfig configures the IPC client
type ClientConfig struct {
	SocketPath     string
	ClientName     string
	ClientVersion  string
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	AutoReconnect  bool
	ReconnectWait  time.Duration
	MaxReconnect   int
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig(dataDir string) ClientConfig {
	return ClientConfig{
		SocketPath:     filepath.Join(dataDir, "handsoffd.sock"),
		ClientName:     "handsoffctl",
		ClientVersion:  "1.0.0",
		ConnectTimeout: 5 * time.Second,
		RequestTimeout: 10 * time.Second,
		AutoReconnect:  false,
		ReconnectWait:  time.Second,
		MaxReconnect:   3,
	}
}

// NewClient creates a new IPC client
func NewClient(cfg ClientConfig) *Client {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		socketPath:    cfg.SocketPath,
		pending:       make(map[uint32]chan *Message),
		autoReconnect: cfg.AutoReconnect,
		reconnectWait: cfg.ReconnectWait,
		maxReconnect:  cfg.MaxReconnect,
		ctx:           ctx,
		cancel:        cancel,
		config:        cfg,
	}
}

// Connect establishes a connection to the daemon
func (c *Client) Connect() error {
	c.mu.Lock()
	if c.connected.Load() {
		c.mu.Unlock()
		return nil
	}

	var conn net.Conn
	var err error
	if runtime.GOOS == "windows" {
		conn, err = c.dialWindows()
	} else {
		conn, err = c.dialUnix()
	}
	if err != nil {
		c.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	c.conn = conn
	c.connected.Store(true)
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop()

	if err := c.handshake(); err != nil {
		c.close()
		return fmt.Errorf("handshake: %w", err)
	}

	return nil
}

// dialUnix establishes a Unix socket connection
func (c *Client) dialUnix() (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.config.ConnectTimeout}
	conn, err := dialer.Dial("unix", c.socketPath)
	if err != nil {
		if _, statErr := os.Stat(c.socketPath); os.IsNotExist(statErr) {
			return nil, ErrDaemonNotRunning
		}
		return nil, err
	}
	return conn, nil
}

// Close closes the connection to the daemon
func (c *Client) Close() error {
	c.cancel()
	c.close()

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}

	return nil
}

// close closes the connection without signaling shutdown
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.connected.Store(false)

	// Fail all pending requests
	c.pendingMu.Lock()
	for _, ch := range c.pending {
		close(ch)
	}
	c.pending = make(map[uint32]chan *Message)
	c.pendingMu.Unlock()
}

// IsConnected returns whether the client is connected
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// ClientID returns the ID assigned by the server during handshake
func (c *Client) ClientID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.clientID
}

// ServerVersion returns the daemon version reported during handshake
func (c *Client) ServerVersion() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverVer
}

// handshake performs the initial handshake with the server
func (c *Client) handshake() error {
	req := &HandshakeRequest{
		ClientVersion:   c.config.ClientVersion,
		ClientName:      c.config.ClientName,
		ProtocolVersion: ProtocolVersion,
	}

	resp, err := c.request(MsgHandshake, req)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgHandshakeAck {
		return fmt.Errorf("unexpected response type: %d", resp.Header.Type)
	}

	var ack HandshakeResponse
	if err := Decode(resp.Payload, &ack); err != nil {
		return err
	}

	c.mu.Lock()
	c.clientID = ack.ClientID
	c.serverVer = ack.ServerVersion
	c.mu.Unlock()

	return nil
}

// request sends a request and waits for a response
func (c *Client) request(msgType MessageType, payload any) (*Message, error) {
	return c.requestWithTimeout(msgType, payload, c.config.RequestTimeout)
}

// requestWithTimeout sends a request with a custom timeout
func (c *Client) requestWithTimeout(msgType MessageType, payload any, timeout time.Duration) (*Message, error) {
	if !c.connected.Load() {
		return nil, ErrNotConnected
	}

	var data []byte
	if payload != nil {
		var err error
		data, err = Encode(payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}

	reqID := c.nextReqID.Add(1)
	msg := NewMessage(msgType, reqID, data)

	respChan := make(chan *Message, 1)
	c.pendingMu.Lock()
	c.pending[reqID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, reqID)
		c.pendingMu.Unlock()
	}()

	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := msg.Write(conn); err != nil {
		c.close()
		return nil, fmt.Errorf("write message: %w", err)
	}

	select {
	case resp, ok := <-respChan:
		if !ok {
			return nil, ErrConnectionLost
		}
		return resp, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	}
}

// readLoop reads messages from the connection
func (c *Client) readLoop() {
	defer c.wg.Done()

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()

		if conn == nil {
			if c.autoReconnect {
				c.tryReconnect()
				continue
			}
			return
		}

		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		msg, err := ReadMessage(conn)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.sendPing()
				continue
			}
			c.close()
			if c.autoReconnect {
				c.tryReconnect()
				continue
			}
			return
		}

		c.handleMessage(msg)
	}
}

// handleMessage processes an incoming message
func (c *Client) handleMessage(msg *Message) {
	switch msg.Header.Type {
	case MsgPing:
		// Keepalive from the server.
		c.mu.RLock()
		conn := c.conn
		c.mu.RUnlock()
		if conn != nil {
			pong := NewMessage(MsgPong, msg.Header.RequestID, nil)
			pong.Write(conn)
		}

	default:
		// Response to a request (including pongs for our own pings).
		c.pendingMu.Lock()
		if ch, ok := c.pending[msg.Header.RequestID]; ok {
			select {
			case ch <- msg:
			default:
			}
		}
		c.pendingMu.Unlock()
	}
}

// sendPing sends a ping to keep the connection alive
func (c *Client) sendPing() {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn != nil {
		msg := NewMessage(MsgPing, c.nextReqID.Add(1), nil)
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		msg.Write(conn)
	}
}

// tryReconnect attempts to reconnect to the daemon
func (c *Client) tryReconnect() {
	if !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	defer c.reconnecting.Store(false)

	for i := 0; i < c.maxReconnect; i++ {
		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.reconnectWait):
		}

		if err := c.Connect(); err == nil {
			return
		}
	}
}

// remoteErr converts an error response into a *RemoteError.
func remoteErr(msg *Message) error {
	var errResp ErrorResponse
	if err := Decode(msg.Payload, &errResp); err != nil {
		return &RemoteError{Code: ErrCodeUnknown, Message: "malformed error response"}
	}
	return &RemoteError{Code: errResp.Code, Message: errResp.Message, Details: errResp.Details}
}

// ack decodes an AckResponse, mapping protocol errors and failed acks to
// Go errors.
func ack(msg *Message) error {
	if msg.Header.Type == MsgError {
		return remoteErr(msg)
	}
	var resp AckResponse
	if err := Decode(msg.Payload, &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.New(resp.Error)
	}
	return nil
}

// High-level API methods

// Ping checks if the daemon is responsive
func (c *Client) Ping() error {
	resp, err := c.requestWithTimeout(MsgPing, nil, 5*time.Second)
	if err != nil {
		return err
	}
	if resp.Header.Type != MsgPong {
		return fmt.Errorf("unexpected response: %d", resp.Header.Type)
	}
	return nil
}

// Status requests the daemon status
func (c *Client) Status() (*StatusResponse, error) {
	resp, err := c.request(MsgStatusRequest, &StatusRequest{})
	if err != nil {
		return nil, err
	}
	if resp.Header.Type == MsgError {
		return nil, remoteErr(resp)
	}

	var status StatusResponse
	if err := Decode(resp.Payload, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// Lock engages the input lock
func (c *Client) Lock(reason string) error {
	resp, err := c.request(MsgLock, &LockRequest{Reason: reason})
	if err != nil {
		return err
	}
	return ack(resp)
}

// Unlock releases the input lock after verifying the passphrase
func (c *Client) Unlock(passphrase string) error {
	resp, err := c.request(MsgUnlock, &UnlockRequest{Passphrase: passphrase})
	if err != nil {
		return err
	}
	return ack(resp)
}

// Enable resumes input interception
func (c *Client) Enable() error {
	resp, err := c.request(MsgEnable, nil)
	if err != nil {
		return err
	}
	return ack(resp)
}

// Disable suspends input interception
func (c *Client) Disable() error {
	resp, err := c.request(MsgDisable, nil)
	if err != nil {
		return err
	}
	return ack(resp)
}

// RestartTap tears down and recreates the interception handle
func (c *Client) RestartTap() error {
	resp, err := c.request(MsgRestartTap, nil)
	if err != nil {
		return err
	}
	return ack(resp)
}

// ReloadConfig asks the daemon to re-read its configuration file
func (c *Client) ReloadConfig() error {
	resp, err := c.request(MsgReloadConfig, nil)
	if err != nil {
		return err
	}
	return ack(resp)
}

// History fetches recent state transitions from the audit trail
func (c *Client) History(limit int, since time.Time) (*HistoryResponse, error) {
	resp, err := c.request(MsgHistoryRequest, &HistoryRequest{Limit: limit, Since: since})
	if err != nil {
		return nil, err
	}
	if resp.Header.Type == MsgError {
		return nil, remoteErr(resp)
	}

	var history HistoryResponse
	if err := Decode(resp.Payload, &history); err != nil {
		return nil, err
	}
	return &history, nil
}

// Shutdown asks the daemon to exit
func (c *Client) Shutdown() error {
	resp, err := c.request(MsgShutdown, nil)
	if err != nil {
		return err
	}
	return ack(resp)
}

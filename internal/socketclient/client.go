package socketclient

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/codefionn/turing/internal/consts"
	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/state"
)

// ConnectionState represents the current state of the socket connection
type ConnectionState int

const (
	// StateDisconnected indicates the client is not connected
	StateDisconnected ConnectionState = iota
	// StateConnected indicates the client is connected
	StateConnected
	// StateClosed indicates the client has been closed
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client-side error codes, next to the server codes of package protocol.
const (
	CodeNotConnected     = "NOT_CONNECTED"
	CodeConnectionClosed = "CONNECTION_CLOSED"
	CodeTimeout          = "TIMEOUT"
	CodeUnexpectedType   = "UNEXPECTED_RESPONSE"
)

// SocketError represents an error from the socket server
type SocketError struct {
	Code    string
	Message string
}

func (e *SocketError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Kind returns the failure kind of a server error code.
func (e *SocketError) Kind() state.Kind {
	return protocol.KindFor(e.Code)
}

// Is matches state errors by kind, so errors.Is(err, state.ErrSectionLocked)
// works on the client side.
func (e *SocketError) Is(target error) bool {
	var se *state.Error
	if errors.As(target, &se) {
		return se.Kind == e.Kind() && e.Kind() != state.Internal
	}
	return false
}

// NewSocketError creates a new SocketError
func NewSocketError(code, message string) *SocketError {
	return &SocketError{Code: code, Message: message}
}

// Config holds client configuration
type Config struct {
	// Address is the TCP address of the server
	Address string
	// Codec is the wire codec, "json" or "cbor"
	Codec string
	// ConnectTimeout is the timeout for initial connection
	ConnectTimeout time.Duration
	// RequestTimeout is the default timeout for requests
	RequestTimeout time.Duration
	// WriteTimeout is the timeout for writing messages
	WriteTimeout time.Duration
	// MaxFrameBytes bounds one response
	MaxFrameBytes int
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Address:        "localhost" + consts.DefaultListenAddr,
		Codec:          protocol.CodecJSON,
		ConnectTimeout: consts.Timeout10Seconds,
		RequestTimeout: consts.Timeout30Seconds,
		WriteTimeout:   consts.Timeout10Seconds,
		MaxFrameBytes:  consts.BufferSize1MB,
	}
}

// Client is a connection to the document server. Requests may be issued from
// several goroutines; the server answers them in order.
type Client struct {
	config *Config
	codec  protocol.Codec
	log    *logger.Logger

	// Connection
	conn    net.Conn
	state   atomic.Int32 // ConnectionState
	writeMu sync.Mutex

	// Request tracking. pendingOrder lists request IDs in the order they were
	// written, which is the order the server answers them.
	pendingRequests map[string]chan *protocol.Envelope
	pendingOrder    []string
	requestMu       sync.Mutex

	// Invites
	inviteCallback func(protocol.InviteNotification)
	invites        []protocol.InviteNotification
	inviteMu       sync.Mutex

	session atomic.Value // string

	// Lifecycle
	closeOnce sync.Once
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// Dial connects to the server at address with the default configuration.
func Dial(ctx context.Context, address string) (*Client, error) {
	config := DefaultConfig()
	config.Address = address
	return DialWithConfig(ctx, config)
}

// DialWithConfig connects with a custom configuration.
func DialWithConfig(ctx context.Context, config *Config) (*Client, error) {
	if config.Address == "" {
		return nil, errors.New("server address is required")
	}
	codec, err := protocol.CodecByName(config.Codec)
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: config.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", config.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", config.Address, err)
	}

	c := &Client{
		config:          config,
		codec:           codec,
		log:             logger.Global().WithPrefix("client"),
		conn:            conn,
		pendingRequests: make(map[string]chan *protocol.Envelope),
		stopCh:          make(chan struct{}),
		doneCh:          make(chan struct{}),
	}
	c.session.Store("")
	c.state.Store(int32(StateConnected))

	go c.readPump(bufio.NewReaderSize(conn, consts.BufferSize64KB))
	return c, nil
}

// SetInviteCallback registers fn for invite notifications. Without a callback
// invites are kept until TakeInvites is called.
func (c *Client) SetInviteCallback(fn func(protocol.InviteNotification)) {
	c.inviteMu.Lock()
	defer c.inviteMu.Unlock()
	c.inviteCallback = fn
}

// TakeInvites returns and clears the invites received so far.
func (c *Client) TakeInvites() []protocol.InviteNotification {
	c.inviteMu.Lock()
	defer c.inviteMu.Unlock()
	invites := c.invites
	c.invites = nil
	return invites
}

// Session returns the session token of the last login.
func (c *Client) Session() string {
	return c.session.Load().(string)
}

// SetSession replaces the session token, for example to reuse a session on a
// new connection.
func (c *Client) SetSession(token string) {
	c.session.Store(token)
}

// GetState returns the current connection state
func (c *Client) GetState() ConnectionState {
	return ConnectionState(c.state.Load())
}

// IsConnected returns true if the client is connected
func (c *Client) IsConnected() bool {
	return c.GetState() == StateConnected
}

// Done is closed once the connection is gone.
func (c *Client) Done() <-chan struct{} {
	return c.doneCh
}

// Close immediately closes the connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosed))
		close(c.stopCh)
		err = c.conn.Close()
	})
	<-c.doneCh
	return err
}

// SendRequest sends req and waits for the response carrying its request ID. An
// error response is returned as *SocketError.
func (c *Client) SendRequest(ctx context.Context, req protocol.Request) (*protocol.Envelope, error) {
	if !c.IsConnected() {
		return nil, NewSocketError(CodeNotConnected, "not connected to server")
	}

	requestID := uuid.NewString()
	data, err := protocol.Encode(c.codec, req.RequestType(), requestID, req)
	if err != nil {
		return nil, err
	}

	respCh := make(chan *protocol.Envelope, 1)
	defer c.takePending(requestID)

	if err := c.writeRequest(requestID, respCh, data); err != nil {
		return nil, err
	}

	timeout := time.NewTimer(c.config.RequestTimeout)
	defer timeout.Stop()

	select {
	case resp := <-respCh:
		if resp.Error != nil {
			return nil, NewSocketError(resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-c.doneCh:
		return nil, NewSocketError(CodeConnectionClosed, "connection closed")
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timeout.C:
		return nil, NewSocketError(CodeTimeout, "request timeout")
	}
}

// call sends req, checks the response type and decodes its payload into out.
func (c *Client) call(ctx context.Context, req protocol.Request, want protocol.Type, out any) error {
	resp, err := c.SendRequest(ctx, req)
	if err != nil {
		return err
	}
	if resp.Type != want {
		return NewSocketError(CodeUnexpectedType, fmt.Sprintf("expected %s, got %s", want, resp.Type))
	}
	if out == nil {
		return nil
	}
	return protocol.DecodePayload(c.codec, resp, out)
}

// writeRequest registers respCh and writes data while holding the write lock,
// so pendingOrder matches the order on the wire.
func (c *Client) writeRequest(requestID string, respCh chan *protocol.Envelope, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.requestMu.Lock()
	c.pendingRequests[requestID] = respCh
	c.pendingOrder = append(c.pendingOrder, requestID)
	c.requestMu.Unlock()

	return c.writeLocked(data)
}

// takePending removes a pending request. Each response channel is taken at
// most once, so the buffered send never blocks.
func (c *Client) takePending(requestID string) (chan *protocol.Envelope, bool) {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	respCh, ok := c.pendingRequests[requestID]
	if !ok {
		return nil, false
	}
	delete(c.pendingRequests, requestID)
	c.pendingOrder = slices.DeleteFunc(c.pendingOrder, func(id string) bool { return id == requestID })
	return respCh, true
}

// takeOldest removes the request written first among those still unanswered.
func (c *Client) takeOldest() (chan *protocol.Envelope, bool) {
	c.requestMu.Lock()
	defer c.requestMu.Unlock()

	if len(c.pendingOrder) == 0 {
		return nil, false
	}
	requestID := c.pendingOrder[0]
	c.pendingOrder = c.pendingOrder[1:]
	respCh := c.pendingRequests[requestID]
	delete(c.pendingRequests, requestID)
	return respCh, true
}

func (c *Client) writeLocked(data []byte) error {
	if c.config.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	}
	if err := protocol.WriteFrame(c.conn, data); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	return nil
}

// readPump reads messages from the connection
func (c *Client) readPump(reader *bufio.Reader) {
	defer close(c.doneCh)
	defer c.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected))

	for {
		frame, err := protocol.ReadFrame(reader, c.config.MaxFrameBytes)
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				c.log.Warn("Dropped response: %v", err)
				continue
			}
			select {
			case <-c.stopCh:
			default:
				c.log.Info("Connection lost: %v", err)
			}
			return
		}

		env, err := c.codec.DecodeEnvelope(frame)
		if err != nil {
			c.log.Warn("Failed to parse message: %v", err)
			continue
		}
		c.handleMessage(env)
	}
}

func (c *Client) handleMessage(env *protocol.Envelope) {
	if env.Type == protocol.TypeInviteNotification {
		var invite protocol.InviteNotification
		if err := protocol.DecodePayload(c.codec, env, &invite); err != nil {
			c.log.Warn("Failed to parse invite: %v", err)
			return
		}
		c.inviteMu.Lock()
		callback := c.inviteCallback
		if callback == nil {
			c.invites = append(c.invites, invite)
		}
		c.inviteMu.Unlock()
		if callback != nil {
			callback(invite)
		}
		return
	}

	if env.RequestID == "" {
		if env.Error == nil {
			return
		}
		// A frame the server could not decode has no request ID. Responses come
		// back in order, so it belongs to the oldest unanswered request.
		respCh, ok := c.takeOldest()
		if !ok {
			c.log.Warn("Server reported %s: %s", env.Error.Code, env.Error.Message)
			return
		}
		respCh <- env
		return
	}

	respCh, ok := c.takePending(env.RequestID)
	if !ok {
		c.log.Debug("Response for unknown request %s", env.RequestID)
		return
	}
	respCh <- env
}

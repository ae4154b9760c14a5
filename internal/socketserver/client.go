package socketserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/protocol"
)

// Client is the server side of one connection. It reads requests in a loop and
// answers each one on the same transport before reading the next, so responses
// and invite notifications of one connection are never interleaved.
type Client struct {
	// Connection identifier
	ID string

	transport  Transport
	codec      protocol.Codec
	dispatcher *Dispatcher
	log        *logger.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewClient creates a client handler for transport.
func NewClient(id string, transport Transport, codec protocol.Codec, dispatcher *Dispatcher, log *logger.Logger) *Client {
	return &Client{
		ID:         id,
		transport:  transport,
		codec:      codec,
		dispatcher: dispatcher,
		log:        log,
	}
}

// Serve runs the read loop until the transport breaks or ctx is cancelled.
// Cancellation takes effect once the transport is closed (see Close).
func (c *Client) Serve(ctx context.Context) {
	c.log.Info("Serving %s", c.transport.RemoteAddr())

	for ctx.Err() == nil {
		frame, err := c.transport.ReadFrame()
		if err != nil {
			if errors.Is(err, protocol.ErrFrameTooLarge) {
				c.log.Warn("Rejected frame: %v", err)
				c.SendError("", &protocol.ErrorInfo{Code: protocol.CodeMalformedFrame, Message: err.Error()})
				continue
			}
			switch {
			case errors.Is(err, io.EOF):
				c.log.Info("Client disconnected (EOF)")
			case errors.Is(err, net.ErrClosed):
				c.log.Info("Client connection closed")
			default:
				c.log.Warn("Error reading from client: %v", err)
			}
			return
		}

		env, err := c.codec.DecodeEnvelope(frame)
		if err != nil {
			c.log.Warn("Failed to parse message: %v", err)
			c.SendError("", &protocol.ErrorInfo{Code: protocol.CodeMalformedFrame, Message: "malformed message"})
			continue
		}

		c.dispatcher.Handle(ctx, c, env)
	}
}

// Send encodes and writes one message.
func (c *Client) Send(msgType protocol.Type, requestID string, payload any) error {
	data, err := protocol.Encode(c.codec, msgType, requestID, payload)
	if err != nil {
		return err
	}
	return c.write(data)
}

// SendError writes an error response. Write failures are logged only; the read
// loop notices a broken transport on its next read.
func (c *Client) SendError(requestID string, info *protocol.ErrorInfo) {
	data, err := protocol.EncodeError(c.codec, requestID, info)
	if err == nil {
		err = c.write(data)
	}
	if err != nil {
		c.log.Warn("Failed to send error %s: %v", info.Code, err)
	}
}

func (c *Client) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.transport.WriteFrame(data); err != nil {
		return fmt.Errorf("failed to write to %s: %w", c.ID, err)
	}
	return nil
}

// Close closes the transport, which ends Serve.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		if err := c.transport.Close(); err != nil {
			c.log.Debug("Error closing transport: %v", err)
		}
	})
}

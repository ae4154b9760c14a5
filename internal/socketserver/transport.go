package socketserver

import (
	"bufio"
	"net"
	"sync"
	"time"

	"github.com/codefionn/turing/internal/consts"
	"github.com/codefionn/turing/internal/protocol"
)

// Transport moves whole frames between the server and one client.
//
// ReadFrame returns an error wrapping protocol.ErrFrameTooLarge for a frame above
// the size limit; the transport stays usable. Any other error means the transport
// is broken.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	RemoteAddr() string
	Close() error
}

// StreamTransport frames messages on a byte stream with a 4-byte length prefix.
type StreamTransport struct {
	conn         net.Conn
	reader       *bufio.Reader
	maxFrame     int
	writeTimeout time.Duration

	writeMu sync.Mutex
}

// NewStreamTransport wraps conn. A zero writeTimeout disables write deadlines.
func NewStreamTransport(conn net.Conn, maxFrame int, writeTimeout time.Duration) *StreamTransport {
	return &StreamTransport{
		conn:         conn,
		reader:       bufio.NewReaderSize(conn, consts.BufferSize64KB),
		maxFrame:     maxFrame,
		writeTimeout: writeTimeout,
	}
}

// ReadFrame blocks until a full frame arrived.
func (t *StreamTransport) ReadFrame() ([]byte, error) {
	return protocol.ReadFrame(t.reader, t.maxFrame)
}

// WriteFrame writes one frame. It is safe for concurrent use.
func (t *StreamTransport) WriteFrame(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	return protocol.WriteFrame(t.conn, data)
}

// RemoteAddr returns the peer address.
func (t *StreamTransport) RemoteAddr() string {
	if addr := t.conn.RemoteAddr(); addr != nil {
		return addr.String()
	}
	return "unknown"
}

// Close closes the underlying connection.
func (t *StreamTransport) Close() error {
	return t.conn.Close()
}

package web

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/codefionn/turing/internal/protocol"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// wsTransport carries one protocol frame per websocket message.
type wsTransport struct {
	conn        *websocket.Conn
	maxFrame    int
	messageType int

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func newWSTransport(conn *websocket.Conn, maxFrame int, codec protocol.Codec) *wsTransport {
	messageType := websocket.BinaryMessage
	if codec.Name() == protocol.CodecJSON {
		messageType = websocket.TextMessage
	}

	t := &wsTransport{
		conn:        conn,
		maxFrame:    maxFrame,
		messageType: messageType,
		done:        make(chan struct{}),
	}

	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	go t.pingLoop()
	return t
}

// ReadFrame returns the next message. A message above the size limit is read to
// its end and reported as protocol.ErrFrameTooLarge.
func (t *wsTransport) ReadFrame() ([]byte, error) {
	_, r, err := t.conn.NextReader()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, io.EOF
		}
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(r, int64(t.maxFrame)+1))
	if err != nil {
		return nil, err
	}
	if len(data) > t.maxFrame {
		skipped, err := io.Copy(io.Discard, r)
		if err != nil {
			return nil, fmt.Errorf("failed to skip oversized message: %w", err)
		}
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", protocol.ErrFrameTooLarge, int64(len(data))+skipped, t.maxFrame)
	}
	return data, nil
}

func (t *wsTransport) WriteFrame(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	_ = t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return t.conn.WriteMessage(t.messageType, data)
}

func (t *wsTransport) RemoteAddr() string {
	return t.conn.RemoteAddr().String()
}

func (t *wsTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.done)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); werr != nil && !errors.Is(werr, websocket.ErrCloseSent) {
			err = werr
		}
		if cerr := t.conn.Close(); cerr != nil {
			err = cerr
		}
	})
	return err
}

// pingLoop keeps the read deadline of an idle peer alive.
func (t *wsTransport) pingLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-t.done:
			return
		case <-ticker.C:
			if err := t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

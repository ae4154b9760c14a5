// Package chat exchanges short text messages between the editors of a document.
//
// Every document with an open edit lock owns a multicast group address (see
// package chataddr). Editors send datagrams to that group on the chat port and
// receive everything sent to it. Delivery is best effort, unordered and not
// persisted. A datagram holds one CBOR encoded Message of at most
// consts.ChatDatagramSize bytes.
package chat

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/codefionn/turing/internal/consts"
)

var (
	// ErrMessageTooLarge is returned for a message that does not fit one datagram.
	ErrMessageTooLarge = errors.New("chat message too large")
	// ErrInvalidMessage is returned for a datagram that is not a chat message.
	ErrInvalidMessage = errors.New("invalid chat message")
)

// Message is one chat line.
type Message struct {
	From     string    `cbor:"from"`
	Document string    `cbor:"document"`
	Text     string    `cbor:"text"`
	SentAt   time.Time `cbor:"sent_at"`
}

var encMode = func() cbor.EncMode {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeUnixMicro
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	return mode
}()

// Encode frames m as one datagram.
func Encode(m Message) ([]byte, error) {
	data, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode chat message: %w", err)
	}
	if len(data) > consts.ChatDatagramSize {
		return nil, fmt.Errorf("%w: %d bytes (limit %d)", ErrMessageTooLarge, len(data), consts.ChatDatagramSize)
	}
	return data, nil
}

// Decode parses one datagram.
func Decode(data []byte) (Message, error) {
	var m Message
	if len(data) > consts.ChatDatagramSize {
		return m, fmt.Errorf("%w: %d bytes (limit %d)", ErrMessageTooLarge, len(data), consts.ChatDatagramSize)
	}
	if err := cbor.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	if m.From == "" || m.Document == "" {
		return m, fmt.Errorf("%w: missing sender or document", ErrInvalidMessage)
	}
	return m, nil
}

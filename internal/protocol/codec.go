package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec names accepted by CodecByName.
const (
	CodecJSON = "json"
	CodecCBOR = "cbor"
)

// Codec serializes envelopes and their payloads. Payload bytes inside an envelope
// are always encoded with the same codec as the envelope around them.
type Codec interface {
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	EncodeEnvelope(env *Envelope) ([]byte, error)
	DecodeEnvelope(data []byte) (*Envelope, error)
}

// CodecByName returns the codec called name.
func CodecByName(name string) (Codec, error) {
	switch name {
	case CodecJSON, "":
		return JSONCodec{}, nil
	case CodecCBOR:
		return CBORCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown codec %q", name)
	}
}

// Encode builds and encodes an envelope carrying payload. A nil payload is omitted.
func Encode(c Codec, msgType Type, requestID string, payload any) ([]byte, error) {
	env := &Envelope{Type: msgType, RequestID: requestID}
	if payload != nil {
		raw, err := c.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s payload: %w", msgType, err)
		}
		env.Payload = raw
	}
	return c.EncodeEnvelope(env)
}

// EncodeError builds and encodes an error envelope.
func EncodeError(c Codec, requestID string, info *ErrorInfo) ([]byte, error) {
	return c.EncodeEnvelope(&Envelope{Type: TypeError, RequestID: requestID, Error: info})
}

// DecodePayload decodes the payload of env into v. An absent payload leaves v untouched.
func DecodePayload(c Codec, env *Envelope, v any) error {
	if len(env.Payload) == 0 {
		return nil
	}
	if err := c.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("failed to decode %s payload: %w", env.Type, err)
	}
	return nil
}

// JSONCodec encodes messages as JSON objects.
type JSONCodec struct{}

type jsonEnvelope struct {
	Type      Type            `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
}

func (JSONCodec) Name() string { return CodecJSON }

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

func (JSONCodec) EncodeEnvelope(env *Envelope) ([]byte, error) {
	return json.Marshal(jsonEnvelope{
		Type:      env.Type,
		RequestID: env.RequestID,
		Payload:   env.Payload,
		Error:     env.Error,
	})
}

func (JSONCodec) DecodeEnvelope(data []byte) (*Envelope, error) {
	var wire jsonEnvelope
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &Envelope{Type: wire.Type, RequestID: wire.RequestID, Payload: wire.Payload, Error: wire.Error}, nil
}

// CBORCodec encodes messages as CBOR maps keyed like the JSON form.
type CBORCodec struct{}

type cborEnvelope struct {
	Type      Type            `json:"type"`
	RequestID string          `json:"request_id,omitempty"`
	Payload   cbor.RawMessage `json:"payload,omitempty"`
	Error     *ErrorInfo      `json:"error,omitempty"`
}

func (CBORCodec) Name() string { return CodecCBOR }

func (CBORCodec) Marshal(v any) ([]byte, error) { return cbor.Marshal(v) }

func (CBORCodec) Unmarshal(data []byte, v any) error { return cbor.Unmarshal(data, v) }

func (CBORCodec) EncodeEnvelope(env *Envelope) ([]byte, error) {
	return cbor.Marshal(cborEnvelope{
		Type:      env.Type,
		RequestID: env.RequestID,
		Payload:   env.Payload,
		Error:     env.Error,
	})
}

func (CBORCodec) DecodeEnvelope(data []byte) (*Envelope, error) {
	var wire cborEnvelope
	if err := cbor.Unmarshal(data, &wire); err != nil {
		return nil, err
	}
	if wire.Type == "" {
		return nil, fmt.Errorf("message has no type")
	}
	return &Envelope{Type: wire.Type, RequestID: wire.RequestID, Payload: wire.Payload, Error: wire.Error}, nil
}

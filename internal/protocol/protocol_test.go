package protocol

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/turing/internal/state"
)

func TestCodecsCarryEmbeddedSession(t *testing.T) {
	for _, name := range []string{CodecJSON, CodecCBOR} {
		t.Run(name, func(t *testing.T) {
			c, err := CodecByName(name)
			require.NoError(t, err)

			in := &EndEditRequest{
				Auth:     Auth{Session: "00000000deadbeef"},
				Owner:    "alice",
				Document: "notes",
				Section:  2,
				Text:     "hello\n",
			}
			data, err := Encode(c, in.RequestType(), "req-1", in)
			require.NoError(t, err)

			env, err := c.DecodeEnvelope(data)
			require.NoError(t, err)
			assert.Equal(t, TypeEndEdit, env.Type)
			assert.Equal(t, "req-1", env.RequestID)
			assert.Nil(t, env.Error)

			req, ok := NewRequest(env.Type)
			require.True(t, ok)
			require.NoError(t, DecodePayload(c, env, req))
			assert.Equal(t, in, req)

			authed, ok := req.(Authenticated)
			require.True(t, ok)
			assert.Equal(t, "00000000deadbeef", authed.SessionToken())
		})
	}
}

func TestCodecsErrorEnvelope(t *testing.T) {
	for _, c := range []Codec{JSONCodec{}, CBORCodec{}} {
		t.Run(c.Name(), func(t *testing.T) {
			data, err := EncodeError(c, "req-9", &ErrorInfo{Code: CodeSectionLocked, Message: "busy"})
			require.NoError(t, err)

			env, err := c.DecodeEnvelope(data)
			require.NoError(t, err)
			assert.Equal(t, TypeError, env.Type)
			require.NotNil(t, env.Error)
			assert.Equal(t, CodeSectionLocked, env.Error.Code)
			assert.Equal(t, "busy", env.Error.Message)
		})
	}
}

func TestDecodeEnvelopeRejectsGarbage(t *testing.T) {
	tests := []struct {
		name  string
		codec Codec
		data  []byte
	}{
		{"json not an object", JSONCodec{}, []byte("[1,2")},
		{"json without type", JSONCodec{}, []byte(`{"request_id":"x"}`)},
		{"cbor truncated", CBORCodec{}, []byte{0xa1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.codec.DecodeEnvelope(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestJSONWireShape(t *testing.T) {
	data, err := Encode(JSONCodec{}, TypeLoginResult, "r1", &LoginResult{Session: "abc"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"login_result","request_id":"r1","payload":{"session":"abc"}}`, string(data))
}

func TestUnknownCodec(t *testing.T) {
	_, err := CodecByName("xml")
	assert.Error(t, err)
}

func TestNewRequestUnknownType(t *testing.T) {
	_, ok := NewRequest(TypeAck)
	assert.False(t, ok)
}

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("first")))
	require.NoError(t, WriteFrame(&buf, nil))
	require.NoError(t, WriteFrame(&buf, []byte("third")))

	for _, want := range []string{"first", "", "third"} {
		got, err := ReadFrame(&buf, 64)
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}
	_, err := ReadFrame(&buf, 64)
	assert.ErrorIs(t, err, io.EOF)
}

func TestOversizedFrameIsSkipped(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, bytes.Repeat([]byte("x"), 100)))
	require.NoError(t, WriteFrame(&buf, []byte("next")))

	_, err := ReadFrame(&buf, 10)
	assert.ErrorIs(t, err, ErrFrameTooLarge)

	got, err := ReadFrame(&buf, 10)
	require.NoError(t, err)
	assert.Equal(t, "next", string(got))
}

func TestTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, []byte("complete")))
	truncated := buf.Bytes()[:HeaderSize+3]

	_, err := ReadFrame(bytes.NewReader(truncated), 64)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestErrorCodes(t *testing.T) {
	kinds := []state.Kind{
		state.DuplicateUser, state.InvalidUsername, state.InvalidPassword, state.UnknownUser,
		state.InvalidSession, state.DuplicateDocument, state.DocumentNotFound, state.NotAllowed,
		state.InvalidRequest, state.SectionNotFound, state.SectionLocked, state.AlreadyEditing,
		state.SectionNotLocked, state.WrongEditor, state.ResourcePoolExhausted,
	}
	seen := make(map[string]bool)
	for _, kind := range kinds {
		code := CodeFor(kind)
		assert.NotEqual(t, CodeInternal, code, "kind %s has no code", kind)
		assert.False(t, seen[code], "code %s used twice", code)
		seen[code] = true
		assert.Equal(t, kind, KindFor(code))
	}
	assert.Equal(t, state.Internal, KindFor(CodeMalformedFrame))
}

func TestErrorFor(t *testing.T) {
	info := ErrorFor(fmt.Errorf("wrapped: %w", &state.Error{Kind: state.WrongEditor, Message: "not yours"}))
	assert.Equal(t, CodeWrongEditor, info.Code)
	assert.Equal(t, "wrapped: not yours", info.Message)

	info = ErrorFor(errors.New("database is locked"))
	assert.Equal(t, CodeInternal, info.Code)
	assert.NotContains(t, info.Message, "database")
}

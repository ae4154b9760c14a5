package web

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/turing/internal/chataddr"
	"github.com/codefionn/turing/internal/metrics"
	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/secrets"
	"github.com/codefionn/turing/internal/socketserver"
	"github.com/codefionn/turing/internal/state"
	"github.com/codefionn/turing/internal/storage"
)

type fixture struct {
	dir     *state.Directory
	sockets *socketserver.Server
	metrics *metrics.Collector
	http    *httptest.Server
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	store, err := storage.NewFSStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	pool, err := chataddr.NewPool(chataddr.DefaultNetwork)
	require.NoError(t, err)
	dir := state.NewDirectory(store, pool, state.WithHasher(secrets.NewHasher(secrets.Params{N: 16, R: 8, P: 1})))

	m := metrics.NewCollector(metrics.Namespace)
	sockets := socketserver.NewServer(socketserver.Config{MaxWorkers: 2, MaxConnections: 2, ChatPort: 2000}, dir, m)
	t.Cleanup(func() { _ = sockets.Stop() })

	ts := httptest.NewServer(NewServer(cfg, dir, sockets, m).Handler())
	t.Cleanup(ts.Close)
	return &fixture{dir: dir, sockets: sockets, metrics: m, http: ts}
}

func (f *fixture) register(t *testing.T, body string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Post(f.http.URL+"/v1/users", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func TestRegister(t *testing.T) {
	f := newFixture(t, Config{})

	resp, body := f.register(t, `{"username":"alice","password":"password1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var created RegisterResponse
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "alice", created.Username)

	_, err := f.dir.LookupUser("alice")
	require.NoError(t, err)

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"duplicate", `{"username":"alice","password":"password1"}`, http.StatusConflict, protocol.CodeDuplicateUser},
		{"short username", `{"username":"bob","password":"password1"}`, http.StatusBadRequest, protocol.CodeInvalidUsername},
		{"short password", `{"username":"bobby","password":"short"}`, http.StatusBadRequest, protocol.CodeInvalidPassword},
		{"malformed body", `{"username":`, http.StatusBadRequest, protocol.CodeInvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := f.register(t, tt.body)
			assert.Equal(t, tt.status, resp.StatusCode)
			var failed ErrorResponse
			require.NoError(t, json.Unmarshal(body, &failed))
			assert.Equal(t, tt.code, failed.Error.Code)
		})
	}
}

func TestRegisterMethodNotAllowed(t *testing.T) {
	f := newFixture(t, Config{})

	resp, err := http.Get(f.http.URL + "/v1/users")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, Config{})
	f.register(t, `{"username":"alice","password":"password1"}`)

	resp, err := http.Get(f.http.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	var health map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, "ok", health["status"])
	assert.Equal(t, float64(1), health["users"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, Config{EnableMetrics: true})
	f.register(t, `{"username":"alice","password":"password1"}`)

	resp, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `turing_requests_total{code="OK",type="http_register"} 1`)
}

func TestDisabledEndpoints(t *testing.T) {
	f := newFixture(t, Config{})

	for _, path := range []string{"/metrics", "/v1/ws", "/debug/pprof/"} {
		resp, err := http.Get(f.http.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestPprofEndpoints(t *testing.T) {
	f := newFixture(t, Config{EnablePprof: true})

	for _, path := range []string{"/debug/pprof/", "/debug/pprof/goroutine?debug=1", "/debug/pprof/cmdline"} {
		resp, err := http.Get(f.http.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func dialWS(t *testing.T, f *fixture) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/v1/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func wsCall(t *testing.T, conn *websocket.Conn, req protocol.Request, id string) *protocol.Envelope {
	t.Helper()
	data, err := protocol.Encode(protocol.JSONCodec{}, req.RequestType(), id, req)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
	return wsRead(t, conn)
}

func wsRead(t *testing.T, conn *websocket.Conn) *protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.TextMessage, msgType)
	env, err := protocol.JSONCodec{}.DecodeEnvelope(data)
	require.NoError(t, err)
	return env
}

func TestWebSocketProtocol(t *testing.T) {
	f := newFixture(t, Config{EnableWebsocket: true, MaxFrameBytes: 512})
	conn := dialWS(t, f)

	env := wsCall(t, conn, &protocol.RegisterRequest{Username: "alice", Password: "password1"}, "1")
	require.Nil(t, env.Error)
	assert.Equal(t, protocol.TypeAck, env.Type)
	assert.Equal(t, "1", env.RequestID)

	env = wsCall(t, conn, &protocol.LoginRequest{Username: "alice", Password: "password1"}, "2")
	require.Equal(t, protocol.TypeLoginResult, env.Type)
	var res protocol.LoginResult
	require.NoError(t, protocol.DecodePayload(protocol.JSONCodec{}, env, &res))
	auth := protocol.Auth{Session: res.Session}

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, bytes.Repeat([]byte("x"), 2048)))
	env = wsRead(t, conn)
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeMalformedFrame, env.Error.Code)

	env = wsCall(t, conn, &protocol.CreateDocumentRequest{Auth: auth, Document: "doc", Sections: 2}, "3")
	require.Nil(t, env.Error)

	env = wsCall(t, conn, &protocol.EditSectionRequest{Auth: auth, Owner: "alice", Document: "doc", Section: 1}, "4")
	require.Equal(t, protocol.TypeEditGrant, env.Type)
	assert.Equal(t, 1, f.dir.LockedSections())
}

func TestWebSocketConnectionLimit(t *testing.T) {
	f := newFixture(t, Config{EnableWebsocket: true})
	dialWS(t, f)
	dialWS(t, f)
	require.Eventually(t, func() bool { return f.sockets.GetClientCount() == 2 }, 2*time.Second, 10*time.Millisecond)

	third := dialWS(t, f)
	require.NoError(t, third.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := third.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}

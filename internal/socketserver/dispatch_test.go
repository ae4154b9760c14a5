package socketserver

import (
	"bufio"
	"context"
	"net"
	"net/netip"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/turing/internal/chataddr"
	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/secrets"
	"github.com/codefionn/turing/internal/state"
	"github.com/codefionn/turing/internal/storage"
)

func newTestDirectory(t *testing.T) (*state.Directory, *chataddr.Pool) {
	t.Helper()
	store, err := storage.NewFSStore(afero.NewMemMapFs(), "/data")
	require.NoError(t, err)
	pool, err := chataddr.NewPool(chataddr.DefaultNetwork)
	require.NoError(t, err)
	dir := state.NewDirectory(store, pool, state.WithHasher(secrets.NewHasher(secrets.Params{N: 16, R: 8, P: 1})))
	return dir, pool
}

// peer is the test side of a piped connection.
type peer struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	codec  protocol.Codec
	nextID int
	done   chan struct{}
}

func newPeer(t *testing.T, d *Dispatcher, codec protocol.Codec, maxFrame int) *peer {
	t.Helper()
	serverSide, clientSide := net.Pipe()
	client := NewClient("pipe-"+t.Name(), NewStreamTransport(serverSide, maxFrame, time.Second), codec, d, logger.Global())

	p := &peer{t: t, conn: clientSide, reader: bufio.NewReader(clientSide), codec: codec, done: make(chan struct{})}
	go func() {
		defer close(p.done)
		client.Serve(context.Background())
		client.Close()
	}()
	t.Cleanup(func() {
		clientSide.Close()
		<-p.done
	})
	return p
}

func (p *peer) writeRaw(data []byte) {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetWriteDeadline(time.Now().Add(2*time.Second)))
	require.NoError(p.t, protocol.WriteFrame(p.conn, data))
}

func (p *peer) send(req protocol.Request) string {
	p.t.Helper()
	p.nextID++
	id := "req-" + strconv.Itoa(p.nextID)
	data, err := protocol.Encode(p.codec, req.RequestType(), id, req)
	require.NoError(p.t, err)
	p.writeRaw(data)
	return id
}

func (p *peer) recv() *protocol.Envelope {
	p.t.Helper()
	require.NoError(p.t, p.conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	frame, err := protocol.ReadFrame(p.reader, 0)
	require.NoError(p.t, err)
	env, err := p.codec.DecodeEnvelope(frame)
	require.NoError(p.t, err)
	return env
}

// call sends req and returns its response, collecting invites pushed before it.
func (p *peer) call(req protocol.Request) (*protocol.Envelope, []protocol.InviteNotification) {
	p.t.Helper()
	id := p.send(req)
	var invites []protocol.InviteNotification
	for {
		env := p.recv()
		if env.Type == protocol.TypeInviteNotification {
			var n protocol.InviteNotification
			require.NoError(p.t, protocol.DecodePayload(p.codec, env, &n))
			assert.Empty(p.t, env.RequestID)
			invites = append(invites, n)
			continue
		}
		require.Equal(p.t, id, env.RequestID)
		return env, invites
	}
}

func (p *peer) ok(req protocol.Request, want protocol.Type, out any) {
	p.t.Helper()
	env, _ := p.call(req)
	require.Nil(p.t, env.Error, "%s failed: %+v", req.RequestType(), env.Error)
	require.Equal(p.t, want, env.Type)
	if out != nil {
		require.NoError(p.t, protocol.DecodePayload(p.codec, env, out))
	}
}

func (p *peer) fails(req protocol.Request, code string) {
	p.t.Helper()
	env, _ := p.call(req)
	require.Equal(p.t, protocol.TypeError, env.Type, "%s should fail with %s", req.RequestType(), code)
	require.NotNil(p.t, env.Error)
	assert.Equal(p.t, code, env.Error.Code)
}

// session registers and logs in name, returning the session token.
func (p *peer) session(name string) string {
	p.t.Helper()
	p.ok(&protocol.RegisterRequest{Username: name, Password: "password1"}, protocol.TypeAck, nil)
	var res protocol.LoginResult
	p.ok(&protocol.LoginRequest{Username: name, Password: "password1"}, protocol.TypeLoginResult, &res)
	require.NotEmpty(p.t, res.Session)
	return res.Session
}

func TestEditScenario(t *testing.T) {
	for _, codec := range []protocol.Codec{protocol.JSONCodec{}, protocol.CBORCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			dir, pool := newTestDirectory(t)
			p := newPeer(t, NewDispatcher(dir, 2000, nil), codec, 1<<20)

			token := p.session("alice")
			auth := protocol.Auth{Session: token}
			p.ok(&protocol.CreateDocumentRequest{Auth: auth, Document: "doc", Sections: 3}, protocol.TypeAck, nil)

			var grant protocol.EditGrant
			p.ok(&protocol.EditSectionRequest{Auth: auth, Owner: "alice", Document: "doc", Section: 0}, protocol.TypeEditGrant, &grant)
			addr, err := netip.ParseAddr(grant.ChatAddress)
			require.NoError(t, err)
			assert.True(t, addr.IsMulticast())
			assert.Equal(t, 2000, grant.ChatPort)
			assert.True(t, grant.Section.Locked)
			assert.Equal(t, "alice", grant.Section.Editor)
			assert.Equal(t, 1, pool.InUse())

			p.fails(&protocol.EditSectionRequest{Auth: auth, Owner: "alice", Document: "doc", Section: 1}, protocol.CodeAlreadyEditing)

			p.ok(&protocol.EndEditRequest{Auth: auth, Owner: "alice", Document: "doc", Section: 0, Text: "hello"}, protocol.TypeAck, nil)
			assert.Equal(t, 0, pool.InUse())

			var section protocol.SectionContent
			p.ok(&protocol.ShowSectionRequest{Auth: auth, Owner: "alice", Document: "doc", Section: 0}, protocol.TypeSectionContent, &section)
			assert.Equal(t, "hello", section.Text)
			assert.False(t, section.Locked)
			assert.Equal(t, "alice/doc/0", section.URI)

			var content protocol.DocumentContent
			p.ok(&protocol.ShowDocumentRequest{Auth: auth, Owner: "alice", Document: "doc"}, protocol.TypeDocumentContent, &content)
			assert.Equal(t, "hello", content.Text)
			assert.Len(t, content.Sections, 3)

			p.fails(&protocol.ShowSectionRequest{Auth: auth, Owner: "alice", Document: "doc", Section: 3}, protocol.CodeSectionNotFound)
			p.fails(&protocol.EndEditRequest{Auth: auth, Owner: "alice", Document: "doc", Section: 0}, protocol.CodeSectionNotLocked)

			p.ok(&protocol.LogoutRequest{Auth: auth}, protocol.TypeAck, nil)
			p.fails(&protocol.LogoutRequest{Auth: auth}, protocol.CodeInvalidSession)
		})
	}
}

func TestInviteScenario(t *testing.T) {
	dir, _ := newTestDirectory(t)
	d := NewDispatcher(dir, 2000, nil)
	alice := newPeer(t, d, protocol.JSONCodec{}, 1<<20)
	bobby := newPeer(t, d, protocol.JSONCodec{}, 1<<20)

	aliceAuth := protocol.Auth{Session: alice.session("alice")}
	bobby.ok(&protocol.RegisterRequest{Username: "bobby", Password: "password1"}, protocol.TypeAck, nil)

	alice.ok(&protocol.CreateDocumentRequest{Auth: aliceAuth, Document: "doc", Sections: 2}, protocol.TypeAck, nil)
	alice.fails(&protocol.InviteRequest{Auth: aliceAuth, Document: "doc", Collaborator: "alice"}, protocol.CodeInvalidRequest)
	alice.fails(&protocol.InviteRequest{Auth: aliceAuth, Document: "doc", Collaborator: "nobody"}, protocol.CodeUnknownUser)
	alice.fails(&protocol.InviteRequest{Auth: aliceAuth, Document: "missing", Collaborator: "bobby"}, protocol.CodeDocumentNotFound)

	env, invites := alice.call(&protocol.InviteRequest{Auth: aliceAuth, Document: "doc", Collaborator: "bobby"})
	require.Nil(t, env.Error)
	assert.Empty(t, invites, "the inviter receives no notification")

	env, invites = bobby.call(&protocol.LoginRequest{Username: "bobby", Password: "password1"})
	require.Equal(t, protocol.TypeLoginResult, env.Type)
	require.Len(t, invites, 1, "the invite is flushed before the login response")
	assert.Equal(t, "alice/doc", invites[0].URI)
	assert.Equal(t, []string{"bobby"}, invites[0].Collaborators)

	var res protocol.LoginResult
	require.NoError(t, protocol.DecodePayload(bobby.codec, env, &res))
	bobbyAuth := protocol.Auth{Session: res.Session}

	var list protocol.DocumentList
	bobby.ok(&protocol.ListDocumentsRequest{Auth: bobbyAuth}, protocol.TypeDocumentList, &list)
	require.Len(t, list.Documents, 1)
	assert.Equal(t, "alice/doc", list.Documents[0].URI)
	assert.Equal(t, 2, list.Documents[0].Sections)

	var grant protocol.EditGrant
	bobby.ok(&protocol.EditSectionRequest{Auth: bobbyAuth, Owner: "alice", Document: "doc", Section: 1}, protocol.TypeEditGrant, &grant)
	alice.fails(&protocol.EditSectionRequest{Auth: aliceAuth, Owner: "alice", Document: "doc", Section: 1}, protocol.CodeSectionLocked)
	alice.fails(&protocol.EndEditRequest{Auth: aliceAuth, Owner: "alice", Document: "doc", Section: 1, Text: "x"}, protocol.CodeWrongEditor)
}

func TestNotAllowed(t *testing.T) {
	dir, _ := newTestDirectory(t)
	d := NewDispatcher(dir, 2000, nil)
	alice := newPeer(t, d, protocol.JSONCodec{}, 1<<20)
	carol := newPeer(t, d, protocol.JSONCodec{}, 1<<20)

	aliceAuth := protocol.Auth{Session: alice.session("alice")}
	carolAuth := protocol.Auth{Session: carol.session("carol")}
	alice.ok(&protocol.CreateDocumentRequest{Auth: aliceAuth, Document: "private", Sections: 1}, protocol.TypeAck, nil)

	carol.fails(&protocol.ShowDocumentRequest{Auth: carolAuth, Owner: "alice", Document: "private"}, protocol.CodeNotAllowed)
	carol.fails(&protocol.EditSectionRequest{Auth: carolAuth, Owner: "alice", Document: "private"}, protocol.CodeNotAllowed)
	carol.fails(&protocol.ShowDocumentRequest{Auth: carolAuth, Owner: "nobody", Document: "private"}, protocol.CodeUnknownUser)
}

func TestRequestErrors(t *testing.T) {
	dir, _ := newTestDirectory(t)
	p := newPeer(t, NewDispatcher(dir, 2000, nil), protocol.JSONCodec{}, 1<<20)

	tests := []struct {
		name string
		req  protocol.Request
		code string
	}{
		{"no session", &protocol.ListDocumentsRequest{}, protocol.CodeInvalidSession},
		{"unknown session", &protocol.ListDocumentsRequest{Auth: protocol.Auth{Session: "00000000000000ff"}}, protocol.CodeInvalidSession},
		{"short username", &protocol.RegisterRequest{Username: "bob", Password: "password1"}, protocol.CodeInvalidUsername},
		{"short password", &protocol.RegisterRequest{Username: "bobby", Password: "pw"}, protocol.CodeInvalidPassword},
		{"unknown user login", &protocol.LoginRequest{Username: "nobody", Password: "password1"}, protocol.CodeUnknownUser},
	}
	for _, tt := range tests {
		env, _ := p.call(tt.req)
		require.NotNil(t, env.Error, tt.name)
		assert.Equal(t, tt.code, env.Error.Code, tt.name)
	}
}

func TestMalformedFramesKeepConnection(t *testing.T) {
	dir, _ := newTestDirectory(t)
	p := newPeer(t, NewDispatcher(dir, 2000, nil), protocol.JSONCodec{}, 256)

	p.writeRaw([]byte("{not json"))
	env := p.recv()
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeMalformedFrame, env.Error.Code)

	p.writeRaw(make([]byte, 1024))
	env = p.recv()
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeMalformedFrame, env.Error.Code)

	p.writeRaw([]byte(`{"type":"teleport","request_id":"x"}`))
	env = p.recv()
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeUnknownRequest, env.Error.Code)
	assert.Equal(t, "x", env.RequestID)

	p.writeRaw([]byte(`{"type":"login","request_id":"y","payload":{"username":42}}`))
	env = p.recv()
	require.NotNil(t, env.Error)
	assert.Equal(t, protocol.CodeInvalidRequest, env.Error.Code)

	p.ok(&protocol.RegisterRequest{Username: "alice", Password: "password1"}, protocol.TypeAck, nil)
}

func TestBrokenTransportEndsLoop(t *testing.T) {
	dir, _ := newTestDirectory(t)
	p := newPeer(t, NewDispatcher(dir, 2000, nil), protocol.JSONCodec{}, 1<<20)

	p.conn.Close()
	select {
	case <-p.done:
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not stop after the peer closed")
	}
}

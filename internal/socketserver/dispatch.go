package socketserver

import (
	"context"
	"time"

	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/metrics"
	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/state"
)

// call is one request in flight.
type call struct {
	client *Client
	req    protocol.Request
	// user and token are set for authenticated requests and after a login.
	user  *state.User
	token state.Token
}

// operation runs one request type and returns the response type and payload.
type operation struct {
	authenticated bool
	run           func(ctx context.Context, c *call) (protocol.Type, any, error)
}

// Dispatcher executes requests against the shared directory. One dispatcher
// serves every connection of a server.
type Dispatcher struct {
	dir      *state.Directory
	chatPort int
	metrics  *metrics.Collector
	log      *logger.Logger
	ops      map[protocol.Type]operation
}

// NewDispatcher creates a dispatcher. chatPort is reported with every edit grant.
func NewDispatcher(dir *state.Directory, chatPort int, m *metrics.Collector) *Dispatcher {
	d := &Dispatcher{
		dir:      dir,
		chatPort: chatPort,
		metrics:  m,
		log:      logger.Global().WithPrefix("dispatch"),
	}
	d.ops = map[protocol.Type]operation{
		protocol.TypeRegister:       {run: d.register},
		protocol.TypeLogin:          {run: d.login},
		protocol.TypeLogout:         {authenticated: true, run: d.logout},
		protocol.TypeCreateDocument: {authenticated: true, run: d.createDocument},
		protocol.TypeInvite:         {authenticated: true, run: d.invite},
		protocol.TypeListDocuments:  {authenticated: true, run: d.listDocuments},
		protocol.TypeShowDocument:   {authenticated: true, run: d.showDocument},
		protocol.TypeShowSection:    {authenticated: true, run: d.showSection},
		protocol.TypeEditSection:    {authenticated: true, run: d.editSection},
		protocol.TypeEndEdit:        {authenticated: true, run: d.endEdit},
	}
	return d
}

// Handle runs one request and writes its answer. The operation is fully applied
// first, then the acting user's pending invites are sent, then the response.
func (d *Dispatcher) Handle(ctx context.Context, client *Client, env *protocol.Envelope) {
	start := time.Now()
	code := "OK"
	defer func() {
		d.metrics.ObserveRequest(string(env.Type), code, time.Since(start))
	}()

	fail := func(info *protocol.ErrorInfo) {
		code = info.Code
		client.SendError(env.RequestID, info)
	}

	op, ok := d.ops[env.Type]
	req, known := protocol.NewRequest(env.Type)
	if !ok || !known {
		fail(&protocol.ErrorInfo{Code: protocol.CodeUnknownRequest, Message: "unknown request type " + string(env.Type)})
		return
	}
	if err := protocol.DecodePayload(client.codec, env, req); err != nil {
		fail(&protocol.ErrorInfo{Code: protocol.CodeInvalidRequest, Message: err.Error()})
		return
	}

	c := &call{client: client, req: req}
	if op.authenticated {
		if err := d.authenticate(c); err != nil {
			fail(protocol.ErrorFor(err))
			return
		}
	}

	respType, payload, err := op.run(ctx, c)
	if c.user != nil {
		d.flushInvites(client, c.user)
	}
	if err != nil {
		if state.KindOf(err) == state.Internal {
			client.log.Error("%s failed: %v", env.Type, err)
		} else {
			client.log.Debug("%s rejected: %v", env.Type, err)
		}
		fail(protocol.ErrorFor(err))
		return
	}

	if err := client.Send(respType, env.RequestID, payload); err != nil {
		client.log.Warn("Failed to send %s response: %v", respType, err)
	}
}

func (d *Dispatcher) authenticate(c *call) error {
	authed, ok := c.req.(protocol.Authenticated)
	if !ok {
		return &state.Error{Kind: state.InvalidSession, Message: "request carries no session"}
	}
	token, err := state.ParseToken(authed.SessionToken())
	if err != nil {
		return err
	}
	user, err := d.dir.ResolveSession(token)
	if err != nil {
		return err
	}
	c.user = user
	c.token = token
	return nil
}

// flushInvites delivers the user's pending invites on this connection.
func (d *Dispatcher) flushInvites(client *Client, user *state.User) {
	delivered, dropped := user.FlushInbox(func(inv state.Invite) error {
		uri := inv.URI()
		return client.Send(protocol.TypeInviteNotification, "", &protocol.InviteNotification{
			URI:           uri.String(),
			Owner:         uri.Owner,
			Document:      uri.Document,
			Collaborators: inv.Collaborators(),
		})
	})
	if delivered+dropped > 0 {
		d.metrics.InvitesFlushed(delivered, dropped)
	}
}

func (d *Dispatcher) register(ctx context.Context, c *call) (protocol.Type, any, error) {
	req := c.req.(*protocol.RegisterRequest)
	if _, err := d.dir.Register(ctx, req.Username, req.Password); err != nil {
		return "", nil, err
	}
	return protocol.TypeAck, &protocol.Ack{}, nil
}

func (d *Dispatcher) login(_ context.Context, c *call) (protocol.Type, any, error) {
	req := c.req.(*protocol.LoginRequest)
	token, user, err := d.dir.Login(req.Username, req.Password, c.client.ID)
	if err != nil {
		return "", nil, err
	}
	c.user = user
	c.token = token
	return protocol.TypeLoginResult, &protocol.LoginResult{Session: token.String()}, nil
}

func (d *Dispatcher) logout(_ context.Context, c *call) (protocol.Type, any, error) {
	if err := d.dir.Logout(c.token); err != nil {
		return "", nil, err
	}
	return protocol.TypeAck, &protocol.Ack{}, nil
}

func (d *Dispatcher) createDocument(ctx context.Context, c *call) (protocol.Type, any, error) {
	req := c.req.(*protocol.CreateDocumentRequest)
	if _, err := c.user.CreateDocument(ctx, req.Document, req.Sections); err != nil {
		return "", nil, err
	}
	return protocol.TypeAck, &protocol.Ack{}, nil
}

func (d *Dispatcher) invite(ctx context.Context, c *call) (protocol.Type, any, error) {
	req := c.req.(*protocol.InviteRequest)
	target, err := d.dir.LookupUser(req.Collaborator)
	if err != nil {
		return "", nil, err
	}
	if target == c.user {
		return "", nil, &state.Error{Kind: state.InvalidRequest, Message: "cannot share a document with its owner"}
	}
	doc, err := c.user.AccessibleDocument(c.user, req.Document)
	if err != nil {
		return "", nil, err
	}
	if err := doc.InviteCollaborator(ctx, target); err != nil {
		return "", nil, err
	}
	return protocol.TypeAck, &protocol.Ack{}, nil
}

func (d *Dispatcher) listDocuments(_ context.Context, c *call) (protocol.Type, any, error) {
	docs := c.user.Documents()
	list := &protocol.DocumentList{Documents: make([]protocol.DocumentInfo, 0, len(docs))}
	for _, doc := range docs {
		uri := doc.URI()
		list.Documents = append(list.Documents, protocol.DocumentInfo{
			URI:           uri.String(),
			Owner:         uri.Owner,
			Document:      uri.Document,
			Sections:      doc.SectionCount(),
			Collaborators: doc.Collaborators(),
		})
	}
	return protocol.TypeDocumentList, list, nil
}

// document resolves owner/name for the acting user.
func (d *Dispatcher) document(c *call, owner, name string) (*state.Document, error) {
	u, err := d.dir.LookupUser(owner)
	if err != nil {
		return nil, err
	}
	return u.AccessibleDocument(c.user, name)
}

func (d *Dispatcher) showDocument(_ context.Context, c *call) (protocol.Type, any, error) {
	req := c.req.(*protocol.ShowDocumentRequest)
	doc, err := d.document(c, req.Owner, req.Document)
	if err != nil {
		return "", nil, err
	}
	view := doc.View()
	content := &protocol.DocumentContent{
		URI:      view.URI.String(),
		Text:     view.Text(),
		Sections: make([]protocol.SectionContent, len(view.Sections)),
	}
	for i, s := range view.Sections {
		content.Sections[i] = sectionContent(s)
	}
	return protocol.TypeDocumentContent, content, nil
}

func (d *Dispatcher) showSection(_ context.Context, c *call) (protocol.Type, any, error) {
	req := c.req.(*protocol.ShowSectionRequest)
	doc, err := d.document(c, req.Owner, req.Document)
	if err != nil {
		return "", nil, err
	}
	view, err := doc.Section(req.Section)
	if err != nil {
		return "", nil, err
	}
	content := sectionContent(view)
	return protocol.TypeSectionContent, &content, nil
}

func (d *Dispatcher) editSection(_ context.Context, c *call) (protocol.Type, any, error) {
	req := c.req.(*protocol.EditSectionRequest)
	doc, err := d.document(c, req.Owner, req.Document)
	if err != nil {
		return "", nil, err
	}
	grant, err := doc.LockSection(c.user, req.Section)
	if err != nil {
		return "", nil, err
	}
	return protocol.TypeEditGrant, &protocol.EditGrant{
		Section:     sectionContent(grant.Section),
		ChatAddress: grant.ChatAddress.String(),
		ChatPort:    d.chatPort,
	}, nil
}

func (d *Dispatcher) endEdit(ctx context.Context, c *call) (protocol.Type, any, error) {
	req := c.req.(*protocol.EndEditRequest)
	doc, err := d.document(c, req.Owner, req.Document)
	if err != nil {
		return "", nil, err
	}
	if err := doc.UnlockSection(ctx, c.user, req.Section, req.Text); err != nil {
		return "", nil, err
	}
	return protocol.TypeAck, &protocol.Ack{}, nil
}

func sectionContent(v state.SectionView) protocol.SectionContent {
	return protocol.SectionContent{
		URI:     v.URI.String(),
		Section: v.URI.Section,
		Text:    v.Text,
		Locked:  v.Locked(),
		Editor:  v.Editor,
	}
}

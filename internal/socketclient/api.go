package socketclient

import (
	"context"

	"github.com/codefionn/turing/internal/protocol"
)

// Register creates a user.
func (c *Client) Register(ctx context.Context, username, password string) error {
	return c.call(ctx, &protocol.RegisterRequest{Username: username, Password: password}, protocol.TypeAck, nil)
}

// Login opens a session. Later requests of this client run under it.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	var result protocol.LoginResult
	if err := c.call(ctx, &protocol.LoginRequest{Username: username, Password: password}, protocol.TypeLoginResult, &result); err != nil {
		return "", err
	}
	c.session.Store(result.Session)
	return result.Session, nil
}

// Logout closes the current session.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.call(ctx, &protocol.LogoutRequest{Auth: c.auth()}, protocol.TypeAck, nil); err != nil {
		return err
	}
	c.session.Store("")
	return nil
}

// CreateDocument creates a document with the given number of empty sections.
func (c *Client) CreateDocument(ctx context.Context, name string, sections int) error {
	req := &protocol.CreateDocumentRequest{Auth: c.auth(), Document: name, Sections: sections}
	return c.call(ctx, req, protocol.TypeAck, nil)
}

// Invite shares an owned document with collaborator.
func (c *Client) Invite(ctx context.Context, document, collaborator string) error {
	req := &protocol.InviteRequest{Auth: c.auth(), Document: document, Collaborator: collaborator}
	return c.call(ctx, req, protocol.TypeAck, nil)
}

// ListDocuments lists owned documents followed by shared ones.
func (c *Client) ListDocuments(ctx context.Context) ([]protocol.DocumentInfo, error) {
	var list protocol.DocumentList
	if err := c.call(ctx, &protocol.ListDocumentsRequest{Auth: c.auth()}, protocol.TypeDocumentList, &list); err != nil {
		return nil, err
	}
	return list.Documents, nil
}

// ShowDocument reads a whole document.
func (c *Client) ShowDocument(ctx context.Context, owner, document string) (*protocol.DocumentContent, error) {
	var content protocol.DocumentContent
	req := &protocol.ShowDocumentRequest{Auth: c.auth(), Owner: owner, Document: document}
	if err := c.call(ctx, req, protocol.TypeDocumentContent, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// ShowSection reads one section and its lock state.
func (c *Client) ShowSection(ctx context.Context, owner, document string, section int) (*protocol.SectionContent, error) {
	var content protocol.SectionContent
	req := &protocol.ShowSectionRequest{Auth: c.auth(), Owner: owner, Document: document, Section: section}
	if err := c.call(ctx, req, protocol.TypeSectionContent, &content); err != nil {
		return nil, err
	}
	return &content, nil
}

// EditSection locks a section. The grant names the chat group of the document.
func (c *Client) EditSection(ctx context.Context, owner, document string, section int) (*protocol.EditGrant, error) {
	var grant protocol.EditGrant
	req := &protocol.EditSectionRequest{Auth: c.auth(), Owner: owner, Document: document, Section: section}
	if err := c.call(ctx, req, protocol.TypeEditGrant, &grant); err != nil {
		return nil, err
	}
	return &grant, nil
}

// EndEdit stores text in a locked section and unlocks it.
func (c *Client) EndEdit(ctx context.Context, owner, document string, section int, text string) error {
	req := &protocol.EndEditRequest{Auth: c.auth(), Owner: owner, Document: document, Section: section, Text: text}
	return c.call(ctx, req, protocol.TypeAck, nil)
}

func (c *Client) auth() protocol.Auth {
	return protocol.Auth{Session: c.Session()}
}

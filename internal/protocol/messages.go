// Package protocol defines the request/response messages exchanged between clients
// and the server, the error codes they carry, the codecs that encode them and the
// length-prefixed framing on stream transports.
package protocol

// Type tags every message on the wire.
type Type string

// Request types
const (
	TypeRegister       Type = "register"
	TypeLogin          Type = "login"
	TypeLogout         Type = "logout"
	TypeCreateDocument Type = "create_document"
	TypeInvite         Type = "invite_collaborator"
	TypeListDocuments  Type = "list_documents"
	TypeShowDocument   Type = "show_document"
	TypeShowSection    Type = "show_section"
	TypeEditSection    Type = "edit_section"
	TypeEndEdit        Type = "end_edit"
)

// Response types
const (
	TypeAck             Type = "ack"
	TypeLoginResult     Type = "login_result"
	TypeDocumentList    Type = "document_list"
	TypeDocumentContent Type = "document_content"
	TypeSectionContent  Type = "section_content"
	TypeEditGrant       Type = "edit_grant"
	TypeError           Type = "error"

	// TypeInviteNotification is sent unsolicited, outside any request/response pair.
	TypeInviteNotification Type = "invite_notification"
)

// Envelope is the outer structure of every message. Payload holds the message body
// encoded with the same codec as the envelope.
type Envelope struct {
	Type      Type
	RequestID string
	Payload   []byte
	Error     *ErrorInfo
}

// ErrorInfo describes a failed request.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Request is implemented by every request payload.
type Request interface {
	RequestType() Type
}

// Authenticated requests carry the session token of a logged-in user.
type Authenticated interface {
	Request
	SessionToken() string
}

// Auth is embedded in every request that needs a session.
type Auth struct {
	Session string `json:"session"`
}

// SessionToken returns the session the request runs under.
func (a Auth) SessionToken() string {
	return a.Session
}

// RegisterRequest creates a user without a session.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginRequest opens a session.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LogoutRequest closes the session it carries.
type LogoutRequest struct {
	Auth
}

// CreateDocumentRequest creates a document owned by the session user.
type CreateDocumentRequest struct {
	Auth
	Document string `json:"document"`
	Sections int    `json:"sections"`
}

// InviteRequest shares an owned document with another user.
type InviteRequest struct {
	Auth
	Document     string `json:"document"`
	Collaborator string `json:"collaborator"`
}

// ListDocumentsRequest lists owned and shared documents.
type ListDocumentsRequest struct {
	Auth
}

// ShowDocumentRequest reads a whole document.
type ShowDocumentRequest struct {
	Auth
	Owner    string `json:"owner"`
	Document string `json:"document"`
}

// ShowSectionRequest reads one section.
type ShowSectionRequest struct {
	Auth
	Owner    string `json:"owner"`
	Document string `json:"document"`
	Section  int    `json:"section"`
}

// EditSectionRequest locks a section for editing.
type EditSectionRequest struct {
	Auth
	Owner    string `json:"owner"`
	Document string `json:"document"`
	Section  int    `json:"section"`
}

// EndEditRequest commits text and unlocks the section.
type EndEditRequest struct {
	Auth
	Owner    string `json:"owner"`
	Document string `json:"document"`
	Section  int    `json:"section"`
	Text     string `json:"text"`
}

func (*RegisterRequest) RequestType() Type       { return TypeRegister }
func (*LoginRequest) RequestType() Type          { return TypeLogin }
func (*LogoutRequest) RequestType() Type         { return TypeLogout }
func (*CreateDocumentRequest) RequestType() Type { return TypeCreateDocument }
func (*InviteRequest) RequestType() Type         { return TypeInvite }
func (*ListDocumentsRequest) RequestType() Type  { return TypeListDocuments }
func (*ShowDocumentRequest) RequestType() Type   { return TypeShowDocument }
func (*ShowSectionRequest) RequestType() Type    { return TypeShowSection }
func (*EditSectionRequest) RequestType() Type    { return TypeEditSection }
func (*EndEditRequest) RequestType() Type        { return TypeEndEdit }

var requestTable = map[Type]func() Request{
	TypeRegister:       func() Request { return &RegisterRequest{} },
	TypeLogin:          func() Request { return &LoginRequest{} },
	TypeLogout:         func() Request { return &LogoutRequest{} },
	TypeCreateDocument: func() Request { return &CreateDocumentRequest{} },
	TypeInvite:         func() Request { return &InviteRequest{} },
	TypeListDocuments:  func() Request { return &ListDocumentsRequest{} },
	TypeShowDocument:   func() Request { return &ShowDocumentRequest{} },
	TypeShowSection:    func() Request { return &ShowSectionRequest{} },
	TypeEditSection:    func() Request { return &EditSectionRequest{} },
	TypeEndEdit:        func() Request { return &EndEditRequest{} },
}

// NewRequest returns an empty request payload for t.
func NewRequest(t Type) (Request, bool) {
	newFn, ok := requestTable[t]
	if !ok {
		return nil, false
	}
	return newFn(), true
}

// Ack acknowledges a request without returning data.
type Ack struct{}

// LoginResult carries the new session token.
type LoginResult struct {
	Session string `json:"session"`
}

// DocumentInfo describes one listed document.
type DocumentInfo struct {
	URI           string   `json:"uri"`
	Owner         string   `json:"owner"`
	Document      string   `json:"document"`
	Sections      int      `json:"sections"`
	Collaborators []string `json:"collaborators"`
}

// DocumentList lists owned documents followed by shared ones.
type DocumentList struct {
	Documents []DocumentInfo `json:"documents"`
}

// SectionContent is one section and its lock state.
type SectionContent struct {
	URI     string `json:"uri"`
	Section int    `json:"section"`
	Text    string `json:"text"`
	Locked  bool   `json:"locked"`
	Editor  string `json:"editor,omitempty"`
}

// DocumentContent is the full text of a document together with its sections.
type DocumentContent struct {
	URI      string           `json:"uri"`
	Text     string           `json:"text"`
	Sections []SectionContent `json:"sections"`
}

// EditGrant is returned for a newly locked section. Chat messages for the
// document are exchanged on ChatAddress:ChatPort.
type EditGrant struct {
	Section     SectionContent `json:"section"`
	ChatAddress string         `json:"chat_address"`
	ChatPort    int            `json:"chat_port"`
}

// InviteNotification tells a user they may now access a document.
type InviteNotification struct {
	URI           string   `json:"uri"`
	Owner         string   `json:"owner"`
	Document      string   `json:"document"`
	Collaborators []string `json:"collaborators"`
}

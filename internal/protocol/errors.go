package protocol

import (
	"github.com/codefionn/turing/internal/state"
)

// Error codes carried in ErrorInfo.Code. They are stable and clients match on them.
const (
	CodeDuplicateUser         = "DUPLICATE_USER"
	CodeInvalidUsername       = "INVALID_USERNAME"
	CodeInvalidPassword       = "INVALID_PASSWORD"
	CodeUnknownUser           = "UNKNOWN_USER"
	CodeInvalidSession        = "INVALID_SESSION"
	CodeDuplicateDocument     = "DUPLICATE_DOCUMENT"
	CodeDocumentNotFound      = "DOCUMENT_NOT_FOUND"
	CodeNotAllowed            = "NOT_ALLOWED"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeSectionNotFound       = "SECTION_NOT_FOUND"
	CodeSectionLocked         = "SECTION_LOCKED"
	CodeAlreadyEditing        = "ALREADY_EDITING"
	CodeSectionNotLocked      = "SECTION_NOT_LOCKED"
	CodeWrongEditor           = "WRONG_EDITOR"
	CodeResourcePoolExhausted = "RESOURCE_POOL_EXHAUSTED"

	// Transport level
	CodeMalformedFrame = "MALFORMED_FRAME"
	CodeUnknownRequest = "UNKNOWN_REQUEST"
	CodeInternal       = "INTERNAL_ERROR"
)

var kindCodes = map[state.Kind]string{
	state.Internal:              CodeInternal,
	state.DuplicateUser:         CodeDuplicateUser,
	state.InvalidUsername:       CodeInvalidUsername,
	state.InvalidPassword:       CodeInvalidPassword,
	state.UnknownUser:           CodeUnknownUser,
	state.InvalidSession:        CodeInvalidSession,
	state.DuplicateDocument:     CodeDuplicateDocument,
	state.DocumentNotFound:      CodeDocumentNotFound,
	state.NotAllowed:            CodeNotAllowed,
	state.InvalidRequest:        CodeInvalidRequest,
	state.SectionNotFound:       CodeSectionNotFound,
	state.SectionLocked:         CodeSectionLocked,
	state.AlreadyEditing:        CodeAlreadyEditing,
	state.SectionNotLocked:      CodeSectionNotLocked,
	state.WrongEditor:           CodeWrongEditor,
	state.ResourcePoolExhausted: CodeResourcePoolExhausted,
}

var codeKinds = func() map[string]state.Kind {
	m := make(map[string]state.Kind, len(kindCodes))
	for kind, code := range kindCodes {
		m[code] = kind
	}
	return m
}()

// CodeFor returns the wire code of kind.
func CodeFor(kind state.Kind) string {
	if code, ok := kindCodes[kind]; ok {
		return code
	}
	return CodeInternal
}

// KindFor maps a wire code back to its kind. Transport codes map to Internal.
func KindFor(code string) state.Kind {
	if kind, ok := codeKinds[code]; ok {
		return kind
	}
	return state.Internal
}

// ErrorFor converts an operation error into its wire form. Internal failures do not
// leak their message to the client.
func ErrorFor(err error) *ErrorInfo {
	kind := state.KindOf(err)
	if kind == state.Internal {
		return &ErrorInfo{Code: CodeInternal, Message: "internal server error"}
	}
	return &ErrorInfo{Code: CodeFor(kind), Message: err.Error()}
}

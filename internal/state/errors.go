package state

import (
	"errors"
	"fmt"
)

// Kind classifies a failure of a domain operation.
type Kind int

const (
	// Internal covers everything that is not a domain failure (I/O, corrupt credentials).
	Internal Kind = iota
	DuplicateUser
	InvalidUsername
	InvalidPassword
	UnknownUser
	InvalidSession
	DuplicateDocument
	DocumentNotFound
	NotAllowed
	InvalidRequest
	SectionNotFound
	SectionLocked
	AlreadyEditing
	SectionNotLocked
	WrongEditor
	ResourcePoolExhausted
)

var kindNames = map[Kind]string{
	Internal:              "internal",
	DuplicateUser:         "duplicate user",
	InvalidUsername:       "invalid username",
	InvalidPassword:       "invalid password",
	UnknownUser:           "unknown user",
	InvalidSession:        "invalid session",
	DuplicateDocument:     "duplicate document",
	DocumentNotFound:      "document not found",
	NotAllowed:            "not allowed",
	InvalidRequest:        "invalid request",
	SectionNotFound:       "section not found",
	SectionLocked:         "section locked",
	AlreadyEditing:        "already editing",
	SectionNotLocked:      "section not locked",
	WrongEditor:           "wrong editor",
	ResourcePoolExhausted: "resource pool exhausted",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a typed domain failure. Two errors match with errors.Is when their kinds match.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Kind.String()
	}
	return e.Message
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrDuplicateUser         = &Error{Kind: DuplicateUser}
	ErrInvalidUsername       = &Error{Kind: InvalidUsername}
	ErrInvalidPassword       = &Error{Kind: InvalidPassword}
	ErrUnknownUser           = &Error{Kind: UnknownUser}
	ErrInvalidSession        = &Error{Kind: InvalidSession}
	ErrDuplicateDocument     = &Error{Kind: DuplicateDocument}
	ErrDocumentNotFound      = &Error{Kind: DocumentNotFound}
	ErrNotAllowed            = &Error{Kind: NotAllowed}
	ErrInvalidRequest        = &Error{Kind: InvalidRequest}
	ErrSectionNotFound       = &Error{Kind: SectionNotFound}
	ErrSectionLocked         = &Error{Kind: SectionLocked}
	ErrAlreadyEditing        = &Error{Kind: AlreadyEditing}
	ErrSectionNotLocked      = &Error{Kind: SectionNotLocked}
	ErrWrongEditor           = &Error{Kind: WrongEditor}
	ErrResourcePoolExhausted = &Error{Kind: ResourcePoolExhausted}
)

func newError(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf classifies err. Errors that are not domain errors are Internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Internal
}

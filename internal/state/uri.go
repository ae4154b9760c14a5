package state

import (
	"strconv"
	"strings"
)

// URI names a document (owner/doc) or one of its sections (owner/doc/index).
type URI struct {
	Owner    string
	Document string
	// Section is the section index, or -1 when the URI names the whole document.
	Section int
}

// DocumentURI returns the URI of a whole document.
func DocumentURI(owner, document string) URI {
	return URI{Owner: owner, Document: document, Section: -1}
}

// SectionURI returns the URI of section index of a document.
func SectionURI(owner, document string, index int) URI {
	return URI{Owner: owner, Document: document, Section: index}
}

// IsSection reports whether u names a single section.
func (u URI) IsSection() bool {
	return u.Section >= 0
}

// DocumentOf strips the section index.
func (u URI) DocumentOf() URI {
	return DocumentURI(u.Owner, u.Document)
}

func (u URI) String() string {
	if u.IsSection() {
		return u.Owner + "/" + u.Document + "/" + strconv.Itoa(u.Section)
	}
	return u.Owner + "/" + u.Document
}

// ParseURI parses "owner/doc" or "owner/doc/index".
func ParseURI(s string) (URI, error) {
	parts := strings.Split(s, "/")
	if len(parts) < 2 || len(parts) > 3 || parts[0] == "" || parts[1] == "" {
		return URI{}, newError(InvalidRequest, "malformed uri %q", s)
	}
	if len(parts) == 2 {
		return DocumentURI(parts[0], parts[1]), nil
	}
	index, err := strconv.Atoi(parts[2])
	if err != nil || index < 0 {
		return URI{}, newError(InvalidRequest, "malformed section index in uri %q", s)
	}
	return SectionURI(parts[0], parts[1], index), nil
}

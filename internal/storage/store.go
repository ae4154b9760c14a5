// Package storage persists users, section texts and collaborator lists.
//
// The store is a durable blob store keyed by user, document and section. The
// in-memory state in package state is authoritative while the server runs; the
// store is written before a mutation is acknowledged and read once at boot.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Drivers accepted by Open.
const (
	DriverSQLite = "sqlite"
	DriverFS     = "fs"
)

var (
	// ErrExists is returned when creating a user that is already stored.
	ErrExists = errors.New("already exists")
	// ErrInvalidKey is returned for names that cannot be used as storage keys.
	ErrInvalidKey = errors.New("invalid storage key")
)

// SectionKey identifies one section blob.
type SectionKey struct {
	Owner    string
	Document string
	Index    int
}

func (k SectionKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Owner, k.Document, k.Index)
}

// DocumentRecord is a stored document. Sections are ordered by index.
type DocumentRecord struct {
	Name          string
	Sections      []string
	Collaborators []string
}

// UserRecord is a stored user with the documents it owns.
type UserRecord struct {
	Name       string
	Credential string
	Documents  []DocumentRecord
}

// Snapshot is everything a store holds, as read at boot.
type Snapshot struct {
	Users []UserRecord
}

// Store is the persistence boundary of the server.
type Store interface {
	// CreateUser stores a new user's credential. It fails with ErrExists for a known name.
	CreateUser(ctx context.Context, name, credential string) error
	// SaveSection writes the text of one section, creating it if needed.
	SaveSection(ctx context.Context, key SectionKey, text string) error
	// SaveCollaborators replaces the collaborator list of a document.
	SaveCollaborators(ctx context.Context, owner, document string, collaborators []string) error
	// Load reads every stored user and document.
	Load(ctx context.Context) (*Snapshot, error)
	// Close releases the store.
	Close() error
}

// Drivers lists the names accepted by Open.
func Drivers() []string {
	return []string{DriverSQLite, DriverFS}
}

// Open creates the store selected by driver rooted at path.
func Open(driver, path string) (Store, error) {
	switch driver {
	case DriverSQLite:
		return NewSQLiteStore(path)
	case DriverFS:
		return NewFSStore(nil, path)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}

// checkName rejects names that would escape their place in a key hierarchy or
// collide with the store's own dot-files.
func checkName(name string) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, name)
	}
	return nil
}

func checkKey(key SectionKey) error {
	if err := checkName(key.Owner); err != nil {
		return err
	}
	if err := checkName(key.Document); err != nil {
		return err
	}
	if key.Index < 0 {
		return fmt.Errorf("%w: negative section index %d", ErrInvalidKey, key.Index)
	}
	return nil
}

// placeSection grows sections so that index fits and stores text there.
func placeSection(sections []string, index int, text string) []string {
	for len(sections) <= index {
		sections = append(sections, "")
	}
	sections[index] = text
	return sections
}

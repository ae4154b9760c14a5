// Package state holds the authoritative in-memory model of the server: users,
// their sessions, documents, section locks and collaborator invites.
//
// Lock order is Document, then User, then the chat address pool. The user map and
// the session map each have their own lock and are never held together. No lock is
// held while an invite is delivered to a client.
package state

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/codefionn/turing/internal/chataddr"
	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/secrets"
	"github.com/codefionn/turing/internal/storage"
)

// Token identifies a session. Tokens are random and never expire.
type Token uint64

func (t Token) String() string {
	return fmt.Sprintf("%016x", uint64(t))
}

// ParseToken parses the hexadecimal form produced by String.
func ParseToken(s string) (Token, error) {
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, newError(InvalidSession, "malformed session token")
	}
	return Token(v), nil
}

type session struct {
	user *User
	// origin is the connection the session was opened on.
	origin string
}

// services are shared by every user and document of a directory.
type services struct {
	store  storage.Store
	pool   *chataddr.Pool
	limits Limits
	log    *logger.Logger
}

// Directory is the registry of users and sessions and the entry point of every
// authenticated operation.
type Directory struct {
	svc    *services
	hasher *secrets.Hasher

	usersMu sync.RWMutex
	users   map[string]*User

	sessionsMu sync.RWMutex
	sessions   map[Token]session

	randomToken func() (Token, error)
}

// Option configures a Directory.
type Option func(*Directory)

// WithHasher replaces the password hasher.
func WithHasher(h *secrets.Hasher) Option {
	return func(d *Directory) {
		d.hasher = h
	}
}

// WithLimits replaces the document limits.
func WithLimits(l Limits) Option {
	return func(d *Directory) {
		d.svc.limits = l
	}
}

// WithLogger replaces the logger.
func WithLogger(l *logger.Logger) Option {
	return func(d *Directory) {
		d.svc.log = l
	}
}

// NewDirectory creates an empty directory persisting to store and drawing chat
// addresses from pool.
func NewDirectory(store storage.Store, pool *chataddr.Pool, opts ...Option) *Directory {
	d := &Directory{
		svc: &services{
			store:  store,
			pool:   pool,
			limits: DefaultLimits(),
			log:    logger.Global().WithPrefix("state"),
		},
		hasher:      secrets.NewHasher(secrets.DefaultParams),
		users:       make(map[string]*User),
		sessions:    make(map[Token]session),
		randomToken: randomToken,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func randomToken() (Token, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("failed to generate session token: %w", err)
	}
	return Token(binary.BigEndian.Uint64(b[:])), nil
}

// Register creates a user and stores its credential before returning.
func (d *Directory) Register(ctx context.Context, name, password string) (*User, error) {
	if err := validateUsername(name); err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}
	if d.hasUser(name) {
		return nil, newError(DuplicateUser, "user %s already exists", name)
	}

	credential, err := d.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password of %s: %w", name, err)
	}

	d.usersMu.Lock()
	defer d.usersMu.Unlock()

	if _, exists := d.users[name]; exists {
		return nil, newError(DuplicateUser, "user %s already exists", name)
	}
	if err := d.svc.store.CreateUser(ctx, name, credential); err != nil {
		if errors.Is(err, storage.ErrExists) {
			return nil, newError(DuplicateUser, "user %s already exists", name)
		}
		return nil, fmt.Errorf("failed to store user %s: %w", name, err)
	}
	u := newUser(name, credential, d.svc)
	d.users[name] = u

	d.svc.log.Info("Registered user %s", name)
	return u, nil
}

func (d *Directory) hasUser(name string) bool {
	d.usersMu.RLock()
	defer d.usersMu.RUnlock()
	_, ok := d.users[name]
	return ok
}

// LookupUser returns the user called name.
func (d *Directory) LookupUser(name string) (*User, error) {
	d.usersMu.RLock()
	defer d.usersMu.RUnlock()

	u, ok := d.users[name]
	if !ok {
		return nil, newError(UnknownUser, "unknown user %s", name)
	}
	return u, nil
}

// Login checks the password and opens a new session. origin names the connection
// the login arrived on. Earlier sessions of the user stay valid.
func (d *Directory) Login(name, password, origin string) (Token, *User, error) {
	u, err := d.LookupUser(name)
	if err != nil {
		return 0, nil, err
	}
	ok, err := d.hasher.Verify(password, u.credential)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to verify credential of %s: %w", name, err)
	}
	if !ok {
		d.svc.log.Info("User %s entered a wrong password", name)
		return 0, nil, newError(InvalidPassword, "wrong password for %s", name)
	}

	d.sessionsMu.Lock()
	defer d.sessionsMu.Unlock()

	var token Token
	for {
		token, err = d.randomToken()
		if err != nil {
			return 0, nil, err
		}
		if _, taken := d.sessions[token]; !taken && token != 0 {
			break
		}
	}
	d.sessions[token] = session{user: u, origin: origin}

	d.svc.log.Info("User %s logged in from %s", name, origin)
	return token, u, nil
}

// Logout closes the session identified by token.
func (d *Directory) Logout(token Token) error {
	d.sessionsMu.Lock()
	defer d.sessionsMu.Unlock()

	s, ok := d.sessions[token]
	if !ok {
		return newError(InvalidSession, "unknown session")
	}
	delete(d.sessions, token)

	d.svc.log.Info("User %s logged out", s.user.name)
	return nil
}

// ResolveSession returns the user logged in with token.
func (d *Directory) ResolveSession(token Token) (*User, error) {
	d.sessionsMu.RLock()
	defer d.sessionsMu.RUnlock()

	s, ok := d.sessions[token]
	if !ok {
		return nil, newError(InvalidSession, "unknown session")
	}
	return s.user, nil
}

// AbandonConnection closes every session opened on origin. Users left without any
// session lose their edit lock; the section keeps its last committed text. It
// returns the number of locks released.
func (d *Directory) AbandonConnection(origin string) int {
	d.sessionsMu.Lock()
	orphans := make(map[*User]struct{})
	for token, s := range d.sessions {
		if s.origin == origin {
			delete(d.sessions, token)
			orphans[s.user] = struct{}{}
		}
	}
	for _, s := range d.sessions {
		delete(orphans, s.user)
	}
	d.sessionsMu.Unlock()

	released := 0
	for u := range orphans {
		if d.releaseIfSessionless(u) {
			released++
		}
	}
	return released
}

// releaseIfSessionless drops the edit lock of u unless u has logged in again.
// The session map stays read-locked across the release, so a concurrent Login
// either happens first and keeps the lock or waits until it is gone.
func (d *Directory) releaseIfSessionless(u *User) bool {
	d.sessionsMu.RLock()
	defer d.sessionsMu.RUnlock()

	for _, s := range d.sessions {
		if s.user == u {
			return false
		}
	}

	uri, editing := u.Editing()
	if !editing {
		return false
	}
	owner, err := d.LookupUser(uri.Owner)
	if err != nil {
		return false
	}
	doc, err := owner.Document(uri.Document)
	if err != nil {
		return false
	}
	return doc.releaseAbandoned(u, uri.Section)
}

// SessionCount returns the number of open sessions.
func (d *Directory) SessionCount() int {
	d.sessionsMu.RLock()
	defer d.sessionsMu.RUnlock()
	return len(d.sessions)
}

// UserCount returns the number of registered users.
func (d *Directory) UserCount() int {
	d.usersMu.RLock()
	defer d.usersMu.RUnlock()
	return len(d.users)
}

// LockedSections counts section locks across all documents.
func (d *Directory) LockedSections() int {
	total := 0
	for _, u := range d.snapshotUsers() {
		u.docsMu.Lock()
		docs := make([]*Document, 0, len(u.owned))
		for _, doc := range u.owned {
			docs = append(docs, doc)
		}
		u.docsMu.Unlock()
		for _, doc := range docs {
			total += doc.LockedSections()
		}
	}
	return total
}

func (d *Directory) snapshotUsers() []*User {
	d.usersMu.RLock()
	defer d.usersMu.RUnlock()
	users := make([]*User, 0, len(d.users))
	for _, u := range d.users {
		users = append(users, u)
	}
	return users
}

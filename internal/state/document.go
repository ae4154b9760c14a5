package state

import (
	"context"
	"net/netip"
	"sort"
	"strings"
	"sync"

	"github.com/codefionn/turing/internal/storage"
)

// Document is an ordered, fixed-length set of sections owned by one user.
//
// All mutations are serialized by the document's mutex. While it is held the
// document may take the lock of a user (edit state, inbox) and the address pool
// lock, never the reverse.
type Document struct {
	uri   URI
	owner *User
	svc   *services

	mu            sync.Mutex
	sections      []*section
	collaborators map[string]*User
	chatAddr      netip.Addr
	locked        int
}

// EditGrant is what an editor receives for a newly locked section.
type EditGrant struct {
	Section     SectionView
	ChatAddress netip.Addr
}

// DocumentView is a copy of a document's state taken under its lock.
type DocumentView struct {
	URI           URI
	Sections      []SectionView
	Collaborators []string
}

// Text concatenates the text of every section.
func (v DocumentView) Text() string {
	var b strings.Builder
	for _, s := range v.Sections {
		b.WriteString(s.Text)
	}
	return b.String()
}

func newDocument(owner *User, name string, texts []string) *Document {
	d := &Document{
		uri:           DocumentURI(owner.name, name),
		owner:         owner,
		svc:           owner.svc,
		sections:      make([]*section, len(texts)),
		collaborators: make(map[string]*User),
	}
	for i, text := range texts {
		d.sections[i] = &section{text: text}
	}
	return d
}

// URI returns owner/name.
func (d *Document) URI() URI {
	return d.uri
}

// SectionCount is fixed at creation.
func (d *Document) SectionCount() int {
	return len(d.sections)
}

func (d *Document) sectionAt(index int) (*section, error) {
	if index < 0 || index >= len(d.sections) {
		return nil, newError(SectionNotFound, "section %d not found in %s (%d sections)", index, d.uri, len(d.sections))
	}
	return d.sections[index], nil
}

func (d *Document) viewOf(index int, s *section) SectionView {
	view := SectionView{URI: SectionURI(d.uri.Owner, d.uri.Document, index), Text: s.text}
	if s.holder != nil {
		view.Editor = s.holder.name
	}
	return view
}

// LockSection gives editor the exclusive edit lock on section index. The first
// lock taken on a document reserves its chat address.
func (d *Document) LockSection(editor *User, index int) (EditGrant, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.sectionAt(index)
	if err != nil {
		return EditGrant{}, err
	}
	uri := SectionURI(d.uri.Owner, d.uri.Document, index)
	if err := editor.beginEdit(uri); err != nil {
		return EditGrant{}, err
	}
	if s.holder != nil {
		editor.endEdit()
		return EditGrant{}, newError(SectionLocked, "section %s is being edited by %s", uri, s.holder.name)
	}

	s.holder = editor
	d.locked++
	if d.locked == 1 {
		addr, ok := d.svc.pool.Acquire()
		if !ok {
			s.holder = nil
			d.locked--
			editor.endEdit()
			return EditGrant{}, newError(ResourcePoolExhausted, "no chat address available for %s", d.uri)
		}
		d.chatAddr = addr
	}

	d.svc.log.Debug("%s locked %s (chat %s, %d locked)", editor.name, uri, d.chatAddr, d.locked)
	return EditGrant{Section: d.viewOf(index, s), ChatAddress: d.chatAddr}, nil
}

// UnlockSection commits text to section index and releases editor's lock. The
// text is written to the store before returning; a failed write is logged and the
// in-memory text stays authoritative.
func (d *Document) UnlockSection(ctx context.Context, editor *User, index int, text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.sectionAt(index)
	if err != nil {
		return err
	}
	uri := SectionURI(d.uri.Owner, d.uri.Document, index)
	if s.holder == nil {
		return newError(SectionNotLocked, "section %s is not being edited", uri)
	}
	if s.holder != editor {
		return newError(WrongEditor, "section %s is being edited by %s, not %s", uri, s.holder.name, editor.name)
	}

	key := storage.SectionKey{Owner: d.uri.Owner, Document: d.uri.Document, Index: index}
	if err := d.svc.store.SaveSection(ctx, key, text); err != nil {
		d.svc.log.Error("Failed to persist section %s: %v", uri, err)
	}
	s.text = text
	d.release(editor, s)

	d.svc.log.Debug("%s unlocked %s (%d locked)", editor.name, uri, d.locked)
	return nil
}

// releaseAbandoned drops editor's lock in this document without committing any
// text. It reports whether a lock was held.
func (d *Document) releaseAbandoned(editor *User, index int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.sectionAt(index)
	if err != nil || s.holder != editor {
		return false
	}
	d.release(editor, s)
	d.svc.log.Info("Released abandoned lock of %s on %s", editor.name, SectionURI(d.uri.Owner, d.uri.Document, index))
	return true
}

// release must be called with d.mu held.
func (d *Document) release(editor *User, s *section) {
	s.holder = nil
	editor.endEdit()
	d.locked--
	if d.locked == 0 {
		d.svc.pool.Release(d.chatAddr)
		d.chatAddr = netip.Addr{}
	}
}

// InviteCollaborator adds target to the collaborators, persists the membership list
// and queues an invite for target. Inviting an existing collaborator again is allowed.
func (d *Document) InviteCollaborator(ctx context.Context, target *User) error {
	if target == d.owner {
		return newError(InvalidRequest, "cannot share %s with its owner", d.uri)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.collaborators[target.name] = target
	if err := d.svc.store.SaveCollaborators(ctx, d.uri.Owner, d.uri.Document, d.collaboratorNames()); err != nil {
		d.svc.log.Error("Failed to persist collaborators of %s: %v", d.uri, err)
	}
	target.queueInvite(Invite{Document: d, Invitee: target})

	d.svc.log.Info("%s invited %s to %s", d.owner.name, target.name, d.uri)
	return nil
}

// addCollaborator restores membership on both sides without queueing an invite.
func (d *Document) addCollaborator(member *User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.collaborators[member.name] = member
	member.addCollaborating(d)
}

// collaboratorNames must be called with d.mu held.
func (d *Document) collaboratorNames() []string {
	names := make([]string, 0, len(d.collaborators))
	for name := range d.collaborators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsAccessible reports whether u owns or collaborates on the document.
func (d *Document) IsAccessible(u *User) bool {
	if u == d.owner {
		return true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.collaborators[u.name]
	return ok
}

// Collaborators returns the sorted collaborator names.
func (d *Document) Collaborators() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.collaboratorNames()
}

// Section returns a copy of section index.
func (d *Document) Section(index int) (SectionView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	s, err := d.sectionAt(index)
	if err != nil {
		return SectionView{}, err
	}
	return d.viewOf(index, s), nil
}

// View returns a consistent copy of every section and the collaborators.
func (d *Document) View() DocumentView {
	d.mu.Lock()
	defer d.mu.Unlock()

	view := DocumentView{
		URI:           d.uri,
		Sections:      make([]SectionView, len(d.sections)),
		Collaborators: d.collaboratorNames(),
	}
	for i, s := range d.sections {
		view.Sections[i] = d.viewOf(i, s)
	}
	return view
}

// ChatAddress returns the document's chat address. ok is false while no section is locked.
func (d *Document) ChatAddress() (addr netip.Addr, ok bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.chatAddr, d.locked > 0
}

// LockedSections returns the number of sections currently locked.
func (d *Document) LockedSections() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.locked
}

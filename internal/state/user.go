package state

import (
	"context"
	"sort"
	"sync"

	"github.com/codefionn/turing/internal/storage"
)

// User is a registered account together with the documents it owns, the documents
// it collaborates on, its invite inbox and its current edit lock.
type User struct {
	name       string
	credential string
	svc        *services

	// docsMu serializes document creation against lookups.
	docsMu sync.Mutex
	owned  map[string]*Document

	// mu guards the fields below. It is taken after a document lock, never before.
	mu            sync.Mutex
	collaborating map[URI]*Document
	inbox         []Invite
	editing       URI
	isEditing     bool
}

func newUser(name, credential string, svc *services) *User {
	return &User{
		name:          name,
		credential:    credential,
		svc:           svc,
		owned:         make(map[string]*Document),
		collaborating: make(map[URI]*Document),
	}
}

// Name returns the immutable username.
func (u *User) Name() string {
	return u.name
}

// CreateDocument creates a document with sections empty sections and stores each of them.
func (u *User) CreateDocument(ctx context.Context, name string, sections int) (*Document, error) {
	if err := u.svc.limits.validateDocument(name, sections); err != nil {
		return nil, err
	}

	u.docsMu.Lock()
	defer u.docsMu.Unlock()

	if _, exists := u.owned[name]; exists {
		return nil, newError(DuplicateDocument, "document %s already exists", DocumentURI(u.name, name))
	}

	doc := newDocument(u, name, make([]string, sections))
	for i := 0; i < sections; i++ {
		key := storage.SectionKey{Owner: u.name, Document: name, Index: i}
		if err := u.svc.store.SaveSection(ctx, key, ""); err != nil {
			u.svc.log.Error("Failed to persist section %s: %v", key, err)
		}
	}
	u.owned[name] = doc

	u.svc.log.Info("%s created %s with %d sections", u.name, doc.uri, sections)
	return doc, nil
}

// Document returns the owned document called name.
func (u *User) Document(name string) (*Document, error) {
	u.docsMu.Lock()
	defer u.docsMu.Unlock()

	doc, ok := u.owned[name]
	if !ok {
		return nil, newError(DocumentNotFound, "document %s not found", DocumentURI(u.name, name))
	}
	return doc, nil
}

// AccessibleDocument returns the owned document called name if requester may access it.
func (u *User) AccessibleDocument(requester *User, name string) (*Document, error) {
	doc, err := u.Document(name)
	if err != nil {
		return nil, err
	}
	if !doc.IsAccessible(requester) {
		return nil, newError(NotAllowed, "%s may not access %s", requester.name, doc.uri)
	}
	return doc, nil
}

// Documents lists owned documents by name followed by collaborating documents by URI.
func (u *User) Documents() []*Document {
	u.docsMu.Lock()
	owned := make([]*Document, 0, len(u.owned))
	for _, doc := range u.owned {
		owned = append(owned, doc)
	}
	u.docsMu.Unlock()
	sort.Slice(owned, func(i, j int) bool { return owned[i].uri.Document < owned[j].uri.Document })

	u.mu.Lock()
	shared := make([]*Document, 0, len(u.collaborating))
	for _, doc := range u.collaborating {
		shared = append(shared, doc)
	}
	u.mu.Unlock()
	sort.Slice(shared, func(i, j int) bool { return shared[i].uri.String() < shared[j].uri.String() })

	return append(owned, shared...)
}

// Editing returns the section u currently holds the lock of.
func (u *User) Editing() (URI, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.editing, u.isEditing
}

// beginEdit records that u holds the lock on uri. A user holds at most one lock.
func (u *User) beginEdit(uri URI) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.isEditing {
		return newError(AlreadyEditing, "%s is already editing %s", u.name, u.editing)
	}
	u.editing = uri
	u.isEditing = true
	return nil
}

func (u *User) endEdit() {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.editing = URI{}
	u.isEditing = false
}

// queueInvite records the collaboration and queues the notification in one step,
// so the document is listed before the invite can be delivered.
func (u *User) queueInvite(inv Invite) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.collaborating[inv.Document.uri] = inv.Document
	u.inbox = append(u.inbox, inv)
}

func (u *User) addCollaborating(doc *Document) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.collaborating[doc.uri] = doc
}

// PendingInvites returns the number of queued invites.
func (u *User) PendingInvites() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.inbox)
}

// FlushInbox drains the inbox in FIFO order and hands every invite to deliver.
// deliver runs without any lock held. An invite whose delivery fails is logged and
// dropped. It returns the number of invites delivered and dropped.
func (u *User) FlushInbox(deliver func(Invite) error) (delivered, dropped int) {
	u.mu.Lock()
	pending := u.inbox
	u.inbox = nil
	u.mu.Unlock()

	for _, inv := range pending {
		if err := deliver(inv); err != nil {
			u.svc.log.Warn("Dropping invite of %s to %s: %v", u.name, inv.Document.uri, err)
			dropped++
			continue
		}
		delivered++
	}
	return delivered, dropped
}

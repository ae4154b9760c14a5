package state

import (
	"context"
	"fmt"
)

// Restore loads every stored user and document into an empty directory.
// Collaborator membership is rebuilt on both sides; no invites are queued, since
// they were delivered or dropped before the restart.
func (d *Directory) Restore(ctx context.Context) error {
	snap, err := d.svc.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load stored state: %w", err)
	}

	d.usersMu.Lock()
	defer d.usersMu.Unlock()

	if len(d.users) > 0 {
		return fmt.Errorf("cannot restore into a directory with %d users", len(d.users))
	}

	for _, rec := range snap.Users {
		u := newUser(rec.Name, rec.Credential, d.svc)
		for _, docRec := range rec.Documents {
			u.owned[docRec.Name] = newDocument(u, docRec.Name, docRec.Sections)
		}
		d.users[rec.Name] = u
	}

	documents := 0
	for _, rec := range snap.Users {
		owner := d.users[rec.Name]
		for _, docRec := range rec.Documents {
			doc := owner.owned[docRec.Name]
			documents++
			for _, name := range docRec.Collaborators {
				member, ok := d.users[name]
				if !ok || member == owner {
					d.svc.log.Warn("Ignoring collaborator %q of %s", name, doc.uri)
					continue
				}
				doc.addCollaborator(member)
			}
		}
	}

	d.svc.log.Info("Restored %d users and %d documents", len(d.users), documents)
	return nil
}

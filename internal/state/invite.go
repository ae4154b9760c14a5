package state

// Invite tells a user they were added as a collaborator. It is queued once and
// consumed once, whether delivery succeeds or not.
type Invite struct {
	Document *Document
	Invitee  *User
}

// URI of the shared document.
func (i Invite) URI() URI {
	return i.Document.uri
}

// Collaborators returns the document's current collaborators.
func (i Invite) Collaborators() []string {
	return i.Document.Collaborators()
}

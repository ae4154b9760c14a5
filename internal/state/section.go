package state

// section is one independently lockable part of a document. It has no lock of its
// own: every field is guarded by the owning document's mutex.
type section struct {
	text   string
	holder *User
}

// SectionView is a copy of a section's state taken under the document lock.
type SectionView struct {
	URI  URI
	Text string
	// Editor is the name of the lock holder, empty when the section is unlocked.
	Editor string
}

// Locked reports whether someone holds the edit lock.
func (v SectionView) Locked() bool {
	return v.Editor != ""
}

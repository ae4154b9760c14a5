package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/codefionn/turing/internal/logger"
)

const (
	credentialFile    = ".credential"
	collaboratorsFile = "collaborators.txt"
	sectionSuffix     = ".txt"
)

// FSStore lays data out as a directory tree:
//
//	<root>/<user>/.credential
//	<root>/<user>/<document>/<index>.txt
//	<root>/<user>/<document>/collaborators.txt
//
// Keys never start with a dot, so no document can shadow the credential.
type FSStore struct {
	fs   afero.Fs
	root string
}

// NewFSStore creates a store rooted at root on fsys. A nil fsys means the OS filesystem.
func NewFSStore(fsys afero.Fs, root string) (*FSStore, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage root %s: %w", root, err)
	}
	return &FSStore{fs: fsys, root: root}, nil
}

// Close is a no-op; files are closed after every write.
func (s *FSStore) Close() error {
	return nil
}

// writeFile writes data next to path and renames it into place, so readers never
// observe a partially written blob.
func (s *FSStore) writeFile(path string, data []byte) error {
	if err := s.fs.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	tmp := path + ".tmp-" + uuid.NewString()
	if err := afero.WriteFile(s.fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmp, err)
	}
	if err := s.fs.Rename(tmp, path); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// CreateUser creates the user directory and its credential file.
func (s *FSStore) CreateUser(_ context.Context, name, credential string) error {
	if err := checkName(name); err != nil {
		return err
	}
	path := filepath.Join(s.root, name, credentialFile)
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if exists {
		return fmt.Errorf("user %q: %w", name, ErrExists)
	}
	return s.writeFile(path, []byte(credential))
}

// SaveSection writes <root>/<owner>/<document>/<index>.txt.
func (s *FSStore) SaveSection(_ context.Context, key SectionKey, text string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	path := filepath.Join(s.root, key.Owner, key.Document, strconv.Itoa(key.Index)+sectionSuffix)
	return s.writeFile(path, []byte(text))
}

// SaveCollaborators writes one member name per line.
func (s *FSStore) SaveCollaborators(_ context.Context, owner, document string, collaborators []string) error {
	if err := checkName(owner); err != nil {
		return err
	}
	if err := checkName(document); err != nil {
		return err
	}
	path := filepath.Join(s.root, owner, document, collaboratorsFile)
	data := strings.Join(collaborators, "\n")
	if data != "" {
		data += "\n"
	}
	return s.writeFile(path, []byte(data))
}

// Load walks the tree. Directories without a credential file are skipped with a warning.
func (s *FSStore) Load(_ context.Context) (*Snapshot, error) {
	entries, err := afero.ReadDir(s.fs, s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", s.root, err)
	}

	snap := &Snapshot{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		user, err := s.loadUser(entry.Name())
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("Skipping %s: no credential stored", filepath.Join(s.root, entry.Name()))
				continue
			}
			return nil, err
		}
		snap.Users = append(snap.Users, *user)
	}
	sort.Slice(snap.Users, func(i, j int) bool { return snap.Users[i].Name < snap.Users[j].Name })
	return snap, nil
}

func (s *FSStore) loadUser(name string) (*UserRecord, error) {
	dir := filepath.Join(s.root, name)
	cred, err := afero.ReadFile(s.fs, filepath.Join(dir, credentialFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read credential of %s: %w", name, err)
	}

	user := &UserRecord{Name: name, Credential: string(cred)}
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		doc, err := s.loadDocument(filepath.Join(dir, entry.Name()), entry.Name())
		if err != nil {
			return nil, err
		}
		if len(doc.Sections) == 0 {
			logger.Warn("Skipping document %s/%s: no sections stored", name, entry.Name())
			continue
		}
		user.Documents = append(user.Documents, *doc)
	}
	sort.Slice(user.Documents, func(i, j int) bool { return user.Documents[i].Name < user.Documents[j].Name })
	return user, nil
}

func (s *FSStore) loadDocument(dir, name string) (*DocumentRecord, error) {
	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}

	doc := &DocumentRecord{Name: name}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), sectionSuffix) {
			continue
		}
		index, err := strconv.Atoi(strings.TrimSuffix(entry.Name(), sectionSuffix))
		if err != nil || index < 0 {
			continue
		}
		text, err := afero.ReadFile(s.fs, filepath.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read section %s: %w", entry.Name(), err)
		}
		doc.Sections = placeSection(doc.Sections, index, string(text))
	}

	members, err := afero.ReadFile(s.fs, filepath.Join(dir, collaboratorsFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to read collaborators of %s: %w", name, err)
	}
	for _, line := range strings.Split(string(members), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			doc.Collaborators = append(doc.Collaborators, line)
		}
	}
	return doc, nil
}

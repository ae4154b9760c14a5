// Package lockfile makes sure a data store is opened by one process at a time.
//
// The lock is a file created next to the store. It records the PID of the
// holder, the command that took it and when. A lock whose process is gone is
// stale and taken over.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrLocked is returned by TryAcquire while another live process holds the lock.
var ErrLocked = errors.New("store is in use by another process")

// Holder describes the process owning a lock.
type Holder struct {
	PID   int
	Owner string
	Since time.Time
}

func (h Holder) String() string {
	return fmt.Sprintf("%s (PID %d) since %s", h.Owner, h.PID, h.Since.Format(time.RFC3339))
}

// Lockfile represents a file-based lock
type Lockfile struct {
	path   string
	owner  string
	file   *os.File
	locked bool
}

// New creates a lock at path taken on behalf of owner, e.g. "serve".
func New(path, owner string) *Lockfile {
	return &Lockfile{path: path, owner: owner}
}

// ForStore returns the lock guarding the store at storePath.
func ForStore(storePath, owner string) *Lockfile {
	return New(filepath.Clean(storePath)+".lock", owner)
}

// TryAcquire takes the lock without waiting.
func (l *Lockfile) TryAcquire() error {
	if l.locked {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create lockfile directory: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		holder, readErr := ReadHolder(l.path)
		if readErr == nil && isProcessRunning(holder.PID) {
			return fmt.Errorf("%w: %s", ErrLocked, holder)
		}
		// Unreadable or left behind by a dead process.
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove stale lockfile: %w", err)
		}
		file, err = os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	}
	if err != nil {
		return fmt.Errorf("failed to create lockfile: %w", err)
	}

	content := fmt.Sprintf("%d\n%s\n%s\n", os.Getpid(), l.owner, time.Now().Format(time.RFC3339))
	if _, err := file.WriteString(content); err != nil {
		file.Close()
		os.Remove(l.path)
		return fmt.Errorf("failed to write lockfile: %w", err)
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(l.path)
		return fmt.Errorf("failed to sync lockfile: %w", err)
	}

	l.file = file
	l.locked = true
	return nil
}

// ReadHolder parses the lock at path.
func ReadHolder(path string) (Holder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Holder{}, err
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || pid <= 0 {
		return Holder{}, fmt.Errorf("invalid PID in lockfile %s", path)
	}

	holder := Holder{PID: pid}
	if len(lines) > 1 {
		holder.Owner = strings.TrimSpace(lines[1])
	}
	if len(lines) > 2 {
		holder.Since, _ = time.Parse(time.RFC3339, strings.TrimSpace(lines[2]))
	}
	return holder, nil
}

// Release releases the lock
func (l *Lockfile) Release() error {
	if !l.locked {
		return nil
	}
	l.locked = false

	err := l.file.Close()
	l.file = nil
	if removeErr := os.Remove(l.path); removeErr != nil && !os.IsNotExist(removeErr) {
		err = errors.Join(err, fmt.Errorf("failed to remove lockfile: %w", removeErr))
	}
	return err
}

// Locked returns true if the lock is held
func (l *Lockfile) Locked() bool {
	return l.locked
}

// Path returns the lockfile path
func (l *Lockfile) Path() string {
	return l.path
}

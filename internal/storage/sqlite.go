package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"
	"github.com/mattn/go-sqlite3"

	"github.com/codefionn/turing/internal/logger"
)

// SQLiteStore keeps everything in one SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteStore opens (and migrates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Foreign keys are a per-connection setting, so they go into the DSN
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, dbPath: dbPath}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		name TEXT PRIMARY KEY,
		credential TEXT NOT NULL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS sections (
		owner TEXT NOT NULL,
		document TEXT NOT NULL,
		idx INTEGER NOT NULL,
		text TEXT NOT NULL,
		checksum TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (owner, document, idx),
		FOREIGN KEY (owner) REFERENCES users(name) ON DELETE CASCADE
	);

	CREATE TABLE IF NOT EXISTS collaborators (
		owner TEXT NOT NULL,
		document TEXT NOT NULL,
		member TEXT NOT NULL,
		PRIMARY KEY (owner, document, member),
		FOREIGN KEY (owner) REFERENCES users(name) ON DELETE CASCADE,
		FOREIGN KEY (member) REFERENCES users(name) ON DELETE CASCADE
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

func checksum(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 16)
}

// CreateUser inserts a new user row.
func (s *SQLiteStore) CreateUser(ctx context.Context, name, credential string) error {
	if err := checkName(name); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (name, credential) VALUES (?, ?)`, name, credential)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return fmt.Errorf("user %q: %w", name, ErrExists)
		}
		return fmt.Errorf("failed to insert user %q: %w", name, err)
	}
	return nil
}

// SaveSection upserts one section row together with its checksum.
func (s *SQLiteStore) SaveSection(ctx context.Context, key SectionKey, text string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sections (owner, document, idx, text, checksum) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (owner, document, idx) DO UPDATE SET
			text = excluded.text,
			checksum = excluded.checksum,
			updated_at = CURRENT_TIMESTAMP`,
		key.Owner, key.Document, key.Index, text, checksum(text),
	)
	if err != nil {
		return fmt.Errorf("failed to save section %s: %w", key, err)
	}
	return nil
}

// SaveCollaborators replaces the member rows of one document in a transaction.
func (s *SQLiteStore) SaveCollaborators(ctx context.Context, owner, document string, collaborators []string) error {
	if err := checkName(owner); err != nil {
		return err
	}
	if err := checkName(document); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM collaborators WHERE owner = ? AND document = ?`, owner, document); err != nil {
		return fmt.Errorf("failed to clear collaborators of %s/%s: %w", owner, document, err)
	}
	for _, member := range collaborators {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO collaborators (owner, document, member) VALUES (?, ?, ?)`,
			owner, document, member,
		); err != nil {
			return fmt.Errorf("failed to add collaborator %s to %s/%s: %w", member, owner, document, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collaborators of %s/%s: %w", owner, document, err)
	}
	return nil
}

// Load reads all tables and assembles the snapshot. A section whose checksum does
// not match its text is logged and loaded as stored.
func (s *SQLiteStore) Load(ctx context.Context) (*Snapshot, error) {
	users := make(map[string]*UserRecord)
	docs := make(map[string]map[string]*DocumentRecord)

	rows, err := s.db.QueryContext(ctx, `SELECT name, credential FROM users ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	var order []string
	for rows.Next() {
		var u UserRecord
		if err := rows.Scan(&u.Name, &u.Credential); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users[u.Name] = &u
		docs[u.Name] = make(map[string]*DocumentRecord)
		order = append(order, u.Name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read users: %w", err)
	}

	doc := func(owner, name string) *DocumentRecord {
		byName, ok := docs[owner]
		if !ok {
			return nil
		}
		d, ok := byName[name]
		if !ok {
			d = &DocumentRecord{Name: name}
			byName[name] = d
		}
		return d
	}

	rows, err = s.db.QueryContext(ctx, `SELECT owner, document, idx, text, checksum FROM sections ORDER BY owner, document, idx`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	for rows.Next() {
		var (
			key       SectionKey
			text, sum string
		)
		if err := rows.Scan(&key.Owner, &key.Document, &key.Index, &text, &sum); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan section: %w", err)
		}
		if sum != checksum(text) {
			logger.Warn("Section %s failed checksum verification, loading stored text anyway", key)
		}
		if d := doc(key.Owner, key.Document); d != nil {
			d.Sections = placeSection(d.Sections, key.Index, text)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read sections: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT owner, document, member FROM collaborators ORDER BY owner, document, member`)
	if err != nil {
		return nil, fmt.Errorf("failed to query collaborators: %w", err)
	}
	for rows.Next() {
		var owner, document, member string
		if err := rows.Scan(&owner, &document, &member); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan collaborator: %w", err)
		}
		// Collaborators of a document without sections are ignored
		if byName, ok := docs[owner]; ok {
			if d, ok := byName[document]; ok {
				d.Collaborators = append(d.Collaborators, member)
			}
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read collaborators: %w", err)
	}

	snap := &Snapshot{Users: make([]UserRecord, 0, len(order))}
	for _, name := range order {
		u := users[name]
		names := make([]string, 0, len(docs[name]))
		for docName := range docs[name] {
			names = append(names, docName)
		}
		sort.Strings(names)
		for _, docName := range names {
			u.Documents = append(u.Documents, *docs[name][docName])
		}
		snap.Users = append(snap.Users, *u)
	}
	return snap, nil
}

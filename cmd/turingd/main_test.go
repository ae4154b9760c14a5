package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codefionn/turing/internal/chataddr"
	"github.com/codefionn/turing/internal/lockfile"
	"github.com/codefionn/turing/internal/state"
	"github.com/codefionn/turing/internal/storage"
)

func executeCommand(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestConfig(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "data")
	path := filepath.Join(dir, "turing.yaml")
	content := "storage:\n  driver: fs\n  path: " + dataDir + "\nlog:\n  level: none\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path, dataDir
}

func TestVersion(t *testing.T) {
	out, err := executeCommand(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "turingd dev\n", out)
}

func TestAddUser(t *testing.T) {
	configPath, dataDir := writeTestConfig(t)

	out, err := executeCommand(t, "password1\n", "--config", configPath, "adduser", "alice")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user alice")

	store, err := storage.NewFSStore(nil, dataDir)
	require.NoError(t, err)
	snapshot, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Users, 1)
	assert.Equal(t, "alice", snapshot.Users[0].Name)

	_, err = executeCommand(t, "password1\n", "--config", configPath, "adduser", "alice")
	require.Error(t, err, "a user is created once")

	_, err = executeCommand(t, "short\n", "--config", configPath, "adduser", "bobby")
	require.Error(t, err)
}

func TestAddUserRefusesLockedStore(t *testing.T) {
	configPath, dataDir := writeTestConfig(t)

	lock := lockfile.ForStore(dataDir, "serve")
	require.NoError(t, lock.TryAcquire())

	_, err := executeCommand(t, "password1\n", "--config", configPath, "adduser", "alice")
	require.ErrorIs(t, err, lockfile.ErrLocked)

	require.NoError(t, lock.Release())
	_, err = executeCommand(t, "password1\n", "--config", configPath, "adduser", "alice")
	require.NoError(t, err)

	_, err = os.Stat(lock.Path())
	assert.True(t, os.IsNotExist(err), "adduser releases the lock")
}

func TestAddUserNeedsName(t *testing.T) {
	configPath, _ := writeTestConfig(t)
	_, err := executeCommand(t, "", "--config", configPath, "adduser")
	require.Error(t, err)
}

func TestServeRejectsInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "turing.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  max_workers: 0\n"), 0o644))

	_, err := executeCommand(t, "", "--config", path, "serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.max_workers")
}

func TestPromptForPassword(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"unix line", "secret99\nignored\n", "secret99"},
		{"windows line", "secret99\r\n", "secret99"},
		{"no line ending", "secret99", "secret99"},
		{"spaces are kept", "  secret 99 \n", "  secret 99 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			password, err := promptForPassword(strings.NewReader(tt.input), &out, "Password: ")
			require.NoError(t, err)
			defer password.Destroy()

			assert.Equal(t, tt.want, password.String())
			assert.Equal(t, "Password: ", out.String())
		})
	}
}

func TestAddUserKeepsSpacesInPassword(t *testing.T) {
	configPath, dataDir := writeTestConfig(t)

	_, err := executeCommand(t, " password1 \n", "--config", configPath, "adduser", "alice")
	require.NoError(t, err)

	store, err := storage.NewFSStore(nil, dataDir)
	require.NoError(t, err)
	dir := state.NewDirectory(store, mustPool(t))
	require.NoError(t, dir.Restore(context.Background()))

	_, _, err = dir.Login("alice", " password1 ", "test")
	require.NoError(t, err)
	_, _, err = dir.Login("alice", "password1", "test")
	assert.ErrorIs(t, err, state.ErrInvalidPassword)
}

func mustPool(t *testing.T) *chataddr.Pool {
	t.Helper()
	pool, err := chataddr.NewPool(chataddr.DefaultNetwork)
	require.NoError(t, err)
	return pool
}

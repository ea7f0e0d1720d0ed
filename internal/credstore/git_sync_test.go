package credstore

import (
	"context"
	"path/filepath"
	"testing"

	"clewdr-go/internal/credential"

	git "github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// With no RemoteURL configured, Save must still commit locally (and must
// still succeed even though there is nothing to push to).
func TestGitSyncStoreCommitsLocallyWithoutRemote(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.toml")
	inner := NewFileStore(path)
	store := NewGitSyncStore(inner, path, GitSyncOptions{})
	ctx := context.Background()

	c := credential.NewKeyCredential("k1", "sk-test")
	snap := &Snapshot{Credentials: []Record{ToRecord(c)}}
	require.NoError(t, store.Save(ctx, snap))

	repo, err := git.PlainOpen(dir)
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	assert.NotEmpty(t, head.Hash().String())

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Credentials, 1)
	assert.Equal(t, "k1", loaded.Credentials[0].ID)
}

// A second Save with no changes underneath must not error even though the
// worktree is clean and there is nothing new to commit.
func TestGitSyncStoreSecondSaveWithoutChangesIsNoop(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "credentials.toml")
	inner := NewFileStore(path)
	store := NewGitSyncStore(inner, path, GitSyncOptions{})
	ctx := context.Background()

	c := credential.NewKeyCredential("k1", "sk-test")
	snap := &Snapshot{Credentials: []Record{ToRecord(c)}}
	require.NoError(t, store.Save(ctx, snap))
	require.NoError(t, store.Save(ctx, snap))
}

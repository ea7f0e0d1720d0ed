package credstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"clewdr-go/internal/credential"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRoundTripPreservesKindSpecificFields(t *testing.T) {
	orig := credential.NewKeyCredential("k1", "sk-test")
	orig.AddUsage(credential.WindowCounters{InputTokens: 42})
	orig.TransitionToInvalid(credential.Reason{Kind: credential.ReasonBanned})

	rec := ToRecord(orig)
	restored := FromRecord(rec)

	assert.Equal(t, orig.ID, restored.ID)
	assert.Equal(t, orig.Kind, restored.Kind)
	assert.Equal(t, "sk-test", restored.Key.APIKey)
	assert.Equal(t, credential.StateInvalid, restored.State.Tag)
	assert.Equal(t, credential.ReasonBanned, restored.State.Reason.Kind)
	assert.Equal(t, int64(42), restored.Usage.Lifetime.InputTokens)
}

func TestRecordRoundTripResetsDispatchedLeaseToValid(t *testing.T) {
	orig := credential.NewCookieCredential("c1", "sk-ant-sid01-body")
	orig.TransitionToDispatched(time.Now())

	restored := FromRecord(ToRecord(orig))
	assert.Equal(t, credential.StateValid, restored.State.Tag)
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.toml")
	store := NewFileStore(path)
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty.Credentials)

	c := credential.NewKeyCredential("k1", "sk-test")
	snap := &Snapshot{Credentials: []Record{ToRecord(c)}}
	require.NoError(t, store.Save(ctx, snap))

	loaded, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, loaded.Credentials, 1)
	assert.Equal(t, "k1", loaded.Credentials[0].ID)
	assert.Equal(t, currentVersion, loaded.Version)

	health := store.Health(ctx)
	assert.True(t, health.Healthy)
	assert.False(t, health.LastWrite.IsZero())
}

func TestOpenUnknownModeErrors(t *testing.T) {
	_, err := Open(context.Background(), "carrier-pigeon", "", "", "", "")
	assert.Error(t, err)
}

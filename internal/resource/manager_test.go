package resource

import (
	"context"
	"testing"
	"time"

	"clewdr-go/internal/credential"
	"clewdr-go/internal/resource/strategy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLeaseReleaseCookieRoundTrip(t *testing.T) {
	m := NewManager(credential.KindCookie, time.Minute, AutoBanPolicy{}, nil)
	c := credential.NewCookieCredential("cred-1", "sk-ant-sid01-x")
	require.NoError(t, m.AdminAdd(c))

	handle, err := m.Lease(context.Background(), strategy.Filters{})
	require.NoError(t, err)
	require.Equal(t, "cred-1", handle.Credential.ID)
	assert.Equal(t, credential.StateDispatched, handle.Credential.State.Tag)

	m.Release(handle, Outcome{Kind: OutcomeOk, UsageDelta: credential.WindowCounters{InputTokens: 5}})
	assert.Equal(t, credential.StateValid, handle.Credential.State.Tag)
	assert.Equal(t, int64(5), handle.Credential.Usage.Lifetime.InputTokens)
}

func TestLeaseUnavailableWhenNoCandidates(t *testing.T) {
	m := NewManager(credential.KindCookie, time.Minute, AutoBanPolicy{}, nil)
	_, err := m.Lease(context.Background(), strategy.Filters{})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReleaseExhaustedTransitionsState(t *testing.T) {
	m := NewManager(credential.KindCookie, time.Minute, AutoBanPolicy{}, nil)
	c := credential.NewCookieCredential("cred-2", "sk-ant-sid01-y")
	require.NoError(t, m.AdminAdd(c))
	handle, err := m.Lease(context.Background(), strategy.Filters{})
	require.NoError(t, err)

	resetAt := time.Now().Add(time.Hour)
	m.Release(handle, Outcome{Kind: OutcomeExhausted, ResetAt: resetAt})
	assert.Equal(t, credential.StateExhausted, c.State.Tag)

	snap := m.Snapshot()
	require.Len(t, snap.Exhausted, 1)
	assert.Equal(t, "cred-2", snap.Exhausted[0].ID)
}

func TestKeyAutoBanAfterRepeated403s(t *testing.T) {
	m := NewManager(credential.KindKey, time.Minute, AutoBanPolicy{Enabled: true, Threshold403: 2}, nil)
	c := credential.NewKeyCredential("key-1", "sk-test")
	require.NoError(t, m.AdminAdd(c))

	handle, err := m.Lease(context.Background(), strategy.Filters{})
	require.NoError(t, err)
	m.Release(handle, Outcome{Kind: OutcomeForbidden})
	// first 403 doesn't ban yet; credential stays Valid and leasable
	assert.Equal(t, credential.StateValid, c.State.Tag)

	handle2, err := m.Lease(context.Background(), strategy.Filters{})
	require.NoError(t, err)
	m.Release(handle2, Outcome{Kind: OutcomeForbidden})

	assert.Equal(t, credential.StateInvalid, c.State.Tag)
}

func TestTickReclaimsExpiredLease(t *testing.T) {
	m := NewManager(credential.KindCookie, 10*time.Millisecond, AutoBanPolicy{}, nil)
	c := credential.NewCookieCredential("cred-3", "sk-ant-sid01-z")
	require.NoError(t, m.AdminAdd(c))
	_, err := m.Lease(context.Background(), strategy.Filters{})
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	reply := make(chan response, 1)
	m.mailbox <- request{kind: opTick, reply: reply}
	<-reply

	assert.Equal(t, credential.StateValid, c.State.Tag)
}

package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCookieStripsKnownPrefixes(t *testing.T) {
	raw := "user@sessionKey=sk-ant-sid01-" + strings86() + "-abcdefAA"
	body := ParseCookie(raw)
	assert.True(t, ValidCookieFormat(body), "expected parsed cookie %q to validate", body)
}

func TestParseCookieRejectsGarbage(t *testing.T) {
	body := ParseCookie("not-a-cookie")
	assert.False(t, ValidCookieFormat(body))
}

func TestCredentialLifecycleTransitions(t *testing.T) {
	c := NewCookieCredential("c1", "sk-ant-sid01-"+strings86()+"-abcdefAA")
	require.Equal(t, StateValid, c.State.Tag)
	require.True(t, c.IsLeasable())

	now := time.Now()
	c.TransitionToDispatched(now)
	assert.Equal(t, StateDispatched, c.State.Tag)
	assert.False(t, c.IsLeasable())

	c.TransitionToValid()
	assert.True(t, c.IsLeasable())

	resetAt := now.Add(time.Hour)
	c.TransitionToExhausted(resetAt)
	assert.Equal(t, StateExhausted, c.State.Tag)
	assert.False(t, c.MaybeReactivate(now))
	assert.True(t, c.MaybeReactivate(resetAt.Add(time.Second)))
	assert.Equal(t, StateValid, c.State.Tag)

	c.TransitionToInvalid(Reason{Kind: ReasonBanned})
	assert.Equal(t, StateInvalid, c.State.Tag)
	assert.False(t, c.IsLeasable())
}

func TestReclaimExpiredLease(t *testing.T) {
	c := NewKeyCredential("k1", "sk-test")
	now := time.Now()
	c.TransitionToDispatched(now.Add(-10 * time.Minute))
	assert.True(t, c.ReclaimExpiredLease(now, 5*time.Minute))
	assert.Equal(t, StateValid, c.State.Tag)
}

func TestUsageAddPropagatesToAllWindows(t *testing.T) {
	var u Usage
	u.Add(WindowCounters{InputTokens: 10, OutputTokens: 5})
	assert.Equal(t, int64(10), u.Session.InputTokens)
	assert.Equal(t, int64(10), u.SevenDay.InputTokens)
	assert.Equal(t, int64(10), u.SevenOpus.InputTokens)
	assert.Equal(t, int64(10), u.Lifetime.InputTokens)
}

func TestIncrementForbiddenOnlyAppliesToKeys(t *testing.T) {
	c := NewCookieCredential("c2", "x")
	assert.Equal(t, 0, c.IncrementForbidden())

	k := NewKeyCredential("k2", "sk-test")
	assert.Equal(t, 1, k.IncrementForbidden())
	assert.Equal(t, 2, k.IncrementForbidden())
}

// TestStateIsAlwaysExactlyOneTagAcrossAnyTransitionSequence is the
// property-based invariant from spec.md §8: whatever sequence of events
// a credential is driven through, it is in exactly one of the four
// declared states at every point, never something else and never more
// than one at once (the zero value of StateTag is not a fifth state).
func TestStateIsAlwaysExactlyOneTagAcrossAnyTransitionSequence(t *testing.T) {
	validTags := map[StateTag]bool{
		StateValid: true, StateDispatched: true, StateExhausted: true, StateInvalid: true,
	}
	events := []func(c *Credential, now time.Time){
		func(c *Credential, now time.Time) { c.TransitionToDispatched(now) },
		func(c *Credential, now time.Time) { c.TransitionToValid() },
		func(c *Credential, now time.Time) { c.TransitionToExhausted(now.Add(time.Hour)) },
		func(c *Credential, now time.Time) { c.TransitionToInvalid(Reason{Kind: ReasonBanned}) },
		func(c *Credential, now time.Time) { c.MaybeReactivate(now.Add(2 * time.Hour)) },
		func(c *Credential, now time.Time) { c.ReclaimExpiredLease(now, time.Minute) },
	}

	// A fixed linear-congruential sequence in place of math/rand: the
	// corpus's table-driven tests avoid random/property-test libraries,
	// so event order is generated deterministically instead.
	seed := uint32(1)
	next := func() uint32 {
		seed = seed*1103515245 + 12345
		return seed
	}

	base := time.Now()
	for _, start := range []func() *Credential{
		func() *Credential { return NewCookieCredential("c1", "sk-ant-sid01-"+strings86()+"-abcdefAA") },
		func() *Credential { return NewKeyCredential("k1", "sk-test") },
	} {
		c := start()
		for step := 0; step < 200; step++ {
			ev := events[next()%uint32(len(events))]
			now := base.Add(time.Duration(step) * time.Minute)
			ev(c, now)
			assert.True(t, validTags[c.State.Tag], "credential entered an undeclared state %q at step %d", c.State.Tag, step)
		}
	}
}

// strings86 returns an 86-character alphanumeric body for building
// well-formed test cookies.
func strings86() string {
	s := ""
	for len(s) < 86 {
		s += "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	}
	return s[:86]
}

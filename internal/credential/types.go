// Package credential defines the tagged credential variants, their
// lifecycle state machine, and usage accounting (spec.md §3 Data Model).
// This package holds only the data model; leasing and rotation live in
// internal/resource (Component B), persistence in internal/credstore
// (Component A).
package credential

import (
	"sync"
	"time"
)

// Kind identifies which variant a Credential carries.
type Kind string

const (
	KindCookie         Kind = "cookie"
	KindKey            Kind = "key"
	KindOAuth          Kind = "oauth"
	KindServiceAccount Kind = "service_account"
)

// StateTag is the current node in the credential lifecycle state machine.
type StateTag string

const (
	StateValid      StateTag = "valid"
	StateDispatched StateTag = "dispatched"
	StateExhausted  StateTag = "exhausted"
	StateInvalid    StateTag = "invalid"
)

// Lifecycle captures the current state plus whatever payload that state
// carries (reset_at for Exhausted, Reason for Invalid, lease start for
// Dispatched).
type Lifecycle struct {
	Tag          StateTag
	ResetAt      time.Time // valid when Tag == StateExhausted
	Reason       Reason    // valid when Tag == StateInvalid
	DispatchedAt time.Time // valid when Tag == StateDispatched
}

// CookieData holds Claude-web session credential fields.
type CookieData struct {
	SessionToken    string
	ResetAt         time.Time // optional; zero if unset
	ExtendedContext bool      // supports extended context window
	Capabilities    CookieCapabilities
}

// KeyData holds an API-key credential.
type KeyData struct {
	APIKey        string
	ForbiddenHits int // count of 403 responses observed
}

// OAuthData holds OAuth refresh-grant credential fields.
type OAuthData struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
}

// ServiceAccountData holds a Vertex service-account key.
type ServiceAccountData struct {
	ClientEmail string
	PrivateKey  string
	ProjectID   string
	KeyID       string
}

// WindowCounters are usage counters partitioned by retention window.
type WindowCounters struct {
	InputTokens      int64
	OutputTokens     int64
	SonnetInTokens   int64
	SonnetOutTokens  int64
	OpusInTokens     int64
	OpusOutTokens    int64
}

// Usage partitions WindowCounters by {session, 7-day, 7-day-Opus, lifetime}
// per spec.md §3.
type Usage struct {
	Session    WindowCounters
	SevenDay   WindowCounters
	SevenOpus  WindowCounters
	Lifetime   WindowCounters
}

// Add folds a usage delta into every window, matching the teacher's
// MarkSuccess style of unconditional counter bumps.
func (u *Usage) Add(delta WindowCounters) {
	addWindow(&u.Session, delta)
	addWindow(&u.SevenDay, delta)
	addWindow(&u.SevenOpus, delta)
	addWindow(&u.Lifetime, delta)
}

func addWindow(dst *WindowCounters, delta WindowCounters) {
	dst.InputTokens += delta.InputTokens
	dst.OutputTokens += delta.OutputTokens
	dst.SonnetInTokens += delta.SonnetInTokens
	dst.SonnetOutTokens += delta.SonnetOutTokens
	dst.OpusInTokens += delta.OpusInTokens
	dst.OpusOutTokens += delta.OpusOutTokens
}

// Credential is the tagged variant described in spec.md §3, plus the
// lifecycle state and usage counters every kind carries.
type Credential struct {
	mu sync.RWMutex

	ID   string
	Kind Kind

	Cookie         *CookieData
	Key            *KeyData
	OAuth          *OAuthData
	ServiceAccount *ServiceAccountData

	State Lifecycle
	Usage Usage

	LastDispatchedAt time.Time // for least-recent-dispatch ordering
}

// Snapshot is a read-only copy safe to hand to callers outside the lock.
type Snapshot struct {
	ID               string
	Kind             Kind
	State            Lifecycle
	Usage            Usage
	LastDispatchedAt time.Time
}

// Snapshot returns a lock-protected copy of the credential's observable
// state (not the secret material itself, beyond what the caller already
// has via ID).
func (c *Credential) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{
		ID:               c.ID,
		Kind:             c.Kind,
		State:            c.State,
		Usage:            c.Usage,
		LastDispatchedAt: c.LastDispatchedAt,
	}
}

// IsLeasable reports whether the credential is currently in the Valid
// state. Cookies also require no Dispatched lease outstanding; that
// invariant is enforced by the resource manager's state transition, not
// here, since only one writer (the owning actor) ever mutates State.
func (c *Credential) IsLeasable() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.State.Tag == StateValid
}

// TransitionToDispatched marks the credential leased. Only meaningful for
// single-lease kinds (cookies); multi-lease kinds (keys, OAuth, service
// accounts) never transition through Dispatched.
func (c *Credential) TransitionToDispatched(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = Lifecycle{Tag: StateDispatched, DispatchedAt: now}
	c.LastDispatchedAt = now
}

// TransitionToValid returns the credential to Valid, clearing any prior
// state payload.
func (c *Credential) TransitionToValid() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = Lifecycle{Tag: StateValid}
}

// TransitionToExhausted marks the credential temporarily ineligible until
// resetAt.
func (c *Credential) TransitionToExhausted(resetAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = Lifecycle{Tag: StateExhausted, ResetAt: resetAt}
}

// TransitionToInvalid permanently (or, for Restricted, until a known
// time) removes the credential from rotation.
func (c *Credential) TransitionToInvalid(reason Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.State = Lifecycle{Tag: StateInvalid, Reason: reason}
}

// MaybeReactivate flips Exhausted back to Valid once resetAt has passed.
// Returns true if a transition happened.
func (c *Credential) MaybeReactivate(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State.Tag == StateExhausted && !c.State.ResetAt.After(now) {
		c.State = Lifecycle{Tag: StateValid}
		return true
	}
	return false
}

// ReclaimExpiredLease returns a Dispatched lease older than timeout back
// to Valid, reporting whether it did so (caller logs the operator warning).
func (c *Credential) ReclaimExpiredLease(now time.Time, timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.State.Tag == StateDispatched && now.Sub(c.State.DispatchedAt) > timeout {
		c.State = Lifecycle{Tag: StateValid}
		return true
	}
	return false
}

// AddUsage folds a usage delta under lock.
func (c *Credential) AddUsage(delta WindowCounters) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Usage.Add(delta)
}

// IncrementForbidden bumps the 403 counter for KeyCred credentials.
func (c *Credential) IncrementForbidden() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Key == nil {
		return 0
	}
	c.Key.ForbiddenHits++
	return c.Key.ForbiddenHits
}

// QuotaHeadroom estimates remaining capacity for rotation tie-breaking:
// higher is better. Non-cookie kinds always report 1.0; a cookie's
// headroom falls from 1.0 towards 0 as its 7-day token usage grows.
func (c *Credential) QuotaHeadroom() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Kind != KindCookie {
		return 1.0
	}
	total := c.Usage.SevenDay.InputTokens + c.Usage.SevenDay.OutputTokens
	if total <= 0 {
		return 1.0
	}
	// Inverse relationship: more 7-day usage, less headroom. Normalized
	// against a fixed soft cap; this is only a relative ranking signal.
	const softCap = 2_000_000.0
	headroom := 1.0 - float64(total)/softCap
	if headroom < 0 {
		return 0
	}
	return headroom
}

// Package resource implements Component B, the Resource Manager: a
// single-writer actor per credential kind that hands out leases, applies
// rotation policy, classifies transactor feedback into state transitions,
// and reactivates Exhausted credentials on a tick. Grounded on clewdr's
// services/{cookie_actor.rs,key_actor.rs} message-passing shape and the
// teacher's manager_selection.go rotation heuristics.
package resource

import (
	"context"
	"errors"
	"time"

	"clewdr-go/internal/credential"
	"clewdr-go/internal/events"
	"clewdr-go/internal/resource/strategy"

	log "github.com/sirupsen/logrus"
)

// ErrUnavailable is returned by Lease when no eligible credential exists.
var ErrUnavailable = errors.New("resource: no eligible credential")

// OutcomeKind is the result a transactor reports after using a leased
// credential, per spec.md §4.B.
type OutcomeKind int

const (
	OutcomeOk OutcomeKind = iota
	OutcomeExhausted
	OutcomeInvalid
	OutcomeTransientFail
	// OutcomeForbidden is HTTP 403: per spec.md §4.B this increments a
	// per-key counter and only promotes to Invalid once a threshold is
	// crossed; the credential remains Valid in the meantime.
	OutcomeForbidden
)

// Outcome carries the release-time classification and any associated
// payload (usage delta, reset time, invalid reason).
type Outcome struct {
	Kind       OutcomeKind
	UsageDelta credential.WindowCounters
	ResetAt    time.Time // OutcomeExhausted; zero means "use default window"
	Reason     credential.Reason
}

// LeaseHandle is the scoped right to use one credential for one upstream
// call (spec.md Glossary: Lease).
type LeaseHandle struct {
	Credential *credential.Credential
	LeasedAt   time.Time
}

// ManagerSnapshot groups credentials by observable state for the admin
// surface and for diagnostics, per spec.md §4.B snapshot().
type ManagerSnapshot struct {
	Valid      []credential.Snapshot
	Dispatched []credential.Snapshot
	Exhausted  []credential.Snapshot
	Invalid    []credential.Snapshot
}

type opKind int

const (
	opLease opKind = iota
	opRelease
	opSnapshot
	opAdd
	opRemove
	opTick
)

type request struct {
	kind     opKind
	filters  strategy.Filters
	handle   *LeaseHandle
	outcome  Outcome
	cred     *credential.Credential
	removeID string
	reply    chan response
}

type response struct {
	handle *LeaseHandle
	err    error
	snap   ManagerSnapshot
}

// Manager is the single-writer actor owning one kind's credential pool.
// All external access goes through the mailbox; no field here is ever
// touched outside the run() goroutine.
type Manager struct {
	kind          credential.Kind
	mailbox       chan request
	credentials   map[string]*credential.Credential
	leaseTimeout  time.Duration
	autoBan       AutoBanPolicy
	publisher     events.Publisher
	multiLease    bool // keys/OAuth/service-accounts may be leased concurrently
}

// AutoBanPolicy mirrors spec.md §4.B failure-classification thresholds.
type AutoBanPolicy struct {
	Enabled              bool
	Threshold403         int
	ConsecutiveFailLimit int
}

// NewManager constructs a Manager for one credential kind and starts its
// actor goroutine. Multi-lease is enabled for every kind except KindCookie.
func NewManager(kind credential.Kind, leaseTimeout time.Duration, autoBan AutoBanPolicy, publisher events.Publisher) *Manager {
	m := &Manager{
		kind:         kind,
		mailbox:      make(chan request, 64),
		credentials:  make(map[string]*credential.Credential),
		leaseTimeout: leaseTimeout,
		autoBan:      autoBan,
		publisher:    publisher,
		multiLease:   kind != credential.KindCookie,
	}
	go m.run()
	return m
}

// Run starts the reactivation/lease-timeout ticker; call once at startup.
func (m *Manager) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = time.Second
	}
	ticker := time.NewTicker(tick)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reply := make(chan response, 1)
				m.mailbox <- request{kind: opTick, reply: reply}
				<-reply
			}
		}
	}()
}

func (m *Manager) run() {
	for req := range m.mailbox {
		switch req.kind {
		case opLease:
			req.reply <- m.handleLease(req.filters)
		case opRelease:
			req.reply <- m.handleRelease(req.handle, req.outcome)
		case opSnapshot:
			req.reply <- response{snap: m.handleSnapshot()}
		case opAdd:
			req.reply <- m.handleAdd(req.cred)
		case opRemove:
			req.reply <- m.handleRemove(req.removeID)
		case opTick:
			m.handleTick()
			req.reply <- response{}
		}
	}
}

// Lease returns a credential chosen by rotation policy, per spec.md
// §4.B. Cookie leases mark the credential Dispatched; other kinds remain
// Valid (multi-lease) and are simply handed out.
func (m *Manager) Lease(ctx context.Context, filters strategy.Filters) (*LeaseHandle, error) {
	reply := make(chan response, 1)
	select {
	case m.mailbox <- request{kind: opLease, filters: filters, reply: reply}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case resp := <-reply:
		return resp.handle, resp.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Release reports the outcome of using a leased credential, driving the
// state machine transition described in spec.md §4.B.
func (m *Manager) Release(handle *LeaseHandle, outcome Outcome) {
	reply := make(chan response, 1)
	m.mailbox <- request{kind: opRelease, handle: handle, outcome: outcome, reply: reply}
	<-reply
}

// Snapshot returns the current grouping of credentials by state.
func (m *Manager) Snapshot() ManagerSnapshot {
	reply := make(chan response, 1)
	m.mailbox <- request{kind: opSnapshot, reply: reply}
	resp := <-reply
	return resp.snap
}

// AdminAdd registers a new credential with the pool.
func (m *Manager) AdminAdd(cred *credential.Credential) error {
	reply := make(chan response, 1)
	m.mailbox <- request{kind: opAdd, cred: cred, reply: reply}
	resp := <-reply
	return resp.err
}

// AdminRemove removes a credential from the pool by id.
func (m *Manager) AdminRemove(id string) error {
	reply := make(chan response, 1)
	m.mailbox <- request{kind: opRemove, removeID: id, reply: reply}
	resp := <-reply
	return resp.err
}

func (m *Manager) handleLease(filters strategy.Filters) response {
	pool := make([]*credential.Credential, 0, len(m.credentials))
	for _, c := range m.credentials {
		pool = append(pool, c)
	}
	ranked := strategy.Rank(pool, filters)
	if len(ranked) == 0 {
		return response{err: ErrUnavailable}
	}
	chosen := ranked[0]
	now := time.Now()
	if !m.multiLease {
		chosen.TransitionToDispatched(now)
	}
	return response{handle: &LeaseHandle{Credential: chosen, LeasedAt: now}}
}

func (m *Manager) handleRelease(handle *LeaseHandle, outcome Outcome) response {
	if handle == nil || handle.Credential == nil {
		return response{}
	}
	c := handle.Credential
	switch outcome.Kind {
	case OutcomeOk:
		c.AddUsage(outcome.UsageDelta)
		if !m.multiLease {
			c.TransitionToValid()
		}
	case OutcomeExhausted:
		resetAt := outcome.ResetAt
		if resetAt.IsZero() {
			resetAt = time.Now().Add(5 * time.Minute)
		}
		c.TransitionToExhausted(resetAt)
	case OutcomeInvalid:
		c.TransitionToInvalid(outcome.Reason)
		m.publish(events.TopicCredentialChanged, c.ID)
	case OutcomeTransientFail:
		if !m.multiLease {
			c.TransitionToValid()
		}
	case OutcomeForbidden:
		if !m.multiLease {
			c.TransitionToValid()
		}
		if c.Key != nil {
			hits := c.IncrementForbidden()
			if m.autoBan.Enabled && m.autoBan.Threshold403 > 0 && hits >= m.autoBan.Threshold403 {
				c.TransitionToInvalid(credential.Reason{Kind: credential.ReasonBanned})
				log.WithField("credential_id", c.ID).Warn("key auto-banned after repeated 403s")
			}
		}
	}
	return response{}
}

func (m *Manager) handleSnapshot() ManagerSnapshot {
	var snap ManagerSnapshot
	for _, c := range m.credentials {
		s := c.Snapshot()
		switch s.State.Tag {
		case credential.StateValid:
			snap.Valid = append(snap.Valid, s)
		case credential.StateDispatched:
			snap.Dispatched = append(snap.Dispatched, s)
		case credential.StateExhausted:
			snap.Exhausted = append(snap.Exhausted, s)
		case credential.StateInvalid:
			snap.Invalid = append(snap.Invalid, s)
		}
	}
	return snap
}

func (m *Manager) handleAdd(c *credential.Credential) response {
	if c == nil || c.ID == "" {
		return response{err: errors.New("resource: credential requires an id")}
	}
	m.credentials[c.ID] = c
	m.publish(events.TopicCredentialChanged, c.ID)
	return response{}
}

func (m *Manager) handleRemove(id string) response {
	if _, ok := m.credentials[id]; !ok {
		return response{err: errors.New("resource: unknown credential id")}
	}
	delete(m.credentials, id)
	m.publish(events.TopicCredentialChanged, id)
	return response{}
}

func (m *Manager) handleTick() {
	now := time.Now()
	for _, c := range m.credentials {
		if c.MaybeReactivate(now) {
			log.WithField("credential_id", c.ID).Debug("credential reactivated")
		}
		if c.ReclaimExpiredLease(now, m.leaseTimeout) {
			log.WithField("credential_id", c.ID).Warn("lease timed out, credential returned to valid")
		}
	}
}

func (m *Manager) publish(topic, credID string) {
	if m.publisher == nil {
		return
	}
	m.publisher.Publish(context.Background(), topic, credID, map[string]string{"kind": string(m.kind)})
}

// Package strategy ranks Valid credentials for lease: least-recent-dispatch
// first, then highest quota headroom, with config-driven skip filters.
// Adapted from the teacher's internal/upstream/strategy (P2C weighted pick
// over a single Gemini-key pool) generalized to spec.md §4.B's ordering
// rule across any credential kind.
package strategy

import (
	"sort"
	"time"

	"clewdr-go/internal/credential"
)

// Filters mirrors the config-driven skip flags of spec.md §4.B.
type Filters struct {
	SkipNonPro        bool
	SkipRestricted    bool
	SkipFirstWarning  bool
	SkipSecondWarning bool
	SkipNormalPro     bool
	SkipRateLimit     bool
}

// candidate pairs a credential with the ranking signals computed once per
// Rank call, avoiding repeated locking during the sort comparator.
type candidate struct {
	cred             *credential.Credential
	lastDispatchedAt time.Time
	headroom         float64
}

// Rank returns the subset of creds that are Valid and pass filters,
// ordered by (a) least-recent dispatch, then (b) highest quota headroom.
func Rank(creds []*credential.Credential, f Filters) []*credential.Credential {
	candidates := make([]candidate, 0, len(creds))
	for _, c := range creds {
		if c == nil || !c.IsLeasable() {
			continue
		}
		if skippedByFilter(c, f) {
			continue
		}
		snap := c.Snapshot()
		candidates = append(candidates, candidate{
			cred:             c,
			lastDispatchedAt: snap.LastDispatchedAt,
			headroom:         c.QuotaHeadroom(),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.lastDispatchedAt.Equal(b.lastDispatchedAt) {
			return a.lastDispatchedAt.Before(b.lastDispatchedAt)
		}
		return a.headroom > b.headroom
	})

	out := make([]*credential.Credential, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.cred)
	}
	return out
}

// skippedByFilter applies the config-driven skip flags. Candidates reaching
// here already passed IsLeasable (State == Valid), so the flags gate on
// the credential's last-known cookie capability classification rather than
// the Invalid-state Reason, which covers a disjoint (permanently excluded)
// set of credentials.
func skippedByFilter(c *credential.Credential, f Filters) bool {
	caps := c.CookieCapabilities()
	switch {
	case f.SkipNonPro && caps.NonPro:
		return true
	case f.SkipRestricted && caps.Restricted:
		return true
	case f.SkipFirstWarning && caps.FirstWarning:
		return true
	case f.SkipSecondWarning && caps.SecondWarning:
		return true
	case f.SkipNormalPro && caps.NormalPro:
		return true
	case f.SkipRateLimit && caps.RateLimited:
		return true
	}
	return false
}

// Package credstore implements Component A, the Credential Store: durable
// persistence for the credential pool independent of the in-memory
// rotation state owned by internal/resource. Grounded on the teacher's
// internal/storage (Backend interface, file/postgres/mongodb backends).
package credstore

import (
	"time"

	"clewdr-go/internal/credential"
)

// Record is the wire/disk representation of a credential: flat, tagged,
// and serializable with either encoding/json (SQL backends) or TOML (file
// backend). credential.Credential is deliberately not serialized directly
// since it carries a mutex and only exposes state through Snapshot().
type Record struct {
	ID   string          `toml:"id" json:"id" bson:"id" yaml:"id"`
	Kind credential.Kind `toml:"kind" json:"kind" bson:"kind" yaml:"kind"`

	// Secret material, one populated per Kind.
	SessionToken    string `toml:"session_token,omitempty" json:"session_token,omitempty" bson:"session_token,omitempty" yaml:"session_token,omitempty"`
	ExtendedContext bool   `toml:"extended_context,omitempty" json:"extended_context,omitempty" bson:"extended_context,omitempty" yaml:"extended_context,omitempty"`
	APIKey          string `toml:"api_key,omitempty" json:"api_key,omitempty" bson:"api_key,omitempty" yaml:"api_key,omitempty"`
	ClientID        string `toml:"client_id,omitempty" json:"client_id,omitempty" bson:"client_id,omitempty" yaml:"client_id,omitempty"`
	ClientSecret    string `toml:"client_secret,omitempty" json:"client_secret,omitempty" bson:"client_secret,omitempty" yaml:"client_secret,omitempty"`
	RefreshToken    string `toml:"refresh_token,omitempty" json:"refresh_token,omitempty" bson:"refresh_token,omitempty" yaml:"refresh_token,omitempty"`
	ClientEmail     string `toml:"client_email,omitempty" json:"client_email,omitempty" bson:"client_email,omitempty" yaml:"client_email,omitempty"`
	PrivateKey      string `toml:"private_key,omitempty" json:"private_key,omitempty" bson:"private_key,omitempty" yaml:"private_key,omitempty"`
	ProjectID       string `toml:"project_id,omitempty" json:"project_id,omitempty" bson:"project_id,omitempty" yaml:"project_id,omitempty"`
	KeyID           string `toml:"key_id,omitempty" json:"key_id,omitempty" bson:"key_id,omitempty" yaml:"key_id,omitempty"`

	// Lifecycle + usage, common to every kind.
	StateTag        credential.StateTag `toml:"state" json:"state" bson:"state" yaml:"state"`
	StateResetAt    time.Time           `toml:"state_reset_at,omitempty" json:"state_reset_at,omitempty" bson:"state_reset_at,omitempty" yaml:"state_reset_at,omitempty"`
	StateReasonKind credential.ReasonKind `toml:"state_reason_kind,omitempty" json:"state_reason_kind,omitempty" bson:"state_reason_kind,omitempty" yaml:"state_reason_kind,omitempty"`
	StateReasonUntil time.Time          `toml:"state_reason_until,omitempty" json:"state_reason_until,omitempty" bson:"state_reason_until,omitempty" yaml:"state_reason_until,omitempty"`
	ForbiddenHits   int                 `toml:"forbidden_hits,omitempty" json:"forbidden_hits,omitempty" bson:"forbidden_hits,omitempty" yaml:"forbidden_hits,omitempty"`

	Usage credential.Usage `toml:"usage" json:"usage" bson:"usage" yaml:"usage"`
}

// Snapshot is the full document persisted to disk or a SQL table: every
// credential of every kind, plus the layout version for future migration.
type Snapshot struct {
	Version     int      `toml:"version" json:"version" bson:"version" yaml:"version"`
	Credentials []Record `toml:"credentials" json:"credentials" bson:"credentials" yaml:"credentials"`
}

const currentVersion = 1

// ToRecord flattens a live credential into its persisted form.
func ToRecord(c *credential.Credential) Record {
	snap := c.Snapshot()
	r := Record{
		ID:              c.ID,
		Kind:            c.Kind,
		StateTag:        snap.State.Tag,
		StateResetAt:    snap.State.ResetAt,
		StateReasonKind: snap.State.Reason.Kind,
		StateReasonUntil: snap.State.Reason.Until,
		Usage:           snap.Usage,
	}
	switch c.Kind {
	case credential.KindCookie:
		if c.Cookie != nil {
			r.SessionToken = c.Cookie.SessionToken
			r.ExtendedContext = c.Cookie.ExtendedContext
		}
	case credential.KindKey:
		if c.Key != nil {
			r.APIKey = c.Key.APIKey
			r.ForbiddenHits = c.Key.ForbiddenHits
		}
	case credential.KindOAuth:
		if c.OAuth != nil {
			r.ClientID = c.OAuth.ClientID
			r.ClientSecret = c.OAuth.ClientSecret
			r.RefreshToken = c.OAuth.RefreshToken
		}
	case credential.KindServiceAccount:
		if c.ServiceAccount != nil {
			r.ClientEmail = c.ServiceAccount.ClientEmail
			r.PrivateKey = c.ServiceAccount.PrivateKey
			r.ProjectID = c.ServiceAccount.ProjectID
			r.KeyID = c.ServiceAccount.KeyID
		}
	}
	return r
}

// FromRecord rebuilds a live credential from its persisted form.
func FromRecord(r Record) *credential.Credential {
	c := &credential.Credential{
		ID:   r.ID,
		Kind: r.Kind,
		State: credential.Lifecycle{
			Tag:     r.StateTag,
			ResetAt: r.StateResetAt,
			Reason:  credential.Reason{Kind: r.StateReasonKind, Until: r.StateReasonUntil},
		},
		Usage: r.Usage,
	}
	switch r.Kind {
	case credential.KindCookie:
		c.Cookie = &credential.CookieData{SessionToken: r.SessionToken, ExtendedContext: r.ExtendedContext}
	case credential.KindKey:
		c.Key = &credential.KeyData{APIKey: r.APIKey, ForbiddenHits: r.ForbiddenHits}
	case credential.KindOAuth:
		c.OAuth = &credential.OAuthData{ClientID: r.ClientID, ClientSecret: r.ClientSecret, RefreshToken: r.RefreshToken}
	case credential.KindServiceAccount:
		c.ServiceAccount = &credential.ServiceAccountData{
			ClientEmail: r.ClientEmail,
			PrivateKey:  r.PrivateKey,
			ProjectID:   r.ProjectID,
			KeyID:       r.KeyID,
		}
	}
	// A Dispatched lease never survives a restart; credentials load back
	// as Valid so nothing is stranded by a crash mid-lease.
	if c.State.Tag == credential.StateDispatched {
		c.State = credential.Lifecycle{Tag: credential.StateValid}
	}
	return c
}

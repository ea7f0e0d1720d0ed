package server

import (
	"bytes"
	"net/http"

	"clewdr-go/internal/apperrors"
	"clewdr-go/internal/config"
	"clewdr-go/internal/credential"
	"clewdr-go/internal/credstore"

	"github.com/BurntSushi/toml"
	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"
)

// registerAdminRoutes wires the CRUD + config + storage surface of
// spec.md §6's Admin HTTP section. Grounded on the teacher's
// internal/handlers/management admin_creds.go/admin_config.go handler
// shapes, adapted from the teacher's single OAuth-credential model to
// the four-kind tagged variant this proxy manages.
func (d *Dependencies) registerAdminRoutes(g *gin.RouterGroup) {
	g.GET("/credentials", d.adminListCredentials)
	g.POST("/credentials", d.adminAddCredential)
	g.DELETE("/credentials/:kind/:id", d.adminRemoveCredential)

	g.GET("/config", d.adminGetConfig)
	g.POST("/config", d.adminSaveConfig)

	g.GET("/storage/status", d.adminStorageStatus)
	g.GET("/storage/export", d.adminStorageExport)
	g.POST("/storage/import", d.adminStorageImport)
}

// adminListCredentials reports every managed credential's observable
// state, grouped by lifecycle bucket the way each Manager.Snapshot
// already groups them, across all four credential kinds.
func (d *Dependencies) adminListCredentials(c *gin.Context) {
	out := gin.H{}
	if d.Cookies != nil {
		out["cookie"] = d.Cookies.Snapshot()
	}
	if d.Keys != nil {
		out["key"] = d.Keys.Snapshot()
	}
	if d.OAuthCreds != nil {
		out["oauth"] = d.OAuthCreds.Snapshot()
	}
	if d.ServiceAccounts != nil {
		out["service_account"] = d.ServiceAccounts.Snapshot()
	}
	c.JSON(http.StatusOK, out)
}

type addCredentialRequest struct {
	ID   string          `json:"id"`
	Kind credential.Kind `json:"kind"`

	SessionToken string `json:"session_token,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	ClientID     string `json:"client_id,omitempty"`
	ClientSecret string `json:"client_secret,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
	ClientEmail  string `json:"client_email,omitempty"`
	PrivateKey   string `json:"private_key,omitempty"`
	ProjectID    string `json:"project_id,omitempty"`
	KeyID        string `json:"key_id,omitempty"`
}

func (d *Dependencies) adminAddCredential(c *gin.Context) {
	var body addCredentialRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", err.Error()))
		return
	}
	if body.ID == "" {
		writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", "id is required"))
		return
	}

	cred := &credential.Credential{ID: body.ID, Kind: body.Kind}
	switch body.Kind {
	case credential.KindCookie:
		cred.Cookie = &credential.CookieData{SessionToken: body.SessionToken}
	case credential.KindKey:
		cred.Key = &credential.KeyData{APIKey: body.APIKey}
	case credential.KindOAuth:
		cred.OAuth = &credential.OAuthData{ClientID: body.ClientID, ClientSecret: body.ClientSecret, RefreshToken: body.RefreshToken}
	case credential.KindServiceAccount:
		cred.ServiceAccount = &credential.ServiceAccountData{ClientEmail: body.ClientEmail, PrivateKey: body.PrivateKey, ProjectID: body.ProjectID, KeyID: body.KeyID}
	default:
		writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", "unknown credential kind"))
		return
	}
	cred.TransitionToValid()

	mgr := d.managerFor(body.Kind)
	if mgr == nil {
		writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", "unknown credential kind"))
		return
	}
	if err := mgr.AdminAdd(cred); err != nil {
		writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", err.Error()))
		return
	}

	if err := d.persistUpsert(c, cred); err != nil {
		writeError(c, "", apperrors.New(http.StatusServiceUnavailable, "storage_unavailable", "api_error", err.Error()))
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": cred.ID})
}

func (d *Dependencies) adminRemoveCredential(c *gin.Context) {
	kind := credential.Kind(c.Param("kind"))
	id := c.Param("id")

	mgr := d.managerFor(kind)
	if mgr == nil {
		writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", "unknown credential kind"))
		return
	}
	if err := mgr.AdminRemove(id); err != nil {
		writeError(c, "", apperrors.New(http.StatusNotFound, "not_found", "not_found_error", err.Error()))
		return
	}
	if err := d.persistRemove(c, id); err != nil {
		writeError(c, "", apperrors.New(http.StatusServiceUnavailable, "storage_unavailable", "api_error", err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

func (d *Dependencies) adminGetConfig(c *gin.Context) {
	// Vertex (service-account) credentials are never part of the config
	// document; only operator-facing settings live in config.Config.
	c.JSON(http.StatusOK, d.Config.Get())
}

func (d *Dependencies) adminSaveConfig(c *gin.Context) {
	var cfg config.Config
	if err := c.ShouldBindJSON(&cfg); err != nil {
		writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", err.Error()))
		return
	}
	if err := d.Config.Save(&cfg); err != nil {
		writeError(c, "", apperrors.New(http.StatusInternalServerError, "save_failed", "api_error", err.Error()))
		return
	}
	c.Status(http.StatusNoContent)
}

func (d *Dependencies) adminStorageStatus(c *gin.Context) {
	if d.Store == nil {
		writeError(c, "", apperrors.New(http.StatusServiceUnavailable, "storage_unavailable", "api_error", apperrors.ErrStorageUnavailable.Error()))
		return
	}
	status := d.Store.Health(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"mode":       status.Mode,
		"healthy":    status.Healthy,
		"latency_ms": status.Latency.Milliseconds(),
		"last_write": status.LastWrite,
	})
}

func (d *Dependencies) adminStorageExport(c *gin.Context) {
	if d.Store == nil {
		writeError(c, "", apperrors.New(http.StatusServiceUnavailable, "storage_unavailable", "api_error", apperrors.ErrStorageUnavailable.Error()))
		return
	}
	snap, err := d.Store.Load(c.Request.Context())
	if err != nil {
		writeError(c, "", apperrors.New(http.StatusServiceUnavailable, "storage_unavailable", "api_error", err.Error()))
		return
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(snap); err != nil {
		writeError(c, "", apperrors.New(http.StatusInternalServerError, "encode_failed", "api_error", err.Error()))
		return
	}
	c.Data(http.StatusOK, "application/toml", buf.Bytes())
}

func (d *Dependencies) adminStorageImport(c *gin.Context) {
	if d.Store == nil {
		writeError(c, "", apperrors.New(http.StatusServiceUnavailable, "storage_unavailable", "api_error", apperrors.ErrStorageUnavailable.Error()))
		return
	}
	raw, err := c.GetRawData()
	if err != nil {
		writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", err.Error()))
		return
	}
	var snap credstore.Snapshot
	if _, err := toml.Decode(string(raw), &snap); err != nil {
		// Fall back to the teacher's original YAML document shape, for
		// operators migrating a credential set exported before the move
		// to TOML.
		if yamlErr := yaml.Unmarshal(raw, &snap); yamlErr != nil {
			writeError(c, "", apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", "body is neither valid TOML nor valid YAML: "+err.Error()))
			return
		}
	}
	if err := d.Store.Save(c.Request.Context(), &snap); err != nil {
		writeError(c, "", apperrors.New(http.StatusServiceUnavailable, "storage_unavailable", "api_error", err.Error()))
		return
	}

	for _, r := range snap.Credentials {
		cred := credstore.FromRecord(r)
		if mgr := d.managerFor(cred.Kind); mgr != nil {
			_ = mgr.AdminAdd(cred)
		}
	}
	c.Status(http.StatusNoContent)
}

// persistUpsert loads the durable snapshot, replaces (or appends) cred's
// record, and saves it back — a read-modify-write over the whole
// document since credstore.Store only exposes Load/Save, not per-record
// mutators, per spec.md §4.A's interface.
func (d *Dependencies) persistUpsert(c *gin.Context, cred *credential.Credential) error {
	if d.Store == nil {
		return apperrors.ErrStorageUnavailable
	}
	ctx := c.Request.Context()
	snap, err := d.Store.Load(ctx)
	if err != nil {
		return err
	}
	record := credstore.ToRecord(cred)
	replaced := false
	for i, r := range snap.Credentials {
		if r.ID == record.ID {
			snap.Credentials[i] = record
			replaced = true
			break
		}
	}
	if !replaced {
		snap.Credentials = append(snap.Credentials, record)
	}
	return d.Store.Save(ctx, snap)
}

func (d *Dependencies) persistRemove(c *gin.Context, id string) error {
	if d.Store == nil {
		return apperrors.ErrStorageUnavailable
	}
	ctx := c.Request.Context()
	snap, err := d.Store.Load(ctx)
	if err != nil {
		return err
	}
	kept := snap.Credentials[:0]
	for _, r := range snap.Credentials {
		if r.ID != id {
			kept = append(kept, r)
		}
	}
	snap.Credentials = kept
	return d.Store.Save(ctx, snap)
}

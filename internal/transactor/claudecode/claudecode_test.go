package claudecode

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"clewdr-go/internal/credential"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/tokensvc"
	"clewdr-go/internal/translator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOAuthCred() *credential.Credential {
	c := &credential.Credential{ID: "oauth-1", Kind: credential.KindOAuth}
	c.OAuth = &credential.OAuthData{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"}
	c.TransitionToValid()
	return c
}

func TestExecuteReportsTransientFailWhenTokenMintFails(t *testing.T) {
	var sawSessionHeader string
	var calls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		sawSessionHeader = r.Header.Get("Anthropic-Session-Id")
		w.Header().Set("Anthropic-Session-Id", "sess-xyz")
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"ok\"}}\n\n"))
		w.Write([]byte("data: {\"type\":\"message_stop\"}\n\n"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	svc := tokensvc.New(time.Minute)
	tr := New(srv.Client(), srv.URL, svc, 16, 0)

	// tokensvc's mintFunc is unexported, so this package cannot inject a
	// fake token. The credential's OAuth mint goes to Google's real token
	// endpoint with a fake refresh token and fails, and the test checks
	// that this failure propagates as TransientFail.
	cred := newOAuthCred()
	req := &translator.Request{Model: "claude-3-opus", Messages: []translator.Message{
		{Role: translator.RoleUser, Parts: []translator.ContentPart{{Kind: translator.PartText, Text: "hi"}}},
	}}
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	var out bytes.Buffer
	result := tr.Execute(ctx, cred, req, translator.FormatClaudeNative, &out)

	// mintOAuth will fail (no real refresh endpoint reachable within the
	// deadline), so this should surface as a transient failure rather
	// than a panic.
	assert.Equal(t, resource.OutcomeTransientFail, result.Outcome.Kind)
	_ = sawSessionHeader
	_ = calls
}

func TestExecuteRejectsNonOAuthCredential(t *testing.T) {
	svc := tokensvc.New(time.Minute)
	tr := New(http.DefaultClient, "https://api.anthropic.com", svc, 16, 0)
	cred := &credential.Credential{ID: "key-1", Kind: credential.KindKey, Key: &credential.KeyData{APIKey: "k"}}
	var out bytes.Buffer
	result := tr.Execute(context.Background(), cred, &translator.Request{}, translator.FormatClaudeNative, &out)
	assert.Equal(t, resource.OutcomeInvalid, result.Outcome.Kind)
}

func TestClassifyStatusMapsKnownCodes(t *testing.T) {
	require.Equal(t, resource.OutcomeExhausted, classifyStatus(http.StatusTooManyRequests).Kind)
	require.Equal(t, resource.OutcomeForbidden, classifyStatus(http.StatusForbidden).Kind)
	require.Equal(t, resource.OutcomeInvalid, classifyStatus(http.StatusUnauthorized).Kind)
	require.Equal(t, resource.OutcomeTransientFail, classifyStatus(http.StatusBadGateway).Kind)
}

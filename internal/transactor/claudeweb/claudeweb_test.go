package claudeweb

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"clewdr-go/internal/credential"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/translator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCookieCred() *credential.Credential {
	c := &credential.Credential{ID: "c1", Kind: credential.KindCookie}
	c.Cookie = &credential.CookieData{SessionToken: "sess-abc"}
	c.TransitionToValid()
	return c
}

func TestExecuteFullLifecycleHappyPath(t *testing.T) {
	var deletedConversation bool
	mux := http.NewServeMux()
	mux.HandleFunc("/api/organizations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"uuid":"org-1","capabilities":["claude_pro"]}]`))
	})
	mux.HandleFunc("/api/organizations/org-1/chat_conversations", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/completion") && r.Method == http.MethodPost {
			w.Header().Set("Content-Type", "text/event-stream")
			w.Write([]byte("data: {\"type\":\"content_block_delta\",\"delta\":{\"type\":\"text_delta\",\"text\":\"hi\"}}\n\n"))
			w.Write([]byte("data: {\"type\":\"message_stop\"}\n\n"))
			return
		}
		if r.Method == http.MethodDelete {
			deletedConversation = true
			return
		}
	})

	srv := httptest.NewServer(mux)
	defer srv.Close()

	tr := New(srv.Client(), srv.URL, Options{SkipFree: true})
	cred := newCookieCred()
	req := &translator.Request{
		Model:    "claude-3-opus",
		Messages: []translator.Message{{Role: translator.RoleUser, Parts: []translator.ContentPart{{Kind: translator.PartText, Text: "hello"}}}},
	}
	var out bytes.Buffer
	result := tr.Execute(context.Background(), cred, req, translator.FormatClaudeNative, &out)

	require.NotNil(t, result.Response)
	assert.Equal(t, resource.OutcomeOk, result.Outcome.Kind)
	assert.True(t, deletedConversation, "conversation should be cleaned up when PreserveChats is false")
	assert.False(t, cred.CookieCapabilities().NonPro, "claude_pro capability should clear NonPro on the leased credential")
}

func TestExecuteReturnsInvalidOutcomeForMissingSessionToken(t *testing.T) {
	tr := New(http.DefaultClient, "https://claude.ai", Options{})
	cred := &credential.Credential{ID: "c2", Kind: credential.KindCookie, Cookie: &credential.CookieData{}}
	var out bytes.Buffer
	result := tr.Execute(context.Background(), cred, &translator.Request{}, translator.FormatClaudeNative, &out)
	assert.Equal(t, resource.OutcomeInvalid, result.Outcome.Kind)
}

func TestClassifyCapabilitiesMapsOrganizationCapabilityStrings(t *testing.T) {
	caps := classifyCapabilities([]string{"claude_pro", "restricted_to_normal_organizations", "moderation_warning_1"})
	assert.False(t, caps.NonPro)
	assert.True(t, caps.Restricted)
	assert.True(t, caps.FirstWarning)
	assert.True(t, caps.NormalPro, "claude_pro without a higher tier is NormalPro")

	higherTier := classifyCapabilities([]string{"claude_pro", "claude_team_pro"})
	assert.False(t, higherTier.NormalPro, "a higher-tier capability excludes NormalPro")

	assert.True(t, classifyCapabilities(nil).NonPro, "no claude_pro capability means NonPro")
}

func TestClassifyStatusMapsRateLimitToExhausted(t *testing.T) {
	outcome := classifyStatus(http.StatusTooManyRequests, nil)
	assert.Equal(t, resource.OutcomeExhausted, outcome.Kind)
}

func TestClassifyStatusMapsForbiddenToForbiddenOutcome(t *testing.T) {
	outcome := classifyStatus(http.StatusForbidden, nil)
	assert.Equal(t, resource.OutcomeForbidden, outcome.Kind)
}

func TestClassifyStatusParsesResetsAtFromBody(t *testing.T) {
	outcome := classifyStatus(http.StatusTooManyRequests, []byte(`{"resets_at":"2030-01-01T00:00:00Z"}`))
	require.Equal(t, resource.OutcomeExhausted, outcome.Kind)
	assert.Equal(t, 2030, outcome.ResetAt.Year())
}

func TestAssemblePromptUsesRoleMarkersAndPadPrefix(t *testing.T) {
	tr := New(http.DefaultClient, "https://claude.ai", Options{PadPrefix: "PAD"})
	req := &translator.Request{
		System: []translator.ContentPart{{Kind: translator.PartText, Text: "be helpful"}},
		Messages: []translator.Message{
			{Role: translator.RoleUser, Parts: []translator.ContentPart{{Kind: translator.PartText, Text: "hi"}}},
			{Role: translator.RoleAssistant, Parts: []translator.ContentPart{{Kind: translator.PartText, Text: "hello"}}},
		},
	}
	prompt := tr.assemblePrompt(req)
	assert.True(t, strings.HasPrefix(prompt, "PAD"))
	assert.Contains(t, prompt, "\n\nHuman: be helpful")
	assert.Contains(t, prompt, "\n\nHuman: hi")
	assert.Contains(t, prompt, "\n\nAssistant: hello")
}

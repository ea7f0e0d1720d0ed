// Package claudecode implements Component F, the Claude Code Transactor:
// a direct, OAuth-credentialed POST to {base}/v1/messages with upstream
// session reuse for repeated system prompts and a one-shot token refresh
// on 401. Grounded on the teacher's stream_session.go per-request
// lifecycle, re-homed from Gemini's Code Assist endpoint onto Claude's
// native messages endpoint.
package claudecode

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"clewdr-go/internal/credential"
	"clewdr-go/internal/httpclient"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/streampipe"
	"clewdr-go/internal/tokensvc"
	"clewdr-go/internal/translator"
)

// Transactor drives one Claude Code request against an OAuth credential.
type Transactor struct {
	httpClient      *http.Client
	baseURL         string
	tokens          *tokensvc.Service
	sessions        *sessionCache
	streamKeepAlive time.Duration // 0 disables keep-alive comment injection
}

// New builds a Transactor against baseURL (e.g. "https://api.anthropic.com").
// keepAliveInterval <= 0 disables SSE keep-alive comment injection.
func New(httpClient *http.Client, baseURL string, tokens *tokensvc.Service, sessionCacheSize int, keepAliveInterval time.Duration) *Transactor {
	return &Transactor{
		httpClient:      httpClient,
		baseURL:         baseURL,
		tokens:          tokens,
		sessions:        newSessionCache(sessionCacheSize),
		streamKeepAlive: keepAliveInterval,
	}
}

// Result is what Execute hands back.
type Result struct {
	Response *translator.Response
	Outcome  resource.Outcome
}

// Execute sends req as a native Claude messages call, reusing the
// upstream session id for the (credential, system prompt) pair if one
// is cached, retrying once after a token refresh on 401.
func (t *Transactor) Execute(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) Result {
	if cred == nil || cred.OAuth == nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeInvalid, Reason: credential.Reason{Kind: credential.ReasonNull}}}
	}

	key := sessionKey{credentialID: cred.ID, systemPromptSum: sha256Hex(joinSystemText(req))}
	sessionID, _ := t.sessions.get(key)

	resp, status, err := t.send(ctx, cred, req, sessionID)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	if status == http.StatusUnauthorized {
		t.tokens.Invalidate(cred.ID)
		resp, status, err = t.send(ctx, cred, req, sessionID)
		if err != nil {
			return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
		}
	}
	if resp != nil {
		defer resp.Body.Close()
	}
	if status >= 400 {
		return Result{Outcome: classifyStatus(status)}
	}

	if newSessionID := resp.Header.Get("Anthropic-Session-Id"); newSessionID != "" {
		t.sessions.put(key, newSessionID)
	}

	canonicalResp, err := streampipe.PipeOrBuffer(resp.Body, w, req.Stream, translator.FormatClaudeNative, egressFormat, req.StopSequences, t.streamKeepAlive)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}

	return Result{
		Response: canonicalResp,
		Outcome: resource.Outcome{
			Kind: resource.OutcomeOk,
			UsageDelta: credential.WindowCounters{
				InputTokens:  canonicalResp.Usage.InputTokens,
				OutputTokens: canonicalResp.Usage.OutputTokens,
			},
		},
	}
}

func (t *Transactor) send(ctx context.Context, cred *credential.Credential, req *translator.Request, sessionID string) (*http.Response, int, error) {
	accessToken, err := t.tokens.Acquire(ctx, cred)
	if err != nil {
		return nil, 0, err
	}

	body, err := translator.CanonicalToClaudeRequest(req)
	if err != nil {
		return nil, 0, err
	}

	url, err := httpclient.JoinURL(t.baseURL, "v1", "messages")
	if err != nil {
		return nil, 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	httpReq.Header.Set("Anthropic-Version", "2023-06-01")
	httpReq.Header.Set("Accept", "text/event-stream")
	if sessionID != "" {
		httpReq.Header.Set("Anthropic-Session-Id", sessionID)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	return resp, resp.StatusCode, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// joinSystemText concatenates a canonical request's system text parts,
// the content the session cache key is hashed from.
func joinSystemText(req *translator.Request) string {
	var b strings.Builder
	for _, p := range req.System {
		if p.Kind == translator.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func classifyStatus(status int) resource.Outcome {
	switch status {
	case http.StatusTooManyRequests:
		return resource.Outcome{Kind: resource.OutcomeExhausted}
	case http.StatusUnauthorized:
		return resource.Outcome{Kind: resource.OutcomeInvalid, Reason: credential.Reason{Kind: credential.ReasonNull}}
	case http.StatusForbidden:
		return resource.Outcome{Kind: resource.OutcomeForbidden}
	default:
		return resource.Outcome{Kind: resource.OutcomeTransientFail}
	}
}

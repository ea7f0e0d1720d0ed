// Package claudeweb implements Component E, the Claude Web Transactor:
// organization discovery, conversation lifecycle, multipart prompt
// assembly, and SSE streaming against claude.ai's internal API using a
// leased CookieCred. Grounded on the teacher's internal/upstream/gemini
// client.go request/retry shape, re-homed onto a cookie-session upstream
// instead of a bearer-token one.
package claudeweb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"clewdr-go/internal/credential"
	"clewdr-go/internal/httpclient"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/streampipe"
	"clewdr-go/internal/translator"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// State is the per-conversation lifecycle stage, per spec.md §4.E.
type State int

const (
	StateCreated State = iota
	StateStreaming
	StateDone
	StateFailed
)

// Organization is a claude.ai account organization, filtered by
// capability flags before use.
type Organization struct {
	UUID         string
	Capabilities []string
}

// hasCapability reports whether cap is present in the organization's
// capability list.
func (o Organization) hasCapability(cap string) bool {
	for _, c := range o.Capabilities {
		if c == cap {
			return true
		}
	}
	return false
}

// classifyCapabilities maps a claude.ai organization's capability strings
// onto the rotation-policy classification consulted by the strategy
// package's skip filters. claude_pro/disabled/banned are the capabilities
// this package already filters candidates on in discoverOrganization; the
// remainder are the same family of account-status flags claude.ai reports
// alongside them.
func classifyCapabilities(caps []string) credential.CookieCapabilities {
	org := Organization{Capabilities: caps}
	isPro := org.hasCapability("claude_pro")
	higherTier := org.hasCapability("claude_team_pro") || org.hasCapability("claude_max")
	return credential.CookieCapabilities{
		NonPro:        !isPro,
		Restricted:    org.hasCapability("restricted_to_normal_organizations"),
		FirstWarning:  org.hasCapability("moderation_warning_1"),
		SecondWarning: org.hasCapability("moderation_warning_2"),
		NormalPro:     isPro && !higherTier,
		RateLimited:   org.hasCapability("rate_limited"),
	}
}

// Options configures prompt assembly and conversation lifecycle.
type Options struct {
	HumanMarker             string // e.g. "\n\nHuman: "
	AssistantMarker         string // e.g. "\n\nAssistant: "
	PadPrefix               string // optional prompt-size normalization padding
	PreserveChats           bool   // skip DELETE on terminal state
	MaxRetries              int    // per-cookie retry cap; enforced by the caller, which leases a fresh credential and re-invokes Execute
	RequireNotDisabled      bool
	RequireNotBanned        bool
	SkipFree                bool
	StreamKeepAliveInterval time.Duration // 0 disables keep-alive comment injection
}

// Transactor drives one Claude-web request lifecycle end to end.
type Transactor struct {
	httpClient *http.Client
	baseURL    string
	opts       Options
}

// New builds a Transactor against baseURL (the claude.ai origin), e.g.
// "https://claude.ai".
func New(httpClient *http.Client, baseURL string, opts Options) *Transactor {
	if opts.HumanMarker == "" {
		opts.HumanMarker = "\n\nHuman: "
	}
	if opts.AssistantMarker == "" {
		opts.AssistantMarker = "\n\nAssistant: "
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 2
	}
	return &Transactor{httpClient: httpClient, baseURL: baseURL, opts: opts}
}

// Result is what Execute hands back: the aggregated canonical response
// plus the outcome the caller should report to the resource manager.
type Result struct {
	Response *translator.Response
	Outcome  resource.Outcome
}

// Execute runs the full organization-discovery -> conversation-create ->
// stream -> cleanup lifecycle for one canonical request, streaming
// egress-format frames to w as they arrive.
func (t *Transactor) Execute(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) Result {
	sessionToken, extendedCtx := cookieFields(cred)
	if sessionToken == "" {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeInvalid, Reason: credential.Reason{Kind: credential.ReasonNull}}}
	}

	org, err := t.discoverOrganization(ctx, sessionToken)
	if err != nil {
		return Result{Outcome: classifyOrgError(err)}
	}
	cred.UpdateCookieCapabilities(classifyCapabilities(org.Capabilities))

	convUUID, err := t.createConversation(ctx, sessionToken, org.UUID, req.Model)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	state := StateCreated

	cleanup := func() {
		if t.opts.PreserveChats {
			return
		}
		// Best-effort: deletion failure never blocks the caller's
		// response, it only risks a stray conversation on the account.
		_ = t.deleteConversation(context.Background(), sessionToken, org.UUID, convUUID)
	}
	defer cleanup()

	prompt := t.assemblePrompt(req)
	body, err := json.Marshal(map[string]interface{}{
		"prompt":        prompt,
		"timezone":      "UTC",
		"model":         req.Model,
		"rendering_mode": "messages",
		"attachments":   []interface{}{},
	})
	if err != nil {
		state = StateFailed
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}

	sendURL, err := httpclient.JoinURL(t.baseURL, "api", "organizations", org.UUID, "chat_conversations", convUUID, "completion")
	if err != nil {
		state = StateFailed
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, sendURL, bytes.NewReader(body))
	if err != nil {
		state = StateFailed
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	applyCookieHeaders(httpReq, sessionToken, extendedCtx)

	state = StateStreaming
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		state = StateFailed
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		state = StateFailed
		errBody, _ := io.ReadAll(resp.Body)
		return Result{Outcome: classifyStatus(resp.StatusCode, errBody)}
	}

	canonicalResp, err := streampipe.PipeOrBuffer(resp.Body, w, req.Stream, translator.FormatClaudeNative, egressFormat, req.StopSequences, t.opts.StreamKeepAliveInterval)
	if err != nil {
		state = StateFailed
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	state = StateDone
	_ = state

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

func cookieFields(cred *credential.Credential) (sessionToken string, extendedCtx bool) {
	if cred == nil || cred.Cookie == nil {
		return "", false
	}
	return cred.Cookie.SessionToken, cred.Cookie.ExtendedContext
}

func applyCookieHeaders(req *http.Request, sessionToken string, extendedCtx bool) {
	req.Header.Set("Cookie", "sessionKey="+sessionToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if extendedCtx {
		req.Header.Set("Anthropic-Beta", "claude-2-1-extended-context")
	}
}

// discoverOrganization lists organizations for the session and picks the
// first one whose capabilities satisfy the configured filters.
func (t *Transactor) discoverOrganization(ctx context.Context, sessionToken string) (Organization, error) {
	listURL, err := httpclient.JoinURL(t.baseURL, "api", "organizations")
	if err != nil {
		return Organization{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listURL, nil)
	if err != nil {
		return Organization{}, err
	}
	applyCookieHeaders(req, sessionToken, false)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return Organization{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Organization{}, fmt.Errorf("claudeweb: list organizations: status %d", resp.StatusCode)
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Organization{}, err
	}

	var chosen Organization
	found := false
	for _, org := range gjson.ParseBytes(raw).Array() {
		caps := org.Get("capabilities")
		var capList []string
		for _, c := range caps.Array() {
			capList = append(capList, c.String())
		}
		candidate := Organization{UUID: org.Get("uuid").String(), Capabilities: capList}
		if t.opts.SkipFree && !candidate.hasCapability("claude_pro") {
			continue
		}
		if t.opts.RequireNotDisabled && candidate.hasCapability("disabled") {
			continue
		}
		if t.opts.RequireNotBanned && candidate.hasCapability("banned") {
			continue
		}
		chosen = candidate
		found = true
		break
	}
	if !found {
		return Organization{}, fmt.Errorf("claudeweb: no eligible organization")
	}
	return chosen, nil
}

func (t *Transactor) createConversation(ctx context.Context, sessionToken, orgUUID, model string) (string, error) {
	convURL, err := httpclient.JoinURL(t.baseURL, "api", "organizations", orgUUID, "chat_conversations")
	if err != nil {
		return "", err
	}
	id := uuid.NewString()
	body, _ := json.Marshal(map[string]string{"uuid": id, "name": "", "model": model})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, convURL, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	applyCookieHeaders(req, sessionToken, false)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("claudeweb: create conversation: status %d", resp.StatusCode)
	}
	return id, nil
}

func (t *Transactor) deleteConversation(ctx context.Context, sessionToken, orgUUID, convUUID string) error {
	delURL, err := httpclient.JoinURL(t.baseURL, "api", "organizations", orgUUID, "chat_conversations", convUUID)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, delURL, nil)
	if err != nil {
		return err
	}
	applyCookieHeaders(req, sessionToken, false)
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return nil
}

// assemblePrompt merges canonical messages into Claude-web's single
// prompt string using the configured role markers, optionally prefixed
// by a padding string for prompt-size normalization.
func (t *Transactor) assemblePrompt(req *translator.Request) string {
	var b bytes.Buffer
	if t.opts.PadPrefix != "" {
		b.WriteString(t.opts.PadPrefix)
	}
	if system := joinParts(req.System); system != "" {
		b.WriteString(t.opts.HumanMarker)
		b.WriteString(system)
	}
	for _, msg := range req.Messages {
		switch msg.Role {
		case translator.RoleUser:
			b.WriteString(t.opts.HumanMarker)
		case translator.RoleAssistant:
			b.WriteString(t.opts.AssistantMarker)
		default:
			continue
		}
		for _, part := range msg.Parts {
			if part.Kind == translator.PartText {
				b.WriteString(part.Text)
			}
		}
	}
	b.WriteString(t.opts.AssistantMarker)
	return b.String()
}

// joinParts concatenates every text part's content into one string, the
// shape Claude-web's flat system/prompt fields expect.
func joinParts(parts []translator.ContentPart) string {
	var b bytes.Buffer
	for _, p := range parts {
		if p.Kind == translator.PartText {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

func classifyOrgError(err error) resource.Outcome {
	return resource.Outcome{Kind: resource.OutcomeInvalid, Reason: credential.Reason{Kind: credential.ReasonDisabled}}
}

func classifyStatus(status int, body []byte) resource.Outcome {
	switch status {
	case http.StatusTooManyRequests:
		resetAt := time.Now().Add(5 * time.Minute)
		if ts := gjson.GetBytes(body, "resets_at"); ts.Exists() {
			if parsed, err := time.Parse(time.RFC3339, ts.String()); err == nil {
				resetAt = parsed
			}
		}
		return resource.Outcome{Kind: resource.OutcomeExhausted, ResetAt: resetAt}
	case http.StatusUnauthorized:
		return resource.Outcome{Kind: resource.OutcomeInvalid, Reason: credential.Reason{Kind: credential.ReasonNull}}
	case http.StatusForbidden:
		return resource.Outcome{Kind: resource.OutcomeForbidden}
	default:
		return resource.Outcome{Kind: resource.OutcomeTransientFail}
	}
}

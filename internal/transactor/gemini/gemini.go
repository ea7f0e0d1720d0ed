// Package gemini implements Component G, the Gemini/Vertex Transactor:
// AI Studio key-routed calls and service-account-authenticated Vertex
// calls, field stripping of OpenAI-only fields, and safety settings
// applied to all requests when Options.NativeIngress is set (the
// Transactor does not tell the native route from the OpenAI-compat
// route). Directly adapted from the
// teacher's internal/upstream/gemini client, re-homed from the Code
// Assist internal endpoint onto the public generateContent API surface.
package gemini

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"clewdr-go/internal/credential"
	"clewdr-go/internal/httpclient"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/streampipe"
	"clewdr-go/internal/tokensvc"
	"clewdr-go/internal/translator"

	"github.com/tidwall/sjson"
)

// Path selects which Gemini surface a request targets.
type Path int

const (
	PathAIStudio Path = iota
	PathVertex
)

// SafetySetting is a native-path-only content filter override.
type SafetySetting struct {
	Category  string
	Threshold string
}

// Options configures dispatch-time behavior.
type Options struct {
	AIStudioBaseURL         string // e.g. "https://generativelanguage.googleapis.com"
	VertexBaseURL           string // e.g. "https://{region}-aiplatform.googleapis.com", region filled by caller; the path always uses location us-central1 and publisher google
	SafetySettings          []SafetySetting
	NativeIngress           bool          // enables safety settings on every request this Transactor sends; fixed at construction, not derived from each request's ingress format
	StreamKeepAliveInterval time.Duration // 0 disables keep-alive comment injection
}

// Transactor drives one Gemini/Vertex request.
type Transactor struct {
	httpClient *http.Client
	tokens     *tokensvc.Service
	opts       Options
}

// New builds a Transactor.
func New(httpClient *http.Client, tokens *tokensvc.Service, opts Options) *Transactor {
	return &Transactor{httpClient: httpClient, tokens: tokens, opts: opts}
}

// Result is what Execute hands back.
type Result struct {
	Response *translator.Response
	Outcome  resource.Outcome
}

// Execute dispatches req against AI Studio (KeyCred) or Vertex
// (ServiceAccountCred), streaming egress-format frames to w.
func (t *Transactor) Execute(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) Result {
	switch cred.Kind {
	case credential.KindKey:
		return t.executeAIStudio(ctx, cred, req, egressFormat, w)
	case credential.KindServiceAccount:
		return t.executeVertex(ctx, cred, req, egressFormat, w)
	default:
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeInvalid, Reason: credential.Reason{Kind: credential.ReasonNull}}}
	}
}

func (t *Transactor) executeAIStudio(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) Result {
	if cred.Key == nil || cred.Key.APIKey == "" {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeInvalid, Reason: credential.Reason{Kind: credential.ReasonNull}}}
	}
	verb := "generateContent"
	if req.Stream {
		verb = "streamGenerateContent"
	}
	url, err := httpclient.JoinURL(t.opts.AIStudioBaseURL, "v1beta", "models", req.Model+":"+verb)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	url += "?key=" + cred.Key.APIKey
	if req.Stream {
		url += "&alt=sse"
	}

	body, err := t.buildPayload(req)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	return t.dispatch(httpReq, req, egressFormat, w)
}

func (t *Transactor) executeVertex(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) Result {
	if cred.ServiceAccount == nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeInvalid, Reason: credential.Reason{Kind: credential.ReasonNull}}}
	}
	accessToken, err := t.tokens.Acquire(ctx, cred)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}

	verb := "generateContent"
	if req.Stream {
		verb = "streamGenerateContent"
	}
	url, err := httpclient.JoinURL(t.opts.VertexBaseURL, "v1", "projects", cred.ServiceAccount.ProjectID,
		"locations", "us-central1", "publishers", "google", "models", req.Model+":"+verb)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	if req.Stream {
		url += "?alt=sse"
	}

	body, err := t.buildPayload(req)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	return t.dispatch(httpReq, req, egressFormat, w)
}

func (t *Transactor) dispatch(httpReq *http.Request, req *translator.Request, egressFormat translator.Format, w io.Writer) Result {
	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return Result{Outcome: resource.Outcome{Kind: resource.OutcomeTransientFail}}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return Result{Outcome: classifyStatus(resp.StatusCode)}
	}

	canonicalResp, err := streampipe.PipeOrBuffer(resp.Body, w, req.Stream, translator.FormatGemini, egressFormat, req.StopSequences, t.opts.StreamKeepAliveInterval)
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

// buildPayload renders req as a native Gemini generateContent body, then
// applies the teacher's field-stripping/safety-setting adjustments.
func (t *Transactor) buildPayload(req *translator.Request) ([]byte, error) {
	body, err := translator.CanonicalToGeminiRequest(req)
	if err != nil {
		return nil, err
	}
	body = stripUnsupportedFields(body)
	if t.opts.NativeIngress {
		body = t.applySafetySettings(body)
	}
	return body, nil
}

// stripUnsupportedFields removes OpenAI-only fields that have no Gemini
// equivalent, matching the teacher's client_payload.go deleteJSONField
// approach.
func stripUnsupportedFields(body []byte) []byte {
	for _, path := range []string{"frequency_penalty", "presence_penalty", "logit_bias", "user"} {
		if out, err := sjson.DeleteBytes(body, path); err == nil {
			body = out
		}
	}
	return body
}

func (t *Transactor) applySafetySettings(body []byte) []byte {
	if len(t.opts.SafetySettings) == 0 {
		return body
	}
	for i, s := range t.opts.SafetySettings {
		prefix := fmt.Sprintf("safetySettings.%d", i)
		if out, err := sjson.SetBytes(body, prefix+".category", s.Category); err == nil {
			body = out
		}
		if out, err := sjson.SetBytes(body, prefix+".threshold", s.Threshold); err == nil {
			body = out
		}
	}
	return body
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

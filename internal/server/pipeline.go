package server

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"clewdr-go/internal/apperrors"
	"clewdr-go/internal/credential"
	"clewdr-go/internal/rescache"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/resource/strategy"
	"clewdr-go/internal/translator"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// transactorFunc adapts whichever concrete transactor a route targets
// (claudeweb.Transactor, claudecode.Transactor, gemini.Transactor — each
// with its own named Result type) into one shape the pipeline can drive
// uniformly, per Component K's "transactor dispatch" stage.
type transactorFunc func(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) (*translator.Response, resource.Outcome)

// routeSpec describes one of the six ingress surfaces in spec.md §6.
type routeSpec struct {
	ingress  translator.Format
	credKind credential.Kind
	execute  transactorFunc

	// postParse patches the canonical Request with metadata the wire
	// body doesn't carry — namely native Gemini's model and verb, which
	// travel in the URL path rather than the JSON body.
	postParse func(c *gin.Context, req *translator.Request)
}

// geminiModelFromPath splits gin's ":modelAndVerb" capture ("model:verb",
// e.g. "gemini-2.5-pro:streamGenerateContent") and injects the model name
// plus the streaming verb into the canonical Request, since a native
// Gemini request body never repeats the model or streaming intent that
// the URL already encodes.
func geminiModelFromPath(c *gin.Context, req *translator.Request) {
	applyModelVerbSegment(c.Param("modelAndVerb"), req)
}

// vertexModelFromPath does the same extraction for the Vertex wildcard
// route, whose "*path" capture mirrors the real Vertex REST layout
// (".../publishers/google/models/{model}:{verb}") rather than a bare
// "{model}:{verb}" segment.
func vertexModelFromPath(c *gin.Context, req *translator.Request) {
	full := strings.TrimPrefix(c.Param("path"), "/")
	seg := full
	if i := strings.LastIndex(full, "/"); i >= 0 {
		seg = full[i+1:]
	}
	applyModelVerbSegment(seg, req)
}

func applyModelVerbSegment(seg string, req *translator.Request) {
	model, verb, found := strings.Cut(seg, ":")
	if !found {
		model = seg
	}
	req.Model = model
	if verb == "streamGenerateContent" {
		req.Stream = true
	}
}

func (d *Dependencies) managerFor(kind credential.Kind) *resource.Manager {
	switch kind {
	case credential.KindCookie:
		return d.Cookies
	case credential.KindKey:
		return d.Keys
	case credential.KindOAuth:
		return d.OAuthCreds
	case credential.KindServiceAccount:
		return d.ServiceAccounts
	default:
		return nil
	}
}

// fingerprintProjection is the subset of a canonical Request hashed into
// a cache key. System and trailing messages are excludable per
// Fingerprint config, per spec.md §4.J.
type fingerprintProjection struct {
	Model         string
	Messages      []translator.Message
	System        []translator.ContentPart
	MaxTokens     int
	Temperature   *float64
	TopP          *float64
	StopSequences []string
	Stream        bool
}

func (d *Dependencies) buildProjection(req *translator.Request) fingerprintProjection {
	cfg := d.Config.Get().Fingerprint
	proj := fingerprintProjection{
		Model:         req.Model,
		Messages:      req.Messages,
		System:        req.System,
		MaxTokens:     req.MaxTokens,
		Temperature:   req.Temperature,
		TopP:          req.TopP,
		StopSequences: req.StopSequences,
		Stream:        req.Stream,
	}
	if cfg.ExcludeSystemPrompt {
		proj.System = nil
	}
	if cfg.ExcludeLastN > 0 && len(proj.Messages) > cfg.ExcludeLastN {
		proj.Messages = proj.Messages[:len(proj.Messages)-cfg.ExcludeLastN]
	} else if cfg.ExcludeLastN > 0 {
		proj.Messages = nil
	}
	return proj
}

// handle implements the full Component K pipeline for one ingress
// surface: canonicalize, cache lookup, transactor dispatch (with
// credential-lease retry up to Upstream.MaxRetries), response
// canonicalize/cache-store happen inside the cache producer, then
// format de-canonicalize, apply-usage, and emit are already folded into
// produce since the transactor renders egress bytes directly.
func (d *Dependencies) handle(spec routeSpec) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("ingress_format", spec.ingress)

		raw, err := io.ReadAll(c.Request.Body)
		if err != nil {
			writeError(c, spec.ingress, apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", "could not read request body"))
			return
		}

		req, err := translator.ParseRequest(spec.ingress, raw)
		if err != nil {
			writeError(c, spec.ingress, apperrors.New(http.StatusBadRequest, "invalid_request", "invalid_request_error", err.Error()))
			return
		}
		if spec.postParse != nil {
			spec.postParse(c, req)
		}

		projection := d.buildProjection(req)
		fingerprint, err := rescache.Fingerprint(projection)
		if err != nil || d.Cache == nil {
			d.dispatchAndWrite(c, spec, req)
			return
		}

		entry, err := d.Cache.GetOrProduce(c.Request.Context(), fingerprint, func(ctx context.Context) (*rescache.Entry, error) {
			buf, apiErr := d.dispatchOnce(ctx, spec, req)
			if apiErr != nil {
				return nil, apiErr
			}
			return &rescache.Entry{Body: buf}, nil
		})
		if err != nil {
			var apiErr *apperrors.APIError
			if errors.As(err, &apiErr) {
				writeError(c, spec.ingress, apiErr)
				return
			}
			writeError(c, spec.ingress, apperrors.MapNetworkError(err))
			return
		}

		c.Data(http.StatusOK, contentTypeFor(spec.ingress, req.Stream), entry.Body)
	}
}

// dispatchAndWrite is the no-cache fallback path (Cache == nil, or
// fingerprinting failed), writing directly to the response writer
// instead of buffering into a cache Entry first.
func (d *Dependencies) dispatchAndWrite(c *gin.Context, spec routeSpec, req *translator.Request) {
	buf, apiErr := d.dispatchOnce(c.Request.Context(), spec, req)
	if apiErr != nil {
		writeError(c, spec.ingress, apiErr)
		return
	}
	c.Data(http.StatusOK, contentTypeFor(spec.ingress, req.Stream), buf)
}

// dispatchOnce leases a credential, invokes the transactor, and retries
// on a fresh lease up to the configured retry budget per spec.md §5's
// "Retry budget" rule, returning the last mapped error on exhaustion.
func (d *Dependencies) dispatchOnce(ctx context.Context, spec routeSpec, req *translator.Request) ([]byte, *apperrors.APIError) {
	mgr := d.managerFor(spec.credKind)
	if mgr == nil {
		return nil, apperrors.New(http.StatusInternalServerError, "no_manager", "api_error", "no resource manager configured for this credential kind")
	}

	routing := d.Config.Get().Routing
	filters := strategy.Filters{
		SkipNonPro:        routing.SkipNonPro,
		SkipRestricted:    routing.SkipRestricted,
		SkipFirstWarning:  routing.SkipFirstWarning,
		SkipSecondWarning: routing.SkipSecondWarning,
		SkipNormalPro:     routing.SkipNormalPro,
		SkipRateLimit:     routing.SkipRateLimit,
	}

	maxRetries := d.Config.Get().Upstream.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 1
	}

	var lastErr *apperrors.APIError
	for attempt := 0; attempt < maxRetries; attempt++ {
		handle, err := mgr.Lease(ctx, filters)
		if err != nil {
			return nil, apperrors.New(http.StatusServiceUnavailable, "no_credential", "overloaded_error", "no eligible credential available")
		}

		var buf bytes.Buffer
		resp, outcome := spec.execute(ctx, handle.Credential, req, spec.ingress, &buf)
		mgr.Release(handle, outcome)

		if outcome.Kind == resource.OutcomeOk {
			_ = resp
			return buf.Bytes(), nil
		}

		lastErr = mapOutcomeError(outcome)
		log.WithField("attempt", attempt+1).WithField("outcome", outcome.Kind).Debug("transactor attempt failed, retrying with a fresh lease")
	}
	if lastErr == nil {
		lastErr = apperrors.New(http.StatusBadGateway, "upstream_exhausted", "api_error", "retry budget exhausted")
	}
	return nil, lastErr
}

func mapOutcomeError(o resource.Outcome) *apperrors.APIError {
	switch o.Kind {
	case resource.OutcomeExhausted:
		// The credential that just failed is now Exhausted, not merely
		// rate-limited on this one call — report it as the service being
		// temporarily out of capacity rather than pass the upstream 429
		// straight through.
		return apperrors.New(http.StatusServiceUnavailable, "no_credential_available", "overloaded_error", "upstream rate limit; credential exhausted")
	case resource.OutcomeInvalid:
		return apperrors.New(http.StatusBadGateway, "upstream_invalid", "api_error", "upstream credential invalid")
	case resource.OutcomeForbidden:
		return apperrors.New(http.StatusBadGateway, "upstream_forbidden", "api_error", "upstream forbidden")
	default:
		return apperrors.New(http.StatusBadGateway, "upstream_transient", "api_error", "upstream transient failure")
	}
}

func contentTypeFor(format translator.Format, stream bool) string {
	if stream {
		return "text/event-stream"
	}
	_ = format
	return "application/json"
}

func writeError(c *gin.Context, format translator.Format, apiErr *apperrors.APIError) {
	if retryAfter := apiErr.GetRetryAfter(); retryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(retryAfter))
	}
	body, err := apiErr.ToJSON(apperrors.Format(format))
	if err != nil {
		c.AbortWithStatusJSON(apiErr.HTTPStatus, gin.H{"error": gin.H{"message": apiErr.Message}})
		return
	}
	c.Data(apiErr.HTTPStatus, "application/json", body)
	c.Abort()
}

// Package middleware implements Component K's ordered stage chain:
// requestid, CORS, logging, recovery, bearer auth, and rate limiting.
// Adapted from the teacher's internal/middleware, with the bearer
// comparison rewritten to be constant-time (the teacher compares the
// provided and configured keys with plain `!=`, which leaks timing
// information proportional to the shared prefix length).
package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"strings"

	"clewdr-go/internal/apperrors"
	"clewdr-go/internal/translator"

	"github.com/gin-gonic/gin"
)

// secureCompare reports whether a and b are equal without leaking
// timing information about a shared prefix. Hashing first also means
// the subtle.ConstantTimeCompare call always operates on equal-length
// buffers regardless of how long the caller-supplied token is.
func secureCompare(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ah := sha256.Sum256([]byte(a))
	bh := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ah[:], bh[:]) == 1
}

// extractBearer pulls a token from Authorization: Bearer, x-api-key,
// x-goog-api-key, or the `key` query parameter, in that order, matching
// the conventions of all three ingress formats this proxy fronts.
func extractBearer(c *gin.Context) string {
	if auth := c.GetHeader("Authorization"); auth != "" {
		if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
			return strings.TrimSpace(auth[len("bearer "):])
		}
		return strings.TrimSpace(auth)
	}
	if key := c.GetHeader("x-api-key"); key != "" {
		return key
	}
	if key := c.GetHeader("x-goog-api-key"); key != "" {
		return key
	}
	if key := c.Query("key"); key != "" {
		return key
	}
	return ""
}

// RequireBearer authenticates every request against the token returned
// by expected, called fresh on every request so a config hot-reload
// takes effect immediately. An empty expected token disables auth
// entirely (matching the teacher's "no key configured" escape hatch).
func RequireBearer(expected func() string) gin.HandlerFunc {
	return func(c *gin.Context) {
		want := expected()
		if want == "" {
			c.Next()
			return
		}
		got := extractBearer(c)
		if !secureCompare(got, want) {
			format := detectFormat(c)
			writeAuthError(c, format)
			return
		}
		c.Set("authenticated", true)
		c.Next()
	}
}

func detectFormat(c *gin.Context) translator.Format {
	if f, ok := c.Get("ingress_format"); ok {
		if ff, ok := f.(translator.Format); ok {
			return ff
		}
	}
	path := c.Request.URL.Path
	switch {
	case strings.HasPrefix(path, "/v1beta"):
		return translator.FormatGemini
	case strings.Contains(path, "chat/completions"):
		return translator.FormatOpenAI
	default:
		return translator.FormatClaudeNative
	}
}

func writeAuthError(c *gin.Context, format translator.Format) {
	apiErr := apperrors.New(http.StatusUnauthorized, "invalid_api_key", "authentication_error", "missing or invalid bearer token")
	body, err := apiErr.ToJSON(apperrors.Format(format))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"message": apiErr.Message}})
		return
	}
	c.Data(http.StatusUnauthorized, "application/json", body)
	c.Abort()
}

package credential

import (
	"regexp"
	"strings"
)

var cookieBodyPattern = regexp.MustCompile(`^[0-9A-Za-z_-]{86}-[0-9A-Za-z_-]{6}AA$`)

// ParseCookie normalizes a raw cookie string into its bare session-token
// body, tolerating the several shapes operators paste in: a bare token, a
// "sessionKey=sk-ant-sid01-..." cookie header value, or an "email@token"
// pairing. Grounded on clewdr's ClewdrCookie::from (config/cookie.rs).
func ParseCookie(raw string) string {
	body := raw
	if idx := strings.LastIndex(body, "@"); idx >= 0 {
		body = body[idx+1:]
	}
	var b strings.Builder
	for _, r := range body {
		switch {
		case r >= '0' && r <= '9', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '=', r == '_', r == '-':
			b.WriteRune(r)
		}
	}
	body = b.String()
	body = strings.TrimPrefix(body, "sessionKey=")
	body = strings.TrimPrefix(body, "sk-ant-sid01-")
	return body
}

// ValidCookieFormat reports whether a parsed cookie body matches Claude's
// session-token shape.
func ValidCookieFormat(body string) bool {
	return cookieBodyPattern.MatchString(body)
}

// FormatCookieHeader renders a parsed cookie body back into the
// "sessionKey=sk-ant-sid01-..." form Claude.ai expects on the wire.
func FormatCookieHeader(body string) string {
	return "sessionKey=sk-ant-sid01-" + body
}

// NewCookieCredential builds a Credential from a raw pasted cookie value.
func NewCookieCredential(id, raw string) *Credential {
	body := ParseCookie(raw)
	return &Credential{
		ID:     id,
		Kind:   KindCookie,
		Cookie: &CookieData{SessionToken: body},
		State:  Lifecycle{Tag: StateValid},
	}
}

// NewKeyCredential builds a Credential wrapping a bare API key.
func NewKeyCredential(id, apiKey string) *Credential {
	return &Credential{
		ID:    id,
		Kind:  KindKey,
		Key:   &KeyData{APIKey: apiKey},
		State: Lifecycle{Tag: StateValid},
	}
}

// NewOAuthCredential builds a Credential for the refresh_token grant.
func NewOAuthCredential(id, clientID, clientSecret, refreshToken string) *Credential {
	return &Credential{
		ID:    id,
		Kind:  KindOAuth,
		OAuth: &OAuthData{ClientID: clientID, ClientSecret: clientSecret, RefreshToken: refreshToken},
		State: Lifecycle{Tag: StateValid},
	}
}

// NewServiceAccountCredential builds a Credential for a Vertex service
// account key.
func NewServiceAccountCredential(id, clientEmail, privateKey, projectID, keyID string) *Credential {
	return &Credential{
		ID:             id,
		Kind:           KindServiceAccount,
		ServiceAccount: &ServiceAccountData{ClientEmail: clientEmail, PrivateKey: privateKey, ProjectID: projectID, KeyID: keyID},
		State:          Lifecycle{Tag: StateValid},
	}
}

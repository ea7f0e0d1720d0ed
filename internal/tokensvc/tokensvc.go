// Package tokensvc implements Component D, the OAuth/Vertex Token
// Service: mints and caches bearer tokens for OAuth and service-account
// credentials, collapsing concurrent refreshes for the same credential
// into one upstream call. Grounded on the teacher's internal/oauth
// Manager.RefreshToken (manual refresh_token grant), retargeted onto
// golang.org/x/oauth2's TokenSource machinery instead of a hand-rolled
// HTTP POST, since this corpus's oauth2 dependency already covers it.
package tokensvc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"clewdr-go/internal/credential"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	"golang.org/x/sync/singleflight"
)

// cachedToken is one credential's last-minted access token.
type cachedToken struct {
	accessToken string
	expiresAt   time.Time
}

// Service mints and caches access tokens for OAuth and service-account
// credentials. One Service instance is shared across all transactors.
type Service struct {
	mu    sync.Mutex
	cache map[string]cachedToken

	group singleflight.Group

	// skew is how far before actual expiry a cached token is treated as
	// stale, so a lease never hands out a token that expires mid-flight.
	skew time.Duration

	// mintFunc performs the actual grant; overridden in tests to avoid
	// reaching Google's token endpoint.
	mintFunc func(ctx context.Context, cred *credential.Credential) (string, time.Time, error)
}

// New constructs a Service. skew defaults to 60s if <= 0.
func New(skew time.Duration) *Service {
	if skew <= 0 {
		skew = 60 * time.Second
	}
	s := &Service{cache: make(map[string]cachedToken), skew: skew}
	s.mintFunc = s.mint
	return s
}

// Acquire returns a valid bearer token for cred, refreshing (at most once
// per credential concurrently, via singleflight) if the cached token is
// missing or within skew of expiry. Only KindOAuth and
// KindServiceAccount are supported.
func (s *Service) Acquire(ctx context.Context, cred *credential.Credential) (string, error) {
	if tok, ok := s.cached(cred.ID); ok {
		return tok, nil
	}

	v, err, _ := s.group.Do(cred.ID, func() (interface{}, error) {
		if tok, ok := s.cached(cred.ID); ok {
			return tok, nil
		}
		token, expiresAt, err := s.mintFunc(ctx, cred)
		if err != nil {
			return "", err
		}
		s.mu.Lock()
		s.cache[cred.ID] = cachedToken{accessToken: token, expiresAt: expiresAt}
		s.mu.Unlock()
		return token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// Invalidate drops any cached token for cred, forcing the next Acquire to
// mint a fresh one (used after a 401 from the upstream).
func (s *Service) Invalidate(credID string) {
	s.mu.Lock()
	delete(s.cache, credID)
	s.mu.Unlock()
}

func (s *Service) cached(credID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.cache[credID]
	if !ok || time.Now().Add(s.skew).After(tok.expiresAt) {
		return "", false
	}
	return tok.accessToken, true
}

func (s *Service) mint(ctx context.Context, cred *credential.Credential) (string, time.Time, error) {
	switch cred.Kind {
	case credential.KindOAuth:
		return s.mintOAuth(ctx, cred)
	case credential.KindServiceAccount:
		return s.mintServiceAccount(ctx, cred)
	default:
		return "", time.Time{}, fmt.Errorf("tokensvc: credential kind %q has no token grant", cred.Kind)
	}
}

func (s *Service) mintOAuth(ctx context.Context, cred *credential.Credential) (string, time.Time, error) {
	if cred.OAuth == nil {
		return "", time.Time{}, fmt.Errorf("tokensvc: oauth credential %s missing data", cred.ID)
	}
	cfg := &oauth2.Config{
		ClientID:     cred.OAuth.ClientID,
		ClientSecret: cred.OAuth.ClientSecret,
		Endpoint:     google.Endpoint,
	}
	src := cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: cred.OAuth.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokensvc: refresh oauth token: %w", err)
	}
	return tok.AccessToken, tok.Expiry, nil
}

func (s *Service) mintServiceAccount(ctx context.Context, cred *credential.Credential) (string, time.Time, error) {
	if cred.ServiceAccount == nil {
		return "", time.Time{}, fmt.Errorf("tokensvc: service account credential %s missing data", cred.ID)
	}
	cfg := &jwt.Config{
		Email:      cred.ServiceAccount.ClientEmail,
		PrivateKey: []byte(cred.ServiceAccount.PrivateKey),
		PrivateKeyID: cred.ServiceAccount.KeyID,
		TokenURL:   google.JWTTokenURL,
		Scopes:     []string{"https://www.googleapis.com/auth/cloud-platform"},
	}
	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("tokensvc: exchange service account jwt: %w", err)
	}
	return tok.AccessToken, tok.Expiry, nil
}

package strategy

import (
	"testing"

	"clewdr-go/internal/credential"

	"github.com/stretchr/testify/assert"
)

func validCookie(id string) *credential.Credential {
	c := &credential.Credential{ID: id, Kind: credential.KindCookie, Cookie: &credential.CookieData{}}
	c.TransitionToValid()
	return c
}

func TestRankExcludesCandidatesGatedByCapabilityFilters(t *testing.T) {
	rateLimited := validCookie("rate-limited")
	rateLimited.UpdateCookieCapabilities(credential.CookieCapabilities{RateLimited: true})

	healthy := validCookie("healthy")

	out := Rank([]*credential.Credential{rateLimited, healthy}, Filters{SkipRateLimit: true})
	assert.Len(t, out, 1)
	assert.Equal(t, "healthy", out[0].ID)
}

func TestRankKeepsCandidateWhenMatchingFilterIsDisabled(t *testing.T) {
	rateLimited := validCookie("rate-limited")
	rateLimited.UpdateCookieCapabilities(credential.CookieCapabilities{RateLimited: true})

	out := Rank([]*credential.Credential{rateLimited}, Filters{SkipRateLimit: false})
	assert.Len(t, out, 1)
}

func TestRankAppliesEachCapabilityFilterIndependently(t *testing.T) {
	cases := []struct {
		name string
		caps credential.CookieCapabilities
		f    Filters
	}{
		{"non-pro", credential.CookieCapabilities{NonPro: true}, Filters{SkipNonPro: true}},
		{"restricted", credential.CookieCapabilities{Restricted: true}, Filters{SkipRestricted: true}},
		{"first-warning", credential.CookieCapabilities{FirstWarning: true}, Filters{SkipFirstWarning: true}},
		{"second-warning", credential.CookieCapabilities{SecondWarning: true}, Filters{SkipSecondWarning: true}},
		{"normal-pro", credential.CookieCapabilities{NormalPro: true}, Filters{SkipNormalPro: true}},
		{"rate-limit", credential.CookieCapabilities{RateLimited: true}, Filters{SkipRateLimit: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			gated := validCookie("gated")
			gated.UpdateCookieCapabilities(tc.caps)
			out := Rank([]*credential.Credential{gated}, tc.f)
			assert.Empty(t, out, "expected %s capability to be gated by its matching filter", tc.name)
		})
	}
}

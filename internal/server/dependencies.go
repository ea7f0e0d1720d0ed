// Package server implements Component K's outer half: gin route groups
// per ingress surface plus the admin CRUD surface, wired to the
// middleware chain and the request pipeline. Grounded on the teacher's
// internal/server/{routes_openai.go,routes_gemini.go,builder.go},
// regrouped around the six ingress paths of this proxy instead of the
// teacher's two (OpenAI/Gemini) engines.
package server

import (
	"net/http"

	"clewdr-go/internal/config"
	"clewdr-go/internal/credstore"
	"clewdr-go/internal/rescache"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/tokensvc"
	"clewdr-go/internal/transactor/claudecode"
	"clewdr-go/internal/transactor/claudeweb"
	"clewdr-go/internal/transactor/gemini"
)

// Dependencies aggregates every wired component a request might touch.
// Built once in cmd/server/main.go and handed to BuildEngine.
type Dependencies struct {
	Config *config.Manager

	Cookies         *resource.Manager
	Keys            *resource.Manager
	OAuthCreds      *resource.Manager
	ServiceAccounts *resource.Manager

	Store credstore.Store
	Cache *rescache.Cache

	Tokens *tokensvc.Service

	ClaudeWeb  *claudeweb.Transactor
	ClaudeCode *claudecode.Transactor
	Gemini     *gemini.Transactor

	HTTPClient *http.Client
}

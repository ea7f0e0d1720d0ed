package server

import (
	"context"
	"io"

	"clewdr-go/internal/credential"
	"clewdr-go/internal/middleware"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/translator"

	"github.com/gin-gonic/gin"
)

// claudeWebFunc, claudeCodeFunc, geminiFunc adapt each transactor's
// Execute method (returning its own named Result type) into the shared
// transactorFunc shape the pipeline drives.
func claudeWebFunc(d *Dependencies) transactorFunc {
	return func(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) (*translator.Response, resource.Outcome) {
		res := d.ClaudeWeb.Execute(ctx, cred, req, egressFormat, w)
		return res.Response, res.Outcome
	}
}

func claudeCodeFunc(d *Dependencies) transactorFunc {
	return func(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) (*translator.Response, resource.Outcome) {
		res := d.ClaudeCode.Execute(ctx, cred, req, egressFormat, w)
		return res.Response, res.Outcome
	}
}

func geminiFunc(d *Dependencies) transactorFunc {
	return func(ctx context.Context, cred *credential.Credential, req *translator.Request, egressFormat translator.Format, w io.Writer) (*translator.Response, resource.Outcome) {
		res := d.Gemini.Execute(ctx, cred, req, egressFormat, w)
		return res.Response, res.Outcome
	}
}

// BuildEngine assembles the gin.Engine for every ingress/admin surface
// named in spec.md §6, wiring the middleware chain ahead of each group.
func BuildEngine(d *Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(), middleware.CORS(), middleware.Tracing(), middleware.RequestLogger())

	cfg := d.Config.Get()
	r.Use(middleware.RateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst))

	userAuth := middleware.RequireBearer(func() string { return d.Config.Get().Security.Password })
	adminAuth := middleware.RequireBearer(func() string { return d.Config.Get().Security.AdminPassword })

	ingress := r.Group("/")
	ingress.Use(userAuth)

	ingress.POST("/v1/messages", d.handle(routeSpec{
		ingress: translator.FormatClaudeNative, credKind: credential.KindCookie, execute: claudeWebFunc(d),
	}))
	ingress.POST("/v1/chat/completions", d.handle(routeSpec{
		ingress: translator.FormatOpenAI, credKind: credential.KindCookie, execute: claudeWebFunc(d),
	}))
	ingress.POST("/code/v1/messages", d.handle(routeSpec{
		ingress: translator.FormatClaudeNative, credKind: credential.KindOAuth, execute: claudeCodeFunc(d),
	}))
	ingress.POST("/v1beta/models/:modelAndVerb", d.handle(routeSpec{
		ingress: translator.FormatGemini, credKind: credential.KindKey, execute: geminiFunc(d),
		postParse: geminiModelFromPath,
	}))
	ingress.POST("/gemini/chat/completions", d.handle(routeSpec{
		ingress: translator.FormatOpenAI, credKind: credential.KindKey, execute: geminiFunc(d),
	}))
	ingress.POST("/v1/vertex/*path", d.handle(routeSpec{
		ingress: translator.FormatGemini, credKind: credential.KindServiceAccount, execute: geminiFunc(d),
		postParse: vertexModelFromPath,
	}))

	admin := r.Group("/admin")
	admin.Use(adminAuth)
	d.registerAdminRoutes(admin)

	return r
}

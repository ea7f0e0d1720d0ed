package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clewdr-go/internal/config"
	"clewdr-go/internal/credential"
	"clewdr-go/internal/credstore"
	"clewdr-go/internal/events"
	"clewdr-go/internal/httpclient"
	"clewdr-go/internal/logging"
	"clewdr-go/internal/rescache"
	"clewdr-go/internal/resource"
	"clewdr-go/internal/server"
	"clewdr-go/internal/tokensvc"
	"clewdr-go/internal/tracing"
	"clewdr-go/internal/transactor/claudecode"
	"clewdr-go/internal/transactor/claudeweb"
	"clewdr-go/internal/transactor/gemini"

	log "github.com/sirupsen/logrus"
)

const version = "0.1.0"

func main() {
	configPath := flag.String("config", "clewdr.toml", "path to the TOML configuration document")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("clewdr-go " + version)
		return
	}

	cfgMgr, err := config.NewManager(*configPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}
	cfg := cfgMgr.Get()

	if err := logging.Setup(cfg); err != nil {
		log.WithError(err).Fatal("failed to configure logging")
	}

	traceShutdown, err := tracing.Init(context.Background())
	if err != nil {
		log.WithError(err).Warn("failed to initialize tracing")
	}
	if traceShutdown != nil {
		defer func() {
			if err := traceShutdown(context.Background()); err != nil {
				log.WithError(err).Warn("failed to shutdown tracing")
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	eventHub := events.NewHub()
	cfgMgr.SetEventPublisher(eventHub)
	if cfg.Security.Debug {
		eventHub.Subscribe(events.TopicConfigUpdated, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Debug("config reloaded")
		})
		eventHub.Subscribe(events.TopicCredentialChanged, func(_ context.Context, evt events.Event) {
			log.WithField("topic", evt.Topic).Tracef("credential change: %v", evt.Payload)
		})
	}
	if err := cfgMgr.WatchFile(ctx); err != nil {
		log.WithError(err).Warn("configuration hot-reload watcher unavailable")
	}

	store, err := credstore.Open(ctx, cfg.Persistence.Mode, cfg.Persistence.TOMLPath, cfg.Persistence.PostgresDSN, cfg.Persistence.MongoURI, cfg.Persistence.MongoDB)
	if err != nil {
		log.WithError(err).Fatal("failed to open credential store")
	}
	if cfg.Persistence.GitRemote != "" {
		store = credstore.NewGitSyncStore(store, cfg.Persistence.TOMLPath, credstore.GitSyncOptions{
			RemoteURL: cfg.Persistence.GitRemote,
			Branch:    cfg.Persistence.GitBranch,
		})
		log.WithField("remote", cfg.Persistence.GitRemote).Info("credential store snapshots will be mirrored to git on every save")
	}
	defer func() { _ = store.Close() }()

	autoBan := resource.AutoBanPolicy{
		Enabled:              cfg.AutoBan.Enabled,
		Threshold403:         cfg.AutoBan.Threshold403,
		ConsecutiveFailLimit: cfg.AutoBan.ConsecutiveFailLimit,
	}
	cookies := resource.NewManager(credential.KindCookie, cfg.Upstream.LeaseTimeout, autoBan, eventHub)
	keys := resource.NewManager(credential.KindKey, cfg.Upstream.LeaseTimeout, autoBan, eventHub)
	oauthCreds := resource.NewManager(credential.KindOAuth, cfg.Upstream.LeaseTimeout, autoBan, eventHub)
	serviceAccounts := resource.NewManager(credential.KindServiceAccount, cfg.Upstream.LeaseTimeout, autoBan, eventHub)

	managers := map[credential.Kind]*resource.Manager{
		credential.KindCookie:         cookies,
		credential.KindKey:            keys,
		credential.KindOAuth:          oauthCreds,
		credential.KindServiceAccount: serviceAccounts,
	}
	for _, mgr := range managers {
		mgr.Run(ctx, cfg.Routing.ReactivationTick)
	}

	if err := loadCredentials(ctx, store, managers); err != nil {
		log.WithError(err).Warn("failed to load credential snapshot; starting with an empty pool")
	}

	httpClient, err := httpclient.New(httpclient.Options{ProxyURL: cfg.Upstream.ProxyURL})
	if err != nil {
		log.WithError(err).Fatal("failed to build outbound HTTP client")
	}

	tokens := tokensvc.New(cfg.OAuth.TokenRefreshSkew)

	var cache *rescache.Cache
	if cfg.Cache.RedisAddr != "" {
		cache = rescache.New(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, cfg.Cache.RedisPrefix, cfg.Cache.TTL)
	}

	claudeWebTr := claudeweb.New(httpClient, cfg.Upstream.ClaudeWebBaseURL, claudeweb.Options{
		PreserveChats:           cfg.Upstream.PreserveChats,
		MaxRetries:              cfg.Upstream.MaxRetries,
		StreamKeepAliveInterval: cfg.Upstream.StreamKeepAliveInterval,
	})
	claudeCodeTr := claudecode.New(httpClient, cfg.Upstream.ClaudeCodeBaseURL, tokens, 256, cfg.Upstream.StreamKeepAliveInterval)
	geminiTr := gemini.New(httpClient, tokens, gemini.Options{
		AIStudioBaseURL: cfg.Upstream.AIStudioBaseURL,
		// gemini.Transactor hardcodes "us-central1" as the Vertex region in
		// its URL assembly; the format string is resolved once here so
		// config only ever holds one templated value.
		VertexBaseURL:           fmt.Sprintf(cfg.Upstream.VertexBaseURLFmt, "us-central1"),
		StreamKeepAliveInterval: cfg.Upstream.StreamKeepAliveInterval,
	})

	deps := &server.Dependencies{
		Config:          cfgMgr,
		Cookies:         cookies,
		Keys:            keys,
		OAuthCreds:      oauthCreds,
		ServiceAccounts: serviceAccounts,
		Store:           store,
		Cache:           cache,
		Tokens:          tokens,
		ClaudeWeb:       claudeWebTr,
		ClaudeCode:      claudeCodeTr,
		Gemini:          geminiTr,
		HTTPClient:      httpClient,
	}

	engine := server.BuildEngine(deps)
	httpSrv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Server.Port), Handler: engine}

	go func() {
		log.Infof("clewdr-go listening on :%d", cfg.Server.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("server stopped unexpectedly")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("graceful shutdown did not complete in time")
	}
	log.Info("server stopped")
}

// loadCredentials replays the durable snapshot into each kind's resource
// manager at startup, since Manager state (the rotation pool) is
// rebuilt in memory every process start, unlike the credstore document.
func loadCredentials(ctx context.Context, store credstore.Store, managers map[credential.Kind]*resource.Manager) error {
	snap, err := store.Load(ctx)
	if err != nil {
		return err
	}
	var loaded int
	for _, record := range snap.Credentials {
		cred := credstore.FromRecord(record)
		mgr, ok := managers[cred.Kind]
		if !ok || mgr == nil {
			log.WithField("kind", cred.Kind).Warn("skipping credential with unknown kind in snapshot")
			continue
		}
		if err := mgr.AdminAdd(cred); err != nil {
			log.WithError(err).WithField("id", cred.ID).Warn("failed to load credential from snapshot")
			continue
		}
		loaded++
	}
	log.Infof("loaded %d credentials from storage", loaded)
	return nil
}

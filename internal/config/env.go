package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnvOverrides layers CLEWDR_-prefixed, double-underscore-nested
// environment variables on top of cfg, e.g. CLEWDR_PERSISTENCE__MODE,
// CLEWDR_CACHE__REDIS_ADDR. Unset variables leave the existing value alone.
func applyEnvOverrides(cfg *Config) {
	str("CLEWDR_SERVER__BASE_PATH", &cfg.Server.BasePath)
	intVar("CLEWDR_SERVER__PORT", &cfg.Server.Port)
	boolVar("CLEWDR_SERVER__WEB_ADMIN_ENABLED", &cfg.Server.WebAdminEnabled)

	str("CLEWDR_SECURITY__PASSWORD", &cfg.Security.Password)
	str("CLEWDR_SECURITY__ADMIN_PASSWORD", &cfg.Security.AdminPassword)
	boolVar("CLEWDR_SECURITY__DEBUG", &cfg.Security.Debug)
	str("CLEWDR_SECURITY__LOG_FILE", &cfg.Security.LogFile)
	str("CLEWDR_SECURITY__AUTH_DIR", &cfg.Security.AuthDir)

	str("CLEWDR_PERSISTENCE__MODE", &cfg.Persistence.Mode)
	str("CLEWDR_PERSISTENCE__TOML_PATH", &cfg.Persistence.TOMLPath)
	str("CLEWDR_PERSISTENCE__POSTGRES_DSN", &cfg.Persistence.PostgresDSN)
	str("CLEWDR_PERSISTENCE__MONGO_URI", &cfg.Persistence.MongoURI)
	str("CLEWDR_PERSISTENCE__MONGO_DB", &cfg.Persistence.MongoDB)
	str("CLEWDR_PERSISTENCE__GIT_REMOTE", &cfg.Persistence.GitRemote)
	str("CLEWDR_PERSISTENCE__GIT_BRANCH", &cfg.Persistence.GitBranch)

	str("CLEWDR_UPSTREAM__CLAUDE_WEB_BASE_URL", &cfg.Upstream.ClaudeWebBaseURL)
	str("CLEWDR_UPSTREAM__CLAUDE_CODE_BASE_URL", &cfg.Upstream.ClaudeCodeBaseURL)
	str("CLEWDR_UPSTREAM__AI_STUDIO_BASE_URL", &cfg.Upstream.AIStudioBaseURL)
	str("CLEWDR_UPSTREAM__VERTEX_BASE_URL_FMT", &cfg.Upstream.VertexBaseURLFmt)
	str("CLEWDR_UPSTREAM__PROXY_URL", &cfg.Upstream.ProxyURL)
	intVar("CLEWDR_UPSTREAM__MAX_RETRIES", &cfg.Upstream.MaxRetries)
	durationVar("CLEWDR_UPSTREAM__LEASE_TIMEOUT", &cfg.Upstream.LeaseTimeout)
	boolVar("CLEWDR_UPSTREAM__PRESERVE_CHATS", &cfg.Upstream.PreserveChats)
	boolVar("CLEWDR_UPSTREAM__PAD_PROMPT_ENABLED", &cfg.Upstream.PadPromptEnabled)

	durationVar("CLEWDR_OAUTH__TOKEN_REFRESH_SKEW", &cfg.OAuth.TokenRefreshSkew)

	boolVar("CLEWDR_RATE_LIMIT__ENABLED", &cfg.RateLimit.Enabled)
	floatVar("CLEWDR_RATE_LIMIT__RPS", &cfg.RateLimit.RPS)
	intVar("CLEWDR_RATE_LIMIT__BURST", &cfg.RateLimit.Burst)

	boolVar("CLEWDR_AUTO_BAN__ENABLED", &cfg.AutoBan.Enabled)
	intVar("CLEWDR_AUTO_BAN__THRESHOLD_403", &cfg.AutoBan.Threshold403)
	intVar("CLEWDR_AUTO_BAN__CONSECUTIVE_FAIL_LIMIT", &cfg.AutoBan.ConsecutiveFailLimit)

	str("CLEWDR_CACHE__REDIS_ADDR", &cfg.Cache.RedisAddr)
	str("CLEWDR_CACHE__REDIS_PASSWORD", &cfg.Cache.RedisPassword)
	intVar("CLEWDR_CACHE__REDIS_DB", &cfg.Cache.RedisDB)
	str("CLEWDR_CACHE__REDIS_PREFIX", &cfg.Cache.RedisPrefix)
	durationVar("CLEWDR_CACHE__TTL", &cfg.Cache.TTL)
	intVar("CLEWDR_CACHE__MAX_ENTRIES", &cfg.Cache.MaxEntries)

	boolVar("CLEWDR_ROUTING__SKIP_NON_PRO", &cfg.Routing.SkipNonPro)
	boolVar("CLEWDR_ROUTING__SKIP_RESTRICTED", &cfg.Routing.SkipRestricted)
	boolVar("CLEWDR_ROUTING__SKIP_FIRST_WARNING", &cfg.Routing.SkipFirstWarning)
	boolVar("CLEWDR_ROUTING__SKIP_SECOND_WARNING", &cfg.Routing.SkipSecondWarning)
	boolVar("CLEWDR_ROUTING__SKIP_NORMAL_PRO", &cfg.Routing.SkipNormalPro)
	boolVar("CLEWDR_ROUTING__SKIP_RATE_LIMIT", &cfg.Routing.SkipRateLimit)
	durationVar("CLEWDR_ROUTING__REACTIVATION_TICK", &cfg.Routing.ReactivationTick)

	boolVar("CLEWDR_FINGERPRINT__EXCLUDE_SYSTEM_PROMPT", &cfg.Fingerprint.ExcludeSystemPrompt)
	intVar("CLEWDR_FINGERPRINT__EXCLUDE_LAST_N", &cfg.Fingerprint.ExcludeLastN)
}

func str(name string, dst *string) {
	if v, ok := lookup(name); ok {
		*dst = v
	}
}

func boolVar(name string, dst *bool) {
	if v, ok := lookup(name); ok {
		*dst = !(v == "false" || v == "0" || v == "")
	}
}

func intVar(name string, dst *int) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			*dst = n
		}
	}
}

func floatVar(name string, dst *float64) {
	if v, ok := lookup(name); ok {
		if n, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			*dst = n
		}
	}
}

func durationVar(name string, dst *time.Duration) {
	if v, ok := lookup(name); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
			*dst = d
		}
	}
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

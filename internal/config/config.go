// Package config loads and holds the process-wide configuration document.
package config

import "time"

// Config is the fully-resolved runtime configuration: TOML document
// overridden by CLEWDR_-prefixed environment variables.
type Config struct {
	Server       ServerConfig
	Security     SecurityConfig
	Persistence  PersistenceConfig
	Upstream     UpstreamConfig
	OAuth        OAuthConfig
	RateLimit    RateLimitConfig
	AutoBan      AutoBanConfig
	Cache        CacheConfig
	Routing      RoutingConfig
	Fingerprint  FingerprintConfig
}

// ServerConfig controls listen addresses and path prefixes.
type ServerConfig struct {
	Port           int
	BasePath       string
	WebAdminEnabled bool
	ShutdownTimeout time.Duration
}

// SecurityConfig controls bearer-token auth and logging.
type SecurityConfig struct {
	Password      string // user bearer token, constant-time compared
	AdminPassword string // admin bearer token
	Debug         bool
	LogFile       string
	AuthDir       string
}

// PersistenceConfig selects the credential-store backend.
type PersistenceConfig struct {
	Mode       string // "file", "postgres", "mongo"
	TOMLPath   string
	PostgresDSN string
	MongoURI    string
	MongoDB     string
	GitRemote   string
	GitBranch   string
}

// UpstreamConfig holds upstream base URLs and proxy settings.
type UpstreamConfig struct {
	ClaudeWebBaseURL        string
	ClaudeCodeBaseURL       string
	AIStudioBaseURL         string
	VertexBaseURLFmt        string // format string with a single %s for the region
	ProxyURL                string
	MaxRetries              int
	LeaseTimeout            time.Duration
	PreserveChats           bool
	PadPromptEnabled        bool
	StreamKeepAliveInterval time.Duration // 0 disables SSE keep-alive comment injection
}

// OAuthConfig holds the client credentials for refresh/JWT exchange.
type OAuthConfig struct {
	TokenRefreshSkew time.Duration // refresh when exp < now + skew
}

// RateLimitConfig controls ingress throttling.
type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// AutoBanConfig controls automatic promotion to Invalid on repeated failures.
type AutoBanConfig struct {
	Enabled              bool
	Threshold403         int
	ConsecutiveFailLimit int
}

// CacheConfig controls the response cache (Component J).
type CacheConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
	TTL           time.Duration
	MaxEntries    int
}

// RoutingConfig controls credential selection filters (Component B).
type RoutingConfig struct {
	SkipNonPro         bool
	SkipRestricted     bool
	SkipFirstWarning   bool
	SkipSecondWarning  bool
	SkipNormalPro      bool
	SkipRateLimit      bool
	ReactivationTick   time.Duration
}

// FingerprintConfig controls the cache-key projection (Component J).
type FingerprintConfig struct {
	ExcludeSystemPrompt bool
	ExcludeLastN        int
}

// Default returns a Config populated with the same defaults the teacher
// ships in its FileConfig zero-value expansion, adapted to this schema.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			WebAdminEnabled: true,
			ShutdownTimeout: 10 * time.Second,
		},
		Security: SecurityConfig{
			AuthDir: "auth",
		},
		Persistence: PersistenceConfig{
			Mode:     "file",
			TOMLPath: "clewdr.toml",
		},
		Upstream: UpstreamConfig{
			ClaudeWebBaseURL:        "https://claude.ai",
			ClaudeCodeBaseURL:       "https://api.anthropic.com",
			AIStudioBaseURL:         "https://generativelanguage.googleapis.com",
			VertexBaseURLFmt:        "https://%s-aiplatform.googleapis.com",
			MaxRetries:              3,
			LeaseTimeout:            5 * time.Minute,
			StreamKeepAliveInterval: 15 * time.Second,
		},
		OAuth: OAuthConfig{
			TokenRefreshSkew: 60 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Enabled: true,
			RPS:     5,
			Burst:   10,
		},
		AutoBan: AutoBanConfig{
			Enabled:              true,
			Threshold403:         5,
			ConsecutiveFailLimit: 8,
		},
		Cache: CacheConfig{
			RedisAddr:   "127.0.0.1:6379",
			RedisPrefix: "clewdr:cache:",
			TTL:         10 * time.Minute,
			MaxEntries:  2000,
		},
		Routing: RoutingConfig{
			ReactivationTick: time.Second,
		},
	}
}

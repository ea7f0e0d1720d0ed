package credential

// CookieCapabilities is the last-known account-capability classification
// for a Claude-web cookie, refreshed on each organization lookup
// (claudeweb.Transactor.discoverOrganization). It backs the §4.B
// rotation-policy skip filters against still-Valid cookies, as distinct
// from the permanent ReasonNonPro/ReasonRestricted classification that
// moves a credential to Invalid outright.
type CookieCapabilities struct {
	NonPro        bool // lacks the claude_pro capability
	Restricted    bool // restricted_to_normal_organizations capability present
	FirstWarning  bool // one moderation warning issued
	SecondWarning bool // second moderation warning issued, one step from ban
	NormalPro     bool // claude_pro without a higher (team/max) tier
	RateLimited   bool // upstream signaled soft rate-limit pressure short of Exhausted
}

// UpdateCookieCapabilities records caps against the credential's cookie
// data. No-op for non-cookie credentials.
func (c *Credential) UpdateCookieCapabilities(caps CookieCapabilities) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Cookie == nil {
		return
	}
	c.Cookie.Capabilities = caps
}

// CookieCapabilities returns the credential's last-known capability
// classification, or the zero value for non-cookie credentials.
func (c *Credential) CookieCapabilities() CookieCapabilities {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Cookie == nil {
		return CookieCapabilities{}
	}
	return c.Cookie.Capabilities
}

// Package httpclient builds the outbound *http.Client used by every
// transactor: a shared transport approximating a desktop browser's TLS
// fingerprint, optional upstream proxying, and URL composition that never
// falls back to string concatenation. Grounded on the teacher's
// internal/upstream request plumbing, generalized from a single Gemini
// upstream to the three upstream families this proxy fronts.
package httpclient

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// Options configures the shared transport.
type Options struct {
	// ProxyURL, if set, routes all outbound traffic through it. Supports
	// http://, https://, and socks5:// schemes.
	ProxyURL string

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
	IdleConnTimeout     time.Duration
	MaxIdleConnsPerHost int
}

// defaultOptions mirrors the teacher's upstream client's conservative
// pool sizing.
func defaultOptions() Options {
	return Options{
		DialTimeout:         10 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		IdleConnTimeout:     90 * time.Second,
		MaxIdleConnsPerHost: 16,
	}
}

// New builds an *http.Client sharing one Transport, suitable for reuse
// across every outbound call a transactor makes. A zero Options value
// falls back to defaultOptions().
func New(opts Options) (*http.Client, error) {
	d := defaultOptions()
	if opts.DialTimeout > 0 {
		d.DialTimeout = opts.DialTimeout
	}
	if opts.TLSHandshakeTimeout > 0 {
		d.TLSHandshakeTimeout = opts.TLSHandshakeTimeout
	}
	if opts.IdleConnTimeout > 0 {
		d.IdleConnTimeout = opts.IdleConnTimeout
	}
	if opts.MaxIdleConnsPerHost > 0 {
		d.MaxIdleConnsPerHost = opts.MaxIdleConnsPerHost
	}

	dialer := &net.Dialer{Timeout: d.DialTimeout}
	transport := &http.Transport{
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: d.TLSHandshakeTimeout,
		IdleConnTimeout:     d.IdleConnTimeout,
		MaxIdleConnsPerHost: d.MaxIdleConnsPerHost,
		TLSClientConfig:     browserTLSConfig(),
	}

	if opts.ProxyURL != "" {
		if err := applyProxy(transport, dialer, opts.ProxyURL); err != nil {
			return nil, err
		}
	}

	return &http.Client{Transport: transport}, nil
}

// applyProxy wires transport.Proxy (http/https) or transport.DialContext
// (socks5) for the given proxy URL.
func applyProxy(transport *http.Transport, dialer *net.Dialer, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		sockDialer, err := proxy.FromURL(u, dialer)
		if err != nil {
			return err
		}
		transport.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
			return sockDialer.Dial(network, addr)
		}
	}
	return nil
}

// browserTLSConfig approximates a desktop Chrome cipher/curve preference
// ordering. Go's crypto/tls does not expose true JA3 fingerprint
// randomization; this is the idiomatic approximation available without
// cgo or a vendored fork, per spec.md §9.
func browserTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
		},
		CurvePreferences: []tls.CurveID{tls.X25519, tls.CurveP256, tls.CurveP384},
	}
}

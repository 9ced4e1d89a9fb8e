package config

import (
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// DefaultShutdownTimeout bounds graceful HTTP shutdown.
const DefaultShutdownTimeout = 10 * time.Second

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// BaseURL is the base URL of the application (e.g., "https://shop.example.com").
	// Used for links in incident notifications.
	BaseURL string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`

	// CookieDomain is the domain for the client cookie.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// CookieSecure marks the client cookie Secure.
	CookieSecure bool `env:"APP_COOKIE_SECURE" envDefault:"false"`

	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT"     envDefault:"15s"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT"    envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.BaseURL = strings.TrimRight(strings.TrimSpace(h.BaseURL), "/")
	h.CookieDomain = sanitizeCookieDomain(h.CookieDomain)
	if h.ReadTimeout <= 0 {
		h.ReadTimeout = 15 * time.Second
	}
	if h.WriteTimeout <= 0 {
		h.WriteTimeout = 30 * time.Second
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = DefaultShutdownTimeout
	}
}

// sanitizeCookieDomain drops domains browsers would reject: public suffixes
// such as "com" or "co.uk" and values that are not host names.
func sanitizeCookieDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, ".")
	if d == "" || strings.ContainsAny(d, "/: ") {
		return ""
	}
	if d == "localhost" {
		return d
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(d); err != nil {
		return ""
	}
	return d
}

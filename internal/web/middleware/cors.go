package middleware

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/kozaktomas/photo-grouper/internal/config"
)

const (
	// corsMethods matches the verbs registered under /api/v1.
	corsMethods = "GET, POST, PUT, DELETE, OPTIONS"

	// corsHeaders covers JSON bodies and EventSource reconnects.
	corsHeaders = "Accept, Content-Type, Cache-Control, Last-Event-ID, X-Request-Id"

	corsExposed = "X-Request-Id"
)

// originPolicy decides which browser origins may call the API.
type originPolicy struct {
	exact     map[string]struct{}
	localhost bool
}

func newOriginPolicy(cfg config.WebConfig) originPolicy {
	p := originPolicy{exact: make(map[string]struct{}, len(cfg.AllowedOrigins)), localhost: cfg.AllowLocalhost}
	for _, o := range cfg.AllowedOrigins {
		p.exact[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	return p.localhost && isLocalhost(origin)
}

// isLocalhost accepts http(s)://localhost and loopback addresses on any port.
// Hostnames that merely start with "localhost" are rejected.
func isLocalhost(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}

// CORS grants cross-origin access to the origins allowed by cfg. Preflight
// requests are answered directly with 204.
func CORS(cfg config.WebConfig) func(http.Handler) http.Handler {
	policy := newOriginPolicy(cfg)
	maxAge := strconv.Itoa(cfg.CORSMaxAge)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Add("Vary", "Origin")

			origin := r.Header.Get("Origin")
			allowed := policy.allows(origin)
			if allowed {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Expose-Headers", corsExposed)
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				if allowed {
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					if cfg.CORSMaxAge > 0 {
						h.Set("Access-Control-Max-Age", maxAge)
					}
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders locks responses down for a JSON-only API.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("X-Frame-Options", "DENY")
			h.Set("Referrer-Policy", "no-referrer")
			next.ServeHTTP(w, r)
		})
	}
}

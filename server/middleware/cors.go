package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// CORSConfig controls cross-origin access for browser EventSource clients.
// Last-Event-ID has to be an allowed header for a browser to resume a
// stream across origins.
type CORSConfig struct {
	// AllowedOrigins holds exact origins, "*", or a wildcard subdomain
	// such as "https://*.example.com".
	AllowedOrigins   []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	AllowedMethods   []string      `yaml:"allowed_methods" mapstructure:"allowed_methods"`
	AllowedHeaders   []string      `yaml:"allowed_headers" mapstructure:"allowed_headers"`
	AllowCredentials bool          `yaml:"allow_credentials" mapstructure:"allow_credentials"`
	MaxAge           time.Duration `yaml:"max_age" mapstructure:"max_age"`
}

type corsPolicy struct {
	any         bool
	exact       map[string]bool
	suffixes    [][2]string
	methods     string
	headers     string
	credentials bool
	maxAge      string
}

func newCORSPolicy(cfg *CORSConfig) *corsPolicy {
	p := &corsPolicy{
		exact:       make(map[string]bool),
		methods:     strings.Join(cfg.AllowedMethods, ", "),
		headers:     strings.Join(cfg.AllowedHeaders, ", "),
		credentials: cfg.AllowCredentials,
	}
	if cfg.MaxAge > 0 {
		p.maxAge = strconv.Itoa(int(cfg.MaxAge.Seconds()))
	}
	for _, o := range cfg.AllowedOrigins {
		switch {
		case o == "*":
			p.any = true
		case strings.Contains(o, "*."):
			scheme, host, _ := strings.Cut(o, "*.")
			p.suffixes = append(p.suffixes, [2]string{scheme, "." + host})
		default:
			p.exact[o] = true
		}
	}
	return p
}

func (p *corsPolicy) allows(origin string) bool {
	if p.any || p.exact[origin] {
		return true
	}
	for _, s := range p.suffixes {
		if rest, ok := strings.CutPrefix(origin, s[0]); ok && strings.HasSuffix(rest, s[1]) && len(rest) > len(s[1]) {
			return true
		}
	}
	return false
}

// CORS sets cross-origin headers for allowed origins and answers preflight
// requests itself. The allowed origin is echoed back rather than "*" so
// credentials keep working.
func CORS(cfg *CORSConfig) Middleware {
	p := newCORSPolicy(cfg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			if !p.allows(origin) {
				next.ServeHTTP(w, r)
				return
			}

			h.Set("Access-Control-Allow-Origin", origin)
			if p.credentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
			if r.Method != http.MethodOptions || r.Header.Get("Access-Control-Request-Method") == "" {
				next.ServeHTTP(w, r)
				return
			}

			if p.methods != "" {
				h.Set("Access-Control-Allow-Methods", p.methods)
			}
			if p.headers != "" {
				h.Set("Access-Control-Allow-Headers", p.headers)
			}
			if p.maxAge != "" {
				h.Set("Access-Control-Max-Age", p.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}

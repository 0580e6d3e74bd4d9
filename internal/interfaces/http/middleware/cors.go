package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig holds configuration for cross-origin request handling.
type CORSConfig struct {
	// AllowedOrigins lists origins permitted to call the API. "*" allows
	// everything; entries starting with "*." match subdomains.
	AllowedOrigins []string

	// AllowedMethods and AllowedHeaders are advertised on preflight.
	AllowedMethods []string
	AllowedHeaders []string

	// ExposedHeaders are response headers scripts may read.
	ExposedHeaders []string

	// AllowCredentials permits cookies and Authorization on cross-origin
	// calls. Never combined with a literal "*" origin in responses.
	AllowCredentials bool

	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int
}

// DefaultCORSConfig allows no origins; deployments list theirs explicitly.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{},
		AllowedMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			"X-Request-ID",
		},
		ExposedHeaders: []string{
			"X-Request-ID",
			"Content-Disposition",
			"X-RateLimit-Limit",
			"X-RateLimit-Remaining",
			"X-RateLimit-Reset",
		},
		AllowCredentials: false,
		MaxAge:           86400,
	}
}

// CORSMiddleware answers preflight requests and stamps CORS headers on
// responses to allowed origins. Disallowed origins get no CORS headers,
// which makes the browser reject the response on its side.
type CORSMiddleware struct {
	cfg      CORSConfig
	origins  map[string]bool
	suffixes []string
	allowAll bool

	methods string
	headers string
	exposed string
	maxAge  string
}

// NewCORSMiddleware creates a CORSMiddleware from the given config.
func NewCORSMiddleware(cfg CORSConfig) *CORSMiddleware {
	m := &CORSMiddleware{
		cfg:     cfg,
		origins: make(map[string]bool, len(cfg.AllowedOrigins)),
		methods: strings.Join(cfg.AllowedMethods, ", "),
		headers: strings.Join(cfg.AllowedHeaders, ", "),
		exposed: strings.Join(cfg.ExposedHeaders, ", "),
		maxAge:  strconv.Itoa(cfg.MaxAge),
	}
	for _, origin := range cfg.AllowedOrigins {
		switch {
		case origin == "*":
			m.allowAll = true
		case strings.HasPrefix(origin, "*."):
			// keep ".example.com" so "https://app.example.com" matches
			m.suffixes = append(m.suffixes, strings.ToLower(origin[1:]))
		default:
			m.origins[strings.ToLower(origin)] = true
		}
	}
	return m
}

func (m *CORSMiddleware) originAllowed(origin string) bool {
	if m.allowAll {
		return true
	}
	lower := strings.ToLower(origin)
	if m.origins[lower] {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

// Handler returns the middleware handler.
func (m *CORSMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !m.originAllowed(origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")
		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")

		if m.allowAll && !m.cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Origin", "*")
		} else {
			h.Set("Access-Control-Allow-Origin", origin)
		}
		if m.cfg.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", m.methods)
			h.Set("Access-Control-Allow-Headers", m.headers)
			if m.cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", m.maxAge)
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if m.exposed != "" {
			h.Set("Access-Control-Expose-Headers", m.exposed)
		}
		next.ServeHTTP(w, r)
	})
}

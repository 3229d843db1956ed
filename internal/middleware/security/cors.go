package security

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSConfig describes which browser origins may call the API.
type CORSConfig struct {
	// AllowedOrigins lists exact origins; "*" allows any origin.
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	ExposedHeaders []string
	MaxAge         int
}

// DefaultCORSConfig allows any origin to use bearer authenticated JSON
// requests.
func DefaultCORSConfig() CORSConfig {
	return CORSConfig{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         600,
	}
}

// CORSMiddleware answers preflight requests and decorates responses to
// cross-origin requests.
type CORSMiddleware struct {
	config  CORSConfig
	any     bool
	origins map[string]struct{}
}

func NewCORSMiddleware(config CORSConfig) *CORSMiddleware {
	c := &CORSMiddleware{config: config, origins: map[string]struct{}{}}
	for _, o := range config.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			c.any = true
			continue
		}
		if o != "" {
			c.origins[strings.TrimRight(o, "/")] = struct{}{}
		}
	}
	return c
}

func (c *CORSMiddleware) allowedOrigin(origin string) (string, bool) {
	if origin == "" {
		return "", false
	}
	if c.any {
		return "*", true
	}
	if _, ok := c.origins[origin]; ok {
		return origin, true
	}
	return "", false
}

func (c *CORSMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed, ok := c.allowedOrigin(origin)
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

		if !ok {
			if preflight {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", allowed)
		if allowed != "*" {
			h.Add("Vary", "Origin")
		}

		if preflight {
			h.Set("Access-Control-Allow-Methods", strings.Join(c.config.AllowedMethods, ", "))
			h.Set("Access-Control-Allow-Headers", strings.Join(c.config.AllowedHeaders, ", "))
			if c.config.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(c.config.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if len(c.config.ExposedHeaders) > 0 {
			h.Set("Access-Control-Expose-Headers", strings.Join(c.config.ExposedHeaders, ", "))
		}
		next.ServeHTTP(w, r)
	})
}

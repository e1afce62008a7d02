package httpkit

import (
	"net/http"
	"strconv"
	"strings"
)

type CORSOptions struct {
	AllowedOrigins []string
	AllowedMethods []string
	AllowedHeaders []string
	// ExposedHeaders lets the player read Content-Length and the request id.
	ExposedHeaders []string
	MaxAgeSeconds  int
}

// CORS answers preflight requests and decorates responses for allowed origins.
// An origin of "*" allows every origin.
func CORS(opt CORSOptions) func(http.Handler) http.Handler {
	if len(opt.AllowedMethods) == 0 {
		opt.AllowedMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	}
	if len(opt.AllowedHeaders) == 0 {
		opt.AllowedHeaders = []string{"Content-Type", "Accept", "Range"}
	}
	if opt.MaxAgeSeconds == 0 {
		opt.MaxAgeSeconds = 600
	}

	allowedMethods := strings.Join(opt.AllowedMethods, ", ")
	allowedHeaders := strings.Join(opt.AllowedHeaders, ", ")
	exposedHeaders := strings.Join(opt.ExposedHeaders, ", ")
	maxAge := strconv.Itoa(opt.MaxAgeSeconds)
	allowedOrigins := normalizeList(opt.AllowedOrigins)

	isAllowedOrigin := func(origin string) bool {
		if origin == "" {
			return false
		}
		for _, o := range allowedOrigins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if isAllowedOrigin(origin) {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", allowedMethods)
				h.Set("Access-Control-Allow-Headers", allowedHeaders)
				h.Set("Access-Control-Max-Age", maxAge)
				if exposedHeaders != "" {
					h.Set("Access-Control-Expose-Headers", exposedHeaders)
				}
			}

			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func normalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

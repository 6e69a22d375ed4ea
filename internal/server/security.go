// security.go - Security headers for the widget page and API.
package server

import (
	"net/http"
	"strings"
)

// securityHeadersMiddleware adds security headers to all responses.
// imgOrigins are extra origins allowed in img-src, e.g.
// "https://res.cloudinary.com".
func securityHeadersMiddleware(imgOrigins ...string) func(http.Handler) http.Handler {
	img := []string{"'self'", "data:", "blob:"}
	for _, o := range imgOrigins {
		if o != "" {
			img = append(img, o)
		}
	}

	// The widget page ships its script and styles inline.
	csp := "default-src 'self'; " +
		"script-src 'self' 'unsafe-inline'; " +
		"style-src 'self' 'unsafe-inline'; " +
		"img-src " + strings.Join(img, " ") + "; " +
		"connect-src 'self'; " +
		"frame-ancestors 'none'; " +
		"base-uri 'self'; " +
		"form-action 'self'"

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Content-Security-Policy", csp)
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=()")

			next.ServeHTTP(w, r)
		})
	}
}

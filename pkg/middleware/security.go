package middleware

import "net/http"

const (
	productionCSP  = "default-src 'none'; frame-ancestors 'none'; base-uri 'none'; form-action 'none'"
	developmentCSP = "default-src 'self'; frame-ancestors 'none'; base-uri 'self'; form-action 'self'"

	permissionsPolicy = "geolocation=(), microphone=(), camera=(), payment=(), usb=()"
)

// SecurityHeaders sets browser hardening headers on every response. HSTS is
// only sent in production so local plain-HTTP runs keep working.
func SecurityHeaders(production bool) Middleware {
	csp := developmentCSP
	if production {
		csp = productionCSP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Permissions-Policy", permissionsPolicy)
			h.Set("Content-Security-Policy", csp)
			if production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains; preload")
			}
			next.ServeHTTP(w, r)
		})
	}
}

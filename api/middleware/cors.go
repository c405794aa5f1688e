package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/cors"
)

const corsMaxAgeSeconds = 600

var localOrigins = []string{"http://localhost:3000", "http://127.0.0.1:3000"}

// CORS lets browser storefronts call the API. Blank entries are dropped and an
// empty list means local development. A "*" entry opens the API to any origin
// but then cookies and auth headers are not shared cross-origin.
func CORS(origins []string) func(http.Handler) http.Handler {
	allowed := make([]string, 0, len(origins))
	wildcard := false
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		switch origin {
		case "":
			continue
		case "*":
			wildcard = true
		}
		allowed = append(allowed, origin)
	}
	if len(allowed) == 0 {
		allowed = localOrigins
	}

	return cors.New(cors.Options{
		AllowedOrigins: allowed,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Authorization",
			"Content-Type",
			IdempotencyHeader,
			SessionHeader,
			TenantHeader,
		},
		ExposedHeaders:   []string{RequestIDHeader, IdempotentReplayHeader, "Retry-After"},
		AllowCredentials: !wildcard,
		MaxAge:           corsMaxAgeSeconds,
	}).Handler
}

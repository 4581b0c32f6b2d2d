package middleware

import (
	"slices"

	"github.com/go-chi/cors"
)

// CORS returns cors.Options for the web form and landing page origins.
// With "*" credentials are disabled, since browsers reject
// Access-Control-Allow-Credentials: true on a wildcard origin.
func CORS(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}

	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: !slices.Contains(allowedOrigins, "*"),
		MaxAge:           300,
	}
}

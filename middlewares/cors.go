package middlewares

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS wraps the whole handler so preflight requests are answered before gin routing.
// An empty origin list or "*" allows any origin.
func CORS(origins []string) *cors.Cors {
	allowAll := len(origins) == 0
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
	}

	opts := cors.Options{
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders: []string{"Authorization", "Content-Type", "Accept", "Origin", "X-Requested-With", "Cache-Control"},
		ExposedHeaders: []string{"X-Cache", "Retry-After"},
		MaxAge:         600,
	}
	if allowAll {
		opts.AllowedOrigins = []string{"*"}
	} else {
		opts.AllowedOrigins = origins
		opts.AllowCredentials = true
	}
	return cors.New(opts)
}

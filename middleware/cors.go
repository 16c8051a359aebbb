package middleware

import (
	"net/http"
	"os"
	"strconv"
)

// CORSMiddleware creates a CORS middleware for the read API.
func CORSMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Accept, Origin")
			w.Header().Set("Access-Control-Max-Age", getCORSMaxAge())

			// Handle preflight (OPTIONS) requests
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getCORSMaxAge gets the CORS max age from the environment or returns the
// default.
func getCORSMaxAge() string {
	if value := os.Getenv("CORS_MAX_AGE"); value != "" {
		if _, err := strconv.Atoi(value); err == nil {
			return value
		}
	}
	return "86400" // 24 hours
}

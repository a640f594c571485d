package server

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/chromapicker/license-server/internal/logging"
)

// CORSMiddleware adds cross-origin headers for the browser extension and
// answers preflight requests. The extension is not a same-origin caller, so
// the client endpoints default to a permissive policy.
func CORSMiddleware(allowedOrigins string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if allowedOrigins != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigins)
			w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware tags each request context with an ID so handler logs
// can be correlated. An inbound X-Request-ID is honored when present, and
// downstream handlers logging via log.Ctx pick up the ID automatically.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, requestID := logging.WithRequestID(r.Context(), r.Header.Get("X-Request-ID"))
		w.Header().Set("X-Request-ID", requestID)

		reqLogger := log.With().Str("request_id", requestID).Logger()
		ctx = reqLogger.WithContext(ctx)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

package server

import (
	"net/http"
	"time"

	"github.com/chromapicker/license-server/internal/licensing"
	"github.com/chromapicker/license-server/internal/server/admin"
	"github.com/chromapicker/license-server/internal/store"
	licstripe "github.com/chromapicker/license-server/internal/stripe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps holds shared dependencies injected into HTTP handlers.
type Deps struct {
	Config  *Config
	Store   *store.LicenseStore
	Issuer  *licstripe.Issuer
	Version string
}

// RegisterRoutes wires all HTTP handlers onto the given ServeMux.
func RegisterRoutes(mux *http.ServeMux, deps *Deps) {
	adminAuth := func(next http.Handler) http.Handler {
		return admin.AdminKeyMiddleware(deps.Config.AdminKey, next)
	}
	// CORS sits outermost so rejected requests (429s included) still carry
	// the cross-origin headers the extension needs to read the response,
	// and preflights answer without spending rate-limit budget.
	clientFacing := func(limiter *RateLimiter, next http.Handler) http.Handler {
		return CORSMiddleware(deps.Config.AllowedOrigins,
			RequestIDMiddleware(limiter.Middleware(next)))
	}

	// Health / readiness are unauthenticated liveness/readiness probes.
	mux.HandleFunc("/healthz", admin.HandleHealthz)
	mux.HandleFunc("/readyz", admin.HandleReadyz(deps.Store))

	// Status and metrics are private by default.
	statusHandler := http.HandlerFunc(admin.HandleStatus(deps.Store, deps.Version))
	if deps.Config.PublicStatus {
		mux.Handle("/status", statusHandler)
	} else {
		mux.Handle("/status", adminAuth(statusHandler))
	}

	metricsHandler := promhttp.Handler()
	if deps.Config.PublicMetrics {
		mux.Handle("/metrics", metricsHandler)
	} else {
		mux.Handle("/metrics", adminAuth(metricsHandler))
	}

	// Stripe webhook (signature-authenticated)
	issuer := deps.Issuer
	if issuer == nil {
		issuer = licstripe.NewIssuer(deps.Store)
	}
	webhookHandler := licstripe.NewWebhookHandler(deps.Config.StripeWebhookSecret, issuer)
	webhookLimiter := NewRateLimiter(120, time.Minute)
	mux.Handle("/api/stripe/webhook", webhookLimiter.Middleware(webhookHandler))

	// Client endpoints for the browser extension (CORS-open, rate-limited)
	clientLimiter := NewRateLimiter(240, time.Minute)
	mux.Handle("/api/license/validate",
		clientFacing(clientLimiter, licensing.HandleValidate(deps.Store)))
	mux.Handle("/api/license/check-email",
		clientFacing(clientLimiter, licensing.HandleCheckEmail(deps.Store)))

	// Admin API (key-authenticated)
	mux.Handle("/admin/licenses", adminAuth(admin.HandleListLicenses(deps.Store)))
	mux.Handle("/admin/licenses/{license_id}/deactivate", adminAuth(admin.HandleSetActive(deps.Store, false)))
	mux.Handle("/admin/licenses/{license_id}/activate", adminAuth(admin.HandleSetActive(deps.Store, true)))
}

package admin

import (
	"encoding/json"
	"net/http"

	"github.com/chromapicker/license-server/internal/licmetrics"
	"github.com/chromapicker/license-server/internal/store"
)

type statusResponse struct {
	Version       string `json:"version"`
	TotalLicenses int    `json:"total_licenses"`
	Active        int    `json:"active"`
	Inactive      int    `json:"inactive"`
}

// HandleHealthz returns 200 "ok" unconditionally (liveness probe).
func HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// HandleReadyz returns a handler that checks database connectivity (readiness probe).
func HandleReadyz(st *store.LicenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := st.Ping(); err != nil {
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("not ready"))
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	}
}

// HandleStatus returns a handler that reports aggregate license counts.
func HandleStatus(st *store.LicenseStore, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		active, inactive, err := st.CountByStatus()
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		// Opportunistically sync gauges on status calls (in addition to the background updater).
		licmetrics.LicensesByStatus.WithLabelValues("active").Set(float64(active))
		licmetrics.LicensesByStatus.WithLabelValues("inactive").Set(float64(inactive))

		resp := statusResponse{
			Version:       version,
			TotalLicenses: active + inactive,
			Active:        active,
			Inactive:      inactive,
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// Package licensing implements the client-facing license endpoints used by
// the browser extension: key validation and post-purchase email lookup.
package licensing

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/chromapicker/license-server/internal/licmetrics"
	"github.com/chromapicker/license-server/internal/store"
	"github.com/rs/zerolog/log"
)

type validateRequest struct {
	LicenseKey string `json:"licenseKey"`
}

type validateResponse struct {
	Valid       bool   `json:"valid"`
	Email       string `json:"email,omitempty"`
	ActivatedAt string `json:"activatedAt,omitempty"`
	Error       string `json:"error,omitempty"`
}

type checkEmailRequest struct {
	Email string `json:"email"`
}

type checkEmailResponse struct {
	Found       bool   `json:"found"`
	LicenseKey  string `json:"licenseKey,omitempty"`
	ActivatedAt string `json:"activatedAt,omitempty"`
	Error       string `json:"error,omitempty"`
}

// HandleValidate returns a handler that answers whether a license key is
// currently valid. Unknown and deactivated keys are normal negative
// results, not errors.
func HandleValidate(st *store.LicenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, validateResponse{Valid: false, Error: "Method not allowed"})
			return
		}

		var req validateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, validateResponse{Valid: false, Error: "License key required"})
			return
		}

		cleanKey := store.NormalizeLicenseKey(req.LicenseKey)
		if cleanKey == "" {
			licmetrics.ValidationTotal.WithLabelValues("bad_request").Inc()
			writeJSON(w, http.StatusBadRequest, validateResponse{Valid: false, Error: "License key required"})
			return
		}

		license, err := st.GetByKey(cleanKey)
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("License validation query failed")
			licmetrics.ValidationTotal.WithLabelValues("error").Inc()
			writeJSON(w, http.StatusInternalServerError, validateResponse{Valid: false, Error: "Server error"})
			return
		}
		if license == nil {
			licmetrics.ValidationTotal.WithLabelValues("invalid").Inc()
			writeJSON(w, http.StatusOK, validateResponse{Valid: false, Error: "Invalid license key"})
			return
		}
		if !license.IsActive {
			licmetrics.ValidationTotal.WithLabelValues("deactivated").Inc()
			writeJSON(w, http.StatusOK, validateResponse{Valid: false, Error: "License has been deactivated"})
			return
		}

		licmetrics.ValidationTotal.WithLabelValues("valid").Inc()
		writeJSON(w, http.StatusOK, validateResponse{
			Valid:       true,
			Email:       license.Email,
			ActivatedAt: license.CreatedAt.Format(time.RFC3339),
		})
	}
}

// HandleCheckEmail returns a handler that reports the most recent active
// license for an email. The extension polls this after checkout, before
// the webhook has necessarily landed.
func HandleCheckEmail(st *store.LicenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeJSON(w, http.StatusMethodNotAllowed, checkEmailResponse{Found: false, Error: "Method not allowed"})
			return
		}

		var req checkEmailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, checkEmailResponse{Found: false, Error: "Email required"})
			return
		}

		cleanEmail := store.NormalizeEmail(req.Email)
		if cleanEmail == "" {
			licmetrics.EmailLookupTotal.WithLabelValues("bad_request").Inc()
			writeJSON(w, http.StatusBadRequest, checkEmailResponse{Found: false, Error: "Email required"})
			return
		}

		license, err := st.LatestActiveByEmail(cleanEmail)
		if err != nil {
			log.Ctx(r.Context()).Error().Err(err).Msg("License email lookup failed")
			licmetrics.EmailLookupTotal.WithLabelValues("error").Inc()
			writeJSON(w, http.StatusInternalServerError, checkEmailResponse{Found: false, Error: "Server error"})
			return
		}
		if license == nil {
			licmetrics.EmailLookupTotal.WithLabelValues("not_found").Inc()
			writeJSON(w, http.StatusOK, checkEmailResponse{Found: false})
			return
		}

		licmetrics.EmailLookupTotal.WithLabelValues("found").Inc()
		writeJSON(w, http.StatusOK, checkEmailResponse{
			Found:       true,
			LicenseKey:  license.LicenseKey,
			ActivatedAt: license.CreatedAt.Format(time.RFC3339),
		})
	}
}

func writeJSON[T any](w http.ResponseWriter, status int, v T) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Int("status", status).Msg("licensing: encode response")
	}
}

package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/chromapicker/license-server/internal/store"
	"github.com/rs/zerolog/log"
)

// HandleListLicenses returns an authenticated handler that lists license records.
func HandleListLicenses(st *store.LicenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		// Optional active filter
		activeFilter := strings.TrimSpace(r.URL.Query().Get("active"))

		var licenses []*store.License
		var err error

		switch activeFilter {
		case "":
			licenses, err = st.List()
		case "true":
			licenses, err = st.ListByActive(true)
		case "false":
			licenses, err = st.ListByActive(false)
		default:
			http.Error(w, "active must be true or false", http.StatusBadRequest)
			return
		}
		if err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		if licenses == nil {
			licenses = []*store.License{}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"licenses": licenses,
			"count":    len(licenses),
		})
	}
}

// HandleSetActive returns an authenticated handler that flips the active
// flag on a license. This is the out-of-band deactivation path: the client
// endpoints only ever read the flag.
func HandleSetActive(st *store.LicenseStore, active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		id := strings.TrimSpace(r.PathValue("license_id"))
		if id == "" {
			http.Error(w, "license_id required", http.StatusBadRequest)
			return
		}

		if err := st.SetActive(id, active); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "license not found", http.StatusNotFound)
				return
			}
			log.Error().Err(err).Str("license_id", id).Msg("Failed to update license active flag")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		license, err := st.Get(id)
		if err != nil || license == nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		log.Info().
			Str("license_id", id).
			Bool("active", active).
			Msg("License active flag updated")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(license)
	}
}

// AdminKeyMiddleware returns middleware that requires a valid admin API key.
func AdminKeyMiddleware(adminKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if key == "" {
			// Also check Authorization: Bearer <key>
			auth := r.Header.Get("Authorization")
			if strings.HasPrefix(auth, "Bearer ") {
				key = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
			}
		}

		if key == "" || key != adminKey {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{
				"error": "unauthorized",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}

package server

import (
	"context"
	"time"

	"github.com/chromapicker/license-server/internal/licmetrics"
	"github.com/chromapicker/license-server/internal/store"
	"github.com/rs/zerolog/log"
)

const licenseStatusMetricsInterval = 30 * time.Second

func runLicenseStatusMetrics(ctx context.Context, st *store.LicenseStore) {
	ticker := time.NewTicker(licenseStatusMetricsInterval)
	defer ticker.Stop()

	// Prime once at startup so /metrics isn't empty for this gauge.
	updateLicenseStatusGauges(st)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			updateLicenseStatusGauges(st)
		}
	}
}

func updateLicenseStatusGauges(st *store.LicenseStore) {
	active, inactive, err := st.CountByStatus()
	if err != nil {
		log.Error().Err(err).Msg("Failed to update license status metrics")
		return
	}

	licmetrics.LicensesByStatus.WithLabelValues("active").Set(float64(active))
	licmetrics.LicensesByStatus.WithLabelValues("inactive").Set(float64(inactive))
}

package stripe

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromapicker/license-server/internal/licmetrics"
	"github.com/chromapicker/license-server/internal/store"
	"github.com/rs/zerolog/log"
)

// maxKeyAttempts bounds regeneration when a generated key collides with an
// existing row. 36^16 keys make more than a couple of collisions in a row
// effectively impossible.
const maxKeyAttempts = 5

// Issuer converts verified checkout events into license records, at most
// one per Stripe checkout session.
type Issuer struct {
	store *store.LicenseStore
}

// NewIssuer creates an Issuer backed by the given store.
func NewIssuer(st *store.LicenseStore) *Issuer {
	return &Issuer{store: st}
}

// HandleCheckout processes a checkout.session.completed event. Unpaid
// sessions, sessions without an email, and redelivered sessions are all
// acknowledged without creating a record; only store failures return an
// error so Stripe redelivers.
func (i *Issuer) HandleCheckout(ctx context.Context, session CheckoutSession) (err error) {
	outcome := "issued"
	defer func() {
		if err != nil {
			outcome = "error"
		}
		licmetrics.IssuanceTotal.WithLabelValues(outcome).Inc()
	}()

	if session.PaymentStatus != "paid" {
		log.Info().
			Str("session_id", session.ID).
			Str("payment_status", session.PaymentStatus).
			Msg("Checkout session not paid, skipping issuance")
		outcome = "not_paid"
		return nil
	}

	email := session.CustomerEmailAddress()
	if email == "" {
		// Acknowledge anyway: a 500 here would make Stripe redeliver an
		// event we can never process.
		log.Warn().
			Str("session_id", session.ID).
			Msg("Checkout session has no customer email, skipping issuance")
		outcome = "no_email"
		return nil
	}

	existing, err := i.store.GetByStripeSessionID(session.ID)
	if err != nil {
		return fmt.Errorf("lookup existing license: %w", err)
	}
	if existing != nil {
		log.Info().
			Str("license_id", existing.ID).
			Str("session_id", session.ID).
			Msg("License already exists for checkout session, skipping issuance")
		outcome = "duplicate"
		return nil
	}

	license, err := i.createWithFreshKey(email, session.ID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateSession) {
			// Lost the check-then-insert race to a concurrent delivery of
			// the same event; the winner's record is the one that counts.
			log.Info().
				Str("session_id", session.ID).
				Msg("Concurrent delivery already created license, skipping issuance")
			outcome = "duplicate"
			return nil
		}
		return err
	}

	log.Info().
		Str("license_id", license.ID).
		Str("email", license.Email).
		Str("session_id", session.ID).
		Msg("License issued")
	return nil
}

// createWithFreshKey inserts a new active license, regenerating the key on
// a key-uniqueness collision.
func (i *Issuer) createWithFreshKey(email, sessionID string) (*store.License, error) {
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		key, err := store.GenerateLicenseKey()
		if err != nil {
			return nil, err
		}
		license := &store.License{
			Email:           email,
			LicenseKey:      key,
			StripeSessionID: sessionID,
			IsActive:        true,
		}
		err = i.store.Create(license)
		if err == nil {
			return license, nil
		}
		if errors.Is(err, store.ErrDuplicateKey) {
			log.Warn().
				Str("session_id", sessionID).
				Int("attempt", attempt+1).
				Msg("License key collision, regenerating")
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("generate unique license key: gave up after %d attempts", maxKeyAttempts)
}

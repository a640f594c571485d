package store

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// License represents a single issued license record.
type License struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	LicenseKey      string    `json:"license_key"`
	StripeSessionID string    `json:"stripe_session_id"`
	IsActive        bool      `json:"is_active"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// keyAlphabet is the character set for license keys.
const keyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// crockfordBase32 is the Crockford base32 alphabet (excludes I, L, O, U).
const crockfordBase32 = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// KeyPattern matches a well-formed license key.
var KeyPattern = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// GenerateLicenseKey returns a license key of the form XXXX-XXXX-XXXX-XXXX
// where each X is drawn uniformly from A-Z0-9.
func GenerateLicenseKey() (string, error) {
	// 252 is the largest multiple of 36 below 256; bytes at or above it are
	// rejected so the modulo cannot skew the draw toward low characters.
	const rejectAbove = 252

	chars := make([]byte, 0, 16)
	buf := make([]byte, 16)
	for len(chars) < 16 {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generate license key: %w", err)
		}
		for _, v := range buf {
			if v >= rejectAbove {
				continue
			}
			chars = append(chars, keyAlphabet[int(v)%len(keyAlphabet)])
			if len(chars) == 16 {
				break
			}
		}
	}

	var sb strings.Builder
	for i, c := range chars {
		if i > 0 && i%4 == 0 {
			sb.WriteByte('-')
		}
		sb.WriteByte(c)
	}
	return sb.String(), nil
}

// GenerateLicenseID returns a license record ID of the form "lic_" followed
// by 10 random Crockford base32 characters (50 bits of entropy).
func GenerateLicenseID() (string, error) {
	b := make([]byte, 10)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate license id: %w", err)
	}
	var sb strings.Builder
	sb.WriteString("lic_")
	for _, v := range b {
		sb.WriteByte(crockfordBase32[int(v)%len(crockfordBase32)])
	}
	return sb.String(), nil
}

// NormalizeLicenseKey trims, uppercases, and strips all whitespace from a
// raw key as typed by a user. Dashes are preserved as-is.
func NormalizeLicenseKey(raw string) string {
	cleaned := strings.ToUpper(strings.TrimSpace(raw))
	return strings.Join(strings.Fields(cleaned), "")
}

// NormalizeEmail trims and lowercases an email address for matching.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

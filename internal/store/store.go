package store

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var (
	// ErrDuplicateSession indicates a license already exists for the Stripe session.
	ErrDuplicateSession = errors.New("license already exists for stripe session")
	// ErrDuplicateKey indicates the generated license key collided with an existing one.
	ErrDuplicateKey = errors.New("license key already exists")
	// ErrNotFound indicates no license exists for the given ID.
	ErrNotFound = errors.New("license not found")
)

// LicenseStore provides CRUD operations for license records backed by SQLite.
type LicenseStore struct {
	db *sql.DB
}

// NewLicenseStore opens (or creates) the license database in dir.
func NewLicenseStore(dir string) (*LicenseStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}

	dbPath := filepath.Join(dir, "licenses.db")
	dsn := dbPath + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open license db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &LicenseStore{db: db}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LicenseStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS licenses (
		id                TEXT PRIMARY KEY,
		email             TEXT NOT NULL DEFAULT '',
		license_key       TEXT NOT NULL UNIQUE,
		stripe_session_id TEXT NOT NULL UNIQUE,
		is_active         INTEGER NOT NULL DEFAULT 1,
		created_at        INTEGER NOT NULL,
		updated_at        INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_licenses_email ON licenses(email, is_active);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("init license schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity (used for readiness probes).
func (s *LicenseStore) Ping() error {
	return s.db.Ping()
}

// Close closes the underlying database connection.
func (s *LicenseStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Create inserts a new license record. The ID and timestamps are assigned
// here when unset. UNIQUE violations surface as ErrDuplicateSession or
// ErrDuplicateKey so callers can branch on them.
func (s *LicenseStore) Create(l *License) error {
	if l == nil {
		return fmt.Errorf("license is nil")
	}
	if l.ID == "" {
		id, err := GenerateLicenseID()
		if err != nil {
			return err
		}
		l.ID = id
	}
	now := time.Now().UTC()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = now
	}
	l.UpdatedAt = now

	_, err := s.db.Exec(`
		INSERT INTO licenses (
			id, email, license_key, stripe_session_id, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		l.ID, l.Email, l.LicenseKey, l.StripeSessionID, boolToInt(l.IsActive),
		l.CreatedAt.Unix(), l.UpdatedAt.Unix(),
	)
	if err != nil {
		if dup := classifyUniqueViolation(err); dup != nil {
			return dup
		}
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

// Get retrieves a license by ID.
func (s *LicenseStore) Get(id string) (*License, error) {
	row := s.db.QueryRow(`SELECT
		id, email, license_key, stripe_session_id, is_active, created_at, updated_at
		FROM licenses WHERE id = ?`, id)
	return scanLicense(row)
}

// GetByKey retrieves a license by its (normalized) key. Returns nil when absent.
func (s *LicenseStore) GetByKey(key string) (*License, error) {
	row := s.db.QueryRow(`SELECT
		id, email, license_key, stripe_session_id, is_active, created_at, updated_at
		FROM licenses WHERE license_key = ?`, key)
	return scanLicense(row)
}

// GetByStripeSessionID retrieves a license by the checkout session that
// created it. Returns nil when absent.
func (s *LicenseStore) GetByStripeSessionID(sessionID string) (*License, error) {
	row := s.db.QueryRow(`SELECT
		id, email, license_key, stripe_session_id, is_active, created_at, updated_at
		FROM licenses WHERE stripe_session_id = ?`, sessionID)
	return scanLicense(row)
}

// LatestActiveByEmail returns the most recently created active license for
// the given (normalized) email. Returns nil when none exists.
func (s *LicenseStore) LatestActiveByEmail(email string) (*License, error) {
	row := s.db.QueryRow(`SELECT
		id, email, license_key, stripe_session_id, is_active, created_at, updated_at
		FROM licenses WHERE email = ? AND is_active = 1
		ORDER BY created_at DESC, id DESC LIMIT 1`, email)
	return scanLicense(row)
}

// SetActive flips the active flag on a license. Returns ErrNotFound when no
// license has the given ID.
func (s *LicenseStore) SetActive(id string, active bool) error {
	res, err := s.db.Exec(`UPDATE licenses SET is_active = ?, updated_at = ? WHERE id = ?`,
		boolToInt(active), time.Now().UTC().Unix(), id)
	if err != nil {
		return fmt.Errorf("set license active: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return fmt.Errorf("set license active %q: %w", id, ErrNotFound)
	}
	return nil
}

// List returns all licenses, newest first.
func (s *LicenseStore) List() ([]*License, error) {
	rows, err := s.db.Query(`SELECT
		id, email, license_key, stripe_session_id, is_active, created_at, updated_at
		FROM licenses ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list licenses: %w", err)
	}
	defer rows.Close()
	return scanLicenses(rows)
}

// ListByActive returns licenses filtered by the active flag, newest first.
func (s *LicenseStore) ListByActive(active bool) ([]*License, error) {
	rows, err := s.db.Query(`SELECT
		id, email, license_key, stripe_session_id, is_active, created_at, updated_at
		FROM licenses WHERE is_active = ? ORDER BY created_at DESC, id DESC`, boolToInt(active))
	if err != nil {
		return nil, fmt.Errorf("list licenses by active: %w", err)
	}
	defer rows.Close()
	return scanLicenses(rows)
}

// CountByStatus returns the number of active and inactive licenses.
func (s *LicenseStore) CountByStatus() (active, inactive int, err error) {
	row := s.db.QueryRow(`SELECT
		COALESCE(SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN is_active = 0 THEN 1 ELSE 0 END), 0)
		FROM licenses`)
	if err := row.Scan(&active, &inactive); err != nil {
		return 0, 0, fmt.Errorf("count licenses: %w", err)
	}
	return active, inactive, nil
}

// classifyUniqueViolation maps a sqlite UNIQUE constraint failure to the
// matching sentinel error, or returns nil for unrelated errors.
func classifyUniqueViolation(err error) error {
	msg := err.Error()
	if !strings.Contains(msg, "UNIQUE constraint failed") {
		return nil
	}
	switch {
	case strings.Contains(msg, "licenses.stripe_session_id"):
		return ErrDuplicateSession
	case strings.Contains(msg, "licenses.license_key"):
		return ErrDuplicateKey
	case strings.Contains(msg, "licenses.id"):
		return ErrDuplicateKey
	default:
		return nil
	}
}

// scanner is an interface satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanLicense(s scanner) (*License, error) {
	var l License
	var active int
	var createdAt, updatedAt int64

	err := s.Scan(
		&l.ID, &l.Email, &l.LicenseKey, &l.StripeSessionID,
		&active, &createdAt, &updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan license: %w", err)
	}

	l.IsActive = active != 0
	l.CreatedAt = time.Unix(createdAt, 0).UTC()
	l.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &l, nil
}

func scanLicenses(rows *sql.Rows) ([]*License, error) {
	var licenses []*License
	for rows.Next() {
		l, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		licenses = append(licenses, l)
	}
	return licenses, rows.Err()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

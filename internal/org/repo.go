package org

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Repository persists tenancy data in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetOrganization returns an organization by id, nil when absent.
func (r *Repository) GetOrganization(ctx context.Context, id uuid.UUID) (*Organization, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, timezone, created_at
		FROM organizations WHERE id = $1
	`, id)
	var o Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Timezone, &o.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get organization: %w", err)
	}
	return &o, nil
}

// GetMember returns a member by id, nil when absent.
func (r *Repository) GetMember(ctx context.Context, id uuid.UUID) (*Member, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, email, role, status, created_at
		FROM members WHERE id = $1
	`, id)
	var m Member
	if err := row.Scan(&m.ID, &m.OrgID, &m.Name, &m.Email, &m.Role, &m.Status, &m.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get member: %w", err)
	}
	return &m, nil
}

// GetProgram returns a program by id, nil when absent.
func (r *Repository) GetProgram(ctx context.Context, id uuid.UUID) (*Program, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, org_id, name, active
		FROM programs WHERE id = $1
	`, id)
	var p Program
	if err := row.Scan(&p.ID, &p.OrgID, &p.Name, &p.Active); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get program: %w", err)
	}
	return &p, nil
}

// GetSettings resolves the organization's settings, applying documented
// defaults for keys that have no row.
func (r *Repository) GetSettings(ctx context.Context, orgID uuid.UUID) (Settings, error) {
	settings := DefaultSettings()

	rows, err := r.db.QueryContext(ctx, `
		SELECT name, value FROM org_settings WHERE org_id = $1
	`, orgID)
	if err != nil {
		return settings, fmt.Errorf("get settings: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		var value []byte
		if err := rows.Scan(&name, &value); err != nil {
			return settings, fmt.Errorf("scan setting: %w", err)
		}
		applySetting(&settings, name, value)
	}
	return settings, rows.Err()
}

// EnsureDefaults lazily inserts default rows for any missing setting,
// leaving existing values untouched.
func (r *Repository) EnsureDefaults(ctx context.Context, orgID uuid.UUID) error {
	defaults := DefaultSettings()
	pairs := map[string]any{
		SettingMaxConcurrentStudents:  defaults.MaxConcurrentStudents,
		SettingScheduleDurationHours:  defaults.ScheduleDurationHours,
		SettingBookingIntervalMinutes: defaults.BookingIntervalMinutes,
		SettingBookingWindowDays:      defaults.BookingWindowDays,
		SettingNotificationsEnabled:   defaults.NotificationsEnabled,
	}
	for name, val := range pairs {
		raw, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("encode default %s: %w", name, err)
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO org_settings (org_id, name, value)
			VALUES ($1, $2, $3)
			ON CONFLICT (org_id, name) DO NOTHING
		`, orgID, name, raw); err != nil {
			return fmt.Errorf("ensure default %s: %w", name, err)
		}
	}
	return nil
}

// UpdateSetting upserts one recognized setting value.
func (r *Repository) UpdateSetting(ctx context.Context, orgID uuid.UUID, name string, value json.RawMessage) error {
	if err := ValidateKey(name); err != nil {
		return err
	}
	if !json.Valid(value) {
		return fmt.Errorf("%w: %s value is not valid JSON", ErrInvalidSetting, name)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO org_settings (org_id, name, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (org_id, name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()
	`, orgID, name, []byte(value))
	if err != nil {
		return fmt.Errorf("update setting %s: %w", name, err)
	}
	return nil
}

func applySetting(s *Settings, name string, value []byte) {
	// Unrecognized or malformed rows keep the default rather than failing
	// the whole request.
	switch name {
	case SettingMaxConcurrentStudents:
		decodeInt(value, &s.MaxConcurrentStudents)
	case SettingScheduleDurationHours:
		decodeInt(value, &s.ScheduleDurationHours)
	case SettingBookingIntervalMinutes:
		decodeInt(value, &s.BookingIntervalMinutes)
	case SettingBookingWindowDays:
		decodeInt(value, &s.BookingWindowDays)
	case SettingNotificationsEnabled:
		var b bool
		if json.Unmarshal(value, &b) == nil {
			s.NotificationsEnabled = b
		}
	}
}

func decodeInt(value []byte, dst *int) {
	var n int
	if json.Unmarshal(value, &n) == nil && n > 0 {
		*dst = n
	}
}

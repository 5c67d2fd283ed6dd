// ABOUTME: Profile persistence methods for SQLiteStore
// ABOUTME: One profile per (account, conference), list columns stored as JSON

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateProfile inserts a new profile. The (account, conference) pair is
// unique; a duplicate insert surfaces as an error rather than a second row.
func (s *SQLiteStore) CreateProfile(ctx context.Context, profile *Profile) error {
	profile.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles
			(id, account_id, conference_id, name, interests, offerings,
			 looking_for, roles, onboarded, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		profile.ID, profile.AccountID, profile.ConferenceID, profile.Name,
		encodeList(profile.Interests), encodeList(profile.Offerings),
		encodeList(profile.LookingFor), encodeList(profile.Roles),
		profile.Onboarded, formatTime(profile.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating profile: %w", err)
	}
	return nil
}

// GetProfile retrieves a profile by id.
func (s *SQLiteStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx, profileSelect+` WHERE id = ?`, id))
}

// GetProfileByAccount retrieves the profile for an account in a conference.
func (s *SQLiteStore) GetProfileByAccount(ctx context.Context, accountID, conferenceID string) (*Profile, error) {
	return scanProfile(s.db.QueryRowContext(ctx,
		profileSelect+` WHERE account_id = ? AND conference_id = ?`,
		accountID, conferenceID))
}

// UpdateProfile persists mutable profile fields.
func (s *SQLiteStore) UpdateProfile(ctx context.Context, profile *Profile) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET
			name = ?, interests = ?, offerings = ?, looking_for = ?,
			roles = ?, onboarded = ?
		WHERE id = ?
	`,
		profile.Name, encodeList(profile.Interests), encodeList(profile.Offerings),
		encodeList(profile.LookingFor), encodeList(profile.Roles),
		profile.Onboarded, profile.ID,
	)
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating profile: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListProfiles returns all profiles of a conference ordered by creation time.
func (s *SQLiteStore) ListProfiles(ctx context.Context, conferenceID string) ([]*Profile, error) {
	rows, err := s.db.QueryContext(ctx,
		profileSelect+` WHERE conference_id = ? ORDER BY created_at, id`, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

const profileSelect = `
	SELECT id, account_id, conference_id, name, interests, offerings,
	       looking_for, roles, onboarded, created_at
	FROM profiles`

func scanProfile(row rowScanner) (*Profile, error) {
	var p Profile
	var interests, offerings, lookingFor, roles, createdAt string

	err := row.Scan(&p.ID, &p.AccountID, &p.ConferenceID, &p.Name,
		&interests, &offerings, &lookingFor, &roles, &p.Onboarded, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning profile: %w", err)
	}

	p.Interests = decodeList(interests)
	p.Offerings = decodeList(offerings)
	p.LookingFor = decodeList(lookingFor)
	p.Roles = decodeList(roles)
	p.CreatedAt = parseTime(createdAt)
	return &p, nil
}

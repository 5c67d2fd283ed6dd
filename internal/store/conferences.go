// ABOUTME: Conference persistence methods for SQLiteStore
// ABOUTME: CRUD plus admin-set handling via the conference_admins join table

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateConference inserts a new conference. Returns ErrDuplicateCode if the
// code is already taken.
func (s *SQLiteStore) CreateConference(ctx context.Context, conf *Conference) error {
	now := time.Now()
	conf.CreatedAt = now
	conf.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conferences
			(id, code, title, description, access, starts_at, ends_at,
			 active, ended, slide_url, slide_title, created_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		conf.ID, conf.Code, conf.Title, conf.Description, conf.Access,
		formatTimePtr(conf.StartsAt), formatTimePtr(conf.EndsAt),
		conf.Active, conf.Ended,
		nullString(conf.SlideURL), nullString(conf.SlideTitle),
		conf.CreatedBy, formatTime(conf.CreatedAt), formatTime(conf.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return ErrDuplicateCode
	}
	if err != nil {
		return fmt.Errorf("creating conference: %w", err)
	}

	if err := s.saveAdmins(ctx, conf.ID, conf.Admins); err != nil {
		return err
	}

	s.logger.Debug("created conference", "id", conf.ID, "code", conf.Code)
	return nil
}

// GetConference retrieves a conference by its opaque id.
func (s *SQLiteStore) GetConference(ctx context.Context, id string) (*Conference, error) {
	return s.getConferenceWhere(ctx, "id = ?", id)
}

// GetConferenceByCode retrieves a conference by its human-facing code.
func (s *SQLiteStore) GetConferenceByCode(ctx context.Context, code string) (*Conference, error) {
	return s.getConferenceWhere(ctx, "code = ?", code)
}

// UpdateConference persists mutable conference fields and the admin set.
// The code is immutable and not written.
func (s *SQLiteStore) UpdateConference(ctx context.Context, conf *Conference) error {
	conf.UpdatedAt = time.Now()

	res, err := s.db.ExecContext(ctx, `
		UPDATE conferences SET
			title = ?, description = ?, access = ?, starts_at = ?, ends_at = ?,
			active = ?, ended = ?, slide_url = ?, slide_title = ?, updated_at = ?
		WHERE id = ?
	`,
		conf.Title, conf.Description, conf.Access,
		formatTimePtr(conf.StartsAt), formatTimePtr(conf.EndsAt),
		conf.Active, conf.Ended,
		nullString(conf.SlideURL), nullString(conf.SlideTitle),
		formatTime(conf.UpdatedAt), conf.ID,
	)
	if err != nil {
		return fmt.Errorf("updating conference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating conference: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	return s.saveAdmins(ctx, conf.ID, conf.Admins)
}

// ListConferences returns conferences ordered by creation time descending.
func (s *SQLiteStore) ListConferences(ctx context.Context, limit int) ([]*Conference, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, code, title, description, access, starts_at, ends_at,
		       active, ended, slide_url, slide_title, created_by, created_at, updated_at
		FROM conferences
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing conferences: %w", err)
	}
	defer rows.Close()

	var confs []*Conference
	for rows.Next() {
		conf, err := scanConference(rows)
		if err != nil {
			return nil, err
		}
		confs = append(confs, conf)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing conferences: %w", err)
	}

	for _, conf := range confs {
		if err := s.loadAdmins(ctx, conf); err != nil {
			return nil, err
		}
	}
	return confs, nil
}

// DeleteConference removes the conference; profiles, questions, polls and
// admin rows cascade via foreign keys.
func (s *SQLiteStore) DeleteConference(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM conferences WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting conference: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting conference: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("deleted conference", "id", id)
	return nil
}

func (s *SQLiteStore) getConferenceWhere(ctx context.Context, where string, arg any) (*Conference, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, title, description, access, starts_at, ends_at,
		       active, ended, slide_url, slide_title, created_by, created_at, updated_at
		FROM conferences WHERE `+where, arg)

	conf, err := scanConference(row)
	if err != nil {
		return nil, err
	}
	if err := s.loadAdmins(ctx, conf); err != nil {
		return nil, err
	}
	return conf, nil
}

// saveAdmins rewrites the admin join rows to match conf.Admins order.
func (s *SQLiteStore) saveAdmins(ctx context.Context, confID string, admins []string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM conference_admins WHERE conference_id = ?`, confID); err != nil {
		return fmt.Errorf("clearing conference admins: %w", err)
	}
	for i, profileID := range admins {
		if _, err := s.db.ExecContext(ctx, `
			INSERT INTO conference_admins (conference_id, profile_id, position)
			VALUES (?, ?, ?)
		`, confID, profileID, i); err != nil {
			return fmt.Errorf("saving conference admin: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) loadAdmins(ctx context.Context, conf *Conference) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT profile_id FROM conference_admins
		WHERE conference_id = ?
		ORDER BY position
	`, conf.ID)
	if err != nil {
		return fmt.Errorf("loading conference admins: %w", err)
	}
	defer rows.Close()

	conf.Admins = nil
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scanning conference admin: %w", err)
		}
		conf.Admins = append(conf.Admins, id)
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConference(row rowScanner) (*Conference, error) {
	var c Conference
	var startsAt, endsAt, slideURL, slideTitle sql.NullString
	var createdAt, updatedAt string

	err := row.Scan(&c.ID, &c.Code, &c.Title, &c.Description, &c.Access,
		&startsAt, &endsAt, &c.Active, &c.Ended, &slideURL, &slideTitle,
		&c.CreatedBy, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conference: %w", err)
	}

	c.StartsAt = parseTimePtr(startsAt)
	c.EndsAt = parseTimePtr(endsAt)
	c.SlideURL = stringPtr(slideURL)
	c.SlideTitle = stringPtr(slideTitle)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}

// ABOUTME: Account persistence methods for SQLiteStore
// ABOUTME: Idempotent upsert keyed by the external chat identity

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UpsertAccount returns the account for the external identity, creating it on
// first contact. The display name is refreshed on every call.
func (s *SQLiteStore) UpsertAccount(ctx context.Context, externalID, displayName string) (*Account, error) {
	now := time.Now()
	id := uuid.New().String()

	// INSERT OR IGNORE keeps the upsert a single statement; a concurrent
	// first-contact race resolves to one winning row.
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (id, external_id, display_name, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO UPDATE SET display_name = excluded.display_name
	`, id, externalID, displayName, RolePlain, formatTime(now))
	if err != nil {
		return nil, fmt.Errorf("upserting account: %w", err)
	}

	return s.GetAccountByExternalID(ctx, externalID)
}

// GetAccount retrieves an account by its opaque id.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, external_id, display_name, role, created_at
		FROM accounts WHERE id = ?
	`, id))
}

// GetAccountByExternalID retrieves an account by its external identity.
func (s *SQLiteStore) GetAccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	return s.scanAccount(s.db.QueryRowContext(ctx, `
		SELECT id, external_id, display_name, role, created_at
		FROM accounts WHERE external_id = ?
	`, externalID))
}

// SetAccountRole updates the global role of an account.
func (s *SQLiteStore) SetAccountRole(ctx context.Context, id, role string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE accounts SET role = ? WHERE id = ?`, role, id)
	if err != nil {
		return fmt.Errorf("setting account role: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("setting account role: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) scanAccount(row *sql.Row) (*Account, error) {
	var a Account
	var createdAt string
	err := row.Scan(&a.ID, &a.ExternalID, &a.DisplayName, &a.Role, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning account: %w", err)
	}
	a.CreatedAt = parseTime(createdAt)
	return &a, nil
}

// ABOUTME: Poll persistence methods for SQLiteStore
// ABOUTME: RecordVote enforces one-vote-per-poll atomically via the votes PK

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreatePoll inserts a poll with its options. Option ids are taken as given
// (the poll engine assigns them 0-based in input order).
func (s *SQLiteStore) CreatePoll(ctx context.Context, poll *Poll) error {
	poll.CreatedAt = time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("creating poll: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO polls (id, conference_id, question, active, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, poll.ID, poll.ConferenceID, poll.Question, poll.Active, formatTime(poll.CreatedAt)); err != nil {
		return fmt.Errorf("creating poll: %w", err)
	}

	for _, opt := range poll.Options {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO poll_options (poll_id, option_id, text)
			VALUES (?, ?, ?)
		`, poll.ID, opt.ID, opt.Text); err != nil {
			return fmt.Errorf("creating poll option: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("creating poll: %w", err)
	}
	return nil
}

// GetPoll retrieves a poll with its options and voter sets.
func (s *SQLiteStore) GetPoll(ctx context.Context, id string) (*Poll, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, conference_id, question, active, created_at
		FROM polls WHERE id = ?
	`, id)

	var p Poll
	var createdAt string
	err := row.Scan(&p.ID, &p.ConferenceID, &p.Question, &p.Active, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning poll: %w", err)
	}
	p.CreatedAt = parseTime(createdAt)

	if err := s.loadOptions(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// UpdatePoll persists the question text, option texts and the active flag.
// The option set is fixed at creation: texts update in place, no rows are
// added or removed, votes stay attached to their option ids.
func (s *SQLiteStore) UpdatePoll(ctx context.Context, poll *Poll) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("updating poll: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE polls SET question = ?, active = ? WHERE id = ?`,
		poll.Question, poll.Active, poll.ID)
	if err != nil {
		return fmt.Errorf("updating poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating poll: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}

	for _, opt := range poll.Options {
		if _, err := tx.ExecContext(ctx,
			`UPDATE poll_options SET text = ? WHERE poll_id = ? AND option_id = ?`,
			opt.Text, poll.ID, opt.ID); err != nil {
			return fmt.Errorf("updating poll option: %w", err)
		}
	}

	return tx.Commit()
}

// DeletePoll removes the poll; options and votes cascade.
func (s *SQLiteStore) DeletePoll(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM polls WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting poll: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting poll: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListPolls returns a conference's polls ordered by creation time.
func (s *SQLiteStore) ListPolls(ctx context.Context, conferenceID string, activeOnly bool) ([]*Poll, error) {
	query := `
		SELECT id, conference_id, question, active, created_at
		FROM polls WHERE conference_id = ?`
	if activeOnly {
		query += ` AND active = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, conferenceID)
	if err != nil {
		return nil, fmt.Errorf("listing polls: %w", err)
	}
	defer rows.Close()

	var polls []*Poll
	for rows.Next() {
		var p Poll
		var createdAt string
		if err := rows.Scan(&p.ID, &p.ConferenceID, &p.Question, &p.Active, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning poll: %w", err)
		}
		p.CreatedAt = parseTime(createdAt)
		polls = append(polls, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing polls: %w", err)
	}

	for _, p := range polls {
		if err := s.loadOptions(ctx, p); err != nil {
			return nil, err
		}
	}
	return polls, nil
}

// RecordVote inserts the voter's row for the poll. The (poll_id, account_id)
// primary key makes the already-voted-anywhere check and the write one atomic
// statement: a second vote by the same account fails the constraint inside
// the INSERT, regardless of which option it targets.
func (s *SQLiteStore) RecordVote(ctx context.Context, pollID string, optionID int, accountID string) error {
	var exists int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM poll_options WHERE poll_id = ? AND option_id = ?`,
		pollID, optionID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking poll option: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO poll_votes (poll_id, option_id, account_id, created_at)
		VALUES (?, ?, ?, ?)
	`, pollID, optionID, accountID, formatTime(time.Now()))
	if isUniqueViolation(err) {
		return ErrDuplicateVote
	}
	if err != nil {
		return fmt.Errorf("recording vote: %w", err)
	}

	s.logger.Debug("recorded vote", "poll_id", pollID, "option_id", optionID)
	return nil
}

func (s *SQLiteStore) loadOptions(ctx context.Context, p *Poll) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.option_id, o.text
		FROM poll_options o
		WHERE o.poll_id = ?
		ORDER BY o.option_id
	`, p.ID)
	if err != nil {
		return fmt.Errorf("loading poll options: %w", err)
	}
	defer rows.Close()

	p.Options = nil
	for rows.Next() {
		var opt PollOption
		if err := rows.Scan(&opt.ID, &opt.Text); err != nil {
			return fmt.Errorf("scanning poll option: %w", err)
		}
		p.Options = append(p.Options, opt)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("loading poll options: %w", err)
	}

	voteRows, err := s.db.QueryContext(ctx, `
		SELECT option_id, account_id FROM poll_votes WHERE poll_id = ?
	`, p.ID)
	if err != nil {
		return fmt.Errorf("loading poll votes: %w", err)
	}
	defer voteRows.Close()

	for voteRows.Next() {
		var optionID int
		var accountID string
		if err := voteRows.Scan(&optionID, &accountID); err != nil {
			return fmt.Errorf("scanning poll vote: %w", err)
		}
		for i := range p.Options {
			if p.Options[i].ID == optionID {
				p.Options[i].Voters = append(p.Options[i].Voters, accountID)
				break
			}
		}
	}
	return voteRows.Err()
}

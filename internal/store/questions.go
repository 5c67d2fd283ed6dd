// ABOUTME: Question persistence methods for SQLiteStore
// ABOUTME: Moderation-ordered listing by (created_at, id) for stable menus

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateQuestion inserts a new question.
func (s *SQLiteStore) CreateQuestion(ctx context.Context, q *Question) error {
	q.CreatedAt = time.Now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO questions
			(id, conference_id, author_profile_id, target_profile_id, text,
			 status, answer, answered_by, answered, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		q.ID, q.ConferenceID, nullString(q.AuthorProfileID), nullString(q.TargetProfileID),
		q.Text, q.Status, nullString(q.Answer), nullString(q.AnsweredBy),
		q.Answered, formatTime(q.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("creating question: %w", err)
	}
	return nil
}

// GetQuestion retrieves a question by id.
func (s *SQLiteStore) GetQuestion(ctx context.Context, id string) (*Question, error) {
	return scanQuestion(s.db.QueryRowContext(ctx, questionSelect+` WHERE id = ?`, id))
}

// UpdateQuestion persists status, answer and answered fields.
func (s *SQLiteStore) UpdateQuestion(ctx context.Context, q *Question) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE questions SET
			status = ?, answer = ?, answered_by = ?, answered = ?
		WHERE id = ?
	`, q.Status, nullString(q.Answer), nullString(q.AnsweredBy), q.Answered, q.ID)
	if err != nil {
		return fmt.Errorf("updating question: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating question: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListQuestions returns a conference's questions with the given status,
// ordered by (created_at, id) ascending so repeated menu renders are stable.
// An empty status returns all questions.
func (s *SQLiteStore) ListQuestions(ctx context.Context, conferenceID, status string) ([]*Question, error) {
	query := questionSelect + ` WHERE conference_id = ?`
	args := []any{conferenceID}
	if status != "" {
		query += ` AND status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at, id`

	return s.queryQuestions(ctx, query, args...)
}

// ListQuestionsForSpeaker returns approved unanswered questions addressed to
// the speaker or broadcast to all speakers.
func (s *SQLiteStore) ListQuestionsForSpeaker(ctx context.Context, conferenceID, speakerProfileID string) ([]*Question, error) {
	return s.queryQuestions(ctx, questionSelect+`
		WHERE conference_id = ?
		  AND status = 'approved'
		  AND answered = 0
		  AND (target_profile_id IS NULL OR target_profile_id = ?)
		ORDER BY created_at, id
	`, conferenceID, speakerProfileID)
}

func (s *SQLiteStore) queryQuestions(ctx context.Context, query string, args ...any) ([]*Question, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing questions: %w", err)
	}
	defer rows.Close()

	var questions []*Question
	for rows.Next() {
		q, err := scanQuestion(rows)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

const questionSelect = `
	SELECT id, conference_id, author_profile_id, target_profile_id, text,
	       status, answer, answered_by, answered, created_at
	FROM questions`

func scanQuestion(row rowScanner) (*Question, error) {
	var q Question
	var author, target, answer, answeredBy sql.NullString
	var createdAt string

	err := row.Scan(&q.ID, &q.ConferenceID, &author, &target, &q.Text,
		&q.Status, &answer, &answeredBy, &q.Answered, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning question: %w", err)
	}

	q.AuthorProfileID = stringPtr(author)
	q.TargetProfileID = stringPtr(target)
	q.Answer = stringPtr(answer)
	q.AnsweredBy = stringPtr(answeredBy)
	q.CreatedAt = parseTime(createdAt)
	return &q, nil
}

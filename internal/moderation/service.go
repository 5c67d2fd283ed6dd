// ABOUTME: Question moderation pipeline: submit, approve, reject, answer
// ABOUTME: Approval is the only transition that reaches the viewer broadcast

package moderation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/2389/podium/internal/broadcast"
	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/identity"
	"github.com/2389/podium/internal/store"
)

// Service drives the question state machine:
// pending -> approved | rejected; approved -> approved+answered.
type Service struct {
	store       store.Store
	broadcaster *broadcast.Broadcaster
	resolver    *identity.Resolver
	logger      *slog.Logger
}

// NewService creates a moderation service.
func NewService(s store.Store, b *broadcast.Broadcaster, r *identity.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       s,
		broadcaster: b,
		resolver:    r,
		logger:      logger.With("component", "moderation"),
	}
}

// Submit creates a pending question. A nil authorProfileID submits
// anonymously; a nil targetProfileID broadcasts to all speakers.
func (s *Service) Submit(ctx context.Context, conf *store.Conference, authorProfileID, targetProfileID *string, text string) (*store.Question, error) {
	q := &store.Question{
		ID:              uuid.New().String(),
		ConferenceID:    conf.ID,
		AuthorProfileID: authorProfileID,
		TargetProfileID: targetProfileID,
		Text:            text,
		Status:          store.QuestionPending,
	}
	if err := s.store.CreateQuestion(ctx, q); err != nil {
		return nil, fault.Storagef(err, "submitting question")
	}
	s.logger.Info("question submitted", "id", q.ID, "conference_id", conf.ID)
	return q, nil
}

// Approve moves a pending question to approved and publishes it to viewers
// exactly once. Approving an already-approved question is rejected as a
// state conflict so no duplicate broadcast can fire. Moderator only.
func (s *Service) Approve(ctx context.Context, actor *store.Account, questionID string) (*store.Question, error) {
	q, conf, err := s.authorizeModerator(ctx, actor, questionID)
	if err != nil {
		return nil, err
	}
	if q.Status != store.QuestionPending {
		return nil, fault.New(fault.Conflict, fault.CodeQuestionNotFound,
			fmt.Sprintf("question is %s, not pending", q.Status))
	}

	q.Status = store.QuestionApproved
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return nil, fault.Storagef(err, "approving question")
	}

	s.broadcaster.Publish(broadcast.QuestionApproved(conf.ID, q.Text, q.TargetProfileID != nil))
	s.logger.Info("question approved", "id", q.ID)
	return q, nil
}

// Reject moves a pending question to rejected. Never broadcast. Moderator only.
func (s *Service) Reject(ctx context.Context, actor *store.Account, questionID string) (*store.Question, error) {
	q, _, err := s.authorizeModerator(ctx, actor, questionID)
	if err != nil {
		return nil, err
	}
	if q.Status != store.QuestionPending {
		return nil, fault.New(fault.Conflict, fault.CodeQuestionNotFound,
			fmt.Sprintf("question is %s, not pending", q.Status))
	}

	q.Status = store.QuestionRejected
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return nil, fault.Storagef(err, "rejecting question")
	}
	s.logger.Info("question rejected", "id", q.ID)
	return q, nil
}

// Answer records a speaker's answer on an approved question. The actor must
// hold the speaker role in the question's conference, and the question must
// be addressed to all speakers or to this speaker specifically.
func (s *Service) Answer(ctx context.Context, actor *store.Account, questionID, answer string) (*store.Question, error) {
	q, conf, err := s.load(ctx, questionID)
	if err != nil {
		return nil, err
	}

	roles, err := s.resolver.Roles(ctx, actor, conf)
	if err != nil {
		return nil, fault.Storagef(err, "resolving roles")
	}
	if !roles.Speaker || roles.Profile == nil {
		return nil, fault.New(fault.Denied, fault.CodeNotSpeaker, "speaker role required")
	}
	if q.TargetProfileID != nil && *q.TargetProfileID != roles.Profile.ID {
		return nil, fault.New(fault.Denied, fault.CodeQuestionNotForYou, "question targets another speaker")
	}
	if q.Status != store.QuestionApproved {
		return nil, fault.New(fault.Conflict, fault.CodeQuestionNotFound, "question is not approved")
	}

	q.Answer = &answer
	q.AnsweredBy = &roles.Profile.ID
	q.Answered = true
	if err := s.store.UpdateQuestion(ctx, q); err != nil {
		return nil, fault.Storagef(err, "answering question")
	}
	s.logger.Info("question answered", "id", q.ID, "speaker", roles.Profile.ID)
	return q, nil
}

// ListPending returns the conference's pending questions in stable
// (created_at, id) order. Moderator only.
func (s *Service) ListPending(ctx context.Context, actor *store.Account, conf *store.Conference) ([]*store.Question, error) {
	roles, err := s.resolver.Roles(ctx, actor, conf)
	if err != nil {
		return nil, fault.Storagef(err, "resolving roles")
	}
	if !roles.Moderator() {
		return nil, fault.New(fault.Denied, fault.CodeAccessDenied, "not a moderator")
	}

	questions, err := s.store.ListQuestions(ctx, conf.ID, store.QuestionPending)
	if err != nil {
		return nil, fault.Storagef(err, "listing questions")
	}
	return questions, nil
}

// ListForSpeaker returns approved unanswered questions addressed to the
// acting speaker or to all speakers.
func (s *Service) ListForSpeaker(ctx context.Context, actor *store.Account, conf *store.Conference) ([]*store.Question, error) {
	roles, err := s.resolver.Roles(ctx, actor, conf)
	if err != nil {
		return nil, fault.Storagef(err, "resolving roles")
	}
	if !roles.Speaker || roles.Profile == nil {
		return nil, fault.New(fault.Denied, fault.CodeNotSpeaker, "speaker role required")
	}

	questions, err := s.store.ListQuestionsForSpeaker(ctx, conf.ID, roles.Profile.ID)
	if err != nil {
		return nil, fault.Storagef(err, "listing speaker questions")
	}
	return questions, nil
}

// ListApproved returns the conference's approved questions for the viewer.
func (s *Service) ListApproved(ctx context.Context, conferenceID string) ([]*store.Question, error) {
	questions, err := s.store.ListQuestions(ctx, conferenceID, store.QuestionApproved)
	if err != nil {
		return nil, fault.Storagef(err, "listing approved questions")
	}
	return questions, nil
}

func (s *Service) load(ctx context.Context, questionID string) (*store.Question, *store.Conference, error) {
	q, err := s.store.GetQuestion(ctx, questionID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil, fault.New(fault.NotFound, fault.CodeQuestionNotFound, "no such question")
	}
	if err != nil {
		return nil, nil, fault.Storagef(err, "loading question")
	}

	conf, err := s.store.GetConference(ctx, q.ConferenceID)
	if errors.Is(err, store.ErrNotFound) {
		// Orphaned by a deleted conference
		return nil, nil, fault.New(fault.NotFound, fault.CodeConferenceNotFound, "conference is gone")
	}
	if err != nil {
		return nil, nil, fault.Storagef(err, "loading conference")
	}
	return q, conf, nil
}

func (s *Service) authorizeModerator(ctx context.Context, actor *store.Account, questionID string) (*store.Question, *store.Conference, error) {
	q, conf, err := s.load(ctx, questionID)
	if err != nil {
		return nil, nil, err
	}
	roles, err := s.resolver.Roles(ctx, actor, conf)
	if err != nil {
		return nil, nil, fault.Storagef(err, "resolving roles")
	}
	if !roles.Moderator() {
		return nil, nil, fault.New(fault.Denied, fault.CodeAccessDenied, "not a moderator")
	}
	return q, conf, nil
}

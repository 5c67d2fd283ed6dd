// ABOUTME: Poll engine: creation, exactly-once voting, tally and management
// ABOUTME: The vote check-and-write happens atomically in the store layer

package poll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/identity"
	"github.com/2389/podium/internal/store"
)

const (
	// MinOptions and MaxOptions bound the option list at creation.
	MinOptions = 2
	MaxOptions = 10
)

// Service manages polls and voting.
type Service struct {
	store    store.Store
	resolver *identity.Resolver
	logger   *slog.Logger
}

// NewService creates a poll service.
func NewService(s store.Store, r *identity.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    s,
		resolver: r,
		logger:   logger.With("component", "poll"),
	}
}

// Tally is the vote count per option.
type Tally struct {
	OptionID int
	Text     string
	Votes    int
}

// TallyOf computes the per-option vote counts of a poll.
func TallyOf(p *store.Poll) []Tally {
	return lo.Map(p.Options, func(opt store.PollOption, _ int) Tally {
		return Tally{OptionID: opt.ID, Text: opt.Text, Votes: len(opt.Voters)}
	})
}

// Create makes a new active poll. Options are trimmed; between 2 and 10 must
// remain. Option ids are assigned 0-based in input order. Moderator only.
func (s *Service) Create(ctx context.Context, actor *store.Account, conf *store.Conference, question string, options []string) (*store.Poll, error) {
	if err := s.requireModerator(ctx, actor, conf); err != nil {
		return nil, err
	}
	if len(options) < MinOptions || len(options) > MaxOptions {
		return nil, fault.Validationf("a poll needs between %d and %d options, got %d",
			MinOptions, MaxOptions, len(options))
	}

	p := &store.Poll{
		ID:           uuid.New().String(),
		ConferenceID: conf.ID,
		Question:     question,
		Active:       true,
		Options: lo.Map(options, func(text string, i int) store.PollOption {
			return store.PollOption{ID: i, Text: text}
		}),
	}
	if err := s.store.CreatePoll(ctx, p); err != nil {
		return nil, fault.Storagef(err, "creating poll")
	}
	s.logger.Info("poll created", "id", p.ID, "conference_id", conf.ID, "options", len(p.Options))
	return p, nil
}

// Vote records the account's vote on one option. The voter may appear in at
// most one option's voter set per poll, ever; the store enforces the check
// and the write as a single atomic operation. A second attempt fails with
// ALREADY_VOTED. Votes on inactive or missing polls and out-of-range option
// ids are rejected.
func (s *Service) Vote(ctx context.Context, actor *store.Account, pollID string, optionID int) (*store.Poll, error) {
	p, err := s.load(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if !p.Active {
		return nil, fault.New(fault.Conflict, fault.CodePollNotFound, "poll is not active")
	}
	if optionID < 0 || optionID >= len(p.Options) {
		return nil, fault.Validationf("option %d is out of range", optionID)
	}

	err = s.store.RecordVote(ctx, pollID, optionID, actor.ID)
	if errors.Is(err, store.ErrDuplicateVote) {
		return nil, fault.New(fault.Conflict, fault.CodeAlreadyVoted, "already voted in this poll")
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.New(fault.NotFound, fault.CodePollNotFound, "poll or option is gone")
	}
	if err != nil {
		return nil, fault.Storagef(err, "recording vote")
	}

	return s.load(ctx, pollID)
}

// Activate re-opens a poll for voting. Moderator only.
func (s *Service) Activate(ctx context.Context, actor *store.Account, pollID string) error {
	return s.setActive(ctx, actor, pollID, true)
}

// Deactivate closes a poll for voting. Moderator only.
func (s *Service) Deactivate(ctx context.Context, actor *store.Account, pollID string) error {
	return s.setActive(ctx, actor, pollID, false)
}

func (s *Service) setActive(ctx context.Context, actor *store.Account, pollID string, active bool) error {
	p, err := s.load(ctx, pollID)
	if err != nil {
		return err
	}
	if err := s.requireModeratorByID(ctx, actor, p.ConferenceID); err != nil {
		return err
	}
	if p.Active == active {
		return nil
	}
	p.Active = active
	if err := s.store.UpdatePoll(ctx, p); err != nil {
		return fault.Storagef(err, "updating poll")
	}
	s.logger.Info("poll active flag changed", "id", pollID, "active", active)
	return nil
}

// Edit updates the question text and/or option texts. The option count is
// fixed at creation: edits carry exactly the existing option ids. Empty
// strings keep the current text. Moderator only.
func (s *Service) Edit(ctx context.Context, actor *store.Account, pollID, question string, optionTexts []string) (*store.Poll, error) {
	p, err := s.load(ctx, pollID)
	if err != nil {
		return nil, err
	}
	if err := s.requireModeratorByID(ctx, actor, p.ConferenceID); err != nil {
		return nil, err
	}
	if optionTexts != nil && len(optionTexts) != len(p.Options) {
		return nil, fault.Validationf("poll has %d options, got %d texts", len(p.Options), len(optionTexts))
	}

	if question != "" {
		p.Question = question
	}
	for i, text := range optionTexts {
		if text != "" {
			p.Options[i].Text = text
		}
	}
	if err := s.store.UpdatePoll(ctx, p); err != nil {
		return nil, fault.Storagef(err, "editing poll")
	}
	return p, nil
}

// Delete removes the poll and its votes. Moderator only.
func (s *Service) Delete(ctx context.Context, actor *store.Account, pollID string) error {
	p, err := s.load(ctx, pollID)
	if err != nil {
		return err
	}
	if err := s.requireModeratorByID(ctx, actor, p.ConferenceID); err != nil {
		return err
	}
	if err := s.store.DeletePoll(ctx, pollID); err != nil {
		return fault.Storagef(err, "deleting poll")
	}
	s.logger.Info("poll deleted", "id", pollID)
	return nil
}

// ListActive returns the conference's active polls.
func (s *Service) ListActive(ctx context.Context, conferenceID string) ([]*store.Poll, error) {
	polls, err := s.store.ListPolls(ctx, conferenceID, true)
	if err != nil {
		return nil, fault.Storagef(err, "listing polls")
	}
	return polls, nil
}

// ListAll returns every poll of the conference, active or not. Moderator only.
func (s *Service) ListAll(ctx context.Context, actor *store.Account, conf *store.Conference) ([]*store.Poll, error) {
	if err := s.requireModerator(ctx, actor, conf); err != nil {
		return nil, err
	}
	polls, err := s.store.ListPolls(ctx, conf.ID, false)
	if err != nil {
		return nil, fault.Storagef(err, "listing polls")
	}
	return polls, nil
}

// Get loads a poll by id.
func (s *Service) Get(ctx context.Context, pollID string) (*store.Poll, error) {
	return s.load(ctx, pollID)
}

func (s *Service) load(ctx context.Context, pollID string) (*store.Poll, error) {
	p, err := s.store.GetPoll(ctx, pollID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.New(fault.NotFound, fault.CodePollNotFound, "no such poll")
	}
	if err != nil {
		return nil, fault.Storagef(err, "loading poll")
	}
	return p, nil
}

func (s *Service) requireModerator(ctx context.Context, actor *store.Account, conf *store.Conference) error {
	roles, err := s.resolver.Roles(ctx, actor, conf)
	if err != nil {
		return fault.Storagef(err, "resolving roles")
	}
	if !roles.Moderator() {
		return fault.New(fault.Denied, fault.CodeAccessDenied, "not a moderator")
	}
	return nil
}

func (s *Service) requireModeratorByID(ctx context.Context, actor *store.Account, conferenceID string) error {
	conf, err := s.store.GetConference(ctx, conferenceID)
	if errors.Is(err, store.ErrNotFound) {
		return fault.New(fault.NotFound, fault.CodeConferenceNotFound,
			fmt.Sprintf("conference %s is gone", conferenceID))
	}
	if err != nil {
		return fault.Storagef(err, "loading conference")
	}
	return s.requireModerator(ctx, actor, conf)
}

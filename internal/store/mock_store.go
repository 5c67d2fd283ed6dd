// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows service tests to run without SQLite

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MockStore is an in-memory Store implementation for testing. All methods
// run under one mutex, so RecordVote's check-and-insert is atomic by
// construction.
type MockStore struct {
	mu          sync.RWMutex
	accounts    map[string]*Account // keyed by account ID
	accountsExt map[string]string   // external ID -> account ID
	conferences map[string]*Conference
	confByCode  map[string]string // code -> conference ID
	profiles    map[string]*Profile
	questions   map[string]*Question
	polls       map[string]*Poll
	votes       map[string]map[string]int // pollID -> accountID -> optionID
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		accounts:    make(map[string]*Account),
		accountsExt: make(map[string]string),
		conferences: make(map[string]*Conference),
		confByCode:  make(map[string]string),
		profiles:    make(map[string]*Profile),
		questions:   make(map[string]*Question),
		polls:       make(map[string]*Poll),
		votes:       make(map[string]map[string]int),
	}
}

// Close is a no-op.
func (m *MockStore) Close() error { return nil }

// UpsertAccount creates or refreshes the account for an external identity.
func (m *MockStore) UpsertAccount(ctx context.Context, externalID, displayName string) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if id, ok := m.accountsExt[externalID]; ok {
		a := m.accounts[id]
		a.DisplayName = displayName
		c := *a
		return &c, nil
	}

	a := &Account{
		ID:          uuid.New().String(),
		ExternalID:  externalID,
		DisplayName: displayName,
		Role:        RolePlain,
		CreatedAt:   time.Now(),
	}
	m.accounts[a.ID] = a
	m.accountsExt[externalID] = a.ID
	c := *a
	return &c, nil
}

// GetAccount retrieves an account by id.
func (m *MockStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

// GetAccountByExternalID retrieves an account by external identity.
func (m *MockStore) GetAccountByExternalID(ctx context.Context, externalID string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.accountsExt[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *m.accounts[id]
	return &c, nil
}

// SetAccountRole updates an account's global role.
func (m *MockStore) SetAccountRole(ctx context.Context, id, role string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return ErrNotFound
	}
	a.Role = role
	return nil
}

// CreateConference stores a new conference.
func (m *MockStore) CreateConference(ctx context.Context, conf *Conference) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.confByCode[conf.Code]; ok {
		return ErrDuplicateCode
	}
	now := time.Now()
	conf.CreatedAt = now
	conf.UpdatedAt = now
	c := *conf
	c.Admins = append([]string(nil), conf.Admins...)
	m.conferences[c.ID] = &c
	m.confByCode[c.Code] = c.ID
	return nil
}

// GetConference retrieves a conference by id.
func (m *MockStore) GetConference(ctx context.Context, id string) (*Conference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getConferenceLocked(id)
}

// GetConferenceByCode retrieves a conference by code.
func (m *MockStore) GetConferenceByCode(ctx context.Context, code string) (*Conference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.confByCode[code]
	if !ok {
		return nil, ErrNotFound
	}
	return m.getConferenceLocked(id)
}

func (m *MockStore) getConferenceLocked(id string) (*Conference, error) {
	conf, ok := m.conferences[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *conf
	c.Admins = append([]string(nil), conf.Admins...)
	return &c, nil
}

// UpdateConference persists conference mutations.
func (m *MockStore) UpdateConference(ctx context.Context, conf *Conference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.conferences[conf.ID]
	if !ok {
		return ErrNotFound
	}
	conf.UpdatedAt = time.Now()
	c := *conf
	c.Code = existing.Code // immutable
	c.Admins = append([]string(nil), conf.Admins...)
	m.conferences[c.ID] = &c
	return nil
}

// ListConferences returns conferences newest-first.
func (m *MockStore) ListConferences(ctx context.Context, limit int) ([]*Conference, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var confs []*Conference
	for id := range m.conferences {
		c, _ := m.getConferenceLocked(id)
		confs = append(confs, c)
	}
	sort.Slice(confs, func(i, j int) bool {
		return confs[i].CreatedAt.After(confs[j].CreatedAt)
	})
	if limit > 0 && len(confs) > limit {
		confs = confs[:limit]
	}
	return confs, nil
}

// DeleteConference removes the conference and cascades to dependents.
func (m *MockStore) DeleteConference(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conf, ok := m.conferences[id]
	if !ok {
		return ErrNotFound
	}
	delete(m.confByCode, conf.Code)
	delete(m.conferences, id)

	for pid, p := range m.profiles {
		if p.ConferenceID == id {
			delete(m.profiles, pid)
		}
	}
	for qid, q := range m.questions {
		if q.ConferenceID == id {
			delete(m.questions, qid)
		}
	}
	for pollID, p := range m.polls {
		if p.ConferenceID == id {
			delete(m.polls, pollID)
			delete(m.votes, pollID)
		}
	}
	return nil
}

// CreateProfile stores a new profile.
func (m *MockStore) CreateProfile(ctx context.Context, profile *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	profile.CreatedAt = time.Now()
	p := *profile
	m.profiles[p.ID] = &p
	return nil
}

// GetProfile retrieves a profile by id.
func (m *MockStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.profiles[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

// GetProfileByAccount retrieves the profile for (account, conference).
func (m *MockStore) GetProfileByAccount(ctx context.Context, accountID, conferenceID string) (*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.profiles {
		if p.AccountID == accountID && p.ConferenceID == conferenceID {
			c := *p
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateProfile persists profile mutations.
func (m *MockStore) UpdateProfile(ctx context.Context, profile *Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.profiles[profile.ID]; !ok {
		return ErrNotFound
	}
	p := *profile
	m.profiles[p.ID] = &p
	return nil
}

// ListProfiles returns a conference's profiles in creation order.
func (m *MockStore) ListProfiles(ctx context.Context, conferenceID string) ([]*Profile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var profiles []*Profile
	for _, p := range m.profiles {
		if p.ConferenceID == conferenceID {
			c := *p
			profiles = append(profiles, &c)
		}
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].ID < profiles[j].ID
		}
		return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
	})
	return profiles, nil
}

// CreateQuestion stores a new question.
func (m *MockStore) CreateQuestion(ctx context.Context, q *Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	q.CreatedAt = time.Now()
	c := *q
	m.questions[c.ID] = &c
	return nil
}

// GetQuestion retrieves a question by id.
func (m *MockStore) GetQuestion(ctx context.Context, id string) (*Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, ErrNotFound
	}
	c := *q
	return &c, nil
}

// UpdateQuestion persists question mutations.
func (m *MockStore) UpdateQuestion(ctx context.Context, q *Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.questions[q.ID]; !ok {
		return ErrNotFound
	}
	c := *q
	m.questions[c.ID] = &c
	return nil
}

// ListQuestions returns questions by status ordered by (created_at, id).
func (m *MockStore) ListQuestions(ctx context.Context, conferenceID, status string) ([]*Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var questions []*Question
	for _, q := range m.questions {
		if q.ConferenceID != conferenceID {
			continue
		}
		if status != "" && q.Status != status {
			continue
		}
		c := *q
		questions = append(questions, &c)
	}
	sortQuestions(questions)
	return questions, nil
}

// ListQuestionsForSpeaker returns approved unanswered questions for the speaker.
func (m *MockStore) ListQuestionsForSpeaker(ctx context.Context, conferenceID, speakerProfileID string) ([]*Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var questions []*Question
	for _, q := range m.questions {
		if q.ConferenceID != conferenceID || q.Status != QuestionApproved || q.Answered {
			continue
		}
		if q.TargetProfileID != nil && *q.TargetProfileID != speakerProfileID {
			continue
		}
		c := *q
		questions = append(questions, &c)
	}
	sortQuestions(questions)
	return questions, nil
}

func sortQuestions(questions []*Question) {
	sort.Slice(questions, func(i, j int) bool {
		if questions[i].CreatedAt.Equal(questions[j].CreatedAt) {
			return questions[i].ID < questions[j].ID
		}
		return questions[i].CreatedAt.Before(questions[j].CreatedAt)
	})
}

// CreatePoll stores a new poll.
func (m *MockStore) CreatePoll(ctx context.Context, poll *Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	poll.CreatedAt = time.Now()
	c := copyPoll(poll)
	m.polls[c.ID] = c
	m.votes[c.ID] = make(map[string]int)
	return nil
}

// GetPoll retrieves a poll with voter sets materialized.
func (m *MockStore) GetPoll(ctx context.Context, id string) (*Poll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.polls[id]
	if !ok {
		return nil, ErrNotFound
	}
	return m.materializePoll(p), nil
}

// UpdatePoll persists question text, option texts and the active flag.
func (m *MockStore) UpdatePoll(ctx context.Context, poll *Poll) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.polls[poll.ID]
	if !ok {
		return ErrNotFound
	}
	existing.Question = poll.Question
	existing.Active = poll.Active
	for _, opt := range poll.Options {
		for i := range existing.Options {
			if existing.Options[i].ID == opt.ID {
				existing.Options[i].Text = opt.Text
			}
		}
	}
	return nil
}

// DeletePoll removes a poll and its votes.
func (m *MockStore) DeletePoll(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.polls[id]; !ok {
		return ErrNotFound
	}
	delete(m.polls, id)
	delete(m.votes, id)
	return nil
}

// ListPolls returns a conference's polls in creation order.
func (m *MockStore) ListPolls(ctx context.Context, conferenceID string, activeOnly bool) ([]*Poll, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var polls []*Poll
	for _, p := range m.polls {
		if p.ConferenceID != conferenceID {
			continue
		}
		if activeOnly && !p.Active {
			continue
		}
		polls = append(polls, m.materializePoll(p))
	}
	sort.Slice(polls, func(i, j int) bool {
		if polls[i].CreatedAt.Equal(polls[j].CreatedAt) {
			return polls[i].ID < polls[j].ID
		}
		return polls[i].CreatedAt.Before(polls[j].CreatedAt)
	})
	return polls, nil
}

// RecordVote records a vote under the store mutex: the already-voted check
// and the write are one critical section.
func (m *MockStore) RecordVote(ctx context.Context, pollID string, optionID int, accountID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	poll, ok := m.polls[pollID]
	if !ok {
		return ErrNotFound
	}
	found := false
	for _, opt := range poll.Options {
		if opt.ID == optionID {
			found = true
			break
		}
	}
	if !found {
		return ErrNotFound
	}

	votes := m.votes[pollID]
	if _, voted := votes[accountID]; voted {
		return ErrDuplicateVote
	}
	votes[accountID] = optionID
	return nil
}

func copyPoll(p *Poll) *Poll {
	c := *p
	c.Options = make([]PollOption, len(p.Options))
	for i, opt := range p.Options {
		c.Options[i] = PollOption{ID: opt.ID, Text: opt.Text}
	}
	return &c
}

func (m *MockStore) materializePoll(p *Poll) *Poll {
	c := copyPoll(p)
	votes := m.votes[p.ID]
	var voters []string
	for accountID := range votes {
		voters = append(voters, accountID)
	}
	sort.Strings(voters) // deterministic voter order
	for _, accountID := range voters {
		optionID := votes[accountID]
		for i := range c.Options {
			if c.Options[i].ID == optionID {
				c.Options[i].Voters = append(c.Options[i].Voters, accountID)
			}
		}
	}
	return c
}

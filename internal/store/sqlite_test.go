// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers vote atomicity, code uniqueness, cascade delete and ordering

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "podium.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seedConference(t *testing.T, s Store, code string) *Conference {
	t.Helper()
	conf := &Conference{
		ID:        uuid.New().String(),
		Code:      code,
		Title:     "Test Conference",
		Access:    AccessPublic,
		CreatedBy: uuid.New().String(),
	}
	require.NoError(t, s.CreateConference(t.Context(), conf))
	return conf
}

func seedAccount(t *testing.T, s Store, externalID string) *Account {
	t.Helper()
	a, err := s.UpsertAccount(t.Context(), externalID, "User "+externalID)
	require.NoError(t, err)
	return a
}

func TestUpsertAccount_SecondUpsertKeepsIdentity(t *testing.T) {
	s := newTestStore(t)

	first, err := s.UpsertAccount(t.Context(), "@alice:example.org", "Alice")
	require.NoError(t, err)

	second, err := s.UpsertAccount(t.Context(), "@alice:example.org", "Alice Renamed")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, "Alice Renamed", second.DisplayName)
	assert.Equal(t, RolePlain, second.Role)
}

func TestCreateConference_DuplicateCode(t *testing.T) {
	s := newTestStore(t)

	seedConference(t, s, "gopher1")

	dup := &Conference{
		ID:        uuid.New().String(),
		Code:      "gopher1",
		Title:     "Other",
		Access:    AccessPublic,
		CreatedBy: uuid.New().String(),
	}
	err := s.CreateConference(t.Context(), dup)
	assert.ErrorIs(t, err, ErrDuplicateCode)
}

func TestConference_AdminsRoundTripInOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "admins1")
	conf.Admins = []string{"profile-c", "profile-a", "profile-b"}
	require.NoError(t, s.UpdateConference(ctx, conf))

	got, err := s.GetConference(ctx, conf.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"profile-c", "profile-a", "profile-b"}, got.Admins)
}

func TestDeleteConference_CascadesToDependents(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "cascade1")
	account := seedAccount(t, s, "@bob:example.org")

	profile := &Profile{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		ConferenceID: conf.ID,
		Name:         "Bob",
	}
	require.NoError(t, s.CreateProfile(ctx, profile))

	question := &Question{
		ID:           uuid.New().String(),
		ConferenceID: conf.ID,
		Text:         "Will this survive deletion?",
		Status:       QuestionPending,
	}
	require.NoError(t, s.CreateQuestion(ctx, question))

	poll := &Poll{
		ID:           uuid.New().String(),
		ConferenceID: conf.ID,
		Question:     "Red or blue?",
		Options:      []PollOption{{ID: 0, Text: "Red"}, {ID: 1, Text: "Blue"}},
		Active:       true,
	}
	require.NoError(t, s.CreatePoll(ctx, poll))
	require.NoError(t, s.RecordVote(ctx, poll.ID, 0, account.ID))

	require.NoError(t, s.DeleteConference(ctx, conf.ID))

	_, err := s.GetConference(ctx, conf.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetProfile(ctx, profile.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetQuestion(ctx, question.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetPoll(ctx, poll.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// The code is free again
	seedConference(t, s, "cascade1")
}

func TestListQuestions_OrderedByCreation(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "order1")
	texts := []string{"first question", "second question", "third question"}
	for _, text := range texts {
		q := &Question{
			ID:           uuid.New().String(),
			ConferenceID: conf.ID,
			Text:         text,
			Status:       QuestionPending,
		}
		require.NoError(t, s.CreateQuestion(ctx, q))
		time.Sleep(2 * time.Millisecond)
	}

	questions, err := s.ListQuestions(ctx, conf.ID, QuestionPending)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	for i, q := range questions {
		assert.Equal(t, texts[i], q.Text)
	}
}

func TestListQuestionsForSpeaker_TargetedAndOpen(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "speaker1")
	speakerA := "speaker-a"
	speakerB := "speaker-b"

	add := func(target *string, status string, answered bool) {
		q := &Question{
			ID:              uuid.New().String(),
			ConferenceID:    conf.ID,
			TargetProfileID: target,
			Text:            "question text long enough",
			Status:          status,
			Answered:        answered,
		}
		require.NoError(t, s.CreateQuestion(ctx, q))
	}

	add(nil, QuestionApproved, false)       // open, visible to both
	add(&speakerA, QuestionApproved, false) // only speaker A
	add(&speakerB, QuestionApproved, false) // only speaker B
	add(&speakerA, QuestionPending, false)  // not approved yet
	add(&speakerA, QuestionApproved, true)  // already answered

	forA, err := s.ListQuestionsForSpeaker(ctx, conf.ID, speakerA)
	require.NoError(t, err)
	assert.Len(t, forA, 2)

	forB, err := s.ListQuestionsForSpeaker(ctx, conf.ID, speakerB)
	require.NoError(t, err)
	assert.Len(t, forB, 2)
}

func TestRecordVote_DuplicateAcrossOptions(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "vote1")
	account := seedAccount(t, s, "@carol:example.org")

	poll := &Poll{
		ID:           uuid.New().String(),
		ConferenceID: conf.ID,
		Question:     "Tabs or spaces?",
		Options:      []PollOption{{ID: 0, Text: "Tabs"}, {ID: 1, Text: "Spaces"}},
		Active:       true,
	}
	require.NoError(t, s.CreatePoll(ctx, poll))

	require.NoError(t, s.RecordVote(ctx, poll.ID, 0, account.ID))

	// Same option and a different option both refuse the second vote
	assert.ErrorIs(t, s.RecordVote(ctx, poll.ID, 0, account.ID), ErrDuplicateVote)
	assert.ErrorIs(t, s.RecordVote(ctx, poll.ID, 1, account.ID), ErrDuplicateVote)

	got, err := s.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{account.ID}, got.Options[0].Voters)
	assert.Empty(t, got.Options[1].Voters)
}

func TestRecordVote_UnknownPollAndOption(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "vote2")
	account := seedAccount(t, s, "@dave:example.org")

	poll := &Poll{
		ID:           uuid.New().String(),
		ConferenceID: conf.ID,
		Question:     "Morning or evening?",
		Options:      []PollOption{{ID: 0, Text: "Morning"}, {ID: 1, Text: "Evening"}},
		Active:       true,
	}
	require.NoError(t, s.CreatePoll(ctx, poll))

	assert.ErrorIs(t, s.RecordVote(ctx, "no-such-poll", 0, account.ID), ErrNotFound)
	assert.ErrorIs(t, s.RecordVote(ctx, poll.ID, 99, account.ID), ErrNotFound)
}

func TestRecordVote_ConcurrentSameVoterCountsOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conf := seedConference(t, s, "vote3")
	account := seedAccount(t, s, "@eve:example.org")

	poll := &Poll{
		ID:           uuid.New().String(),
		ConferenceID: conf.ID,
		Question:     "Concurrent?",
		Options:      []PollOption{{ID: 0, Text: "Yes"}, {ID: 1, Text: "No"}},
		Active:       true,
	}
	require.NoError(t, s.CreatePoll(ctx, poll))

	const attempts = 10
	results := make(chan error, attempts)
	var wg sync.WaitGroup
	for i := range attempts {
		optionID := i % 2
		wg.Go(func() {
			results <- s.RecordVote(ctx, poll.ID, optionID, account.ID)
		})
	}
	wg.Wait()
	close(results)

	succeeded := 0
	for err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateVote)
		}
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent vote should win")

	got, err := s.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	total := len(got.Options[0].Voters) + len(got.Options[1].Voters)
	assert.Equal(t, 1, total)
}

func TestUpdatePoll_KeepsOptionSetAndVotes(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "poll1")
	account := seedAccount(t, s, "@frank:example.org")

	poll := &Poll{
		ID:           uuid.New().String(),
		ConferenceID: conf.ID,
		Question:     "Original question?",
		Options:      []PollOption{{ID: 0, Text: "One"}, {ID: 1, Text: "Two"}},
		Active:       true,
	}
	require.NoError(t, s.CreatePoll(ctx, poll))
	require.NoError(t, s.RecordVote(ctx, poll.ID, 1, account.ID))

	poll.Question = "Reworded question?"
	poll.Options[0].Text = "Uno"
	poll.Options[1].Text = "Dos"
	poll.Active = false
	require.NoError(t, s.UpdatePoll(ctx, poll))

	got, err := s.GetPoll(ctx, poll.ID)
	require.NoError(t, err)
	assert.Equal(t, "Reworded question?", got.Question)
	assert.False(t, got.Active)
	require.Len(t, got.Options, 2)
	assert.Equal(t, "Uno", got.Options[0].Text)
	assert.Equal(t, "Dos", got.Options[1].Text)
	assert.Equal(t, []string{account.ID}, got.Options[1].Voters)
}

func TestListPolls_ActiveOnlyFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "poll2")

	for i, active := range []bool{true, false, true} {
		p := &Poll{
			ID:           uuid.New().String(),
			ConferenceID: conf.ID,
			Question:     "q",
			Options:      []PollOption{{ID: 0, Text: "A"}, {ID: 1, Text: "B"}},
			Active:       active,
		}
		require.NoError(t, s.CreatePoll(ctx, p))
		_ = i
		time.Sleep(2 * time.Millisecond)
	}

	all, err := s.ListPolls(ctx, conf.ID, false)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	active, err := s.ListPolls(ctx, conf.ID, true)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

func TestProfile_ListRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := t.Context()

	conf := seedConference(t, s, "prof1")
	account := seedAccount(t, s, "@grace:example.org")

	profile := &Profile{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		ConferenceID: conf.ID,
		Name:         "Grace",
		Interests:    []string{"distributed systems", "sailing"},
		Roles:        []string{TagSpeaker, TagParticipant},
		Onboarded:    true,
	}
	require.NoError(t, s.CreateProfile(ctx, profile))

	got, err := s.GetProfileByAccount(ctx, account.ID, conf.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, got.ID)
	assert.Equal(t, []string{"distributed systems", "sailing"}, got.Interests)
	assert.True(t, got.HasRole(TagSpeaker))
	assert.True(t, got.Onboarded)

	profiles, err := s.ListProfiles(ctx, conf.ID)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

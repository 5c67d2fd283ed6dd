// ABOUTME: Tests for the dialog flow engine and built-in flows
// ABOUTME: Covers step walks, re-prompts, cancellation and session isolation

package flow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/podium/internal/broadcast"
	"github.com/2389/podium/internal/conference"
	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/identity"
	"github.com/2389/podium/internal/moderation"
	"github.com/2389/podium/internal/poll"
	"github.com/2389/podium/internal/search"
	"github.com/2389/podium/internal/session"
	"github.com/2389/podium/internal/store"
)

type fixture struct {
	store    *store.MockStore
	sessions *session.MemoryStore
	resolver *identity.Resolver
	confs    *conference.Service
	engine   *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMockStore()
	b := broadcast.New(nil)
	t.Cleanup(b.Close)
	sessions := session.NewMemoryStore(0, nil)
	t.Cleanup(sessions.Close)

	r := identity.NewResolver(st, []string{"@root:example.org"}, nil)
	confs := conference.NewService(st, b, r, nil)
	mod := moderation.NewService(st, b, r, nil)
	polls := poll.NewService(st, r, nil)
	find := search.NewService(st, nil)

	return &fixture{
		store:    st,
		sessions: sessions,
		resolver: r,
		confs:    confs,
		engine:   NewEngine(sessions, confs, mod, polls, find, st, nil),
	}
}

func (f *fixture) account(t *testing.T, externalID string) *store.Account {
	t.Helper()
	a, err := f.resolver.Resolve(t.Context(), externalID, "User "+externalID)
	require.NoError(t, err)
	return a
}

func (f *fixture) conference(t *testing.T) *store.Conference {
	t.Helper()
	root := f.account(t, "@root:example.org")
	conf, err := f.confs.Create(t.Context(), root, "Test Conference", "")
	require.NoError(t, err)
	return conf
}

func (f *fixture) step(t *testing.T, a *store.Account, text string) string {
	t.Helper()
	reply, err := f.engine.HandleText(t.Context(), a, text)
	require.NoError(t, err)
	return reply
}

func TestOnboarding_FullWalk(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t)
	guest := f.account(t, "@guest:example.org")

	prompt, err := f.engine.Start(t.Context(), guest, FlowOnboarding, nil)
	require.NoError(t, err)
	assert.Contains(t, prompt, "name")

	f.step(t, guest, "Alice")
	f.step(t, guest, "go, databases")
	f.step(t, guest, "-") // skip offerings
	f.step(t, guest, "mentoring")
	reply := f.step(t, guest, conf.Code)
	assert.Contains(t, reply, "Alice")

	assert.False(t, f.engine.Active(guest.ExternalID), "session cleared on completion")

	profile, err := f.store.GetProfileByAccount(t.Context(), guest.ID, conf.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.Name)
	assert.Equal(t, []string{"go", "databases"}, profile.Interests)
	assert.Empty(t, profile.Offerings)
	assert.Equal(t, []string{"mentoring"}, profile.LookingFor)
	assert.True(t, profile.Onboarded)
}

func TestOnboarding_BadCodeReprompts(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t)
	guest := f.account(t, "@guest:example.org")

	_, err := f.engine.Start(t.Context(), guest, FlowOnboarding, nil)
	require.NoError(t, err)

	f.step(t, guest, "Alice")
	f.step(t, guest, "-")
	f.step(t, guest, "-")
	f.step(t, guest, "-")

	_, err = f.engine.HandleText(t.Context(), guest, "wrongcode")
	assert.Equal(t, fault.NotFound, fault.KindOf(err))
	assert.True(t, f.engine.Active(guest.ExternalID), "session survives a mistyped code")

	reply := f.step(t, guest, conf.Code)
	assert.Contains(t, reply, "Welcome")
}

func TestValidation_RepromptsInPlace(t *testing.T) {
	f := newFixture(t)
	guest := f.account(t, "@guest:example.org")

	_, err := f.engine.Start(t.Context(), guest, FlowOnboarding, nil)
	require.NoError(t, err)

	// Too short for the name step
	_, err = f.engine.HandleText(t.Context(), guest, "A")
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	s, ok := f.sessions.Get(guest.ExternalID)
	require.True(t, ok)
	assert.Equal(t, 0, s.Step, "failed validation must not advance the step")

	f.step(t, guest, "Alice")
	s, _ = f.sessions.Get(guest.ExternalID)
	assert.Equal(t, 1, s.Step)
}

func TestStart_ReplacesPriorSession(t *testing.T) {
	f := newFixture(t)
	guest := f.account(t, "@guest:example.org")

	_, err := f.engine.Start(t.Context(), guest, FlowOnboarding, nil)
	require.NoError(t, err)
	f.step(t, guest, "Alice")

	_, err = f.engine.Start(t.Context(), guest, FlowFind, map[string]string{"code": "x", "role": ""})
	require.NoError(t, err)

	s, ok := f.sessions.Get(guest.ExternalID)
	require.True(t, ok)
	assert.Equal(t, FlowFind, s.Flow)
	assert.Equal(t, 0, s.Step)
	assert.Empty(t, s.Value("name"), "no data leaks between flows")
}

func TestCancel_ClearsSession(t *testing.T) {
	f := newFixture(t)
	guest := f.account(t, "@guest:example.org")

	_, err := f.engine.Start(t.Context(), guest, FlowOnboarding, nil)
	require.NoError(t, err)
	f.step(t, guest, "Alice")

	assert.True(t, f.engine.Cancel(guest.ExternalID))
	assert.False(t, f.engine.Active(guest.ExternalID))
	assert.False(t, f.engine.Cancel(guest.ExternalID), "second cancel reports no session")
}

func TestHandleText_NoSessionIsValidationFault(t *testing.T) {
	f := newFixture(t)
	guest := f.account(t, "@guest:example.org")

	_, err := f.engine.HandleText(t.Context(), guest, "hello?")
	assert.Equal(t, fault.Validation, fault.KindOf(err))
}

func TestCreatePollFlow_EnforcesMinimumOptions(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t)
	root := f.account(t, "@root:example.org")

	_, err := f.engine.Start(t.Context(), root, FlowCreatePoll, map[string]string{"code": conf.Code})
	require.NoError(t, err)

	f.step(t, root, "Lunch preference?")

	_, err = f.engine.HandleText(t.Context(), root, "pizza")
	assert.Equal(t, fault.Validation, fault.KindOf(err))
	assert.True(t, f.engine.Active(root.ExternalID))

	reply := f.step(t, root, "pizza, sushi, salad")
	assert.Contains(t, reply, "3 options")
}

func TestAskQuestionFlow_AnonymousWithoutProfile(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t)
	guest := f.account(t, "@guest:example.org")

	_, err := f.engine.Start(t.Context(), guest, FlowAskQuestion, map[string]string{"code": conf.Code})
	require.NoError(t, err)

	reply := f.step(t, guest, "What is the roadmap for next year?")
	assert.Contains(t, reply, "moderator")

	questions, err := f.store.ListQuestions(t.Context(), conf.ID, store.QuestionPending)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Nil(t, questions[0].AuthorProfileID, "no profile means anonymous")
	assert.Nil(t, questions[0].TargetProfileID)
}

func TestSetSlideFlow_ValidatesURL(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t)
	root := f.account(t, "@root:example.org")

	_, err := f.engine.Start(t.Context(), root, FlowSetSlide, map[string]string{"code": conf.Code})
	require.NoError(t, err)

	_, err = f.engine.HandleText(t.Context(), root, "not a url")
	assert.Equal(t, fault.Validation, fault.KindOf(err))

	reply := f.step(t, root, "https://slides.example.org/3 Opening Keynote")
	assert.Contains(t, reply, "Slide updated")

	got, err := f.store.GetConferenceByCode(t.Context(), conf.Code)
	require.NoError(t, err)
	require.NotNil(t, got.SlideURL)
	assert.Equal(t, "https://slides.example.org/3", *got.SlideURL)
	require.NotNil(t, got.SlideTitle)
	assert.Equal(t, "Opening Keynote", *got.SlideTitle)
}

func TestStart_UnknownFlow(t *testing.T) {
	f := newFixture(t)
	guest := f.account(t, "@guest:example.org")

	_, err := f.engine.Start(t.Context(), guest, "no-such-flow", nil)
	assert.Error(t, err)
}

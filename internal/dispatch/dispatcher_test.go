// ABOUTME: Tests for the event dispatcher routing rules
// ABOUTME: Covers cancel precedence, neutral replies and a full user scenario

package dispatch

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/podium/internal/broadcast"
	"github.com/2389/podium/internal/conference"
	"github.com/2389/podium/internal/flow"
	"github.com/2389/podium/internal/identity"
	"github.com/2389/podium/internal/moderation"
	"github.com/2389/podium/internal/poll"
	"github.com/2389/podium/internal/search"
	"github.com/2389/podium/internal/session"
	"github.com/2389/podium/internal/store"
)

type fixture struct {
	store       *store.MockStore
	broadcaster *broadcast.Broadcaster
	engine      *flow.Engine
	confs       *conference.Service
	dispatcher  *Dispatcher
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
	engine := flow.NewEngine(sessions, confs, mod, polls, find, st, nil)

	return &fixture{
		store:       st,
		broadcaster: b,
		engine:      engine,
		confs:       confs,
		dispatcher:  NewDispatcher(r, engine, confs, mod, polls, find, st, nil),
	}
}

func (f *fixture) conference(t *testing.T) *store.Conference {
	t.Helper()
	reply := f.dispatcher.HandleCommand(t.Context(), "@root:example.org", "Root", "/menu")
	require.NotNil(t, reply)
	reply = f.dispatcher.HandleAction(t.Context(), "@root:example.org", "Root", NewAction(NSConf, "create"))
	require.Contains(t, reply.Text, "title")
	reply = f.dispatcher.HandleText(t.Context(), "@root:example.org", "Root", "GopherCon")
	require.NotNil(t, reply)
	reply = f.dispatcher.HandleText(t.Context(), "@root:example.org", "Root", "-")
	require.Contains(t, reply.Text, "Join code:")

	confs, err := f.store.ListConferences(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, confs, 1)
	return confs[0]
}

func TestHandleText_NoSessionGetsNeutralGuidance(t *testing.T) {
	f := newFixture(t)

	reply := f.dispatcher.HandleText(t.Context(), "@guest:example.org", "Guest", "hello there")
	assert.Contains(t, reply.Text, "No active action")
}

func TestHandleText_CancelBeatsEverything(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.HandleCommand(t.Context(), "@guest:example.org", "Guest", "/join")
	require.True(t, f.engine.Active("@guest:example.org"))

	reply := f.dispatcher.HandleText(t.Context(), "@guest:example.org", "Guest", "cancel")
	assert.Contains(t, reply.Text, "Cancelled")
	assert.False(t, f.engine.Active("@guest:example.org"))

	// Localized cancel token works the same way
	f.dispatcher.HandleCommand(t.Context(), "@guest:example.org", "Guest", "/join")
	reply = f.dispatcher.HandleText(t.Context(), "@guest:example.org", "Guest", "отмена")
	assert.Contains(t, reply.Text, "Cancelled")

	reply = f.dispatcher.HandleText(t.Context(), "@guest:example.org", "Guest", "cancel")
	assert.Contains(t, reply.Text, "Nothing to cancel")
}

func TestHandleCommand_ClearsActiveSession(t *testing.T) {
	f := newFixture(t)

	f.dispatcher.HandleCommand(t.Context(), "@guest:example.org", "Guest", "/join")
	require.True(t, f.engine.Active("@guest:example.org"))

	f.dispatcher.HandleCommand(t.Context(), "@guest:example.org", "Guest", "/menu")
	assert.False(t, f.engine.Active("@guest:example.org"), "root menu navigation clears the session")
}

func TestHandleAction_UnknownTokenIsGraceful(t *testing.T) {
	f := newFixture(t)

	reply := f.dispatcher.HandleAction(t.Context(), "@guest:example.org", "Guest", "poll:nosuchverb:x")
	assert.Contains(t, reply.Text, "no longer available")

	reply = f.dispatcher.HandleAction(t.Context(), "@guest:example.org", "Guest", "vote:poll:only-one-arg")
	assert.Contains(t, reply.Text, "no longer available")
}

func TestHandleText_ActionTokenTypedAsText(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t)

	reply := f.dispatcher.HandleText(t.Context(), "@root:example.org", "Root", NewAction(NSConf, "open", conf.Code))
	assert.Contains(t, reply.Text, "GopherCon")
}

func TestMainMenu_HidesCreateFromPlainUsers(t *testing.T) {
	f := newFixture(t)

	reply := f.dispatcher.HandleCommand(t.Context(), "@guest:example.org", "Guest", "/menu")
	for _, row := range reply.Buttons {
		for _, btn := range row {
			assert.NotEqual(t, NewAction(NSConf, "create"), btn.Action)
		}
	}

	reply = f.dispatcher.HandleCommand(t.Context(), "@root:example.org", "Root", "/menu")
	found := false
	for _, row := range reply.Buttons {
		for _, btn := range row {
			if btn.Action == NewAction(NSConf, "create") {
				found = true
			}
		}
	}
	assert.True(t, found, "main admins can create conferences")
}

func TestRenderError_DeniedAndConflict(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t)

	// A plain guest may not end the conference
	reply := f.dispatcher.HandleAction(t.Context(), "@guest:example.org", "Guest",
		NewAction(NSAdmin, "end", conf.Code))
	assert.Contains(t, reply.Text, "Access denied")

	// Stale reference renders a not-found hint
	reply = f.dispatcher.HandleAction(t.Context(), "@root:example.org", "Root",
		NewAction(NSConf, "open", "gonecode"))
	assert.Contains(t, reply.Text, "Not found")
}

func TestScenario_AskModerateVote(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t)
	ctx := t.Context()

	// A guest joins through onboarding
	reply := f.dispatcher.HandleCommand(ctx, "@guest:example.org", "Guest", "/join")
	require.Contains(t, reply.Text, "name")
	f.dispatcher.HandleText(ctx, "@guest:example.org", "Guest", "Alice")
	f.dispatcher.HandleText(ctx, "@guest:example.org", "Guest", "-")
	f.dispatcher.HandleText(ctx, "@guest:example.org", "Guest", "-")
	f.dispatcher.HandleText(ctx, "@guest:example.org", "Guest", "-")
	reply = f.dispatcher.HandleText(ctx, "@guest:example.org", "Guest", conf.Code)
	require.Contains(t, reply.Text, "Welcome")

	// The guest asks a question
	f.dispatcher.HandleAction(ctx, "@guest:example.org", "Guest", NewAction(NSAsk, "question", conf.Code))
	reply = f.dispatcher.HandleText(ctx, "@guest:example.org", "Guest", "How do you test concurrent code?")
	require.Contains(t, reply.Text, "moderator")

	// The moderator sees and approves it
	reply = f.dispatcher.HandleAction(ctx, "@root:example.org", "Root", NewAction(NSModerate, "list", conf.Code))
	require.Contains(t, reply.Text, "How do you test concurrent code?")
	require.NotEmpty(t, reply.Buttons)

	var approveToken string
	for _, row := range reply.Buttons {
		for _, btn := range row {
			if strings.HasPrefix(btn.Action, "moderate:approve:") {
				approveToken = btn.Action
			}
		}
	}
	require.NotEmpty(t, approveToken)

	events, _ := f.broadcaster.Subscribe(ctx, conf.ID)
	reply = f.dispatcher.HandleAction(ctx, "@root:example.org", "Root", approveToken)
	require.Contains(t, reply.Text, "Approved")

	select {
	case ev := <-events:
		assert.Equal(t, broadcast.KindQuestionApproved, ev.Kind)
	default:
		t.Fatal("approval did not reach viewers")
	}

	// Approving again is refused and nothing new is broadcast
	reply = f.dispatcher.HandleAction(ctx, "@root:example.org", "Root", approveToken)
	assert.Contains(t, reply.Text, "Can't do that")
	select {
	case <-events:
		t.Fatal("duplicate broadcast on repeated approval")
	default:
	}

	// The moderator creates a poll
	f.dispatcher.HandleAction(ctx, "@root:example.org", "Root", NewAction(NSPoll, "create", conf.Code))
	f.dispatcher.HandleText(ctx, "@root:example.org", "Root", "Best conference day?")
	reply = f.dispatcher.HandleText(ctx, "@root:example.org", "Root", "Monday, Friday")
	require.Contains(t, reply.Text, "2 options")

	// The guest votes once; the second attempt conflicts
	reply = f.dispatcher.HandleAction(ctx, "@guest:example.org", "Guest", NewAction(NSPolls, "list", conf.Code))
	require.NotEmpty(t, reply.Buttons)
	voteToken := reply.Buttons[0][1].Action

	reply = f.dispatcher.HandleAction(ctx, "@guest:example.org", "Guest", voteToken)
	assert.Contains(t, reply.Text, "Vote counted")
	assert.Contains(t, reply.Text, "Friday: 1")

	reply = f.dispatcher.HandleAction(ctx, "@guest:example.org", "Guest", voteToken)
	assert.Contains(t, reply.Text, "Can't do that")

	// After voting the poll list shows the tally with the guest's choice marked
	reply = f.dispatcher.HandleAction(ctx, "@guest:example.org", "Guest", NewAction(NSPolls, "list", conf.Code))
	assert.Contains(t, reply.Text, "* Friday: 1")
	assert.Empty(t, reply.Buttons, "no vote buttons once voted")
}

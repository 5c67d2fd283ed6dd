// ABOUTME: Dialog flow engine driving multi-step user input collection
// ABOUTME: One session per identity, one step per inbound text, terminal mutation

package flow

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/2389/podium/internal/conference"
	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/moderation"
	"github.com/2389/podium/internal/poll"
	"github.com/2389/podium/internal/search"
	"github.com/2389/podium/internal/session"
	"github.com/2389/podium/internal/store"
)

// SkipToken lets users skip an optional step.
const SkipToken = "-"

// Step is one prompt-validate-accumulate unit of a flow.
type Step struct {
	// Key names the slot in the session's partial data.
	Key string
	// Prompt is shown when the step becomes active and on re-prompt.
	Prompt string
	// Optional steps accept SkipToken and store an empty value.
	Optional bool
	// Validate normalizes the input or returns a Validation fault.
	Validate func(input string) (string, error)
}

// Flow is an ordered list of steps plus the terminal action that performs the
// real mutation once every step is collected.
type Flow struct {
	Name  string
	Steps []Step
	// RetryOnNotFound keeps the session alive when Finish fails with a
	// not-found fault, so the user can correct the offending step input
	// (e.g. a mistyped conference code) or cancel explicitly.
	RetryOnNotFound bool
	Finish          func(ctx context.Context, account *store.Account, data map[string]string) (string, error)
}

// Engine holds the flow registry and drives sessions through their steps.
type Engine struct {
	sessions    session.Store
	flows       map[string]*Flow
	conferences *conference.Service
	moderation  *moderation.Service
	polls       *poll.Service
	search      *search.Service
	store       store.Store
	logger      *slog.Logger
}

// NewEngine creates the engine and registers all built-in flows.
func NewEngine(
	sessions session.Store,
	conferences *conference.Service,
	mod *moderation.Service,
	polls *poll.Service,
	find *search.Service,
	st store.Store,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		sessions:    sessions,
		flows:       make(map[string]*Flow),
		conferences: conferences,
		moderation:  mod,
		polls:       polls,
		search:      find,
		store:       st,
		logger:      logger.With("component", "flow"),
	}
	e.registerBuiltins()
	return e
}

// register adds a flow. Registering the same name twice is a programming
// error: one handler per flow, divergence is a bug.
func (e *Engine) register(f *Flow) {
	if _, dup := e.flows[f.Name]; dup {
		panic(fmt.Sprintf("flow %q registered twice", f.Name))
	}
	e.flows[f.Name] = f
}

// Active reports whether the identity has a session.
func (e *Engine) Active(externalID string) bool {
	_, ok := e.sessions.Get(externalID)
	return ok
}

// Cancel clears the identity's session unconditionally and reports whether
// one existed.
func (e *Engine) Cancel(externalID string) bool {
	_, ok := e.sessions.Get(externalID)
	e.sessions.Clear(externalID)
	return ok
}

// Start begins a flow for the identity, clearing any prior session first so
// partial data never leaks between flows. The seed pre-fills slots that come
// from the triggering action (conference code, target ids). Returns the
// first step's prompt.
func (e *Engine) Start(ctx context.Context, account *store.Account, flowName string, seed map[string]string) (string, error) {
	f, ok := e.flows[flowName]
	if !ok {
		return "", fmt.Errorf("unknown flow %q", flowName)
	}

	e.sessions.Clear(account.ExternalID)

	s := &session.Session{Flow: flowName, Step: 0}
	for k, v := range seed {
		s.Set(k, v)
	}
	e.sessions.Put(account.ExternalID, s)

	e.logger.Debug("flow started", "flow", flowName, "external_id", account.ExternalID)
	return f.Steps[0].Prompt, nil
}

// HandleText advances the identity's active flow by one step. Validation
// failures re-prompt in place (session unchanged). Terminal domain failures
// either re-prompt (validation/conflict, plus not-found for flows that opt
// in) or clear the session (denial, not-found, storage).
func (e *Engine) HandleText(ctx context.Context, account *store.Account, text string) (string, error) {
	s, ok := e.sessions.Get(account.ExternalID)
	if !ok {
		return "", fault.Validationf("no active action")
	}
	f, ok := e.flows[s.Flow]
	if !ok || s.Step >= len(f.Steps) {
		// A stale session referencing a missing flow or step is dropped.
		e.sessions.Clear(account.ExternalID)
		return "", fault.Validationf("no active action")
	}

	step := f.Steps[s.Step]

	value := ""
	if !(step.Optional && text == SkipToken) {
		var err error
		value, err = step.Validate(text)
		if err != nil {
			// Session untouched: same step, re-prompt
			return "", err
		}
	}

	s.Set(step.Key, value)
	s.Step++

	if s.Step < len(f.Steps) {
		e.sessions.Put(account.ExternalID, s)
		return f.Steps[s.Step].Prompt, nil
	}

	reply, err := f.Finish(ctx, account, s.Data)
	if err != nil {
		if fault.Recoverable(err) || (f.RetryOnNotFound && fault.KindOf(err) == fault.NotFound) {
			// Keep the session on the final step so the user can retry
			// the last input, or cancel to exit.
			s.Step = len(f.Steps) - 1
			e.sessions.Put(account.ExternalID, s)
			return "", err
		}
		e.sessions.Clear(account.ExternalID)
		return "", err
	}

	e.sessions.Clear(account.ExternalID)
	e.logger.Debug("flow completed", "flow", f.Name, "external_id", account.ExternalID)
	return reply, nil
}

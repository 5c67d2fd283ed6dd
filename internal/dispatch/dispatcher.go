// ABOUTME: Top-level event dispatcher: commands, action tokens, free text
// ABOUTME: Resolves identity, checks the cancel token, then routes to flow or handler

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/2389/podium/internal/conference"
	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/flow"
	"github.com/2389/podium/internal/identity"
	"github.com/2389/podium/internal/moderation"
	"github.com/2389/podium/internal/poll"
	"github.com/2389/podium/internal/search"
	"github.com/2389/podium/internal/store"
)

// cancelTokens clear the active session regardless of which flow is live.
// Checked before any flow-specific branch.
var cancelTokens = map[string]bool{
	"cancel": true,
	"отмена": true,
}

// Button is one tappable (or typeable) action offered in a reply.
type Button struct {
	Label  string
	Action string
}

// Reply is the dispatcher's answer to one inbound event.
type Reply struct {
	Text    string
	Buttons [][]Button
}

func textReply(format string, args ...any) *Reply {
	return &Reply{Text: fmt.Sprintf(format, args...)}
}

// handlerFunc handles one decoded action.
type handlerFunc func(ctx context.Context, actor *store.Account, args []string) (*Reply, error)

type registration struct {
	arity  int
	greedy int // arg index that may absorb ':' segments, -1 for none
	fn     handlerFunc
}

// Dispatcher routes every inbound event to a stateless action handler or the
// active flow step.
type Dispatcher struct {
	resolver    *identity.Resolver
	engine      *flow.Engine
	conferences *conference.Service
	moderation  *moderation.Service
	polls       *poll.Service
	search      *search.Service
	store       store.Store
	logger      *slog.Logger

	handlers map[string]registration // "<ns>:<verb>"
}

// NewDispatcher creates the dispatcher and registers all action handlers.
func NewDispatcher(
	resolver *identity.Resolver,
	engine *flow.Engine,
	conferences *conference.Service,
	mod *moderation.Service,
	polls *poll.Service,
	find *search.Service,
	st store.Store,
	logger *slog.Logger,
) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Dispatcher{
		resolver:    resolver,
		engine:      engine,
		conferences: conferences,
		moderation:  mod,
		polls:       polls,
		search:      find,
		store:       st,
		logger:      logger.With("component", "dispatch"),
		handlers:    make(map[string]registration),
	}
	d.registerHandlers()
	return d
}

// register wires one handler per (namespace, verb). A duplicate registration
// is a copy-paste bug, not redundancy: panic so it is caught in development.
func (d *Dispatcher) register(namespace, verb string, arity, greedy int, fn handlerFunc) {
	key := namespace + ":" + verb
	if _, dup := d.handlers[key]; dup {
		panic(fmt.Sprintf("action %s registered twice", key))
	}
	d.handlers[key] = registration{arity: arity, greedy: greedy, fn: fn}
}

// HandleCommand processes a slash command. Commands are root-menu
// navigation, so any active session is cleared first.
func (d *Dispatcher) HandleCommand(ctx context.Context, externalID, displayName, command string) *Reply {
	actor, err := d.resolver.Resolve(ctx, externalID, displayName)
	if err != nil {
		d.logger.Error("resolving identity", "error", err)
		return textReply("Something went wrong. Please try again.")
	}

	// Navigating to a root menu always clears prior session state
	d.engine.Cancel(externalID)

	switch strings.TrimPrefix(strings.Fields(command)[0], "/") {
	case "start", "menu":
		return d.mainMenu(ctx, actor)
	case "join":
		return d.startFlow(ctx, actor, flow.FlowOnboarding, nil)
	case "help":
		return helpReply()
	case "cancel":
		return textReply("Nothing to cancel. You're at the main menu.")
	default:
		return helpReply()
	}
}

// HandleAction processes a tapped or typed action token.
func (d *Dispatcher) HandleAction(ctx context.Context, externalID, displayName, token string) *Reply {
	actor, err := d.resolver.Resolve(ctx, externalID, displayName)
	if err != nil {
		d.logger.Error("resolving identity", "error", err)
		return textReply("Something went wrong. Please try again.")
	}

	ns, rest, _ := strings.Cut(token, ":")
	verb, _, _ := strings.Cut(rest, ":")
	reg, ok := d.handlers[ns+":"+verb]
	if !ok {
		d.logger.Debug("unknown action", "token", token)
		return textReply("That action is no longer available.")
	}

	action, err := decodeAction(token, reg.arity, reg.greedy)
	if err != nil {
		d.logger.Debug("malformed action", "token", token, "error", err)
		return textReply("That action is no longer available.")
	}

	reply, err := reg.fn(ctx, actor, action.Args)
	if err != nil {
		return d.renderError(externalID, err)
	}
	return reply
}

// HandleText processes free text. Order matters: cancel token first, then
// the active flow step, then action tokens, then neutral guidance. Text
// with no active session is never interpreted as a flow step.
func (d *Dispatcher) HandleText(ctx context.Context, externalID, displayName, text string) *Reply {
	actor, err := d.resolver.Resolve(ctx, externalID, displayName)
	if err != nil {
		d.logger.Error("resolving identity", "error", err)
		return textReply("Something went wrong. Please try again.")
	}

	trimmed := strings.TrimSpace(text)

	if cancelTokens[strings.ToLower(trimmed)] {
		if d.engine.Cancel(externalID) {
			return textReply("Cancelled. You're back at the main menu.")
		}
		return textReply("Nothing to cancel.")
	}

	if d.engine.Active(externalID) {
		reply, err := d.engine.HandleText(ctx, actor, trimmed)
		if err != nil {
			return d.renderError(externalID, err)
		}
		return textReply("%s", reply)
	}

	if LooksLikeAction(trimmed) {
		return d.HandleAction(ctx, externalID, displayName, trimmed)
	}

	return textReply("No active action. Send /menu to see what you can do.")
}

// startFlow begins a flow and returns its first prompt.
func (d *Dispatcher) startFlow(ctx context.Context, actor *store.Account, name string, seed map[string]string) *Reply {
	prompt, err := d.engine.Start(ctx, actor, name, seed)
	if err != nil {
		d.logger.Error("starting flow", "flow", name, "error", err)
		return textReply("Something went wrong. Please try again.")
	}
	return textReply("%s\n(Send 'cancel' at any time to stop.)", prompt)
}

// renderError turns a domain failure into a user-facing reply per the
// propagation policy: validation and state conflicts keep the session and
// re-prompt, denials and stale references return to a safe menu, storage
// failures get a generic message and a log line.
func (d *Dispatcher) renderError(externalID string, err error) *Reply {
	switch fault.KindOf(err) {
	case fault.Validation:
		return textReply("That doesn't look right: %s.\nTry again, or send 'cancel' to stop.", faultMsg(err))
	case fault.Conflict:
		return textReply("Can't do that: %s.", faultMsg(err))
	case fault.Denied:
		return textReply("Access denied: %s.", faultMsg(err))
	case fault.NotFound:
		if d.engine.Active(externalID) {
			// Flows that retry on not-found keep their session; tell the
			// user how to get out.
			return textReply("Not found: %s.\nCheck your input and try again, or send 'cancel' to stop.", faultMsg(err))
		}
		return textReply("Not found: %s.\nSend /menu to start over.", faultMsg(err))
	default:
		d.logger.Error("storage failure", "error", err)
		return textReply("Something went wrong on our side. Please try again in a moment.")
	}
}

func faultMsg(err error) string {
	var fe *fault.Error
	if errors.As(err, &fe) && fe.Msg != "" {
		return fe.Msg
	}
	return "unexpected error"
}

func helpReply() *Reply {
	return &Reply{
		Text: "Podium lets you ask questions, vote in polls and meet people at your conference.\n" +
			"/menu - main menu\n" +
			"/join - join a conference\n" +
			"Send 'cancel' at any time to abort the current action.",
		Buttons: [][]Button{{{Label: "Main menu", Action: NewAction(NSMenu, "main")}}},
	}
}

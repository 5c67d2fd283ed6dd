// ABOUTME: Structured action descriptor with one encode/decode pair
// ABOUTME: Wire form is colon-delimited: <namespace>:<verb>[:<param>...]

package dispatch

import (
	"fmt"
	"strings"
)

// Action namespaces.
const (
	NSMenu         = "menu"
	NSConf         = "conf"
	NSAdmin        = "admin"
	NSSpeaker      = "speaker"
	NSFind         = "find"
	NSAsk          = "ask"
	NSPolls        = "polls"
	NSVote         = "vote"
	NSPoll         = "poll"
	NSModerate     = "moderate"
	NSParticipants = "participants"
)

var knownNamespaces = map[string]bool{
	NSMenu: true, NSConf: true, NSAdmin: true, NSSpeaker: true,
	NSFind: true, NSAsk: true, NSPolls: true, NSVote: true,
	NSPoll: true, NSModerate: true, NSParticipants: true,
}

// Action is an interactive action descriptor: namespace, verb and typed
// positional parameters. All encoding and decoding goes through this one
// pair so ad hoc token splitting never spreads through handlers.
type Action struct {
	Namespace string
	Verb      string
	Args      []string
}

// Encode renders the wire token.
func (a Action) Encode() string {
	parts := append([]string{a.Namespace, a.Verb}, a.Args...)
	return strings.Join(parts, ":")
}

// NewAction is a convenience constructor for building button tokens.
func NewAction(namespace, verb string, args ...string) string {
	return Action{Namespace: namespace, Verb: verb, Args: args}.Encode()
}

// LooksLikeAction reports whether the text plausibly is an action token:
// at least namespace:verb with a known namespace.
func LooksLikeAction(text string) bool {
	ns, rest, ok := strings.Cut(text, ":")
	return ok && rest != "" && knownNamespaces[ns]
}

// decodeAction parses a wire token into an Action with exactly arity
// parameters. greedy names the parameter index that absorbs surplus
// segments by rejoining them with ':', so values containing colons
// survive the wire form. Pass greedy -1 for none.
func decodeAction(token string, arity, greedy int) (Action, error) {
	parts := strings.Split(token, ":")
	if len(parts) < 2 {
		return Action{}, fmt.Errorf("malformed action token %q", token)
	}

	a := Action{Namespace: parts[0], Verb: parts[1]}
	raw := parts[2:]

	if len(raw) < arity {
		return Action{}, fmt.Errorf("action %s:%s wants %d params, got %d",
			a.Namespace, a.Verb, arity, len(raw))
	}
	if len(raw) > arity && greedy < 0 {
		return Action{}, fmt.Errorf("action %s:%s wants %d params, got %d",
			a.Namespace, a.Verb, arity, len(raw))
	}

	if arity == 0 {
		return a, nil
	}

	extra := len(raw) - arity
	a.Args = make([]string, arity)
	for i := 0; i < greedy; i++ {
		a.Args[i] = raw[i]
	}
	if greedy >= 0 {
		a.Args[greedy] = strings.Join(raw[greedy:greedy+extra+1], ":")
		for i := greedy + 1; i < arity; i++ {
			a.Args[i] = raw[i+extra]
		}
	} else {
		copy(a.Args, raw)
	}
	return a, nil
}

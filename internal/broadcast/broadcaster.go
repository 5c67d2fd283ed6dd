// ABOUTME: In-memory fan-out broadcaster for second-screen viewers
// ABOUTME: Publishes moderated events to all subscribers of a conference channel

package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// subscriberBufferSize is the channel buffer for each subscriber.
const subscriberBufferSize = 64

// Event kinds published to viewers. Pending and rejected questions are never
// published.
const (
	KindSlideUpdated     = "slide-updated"
	KindQuestionApproved = "question-approved"
)

// Event is one moderated update pushed to viewers of a conference. The
// payload is self-contained so viewers can render without a follow-up fetch.
type Event struct {
	Kind         string    `json:"kind"`
	ConferenceID string    `json:"conference_id"`
	SlideURL     *string   `json:"url,omitempty"`
	SlideTitle   *string   `json:"title,omitempty"`
	Text         string    `json:"text,omitempty"`
	HasTarget    bool      `json:"has_target,omitempty"`
	At           time.Time `json:"at"`
}

// SlideUpdated builds a slide-changed event. Both pointers nil means the
// slide was cleared.
func SlideUpdated(conferenceID string, url, title *string) *Event {
	return &Event{
		Kind:         KindSlideUpdated,
		ConferenceID: conferenceID,
		SlideURL:     url,
		SlideTitle:   title,
		At:           time.Now(),
	}
}

// QuestionApproved builds a question-approved event.
func QuestionApproved(conferenceID, text string, hasTarget bool) *Event {
	return &Event{
		Kind:         KindQuestionApproved,
		ConferenceID: conferenceID,
		Text:         text,
		HasTarget:    hasTarget,
		At:           time.Now(),
	}
}

// Broadcaster provides in-memory pub/sub for viewer events. Channels are
// addressed by conference id, not code, to stay stable across renames.
// Publishing is fire-and-forget: no subscribers and slow subscribers never
// fail the triggering domain operation.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // conferenceID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// New creates a broadcaster. Pass nil logger for default.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a viewer for events on the given conference. Returns a
// channel and a subscription ID. The subscription is cleaned up when ctx is
// cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, conferenceID string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[conferenceID]; !ok {
		b.subscribers[conferenceID] = make(map[string]chan *Event)
	}
	b.subscribers[conferenceID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "conference_id", conferenceID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(conferenceID, subID)
	}()

	return ch, subID
}

// Publish sends an event to all subscribers of the event's conference.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *Broadcaster) Publish(event *Event) {
	b.mu.RLock()
	subs, ok := b.subscribers[event.ConferenceID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		b.logger.Debug("no subscribers for event",
			"conference_id", event.ConferenceID, "kind", event.Kind)
		return
	}

	// Copy channels under read lock to avoid holding it during sends
	targets := make([]chan *Event, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"conference_id", event.ConferenceID, "kind", event.Kind)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(conferenceID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conferenceID]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}
	delete(subs, subID)
	if len(subs) == 0 {
		delete(b.subscribers, conferenceID)
	}
	close(ch)

	b.logger.Debug("subscriber removed", "conference_id", conferenceID, "sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for conferenceID, subs := range b.subscribers {
		for subID, ch := range subs {
			delete(subs, subID)
			close(ch)
		}
		delete(b.subscribers, conferenceID)
	}
}

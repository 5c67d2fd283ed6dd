// ABOUTME: Matrix bot transport for podium
// ABOUTME: Routes room messages into the dispatcher and renders replies back

package matrix

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/2389/podium/internal/config"
	"github.com/2389/podium/internal/dispatch"
)

// sendTimeout bounds outbound Matrix API calls.
const sendTimeout = 30 * time.Second

// Bridge connects a Matrix bot account to the dispatcher.
type Bridge struct {
	cfg        config.MatrixConfig
	client     *mautrix.Client
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger

	// Track rooms we're actively processing to avoid duplicate handling
	processing sync.Map

	// ctx is the parent context for message processing goroutines
	ctx    context.Context
	cancel context.CancelFunc
}

// NewBridge creates the Matrix bridge.
func NewBridge(cfg config.MatrixConfig, d *dispatch.Dispatcher, logger *slog.Logger) (*Bridge, error) {
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("creating matrix client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bridge{
		cfg:        cfg,
		client:     client,
		dispatcher: d,
		logger:     logger.With("component", "matrix"),
	}, nil
}

// Run starts the bridge and blocks until the context is cancelled.
func (b *Bridge) Run(ctx context.Context) error {
	b.logger.Info("starting matrix bridge",
		"homeserver", b.cfg.Homeserver,
		"user_id", b.cfg.UserID,
	)

	b.ctx, b.cancel = context.WithCancel(ctx)
	defer b.cancel()

	syncer, ok := b.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("unexpected syncer type: %T", b.client.Syncer)
	}
	syncer.OnEventType(event.EventMessage, b.handleMessageEvent)

	syncErr := make(chan error, 1)
	go func() {
		syncErr <- b.client.SyncWithContext(b.ctx)
	}()

	b.logger.Info("matrix bridge running")

	select {
	case <-ctx.Done():
		b.logger.Info("shutting down matrix bridge")
		b.cancel()
		return nil
	case err := <-syncErr:
		return fmt.Errorf("matrix sync failed: %w", err)
	}
}

// handleMessageEvent filters incoming Matrix messages and hands them off.
func (b *Bridge) handleMessageEvent(ctx context.Context, evt *event.Event) {
	// Ignore our own messages
	if evt.Sender == id.UserID(b.cfg.UserID) {
		return
	}

	content, ok := evt.Content.Parsed.(*event.MessageEventContent)
	if !ok || content.MsgType != event.MsgText {
		return
	}

	roomID := evt.RoomID.String()
	body := content.Body

	if !b.isRoomAllowed(roomID) {
		b.logger.Debug("ignoring message from non-allowed room", "room", roomID)
		return
	}

	if b.cfg.CommandPrefix != "" {
		if !strings.HasPrefix(body, b.cfg.CommandPrefix) {
			return
		}
		body = strings.TrimSpace(strings.TrimPrefix(body, b.cfg.CommandPrefix))
	}
	if body == "" {
		return
	}

	b.logger.Info("received message",
		"room", roomID,
		"sender", evt.Sender.String(),
		"content", truncate(body, 50),
	)

	// Process in a goroutine to not block the sync loop
	go b.processMessage(b.ctx, evt.RoomID, evt.Sender, body)
}

// processMessage routes one message through the dispatcher and sends the
// rendered reply back to the room.
func (b *Bridge) processMessage(ctx context.Context, roomID id.RoomID, sender id.UserID, body string) {
	roomStr := roomID.String()

	// One in-flight message per room keeps session mutations ordered
	if _, loaded := b.processing.LoadOrStore(roomStr, true); loaded {
		b.logger.Debug("already processing message in room, dropping", "room", roomStr)
		return
	}
	defer b.processing.Delete(roomStr)

	externalID := sender.String()
	displayName := localpart(sender)

	var reply *dispatch.Reply
	switch {
	case strings.HasPrefix(body, "/"):
		reply = b.dispatcher.HandleCommand(ctx, externalID, displayName, body)
	case dispatch.LooksLikeAction(body):
		reply = b.dispatcher.HandleAction(ctx, externalID, displayName, body)
	default:
		reply = b.dispatcher.HandleText(ctx, externalID, displayName, body)
	}

	if reply == nil || reply.Text == "" {
		b.logger.Warn("empty reply", "room", roomStr)
		return
	}
	b.sendMessage(roomID, renderReply(reply))
}

// renderReply flattens a reply to plain text. Matrix has no inline buttons,
// so each button becomes a typeable action token line.
func renderReply(reply *dispatch.Reply) string {
	var sb strings.Builder
	sb.WriteString(reply.Text)
	for _, row := range reply.Buttons {
		for _, btn := range row {
			fmt.Fprintf(&sb, "\n%s: send %s", btn.Label, btn.Action)
		}
	}
	return sb.String()
}

func (b *Bridge) isRoomAllowed(roomID string) bool {
	if len(b.cfg.AllowedRooms) == 0 {
		return true
	}
	for _, allowed := range b.cfg.AllowedRooms {
		if allowed == roomID {
			return true
		}
	}
	return false
}

// sendMessage sends a text message to a room.
func (b *Bridge) sendMessage(roomID id.RoomID, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if _, err := b.client.SendText(ctx, roomID, text); err != nil {
		b.logger.Error("failed to send message", "room", roomID.String(), "error", err)
	}
}

// localpart extracts a readable display name from a Matrix user id.
func localpart(user id.UserID) string {
	s := strings.TrimPrefix(user.String(), "@")
	if i := strings.IndexByte(s, ':'); i > 0 {
		return s[:i]
	}
	return s
}

// truncate shortens a string to the given max rune count for log lines.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}

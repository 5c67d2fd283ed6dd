// ABOUTME: Second-screen HTTP surface: viewer page, token issue, live feed
// ABOUTME: Viewers present the shared secret once and stream moderated events

package viewer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/yuin/goldmark"

	"github.com/2389/podium/internal/broadcast"
	"github.com/2389/podium/internal/moderation"
	"github.com/2389/podium/internal/poll"
	"github.com/2389/podium/internal/store"
)

// tokenTTL bounds how long a viewer token stays valid. Viewers re-request
// with the shared secret when it expires.
const tokenTTL = 12 * time.Hour

// Server serves the read-only second screen for conferences.
type Server struct {
	store        store.Store
	broadcaster  *broadcast.Broadcaster
	moderation   *moderation.Service
	polls        *poll.Service
	viewerSecret string
	jwtSecret    []byte
	logger       *slog.Logger
}

// NewServer creates the viewer server.
func NewServer(
	st store.Store,
	b *broadcast.Broadcaster,
	mod *moderation.Service,
	polls *poll.Service,
	viewerSecret, jwtSecret string,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		store:        st,
		broadcaster:  b,
		moderation:   mod,
		polls:        polls,
		viewerSecret: viewerSecret,
		jwtSecret:    []byte(jwtSecret),
		logger:       logger.With("component", "viewer"),
	}
}

// Routes returns the chi router for the viewer surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Route("/c/{code}", func(r chi.Router) {
		r.Get("/", s.handlePage)
		r.Post("/token", s.handleToken)
		r.Get("/live", s.handleLive)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleToken exchanges the shared viewer secret for a short-lived JWT
// scoped to the conference id.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	var req struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if s.viewerSecret == "" || req.Secret != s.viewerSecret {
		http.Error(w, "invalid secret", http.StatusForbidden)
		return
	}

	conf, err := s.store.GetConferenceByCode(r.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "conference not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("loading conference", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	claims := jwt.MapClaims{
		"sub": conf.ID,
		"exp": time.Now().Add(tokenTTL).Unix(),
		"iat": time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		s.logger.Error("signing viewer token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"token": token})
}

// verifyToken checks the JWT and returns the conference id it is scoped to.
func (s *Server) verifyToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return "", fmt.Errorf("invalid viewer token")
	}
	sub, err := token.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("invalid viewer token")
	}
	return sub, nil
}

// handleLive upgrades to a WebSocket and streams broadcast events for the
// conference until the viewer disconnects.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	confID, err := s.verifyToken(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "invalid token", http.StatusForbidden)
		return
	}

	conf, err := s.store.GetConferenceByCode(r.Context(), code)
	if err != nil || conf.ID != confID {
		http.Error(w, "conference not found", http.StatusNotFound)
		return
	}

	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket accept failed", "error", err)
		return
	}
	defer ws.Close(websocket.StatusNormalClosure, "stream ended")

	ctx := r.Context()
	events, subID := s.broadcaster.Subscribe(ctx, conf.ID)
	defer s.broadcaster.Unsubscribe(conf.ID, subID)

	s.logger.Info("viewer connected", "conference_id", conf.ID, "sub_id", subID)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := s.writeEvent(ctx, ws, event); err != nil {
				s.logger.Debug("viewer write failed", "error", err)
				return
			}
		}
	}
}

func (s *Server) writeEvent(ctx context.Context, ws *websocket.Conn, event *broadcast.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return ws.Write(writeCtx, websocket.MessageText, data)
}

// handlePage renders the server-side viewer page: title, markdown
// description, current slide, approved questions and active polls.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	conf, err := s.store.GetConferenceByCode(r.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "conference not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("loading conference", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	questions, err := s.moderation.ListApproved(r.Context(), conf.ID)
	if err != nil {
		s.logger.Error("listing approved questions", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	polls, err := s.polls.ListActive(r.Context(), conf.ID)
	if err != nil {
		s.logger.Error("listing polls", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var descHTML bytes.Buffer
	if err := goldmark.Convert([]byte(conf.Description), &descHTML); err != nil {
		s.logger.Warn("rendering description markdown", "error", err)
		descHTML.Reset()
		descHTML.WriteString(template.HTMLEscapeString(conf.Description))
	}

	data := pageData{
		Conference:  conf,
		Description: template.HTML(descHTML.String()),
		Questions:   questions,
		Polls:       polls,
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := pageTemplate.Execute(w, data); err != nil {
		s.logger.Error("rendering viewer page", "error", err)
	}
}

type pageData struct {
	Conference  *store.Conference
	Description template.HTML
	Questions   []*store.Question
	Polls       []*store.Poll
}

// ABOUTME: Participant matching over conference profiles
// ABOUTME: Role-tag filter plus case-insensitive substring over profile fields

package search

import (
	"context"
	"log/slog"
	"strings"

	"github.com/samber/lo"

	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/store"
)

// Service finds participants by role tag and free-text query.
type Service struct {
	store  store.Store
	logger *slog.Logger
}

// NewService creates a search service.
func NewService(s store.Store, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, logger: logger.With("component", "search")}
}

// Find returns profiles of the conference matching the role tag (empty tag
// matches all) and containing the query as a substring in the name or any of
// the interest/offering/looking-for lists. An empty query matches all.
func (s *Service) Find(ctx context.Context, conferenceID, roleTag, query string) ([]*store.Profile, error) {
	profiles, err := s.store.ListProfiles(ctx, conferenceID)
	if err != nil {
		return nil, fault.Storagef(err, "listing profiles")
	}

	needle := strings.ToLower(strings.TrimSpace(query))
	return lo.Filter(profiles, func(p *store.Profile, _ int) bool {
		if roleTag != "" && !p.HasRole(roleTag) {
			return false
		}
		if needle == "" {
			return true
		}
		return matches(p, needle)
	}), nil
}

func matches(p *store.Profile, needle string) bool {
	if strings.Contains(strings.ToLower(p.Name), needle) {
		return true
	}
	for _, list := range [][]string{p.Interests, p.Offerings, p.LookingFor} {
		if lo.SomeBy(list, func(item string) bool {
			return strings.Contains(strings.ToLower(item), needle)
		}) {
			return true
		}
	}
	return false
}

// ABOUTME: Conference lifecycle manager: create, start/stop, end, delete, join
// ABOUTME: Admin assignment and slide updates with authorization gating

package conference

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/google/uuid"

	"github.com/2389/podium/internal/broadcast"
	"github.com/2389/podium/internal/fault"
	"github.com/2389/podium/internal/identity"
	"github.com/2389/podium/internal/store"
)

const (
	codeLength = 6
	// codeAttempts bounds the generate-and-recheck loop on code collision.
	codeAttempts = 5
)

// codeAlphabet deliberately omits look-alikes (0/o, 1/l) since codes are
// typed by hand from a slide.
const codeAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"

// Service manages the conference lifecycle. State machine:
// created(active) -> stopped -> active (restart) -> ended (terminal);
// delete removes the record and cascades.
type Service struct {
	store       store.Store
	broadcaster *broadcast.Broadcaster
	resolver    *identity.Resolver
	logger      *slog.Logger

	// genCode is swappable in tests to force collisions.
	genCode func() string
}

// NewService creates a conference service.
func NewService(s store.Store, b *broadcast.Broadcaster, r *identity.Resolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:       s,
		broadcaster: b,
		resolver:    r,
		logger:      logger.With("component", "conference"),
		genCode:     randomCode,
	}
}

func randomCode() string {
	buf := make([]byte, codeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeAlphabet))))
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(fmt.Sprintf("reading random: %v", err))
		}
		buf[i] = codeAlphabet[n.Int64()]
	}
	return string(buf)
}

// Create makes a new conference with a generated unique code. The creator
// must hold the admin-capable or main-admin global role.
func (s *Service) Create(ctx context.Context, actor *store.Account, title, description string) (*store.Conference, error) {
	if actor.Role != store.RoleAdminCapable && !s.resolver.IsMainAdmin(actor) {
		return nil, fault.New(fault.Denied, fault.CodeAccessDenied, "not allowed to create conferences")
	}

	conf := &store.Conference{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Access:      store.AccessPublic,
		Active:      true,
		CreatedBy:   actor.ID,
	}

	// Collision is rare; bounded retry rather than strict linearizability.
	created := false
	for attempt := 0; attempt < codeAttempts; attempt++ {
		conf.Code = s.genCode()
		err := s.store.CreateConference(ctx, conf)
		if errors.Is(err, store.ErrDuplicateCode) {
			s.logger.Warn("conference code collision", "code", conf.Code, "attempt", attempt+1)
			continue
		}
		if err != nil {
			return nil, fault.Storagef(err, "creating conference")
		}
		created = true
		break
	}
	if !created {
		return nil, fault.Storagef(store.ErrDuplicateCode, "generating conference code")
	}

	// The creator joins their own conference and is its first admin.
	profile := &store.Profile{
		ID:           uuid.New().String(),
		AccountID:    actor.ID,
		ConferenceID: conf.ID,
		Name:         actor.DisplayName,
		Roles:        []string{store.TagParticipant, store.TagOrganizer},
		Onboarded:    true,
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		return nil, fault.Storagef(err, "creating organizer profile")
	}
	conf.Admins = []string{profile.ID}
	if err := s.store.UpdateConference(ctx, conf); err != nil {
		return nil, fault.Storagef(err, "seeding conference admin")
	}

	s.logger.Info("created conference", "id", conf.ID, "code", conf.Code, "title", title)
	return conf, nil
}

// Update changes the title and/or description. Empty values keep the current
// ones. Admin or main-admin only.
func (s *Service) Update(ctx context.Context, actor *store.Account, code, title, description string) (*store.Conference, error) {
	conf, roles, err := s.authorize(ctx, actor, code)
	if err != nil {
		return nil, err
	}
	if !roles.Moderator() {
		return nil, fault.New(fault.Denied, fault.CodeAccessDenied, "not a conference admin")
	}

	if title != "" {
		conf.Title = title
	}
	if description != "" {
		conf.Description = description
	}
	if err := s.store.UpdateConference(ctx, conf); err != nil {
		return nil, fault.Storagef(err, "updating conference")
	}
	return conf, nil
}

// Start re-activates a stopped conference. No-op guard when ended.
func (s *Service) Start(ctx context.Context, actor *store.Account, code string) error {
	return s.setActive(ctx, actor, code, true)
}

// Stop pauses an active conference. No-op guard when ended.
func (s *Service) Stop(ctx context.Context, actor *store.Account, code string) error {
	return s.setActive(ctx, actor, code, false)
}

func (s *Service) setActive(ctx context.Context, actor *store.Account, code string, active bool) error {
	conf, roles, err := s.authorize(ctx, actor, code)
	if err != nil {
		return err
	}
	if !roles.Moderator() {
		return fault.New(fault.Denied, fault.CodeAccessDenied, "not a conference admin")
	}
	if conf.Ended {
		return fault.New(fault.Conflict, fault.CodeConferenceNotFound, "conference already ended")
	}
	if conf.Active == active {
		return nil
	}
	conf.Active = active
	if err := s.store.UpdateConference(ctx, conf); err != nil {
		return fault.Storagef(err, "updating conference")
	}
	s.logger.Info("conference active flag changed", "code", code, "active", active)
	return nil
}

// End marks the conference as ended. Irreversible; join is disallowed
// thereafter.
func (s *Service) End(ctx context.Context, actor *store.Account, code string) error {
	conf, roles, err := s.authorize(ctx, actor, code)
	if err != nil {
		return err
	}
	if !roles.Moderator() {
		return fault.New(fault.Denied, fault.CodeAccessDenied, "not a conference admin")
	}
	if conf.Ended {
		return nil
	}
	conf.Ended = true
	conf.Active = false
	if err := s.store.UpdateConference(ctx, conf); err != nil {
		return fault.Storagef(err, "ending conference")
	}
	s.logger.Info("conference ended", "code", code)
	return nil
}

// Delete removes the conference entirely; dependents cascade in the store.
func (s *Service) Delete(ctx context.Context, actor *store.Account, code string) error {
	conf, roles, err := s.authorize(ctx, actor, code)
	if err != nil {
		return err
	}
	if !roles.Moderator() {
		return fault.New(fault.Denied, fault.CodeAccessDenied, "not a conference admin")
	}
	if err := s.store.DeleteConference(ctx, conf.ID); err != nil {
		return fault.Storagef(err, "deleting conference")
	}
	s.logger.Info("conference deleted", "code", code)
	return nil
}

// Join resolves the conference by code and lazily creates the joining
// account's profile. Fails with CONFERENCE_NOT_FOUND when the code is
// unknown or the conference has ended.
func (s *Service) Join(ctx context.Context, actor *store.Account, code, name string) (*store.Conference, *store.Profile, error) {
	conf, err := s.lookup(ctx, code)
	if err != nil {
		return nil, nil, err
	}
	if conf.Ended {
		return nil, nil, fault.New(fault.NotFound, fault.CodeConferenceNotFound, "conference has ended")
	}

	profile, err := s.store.GetProfileByAccount(ctx, actor.ID, conf.ID)
	if err == nil {
		return conf, profile, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, nil, fault.Storagef(err, "loading profile")
	}

	if name == "" {
		name = actor.DisplayName
	}
	profile = &store.Profile{
		ID:           uuid.New().String(),
		AccountID:    actor.ID,
		ConferenceID: conf.ID,
		Name:         name,
		Roles:        []string{store.TagParticipant},
	}
	if err := s.store.CreateProfile(ctx, profile); err != nil {
		// A concurrent join may have won the unique (account, conference)
		// race; re-read before giving up.
		if existing, gerr := s.store.GetProfileByAccount(ctx, actor.ID, conf.ID); gerr == nil {
			return conf, existing, nil
		}
		return nil, nil, fault.Storagef(err, "creating profile")
	}
	s.logger.Info("joined conference", "code", code, "profile_id", profile.ID)
	return conf, profile, nil
}

// AssignAdmin adds the target account's profile to the conference admin set.
// Main-admin only; the target must already have a profile in the conference.
func (s *Service) AssignAdmin(ctx context.Context, actor *store.Account, code, targetExternalID string) error {
	conf, err := s.requireMainAdmin(ctx, actor, code)
	if err != nil {
		return err
	}

	profile, err := s.targetProfile(ctx, conf, targetExternalID)
	if err != nil {
		return err
	}
	if conf.IsAdmin(profile.ID) {
		return nil
	}
	conf.Admins = append(conf.Admins, profile.ID)
	if err := s.store.UpdateConference(ctx, conf); err != nil {
		return fault.Storagef(err, "assigning admin")
	}

	// Admins moderate; give them the organizer tag on their profile too.
	if !profile.HasRole(store.TagOrganizer) {
		profile.Roles = append(profile.Roles, store.TagOrganizer)
		if err := s.store.UpdateProfile(ctx, profile); err != nil {
			return fault.Storagef(err, "tagging organizer")
		}
	}
	s.logger.Info("assigned conference admin", "code", code, "profile_id", profile.ID)
	return nil
}

// RevokeAdmin removes the target from the admin set. Main-admin only; fails
// with TARGET_USER_NOT_ADMIN when the target is not currently listed.
func (s *Service) RevokeAdmin(ctx context.Context, actor *store.Account, code, targetExternalID string) error {
	conf, err := s.requireMainAdmin(ctx, actor, code)
	if err != nil {
		return err
	}

	profile, err := s.targetProfile(ctx, conf, targetExternalID)
	if err != nil {
		return err
	}
	if !conf.IsAdmin(profile.ID) {
		return fault.New(fault.Conflict, fault.CodeTargetNotAdmin, "target is not an admin")
	}

	admins := conf.Admins[:0]
	for _, id := range conf.Admins {
		if id != profile.ID {
			admins = append(admins, id)
		}
	}
	conf.Admins = admins
	if err := s.store.UpdateConference(ctx, conf); err != nil {
		return fault.Storagef(err, "revoking admin")
	}
	s.logger.Info("revoked conference admin", "code", code, "profile_id", profile.ID)
	return nil
}

// SetSlide updates the current slide and broadcasts slide-updated. The
// broadcast is fire-and-forget.
func (s *Service) SetSlide(ctx context.Context, actor *store.Account, code, url, title string) error {
	conf, roles, err := s.authorize(ctx, actor, code)
	if err != nil {
		return err
	}
	if !roles.Moderator() {
		return fault.New(fault.Denied, fault.CodeAccessDenied, "not a conference admin")
	}

	conf.SlideURL = &url
	if title != "" {
		conf.SlideTitle = &title
	} else {
		conf.SlideTitle = nil
	}
	if err := s.store.UpdateConference(ctx, conf); err != nil {
		return fault.Storagef(err, "setting slide")
	}

	s.broadcaster.Publish(broadcast.SlideUpdated(conf.ID, conf.SlideURL, conf.SlideTitle))
	return nil
}

// ClearSlide removes the current slide and broadcasts slide-updated with
// null fields.
func (s *Service) ClearSlide(ctx context.Context, actor *store.Account, code string) error {
	conf, roles, err := s.authorize(ctx, actor, code)
	if err != nil {
		return err
	}
	if !roles.Moderator() {
		return fault.New(fault.Denied, fault.CodeAccessDenied, "not a conference admin")
	}

	conf.SlideURL = nil
	conf.SlideTitle = nil
	if err := s.store.UpdateConference(ctx, conf); err != nil {
		return fault.Storagef(err, "clearing slide")
	}

	s.broadcaster.Publish(broadcast.SlideUpdated(conf.ID, nil, nil))
	return nil
}

// Get resolves a conference by code.
func (s *Service) Get(ctx context.Context, code string) (*store.Conference, error) {
	return s.lookup(ctx, code)
}

func (s *Service) lookup(ctx context.Context, code string) (*store.Conference, error) {
	conf, err := s.store.GetConferenceByCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.New(fault.NotFound, fault.CodeConferenceNotFound, "no conference with code "+code)
	}
	if err != nil {
		return nil, fault.Storagef(err, "loading conference")
	}
	return conf, nil
}

func (s *Service) authorize(ctx context.Context, actor *store.Account, code string) (*store.Conference, identity.RoleSet, error) {
	conf, err := s.lookup(ctx, code)
	if err != nil {
		return nil, identity.RoleSet{}, err
	}
	roles, err := s.resolver.Roles(ctx, actor, conf)
	if err != nil {
		return nil, identity.RoleSet{}, fault.Storagef(err, "resolving roles")
	}
	return conf, roles, nil
}

func (s *Service) requireMainAdmin(ctx context.Context, actor *store.Account, code string) (*store.Conference, error) {
	conf, err := s.lookup(ctx, code)
	if err != nil {
		return nil, err
	}
	if !s.resolver.IsMainAdmin(actor) {
		return nil, fault.New(fault.Denied, fault.CodeAccessDenied, "main admin required")
	}
	return conf, nil
}

func (s *Service) targetProfile(ctx context.Context, conf *store.Conference, targetExternalID string) (*store.Profile, error) {
	account, err := s.store.GetAccountByExternalID(ctx, targetExternalID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.New(fault.NotFound, fault.CodeTargetNotFound, "no account for "+targetExternalID)
	}
	if err != nil {
		return nil, fault.Storagef(err, "loading target account")
	}

	profile, err := s.store.GetProfileByAccount(ctx, account.ID, conf.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.New(fault.NotFound, fault.CodeTargetNotFound, "target has no profile in this conference")
	}
	if err != nil {
		return nil, fault.Storagef(err, "loading target profile")
	}
	return profile, nil
}

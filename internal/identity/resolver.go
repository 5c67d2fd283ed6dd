// ABOUTME: Identity resolution and role computation for podium
// ABOUTME: Maps external chat identities to accounts and per-conference role sets

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/2389/podium/internal/store"
)

// RoleSet is the effective authorization of an account for one conference.
type RoleSet struct {
	MainAdmin       bool
	ConferenceAdmin bool
	Speaker         bool

	// Profile is the account's profile in the conference, nil if the
	// account never joined it.
	Profile *store.Profile
}

// Moderator reports whether the role set allows moderation actions.
func (r RoleSet) Moderator() bool {
	return r.MainAdmin || r.ConferenceAdmin
}

// Resolver maps external identities to accounts and computes role sets.
// Main admins come from a configured allow-list of external identities.
type Resolver struct {
	store      store.Store
	mainAdmins map[string]bool
	logger     *slog.Logger
}

// NewResolver creates a resolver with the given main-admin allow-list.
func NewResolver(s store.Store, mainAdmins []string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	allow := make(map[string]bool, len(mainAdmins))
	for _, id := range mainAdmins {
		allow[id] = true
	}
	return &Resolver{
		store:      s,
		mainAdmins: allow,
		logger:     logger.With("component", "identity"),
	}
}

// Resolve returns the account for an external identity, creating it on first
// contact. The upsert is idempotent.
func (r *Resolver) Resolve(ctx context.Context, externalID, displayName string) (*store.Account, error) {
	account, err := r.store.UpsertAccount(ctx, externalID, displayName)
	if err != nil {
		return nil, fmt.Errorf("resolving account: %w", err)
	}
	if r.mainAdmins[externalID] && account.Role != store.RoleMainAdmin {
		if err := r.store.SetAccountRole(ctx, account.ID, store.RoleMainAdmin); err != nil {
			return nil, fmt.Errorf("promoting main admin: %w", err)
		}
		account.Role = store.RoleMainAdmin
		r.logger.Info("promoted main admin", "external_id", externalID)
	}
	return account, nil
}

// IsMainAdmin reports whether the account is on the main-admin allow-list.
func (r *Resolver) IsMainAdmin(account *store.Account) bool {
	return r.mainAdmins[account.ExternalID] || account.Role == store.RoleMainAdmin
}

// Roles computes the account's effective role set for a conference. A nil
// conference yields only the main-admin bit.
func (r *Resolver) Roles(ctx context.Context, account *store.Account, conf *store.Conference) (RoleSet, error) {
	rs := RoleSet{MainAdmin: r.IsMainAdmin(account)}
	if conf == nil {
		return rs, nil
	}

	profile, err := r.store.GetProfileByAccount(ctx, account.ID, conf.ID)
	if errors.Is(err, store.ErrNotFound) {
		return rs, nil
	}
	if err != nil {
		return rs, fmt.Errorf("loading profile: %w", err)
	}

	rs.Profile = profile
	rs.ConferenceAdmin = conf.IsAdmin(profile.ID)
	rs.Speaker = profile.HasRole(store.TagSpeaker)
	return rs, nil
}

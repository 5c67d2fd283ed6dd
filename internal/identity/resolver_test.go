// ABOUTME: Tests for identity resolution and role computation
// ABOUTME: Covers idempotent upserts, allow-list promotion and role sets

package identity

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/podium/internal/store"
)

func TestResolve_IdempotentUpsert(t *testing.T) {
	st := store.NewMockStore()
	r := NewResolver(st, nil, nil)

	a1, err := r.Resolve(t.Context(), "@alice:example.org", "Alice")
	require.NoError(t, err)
	a2, err := r.Resolve(t.Context(), "@alice:example.org", "Alice Again")
	require.NoError(t, err)

	assert.Equal(t, a1.ID, a2.ID)
	assert.Equal(t, "Alice Again", a2.DisplayName)
	assert.Equal(t, store.RolePlain, a2.Role)
}

func TestResolve_PromotesAllowListedMainAdmins(t *testing.T) {
	st := store.NewMockStore()
	r := NewResolver(st, []string{"@root:example.org"}, nil)

	root, err := r.Resolve(t.Context(), "@root:example.org", "Root")
	require.NoError(t, err)
	assert.Equal(t, store.RoleMainAdmin, root.Role)
	assert.True(t, r.IsMainAdmin(root))

	// The promotion is persisted, not just in-memory
	stored, err := st.GetAccountByExternalID(t.Context(), "@root:example.org")
	require.NoError(t, err)
	assert.Equal(t, store.RoleMainAdmin, stored.Role)
}

func TestRoles_ComputesConferenceRoleSet(t *testing.T) {
	st := store.NewMockStore()
	r := NewResolver(st, nil, nil)
	ctx := t.Context()

	account, err := r.Resolve(ctx, "@speaker:example.org", "Speaker")
	require.NoError(t, err)

	conf := &store.Conference{
		ID:     uuid.New().String(),
		Code:   "conf01",
		Title:  "Conf",
		Access: store.AccessPublic,
	}
	require.NoError(t, st.CreateConference(ctx, conf))

	// No profile yet: no conference roles
	rs, err := r.Roles(ctx, account, conf)
	require.NoError(t, err)
	assert.False(t, rs.Moderator())
	assert.False(t, rs.Speaker)
	assert.Nil(t, rs.Profile)

	profile := &store.Profile{
		ID:           uuid.New().String(),
		AccountID:    account.ID,
		ConferenceID: conf.ID,
		Name:         "Speaker",
		Roles:        []string{store.TagSpeaker},
	}
	require.NoError(t, st.CreateProfile(ctx, profile))
	conf.Admins = []string{profile.ID}
	require.NoError(t, st.UpdateConference(ctx, conf))

	rs, err = r.Roles(ctx, account, conf)
	require.NoError(t, err)
	assert.True(t, rs.Speaker)
	assert.True(t, rs.ConferenceAdmin)
	assert.True(t, rs.Moderator())
	require.NotNil(t, rs.Profile)
	assert.Equal(t, profile.ID, rs.Profile.ID)
}

func TestRoles_NilConferenceOnlyMainAdminBit(t *testing.T) {
	st := store.NewMockStore()
	r := NewResolver(st, []string{"@root:example.org"}, nil)

	root, err := r.Resolve(t.Context(), "@root:example.org", "Root")
	require.NoError(t, err)

	rs, err := r.Roles(t.Context(), root, nil)
	require.NoError(t, err)
	assert.True(t, rs.MainAdmin)
	assert.False(t, rs.ConferenceAdmin)
	assert.Nil(t, rs.Profile)
}

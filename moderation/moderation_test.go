package moderation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/groupcore/permission"
)

// fakeTimeProvider is a controllable clock for expiry tests.
type fakeTimeProvider struct {
	current time.Time
}

func (f *fakeTimeProvider) Now() time.Time { return f.current }

func (f *fakeTimeProvider) advance(d time.Duration) { f.current = f.current.Add(d) }

func newTestManager() (*ListManager, *fakeTimeProvider) {
	m := NewListManager()
	clock := &fakeTimeProvider{current: time.Unix(1700000000, 0)}
	m.SetTimeProvider(clock)
	return m, clock
}

func TestMutePermanent(t *testing.T) {
	m, clock := newTestManager()

	m.Mute("u1", PermanentMute)
	assert.True(t, m.IsMuted("u1"))

	// A permanent mute never expires, however far the clock moves.
	clock.advance(1000 * time.Hour)
	assert.True(t, m.IsMuted("u1"))

	m.Unmute("u1")
	assert.False(t, m.IsMuted("u1"))
}

func TestMuteLazyExpiry(t *testing.T) {
	m, clock := newTestManager()

	m.Mute("u1", 10*time.Minute)
	assert.True(t, m.IsMuted("u1"))

	clock.advance(9 * time.Minute)
	assert.True(t, m.IsMuted("u1"))

	clock.advance(time.Minute)
	assert.False(t, m.IsMuted("u1"), "mute should read as expired once its wall-clock expiry passes")

	// The expired entry is evaluated lazily, not purged, so the list no
	// longer reports it either.
	assert.Empty(t, m.MuteList())
}

func TestMuteListSortedAndFiltered(t *testing.T) {
	m, clock := newTestManager()

	m.Mute("zeta", PermanentMute)
	m.Mute("alpha", time.Hour)
	m.Mute("mid", time.Minute)
	clock.advance(30 * time.Minute)

	list := m.MuteList()
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].UserID)
	assert.Equal(t, "zeta", list[1].UserID)
}

func TestBlockAndUnblock(t *testing.T) {
	m, _ := newTestManager()

	m.Block("u1")
	assert.True(t, m.IsBlocked("u1"))
	assert.Equal(t, []string{"u1"}, m.BlockList())

	// Unblocking a user who is not blocked is a no-op.
	m.Unblock("u2")
	assert.True(t, m.IsBlocked("u1"))

	m.Unblock("u1")
	assert.False(t, m.IsBlocked("u1"))
	assert.Empty(t, m.BlockList())
}

func TestAllowlist(t *testing.T) {
	m, _ := newTestManager()

	m.Allow("u1")
	m.Allow("u2")
	assert.True(t, m.IsAllowed("u1"))
	assert.Equal(t, []string{"u1", "u2"}, m.Allowlist())

	m.Disallow("u1")
	assert.False(t, m.IsAllowed("u1"))
}

func TestCanSendPrecedence(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*ListManager)
		user  string
		role  permission.Role
		want  bool
	}{
		{
			name:  "plain_member_allowed",
			setup: func(m *ListManager) {},
			user:  "u1", role: permission.RoleMember, want: true,
		},
		{
			name:  "muted_member_denied",
			setup: func(m *ListManager) { m.Mute("u1", PermanentMute) },
			user:  "u1", role: permission.RoleMember, want: false,
		},
		{
			name: "allowlist_overrides_mute",
			setup: func(m *ListManager) {
				m.Mute("u1", PermanentMute)
				m.Allow("u1")
			},
			user: "u1", role: permission.RoleMember, want: true,
		},
		{
			name:  "mute_all_blocks_members",
			setup: func(m *ListManager) { m.SetMuteAll(true) },
			user:  "u1", role: permission.RoleMember, want: false,
		},
		{
			name: "mute_all_spares_allowlisted",
			setup: func(m *ListManager) {
				m.SetMuteAll(true)
				m.Allow("u1")
			},
			user: "u1", role: permission.RoleMember, want: true,
		},
		{
			name:  "mute_all_spares_admin",
			setup: func(m *ListManager) { m.SetMuteAll(true) },
			user:  "u1", role: permission.RoleAdmin, want: true,
		},
		{
			name:  "admin_exempt_from_individual_mute",
			setup: func(m *ListManager) { m.Mute("u1", PermanentMute) },
			user:  "u1", role: permission.RoleAdmin, want: true,
		},
		{
			name: "blocked_never_sends",
			setup: func(m *ListManager) {
				m.Allow("u1")
				m.Block("u1")
			},
			user: "u1", role: permission.RoleMember, want: false,
		},
		{
			name:  "nonmember_denied",
			setup: func(m *ListManager) {},
			user:  "u1", role: permission.RoleNone, want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager()
			tt.setup(m)
			assert.Equal(t, tt.want, m.CanSend(tt.user, tt.role))
		})
	}
}

func TestScenarioAllowlistOverridesMuteButEntryPersists(t *testing.T) {
	// Admin mutes u1 permanently, then allowlists u1: the mute entry is
	// unchanged but effective send permission is restored.
	m, _ := newTestManager()

	m.Mute("u1", PermanentMute)
	m.Allow("u1")

	assert.True(t, m.IsMuted("u1"), "mute entry must remain on the list")
	assert.True(t, m.CanSend("u1", permission.RoleMember), "allowlist overrides mute for sending")
}

package membership

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/groupcore/limits"
	"github.com/opd-ai/groupcore/permission"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Add("owner", permission.RoleOwner))
	require.NoError(t, s.Add("admin", permission.RoleAdmin))
	require.NoError(t, s.Add("u1", permission.RoleMember))
	require.NoError(t, s.Add("u2", permission.RoleMember))
	return s
}

func TestAddDuplicateMember(t *testing.T) {
	s := newTestStore(t)

	err := s.Add("u1", permission.RoleMember)
	assert.ErrorIs(t, err, ErrAlreadyMember)
	assert.Equal(t, 4, s.Count())
}

func TestSingleOwnerInvariant(t *testing.T) {
	s := newTestStore(t)

	// A second owner cannot be added or promoted directly.
	err := s.Add("usurper", permission.RoleOwner)
	assert.ErrorIs(t, err, ErrOwnerExists)

	err = s.SetRole("u1", permission.RoleOwner)
	assert.ErrorIs(t, err, ErrOwnerExists)

	owner, ok := s.Owner()
	require.True(t, ok)
	assert.Equal(t, "owner", owner)
}

func TestRemoveIdempotent(t *testing.T) {
	s := newTestStore(t)

	assert.True(t, s.Remove("u1"))
	assert.False(t, s.IsMember("u1"))

	// Removing an already-absent member succeeds as a no-op.
	assert.False(t, s.Remove("u1"))
	assert.False(t, s.Remove("never-joined"))
}

func TestRoleOf(t *testing.T) {
	s := newTestStore(t)

	assert.Equal(t, permission.RoleOwner, s.RoleOf("owner"))
	assert.Equal(t, permission.RoleAdmin, s.RoleOf("admin"))
	assert.Equal(t, permission.RoleMember, s.RoleOf("u1"))
	assert.Equal(t, permission.RoleNone, s.RoleOf("stranger"))
}

func TestTransferOwnership(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.TransferOwnership("u2"))

	assert.Equal(t, permission.RoleOwner, s.RoleOf("u2"))
	assert.Equal(t, permission.RoleAdmin, s.RoleOf("owner"), "prior owner becomes admin")

	owner, ok := s.Owner()
	require.True(t, ok)
	assert.Equal(t, "u2", owner)

	// Ownership moves back just as atomically.
	require.NoError(t, s.TransferOwnership("owner"))
	assert.Equal(t, permission.RoleOwner, s.RoleOf("owner"))
	assert.Equal(t, permission.RoleAdmin, s.RoleOf("u2"))
}

func TestTransferOwnershipToNonMember(t *testing.T) {
	s := newTestStore(t)

	err := s.TransferOwnership("stranger")
	assert.ErrorIs(t, err, ErrNotMember)
	assert.Equal(t, permission.RoleOwner, s.RoleOf("owner"))
}

func TestTransferOwnershipToSelfIsNoop(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.TransferOwnership("owner"))
	assert.Equal(t, permission.RoleOwner, s.RoleOf("owner"))
	assert.Equal(t, 4, s.Count())
}

func TestListPaginationBounds(t *testing.T) {
	s := newTestStore(t)

	_, err := s.List(1, limits.MaxMemberPageSize+1)
	assert.ErrorIs(t, err, limits.ErrPageSizeExceeded)

	_, err = s.List(0, 10)
	assert.ErrorIs(t, err, limits.ErrPageOutOfRange)

	members, err := s.List(1, limits.MaxMemberPageSize)
	require.NoError(t, err)
	assert.Len(t, members, 4)
}

func TestListOrderingAndPaging(t *testing.T) {
	s := newTestStore(t)

	page, err := s.List(1, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "owner", page[0].UserID, "owner sorts first")
	assert.Equal(t, "admin", page[1].UserID, "admins sort before members")

	page, err = s.List(2, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "u1", page[0].UserID)
	assert.Equal(t, "u2", page[1].UserID)

	page, err = s.List(3, 2)
	require.NoError(t, err)
	assert.Empty(t, page)
}

func TestAttributesSetAndDelete(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetAttributes("u1", map[string]string{
		"nickname": "Dot",
		"avatar":   "https://example.com/a.png",
	}))
	assert.Equal(t, "Dot", s.Attributes("u1")["nickname"])

	// An empty value deletes the key; the deleted key is indistinguishable
	// from one never set.
	require.NoError(t, s.SetAttributes("u1", map[string]string{"nickname": ""}))
	attrs := s.Attributes("u1")
	_, present := attrs["nickname"]
	assert.False(t, present)
	assert.Equal(t, "https://example.com/a.png", attrs["avatar"])
}

func TestAttributesForNonMember(t *testing.T) {
	s := newTestStore(t)

	err := s.SetAttributes("stranger", map[string]string{"k": "v"})
	assert.ErrorIs(t, err, ErrNotMember)
	assert.Empty(t, s.Attributes("stranger"))
}

func TestAttributesForUsers(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetAttributes("u1", map[string]string{"nickname": "Dot", "color": "red"}))
	require.NoError(t, s.SetAttributes("u2", map[string]string{"nickname": "Dash"}))

	// No key filter returns everything for each member.
	all := s.AttributesForUsers([]string{"u1", "u2", "stranger"})
	require.Len(t, all, 2)
	assert.Len(t, all["u1"], 2)
	assert.Equal(t, "Dash", all["u2"]["nickname"])

	// A key filter restricts the result per user.
	filtered := s.AttributesForUsers([]string{"u1", "u2"}, "color")
	assert.Equal(t, map[string]string{"color": "red"}, filtered["u1"])
	assert.Empty(t, filtered["u2"])
}

func TestRemoveClearsAttributes(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetAttributes("u1", map[string]string{"nickname": "Dot"}))
	s.Remove("u1")
	require.NoError(t, s.Add("u1", permission.RoleMember))
	assert.Empty(t, s.Attributes("u1"), "rejoining starts with a clean attribute map")
}

func TestConcurrentReads(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Add("owner", permission.RoleOwner))
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Add(fmt.Sprintf("user-%03d", i), permission.RoleMember))
	}

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 200; j++ {
				s.IsMember("user-050")
				s.RoleOf("owner")
				if _, err := s.List(1, 50); err != nil && !errors.Is(err, limits.ErrPageSizeExceeded) {
					t.Error(err)
					return
				}
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
}

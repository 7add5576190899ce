package groupcore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/groupcore/membership"
	"github.com/opd-ai/groupcore/permission"
)

func TestListGroupMembersPaginationBounds(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1", "u2")

	members, err := c.ListGroupMembers(groupID, 1, 1000)
	require.NoError(t, err)
	assert.Len(t, members, 3)
	assert.Equal(t, "alice", members[0].UserID, "owner sorts first")

	_, err = c.ListGroupMembers(groupID, 1, 1001)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	// Pagination is validated before the group lookup.
	_, err = c.ListGroupMembers("missing", 1, 1001)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestRemoveMemberIdempotent(t *testing.T) {
	c, sink := newTestClient(t)
	groupID := newTestGroup(t, c, "u1", "u2")
	sink.reset()

	require.NoError(t, c.RemoveMember(context.Background(), groupID, "u1"))

	ev := sink.last(t)
	assert.Equal(t, OpRemoveMember, ev.Op)
	assert.Equal(t, "u1", ev.Target)
	assert.True(t, contains(ev.Recipients, "u1"), "removed user is notified")
	assert.True(t, contains(ev.Recipients, "u2"), "remaining members are notified")

	// Removing an absent user succeeds without an event.
	sink.reset()
	require.NoError(t, c.RemoveMember(context.Background(), groupID, "u1"))
	assert.Empty(t, sink.all())
}

func TestRemoveMembersPartialResults(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1", "u2")
	require.NoError(t, c.SetAdmin(context.Background(), groupID, "u2"))

	// u2 is admin: removing alice (owner) and u2 (admin peer) fails per
	// target, u1 and the absent ghost succeed.
	results, err := c.removeMembers(context.Background(), "u2", groupID, []string{"u1", "alice", "ghost", "u2"})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrPermissionDenied)
	assert.NoError(t, results[2].Err, "absent target is a no-op success")
	assert.ErrorIs(t, results[3].Err, ErrInvalidArgument, "self-removal goes through LeaveGroup")

	g, err := c.group(groupID)
	require.NoError(t, err)
	assert.False(t, g.members.IsMember("u1"))
	assert.True(t, g.members.IsMember("alice"))
}

func TestLeaveGroup(t *testing.T) {
	c, sink := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")
	sink.reset()

	// The sole owner cannot leave.
	err := c.LeaveGroup(context.Background(), groupID)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, c.leaveGroup(context.Background(), "u1", groupID))
	ev := sink.last(t)
	assert.Equal(t, OpMemberAbsence, ev.Op)
	assert.Equal(t, "u1", ev.Target)

	err = c.leaveGroup(context.Background(), "u1", groupID)
	assert.ErrorIs(t, err, membership.ErrNotMember)

	// After transferring ownership the previous owner may leave, and the
	// local state is dropped.
	results, err := c.InviteUsers(context.Background(), groupID, []string{"u2"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)
	require.NoError(t, c.acceptInvitation(context.Background(), "u2", groupID))
	require.NoError(t, c.TransferOwnership(context.Background(), groupID, "u2"))
	require.NoError(t, c.LeaveGroup(context.Background(), groupID))
	_, err = c.group(groupID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAdminRoles(t *testing.T) {
	c, sink := newTestClient(t)
	groupID := newTestGroup(t, c, "u1", "u2")
	sink.reset()

	require.NoError(t, c.SetAdmin(context.Background(), groupID, "u1"))
	ev := sink.last(t)
	assert.Equal(t, OpSetAdmin, ev.Op)
	assert.Equal(t, []string{"u1"}, ev.Recipients)

	admins, err := c.GroupAdmins(groupID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, admins)

	// Granting again is a quiet no-op.
	sink.reset()
	require.NoError(t, c.SetAdmin(context.Background(), groupID, "u1"))
	assert.Empty(t, sink.all())

	// Only the owner grants or revokes.
	err = c.setAdmin(context.Background(), "u1", groupID, "u2")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	require.NoError(t, c.RemoveAdmin(context.Background(), groupID, "u1"))
	g, err := c.group(groupID)
	require.NoError(t, err)
	assert.Equal(t, permission.RoleMember, g.members.RoleOf("u1"))

	err = c.SetAdmin(context.Background(), groupID, "ghost")
	assert.ErrorIs(t, err, membership.ErrNotMember)
}

func TestInviteUsersConfirmationModes(t *testing.T) {
	c, sink := newTestClient(t)

	confirm := true
	info, err := c.CreateGroup(context.Background(), CreateGroupRequest{
		Name:               "confirm",
		InviteNeedsConfirm: &confirm,
	})
	require.NoError(t, err)
	sink.reset()

	results, err := c.InviteUsers(context.Background(), info.ID, []string{"u1"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	ev := sink.last(t)
	assert.Equal(t, OpInviteToJoin, ev.Op)
	g, err := c.group(info.ID)
	require.NoError(t, err)
	assert.False(t, g.members.IsMember("u1"), "confirmation pending, not yet a member")

	noConfirm := false
	open, err := c.CreateGroup(context.Background(), CreateGroupRequest{
		Name:               "open",
		InviteNeedsConfirm: &noConfirm,
	})
	require.NoError(t, err)
	sink.reset()

	results, err = c.InviteUsers(context.Background(), open.ID, []string{"u1"})
	require.NoError(t, err)
	require.NoError(t, results[0].Err)

	ev = sink.last(t)
	assert.Equal(t, OpDirectJoined, ev.Op)
	g, err = c.group(open.ID)
	require.NoError(t, err)
	assert.True(t, g.members.IsMember("u1"), "no confirmation means direct add")
}

func TestInviteUsersMemberGate(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")

	// Plain members cannot invite unless the group allows it.
	_, err := c.inviteUsers(context.Background(), "u1", groupID, []string{"u2"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	info, err := c.CreateGroup(context.Background(), CreateGroupRequest{
		Name:               "open-invites",
		AllowMemberInvites: true,
		Members:            []string{"u1"},
	})
	require.NoError(t, err)

	results, err := c.inviteUsers(context.Background(), "u1", info.ID, []string{"u2"})
	require.NoError(t, err)
	assert.NoError(t, results[0].Err)

	// Inviting an existing member fails per target, not the batch.
	results, err = c.InviteUsers(context.Background(), info.ID, []string{"u1", "u3"})
	require.NoError(t, err)
	assert.ErrorIs(t, results[0].Err, membership.ErrAlreadyMember)
	assert.NoError(t, results[1].Err)
}

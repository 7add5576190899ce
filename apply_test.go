package groupcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/groupcore/permission"
)

func inbound(op EventOp, groupID, actor, target string) *Event {
	return &Event{
		Op:        op,
		GroupID:   groupID,
		Actor:     actor,
		Target:    target,
		Timestamp: time.Now(),
	}
}

func TestApplyEventMemberChurn(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")

	require.NoError(t, c.ApplyEvent(inbound(OpMemberPresence, groupID, "u2", "u2")))
	g, err := c.group(groupID)
	require.NoError(t, err)
	assert.True(t, g.members.IsMember("u2"))

	// Applying the same join again is a no-op.
	require.NoError(t, c.ApplyEvent(inbound(OpMemberPresence, groupID, "u2", "u2")))

	require.NoError(t, c.ApplyEvent(inbound(OpMemberAbsence, groupID, "u2", "u2")))
	assert.False(t, g.members.IsMember("u2"))

	// Removing an already absent member stays a success no-op.
	require.NoError(t, c.ApplyEvent(inbound(OpRemoveMember, groupID, "alice", "u2")))
}

func TestApplyEventSelfRemovalDropsGroup(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")

	require.NoError(t, c.ApplyEvent(inbound(OpRemoveMember, groupID, "u1", "alice")))
	_, err := c.group(groupID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyEventOwnerChange(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")

	require.NoError(t, c.ApplyEvent(inbound(OpChangeOwner, groupID, "alice", "u1")))
	g, err := c.group(groupID)
	require.NoError(t, err)
	assert.Equal(t, permission.RoleOwner, g.members.RoleOf("u1"))
	assert.Equal(t, permission.RoleAdmin, g.members.RoleOf("alice"))
	assert.Equal(t, "u1", g.info.OwnerID)
}

func TestApplyEventRoleChanges(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")

	require.NoError(t, c.ApplyEvent(inbound(OpSetAdmin, groupID, "alice", "u1")))
	g, err := c.group(groupID)
	require.NoError(t, err)
	assert.Equal(t, permission.RoleAdmin, g.members.RoleOf("u1"))

	require.NoError(t, c.ApplyEvent(inbound(OpRemoveAdmin, groupID, "alice", "u1")))
	assert.Equal(t, permission.RoleMember, g.members.RoleOf("u1"))

	// Role events never touch the owner.
	require.NoError(t, c.ApplyEvent(inbound(OpRemoveAdmin, groupID, "u1", "alice")))
	assert.Equal(t, permission.RoleOwner, g.members.RoleOf("alice"))
}

func TestApplyEventMutes(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")

	ev := inbound(OpMuteMember, groupID, "alice", "u1")
	ev.Attributes = map[string]string{"duration_ms": "-1"}
	require.NoError(t, c.ApplyEvent(ev))

	g, err := c.group(groupID)
	require.NoError(t, err)
	assert.True(t, g.lists.IsMuted("u1"))

	require.NoError(t, c.ApplyEvent(inbound(OpUnmuteMember, groupID, "alice", "u1")))
	assert.False(t, g.lists.IsMuted("u1"))

	bad := inbound(OpMuteMember, groupID, "alice", "u1")
	bad.Attributes = map[string]string{"duration_ms": "soon"}
	assert.ErrorIs(t, c.ApplyEvent(bad), ErrInvalidArgument)
}

func TestApplyEventGroupInfoAndAnnouncement(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c)

	info := inbound(OpGroupInfoUpdate, groupID, "alice", "")
	info.Attributes = map[string]string{"name": "renamed", "description": "fresh"}
	require.NoError(t, c.ApplyEvent(info))

	ann := inbound(OpAnnouncementUpdate, groupID, "alice", "")
	ann.Attributes = map[string]string{"announcement": "ship it"}
	require.NoError(t, c.ApplyEvent(ann))

	infos, err := c.GetGroupInfo(groupID)
	require.NoError(t, err)
	assert.Equal(t, "renamed", infos[0].Name)

	text, err := c.GroupAnnouncement(groupID)
	require.NoError(t, err)
	assert.Equal(t, "ship it", text)
}

func TestApplyEventInviteCreatesSkeletonGroup(t *testing.T) {
	c, _ := newTestClient(t)

	// Invited to a group this client has never seen.
	require.NoError(t, c.ApplyEvent(inbound(OpInviteToJoin, "remote-group", "bob", "alice")))

	// The invitation is pending and can be accepted locally.
	require.NoError(t, c.AcceptInvitation(context.Background(), "remote-group"))
	g, err := c.group("remote-group")
	require.NoError(t, err)
	assert.True(t, g.members.IsMember("alice"))

	// Invitations addressed to someone else are ignored.
	require.NoError(t, c.ApplyEvent(inbound(OpInviteToJoin, "other-group", "bob", "carol")))
	_, err = c.group("other-group")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyEventDestroy(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")

	require.NoError(t, c.ApplyEvent(inbound(OpDestroy, groupID, "alice", "")))
	_, err := c.group(groupID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestApplyEventMirrorsToCallback(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1")

	var seen []*Event
	c.OnGroupEvent(func(ev *Event) { seen = append(seen, ev) })

	require.NoError(t, c.ApplyEvent(inbound(OpMemberPresence, groupID, "u2", "u2")))
	require.Len(t, seen, 1)
	assert.Equal(t, OpMemberPresence, seen[0].Op)

	assert.Error(t, c.ApplyEvent(nil))
	require.Len(t, seen, 1, "failed applications are not mirrored")
}

func TestApplyEventUnknownGroup(t *testing.T) {
	c, _ := newTestClient(t)
	err := c.ApplyEvent(inbound(OpMuteMember, "missing", "alice", "u1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

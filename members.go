package groupcore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/limits"
	"github.com/opd-ai/groupcore/membership"
	"github.com/opd-ai/groupcore/moderation"
	"github.com/opd-ai/groupcore/permission"
)

// ListGroupMembers returns one page of the group's members, owner and
// admins first. Pages are 1-based with at most 1000 entries; pagination
// is validated before any store access. Members only.
func (c *Client) ListGroupMembers(groupID string, page, pageSize int) ([]membership.Member, error) {
	if err := limits.ValidateMemberPage(page, pageSize); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members.IsMember(c.selfID) {
		return nil, fmt.Errorf("%w: member listing requires membership", ErrPermissionDenied)
	}
	return g.members.List(page, pageSize)
}

// InviteUsers invites the given users to the group with one result per
// target. Admins may always invite; plain members only when the group
// allows member invites. When the group requires invite confirmation a
// pending invitation is created and the invitee receives inviteToJoin;
// otherwise the invitee is added directly and receives directJoined.
func (c *Client) InviteUsers(ctx context.Context, groupID string, userIDs []string) ([]MemberResult, error) {
	return c.inviteUsers(ctx, c.selfID, groupID, userIDs)
}

func (c *Client) inviteUsers(ctx context.Context, actor, groupID string, userIDs []string) ([]MemberResult, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no users to invite", ErrInvalidArgument)
	}
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if !permission.CanInvite(g.members.RoleOf(actor), g.info.AllowMemberInvites) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: inviting requires admin or member invites enabled", ErrPermissionDenied)
	}

	results := make([]MemberResult, 0, len(userIDs))
	events := make([]*Event, len(userIDs))
	for i, userID := range userIDs {
		ev, err := c.inviteOne(g, actor, groupID, userID)
		events[i] = ev
		results = append(results, MemberResult{UserID: userID, Err: err})
	}
	g.mu.Unlock()

	c.emitEach(ctx, events, results)
	return results, nil
}

// inviteOne handles a single invite target and returns the event to
// publish once the group lock is released. Callers hold g.mu.
func (c *Client) inviteOne(g *groupState, actor, groupID, userID string) (*Event, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: empty user ID", ErrInvalidArgument)
	}
	if g.lists.IsBlocked(userID) {
		return nil, fmt.Errorf("%w: %s", moderation.ErrBlocked, userID)
	}
	if g.members.IsMember(userID) {
		return nil, fmt.Errorf("%w: %s", membership.ErrAlreadyMember, userID)
	}
	if g.members.Count() >= g.info.MaxMembers {
		return nil, fmt.Errorf("%w: group is at capacity %d", ErrInvalidArgument, g.info.MaxMembers)
	}

	if g.info.InviteNeedsConfirm {
		if _, err := c.workflows.CreateInvitation(groupID, actor, userID, true); err != nil {
			return nil, err
		}
		ev := c.newEvent(OpInviteToJoin, groupID, actor)
		ev.Target = userID
		ev.Recipients = []string{userID}
		return ev, nil
	}

	if _, err := c.workflows.CreateInvitation(groupID, actor, userID, false); err != nil {
		return nil, err
	}
	if err := g.members.Add(userID, permission.RoleMember); err != nil {
		return nil, err
	}
	ev := c.newEvent(OpDirectJoined, groupID, actor)
	ev.Target = userID
	ev.Recipients = []string{userID}
	return ev, nil
}

// RemoveMember removes a single member. Removing an absent user is a
// success no-op.
func (c *Client) RemoveMember(ctx context.Context, groupID, userID string) error {
	results, err := c.removeMembers(ctx, c.selfID, groupID, []string{userID})
	if err != nil {
		return err
	}
	return results[0].Err
}

// RemoveMembers removes members in bulk with one result per target.
// The batch never aborts: a failing target does not prevent others from
// succeeding. The removed user and the remaining members receive a
// removeMember event naming the removed user as target.
func (c *Client) RemoveMembers(ctx context.Context, groupID string, userIDs []string) ([]MemberResult, error) {
	return c.removeMembers(ctx, c.selfID, groupID, userIDs)
}

func (c *Client) removeMembers(ctx context.Context, actor, groupID string, userIDs []string) ([]MemberResult, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no users to remove", ErrInvalidArgument)
	}
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	actorRole := g.members.RoleOf(actor)
	if !permission.CanPerform(actorRole, permission.OpRemoveMember) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: member removal requires admin", ErrPermissionDenied)
	}

	results := make([]MemberResult, 0, len(userIDs))
	events := make([]*Event, len(userIDs))
	for i, userID := range userIDs {
		ev, err := c.removeOne(g, actor, actorRole, groupID, userID)
		events[i] = ev
		results = append(results, MemberResult{UserID: userID, Err: err})
	}
	g.mu.Unlock()

	c.emitEach(ctx, events, results)
	return results, nil
}

// removeOne handles a single removal target and returns the event to
// publish once the group lock is released. Callers hold g.mu.
func (c *Client) removeOne(g *groupState, actor string, actorRole permission.Role, groupID, userID string) (*Event, error) {
	if userID == actor {
		return nil, fmt.Errorf("%w: use LeaveGroup to remove yourself", ErrInvalidArgument)
	}
	targetRole := g.members.RoleOf(userID)
	if targetRole == permission.RoleNone {
		// Already absent: idempotent success.
		return nil, nil
	}
	if !permission.CanActOn(actorRole, targetRole) {
		return nil, fmt.Errorf("%w: cannot remove a %s", ErrPermissionDenied, targetRole)
	}

	g.members.Remove(userID)
	g.lists.Unmute(userID)
	g.lists.Disallow(userID)

	logrus.WithFields(logrus.Fields{
		"function": "removeOne",
		"group_id": groupID,
		"actor":    actor,
		"target":   userID,
	}).Info("Member removed")

	ev := c.newEvent(OpRemoveMember, groupID, actor)
	ev.Target = userID
	ev.Recipients = append([]string{userID}, g.members.UserIDs()...)
	return ev, nil
}

// LeaveGroup removes the acting user from the group. The owner must
// transfer ownership first. Remaining members receive a memberAbsence
// event.
func (c *Client) LeaveGroup(ctx context.Context, groupID string) error {
	return c.leaveGroup(ctx, c.selfID, groupID)
}

func (c *Client) leaveGroup(ctx context.Context, actor, groupID string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	role := g.members.RoleOf(actor)
	if role == permission.RoleNone {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", membership.ErrNotMember, actor)
	}
	if role == permission.RoleOwner {
		g.mu.Unlock()
		return fmt.Errorf("%w: owner must transfer ownership before leaving", ErrPermissionDenied)
	}
	g.members.Remove(actor)
	g.lists.Unmute(actor)
	g.lists.Disallow(actor)
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	if actor == c.selfID {
		c.dropGroup(groupID)
	}

	logrus.WithFields(logrus.Fields{
		"function": "leaveGroup",
		"group_id": groupID,
		"actor":    actor,
	}).Info("Left group")

	ev := c.newEvent(OpMemberAbsence, groupID, actor)
	ev.Target = actor
	ev.Recipients = recipients
	return c.emit(ctx, ev)
}

// GroupAdmins returns the group's admin user IDs. Members only.
func (c *Client) GroupAdmins(groupID string) ([]string, error) {
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members.IsMember(c.selfID) {
		return nil, fmt.Errorf("%w: admin listing requires membership", ErrPermissionDenied)
	}
	return g.members.Admins(), nil
}

// SetAdmin grants the admin role. Owner only; the target receives a
// setAdmin event. Granting to an existing admin is a no-op.
func (c *Client) SetAdmin(ctx context.Context, groupID, userID string) error {
	return c.setAdmin(ctx, c.selfID, groupID, userID)
}

func (c *Client) setAdmin(ctx context.Context, actor, groupID, userID string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpSetAdmin) {
		g.mu.Unlock()
		return fmt.Errorf("%w: admin grant requires owner", ErrPermissionDenied)
	}
	switch g.members.RoleOf(userID) {
	case permission.RoleNone:
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", membership.ErrNotMember, userID)
	case permission.RoleAdmin, permission.RoleOwner:
		g.mu.Unlock()
		return nil
	}
	if err := g.members.SetRole(userID, permission.RoleAdmin); err != nil {
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	ev := c.newEvent(OpSetAdmin, groupID, actor)
	ev.Target = userID
	ev.Recipients = []string{userID}
	return c.emit(ctx, ev)
}

// RemoveAdmin revokes the admin role. Owner only; the target receives a
// removeAdmin event. Revoking from a plain member is a no-op.
func (c *Client) RemoveAdmin(ctx context.Context, groupID, userID string) error {
	return c.removeAdmin(ctx, c.selfID, groupID, userID)
}

func (c *Client) removeAdmin(ctx context.Context, actor, groupID, userID string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpRemoveAdmin) {
		g.mu.Unlock()
		return fmt.Errorf("%w: admin revocation requires owner", ErrPermissionDenied)
	}
	switch g.members.RoleOf(userID) {
	case permission.RoleNone:
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", membership.ErrNotMember, userID)
	case permission.RoleMember:
		g.mu.Unlock()
		return nil
	case permission.RoleOwner:
		g.mu.Unlock()
		return fmt.Errorf("%w: cannot revoke the owner", ErrPermissionDenied)
	}
	if err := g.members.SetRole(userID, permission.RoleMember); err != nil {
		g.mu.Unlock()
		return err
	}
	g.mu.Unlock()

	ev := c.newEvent(OpRemoveAdmin, groupID, actor)
	ev.Target = userID
	ev.Recipients = []string{userID}
	return c.emit(ctx, ev)
}

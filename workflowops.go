package groupcore

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/membership"
	"github.com/opd-ai/groupcore/moderation"
	"github.com/opd-ai/groupcore/permission"
	"github.com/opd-ai/groupcore/workflow"
)

// JoinGroup joins a public group as the acting user. Groups requiring
// approval get a pending join request and notify the owner and admins
// with requestToJoin; open groups admit the user directly.
func (c *Client) JoinGroup(ctx context.Context, groupID, message string) error {
	return c.joinGroup(ctx, c.selfID, groupID, message)
}

func (c *Client) joinGroup(ctx context.Context, actor, groupID, message string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.lists.IsBlocked(actor) {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", moderation.ErrBlocked, actor)
	}
	if g.members.IsMember(actor) {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", membership.ErrAlreadyMember, actor)
	}
	if g.info.Visibility != VisibilityPublic {
		g.mu.Unlock()
		return fmt.Errorf("%w: private groups are joined by invitation", ErrPermissionDenied)
	}

	if g.info.ApprovalRequired {
		if _, err := c.workflows.CreateJoinRequest(groupID, actor, message); err != nil {
			g.mu.Unlock()
			return err
		}
		owner, _ := g.members.Owner()
		recipients := append([]string{owner}, g.members.Admins()...)
		g.mu.Unlock()

		ev := c.newEvent(OpRequestToJoin, groupID, actor)
		ev.Recipients = recipients
		ev.Reason = message
		return c.emit(ctx, ev)
	}

	if g.members.Count() >= g.info.MaxMembers {
		g.mu.Unlock()
		return fmt.Errorf("%w: group is at capacity %d", ErrInvalidArgument, g.info.MaxMembers)
	}
	if err := g.members.Add(actor, permission.RoleMember); err != nil {
		g.mu.Unlock()
		return err
	}
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "joinGroup",
		"group_id": groupID,
		"actor":    actor,
	}).Info("Joined open group")

	ev := c.newEvent(OpMemberPresence, groupID, actor)
	ev.Target = actor
	ev.Recipients = recipients
	return c.emit(ctx, ev)
}

// AcceptJoinRequest approves a pending join request. Owner or admin
// only. The applicant becomes a member and receives acceptRequest;
// existing members receive memberPresence. Resolving an already
// resolved request fails with workflow.ErrAlreadyResolved.
func (c *Client) AcceptJoinRequest(ctx context.Context, groupID, applicant string) error {
	return c.resolveJoinRequest(ctx, c.selfID, groupID, applicant, true, "")
}

// RejectJoinRequest declines a pending join request. Owner or admin
// only. The applicant receives requestDeclined carrying the optional
// reason; the reason is not persisted.
func (c *Client) RejectJoinRequest(ctx context.Context, groupID, applicant, reason string) error {
	return c.resolveJoinRequest(ctx, c.selfID, groupID, applicant, false, reason)
}

func (c *Client) resolveJoinRequest(ctx context.Context, actor, groupID, applicant string, accept bool, reason string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpResolveJoinRequest) {
		g.mu.Unlock()
		return fmt.Errorf("%w: resolving join requests requires admin", ErrPermissionDenied)
	}
	if accept {
		if g.lists.IsBlocked(applicant) {
			g.mu.Unlock()
			return fmt.Errorf("%w: %s", moderation.ErrBlocked, applicant)
		}
		if g.members.Count() >= g.info.MaxMembers {
			g.mu.Unlock()
			return fmt.Errorf("%w: group is at capacity %d", ErrInvalidArgument, g.info.MaxMembers)
		}
	}

	if _, err := c.workflows.ResolveJoinRequest(groupID, applicant, accept); err != nil {
		g.mu.Unlock()
		return err
	}

	if !accept {
		g.mu.Unlock()
		ev := c.newEvent(OpRequestDeclined, groupID, actor)
		ev.Target = applicant
		ev.Recipients = []string{applicant}
		ev.Reason = reason
		return c.emit(ctx, ev)
	}

	if err := g.members.Add(applicant, permission.RoleMember); err != nil {
		g.mu.Unlock()
		return err
	}
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "resolveJoinRequest",
		"group_id":  groupID,
		"actor":     actor,
		"applicant": applicant,
	}).Info("Join request accepted")

	accepted := c.newEvent(OpAcceptRequest, groupID, actor)
	accepted.Target = applicant
	accepted.Recipients = []string{applicant}
	if err := c.emit(ctx, accepted); err != nil {
		return err
	}

	presence := c.newEvent(OpMemberPresence, groupID, actor)
	presence.Target = applicant
	presence.Recipients = recipients
	return c.emit(ctx, presence)
}

// AcceptInvitation accepts a pending invitation to the group as the
// acting user. The inviter receives acceptInvite and the members
// receive memberPresence.
func (c *Client) AcceptInvitation(ctx context.Context, groupID string) error {
	return c.acceptInvitation(ctx, c.selfID, groupID)
}

func (c *Client) acceptInvitation(ctx context.Context, invitee, groupID string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if g.lists.IsBlocked(invitee) {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", moderation.ErrBlocked, invitee)
	}
	if g.members.Count() >= g.info.MaxMembers {
		g.mu.Unlock()
		return fmt.Errorf("%w: group is at capacity %d", ErrInvalidArgument, g.info.MaxMembers)
	}

	inv, err := c.workflows.ResolveInvitation(groupID, invitee, true)
	if err != nil {
		g.mu.Unlock()
		return err
	}
	if err := g.members.Add(invitee, permission.RoleMember); err != nil {
		g.mu.Unlock()
		return err
	}
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "acceptInvitation",
		"group_id": groupID,
		"invitee":  invitee,
		"inviter":  inv.Inviter,
	}).Info("Invitation accepted")

	accepted := c.newEvent(OpAcceptInvite, groupID, invitee)
	accepted.Target = inv.Inviter
	accepted.Recipients = []string{inv.Inviter}
	if err := c.emit(ctx, accepted); err != nil {
		return err
	}

	presence := c.newEvent(OpMemberPresence, groupID, invitee)
	presence.Target = invitee
	presence.Recipients = recipients
	return c.emit(ctx, presence)
}

// RejectInvitation declines a pending invitation as the acting user.
// The inviter receives inviteDeclined carrying the optional reason.
func (c *Client) RejectInvitation(ctx context.Context, groupID, reason string) error {
	return c.rejectInvitation(ctx, c.selfID, groupID, reason)
}

func (c *Client) rejectInvitation(ctx context.Context, invitee, groupID, reason string) error {
	if _, err := c.group(groupID); err != nil {
		return err
	}

	inv, err := c.workflows.ResolveInvitation(groupID, invitee, false)
	if err != nil {
		return err
	}

	ev := c.newEvent(OpInviteDeclined, groupID, invitee)
	ev.Target = inv.Inviter
	ev.Recipients = []string{inv.Inviter}
	ev.Reason = reason
	return c.emit(ctx, ev)
}

// PendingJoinRequests returns the group's unresolved join requests.
// Owner or admin only.
func (c *Client) PendingJoinRequests(groupID string) ([]workflow.JoinRequest, error) {
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	allowed := permission.CanPerform(g.members.RoleOf(c.selfID), permission.OpResolveJoinRequest)
	g.mu.Unlock()
	if !allowed {
		return nil, fmt.Errorf("%w: viewing join requests requires admin", ErrPermissionDenied)
	}
	return c.workflows.PendingJoinRequests(groupID), nil
}

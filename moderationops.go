package groupcore

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/membership"
	"github.com/opd-ai/groupcore/moderation"
	"github.com/opd-ai/groupcore/permission"
)

// MuteMember mutes a member for the given duration, or permanently when
// the duration is moderation.PermanentMute. Owner or admin only; all
// members receive a muteMember event.
func (c *Client) MuteMember(ctx context.Context, groupID, userID string, duration time.Duration) error {
	return c.muteMember(ctx, c.selfID, groupID, userID, duration)
}

func (c *Client) muteMember(ctx context.Context, actor, groupID, userID string, duration time.Duration) error {
	if duration != moderation.PermanentMute && duration <= 0 {
		return fmt.Errorf("%w: mute duration must be positive or permanent", ErrInvalidArgument)
	}
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	actorRole := g.members.RoleOf(actor)
	if !permission.CanPerform(actorRole, permission.OpMuteMember) {
		g.mu.Unlock()
		return fmt.Errorf("%w: muting requires admin", ErrPermissionDenied)
	}
	targetRole := g.members.RoleOf(userID)
	if targetRole == permission.RoleNone {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", membership.ErrNotMember, userID)
	}
	if !permission.CanActOn(actorRole, targetRole) {
		g.mu.Unlock()
		return fmt.Errorf("%w: cannot mute a %s", ErrPermissionDenied, targetRole)
	}
	g.lists.Mute(userID, duration)
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "muteMember",
		"group_id": groupID,
		"actor":    actor,
		"target":   userID,
		"duration": duration,
	}).Info("Member muted")

	ev := c.newEvent(OpMuteMember, groupID, actor)
	ev.Target = userID
	ev.Recipients = recipients
	ev.Attributes = map[string]string{"duration_ms": strconv.FormatInt(durationMillis(duration), 10)}
	return c.emit(ctx, ev)
}

// durationMillis converts a mute duration to wire milliseconds,
// preserving the permanent sentinel.
func durationMillis(d time.Duration) int64 {
	if d == moderation.PermanentMute {
		return -1
	}
	return d.Milliseconds()
}

// UnmuteMember lifts a member's mute. Owner or admin only; all members
// receive an unmuteMember event. Unmuting an unmuted user is a no-op.
func (c *Client) UnmuteMember(ctx context.Context, groupID, userID string) error {
	return c.unmuteMember(ctx, c.selfID, groupID, userID)
}

func (c *Client) unmuteMember(ctx context.Context, actor, groupID, userID string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpMuteMember) {
		g.mu.Unlock()
		return fmt.Errorf("%w: unmuting requires admin", ErrPermissionDenied)
	}
	g.lists.Unmute(userID)
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	ev := c.newEvent(OpUnmuteMember, groupID, actor)
	ev.Target = userID
	ev.Recipients = recipients
	return c.emit(ctx, ev)
}

// MuteList returns the group's unexpired mute entries. Owner or admin
// only.
func (c *Client) MuteList(groupID string) ([]moderation.MuteEntry, error) {
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !permission.CanPerform(g.members.RoleOf(c.selfID), permission.OpViewMuteList) {
		return nil, fmt.Errorf("%w: mute list requires admin", ErrPermissionDenied)
	}
	return g.lists.MuteList(), nil
}

// IsInMuteList reports whether the user currently has an unexpired mute
// entry. Members only.
func (c *Client) IsInMuteList(groupID, userID string) (bool, error) {
	g, err := c.group(groupID)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members.IsMember(c.selfID) {
		return false, fmt.Errorf("%w: mute queries require membership", ErrPermissionDenied)
	}
	return g.lists.IsMuted(userID), nil
}

// BlockMember blocks a single user. Blocking evicts any existing
// membership atomically with the block-list insert; the user cannot be
// re-added until unblocked.
func (c *Client) BlockMember(ctx context.Context, groupID, userID string) error {
	results, err := c.blockMembers(ctx, c.selfID, groupID, []string{userID})
	if err != nil {
		return err
	}
	return results[0].Err
}

// BlockMembers blocks users in bulk with one result per target. Evicted
// members receive a removeMember event.
func (c *Client) BlockMembers(ctx context.Context, groupID string, userIDs []string) ([]MemberResult, error) {
	return c.blockMembers(ctx, c.selfID, groupID, userIDs)
}

func (c *Client) blockMembers(ctx context.Context, actor, groupID string, userIDs []string) ([]MemberResult, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no users to block", ErrInvalidArgument)
	}
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	actorRole := g.members.RoleOf(actor)
	if !permission.CanPerform(actorRole, permission.OpBlockMember) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: blocking requires admin", ErrPermissionDenied)
	}

	results := make([]MemberResult, 0, len(userIDs))
	events := make([]*Event, len(userIDs))
	for i, userID := range userIDs {
		ev, err := c.blockOne(g, actor, actorRole, groupID, userID)
		events[i] = ev
		results = append(results, MemberResult{UserID: userID, Err: err})
	}
	g.mu.Unlock()

	c.emitEach(ctx, events, results)
	return results, nil
}

// blockOne handles a single block target and returns the eviction event
// to publish once the group lock is released. Callers hold g.mu.
func (c *Client) blockOne(g *groupState, actor string, actorRole permission.Role, groupID, userID string) (*Event, error) {
	if userID == actor {
		return nil, fmt.Errorf("%w: cannot block yourself", ErrInvalidArgument)
	}
	if g.lists.IsBlocked(userID) {
		return nil, nil
	}

	targetRole := g.members.RoleOf(userID)
	wasMember := targetRole != permission.RoleNone
	if wasMember && !permission.CanActOn(actorRole, targetRole) {
		return nil, fmt.Errorf("%w: cannot block a %s", ErrPermissionDenied, targetRole)
	}

	// Eviction and block-list insert happen under the same group lock,
	// so no observer can see a blocked current member.
	if wasMember {
		g.members.Remove(userID)
		g.lists.Unmute(userID)
		g.lists.Disallow(userID)
	}
	g.lists.Block(userID)

	logrus.WithFields(logrus.Fields{
		"function":   "blockOne",
		"group_id":   groupID,
		"actor":      actor,
		"target":     userID,
		"was_member": wasMember,
	}).Info("User blocked")

	if !wasMember {
		return nil, nil
	}
	ev := c.newEvent(OpRemoveMember, groupID, actor)
	ev.Target = userID
	ev.Recipients = append([]string{userID}, g.members.UserIDs()...)
	return ev, nil
}

// UnblockMember removes a single user from the block list.
func (c *Client) UnblockMember(ctx context.Context, groupID, userID string) error {
	results, err := c.unblockMembers(ctx, c.selfID, groupID, []string{userID})
	if err != nil {
		return err
	}
	return results[0].Err
}

// UnblockMembers removes users from the block list in bulk with one
// result per target. Unblocked users receive an unblockMember event.
func (c *Client) UnblockMembers(ctx context.Context, groupID string, userIDs []string) ([]MemberResult, error) {
	return c.unblockMembers(ctx, c.selfID, groupID, userIDs)
}

func (c *Client) unblockMembers(ctx context.Context, actor, groupID string, userIDs []string) ([]MemberResult, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no users to unblock", ErrInvalidArgument)
	}
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpBlockMember) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: unblocking requires admin", ErrPermissionDenied)
	}

	results := make([]MemberResult, 0, len(userIDs))
	events := make([]*Event, len(userIDs))
	for i, userID := range userIDs {
		results = append(results, MemberResult{UserID: userID})
		if !g.lists.IsBlocked(userID) {
			continue
		}
		g.lists.Unblock(userID)

		ev := c.newEvent(OpUnblockMember, groupID, actor)
		ev.Target = userID
		ev.Recipients = []string{userID}
		events[i] = ev
	}
	g.mu.Unlock()

	c.emitEach(ctx, events, results)
	return results, nil
}

// BlockList returns the group's blocked user IDs. Owner or admin only.
func (c *Client) BlockList(groupID string) ([]string, error) {
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !permission.CanPerform(g.members.RoleOf(c.selfID), permission.OpBlockMember) {
		return nil, fmt.Errorf("%w: block list requires admin", ErrPermissionDenied)
	}
	return g.lists.BlockList(), nil
}

// MuteAll silences every plain member; owner, admins, and allowlisted
// members may still send. All members receive a muteAllMembers event.
func (c *Client) MuteAll(ctx context.Context, groupID string) error {
	return c.setMuteAll(ctx, c.selfID, groupID, true)
}

// UnmuteAll lifts the group-wide mute. All members receive an
// unmuteAllMembers event.
func (c *Client) UnmuteAll(ctx context.Context, groupID string) error {
	return c.setMuteAll(ctx, c.selfID, groupID, false)
}

func (c *Client) setMuteAll(ctx context.Context, actor, groupID string, muted bool) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpMuteAll) {
		g.mu.Unlock()
		return fmt.Errorf("%w: group-wide mute requires admin", ErrPermissionDenied)
	}
	g.lists.SetMuteAll(muted)
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	op := OpMuteAllMembers
	if !muted {
		op = OpUnmuteAllMembers
	}
	ev := c.newEvent(op, groupID, actor)
	ev.Recipients = recipients
	return c.emit(ctx, ev)
}

// AddToAllowlist adds members to the allowlist with one result per
// target. Allowlisted members may send even while muted or during a
// group-wide mute.
func (c *Client) AddToAllowlist(ctx context.Context, groupID string, userIDs []string) ([]MemberResult, error) {
	return c.setAllowlist(ctx, c.selfID, groupID, userIDs, true)
}

// RemoveFromAllowlist removes members from the allowlist with one
// result per target.
func (c *Client) RemoveFromAllowlist(ctx context.Context, groupID string, userIDs []string) ([]MemberResult, error) {
	return c.setAllowlist(ctx, c.selfID, groupID, userIDs, false)
}

func (c *Client) setAllowlist(ctx context.Context, actor, groupID string, userIDs []string, add bool) ([]MemberResult, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no users given", ErrInvalidArgument)
	}
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpManageAllowlist) {
		g.mu.Unlock()
		return nil, fmt.Errorf("%w: allowlist changes require admin", ErrPermissionDenied)
	}

	op := OpAddUserToAllowlist
	if !add {
		op = OpRemoveAllowlistMember
	}

	results := make([]MemberResult, 0, len(userIDs))
	events := make([]*Event, len(userIDs))
	for i, userID := range userIDs {
		if !g.members.IsMember(userID) {
			results = append(results, MemberResult{
				UserID: userID,
				Err:    fmt.Errorf("%w: %s", membership.ErrNotMember, userID),
			})
			continue
		}
		if add {
			g.lists.Allow(userID)
		} else {
			g.lists.Disallow(userID)
		}

		ev := c.newEvent(op, groupID, actor)
		ev.Target = userID
		ev.Recipients = g.members.UserIDs()
		events[i] = ev
		results = append(results, MemberResult{UserID: userID})
	}
	g.mu.Unlock()

	c.emitEach(ctx, events, results)
	return results, nil
}

// Allowlist returns the group's allowlisted user IDs. Owner or admin
// only.
func (c *Client) Allowlist(groupID string) ([]string, error) {
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !permission.CanPerform(g.members.RoleOf(c.selfID), permission.OpViewAllowlist) {
		return nil, fmt.Errorf("%w: allowlist requires admin", ErrPermissionDenied)
	}
	return g.lists.Allowlist(), nil
}

// IsInAllowlist reports whether the user is on the allowlist. Members
// only.
func (c *Client) IsInAllowlist(groupID, userID string) (bool, error) {
	g, err := c.group(groupID)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members.IsMember(c.selfID) {
		return false, fmt.Errorf("%w: allowlist queries require membership", ErrPermissionDenied)
	}
	return g.lists.IsAllowed(userID), nil
}

// BlockGroupMessages suppresses this client's incoming messages for the
// group without leaving it. Local preference only; no event is
// published and other members are unaffected. Members only.
func (c *Client) BlockGroupMessages(groupID string) error {
	return c.setMessagesBlocked(groupID, true)
}

// UnblockGroupMessages resumes receiving the group's messages.
func (c *Client) UnblockGroupMessages(groupID string) error {
	return c.setMessagesBlocked(groupID, false)
}

func (c *Client) setMessagesBlocked(groupID string, blocked bool) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members.IsMember(c.selfID) {
		return fmt.Errorf("%w: message blocking requires membership", ErrPermissionDenied)
	}
	g.messagesBlocked = blocked
	return nil
}

// GroupMessagesBlocked reports whether this client currently suppresses
// the group's incoming messages.
func (c *Client) GroupMessagesBlocked(groupID string) (bool, error) {
	g, err := c.group(groupID)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.messagesBlocked, nil
}

// CanSendMessage reports the user's effective send permission: blocked
// users never send, owner and admins always may, allowlist membership
// overrides mutes and the group-wide mute.
func (c *Client) CanSendMessage(groupID, userID string) (bool, error) {
	g, err := c.group(groupID)
	if err != nil {
		return false, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lists.CanSend(userID, g.members.RoleOf(userID)), nil
}

package groupcore

import (
	"context"
	"fmt"

	"github.com/opd-ai/groupcore/membership"
	"github.com/opd-ai/groupcore/permission"
)

// SetMemberAttributes updates a member's custom attributes. Setting a
// key to the empty string deletes it. Members may update their own
// attributes; updating another member's requires admin. All members
// receive a memberAttributesUpdate event, and the acting user's other
// sessions receive a parallel multi-device event.
func (c *Client) SetMemberAttributes(ctx context.Context, groupID, userID string, attributes map[string]string) error {
	return c.setMemberAttributes(ctx, c.selfID, groupID, userID, attributes)
}

func (c *Client) setMemberAttributes(ctx context.Context, actor, groupID, userID string, attributes map[string]string) error {
	if len(attributes) == 0 {
		return fmt.Errorf("%w: no attributes given", ErrInvalidArgument)
	}
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	actorRole := g.members.RoleOf(actor)
	if actorRole == permission.RoleNone {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", membership.ErrNotMember, actor)
	}
	if actor != userID && !permission.CanPerform(actorRole, permission.OpSetMemberAttributes) {
		g.mu.Unlock()
		return fmt.Errorf("%w: updating another member's attributes requires admin", ErrPermissionDenied)
	}
	if err := g.members.SetAttributes(userID, attributes); err != nil {
		g.mu.Unlock()
		return err
	}
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	ev := c.newEvent(OpMemberAttributesUpdate, groupID, actor)
	ev.Target = userID
	ev.Recipients = recipients
	ev.Attributes = attributes
	if err := c.emit(ctx, ev); err != nil {
		return err
	}

	// Parallel notification to the actor's other sessions.
	mirror := *ev
	mirror.Recipients = []string{actor}
	c.emitMultiDevice(&mirror)
	return nil
}

// MemberAttributes returns all custom attributes of a member. Members
// only.
func (c *Client) MemberAttributes(groupID, userID string) (map[string]string, error) {
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members.IsMember(c.selfID) {
		return nil, fmt.Errorf("%w: attribute queries require membership", ErrPermissionDenied)
	}
	if !g.members.IsMember(userID) {
		return nil, fmt.Errorf("%w: %s", membership.ErrNotMember, userID)
	}
	return g.members.Attributes(userID), nil
}

// MembersAttributes returns the custom attributes of several members at
// once, optionally filtered by key. An empty key filter returns all
// attributes. Non-members are omitted from the result. Members only.
func (c *Client) MembersAttributes(groupID string, userIDs []string, keys ...string) (map[string]map[string]string, error) {
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: no users given", ErrInvalidArgument)
	}
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members.IsMember(c.selfID) {
		return nil, fmt.Errorf("%w: attribute queries require membership", ErrPermissionDenied)
	}
	return g.members.AttributesForUsers(userIDs, keys...), nil
}

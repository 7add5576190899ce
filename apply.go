package groupcore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/limits"
	"github.com/opd-ai/groupcore/moderation"
	"github.com/opd-ai/groupcore/permission"
)

// ApplyEvent applies a server-pushed notification event to local state.
// Events must be applied in arrival order; the client does not reorder
// them. Changes that are already reflected locally are idempotent
// no-ops. After a successful application the event is mirrored to the
// OnGroupEvent callback.
func (c *Client) ApplyEvent(ev *Event) error {
	if ev == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidArgument)
	}

	logrus.WithFields(logrus.Fields{
		"function": "ApplyEvent",
		"group_id": ev.GroupID,
		"op":       ev.Op.String(),
		"actor":    ev.Actor,
		"target":   ev.Target,
	}).Debug("Applying inbound event")

	if err := c.applyEvent(ev); err != nil {
		return err
	}

	c.callbackMu.RLock()
	callback := c.groupEventCallback
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(ev)
	}
	return nil
}

func (c *Client) applyEvent(ev *Event) error {
	switch ev.Op {
	case OpDirectJoined, OpAcceptRequest, OpAcceptInvite:
		return c.applyAdmission(ev)
	case OpMemberPresence:
		return c.applyJoin(ev, ev.Target)
	case OpInviteToJoin:
		return c.applyInvite(ev)
	case OpRequestToJoin:
		return c.applyJoinRequest(ev)
	case OpRequestDeclined:
		if _, err := c.group(ev.GroupID); err != nil {
			return err
		}
		// Best effort: the local pending record may already be gone.
		if _, err := c.workflows.ResolveJoinRequest(ev.GroupID, ev.Target, false); err != nil {
			return nil
		}
		return nil
	case OpInviteDeclined:
		if _, err := c.group(ev.GroupID); err != nil {
			return err
		}
		if _, err := c.workflows.ResolveInvitation(ev.GroupID, ev.Actor, false); err != nil {
			return nil
		}
		return nil
	case OpMemberAbsence, OpRemoveMember:
		return c.applyDeparture(ev)
	case OpChangeOwner:
		return c.applyOwnerChange(ev)
	case OpSetAdmin:
		return c.applyRoleChange(ev, permission.RoleAdmin)
	case OpRemoveAdmin:
		return c.applyRoleChange(ev, permission.RoleMember)
	case OpDestroy:
		c.dropGroup(ev.GroupID)
		return nil
	case OpMuteMember:
		return c.applyMute(ev)
	case OpUnmuteMember:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			g.lists.Unmute(ev.Target)
			return nil
		})
	case OpMuteAllMembers:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			g.lists.SetMuteAll(true)
			return nil
		})
	case OpUnmuteAllMembers:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			g.lists.SetMuteAll(false)
			return nil
		})
	case OpAddUserToAllowlist:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			g.lists.Allow(ev.Target)
			return nil
		})
	case OpRemoveAllowlistMember:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			g.lists.Disallow(ev.Target)
			return nil
		})
	case OpUnblockMember:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			g.lists.Unblock(ev.Target)
			return nil
		})
	case OpMemberAttributesUpdate:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			if !g.members.IsMember(ev.Target) {
				return nil
			}
			return g.members.SetAttributes(ev.Target, ev.Attributes)
		})
	case OpAnnouncementUpdate:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			g.announcement = ev.Attributes["announcement"]
			return nil
		})
	case OpGroupInfoUpdate:
		return c.withGroup(ev.GroupID, func(g *groupState) error {
			if name, ok := ev.Attributes["name"]; ok {
				g.info.Name = name
			}
			if description, ok := ev.Attributes["description"]; ok {
				g.info.Description = description
			}
			if extension, ok := ev.Attributes["extension"]; ok {
				g.info.Extension = extension
			}
			return nil
		})
	default:
		return fmt.Errorf("%w: event operation %s", ErrInvalidArgument, ev.Op)
	}
}

// withGroup runs fn with the group's mutex held.
func (c *Client) withGroup(groupID string, fn func(*groupState) error) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g)
}

// ensureGroup returns the group state, creating a skeleton record when
// the event concerns a group this client has not seen yet (for example
// the acting user was added to a group on another device).
func (c *Client) ensureGroup(groupID string) *groupState {
	c.groupsMu.Lock()
	defer c.groupsMu.Unlock()
	if g, ok := c.groups[groupID]; ok {
		return g
	}
	g := newGroupState(GroupInfo{
		ID:         groupID,
		MaxMembers: limits.DefaultMaxGroupMembers,
		CreatedAt:  time.Now(),
	})
	c.groups[groupID] = g
	return g
}

// applyAdmission records a user joining through a resolved invitation,
// join request, or direct add.
func (c *Client) applyAdmission(ev *Event) error {
	if err := c.applyJoin(ev, ev.Target); err != nil {
		return err
	}
	c.workflows.SupersedeJoinRequest(ev.GroupID, ev.Target)
	return nil
}

func (c *Client) applyJoin(ev *Event, userID string) error {
	if userID == "" {
		return fmt.Errorf("%w: join event without target", ErrInvalidArgument)
	}
	g := c.ensureGroup(ev.GroupID)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.members.IsMember(userID) {
		return nil
	}
	if g.lists.IsBlocked(userID) {
		return fmt.Errorf("%w: %s", moderation.ErrBlocked, userID)
	}
	return g.members.Add(userID, permission.RoleMember)
}

func (c *Client) applyInvite(ev *Event) error {
	if ev.Target != c.selfID {
		return nil
	}
	c.ensureGroup(ev.GroupID)
	if _, err := c.workflows.CreateInvitation(ev.GroupID, ev.Actor, ev.Target, true); err != nil {
		// Already pending: idempotent no-op.
		return nil
	}
	return nil
}

func (c *Client) applyJoinRequest(ev *Event) error {
	if _, err := c.group(ev.GroupID); err != nil {
		return err
	}
	if _, err := c.workflows.CreateJoinRequest(ev.GroupID, ev.Actor, ev.Reason); err != nil {
		return nil
	}
	return nil
}

func (c *Client) applyDeparture(ev *Event) error {
	g, err := c.group(ev.GroupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	g.members.Remove(ev.Target)
	g.lists.Unmute(ev.Target)
	g.lists.Disallow(ev.Target)
	g.mu.Unlock()

	if ev.Target == c.selfID {
		c.dropGroup(ev.GroupID)
	}
	return nil
}

func (c *Client) applyOwnerChange(ev *Event) error {
	return c.withGroup(ev.GroupID, func(g *groupState) error {
		if !g.members.IsMember(ev.Target) {
			if err := g.members.Add(ev.Target, permission.RoleMember); err != nil {
				return err
			}
		}
		if err := g.members.TransferOwnership(ev.Target); err != nil {
			return err
		}
		g.info.OwnerID = ev.Target
		return nil
	})
}

func (c *Client) applyRoleChange(ev *Event, role permission.Role) error {
	return c.withGroup(ev.GroupID, func(g *groupState) error {
		current := g.members.RoleOf(ev.Target)
		if current == permission.RoleNone || current == permission.RoleOwner || current == role {
			return nil
		}
		return g.members.SetRole(ev.Target, role)
	})
}

func (c *Client) applyMute(ev *Event) error {
	return c.withGroup(ev.GroupID, func(g *groupState) error {
		duration := moderation.PermanentMute
		if raw, ok := ev.Attributes["duration_ms"]; ok {
			ms, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return fmt.Errorf("%w: mute duration %q", ErrInvalidArgument, raw)
			}
			if ms != -1 {
				duration = time.Duration(ms) * time.Millisecond
			}
		}
		g.lists.Mute(ev.Target, duration)
		return nil
	})
}

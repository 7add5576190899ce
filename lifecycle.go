package groupcore

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/limits"
	"github.com/opd-ai/groupcore/permission"
)

// CreateGroup creates a group with the acting user as owner. Users in
// req.Members are added directly, bypassing invite confirmation, and
// each receives a directJoined event.
func (c *Client) CreateGroup(ctx context.Context, req CreateGroupRequest) (*GroupInfo, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: group name is required", ErrInvalidArgument)
	}
	if len(req.Name) > limits.MaxGroupNameLength {
		return nil, fmt.Errorf("%w: group name exceeds %d bytes", ErrInvalidArgument, limits.MaxGroupNameLength)
	}

	maxMembers := req.MaxMembers
	if maxMembers <= 0 {
		maxMembers = limits.DefaultMaxGroupMembers
	}
	if len(req.Members)+1 > maxMembers {
		return nil, fmt.Errorf("%w: %d initial members exceed capacity %d", ErrInvalidArgument, len(req.Members)+1, maxMembers)
	}

	inviteNeedsConfirm := c.options.DefaultInviteNeedsConfirm
	if req.InviteNeedsConfirm != nil {
		inviteNeedsConfirm = *req.InviteNeedsConfirm
	}

	info := GroupInfo{
		ID:                 uuid.NewString(),
		Name:               req.Name,
		Description:        req.Description,
		Extension:          req.Extension,
		OwnerID:            c.selfID,
		Visibility:         req.Visibility,
		ApprovalRequired:   req.ApprovalRequired,
		InviteNeedsConfirm: inviteNeedsConfirm,
		AllowMemberInvites: req.AllowMemberInvites,
		MaxMembers:         maxMembers,
		CreatedAt:          time.Now(),
	}

	g := newGroupState(info)
	if err := g.members.Add(c.selfID, permission.RoleOwner); err != nil {
		return nil, err
	}

	var added []string
	for _, userID := range req.Members {
		if userID == "" || userID == c.selfID || g.members.IsMember(userID) {
			continue
		}
		if _, err := c.workflows.CreateInvitation(info.ID, c.selfID, userID, false); err != nil {
			return nil, err
		}
		if err := g.members.Add(userID, permission.RoleMember); err != nil {
			return nil, err
		}
		added = append(added, userID)
	}

	c.groupsMu.Lock()
	c.groups[info.ID] = g
	c.groupsMu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":   "CreateGroup",
		"group_id":   info.ID,
		"name":       info.Name,
		"visibility": info.Visibility.String(),
		"members":    len(added) + 1,
	}).Info("Group created")

	var emitErr error
	for _, userID := range added {
		ev := c.newEvent(OpDirectJoined, info.ID, c.selfID)
		ev.Target = userID
		ev.Recipients = []string{userID}
		if err := c.emit(ctx, ev); err != nil && emitErr == nil {
			emitErr = err
		}
	}
	return g.infoCopy(), emitErr
}

// ModifyGroup updates group metadata. Empty fields are left unchanged.
// Owner or admin only; members receive a groupInfoUpdate event.
func (c *Client) ModifyGroup(ctx context.Context, groupID, name, description, extension string) error {
	if name != "" && len(name) > limits.MaxGroupNameLength {
		return fmt.Errorf("%w: group name exceeds %d bytes", ErrInvalidArgument, limits.MaxGroupNameLength)
	}
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(c.selfID), permission.OpModifyGroup) {
		g.mu.Unlock()
		return fmt.Errorf("%w: modify group requires admin", ErrPermissionDenied)
	}

	changed := make(map[string]string)
	if name != "" && name != g.info.Name {
		g.info.Name = name
		changed["name"] = name
	}
	if description != "" && description != g.info.Description {
		g.info.Description = description
		changed["description"] = description
	}
	if extension != "" && extension != g.info.Extension {
		g.info.Extension = extension
		changed["extension"] = extension
	}
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	if len(changed) == 0 {
		return nil
	}

	ev := c.newEvent(OpGroupInfoUpdate, groupID, c.selfID)
	ev.Recipients = recipients
	ev.Attributes = changed
	return c.emit(ctx, ev)
}

// DestroyGroup deletes the group and all local state for it. Owner
// only; every member receives a destroy event.
func (c *Client) DestroyGroup(ctx context.Context, groupID string) error {
	return c.destroyGroup(ctx, c.selfID, groupID)
}

func (c *Client) destroyGroup(ctx context.Context, actor, groupID string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpDestroyGroup) {
		g.mu.Unlock()
		return fmt.Errorf("%w: destroy group requires owner", ErrPermissionDenied)
	}
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	c.dropGroup(groupID)

	logrus.WithFields(logrus.Fields{
		"function": "destroyGroup",
		"group_id": groupID,
		"actor":    actor,
	}).Info("Group destroyed")

	ev := c.newEvent(OpDestroy, groupID, actor)
	ev.Recipients = recipients
	return c.emit(ctx, ev)
}

// TransferOwnership makes newOwner the group owner and demotes the
// current owner to admin. Owner only; members receive a changeOwner
// event.
func (c *Client) TransferOwnership(ctx context.Context, groupID, newOwner string) error {
	return c.transferOwnership(ctx, c.selfID, groupID, newOwner)
}

func (c *Client) transferOwnership(ctx context.Context, actor, groupID, newOwner string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpTransferOwnership) {
		g.mu.Unlock()
		return fmt.Errorf("%w: ownership transfer requires owner", ErrPermissionDenied)
	}
	if err := g.members.TransferOwnership(newOwner); err != nil {
		g.mu.Unlock()
		return err
	}
	g.info.OwnerID = newOwner
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function":  "transferOwnership",
		"group_id":  groupID,
		"old_owner": actor,
		"new_owner": newOwner,
	}).Info("Group ownership transferred")

	ev := c.newEvent(OpChangeOwner, groupID, actor)
	ev.Target = newOwner
	ev.Recipients = recipients
	return c.emit(ctx, ev)
}

// GetGroupInfo returns metadata for the given group IDs. Unknown IDs
// are omitted from the result.
func (c *Client) GetGroupInfo(ids ...string) ([]*GroupInfo, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one group ID is required", ErrInvalidArgument)
	}

	var infos []*GroupInfo
	for _, id := range ids {
		g, err := c.group(id)
		if err != nil {
			continue
		}
		g.mu.Lock()
		infos = append(infos, g.infoCopy())
		g.mu.Unlock()
	}
	return infos, nil
}

// GroupAnnouncement returns the group announcement. Members only.
func (c *Client) GroupAnnouncement(groupID string) (string, error) {
	g, err := c.group(groupID)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.members.IsMember(c.selfID) {
		return "", fmt.Errorf("%w: announcement is visible to members only", ErrPermissionDenied)
	}
	return g.announcement, nil
}

// UpdateAnnouncement replaces the group announcement. Owner or admin
// only; members receive an announcementUpdate event.
func (c *Client) UpdateAnnouncement(ctx context.Context, groupID, announcement string) error {
	return c.updateAnnouncement(ctx, c.selfID, groupID, announcement)
}

func (c *Client) updateAnnouncement(ctx context.Context, actor, groupID, announcement string) error {
	if len(announcement) > limits.MaxAnnouncementLength {
		return fmt.Errorf("%w: announcement exceeds %d bytes", ErrInvalidArgument, limits.MaxAnnouncementLength)
	}
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	g.mu.Lock()
	if !permission.CanPerform(g.members.RoleOf(actor), permission.OpUpdateAnnouncement) {
		g.mu.Unlock()
		return fmt.Errorf("%w: announcement update requires admin", ErrPermissionDenied)
	}
	g.announcement = announcement
	recipients := g.members.UserIDs()
	g.mu.Unlock()

	ev := c.newEvent(OpAnnouncementUpdate, groupID, actor)
	ev.Recipients = recipients
	ev.Attributes = map[string]string{"announcement": announcement}
	return c.emit(ctx, ev)
}

// ListPublicGroups returns one page of publicly visible groups ordered
// by ID, starting after the cursor. The returned cursor is empty once
// the listing is exhausted.
func (c *Client) ListPublicGroups(cursor string, limit int) ([]*GroupInfo, string, error) {
	limit, err := limits.ValidatePublicGroupLimit(limit)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	c.groupsMu.RLock()
	var public []*groupState
	for _, g := range c.groups {
		public = append(public, g)
	}
	c.groupsMu.RUnlock()

	var infos []*GroupInfo
	for _, g := range public {
		g.mu.Lock()
		if g.info.Visibility == VisibilityPublic && g.info.ID > cursor {
			infos = append(infos, g.infoCopy())
		}
		g.mu.Unlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	next := ""
	if len(infos) > limit {
		infos = infos[:limit]
		next = infos[limit-1].ID
	}
	return infos, next, nil
}

// ListJoinedGroups returns the groups the acting user belongs to. The
// query selects the pagination mode: SimpleJoinedQuery pages from 1
// with metadata only, ExtendedJoinedQuery pages from 0 and includes
// member counts and the caller's role.
func (c *Client) ListJoinedGroups(query JoinedGroupsQuery) ([]JoinedGroup, error) {
	var (
		page, pageSize, firstPage int
		extended                  bool
	)
	switch q := query.(type) {
	case SimpleJoinedQuery:
		if err := limits.ValidateJoinedSimplePage(q.Page, q.PageSize); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		page, pageSize, firstPage = q.Page, q.PageSize, 1
	case ExtendedJoinedQuery:
		if err := limits.ValidateJoinedExtendedPage(q.Page, q.PageSize); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		page, pageSize, firstPage = q.Page, q.PageSize, 0
		extended = true
	default:
		return nil, fmt.Errorf("%w: unsupported joined-groups query %T", ErrInvalidArgument, query)
	}

	c.groupsMu.RLock()
	var states []*groupState
	for _, g := range c.groups {
		states = append(states, g)
	}
	c.groupsMu.RUnlock()

	var joined []JoinedGroup
	for _, g := range states {
		g.mu.Lock()
		if g.members.IsMember(c.selfID) {
			entry := JoinedGroup{Info: g.infoCopy()}
			if extended {
				entry.MemberCount = g.members.Count()
				entry.Role = g.members.RoleOf(c.selfID)
			}
			joined = append(joined, entry)
		}
		g.mu.Unlock()
	}
	sort.Slice(joined, func(i, j int) bool { return joined[i].Info.ID < joined[j].Info.ID })

	lo, hi := limits.PageBounds(len(joined), page, pageSize, firstPage)
	return joined[lo:hi], nil
}

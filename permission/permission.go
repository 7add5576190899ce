// Package permission implements the role and permission model for group
// operations. It is a pure mapping from (role, operation) to an allow or
// deny decision and holds no state.
package permission

// Role represents a user's role within a group.
type Role uint8

const (
	// RoleNone means the user is not a member of the group.
	RoleNone Role = iota
	// RoleMember is a regular group member.
	RoleMember
	// RoleAdmin can moderate members and modify group information.
	RoleAdmin
	// RoleOwner created or was handed the group and has full control.
	// The owner holds every admin permission implicitly.
	RoleOwner
)

// String returns the wire representation of the role.
func (r Role) String() string {
	switch r {
	case RoleMember:
		return "member"
	case RoleAdmin:
		return "admin"
	case RoleOwner:
		return "owner"
	default:
		return "none"
	}
}

// Operation identifies a governance operation subject to permission checks.
type Operation uint8

const (
	// OpModifyGroup changes group name, description, or extension.
	OpModifyGroup Operation = iota
	// OpDestroyGroup destroys the group.
	OpDestroyGroup
	// OpTransferOwnership hands the group to a new owner.
	OpTransferOwnership
	// OpSetAdmin grants admin to a member.
	OpSetAdmin
	// OpRemoveAdmin revokes a member's admin role.
	OpRemoveAdmin
	// OpInviteMember invites an outside user into the group.
	OpInviteMember
	// OpRemoveMember removes another member from the group.
	OpRemoveMember
	// OpResolveJoinRequest accepts or rejects a pending join request.
	OpResolveJoinRequest
	// OpMuteMember mutes or unmutes a member.
	OpMuteMember
	// OpViewMuteList reads the group mute list.
	OpViewMuteList
	// OpBlockMember adds or removes block-list entries.
	OpBlockMember
	// OpMuteAll toggles the group-wide mute flag.
	OpMuteAll
	// OpManageAllowlist adds or removes allowlist entries.
	OpManageAllowlist
	// OpViewAllowlist reads the group allowlist.
	OpViewAllowlist
	// OpUpdateAnnouncement updates the group announcement.
	OpUpdateAnnouncement
	// OpDeleteSharedFile deletes a shared file uploaded by another member.
	OpDeleteSharedFile
	// OpSetMemberAttributes updates another member's custom attributes.
	OpSetMemberAttributes
	// OpLeaveGroup leaves the group voluntarily.
	OpLeaveGroup
)

// minimumRole maps each operation to the weakest role allowed to perform it.
var minimumRole = map[Operation]Role{
	OpModifyGroup:         RoleAdmin,
	OpDestroyGroup:        RoleOwner,
	OpTransferOwnership:   RoleOwner,
	OpSetAdmin:            RoleOwner,
	OpRemoveAdmin:         RoleOwner,
	OpInviteMember:        RoleMember,
	OpRemoveMember:        RoleAdmin,
	OpResolveJoinRequest:  RoleAdmin,
	OpMuteMember:          RoleAdmin,
	OpViewMuteList:        RoleAdmin,
	OpBlockMember:         RoleAdmin,
	OpMuteAll:             RoleAdmin,
	OpManageAllowlist:     RoleAdmin,
	OpViewAllowlist:       RoleAdmin,
	OpUpdateAnnouncement:  RoleAdmin,
	OpDeleteSharedFile:    RoleAdmin,
	OpSetMemberAttributes: RoleAdmin,
	OpLeaveGroup:          RoleMember,
}

// CanPerform reports whether a user holding role may perform op.
// Role ordering is RoleNone < RoleMember < RoleAdmin < RoleOwner, so the
// owner passes every admin-level check implicitly.
func CanPerform(role Role, op Operation) bool {
	min, known := minimumRole[op]
	if !known {
		return false
	}
	return role >= min
}

// CanActOn reports whether actor may apply a moderating operation (remove,
// mute, block) to a user holding target. Moderation only flows downward:
// admins cannot act on each other or on the owner.
func CanActOn(actor, target Role) bool {
	return actor > target
}

// CanInvite reports whether a user holding role may invite outside users,
// given the group's member-invite setting. Admins and the owner may always
// invite; plain members only when the group allows it.
func CanInvite(role Role, allowMemberInvites bool) bool {
	if role >= RoleAdmin {
		return true
	}
	return role == RoleMember && allowMemberInvites
}

package groupcore

import (
	"sync"
	"time"

	"github.com/opd-ai/groupcore/membership"
	"github.com/opd-ai/groupcore/moderation"
	"github.com/opd-ai/groupcore/permission"
)

// Visibility controls who can discover and join a group.
type Visibility uint8

const (
	// VisibilityPrivate hides the group from public listings; users
	// join by invitation only.
	VisibilityPrivate Visibility = iota
	// VisibilityPublic lists the group publicly; users may join
	// directly or apply, depending on ApprovalRequired.
	VisibilityPublic
)

// String returns a human-readable visibility name.
func (v Visibility) String() string {
	switch v {
	case VisibilityPrivate:
		return "private"
	case VisibilityPublic:
		return "public"
	default:
		return "unknown"
	}
}

// GroupInfo is the metadata record of a group.
type GroupInfo struct {
	ID                 string     `json:"id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	Extension          string     `json:"extension,omitempty"`
	OwnerID            string     `json:"owner_id"`
	Visibility         Visibility `json:"visibility"`
	ApprovalRequired   bool       `json:"approval_required"`
	InviteNeedsConfirm bool       `json:"invite_needs_confirm"`
	AllowMemberInvites bool       `json:"allow_member_invites"`
	MaxMembers         int        `json:"max_members"`
	CreatedAt          time.Time  `json:"created_at"`
}

// CreateGroupRequest carries the parameters for CreateGroup. Zero
// values select private visibility, no approval requirement, and the
// client's default invite confirmation setting.
type CreateGroupRequest struct {
	Name               string
	Description        string
	Extension          string
	Visibility         Visibility
	ApprovalRequired   bool
	InviteNeedsConfirm *bool
	AllowMemberInvites bool
	MaxMembers         int
	// Members are added directly at creation, bypassing invite
	// confirmation.
	Members []string
}

// JoinedGroup is one entry of a joined-groups listing. MemberCount and
// Role are populated only by extended-mode queries.
type JoinedGroup struct {
	Info        *GroupInfo
	MemberCount int
	Role        permission.Role
}

// JoinedGroupsQuery selects one of the two joined-group pagination
// modes. It is a sealed union: SimpleJoinedQuery or ExtendedJoinedQuery.
type JoinedGroupsQuery interface {
	joinedGroupsQuery()
}

// SimpleJoinedQuery pages through joined groups starting at page 1 and
// returns group metadata only.
type SimpleJoinedQuery struct {
	Page     int
	PageSize int
}

func (SimpleJoinedQuery) joinedGroupsQuery() {}

// ExtendedJoinedQuery pages through joined groups starting at page 0
// and additionally reports each group's member count and the caller's
// role.
type ExtendedJoinedQuery struct {
	Page     int
	PageSize int
}

func (ExtendedJoinedQuery) joinedGroupsQuery() {}

// MemberResult is the per-target outcome of a bulk member operation.
type MemberResult struct {
	UserID string
	Err    error
}

// groupState is the per-group aggregate: metadata, membership, and
// moderation lists, guarded by one mutex so mutating operations on the
// same group apply in commit order.
type groupState struct {
	mu           sync.Mutex
	info         GroupInfo
	announcement string
	// messagesBlocked suppresses this client's incoming messages for
	// the group without affecting membership.
	messagesBlocked bool
	members         *membership.Store
	lists           *moderation.ListManager
}

func newGroupState(info GroupInfo) *groupState {
	return &groupState{
		info:    info,
		members: membership.NewStore(),
		lists:   moderation.NewListManager(),
	}
}

// infoCopy returns a snapshot of the group metadata. Callers must hold
// g.mu.
func (g *groupState) infoCopy() *GroupInfo {
	info := g.info
	return &info
}

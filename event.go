package groupcore

import (
	"encoding/json"
	"fmt"
	"time"
)

// EventOp identifies the kind of a group notification event. The set is
// closed so consumers can match exhaustively instead of comparing
// free-form strings.
type EventOp uint8

const (
	// OpDirectJoined fires when a user is added to a group without
	// confirmation (initial members at creation, or invites when the
	// group does not require confirmation).
	OpDirectJoined EventOp = iota
	// OpInviteToJoin fires to an invited user when the group requires
	// invite confirmation.
	OpInviteToJoin
	// OpAcceptInvite fires to the inviter when an invitee accepts.
	OpAcceptInvite
	// OpInviteDeclined fires to the inviter when an invitee declines.
	OpInviteDeclined
	// OpMemberPresence fires to existing members when a user joins.
	OpMemberPresence
	// OpMemberAbsence fires to remaining members when a user leaves
	// voluntarily.
	OpMemberAbsence
	// OpRemoveMember fires when a member is removed or blocked; the
	// event's Target is the removed user and Recipients cover both the
	// target and the remaining members.
	OpRemoveMember
	// OpRequestToJoin fires to the owner and admins when an outside
	// user applies to join an approval-required group.
	OpRequestToJoin
	// OpAcceptRequest fires to the applicant when a join request is
	// accepted.
	OpAcceptRequest
	// OpRequestDeclined fires to the applicant when a join request is
	// rejected; Reason carries the optional rejection reason.
	OpRequestDeclined
	// OpChangeOwner fires to all members when ownership is transferred.
	OpChangeOwner
	// OpSetAdmin fires to a user granted the admin role.
	OpSetAdmin
	// OpRemoveAdmin fires to a user whose admin role is revoked.
	OpRemoveAdmin
	// OpDestroy fires to all members when the group is destroyed.
	OpDestroy
	// OpMuteMember fires to all members when a member is muted.
	OpMuteMember
	// OpUnmuteMember fires to all members when a member is unmuted.
	OpUnmuteMember
	// OpMuteAllMembers fires to all members when mute-all is enabled.
	OpMuteAllMembers
	// OpUnmuteAllMembers fires to all members when mute-all is disabled.
	OpUnmuteAllMembers
	// OpAddUserToAllowlist fires when a user is added to the allowlist.
	OpAddUserToAllowlist
	// OpRemoveAllowlistMember fires when a user leaves the allowlist.
	OpRemoveAllowlistMember
	// OpUnblockMember fires to a user removed from the block list.
	OpUnblockMember
	// OpMemberAttributesUpdate fires to all members when a member's
	// custom attributes change.
	OpMemberAttributesUpdate
	// OpAnnouncementUpdate fires to all members when the announcement
	// changes.
	OpAnnouncementUpdate
	// OpGroupInfoUpdate fires to all members when group metadata
	// changes.
	OpGroupInfoUpdate
)

var eventOpNames = map[EventOp]string{
	OpDirectJoined:           "directJoined",
	OpInviteToJoin:           "inviteToJoin",
	OpAcceptInvite:           "acceptInvite",
	OpInviteDeclined:         "inviteDeclined",
	OpMemberPresence:         "memberPresence",
	OpMemberAbsence:          "memberAbsence",
	OpRemoveMember:           "removeMember",
	OpRequestToJoin:          "requestToJoin",
	OpAcceptRequest:          "acceptRequest",
	OpRequestDeclined:        "requestDeclined",
	OpChangeOwner:            "changeOwner",
	OpSetAdmin:               "setAdmin",
	OpRemoveAdmin:            "removeAdmin",
	OpDestroy:                "destroy",
	OpMuteMember:             "muteMember",
	OpUnmuteMember:           "unmuteMember",
	OpMuteAllMembers:         "muteAllMembers",
	OpUnmuteAllMembers:       "unmuteAllMembers",
	OpAddUserToAllowlist:     "addUserToAllowlist",
	OpRemoveAllowlistMember:  "removeAllowlistMember",
	OpUnblockMember:          "unblockMember",
	OpMemberAttributesUpdate: "memberAttributesUpdate",
	OpAnnouncementUpdate:     "announcementUpdate",
	OpGroupInfoUpdate:        "groupInfoUpdate",
}

var eventOpValues = func() map[string]EventOp {
	m := make(map[string]EventOp, len(eventOpNames))
	for op, name := range eventOpNames {
		m[name] = op
	}
	return m
}()

// String returns the wire tag of the operation.
func (op EventOp) String() string {
	if name, ok := eventOpNames[op]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(op))
}

// ParseEventOp maps a wire tag back to its EventOp.
func ParseEventOp(tag string) (EventOp, error) {
	if op, ok := eventOpValues[tag]; ok {
		return op, nil
	}
	return 0, fmt.Errorf("%w: unknown event operation %q", ErrInvalidArgument, tag)
}

// MarshalJSON encodes the operation as its wire tag.
func (op EventOp) MarshalJSON() ([]byte, error) {
	name, ok := eventOpNames[op]
	if !ok {
		return nil, fmt.Errorf("%w: event operation %d", ErrInvalidArgument, uint8(op))
	}
	return json.Marshal(name)
}

// UnmarshalJSON decodes a wire tag into the operation.
func (op *EventOp) UnmarshalJSON(data []byte) error {
	var tag string
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}
	parsed, err := ParseEventOp(tag)
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// Event is a group notification. Outbound events are published to the
// configured EventSink and mirrored to the local OnGroupEvent callback;
// inbound events from the server are applied via Client.ApplyEvent.
type Event struct {
	Op         EventOp           `json:"op"`
	GroupID    string            `json:"group_id"`
	Actor      string            `json:"actor"`
	Target     string            `json:"target,omitempty"`
	Recipients []string          `json:"recipients,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
}

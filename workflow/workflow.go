// Package workflow implements the join-request and invitation state
// machines for group admission.
//
// A join request moves pending -> accepted | rejected and is terminal once
// resolved; a user rejected earlier gets a fresh request on the next
// attempt. An invitation follows the same machine when confirmation is
// required, and transitions directly to auto-joined, with no externally
// observable pending state, when it is not.
package workflow

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrAlreadyResolved indicates a second resolution of a request or
	// invitation that has already been accepted or rejected.
	ErrAlreadyResolved = errors.New("request already resolved")

	// ErrNoPendingRequest indicates there is nothing pending to resolve.
	ErrNoPendingRequest = errors.New("no pending request")

	// ErrRequestPending indicates a duplicate creation while an identical
	// request or invitation is still pending.
	ErrRequestPending = errors.New("request already pending")
)

// Status is the lifecycle state of a join request or invitation.
type Status uint8

const (
	// StatusPending awaits a decision.
	StatusPending Status = iota
	// StatusAccepted was approved and produced a membership.
	StatusAccepted
	// StatusRejected was declined; terminal.
	StatusRejected
	// StatusAutoJoined produced a membership without invitee action.
	StatusAutoJoined
)

// String returns the wire representation of the status.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusAccepted:
		return "accepted"
	case StatusRejected:
		return "rejected"
	case StatusAutoJoined:
		return "auto-joined"
	default:
		return "unknown"
	}
}

// JoinRequest is an outside user's application to join a group.
type JoinRequest struct {
	GroupID    string
	Applicant  string
	Message    string
	Status     Status
	CreatedAt  time.Time
	ResolvedAt time.Time
}

// Invitation is a member's offer to bring an outside user into a group.
type Invitation struct {
	GroupID              string
	Inviter              string
	Invitee              string
	RequiresConfirmation bool
	Status               Status
	CreatedAt            time.Time
	ResolvedAt           time.Time
}

type admissionKey struct {
	groupID string
	userID  string
}

// Engine tracks join requests and invitations across groups. The engine
// retains only the latest request per (group, user) pair: resolving one and
// creating a new one replaces the old record.
type Engine struct {
	mu          sync.Mutex
	requests    map[admissionKey]*JoinRequest
	invitations map[admissionKey]*Invitation
}

// NewEngine creates an empty workflow engine.
func NewEngine() *Engine {
	return &Engine{
		requests:    make(map[admissionKey]*JoinRequest),
		invitations: make(map[admissionKey]*Invitation),
	}
}

// CreateJoinRequest records a pending join request. A request that is still
// pending for the same applicant fails with ErrRequestPending; a previously
// rejected or accepted request is superseded by a fresh pending one.
func (e *Engine) CreateJoinRequest(groupID, applicant, message string) (*JoinRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := admissionKey{groupID: groupID, userID: applicant}
	if existing, ok := e.requests[key]; ok && existing.Status == StatusPending {
		return nil, fmt.Errorf("%w: applicant %s", ErrRequestPending, applicant)
	}

	request := &JoinRequest{
		GroupID:   groupID,
		Applicant: applicant,
		Message:   message,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	e.requests[key] = request

	logrus.WithFields(logrus.Fields{
		"function":  "CreateJoinRequest",
		"group_id":  groupID,
		"applicant": applicant,
	}).Info("Join request created")

	return request, nil
}

// JoinRequestFor returns the latest join request for the applicant.
func (e *Engine) JoinRequestFor(groupID, applicant string) (*JoinRequest, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	request, ok := e.requests[admissionKey{groupID: groupID, userID: applicant}]
	if !ok {
		return nil, false
	}
	copied := *request
	return &copied, true
}

// ResolveJoinRequest moves a pending join request to accepted or rejected.
// Resolving an absent request fails with ErrNoPendingRequest; resolving a
// request a second time fails with ErrAlreadyResolved.
func (e *Engine) ResolveJoinRequest(groupID, applicant string, accept bool) (*JoinRequest, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := admissionKey{groupID: groupID, userID: applicant}
	request, ok := e.requests[key]
	if !ok {
		return nil, fmt.Errorf("%w: applicant %s", ErrNoPendingRequest, applicant)
	}
	if request.Status != StatusPending {
		return nil, fmt.Errorf("%w: applicant %s is %s", ErrAlreadyResolved, applicant, request.Status)
	}

	if accept {
		request.Status = StatusAccepted
	} else {
		request.Status = StatusRejected
	}
	request.ResolvedAt = time.Now()

	logrus.WithFields(logrus.Fields{
		"function":  "ResolveJoinRequest",
		"group_id":  groupID,
		"applicant": applicant,
		"status":    request.Status.String(),
	}).Info("Join request resolved")

	copied := *request
	return &copied, nil
}

// SupersedeJoinRequest marks a pending join request accepted when the
// applicant is admitted through another path (direct add, invitation).
// Absent or resolved requests are left untouched.
func (e *Engine) SupersedeJoinRequest(groupID, applicant string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	request, ok := e.requests[admissionKey{groupID: groupID, userID: applicant}]
	if ok && request.Status == StatusPending {
		request.Status = StatusAccepted
		request.ResolvedAt = time.Now()
	}
}

// CreateInvitation records an invitation. When requiresConfirmation is
// false the invitation transitions directly to StatusAutoJoined and the
// caller must create the membership at once; there is no observable pending
// state. A pending invitation for the same invitee fails with
// ErrRequestPending.
func (e *Engine) CreateInvitation(groupID, inviter, invitee string, requiresConfirmation bool) (*Invitation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := admissionKey{groupID: groupID, userID: invitee}
	if existing, ok := e.invitations[key]; ok && existing.Status == StatusPending {
		return nil, fmt.Errorf("%w: invitee %s", ErrRequestPending, invitee)
	}

	invitation := &Invitation{
		GroupID:              groupID,
		Inviter:              inviter,
		Invitee:              invitee,
		RequiresConfirmation: requiresConfirmation,
		Status:               StatusPending,
		CreatedAt:            time.Now(),
	}
	if !requiresConfirmation {
		invitation.Status = StatusAutoJoined
		invitation.ResolvedAt = invitation.CreatedAt
	}
	e.invitations[key] = invitation

	logrus.WithFields(logrus.Fields{
		"function": "CreateInvitation",
		"group_id": groupID,
		"inviter":  inviter,
		"invitee":  invitee,
		"status":   invitation.Status.String(),
	}).Info("Invitation created")

	copied := *invitation
	return &copied, nil
}

// InvitationFor returns the latest invitation for the invitee.
func (e *Engine) InvitationFor(groupID, invitee string) (*Invitation, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	invitation, ok := e.invitations[admissionKey{groupID: groupID, userID: invitee}]
	if !ok {
		return nil, false
	}
	copied := *invitation
	return &copied, true
}

// ResolveInvitation moves a pending invitation to accepted or rejected,
// with the same terminal-state protection as join requests.
func (e *Engine) ResolveInvitation(groupID, invitee string, accept bool) (*Invitation, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	key := admissionKey{groupID: groupID, userID: invitee}
	invitation, ok := e.invitations[key]
	if !ok {
		return nil, fmt.Errorf("%w: invitee %s", ErrNoPendingRequest, invitee)
	}
	if invitation.Status != StatusPending {
		return nil, fmt.Errorf("%w: invitee %s is %s", ErrAlreadyResolved, invitee, invitation.Status)
	}

	if accept {
		invitation.Status = StatusAccepted
	} else {
		invitation.Status = StatusRejected
	}
	invitation.ResolvedAt = time.Now()

	copied := *invitation
	return &copied, nil
}

// DropGroup discards all workflow state for a destroyed group.
func (e *Engine) DropGroup(groupID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key := range e.requests {
		if key.groupID == groupID {
			delete(e.requests, key)
		}
	}
	for key := range e.invitations {
		if key.groupID == groupID {
			delete(e.invitations, key)
		}
	}
}

// PendingJoinRequests returns the pending join requests for a group.
func (e *Engine) PendingJoinRequests(groupID string) []JoinRequest {
	e.mu.Lock()
	defer e.mu.Unlock()

	var pending []JoinRequest
	for key, request := range e.requests {
		if key.groupID == groupID && request.Status == StatusPending {
			pending = append(pending, *request)
		}
	}
	return pending
}

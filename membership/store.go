// Package membership implements the per-group membership store: the set of
// members, their roles, and their custom attributes. It is the single source
// of truth for who is in a group and what role they hold.
//
// Invariants maintained here:
//
//   - Exactly one member holds RoleOwner at all times.
//   - Removing an absent member is a success no-op.
//   - Setting an attribute key to the empty string deletes it; a deleted key
//     is indistinguishable from one never set.
package membership

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/limits"
	"github.com/opd-ai/groupcore/permission"
)

var (
	// ErrNotMember indicates the target user is not a member of the group.
	ErrNotMember = errors.New("user is not a group member")

	// ErrAlreadyMember indicates the target user is already a member.
	ErrAlreadyMember = errors.New("user is already a group member")

	// ErrNotOwner indicates an operation that requires group ownership.
	ErrNotOwner = errors.New("operation requires group ownership")

	// ErrOwnerExists indicates an attempt to give a second member RoleOwner.
	ErrOwnerExists = errors.New("group already has an owner")
)

// Member describes one group member.
type Member struct {
	UserID   string
	Role     permission.Role
	JoinedAt time.Time
}

// Store owns the membership and custom attributes of a single group.
type Store struct {
	mu      sync.RWMutex
	members map[string]*Member
	attrs   map[string]map[string]string
}

// NewStore creates an empty membership store.
func NewStore() *Store {
	return &Store{
		members: make(map[string]*Member),
		attrs:   make(map[string]map[string]string),
	}
}

// Add inserts a new member with the given role. Adding an existing member
// fails with ErrAlreadyMember; adding a second owner fails with
// ErrOwnerExists.
func (s *Store) Add(userID string, role permission.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[userID]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyMember, userID)
	}
	if role == permission.RoleOwner {
		if _, owned := s.ownerLocked(); owned {
			return ErrOwnerExists
		}
	}

	s.members[userID] = &Member{
		UserID:   userID,
		Role:     role,
		JoinedAt: time.Now(),
	}

	logrus.WithFields(logrus.Fields{
		"function": "Add",
		"user_id":  userID,
		"role":     role.String(),
	}).Debug("Member added")

	return nil
}

// Remove deletes a member and their attributes. Removing an absent user is
// a success no-op; the return value reports whether the user was present.
func (s *Store) Remove(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, existed := s.members[userID]
	delete(s.members, userID)
	delete(s.attrs, userID)
	return existed
}

// IsMember reports whether userID is a member of the group.
func (s *Store) IsMember(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.members[userID]
	return exists
}

// RoleOf returns the member's role, or RoleNone for non-members.
func (s *Store) RoleOf(userID string) permission.Role {
	s.mu.RLock()
	defer s.mu.RUnlock()

	member, exists := s.members[userID]
	if !exists {
		return permission.RoleNone
	}
	return member.Role
}

// Count returns the number of members.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members)
}

// Owner returns the user ID of the current owner.
func (s *Store) Owner() (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ownerLocked()
}

func (s *Store) ownerLocked() (string, bool) {
	for id, member := range s.members {
		if member.Role == permission.RoleOwner {
			return id, true
		}
	}
	return "", false
}

// Admins returns the user IDs holding RoleAdmin, sorted.
func (s *Store) Admins() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var admins []string
	for id, member := range s.members {
		if member.Role == permission.RoleAdmin {
			admins = append(admins, id)
		}
	}
	sort.Strings(admins)
	return admins
}

// UserIDs returns all member user IDs, sorted.
func (s *Store) UserIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.members))
	for id := range s.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// SetRole changes a member's role. Promoting a member to RoleOwner fails
// with ErrOwnerExists while another owner exists; use TransferOwnership for
// the atomic swap.
func (s *Store) SetRole(userID string, role permission.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	member, exists := s.members[userID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotMember, userID)
	}
	if role == permission.RoleOwner && member.Role != permission.RoleOwner {
		if _, owned := s.ownerLocked(); owned {
			return ErrOwnerExists
		}
	}

	member.Role = role
	return nil
}

// TransferOwnership atomically demotes the current owner to RoleAdmin and
// promotes newOwnerID to RoleOwner. It fails with ErrNotMember when the
// target is not a member. Transferring to the current owner is a no-op.
func (s *Store) TransferOwnership(newOwnerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	target, exists := s.members[newOwnerID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrNotMember, newOwnerID)
	}
	if target.Role == permission.RoleOwner {
		return nil
	}

	ownerID, owned := s.ownerLocked()
	if owned {
		s.members[ownerID].Role = permission.RoleAdmin
	}
	target.Role = permission.RoleOwner

	logrus.WithFields(logrus.Fields{
		"function":  "TransferOwnership",
		"old_owner": ownerID,
		"new_owner": newOwnerID,
	}).Info("Group ownership transferred")

	return nil
}

// List returns one page of members. Pages start at 1 and hold at most
// limits.MaxMemberPageSize entries; invalid pagination fails before any
// store access. Members are ordered owner first, then admins, then members,
// alphabetically within each role.
func (s *Store) List(page, pageSize int) ([]Member, error) {
	if err := limits.ValidateMemberPage(page, pageSize); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	all := make([]Member, 0, len(s.members))
	for _, member := range s.members {
		all = append(all, *member)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Role != all[j].Role {
			return all[i].Role > all[j].Role
		}
		return all[i].UserID < all[j].UserID
	})

	lo, hi := limits.PageBounds(len(all), page, pageSize, 1)
	return all[lo:hi], nil
}

// SetAttributes merges the given custom attributes into the member's
// attribute map. A key with an empty value is deleted. Returns ErrNotMember
// for non-members.
func (s *Store) SetAttributes(userID string, attributes map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.members[userID]; !exists {
		return fmt.Errorf("%w: %s", ErrNotMember, userID)
	}

	current := s.attrs[userID]
	if current == nil {
		current = make(map[string]string)
		s.attrs[userID] = current
	}
	for key, value := range attributes {
		if value == "" {
			delete(current, key)
			continue
		}
		current[key] = value
	}
	if len(current) == 0 {
		delete(s.attrs, userID)
	}
	return nil
}

// Attributes returns a copy of the member's custom attributes. Non-members
// and members with no attributes yield an empty map.
func (s *Store) Attributes(userID string) map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copyFiltered(s.attrs[userID], nil)
}

// AttributesForUsers returns the custom attributes of several members at
// once, optionally filtered by key. An empty key filter returns all
// attributes. Users who are not members are omitted from the result.
func (s *Store) AttributesForUsers(userIDs []string, keys ...string) map[string]map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]map[string]string, len(userIDs))
	for _, id := range userIDs {
		if _, exists := s.members[id]; !exists {
			continue
		}
		out[id] = copyFiltered(s.attrs[id], keys)
	}
	return out
}

// copyFiltered copies attrs, keeping only the listed keys when the filter is
// non-empty.
func copyFiltered(attrs map[string]string, keys []string) map[string]string {
	out := make(map[string]string, len(attrs))
	if len(keys) == 0 {
		for k, v := range attrs {
			out[k] = v
		}
		return out
	}
	for _, k := range keys {
		if v, ok := attrs[k]; ok {
			out[k] = v
		}
	}
	return out
}

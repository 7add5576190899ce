// Package moderation implements the per-group moderation lists: the mute
// list, the block list, and the allowlist, plus the group-wide mute flag.
//
// Precedence rules enforced here:
//
//   - An allowlist entry overrides both an individual mute and the
//     group-wide mute for send permission.
//   - A blocked user is never a member; block-list insertion and membership
//     removal are performed atomically by the governance layer.
//   - Timed mutes expire lazily: the entry is considered expired once its
//     wall-clock expiry passes, and is evaluated on query, never swept.
package moderation

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/permission"
)

// PermanentMute is the sentinel duration for a mute with no expiry.
const PermanentMute time.Duration = -1

// ErrBlocked indicates an operation targeting or attempted by a user on the
// group block list.
var ErrBlocked = errors.New("user is blocked")

// TimeProvider abstracts time operations for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

// MuteEntry describes one muted user.
type MuteEntry struct {
	UserID    string
	Permanent bool
	// ExpiresAt is meaningful only when Permanent is false.
	ExpiresAt time.Time
}

// Expired reports whether the entry has passed its expiry at the given time.
// Permanent entries never expire.
func (e MuteEntry) Expired(now time.Time) bool {
	if e.Permanent {
		return false
	}
	return !now.Before(e.ExpiresAt)
}

// ListManager owns the moderation lists of a single group.
type ListManager struct {
	mu           sync.RWMutex
	mutes        map[string]MuteEntry
	blocks       map[string]struct{}
	allows       map[string]struct{}
	muteAll      bool
	timeProvider TimeProvider
}

// NewListManager creates an empty moderation list manager.
func NewListManager() *ListManager {
	return &ListManager{
		mutes:        make(map[string]MuteEntry),
		blocks:       make(map[string]struct{}),
		allows:       make(map[string]struct{}),
		timeProvider: DefaultTimeProvider{},
	}
}

// SetTimeProvider sets a custom time provider for deterministic testing.
func (m *ListManager) SetTimeProvider(tp TimeProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timeProvider = tp
}

// Mute adds or replaces a mute entry for userID. A negative duration mutes
// permanently; any other duration is relative to the current time.
func (m *ListManager) Mute(userID string, duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := MuteEntry{UserID: userID}
	if duration < 0 {
		entry.Permanent = true
	} else {
		entry.ExpiresAt = m.timeProvider.Now().Add(duration)
	}
	m.mutes[userID] = entry

	logrus.WithFields(logrus.Fields{
		"function":  "Mute",
		"user_id":   userID,
		"permanent": entry.Permanent,
		"duration":  duration,
	}).Debug("Mute entry recorded")
}

// Unmute removes any mute entry for userID. Unmuting an unmuted user is a
// no-op.
func (m *ListManager) Unmute(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.mutes, userID)
}

// IsMuted reports whether userID currently has an unexpired mute entry.
// Expiry is evaluated lazily against the clock; expired entries are not
// removed.
func (m *ListManager) IsMuted(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, exists := m.mutes[userID]
	if !exists {
		return false
	}
	return !entry.Expired(m.timeProvider.Now())
}

// MuteList returns the unexpired mute entries sorted by user ID.
func (m *ListManager) MuteList() []MuteEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()

	now := m.timeProvider.Now()
	entries := make([]MuteEntry, 0, len(m.mutes))
	for _, entry := range m.mutes {
		if !entry.Expired(now) {
			entries = append(entries, entry)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].UserID < entries[j].UserID })
	return entries
}

// Block adds userID to the block list. The caller is responsible for
// removing any existing membership atomically with this call.
func (m *ListManager) Block(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[userID] = struct{}{}

	logrus.WithFields(logrus.Fields{
		"function": "Block",
		"user_id":  userID,
	}).Debug("Block entry recorded")
}

// Unblock removes userID from the block list. Unblocking a user who is not
// blocked is a no-op.
func (m *ListManager) Unblock(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, userID)
}

// IsBlocked reports whether userID is on the block list.
func (m *ListManager) IsBlocked(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, blocked := m.blocks[userID]
	return blocked
}

// BlockList returns the blocked user IDs sorted.
func (m *ListManager) BlockList() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.blocks)
}

// Allow adds userID to the allowlist.
func (m *ListManager) Allow(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.allows[userID] = struct{}{}
}

// Disallow removes userID from the allowlist.
func (m *ListManager) Disallow(userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.allows, userID)
}

// IsAllowed reports whether userID is on the allowlist.
func (m *ListManager) IsAllowed(userID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, allowed := m.allows[userID]
	return allowed
}

// Allowlist returns the allowlisted user IDs sorted.
func (m *ListManager) Allowlist() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.allows)
}

// SetMuteAll sets the group-wide mute flag. While set, only the owner,
// admins, and allowlisted members may send.
func (m *ListManager) SetMuteAll(muted bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.muteAll = muted

	logrus.WithFields(logrus.Fields{
		"function": "SetMuteAll",
		"muted":    muted,
	}).Debug("Group-wide mute flag updated")
}

// MuteAllEnabled reports whether the group-wide mute flag is set.
func (m *ListManager) MuteAllEnabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.muteAll
}

// CanSend reports the effective send permission for a user holding role.
// Blocked users can never send. The allowlist overrides both an individual
// mute and the group-wide mute; the owner and admins are exempt from both.
func (m *ListManager) CanSend(userID string, role permission.Role) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, blocked := m.blocks[userID]; blocked {
		return false
	}
	if role >= permission.RoleAdmin {
		return true
	}
	if _, allowed := m.allows[userID]; allowed {
		return true
	}
	if m.muteAll {
		return false
	}
	entry, muted := m.mutes[userID]
	if muted && !entry.Expired(m.timeProvider.Now()) {
		return false
	}
	return role >= permission.RoleMember
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Package limits provides centralized pagination and size limits for the
// group SDK. This ensures consistent validation across different components
// of the system.
package limits

import (
	"errors"
	"fmt"
)

const (
	// MaxMemberPageSize is the maximum page size for group member listings.
	MaxMemberPageSize = 1000

	// MaxJoinedSimplePageSize is the maximum page size for joined-group
	// listings in simple mode (page numbers start at 1).
	MaxJoinedSimplePageSize = 500

	// MaxJoinedExtendedPageSize is the maximum page size for joined-group
	// listings in extended mode (page numbers start at 0), where member
	// counts and the caller's role are included per group.
	MaxJoinedExtendedPageSize = 20

	// MaxSharedFilePageSize is the maximum page size for shared-file listings.
	MaxSharedFilePageSize = 10

	// MaxGroupNameLength is the maximum group name length in bytes.
	MaxGroupNameLength = 128

	// MaxAnnouncementLength is the maximum group announcement length in bytes.
	MaxAnnouncementLength = 512

	// MaxPublicGroupLimit is the maximum number of public groups returned
	// per cursor-paginated request.
	MaxPublicGroupLimit = 1000

	// DefaultPublicGroupLimit is the public-group page size used when the
	// caller does not supply one.
	DefaultPublicGroupLimit = 20

	// DefaultMaxGroupMembers is the member capacity assigned to a group
	// created without an explicit maximum.
	DefaultMaxGroupMembers = 200
)

var (
	// ErrPageOutOfRange indicates a page number below the mode's starting page.
	ErrPageOutOfRange = errors.New("page number out of range")

	// ErrPageSizeExceeded indicates a page size outside the allowed range.
	ErrPageSizeExceeded = errors.New("page size out of range")
)

// validatePage validates a page number and size against the given starting
// page and maximum size. Returns an error with context including the actual
// and maximum values.
func validatePage(page, pageSize, firstPage, maxSize int) error {
	if page < firstPage {
		return fmt.Errorf("%w: page %d precedes first page %d", ErrPageOutOfRange, page, firstPage)
	}
	if pageSize < 1 || pageSize > maxSize {
		return fmt.Errorf("%w: size %d outside [1, %d]", ErrPageSizeExceeded, pageSize, maxSize)
	}
	return nil
}

// ValidateMemberPage validates pagination for group member listings.
// Member pages start at 1 and may hold at most MaxMemberPageSize entries.
func ValidateMemberPage(page, pageSize int) error {
	return validatePage(page, pageSize, 1, MaxMemberPageSize)
}

// ValidateJoinedSimplePage validates pagination for simple-mode joined-group
// listings. Simple pages start at 1 and may hold at most
// MaxJoinedSimplePageSize entries.
func ValidateJoinedSimplePage(page, pageSize int) error {
	return validatePage(page, pageSize, 1, MaxJoinedSimplePageSize)
}

// ValidateJoinedExtendedPage validates pagination for extended-mode
// joined-group listings. Extended pages start at 0 and may hold at most
// MaxJoinedExtendedPageSize entries.
func ValidateJoinedExtendedPage(page, pageSize int) error {
	return validatePage(page, pageSize, 0, MaxJoinedExtendedPageSize)
}

// ValidateSharedFilePage validates pagination for shared-file listings.
// Shared-file pages start at 1 and may hold at most MaxSharedFilePageSize
// entries.
func ValidateSharedFilePage(page, pageSize int) error {
	return validatePage(page, pageSize, 1, MaxSharedFilePageSize)
}

// ValidatePublicGroupLimit validates the page size of a cursor-paginated
// public-group listing. A non-positive limit selects the default.
func ValidatePublicGroupLimit(limit int) (int, error) {
	if limit <= 0 {
		return DefaultPublicGroupLimit, nil
	}
	if limit > MaxPublicGroupLimit {
		return 0, fmt.Errorf("%w: limit %d exceeds %d", ErrPageSizeExceeded, limit, MaxPublicGroupLimit)
	}
	return limit, nil
}

// PageBounds converts a validated page number into slice bounds over a
// collection of total elements. firstPage is the mode's starting page number
// (0 or 1). The returned bounds are clamped to [0, total].
func PageBounds(total, page, pageSize, firstPage int) (lo, hi int) {
	lo = (page - firstPage) * pageSize
	if lo > total {
		lo = total
	}
	hi = lo + pageSize
	if hi > total {
		hi = total
	}
	return lo, hi
}

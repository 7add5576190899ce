package groupcore

import "errors"

// ErrPermissionDenied indicates that the acting user's role does not
// permit the operation.
var ErrPermissionDenied = errors.New("permission denied")

// ErrNotFound indicates that a group, request, or file does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalidArgument indicates malformed or out-of-range input.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrRequestFailed indicates a transport-level failure while publishing
// an event. It is non-fatal; the caller may retry.
var ErrRequestFailed = errors.New("request failed")

// Package transport defines the interface boundary to the external
// collaborators this SDK core depends on: the server-push event channel,
// the binary blob store behind attachment transfers, and the read-receipt
// service. This abstraction allows switching between test fakes and real
// network implementations.
//
// The core never retries or times out these calls itself; transport-level
// failures surface to callers as request or transfer failures and retry
// policy stays with the integration.
package transport

import "context"

// EventSink delivers an outbound notification event to a set of recipients.
// Implementations are expected to be safe for concurrent use.
type EventSink interface {
	// Publish sends one encoded notification event to every recipient.
	Publish(ctx context.Context, recipients []string, payload []byte) error
}

// EventSinkFunc is a function type that implements EventSink.
type EventSinkFunc func(ctx context.Context, recipients []string, payload []byte) error

// Publish implements EventSink for EventSinkFunc.
func (f EventSinkFunc) Publish(ctx context.Context, recipients []string, payload []byte) error {
	return f(ctx, recipients, payload)
}

// BlobStore moves binary payload bytes for the attachment transfer
// pipeline. The pipeline owns chunking, progress accounting, and
// cancellation; the store only moves bytes for one chunk at a time.
type BlobStore interface {
	// Put writes one chunk of an upload at the given offset.
	Put(ctx context.Context, fileID string, offset int64, chunk []byte) error

	// Commit finalizes an upload and returns the public URL of the blob.
	Commit(ctx context.Context, fileID string) (string, error)

	// Get reads up to size bytes of a download starting at offset. It
	// returns io.EOF together with the final bytes, or alone at the end
	// of the blob.
	Get(ctx context.Context, fileID, secret string, offset, size int64) ([]byte, error)

	// Stat returns the total size of a stored blob.
	Stat(ctx context.Context, fileID, secret string) (int64, error)

	// Delete removes a stored blob.
	Delete(ctx context.Context, fileID string) error
}

// ReceiptSource answers which members have read a given message.
type ReceiptSource interface {
	ReadUsers(ctx context.Context, groupID, messageID string) ([]string, error)
}

// ReceiptSourceFunc is a function type that implements ReceiptSource.
type ReceiptSourceFunc func(ctx context.Context, groupID, messageID string) ([]string, error)

// ReadUsers implements ReceiptSource for ReceiptSourceFunc.
func (f ReceiptSourceFunc) ReadUsers(ctx context.Context, groupID, messageID string) ([]string, error) {
	return f(ctx, groupID, messageID)
}

// Discard is an EventSink that drops every event. Useful for integrations
// that only consume local state.
var Discard EventSink = EventSinkFunc(func(context.Context, []string, []byte) error { return nil })

// Package file implements attachment transfers for group chats.
//
// Uploads push a local file to the blob store in chunks and publish a
// shared file record on success. Downloads pull a shared file to a local
// path using its access secret. Each transfer reports progress through
// callbacks and reaches exactly one terminal state: completed, failed,
// or canceled.
//
// Example:
//
//	transfer, err := manager.Upload(ctx, groupID, "./report.pdf", selfID, file.Callbacks{
//	    OnProgress: func(transferred, total int64) {
//	        fmt.Printf("%.2f%%\n", float64(transferred)/float64(total)*100)
//	    },
//	    OnComplete: func(res file.Result) {
//	        fmt.Println("uploaded:", res.File.URL)
//	    },
//	})
package file

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// ErrTransferFailed indicates that a transfer reached the failed state.
var ErrTransferFailed = errors.New("transfer failed")

// ErrTransferCanceled indicates that a transfer was canceled before completing.
var ErrTransferCanceled = errors.New("transfer canceled")

// ErrDirectoryTraversal indicates an attempt to access files outside allowed directories.
var ErrDirectoryTraversal = errors.New("path contains directory traversal")

// Direction indicates whether a transfer uploads or downloads data.
type Direction uint8

const (
	// DirectionUpload represents a local file being sent to the blob store.
	DirectionUpload Direction = iota
	// DirectionDownload represents a shared file being fetched to disk.
	DirectionDownload
)

// String returns a human-readable direction name.
func (d Direction) String() string {
	switch d {
	case DirectionUpload:
		return "upload"
	case DirectionDownload:
		return "download"
	default:
		return "unknown"
	}
}

// State represents the current state of a transfer.
type State uint8

const (
	// StatePending indicates the transfer is waiting to start.
	StatePending State = iota
	// StateRunning indicates the transfer is in progress.
	StateRunning
	// StateCompleted indicates the transfer finished successfully.
	StateCompleted
	// StateFailed indicates the transfer failed due to an error.
	StateFailed
	// StateCanceled indicates the transfer was canceled.
	StateCanceled
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCanceled
}

// Result carries the outcome of a completed transfer.
type Result struct {
	// File is the shared file record. For uploads it is the newly
	// published record; for downloads it is the record that was fetched,
	// or nil when the download resolved the file remotely.
	File *SharedFile
	// LocalPath is the destination path of a download. Empty for uploads.
	LocalPath string
}

// Callbacks receives transfer lifecycle notifications. All fields are
// optional. OnProgress may fire many times with a non-decreasing
// transferred count; exactly one of OnComplete, OnError, or OnCanceled
// fires per transfer.
type Callbacks struct {
	OnProgress func(transferred, total int64)
	OnComplete func(res Result)
	OnError    func(err error)
	OnCanceled func()
}

// Transfer represents an in-flight attachment transfer.
type Transfer struct {
	ID        string
	GroupID   string
	FileID    string
	Direction Direction
	Name      string

	mu          sync.Mutex
	size        int64
	state       State
	transferred int64
	err         error
	cb          Callbacks
	cancel      context.CancelFunc
}

func newTransfer(id, groupID, fileID, name string, size int64, direction Direction, cb Callbacks, cancel context.CancelFunc) *Transfer {
	logrus.WithFields(logrus.Fields{
		"function":  "newTransfer",
		"group_id":  groupID,
		"file_id":   fileID,
		"name":      name,
		"size":      size,
		"direction": direction,
	}).Info("Creating attachment transfer")

	return &Transfer{
		ID:        id,
		GroupID:   groupID,
		FileID:    fileID,
		Direction: direction,
		Name:      name,
		size:      size,
		state:     StatePending,
		cb:        cb,
		cancel:    cancel,
	}
}

// State returns the current transfer state.
func (t *Transfer) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Progress returns the number of bytes transferred so far and the total
// size. The total may be zero for downloads whose size has not been
// resolved yet.
func (t *Transfer) Progress() (transferred, total int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.transferred, t.size
}

// Err returns the error that moved the transfer into the failed state,
// or nil.
func (t *Transfer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Cancel requests cancellation. It returns immediately; the canceled
// state and OnCanceled callback follow once the worker observes the
// request. Canceling a terminal transfer is a no-op.
func (t *Transfer) Cancel() {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return
	}
	cancel := t.cancel
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "Cancel",
		"group_id": t.GroupID,
		"file_id":  t.FileID,
	}).Info("Transfer cancellation requested")

	if cancel != nil {
		cancel()
	}
}

// begin moves the transfer from pending to running.
func (t *Transfer) begin() {
	t.mu.Lock()
	if t.state == StatePending {
		t.state = StateRunning
	}
	t.mu.Unlock()
}

// setSize records the resolved total size. Used by downloads that learn
// the size from the blob store after starting.
func (t *Transfer) setSize(size int64) {
	t.mu.Lock()
	t.size = size
	t.mu.Unlock()
}

// reportProgress advances the transferred count by n bytes and fires
// OnProgress. The count never decreases.
func (t *Transfer) reportProgress(n int64) {
	t.mu.Lock()
	if t.state.Terminal() || n <= 0 {
		t.mu.Unlock()
		return
	}
	t.transferred += n
	transferred, total := t.transferred, t.size
	onProgress := t.cb.OnProgress
	t.mu.Unlock()

	if onProgress != nil {
		onProgress(transferred, total)
	}
}

// finishComplete moves the transfer to completed and fires OnComplete.
// It reports whether this call performed the transition.
func (t *Transfer) finishComplete(res Result) bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.state = StateCompleted
	onComplete := t.cb.OnComplete
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "finishComplete",
		"group_id": t.GroupID,
		"file_id":  t.FileID,
	}).Info("Transfer completed")

	if onComplete != nil {
		onComplete(res)
	}
	return true
}

// finishError moves the transfer to failed and fires OnError.
func (t *Transfer) finishError(err error) bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.state = StateFailed
	t.err = err
	onError := t.cb.OnError
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "finishError",
		"group_id": t.GroupID,
		"file_id":  t.FileID,
		"error":    err,
	}).Warn("Transfer failed")

	if onError != nil {
		onError(err)
	}
	return true
}

// finishCanceled moves the transfer to canceled and fires OnCanceled.
func (t *Transfer) finishCanceled() bool {
	t.mu.Lock()
	if t.state.Terminal() {
		t.mu.Unlock()
		return false
	}
	t.state = StateCanceled
	onCanceled := t.cb.OnCanceled
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"function": "finishCanceled",
		"group_id": t.GroupID,
		"file_id":  t.FileID,
	}).Info("Transfer canceled")

	if onCanceled != nil {
		onCanceled()
	}
	return true
}

// ValidatePath validates a local file path to prevent directory
// traversal attacks. It returns the cleaned path.
func ValidatePath(path string) (string, error) {
	cleanedPath := filepath.Clean(path)

	if strings.Contains(cleanedPath, "..") {
		return "", ErrDirectoryTraversal
	}

	if filepath.IsAbs(cleanedPath) {
		parts := strings.Split(cleanedPath, string(filepath.Separator))
		for _, part := range parts {
			if part == ".." {
				return "", ErrDirectoryTraversal
			}
		}
	}

	return cleanedPath, nil
}

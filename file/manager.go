package file

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"

	"github.com/opd-ai/groupcore/limits"
	"github.com/opd-ai/groupcore/transport"
)

// ErrFileNotFound indicates that no shared file with the given ID exists
// in the group.
var ErrFileNotFound = errors.New("shared file not found")

// ErrSecretMismatch indicates that a download was attempted with a
// secret that does not match the shared file record.
var ErrSecretMismatch = errors.New("file access secret mismatch")

// ErrTransferNotFound indicates that no transfer with the given ID is
// tracked by the manager.
var ErrTransferNotFound = errors.New("transfer not found")

// DefaultChunkSize is the chunk size used when none is configured.
const DefaultChunkSize = 64 * 1024

// DefaultMaxConcurrent is the number of transfers allowed to run at
// once when none is configured.
const DefaultMaxConcurrent = 4

// SharedFile is the metadata record of a file shared with a group.
type SharedFile struct {
	GroupID    string    `json:"group_id"`
	FileID     string    `json:"file_id"`
	Name       string    `json:"name"`
	Size       int64     `json:"size"`
	Uploader   string    `json:"uploader"`
	URL        string    `json:"url"`
	Secret     string    `json:"secret"`
	Checksum   string    `json:"checksum"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Config carries optional Manager settings. Zero values select the
// package defaults.
type Config struct {
	ChunkSize     int
	MaxConcurrent int
}

// Manager coordinates attachment transfers and tracks the shared file
// records of each group.
type Manager struct {
	store     transport.BlobStore
	chunkSize int
	sem       chan struct{}

	mu        sync.RWMutex
	transfers map[string]*Transfer
	shared    map[string]map[string]*SharedFile
}

// NewManager creates a transfer manager backed by the given blob store.
func NewManager(store transport.BlobStore, cfg Config) *Manager {
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrent
	}

	logrus.WithFields(logrus.Fields{
		"function":       "NewManager",
		"chunk_size":     chunkSize,
		"max_concurrent": maxConcurrent,
	}).Info("Creating transfer manager")

	return &Manager{
		store:     store,
		chunkSize: chunkSize,
		sem:       make(chan struct{}, maxConcurrent),
		transfers: make(map[string]*Transfer),
		shared:    make(map[string]map[string]*SharedFile),
	}
}

// Upload starts an asynchronous upload of the file at path into the
// group's shared files. The returned transfer is already registered and
// reports progress through cb. On success a SharedFile record is stored
// and delivered via OnComplete.
func (m *Manager) Upload(ctx context.Context, groupID, path, uploader string, cb Callbacks) (*Transfer, error) {
	cleanPath, err := ValidatePath(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("open upload source: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat upload source: %w", err)
	}

	fileID := uuid.NewString()
	workerCtx, cancel := context.WithCancel(ctx)
	t := newTransfer(uuid.NewString(), groupID, fileID, filepath.Base(cleanPath), info.Size(), DirectionUpload, cb, cancel)
	m.register(t)

	go m.runUpload(workerCtx, t, f, uploader)
	return t, nil
}

func (m *Manager) runUpload(ctx context.Context, t *Transfer, f *os.File, uploader string) {
	defer f.Close()

	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	if err := ctx.Err(); err != nil {
		t.finishCanceled()
		return
	}
	t.begin()

	hasher, err := blake2b.New256(nil)
	if err != nil {
		t.finishError(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		return
	}

	buf := make([]byte, m.chunkSize)
	var offset int64
	for {
		if err := ctx.Err(); err != nil {
			t.finishCanceled()
			return
		}

		n, readErr := f.Read(buf)
		if n > 0 {
			if err := m.store.Put(ctx, t.FileID, offset, buf[:n]); err != nil {
				m.finishWorkerError(ctx, t, fmt.Errorf("store chunk at %d: %w", offset, err))
				return
			}
			hasher.Write(buf[:n])
			offset += int64(n)
			t.reportProgress(int64(n))
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			m.finishWorkerError(ctx, t, fmt.Errorf("read upload source: %w", readErr))
			return
		}
	}

	url, err := m.store.Commit(ctx, t.FileID)
	if err != nil {
		m.finishWorkerError(ctx, t, fmt.Errorf("commit upload: %w", err))
		return
	}

	secret, err := newSecret(t.FileID)
	if err != nil {
		t.finishError(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		return
	}

	shared := &SharedFile{
		GroupID:    t.GroupID,
		FileID:     t.FileID,
		Name:       t.Name,
		Size:       offset,
		Uploader:   uploader,
		URL:        url,
		Secret:     secret,
		Checksum:   hex.EncodeToString(hasher.Sum(nil)),
		UploadedAt: time.Now(),
	}
	m.RecordSharedFile(shared)

	t.finishComplete(Result{File: shared})
}

// Download starts an asynchronous download of a shared file to destPath.
// When the file is known locally the secret is checked up front;
// otherwise the blob store is the authority and rejects bad secrets.
func (m *Manager) Download(ctx context.Context, groupID, fileID, secret, destPath string, cb Callbacks) (*Transfer, error) {
	cleanDest, err := ValidatePath(destPath)
	if err != nil {
		return nil, err
	}

	known, _ := m.SharedFile(groupID, fileID)
	if known != nil && known.Secret != "" && known.Secret != secret {
		return nil, ErrSecretMismatch
	}

	var size int64
	name := fileID
	if known != nil {
		size = known.Size
		name = known.Name
	}

	workerCtx, cancel := context.WithCancel(ctx)
	t := newTransfer(uuid.NewString(), groupID, fileID, name, size, DirectionDownload, cb, cancel)
	m.register(t)

	go m.runDownload(workerCtx, t, known, secret, cleanDest)
	return t, nil
}

func (m *Manager) runDownload(ctx context.Context, t *Transfer, known *SharedFile, secret, destPath string) {
	m.sem <- struct{}{}
	defer func() { <-m.sem }()

	if err := ctx.Err(); err != nil {
		t.finishCanceled()
		return
	}
	t.begin()

	size, err := m.store.Stat(ctx, t.FileID, secret)
	if err != nil {
		m.finishWorkerError(ctx, t, fmt.Errorf("stat remote file: %w", err))
		return
	}
	t.setSize(size)

	f, err := os.Create(destPath)
	if err != nil {
		t.finishError(fmt.Errorf("%w: %v", ErrTransferFailed, err))
		return
	}
	defer f.Close()

	var offset int64
	for offset < size {
		if err := ctx.Err(); err != nil {
			t.finishCanceled()
			return
		}

		want := int64(m.chunkSize)
		if remaining := size - offset; remaining < want {
			want = remaining
		}
		chunk, getErr := m.store.Get(ctx, t.FileID, secret, offset, want)
		if len(chunk) > 0 {
			if _, err := f.Write(chunk); err != nil {
				t.finishError(fmt.Errorf("%w: %v", ErrTransferFailed, err))
				return
			}
			offset += int64(len(chunk))
			t.reportProgress(int64(len(chunk)))
		}
		if getErr == io.EOF {
			break
		}
		if getErr != nil {
			m.finishWorkerError(ctx, t, fmt.Errorf("fetch chunk at %d: %w", offset, getErr))
			return
		}
	}

	t.finishComplete(Result{File: known, LocalPath: destPath})
}

// finishWorkerError maps context cancellation to the canceled state and
// everything else to the failed state.
func (m *Manager) finishWorkerError(ctx context.Context, t *Transfer, err error) {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		t.finishCanceled()
		return
	}
	t.finishError(fmt.Errorf("%w: %v", ErrTransferFailed, err))
}

// Cancel requests cancellation of the transfer with the given ID.
// Canceling a terminal transfer is a no-op.
func (m *Manager) Cancel(transferID string) error {
	t, err := m.Transfer(transferID)
	if err != nil {
		return err
	}
	t.Cancel()
	return nil
}

// Transfer returns the tracked transfer with the given ID.
func (m *Manager) Transfer(transferID string) (*Transfer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.transfers[transferID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransferNotFound, transferID)
	}
	return t, nil
}

// ActiveTransfers returns all transfers that have not reached a
// terminal state.
func (m *Manager) ActiveTransfers() []*Transfer {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var active []*Transfer
	for _, t := range m.transfers {
		if !t.State().Terminal() {
			active = append(active, t)
		}
	}
	return active
}

// RecordSharedFile inserts a shared file record. Records are
// append-only; a record with an existing file ID is ignored so that a
// replayed upload event cannot rewrite history.
func (m *Manager) RecordSharedFile(shared *SharedFile) {
	m.mu.Lock()
	defer m.mu.Unlock()

	group, ok := m.shared[shared.GroupID]
	if !ok {
		group = make(map[string]*SharedFile)
		m.shared[shared.GroupID] = group
	}
	if _, exists := group[shared.FileID]; exists {
		return
	}
	group[shared.FileID] = shared

	logrus.WithFields(logrus.Fields{
		"function": "RecordSharedFile",
		"group_id": shared.GroupID,
		"file_id":  shared.FileID,
		"size":     shared.Size,
	}).Debug("Shared file recorded")
}

// SharedFile returns the shared file record for the given group and
// file ID.
func (m *Manager) SharedFile(groupID, fileID string) (*SharedFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if shared, ok := m.shared[groupID][fileID]; ok {
		return shared, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
}

// SharedFiles returns one page of the group's shared files, newest
// first. Pages are 1-based and capped by the shared file page limit.
func (m *Manager) SharedFiles(groupID string, page, pageSize int) ([]*SharedFile, int, error) {
	if err := limits.ValidateSharedFilePage(page, pageSize); err != nil {
		return nil, 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	group := m.shared[groupID]
	all := make([]*SharedFile, 0, len(group))
	for _, shared := range group {
		all = append(all, shared)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].UploadedAt.Equal(all[j].UploadedAt) {
			return all[i].UploadedAt.After(all[j].UploadedAt)
		}
		return all[i].FileID < all[j].FileID
	})

	lo, hi := limits.PageBounds(len(all), page, pageSize, 1)
	return all[lo:hi], len(all), nil
}

// DeleteShared removes a shared file record and its stored blob.
func (m *Manager) DeleteShared(ctx context.Context, groupID, fileID string) error {
	m.mu.Lock()
	group := m.shared[groupID]
	if _, ok := group[fileID]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrFileNotFound, fileID)
	}
	delete(group, fileID)
	if len(group) == 0 {
		delete(m.shared, groupID)
	}
	m.mu.Unlock()

	if err := m.store.Delete(ctx, fileID); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "DeleteShared",
			"group_id": groupID,
			"file_id":  fileID,
			"error":    err,
		}).Warn("Blob deletion failed after record removal")
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// DropGroup discards all shared file records for a group. Used when the
// local user leaves or the group is destroyed.
func (m *Manager) DropGroup(groupID string) {
	m.mu.Lock()
	delete(m.shared, groupID)
	m.mu.Unlock()
}

func (m *Manager) register(t *Transfer) {
	m.mu.Lock()
	m.transfers[t.ID] = t
	m.mu.Unlock()
}

// newSecret derives a random access secret bound to the file ID.
func newSecret(fileID string) (string, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sum := blake2b.Sum256(append(nonce, fileID...))
	return hex.EncodeToString(sum[:16]), nil
}

package groupcore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/groupcore/file"
)

func recordSharedFile(c *Client, groupID, fileID, uploader string) {
	c.files.RecordSharedFile(&file.SharedFile{
		GroupID:    groupID,
		FileID:     fileID,
		Name:       fileID + ".bin",
		Size:       4,
		Uploader:   uploader,
		URL:        "null://" + fileID,
		Secret:     "s-" + fileID,
		UploadedAt: time.Now(),
	})
}

func TestSharedFileOpsRequireMembership(t *testing.T) {
	c, _ := newTestClient(t)

	// A pending invitation leaves a skeleton group alice is not in yet.
	require.NoError(t, c.ApplyEvent(inbound(OpInviteToJoin, "remote-group", "bob", "alice")))

	_, err := c.UploadSharedFile(context.Background(), "remote-group", "/tmp/report.pdf", file.Callbacks{})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = c.DownloadSharedFile(context.Background(), "remote-group", "f1", "secret", "/tmp/out", file.Callbacks{})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, _, err = c.SharedFiles("remote-group", 1, 10)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = c.UploadSharedFile(context.Background(), "no-such-group", "/tmp/report.pdf", file.Callbacks{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSharedFilesPageValidation(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c)

	// Pagination bounds are checked before the group lookup.
	_, _, err := c.SharedFiles("no-such-group", 0, 10)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, _, err = c.SharedFiles(groupID, 1, 11)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	files, total, err := c.SharedFiles(groupID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Zero(t, total)
}

func TestDeleteSharedFilePermissions(t *testing.T) {
	c, _ := newTestClient(t)
	groupID := newTestGroup(t, c, "u1", "u2")
	recordSharedFile(c, groupID, "f1", "u1")
	recordSharedFile(c, groupID, "f2", "u1")

	// A plain member cannot delete someone else's file.
	err := c.deleteSharedFile(context.Background(), "u2", groupID, "f1")
	assert.ErrorIs(t, err, ErrPermissionDenied)

	// The uploader can delete their own file.
	require.NoError(t, c.deleteSharedFile(context.Background(), "u1", groupID, "f1"))

	// The owner can delete anyone's file.
	require.NoError(t, c.DeleteSharedFile(context.Background(), groupID, "f2"))

	err = c.DeleteSharedFile(context.Background(), groupID, "f2")
	assert.ErrorIs(t, err, ErrNotFound)

	// Outsiders cannot delete at all.
	recordSharedFile(c, groupID, "f3", "u1")
	err = c.deleteSharedFile(context.Background(), "ghost", groupID, "f3")
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestCancelTransferUnknown(t *testing.T) {
	c, _ := newTestClient(t)
	assert.ErrorIs(t, c.CancelTransfer("no-such-transfer"), ErrNotFound)
	assert.Empty(t, c.ActiveTransfers())
}

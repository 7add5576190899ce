package groupcore

import (
	"context"
	"errors"
	"fmt"

	"github.com/opd-ai/groupcore/file"
	"github.com/opd-ai/groupcore/limits"
	"github.com/opd-ai/groupcore/permission"
)

// UploadSharedFile starts an asynchronous upload of the file at path
// into the group's shared files. Members only. Progress and the
// terminal outcome are delivered through the callbacks; on success the
// new shared file record reaches OnComplete.
func (c *Client) UploadSharedFile(ctx context.Context, groupID, path string, callbacks file.Callbacks) (*file.Transfer, error) {
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	isMember := g.members.IsMember(c.selfID)
	g.mu.Unlock()
	if !isMember {
		return nil, fmt.Errorf("%w: uploading requires membership", ErrPermissionDenied)
	}
	return c.files.Upload(ctx, groupID, path, c.selfID, callbacks)
}

// DownloadSharedFile starts an asynchronous download of a shared file
// to destPath using its access secret. Members only.
func (c *Client) DownloadSharedFile(ctx context.Context, groupID, fileID, secret, destPath string, callbacks file.Callbacks) (*file.Transfer, error) {
	g, err := c.group(groupID)
	if err != nil {
		return nil, err
	}
	g.mu.Lock()
	isMember := g.members.IsMember(c.selfID)
	g.mu.Unlock()
	if !isMember {
		return nil, fmt.Errorf("%w: downloading requires membership", ErrPermissionDenied)
	}
	return c.files.Download(ctx, groupID, fileID, secret, destPath, callbacks)
}

// CancelTransfer requests cancellation of an in-flight transfer.
// Canceling a transfer that already reached a terminal state is a
// no-op.
func (c *Client) CancelTransfer(transferID string) error {
	if err := c.files.Cancel(transferID); err != nil {
		if errors.Is(err, file.ErrTransferNotFound) {
			return fmt.Errorf("%w: transfer %s", ErrNotFound, transferID)
		}
		return err
	}
	return nil
}

// SharedFiles returns one page of the group's shared file records,
// newest first, along with the total count. Pages are 1-based with at
// most 10 entries. Members only.
func (c *Client) SharedFiles(groupID string, page, pageSize int) ([]*file.SharedFile, int, error) {
	if err := limits.ValidateSharedFilePage(page, pageSize); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}
	g, err := c.group(groupID)
	if err != nil {
		return nil, 0, err
	}
	g.mu.Lock()
	isMember := g.members.IsMember(c.selfID)
	g.mu.Unlock()
	if !isMember {
		return nil, 0, fmt.Errorf("%w: shared file listing requires membership", ErrPermissionDenied)
	}
	return c.files.SharedFiles(groupID, page, pageSize)
}

// DeleteSharedFile removes a shared file record and its stored blob.
// The uploader may delete their own file; deleting another member's
// file requires admin.
func (c *Client) DeleteSharedFile(ctx context.Context, groupID, fileID string) error {
	return c.deleteSharedFile(ctx, c.selfID, groupID, fileID)
}

func (c *Client) deleteSharedFile(ctx context.Context, actor, groupID, fileID string) error {
	g, err := c.group(groupID)
	if err != nil {
		return err
	}

	shared, err := c.files.SharedFile(groupID, fileID)
	if err != nil {
		return fmt.Errorf("%w: file %s", ErrNotFound, fileID)
	}

	g.mu.Lock()
	role := g.members.RoleOf(actor)
	g.mu.Unlock()
	if role == permission.RoleNone {
		return fmt.Errorf("%w: deleting shared files requires membership", ErrPermissionDenied)
	}
	if shared.Uploader != actor && !permission.CanPerform(role, permission.OpDeleteSharedFile) {
		return fmt.Errorf("%w: only the uploader or an admin may delete", ErrPermissionDenied)
	}

	return c.files.DeleteShared(ctx, groupID, fileID)
}

// ActiveTransfers returns the transfers that have not reached a
// terminal state.
func (c *Client) ActiveTransfers() []*file.Transfer {
	return c.files.ActiveTransfers()
}

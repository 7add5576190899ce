package groupcore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/groupcore/file"
	"github.com/opd-ai/groupcore/transport"
	"github.com/opd-ai/groupcore/workflow"
)

// Client is the SDK entry point. It acts as the user configured in
// Options.SelfID and composes the governance subsystems with the
// attachment transfer pipeline.
type Client struct {
	selfID   string
	options  *Options
	sink     transport.EventSink
	receipts transport.ReceiptSource

	files     *file.Manager
	workflows *workflow.Engine

	groupsMu sync.RWMutex
	groups   map[string]*groupState

	callbackMu          sync.RWMutex
	groupEventCallback  func(*Event)
	multiDeviceCallback func(*Event)
}

// New creates a Client from the given options and collaborators. The
// sink receives outbound notification events; passing nil discards
// them. The blob store backs attachment transfers and is required. The
// receipt source answers read-receipt queries and may be nil if
// receipts are unused.
func New(options *Options, sink transport.EventSink, blobs transport.BlobStore, receipts transport.ReceiptSource) (*Client, error) {
	if options == nil {
		options = NewOptions()
	}
	if options.SelfID == "" {
		return nil, fmt.Errorf("%w: options.SelfID is required", ErrInvalidArgument)
	}
	if blobs == nil {
		return nil, fmt.Errorf("%w: a blob store is required", ErrInvalidArgument)
	}
	if sink == nil {
		sink = transport.Discard
	}

	logrus.WithFields(logrus.Fields{
		"function": "New",
		"self_id":  options.SelfID,
	}).Info("Creating group client")

	return &Client{
		selfID:   options.SelfID,
		options:  options,
		sink:     sink,
		receipts: receipts,
		files: file.NewManager(blobs, file.Config{
			ChunkSize:     options.TransferChunkSize,
			MaxConcurrent: options.MaxConcurrentTransfers,
		}),
		workflows: workflow.NewEngine(),
		groups:    make(map[string]*groupState),
	}, nil
}

// SelfID returns the user ID this client acts as.
func (c *Client) SelfID() string {
	return c.selfID
}

// OnGroupEvent registers the callback invoked for every group
// notification event this client emits or applies.
func (c *Client) OnGroupEvent(callback func(*Event)) {
	c.callbackMu.Lock()
	c.groupEventCallback = callback
	c.callbackMu.Unlock()
}

// OnMultiDeviceEvent registers the callback invoked for events mirrored
// to the acting user's other sessions.
func (c *Client) OnMultiDeviceEvent(callback func(*Event)) {
	c.callbackMu.Lock()
	c.multiDeviceCallback = callback
	c.callbackMu.Unlock()
}

// group returns the state aggregate for groupID.
func (c *Client) group(groupID string) (*groupState, error) {
	c.groupsMu.RLock()
	defer c.groupsMu.RUnlock()
	g, ok := c.groups[groupID]
	if !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	return g, nil
}

// dropGroup removes all local state for a group.
func (c *Client) dropGroup(groupID string) {
	c.groupsMu.Lock()
	delete(c.groups, groupID)
	c.groupsMu.Unlock()
	c.workflows.DropGroup(groupID)
	c.files.DropGroup(groupID)
}

// newEvent stamps a fresh outbound event.
func (c *Client) newEvent(op EventOp, groupID, actor string) *Event {
	return &Event{
		Op:        op,
		GroupID:   groupID,
		Actor:     actor,
		Timestamp: time.Now(),
	}
}

// emit publishes an event to the sink and mirrors it to the local
// group-event callback. Publish failures are surfaced as
// ErrRequestFailed; local state has already been mutated by the time
// emit runs, so callers return the error without rolling back.
func (c *Client) emit(ctx context.Context, ev *Event) error {
	c.callbackMu.RLock()
	callback := c.groupEventCallback
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(ev)
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("%w: encode event: %v", ErrRequestFailed, err)
	}
	if err := c.sink.Publish(ctx, ev.Recipients, payload); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "emit",
			"group_id": ev.GroupID,
			"op":       ev.Op.String(),
			"error":    err,
		}).Warn("Event publish failed")
		return fmt.Errorf("%w: publish %s: %v", ErrRequestFailed, ev.Op, err)
	}
	return nil
}

// emitEach publishes the events collected during a bulk operation,
// recording publish failures on the matching result. Bulk operations
// mutate under the group lock but emit here after releasing it, so a
// group-event callback may query the same group without deadlocking.
func (c *Client) emitEach(ctx context.Context, events []*Event, results []MemberResult) {
	for i, ev := range events {
		if ev == nil || results[i].Err != nil {
			continue
		}
		results[i].Err = c.emit(ctx, ev)
	}
}

// emitMultiDevice mirrors an event to the acting user's other sessions.
func (c *Client) emitMultiDevice(ev *Event) {
	c.callbackMu.RLock()
	callback := c.multiDeviceCallback
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(ev)
	}
}

// MessageReadUsers returns the members that have read the given
// message, delegating to the configured receipt source.
func (c *Client) MessageReadUsers(ctx context.Context, groupID, messageID string) ([]string, error) {
	if c.receipts == nil {
		return nil, fmt.Errorf("%w: no receipt source configured", ErrRequestFailed)
	}
	if _, err := c.group(groupID); err != nil {
		return nil, err
	}
	users, err := c.receipts.ReadUsers(ctx, groupID, messageID)
	if err != nil {
		return nil, fmt.Errorf("%w: read receipts: %v", ErrRequestFailed, err)
	}
	return users, nil
}

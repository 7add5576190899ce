package groupcore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/opd-ai/groupcore/transport"
)

// captureSink records every published event for inspection.
type captureSink struct {
	mu     sync.Mutex
	events []*Event
	err    error
}

func (s *captureSink) Publish(ctx context.Context, recipients []string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	ev.Recipients = recipients
	s.events = append(s.events, &ev)
	return nil
}

func (s *captureSink) all() []*Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Event(nil), s.events...)
}

func (s *captureSink) byOp(op EventOp) []*Event {
	var matched []*Event
	for _, ev := range s.all() {
		if ev.Op == op {
			matched = append(matched, ev)
		}
	}
	return matched
}

func (s *captureSink) last(t *testing.T) *Event {
	t.Helper()
	events := s.all()
	if len(events) == 0 {
		t.Fatal("no events published")
	}
	return events[len(events)-1]
}

func (s *captureSink) reset() {
	s.mu.Lock()
	s.events = nil
	s.mu.Unlock()
}

// nullBlob is a blob store stub for tests that never transfer.
type nullBlob struct{}

var _ transport.BlobStore = nullBlob{}

func (nullBlob) Put(ctx context.Context, fileID string, offset int64, chunk []byte) error {
	return nil
}

func (nullBlob) Commit(ctx context.Context, fileID string) (string, error) {
	return "null://" + fileID, nil
}

func (nullBlob) Get(ctx context.Context, fileID, secret string, offset, size int64) ([]byte, error) {
	return nil, io.EOF
}

func (nullBlob) Stat(ctx context.Context, fileID, secret string) (int64, error) {
	return 0, errors.New("no such blob")
}

func (nullBlob) Delete(ctx context.Context, fileID string) error {
	return nil
}

// staticReceipts answers read-receipt queries with a fixed user list.
type staticReceipts struct {
	users []string
	err   error
}

func (r staticReceipts) ReadUsers(ctx context.Context, groupID, messageID string) ([]string, error) {
	return r.users, r.err
}

// newTestClient creates a client acting as "alice" with a capture sink.
func newTestClient(t *testing.T) (*Client, *captureSink) {
	t.Helper()
	sink := &captureSink{}
	opts := NewOptions()
	opts.SelfID = "alice"
	client, err := New(opts, sink, nullBlob{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	return client, sink
}

// newTestGroup creates a group owned by alice with the given members.
func newTestGroup(t *testing.T, c *Client, members ...string) string {
	t.Helper()
	info, err := c.CreateGroup(context.Background(), CreateGroupRequest{
		Name:    "engineering",
		Members: members,
	})
	if err != nil {
		t.Fatal(err)
	}
	return info.ID
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}

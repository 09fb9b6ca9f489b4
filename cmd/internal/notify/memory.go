package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// MemoryTransport is a dev/test transport that records published events
// in-process instead of pushing them anywhere.
type MemoryTransport struct {
	mu        sync.Mutex
	published []Published
	failWith  error
}

// Published is one recorded publish, with the envelope decoded.
type Published struct {
	Channel string
	Event   string
	Payload json.RawMessage
}

// NewMemoryTransport constructs an empty recording transport.
func NewMemoryTransport() *MemoryTransport {
	return &MemoryTransport{}
}

var _ Transport = (*MemoryTransport)(nil)

// Publish records the event, or returns the configured error.
func (t *MemoryTransport) Publish(_ context.Context, channel string, data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.failWith != nil {
		return t.failWith
	}

	var env struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return errors.New("notify: malformed envelope")
	}
	t.published = append(t.published, Published{
		Channel: channel,
		Event:   env.Event,
		Payload: env.Payload,
	})
	return nil
}

// Close is a no-op.
func (t *MemoryTransport) Close() error { return nil }

// FailWith makes every subsequent Publish return err. Pass nil to recover.
func (t *MemoryTransport) FailWith(err error) {
	t.mu.Lock()
	t.failWith = err
	t.mu.Unlock()
}

// Published returns a snapshot of everything recorded so far.
func (t *MemoryTransport) Published() []Published {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Published(nil), t.published...)
}

// PublishedTo returns recorded events for one channel.
func (t *MemoryTransport) PublishedTo(channel string) []Published {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []Published
	for _, p := range t.published {
		if p.Channel == channel {
			out = append(out, p)
		}
	}
	return out
}

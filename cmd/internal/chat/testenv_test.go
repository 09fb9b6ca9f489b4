package chat

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"parley/cmd/internal/notify"
)

// fixture bundles the in-memory store, recording transport, and the three
// core components over them.
type fixture struct {
	store     *MemoryStore
	transport *notify.MemoryTransport
	fanout    *notify.Fanout

	directory  *Directory
	ingestor   *Ingestor
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := NewMemoryStore()
	transport := notify.NewMemoryTransport()
	fanout := notify.NewFanout(log, transport)

	directory, err := NewDirectory(log, store, fanout)
	if err != nil {
		t.Fatalf("new directory: %v", err)
	}
	ingestor, err := NewIngestor(log, store, fanout)
	if err != nil {
		t.Fatalf("new ingestor: %v", err)
	}
	reconciler, err := NewReconciler(log, store, fanout)
	if err != nil {
		t.Fatalf("new reconciler: %v", err)
	}

	return &fixture{
		store:      store,
		transport:  transport,
		fanout:     fanout,
		directory:  directory,
		ingestor:   ingestor,
		reconciler: reconciler,
	}
}

// seedUsers provisions the standard test cast: alice, bob, carol, dave.
func (f *fixture) seedUsers(t *testing.T) {
	t.Helper()

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		err := f.store.PutUser(context.Background(), User{
			ID:          id,
			DisplayName: id,
			Email:       id + "@example.com",
			CreatedAt:   now,
		})
		if err != nil {
			t.Fatalf("seed user %s: %v", id, err)
		}
	}
}

// publishCount drains the fanout and returns how many events have been
// recorded so far.
func (f *fixture) publishCount() int {
	f.fanout.Wait()
	return len(f.transport.Published())
}

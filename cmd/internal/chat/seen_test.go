package chat

import (
	"context"
	"errors"
	"testing"

	"parley/cmd/internal/notify"
)

func TestMarkConversationSeen_Flow(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	conv, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	msg, err := f.ingestor.Append(ctx, "alice", conv.ID, "hi", "")
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	updated, err := f.reconciler.MarkConversationSeen(ctx, "bob", conv.ID)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if len(updated) != 1 || updated[0].ID != msg.ID {
		t.Fatalf("expected [%s], got %v", msg.ID, updated)
	}
	if !updated[0].SeenBySet("alice") || !updated[0].SeenBySet("bob") {
		t.Fatalf("seenBy after mark: %v", updated[0].SeenBy)
	}

	// Second call: nothing unseen, empty result.
	again, err := f.reconciler.MarkConversationSeen(ctx, "bob", conv.ID)
	if err != nil {
		t.Fatalf("second mark seen: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("expected empty batch, got %v", again)
	}
}

func TestMarkConversationSeen_IdempotentNoRepublish(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	conv, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.ingestor.Append(ctx, "alice", conv.ID, "hi", ""); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := f.reconciler.MarkConversationSeen(ctx, "bob", conv.ID); err != nil {
		t.Fatalf("first mark seen: %v", err)
	}
	after := f.publishCount()

	// Reopening an already-read conversation must not write or notify.
	if _, err := f.reconciler.MarkConversationSeen(ctx, "bob", conv.ID); err != nil {
		t.Fatalf("second mark seen: %v", err)
	}
	if got := f.publishCount(); got != after {
		t.Fatalf("no-op mark seen published %d events", got-after)
	}
}

func TestMarkConversationSeen_Monotonic(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	conv, err := f.directory.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := f.ingestor.Append(ctx, "alice", conv.ID, "hi", ""); err != nil {
		t.Fatalf("append: %v", err)
	}

	if _, err := f.reconciler.MarkConversationSeen(ctx, "bob", conv.ID); err != nil {
		t.Fatalf("bob mark seen: %v", err)
	}
	updated, err := f.reconciler.MarkConversationSeen(ctx, "carol", conv.ID)
	if err != nil {
		t.Fatalf("carol mark seen: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected 1 updated message, got %d", len(updated))
	}
	// Carol's union must not evict bob or the sender.
	got := updated[0]
	for _, want := range []string{"alice", "bob", "carol"} {
		if !got.SeenBySet(want) {
			t.Fatalf("seenBy lost %s: %v", want, got.SeenBy)
		}
	}
}

func TestMarkConversationSeen_NotFoundPolicy(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	conv, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	// Non-member and absent conversation both surface as not-found.
	if _, err := f.reconciler.MarkConversationSeen(ctx, "carol", conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("non-member: expected ErrNotFound, got %v", err)
	}
	if _, err := f.reconciler.MarkConversationSeen(ctx, "alice", "no-such-conversation"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("absent: expected ErrNotFound, got %v", err)
	}
}

func TestMarkConversationSeen_EmptyConversation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	conv, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	updated, err := f.reconciler.MarkConversationSeen(ctx, "bob", conv.ID)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if len(updated) != 0 {
		t.Fatalf("expected empty batch, got %v", updated)
	}
}

func TestMarkConversationSeen_BroadcastWhenNewestUnseen(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	conv, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if _, err := f.ingestor.Append(ctx, "alice", conv.ID, "hi", ""); err != nil {
		t.Fatalf("append: %v", err)
	}
	f.fanout.Wait()
	before := countEvents(f.transport.PublishedTo(conv.ID), notify.EventMessageUpdate)

	if _, err := f.reconciler.MarkConversationSeen(ctx, "bob", conv.ID); err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	f.fanout.Wait()

	after := countEvents(f.transport.PublishedTo(conv.ID), notify.EventMessageUpdate)
	if after != before+1 {
		t.Fatalf("expected message:update broadcast, got %d new", after-before)
	}
}

func TestMarkConversationSeen_SuppressBroadcastWhenNewestOwn(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	conv, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// alice's message is unseen by bob, but bob's own reply is the newest
	// message, so bob's catch-up carries nothing new for other members.
	if _, err := f.ingestor.Append(ctx, "alice", conv.ID, "hi", ""); err != nil {
		t.Fatalf("append alice: %v", err)
	}
	if _, err := f.ingestor.Append(ctx, "bob", conv.ID, "yo", ""); err != nil {
		t.Fatalf("append bob: %v", err)
	}
	f.fanout.Wait()
	before := countEvents(f.transport.PublishedTo(conv.ID), notify.EventMessageUpdate)
	personalBefore := countEvents(f.transport.PublishedTo("bob@example.com"), notify.EventConversationUpdate)

	updated, err := f.reconciler.MarkConversationSeen(ctx, "bob", conv.ID)
	if err != nil {
		t.Fatalf("mark seen: %v", err)
	}
	if len(updated) != 1 {
		t.Fatalf("expected alice's message updated, got %v", updated)
	}
	f.fanout.Wait()

	// Tier (b) suppressed, tier (a) still delivered.
	if after := countEvents(f.transport.PublishedTo(conv.ID), notify.EventMessageUpdate); after != before {
		t.Fatalf("broadcast not suppressed: %d new message:update", after-before)
	}
	if got := countEvents(f.transport.PublishedTo("bob@example.com"), notify.EventConversationUpdate); got != personalBefore+1 {
		t.Fatalf("personal update missing: got %d new", got-personalBefore)
	}
}

func countEvents(events []notify.Published, name string) int {
	var n int
	for _, e := range events {
		if e.Event == name {
			n++
		}
	}
	return n
}

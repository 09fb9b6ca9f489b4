package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"parley/cmd/internal/notify"
)

func TestResolveOrCreateDirect_Dedup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	first, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if first.IsGroup {
		t.Fatalf("direct conversation marked as group")
	}
	if len(first.UserIDs) != 2 {
		t.Fatalf("expected 2 members, got %v", first.UserIDs)
	}

	second, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("dedup violated: %s != %s", second.ID, first.ID)
	}

	// Same pair from the other side resolves to the same conversation.
	reversed, err := f.directory.ResolveOrCreateDirect(ctx, "bob", "alice")
	if err != nil {
		t.Fatalf("reversed resolve: %v", err)
	}
	if reversed.ID != first.ID {
		t.Fatalf("pair is ordered: %s != %s", reversed.ID, first.ID)
	}
}

func TestResolveOrCreateDirect_ConcurrentSamePair(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	const n = 16

	ids := make([]string, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			conv, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob")
			if err != nil {
				t.Errorf("resolve: %v", err)
				return
			}
			ids[i] = conv.ID
		}()
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("racing callers got different conversations: %q vs %q", ids[i], ids[0])
		}
	}
}

func TestResolveOrCreateDirect_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	cases := []struct {
		name   string
		caller string
		other  string
	}{
		{name: "missing other", caller: "alice", other: ""},
		{name: "missing caller", caller: "", other: "bob"},
		{name: "self conversation", caller: "alice", other: "alice"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.directory.ResolveOrCreateDirect(ctx, tc.caller, tc.other)
			if !errors.Is(err, ErrInvalidInput) {
				t.Fatalf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestCreateGroup_Validation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	cases := []struct {
		name    string
		members []string
		group   string
		wantErr error
	}{
		{name: "empty name", members: []string{"bob", "carol"}, group: "", wantErr: ErrInvalidInput},
		{name: "one member", members: []string{"bob"}, group: "trio", wantErr: ErrInvalidInput},
		{name: "duplicate members collapse below minimum", members: []string{"bob", "bob"}, group: "trio", wantErr: ErrInvalidInput},
		{name: "unknown member", members: []string{"bob", "nobody"}, group: "trio", wantErr: ErrNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.directory.CreateGroup(ctx, "alice", tc.members, tc.group)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestCreateGroup_IncludesCallerAndDedups(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	// Caller appears in the member list too; the result must not hold a
	// duplicate.
	conv, err := f.directory.CreateGroup(ctx, "alice", []string{"bob", "carol", "alice"}, "trio")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if !conv.IsGroup {
		t.Fatalf("expected group conversation")
	}
	if conv.Name != "trio" {
		t.Fatalf("name: got %q", conv.Name)
	}
	if len(conv.UserIDs) != 3 {
		t.Fatalf("expected 3 members, got %v", conv.UserIDs)
	}
	for _, want := range []string{"alice", "bob", "carol"} {
		if !conv.HasMember(want) {
			t.Fatalf("missing member %s in %v", want, conv.UserIDs)
		}
	}
}

func TestCreateGroup_AnnouncesToEveryMember(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	if _, err := f.directory.CreateGroup(ctx, "alice", []string{"bob", "carol"}, "trio"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	f.fanout.Wait()

	for _, email := range []string{"alice@example.com", "bob@example.com", "carol@example.com"} {
		got := f.transport.PublishedTo(email)
		if len(got) != 1 {
			t.Fatalf("channel %s: expected 1 event, got %d", email, len(got))
		}
		if got[0].Event != notify.EventConversationNew {
			t.Fatalf("channel %s: expected %s, got %s", email, notify.EventConversationNew, got[0].Event)
		}
	}
}

func TestResolveOrCreateDirect_AnnouncesOnlyOnCreation(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.seedUsers(t)
	ctx := context.Background()

	if _, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob"); err != nil {
		t.Fatalf("create: %v", err)
	}
	created := f.publishCount()
	if created == 0 {
		t.Fatalf("expected conversation:new publishes on creation")
	}

	if _, err := f.directory.ResolveOrCreateDirect(ctx, "alice", "bob"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got := f.publishCount(); got != created {
		t.Fatalf("resolving an existing conversation published %d extra events", got-created)
	}
}

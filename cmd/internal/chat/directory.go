package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"parley/cmd/internal/chat/ids"
	"parley/cmd/internal/notify"
)

// Directory resolves or creates conversations.
//
// The one structural hazard it owns is two callers racing to create the same
// one-to-one conversation: the store's uniqueness invariant on the unordered
// pair makes the loser's insert fail with ErrConflict, and the loser then
// re-reads and returns the winner's row.
type Directory struct {
	log    *slog.Logger
	store  Store
	fanout *notify.Fanout
}

// NewDirectory constructs a Directory.
func NewDirectory(log *slog.Logger, store Store, fanout *notify.Fanout) (*Directory, error) {
	if store == nil || fanout == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}
	return &Directory{log: log, store: store, fanout: fanout}, nil
}

// ResolveOrCreateDirect returns the one-to-one conversation between caller
// and other, creating it if absent. Repeated and concurrent calls for the
// same pair always yield the same conversation.
func (d *Directory) ResolveOrCreateDirect(ctx context.Context, callerID, otherID string) (Conversation, error) {
	if d == nil || d.store == nil {
		return Conversation{}, ErrInvalidInput
	}
	callerID = strings.TrimSpace(callerID)
	otherID = strings.TrimSpace(otherID)
	if callerID == "" || otherID == "" || callerID == otherID {
		return Conversation{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	existing, err := d.store.FindDirectConversation(ctx, callerID, otherID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Conversation{}, err
	}

	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Conversation{}, err
	}

	created, err := d.store.CreateConversation(ctx, CreateConversationInput{
		ID:      id,
		IsGroup: false,
		UserIDs: normalizeMembers([]string{callerID, otherID}),
		Now:     now,
	})
	if errors.Is(err, ErrConflict) {
		// Lost the creation race: the pair key already exists, so the
		// winner's row is now readable.
		d.log.Info("chat.direct.create_race_lost", "pair", PairKey(callerID, otherID))
		return d.store.FindDirectConversation(ctx, callerID, otherID)
	}
	if err != nil {
		return Conversation{}, err
	}

	d.log.Info("chat.direct.created", "conversation_id", created.ID)
	d.announceConversation(ctx, created)
	return created, nil
}

// CreateGroup creates a group conversation containing memberIDs plus the
// caller.
func (d *Directory) CreateGroup(ctx context.Context, callerID string, memberIDs []string, name string) (Conversation, error) {
	if d == nil || d.store == nil {
		return Conversation{}, ErrInvalidInput
	}
	callerID = strings.TrimSpace(callerID)
	name = strings.TrimSpace(name)
	members := normalizeMembers(memberIDs)
	if callerID == "" || name == "" || len(members) < 2 {
		return Conversation{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	// Member IDs must resolve to stored users before anything is written;
	// notifications are keyed by each member's contact identifier.
	all := normalizeMembers(append(members, callerID))
	if _, err := d.store.ListUsers(ctx, all); err != nil {
		if errors.Is(err, ErrNotFound) {
			return Conversation{}, fmt.Errorf("%w: unknown member", ErrNotFound)
		}
		return Conversation{}, err
	}

	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Conversation{}, err
	}

	created, err := d.store.CreateConversation(ctx, CreateConversationInput{
		ID:      id,
		Name:    name,
		IsGroup: true,
		UserIDs: all,
		Now:     now,
	})
	if err != nil {
		return Conversation{}, err
	}

	d.log.Info("chat.group.created", "conversation_id", created.ID, "members", len(created.UserIDs))
	d.announceConversation(ctx, created)
	return created, nil
}

// announceConversation publishes conversation:new to every member's personal
// channel with the expanded member list. Fanout only; a failed user lookup
// here is logged and swallowed like any other notification failure.
func (d *Directory) announceConversation(ctx context.Context, conv Conversation) {
	users, err := d.store.ListUsers(ctx, conv.UserIDs)
	if err != nil {
		d.log.Warn("chat.conversation.announce.expand_fail", "conversation_id", conv.ID, "err", err)
		return
	}
	payload := conversationPayload(conv, users)
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		d.fanout.Publish(u.Email, notify.EventConversationNew, payload)
	}
}

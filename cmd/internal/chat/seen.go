package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"parley/cmd/internal/notify"
)

// seenUpdateParallelism bounds concurrent seen-set writes for one call.
const seenUpdateParallelism = 8

// Reconciler computes and persists the minimal read-state delta per user per
// conversation.
//
// The per-(message, user) state machine has two states, Unseen and Seen, and
// one transition: Unseen -> Seen when a non-sender member marks the
// conversation. The transition is idempotent and never reversed, so every
// persisted update is a commutative set-union that is safe under races with
// other readers.
type Reconciler struct {
	log    *slog.Logger
	store  Store
	fanout *notify.Fanout
}

// NewReconciler constructs a Reconciler.
func NewReconciler(log *slog.Logger, store Store, fanout *notify.Fanout) (*Reconciler, error) {
	if store == nil || fanout == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reconciler{log: log, store: store, fanout: fanout}, nil
}

// MarkConversationSeen marks every message the caller has not yet seen and
// returns the updated messages.
//
// When the caller has already seen everything, the call performs no writes
// and no publishes. Without that short-circuit every reopen of an
// already-read conversation would trigger a notification storm.
//
// Absent conversations and non-member callers both get ErrNotFound.
func (rc *Reconciler) MarkConversationSeen(ctx context.Context, callerID, conversationID string) ([]Message, error) {
	if rc == nil || rc.store == nil {
		return nil, ErrInvalidInput
	}
	callerID = strings.TrimSpace(callerID)
	conversationID = strings.TrimSpace(conversationID)
	if callerID == "" || conversationID == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	conv, err := rc.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.HasMember(callerID) {
		return nil, ErrNotFound
	}

	msgs, err := rc.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return []Message{}, nil
	}

	// Unseen = not in seenBy and not the caller's own message; a sender's
	// own messages are implicitly seen.
	var unseen []Message
	for _, m := range msgs {
		if m.SenderID == callerID || m.SeenBySet(callerID) {
			continue
		}
		unseen = append(unseen, m)
	}
	if len(unseen) == 0 {
		return []Message{}, nil
	}

	// Messages are ordered ASC, so the last one is the newest. If the
	// caller already had it in seenBy before this call, the batch carries
	// no new information for other participants and the conversation-wide
	// broadcast is suppressed (the personal update still goes out).
	newest := msgs[len(msgs)-1]
	broadcast := !(newest.SenderID == callerID || newest.SeenBySet(callerID))

	updated := make([]Message, len(unseen))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(seenUpdateParallelism)
	for i, m := range unseen {
		g.Go(func() error {
			got, err := rc.store.MarkMessageSeen(gctx, m.ID, callerID)
			if err != nil {
				return fmt.Errorf("mark seen %s: %w", m.ID, err)
			}
			updated[i] = got
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Partial failure: some unions may have landed, which is harmless
		// (re-running converges), but the caller must know the batch did
		// not complete.
		rc.log.Error("chat.seen.partial_fail", "conversation_id", conversationID, "user_id", callerID, "err", err)
		return nil, err
	}

	rc.log.Info("chat.seen.updated",
		"conversation_id", conversationID,
		"user_id", callerID,
		"messages", len(updated),
	)
	rc.announceSeen(ctx, conv, callerID, updated, broadcast)
	return updated, nil
}

// announceSeen publishes the two notification tiers for a non-empty seen
// delta: conversation:update to the caller's personal channel, and, unless
// suppressed, message:update on the conversation channel.
func (rc *Reconciler) announceSeen(ctx context.Context, conv Conversation, callerID string, updated []Message, broadcast bool) {
	users, err := rc.store.ListUsers(ctx, conv.UserIDs)
	if err != nil {
		rc.log.Warn("chat.seen.announce.expand_fail", "conversation_id", conv.ID, "err", err)
		return
	}
	byID := usersByID(users)

	caller, ok := byID[callerID]
	if ok && caller.Email != "" {
		rc.fanout.Publish(caller.Email, notify.EventConversationUpdate,
			conversationUpdatePayload(conv.ID, updated, byID))
	}

	if !broadcast {
		return
	}
	payload := make([]messageResponse, 0, len(updated))
	for _, m := range updated {
		payload = append(payload, messagePayload(m, byID))
	}
	rc.fanout.Publish(conv.ID, notify.EventMessageUpdate, payload)
}

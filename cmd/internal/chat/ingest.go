package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"parley/cmd/internal/chat/ids"
	"parley/cmd/internal/notify"
)

// Ingestor appends messages to conversations.
//
// Membership policy: a caller that is not a member gets ErrForbidden, and an
// absent conversation is reported the same way. Collapsing the two keeps a
// non-member from probing which conversation IDs exist.
type Ingestor struct {
	log    *slog.Logger
	store  Store
	fanout *notify.Fanout
}

// NewIngestor constructs an Ingestor.
func NewIngestor(log *slog.Logger, store Store, fanout *notify.Fanout) (*Ingestor, error) {
	if store == nil || fanout == nil {
		return nil, ErrInvalidInput
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{log: log, store: store, fanout: fanout}, nil
}

// Append creates a message in the conversation. At least one of body and
// imageURL must be non-empty. On success the conversation's recency is
// bumped and message:new fans out on the conversation channel.
func (ing *Ingestor) Append(ctx context.Context, callerID, conversationID, body, imageURL string) (Message, error) {
	if ing == nil || ing.store == nil {
		return Message{}, ErrInvalidInput
	}
	callerID = strings.TrimSpace(callerID)
	conversationID = strings.TrimSpace(conversationID)
	body = strings.TrimSpace(body)
	imageURL = strings.TrimSpace(imageURL)
	if callerID == "" || conversationID == "" {
		return Message{}, ErrInvalidInput
	}
	if body == "" && imageURL == "" {
		return Message{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	conv, err := ing.store.GetConversation(ctx, conversationID)
	if errors.Is(err, ErrNotFound) {
		return Message{}, ErrForbidden
	}
	if err != nil {
		return Message{}, err
	}
	if !conv.HasMember(callerID) {
		return Message{}, ErrForbidden
	}

	now := time.Now().UTC()
	id, err := ids.NewULID(now)
	if err != nil {
		return Message{}, err
	}

	msg, err := ing.store.AppendMessage(ctx, AppendMessageInput{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       callerID,
		Body:           body,
		ImageURL:       imageURL,
		Now:            now,
	})
	if err != nil {
		return Message{}, err
	}

	ing.log.Info("chat.message.appended", "conversation_id", conversationID, "message_id", msg.ID)
	ing.announceMessage(ctx, conv, msg)
	return msg, nil
}

// announceMessage publishes message:new on the conversation channel, then a
// conversation:update recency summary to each member's personal channel so
// list views can reorder without refetching.
func (ing *Ingestor) announceMessage(ctx context.Context, conv Conversation, msg Message) {
	users, err := ing.store.ListUsers(ctx, conv.UserIDs)
	if err != nil {
		ing.log.Warn("chat.message.announce.expand_fail", "conversation_id", conv.ID, "err", err)
		return
	}
	byID := usersByID(users)

	ing.fanout.Publish(conv.ID, notify.EventMessageNew, messagePayload(msg, byID))

	summary := conversationUpdatePayload(conv.ID, []Message{msg}, byID)
	for _, u := range users {
		if u.Email == "" {
			continue
		}
		ing.fanout.Publish(u.Email, notify.EventConversationUpdate, summary)
	}
}

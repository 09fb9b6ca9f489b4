package chat

import (
	"context"
	"time"
)

// Store is the persistence boundary for users, conversations, messages, and
// read receipts.
//
// Requirements:
//   - At most one non-group conversation per unordered user pair; a losing
//     concurrent insert fails with ErrConflict so the caller can re-read.
//   - AppendMessage atomically creates the message, seeds its seen set with
//     the sender, and bumps the conversation's last_message_at.
//   - MarkMessageSeen is a set-union update: idempotent, commutative, and
//     safe to apply concurrently for different users on the same message.
//   - ListMessages returns messages ordered by created_at ascending with the
//     full seen set attached.
type Store interface {
	GetUser(ctx context.Context, id string) (User, error)
	ListUsers(ctx context.Context, ids []string) ([]User, error)

	GetConversation(ctx context.Context, id string) (Conversation, error)
	FindDirectConversation(ctx context.Context, userA, userB string) (Conversation, error)
	CreateConversation(ctx context.Context, in CreateConversationInput) (Conversation, error)

	AppendMessage(ctx context.Context, in AppendMessageInput) (Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]Message, error)
	MarkMessageSeen(ctx context.Context, messageID, userID string) (Message, error)

	Close() error
}

// CreateConversationInput describes a conversation insert. UserIDs must
// already be normalized (trimmed, de-duplicated) by the caller; for direct
// conversations it must hold exactly two IDs.
type CreateConversationInput struct {
	ID      string
	Name    string
	IsGroup bool
	UserIDs []string
	Now     time.Time
}

// AppendMessageInput describes a message insert.
type AppendMessageInput struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	ImageURL       string
	Now            time.Time
}

package chat

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is a dev/test fallback when no DB is configured.
// It mirrors the Postgres store's semantics under a single mutex:
//   - direct-pair uniqueness via the pair key (losers get ErrConflict)
//   - append seeds seen with the sender and bumps last_message_at
//   - seen updates are set-union, idempotent
type MemoryStore struct {
	mu            sync.Mutex
	users         map[string]User
	conversations map[string]*memConversation
	messages      map[string]*memMessage
	directPairs   map[string]string // pair key -> conversation id
	byConv        map[string][]string
}

type memConversation struct {
	rec Conversation
}

type memMessage struct {
	rec  Message
	seen map[string]struct{}
}

// NewMemoryStore constructs an empty in-memory Store implementation.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]User),
		conversations: make(map[string]*memConversation),
		messages:      make(map[string]*memMessage),
		directPairs:   make(map[string]string),
		byConv:        make(map[string][]string),
	}
}

// Close closes the store (noop for in-memory).
func (s *MemoryStore) Close() error { return nil }

// PutUser inserts or replaces a user record. User provisioning is external
// in production; this exists for dev seeding and tests.
func (s *MemoryStore) PutUser(_ context.Context, u User) error {
	if u.ID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
	return nil
}

// GetUser returns the user with the given ID.
func (s *MemoryStore) GetUser(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return User{}, ErrNotFound
	}
	return u, nil
}

// ListUsers returns the users for the given IDs. Any missing ID fails the
// whole lookup with ErrNotFound.
func (s *MemoryStore) ListUsers(ctx context.Context, ids []string) ([]User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]User, 0, len(ids))
	for _, id := range ids {
		u, ok := s.users[id]
		if !ok {
			return nil, ErrNotFound
		}
		out = append(out, u)
	}
	return out, nil
}

// GetConversation returns a conversation with its member set.
func (s *MemoryStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[id]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return copyConversation(c.rec), nil
}

// FindDirectConversation looks up the one-to-one conversation for the
// unordered pair, if it exists.
func (s *MemoryStore) FindDirectConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.directPairs[PairKey(userA, userB)]
	if !ok {
		return Conversation{}, ErrNotFound
	}
	return copyConversation(s.conversations[id].rec), nil
}

// CreateConversation inserts a conversation. Direct conversations that lose
// the pair-key race fail with ErrConflict.
func (s *MemoryStore) CreateConversation(ctx context.Context, in CreateConversationInput) (Conversation, error) {
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}
	if in.ID == "" || len(in.UserIDs) < 2 {
		return Conversation{}, ErrInvalidInput
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var pair string
	if !in.IsGroup {
		if len(in.UserIDs) != 2 {
			return Conversation{}, ErrInvalidInput
		}
		pair = PairKey(in.UserIDs[0], in.UserIDs[1])
		if _, exists := s.directPairs[pair]; exists {
			return Conversation{}, ErrConflict
		}
	}

	rec := Conversation{
		ID:            in.ID,
		Name:          in.Name,
		IsGroup:       in.IsGroup,
		UserIDs:       append([]string(nil), in.UserIDs...),
		LastMessageAt: now,
		CreatedAt:     now,
	}
	s.conversations[in.ID] = &memConversation{rec: rec}
	if pair != "" {
		s.directPairs[pair] = in.ID
	}
	return copyConversation(rec), nil
}

// AppendMessage inserts a message, seeds its seen set with the sender, and
// bumps the conversation's last_message_at.
func (s *MemoryStore) AppendMessage(ctx context.Context, in AppendMessageInput) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if in.ID == "" || in.ConversationID == "" || in.SenderID == "" {
		return Message{}, ErrInvalidInput
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[in.ConversationID]
	if !ok {
		return Message{}, ErrNotFound
	}

	rec := Message{
		ID:             in.ID,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Body:           in.Body,
		ImageURL:       in.ImageURL,
		CreatedAt:      now,
		SeenBy:         []string{in.SenderID},
	}
	s.messages[in.ID] = &memMessage{
		rec:  rec,
		seen: map[string]struct{}{in.SenderID: {}},
	}
	s.byConv[in.ConversationID] = append(s.byConv[in.ConversationID], in.ID)
	conv.rec.LastMessageAt = now

	return copyMessage(rec), nil
}

// ListMessages returns the conversation's messages ordered by created_at ASC.
func (s *MemoryStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrNotFound
	}

	ids := s.byConv[conversationID]
	out := make([]Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, s.snapshotMessage(s.messages[id]))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// MarkMessageSeen applies seen := seen ∪ {userID} and returns the updated
// message. Applying it twice is a no-op.
func (s *MemoryStore) MarkMessageSeen(ctx context.Context, messageID, userID string) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	if messageID == "" || userID == "" {
		return Message{}, ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.messages[messageID]
	if !ok {
		return Message{}, ErrNotFound
	}
	m.seen[userID] = struct{}{}
	return s.snapshotMessage(m), nil
}

func (s *MemoryStore) snapshotMessage(m *memMessage) Message {
	rec := copyMessage(m.rec)
	rec.SeenBy = make([]string, 0, len(m.seen))
	for id := range m.seen {
		rec.SeenBy = append(rec.SeenBy, id)
	}
	sort.Strings(rec.SeenBy)
	return rec
}

func copyConversation(c Conversation) Conversation {
	c.UserIDs = append([]string(nil), c.UserIDs...)
	return c
}

func copyMessage(m Message) Message {
	m.SeenBy = append([]string(nil), m.SeenBy...)
	return m
}

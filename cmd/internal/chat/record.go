package chat

import (
	"sort"
	"strings"
	"time"
)

// User is the stored user record. It is read-only within this server's scope:
// user provisioning lives in the external identity service.
type User struct {
	ID          string
	DisplayName string
	AvatarURL   string
	// Email is the user's stable contact identifier and doubles as the
	// personal notification channel key.
	Email     string
	CreatedAt time.Time
}

// Conversation is the canonical conversation record.
type Conversation struct {
	ID   string
	Name string
	// IsGroup is false for one-to-one conversations, which carry exactly
	// two members and are unique per unordered user pair.
	IsGroup       bool
	UserIDs       []string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

// HasMember reports whether userID is a member of the conversation.
func (c Conversation) HasMember(userID string) bool {
	for _, id := range c.UserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Message is the canonical message record. It is immutable after creation
// except for SeenBy, which only grows.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	Body           string
	ImageURL       string
	CreatedAt      time.Time
	// SeenBy starts as {SenderID} and grows monotonically. The sender is
	// never removed.
	SeenBy []string
}

// SeenBySet reports whether userID appears in the message's seen list.
func (m Message) SeenBySet(userID string) bool {
	for _, id := range m.SeenBy {
		if id == userID {
			return true
		}
	}
	return false
}

// PairKey returns the canonical unordered-pair key for a direct conversation.
// The store enforces uniqueness on this key, which is what resolves two
// callers racing to create the same one-to-one conversation.
func PairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// normalizeMembers trims, de-duplicates, and sorts a member ID list.
// Empty entries are dropped.
func normalizeMembers(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

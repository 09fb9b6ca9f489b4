package session

import (
	"strings"
	"sync"
	"time"
)

// StaticVerifier maps opaque tokens directly to user IDs. It backs tests
// and the insecure dev mode; never use it in production.
type StaticVerifier struct {
	mu     sync.RWMutex
	tokens map[string]string // token -> user id
}

// NewStaticVerifier constructs a verifier from a token -> userID map.
func NewStaticVerifier(tokens map[string]string) *StaticVerifier {
	v := &StaticVerifier{tokens: make(map[string]string, len(tokens))}
	for tok, uid := range tokens {
		tok = strings.TrimSpace(tok)
		uid = strings.TrimSpace(uid)
		if tok == "" || uid == "" {
			continue
		}
		v.tokens[tok] = uid
	}
	return v
}

var _ TokenVerifier = (*StaticVerifier)(nil)

// Add registers one token -> userID mapping.
func (v *StaticVerifier) Add(token, userID string) {
	v.mu.Lock()
	v.tokens[token] = userID
	v.mu.Unlock()
}

// Verify resolves the token or fails with ErrInvalidToken.
func (v *StaticVerifier) Verify(token string, now time.Time) (AccessClaims, error) {
	v.mu.RLock()
	uid, ok := v.tokens[token]
	v.mu.RUnlock()
	if !ok {
		return AccessClaims{}, ErrInvalidToken
	}
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return AccessClaims{UserID: uid, IssuedAt: now}, nil
}

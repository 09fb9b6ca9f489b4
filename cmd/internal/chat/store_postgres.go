package chat

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by PostgreSQL.
//
// Ownership model:
// - PostgresStore does NOT own the pgx pool. The caller must close the pool.
// - Close() is therefore a no-op.
//
// Concurrency model:
//   - The direct-pair uniqueness invariant lives in a unique index on
//     conversations.pair_key; a losing concurrent insert surfaces as
//     ErrConflict and the caller re-reads the winner's row.
//   - Seen updates are single-row INSERT ... ON CONFLICT DO NOTHING, which
//     commute across users and are idempotent per (message, user).
type PostgresStore struct {
	pool   *pgxpool.Pool
	schema string
}

// PostgresOption configures PostgresStore behavior.
type PostgresOption func(*PostgresStore) error

// WithSchema sets the DB schema used by this store (default: "parley").
// The schema name is validated and safely quoted in queries.
func WithSchema(schema string) PostgresOption {
	return func(s *PostgresStore) error {
		schema = strings.TrimSpace(schema)
		if schema == "" {
			return errors.New("chat: empty schema")
		}
		if !isValidPGIdent(schema) {
			return errors.New("chat: invalid schema identifier")
		}
		s.schema = schema
		return nil
	}
}

// NewPostgresStore constructs a Postgres-backed Store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) (*PostgresStore, error) {
	st := &PostgresStore{
		pool:   pool,
		schema: "parley",
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(st); err != nil {
			return nil, err
		}
	}
	if st.pool == nil {
		return nil, errors.New("chat: nil pool")
	}
	return st, nil
}

// Close is a no-op because the pool is owned by the caller.
func (s *PostgresStore) Close() error { return nil }

// GetUser returns the user with the given ID.
func (s *PostgresStore) GetUser(ctx context.Context, id string) (User, error) {
	if s == nil || s.pool == nil {
		return User{}, errors.New("chat: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return User{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	users := pgIdent(s.schema, "users")

	var u User
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, COALESCE(avatar_url, ''), email, created_at
		   FROM `+users+`
		  WHERE id = $1`,
		id,
	).Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.Email, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	if err != nil {
		return User{}, err
	}
	return u, nil
}

// ListUsers returns the users for the given IDs. A missing ID fails the whole
// lookup with ErrNotFound so callers never publish half-expanded member lists.
func (s *PostgresStore) ListUsers(ctx context.Context, ids []string) ([]User, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	users := pgIdent(s.schema, "users")

	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, COALESCE(avatar_url, ''), email, created_at
		   FROM `+users+`
		  WHERE id = ANY($1)
		  ORDER BY id`,
		ids,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]User, 0, len(ids))
	for rows.Next() {
		var u User
		if err := rows.Scan(&u.ID, &u.DisplayName, &u.AvatarURL, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) != len(uniqueStrings(ids)) {
		return nil, ErrNotFound
	}
	return out, nil
}

// GetConversation returns a conversation with its full member set.
func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	if s == nil || s.pool == nil {
		return Conversation{}, errors.New("chat: nil store")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Conversation{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	conversations := pgIdent(s.schema, "conversations")
	members := pgIdent(s.schema, "conversation_members")

	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT c.id, COALESCE(c.name, ''), c.is_group, c.last_message_at, c.created_at,
		        array_agg(m.user_id ORDER BY m.user_id)
		   FROM `+conversations+` c
		   JOIN `+members+` m ON m.conversation_id = c.id
		  WHERE c.id = $1
		  GROUP BY c.id`,
		id,
	).Scan(&c.ID, &c.Name, &c.IsGroup, &c.LastMessageAt, &c.CreatedAt, &c.UserIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// FindDirectConversation looks up the one-to-one conversation for the
// unordered pair {userA, userB}, if any.
func (s *PostgresStore) FindDirectConversation(ctx context.Context, userA, userB string) (Conversation, error) {
	if s == nil || s.pool == nil {
		return Conversation{}, errors.New("chat: nil store")
	}
	if userA == "" || userB == "" {
		return Conversation{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	conversations := pgIdent(s.schema, "conversations")
	members := pgIdent(s.schema, "conversation_members")

	var c Conversation
	err := s.pool.QueryRow(ctx,
		`SELECT c.id, COALESCE(c.name, ''), c.is_group, c.last_message_at, c.created_at,
		        array_agg(m.user_id ORDER BY m.user_id)
		   FROM `+conversations+` c
		   JOIN `+members+` m ON m.conversation_id = c.id
		  WHERE c.pair_key = $1
		  GROUP BY c.id`,
		PairKey(userA, userB),
	).Scan(&c.ID, &c.Name, &c.IsGroup, &c.LastMessageAt, &c.CreatedAt, &c.UserIDs)
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	if err != nil {
		return Conversation{}, err
	}
	return c, nil
}

// CreateConversation inserts a conversation and its membership rows
// transactionally. A direct insert that loses the pair-key race returns
// ErrConflict.
func (s *PostgresStore) CreateConversation(ctx context.Context, in CreateConversationInput) (Conversation, error) {
	if s == nil || s.pool == nil {
		return Conversation{}, errors.New("chat: nil store")
	}
	if in.ID == "" || len(in.UserIDs) < 2 {
		return Conversation{}, ErrInvalidInput
	}
	if !in.IsGroup && len(in.UserIDs) != 2 {
		return Conversation{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Conversation{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Conversation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conversations := pgIdent(s.schema, "conversations")
	members := pgIdent(s.schema, "conversation_members")

	var pairKey *string
	if !in.IsGroup {
		k := PairKey(in.UserIDs[0], in.UserIDs[1])
		pairKey = &k
	}
	var name *string
	if in.Name != "" {
		name = &in.Name
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+conversations+` (id, name, is_group, pair_key, last_message_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		in.ID, name, in.IsGroup, pairKey, now,
	); err != nil {
		if isPGUniqueViolation(err) {
			return Conversation{}, ErrConflict
		}
		return Conversation{}, fmt.Errorf("insert conversation: %w", err)
	}

	for _, uid := range in.UserIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO `+members+` (conversation_id, user_id) VALUES ($1, $2)`,
			in.ID, uid,
		); err != nil {
			return Conversation{}, fmt.Errorf("insert member: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return Conversation{}, err
	}

	return Conversation{
		ID:            in.ID,
		Name:          in.Name,
		IsGroup:       in.IsGroup,
		UserIDs:       append([]string(nil), in.UserIDs...),
		LastMessageAt: now,
		CreatedAt:     now,
	}, nil
}

// AppendMessage inserts a message, seeds its seen set with the sender, and
// bumps the conversation's last_message_at, all in one transaction.
func (s *PostgresStore) AppendMessage(ctx context.Context, in AppendMessageInput) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("chat: nil store")
	}
	if in.ID == "" || in.ConversationID == "" || in.SenderID == "" {
		return Message{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	conversations := pgIdent(s.schema, "conversations")
	messages := pgIdent(s.schema, "messages")
	seen := pgIdent(s.schema, "message_seen")

	tag, err := tx.Exec(ctx,
		`UPDATE `+conversations+` SET last_message_at = $2 WHERE id = $1`,
		in.ConversationID, now,
	)
	if err != nil {
		return Message{}, err
	}
	if tag.RowsAffected() == 0 {
		return Message{}, ErrNotFound
	}

	var body, image *string
	if in.Body != "" {
		body = &in.Body
	}
	if in.ImageURL != "" {
		image = &in.ImageURL
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+messages+` (id, conversation_id, sender_id, body, image_url, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		in.ID, in.ConversationID, in.SenderID, body, image, now,
	); err != nil {
		return Message{}, fmt.Errorf("insert message: %w", err)
	}

	if _, err := tx.Exec(ctx,
		`INSERT INTO `+seen+` (message_id, user_id) VALUES ($1, $2)`,
		in.ID, in.SenderID,
	); err != nil {
		return Message{}, fmt.Errorf("seed seen: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}

	return Message{
		ID:             in.ID,
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Body:           in.Body,
		ImageURL:       in.ImageURL,
		CreatedAt:      now,
		SeenBy:         []string{in.SenderID},
	}, nil
}

// ListMessages returns messages ordered by created_at ASC (id as tiebreaker)
// with the full seen set attached.
func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	if s == nil || s.pool == nil {
		return nil, errors.New("chat: nil store")
	}
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	messages := pgIdent(s.schema, "messages")
	seen := pgIdent(s.schema, "message_seen")

	rows, err := s.pool.Query(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id,
		        COALESCE(m.body, ''), COALESCE(m.image_url, ''), m.created_at,
		        array_agg(ms.user_id ORDER BY ms.user_id)
		   FROM `+messages+` m
		   JOIN `+seen+` ms ON ms.message_id = m.id
		  WHERE m.conversation_id = $1
		  GROUP BY m.id
		  ORDER BY m.created_at ASC, m.id ASC`,
		conversationID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderID,
			&m.Body, &m.ImageURL, &m.CreatedAt,
			&m.SeenBy,
		); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkMessageSeen applies seen := seen ∪ {userID} as a single atomic row
// insert and returns the updated message. Re-applying is a no-op.
func (s *PostgresStore) MarkMessageSeen(ctx context.Context, messageID, userID string) (Message, error) {
	if s == nil || s.pool == nil {
		return Message{}, errors.New("chat: nil store")
	}
	messageID = strings.TrimSpace(messageID)
	userID = strings.TrimSpace(userID)
	if messageID == "" || userID == "" {
		return Message{}, ErrInvalidInput
	}
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	messages := pgIdent(s.schema, "messages")
	seen := pgIdent(s.schema, "message_seen")

	if _, err := s.pool.Exec(ctx,
		`INSERT INTO `+seen+` (message_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT (message_id, user_id) DO NOTHING`,
		messageID, userID,
	); err != nil {
		if isPGForeignKeyViolation(err) {
			return Message{}, ErrNotFound
		}
		return Message{}, fmt.Errorf("mark seen: %w", err)
	}

	var m Message
	err := s.pool.QueryRow(ctx,
		`SELECT m.id, m.conversation_id, m.sender_id,
		        COALESCE(m.body, ''), COALESCE(m.image_url, ''), m.created_at,
		        array_agg(ms.user_id ORDER BY ms.user_id)
		   FROM `+messages+` m
		   JOIN `+seen+` ms ON ms.message_id = m.id
		  WHERE m.id = $1
		  GROUP BY m.id`,
		messageID,
	).Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Body, &m.ImageURL, &m.CreatedAt, &m.SeenBy)
	if errors.Is(err, pgx.ErrNoRows) {
		return Message{}, ErrNotFound
	}
	if err != nil {
		return Message{}, err
	}
	return m, nil
}

func uniqueStrings(in []string) []string {
	set := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := set[s]; ok {
			continue
		}
		set[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func isPGUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" // unique_violation
}

func isPGForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503" // foreign_key_violation
}

var pgIdentRE = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

func isValidPGIdent(s string) bool {
	return pgIdentRE.MatchString(s)
}

func pgIdent(schema, table string) string {
	// pgx.Identifier safely quotes identifiers, preventing SQL injection.
	return pgx.Identifier{schema, table}.Sanitize()
}

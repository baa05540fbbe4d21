package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store over the tables created by db.AutoMigrate.
// The pool is owned by the caller; Close does not close it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("chat: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

const conversationColumns = `id, participant_a, participant_b, listing_id, last_message, last_message_at, created_at, updated_at`

func scanConversation(row pgx.Row) (Conversation, error) {
	var (
		c      Conversation
		lastAt *time.Time
	)
	err := row.Scan(&c.ID, &c.Participants[0], &c.Participants[1], &c.ListingID, &c.LastMessage, &lastAt, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return Conversation{}, err
	}
	if lastAt != nil {
		c.LastMessageAt = lastAt.UTC()
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return c, nil
}

func (s *PostgresStore) FindConversation(ctx context.Context, a, b, listingID string) (Conversation, error) {
	const op = "chat.PostgresStore.FindConversation"

	// Same expression as the unique index, so the lookup is an index probe.
	query := `SELECT ` + conversationColumns + ` FROM conversations
        WHERE LEAST(participant_a, participant_b) = LEAST($1::text, $2::text)
          AND GREATEST(participant_a, participant_b) = GREATEST($1::text, $2::text)
          AND listing_id = $3`

	c, err := scanConversation(s.pool.QueryRow(ctx, query, a, b, listingID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, notFound(op, "Conversation not found")
		}
		return Conversation{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (s *PostgresStore) InsertConversation(ctx context.Context, c Conversation) error {
	const op = "chat.PostgresStore.InsertConversation"

	var lastAt *time.Time
	if !c.LastMessageAt.IsZero() {
		lastAt = &c.LastMessageAt
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversations (`+conversationColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		c.ID, c.Participants[0], c.Participants[1], c.ListingID, c.LastMessage, lastAt, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if pgIsUniqueViolation(err) {
			return OpError{Op: op, Kind: ErrConflict, Msg: "conversation already exists"}
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) GetConversation(ctx context.Context, id string) (Conversation, error) {
	const op = "chat.PostgresStore.GetConversation"

	c, err := scanConversation(s.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Conversation{}, notFound(op, "Conversation not found")
		}
		return Conversation{}, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	const op = "chat.PostgresStore.ListConversations"

	rows, err := s.pool.Query(ctx, `SELECT `+conversationColumns+` FROM conversations
        WHERE participant_a = $1 OR participant_b = $1
        ORDER BY updated_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]Conversation, 0)
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) TouchConversation(ctx context.Context, id, lastMessage string, at time.Time) error {
	const op = "chat.PostgresStore.TouchConversation"

	_, err := s.pool.Exec(ctx, `UPDATE conversations
        SET last_message = $2, last_message_at = $3, updated_at = $3
        WHERE id = $1 AND (last_message_at IS NULL OR last_message_at <= $3)`,
		id, lastMessage, at,
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) InsertMessage(ctx context.Context, m Message) error {
	const op = "chat.PostgresStore.InsertMessage"

	_, err := s.pool.Exec(ctx, `INSERT INTO messages
        (id, conversation_id, sender_id, receiver_id, message_text, is_read, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Text, m.Read, m.CreatedAt,
	)
	if err != nil {
		if pgIsForeignKeyViolation(err) {
			return notFound(op, "Conversation not found")
		}
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, conversationID string) ([]Message, error) {
	const op = "chat.PostgresStore.ListMessages"

	rows, err := s.pool.Query(ctx, `SELECT id, conversation_id, sender_id, receiver_id, message_text, is_read, created_at
        FROM messages WHERE conversation_id = $1
        ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make([]Message, 0)
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Text, &m.Read, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return out, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, receiverID string) (int64, error) {
	const op = "chat.PostgresStore.MarkRead"

	tag, err := s.pool.Exec(ctx, `UPDATE messages SET is_read = true
        WHERE conversation_id = $1 AND receiver_id = $2 AND NOT is_read`,
		conversationID, receiverID,
	)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) UnreadCounts(ctx context.Context, receiverID string) (map[string]int64, error) {
	const op = "chat.PostgresStore.UnreadCounts"

	rows, err := s.pool.Query(ctx, `SELECT conversation_id, count(*) FROM messages
        WHERE receiver_id = $1 AND NOT is_read
        GROUP BY conversation_id`, receiverID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var (
			id string
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		out[id] = n
	}
	return out, rows.Err()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error { return nil }

func pgIsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func pgIsForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

// MessagePostgres implements message repository for PostgreSQL
type MessagePostgres struct {
	db DBTX
}

// NewMessagePostgres creates a new PostgreSQL message repository
func NewMessagePostgres(db DBTX) *MessagePostgres {
	return &MessagePostgres{db: db}
}

// Create inserts a new message
func (r *MessagePostgres) Create(ctx context.Context, msg *entity.Message) error {
	query := `
		INSERT INTO chatlog_messages (
			id, conversation_id, from_identity, from_origin, from_nick, sent_at, body
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.db.Exec(ctx, query,
		msg.ID,
		msg.ConversationID,
		msg.FromIdentity,
		msg.FromOrigin,
		msg.FromNick,
		msg.SentAt,
		msg.Body,
	)
	if err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}

	return nil
}

// Latest returns the most recently sent message, nil when there are none
func (r *MessagePostgres) Latest(ctx context.Context) (*entity.Message, error) {
	query := `
		SELECT id, conversation_id, from_identity, from_origin, from_nick, sent_at, body
		FROM chatlog_messages
		ORDER BY sent_at DESC, seq DESC
		LIMIT 1
	`

	var msg entity.Message
	err := r.db.QueryRow(ctx, query).Scan(
		&msg.ID,
		&msg.ConversationID,
		&msg.FromIdentity,
		&msg.FromOrigin,
		&msg.FromNick,
		&msg.SentAt,
		&msg.Body,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting latest message: %w", err)
	}

	msg.SentAt = msg.SentAt.UTC()
	return &msg, nil
}

// Reassign moves every message of one conversation to another
func (r *MessagePostgres) Reassign(ctx context.Context, fromConversationID, toConversationID int64) (int64, error) {
	tag, err := r.db.Exec(ctx,
		"UPDATE chatlog_messages SET conversation_id = $2 WHERE conversation_id = $1",
		fromConversationID, toConversationID,
	)
	if err != nil {
		return 0, fmt.Errorf("reassigning messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CountByConversation returns the number of messages in a conversation
func (r *MessagePostgres) CountByConversation(ctx context.Context, conversationID int64) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		"SELECT COUNT(*) FROM chatlog_messages WHERE conversation_id = $1",
		conversationID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting messages: %w", err)
	}
	return count, nil
}

// LatestSentAt returns the send time of the last message in a conversation,
// zero when it has none
func (r *MessagePostgres) LatestSentAt(ctx context.Context, conversationID int64) (time.Time, error) {
	var last *time.Time
	err := r.db.QueryRow(ctx,
		"SELECT MAX(sent_at) FROM chatlog_messages WHERE conversation_id = $1",
		conversationID,
	).Scan(&last)
	if err != nil {
		return time.Time{}, fmt.Errorf("getting last message time: %w", err)
	}
	if last == nil {
		return time.Time{}, nil
	}
	return last.UTC(), nil
}

// ListByConversation returns a conversation's messages in send order, each
// with the participant nickname of its sender
func (r *MessagePostgres) ListByConversation(ctx context.Context, conversationID int64) ([]entity.MessageView, error) {
	query := `
		SELECT m.id, m.conversation_id, m.from_identity, m.from_origin, m.from_nick, m.sent_at, m.body,
		       COALESCE(p.nickname, m.from_nick)
		FROM chatlog_messages m
		LEFT JOIN chatlog_participants p ON p.identity = m.from_identity
		WHERE m.conversation_id = $1
		ORDER BY m.sent_at ASC, m.seq ASC
	`

	rows, err := r.db.Query(ctx, query, conversationID)
	if err != nil {
		return nil, fmt.Errorf("querying messages: %w", err)
	}
	defer rows.Close()

	var messages []entity.MessageView
	for rows.Next() {
		var m entity.MessageView

		err := rows.Scan(
			&m.ID,
			&m.ConversationID,
			&m.FromIdentity,
			&m.FromOrigin,
			&m.FromNick,
			&m.SentAt,
			&m.Body,
			&m.Nickname,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}

		m.SentAt = m.SentAt.UTC()
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating messages: %w", err)
	}

	return messages, nil
}

package dao

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

const conversationColumns = `id, time_start, time_end, message_count, state, merged_into`

// listable restricts a query to conversations shown in listings
const listable = `state = 'active' AND message_count > 0`

// sortColumns maps listing sorts to SQL columns
var sortColumns = map[entity.ConversationSort]string{
	entity.SortByID:           "id",
	entity.SortByMessageCount: "message_count",
	entity.SortByTimeStart:    "time_start",
	entity.SortByTimeEnd:      "time_end",
}

// ConversationPostgres implements conversation repository for PostgreSQL
type ConversationPostgres struct {
	db DBTX
}

// NewConversationPostgres creates a new PostgreSQL conversation repository
func NewConversationPostgres(db DBTX) *ConversationPostgres {
	return &ConversationPostgres{db: db}
}

// Create inserts a new conversation
func (r *ConversationPostgres) Create(ctx context.Context, conv *entity.Conversation) error {
	query := `
		INSERT INTO chatlog_conversations (
			id, time_start, time_end, message_count, state, merged_into, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
	`

	_, err := r.db.Exec(ctx, query,
		conv.ID,
		conv.TimeStart,
		conv.TimeEnd,
		conv.MessageCount,
		conv.State,
		conv.MergedInto,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("inserting conversation: %w", err)
	}

	return nil
}

// Update persists the mutable fields of a conversation
func (r *ConversationPostgres) Update(ctx context.Context, conv *entity.Conversation) error {
	query := `
		UPDATE chatlog_conversations
		SET time_end = $2, message_count = $3, state = $4, merged_into = $5, updated_at = $6
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query,
		conv.ID,
		conv.TimeEnd,
		conv.MessageCount,
		conv.State,
		conv.MergedInto,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("updating conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("updating conversation %d: %w", conv.ID, entity.ErrConversationNotFound)
	}

	return nil
}

// GetByID retrieves a conversation by ID
func (r *ConversationPostgres) GetByID(ctx context.Context, id int64) (*entity.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM chatlog_conversations WHERE id = $1`

	return r.scanConversation(r.db.QueryRow(ctx, query, id))
}

// LatestID returns the highest conversation id, 0 when there are none
func (r *ConversationPostgres) LatestID(ctx context.Context) (int64, error) {
	var id int64
	err := r.db.QueryRow(ctx, "SELECT COALESCE(MAX(id), 0) FROM chatlog_conversations").Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("getting latest conversation id: %w", err)
	}
	return id, nil
}

// Tallies returns active conversations, newest id first, with the number of
// messages that actually reference each one
func (r *ConversationPostgres) Tallies(ctx context.Context) ([]entity.ConversationTally, error) {
	query := `
		SELECT c.id, c.time_start, c.time_end, c.message_count, c.state, c.merged_into,
		       COUNT(m.id), MAX(m.sent_at)
		FROM chatlog_conversations c
		LEFT JOIN chatlog_messages m ON m.conversation_id = c.id
		WHERE c.state = 'active'
		GROUP BY c.id
		ORDER BY c.id DESC
	`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying conversation tallies: %w", err)
	}
	defer rows.Close()

	var tallies []entity.ConversationTally
	for rows.Next() {
		var t entity.ConversationTally
		var lastSentAt *time.Time

		err := rows.Scan(
			&t.ID,
			&t.TimeStart,
			&t.TimeEnd,
			&t.MessageCount,
			&t.State,
			&t.MergedInto,
			&t.ActualCount,
			&lastSentAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation tally: %w", err)
		}
		if lastSentAt != nil {
			t.LastSentAt = lastSentAt.UTC()
		}
		t.TimeStart = t.TimeStart.UTC()
		t.TimeEnd = t.TimeEnd.UTC()

		tallies = append(tallies, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tallies: %w", err)
	}

	return tallies, nil
}

// List returns conversations that hold messages, sorted and paged
func (r *ConversationPostgres) List(ctx context.Context, filter entity.ConversationFilter) ([]entity.Conversation, error) {
	column, ok := sortColumns[filter.Sort]
	if !ok {
		column = sortColumns[entity.SortByTimeEnd]
	}
	direction := "DESC"
	if filter.Asc {
		direction = "ASC"
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM chatlog_conversations
		WHERE %s
		ORDER BY %s %s, id %s
		LIMIT $1 OFFSET $2
	`, conversationColumns, listable, column, direction, direction)

	rows, err := r.db.Query(ctx, query, filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("querying conversations: %w", err)
	}
	defer rows.Close()

	return r.scanConversations(rows)
}

// CountNonEmpty returns the number of conversations shown in listings
func (r *ConversationPostgres) CountNonEmpty(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM chatlog_conversations WHERE "+listable).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting conversations: %w", err)
	}
	return count, nil
}

// Previous returns the listable conversation that ended last before conv
func (r *ConversationPostgres) Previous(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM chatlog_conversations
		WHERE ` + listable + ` AND time_end < $1 AND id <> $2
		ORDER BY time_end DESC, id DESC
		LIMIT 1
	`

	return r.scanConversation(r.db.QueryRow(ctx, query, conv.TimeEnd, conv.ID))
}

// Next returns the listable conversation that ended first after conv
func (r *ConversationPostgres) Next(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error) {
	query := `
		SELECT ` + conversationColumns + `
		FROM chatlog_conversations
		WHERE ` + listable + ` AND time_end > $1 AND id <> $2
		ORDER BY time_end ASC, id ASC
		LIMIT 1
	`

	return r.scanConversation(r.db.QueryRow(ctx, query, conv.TimeEnd, conv.ID))
}

// scanConversation scans a single conversation row
func (r *ConversationPostgres) scanConversation(row pgx.Row) (*entity.Conversation, error) {
	var conv entity.Conversation

	err := row.Scan(
		&conv.ID,
		&conv.TimeStart,
		&conv.TimeEnd,
		&conv.MessageCount,
		&conv.State,
		&conv.MergedInto,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning conversation: %w", err)
	}

	conv.TimeStart = conv.TimeStart.UTC()
	conv.TimeEnd = conv.TimeEnd.UTC()
	return &conv, nil
}

// scanConversations scans multiple conversation rows
func (r *ConversationPostgres) scanConversations(rows pgx.Rows) ([]entity.Conversation, error) {
	var conversations []entity.Conversation

	for rows.Next() {
		var conv entity.Conversation

		err := rows.Scan(
			&conv.ID,
			&conv.TimeStart,
			&conv.TimeEnd,
			&conv.MessageCount,
			&conv.State,
			&conv.MergedInto,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning conversation row: %w", err)
		}

		conv.TimeStart = conv.TimeStart.UTC()
		conv.TimeEnd = conv.TimeEnd.UTC()
		conversations = append(conversations, conv)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversations: %w", err)
	}

	return conversations, nil
}

package dao

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

// ParticipantPostgres implements participant repository for PostgreSQL
type ParticipantPostgres struct {
	db DBTX
}

// NewParticipantPostgres creates a new PostgreSQL participant repository
func NewParticipantPostgres(db DBTX) *ParticipantPostgres {
	return &ParticipantPostgres{db: db}
}

// Get retrieves a participant by identity
func (r *ParticipantPostgres) Get(ctx context.Context, identity string) (*entity.Participant, error) {
	var p entity.Participant
	err := r.db.QueryRow(ctx,
		"SELECT identity, nickname FROM chatlog_participants WHERE identity = $1",
		identity,
	).Scan(&p.Identity, &p.Nickname)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting participant: %w", err)
	}
	return &p, nil
}

// Create inserts a participant. An identity that already exists keeps its
// first nickname.
func (r *ParticipantPostgres) Create(ctx context.Context, p *entity.Participant) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO chatlog_participants (identity, nickname)
		VALUES ($1, $2)
		ON CONFLICT (identity) DO NOTHING
	`, p.Identity, p.Nickname)
	if err != nil {
		return fmt.Errorf("inserting participant: %w", err)
	}
	return nil
}

// List returns participants ordered by identity
func (r *ParticipantPostgres) List(ctx context.Context, limit, offset int) ([]entity.Participant, error) {
	rows, err := r.db.Query(ctx, `
		SELECT identity, nickname
		FROM chatlog_participants
		ORDER BY identity
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying participants: %w", err)
	}
	defer rows.Close()

	var participants []entity.Participant
	for rows.Next() {
		var p entity.Participant
		if err := rows.Scan(&p.Identity, &p.Nickname); err != nil {
			return nil, fmt.Errorf("scanning participant row: %w", err)
		}
		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating participants: %w", err)
	}

	return participants, nil
}

// Count returns the number of participants
func (r *ParticipantPostgres) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM chatlog_participants").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting participants: %w", err)
	}
	return count, nil
}

// NicknamesByConversations returns the distinct sender nicknames of each
// conversation, sorted
func (r *ParticipantPostgres) NicknamesByConversations(ctx context.Context, conversationIDs []int64) (map[int64][]string, error) {
	result := make(map[int64][]string, len(conversationIDs))
	if len(conversationIDs) == 0 {
		return result, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT m.conversation_id, COALESCE(p.nickname, m.from_nick) AS nickname
		FROM chatlog_messages m
		LEFT JOIN chatlog_participants p ON p.identity = m.from_identity
		WHERE m.conversation_id = ANY($1)
		ORDER BY m.conversation_id, nickname
	`, conversationIDs)
	if err != nil {
		return nil, fmt.Errorf("querying conversation participants: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var nickname string
		if err := rows.Scan(&id, &nickname); err != nil {
			return nil, fmt.Errorf("scanning conversation participant: %w", err)
		}
		result[id] = append(result[id], nickname)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating conversation participants: %w", err)
	}

	return result, nil
}

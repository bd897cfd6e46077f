package dao

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vadim/chatlogs/internal/database"
)

//go:embed schema.sql
var schema string

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles the chat log repositories over one connection handle
type Store struct {
	pool *pgxpool.Pool // nil when the store is bound to a transaction

	conversations *ConversationPostgres
	messages      *MessagePostgres
	participants  *ParticipantPostgres
}

// NewStore creates a store backed by the pool
func NewStore(pool *pgxpool.Pool) *Store {
	s := newStore(pool)
	s.pool = pool
	return s
}

func newStore(db DBTX) *Store {
	return &Store{
		conversations: NewConversationPostgres(db),
		messages:      NewMessagePostgres(db),
		participants:  NewParticipantPostgres(db),
	}
}

// Conversations returns the conversation repository
func (s *Store) Conversations() *ConversationPostgres {
	return s.conversations
}

// Messages returns the message repository
func (s *Store) Messages() *MessagePostgres {
	return s.messages
}

// Participants returns the participant repository
func (s *Store) Participants() *ParticipantPostgres {
	return s.participants
}

// WithTx runs fn against a store bound to a single transaction. A store that
// is already transactional runs fn in place.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	if s.pool == nil {
		return fn(s)
	}
	return database.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(newStore(tx))
	})
}

// Migrate creates the chat log tables when they do not exist
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	return nil
}

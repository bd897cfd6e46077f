package dao

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

// DefaultSourceTable is the log table written by the chat server
const DefaultSourceTable = "chatlog"

// SourcePostgres streams records from the chat server's log table
type SourcePostgres struct {
	db    DBTX
	table string
}

// NewSourcePostgres creates a log source reading from table, which may be
// schema qualified ("archive.chatlog")
func NewSourcePostgres(db DBTX, table string) *SourcePostgres {
	if table == "" {
		table = DefaultSourceTable
	}
	return &SourcePostgres{
		db:    db,
		table: pgx.Identifier(strings.Split(table, ".")).Sanitize(),
	}
}

// Records yields records logged strictly after the given time in log order,
// or every record when after is zero. Rows are read as they are yielded.
func (s *SourcePostgres) Records(ctx context.Context, after time.Time) iter.Seq2[entity.SourceRecord, error] {
	return func(yield func(entity.SourceRecord, error) bool) {
		query := `SELECT sender, COALESCE(nickname, ''), logtime, COALESCE(body, '') FROM ` + s.table
		var args []any
		if !after.IsZero() {
			query += ` WHERE logtime > $1`
			args = append(args, after.Unix())
		}
		query += ` ORDER BY logtime ASC`

		rows, err := s.db.Query(ctx, query, args...)
		if err != nil {
			yield(entity.SourceRecord{}, fmt.Errorf("querying %s: %w", s.table, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec entity.SourceRecord
			if err := rows.Scan(&rec.Sender, &rec.Nickname, &rec.LogTime, &rec.Body); err != nil {
				yield(entity.SourceRecord{}, fmt.Errorf("scanning log record: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}

		if err := rows.Err(); err != nil {
			yield(entity.SourceRecord{}, fmt.Errorf("reading %s: %w", s.table, err))
		}
	}
}

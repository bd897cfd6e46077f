package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

// DefaultConversationGap is the inactivity that starts a new conversation
const DefaultConversationGap = 30 * time.Minute

// IngestResult summarises an ingestion run
type IngestResult struct {
	Inserted           int   `json:"inserted"`
	Skipped            int   `json:"skipped"`
	Malformed          int   `json:"malformed"`
	NewConversations   int   `json:"new_conversations"`
	NewParticipants    int   `json:"new_participants"`
	LastConversationID int64 `json:"last_conversation_id"`
}

// Ingestor copies new source records into the store, assigning each one to
// a conversation by the gap between it and the previously stored message
type Ingestor struct {
	store   Store
	source  Source
	senders KnownSenders
	gap     time.Duration
	logger  *slog.Logger
}

// IngestorOption configures the Ingestor
type IngestorOption func(*Ingestor)

// WithConversationGap sets the inactivity threshold
func WithConversationGap(gap time.Duration) IngestorOption {
	return func(in *Ingestor) {
		if gap > 0 {
			in.gap = gap
		}
	}
}

// WithKnownSenders lets the Ingestor skip participant lookups for identities
// registered by earlier runs
func WithKnownSenders(senders KnownSenders) IngestorOption {
	return func(in *Ingestor) {
		in.senders = senders
	}
}

// NewIngestor creates a new ingestor
func NewIngestor(store Store, source Source, logger *slog.Logger, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{
		store:  store,
		source: source,
		gap:    DefaultConversationGap,
		logger: logger,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Gap returns the configured conversation gap
func (in *Ingestor) Gap() time.Duration {
	return in.gap
}

// Ingest consumes every source record newer than the last stored message.
// Writes are not transactional: on error everything stored before the
// failure stays, and the next run resumes from the new high-water mark.
func (in *Ingestor) Ingest(ctx context.Context) (*IngestResult, error) {
	convRepo := in.store.Conversations()
	msgRepo := in.store.Messages()

	prev, err := msgRepo.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting last message: %w", err)
	}
	if prev == nil {
		// Empty store: no current conversation, read the log from its start.
		prev = &entity.Message{}
	}

	// A conversation row can outlive a failed message insert, so new ids
	// must clear the highest id as well as the last message's conversation.
	lastID, err := convRepo.LatestID(ctx)
	if err != nil {
		return nil, fmt.Errorf("getting latest conversation id: %w", err)
	}

	in.logger.Info("fetching messages", "since", prev.SentAt, "conversation_id", prev.ConversationID)

	result := &IngestResult{LastConversationID: prev.ConversationID}
	seen := make(map[string]struct{})
	var current *entity.Conversation

	for rec, err := range in.source.Records(ctx, prev.SentAt) {
		if err != nil {
			return nil, fmt.Errorf("reading log source: %w", err)
		}

		if rec.IsEmpty() {
			result.Skipped++
			continue
		}

		identity, origin, err := entity.ParseSender(rec.Sender)
		if err != nil {
			in.logger.Warn("skipping record with malformed sender", "sender", rec.Sender, "log_time", rec.LogTime)
			result.Malformed++
			continue
		}

		msg := &entity.Message{
			ID:           uuid.New(),
			FromIdentity: identity,
			FromOrigin:   origin,
			FromNick:     rec.Nickname,
			SentAt:       rec.Time(),
			Body:         rec.Body,
		}

		if prev.ConversationID != 0 && msg.SentAt.Sub(prev.SentAt) < in.gap {
			if current == nil || current.ID != prev.ConversationID {
				current, err = loadConversation(ctx, convRepo, prev.ConversationID)
				if err != nil {
					return nil, err
				}
			}
			current.Extend(msg.SentAt)
			if err := convRepo.Update(ctx, current); err != nil {
				return nil, fmt.Errorf("extending conversation %d: %w", current.ID, err)
			}
		} else {
			id := max(prev.ConversationID, lastID) + 1
			current = entity.NewConversation(id, msg.SentAt)
			if err := convRepo.Create(ctx, current); err != nil {
				return nil, fmt.Errorf("creating conversation %d: %w", id, err)
			}
			lastID = id
			result.NewConversations++
		}

		msg.ConversationID = current.ID
		if err := msgRepo.Create(ctx, msg); err != nil {
			return nil, fmt.Errorf("inserting message: %w", err)
		}
		prev = msg
		result.Inserted++
		result.LastConversationID = current.ID

		created, err := in.registerParticipant(ctx, seen, identity, rec.Nickname)
		if err != nil {
			return nil, err
		}
		if created {
			result.NewParticipants++
		}
	}

	in.logger.Info("ingestion finished",
		"inserted", result.Inserted,
		"skipped", result.Skipped,
		"malformed", result.Malformed,
		"new_conversations", result.NewConversations,
	)

	return result, nil
}

// registerParticipant stores a participant the first time an identity shows up
func (in *Ingestor) registerParticipant(ctx context.Context, seen map[string]struct{}, identity, nickname string) (bool, error) {
	if _, ok := seen[identity]; ok {
		return false, nil
	}
	seen[identity] = struct{}{}

	if in.senders != nil {
		known, err := in.senders.Contains(ctx, identity)
		if err != nil {
			in.logger.Warn("known senders lookup failed", "identity", identity, "error", err)
		} else if known {
			return false, nil
		}
	}

	repo := in.store.Participants()
	p, err := repo.Get(ctx, identity)
	if err != nil {
		return false, fmt.Errorf("getting participant %s: %w", identity, err)
	}

	created := false
	if p == nil {
		if err := repo.Create(ctx, &entity.Participant{Identity: identity, Nickname: nickname}); err != nil {
			return false, fmt.Errorf("creating participant %s: %w", identity, err)
		}
		created = true
	}

	if in.senders != nil {
		if err := in.senders.Add(ctx, identity); err != nil {
			in.logger.Warn("failed to remember sender", "identity", identity, "error", err)
		}
	}

	return created, nil
}

package service

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

// ConversationRepository defines the interface for conversation storage
type ConversationRepository interface {
	Create(ctx context.Context, conv *entity.Conversation) error
	Update(ctx context.Context, conv *entity.Conversation) error
	GetByID(ctx context.Context, id int64) (*entity.Conversation, error)
	LatestID(ctx context.Context) (int64, error)
	Tallies(ctx context.Context) ([]entity.ConversationTally, error)
	List(ctx context.Context, filter entity.ConversationFilter) ([]entity.Conversation, error)
	CountNonEmpty(ctx context.Context) (int64, error)
	Previous(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error)
	Next(ctx context.Context, conv *entity.Conversation) (*entity.Conversation, error)
}

// MessageRepository defines the interface for message storage
type MessageRepository interface {
	Create(ctx context.Context, msg *entity.Message) error
	Latest(ctx context.Context) (*entity.Message, error)
	Reassign(ctx context.Context, fromConversationID, toConversationID int64) (int64, error)
	CountByConversation(ctx context.Context, conversationID int64) (int, error)
	LatestSentAt(ctx context.Context, conversationID int64) (time.Time, error)
	ListByConversation(ctx context.Context, conversationID int64) ([]entity.MessageView, error)
}

// ParticipantRepository defines the interface for participant storage
type ParticipantRepository interface {
	Get(ctx context.Context, identity string) (*entity.Participant, error)
	Create(ctx context.Context, p *entity.Participant) error
	List(ctx context.Context, limit, offset int) ([]entity.Participant, error)
	Count(ctx context.Context) (int64, error)
	NicknamesByConversations(ctx context.Context, conversationIDs []int64) (map[int64][]string, error)
}

// Store groups the repositories and runs work inside a transaction
type Store interface {
	Conversations() ConversationRepository
	Messages() MessageRepository
	Participants() ParticipantRepository
	WithTx(ctx context.Context, fn func(tx Store) error) error
}

// Source reads raw records from the external chat log
type Source interface {
	// Records yields records logged strictly after the given time in log
	// order, or every record when after is zero. The sequence can be ranged
	// over once.
	Records(ctx context.Context, after time.Time) iter.Seq2[entity.SourceRecord, error]
}

// KnownSenders is a persistent set of sender identities already registered
// as participants
type KnownSenders interface {
	Contains(ctx context.Context, identity string) (bool, error)
	Add(ctx context.Context, identity string) error
}

const (
	defaultPageSize = 50
	maxPageSize     = 100
)

// Service handles chat log browsing
type Service struct {
	store Store
}

// New creates a new chat log service
func New(store Store) *Service {
	return &Service{store: store}
}

// ListConversationsInput represents input for listing conversations
type ListConversationsInput struct {
	Sort   entity.ConversationSort
	Asc    bool
	Limit  int
	Offset int
}

// ListConversationsOutput represents output from listing conversations
type ListConversationsOutput struct {
	Conversations []entity.ConversationSummary `json:"conversations"`
	Total         int64                        `json:"total"`
	Limit         int                          `json:"limit"`
	HasMore       bool                         `json:"has_more"`
}

// ListConversations returns conversations that still hold messages
func (s *Service) ListConversations(ctx context.Context, in ListConversationsInput) (*ListConversationsOutput, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)
	if in.Sort == "" {
		in.Sort = entity.SortByTimeEnd
	}

	convs, err := s.store.Conversations().List(ctx, entity.ConversationFilter{
		Sort:   in.Sort,
		Asc:    in.Asc,
		Limit:  limit,
		Offset: in.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}

	total, err := s.store.Conversations().CountNonEmpty(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting conversations: %w", err)
	}

	ids := make([]int64, len(convs))
	for i, c := range convs {
		ids[i] = c.ID
	}
	nicknames, err := s.store.Participants().NicknamesByConversations(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("loading participants: %w", err)
	}

	summaries := make([]entity.ConversationSummary, len(convs))
	for i, c := range convs {
		summaries[i] = entity.ConversationSummary{
			Conversation: c,
			Participants: nicknames[c.ID],
		}
	}

	return &ListConversationsOutput{
		Conversations: summaries,
		Total:         total,
		Limit:         limit,
		HasMore:       int64(in.Offset+len(convs)) < total,
	}, nil
}

// ConversationPage is a conversation with its messages and neighbours
type ConversationPage struct {
	Conversation entity.Conversation  `json:"conversation"`
	Previous     *entity.Conversation `json:"previous,omitempty"`
	Next         *entity.Conversation `json:"next,omitempty"`
	Messages     []entity.MessageView `json:"messages"`
}

// GetConversation loads a conversation for display
func (s *Service) GetConversation(ctx context.Context, id int64) (*ConversationPage, error) {
	conv, err := loadConversation(ctx, s.store.Conversations(), id)
	if err != nil {
		return nil, err
	}

	prev, err := s.store.Conversations().Previous(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("finding previous conversation: %w", err)
	}
	next, err := s.store.Conversations().Next(ctx, conv)
	if err != nil {
		return nil, fmt.Errorf("finding next conversation: %w", err)
	}

	messages, err := s.store.Messages().ListByConversation(ctx, conv.ID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}

	return &ConversationPage{
		Conversation: *conv,
		Previous:     prev,
		Next:         next,
		Messages:     messages,
	}, nil
}

// GetMessages returns the messages of a conversation in send order
func (s *Service) GetMessages(ctx context.Context, conversationID int64) ([]entity.MessageView, error) {
	if _, err := loadConversation(ctx, s.store.Conversations(), conversationID); err != nil {
		return nil, err
	}
	messages, err := s.store.Messages().ListByConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return messages, nil
}

// ListParticipantsOutput represents output from listing participants
type ListParticipantsOutput struct {
	Participants []entity.Participant `json:"participants"`
	Total        int64                `json:"total"`
	HasMore      bool                 `json:"has_more"`
}

// ListParticipants returns known senders ordered by identity
func (s *Service) ListParticipants(ctx context.Context, limit, offset int) (*ListParticipantsOutput, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	limit = min(limit, maxPageSize)

	participants, err := s.store.Participants().List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing participants: %w", err)
	}
	total, err := s.store.Participants().Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting participants: %w", err)
	}

	return &ListParticipantsOutput{
		Participants: participants,
		Total:        total,
		HasMore:      int64(offset+len(participants)) < total,
	}, nil
}

// LatestConversationID returns the highest conversation id, 0 when empty
func (s *Service) LatestConversationID(ctx context.Context) (int64, error) {
	id, err := s.store.Conversations().LatestID(ctx)
	if err != nil {
		return 0, fmt.Errorf("getting latest conversation: %w", err)
	}
	return id, nil
}

// loadConversation treats a missing row as a hard failure
func loadConversation(ctx context.Context, repo ConversationRepository, id int64) (*entity.Conversation, error) {
	conv, err := repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("getting conversation %d: %w", id, err)
	}
	if conv == nil {
		return nil, fmt.Errorf("conversation %d: %w", id, entity.ErrConversationNotFound)
	}
	return conv, nil
}

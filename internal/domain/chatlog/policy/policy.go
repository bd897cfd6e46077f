package policy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
	"github.com/vadim/chatlogs/internal/domain/chatlog/service"
	"github.com/vadim/chatlogs/internal/render"
)

// Event names published after runs
const (
	EventIngested   = "ingested"
	EventReconciled = "reconciled"
	EventArchived   = "archived"
)

// ChatlogService defines the browse operations of the chat log service
type ChatlogService interface {
	ListConversations(ctx context.Context, in service.ListConversationsInput) (*service.ListConversationsOutput, error)
	GetConversation(ctx context.Context, id int64) (*service.ConversationPage, error)
	GetMessages(ctx context.Context, conversationID int64) ([]entity.MessageView, error)
	ListParticipants(ctx context.Context, limit, offset int) (*service.ListParticipantsOutput, error)
	LatestConversationID(ctx context.Context) (int64, error)
}

// Ingester copies new log records into the store
type Ingester interface {
	Ingest(ctx context.Context) (*service.IngestResult, error)
}

// Reconciler repairs conversation segmentation
type Reconciler interface {
	Reconcile(ctx context.Context) (*service.ReconcileResult, error)
}

// Renderer renders conversation pages and knows their public addresses
type Renderer interface {
	RenderConversation(w io.Writer, page render.ConversationPage) error
	ConversationURL(id int64) string
}

// Publisher sends run notifications
type Publisher interface {
	Publish(event string, data any) error
}

// Archive stores rendered conversation pages
type Archive interface {
	PutConversation(ctx context.Context, id int64, page []byte) (string, error)
}

// Policy orchestrates chat log runs and serves browse requests.
// At most one ingest or reconcile run is active at a time.
type Policy struct {
	svc        ChatlogService
	ingester   Ingester
	reconciler Reconciler
	renderer   Renderer
	publisher  Publisher
	archive    Archive
	logger     *slog.Logger

	runMu sync.Mutex
}

// Option configures the Policy
type Option func(*Policy)

// WithPublisher publishes an event after every successful run
func WithPublisher(p Publisher) Option {
	return func(pol *Policy) {
		pol.publisher = p
	}
}

// WithArchive enables archiving conversation pages
func WithArchive(a Archive) Option {
	return func(pol *Policy) {
		pol.archive = a
	}
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(pol *Policy) {
		pol.logger = l
	}
}

// New creates a new chat log policy
func New(svc ChatlogService, ingester Ingester, reconciler Reconciler, renderer Renderer, opts ...Option) *Policy {
	p := &Policy{
		svc:        svc,
		ingester:   ingester,
		reconciler: reconciler,
		renderer:   renderer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// IngestedEvent is published after an ingestion run
type IngestedEvent struct {
	service.IngestResult
	At time.Time `json:"at"`
}

// ReconciledEvent is published after a reconciliation run
type ReconciledEvent struct {
	service.ReconcileResult
	At time.Time `json:"at"`
}

// ArchivedEvent is published after a conversation page is archived
type ArchivedEvent struct {
	ConversationID int64     `json:"conversation_id"`
	URL            string    `json:"url"`
	At             time.Time `json:"at"`
}

// SyncOutput summarises an ingest followed by a reconcile
type SyncOutput struct {
	Ingest               *service.IngestResult    `json:"ingest"`
	Reconcile            *service.ReconcileResult `json:"reconcile"`
	LatestConversationID int64                    `json:"latest_conversation_id"`
	LatestURL            string                   `json:"latest_url,omitempty"`
}

// Sync ingests new records and then reconciles orphans
func (p *Policy) Sync(ctx context.Context) (*SyncOutput, error) {
	if !p.runMu.TryLock() {
		return nil, entity.ErrRunInProgress
	}
	defer p.runMu.Unlock()

	ingest, err := p.ingest(ctx)
	if err != nil {
		return nil, err
	}
	reconcile, err := p.reconcile(ctx)
	if err != nil {
		return nil, err
	}

	latest, err := p.svc.LatestConversationID(ctx)
	if err != nil {
		return nil, err
	}

	out := &SyncOutput{
		Ingest:               ingest,
		Reconcile:            reconcile,
		LatestConversationID: latest,
	}
	if latest > 0 {
		out.LatestURL = p.renderer.ConversationURL(latest)
	}
	return out, nil
}

// Ingest runs ingestion alone
func (p *Policy) Ingest(ctx context.Context) (*service.IngestResult, error) {
	if !p.runMu.TryLock() {
		return nil, entity.ErrRunInProgress
	}
	defer p.runMu.Unlock()

	return p.ingest(ctx)
}

// Reconcile runs reconciliation alone
func (p *Policy) Reconcile(ctx context.Context) (*service.ReconcileResult, error) {
	if !p.runMu.TryLock() {
		return nil, entity.ErrRunInProgress
	}
	defer p.runMu.Unlock()

	return p.reconcile(ctx)
}

func (p *Policy) ingest(ctx context.Context) (*service.IngestResult, error) {
	result, err := p.ingester.Ingest(ctx)
	if err != nil {
		return nil, fmt.Errorf("ingesting chat logs: %w", err)
	}
	p.publish(EventIngested, IngestedEvent{IngestResult: *result, At: time.Now().UTC()})
	return result, nil
}

func (p *Policy) reconcile(ctx context.Context) (*service.ReconcileResult, error) {
	result, err := p.reconciler.Reconcile(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconciling conversations: %w", err)
	}
	p.publish(EventReconciled, ReconciledEvent{ReconcileResult: *result, At: time.Now().UTC()})
	return result, nil
}

// Archive renders a conversation and uploads the page, returning its URL
func (p *Policy) Archive(ctx context.Context, id int64) (string, error) {
	if p.archive == nil {
		return "", entity.ErrArchiveDisabled
	}

	page, err := p.svc.GetConversation(ctx, id)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	err = p.renderer.RenderConversation(&buf, render.ConversationPage{
		Conversation: page.Conversation,
		Previous:     page.Previous,
		Next:         page.Next,
		Messages:     page.Messages,
	})
	if err != nil {
		return "", err
	}

	url, err := p.archive.PutConversation(ctx, id, buf.Bytes())
	if err != nil {
		return "", err
	}

	p.logger.Info("conversation archived", "conversation_id", id, "url", url)
	p.publish(EventArchived, ArchivedEvent{ConversationID: id, URL: url, At: time.Now().UTC()})
	return url, nil
}

// publish is best effort: a lost notification never fails a run
func (p *Policy) publish(event string, data any) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(event, data); err != nil {
		p.logger.Warn("failed to publish event", "event", event, "error", err)
	}
}

// ListConversations returns a page of the conversation listing
func (p *Policy) ListConversations(ctx context.Context, in service.ListConversationsInput) (*service.ListConversationsOutput, error) {
	return p.svc.ListConversations(ctx, in)
}

// GetConversation loads a conversation with its messages and neighbours
func (p *Policy) GetConversation(ctx context.Context, id int64) (*service.ConversationPage, error) {
	return p.svc.GetConversation(ctx, id)
}

// GetMessages returns the messages of a conversation
func (p *Policy) GetMessages(ctx context.Context, conversationID int64) ([]entity.MessageView, error) {
	return p.svc.GetMessages(ctx, conversationID)
}

// ListParticipants returns known senders
func (p *Policy) ListParticipants(ctx context.Context, limit, offset int) (*service.ListParticipantsOutput, error) {
	return p.svc.ListParticipants(ctx, limit, offset)
}

// LatestConversationID returns the newest conversation id, 0 when empty
func (p *Policy) LatestConversationID(ctx context.Context) (int64, error) {
	return p.svc.LatestConversationID(ctx)
}

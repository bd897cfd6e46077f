package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
	"github.com/vadim/chatlogs/internal/domain/chatlog/policy"
)

// Syncer defines the interface for running an ingest followed by a reconcile
type Syncer interface {
	Sync(ctx context.Context) (*policy.SyncOutput, error)
}

// Scheduler handles periodic synchronisation of chat logs
type Scheduler struct {
	syncer   Syncer
	interval time.Duration
	logger   *slog.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

// New creates a new scheduler
func New(syncer Syncer, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		syncer:   syncer,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the scheduler
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info("chatlog scheduler started", "interval", s.interval)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the scheduler and waits for a run in flight
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
	s.logger.Info("chatlog scheduler stopped")
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	// Run immediately on start
	s.process(ctx)

	for {
		select {
		case <-ticker.C:
			s.process(ctx)
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) process(ctx context.Context) {
	s.logger.Debug("syncing chat logs")

	out, err := s.syncer.Sync(ctx)
	switch {
	case errors.Is(err, entity.ErrRunInProgress):
		s.logger.Debug("skipping tick, a run is already in progress")
		return
	case err != nil:
		s.logger.Error("failed to sync chat logs", "error", err)
		return
	}

	s.logger.Info("chat logs synced",
		"inserted", out.Ingest.Inserted,
		"new_conversations", out.Ingest.NewConversations,
		"orphaned", out.Reconcile.Orphaned,
		"latest_conversation_id", out.LatestConversationID,
	)
}

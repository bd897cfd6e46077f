package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vadim/chatlogs/internal/domain/chatlog/entity"
)

// ReconcileResult summarises a reconciliation run
type ReconcileResult struct {
	// Moved maps each merged-away conversation to the one that absorbed it
	Moved         map[int64]int64 `json:"moved"`
	Orphaned      int             `json:"orphaned"`
	MessageCounts int             `json:"message_counts"`
	EndTimes      int             `json:"end_times"`
}

// Reconciler repairs segmentation artifacts left behind by ingestion
type Reconciler struct {
	store  Store
	logger *slog.Logger
}

// NewReconciler creates a new reconciler
func NewReconciler(store Store, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
	}
}

// Reconcile merges single-message conversations into their predecessor and
// then realigns stored counts and end times with the messages. All changes
// commit together or not at all.
func (r *Reconciler) Reconcile(ctx context.Context) (*ReconcileResult, error) {
	result := &ReconcileResult{}

	err := r.store.WithTx(ctx, func(tx Store) error {
		moved, err := r.groupOrphans(ctx, tx)
		if err != nil {
			return fmt.Errorf("grouping orphans: %w", err)
		}
		result.Moved = moved
		result.Orphaned = len(moved)

		counts, ends, err := r.tidy(ctx, tx)
		if err != nil {
			return fmt.Errorf("tidying conversations: %w", err)
		}
		result.MessageCounts = counts
		result.EndTimes = ends
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("reconciliation finished",
		"orphaned", result.Orphaned,
		"message_counts", result.MessageCounts,
		"end_times", result.EndTimes,
	)

	return result, nil
}

// groupOrphans walks conversations newest first. A conversation with a
// single message becomes pending and is merged into the next one visited,
// which is the conversation that precedes it in time. The newest
// conversation is still receiving messages and is never touched.
func (r *Reconciler) groupOrphans(ctx context.Context, tx Store) (map[int64]int64, error) {
	tallies, err := tx.Conversations().Tallies(ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]entity.ConversationTally, 0, len(tallies))
	for _, t := range tallies {
		if t.ActualCount > 0 {
			candidates = append(candidates, t)
		}
	}

	moved := make(map[int64]int64)
	if len(candidates) < 2 {
		return moved, nil
	}

	var pending *entity.Conversation
	for i := 1; i < len(candidates); i++ {
		current := &candidates[i]

		if pending != nil {
			if err := r.merge(ctx, tx, pending, &current.Conversation); err != nil {
				return nil, err
			}
			moved[pending.ID] = current.ID
			pending = nil
		}

		// ActualCount is the snapshot taken before any merge in this run, so
		// a single message that just absorbed another single still cascades.
		if current.MessageCount == 1 || current.ActualCount == 1 {
			pending = &current.Conversation
		}
	}

	return moved, nil
}

// merge moves every message of source into target and leaves source as an
// empty tombstone
func (r *Reconciler) merge(ctx context.Context, tx Store, source, target *entity.Conversation) error {
	msgRepo := tx.Messages()
	convRepo := tx.Conversations()

	n, err := msgRepo.Reassign(ctx, source.ID, target.ID)
	if err != nil {
		return fmt.Errorf("moving messages %d => %d: %w", source.ID, target.ID, err)
	}

	source.MergeInto(target.ID)
	if err := convRepo.Update(ctx, source); err != nil {
		return fmt.Errorf("retiring conversation %d: %w", source.ID, err)
	}

	count, err := msgRepo.CountByConversation(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("counting messages of %d: %w", target.ID, err)
	}
	last, err := msgRepo.LatestSentAt(ctx, target.ID)
	if err != nil {
		return fmt.Errorf("finding last message of %d: %w", target.ID, err)
	}

	target.MessageCount = count
	if !last.IsZero() {
		target.TimeEnd = last
	}
	if err := convRepo.Update(ctx, target); err != nil {
		return fmt.Errorf("updating conversation %d: %w", target.ID, err)
	}

	r.logger.Debug("merged orphan conversation", "source", source.ID, "target", target.ID, "messages", n)
	return nil
}

// tidy rewrites stored counts and end times that disagree with the messages
func (r *Reconciler) tidy(ctx context.Context, tx Store) (counts, ends int, err error) {
	tallies, err := tx.Conversations().Tallies(ctx)
	if err != nil {
		return 0, 0, err
	}

	for i := range tallies {
		t := &tallies[i]
		changed := false

		if t.MessageCount != t.ActualCount {
			t.MessageCount = t.ActualCount
			counts++
			changed = true
		}
		if t.ActualCount > 0 && !t.TimeEnd.Equal(t.LastSentAt) {
			t.TimeEnd = t.LastSentAt
			ends++
			changed = true
		}

		if changed {
			if err := tx.Conversations().Update(ctx, &t.Conversation); err != nil {
				return 0, 0, fmt.Errorf("updating conversation %d: %w", t.ID, err)
			}
		}
	}

	return counts, ends, nil
}

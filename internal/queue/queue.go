// Package queue is the durable pending-action log: an ordered record of
// mutations performed while offline or speculatively, drained by the sync
// coordinator once connectivity returns. Conflicting actions for the same
// record (e.g. a delete after an update) are kept as-is and replayed in
// order; the queue does not collapse or deduplicate them.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"inventory-sync-service/internal/logger"
	"inventory-sync-service/internal/store"
)

type Queue struct {
	store store.Store

	mu          sync.Mutex
	subs        map[int]func(pending int)
	nextID      int
	lastPending int
}

func New(st store.Store) *Queue {
	return &Queue{
		store: st,
		subs:  make(map[int]func(int)),
	}
}

// Enqueue appends a pending action and returns its id. The action is durable
// before Enqueue returns.
func (q *Queue) Enqueue(ctx context.Context, entityName, action string, payload any) (string, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode payload: %w", err)
	}

	now := time.Now().UTC()
	pa := &store.PendingAction{
		ID:         uuid.New().String(),
		EntityName: entityName,
		Action:     action,
		Payload:    raw,
		Status:     store.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := q.store.InsertAction(ctx, pa); err != nil {
		return "", err
	}

	q.notify(ctx)
	return pa.ID, nil
}

// List returns actions ordered by enqueue time ascending. An empty status
// returns all of them.
func (q *Queue) List(ctx context.Context, status string) ([]*store.PendingAction, error) {
	return q.store.ListActions(ctx, status)
}

func (q *Queue) MarkSynced(ctx context.Context, actionID string) error {
	if err := q.store.UpdateActionStatus(ctx, actionID, store.StatusSynced, ""); err != nil {
		return err
	}
	q.notify(ctx)
	return nil
}

func (q *Queue) MarkFailed(ctx context.Context, actionID, reason string) error {
	if err := q.store.UpdateActionStatus(ctx, actionID, store.StatusFailed, reason); err != nil {
		return err
	}
	q.notify(ctx)
	return nil
}

func (q *Queue) CountPending(ctx context.Context) (int, error) {
	return q.store.CountActions(ctx, store.StatusPending)
}

func (q *Queue) CountFailed(ctx context.Context) (int, error) {
	return q.store.CountActions(ctx, store.StatusFailed)
}

// PruneSynced removes synced entries, which are retained only transiently for
// observability. Failed entries stay for manual inspection.
func (q *Queue) PruneSynced(ctx context.Context) (int, error) {
	return q.store.DeleteActionsByStatus(ctx, store.StatusSynced)
}

// ClearFailed removes failed entries once an operator has dealt with them.
func (q *Queue) ClearFailed(ctx context.Context) (int, error) {
	n, err := q.store.DeleteActionsByStatus(ctx, store.StatusFailed)
	if err != nil {
		return 0, err
	}
	q.notify(ctx)
	return n, nil
}

// Subscribe registers a callback invoked with the pending count after every
// queue change. Returns an unsubscribe func. Callers poll or subscribe; the
// queue has no knowledge of any UI layer.
func (q *Queue) Subscribe(fn func(pending int)) func() {
	q.mu.Lock()
	defer q.mu.Unlock()

	id := q.nextID
	q.nextID++
	q.subs[id] = fn

	return func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		delete(q.subs, id)
	}
}

func (q *Queue) notify(ctx context.Context) {
	q.mu.Lock()
	subs := make([]func(int), 0, len(q.subs))
	for _, fn := range q.subs {
		subs = append(subs, fn)
	}
	q.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	count, err := q.CountPending(ctx)
	if err != nil {
		// Subscribers still hear about the change, with the last count we
		// could actually read.
		logger.Log.Error("Failed to count pending actions for notify", zap.Error(err))
		q.mu.Lock()
		count = q.lastPending
		q.mu.Unlock()
	} else {
		q.mu.Lock()
		q.lastPending = count
		q.mu.Unlock()
	}
	for _, fn := range subs {
		fn(count)
	}
}

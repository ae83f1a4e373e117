package queue

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inventory-sync-service/internal/store"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return New(st)
}

func TestEnqueue_DurableAndPending(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id, err := q.Enqueue(ctx, "suppliers", store.ActionUpdate, store.Record{"id": "7", "name": "Acme Corp"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	count, err := q.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	actions, err := q.List(ctx, store.StatusPending)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, id, actions[0].ID)
	assert.Equal(t, "suppliers", actions[0].EntityName)
	assert.Equal(t, store.ActionUpdate, actions[0].Action)
	assert.JSONEq(t, `{"id":"7","name":"Acme Corp"}`, string(actions[0].Payload))
}

func TestList_FIFOOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id1, err := q.Enqueue(ctx, "inventory", store.ActionUpdate, store.Record{"id": "x", "field": 1})
	require.NoError(t, err)
	id2, err := q.Enqueue(ctx, "inventory", store.ActionUpdate, store.Record{"id": "x", "field": 2})
	require.NoError(t, err)

	actions, err := q.List(ctx, store.StatusPending)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, id1, actions[0].ID)
	assert.Equal(t, id2, actions[1].ID)
}

func TestConflictingActions_NotCollapsed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	// An update followed by a delete of the same record stays two entries;
	// replay order decides the final state.
	_, err := q.Enqueue(ctx, "menu", store.ActionUpdate, store.Record{"id": "5", "name": "soup"})
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "menu", store.ActionDelete, store.Record{"id": "5"})
	require.NoError(t, err)

	actions, err := q.List(ctx, store.StatusPending)
	require.NoError(t, err)
	require.Len(t, actions, 2)
	assert.Equal(t, store.ActionUpdate, actions[0].Action)
	assert.Equal(t, store.ActionDelete, actions[1].Action)
}

func TestMarkSyncedAndFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id1, _ := q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "cake"})
	id2, _ := q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "pie"})

	require.NoError(t, q.MarkSynced(ctx, id1))
	require.NoError(t, q.MarkFailed(ctx, id2, "server exploded"))

	count, err := q.CountPending(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	failed, err := q.List(ctx, store.StatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, id2, failed[0].ID)
	assert.Equal(t, "server exploded", failed[0].ErrorMessage.String)
}

func TestPruneSynced_RetainsFailed(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	id1, _ := q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "cake"})
	id2, _ := q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "pie"})
	q.MarkSynced(ctx, id1)
	q.MarkFailed(ctx, id2, "boom")

	n, err := q.PruneSynced(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := q.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, store.StatusFailed, remaining[0].Status)

	cleared, err := q.ClearFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, cleared)
}

// countFailingStore makes CountActions fail on demand so notify's degraded
// path is reachable without tearing down the whole store.
type countFailingStore struct {
	store.Store
	fail bool
}

func (s *countFailingStore) CountActions(ctx context.Context, status string) (int, error) {
	if s.fail {
		return 0, errors.New("counts unavailable")
	}
	return s.Store.CountActions(ctx, status)
}

func TestSubscribe_NotifiedWithLastKnownCountOnError(t *testing.T) {
	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	flaky := &countFailingStore{Store: st}
	q := New(flaky)
	ctx := context.Background()

	var counts []int
	q.Subscribe(func(pending int) {
		counts = append(counts, pending)
	})

	_, err = q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "cake"})
	require.NoError(t, err)
	require.Equal(t, []int{1}, counts)

	// The count query breaking must not silence subscribers; they get the
	// last count that could be read.
	flaky.fail = true
	_, err = q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "pie"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1}, counts)

	flaky.fail = false
	_, err = q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "tart"})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 1, 3}, counts)
}

func TestSubscribe_NotifiesOnChange(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	var counts []int
	unsub := q.Subscribe(func(pending int) {
		counts = append(counts, pending)
	})

	id, _ := q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "cake"})
	q.MarkSynced(ctx, id)

	require.Equal(t, []int{1, 0}, counts)

	unsub()
	q.Enqueue(ctx, "menu", store.ActionCreate, store.Record{"name": "pie"})
	assert.Len(t, counts, 2, "unsubscribed callback must not fire")
}

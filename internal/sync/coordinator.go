package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	stdsync "sync"
	"time"

	"go.uber.org/zap"

	"inventory-sync-service/internal/cache"
	"inventory-sync-service/internal/client"
	"inventory-sync-service/internal/logger"
	"inventory-sync-service/internal/network"
	"inventory-sync-service/internal/queue"
	"inventory-sync-service/internal/registry"
	"inventory-sync-service/internal/store"
)

// ErrSyncInProgress is returned when a pass is requested while one is running.
var ErrSyncInProgress = errors.New("sync is already in progress")

// Coordinator drains the pending-action queue against the network. It runs a
// pass when connectivity returns and on demand; each pass snapshots the
// pending actions at trigger time and replays them in enqueue order. Failed
// actions are left for explicit operator action, never auto-retried.
type Coordinator struct {
	registry *registry.Registry
	store    store.Store
	cache    *cache.Cache
	queue    *queue.Queue
	monitor  *network.Monitor
	client   *client.Client

	mu         stdsync.Mutex
	syncing    bool
	lastRun    time.Time
	lastReport *Report
	unsub      func()
}

func NewCoordinator(reg *registry.Registry, st store.Store, ca *cache.Cache, q *queue.Queue, mon *network.Monitor, cl *client.Client) *Coordinator {
	return &Coordinator{
		registry: reg,
		store:    st,
		cache:    ca,
		queue:    q,
		monitor:  mon,
		client:   cl,
	}
}

// Start subscribes to connectivity transitions. A pass is kicked off whenever
// the device comes back online.
func (c *Coordinator) Start() {
	c.unsub = c.monitor.Subscribe(func(online bool) {
		if !online {
			return
		}
		go func() {
			if _, err := c.SyncNow(context.Background()); err != nil && !errors.Is(err, ErrSyncInProgress) {
				logger.Log.Error("Reconnect sync failed", zap.Error(err))
			}
		}()
	})
}

func (c *Coordinator) Stop() {
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}

// SyncNow runs one sync pass and reports how many actions synced or failed.
// A single failure does not abort the batch; the failed entry is marked and
// the pass continues with its siblings.
func (c *Coordinator) SyncNow(ctx context.Context) (*Report, error) {
	c.mu.Lock()
	if c.syncing {
		c.mu.Unlock()
		return nil, ErrSyncInProgress
	}
	c.syncing = true
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.syncing = false
		c.mu.Unlock()
	}()

	// Snapshot at trigger time; actions enqueued during the pass wait for
	// the next one.
	actions, err := c.queue.List(ctx, store.StatusPending)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, action := range actions {
		if err := c.replay(ctx, action); err != nil {
			logger.Log.Warn("Failed to replay action",
				zap.String("actionID", action.ID),
				zap.String("entity", action.EntityName),
				zap.String("action", action.Action),
				zap.Error(err),
			)
			if mErr := c.queue.MarkFailed(ctx, action.ID, err.Error()); mErr != nil {
				logger.Log.Error("Failed to mark action failed", zap.String("actionID", action.ID), zap.Error(mErr))
			}
			report.Failed++
			continue
		}
		if mErr := c.queue.MarkSynced(ctx, action.ID); mErr != nil {
			logger.Log.Error("Failed to mark action synced", zap.String("actionID", action.ID), zap.Error(mErr))
		}
		report.Synced++
	}

	c.mu.Lock()
	c.lastRun = time.Now()
	c.lastReport = report
	c.mu.Unlock()

	if len(actions) > 0 {
		logger.Log.Info("Sync pass complete",
			zap.Int("synced", report.Synced),
			zap.Int("failed", report.Failed),
		)
	}
	return report, nil
}

// LastRun returns when the last pass finished and its report, or a zero time
// when no pass has run yet.
func (c *Coordinator) LastRun() (time.Time, *Report) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastRun, c.lastReport
}

func (c *Coordinator) Syncing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.syncing
}

// replay performs the network call for one action and reconciles local state
// with the server's answer. Once the network call succeeds the action counts
// as synced; local bookkeeping failures are logged, not replayed, to avoid
// duplicating the mutation remotely.
func (c *Coordinator) replay(ctx context.Context, action *store.PendingAction) error {
	col, ok := c.registry.Get(action.EntityName)
	if !ok {
		return fmt.Errorf("unknown collection %s", action.EntityName)
	}

	var payload store.Record
	if err := json.Unmarshal(action.Payload, &payload); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	switch action.Action {
	case store.ActionCreate:
		tempID := payload.ID()
		resp, err := c.client.Do(ctx, http.MethodPost, col.Endpoint, withoutTempID(payload))
		if err != nil {
			return err
		}
		if strings.HasPrefix(tempID, "temp-") {
			// The optimistic placeholder is superseded by the server record.
			if dErr := c.store.Delete(ctx, action.EntityName, tempID); dErr != nil {
				logger.Log.Warn("Failed to drop placeholder record", zap.String("id", tempID), zap.Error(dErr))
			}
		}
		if pErr := c.store.Put(ctx, action.EntityName, recordFrom(resp, payload)); pErr != nil {
			logger.Log.Warn("Failed to persist synced record", zap.String("entity", action.EntityName), zap.Error(pErr))
		}

	case store.ActionUpdate:
		resp, err := c.client.Do(ctx, http.MethodPut, mutationPath(col.Endpoint, action.Action, payload.ID()), payload)
		if err != nil {
			return err
		}
		if pErr := c.store.Put(ctx, action.EntityName, recordFrom(resp, payload)); pErr != nil {
			logger.Log.Warn("Failed to persist synced record", zap.String("entity", action.EntityName), zap.Error(pErr))
		}

	case store.ActionDelete:
		if _, err := c.client.Do(ctx, http.MethodDelete, mutationPath(col.Endpoint, action.Action, payload.ID()), nil); err != nil {
			return err
		}
		if dErr := c.store.Delete(ctx, action.EntityName, payload.ID()); dErr != nil {
			logger.Log.Warn("Failed to delete synced record", zap.String("entity", action.EntityName), zap.Error(dErr))
		}

	default:
		return fmt.Errorf("unknown action type %s", action.Action)
	}

	// Drop the cached aggregate so later reads observe server truth rather
	// than the optimistic local value.
	if col.CacheKey != "" {
		if err := c.cache.Remove(ctx, col.CacheKey); err != nil {
			logger.Log.Warn("Failed to invalidate cache entry", zap.String("key", col.CacheKey), zap.Error(err))
		}
	}
	return nil
}

// withoutTempID strips a synthetic placeholder id before the create is sent;
// the server assigns the real one.
func withoutTempID(payload store.Record) store.Record {
	id := payload.ID()
	if !strings.HasPrefix(id, "temp-") {
		return payload
	}
	out := make(store.Record, len(payload))
	for k, v := range payload {
		if k == "id" {
			continue
		}
		out[k] = v
	}
	return out
}

package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
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

// Manager is the read/write entry point callers use. It resolves reads
// against the local store or ephemeral cache first, goes to the network when
// online, and falls back to cache or the pending queue on failure. It owns
// orchestration only; all durable state lives in the store and queue.
type Manager struct {
	registry *registry.Registry
	store    store.Store
	cache    *cache.Cache
	queue    *queue.Queue
	monitor  *network.Monitor
	client   *client.Client

	refreshTimeout time.Duration
}

func NewManager(reg *registry.Registry, st store.Store, ca *cache.Cache, q *queue.Queue, mon *network.Monitor, cl *client.Client) *Manager {
	return &Manager{
		registry:       reg,
		store:          st,
		cache:          ca,
		queue:          q,
		monitor:        mon,
		client:         cl,
		refreshTimeout: 5 * time.Second,
	}
}

// Read resolves a read request. Order: durable fast path (collection reads)
// or fresh cache entry (aggregate reads), then network when online, then
// cached fallback, then FallbackData, then an offline error.
func (m *Manager) Read(ctx context.Context, opts ReadOptions) (*ReadResult, error) {
	endpoint, cacheKey, ttl := m.resolveRead(&opts)
	if endpoint == "" {
		return nil, &client.ValidationError{Field: "endpoint", Message: "no endpoint for read"}
	}

	// Fast path: cached data is returned immediately; a background refresh
	// keeps it current when online.
	if opts.Collection != "" {
		records, err := m.store.GetAll(ctx, opts.Collection)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			if m.monitor.IsOnline() {
				go m.refreshCollection(opts.Collection, endpoint)
			}
			data, err := json.Marshal(records)
			if err != nil {
				return nil, fmt.Errorf("failed to encode records: %w", err)
			}
			return &ReadResult{Data: data, FromCache: true}, nil
		}
	}
	// Collections with aggregate payloads land in the ephemeral cache rather
	// than the record store, so a fresh entry serves them too.
	if cacheKey != "" {
		entry, err := m.cache.Get(ctx, cacheKey)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return &ReadResult{Data: entry.Data, FromCache: true}, nil
		}
	}

	if !m.monitor.IsOnline() {
		return m.readFallback(ctx, opts, cacheKey, nil)
	}

	data, err := m.client.Get(ctx, endpoint)
	if err != nil {
		return m.readFallback(ctx, opts, cacheKey, err)
	}

	if opts.Collection != "" {
		var records []store.Record
		if jerr := json.Unmarshal(data, &records); jerr == nil {
			if err := m.store.BulkPut(ctx, opts.Collection, records); err != nil {
				return nil, err
			}
			// Re-encode so synthetic ids assigned during storage are visible.
			if data, err = json.Marshal(records); err != nil {
				return nil, fmt.Errorf("failed to encode records: %w", err)
			}
		} else if cacheKey != "" {
			if err := m.cache.Set(ctx, cacheKey, data, ttl); err != nil {
				return nil, err
			}
		}
	} else if cacheKey != "" {
		if err := m.cache.Set(ctx, cacheKey, data, ttl); err != nil {
			return nil, err
		}
	}

	return &ReadResult{Data: data, FromCache: false}, nil
}

// readFallback handles a read that could not be served fresh. cause is nil
// when the device is offline, non-nil when an online request failed.
func (m *Manager) readFallback(ctx context.Context, opts ReadOptions, cacheKey string, cause error) (*ReadResult, error) {
	if cacheKey != "" {
		entry, err := m.cache.Get(ctx, cacheKey)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return &ReadResult{Data: entry.Data, FromCache: true}, nil
		}
	}

	if opts.FallbackData != nil {
		data, err := json.Marshal(opts.FallbackData)
		if err != nil {
			return nil, fmt.Errorf("failed to encode fallback data: %w", err)
		}
		logger.Log.Warn("Read degraded to fallback data",
			zap.String("collection", opts.Collection),
			zap.String("cacheKey", cacheKey),
			zap.Error(cause),
		)
		return &ReadResult{Data: data, FromCache: true}, nil
	}

	if cause == nil {
		resource := opts.Collection
		if resource == "" {
			resource = cacheKey
		}
		return nil, &client.OfflineError{Resource: resource}
	}
	return nil, cause
}

// Write performs a mutation. Online it goes straight to the network; offline,
// or when the network fails for a retriable reason, the action is queued and
// applied optimistically so subsequent reads reflect the user's intent.
// Availability failures never surface to the caller; a 4xx rejection does.
func (m *Manager) Write(ctx context.Context, opts WriteOptions) (*WriteResult, error) {
	if opts.Payload == nil {
		opts.Payload = store.Record{}
	}
	if err := validateWrite(opts); err != nil {
		return nil, err
	}

	col, _ := m.registry.Get(opts.Collection)
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = col.Endpoint
	}
	if endpoint == "" {
		return nil, &client.ValidationError{Field: "collection", Message: "unknown collection " + opts.Collection}
	}

	if m.monitor.IsOnline() {
		resp, err := m.client.Do(ctx, methodFor(opts.Action), mutationPath(endpoint, opts.Action, opts.Payload.ID()), bodyFor(opts.Action, opts.Payload))
		if err == nil {
			if err := m.applyServerResult(ctx, opts, resp); err != nil {
				return nil, err
			}
			if col.CacheKey != "" {
				if err := m.cache.Remove(ctx, col.CacheKey); err != nil {
					return nil, err
				}
			}
			return &WriteResult{Data: resp}, nil
		}

		var httpErr *client.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status < 500 {
			// The server rejected the mutation; queueing would only replay
			// the same rejection.
			return nil, err
		}
		logger.Log.Warn("Write failed, queueing for sync",
			zap.String("collection", opts.Collection),
			zap.String("action", opts.Action),
			zap.Error(err),
		)
	}

	if opts.Action == store.ActionCreate {
		// Synthetic id so local reads see the new record until the server
		// assigns a real one.
		store.EnsureID(opts.Payload, 0)
	}

	actionID, err := m.queue.Enqueue(ctx, opts.Collection, opts.Action, opts.Payload)
	if err != nil {
		return nil, err
	}

	switch opts.Action {
	case store.ActionCreate, store.ActionUpdate:
		if err := m.store.Put(ctx, opts.Collection, opts.Payload); err != nil {
			return nil, err
		}
	case store.ActionDelete:
		if err := m.store.Delete(ctx, opts.Collection, opts.Payload.ID()); err != nil {
			return nil, err
		}
	}

	return &WriteResult{Queued: true, ActionID: actionID}, nil
}

// PendingCount reports how many actions await replay.
func (m *Manager) PendingCount(ctx context.Context) (int, error) {
	return m.queue.CountPending(ctx)
}

// SubscribeConnectivity forwards to the connectivity monitor.
func (m *Manager) SubscribeConnectivity(fn func(online bool)) func() {
	return m.monitor.Subscribe(fn)
}

func (m *Manager) resolveRead(opts *ReadOptions) (endpoint, cacheKey string, ttl time.Duration) {
	endpoint = opts.Endpoint
	cacheKey = opts.CacheKey
	ttl = opts.TTL

	if opts.Collection != "" {
		if col, ok := m.registry.Get(opts.Collection); ok {
			if endpoint == "" {
				endpoint = col.Endpoint
			}
			if cacheKey == "" {
				cacheKey = col.CacheKey
			}
			if ttl == 0 {
				ttl = col.CacheTTL
			}
		}
	}
	return endpoint, cacheKey, ttl
}

// refreshCollection re-fetches a collection in the background after a fast
// path hit. Bounded by its own timeout so a slow network never blocks
// availability of cached data.
func (m *Manager) refreshCollection(collection, endpoint string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.refreshTimeout)
	defer cancel()

	data, err := m.client.Get(ctx, endpoint)
	if err != nil {
		logger.Log.Debug("Background refresh failed",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return
	}

	var records []store.Record
	if err := json.Unmarshal(data, &records); err != nil {
		logger.Log.Debug("Background refresh returned non-collection payload",
			zap.String("collection", collection),
			zap.Error(err),
		)
		return
	}
	if err := m.store.BulkPut(ctx, collection, records); err != nil {
		logger.Log.Warn("Background refresh failed to persist",
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
}

func (m *Manager) applyServerResult(ctx context.Context, opts WriteOptions, resp json.RawMessage) error {
	switch opts.Action {
	case store.ActionCreate, store.ActionUpdate:
		rec := recordFrom(resp, opts.Payload)
		return m.store.Put(ctx, opts.Collection, rec)
	case store.ActionDelete:
		return m.store.Delete(ctx, opts.Collection, opts.Payload.ID())
	}
	return nil
}

func validateWrite(opts WriteOptions) error {
	switch opts.Action {
	case store.ActionCreate, store.ActionUpdate, store.ActionDelete:
	default:
		return &client.ValidationError{Field: "action", Message: "unknown action " + opts.Action}
	}
	if opts.Collection == "" && opts.Endpoint == "" {
		return &client.ValidationError{Field: "collection", Message: "collection or endpoint is required"}
	}
	if opts.Action != store.ActionCreate && opts.Payload.ID() == "" {
		return &client.ValidationError{Field: "id", Message: "id is required for " + opts.Action}
	}
	return nil
}

func methodFor(action string) string {
	switch action {
	case store.ActionCreate:
		return http.MethodPost
	case store.ActionUpdate:
		return http.MethodPut
	default:
		return http.MethodDelete
	}
}

func mutationPath(endpoint, action, id string) string {
	if action == store.ActionCreate || id == "" {
		return endpoint
	}
	return strings.TrimRight(endpoint, "/") + "/" + id
}

func bodyFor(action string, payload store.Record) any {
	if action == store.ActionDelete {
		return nil
	}
	return payload
}

// recordFrom extracts the authoritative record from a server response,
// falling back to the submitted payload when the response is not a record.
// Handles both bare objects and {"data": {...}} envelopes.
func recordFrom(resp json.RawMessage, fallback store.Record) store.Record {
	var rec store.Record
	if err := json.Unmarshal(resp, &rec); err == nil && rec.ID() != "" {
		return rec
	}
	var envelope struct {
		Data store.Record `json:"data"`
	}
	if err := json.Unmarshal(resp, &envelope); err == nil && envelope.Data.ID() != "" {
		return envelope.Data
	}
	return fallback
}

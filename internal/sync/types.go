package sync

import (
	"encoding/json"
	"time"

	"inventory-sync-service/internal/store"
)

// ReadOptions describes one read through the facade. Collection reads resolve
// against the durable store; aggregate reads (empty Collection, CacheKey set)
// resolve against the ephemeral cache. Endpoint, CacheKey and TTL default to
// the registry entry for Collection when left empty.
type ReadOptions struct {
	Collection   string
	Endpoint     string
	CacheKey     string
	TTL          time.Duration
	FallbackData any
}

type ReadResult struct {
	Data      json.RawMessage `json:"data"`
	FromCache bool            `json:"from_cache"`
}

type WriteOptions struct {
	Collection string
	Endpoint   string
	Action     string // create, update or delete
	Payload    store.Record
}

// WriteResult reports either the server response (Queued=false) or the
// "accepted, queued for sync" outcome (Queued=true) so callers never need a
// special offline path.
type WriteResult struct {
	Queued   bool            `json:"queued"`
	ActionID string          `json:"action_id,omitempty"`
	Data     json.RawMessage `json:"data,omitempty"`
}

// Report counts the outcome of one sync pass.
type Report struct {
	Synced int `json:"synced"`
	Failed int `json:"failed"`
}

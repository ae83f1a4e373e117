package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Record is one JSON entity within a collection. Every record persisted to the
// store carries a stable "id"; records arriving without one are assigned a
// synthetic temporary id before storage so upserts stay duplicate-free.
type Record map[string]any

func (r Record) ID() string {
	switch v := r["id"].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	case int:
		return fmt.Sprintf("%d", v)
	case int64:
		return fmt.Sprintf("%d", v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}

// EnsureID assigns a synthetic temp id when the record has none. The index
// keeps ids unique within a single bulk upsert.
func EnsureID(r Record, index int) string {
	if id := r.ID(); id != "" {
		return id
	}
	id := fmt.Sprintf("temp-%d-%d", time.Now().UnixMilli(), index)
	r["id"] = id
	return id
}

const (
	ActionCreate = "create"
	ActionUpdate = "update"
	ActionDelete = "delete"
)

const (
	StatusPending = "pending"
	StatusSynced  = "synced"
	StatusFailed  = "failed"
)

// PendingAction is one durable queued mutation awaiting network replay.
type PendingAction struct {
	Seq          int64           `db:"seq"`
	ID           string          `db:"id"`
	EntityName   string          `db:"entity_name"`
	Action       string          `db:"action"`
	Payload      json.RawMessage `db:"payload"`
	Status       string          `db:"status"`
	ErrorMessage sql.NullString  `db:"error_message"`
	CreatedAt    time.Time       `db:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at"`
}

// CacheEntry is one row of the aggregate-response cache. TTL of zero means
// the entry never goes stale.
type CacheEntry struct {
	Key      string          `db:"cache_key"`
	Data     json.RawMessage `db:"data"`
	Version  int64           `db:"version"`
	StoredAt time.Time       `db:"stored_at"`
	TTL      time.Duration   `db:"ttl_ms"`
}

type CollectionStats struct {
	Collection string `json:"collection"`
	Records    int64  `json:"records"`
	Bytes      int64  `json:"bytes"`
}

type Stats struct {
	Collections    []CollectionStats `json:"collections"`
	TotalRecords   int64             `json:"total_records"`
	TotalBytes     int64             `json:"total_bytes"`
	CacheEntries   int64             `json:"cache_entries"`
	PendingActions int64             `json:"pending_actions"`
}

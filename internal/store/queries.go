package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// sqlStore holds the query logic shared by the SQLite and MySQL backends.
// Only the upsert statements differ between dialects.
type sqlStore struct {
	db           *sql.DB
	upsertRecord string
	upsertCache  string
}

func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) GetAll(ctx context.Context, collection string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM records WHERE collection = ? ORDER BY id`, collection)
	if err != nil {
		return nil, wrapErr("get all "+collection, err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, wrapErr("scan record", err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, wrapErr("decode record", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("get all "+collection, err)
	}
	return records, nil
}

func (s *sqlStore) GetByID(ctx context.Context, collection, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE collection = ? AND id = ?`, collection, id)

	var raw []byte
	err := row.Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get by id", err)
	}

	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, wrapErr("decode record", err)
	}
	return rec, nil
}

func (s *sqlStore) Put(ctx context.Context, collection string, record Record) error {
	id := EnsureID(record, 0)
	raw, err := json.Marshal(record)
	if err != nil {
		return wrapErr("encode record", err)
	}
	_, err = s.db.ExecContext(ctx, s.upsertRecord, collection, id, string(raw), time.Now().UTC())
	return wrapErr("put "+collection, err)
}

// BulkPut upserts all records in one transaction. Partial application does
// not occur: any failure rolls the whole batch back.
func (s *sqlStore) BulkPut(ctx context.Context, collection string, records []Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr("begin bulk put", err)
	}

	now := time.Now().UTC()
	for i, rec := range records {
		id := EnsureID(rec, i)
		raw, err := json.Marshal(rec)
		if err != nil {
			tx.Rollback()
			return wrapErr("encode record", err)
		}
		if _, err := tx.ExecContext(ctx, s.upsertRecord, collection, id, string(raw), now); err != nil {
			tx.Rollback()
			return wrapErr("bulk put "+collection, err)
		}
	}

	return wrapErr("commit bulk put", tx.Commit())
}

func (s *sqlStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	return wrapErr("delete "+collection, err)
}

func (s *sqlStore) Clear(ctx context.Context, collection string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM records WHERE collection = ?`, collection)
	return wrapErr("clear "+collection, err)
}

func (s *sqlStore) Stats(ctx context.Context) (*Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT collection, COUNT(*), COALESCE(SUM(LENGTH(data)), 0)
		 FROM records GROUP BY collection ORDER BY collection`)
	if err != nil {
		return nil, wrapErr("stats", err)
	}
	defer rows.Close()

	stats := &Stats{}
	for rows.Next() {
		var cs CollectionStats
		if err := rows.Scan(&cs.Collection, &cs.Records, &cs.Bytes); err != nil {
			return nil, wrapErr("scan stats", err)
		}
		stats.Collections = append(stats.Collections, cs)
		stats.TotalRecords += cs.Records
		stats.TotalBytes += cs.Bytes
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("stats", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM cache_entries`).Scan(&stats.CacheEntries); err != nil {
		return nil, wrapErr("stats cache entries", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_actions WHERE status = ?`, StatusPending).Scan(&stats.PendingActions); err != nil {
		return nil, wrapErr("stats pending actions", err)
	}
	return stats, nil
}

func (s *sqlStore) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, data, version, stored_at, ttl_ms FROM cache_entries WHERE cache_key = ?`, key)

	var e CacheEntry
	var raw []byte
	var ttlMs int64
	err := row.Scan(&e.Key, &raw, &e.Version, &e.StoredAt, &ttlMs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get cache entry", err)
	}
	e.Data = json.RawMessage(raw)
	e.TTL = time.Duration(ttlMs) * time.Millisecond
	return &e, nil
}

func (s *sqlStore) PutCacheEntry(ctx context.Context, entry *CacheEntry) error {
	_, err := s.db.ExecContext(ctx, s.upsertCache,
		entry.Key, string(entry.Data), entry.StoredAt.UTC(), entry.TTL.Milliseconds())
	return wrapErr("put cache entry", err)
}

func (s *sqlStore) DeleteCacheEntry(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE cache_key = ?`, key)
	return wrapErr("delete cache entry", err)
}

func (s *sqlStore) ListCacheKeys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT cache_key FROM cache_entries ORDER BY cache_key`)
	if err != nil {
		return nil, wrapErr("list cache keys", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, wrapErr("scan cache key", err)
		}
		keys = append(keys, k)
	}
	return keys, wrapErr("list cache keys", rows.Err())
}

func (s *sqlStore) ClearCacheEntries(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return wrapErr("clear cache entries", err)
}

func (s *sqlStore) InsertAction(ctx context.Context, action *PendingAction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO pending_actions (id, entity_name, action, payload, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		action.ID,
		action.EntityName,
		action.Action,
		string(action.Payload),
		action.Status,
		action.CreatedAt.UTC(),
		action.UpdatedAt.UTC(),
	)
	return wrapErr("insert action", err)
}

// ListActions returns actions ordered by enqueue time ascending. An empty
// status returns every action.
func (s *sqlStore) ListActions(ctx context.Context, status string) ([]*PendingAction, error) {
	query := `SELECT seq, id, entity_name, action, payload, status, error_message, created_at, updated_at
			  FROM pending_actions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY seq ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr("list actions", err)
	}
	defer rows.Close()

	var actions []*PendingAction
	for rows.Next() {
		var a PendingAction
		var payload []byte
		err := rows.Scan(
			&a.Seq,
			&a.ID,
			&a.EntityName,
			&a.Action,
			&payload,
			&a.Status,
			&a.ErrorMessage,
			&a.CreatedAt,
			&a.UpdatedAt,
		)
		if err != nil {
			return nil, wrapErr("scan action", err)
		}
		a.Payload = json.RawMessage(payload)
		actions = append(actions, &a)
	}
	return actions, wrapErr("list actions", rows.Err())
}

func (s *sqlStore) UpdateActionStatus(ctx context.Context, id, status, errorMessage string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_actions SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status,
		sql.NullString{String: errorMessage, Valid: errorMessage != ""},
		time.Now().UTC(),
		id,
	)
	if err != nil {
		return wrapErr("update action status", err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return wrapErr("update action status", fmt.Errorf("action %s not found", id))
	}
	return nil
}

func (s *sqlStore) CountActions(ctx context.Context, status string) (int, error) {
	query := `SELECT COUNT(*) FROM pending_actions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	var count int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&count)
	return count, wrapErr("count actions", err)
}

func (s *sqlStore) DeleteActionsByStatus(ctx context.Context, status string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_actions WHERE status = ?`, status)
	if err != nil {
		return 0, wrapErr("delete actions", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

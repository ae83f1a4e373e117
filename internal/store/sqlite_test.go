package store

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// createTestStore opens a fresh sqlite store in a temp dir.
func createTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestNewSQLiteStore_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := NewSQLiteStore(path)
		if err != nil {
			t.Fatalf("NewSQLiteStore() iteration %d failed: %v", i, err)
		}
		s.Close()
	}
}

func TestPut_IdempotentUpsert(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := Record{"id": "7", "name": "Acme"}
	if err := s.Put(ctx, "suppliers", rec); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(ctx, "suppliers", rec); err != nil {
		t.Fatalf("second Put() failed: %v", err)
	}

	all, err := s.GetAll(ctx, "suppliers")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(all))
	}
	if all[0].ID() != "7" || all[0]["name"] != "Acme" {
		t.Errorf("unexpected record: %v", all[0])
	}
}

func TestPut_OverwritesPriorValue(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "suppliers", Record{"id": "7", "name": "Acme"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}
	if err := s.Put(ctx, "suppliers", Record{"id": "7", "name": "Acme Corp"}); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	rec, err := s.GetByID(ctx, "suppliers", "7")
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if rec["name"] != "Acme Corp" {
		t.Errorf("expected overwritten name, got %v", rec["name"])
	}
}

func TestPut_AssignsSyntheticID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	rec := Record{"name": "no id yet"}
	if err := s.Put(ctx, "inventory", rec); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	id := rec.ID()
	if !strings.HasPrefix(id, "temp-") {
		t.Errorf("expected synthetic temp id, got %q", id)
	}

	stored, err := s.GetByID(ctx, "inventory", id)
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if stored == nil {
		t.Fatal("record not stored under synthetic id")
	}
}

func TestGetByID_Absent(t *testing.T) {
	s := createTestStore(t)

	rec, err := s.GetByID(context.Background(), "inventory", "missing")
	if err != nil {
		t.Fatalf("GetByID() failed: %v", err)
	}
	if rec != nil {
		t.Errorf("expected nil for absent record, got %v", rec)
	}
}

func TestGetAll_EmptyCollection(t *testing.T) {
	s := createTestStore(t)

	all, err := s.GetAll(context.Background(), "never_populated")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("expected empty sequence, got %d records", len(all))
	}
}

func TestBulkPut_AllOrNothing(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	// The second record cannot be JSON encoded; the whole batch must roll
	// back, leaving the collection untouched.
	records := []Record{
		{"id": "1", "name": "flour"},
		{"id": "2", "bad": make(chan int)},
		{"id": "3", "name": "sugar"},
	}
	if err := s.BulkPut(ctx, "inventory", records); err == nil {
		t.Fatal("expected BulkPut to fail")
	}

	all, err := s.GetAll(ctx, "inventory")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 0 {
		t.Errorf("partial application occurred: %d records stored", len(all))
	}
}

func TestBulkPut_UpsertsMany(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BulkPut(ctx, "inventory", []Record{
		{"id": "1", "name": "flour"},
		{"id": "2", "name": "sugar"},
	}); err != nil {
		t.Fatalf("BulkPut() failed: %v", err)
	}
	// Overlapping second batch upserts, never duplicates.
	if err := s.BulkPut(ctx, "inventory", []Record{
		{"id": "2", "name": "brown sugar"},
		{"id": "3", "name": "salt"},
	}); err != nil {
		t.Fatalf("second BulkPut() failed: %v", err)
	}

	all, err := s.GetAll(ctx, "inventory")
	if err != nil {
		t.Fatalf("GetAll() failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}
}

func TestDeleteAndClear(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	if err := s.BulkPut(ctx, "menu", []Record{
		{"id": "1", "name": "pasta"},
		{"id": "2", "name": "pizza"},
	}); err != nil {
		t.Fatalf("BulkPut() failed: %v", err)
	}

	if err := s.Delete(ctx, "menu", "1"); err != nil {
		t.Fatalf("Delete() failed: %v", err)
	}
	rec, err := s.GetByID(ctx, "menu", "1")
	if err != nil || rec != nil {
		t.Errorf("expected record gone, got %v (err %v)", rec, err)
	}

	if err := s.Clear(ctx, "menu"); err != nil {
		t.Fatalf("Clear() failed: %v", err)
	}
	all, _ := s.GetAll(ctx, "menu")
	if len(all) != 0 {
		t.Errorf("expected cleared collection, got %d records", len(all))
	}
}

func TestStats(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	s.BulkPut(ctx, "inventory", []Record{{"id": "1"}, {"id": "2"}})
	s.Put(ctx, "menu", Record{"id": "1"})
	s.InsertAction(ctx, &PendingAction{
		ID: "a1", EntityName: "menu", Action: ActionUpdate,
		Payload: []byte(`{}`), Status: StatusPending,
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	})

	stats, err := s.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats() failed: %v", err)
	}
	if stats.TotalRecords != 3 {
		t.Errorf("expected 3 total records, got %d", stats.TotalRecords)
	}
	if len(stats.Collections) != 2 {
		t.Errorf("expected 2 collections, got %d", len(stats.Collections))
	}
	if stats.TotalBytes <= 0 {
		t.Errorf("expected positive size estimate, got %d", stats.TotalBytes)
	}
	if stats.PendingActions != 1 {
		t.Errorf("expected 1 pending action, got %d", stats.PendingActions)
	}
}

func TestCacheEntries_VersionIncrements(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	entry := &CacheEntry{
		Key:      "dashboard_report",
		Data:     []byte(`{"total":10}`),
		StoredAt: time.Now(),
		TTL:      5 * time.Minute,
	}
	if err := s.PutCacheEntry(ctx, entry); err != nil {
		t.Fatalf("PutCacheEntry() failed: %v", err)
	}
	entry.Data = []byte(`{"total":11}`)
	if err := s.PutCacheEntry(ctx, entry); err != nil {
		t.Fatalf("second PutCacheEntry() failed: %v", err)
	}

	got, err := s.GetCacheEntry(ctx, "dashboard_report")
	if err != nil {
		t.Fatalf("GetCacheEntry() failed: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("expected version 2 after overwrite, got %d", got.Version)
	}
	if string(got.Data) != `{"total":11}` {
		t.Errorf("unexpected data: %s", got.Data)
	}
	if got.TTL != 5*time.Minute {
		t.Errorf("unexpected ttl: %v", got.TTL)
	}
}

func TestPendingActions_FIFOOrder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for _, id := range []string{"a1", "a2", "a3"} {
		err := s.InsertAction(ctx, &PendingAction{
			ID: id, EntityName: "suppliers", Action: ActionUpdate,
			Payload: []byte(`{}`), Status: StatusPending,
			CreatedAt: now, UpdatedAt: now,
		})
		if err != nil {
			t.Fatalf("InsertAction(%s) failed: %v", id, err)
		}
	}

	actions, err := s.ListActions(ctx, StatusPending)
	if err != nil {
		t.Fatalf("ListActions() failed: %v", err)
	}
	if len(actions) != 3 {
		t.Fatalf("expected 3 actions, got %d", len(actions))
	}
	for i, want := range []string{"a1", "a2", "a3"} {
		if actions[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, actions[i].ID)
		}
	}
}

func TestUpdateActionStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	now := time.Now()
	s.InsertAction(ctx, &PendingAction{
		ID: "a1", EntityName: "menu", Action: ActionDelete,
		Payload: []byte(`{"id":"9"}`), Status: StatusPending,
		CreatedAt: now, UpdatedAt: now,
	})

	if err := s.UpdateActionStatus(ctx, "a1", StatusFailed, "boom"); err != nil {
		t.Fatalf("UpdateActionStatus() failed: %v", err)
	}

	actions, _ := s.ListActions(ctx, StatusFailed)
	if len(actions) != 1 {
		t.Fatalf("expected 1 failed action, got %d", len(actions))
	}
	if !actions[0].ErrorMessage.Valid || actions[0].ErrorMessage.String != "boom" {
		t.Errorf("expected error message recorded, got %v", actions[0].ErrorMessage)
	}

	if err := s.UpdateActionStatus(ctx, "missing", StatusSynced, ""); err == nil {
		t.Error("expected error for unknown action id")
	}
}

func TestDeleteActionsByStatus(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	now := time.Now()
	for id, status := range map[string]string{"a1": StatusSynced, "a2": StatusFailed, "a3": StatusSynced} {
		s.InsertAction(ctx, &PendingAction{
			ID: id, EntityName: "menu", Action: ActionCreate,
			Payload: []byte(`{}`), Status: status,
			CreatedAt: now, UpdatedAt: now,
		})
	}

	n, err := s.DeleteActionsByStatus(ctx, StatusSynced)
	if err != nil {
		t.Fatalf("DeleteActionsByStatus() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 deleted, got %d", n)
	}

	// Failed entries stay for manual inspection.
	remaining, _ := s.ListActions(ctx, "")
	if len(remaining) != 1 || remaining[0].Status != StatusFailed {
		t.Errorf("expected only the failed action to remain, got %v", remaining)
	}
}

func TestCacheError_Surfaces(t *testing.T) {
	s := createTestStore(t)
	s.Close()

	_, err := s.GetAll(context.Background(), "inventory")
	if err == nil {
		t.Fatal("expected error from closed store")
	}
	if _, ok := err.(*CacheError); !ok {
		t.Errorf("expected *CacheError, got %T", err)
	}
}

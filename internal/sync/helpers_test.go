package sync

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"inventory-sync-service/internal/cache"
	"inventory-sync-service/internal/client"
	"inventory-sync-service/internal/config"
	"inventory-sync-service/internal/network"
	"inventory-sync-service/internal/queue"
	"inventory-sync-service/internal/registry"
	"inventory-sync-service/internal/store"
)

type testEnv struct {
	registry    *registry.Registry
	store       store.Store
	cache       *cache.Cache
	queue       *queue.Queue
	monitor     *network.Monitor
	client      *client.Client
	manager     *Manager
	coordinator *Coordinator
}

// newTestEnv wires the full data layer against the given backend URL. The
// monitor starts offline; tests flip it with SetOnline.
func newTestEnv(t *testing.T, baseURL string) *testEnv {
	t.Helper()

	reg, err := registry.Build([]config.CollectionConfig{
		{Name: "suppliers", Endpoint: "/api/suppliers", CacheTTL: "5m"},
		{Name: "inventory", Endpoint: "/api/inventory", CacheTTL: "5m"},
		{Name: "menu", Endpoint: "/api/menu", CacheTTL: "10m"},
		{Name: "reports", Endpoint: "/api/reports/dashboard", CacheKey: "dashboard_report", CacheTTL: "2m"},
	})
	require.NoError(t, err)

	st, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	ca := cache.New(st)
	q := queue.New(st)
	mon := network.NewMonitor(nil, time.Hour)
	cl := client.New(config.APIConfig{
		BaseURL:       baseURL,
		Timeout:       "2s",
		RetryAttempts: 1,
		RetryBackoff:  "5ms",
	}, nil)

	return &testEnv{
		registry:    reg,
		store:       st,
		cache:       ca,
		queue:       q,
		monitor:     mon,
		client:      cl,
		manager:     NewManager(reg, st, ca, q, mon, cl),
		coordinator: NewCoordinator(reg, st, ca, q, mon, cl),
	}
}

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"inventory-sync-service/internal/cache"
	"inventory-sync-service/internal/client"
	"inventory-sync-service/internal/config"
	"inventory-sync-service/internal/network"
	"inventory-sync-service/internal/queue"
	"inventory-sync-service/internal/store"
	"inventory-sync-service/internal/sync"
)

// Handler exposes the data layer over HTTP: the facade's read/write
// operations for UI callers plus sync, queue and store observability.
type Handler struct {
	cfg         config.ServerConfig
	manager     *sync.Manager
	coordinator *sync.Coordinator
	queue       *queue.Queue
	store       store.Store
	cache       *cache.Cache
	monitor     *network.Monitor
}

func NewHandler(cfg config.ServerConfig, manager *sync.Manager, coordinator *sync.Coordinator, q *queue.Queue, st store.Store, ca *cache.Cache, mon *network.Monitor) *Handler {
	return &Handler{
		cfg:         cfg,
		manager:     manager,
		coordinator: coordinator,
		queue:       q,
		store:       st,
		cache:       ca,
		monitor:     mon,
	}
}

func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(h.corsMiddleware)

	r.Get("/health", h.HealthCheck)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(h.authMiddleware)

		r.Post("/sync/trigger", h.TriggerSync)
		r.Get("/sync/status", h.GetSyncStatus)

		r.Get("/queue", h.ListQueue)
		r.Get("/queue/pending", h.GetPendingCount)
		r.Post("/queue/prune", h.PruneQueue)
		r.Post("/queue/failed/clear", h.ClearFailed)

		r.Get("/store/stats", h.GetStoreStats)
		r.Get("/cache/keys", h.ListCacheKeys)

		r.Get("/data/{collection}", h.ReadCollection)
		r.Post("/data/{collection}", h.CreateRecord)
		r.Put("/data/{collection}/{id}", h.UpdateRecord)
		r.Delete("/data/{collection}/{id}", h.DeleteRecord)
	})

	return r
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	report, err := h.coordinator.SyncNow(r.Context())
	if err != nil {
		if errors.Is(err, sync.ErrSyncInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *Handler) GetSyncStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := h.queue.CountPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	failed, err := h.queue.CountFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	lastRun, lastReport := h.coordinator.LastRun()

	status := map[string]any{
		"online":  h.monitor.IsOnline(),
		"syncing": h.coordinator.Syncing(),
		"pending": pending,
		"failed":  failed,
	}
	if !lastRun.IsZero() {
		status["last_run"] = lastRun
		status["last_report"] = lastReport
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) ListQueue(w http.ResponseWriter, r *http.Request) {
	actions, err := h.queue.List(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

func (h *Handler) GetPendingCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.queue.CountPending(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pending": count})
}

func (h *Handler) PruneQueue(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.PruneSynced(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"pruned": n})
}

func (h *Handler) ClearFailed(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.ClearFailed(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"cleared": n})
}

func (h *Handler) GetStoreStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.store.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) ListCacheKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.cache.Keys(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (h *Handler) ReadCollection(w http.ResponseWriter, r *http.Request) {
	result, err := h.manager.Read(r.Context(), sync.ReadOptions{
		Collection: chi.URLParam(r, "collection"),
	})
	if err != nil {
		writeFacadeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, store.ActionCreate, "")
}

func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	h.write(w, r, store.ActionUpdate, chi.URLParam(r, "id"))
}

func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	record := store.Record{"id": chi.URLParam(r, "id")}
	result, err := h.manager.Write(r.Context(), sync.WriteOptions{
		Collection: chi.URLParam(r, "collection"),
		Action:     store.ActionDelete,
		Payload:    record,
	})
	if err != nil {
		writeFacadeError(w, err)
		return
	}
	writeJSON(w, statusForWrite(result), result)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, action, id string) {
	var record store.Record
	if err := json.NewDecoder(r.Body).Decode(&record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if id != "" {
		record["id"] = id
	}

	result, err := h.manager.Write(r.Context(), sync.WriteOptions{
		Collection: chi.URLParam(r, "collection"),
		Action:     action,
		Payload:    record,
	})
	if err != nil {
		writeFacadeError(w, err)
		return
	}
	writeJSON(w, statusForWrite(result), result)
}

func statusForWrite(result *sync.WriteResult) int {
	if result.Queued {
		return http.StatusAccepted
	}
	return http.StatusOK
}

func (h *Handler) corsMiddleware(next http.Handler) http.Handler {
	origins := "*"
	if len(h.cfg.CorsOrigins) > 0 {
		origins = strings.Join(h.cfg.CorsOrigins, ", ")
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origins)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-CSRF-Token")

		if r.Method == http.MethodOptions {
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handler) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.cfg.AuthToken != "" {
			token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if token != h.cfg.AuthToken {
				writeError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func writeFacadeError(w http.ResponseWriter, err error) {
	var (
		validationErr *client.ValidationError
		httpErr       *client.HTTPError
		offlineErr    *client.OfflineError
		cacheErr      *store.CacheError
	)
	switch {
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &httpErr):
		writeError(w, httpErr.Status, httpErr.Message)
	case errors.As(err, &offlineErr):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.As(err, &cacheErr):
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeError(w, http.StatusBadGateway, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

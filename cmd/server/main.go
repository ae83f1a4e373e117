package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"inventory-sync-service/internal/api"
	"inventory-sync-service/internal/cache"
	"inventory-sync-service/internal/client"
	"inventory-sync-service/internal/config"
	"inventory-sync-service/internal/logger"
	"inventory-sync-service/internal/network"
	"inventory-sync-service/internal/queue"
	"inventory-sync-service/internal/registry"
	"inventory-sync-service/internal/store"
	"inventory-sync-service/internal/sync"
)

func main() {
	// Load Config
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Init Logger
	if err := logger.InitLogger(cfg.Logging.Level, cfg.Logging.Format); err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Log.Info("Starting Inventory Sync Service")

	// Collection registry
	reg, err := registry.Build(cfg.Collections)
	if err != nil {
		logger.Log.Fatal("Failed to build collection registry", zap.Error(err))
	}

	// Local durable store
	st, err := store.New(cfg.StateStorage)
	if err != nil {
		logger.Log.Fatal("Failed to init local store", zap.Error(err))
	}
	defer st.Close()

	ca := cache.New(st)
	q := queue.New(st)

	// API client for the remote backend
	cl := client.New(cfg.API, nil)

	// Connectivity monitor: initial state comes from a real probe, not an
	// assumption.
	probeURL := cfg.Connectivity.ProbeURL
	if probeURL == "" {
		probeURL = cfg.API.BaseURL
	}
	monitor := network.NewMonitor(
		network.HTTPProbe(probeURL, cfg.Connectivity.GetProbeTimeout()),
		cfg.Connectivity.GetProbeInterval(),
	)
	monitor.Start(context.Background())
	defer monitor.Stop()

	// Facade + sync coordinator
	manager := sync.NewManager(reg, st, ca, q, monitor, cl)
	coordinator := sync.NewCoordinator(reg, st, ca, q, monitor, cl)
	coordinator.Start()
	defer coordinator.Stop()

	scheduler := sync.NewScheduler(cfg.Scheduler, coordinator, monitor)
	scheduler.Start()
	defer scheduler.Stop()

	// HTTP API
	handler := api.NewHandler(cfg.Server, manager, coordinator, q, st, ca, monitor)
	router := handler.Routes()

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  cfg.Server.GetReadTimeout(),
		WriteTimeout: cfg.Server.GetWriteTimeout(),
	}

	go func() {
		logger.Log.Info("Server listening", zap.String("addr", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal("Server failed", zap.Error(err))
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Log.Error("Server shutdown failed", zap.Error(err))
	}
}

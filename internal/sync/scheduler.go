package sync

import (
	"context"
	"errors"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"inventory-sync-service/internal/config"
	"inventory-sync-service/internal/logger"
	"inventory-sync-service/internal/network"
)

// Scheduler runs periodic sync passes in addition to the reconnect-triggered
// ones, so a device that never loses connectivity still drains actions queued
// while the backend was briefly unreachable.
type Scheduler struct {
	cfg         config.SchedulerConfig
	coordinator *Coordinator
	monitor     *network.Monitor
	cron        *cron.Cron
	entryID     cron.EntryID
}

func NewScheduler(cfg config.SchedulerConfig, coordinator *Coordinator, monitor *network.Monitor) *Scheduler {
	return &Scheduler{
		cfg:         cfg,
		coordinator: coordinator,
		monitor:     monitor,
		cron:        cron.New(),
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}

	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))

	id, err := s.cron.AddFunc(s.cfg.Interval, func() {
		s.triggerSync()
	})
	if err != nil {
		logger.Log.Error("Failed to schedule job", zap.Error(err))
		return
	}

	s.entryID = id
	s.cron.Start()
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	logger.Log.Info("Stopped scheduler")
}

func (s *Scheduler) triggerSync() {
	if !s.monitor.IsOnline() {
		logger.Log.Debug("Offline, skipping scheduled sync")
		return
	}

	if _, err := s.coordinator.SyncNow(context.Background()); err != nil {
		if errors.Is(err, ErrSyncInProgress) {
			logger.Log.Info("Sync already running, skipping scheduled run")
			return
		}
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
	}
}

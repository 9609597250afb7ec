package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/stakelabs/harvest-server/pkg/logger"
)

// MonitorService periodically logs ledger health (pool count, locked reward
// balance) and triggers snapshot exports. It never accrues rewards: accrual
// is strictly lazy, driven by user operations.
type MonitorService struct {
	ledger    *LedgerService
	snapshots *SnapshotService
	scheduler *gocron.Scheduler
	mutex     sync.Mutex
	interval  time.Duration
	isRunning bool
}

func NewMonitorService(ledger *LedgerService, snapshots *SnapshotService) *MonitorService {
	return &MonitorService{
		ledger:    ledger,
		snapshots: snapshots,
		interval:  5 * time.Minute,
	}
}

func (s *MonitorService) SetInterval(interval time.Duration) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.interval = interval
}

func (s *MonitorService) Start() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.isRunning {
		return nil
	}

	log := logger.WithComponent("monitor")
	log.Info().Dur("interval", s.interval).Msg("Starting ledger monitor")

	s.scheduler = gocron.NewScheduler(time.UTC)
	if _, err := s.scheduler.Every(s.interval).Do(s.tick); err != nil {
		return err
	}
	s.scheduler.StartAsync()
	s.isRunning = true
	return nil
}

func (s *MonitorService) Stop() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isRunning {
		return
	}
	s.scheduler.Stop()
	s.isRunning = false
	log := logger.WithComponent("monitor")
	log.Info().Msg("Ledger monitor stopped")
}

func (s *MonitorService) tick() {
	log := logger.WithComponent("monitor")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	locked, err := s.ledger.LockedRewardBalance(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read locked reward balance")
	} else {
		log.Info().
			Int("pools", s.ledger.PoolCount()).
			Str("locked_reward_balance", locked.String()).
			Msg("Ledger status")
	}

	if s.snapshots != nil {
		if _, err := s.snapshots.Export(ctx); err != nil {
			log.Warn().Err(err).Msg("Snapshot export failed")
		}
	}
}

// Package scheduler turns external triggers into sync passes: a periodic
// timer while online, connectivity-change signals, and explicit "sync now"
// requests from the UI.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/warungkita/possync/internal/logging"
	syncpkg "github.com/warungkita/possync/internal/sync"
)

// Runner is the slice of the sync runner the scheduler drives.
type Runner interface {
	Sync(ctx context.Context, tag syncpkg.Tag) (*syncpkg.Result, error)
}

// Maintainer runs the periodic data cleanup.
type Maintainer interface {
	CleanupSyncedData(ctx context.Context) error
}

// Config holds scheduler configuration.
type Config struct {
	SyncInterval        time.Duration // how often to sync while online
	MaintenanceInterval time.Duration // how often to prune synced data
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:        5 * time.Minute,
		MaintenanceInterval: time.Hour,
	}
}

// Scheduler manages background sync passes. Trigger delivery is at least
// once: duplicates are absorbed by the runner's per-tag guard.
type Scheduler struct {
	runner    Runner
	maint     Maintainer
	cfg       *Config
	triggerCh chan syncpkg.Tag
	stopCh    chan struct{}
	wg        sync.WaitGroup

	mu        sync.RWMutex
	isRunning bool
	isOnline  bool
}

// New creates a Scheduler. A nil config selects defaults.
func New(runner Runner, maint Maintainer, cfg *Config) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		runner:    runner,
		maint:     maint,
		cfg:       cfg,
		triggerCh: make(chan syncpkg.Tag, 8),
		stopCh:    make(chan struct{}),
		isOnline:  true,
	}
}

// Start launches the background loops. Calling Start twice is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.mu.Unlock()

	s.wg.Add(2)
	go s.syncLoop(ctx)
	go s.maintenanceLoop(ctx)

	logging.Info("sync scheduler started", map[string]interface{}{
		"sync_interval":        s.cfg.SyncInterval.String(),
		"maintenance_interval": s.cfg.MaintenanceInterval.String(),
	})
}

// Stop shuts the loops down and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	s.mu.Unlock()

	close(s.stopCh)
	s.wg.Wait()
}

// SetOnline records a connectivity change. Coming back online triggers an
// immediate sync of both streams.
func (s *Scheduler) SetOnline(online bool) {
	s.mu.Lock()
	wasOnline := s.isOnline
	s.isOnline = online
	s.mu.Unlock()

	logging.Info("connectivity changed", map[string]interface{}{"online": online})

	if online && !wasOnline {
		s.TriggerSync(syncpkg.TagSales)
		s.TriggerSync(syncpkg.TagInventory)
	}
}

// Online reports the current connectivity flag.
func (s *Scheduler) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isOnline
}

// TriggerSync requests an immediate pass for a tag. Never blocks: if the
// trigger buffer is full a pass is already coming.
func (s *Scheduler) TriggerSync(tag syncpkg.Tag) {
	select {
	case s.triggerCh <- tag:
	default:
	}
}

func (s *Scheduler) syncLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if s.Online() {
				s.runAll(ctx)
			}
		case tag := <-s.triggerCh:
			if s.Online() {
				s.run(ctx, tag)
			}
		}
	}
}

// runAll syncs both streams concurrently; they touch disjoint collections.
func (s *Scheduler) runAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, tag := range []syncpkg.Tag{syncpkg.TagSales, syncpkg.TagInventory} {
		wg.Add(1)
		go func(tag syncpkg.Tag) {
			defer wg.Done()
			s.run(ctx, tag)
		}(tag)
	}
	wg.Wait()
}

func (s *Scheduler) run(ctx context.Context, tag syncpkg.Tag) {
	if _, err := s.runner.Sync(ctx, tag); err != nil {
		logging.Warn("scheduled sync pass failed", map[string]interface{}{
			"tag":   string(tag),
			"error": err.Error(),
		})
	}
}

func (s *Scheduler) maintenanceLoop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			if err := s.maint.CleanupSyncedData(ctx); err != nil {
				logging.Warn("maintenance cleanup failed", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}

package store

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically removes expired entries from a Store on a cron
// schedule (e.g. "*/5 * * * *" for every five minutes). Expiry checks are
// lazy on the read path, so sweeping is purely a space-reclamation concern.
type Sweeper struct {
	store    Store
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	mu       sync.Mutex
	running  bool
}

// NewSweeper creates a sweeper for the given store. An empty schedule
// disables sweeping.
func NewSweeper(s Store, schedule string, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		store:    s,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "store.sweeper"),
	}
}

// Start begins scheduled sweeping. It validates the cron expression and
// returns an error if it cannot be parsed.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	if s.schedule == "" {
		s.logger.Info("sweep schedule not configured, skipping sweeper")
		return nil
	}

	if _, err := cron.ParseStandard(s.schedule); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}

	_, err := s.cron.AddFunc(s.schedule, func() {
		removed, err := s.store.Sweep(ctx)
		if err != nil {
			s.logger.Error("store sweep failed", "error", err)
			return
		}
		if removed > 0 {
			s.logger.Debug("store sweep completed", "removed", removed)
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule sweep: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info("store sweeper started", "schedule", s.schedule)
	return nil
}

// Stop halts scheduled sweeping and waits for any in-flight sweep.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	<-s.cron.Stop().Done()
	s.running = false
}

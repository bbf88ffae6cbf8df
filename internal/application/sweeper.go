package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/symphainy/trafficcop/internal/ports"
)

type SweepReport struct {
	ExpiredSessions int
	EvictedEntries  int
	At              time.Time
}

// Sweeper expires overdue sessions and evicts stale temp state. Expiry is also
// applied lazily on access, so the sweeper only bounds how long stale records
// linger.
type Sweeper struct {
	sessions *SessionManager
	states   ports.StateStore
	clock    ports.Clock
	settings Settings
	opts     options
}

func NewSweeper(sessions *SessionManager, states ports.StateStore, settings Settings, clock ports.Clock, opts ...Option) *Sweeper {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &Sweeper{
		sessions: sessions,
		states:   states,
		clock:    clock,
		settings: settings.withDefaults(),
		opts:     buildOptions(opts),
	}
}

func (s *Sweeper) SweepOnce(ctx context.Context) (SweepReport, error) {
	now := s.clock.Now()
	report := SweepReport{At: now}

	expired, err := s.sessions.SweepExpired(ctx)
	report.ExpiredSessions = expired
	if err != nil {
		return report, fmt.Errorf("sweep sessions: %w", err)
	}
	evicted, err := s.states.EvictTemp(ctx, now.Add(-s.settings.TempTTL))
	report.EvictedEntries = evicted
	if err != nil {
		return report, fmt.Errorf("evict temp state: %w", err)
	}

	if expired > 0 || evicted > 0 {
		s.opts.logger.InfoContext(ctx, "sweep finished",
			slog.Int("expired_sessions", expired),
			slog.Int("evicted_entries", evicted),
		)
	}
	return report, nil
}

// Run sweeps every SweepInterval until ctx is done. A failed pass is logged and
// the loop continues.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.settings.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.opts.logger.ErrorContext(ctx, "sweep failed", slog.Any("error", err))
			}
		}
	}
}

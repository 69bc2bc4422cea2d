// Package scheduler drives the time-based room transitions: expiring the
// active event once its duration has elapsed and triggering the next
// queued event after the configured gap.
package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/dice-room-backend/internal/engine"
	"github.com/DoyleJ11/dice-room-backend/internal/room"
)

type Rooms interface {
	ListActive(ctx context.Context) ([]string, error)
}

type Ticker interface {
	Tick(ctx context.Context, code string) (room.Result, error)
}

type Scheduler struct {
	rooms       Rooms
	ticker      Ticker
	interval    time.Duration
	concurrency int
	log         *zap.Logger
}

func New(rooms Rooms, ticker Ticker, interval time.Duration, concurrency int, log *zap.Logger) *Scheduler {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Scheduler{
		rooms:       rooms,
		ticker:      ticker,
		interval:    interval,
		concurrency: concurrency,
		log:         log,
	}
}

// Run polls until ctx is cancelled. Running several schedulers against the
// same store is safe: a tick that loses the commit race re-reads and finds
// nothing left to do.
func (s *Scheduler) Run(ctx context.Context) error {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopped")
			return nil
		case <-t.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep ticks every active room once. Failures are logged per room and
// never stop the sweep.
func (s *Scheduler) Sweep(ctx context.Context) {
	codes, err := s.rooms.ListActive(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Error("list active rooms", zap.Error(err))
		}
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, code := range codes {
		g.Go(func() error {
			res, err := s.ticker.Tick(gctx, code)
			if err != nil {
				if gctx.Err() == nil {
					s.log.Warn("tick failed", zap.String("room", code), zap.Error(err))
				}
				return nil
			}
			for _, c := range res.Changes {
				switch c.Type {
				case engine.ChangeEventTriggered:
					s.log.Info("event triggered", zap.String("room", code), zap.String("event", string(c.Event)))
				case engine.ChangeEventExpired:
					s.log.Info("event expired", zap.String("room", code), zap.String("event", string(c.Event)))
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

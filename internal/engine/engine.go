package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/san-kum/aeropid/internal/metrics"
	"github.com/san-kum/aeropid/internal/system"
)

// Core advances the shared state by one period.
type Core interface {
	Tick(now time.Time, dt float64) (system.Status, bool)
}

// Broadcaster receives each tick's refreshed snapshot.
type Broadcaster interface {
	BroadcastData(st system.Status) (sent, failed int)
}

// Engine drives the fixed-period simulation tick: plant step, error, PID,
// history, stats, broadcast — in that order, all inside the core's serialized
// mutation path.
type Engine struct {
	core   Core
	out    Broadcaster
	period time.Duration
}

func New(core Core, out Broadcaster, period time.Duration) (*Engine, error) {
	if period <= 0 {
		return nil, fmt.Errorf("engine: period must be positive, got %v", period)
	}
	return &Engine{core: core, out: out, period: period}, nil
}

// Run ticks until the context is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.period)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			dt := now.Sub(last).Seconds()
			if dt < 0 {
				dt = 0
			}
			last = now
			e.step(now, dt)
		}
	}
}

func (e *Engine) step(now time.Time, dt float64) {
	started := time.Now()
	st, ok := e.core.Tick(now, dt)
	if !ok {
		return
	}

	metrics.TicksTotal.Inc()
	metrics.TickDuration.Observe(time.Since(started).Seconds())
	metrics.CurrentAngle.Set(st.CurrentAngle)
	metrics.TrackingError.Set(st.Error)

	e.out.BroadcastData(st)
}

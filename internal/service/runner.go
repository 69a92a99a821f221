package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/stitchworks/factory-pulse/internal/metrics"
)

// runner drives a monitor's periodic tick. Ticks are single-flight: if a
// tick overruns its interval, the next scheduled run is skipped rather than
// overlapped. Stop leaves cached state as last written; TTLs age it out.
type runner struct {
	name     string
	interval time.Duration
	tick     func(ctx context.Context)

	inFlight atomic.Bool
	mu       sync.Mutex
	stop     chan struct{}
	done     sync.WaitGroup
}

func newRunner(name string, interval time.Duration, tick func(ctx context.Context)) *runner {
	return &runner{name: name, interval: interval, tick: tick}
}

func (r *runner) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stop != nil {
		return
	}
	r.stop = make(chan struct{})
	r.done.Add(1)
	go r.loop(r.stop)
	log.Info().Str("monitor", r.name).Dur("interval", r.interval).Msg("monitor started")
}

func (r *runner) Stop() {
	r.mu.Lock()
	stop := r.stop
	r.stop = nil
	r.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	r.done.Wait()
	log.Info().Str("monitor", r.name).Msg("monitor stopped")
}

func (r *runner) loop(stop chan struct{}) {
	defer r.done.Done()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.Run(context.Background())
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			r.Run(context.Background())
		}
	}
}

// Run executes one tick now unless one is already in flight. Forced runs
// (inbound operations) share the same guard as the timer loop.
func (r *runner) Run(ctx context.Context) {
	if !r.inFlight.CompareAndSwap(false, true) {
		metrics.TicksSkipped.WithLabelValues(r.name).Inc()
		log.Warn().Str("monitor", r.name).Msg("tick still running, skipping")
		return
	}
	defer r.inFlight.Store(false)

	start := time.Now()
	r.tick(ctx)
	metrics.TicksTotal.WithLabelValues(r.name).Inc()
	log.Debug().Str("monitor", r.name).Dur("took", time.Since(start)).Msg("tick complete")
}

package poller

import (
	"context"
	"sync"
	"time"

	"github.com/mifi-dashboard/monitor/gateway"
)

// task is one run of a polling loop.
type task struct {
	id     string
	mode   Mode
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
}

// publish writes m and runs hook unless the task has been halted. It reports
// whether the write happened.
func (t *task) publish(sink Sink, m gateway.Metrics, hook func(gateway.Metrics)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	sink.Update(m)
	if hook != nil {
		hook(m)
	}
	return true
}

// halt blocks until any in-flight publish finishes, then prevents further ones.
func (t *task) halt() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
	t.cancel()
}

// run executes one cycle immediately, then one cycle per interval, each
// interval measured from the end of the previous cycle.
func (p *Poller) run(ctx context.Context, t *task, fetcher Fetcher, hook func(gateway.Metrics)) {
	defer p.wg.Done()

	logger := p.logger.With("mode", t.mode, "run_id", t.id)
	logger.Info("poll loop started", "interval", p.interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("poll loop stopped")
			return
		case <-timer.C:
		}

		start := time.Now()
		m := fetcher.FetchMetrics(ctx)
		elapsed := time.Since(start)

		if !t.publish(p.sink, m, hook) {
			logger.Info("poll loop stopped, last snapshot dropped")
			return
		}
		p.observe(t.mode.String(), m, elapsed)

		if m.Error != "" {
			logger.Warn("poll cycle failed", "error", m.Error, "error_kind", m.ErrorKind, "duration", elapsed)
		} else {
			logger.Debug("poll cycle completed", "duration", elapsed)
		}

		timer.Reset(p.interval)
	}
}

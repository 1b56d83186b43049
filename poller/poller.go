// Package poller runs the periodic fetch-and-store loop and arbitrates
// between its two run modes.
//
// Lifecycle:
//
//	Idle ──StartAutoRefresh──▶ RunningInProcess ──StopAutoRefresh──▶ Idle
//	Idle ──StartService──────▶ RunningBackground ──StopService─────▶ Idle
//	RunningInProcess ──StartService──▶ (in-process loop stopped) ──▶ RunningBackground
//
// At most one loop writes to the store at a time.
package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mifi-dashboard/monitor/gateway"
	"github.com/mifi-dashboard/monitor/notifications"
)

// DefaultInterval is the delay between the end of one cycle and the start of the next.
const DefaultInterval = time.Second

// NotificationTitle is the title of every status notification.
const NotificationTitle = "MiFi Monitor"

// Fetcher produces one snapshot per call. Implementations resolve every
// failure into a disconnected snapshot.
type Fetcher interface {
	FetchMetrics(ctx context.Context) gateway.Metrics
}

// Sink receives snapshots; *store.Store satisfies it.
type Sink interface {
	Update(m gateway.Metrics)
}

// Recorder observes completed cycles.
type Recorder interface {
	ObserveCycle(source string, m gateway.Metrics, elapsed time.Duration)
}

// Options configures a Poller.
type Options struct {
	// NewFetcher builds a fresh fetcher. Each loop and the manual refresh path
	// get their own, so digest nonce counts are never shared.
	NewFetcher func() (Fetcher, error)

	// Sink receives every snapshot.
	Sink Sink

	// Interval between cycles. Default: DefaultInterval.
	Interval time.Duration

	// Notifier receives the status summary after each background cycle.
	Notifier notifications.Sender

	// Recorder is optional.
	Recorder Recorder

	Logger *slog.Logger
}

// Poller owns the polling loops. It is safe for concurrent use.
type Poller struct {
	newFetcher func() (Fetcher, error)
	sink       Sink
	interval   time.Duration
	notifier   notifications.Sender
	recorder   Recorder
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	active *task
	closed bool

	manualMu sync.Mutex
	manual   Fetcher
}

// New creates an idle Poller.
func New(opts Options) (*Poller, error) {
	if opts.NewFetcher == nil {
		return nil, errors.New("poller: NewFetcher is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("poller: Sink is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = notifications.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Poller{
		newFetcher: opts.NewFetcher,
		sink:       opts.Sink,
		interval:   opts.Interval,
		notifier:   opts.Notifier,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// StartAutoRefresh starts the in-process loop. It does nothing when a loop is
// already running: the background loop keeps feeding the store on its own.
func (p *Poller) StartAutoRefresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateRunningInProcess:
		return
	case StateRunningBackground:
		p.logger.Info("background service is polling, auto-refresh not started")
		return
	}
	p.startLocked(ModeInProcess, nil)
}

// StopAutoRefresh stops the in-process loop. It is a no-op in any other state.
func (p *Poller) StopAutoRefresh() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunningInProcess {
		return
	}
	p.stopLocked()
}

// StartService starts the background loop, preempting the in-process loop
// if it is running.
func (p *Poller) StartService() {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.state {
	case StateRunningBackground:
		return
	case StateRunningInProcess:
		p.logger.Info("stopping auto-refresh, background service takes over")
		p.stopLocked()
	}

	if p.closed {
		return
	}
	p.notifier.Send(notifications.Payload{Title: NotificationTitle, Content: "Connecting..."})
	if !p.startLocked(ModeBackground, p.notify) {
		p.notifier.Clear()
	}
}

// StopService stops the background loop and clears its notification. It is a
// no-op in any other state.
func (p *Poller) StopService() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != StateRunningBackground {
		return
	}
	p.stopLocked()
	p.notifier.Clear()
}

// LoadMetrics refreshes the store once in the background. It does not change
// the lifecycle state.
func (p *Poller) LoadMetrics() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		p.Refresh(p.ctx)
	}()
}

// Refresh fetches once, writes the result to the sink and returns it.
func (p *Poller) Refresh(ctx context.Context) gateway.Metrics {
	start := time.Now()

	p.manualMu.Lock()
	if p.manual == nil {
		f, err := p.newFetcher()
		if err != nil {
			p.manualMu.Unlock()
			p.logger.Error("manual refresh: create fetcher", "error", err)
			m := gateway.ErrorMetrics(fmt.Errorf("create client: %w", err), time.Now())
			p.sink.Update(m)
			return m
		}
		p.manual = f
	}
	f := p.manual
	p.manualMu.Unlock()

	m := f.FetchMetrics(ctx)
	p.sink.Update(m)
	p.observe("manual", m, time.Since(start))
	return m
}

// Shutdown stops any running loop and waits for loops and manual refreshes
// to exit or for ctx to be done. The Poller cannot be restarted.
func (p *Poller) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		wasBackground := p.state == StateRunningBackground
		if p.active != nil {
			p.stopLocked()
		}
		if wasBackground {
			p.notifier.Clear()
		}
		p.cancel()
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Summary renders the one-line status shown by the background notifier.
func Summary(m gateway.Metrics) string {
	if m.IsConnected {
		return fmt.Sprintf("🔋 %d%%  👥 %d  ↓%s ↑%s", m.BatteryPercent, m.ConnectedDevices, m.DownloadSpeed, m.UploadSpeed)
	}
	if m.Error != "" {
		return m.Error
	}
	return "Offline"
}

func (p *Poller) notify(m gateway.Metrics) {
	p.notifier.Send(notifications.Payload{Title: NotificationTitle, Content: Summary(m)})
}

// startLocked launches a loop for mode. p.mu must be held and no loop active.
func (p *Poller) startLocked(mode Mode, hook func(gateway.Metrics)) bool {
	if p.closed {
		return false
	}

	fetcher, err := p.newFetcher()
	if err != nil {
		p.logger.Error("start poll loop: create fetcher", "mode", mode, "error", err)
		return false
	}

	ctx, cancel := context.WithCancel(p.ctx)
	t := &task{
		id:     uuid.NewString(),
		mode:   mode,
		cancel: cancel,
	}
	p.active = t
	p.state = mode.runningState()

	p.wg.Add(1)
	go p.run(ctx, t, fetcher, hook)
	return true
}

// stopLocked halts the active loop. On return the loop performs no further
// writes. p.mu must be held.
func (p *Poller) stopLocked() {
	t := p.active
	p.active = nil
	p.state = StateIdle
	if t == nil {
		return
	}
	t.halt()
	p.logger.Info("poll loop stopping", "mode", t.mode, "run_id", t.id)
}

func (p *Poller) observe(source string, m gateway.Metrics, elapsed time.Duration) {
	if p.recorder != nil {
		p.recorder.ObserveCycle(source, m, elapsed)
	}
}

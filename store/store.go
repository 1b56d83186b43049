// Package store holds the latest device snapshot and fans every update out
// to subscribers.
package store

import (
	"io"
	"log/slog"
	"sync"

	"github.com/cskr/pubsub"

	"github.com/mifi-dashboard/monitor/gateway"
)

const (
	topicMetrics = "metrics"

	// DefaultCapacity is the per-subscriber buffer. A subscriber that falls
	// further behind slows down Update rather than losing snapshots.
	DefaultCapacity = 16
)

// Store is the single source of truth shared by the pollers and every view.
// Update may be called from several goroutines; the last call wins.
//
// Writers and Subscribe share subscriber backpressure; Current never waits
// on a slow subscriber.
type Store struct {
	// mu serializes publishing, subscription changes and Close.
	mu     sync.Mutex
	ps     *pubsub.PubSub
	closed bool

	snapMu  sync.RWMutex
	current gateway.Metrics

	capacity int
	logger   *slog.Logger
}

// New creates a Store holding gateway.DefaultMetrics.
func New(capacity int, logger *slog.Logger) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		current:  gateway.DefaultMetrics(),
		ps:       pubsub.New(capacity),
		capacity: capacity,
		logger:   logger,
	}
}

// Update replaces the current snapshot and publishes it.
func (s *Store) Update(m gateway.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.snapMu.Lock()
	s.current = m
	s.snapMu.Unlock()
	s.ps.Pub(m, topicMetrics)
	s.logger.Debug("metrics updated", "connected", m.IsConnected, "error_kind", m.ErrorKind)
}

// Current returns the latest snapshot.
func (s *Store) Current() gateway.Metrics {
	s.snapMu.RLock()
	defer s.snapMu.RUnlock()
	return s.current
}

// Subscribe returns a subscription that first yields the current snapshot and
// then every later update in order.
func (s *Store) Subscribe() *Subscription {
	raw := make(chan interface{}, s.capacity)
	sub := &Subscription{
		store: s,
		raw:   raw,
		out:   make(chan gateway.Metrics),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	if s.closed {
		close(raw)
	} else {
		raw <- s.Current()
		s.ps.AddSub(raw, topicMetrics)
	}
	s.mu.Unlock()

	go sub.forward()
	return sub
}

// Close ends all subscriptions. Later updates are ignored.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.ps.Shutdown()
}

func (s *Store) unsubscribe(raw chan interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.ps.Unsub(raw, topicMetrics)
	}
}

// Subscription delivers snapshots from a Store.
type Subscription struct {
	store *Store
	raw   chan interface{}
	out   chan gateway.Metrics
	done  chan struct{}
	once  sync.Once
}

// Updates returns the channel of snapshots. It is closed after Close or when
// the store shuts down.
func (sub *Subscription) Updates() <-chan gateway.Metrics {
	return sub.out
}

// Close cancels the subscription.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		close(sub.done)
		sub.store.unsubscribe(sub.raw)
	})
}

func (sub *Subscription) forward() {
	defer close(sub.out)
	for msg := range sub.raw {
		m, ok := msg.(gateway.Metrics)
		if !ok {
			continue
		}
		select {
		case sub.out <- m:
		case <-sub.done:
			// Keep draining until pubsub closes raw so it is never blocked on us.
			for range sub.raw {
			}
			return
		}
	}
}

package counter

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SharedBackend is what the manager needs from the remote counter beyond
// counting itself: a liveness probe and a key count for the health route.
type SharedBackend interface {
	Backend
	Ping(ctx context.Context) error
	Size(ctx context.Context) (int64, error)
}

// event is a connection lifecycle notification. Lifecycle state changes
// travel through the manager's event channel rather than being written
// from arbitrary goroutines.
type event struct {
	connected bool
	err       error
}

// Manager owns both backends and the health flag, and routes every
// increment. While the shared backend is healthy it is attempted first;
// a failed attempt falls back to memory for that single call only. When
// the flag is down, calls skip Redis entirely so nobody pays connection
// timeouts while it is known to be unreachable.
//
// The two backends keep independent counters: a window started in Redis
// does not carry over to memory when the connection drops mid-window,
// and vice versa on recovery.
type Manager struct {
	shared SharedBackend
	local  *MemoryBackend
	log    zerolog.Logger

	connected   atomic.Bool
	events      chan event
	onFallback  func()
	pingTimeout time.Duration
}

type ManagerOption func(*Manager)

// WithFallbackHook registers a callback invoked each time a shared-backend
// failure diverts a call to memory (e.g. a metrics counter).
func WithFallbackHook(fn func()) ManagerOption {
	return func(m *Manager) { m.onFallback = fn }
}

// WithPingTimeout bounds a single health probe (default 2s).
func WithPingTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) { m.pingTimeout = d }
}

// NewManager starts disconnected; the first successful probe in Run flips
// the flag, mirroring a client that connects asynchronously.
func NewManager(shared SharedBackend, local *MemoryBackend, log zerolog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		shared:      shared,
		local:       local,
		log:         log,
		events:      make(chan event, 8),
		pingTimeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Increment routes one unit of consumption. It never surfaces a backend
// error to the caller: the memory backend answers whenever Redis cannot.
func (m *Manager) Increment(ctx context.Context, key string, window time.Duration) (Result, error) {
	if m.connected.Load() {
		res, err := m.shared.Increment(ctx, key, window)
		if err == nil {
			return res, nil
		}
		// This call falls back; the flag itself flips via the event loop.
		m.notify(event{connected: false, err: err})
		if m.onFallback != nil {
			m.onFallback()
		}
		m.log.Warn().Err(err).Msg("redis increment failed, serving from memory")
	}
	return m.local.Increment(ctx, key, window)
}

// Run owns the health flag: it applies lifecycle events and probes the
// shared backend on a fixed period until ctx is cancelled. Run in its own
// goroutine.
func (m *Manager) Run(ctx context.Context, pingEvery time.Duration) {
	m.probe(ctx)

	t := time.NewTicker(pingEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-m.events:
			m.apply(ev)
		case <-t.C:
			m.probe(ctx)
		}
	}
}

// Connected reports the current health flag.
func (m *Manager) Connected() bool {
	return m.connected.Load()
}

// Status renders the health flag for the health endpoint.
func (m *Manager) Status() string {
	if m.connected.Load() {
		return "connected"
	}
	return "disconnected (using memory fallback)"
}

// StoreSize reports the key count of whichever backend is authoritative.
func (m *Manager) StoreSize(ctx context.Context) int64 {
	if m.connected.Load() {
		if n, err := m.shared.Size(ctx); err == nil {
			return n
		}
	}
	return int64(m.local.Len())
}

func (m *Manager) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, m.pingTimeout)
	defer cancel()
	err := m.shared.Ping(pctx)
	m.apply(event{connected: err == nil, err: err})
}

// notify queues a lifecycle event without blocking the call path. The
// channel is buffered; when full, the pending events already carry the
// same news.
func (m *Manager) notify(ev event) {
	select {
	case m.events <- ev:
	default:
	}
}

func (m *Manager) apply(ev event) {
	was := m.connected.Swap(ev.connected)
	switch {
	case ev.connected && !was:
		m.log.Info().Msg("redis connected")
	case !ev.connected && was:
		m.log.Warn().Err(ev.err).Msg("redis connection lost, using memory fallback")
	}
}

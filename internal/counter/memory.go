package counter

import (
	"context"
	"sync"
	"time"
)

type record struct {
	count     int64
	expiresAt time.Time
}

// MemoryBackend is the in-process fallback counter. State is local to the
// process and does not survive restarts; a background sweep bounds memory
// to live windows only.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string]*record
	now     func() time.Time

	sweepEvery time.Duration
	done       chan struct{}
	closed     bool
}

// NewMemoryBackend constructs the backend and starts the sweep goroutine.
// Call Close to stop it.
func NewMemoryBackend(sweepEvery time.Duration) *MemoryBackend {
	m := &MemoryBackend{
		records:    make(map[string]*record),
		now:        time.Now,
		sweepEvery: sweepEvery,
		done:       make(chan struct{}),
	}
	go m.sweepLoop()
	return m
}

// Increment applies one unit against key's current window. An expired
// record is replaced with a fresh window rather than extended.
func (m *MemoryBackend) Increment(_ context.Context, key string, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	rec, ok := m.records[key]
	if !ok || !rec.expiresAt.After(now) {
		m.records[key] = &record{count: 1, expiresAt: now.Add(window)}
		return Result{Count: 1, TTL: ceilSeconds(window)}, nil
	}

	rec.count++
	return Result{Count: rec.count, TTL: ceilSeconds(rec.expiresAt.Sub(now))}, nil
}

// Len reports the number of records currently held, expired or not.
func (m *MemoryBackend) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Close stops the sweep goroutine. Idempotent.
func (m *MemoryBackend) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
}

func (m *MemoryBackend) sweepLoop() {
	t := time.NewTicker(m.sweepEvery)
	defer t.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-t.C:
			m.sweep()
		}
	}
}

// sweep removes provably expired records. It takes the same lock as
// Increment, so it can never delete a record mid-mutation; an increment
// racing with the sweep re-creates the window and wins.
func (m *MemoryBackend) sweep() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for key, rec := range m.records {
		if !rec.expiresAt.After(now) {
			delete(m.records, key)
		}
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	secs := int(d / time.Second)
	if d%time.Second != 0 {
		secs++
	}
	return secs
}

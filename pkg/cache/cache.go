package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when a key is missing or expired
var ErrNotFound = errors.New("cache: key not found")

// Store is a string key/value cache with per-entry expiration
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// Options configures Memory. A negative ttl passed to Set never expires;
// zero falls back to DefaultExpiration.
type Options struct {
	DefaultExpiration time.Duration
	CleanupInterval   time.Duration
	// MaxItems bounds the map; the oldest write is evicted first
	MaxItems int
}

type entry struct {
	value   string
	expires time.Time
	seq     uint64
}

func (e entry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// Memory is the single-process Store
type Memory struct {
	opts Options

	mu        sync.RWMutex
	entries   map[string]entry
	seq       uint64
	onEvicted func(key, value string)

	stop     chan struct{}
	stopOnce sync.Once
}

func NewMemory(opts Options) *Memory {
	m := &Memory{opts: opts, entries: map[string]entry{}, stop: make(chan struct{})}
	if opts.CleanupInterval > 0 {
		go m.janitor(opts.CleanupInterval)
	}
	return m
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.opts.DefaultExpiration
	}
	e := entry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.entries[key]; !ok && m.opts.MaxItems > 0 && len(m.entries) >= m.opts.MaxItems {
		m.evictOldestLocked()
	}
	m.seq++
	e.seq = m.seq
	m.entries[key] = e
	return nil
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()

	if !ok || !e.live(time.Now()) {
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
	return nil
}

// Count includes entries that expired but were not swept yet
func (m *Memory) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// SetOnEvicted registers fn for deletes, expiry sweeps and capacity evictions
func (m *Memory) SetOnEvicted(fn func(key, value string)) {
	m.mu.Lock()
	m.onEvicted = fn
	m.mu.Unlock()
}

// Close stops the janitor
func (m *Memory) Close() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Memory) janitor(every time.Duration) {
	tick := time.NewTicker(every)
	defer tick.Stop()

	for {
		select {
		case <-m.stop:
			return
		case now := <-tick.C:
			m.mu.Lock()
			for key, e := range m.entries {
				if !e.live(now) {
					m.removeLocked(key)
				}
			}
			m.mu.Unlock()
		}
	}
}

func (m *Memory) evictOldestLocked() {
	var (
		victim string
		lowest uint64
	)
	for key, e := range m.entries {
		if victim == "" || e.seq < lowest {
			victim, lowest = key, e.seq
		}
	}
	if victim != "" {
		m.removeLocked(victim)
	}
}

func (m *Memory) removeLocked(key string) {
	e, ok := m.entries[key]
	if !ok {
		return
	}
	delete(m.entries, key)
	if m.onEvicted != nil {
		m.onEvicted(key, e.value)
	}
}

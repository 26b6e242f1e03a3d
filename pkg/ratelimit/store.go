// Package ratelimit provides the shared rate limiting implementations:
// a windowed counter store with lazy expiry and a self-stopping periodic
// sweep, and a leaky-bucket limiter backed by go.uber.org/ratelimit.
// Both satisfy common.RateLimiter.
package ratelimit

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ereojs/ereo/pkg/common"
)

// entry is one caller's counter within a window table. An entry past
// resetAt is logically expired and treated as absent on next access,
// even before the sweep removes it.
type entry struct {
	count   int
	resetAt time.Time
}

// StoreConfig configures a Store.
type StoreConfig struct {
	// MaxEntries bounds each window table. At insertion of a new key into
	// a full table the store sweeps in place; if the table is still full
	// it fails open: the call is allowed without being tracked. That
	// trades strictness for availability under key-cardinality attacks
	// and is deliberate.
	MaxEntries int

	// SweepInterval is the period of the background sweep.
	SweepInterval time.Duration

	// Logger receives fail-open warnings and sweep lifecycle events.
	Logger *zap.Logger
}

// Store is a windowed counter table keyed by caller-supplied strings.
// It owns one table per distinct window duration, so two limiters
// configured with equal windows share counters while different windows
// never interact. A single background sweeper covers all tables: it
// starts when the first table is created, periodically deletes expired
// entries and empty tables, and stops itself once no tables remain.
type Store struct {
	mu      sync.Mutex
	tables  map[time.Duration]map[string]*entry
	config  StoreConfig
	logger  *zap.Logger
	now     func() time.Time
	sweepOn bool
	closed  bool
}

// NewStore creates a Store. Zero-value config fields get defaults:
// 10000 entries per table, 30s sweep interval, no-op logger.
func NewStore(config StoreConfig) *Store {
	if config.MaxEntries <= 0 {
		config.MaxEntries = 10000
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}
	logger := config.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		tables: make(map[time.Duration]map[string]*entry),
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

var _ common.RateLimiter = (*Store)(nil)

// Allow looks up or lazily creates the table for the window, then checks
// and increments the counter for key. The (limit+1)-th call within the
// window is denied; once the window elapses the next call starts a fresh
// count of 1.
func (s *Store) Allow(key string, limit int, window time.Duration) (bool, int, time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	table, ok := s.tables[window]
	if !ok {
		table = make(map[string]*entry)
		s.tables[window] = table
		s.startSweeperLocked()
	}

	e, ok := table[key]
	if !ok || !now.Before(e.resetAt) {
		// Fresh entry needed. Capacity is only checked when inserting a
		// new key; refreshing an expired entry reuses its slot. The
		// in-place sweep evicts entries but never drops the table itself:
		// the fresh entry goes into this map, which must stay registered.
		if !ok && len(table) >= s.config.MaxEntries {
			s.sweepTableLocked(table, now)
			if len(table) >= s.config.MaxEntries {
				// Fail open: allow without tracking rather than denying
				// legitimate traffic because the table is saturated.
				s.logger.Warn("rate limit table full, failing open",
					zap.Duration("window", window),
					zap.Int("max_entries", s.config.MaxEntries),
				)
				return true, 0, window
			}
		}
		e = &entry{resetAt: now.Add(window)}
		table[key] = e
	}

	e.count++
	remaining := limit - e.count
	if remaining < 0 {
		remaining = 0
	}
	return e.count <= limit, remaining, e.resetAt.Sub(now)
}

// startSweeperLocked launches the background sweeper if it is not
// already running. Callers must hold s.mu.
func (s *Store) startSweeperLocked() {
	if s.sweepOn || s.closed {
		return
	}
	s.sweepOn = true
	go s.sweepLoop()
}

func (s *Store) sweepLoop() {
	ticker := time.NewTicker(s.config.SweepInterval)
	defer ticker.Stop()
	for range ticker.C {
		if !s.sweep() {
			return
		}
	}
}

// sweep removes expired entries and empty tables. It returns false when
// no tables remain, which stops the sweeper; the next table creation
// starts a new one.
func (s *Store) sweep() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for window, table := range s.tables {
		s.sweepTableLocked(table, now)
		if len(table) == 0 {
			delete(s.tables, window)
		}
	}
	if len(s.tables) == 0 || s.closed {
		s.sweepOn = false
		s.logger.Debug("rate limit sweeper stopped")
		return false
	}
	return true
}

// sweepTableLocked deletes expired entries from one table. Dropping an
// emptied table from the store is the background sweeper's job alone;
// Allow sweeps in place while it still holds a reference it is about to
// insert into. Callers must hold s.mu.
func (s *Store) sweepTableLocked(table map[string]*entry, now time.Time) {
	for key, e := range table {
		if !now.Before(e.resetAt) {
			delete(table, key)
		}
	}
}

// Close drops all state and stops the sweeper at its next tick.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tables = make(map[time.Duration]map[string]*entry)
}

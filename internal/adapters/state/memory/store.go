// Package memory is the in-process StateStore: a sharded map with lazy
// expiry on read and a periodic sweep that compacts what nobody reads.
package memory

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bnema/formflow/internal/domain"
	"github.com/bnema/formflow/internal/ports"
)

const (
	DefaultTTL           = 30 * time.Minute
	DefaultSweepInterval = 10 * time.Minute
	defaultShards        = 16
)

type Options struct {
	DefaultTTL    time.Duration
	SweepInterval time.Duration
	Shards        int
	Clock         ports.Clock
	Logger        *slog.Logger
	// OnSweep is called after every sweep with the number of removed entries.
	OnSweep func(removed int)
}

type Store struct {
	shards        []*shard
	mask          uint32
	defaultTTL    time.Duration
	sweepInterval time.Duration
	clock         ports.Clock
	logger        *slog.Logger
	onSweep       func(int)

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
	started  bool
	startMu  sync.Mutex
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]domain.StateEntry
}

var (
	_ ports.StateStore  = (*Store)(nil)
	_ ports.Snapshotter = (*Store)(nil)
)

func New(opts Options) *Store {
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	if opts.Shards <= 0 {
		opts.Shards = defaultShards
	}
	if opts.Clock == nil {
		opts.Clock = ports.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	n := nextPowerOfTwo(uint32(opts.Shards))
	shards := make([]*shard, n)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]domain.StateEntry)}
	}

	return &Store{
		shards:        shards,
		mask:          n - 1,
		defaultTTL:    opts.DefaultTTL,
		sweepInterval: opts.SweepInterval,
		clock:         opts.Clock,
		logger:        opts.Logger.With("component", "state_store", "backend", "memory"),
		onSweep:       opts.OnSweep,
		stop:          make(chan struct{}),
		done:          make(chan struct{}),
	}
}

// Start launches the background sweeper. It is a no-op when already started.
func (s *Store) Start() {
	s.startMu.Lock()
	defer s.startMu.Unlock()
	if s.started {
		return
	}
	s.started = true
	go s.run()
}

func (s *Store) run() {
	defer close(s.done)

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

func (s *Store) Save(ctx context.Context, key string, payload domain.Payload, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	sh := s.shard(key)
	sh.mu.Lock()
	sh.entries[key] = domain.StateEntry{
		Key:       key,
		Payload:   payload.Clone(),
		ExpiresAt: s.clock.Now().Add(ttl),
	}
	sh.mu.Unlock()

	return nil
}

func (s *Store) Restore(ctx context.Context, key string) (domain.Payload, bool, error) {
	entry, ok := s.live(key)
	if !ok {
		return nil, false, nil
	}
	return entry.Payload.Clone(), true, nil
}

func (s *Store) Clear(ctx context.Context, key string) error {
	sh := s.shard(key)
	sh.mu.Lock()
	delete(sh.entries, key)
	sh.mu.Unlock()
	return nil
}

// Update merges partial over the current payload and saves the result with
// the default TTL. The read-modify-write holds the shard lock throughout.
func (s *Store) Update(ctx context.Context, key string, partial domain.Payload) error {
	sh := s.shard(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	now := s.clock.Now()
	current := domain.Payload{}
	if entry, ok := sh.entries[key]; ok && !entry.Expired(now) {
		current = entry.Payload
	}

	sh.entries[key] = domain.StateEntry{
		Key:       key,
		Payload:   current.Merge(partial),
		ExpiresAt: now.Add(s.defaultTTL),
	}
	return nil
}

func (s *Store) ClearPrefix(ctx context.Context, prefix string) (int, error) {
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key := range sh.entries {
			if strings.HasPrefix(key, prefix) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	now := s.clock.Now()
	keys := make([]string, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for key, entry := range sh.entries {
			if strings.HasPrefix(key, prefix) && !entry.Expired(now) {
				keys = append(keys, key)
			}
		}
		sh.mu.RUnlock()
	}
	return keys, nil
}

// Len counts unexpired entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	now := s.clock.Now()
	n := 0
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, entry := range sh.entries {
			if !entry.Expired(now) {
				n++
			}
		}
		sh.mu.RUnlock()
	}
	return n, nil
}

func (s *Store) Describe(ctx context.Context, key string) (domain.StateMeta, bool, error) {
	entry, ok := s.live(key)
	if !ok {
		return domain.StateMeta{}, false, nil
	}
	return entry.Meta(s.clock.Now()), true, nil
}

// Sweep removes every expired entry and returns how many were dropped.
func (s *Store) Sweep() int {
	now := s.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for key, entry := range sh.entries {
			if entry.Expired(now) {
				delete(sh.entries, key)
				removed++
			}
		}
		sh.mu.Unlock()
	}

	if removed > 0 {
		s.logger.Debug("swept expired state", "removed", removed)
	}
	if s.onSweep != nil {
		s.onSweep(removed)
	}
	return removed
}

func (s *Store) Snapshot() []domain.StateEntry {
	now := s.clock.Now()
	out := make([]domain.StateEntry, 0)
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, entry := range sh.entries {
			if entry.Expired(now) {
				continue
			}
			entry.Payload = entry.Payload.Clone()
			out = append(out, entry)
		}
		sh.mu.RUnlock()
	}
	return out
}

// Load inserts entries that are not yet expired, keeping their original
// deadlines, and returns how many were accepted.
func (s *Store) Load(entries []domain.StateEntry) int {
	now := s.clock.Now()
	loaded := 0
	for _, entry := range entries {
		if entry.Key == "" || entry.Expired(now) {
			continue
		}
		entry.Payload = entry.Payload.Clone()

		sh := s.shard(entry.Key)
		sh.mu.Lock()
		sh.entries[entry.Key] = entry
		sh.mu.Unlock()
		loaded++
	}
	return loaded
}

// Close stops the sweeper and drops every entry. Safe to call repeatedly.
func (s *Store) Close() error {
	s.stopOnce.Do(func() {
		close(s.stop)

		s.startMu.Lock()
		started := s.started
		s.started = true
		s.startMu.Unlock()
		if started {
			<-s.done
		}

		for _, sh := range s.shards {
			sh.mu.Lock()
			clear(sh.entries)
			sh.mu.Unlock()
		}
	})
	return nil
}

// live returns the entry for key if it has not expired, deleting it when it
// has.
func (s *Store) live(key string) (domain.StateEntry, bool) {
	sh := s.shard(key)
	now := s.clock.Now()

	sh.mu.RLock()
	entry, ok := sh.entries[key]
	sh.mu.RUnlock()
	if !ok {
		return domain.StateEntry{}, false
	}
	if !entry.Expired(now) {
		return entry, true
	}

	sh.mu.Lock()
	if current, ok := sh.entries[key]; ok && current.Expired(now) {
		delete(sh.entries, key)
	}
	sh.mu.Unlock()
	return domain.StateEntry{}, false
}

func (s *Store) shard(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return s.shards[h.Sum32()&s.mask]
}

func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}

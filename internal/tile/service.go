package tile

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultTTL is how long a fetched tile is served from memory.
	DefaultTTL = 24 * time.Hour

	// DefaultMaxEntries caps the number of cached tiles.
	DefaultMaxEntries = 1000
)

// Fetcher retrieves a tile image from upstream.
type Fetcher interface {
	Fetch(ctx context.Context, key Key) ([]byte, error)
}

// Observer is notified of every cache lookup (optional).
type Observer interface {
	ObserveLookup(ctx context.Context, hit bool)
}

// ServiceConfig holds configuration for the tile service.
type ServiceConfig struct {
	Fetcher Fetcher
	Logger  zerolog.Logger

	// TTL is the lifetime of a cached tile (default: 24 hours).
	TTL time.Duration

	// MaxEntries caps the cache size (default: 1000).
	MaxEntries int

	Observer Observer

	// Now returns the current time (optional, for tests).
	Now func() time.Time
}

// Service serves tiles from memory and fetches missing or expired ones.
// When full, the oldest inserted tile is evicted; hits do not reorder.
type Service struct {
	fetcher    Fetcher
	logger     zerolog.Logger
	ttl        time.Duration
	maxEntries int
	observer   Observer
	now        func() time.Time

	mu      sync.RWMutex
	entries map[Key]*list.Element
	order   *list.List // front is the oldest insertion

	group singleflight.Group
}

type entry struct {
	key       Key
	data      []byte
	fetchedAt time.Time
}

// NewService creates a new tile service.
func NewService(cfg ServiceConfig) *Service {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultTTL
	}
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Service{
		fetcher:    cfg.Fetcher,
		logger:     cfg.Logger,
		ttl:        ttl,
		maxEntries: maxEntries,
		observer:   cfg.Observer,
		now:        now,
		entries:    make(map[Key]*list.Element),
		order:      list.New(),
	}
}

// GetTile returns the tile image for key. Invalid keys fail with
// ErrInvalidRequest before any fetch. Fetch failures are never cached.
func (s *Service) GetTile(ctx context.Context, key Key) ([]byte, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}

	if data, ok := s.lookup(key); ok {
		s.observe(ctx, true)
		return data, nil
	}
	s.observe(ctx, false)

	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := s.group.Do(key.String(), func() (interface{}, error) {
		if data, ok := s.lookup(key); ok {
			return data, nil
		}

		data, err := s.fetcher.Fetch(fetchCtx, key)
		if err != nil {
			return nil, fmt.Errorf("fetching tile %s: %w", key, err)
		}

		s.insert(key, data)
		return data, nil
	})
	if err != nil {
		s.logger.Warn().Err(err).Str("tile", key.String()).Msg("tile fetch failed")
		return nil, err
	}
	return v.([]byte), nil
}

// Len returns the number of cached tiles, including expired ones not yet replaced.
func (s *Service) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.order.Len()
}

// Contains reports whether an unexpired tile for key is cached.
func (s *Service) Contains(key Key) bool {
	_, ok := s.lookup(key)
	return ok
}

func (s *Service) lookup(key Key) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	el, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	e := el.Value.(*entry)
	if s.now().Sub(e.fetchedAt) >= s.ttl {
		return nil, false
	}
	return e.data, true
}

func (s *Service) insert(key Key, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// replacing an expired tile counts as a new insertion
	if el, ok := s.entries[key]; ok {
		s.order.Remove(el)
	}
	s.entries[key] = s.order.PushBack(&entry{key: key, data: data, fetchedAt: s.now()})

	if s.order.Len() > s.maxEntries {
		oldest := s.order.Front()
		s.order.Remove(oldest)
		delete(s.entries, oldest.Value.(*entry).key)
	}
}

func (s *Service) observe(ctx context.Context, hit bool) {
	if s.observer != nil {
		s.observer.ObserveLookup(ctx, hit)
	}
}

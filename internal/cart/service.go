package cart

import (
	"context"
	"fmt"
	"sync"

	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/metrics"
)

// Service opens profile carts against one storage backend and serialises
// load-mutate-persist cycles for the same profile within this process.
type Service struct {
	storage Storage
	slot    string
	opts    Options

	mu    sync.Mutex
	locks map[string]*profileLock
}

type profileLock struct {
	mu   sync.Mutex
	refs int
}

// NewService builds a cart service over storage, keyed by slot.
func NewService(storage Storage, slot string, logg *logger.Logger, m *metrics.CartMetrics) (*Service, error) {
	if storage == nil {
		return nil, fmt.Errorf("cart storage required")
	}
	if slot == "" {
		slot = DefaultSlot
	}
	return &Service{
		storage: storage,
		slot:    slot,
		opts:    Options{Logger: logg, Metrics: m},
		locks:   map[string]*profileLock{},
	}, nil
}

// Open loads the profile's cart without holding the profile lock. Use it for reads.
func (s *Service) Open(ctx context.Context, profileID string) (*Store, LoadResult) {
	return Open(ctx, s.storage, SlotKey(profileID, s.slot), s.opts)
}

// Do loads the profile's cart and runs fn with the profile lock held, so concurrent
// requests from one profile do not overwrite each other's writes.
// When the slot cannot be read fn is not run and the load error is returned.
func (s *Service) Do(ctx context.Context, profileID string, fn func(*Store) error) (LoadResult, error) {
	key := SlotKey(profileID, s.slot)
	unlock := s.lock(key)
	defer unlock()

	store, res := Open(ctx, s.storage, key, s.opts)
	if res.State == LoadUnavailable {
		return res, res.Err
	}
	return res, fn(store)
}

func (s *Service) lock(key string) func() {
	s.mu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &profileLock{}
		s.locks[key] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.mu.Unlock()
	}
}

// Storage exposes the backing storage, e.g. for readiness probes.
func (s *Service) Storage() Storage {
	return s.storage
}

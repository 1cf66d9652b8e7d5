package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"namereg/internal/registry/models"
	"namereg/internal/registry/store"
	"namereg/pkg/domain"
)

// parkingRegistry holds the next armed read after it has loaded from the
// store, until the test releases it.
type parkingRegistry struct {
	*store.InMemoryStore

	armed   atomic.Bool
	loaded  chan struct{}
	release chan struct{}
}

func newParkingRegistry(st *store.InMemoryStore) *parkingRegistry {
	return &parkingRegistry{
		InMemoryStore: st,
		loaded:        make(chan struct{}),
		release:       make(chan struct{}),
	}
}

func (r *parkingRegistry) FindRecord(ctx context.Context, name string) (*models.Record, error) {
	rec, err := r.InMemoryStore.FindRecord(ctx, name)
	r.park()
	return rec, err
}

func (r *parkingRegistry) FindOwnedName(ctx context.Context, identity domain.Identity) (string, error) {
	name, err := r.InMemoryStore.FindOwnedName(ctx, identity)
	r.park()
	return name, err
}

func (r *parkingRegistry) park() {
	if r.armed.CompareAndSwap(true, false) {
		r.loaded <- struct{}{}
		<-r.release
	}
}

// generationCache is an in-memory RecordCache with the same fill rule as the
// Redis cache: a put only lands at the generation its miss reported.
type generationCache struct {
	mu      sync.Mutex
	records map[string]models.Record
	owned   map[domain.Identity]string
	gens    map[string]uint64
}

func newGenerationCache() *generationCache {
	return &generationCache{
		records: make(map[string]models.Record),
		owned:   make(map[domain.Identity]string),
		gens:    make(map[string]uint64),
	}
}

func (c *generationCache) GetRecord(_ context.Context, name string) (*models.Record, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[name]
	if !ok {
		return nil, c.gens["record:"+name], store.ErrNotFound
	}
	return &rec, 0, nil
}

func (c *generationCache) PutRecord(_ context.Context, rec *models.Record, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens["record:"+rec.Name] == gen {
		c.records[rec.Name] = *rec
	}
	return nil
}

func (c *generationCache) GetOwnedName(_ context.Context, identity domain.Identity) (string, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	name, ok := c.owned[identity]
	if !ok {
		return "", c.gens["owned:"+identity.String()], store.ErrNotFound
	}
	return name, 0, nil
}

func (c *generationCache) PutOwnedName(_ context.Context, identity domain.Identity, name string, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens["owned:"+identity.String()] == gen {
		c.owned[identity] = name
	}
	return nil
}

func (c *generationCache) Invalidate(_ context.Context, names []string, identities []domain.Identity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, name := range names {
		c.gens["record:"+name]++
		delete(c.records, name)
	}
	for _, id := range identities {
		c.gens["owned:"+id.String()]++
		delete(c.owned, id)
	}
	return nil
}

func (s *ServiceSuite) TestCacheFillRacingTransfer() {
	registry := newParkingRegistry(s.store)
	svc := New(registry, s.payout,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithCache(newGenerationCache()),
	)
	_, err := svc.Register(s.ctx, registerCall(alice, epoch), "alice123")
	s.Require().NoError(err)

	s.Run("resolve loaded before a transfer does not cache the old owner", func() {
		registry.armed.Store(true)
		inFlight := make(chan domain.Identity, 1)
		go func() {
			owner, err := svc.Resolve(s.ctx, "alice123", at(1))
			s.NoError(err)
			inFlight <- owner
		}()

		<-registry.loaded
		_, err := svc.Transfer(s.ctx, models.Call{Caller: alice, Now: at(1)}, "alice123", bob)
		s.Require().NoError(err)
		registry.release <- struct{}{}
		s.Equal(alice, <-inFlight)

		owner, err := svc.Resolve(s.ctx, "alice123", at(2))
		s.Require().NoError(err)
		s.Equal(bob, owner)
	})

	s.Run("reverse lookup loaded before a transfer does not cache the old name", func() {
		registry.armed.Store(true)
		inFlight := make(chan string, 1)
		go func() {
			name, err := svc.ReverseLookup(s.ctx, bob)
			s.NoError(err)
			inFlight <- name
		}()

		<-registry.loaded
		_, err := svc.Transfer(s.ctx, models.Call{Caller: bob, Now: at(3)}, "alice123", carol)
		s.Require().NoError(err)
		registry.release <- struct{}{}
		s.Equal("alice123", <-inFlight)

		name, err := svc.ReverseLookup(s.ctx, bob)
		s.Require().NoError(err)
		s.Empty(name)
		name, err = svc.ReverseLookup(s.ctx, carol)
		s.Require().NoError(err)
		s.Equal("alice123", name)
	})

	s.Run("a quiet miss still fills the cache", func() {
		_, err := svc.Resolve(s.ctx, "alice123", at(4))
		s.Require().NoError(err)
		rec, _, err := svc.cache.GetRecord(s.ctx, "alice123")
		s.Require().NoError(err)
		s.Equal(carol, rec.Owner)
	})
}

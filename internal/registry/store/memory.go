package store

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

// InMemoryStore keeps registry state in process memory.
//
// A single mutex serializes every transaction: operations touch several keys
// at once (a name and two identities on transfer), so per-key locking cannot
// give the total order the registry needs. Writes made inside RunInTx are
// staged and only applied when the callback returns nil.
type InMemoryStore struct {
	mu      sync.Mutex
	state   memoryState
	timeout time.Duration
}

type memoryState struct {
	admin     domain.Identity
	records   map[string]models.Record
	owned     map[domain.Identity]string
	balance   domain.Amount
	events    []models.Event
	published map[int64]struct{}
	pending   map[uuid.UUID]models.PendingWithdrawal
}

// InMemoryOption configures an InMemoryStore.
type InMemoryOption func(*InMemoryStore)

// WithInMemoryTxTimeout overrides the default transaction timeout.
func WithInMemoryTxTimeout(d time.Duration) InMemoryOption {
	return func(s *InMemoryStore) {
		s.timeout = d
	}
}

// NewInMemoryStore creates an empty registry administered by admin.
func NewInMemoryStore(admin domain.Identity, opts ...InMemoryOption) *InMemoryStore {
	s := &InMemoryStore{
		state: memoryState{
			admin:     admin,
			records:   make(map[string]models.Record),
			owned:     make(map[domain.Identity]string),
			published: make(map[int64]struct{}),
			pending:   make(map[uuid.UUID]models.PendingWithdrawal),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunInTx runs fn with exclusive access to the registry. fn's writes become
// visible only if it returns nil.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	staged := newStagedStore(&s.state)
	if err := fn(ctx, staged); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded before commit")
	}
	staged.commit()
	return nil
}

func (s *InMemoryStore) FindRecord(_ context.Context, name string) (*models.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.findRecord(name)
}

func (s *InMemoryStore) FindOwnedName(_ context.Context, identity domain.Identity) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.owned[identity], nil
}

func (s *InMemoryStore) Balance(_ context.Context) (domain.Amount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.balance, nil
}

func (s *InMemoryStore) Admin(_ context.Context) (domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.admin, nil
}

func (s *InMemoryStore) SaveRecord(ctx context.Context, rec *models.Record) error {
	return s.RunInTx(ctx, func(ctx context.Context, st Store) error {
		return st.SaveRecord(ctx, rec)
	})
}

func (s *InMemoryStore) SetOwnedName(ctx context.Context, identity domain.Identity, name string) error {
	return s.RunInTx(ctx, func(ctx context.Context, st Store) error {
		return st.SetOwnedName(ctx, identity, name)
	})
}

func (s *InMemoryStore) SetBalance(ctx context.Context, amount domain.Amount) error {
	return s.RunInTx(ctx, func(ctx context.Context, st Store) error {
		return st.SetBalance(ctx, amount)
	})
}

func (s *InMemoryStore) AppendEvent(ctx context.Context, event *models.Event) error {
	return s.RunInTx(ctx, func(ctx context.Context, st Store) error {
		return st.AppendEvent(ctx, event)
	})
}

func (s *InMemoryStore) SavePendingWithdrawal(ctx context.Context, w models.PendingWithdrawal) error {
	return s.RunInTx(ctx, func(ctx context.Context, st Store) error {
		return st.SavePendingWithdrawal(ctx, w)
	})
}

func (s *InMemoryStore) PendingWithdrawals(_ context.Context) ([]models.PendingWithdrawal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedPending(s.state.pending, nil), nil
}

func (s *InMemoryStore) DeletePendingWithdrawal(ctx context.Context, id uuid.UUID) (bool, error) {
	var removed bool
	err := s.RunInTx(ctx, func(ctx context.Context, st Store) error {
		var err error
		removed, err = st.DeletePendingWithdrawal(ctx, id)
		return err
	})
	return removed, err
}

// ListEvents returns committed events matching filter in sequence order.
func (s *InMemoryStore) ListEvents(_ context.Context, filter models.EventFilter) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit := limitOrDefault(filter.Limit)
	out := make([]models.Event, 0, min(limit, len(s.state.events)))
	for _, e := range s.state.events {
		if e.Seq <= filter.AfterSeq {
			continue
		}
		if filter.HasName() && e.NameHash != filter.NameHash {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// PendingEvents returns up to limit committed events not yet marked published,
// oldest first.
func (s *InMemoryStore) PendingEvents(_ context.Context, limit int) ([]models.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	limit = limitOrDefault(limit)
	var out []models.Event
	for _, e := range s.state.events {
		if _, done := s.state.published[e.Seq]; done {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// MarkPublished records that the events with the given sequence numbers were relayed.
func (s *InMemoryStore) MarkPublished(_ context.Context, seqs []int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seq := range seqs {
		s.state.published[seq] = struct{}{}
	}
	return nil
}

// Ping always succeeds; it exists so health checks treat backends uniformly.
func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}

func (st *memoryState) findRecord(name string) (*models.Record, error) {
	rec, ok := st.records[name]
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

// stagedStore buffers a transaction's writes on top of the committed state.
// It is only used while the owning InMemoryStore's mutex is held.
type stagedStore struct {
	base    *memoryState
	records map[string]models.Record
	owned   map[domain.Identity]string
	balance *domain.Amount
	events  []models.Event
	// pending holds staged withdrawals; a nil entry is a staged delete.
	pending map[uuid.UUID]*models.PendingWithdrawal
}

func newStagedStore(base *memoryState) *stagedStore {
	return &stagedStore{
		base:    base,
		records: make(map[string]models.Record),
		owned:   make(map[domain.Identity]string),
		pending: make(map[uuid.UUID]*models.PendingWithdrawal),
	}
}

func (t *stagedStore) FindRecord(_ context.Context, name string) (*models.Record, error) {
	if rec, ok := t.records[name]; ok {
		return &rec, nil
	}
	return t.base.findRecord(name)
}

func (t *stagedStore) SaveRecord(_ context.Context, rec *models.Record) error {
	t.records[rec.Name] = *rec
	return nil
}

func (t *stagedStore) FindOwnedName(_ context.Context, identity domain.Identity) (string, error) {
	if name, ok := t.owned[identity]; ok {
		return name, nil
	}
	return t.base.owned[identity], nil
}

func (t *stagedStore) SetOwnedName(_ context.Context, identity domain.Identity, name string) error {
	t.owned[identity] = name
	return nil
}

func (t *stagedStore) Balance(context.Context) (domain.Amount, error) {
	if t.balance != nil {
		return *t.balance, nil
	}
	return t.base.balance, nil
}

func (t *stagedStore) SetBalance(_ context.Context, amount domain.Amount) error {
	t.balance = &amount
	return nil
}

func (t *stagedStore) Admin(context.Context) (domain.Identity, error) {
	return t.base.admin, nil
}

func (t *stagedStore) AppendEvent(_ context.Context, event *models.Event) error {
	event.Seq = int64(len(t.base.events)+len(t.events)) + 1
	t.events = append(t.events, *event)
	return nil
}

func (t *stagedStore) SavePendingWithdrawal(_ context.Context, w models.PendingWithdrawal) error {
	t.pending[w.ID] = &w
	return nil
}

func (t *stagedStore) PendingWithdrawals(context.Context) ([]models.PendingWithdrawal, error) {
	return sortedPending(t.base.pending, t.pending), nil
}

func (t *stagedStore) DeletePendingWithdrawal(_ context.Context, id uuid.UUID) (bool, error) {
	present := false
	if staged, ok := t.pending[id]; ok {
		present = staged != nil
	} else {
		_, present = t.base.pending[id]
	}
	if present {
		t.pending[id] = nil
	}
	return present, nil
}

func (t *stagedStore) commit() {
	for name, rec := range t.records {
		t.base.records[name] = rec
	}
	for identity, name := range t.owned {
		if name == "" {
			delete(t.base.owned, identity)
			continue
		}
		t.base.owned[identity] = name
	}
	if t.balance != nil {
		t.base.balance = *t.balance
	}
	for id, w := range t.pending {
		if w == nil {
			delete(t.base.pending, id)
			continue
		}
		t.base.pending[id] = *w
	}
	t.base.events = slices.Concat(t.base.events, t.events)
}

// sortedPending merges staged withdrawals over base and orders them by
// creation time, then ID.
func sortedPending(base map[uuid.UUID]models.PendingWithdrawal, staged map[uuid.UUID]*models.PendingWithdrawal) []models.PendingWithdrawal {
	out := make([]models.PendingWithdrawal, 0, len(base)+len(staged))
	for id, w := range base {
		if _, overridden := staged[id]; overridden {
			continue
		}
		out = append(out, w)
	}
	for _, w := range staged {
		if w != nil {
			out = append(out, *w)
		}
	}
	slices.SortFunc(out, func(a, b models.PendingWithdrawal) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return out
}

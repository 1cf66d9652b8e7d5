// Package service implements the name registry's operations.
//
// Every mutating operation validates the request, then runs one store
// transaction that re-checks state, applies all writes and appends the
// matching event. A rejected operation returns a coded error from
// pkg/domain-errors and leaves the store untouched.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"namereg/internal/registry/metrics"
	"namereg/internal/registry/models"
	"namereg/internal/registry/store"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/requestcontext"
)

// Registry is the state the service owns. Both store backends satisfy it.
type Registry interface {
	store.Store
	RunInTx(ctx context.Context, fn store.TxFunc) error
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}

// Payout moves value out of the registry. A nil error means the recipient
// was credited.
type Payout interface {
	Send(ctx context.Context, w models.Withdrawal) error
}

// RecordCache is an optional read-through cache for queries. A miss returns
// store.ErrNotFound with the entry's generation; a fill presents that
// generation and is dropped if Invalidate ran in between. Mutations never
// read it.
type RecordCache interface {
	GetRecord(ctx context.Context, name string) (*models.Record, uint64, error)
	PutRecord(ctx context.Context, rec *models.Record, gen uint64) error
	GetOwnedName(ctx context.Context, identity domain.Identity) (string, uint64, error)
	PutOwnedName(ctx context.Context, identity domain.Identity, name string, gen uint64) error
	Invalidate(ctx context.Context, names []string, identities []domain.Identity) error
}

// Service applies registry operations.
type Service struct {
	registry Registry
	payout   Payout
	cache    RecordCache
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithCache(cache RecordCache) Option {
	return func(s *Service) {
		s.cache = cache
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = tracer
	}
}

// New constructs a Service.
func New(registry Registry, payout Payout, opts ...Option) *Service {
	s := &Service{
		registry: registry,
		payout:   payout,
		tracer:   otel.Tracer("namereg/registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

const (
	opRegister      = "register"
	opRenew         = "renew"
	opTransfer      = "transfer"
	opWithdraw      = "withdraw"
	opResolve       = "resolve"
	opReverseLookup = "reverse_lookup"
	opIsAvailable   = "is_available"
	opGetExpiry     = "get_expiry"
)

// observe opens a span for op and returns a func that closes it and records
// the outcome.
func (s *Service) observe(ctx context.Context, op, name string) (context.Context, func(error)) {
	start := time.Now()
	attrs := []attribute.KeyValue{attribute.String("registry.operation", op)}
	if name != "" {
		attrs = append(attrs,
			attribute.String("registry.name", name),
			attribute.String("registry.name_hash", models.HashName(name).String()),
		)
	}
	ctx, span := s.tracer.Start(ctx, "registry."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		result := "ok"
		if err != nil {
			result = string(dErrors.CodeOf(err))
			span.SetStatus(codes.Error, result)
			span.RecordError(err)
		}
		span.SetAttributes(attribute.String("registry.result", result))
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, result, start)
		}
	}
}

func (s *Service) logAudit(ctx context.Context, event string, attributes ...any) {
	if requestID := requestcontext.RequestID(ctx); requestID != "" {
		attributes = append(attributes, "request_id", requestID)
	}
	args := append(attributes, "event", event, "log_type", "audit")
	s.logger.InfoContext(ctx, event, args...)
}

// invalidate drops cache entries touched by a committed mutation. Failures
// only cost staleness until the entry's TTL, so they are logged.
func (s *Service) invalidate(ctx context.Context, names []string, identities ...domain.Identity) {
	if s.cache == nil {
		return
	}
	var ids []domain.Identity
	for _, id := range identities {
		if !id.IsZero() {
			ids = append(ids, id)
		}
	}
	if err := s.cache.Invalidate(ctx, names, ids); err != nil {
		s.logger.WarnContext(ctx, "registry cache invalidation failed",
			"error", err,
			"names", names,
		)
	}
}

// callTime returns the ledger time for call, falling back to the request clock.
func callTime(ctx context.Context, call models.Call) time.Time {
	if call.Now.IsZero() {
		return requestcontext.Now(ctx)
	}
	return call.Now
}

// findRecord loads a record, mapping absence to nil.
func findRecord(ctx context.Context, st store.Store, name string) (*models.Record, error) {
	rec, err := st.FindRecord(ctx, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load name record")
	}
	return rec, nil
}

func credit(ctx context.Context, st store.Store, value domain.Amount) error {
	balance, err := st.Balance(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	if err := st.SetBalance(ctx, balance.Add(value)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to credit fee")
	}
	return nil
}

func appendEvent(ctx context.Context, st store.Store, event models.Event) error {
	if err := st.AppendEvent(ctx, &event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to append event")
	}
	return nil
}

// wrapStoreErr keeps coded errors as they are and marks anything else internal.
func wrapStoreErr(err error, msg string) error {
	var coded *dErrors.Error
	if errors.As(err, &coded) {
		return err
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func requireCaller(call models.Call) error {
	if call.Caller.IsZero() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity is required")
	}
	return nil
}

func checkFee(value, fee domain.Amount) error {
	if !value.Equal(fee) {
		return dErrors.New(dErrors.CodeInvalidFee, "value must equal "+fee.String()+" wei")
	}
	return nil
}

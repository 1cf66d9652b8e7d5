package service

import (
	"context"
	"errors"
	"time"

	"namereg/internal/registry/models"
	"namereg/internal/registry/store"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

// Resolve returns the owner of name at now, or the zero identity when the
// name is unregistered, expired or malformed. Errors are infrastructure only.
func (s *Service) Resolve(ctx context.Context, name string, now time.Time) (owner domain.Identity, err error) {
	ctx, finish := s.observe(ctx, opResolve, name)
	defer func() { finish(err) }()

	if !models.ValidName(name) {
		return domain.ZeroIdentity, nil
	}
	rec, err := s.lookupRecord(ctx, name)
	if err != nil {
		return domain.ZeroIdentity, err
	}
	if !rec.IsActive(now) {
		return domain.ZeroIdentity, nil
	}
	return rec.Owner, nil
}

// ReverseLookup returns the name identity holds, which may have expired, or
// "" when it holds none.
func (s *Service) ReverseLookup(ctx context.Context, identity domain.Identity) (name string, err error) {
	ctx, finish := s.observe(ctx, opReverseLookup, "")
	defer func() { finish(err) }()

	if identity.IsZero() {
		return "", nil
	}
	fill, gen := false, uint64(0)
	if s.cache != nil {
		cached, g, err := s.cache.GetOwnedName(ctx, identity)
		switch {
		case err == nil:
			s.recordCache(true, "owned_name")
			return cached, nil
		case errors.Is(err, store.ErrNotFound):
			fill, gen = true, g
		default:
			s.logger.WarnContext(ctx, "registry cache read failed", "error", err)
		}
		s.recordCache(false, "owned_name")
	}

	name, err = s.registry.FindOwnedName(ctx, identity)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up name")
	}
	if fill {
		if err := s.cache.PutOwnedName(ctx, identity, name, gen); err != nil {
			s.logger.WarnContext(ctx, "registry cache write failed", "error", err)
		}
	}
	return name, nil
}

// IsAvailable reports whether name has no owner or lapsed before now.
// Malformed names are never stored, so they report true; register still
// rejects them with InvalidName.
func (s *Service) IsAvailable(ctx context.Context, name string, now time.Time) (available bool, err error) {
	ctx, finish := s.observe(ctx, opIsAvailable, name)
	defer func() { finish(err) }()

	if !models.ValidName(name) {
		return true, nil
	}
	rec, err := s.lookupRecord(ctx, name)
	if err != nil {
		return false, err
	}
	return !rec.IsActive(now), nil
}

// GetExpiry returns the stored expiry of name, which persists after it
// lapses, or the zero time when name was never registered.
func (s *Service) GetExpiry(ctx context.Context, name string) (expiresAt time.Time, err error) {
	ctx, finish := s.observe(ctx, opGetExpiry, name)
	defer func() { finish(err) }()

	if !models.ValidName(name) {
		return time.Time{}, nil
	}
	rec, err := s.lookupRecord(ctx, name)
	if err != nil {
		return time.Time{}, err
	}
	if rec == nil {
		return time.Time{}, nil
	}
	return rec.ExpiresAt, nil
}

// Lookup returns the stored record for name, or nil.
func (s *Service) Lookup(ctx context.Context, name string) (*models.Record, error) {
	if !models.ValidName(name) {
		return nil, nil
	}
	return s.lookupRecord(ctx, name)
}

// Status reports the administrator, the accumulated balance and the fee schedule.
func (s *Service) Status(ctx context.Context) (*models.Status, error) {
	admin, err := s.registry.Admin(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load administrator")
	}
	balance, err := s.registry.Balance(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
	}
	return &models.Status{
		Admin:           admin,
		Balance:         balance,
		RegistrationFee: models.RegistrationFee,
		RenewalFee:      models.RenewalFee,
		Duration:        models.RegistrationDuration,
	}, nil
}

// ListEvents returns committed events in sequence order.
func (s *Service) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	events, err := s.registry.ListEvents(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list events")
	}
	return events, nil
}

// lookupRecord reads name through the cache. A missing record returns nil.
// The cache is only filled after a clean miss, with the generation that miss
// reported, so a fill never outlives a concurrent invalidation.
func (s *Service) lookupRecord(ctx context.Context, name string) (*models.Record, error) {
	fill, gen := false, uint64(0)
	if s.cache != nil {
		rec, g, err := s.cache.GetRecord(ctx, name)
		switch {
		case err == nil:
			s.recordCache(true, "record")
			return rec, nil
		case errors.Is(err, store.ErrNotFound):
			fill, gen = true, g
		default:
			s.logger.WarnContext(ctx, "registry cache read failed", "error", err, "name", name)
		}
		s.recordCache(false, "record")
	}

	rec, err := findRecord(ctx, s.registry, name)
	if err != nil {
		return nil, err
	}
	if rec != nil && fill {
		if err := s.cache.PutRecord(ctx, rec, gen); err != nil {
			s.logger.WarnContext(ctx, "registry cache write failed", "error", err, "name", name)
		}
	}
	return rec, nil
}

func (s *Service) recordCache(hit bool, kind string) {
	if s.metrics == nil {
		return
	}
	if hit {
		s.metrics.RecordCacheHit(kind)
		return
	}
	s.metrics.RecordCacheMiss(kind)
}

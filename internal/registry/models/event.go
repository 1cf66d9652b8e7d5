package models

import (
	"time"

	"github.com/google/uuid"

	"namereg/pkg/domain"
)

// EventKind names an entry in the registry's append-only event log.
type EventKind string

const (
	EventNameRegistered  EventKind = "NameRegistered"
	EventNameRenewed     EventKind = "NameRenewed"
	EventNameTransferred EventKind = "NameTransferred"
	EventFeesWithdrawn   EventKind = "FeesWithdrawn"
)

// Event is one committed registry effect. Seq is assigned by the store when
// the event is appended and orders events totally.
//
// Field use by kind:
//   - NameRegistered: Name, NameHash, Owner, ExpiresAt
//   - NameRenewed: Name, NameHash, ExpiresAt
//   - NameTransferred: Name, NameHash, PreviousOwner, Owner
//   - FeesWithdrawn: Owner (the administrator), Amount
type Event struct {
	Seq           int64
	ID            uuid.UUID
	Kind          EventKind
	NameHash      NameHash
	Name          string
	Owner         domain.Identity
	PreviousOwner domain.Identity
	ExpiresAt     time.Time
	Amount        domain.Amount
	OccurredAt    time.Time
}

func NewNameRegistered(rec Record, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       EventNameRegistered,
		NameHash:   HashName(rec.Name),
		Name:       rec.Name,
		Owner:      rec.Owner,
		ExpiresAt:  rec.ExpiresAt,
		OccurredAt: at,
	}
}

func NewNameRenewed(rec Record, at time.Time) Event {
	return Event{
		ID:         uuid.New(),
		Kind:       EventNameRenewed,
		NameHash:   HashName(rec.Name),
		Name:       rec.Name,
		Owner:      rec.Owner,
		ExpiresAt:  rec.ExpiresAt,
		OccurredAt: at,
	}
}

func NewNameTransferred(name string, from, to domain.Identity, at time.Time) Event {
	return Event{
		ID:            uuid.New(),
		Kind:          EventNameTransferred,
		NameHash:      HashName(name),
		Name:          name,
		PreviousOwner: from,
		Owner:         to,
		OccurredAt:    at,
	}
}

func NewFeesWithdrawn(w Withdrawal, at time.Time) Event {
	return Event{
		ID:         w.ID,
		Kind:       EventFeesWithdrawn,
		Owner:      w.To,
		Amount:     w.Amount,
		OccurredAt: at,
	}
}

// EventFilter selects events from the log. A zero NameHash selects all names.
type EventFilter struct {
	NameHash NameHash
	AfterSeq int64
	Limit    int
}

// HasName reports whether the filter is scoped to one name.
func (f EventFilter) HasName() bool {
	return f.NameHash != NameHash{}
}

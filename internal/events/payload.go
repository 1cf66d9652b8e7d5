// Package events defines the wire form of registry events shared by the
// Kafka relay and the HTTP event log.
package events

import (
	"namereg/internal/registry/models"
)

// Payload is the JSON form of one registry event. Identities and the name
// hash are 0x-prefixed hex, amounts are decimal wei strings and times are
// unix seconds.
type Payload struct {
	Seq           int64  `json:"seq"`
	ID            string `json:"id"`
	Kind          string `json:"kind"`
	NameHash      string `json:"name_hash,omitempty"`
	Name          string `json:"name,omitempty"`
	Owner         string `json:"owner,omitempty"`
	PreviousOwner string `json:"previous_owner,omitempty"`
	ExpiresAt     int64  `json:"expires_at,omitempty"`
	AmountWei     string `json:"amount_wei,omitempty"`
	OccurredAt    int64  `json:"occurred_at"`
}

// FromEvent converts a stored event to its wire form, omitting fields the
// event kind does not use.
func FromEvent(e models.Event) Payload {
	p := Payload{
		Seq:        e.Seq,
		ID:         e.ID.String(),
		Kind:       string(e.Kind),
		ExpiresAt:  models.Unix(e.ExpiresAt),
		OccurredAt: models.Unix(e.OccurredAt),
	}
	if e.Name != "" {
		p.Name = e.Name
		p.NameHash = e.NameHash.String()
	}
	if !e.Owner.IsZero() {
		p.Owner = e.Owner.String()
	}
	if !e.PreviousOwner.IsZero() {
		p.PreviousOwner = e.PreviousOwner.String()
	}
	if e.Kind == models.EventFeesWithdrawn {
		p.AmountWei = e.Amount.String()
	}
	return p
}

// FromEvents converts a batch, preserving order.
func FromEvents(events []models.Event) []Payload {
	out := make([]Payload, 0, len(events))
	for _, e := range events {
		out = append(out, FromEvent(e))
	}
	return out
}

// Key returns the partition key for e. Events for one name share a key so
// consumers see them in order; withdrawals share a fixed key.
func Key(e models.Event) string {
	if e.Name == "" {
		return "registry"
	}
	return e.NameHash.String()
}

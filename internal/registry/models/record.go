package models

import (
	"time"

	"namereg/pkg/domain"
)

// RegistrationDuration is how long a registration or renewal holds a name.
const RegistrationDuration = 365 * 24 * time.Hour

var (
	// RegistrationFee is the exact value a register call must carry.
	RegistrationFee = domain.Ether("0.01")
	// RenewalFee is half the registration fee.
	RenewalFee = RegistrationFee.Half()
)

// Record is the registration state of one name.
//
// Invariants:
//   - Name satisfies ValidName
//   - ExpiresAt never decreases across operations on the same name
//   - A record is never deleted; once expired it stays in place until the
//     next registration overwrites it
type Record struct {
	Name      string
	Owner     domain.Identity
	ExpiresAt time.Time
}

// IsActive reports whether the record is held at now. The name stays held
// through the exact expiry instant.
func (r *Record) IsActive(now time.Time) bool {
	if r == nil || r.Owner.IsZero() {
		return false
	}
	return !now.After(r.ExpiresAt)
}

// IsExpired reports whether an owned record lapsed before now.
func (r *Record) IsExpired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// OwnedBy reports whether identity is the recorded owner, regardless of expiry.
func (r *Record) OwnedBy(identity domain.Identity) bool {
	return r != nil && !r.Owner.IsZero() && r.Owner == identity
}

// Unix returns t in unix seconds, or 0 for the zero time.
func Unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// Call carries what the ledger supplies with every operation: the
// authenticated caller, the value attached to the call and the current time.
type Call struct {
	Caller domain.Identity
	Value  domain.Amount
	Now    time.Time
}

// Status summarizes registry-wide state.
type Status struct {
	Admin           domain.Identity
	Balance         domain.Amount
	RegistrationFee domain.Amount
	RenewalFee      domain.Amount
	Duration        time.Duration
}

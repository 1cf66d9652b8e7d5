package models

import (
	"time"

	"github.com/google/uuid"

	"namereg/pkg/domain"
)

// WithdrawalLease is how long a claimed pending withdrawal is left to the
// caller that claimed it before another withdraw may resend it.
const WithdrawalLease = time.Minute

// Withdrawal is one payout of the accumulated balance to the administrator.
// ID doubles as the idempotency key sent to the payout provider and as the
// FeesWithdrawn event ID.
type Withdrawal struct {
	ID     uuid.UUID
	To     domain.Identity
	Amount domain.Amount
}

// PendingWithdrawal is a withdrawal whose amount has left the balance but
// whose payout is not yet recorded as settled. Until it is settled or
// cancelled, balance plus every pending amount equals the fees held.
type PendingWithdrawal struct {
	Withdrawal
	CreatedAt  time.Time
	LeaseUntil time.Time
}

// Claimable reports whether the lease on p has run out at now.
func (p PendingWithdrawal) Claimable(now time.Time) bool {
	return !now.Before(p.LeaseUntil)
}

// NewPendingWithdrawal reserves amount for admin under a fresh lease.
func NewPendingWithdrawal(admin domain.Identity, amount domain.Amount, now time.Time) PendingWithdrawal {
	return PendingWithdrawal{
		Withdrawal: Withdrawal{ID: uuid.New(), To: admin, Amount: amount},
		CreatedAt:  now,
		LeaseUntil: now.Add(WithdrawalLease),
	}
}

// Package store holds the registry's persistent state: name records, the
// reverse index, the accumulated fee balance, withdrawals awaiting payout,
// the administrator and the append-only event log.
//
// Stores apply mechanical reads and writes only. Business rules live in the
// service; the store's job is to make each RunInTx callback all-or-nothing
// and totally ordered relative to every other callback.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	"namereg/pkg/platform/sentinel"
)

// ErrNotFound is returned when no record exists for a name.
var ErrNotFound = sentinel.ErrNotFound

// defaultTxTimeout bounds a registry transaction when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// Store is the read/write surface shared by the in-memory and PostgreSQL
// backends. Inside RunInTx every call joins the surrounding transaction.
type Store interface {
	FindRecord(ctx context.Context, name string) (*models.Record, error)
	SaveRecord(ctx context.Context, rec *models.Record) error
	FindOwnedName(ctx context.Context, identity domain.Identity) (string, error)
	SetOwnedName(ctx context.Context, identity domain.Identity, name string) error
	Balance(ctx context.Context) (domain.Amount, error)
	SetBalance(ctx context.Context, amount domain.Amount) error
	Admin(ctx context.Context) (domain.Identity, error)
	AppendEvent(ctx context.Context, event *models.Event) error

	SavePendingWithdrawal(ctx context.Context, w models.PendingWithdrawal) error
	// PendingWithdrawals returns unsettled withdrawals, oldest first.
	PendingWithdrawals(ctx context.Context) ([]models.PendingWithdrawal, error)
	// DeletePendingWithdrawal removes id and reports whether it was present.
	DeletePendingWithdrawal(ctx context.Context, id uuid.UUID) (bool, error)
}

// TxFunc is the body of a registry transaction. The context passed to it
// carries the transaction deadline and must be used for every store call.
type TxFunc func(ctx context.Context, store Store) error

// withTimeout applies the default transaction timeout when ctx has no deadline.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

func limitOrDefault(limit int) int {
	const (
		defaultLimit = 100
		maxLimit     = 1000
	)
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

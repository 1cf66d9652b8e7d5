package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"namereg/internal/registry/models"
	"namereg/internal/registry/payout"
	"namereg/internal/registry/store"
	dErrors "namereg/pkg/domain-errors"
)

var errCommitAborted = errors.New("commit aborted")

// abortingRegistry runs transactions against the in-memory store but can make
// a chosen upcoming transaction lose its commit: the callback runs in full and
// its writes are then discarded.
type abortingRegistry struct {
	*store.InMemoryStore

	mu        sync.Mutex
	countdown int
}

// abortNth makes the nth transaction from now fail at commit.
func (r *abortingRegistry) abortNth(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.countdown = n
}

func (r *abortingRegistry) RunInTx(ctx context.Context, fn store.TxFunc) error {
	r.mu.Lock()
	abort := false
	if r.countdown > 0 {
		r.countdown--
		abort = r.countdown == 0
	}
	r.mu.Unlock()

	if !abort {
		return r.InMemoryStore.RunInTx(ctx, fn)
	}
	return r.InMemoryStore.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		if err := fn(ctx, st); err != nil {
			return err
		}
		return errCommitAborted
	})
}

// withdrawFixture wires a service over an abortingRegistry and a real ledger.
func (s *ServiceSuite) withdrawFixture() (*Service, *abortingRegistry, *payout.Ledger) {
	registry := &abortingRegistry{InMemoryStore: s.store}
	ledger := payout.NewLedger()
	svc := New(registry, ledger, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	return svc, registry, ledger
}

func (s *ServiceSuite) pending() []models.PendingWithdrawal {
	pending, err := s.store.PendingWithdrawals(s.ctx)
	s.Require().NoError(err)
	return pending
}

func (s *ServiceSuite) withdrawalEvents() []models.Event {
	events, err := s.store.ListEvents(s.ctx, models.EventFilter{})
	s.Require().NoError(err)
	var out []models.Event
	for _, e := range events {
		if e.Kind == models.EventFeesWithdrawn {
			out = append(out, e)
		}
	}
	return out
}

func (s *ServiceSuite) TestWithdrawPaidButNotRecordedIsNeverPaidTwice() {
	s.mustRegister(alice, "alice123", epoch)
	s.mustRegister(bob, "bob456", epoch)
	total := models.RegistrationFee.Add(models.RegistrationFee)
	svc, registry, ledger := s.withdrawFixture()

	// claim, reserve, then the settling transaction loses its commit
	registry.abortNth(3)
	_, err := svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: at(10)})
	s.requireCode(err, dErrors.CodeInternal)

	s.Equal(total.String(), ledger.BalanceOf(admin).String())
	s.True(s.balance().IsZero(), "paid fees must not return to the balance")
	s.Require().Len(s.pending(), 1)
	s.Empty(s.withdrawalEvents())

	s.Run("a withdraw inside the lease pays nothing more", func() {
		paid, err := svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: at(30)})
		s.Require().NoError(err)
		s.True(paid.IsZero())
		s.Equal(total.String(), ledger.BalanceOf(admin).String())
		s.Len(s.pending(), 1)
	})

	s.Run("after the lease the same withdrawal is resent and recorded once", func() {
		leaseEnd := s.pending()[0].LeaseUntil
		paid, err := svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: leaseEnd})
		s.Require().NoError(err)
		s.True(paid.IsZero())

		s.Equal(total.String(), ledger.BalanceOf(admin).String())
		s.Len(ledger.Sent(), 1)
		s.Empty(s.pending())
		events := s.withdrawalEvents()
		s.Require().Len(events, 1)
		s.Equal(ledger.Sent()[0].ID, events[0].ID)
		s.Equal(total.String(), events[0].Amount.String())
	})
}

func (s *ServiceSuite) TestWithdrawReservationAbortSendsNothing() {
	s.mustRegister(alice, "alice123", epoch)
	svc, registry, ledger := s.withdrawFixture()

	registry.abortNth(2)
	_, err := svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: at(10)})
	s.Require().ErrorIs(err, errCommitAborted)

	s.Empty(ledger.Sent())
	s.Equal(models.RegistrationFee.String(), s.balance().String())
	s.Empty(s.pending())
}

func (s *ServiceSuite) TestWithdrawFailedPayoutIsCancelled() {
	s.mustRegister(alice, "alice123", epoch)
	svc, _, ledger := s.withdrawFixture()
	ledger.FailWith(errors.New("treasury offline"))

	_, err := svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: at(10)})
	s.requireCode(err, dErrors.CodeTransferFailed)
	s.Equal(models.RegistrationFee.String(), s.balance().String())
	s.Empty(s.pending())
	s.Empty(s.withdrawalEvents())
}

func (s *ServiceSuite) TestWithdrawUncancelledFailureIsResentLater() {
	s.mustRegister(alice, "alice123", epoch)
	svc, registry, ledger := s.withdrawFixture()
	ledger.FailWith(errors.New("treasury offline"))

	// claim, reserve, then the cancelling transaction loses its commit
	registry.abortNth(3)
	_, err := svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: at(10)})
	s.requireCode(err, dErrors.CodeTransferFailed)
	s.True(s.balance().IsZero())
	s.Require().Len(s.pending(), 1)
	leaseEnd := s.pending()[0].LeaseUntil

	s.Run("resend failure leaves the current balance alone", func() {
		s.mustRegister(bob, "bob456", epoch)
		_, err := svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: leaseEnd})
		s.requireCode(err, dErrors.CodeTransferFailed)
		s.Equal(models.RegistrationFee.String(), s.balance().String())
		s.Len(s.pending(), 1)
	})

	s.Run("once the treasury recovers both amounts are paid", func() {
		ledger.FailWith(nil)
		retry := leaseEnd.Add(models.WithdrawalLease)
		paid, err := svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: retry})
		s.Require().NoError(err)
		s.Equal(models.RegistrationFee.String(), paid.String())

		total := models.RegistrationFee.Add(models.RegistrationFee)
		s.Equal(total.String(), ledger.BalanceOf(admin).String())
		s.True(s.balance().IsZero())
		s.Empty(s.pending())
		s.Len(s.withdrawalEvents(), 2)
	})
}

func (s *ServiceSuite) TestConcurrentWithdrawalsPayOnce() {
	s.mustRegister(alice, "alice123", epoch)
	s.mustRegister(bob, "bob456", epoch)
	svc, _, ledger := s.withdrawFixture()

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Withdraw(s.ctx, models.Call{Caller: admin, Now: at(10)})
		}()
	}
	wg.Wait()

	total := models.RegistrationFee.Add(models.RegistrationFee)
	s.Equal(total.String(), ledger.BalanceOf(admin).String())
	s.Len(ledger.Sent(), 1)
	s.True(s.balance().IsZero())
	s.Empty(s.pending())
	events := s.withdrawalEvents()
	s.Require().Len(events, 1)
	s.Equal(admin, events[0].Owner)
}

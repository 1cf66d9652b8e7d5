package service

import (
	"context"
	"time"

	"namereg/internal/registry/models"
	"namereg/internal/registry/store"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
)

// Register claims name for the caller for one registration period.
//
// Rejections are checked in order: fee, name, availability, then whether
// the caller already holds a name (expired or not).
func (s *Service) Register(ctx context.Context, call models.Call, name string) (rec *models.Record, err error) {
	ctx, finish := s.observe(ctx, opRegister, name)
	defer func() { finish(err) }()

	if err := requireCaller(call); err != nil {
		return nil, err
	}
	if err := checkFee(call.Value, models.RegistrationFee); err != nil {
		return nil, err
	}
	if !models.ValidName(name) {
		return nil, dErrors.New(dErrors.CodeInvalidName, "name must be 3-20 characters of [0-9A-Za-z]")
	}
	now := callTime(ctx, call)

	var (
		registered models.Record
		displaced  domain.Identity
	)
	err = s.registry.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		existing, err := findRecord(ctx, st, name)
		if err != nil {
			return err
		}
		if existing.IsActive(now) {
			return dErrors.New(dErrors.CodeNameNotAvailable, "name is registered until "+existing.ExpiresAt.UTC().Format(time.RFC3339))
		}
		held, err := st.FindOwnedName(ctx, call.Caller)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load caller's name")
		}
		if held != "" {
			return dErrors.New(dErrors.CodeAlreadyHasName, "caller already holds a name")
		}

		registered = models.Record{
			Name:      name,
			Owner:     call.Caller,
			ExpiresAt: now.Add(models.RegistrationDuration),
		}
		if err := st.SaveRecord(ctx, &registered); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save name record")
		}
		if err := st.SetOwnedName(ctx, call.Caller, name); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set reverse entry")
		}

		// The lapsed owner's reverse entry still names this record; it must
		// not outlive their ownership.
		if existing != nil && !existing.Owner.IsZero() {
			prev, err := st.FindOwnedName(ctx, existing.Owner)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load previous owner's name")
			}
			if prev == name {
				if err := st.SetOwnedName(ctx, existing.Owner, ""); err != nil {
					return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear previous owner's name")
				}
				displaced = existing.Owner
			}
		}

		if err := credit(ctx, st, call.Value); err != nil {
			return err
		}
		return appendEvent(ctx, st, models.NewNameRegistered(registered, now))
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to register name")
	}

	s.invalidate(ctx, []string{name}, call.Caller, displaced)
	if s.metrics != nil {
		s.metrics.AddFees(call.Value.Decimal().InexactFloat64())
	}
	s.logAudit(ctx, string(models.EventNameRegistered),
		"name", name,
		"owner", call.Caller.String(),
		"expires_at", models.Unix(registered.ExpiresAt),
	)
	return &registered, nil
}

// Renew extends the caller's unexpired name by one registration period,
// counted from its current expiry.
func (s *Service) Renew(ctx context.Context, call models.Call, name string) (rec *models.Record, err error) {
	ctx, finish := s.observe(ctx, opRenew, name)
	defer func() { finish(err) }()

	if err := requireCaller(call); err != nil {
		return nil, err
	}
	if err := checkFee(call.Value, models.RenewalFee); err != nil {
		return nil, err
	}
	now := callTime(ctx, call)

	var renewed models.Record
	err = s.registry.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		existing, err := findRecord(ctx, st, name)
		if err != nil {
			return err
		}
		if !existing.OwnedBy(call.Caller) {
			return dErrors.New(dErrors.CodeNameNotOwned, "caller does not own this name")
		}
		if existing.IsExpired(now) {
			return dErrors.New(dErrors.CodeNameExpired, "name has expired; register it again")
		}

		renewed = *existing
		renewed.ExpiresAt = existing.ExpiresAt.Add(models.RegistrationDuration)
		if err := st.SaveRecord(ctx, &renewed); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save name record")
		}
		if err := credit(ctx, st, call.Value); err != nil {
			return err
		}
		return appendEvent(ctx, st, models.NewNameRenewed(renewed, now))
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to renew name")
	}

	s.invalidate(ctx, []string{name})
	if s.metrics != nil {
		s.metrics.AddFees(call.Value.Decimal().InexactFloat64())
	}
	s.logAudit(ctx, string(models.EventNameRenewed),
		"name", name,
		"owner", call.Caller.String(),
		"expires_at", models.Unix(renewed.ExpiresAt),
	)
	return &renewed, nil
}

// Transfer hands the caller's unexpired name to recipient. It carries no fee.
func (s *Service) Transfer(ctx context.Context, call models.Call, name string, recipient domain.Identity) (rec *models.Record, err error) {
	ctx, finish := s.observe(ctx, opTransfer, name)
	defer func() { finish(err) }()

	if err := requireCaller(call); err != nil {
		return nil, err
	}
	if err := checkFee(call.Value, domain.ZeroAmount); err != nil {
		return nil, err
	}
	now := callTime(ctx, call)

	var transferred models.Record
	err = s.registry.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		existing, err := findRecord(ctx, st, name)
		if err != nil {
			return err
		}
		if !existing.OwnedBy(call.Caller) {
			return dErrors.New(dErrors.CodeNameNotOwned, "caller does not own this name")
		}
		if existing.IsExpired(now) {
			return dErrors.New(dErrors.CodeNameExpired, "name has expired")
		}
		if recipient.IsZero() {
			return dErrors.New(dErrors.CodeInvalidRecipient, "recipient must not be the zero identity")
		}
		held, err := st.FindOwnedName(ctx, recipient)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load recipient's name")
		}
		if held != "" {
			return dErrors.New(dErrors.CodeAlreadyHasName, "recipient already holds a name")
		}

		transferred = *existing
		transferred.Owner = recipient
		if err := st.SaveRecord(ctx, &transferred); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save name record")
		}
		if err := st.SetOwnedName(ctx, call.Caller, ""); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to clear caller's name")
		}
		if err := st.SetOwnedName(ctx, recipient, name); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to set recipient's name")
		}
		return appendEvent(ctx, st, models.NewNameTransferred(name, call.Caller, recipient, now))
	})
	if err != nil {
		return nil, wrapStoreErr(err, "failed to transfer name")
	}

	s.invalidate(ctx, []string{name}, call.Caller, recipient)
	s.logAudit(ctx, string(models.EventNameTransferred),
		"name", name,
		"from", call.Caller.String(),
		"to", recipient.String(),
	)
	return &transferred, nil
}

// Withdraw pays the whole accumulated balance to the administrator and
// returns the amount paid.
//
// The balance moves into a pending withdrawal in one transaction and the
// payout runs after that commit, under the pending withdrawal's ID. A failed
// payout puts the amount back. A payout that succeeded but could not be
// recorded stays pending; once its lease runs out a later withdraw resends it
// with the same ID before reserving anything new.
func (s *Service) Withdraw(ctx context.Context, call models.Call) (amount domain.Amount, err error) {
	ctx, finish := s.observe(ctx, opWithdraw, "")
	defer func() {
		finish(err)
		if s.metrics != nil {
			result := "ok"
			if err != nil {
				result = string(dErrors.CodeOf(err))
			}
			s.metrics.IncrementWithdrawal(result)
		}
	}()

	if err := requireCaller(call); err != nil {
		return domain.ZeroAmount, err
	}
	now := callTime(ctx, call)

	var stale []models.PendingWithdrawal
	err = s.registry.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		admin, err := st.Admin(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load administrator")
		}
		if call.Caller != admin {
			return dErrors.New(dErrors.CodeNotOwner, "only the administrator can withdraw")
		}
		if err := checkFee(call.Value, domain.ZeroAmount); err != nil {
			return err
		}
		stale, err = claimStale(ctx, st, now)
		return err
	})
	if err != nil {
		return domain.ZeroAmount, wrapStoreErr(err, "failed to withdraw fees")
	}
	for _, p := range stale {
		if err := s.resend(ctx, p, now); err != nil {
			return domain.ZeroAmount, err
		}
	}

	var reserved *models.PendingWithdrawal
	err = s.registry.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		balance, err := st.Balance(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read balance")
		}
		if balance.IsZero() {
			return nil
		}
		p := models.NewPendingWithdrawal(call.Caller, balance, now)
		if err := st.SavePendingWithdrawal(ctx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reserve balance")
		}
		if err := st.SetBalance(ctx, domain.ZeroAmount); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to reset balance")
		}
		reserved = &p
		return nil
	})
	if err != nil {
		return domain.ZeroAmount, wrapStoreErr(err, "failed to withdraw fees")
	}
	if reserved == nil {
		return domain.ZeroAmount, nil
	}

	if err := s.payout.Send(ctx, reserved.Withdrawal); err != nil {
		s.logger.ErrorContext(ctx, "fee withdrawal payout failed",
			"error", err,
			"caller", call.Caller.String(),
			"withdrawal_id", reserved.ID.String(),
		)
		s.cancelWithdrawal(ctx, *reserved)
		return domain.ZeroAmount, dErrors.Wrap(err, dErrors.CodeTransferFailed, "payout to administrator failed")
	}
	if err := s.settleWithdrawal(ctx, reserved.Withdrawal, now); err != nil {
		return domain.ZeroAmount, err
	}

	s.logAudit(ctx, string(models.EventFeesWithdrawn),
		"to", call.Caller.String(),
		"amount_wei", reserved.Amount.String(),
		"withdrawal_id", reserved.ID.String(),
	)
	return reserved.Amount, nil
}

// claimStale renews the lease on every pending withdrawal whose lease has run
// out and returns them for resending.
func claimStale(ctx context.Context, st store.Store, now time.Time) ([]models.PendingWithdrawal, error) {
	pending, err := st.PendingWithdrawals(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load pending withdrawals")
	}
	var claimed []models.PendingWithdrawal
	for _, p := range pending {
		if !p.Claimable(now) {
			continue
		}
		p.LeaseUntil = now.Add(models.WithdrawalLease)
		if err := st.SavePendingWithdrawal(ctx, p); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to claim pending withdrawal")
		}
		claimed = append(claimed, p)
	}
	return claimed, nil
}

// resend repeats the payout of a claimed pending withdrawal and records it.
// A failure leaves it pending for the next withdraw.
func (s *Service) resend(ctx context.Context, p models.PendingWithdrawal, now time.Time) error {
	if err := s.payout.Send(ctx, p.Withdrawal); err != nil {
		s.logger.ErrorContext(ctx, "pending withdrawal payout failed",
			"error", err,
			"withdrawal_id", p.ID.String(),
		)
		return dErrors.Wrap(err, dErrors.CodeTransferFailed, "payout of a pending withdrawal failed")
	}
	if err := s.settleWithdrawal(ctx, p.Withdrawal, now); err != nil {
		return err
	}
	s.logAudit(ctx, string(models.EventFeesWithdrawn),
		"to", p.To.String(),
		"amount_wei", p.Amount.String(),
		"withdrawal_id", p.ID.String(),
		"resent", true,
	)
	return nil
}

// settleWithdrawal records a paid withdrawal. Only the transaction that
// removes the pending entry appends FeesWithdrawn, so each withdrawal is
// recorded once.
func (s *Service) settleWithdrawal(ctx context.Context, w models.Withdrawal, now time.Time) error {
	err := s.registry.RunInTx(context.WithoutCancel(ctx), func(ctx context.Context, st store.Store) error {
		removed, err := st.DeletePendingWithdrawal(ctx, w.ID)
		if err != nil {
			return err
		}
		if !removed {
			return nil
		}
		return appendEvent(ctx, st, models.NewFeesWithdrawn(w, now))
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "paid withdrawal left pending",
			"error", err,
			"withdrawal_id", w.ID.String(),
		)
		return dErrors.Wrap(err, dErrors.CodeInternal, "withdrawal paid but not yet recorded")
	}
	return nil
}

// cancelWithdrawal returns an unpaid withdrawal to the balance. If that fails
// the entry stays pending and a later withdraw resends it.
func (s *Service) cancelWithdrawal(ctx context.Context, p models.PendingWithdrawal) {
	err := s.registry.RunInTx(context.WithoutCancel(ctx), func(ctx context.Context, st store.Store) error {
		removed, err := st.DeletePendingWithdrawal(ctx, p.ID)
		if err != nil {
			return err
		}
		if !removed {
			return nil
		}
		return credit(ctx, st, p.Amount)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "failed withdrawal left pending",
			"error", err,
			"withdrawal_id", p.ID.String(),
		)
	}
}

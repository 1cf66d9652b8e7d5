//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"namereg/internal/registry/models"
	"namereg/internal/registry/store"
	"namereg/pkg/domain"
	"namereg/pkg/testutil/containers"
)

var (
	pgAdmin = domain.MustParseIdentity("0x00000000000000000000000000000000000000ad")
	pgAlice = domain.MustParseIdentity("0x00000000000000000000000000000000000000a1")
	pgBob   = domain.MustParseIdentity("0x00000000000000000000000000000000000000b0")
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgresStore(s.postgres.Pool)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx, "pending_withdrawals", "reverse_index", "name_records", "registry_events", "registry_state")
	s.Require().NoError(err)
	admin, err := s.store.Initialize(ctx, pgAdmin)
	s.Require().NoError(err)
	s.Require().Equal(pgAdmin, admin)
}

func (s *PostgresStoreSuite) TestInitializeKeepsStoredAdmin() {
	admin, err := s.store.Initialize(context.Background(), pgAlice)
	s.Require().NoError(err)
	s.Equal(pgAdmin, admin)
}

func (s *PostgresStoreSuite) TestRecordRoundTrip() {
	ctx := context.Background()
	rec := &models.Record{Name: "Alice123", Owner: pgAlice, ExpiresAt: time.Unix(31536000, 0).UTC()}
	s.Require().NoError(s.store.SaveRecord(ctx, rec))

	got, err := s.store.FindRecord(ctx, "Alice123")
	s.Require().NoError(err)
	s.Equal(*rec, *got)

	_, err = s.store.FindRecord(ctx, "alice123")
	s.ErrorIs(err, store.ErrNotFound)

	rec.Owner = pgBob
	s.Require().NoError(s.store.SaveRecord(ctx, rec))
	got, err = s.store.FindRecord(ctx, "Alice123")
	s.Require().NoError(err)
	s.Equal(pgBob, got.Owner)
}

func (s *PostgresStoreSuite) TestSchemaRejectsInvalidNames() {
	err := s.store.SaveRecord(context.Background(), &models.Record{Name: "no-dashes", Owner: pgAlice, ExpiresAt: time.Unix(1, 0)})
	s.Error(err)
}

func (s *PostgresStoreSuite) TestOwnedName() {
	ctx := context.Background()
	s.Require().NoError(s.store.SaveRecord(ctx, &models.Record{Name: "alice", Owner: pgAlice, ExpiresAt: time.Unix(1, 0)}))
	s.Require().NoError(s.store.SetOwnedName(ctx, pgAlice, "alice"))

	name, err := s.store.FindOwnedName(ctx, pgAlice)
	s.Require().NoError(err)
	s.Equal("alice", name)

	s.Require().NoError(s.store.SetOwnedName(ctx, pgAlice, ""))
	name, err = s.store.FindOwnedName(ctx, pgAlice)
	s.Require().NoError(err)
	s.Empty(name)
}

func (s *PostgresStoreSuite) TestBalanceKeepsFullPrecision() {
	ctx := context.Background()
	big, err := domain.ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	s.Require().NoError(err)
	s.Require().NoError(s.store.SetBalance(ctx, big))

	got, err := s.store.Balance(ctx)
	s.Require().NoError(err)
	s.Equal(big.String(), got.String())
}

func (s *PostgresStoreSuite) TestRunInTxRollsBackOnError() {
	ctx := context.Background()
	boom := errors.New("boom")
	err := s.store.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
		s.Require().NoError(st.SaveRecord(ctx, &models.Record{Name: "alice", Owner: pgAlice, ExpiresAt: time.Unix(1, 0)}))
		s.Require().NoError(st.SetOwnedName(ctx, pgAlice, "alice"))
		s.Require().NoError(st.SetBalance(ctx, domain.Wei(42)))
		return boom
	})
	s.ErrorIs(err, boom)

	_, err = s.store.FindRecord(ctx, "alice")
	s.ErrorIs(err, store.ErrNotFound)
	bal, err := s.store.Balance(ctx)
	s.Require().NoError(err)
	s.True(bal.IsZero())
}

func (s *PostgresStoreSuite) TestRunInTxSerializesRegistryUpdates() {
	ctx := context.Background()
	const workers = 20
	var (
		wg       sync.WaitGroup
		failures atomic.Int32
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.store.RunInTx(ctx, func(ctx context.Context, st store.Store) error {
				bal, err := st.Balance(ctx)
				if err != nil {
					return err
				}
				return st.SetBalance(ctx, bal.Add(domain.Wei(1)))
			})
			if err != nil {
				failures.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Zero(failures.Load())
	bal, err := s.store.Balance(ctx)
	s.Require().NoError(err)
	s.Equal("20", bal.String())
}

func (s *PostgresStoreSuite) TestEvents() {
	ctx := context.Background()
	rec := models.Record{Name: "alice", Owner: pgAlice, ExpiresAt: time.Unix(31536000, 0).UTC()}
	registered := models.NewNameRegistered(rec, time.Unix(5, 0).UTC())
	s.Require().NoError(s.store.AppendEvent(ctx, &registered))
	s.Equal(int64(1), registered.Seq)

	w := models.Withdrawal{ID: registered.ID, To: pgAdmin, Amount: models.RegistrationFee}
	w.ID[0] ^= 0xff
	withdrawn := models.NewFeesWithdrawn(w, time.Unix(6, 0).UTC())
	s.Require().NoError(s.store.AppendEvent(ctx, &withdrawn))

	events, err := s.store.ListEvents(ctx, models.EventFilter{NameHash: models.HashName("alice")})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	got := events[0]
	s.Equal(registered.ID, got.ID)
	s.Equal(models.EventNameRegistered, got.Kind)
	s.Equal(registered.NameHash, got.NameHash)
	s.Equal("alice", got.Name)
	s.Equal(pgAlice, got.Owner)
	s.Equal(rec.ExpiresAt, got.ExpiresAt)
	s.Equal(registered.OccurredAt, got.OccurredAt)
	s.True(got.Amount.IsZero())

	all, err := s.store.ListEvents(ctx, models.EventFilter{})
	s.Require().NoError(err)
	s.Require().Len(all, 2)
	s.Equal(models.RegistrationFee.String(), all[1].Amount.String())

	pending, err := s.store.PendingEvents(ctx, 10)
	s.Require().NoError(err)
	s.Len(pending, 2)

	s.Require().NoError(s.store.MarkPublished(ctx, []int64{registered.Seq}))
	pending, err = s.store.PendingEvents(ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(models.EventFeesWithdrawn, pending[0].Kind)
}

func (s *PostgresStoreSuite) TestPendingWithdrawals() {
	ctx := context.Background()
	big, err := domain.ParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	s.Require().NoError(err)
	newer := models.NewPendingWithdrawal(pgAdmin, domain.Wei(7), time.Unix(20, 0).UTC())
	older := models.NewPendingWithdrawal(pgAdmin, big, time.Unix(10, 0).UTC())
	s.Require().NoError(s.store.SavePendingWithdrawal(ctx, newer))
	s.Require().NoError(s.store.SavePendingWithdrawal(ctx, older))

	renewed := newer
	renewed.LeaseUntil = time.Unix(900, 0).UTC()
	s.Require().NoError(s.store.SavePendingWithdrawal(ctx, renewed))

	pending, err := s.store.PendingWithdrawals(ctx)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(older.ID, pending[0].ID)
	s.Equal(big.String(), pending[0].Amount.String())
	s.Equal(pgAdmin, pending[0].To)
	s.Equal(renewed.LeaseUntil, pending[1].LeaseUntil)

	removed, err := s.store.DeletePendingWithdrawal(ctx, older.ID)
	s.Require().NoError(err)
	s.True(removed)
	removed, err = s.store.DeletePendingWithdrawal(ctx, older.ID)
	s.Require().NoError(err)
	s.False(removed)
}

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/sentinel"
	txcontext "namereg/pkg/platform/tx"
)

// errNotInitialized is returned when the registry_state row is missing.
var errNotInitialized = fmt.Errorf("registry state not initialized: %w", sentinel.ErrInvalidState)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists the registry in PostgreSQL.
//
// Every RunInTx locks the singleton registry_state row first, so mutating
// transactions are applied one at a time and event sequence numbers follow
// commit order.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// PostgresOption configures a PostgresStore.
type PostgresOption func(*PostgresStore)

// WithPostgresTxTimeout overrides the default transaction timeout.
func WithPostgresTxTimeout(d time.Duration) PostgresOption {
	return func(s *PostgresStore) {
		s.timeout = d
	}
}

// NewPostgresStore constructs a PostgreSQL-backed registry store.
func NewPostgresStore(pool *pgxpool.Pool, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{pool: pool}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.pool
}

// Initialize creates the registry_state row with admin on first start and
// returns the administrator actually stored. An existing row is never
// overwritten.
func (s *PostgresStore) Initialize(ctx context.Context, admin domain.Identity) (domain.Identity, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO registry_state (id, admin, balance)
		VALUES (1, $1, 0)
		ON CONFLICT (id) DO NOTHING
	`, admin[:])
	if err != nil {
		return domain.ZeroIdentity, fmt.Errorf("initialize registry state: %w", err)
	}
	return s.Admin(ctx)
}

// RunInTx runs fn inside one database transaction holding the registry lock.
// The transaction commits only if fn returns nil.
func (s *PostgresStore) RunInTx(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin registry transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var locked int
	err = tx.QueryRow(ctx, `SELECT id FROM registry_state WHERE id = 1 FOR UPDATE`).Scan(&locked)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return errNotInitialized
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "transaction aborted: waiting for registry lock")
		}
		return fmt.Errorf("lock registry state: %w", err)
	}

	if err := fn(txcontext.WithTx(ctx, tx), s); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return dErrors.Wrap(ctxErr, dErrors.CodeTimeout, "transaction aborted: deadline exceeded before commit")
		}
		return fmt.Errorf("commit registry transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindRecord(ctx context.Context, name string) (*models.Record, error) {
	var (
		owner     []byte
		expiresAt int64
	)
	err := s.q(ctx).QueryRow(ctx, `
		SELECT owner, expires_at FROM name_records WHERE name = $1
	`, name).Scan(&owner, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find name record: %w", err)
	}
	id, err := identityFromBytes(owner)
	if err != nil {
		return nil, fmt.Errorf("find name record: %w", err)
	}
	return &models.Record{
		Name:      name,
		Owner:     id,
		ExpiresAt: fromUnix(expiresAt),
	}, nil
}

func (s *PostgresStore) SaveRecord(ctx context.Context, rec *models.Record) error {
	if rec == nil {
		return fmt.Errorf("name record is required")
	}
	hash := models.HashName(rec.Name)
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO name_records (name, name_hash, owner, expires_at, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (name) DO UPDATE SET
			owner = EXCLUDED.owner,
			expires_at = EXCLUDED.expires_at,
			updated_at = EXCLUDED.updated_at
	`, rec.Name, hash[:], rec.Owner[:], models.Unix(rec.ExpiresAt))
	if err != nil {
		return fmt.Errorf("save name record: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindOwnedName(ctx context.Context, identity domain.Identity) (string, error) {
	var name string
	err := s.q(ctx).QueryRow(ctx, `
		SELECT name FROM reverse_index WHERE identity = $1
	`, identity[:]).Scan(&name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("find owned name: %w", err)
	}
	return name, nil
}

// SetOwnedName points identity at name. An empty name clears the entry.
func (s *PostgresStore) SetOwnedName(ctx context.Context, identity domain.Identity, name string) error {
	if name == "" {
		_, err := s.q(ctx).Exec(ctx, `DELETE FROM reverse_index WHERE identity = $1`, identity[:])
		if err != nil {
			return fmt.Errorf("clear owned name: %w", err)
		}
		return nil
	}
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO reverse_index (identity, name)
		VALUES ($1, $2)
		ON CONFLICT (identity) DO UPDATE SET name = EXCLUDED.name
	`, identity[:], name)
	if err != nil {
		return fmt.Errorf("set owned name: %w", err)
	}
	return nil
}

func (s *PostgresStore) Balance(ctx context.Context) (domain.Amount, error) {
	var raw string
	err := s.q(ctx).QueryRow(ctx, `SELECT balance::text FROM registry_state WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ZeroAmount, errNotInitialized
		}
		return domain.ZeroAmount, fmt.Errorf("read balance: %w", err)
	}
	amount, err := domain.ParseAmount(raw)
	if err != nil {
		return domain.ZeroAmount, fmt.Errorf("read balance: %w", err)
	}
	return amount, nil
}

func (s *PostgresStore) SetBalance(ctx context.Context, amount domain.Amount) error {
	tag, err := s.q(ctx).Exec(ctx, `
		UPDATE registry_state SET balance = $1::text::numeric WHERE id = 1
	`, amount.String())
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return errNotInitialized
	}
	return nil
}

func (s *PostgresStore) Admin(ctx context.Context) (domain.Identity, error) {
	var raw []byte
	err := s.q(ctx).QueryRow(ctx, `SELECT admin FROM registry_state WHERE id = 1`).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ZeroIdentity, errNotInitialized
		}
		return domain.ZeroIdentity, fmt.Errorf("read admin: %w", err)
	}
	return identityFromBytes(raw)
}

// AppendEvent writes event to the log and sets event.Seq.
func (s *PostgresStore) AppendEvent(ctx context.Context, event *models.Event) error {
	if event == nil {
		return fmt.Errorf("event is required")
	}
	err := s.q(ctx).QueryRow(ctx, `
		INSERT INTO registry_events
			(id, kind, name_hash, name, owner, previous_owner, expires_at, amount, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9)
		RETURNING seq
	`,
		event.ID,
		string(event.Kind),
		event.NameHash[:],
		event.Name,
		event.Owner[:],
		event.PreviousOwner[:],
		models.Unix(event.ExpiresAt),
		event.Amount.String(),
		models.Unix(event.OccurredAt),
	).Scan(&event.Seq)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *PostgresStore) SavePendingWithdrawal(ctx context.Context, w models.PendingWithdrawal) error {
	_, err := s.q(ctx).Exec(ctx, `
		INSERT INTO pending_withdrawals (id, recipient, amount, created_at, lease_until)
		VALUES ($1, $2, $3::text::numeric, $4, $5)
		ON CONFLICT (id) DO UPDATE SET lease_until = EXCLUDED.lease_until
	`, w.ID, w.To[:], w.Amount.String(), models.Unix(w.CreatedAt), models.Unix(w.LeaseUntil))
	if err != nil {
		return fmt.Errorf("save pending withdrawal: %w", err)
	}
	return nil
}

// PendingWithdrawals returns unsettled withdrawals, oldest first.
func (s *PostgresStore) PendingWithdrawals(ctx context.Context) ([]models.PendingWithdrawal, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT id, recipient, amount::text, created_at, lease_until
		FROM pending_withdrawals
		ORDER BY created_at, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list pending withdrawals: %w", err)
	}
	defer rows.Close()

	var out []models.PendingWithdrawal
	for rows.Next() {
		var (
			w                     models.PendingWithdrawal
			recipient             []byte
			amount                string
			createdAt, leaseUntil int64
		)
		if err := rows.Scan(&w.ID, &recipient, &amount, &createdAt, &leaseUntil); err != nil {
			return nil, fmt.Errorf("scan pending withdrawal: %w", err)
		}
		if w.To, err = identityFromBytes(recipient); err != nil {
			return nil, fmt.Errorf("scan pending withdrawal %s: %w", w.ID, err)
		}
		if w.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("scan pending withdrawal %s: %w", w.ID, err)
		}
		w.CreatedAt = fromUnix(createdAt)
		w.LeaseUntil = fromUnix(leaseUntil)
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending withdrawals: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeletePendingWithdrawal(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := s.q(ctx).Exec(ctx, `DELETE FROM pending_withdrawals WHERE id = $1`, id)
	if err != nil {
		return false, fmt.Errorf("delete pending withdrawal: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

const eventColumns = `seq, id, kind, name_hash, name, owner, previous_owner, expires_at, amount::text, occurred_at`

// ListEvents returns committed events matching filter in sequence order.
func (s *PostgresStore) ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error) {
	var hash []byte
	if filter.HasName() {
		hash = filter.NameHash[:]
	}
	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+eventColumns+`
		FROM registry_events
		WHERE seq > $1 AND ($2::bytea IS NULL OR name_hash = $2)
		ORDER BY seq
		LIMIT $3
	`, filter.AfterSeq, hash, limitOrDefault(filter.Limit))
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	return collectEvents(rows)
}

// PendingEvents returns up to limit unpublished events, oldest first.
func (s *PostgresStore) PendingEvents(ctx context.Context, limit int) ([]models.Event, error) {
	rows, err := s.q(ctx).Query(ctx, `
		SELECT `+eventColumns+`
		FROM registry_events
		WHERE published_at IS NULL
		ORDER BY seq
		LIMIT $1
	`, limitOrDefault(limit))
	if err != nil {
		return nil, fmt.Errorf("list pending events: %w", err)
	}
	return collectEvents(rows)
}

// MarkPublished stamps the given events as relayed.
func (s *PostgresStore) MarkPublished(ctx context.Context, seqs []int64) error {
	if len(seqs) == 0 {
		return nil
	}
	_, err := s.q(ctx).Exec(ctx, `
		UPDATE registry_events SET published_at = now()
		WHERE seq = ANY($1) AND published_at IS NULL
	`, seqs)
	if err != nil {
		return fmt.Errorf("mark events published: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func collectEvents(rows pgx.Rows) ([]models.Event, error) {
	defer rows.Close()
	var events []models.Event
	for rows.Next() {
		var (
			e                     models.Event
			kind, amount          string
			hash, owner, previous []byte
			expiresAt, occurredAt int64
		)
		if err := rows.Scan(&e.Seq, &e.ID, &kind, &hash, &e.Name, &owner, &previous, &expiresAt, &amount, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Kind = models.EventKind(kind)
		copy(e.NameHash[:], hash)
		var err error
		if e.Owner, err = identityFromBytes(owner); err != nil {
			return nil, fmt.Errorf("scan event %d: %w", e.Seq, err)
		}
		if e.PreviousOwner, err = identityFromBytes(previous); err != nil {
			return nil, fmt.Errorf("scan event %d: %w", e.Seq, err)
		}
		if e.Amount, err = domain.ParseAmount(amount); err != nil {
			return nil, fmt.Errorf("scan event %d: %w", e.Seq, err)
		}
		e.ExpiresAt = fromUnix(expiresAt)
		e.OccurredAt = fromUnix(occurredAt)
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

func identityFromBytes(b []byte) (domain.Identity, error) {
	var id domain.Identity
	if len(b) != len(id) {
		return domain.ZeroIdentity, fmt.Errorf("identity must be %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

func fromUnix(sec int64) time.Time {
	if sec == 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

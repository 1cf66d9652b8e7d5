package payout

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	"namereg/pkg/platform/circuit"
	"namereg/pkg/platform/sentinel"
)

var treasuryAdmin = domain.MustParseIdentity("0x00000000000000000000000000000000000000ad")

func newWithdrawal() models.Withdrawal {
	return models.Withdrawal{ID: uuid.New(), To: treasuryAdmin, Amount: models.RegistrationFee}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestHTTPPayout_Send(t *testing.T) {
	t.Run("posts the withdrawal with an idempotency key", func(t *testing.T) {
		w := newWithdrawal()
		var got transferRequest
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, w.ID.String(), r.Header.Get("Idempotency-Key"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			rw.WriteHeader(http.StatusAccepted)
		}))
		defer srv.Close()

		p := NewHTTP(srv.URL, WithLogger(discardLogger()))
		require.NoError(t, p.Send(context.Background(), w))
		assert.Equal(t, w.ID.String(), got.WithdrawalID)
		assert.Equal(t, treasuryAdmin.String(), got.To)
		assert.Equal(t, "10000000000000000", got.AmountWei)
	})

	t.Run("non-2xx is a failed payout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer srv.Close()

		p := NewHTTP(srv.URL, WithLogger(discardLogger()))
		err := p.Send(context.Background(), newWithdrawal())
		assert.ErrorContains(t, err, "status 503")
		assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("4xx is a failed payout but not unavailable", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
			rw.WriteHeader(http.StatusConflict)
		}))
		defer srv.Close()

		p := NewHTTP(srv.URL, WithLogger(discardLogger()))
		err := p.Send(context.Background(), newWithdrawal())
		assert.ErrorContains(t, err, "status 409")
		assert.NotErrorIs(t, err, sentinel.ErrUnavailable)
	})

	t.Run("unreachable treasury fails", func(t *testing.T) {
		srv := httptest.NewServer(http.NotFoundHandler())
		url := srv.URL
		srv.Close()

		p := NewHTTP(url, WithLogger(discardLogger()))
		assert.Error(t, p.Send(context.Background(), newWithdrawal()))
	})
}

func TestHTTPPayout_CircuitBreaker(t *testing.T) {
	var calls atomic.Int32
	var healthy atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		if healthy.Load() {
			rw.WriteHeader(http.StatusOK)
			return
		}
		rw.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	now := time.Unix(1000, 0)
	breaker := circuit.New("payout",
		circuit.WithFailureThreshold(2),
		circuit.WithSuccessThreshold(1),
		circuit.WithCooldown(time.Minute),
		circuit.WithClock(func() time.Time { return now }),
	)
	p := NewHTTP(srv.URL, WithBreaker(breaker), WithLogger(discardLogger()))
	ctx := context.Background()

	assert.Error(t, p.Send(ctx, newWithdrawal()))
	assert.Error(t, p.Send(ctx, newWithdrawal()))
	assert.True(t, breaker.IsOpen())

	err := p.Send(ctx, newWithdrawal())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())

	healthy.Store(true)
	now = now.Add(2 * time.Minute)
	require.NoError(t, p.Send(ctx, newWithdrawal()))
	assert.False(t, breaker.IsOpen())
	assert.Equal(t, int32(3), calls.Load())
}

func TestLedger(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	require.NoError(t, l.Send(ctx, newWithdrawal()))
	require.NoError(t, l.Send(ctx, newWithdrawal()))
	assert.Equal(t, "20000000000000000", l.BalanceOf(treasuryAdmin).String())
	assert.Len(t, l.Sent(), 2)

	boom := errors.New("insufficient gas")
	l.FailWith(boom)
	assert.ErrorIs(t, l.Send(ctx, newWithdrawal()), boom)
	assert.Len(t, l.Sent(), 2)
}

func TestLedgerCreditsEachWithdrawalOnce(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	w := newWithdrawal()

	require.NoError(t, l.Send(ctx, w))
	require.NoError(t, l.Send(ctx, w))
	assert.Equal(t, "10000000000000000", l.BalanceOf(treasuryAdmin).String())
	assert.Len(t, l.Sent(), 1)
}

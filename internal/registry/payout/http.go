// Package payout sends withdrawn registry fees to the administrator.
package payout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"namereg/internal/registry/models"
	"namereg/pkg/platform/circuit"
	"namereg/pkg/platform/sentinel"
)

// ErrCircuitOpen is returned without calling the treasury while the breaker is open.
var ErrCircuitOpen = fmt.Errorf("payout circuit open: %w", sentinel.ErrUnavailable)

const defaultTimeout = 3 * time.Second

// HTTPPayout posts withdrawals to an external treasury endpoint. Calls go
// through a circuit breaker so a failing treasury rejects withdrawals fast
// instead of holding the registry lock for the full timeout.
type HTTPPayout struct {
	endpoint string
	client   *http.Client
	breaker  *circuit.Breaker
	logger   *slog.Logger
}

type Option func(*HTTPPayout)

func WithHTTPClient(client *http.Client) Option {
	return func(p *HTTPPayout) {
		if client != nil {
			p.client = client
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(p *HTTPPayout) {
		if b != nil {
			p.breaker = b
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *HTTPPayout) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewHTTP constructs a payout client for endpoint.
func NewHTTP(endpoint string, opts ...Option) *HTTPPayout {
	p := &HTTPPayout{
		endpoint: endpoint,
		client:   &http.Client{Timeout: defaultTimeout},
		breaker:  circuit.New("payout"),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type transferRequest struct {
	WithdrawalID string `json:"withdrawal_id"`
	To           string `json:"to"`
	AmountWei    string `json:"amount_wei"`
}

// Send asks the treasury to credit w.To with w.Amount. Any non-2xx answer is
// a failed payout. w.ID travels as the Idempotency-Key header.
func (p *HTTPPayout) Send(ctx context.Context, w models.Withdrawal) error {
	if !p.breaker.Allow() {
		return ErrCircuitOpen
	}
	err := p.send(ctx, w)
	if err != nil {
		if _, change := p.breaker.RecordFailure(); change.Opened {
			p.logger.WarnContext(ctx, "payout circuit opened", "breaker", p.breaker.Name(), "error", err)
		}
		return err
	}
	if _, change := p.breaker.RecordSuccess(); change.Closed {
		p.logger.InfoContext(ctx, "payout circuit closed", "breaker", p.breaker.Name())
	}
	return nil
}

func (p *HTTPPayout) send(ctx context.Context, w models.Withdrawal) error {
	body, err := json.Marshal(transferRequest{
		WithdrawalID: w.ID.String(),
		To:           w.To.String(),
		AmountWei:    w.Amount.String(),
	})
	if err != nil {
		return fmt.Errorf("encode payout request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build payout request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", w.ID.String())

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("payout request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("payout rejected with status %d: %w", resp.StatusCode, sentinel.ErrUnavailable)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("payout rejected with status %d", resp.StatusCode)
	}
	return nil
}

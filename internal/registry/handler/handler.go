package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"namereg/internal/events"
	"namereg/internal/registry/models"
	"namereg/pkg/domain"
	dErrors "namereg/pkg/domain-errors"
	"namereg/pkg/platform/httputil"
	"namereg/pkg/platform/middleware/auth"
	"namereg/pkg/requestcontext"
)

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Register(ctx context.Context, call models.Call, name string) (*models.Record, error)
	Renew(ctx context.Context, call models.Call, name string) (*models.Record, error)
	Transfer(ctx context.Context, call models.Call, name string, recipient domain.Identity) (*models.Record, error)
	Withdraw(ctx context.Context, call models.Call) (domain.Amount, error)
	Resolve(ctx context.Context, name string, now time.Time) (domain.Identity, error)
	ReverseLookup(ctx context.Context, identity domain.Identity) (string, error)
	IsAvailable(ctx context.Context, name string, now time.Time) (bool, error)
	GetExpiry(ctx context.Context, name string) (time.Time, error)
	Status(ctx context.Context) (*models.Status, error)
	ListEvents(ctx context.Context, filter models.EventFilter) ([]models.Event, error)
}

// Handler wires registry endpoints to the registry service.
type Handler struct {
	service   Service
	validator auth.JWTValidator
	logger    *slog.Logger
}

// New constructs a registry handler. Mutating routes authenticate callers
// with validator.
func New(service Service, validator auth.JWTValidator, logger *slog.Logger) *Handler {
	return &Handler{
		service:   service,
		validator: validator,
		logger:    logger,
	}
}

// Register mounts registry endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/names/{name}", h.HandleGetName)
	r.Get("/names/{name}/available", h.HandleIsAvailable)
	r.Get("/names/{name}/expiry", h.HandleGetExpiry)
	r.Get("/identities/{identity}/name", h.HandleReverseLookup)
	r.Get("/registry", h.HandleStatus)
	r.Get("/events", h.HandleListEvents)

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(h.validator, h.logger))
		r.Post("/names/{name}/register", h.HandleRegister)
		r.Post("/names/{name}/renew", h.HandleRenew)
		r.Post("/names/{name}/transfer", h.HandleTransfer)
		r.Post("/admin/withdraw", h.HandleWithdraw)
	})
}

// HandleRegister handles POST /names/{name}/register.
func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	name := chi.URLParam(r, "name")

	req, ok := httputil.DecodeAndPrepare[ValueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.Register(ctx, h.call(ctx, req.ParsedValue()), name)
	if err != nil {
		h.logFailure(ctx, "register", name, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, FromRecord(rec))
}

// HandleRenew handles POST /names/{name}/renew.
func (h *Handler) HandleRenew(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	name := chi.URLParam(r, "name")

	req, ok := httputil.DecodeAndPrepare[ValueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.Renew(ctx, h.call(ctx, req.ParsedValue()), name)
	if err != nil {
		h.logFailure(ctx, "renew", name, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleTransfer handles POST /names/{name}/transfer.
func (h *Handler) HandleTransfer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	name := chi.URLParam(r, "name")

	req, ok := httputil.DecodeAndPrepare[TransferRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	rec, err := h.service.Transfer(ctx, h.call(ctx, req.ParsedValue()), name, req.ParsedRecipient())
	if err != nil {
		h.logFailure(ctx, "transfer", name, err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromRecord(rec))
}

// HandleWithdraw handles POST /admin/withdraw.
func (h *Handler) HandleWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[ValueRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	amount, err := h.service.Withdraw(ctx, h.call(ctx, req.ParsedValue()))
	if err != nil {
		h.logFailure(ctx, "withdraw", "", err)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &WithdrawResponse{AmountWei: amount.String()})
}

// HandleGetName handles GET /names/{name}.
func (h *Handler) HandleGetName(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")
	now := requestcontext.Now(ctx)

	owner, err := h.service.Resolve(ctx, name, now)
	if err != nil {
		h.writeQueryError(ctx, w, "resolve", err)
		return
	}
	available, err := h.service.IsAvailable(ctx, name, now)
	if err != nil {
		h.writeQueryError(ctx, w, "is_available", err)
		return
	}
	expiresAt, err := h.service.GetExpiry(ctx, name)
	if err != nil {
		h.writeQueryError(ctx, w, "get_expiry", err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, &NameResponse{
		Name:      name,
		NameHash:  models.HashName(name).String(),
		Valid:     models.ValidName(name),
		Owner:     owner.String(),
		Available: available,
		ExpiresAt: models.Unix(expiresAt),
	})
}

// HandleIsAvailable handles GET /names/{name}/available.
func (h *Handler) HandleIsAvailable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	available, err := h.service.IsAvailable(ctx, name, requestcontext.Now(ctx))
	if err != nil {
		h.writeQueryError(ctx, w, "is_available", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &AvailabilityResponse{
		Name:      name,
		Valid:     models.ValidName(name),
		Available: available,
	})
}

// HandleGetExpiry handles GET /names/{name}/expiry.
func (h *Handler) HandleGetExpiry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	name := chi.URLParam(r, "name")

	expiresAt, err := h.service.GetExpiry(ctx, name)
	if err != nil {
		h.writeQueryError(ctx, w, "get_expiry", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ExpiryResponse{Name: name, ExpiresAt: models.Unix(expiresAt)})
}

// HandleReverseLookup handles GET /identities/{identity}/name.
func (h *Handler) HandleReverseLookup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, err := domain.ParseIdentity(chi.URLParam(r, "identity"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	name, err := h.service.ReverseLookup(ctx, identity)
	if err != nil {
		h.writeQueryError(ctx, w, "reverse_lookup", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &ReverseResponse{Identity: identity.String(), Name: name})
}

// HandleStatus handles GET /registry.
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status, err := h.service.Status(ctx)
	if err != nil {
		h.writeQueryError(ctx, w, "status", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromStatus(status))
}

// HandleListEvents handles GET /events?name=&after=&limit=.
func (h *Handler) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	filter, err := parseEventFilter(r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	list, err := h.service.ListEvents(ctx, filter)
	if err != nil {
		h.writeQueryError(ctx, w, "list_events", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, &EventsResponse{Events: events.FromEvents(list)})
}

func parseEventFilter(r *http.Request) (models.EventFilter, error) {
	var filter models.EventFilter
	q := r.URL.Query()
	if name := q.Get("name"); name != "" {
		if !models.ValidName(name) {
			return filter, dErrors.New(dErrors.CodeInvalidName, "name must be 3-20 characters of [0-9A-Za-z]")
		}
		filter.NameHash = models.HashName(name)
	}
	if after := q.Get("after"); after != "" {
		seq, err := strconv.ParseInt(after, 10, 64)
		if err != nil || seq < 0 {
			return filter, dErrors.New(dErrors.CodeValidation, "after must be a non-negative sequence number")
		}
		filter.AfterSeq = seq
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n <= 0 {
			return filter, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer")
		}
		filter.Limit = n
	}
	return filter, nil
}

// call assembles the ledger context of a mutating request.
func (h *Handler) call(ctx context.Context, value domain.Amount) models.Call {
	return models.Call{
		Caller: requestcontext.Caller(ctx),
		Value:  value,
		Now:    requestcontext.Now(ctx),
	}
}

// logFailure logs rejected mutations at warn and infrastructure failures at error.
func (h *Handler) logFailure(ctx context.Context, op, name string, err error) {
	attrs := []any{
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"caller", requestcontext.Caller(ctx).String(),
		"error", err,
	}
	if name != "" {
		attrs = append(attrs, "name", name)
	}
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, "registry operation failed", attrs...)
		return
	}
	h.logger.WarnContext(ctx, "registry operation rejected", attrs...)
}

func (h *Handler) writeQueryError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	h.logger.ErrorContext(ctx, "registry query failed",
		"request_id", requestcontext.RequestID(ctx),
		"operation", op,
		"error", err,
	)
	httputil.WriteError(w, err)
}

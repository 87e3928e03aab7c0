package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"remit/internal/ledger/models"
	"remit/internal/ledger/service"
	"remit/pkg/domain"
	dErrors "remit/pkg/domain-errors"
	audit "remit/pkg/platform/audit"
	"remit/pkg/platform/httputil"
	"remit/pkg/requestcontext"
)

const (
	defaultEventPage = 100
	maxEventPage     = 1000
	maxBodyBytes     = 1 << 20
)

// Service defines the ledger operations exposed over HTTP.
type Service interface {
	VerifyUser(ctx context.Context, caller, account domain.AccountID) error
	BatchVerifyUsers(ctx context.Context, caller domain.AccountID, accounts []domain.AccountID) error
	GetUserInfo(ctx context.Context, account domain.AccountID) (*models.UserRecord, error)

	CreateTransaction(ctx context.Context, caller, recipient domain.AccountID, amount, supplied domain.Amount) (*models.Transaction, error)
	CompleteTransaction(ctx context.Context, caller domain.AccountID, id domain.TxID) error
	CancelTransaction(ctx context.Context, caller domain.AccountID, id domain.TxID) error
	GetTransaction(ctx context.Context, id domain.TxID) (*models.Transaction, error)
	GetTransactionID(ctx context.Context, index uint64) (domain.TxID, error)
	GetTransactionCount(ctx context.Context) (uint64, error)

	QuoteFee(ctx context.Context, amount domain.Amount) (service.FeeQuote, error)
	SetFeeRate(ctx context.Context, caller domain.AccountID, bps uint64) error

	SetAuthorizedOperator(ctx context.Context, caller, account domain.AccountID, enabled bool) error
	SetFeeCollector(ctx context.Context, caller, collector domain.AccountID) error
	SetPaused(ctx context.Context, caller domain.AccountID, paused bool) error
	TransferOwnership(ctx context.Context, caller, newOwner domain.AccountID) error
	EmergencyWithdraw(ctx context.Context, caller domain.AccountID) (domain.Amount, error)
	ReceiveFunds(ctx context.Context, caller domain.AccountID, amount domain.Amount) error

	Config(ctx context.Context) (*models.Config, error)
	Holdings(ctx context.Context) (models.Holdings, error)
}

// EventLog serves the ordered event history.
type EventLog interface {
	ListAfter(ctx context.Context, after uint64, limit int) ([]audit.Event, error)
}

// Funds is the in-process rail's account view.
type Funds interface {
	Credit(ctx context.Context, account domain.AccountID, amount domain.Amount) error
	BalanceOf(account domain.AccountID) domain.Amount
}

// Handler handles ledger endpoints.
type Handler struct {
	ledger Service
	events EventLog
	funds  Funds
	logger *slog.Logger
}

// New creates a new ledger Handler. events and funds may be nil, which
// disables their routes.
func New(ledger Service, events EventLog, funds Funds, logger *slog.Logger) *Handler {
	return &Handler{
		ledger: ledger,
		events: events,
		funds:  funds,
		logger: logger,
	}
}

// Register mounts the caller-authenticated routes. The router is expected to
// carry the auth middleware; idempotent wraps transaction creation.
func (h *Handler) Register(r chi.Router, idempotent func(http.Handler) http.Handler) {
	if idempotent == nil {
		idempotent = func(next http.Handler) http.Handler { return next }
	}

	r.Route("/users", func(r chi.Router) {
		r.Post("/verify", h.handleBatchVerify)
		r.Get("/{account}", h.handleGetUser)
		r.Post("/{account}/verify", h.handleVerifyUser)
	})

	r.Route("/transactions", func(r chi.Router) {
		r.With(idempotent).Post("/", h.handleCreateTransaction)
		r.Get("/count", h.handleTransactionCount)
		r.Get("/index/{index}", h.handleTransactionIDAt)
		r.Get("/{id}", h.handleGetTransaction)
		r.Post("/{id}/complete", h.handleCompleteTransaction)
		r.Post("/{id}/cancel", h.handleCancelTransaction)
	})

	r.Get("/fees", h.handleCalculateFee)
	r.Get("/config", h.handleGetConfig)
	r.Post("/deposits", h.handleDeposit)

	r.Route("/admin", func(r chi.Router) {
		r.Put("/fee-rate", h.handleSetFeeRate)
		r.Put("/operators/{account}", h.handleSetOperator)
		r.Put("/fee-collector", h.handleSetFeeCollector)
		r.Put("/paused", h.handleSetPaused)
		r.Post("/emergency-withdraw", h.handleEmergencyWithdraw)
		r.Put("/owner", h.handleTransferOwnership)
	})

	if h.events != nil {
		r.Get("/events", h.handleListEvents)
	}
	if h.funds != nil {
		r.Get("/balances/{account}", h.handleBalance)
	}
}

// RegisterTreasury mounts the rail funding route. The router is expected to
// carry the admin token guard.
func (h *Handler) RegisterTreasury(r chi.Router) {
	if h.funds != nil {
		r.Post("/treasury/credits", h.handleCredit)
	}
}

// -----------------------------------------------------------------------------
// Users
// -----------------------------------------------------------------------------

func (h *Handler) handleGetUser(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	user, err := h.ledger.GetUserInfo(r.Context(), account)
	if err != nil {
		h.fail(w, r, "get user", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

func (h *Handler) handleVerifyUser(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	if err := h.ledger.VerifyUser(r.Context(), requestcontext.Caller(r.Context()), account); err != nil {
		h.fail(w, r, "verify user", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleBatchVerify(w http.ResponseWriter, r *http.Request) {
	var req BatchVerifyRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.ledger.BatchVerifyUsers(r.Context(), requestcontext.Caller(r.Context()), req.Accounts); err != nil {
		h.fail(w, r, "batch verify users", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BatchVerifyResponse{Verified: len(req.Accounts)})
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

func (h *Handler) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req CreateTransactionRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	tx, err := h.ledger.CreateTransaction(ctx, requestcontext.Caller(ctx), req.Recipient, req.Amount, req.Value)
	if err != nil {
		h.fail(w, r, "create transaction", err)
		return
	}
	w.Header().Set("Location", "/transactions/"+tx.ID.String())
	httputil.WriteJSON(w, http.StatusCreated, tx)
}

func (h *Handler) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.txIDParam(w, r)
	if !ok {
		return
	}
	tx, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get transaction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

func (h *Handler) handleCompleteTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.txIDParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.ledger.CompleteTransaction(ctx, requestcontext.Caller(ctx), id); err != nil {
		h.fail(w, r, "complete transaction", err)
		return
	}
	h.writeTransaction(w, r, id)
}

func (h *Handler) handleCancelTransaction(w http.ResponseWriter, r *http.Request) {
	id, ok := h.txIDParam(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	if err := h.ledger.CancelTransaction(ctx, requestcontext.Caller(ctx), id); err != nil {
		h.fail(w, r, "cancel transaction", err)
		return
	}
	h.writeTransaction(w, r, id)
}

func (h *Handler) writeTransaction(w http.ResponseWriter, r *http.Request, id domain.TxID) {
	tx, err := h.ledger.GetTransaction(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get transaction", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, tx)
}

func (h *Handler) handleTransactionCount(w http.ResponseWriter, r *http.Request) {
	n, err := h.ledger.GetTransactionCount(r.Context())
	if err != nil {
		h.fail(w, r, "count transactions", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CountResponse{Count: n})
}

func (h *Handler) handleTransactionIDAt(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(chi.URLParam(r, "index"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "index must be a non-negative integer"))
		return
	}
	id, err := h.ledger.GetTransactionID(r.Context(), index)
	if err != nil {
		h.fail(w, r, "get transaction id", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TxIDResponse{Index: index, ID: id})
}

// -----------------------------------------------------------------------------
// Fees, config, deposits
// -----------------------------------------------------------------------------

func (h *Handler) handleCalculateFee(w http.ResponseWriter, r *http.Request) {
	amount, err := domain.ParseAmount(r.URL.Query().Get("amount"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	quote, err := h.ledger.QuoteFee(r.Context(), amount)
	if err != nil {
		h.fail(w, r, "calculate fee", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FeeResponse{Amount: quote.Amount, Fee: quote.Fee, FeeRateBps: quote.FeeRateBps})
}

func (h *Handler) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cfg, err := h.ledger.Config(ctx)
	if err != nil {
		h.fail(w, r, "load config", err)
		return
	}
	holdings, err := h.ledger.Holdings(ctx)
	if err != nil {
		h.fail(w, r, "load holdings", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toConfigResponse(cfg, holdings))
}

func (h *Handler) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req DepositRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := h.ledger.ReceiveFunds(ctx, requestcontext.Caller(ctx), req.Amount); err != nil {
		h.fail(w, r, "receive funds", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Admin
// -----------------------------------------------------------------------------

func (h *Handler) handleSetFeeRate(w http.ResponseWriter, r *http.Request) {
	var req FeeRateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ctx := r.Context()
	if err := h.ledger.SetFeeRate(ctx, requestcontext.Caller(ctx), uint64(*req.FeeRateBps)); err != nil { //nolint:gosec // non-negative after Validate
		h.fail(w, r, "set fee rate", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetOperator(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	var req OperatorRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ctx := r.Context()
	if err := h.ledger.SetAuthorizedOperator(ctx, requestcontext.Caller(ctx), account, *req.Enabled); err != nil {
		h.fail(w, r, "set operator", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetFeeCollector(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := h.ledger.SetFeeCollector(ctx, requestcontext.Caller(ctx), req.Account); err != nil {
		h.fail(w, r, "set fee collector", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSetPaused(w http.ResponseWriter, r *http.Request) {
	var req PausedRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	ctx := r.Context()
	if err := h.ledger.SetPaused(ctx, requestcontext.Caller(ctx), *req.Paused); err != nil {
		h.fail(w, r, "set paused", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	amount, err := h.ledger.EmergencyWithdraw(ctx, requestcontext.Caller(ctx))
	if err != nil {
		h.fail(w, r, "emergency withdraw", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, WithdrawResponse{Amount: amount})
}

func (h *Handler) handleTransferOwnership(w http.ResponseWriter, r *http.Request) {
	var req AccountRequest
	if !h.decode(w, r, &req) {
		return
	}
	ctx := r.Context()
	if err := h.ledger.TransferOwnership(ctx, requestcontext.Caller(ctx), req.Account); err != nil {
		h.fail(w, r, "transfer ownership", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -----------------------------------------------------------------------------
// Events and funds
// -----------------------------------------------------------------------------

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var after uint64
	if v := q.Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "after must be a non-negative integer"))
			return
		}
		after = n
	}
	limit := defaultEventPage
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		limit = min(n, maxEventPage)
	}

	events, err := h.events.ListAfter(r.Context(), after, limit)
	if err != nil {
		h.fail(w, r, "list events", err)
		return
	}
	next := after
	if len(events) > 0 {
		next = events[len(events)-1].Seq
	}
	httputil.WriteJSON(w, http.StatusOK, EventsResponse{Events: events, Next: next})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, ok := h.accountParam(w, r)
	if !ok {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Account: account, Balance: h.funds.BalanceOf(account)})
}

func (h *Handler) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req CreditRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.funds.Credit(r.Context(), req.Account, req.Amount); err != nil {
		h.fail(w, r, "credit account", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, BalanceResponse{Account: req.Account, Balance: h.funds.BalanceOf(req.Account)})
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		h.logger.WarnContext(r.Context(), "invalid request body",
			"request_id", requestcontext.RequestID(r.Context()),
			"error", err.Error(),
		)
		var de *dErrors.Error
		if errors.As(err, &de) {
			httputil.WriteError(w, de)
			return false
		}
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return false
	}
	return true
}

func (h *Handler) accountParam(w http.ResponseWriter, r *http.Request) (domain.AccountID, bool) {
	account, err := domain.ParseAccountID(chi.URLParam(r, "account"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.AccountID{}, false
	}
	return account, true
}

func (h *Handler) txIDParam(w http.ResponseWriter, r *http.Request) (domain.TxID, bool) {
	id, err := domain.ParseTxID(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteError(w, err)
		return domain.TxID{}, false
	}
	return id, true
}

// fail logs server-side failures at error level and client errors at warn,
// then writes the error envelope.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	ctx := r.Context()
	attrs := []any{
		"op", op,
		"request_id", requestcontext.RequestID(ctx),
		"error", err.Error(),
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeInternal, dErrors.CodeInvariantViolation, dErrors.CodeUnavailable:
		h.logger.ErrorContext(ctx, "ledger operation failed", attrs...)
	default:
		h.logger.WarnContext(ctx, "ledger operation rejected", attrs...)
	}
	httputil.WriteError(w, err)
}

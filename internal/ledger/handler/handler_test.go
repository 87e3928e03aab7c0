package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"remit/internal/idempotency"
	jwttoken "remit/internal/jwt_token"
	"remit/internal/ledger/handler"
	"remit/internal/ledger/models"
	"remit/internal/ledger/service"
	ledgermem "remit/internal/ledger/store/memory"
	"remit/internal/ledger/treasury"
	"remit/pkg/domain"
	"remit/pkg/platform/audit/publisher"
	auditmem "remit/pkg/platform/audit/store/memory"
	"remit/pkg/platform/middleware/admin"
	"remit/pkg/platform/middleware/auth"
	"remit/pkg/testutil"
)

const adminToken = "test-admin-token"

var (
	owner     = domain.MustParseAccountID("0x00000000000000000000000000000000000000a1")
	collector = domain.MustParseAccountID("0x00000000000000000000000000000000000000c3")
	alice     = domain.MustParseAccountID("0x1111111111111111111111111111111111111111")
	bob       = domain.MustParseAccountID("0x2222222222222222222222222222222222222222")
)

type HandlerSuite struct {
	suite.Suite
	ctx      context.Context
	router   http.Handler
	ledger   *service.Ledger
	treasury *treasury.Treasury
	events   *auditmem.InMemoryStore
	jwt      *jwttoken.JWTService
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctx = context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.treasury = treasury.New(treasury.WithLogger(logger))
	s.events = auditmem.NewInMemoryStore()
	l, err := service.New(s.ctx, ledgermem.New(), s.treasury, owner, collector,
		service.WithLogger(logger),
		service.WithEventPublisher(publisher.NewPublisher(s.events, publisher.WithLogger(logger))),
	)
	s.Require().NoError(err)
	s.ledger = l
	s.jwt = jwttoken.NewJWTService("k", "iss", "aud")

	h := handler.New(l, s.events, s.treasury, logger)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(adminToken, logger))
		h.RegisterTreasury(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireCaller(s.jwt, logger))
		h.Register(r, idempotency.Middleware(idempotency.NewMemoryStore(), time.Hour, logger))
	})
	s.router = r

	s.Require().NoError(l.VerifyUser(s.ctx, owner, alice))
	s.Require().NoError(s.treasury.Credit(s.ctx, alice, domain.NewAmount(1_000_000)))
}

func (s *HandlerSuite) call(as domain.AccountID, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		req = testutil.NewJSONRequest(s.T(), method, path, body)
	} else {
		req = testutil.NewRequest(s.T(), method, path)
	}
	if !as.IsZero() {
		token, err := s.jwt.GenerateAccessToken(as, time.Minute)
		s.Require().NoError(err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	return testutil.DoRequest(s.router, req)
}

func (s *HandlerSuite) create(amount, value string, headers ...string) *httptest.ResponseRecorder {
	return s.call(alice, http.MethodPost, "/transactions/", map[string]string{
		"recipient": bob.Hex(),
		"amount":    amount,
		"value":     value,
	}, headers...)
}

func (s *HandlerSuite) decodeTx(rr *httptest.ResponseRecorder) *models.Transaction {
	var tx models.Transaction
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &tx), rr.Body.String())
	return &tx
}

func (s *HandlerSuite) TestRequiresBearerToken() {
	rr := s.call(domain.AccountID{}, http.MethodGet, "/config", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
}

func (s *HandlerSuite) TestTransactionLifecycle() {
	rr := s.create("10000", "10100")
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	tx := s.decodeTx(rr)
	s.Equal("50", tx.Fee.String())
	s.Equal(models.StatusPending, tx.Status)
	s.Equal("/transactions/"+tx.ID.String(), rr.Header().Get("Location"))
	s.Equal("989950", s.treasury.BalanceOf(alice).String(), "excess returned")

	rr = s.call(bob, http.MethodGet, "/transactions/"+tx.ID.String(), nil)
	testutil.AssertStatusOK(s.T(), rr)

	rr = s.call(alice, http.MethodPost, "/transactions/"+tx.ID.String()+"/complete", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")
	testutil.AssertJSONContains(s.T(), s.call(alice, http.MethodPost, "/transactions/"+tx.ID.String()+"/complete", nil),
		"error_description", "NotAuthorized")

	rr = s.call(owner, http.MethodPost, "/transactions/"+tx.ID.String()+"/complete", nil)
	s.Require().Equal(http.StatusOK, rr.Code, rr.Body.String())
	s.Equal(models.StatusCompleted, s.decodeTx(rr).Status)
	s.Equal("10000", s.treasury.BalanceOf(bob).String())

	rr = s.call(alice, http.MethodPost, "/transactions/"+tx.ID.String()+"/cancel", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "conflict")

	rr = s.call(bob, http.MethodGet, "/transactions/count", nil)
	testutil.AssertJSONContains(s.T(), rr, "count", float64(1))

	rr = s.call(bob, http.MethodGet, "/transactions/index/0", nil)
	testutil.AssertStatusOK(s.T(), rr)
	var idResp handler.TxIDResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &idResp))
	s.Equal(tx.ID, idResp.ID)

	rr = s.call(bob, http.MethodGet, "/users/"+bob.Hex(), nil)
	var user models.UserRecord
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &user))
	s.False(user.Exists)
	s.Equal("10000", user.TotalReceived.String())
}

func (s *HandlerSuite) TestCreateValidation() {
	rr := s.create("10000", "10049")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	rr = s.call(bob, http.MethodPost, "/transactions/", map[string]string{"recipient": alice.Hex(), "amount": "1", "value": "1"})
	testutil.AssertStatus(s.T(), rr, http.StatusForbidden)

	rr = s.call(alice, http.MethodPost, "/transactions/", map[string]string{"recipient": "nope", "amount": "1", "value": "1"})
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)

	rr = s.call(alice, http.MethodPost, "/transactions/", map[string]any{"recipient": bob.Hex(), "amount": "1", "value": "1", "extra": true})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")

	rr = s.call(alice, http.MethodGet, "/transactions/0x1234", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)

	rr = s.call(alice, http.MethodGet, "/transactions/index/5", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
}

func (s *HandlerSuite) TestCreateIsIdempotent() {
	first := s.create("1000", "1005", idempotency.Header, "abc")
	second := s.create("1000", "1005", idempotency.Header, "abc")

	s.Equal(http.StatusCreated, first.Code)
	s.Equal(http.StatusCreated, second.Code)
	s.Equal("true", second.Header().Get(idempotency.HeaderReplayed))
	s.Equal(s.decodeTx(first).ID, s.decodeTx(second).ID)

	n, err := s.ledger.GetTransactionCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(1), n)
}

func (s *HandlerSuite) TestAdminRoutes() {
	rr := s.call(alice, http.MethodPut, "/admin/fee-rate", map[string]int{"fee_rate_bps": 100})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	rr = s.call(owner, http.MethodPut, "/admin/fee-rate", map[string]int{"fee_rate_bps": 1001})
	testutil.AssertJSONContains(s.T(), rr, "error_description", "FeeRateTooHigh")

	rr = s.call(owner, http.MethodPut, "/admin/fee-rate", map[string]any{})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")

	rr = s.call(owner, http.MethodPut, "/admin/fee-rate", map[string]int{"fee_rate_bps": 100})
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = s.call(bob, http.MethodGet, "/fees?amount=10000", nil)
	testutil.AssertJSONContains(s.T(), rr, "fee", "100")

	rr = s.call(owner, http.MethodPut, "/admin/operators/"+bob.Hex(), map[string]bool{"enabled": true})
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	rr = s.call(bob, http.MethodPost, "/users/"+bob.Hex()+"/verify", nil)
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = s.call(owner, http.MethodPut, "/admin/paused", map[string]bool{"paused": true})
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)
	rr = s.create("1000", "1010")
	testutil.AssertStatusAndError(s.T(), rr, http.StatusServiceUnavailable, "service_unavailable")

	rr = s.call(owner, http.MethodPut, "/admin/fee-collector", map[string]string{"account": domain.ZeroAccount.Hex()})
	testutil.AssertJSONContains(s.T(), rr, "error_description", "InvalidFeeCollector")

	rr = s.call(owner, http.MethodGet, "/config", nil)
	var cfg handler.ConfigResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &cfg))
	s.True(cfg.Paused)
	s.Equal(uint16(100), cfg.FeeRateBps)
	s.Equal([]domain.AccountID{bob}, cfg.Operators)
}

func (s *HandlerSuite) TestDepositAndEmergencyWithdraw() {
	rr := s.call(owner, http.MethodPost, "/admin/emergency-withdraw", nil)
	testutil.AssertJSONContains(s.T(), rr, "error_description", "NoFeesToWithdraw")

	rr = s.call(alice, http.MethodPost, "/deposits", map[string]string{"amount": "700"})
	testutil.AssertStatus(s.T(), rr, http.StatusNoContent)

	rr = s.call(owner, http.MethodPost, "/admin/emergency-withdraw", nil)
	testutil.AssertJSONContains(s.T(), rr, "amount", "700")
	s.Equal("700", s.treasury.BalanceOf(owner).String())
}

func (s *HandlerSuite) TestBatchVerifyAndEvents() {
	rr := s.call(owner, http.MethodPost, "/users/verify", map[string][]string{"accounts": {bob.Hex(), collector.Hex()}})
	testutil.AssertJSONContains(s.T(), rr, "verified", float64(2))

	rr = s.call(bob, http.MethodGet, "/events?after=1&limit=1", nil)
	s.Require().Equal(http.StatusOK, rr.Code)
	var page handler.EventsResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &page))
	s.Require().Len(page.Events, 1)
	s.Equal(bob, page.Events[0].Account)
	s.Equal(uint64(2), page.Next)

	rr = s.call(bob, http.MethodGet, "/events?limit=0", nil)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")
}

func (s *HandlerSuite) TestTreasuryRoutes() {
	body := map[string]string{"account": bob.Hex(), "amount": "42"}
	rr := testutil.DoRequest(s.router, testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/credits", body))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	req := testutil.NewJSONRequest(s.T(), http.MethodPost, "/treasury/credits", body)
	req.Header.Set("X-Admin-Token", adminToken)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertJSONContains(s.T(), rr, "balance", "42")

	rr = s.call(bob, http.MethodGet, "/balances/"+bob.Hex(), nil)
	testutil.AssertJSONContains(s.T(), rr, "balance", "42")
}

func (s *HandlerSuite) TestFeeRateAboveUint16IsTooHigh() {
	rr := s.call(owner, http.MethodPut, "/admin/fee-rate", map[string]int{"fee_rate_bps": 70000})
	testutil.AssertStatus(s.T(), rr, http.StatusBadRequest)
	testutil.AssertJSONContains(s.T(), rr, "error_description", "FeeRateTooHigh")

	rr = s.call(owner, http.MethodPut, "/admin/fee-rate", map[string]int{"fee_rate_bps": -1})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "validation_error")

	rr = s.call(alice, http.MethodPut, "/admin/fee-rate", map[string]int{"fee_rate_bps": 70000})
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	cfg, err := s.ledger.Config(s.ctx)
	s.Require().NoError(err)
	s.Equal(models.DefaultFeeRateBps, cfg.FeeRateBps)
}

// splitRateLedger quotes at one rate while Config reports another, as if the
// rate changed between two reads.
type splitRateLedger struct {
	handler.Service
}

func (splitRateLedger) QuoteFee(_ context.Context, amount domain.Amount) (service.FeeQuote, error) {
	return service.FeeQuote{Amount: amount, Fee: domain.NewAmount(200), FeeRateBps: 200}, nil
}

func (splitRateLedger) Config(context.Context) (*models.Config, error) {
	return &models.Config{FeeRateBps: 75}, nil
}

func (s *HandlerSuite) TestFeeAndRateComeFromOneRead() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := handler.New(splitRateLedger{}, s.events, s.treasury, logger)
	r := chi.NewRouter()
	r.Use(auth.RequireCaller(s.jwt, logger))
	h.Register(r, idempotency.Middleware(idempotency.NewMemoryStore(), time.Hour, logger))
	s.router = r

	rr := s.call(bob, http.MethodGet, "/fees?amount=10000", nil)
	testutil.AssertStatusOK(s.T(), rr)
	var resp handler.FeeResponse
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &resp))
	s.Equal("10000", resp.Amount.String())
	s.Equal("200", resp.Fee.String())
	s.Equal(uint16(200), resp.FeeRateBps)
}

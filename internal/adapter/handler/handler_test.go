package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ibrahimkeyboad/gobank/internal/adapter/middleware"
	"github.com/ibrahimkeyboad/gobank/internal/adapter/storage/memory"
	"github.com/ibrahimkeyboad/gobank/internal/core/account"
	"github.com/ibrahimkeyboad/gobank/internal/core/auth"
	"github.com/ibrahimkeyboad/gobank/internal/core/events"
	"github.com/ibrahimkeyboad/gobank/internal/core/ledger"
	"github.com/ibrahimkeyboad/gobank/internal/core/security"
)

type testServer struct {
	app    *fiber.App
	bridge *events.Bridge
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.New()
	tokens := security.NewTokenIssuer("test-secret", time.Hour)
	authSvc, err := auth.NewService(store.Users(), tokens, bcrypt.MinCost, zap.NewNop())
	require.NoError(t, err)

	bridge := events.NewBridge(events.LogPublisher{Logger: zap.NewNop()}, zap.NewNop(), time.Second)
	engine := ledger.NewEngine(store.Accounts(), store.Transactions(), authSvc, bridge, zap.NewNop())

	app := NewApp(Deps{
		Accounts:    account.NewService(store.Accounts(), zap.NewNop()),
		Ledger:      engine,
		Auth:        authSvc,
		Tokens:      tokens,
		Idempotency: memory.NewIdempotencyStore(),
		Logger:      zap.NewNop(),
	})
	return &testServer{app: app, bridge: bridge}
}

type response struct {
	status int
	header http.Header
	body   []byte
}

func (r response) decode(t *testing.T, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(r.body, dst), string(r.body))
}

func (r response) errorBody(t *testing.T) ErrorResponse {
	t.Helper()
	var body ErrorResponse
	r.decode(t, &body)
	return body
}

func (s *testServer) do(t *testing.T, method, path, token string, body any, headers ...string) response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, ok := body.(string)
		if !ok {
			b, err := json.Marshal(body)
			require.NoError(t, err)
			raw = string(b)
		}
		reader = bytes.NewBufferString(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	res, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { require.NoError(t, res.Body.Close()) }()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return response{status: res.StatusCode, header: res.Header, body: raw}
}

func (s *testServer) signup(t *testing.T, email, password, role string) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": email, "password": password, "role": role})
	require.Equal(t, http.StatusOK, res.status, string(res.body))

	res = s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(t, http.StatusOK, res.status, string(res.body))

	var login LoginResponse
	res.decode(t, &login)
	require.NotEmpty(t, login.Token)
	return login.Token
}

type accountJSON struct {
	ID      string `json:"id"`
	Number  string `json:"number"`
	Balance string `json:"balance"`
}

func (s *testServer) openAccount(t *testing.T, token, number string, balance any) accountJSON {
	t.Helper()
	res := s.do(t, http.MethodPost, "/accounts", token, map[string]any{"number": number, "balance": balance})
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	var acc accountJSON
	res.decode(t, &acc)
	return acc
}

func (s *testServer) account(t *testing.T, token, id string) accountJSON {
	t.Helper()
	res := s.do(t, http.MethodGet, "/accounts/"+id, token, nil)
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	var acc accountJSON
	res.decode(t, &acc)
	return acc
}

// bank sets up the reference scenario: A=123456 with 2000.00 owned by alice, B=654321 with 500.00 owned by bob.
type bank struct {
	*testServer
	alice, bob, admin string
	a, b              accountJSON
}

func newBank(t *testing.T) *bank {
	t.Helper()
	s := newTestServer(t)
	b := &bank{testServer: s}
	b.alice = s.signup(t, "alice@bank.test", "alice-pw", "USER")
	b.bob = s.signup(t, "bob@bank.test", "bob-pw", "USER")
	b.admin = s.signup(t, "root@bank.test", "root-pw", "ADMIN")
	b.a = s.openAccount(t, b.alice, "123456", 2000.00)
	b.b = s.openAccount(t, b.bob, "654321", "500.00")
	return b
}

func transfer(from, to, amount, password string) map[string]string {
	return map[string]string{"fromAccount": from, "toAccount": to, "amount": amount, "passwordUser": password}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	res := newTestServer(t).do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `{"status":"ok"}`, string(res.body))
}

func TestTransferScenario(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	res := b.do(t, http.MethodPost, "/transactions", b.alice, transfer("123456", "654321", "1000.00", "alice-pw"))
	require.Equal(t, http.StatusCreated, res.status, string(res.body))

	var txn struct {
		Amount      string `json:"amount"`
		Status      string `json:"status"`
		FromAccount string `json:"fromAccount"`
	}
	res.decode(t, &txn)
	assert.Equal(t, "1000", txn.Amount)
	assert.Equal(t, "COMPLETED", txn.Status)
	assert.Equal(t, "123456", txn.FromAccount)

	assert.Equal(t, "1000", b.account(t, b.alice, b.a.ID).Balance)
	assert.Equal(t, "1500", b.account(t, b.bob, b.b.ID).Balance)

	// 5000 exceeds the remaining balance and changes nothing
	res = b.do(t, http.MethodPost, "/transactions", b.alice, transfer("123456", "654321", "5000.00", "alice-pw"))
	require.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Insufficient balance.", res.errorBody(t).Message)
	assert.Equal(t, "1000", b.account(t, b.alice, b.a.ID).Balance)

	res = b.do(t, http.MethodGet, "/transactions/"+b.b.ID, b.bob, nil)
	require.Equal(t, http.StatusOK, res.status)
	var history []map[string]any
	res.decode(t, &history)
	assert.Len(t, history, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, b.bridge.Wait(ctx))
}

func TestTransferErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		token   func(b *bank) string
		body    map[string]string
		status  int
		message string
	}{
		{"wrong password", func(b *bank) string { return b.alice }, transfer("123456", "654321", "1", "nope"), http.StatusBadRequest, "Invalid account password."},
		{"not owner", func(b *bank) string { return b.bob }, transfer("123456", "654321", "1", "bob-pw"), http.StatusForbidden, "You do not have permission to perform this transaction."},
		{"same account", func(b *bank) string { return b.alice }, transfer("123456", "123456", "1", "alice-pw"), http.StatusBadRequest, "Transfer to the same account is not allowed."},
		{"unknown account", func(b *bank) string { return b.alice }, transfer("123456", "000000", "1", "alice-pw"), http.StatusNotFound, "Account not found."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b := newBank(t)

			res := b.do(t, http.MethodPost, "/transactions", tt.token(b), tt.body)
			require.Equal(t, tt.status, res.status, string(res.body))
			body := res.errorBody(t)
			assert.Equal(t, tt.message, body.Message)
			assert.NotNil(t, body.Errors)
			assert.False(t, body.Timestamp.IsZero())

			assert.Equal(t, "2000", b.account(t, b.alice, b.a.ID).Balance)
		})
	}
}

func TestAdminTransferIgnoresPassword(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	res := b.do(t, http.MethodPost, "/transactions", b.admin, transfer("654321", "123456", "500", "whatever"))
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	assert.Equal(t, "0", b.account(t, b.admin, b.b.ID).Balance)
}

func TestTransferValidationAggregates(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	res := b.do(t, http.MethodPost, "/transactions", b.alice, map[string]any{"amount": -5})
	require.Equal(t, http.StatusBadRequest, res.status)

	body := res.errorBody(t)
	assert.Equal(t, "Validation errors found", body.Message)
	assert.ElementsMatch(t, []string{
		"Account number is required.",
		"Account number is required.",
		"The transaction amount cannot be negative or zero.",
		"Owner password is required.",
	}, body.Errors)
}

func TestCreateAccountValidation(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	token := s.signup(t, "ana@bank.test", "pw", "USER")

	res := s.do(t, http.MethodPost, "/accounts", token, map[string]any{"number": "12", "balance": -1})
	require.Equal(t, http.StatusBadRequest, res.status)
	assert.ElementsMatch(t, []string{
		"Account number must have exactly 6 characters.",
		"The account balance cannot be negative.",
	}, res.errorBody(t).Errors)

	res = s.do(t, http.MethodPost, "/accounts", token, map[string]any{})
	require.Equal(t, http.StatusBadRequest, res.status)
	assert.ElementsMatch(t, []string{"Account number is required.", "Account balance is required."}, res.errorBody(t).Errors)

	res = s.do(t, http.MethodPost, "/accounts", token, `{"number":`)
	require.Equal(t, http.StatusBadRequest, res.status)
}

func TestDuplicateAccountNumber(t *testing.T) {
	t.Parallel()
	b := newBank(t)
	carol := b.signup(t, "carol@bank.test", "pw", "USER")

	res := b.do(t, http.MethodPost, "/accounts", carol, map[string]any{"number": "123456", "balance": 0})
	require.Equal(t, http.StatusBadRequest, res.status)
	assert.Contains(t, res.errorBody(t).Message, "Integrity violation: ")
}

func TestAccountAccess(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	res := b.do(t, http.MethodGet, "/accounts/"+b.a.ID, b.bob, nil)
	require.Equal(t, http.StatusForbidden, res.status)
	assert.Equal(t, "You do not have permission to access this account.", res.errorBody(t).Message)

	res = b.do(t, http.MethodGet, "/accounts", b.alice, nil)
	require.Equal(t, http.StatusForbidden, res.status)
	assert.Equal(t, "Access denied.", res.errorBody(t).Message)

	res = b.do(t, http.MethodGet, "/accounts", b.admin, nil)
	require.Equal(t, http.StatusOK, res.status)
	var all []accountJSON
	res.decode(t, &all)
	assert.Len(t, all, 2)

	res = b.do(t, http.MethodGet, "/transactions", b.bob, nil)
	assert.Equal(t, http.StatusForbidden, res.status)

	res = b.do(t, http.MethodGet, "/transactions", b.admin, nil)
	assert.Equal(t, http.StatusOK, res.status)
}

func TestMissingAccountIsNotFound(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	for _, path := range []string{"/accounts/3f1c1c1e-2b1a-4c55-9d1e-000000000000", "/accounts/not-a-uuid"} {
		res := b.do(t, http.MethodGet, path, b.admin, nil)
		assert.Equal(t, http.StatusNotFound, res.status)

		res = b.do(t, http.MethodDelete, path, b.alice, nil)
		assert.Equal(t, http.StatusNotFound, res.status)
		assert.Equal(t, "Account not found.", res.errorBody(t).Message)
	}
}

func TestUpdateAndDeleteAccount(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	res := b.do(t, http.MethodPut, "/accounts/"+b.a.ID, b.alice, map[string]any{"balance": "42.10"})
	require.Equal(t, http.StatusOK, res.status, string(res.body))
	var acc accountJSON
	res.decode(t, &acc)
	assert.Equal(t, "123456", acc.Number)
	assert.Equal(t, "42.1", acc.Balance)

	res = b.do(t, http.MethodPut, "/accounts/"+b.a.ID, b.alice, map[string]any{"number": "777777"})
	require.Equal(t, http.StatusOK, res.status)
	res.decode(t, &acc)
	assert.Equal(t, "777777", acc.Number)
	assert.Equal(t, "42.1", acc.Balance)

	res = b.do(t, http.MethodPut, "/accounts/"+b.a.ID, b.alice, map[string]any{"number": "1"})
	assert.Equal(t, http.StatusBadRequest, res.status)

	res = b.do(t, http.MethodDelete, "/accounts/"+b.a.ID, b.bob, nil)
	assert.Equal(t, http.StatusForbidden, res.status)

	res = b.do(t, http.MethodDelete, "/accounts/"+b.a.ID, b.alice, nil)
	assert.Equal(t, http.StatusNoContent, res.status)
}

func TestAuthEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t)
	s.signup(t, "ana@bank.test", "pw", "USER")

	res := s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "ana@bank.test", "password": "x"})
	require.Equal(t, http.StatusBadRequest, res.status)
	assert.Equal(t, "Email already registered.", res.errorBody(t).Message)

	res = s.do(t, http.MethodPost, "/auth/register", "", map[string]string{"email": "nope", "role": "ROOT"})
	require.Equal(t, http.StatusBadRequest, res.status)
	assert.ElementsMatch(t, []string{"A valid email is required.", "Password is required.", "Role must be USER or ADMIN."}, res.errorBody(t).Errors)

	wrong := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "ana@bank.test", "password": "bad"})
	unknown := s.do(t, http.MethodPost, "/auth/login", "", map[string]string{"email": "who@bank.test", "password": "pw"})
	assert.Equal(t, http.StatusUnauthorized, wrong.status)
	assert.Equal(t, http.StatusUnauthorized, unknown.status)
	assert.Equal(t, wrong.errorBody(t).Message, unknown.errorBody(t).Message)

	res = s.do(t, http.MethodGet, "/accounts/whatever", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)
	res = s.do(t, http.MethodGet, "/accounts/whatever", "garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, res.status)
}

func TestTransferIdempotencyReplay(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	first := b.do(t, http.MethodPost, "/transactions", b.alice, transfer("123456", "654321", "100", "alice-pw"),
		middleware.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, first.status)

	second := b.do(t, http.MethodPost, "/transactions", b.alice, transfer("123456", "654321", "100", "alice-pw"),
		middleware.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, second.status)
	assert.Equal(t, "true", second.header.Get(middleware.HeaderIdempotencyHit))
	assert.JSONEq(t, string(first.body), string(second.body))

	assert.Equal(t, "1900", b.account(t, b.alice, b.a.ID).Balance)
}

func TestEmptyHistoryIsAnArray(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	res := b.do(t, http.MethodGet, "/transactions/"+b.a.ID, b.alice, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `[]`, string(res.body))

	res = b.do(t, http.MethodGet, "/transactions", b.admin, nil)
	require.Equal(t, http.StatusOK, res.status)
	assert.JSONEq(t, `[]`, string(res.body))
}

func TestConcurrentRetriesTransferOnce(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	body, err := json.Marshal(transfer("123456", "654321", "100", "alice-pw"))
	require.NoError(t, err)

	const retries = 64
	statuses := make(chan int, retries)
	var wg sync.WaitGroup
	for i := 0; i < retries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewReader(body))
			req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			req.Header.Set(fiber.HeaderAuthorization, "Bearer "+b.alice)
			req.Header.Set(middleware.HeaderIdempotencyKey, "same-key")
			res, err := b.app.Test(req, -1)
			if !assert.NoError(t, err) {
				return
			}
			_ = res.Body.Close()
			statuses <- res.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	created := 0
	for status := range statuses {
		assert.Contains(t, []int{http.StatusCreated, http.StatusConflict}, status)
		if status == http.StatusCreated {
			created++
		}
	}
	assert.GreaterOrEqual(t, created, 1)

	assert.Equal(t, "1900", b.account(t, b.alice, b.a.ID).Balance)
	assert.Equal(t, "600", b.account(t, b.bob, b.b.ID).Balance)

	res := b.do(t, http.MethodGet, "/transactions/"+b.a.ID, b.alice, nil)
	require.Equal(t, http.StatusOK, res.status)
	var history []map[string]any
	res.decode(t, &history)
	assert.Len(t, history, 1)
}

func TestIdempotencyKeyReusedWithDifferentBody(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	res := b.do(t, http.MethodPost, "/transactions", b.alice, transfer("123456", "654321", "100", "alice-pw"),
		middleware.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, res.status)

	res = b.do(t, http.MethodPost, "/transactions", b.alice, transfer("123456", "654321", "200", "alice-pw"),
		middleware.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusUnprocessableEntity, res.status)
	assert.Equal(t, "Idempotency-Key was already used with a different request.", res.errorBody(t).Message)

	assert.Equal(t, "1900", b.account(t, b.alice, b.a.ID).Balance)
}

func TestRejectedTransferCanRetryWithSameKey(t *testing.T) {
	t.Parallel()
	b := newBank(t)

	res := b.do(t, http.MethodPost, "/transactions", b.alice, transfer("123456", "654321", "100", "wrong"),
		middleware.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusBadRequest, res.status)

	// same key, corrected body: the failed attempt left nothing behind
	res = b.do(t, http.MethodPost, "/transactions", b.alice, transfer("123456", "654321", "100", "alice-pw"),
		middleware.HeaderIdempotencyKey, "key-1")
	require.Equal(t, http.StatusCreated, res.status, string(res.body))
	assert.Equal(t, "1900", b.account(t, b.alice, b.a.ID).Balance)
}

package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	httpHandler "pesos-ledger/internal/adapter/http/handler"
	redisStorage "pesos-ledger/internal/adapter/storage/redis"
	"pesos-ledger/internal/core/domain"
	"pesos-ledger/internal/service"
	"pesos-ledger/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const internalAPIKey = "test-internal-key"

// testApp builds the full application stack on in-memory repos and
// miniredis. It exercises the real HTTP layer, middleware, handlers and
// services end-to-end; only PostgreSQL is substituted.
type testApp struct {
	server   *httptest.Server
	redis    *miniredis.Miniredis
	users    *inMemoryUserDirectory
	audit    *inMemoryAuditRepo
	settings *inMemorySettingsStore
	tokenSvc *service.JWTTokenService
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})

	reservationCache := redisStorage.NewReservationCache(rdb)

	walletRepo := newInMemoryWalletRepo()
	movementRepo := newInMemoryMovementRepo(walletRepo)
	auditRepo := newInMemoryAuditRepo()
	users := newInMemoryUserDirectory()
	settings := &inMemorySettingsStore{expirationDays: 365}
	transactor := newSerializingTransactor()

	log := logger.New("debug", false)
	tokenSvc := service.NewJWTTokenService("test-jwt-secret-key-32bytes!!", 24*time.Hour, "test-issuer")
	ledgerSvc := service.NewLedgerService(walletRepo, movementRepo, auditRepo, users, settings, transactor, log)
	checkoutSvc := service.NewCheckoutService(walletRepo, movementRepo, reservationCache, transactor, log)
	reportingSvc := service.NewReportingService(walletRepo, movementRepo, transactor, 24*time.Hour, 50, 100, log)

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		LedgerSvc:      ledgerSvc,
		CheckoutSvc:    checkoutSvc,
		ReportingSvc:   reportingSvc,
		TokenSvc:       tokenSvc,
		InternalAPIKey: internalAPIKey,
		Logger:         log,
	})

	server := httptest.NewServer(router)

	return &testApp{
		server:   server,
		redis:    mr,
		users:    users,
		audit:    auditRepo,
		settings: settings,
		tokenSvc: tokenSvc,
	}
}

func (a *testApp) close() {
	a.server.Close()
	a.redis.Close()
}

// newUser registers a user in the directory and returns its identity.
func (a *testApp) newUser(t *testing.T, email string) *domain.User {
	t.Helper()
	u := &domain.User{ID: uuid.New(), Email: email, FirstName: "Test", LastName: "User"}
	a.users.add(u)
	return u
}

func (a *testApp) token(t *testing.T, u *domain.User, role string) string {
	t.Helper()
	token, _, err := a.tokenSvc.Generate(u.ID, u.Email, role)
	require.NoError(t, err)
	return token
}

// do performs a JSON request with optional bearer token and headers.
func (a *testApp) do(t *testing.T, method, path, token, body string, headers map[string]string) (*http.Response, map[string]interface{}) {
	t.Helper()
	req, err := http.NewRequest(method, a.server.URL+path, bytes.NewBufferString(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var parsed map[string]interface{}
	_ = json.NewDecoder(resp.Body).Decode(&parsed)
	return resp, parsed
}

func dataOf(t *testing.T, parsed map[string]interface{}) map[string]interface{} {
	t.Helper()
	data, ok := parsed["data"].(map[string]interface{})
	require.True(t, ok, "expected data envelope, got: %v", parsed)
	return data
}

// --- Integration Tests ---

func TestIntegration_HealthCheck(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	resp, err := http.Get(app.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
}

func TestIntegration_LedgerFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	admin := app.newUser(t, "admin@example.com")
	alice := app.newUser(t, "alice@example.com")
	bob := app.newUser(t, "bob@example.com")

	adminToken := app.token(t, admin, "admin")
	aliceToken := app.token(t, alice, "customer")
	bobToken := app.token(t, bob, "customer")

	// Admin credits 100 to Alice
	creditBody := fmt.Sprintf(`{"user_id":%q,"type":"manual_credit","amount":"100","reason":"welcome bonus"}`, alice.ID)
	resp, parsed := app.do(t, "POST", "/api/v1/admin/wallet/credit", adminToken, creditBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "credit failed: %v", parsed)
	data := dataOf(t, parsed)
	wallet := data["wallet"].(map[string]interface{})
	assert.Equal(t, "100", wallet["balance"])

	// Alice sees her balance
	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", dataOf(t, parsed)["balance"])

	// Alice transfers 40 to Bob (email lookup is case-insensitive)
	transferBody := `{"recipient_email":"BOB@example.com","amount":"40"}`
	resp, parsed = app.do(t, "POST", "/api/v1/wallet/transfer", aliceToken, transferBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "transfer failed: %v", parsed)
	data = dataOf(t, parsed)
	assert.Equal(t, "60", data["sender_balance"])
	assert.Equal(t, "bob@example.com", data["recipient_email"])

	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", bobToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "40", dataOf(t, parsed)["balance"])

	// Admin debits 10 from Alice
	debitBody := fmt.Sprintf(`{"user_id":%q,"amount":"10","reason":"correction","internal_comment":"ticket 42"}`, alice.ID)
	resp, parsed = app.do(t, "POST", "/api/v1/admin/wallet/debit", adminToken, debitBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "debit failed: %v", parsed)
	wallet = dataOf(t, parsed)["wallet"].(map[string]interface{})
	assert.Equal(t, "50", wallet["balance"])

	// Alice's history shows the three movements touching her wallet
	resp, parsed = app.do(t, "GET", "/api/v1/wallet/movements", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data = dataOf(t, parsed)
	assert.Equal(t, float64(3), data["total"])

	// Manual operations were audited with the movement FK
	entries := app.audit.all()
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, admin.ID, e.AdminUserID)
		assert.NotNil(t, e.MovementID)
	}
}

func TestIntegration_SelfTransferRejected(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	alice := app.newUser(t, "alice@example.com")
	token := app.token(t, alice, "customer")

	body := `{"recipient_email":"Alice@Example.com","amount":"10"}`
	resp, parsed := app.do(t, "POST", "/api/v1/wallet/transfer", token, body, nil)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "WAL_007", parsed["error_code"])
}

func TestIntegration_BlockedWallet(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	admin := app.newUser(t, "admin@example.com")
	alice := app.newUser(t, "alice@example.com")
	bob := app.newUser(t, "bob@example.com")

	adminToken := app.token(t, admin, "admin")
	aliceToken := app.token(t, alice, "customer")

	creditBody := fmt.Sprintf(`{"user_id":%q,"type":"cashback","amount":"50"}`, alice.ID)
	resp, _ := app.do(t, "POST", "/api/v1/admin/wallet/credit", adminToken, creditBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Block Alice's wallet
	blockBody := `{"blocked":true,"reason":"fraud review"}`
	resp, parsed := app.do(t, "PUT", "/api/v1/admin/wallet/"+alice.ID.String()+"/block", adminToken, blockBody, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, "block failed: %v", parsed)
	assert.Equal(t, true, dataOf(t, parsed)["is_blocked"])

	// Blocked wallets cannot move money out
	transferBody := fmt.Sprintf(`{"recipient_email":%q,"amount":"10"}`, bob.Email)
	resp, parsed = app.do(t, "POST", "/api/v1/wallet/transfer", aliceToken, transferBody, nil)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "WAL_001", parsed["error_code"])

	// Balance stays readable while blocked
	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "50", dataOf(t, parsed)["balance"])

	// A blocked wallet still accepts incoming transfers
	bobToken := app.token(t, bob, "customer")
	creditBody = fmt.Sprintf(`{"user_id":%q,"type":"cashback","amount":"20"}`, bob.ID)
	resp, _ = app.do(t, "POST", "/api/v1/admin/wallet/credit", adminToken, creditBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	inBody := fmt.Sprintf(`{"recipient_email":%q,"amount":"10"}`, alice.Email)
	resp, parsed = app.do(t, "POST", "/api/v1/wallet/transfer", bobToken, inBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "transfer into a blocked wallet must succeed: %v", parsed)

	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "60", dataOf(t, parsed)["balance"])
}

func TestIntegration_AdminRoutesRequireAdminRole(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	alice := app.newUser(t, "alice@example.com")
	token := app.token(t, alice, "customer")

	body := fmt.Sprintf(`{"user_id":%q,"type":"manual_credit","amount":"100","reason":"nope"}`, alice.ID)
	resp, parsed := app.do(t, "POST", "/api/v1/admin/wallet/credit", token, body, nil)

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "AUTH_002", parsed["error_code"])
}

func TestIntegration_CheckoutFlow(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	admin := app.newUser(t, "admin@example.com")
	alice := app.newUser(t, "alice@example.com")
	adminToken := app.token(t, admin, "admin")
	aliceToken := app.token(t, alice, "customer")
	internalHeaders := map[string]string{"X-Internal-Api-Key": internalAPIKey}

	creditBody := fmt.Sprintf(`{"user_id":%q,"type":"refund","amount":"100"}`, alice.ID)
	resp, _ := app.do(t, "POST", "/api/v1/admin/wallet/credit", adminToken, creditBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	// Reserve 30 during checkout
	reserveBody := fmt.Sprintf(`{"user_id":%q,"amount":"30","caller_ref":"order-flow-1"}`, alice.ID)
	resp, parsed := app.do(t, "POST", "/api/v1/internal/checkout/reserve", "", reserveBody, internalHeaders)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "reserve failed: %v", parsed)
	data := dataOf(t, parsed)
	movementID := data["id"].(string)
	assert.Equal(t, "-30", data["amount"])

	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "70", dataOf(t, parsed)["balance"])

	// Retried reserve with the same caller_ref returns the original movement
	resp, parsed = app.do(t, "POST", "/api/v1/internal/checkout/reserve", "", reserveBody, internalHeaders)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, movementID, dataOf(t, parsed)["id"])

	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "70", dataOf(t, parsed)["balance"], "retry must not double-debit")

	// Attach the order
	orderID := uuid.New()
	attachBody := fmt.Sprintf(`{"order_id":%q}`, orderID)
	resp, parsed = app.do(t, "POST", "/api/v1/internal/checkout/"+movementID+"/attach", "", attachBody, internalHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode, "attach failed: %v", parsed)
	assert.Equal(t, orderID.String(), dataOf(t, parsed)["order_id"])

	// Attaching a different order conflicts
	otherBody := fmt.Sprintf(`{"order_id":%q}`, uuid.New())
	resp, parsed = app.do(t, "POST", "/api/v1/internal/checkout/"+movementID+"/attach", "", otherBody, internalHeaders)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "WAL_008", parsed["error_code"])

	// Reverting an attached movement is a safe no-op
	resp, parsed = app.do(t, "POST", "/api/v1/internal/checkout/"+movementID+"/revert", "", "", internalHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, dataOf(t, parsed)["released"])

	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "70", dataOf(t, parsed)["balance"])
}

func TestIntegration_CheckoutRevertReleasesHold(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	admin := app.newUser(t, "admin@example.com")
	alice := app.newUser(t, "alice@example.com")
	adminToken := app.token(t, admin, "admin")
	aliceToken := app.token(t, alice, "customer")
	internalHeaders := map[string]string{"X-Internal-Api-Key": internalAPIKey}

	creditBody := fmt.Sprintf(`{"user_id":%q,"type":"cashback","amount":"80"}`, alice.ID)
	resp, _ := app.do(t, "POST", "/api/v1/admin/wallet/credit", adminToken, creditBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	reserveBody := fmt.Sprintf(`{"user_id":%q,"amount":"25","caller_ref":"order-flow-2"}`, alice.ID)
	resp, parsed := app.do(t, "POST", "/api/v1/internal/checkout/reserve", "", reserveBody, internalHeaders)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	movementID := dataOf(t, parsed)["id"].(string)

	// Checkout failed, release the hold
	resp, parsed = app.do(t, "POST", "/api/v1/internal/checkout/"+movementID+"/revert", "", "", internalHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := dataOf(t, parsed)
	assert.Equal(t, true, data["released"])
	assert.Equal(t, "80", data["balance"])

	// Reverting again is a safe no-op
	resp, parsed = app.do(t, "POST", "/api/v1/internal/checkout/"+movementID+"/revert", "", "", internalHeaders)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, false, dataOf(t, parsed)["released"])

	// Attaching an order to the reverted reservation conflicts
	attachBody := fmt.Sprintf(`{"order_id":%q}`, uuid.New())
	resp, parsed = app.do(t, "POST", "/api/v1/internal/checkout/"+movementID+"/attach", "", attachBody, internalHeaders)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "WAL_008", parsed["error_code"])

	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "80", dataOf(t, parsed)["balance"])
}

func TestIntegration_ExpiredCreditsDoNotFund(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	app.settings.expirationDays = 1

	admin := app.newUser(t, "admin@example.com")
	alice := app.newUser(t, "alice@example.com")
	adminToken := app.token(t, admin, "admin")
	aliceToken := app.token(t, alice, "customer")

	// A credit dated in the past is accepted but never funds anything
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	creditBody := fmt.Sprintf(`{"user_id":%q,"type":"manual_credit","amount":"60","reason":"promo","expires_at":%q}`, alice.ID, yesterday)
	resp, parsed := app.do(t, "POST", "/api/v1/admin/wallet/credit", adminToken, creditBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, "past expiry must not be rejected: %v", parsed)
	data := dataOf(t, parsed)
	movement := data["movement"].(map[string]interface{})
	require.NotNil(t, movement["expires_at"])
	wallet := data["wallet"].(map[string]interface{})
	assert.Equal(t, "0", wallet["balance"])

	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "0", dataOf(t, parsed)["balance"])

	// A fresh credit under the settings window is spendable
	creditBody = fmt.Sprintf(`{"user_id":%q,"type":"cashback","amount":"40"}`, alice.ID)
	resp, parsed = app.do(t, "POST", "/api/v1/admin/wallet/credit", adminToken, creditBody, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	movement = dataOf(t, parsed)["movement"].(map[string]interface{})
	require.NotNil(t, movement["expires_at"], "settings window must stamp an expiry")

	expiresAt, err := time.Parse(time.RFC3339, movement["expires_at"].(string))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), expiresAt, 2*time.Minute)

	resp, parsed = app.do(t, "GET", "/api/v1/wallet/balance", aliceToken, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "40", dataOf(t, parsed)["balance"])
}

func TestIntegration_ManualLoadLimit(t *testing.T) {
	app := newTestApp(t)
	defer app.close()

	limit := decimal.NewFromInt(500)
	app.settings.maxManualLoad = &limit

	admin := app.newUser(t, "admin@example.com")
	alice := app.newUser(t, "alice@example.com")
	adminToken := app.token(t, admin, "admin")

	body := fmt.Sprintf(`{"user_id":%q,"type":"manual_credit","amount":"600","reason":"too generous"}`, alice.ID)
	resp, parsed := app.do(t, "POST", "/api/v1/admin/wallet/credit", adminToken, body, nil)

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "WAL_009", parsed["error_code"])
}

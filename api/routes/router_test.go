package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	internalorders "github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/internal/settlement"
	pkgAuth "github.com/angelmondragon/settlement-engine/pkg/auth"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type memoryStore struct {
	mu       sync.Mutex
	values   map[string]string
	counters map[string]int64
}

func newMemoryStore() *memoryStore {
	return &memoryStore{values: map[string]string{}, counters: map[string]int64{}}
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	switch v := value.(type) {
	case string:
		m.values[key] = v
	case []byte:
		m.values[key] = string(v)
	}
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string {
	return "idempotency:" + scope + ":" + id
}

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

func (m *memoryStore) FixedWindowAllow(_ context.Context, scope string, limit int64, _ time.Duration) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counters[scope]++
	count := m.counters[scope]
	return count <= limit, count, nil
}

func (m *memoryStore) Ping(context.Context) error {
	return nil
}

type stubCoordinator struct {
	mu      sync.Mutex
	creates int
}

func (s *stubCoordinator) CreateOrder(ctx context.Context, in settlement.CreateOrderInput) (*settlement.CreateOrderResult, error) {
	s.mu.Lock()
	s.creates++
	s.mu.Unlock()
	return &settlement.CreateOrderResult{Order: &models.Order{ID: uuid.New(), UserID: in.Actor.UserID, PaymentMethod: in.PaymentMethod}}, nil
}

func (s *stubCoordinator) InitiatePayment(ctx context.Context, in settlement.InitiatePaymentInput) (*settlement.InitiatePaymentResult, error) {
	return &settlement.InitiatePaymentResult{Order: &models.Order{ID: in.OrderID}}, nil
}

func (s *stubCoordinator) ConfirmCODPayment(ctx context.Context, in settlement.ConfirmCODInput) (*models.Payment, error) {
	return &models.Payment{OrderID: in.OrderID, Status: enums.PaymentStatusPaid}, nil
}

func (s *stubCoordinator) CancelOrder(ctx context.Context, in settlement.CancelOrderInput) (*models.Order, error) {
	return &models.Order{ID: in.OrderID, Status: enums.OrderStatusCanceled}, nil
}

func (s *stubCoordinator) UpdateOrderStatus(ctx context.Context, in settlement.UpdateOrderStatusInput) (*models.Order, error) {
	return &models.Order{ID: in.OrderID, Status: in.Status}, nil
}

func (s *stubCoordinator) ListOrders(ctx context.Context, in settlement.ListOrdersInput) (*internalorders.OrderPage, error) {
	return &internalorders.OrderPage{}, nil
}

func (s *stubCoordinator) GetOrder(ctx context.Context, actor settlement.Actor, id uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: id, UserID: actor.UserID}, nil
}

func (s *stubCoordinator) GetOrderByTracking(ctx context.Context, actor settlement.Actor, tn string) (*models.Order, error) {
	return &models.Order{ID: uuid.New(), TrackingNumber: tn}, nil
}

func (s *stubCoordinator) ListPayments(ctx context.Context, actor settlement.Actor, id uuid.UUID) ([]models.Payment, error) {
	return nil, nil
}

func (s *stubCoordinator) GetPaymentByTransactionID(ctx context.Context, actor settlement.Actor, txn string) (*models.Payment, error) {
	return &models.Payment{TransactionID: txn, Status: enums.PaymentStatusPending}, nil
}

type stubCallbacks struct {
	calls int
}

func (s *stubCallbacks) Handle(ctx context.Context, method enums.PaymentMethod, cb payments.Callback) (*settlement.ReconcileResult, error) {
	s.calls++
	return &settlement.ReconcileResult{Outcome: metrics.OutcomeNoop}, nil
}

type stubNotificationsService struct{}

func (stubNotificationsService) List(ctx context.Context, params notifications.ListParams) (*notifications.ListResult, error) {
	return &notifications.ListResult{}, nil
}

func (stubNotificationsService) MarkRead(ctx context.Context, userID, notificationID uuid.UUID) error {
	return nil
}

func (stubNotificationsService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	return 0, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		Webhooks: config.WebhooksConfig{
			RateLimitWindow: time.Minute,
			RateLimitPerIP:  2,
		},
	}
}

type testRouter struct {
	handler     http.Handler
	coordinator *stubCoordinator
	callbacks   *stubCallbacks
}

func newTestRouter(cfg *config.Config) testRouter {
	signer, err := pkgAuth.NewSigner(cfg.JWT)
	if err != nil {
		panic(err)
	}
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})
	coordinator := &stubCoordinator{}
	callbacks := &stubCallbacks{}
	handler := NewRouter(
		cfg,
		logg,
		stubPinger{},
		newMemoryStore(),
		signer,
		http.NotFoundHandler(),
		coordinator,
		callbacks,
		stubNotificationsService{},
	)
	return testRouter{handler: handler, coordinator: coordinator, callbacks: callbacks}
}

func buildToken(t *testing.T, cfg *config.Config, role enums.UserRole) string {
	t.Helper()
	signer, err := pkgAuth.NewSigner(cfg.JWT)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	token, err := signer.Mint(time.Now(), pkgAuth.Identity{UserID: uuid.New(), Role: role})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestHealthReadyPingsDependencies(t *testing.T) {
	router := newTestRouter(testConfig())
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
}

func TestPrivateGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestPrivateGroupSucceedsWithJWT(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAdminGroupRequiresAdminRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)

	customer := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer got %d", resp.Code)
	}

	admin := httptest.NewRequest(http.MethodGet, "/api/v1/admin/orders", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleAdmin))
	resp = httptest.NewRecorder()
	router.handler.ServeHTTP(resp, admin)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin got %d", resp.Code)
	}
}

func TestCreateOrderRequiresIdempotencyKeyAndReplays(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	token := buildToken(t, cfg, enums.UserRoleCustomer)
	body := `{"items":[{"product_id":"` + uuid.NewString() + `","quantity":1}],"shipping_address":"1 Main St","payment_method":"cod"}`

	missing := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
	missing.Header.Set("Authorization", "Bearer "+token)
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, missing)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key got %d", resp.Code)
	}

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", strings.NewReader(body))
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Idempotency-Key", "create-1")
		resp := httptest.NewRecorder()
		router.handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d: %s", i, resp.Code, resp.Body.String())
		}
	}
	if router.coordinator.creates != 1 {
		t.Fatalf("expected one create, got %d", router.coordinator.creates)
	}
}

func TestPaymentByTransactionDoesNotHitReturnRoute(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(cfg)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/TXN-1", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.UserRoleCustomer))
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if router.callbacks.calls != 0 {
		t.Fatal("transaction lookup must not reach callback handling")
	}
}

func TestWebhookIsPublicAndRateLimited(t *testing.T) {
	router := newTestRouter(testConfig())

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/gateway_b", strings.NewReader(`{}`))
		req.RemoteAddr = "198.51.100.7:4000"
		resp := httptest.NewRecorder()
		router.handler.ServeHTTP(resp, req)
		if resp.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200 got %d", i, resp.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payments/gateway_b", strings.NewReader(`{}`))
	req.RemoteAddr = "198.51.100.7:4000"
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", resp.Code)
	}
	if router.callbacks.calls != 2 {
		t.Fatalf("expected two handled callbacks, got %d", router.callbacks.calls)
	}
}

func TestPaymentReturnIsPublic(t *testing.T) {
	router := newTestRouter(testConfig())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/payments/gateway_a/return?txn=1&signature=x", nil)
	resp := httptest.NewRecorder()
	router.handler.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", resp.Code)
	}
	if router.callbacks.calls != 1 {
		t.Fatalf("expected one callback, got %d", router.callbacks.calls)
	}
}

package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/url"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/catalog"
	"github.com/angelmondragon/settlement-engine/internal/inventory"
	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/db/testdb"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
)

// stubGateway accepts callbacks whose "sig" param is "ok".
type stubGateway struct {
	method    enums.PaymentMethod
	initErr   error
	initCalls int
}

func (g *stubGateway) Method() enums.PaymentMethod { return g.method }

func (g *stubGateway) Initiate(_ context.Context, req payments.InitiateRequest) (*payments.IntentResult, error) {
	g.initCalls++
	if g.initErr != nil {
		return nil, g.initErr
	}
	ref := "EXT-" + req.TransactionID
	redirect := "https://pay.example.test/checkout/" + req.TransactionID
	raw, _ := json.Marshal(map[string]string{"ref": ref})
	return &payments.IntentResult{
		TransactionID: req.TransactionID,
		ExternalRef:   &ref,
		RedirectURL:   &redirect,
		Raw:           raw,
	}, nil
}

func (g *stubGateway) VerifyCallback(_ context.Context, cb payments.Callback) (*payments.VerifiedCallback, error) {
	if cb.Params.Get("sig") != "ok" {
		return nil, payments.ErrSignature(g.method)
	}
	out := &payments.VerifiedCallback{
		TransactionID: cb.Params.Get("txn"),
		ExternalRef:   cb.Params.Get("ref"),
		Success:       cb.Params.Get("status") == "success",
		FailureCode:   cb.Params.Get("code"),
		Raw:           json.RawMessage(`{}`),
	}
	if raw := cb.Params.Get("amount"); raw != "" {
		amount := decimal.RequireFromString(raw)
		out.Amount = &amount
	}
	return out, nil
}

type harness struct {
	db       *gorm.DB
	coord    *Coordinator
	gatewayA *stubGateway
	gatewayB *stubGateway

	mu    sync.Mutex
	notes []notifications.Request
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	conn := testdb.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})

	orderRepo := orders.NewRepository(conn)
	ledger := inventory.NewLedger(conn)
	machine, err := orders.NewMachine(orderRepo, ledger, 0)
	require.NoError(t, err)
	calc, err := pricing.NewFlatRate(decimal.RequireFromString("0.10"), decimal.RequireFromString("25"))
	require.NoError(t, err)

	h := &harness{
		db:       conn,
		gatewayA: &stubGateway{method: enums.PaymentMethodGatewayA},
		gatewayB: &stubGateway{method: enums.PaymentMethodGatewayB},
	}
	registry, err := payments.NewRegistry(payments.NewCOD(), h.gatewayA, h.gatewayB)
	require.NoError(t, err)

	h.coord, err = NewCoordinator(Params{
		DB:        db.Wrap(conn),
		Orders:    orderRepo,
		Machine:   machine,
		Payments:  payments.NewRepository(conn),
		Gateways:  registry,
		Inventory: ledger,
		Catalog:   catalog.NewRepository(conn),
		Pricing:   calc,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Notifier: notifications.SinkFunc(func(_ context.Context, req notifications.Request) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.notes = append(h.notes, req)
		}),
		Logger: logg,
	})
	require.NoError(t, err)
	return h
}

func (h *harness) product(t *testing.T, name, price string, stock int) models.Product {
	t.Helper()
	product := models.Product{
		Name:     name,
		Price:    decimal.RequireFromString(price),
		IsActive: true,
		Sizes:    pq.StringArray{},
		Colors:   pq.StringArray{},
	}
	require.NoError(t, catalog.NewRepository(h.db).Create(context.Background(), &product))
	require.NoError(t, h.db.Create(&models.InventoryItem{
		ID:           uuid.New(),
		ProductID:    product.ID,
		AvailableQty: stock,
	}).Error)
	return product
}

func (h *harness) stock(t *testing.T, productID uuid.UUID) models.InventoryItem {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, h.db.Where("product_id = ? AND variant_key = ?", productID, "").Take(&item).Error)
	return item
}

func (h *harness) events(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var count int64
	require.NoError(t, h.db.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&count).Error)
	return count
}

func (h *harness) payment(t *testing.T, id uuid.UUID) models.Payment {
	t.Helper()
	var payment models.Payment
	require.NoError(t, h.db.Where("id = ?", id).Take(&payment).Error)
	return payment
}

func (h *harness) order(t *testing.T, id uuid.UUID) *models.Order {
	t.Helper()
	order, err := orders.NewRepository(h.db).FindByID(context.Background(), id)
	require.NoError(t, err)
	return order
}

func (h *harness) kinds() []enums.NotificationKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]enums.NotificationKind, 0, len(h.notes))
	for _, note := range h.notes {
		out = append(out, note.Kind)
	}
	return out
}

// placeOrder buys two tees and one hoodie: 109.97 before tax and shipping.
func (h *harness) placeOrder(t *testing.T, customer Actor, method enums.PaymentMethod) *CreateOrderResult {
	t.Helper()
	tee := h.product(t, "Tee", "29.99", 10)
	hoodie := h.product(t, "Hoodie", "49.99", 5)
	result, err := h.coord.CreateOrder(context.Background(), CreateOrderInput{
		Actor: customer,
		Items: []ItemInput{
			{ProductID: tee.ID, Quantity: 2},
			{ProductID: hoodie.ID, Quantity: 1},
		},
		ShippingAddress: "1 Main St, Springfield",
		PaymentMethod:   method,
	})
	require.NoError(t, err)
	return result
}

func callback(params map[string]string) payments.Callback {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	return payments.Callback{Source: payments.CallbackWebhook, Params: values}
}

func customer() Actor {
	return Actor{UserID: uuid.New(), Role: enums.UserRoleCustomer}
}

var operator = Actor{UserID: uuid.New(), Role: enums.UserRoleAdmin}

var errGatewayDown = errors.New("connection refused")

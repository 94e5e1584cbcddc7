package orders

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/settlement-engine/internal/settlement"
	"github.com/angelmondragon/settlement-engine/pkg/db/models"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	pkgerrors "github.com/angelmondragon/settlement-engine/pkg/errors"
)

func TestInitiatePaymentDefaultsMethod(t *testing.T) {
	userID := uuid.New()
	order := sampleOrder(userID)
	svc := &stubCoordinator{
		initiateFn: func(ctx context.Context, in settlement.InitiatePaymentInput) (*settlement.InitiatePaymentResult, error) {
			if in.Method != "" {
				t.Fatalf("expected empty method, got %s", in.Method)
			}
			payment := &models.Payment{ID: uuid.New(), OrderID: order.ID, Method: order.PaymentMethod, TransactionID: "TXN-2", Status: enums.PaymentStatusPending, Amount: order.Total}
			return &settlement.InitiatePaymentResult{Order: order, Payment: payment}, nil
		},
	}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/payments", nil), userID, enums.UserRoleCustomer)
	req = withURLParams(req, map[string]string{"orderId": order.ID.String()})
	resp := httptest.NewRecorder()

	InitiatePayment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", resp.Code, resp.Body.String())
	}
	data := decodeData(t, resp.Body)
	payment := data["payment"].(map[string]any)
	if payment["transaction_id"] != "TXN-2" {
		t.Fatalf("unexpected payment %v", payment)
	}
}

func TestInitiatePaymentSwitchesMethod(t *testing.T) {
	userID := uuid.New()
	order := sampleOrder(userID)
	svc := &stubCoordinator{
		initiateFn: func(ctx context.Context, in settlement.InitiatePaymentInput) (*settlement.InitiatePaymentResult, error) {
			if in.Method != enums.PaymentMethodCOD {
				t.Fatalf("expected cod, got %s", in.Method)
			}
			return &settlement.InitiatePaymentResult{Order: order}, nil
		},
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+order.ID.String()+"/payments", strings.NewReader(`{"payment_method":"cod"}`))
	req = authed(req, userID, enums.UserRoleCustomer)
	req = withURLParams(req, map[string]string{"orderId": order.ID.String()})
	resp := httptest.NewRecorder()

	InitiatePayment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
}

func TestInitiatePaymentGatewayFailureIsBadGateway(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCoordinator{
		initiateFn: func(ctx context.Context, in settlement.InitiatePaymentInput) (*settlement.InitiatePaymentResult, error) {
			return nil, pkgerrors.New(pkgerrors.CodePaymentGateway, "gateway timed out")
		},
	}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/payments", nil), uuid.New(), enums.UserRoleCustomer)
	req = withURLParams(req, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()

	InitiatePayment(svc, testLogger())(resp, req)

	if resp.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", resp.Code)
	}
}

func TestListPayments(t *testing.T) {
	orderID := uuid.New()
	svc := &stubCoordinator{
		paymentsFn: func(ctx context.Context, actor settlement.Actor, id uuid.UUID) ([]models.Payment, error) {
			return []models.Payment{
				{ID: uuid.New(), OrderID: id, Method: enums.PaymentMethodGatewayB, TransactionID: "TXN-A", Status: enums.PaymentStatusFailed},
				{ID: uuid.New(), OrderID: id, Method: enums.PaymentMethodGatewayB, TransactionID: "TXN-B", Status: enums.PaymentStatusPaid},
			}, nil
		},
	}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String()+"/payments", nil), uuid.New(), enums.UserRoleCustomer)
	req = withURLParams(req, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()

	ListPayments(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if got := len(decodeData(t, resp.Body)["payments"].([]any)); got != 2 {
		t.Fatalf("expected two payments, got %d", got)
	}
}

func TestPaymentByTransactionNotFound(t *testing.T) {
	svc := &stubCoordinator{
		byTxnFn: func(ctx context.Context, actor settlement.Actor, txn string) (*models.Payment, error) {
			if txn != "TXN-404" {
				t.Fatalf("unexpected transaction %s", txn)
			}
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		},
	}
	req := authed(httptest.NewRequest(http.MethodGet, "/api/v1/payments/TXN-404", nil), uuid.New(), enums.UserRoleCustomer)
	req = withURLParams(req, map[string]string{"transactionId": "TXN-404"})
	resp := httptest.NewRecorder()

	PaymentByTransaction(svc, testLogger())(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestAdminConfirmCOD(t *testing.T) {
	orderID := uuid.New()
	adminID := uuid.New()
	svc := &stubCoordinator{
		confirmCODFn: func(ctx context.Context, in settlement.ConfirmCODInput) (*models.Payment, error) {
			if in.OrderID != orderID || in.Actor.UserID != adminID || !in.Actor.IsOperator() {
				t.Fatalf("unexpected input %+v", in)
			}
			return &models.Payment{ID: uuid.New(), OrderID: orderID, Method: enums.PaymentMethodCOD, TransactionID: "TXN-COD", Status: enums.PaymentStatusPaid}, nil
		},
	}
	req := authed(httptest.NewRequest(http.MethodPost, "/api/v1/admin/orders/"+orderID.String()+"/cod/confirm", nil), adminID, enums.UserRoleAdmin)
	req = withURLParams(req, map[string]string{"orderId": orderID.String()})
	resp := httptest.NewRecorder()

	AdminConfirmCOD(svc, testLogger())(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if data := decodeData(t, resp.Body); data["status"] != string(enums.PaymentStatusPaid) {
		t.Fatalf("unexpected status %v", data["status"])
	}
}

// Package settlement orchestrates order creation, payment initiation, gateway
// reconciliation and cancellation across the inventory ledger, the order state
// machine and the payment gateways.
package settlement

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/angelmondragon/settlement-engine/internal/catalog"
	"github.com/angelmondragon/settlement-engine/internal/inventory"
	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLedger interface {
	ReserveAll(ctx context.Context, tx *gorm.DB, requests []inventory.Request) ([]inventory.Reservation, error)
	Available(ctx context.Context, ref inventory.StockRef) (int, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Params wires a Coordinator.
type Params struct {
	DB              txRunner
	Orders          orders.Repository
	Machine         *orders.Machine
	Payments        payments.Repository
	Gateways        *payments.Registry
	Inventory       stockLedger
	Catalog         catalog.Reader
	Pricing         pricing.Calculator
	Outbox          eventEmitter
	Notifier        notifications.Sink
	Logger          *logger.Logger
	Metrics         *metrics.SettlementMetrics
	Currency        string
	InitiateTimeout time.Duration
	// ReturnURL builds the browser return address for a method when the
	// client does not supply one.
	ReturnURL func(method string) string
}

// Coordinator is the single entry point for state-changing order and payment
// operations.
type Coordinator struct {
	db              txRunner
	orders          orders.Repository
	machine         *orders.Machine
	payments        payments.Repository
	gateways        *payments.Registry
	inventory       stockLedger
	catalog         catalog.Reader
	pricing         pricing.Calculator
	outbox          eventEmitter
	notifier        notifications.Sink
	logg            *logger.Logger
	metrics         *metrics.SettlementMetrics
	currency        string
	initiateTimeout time.Duration
	returnURL       func(method string) string
	now             func() time.Time
	trackingNumber  func(time.Time) string
}

func NewCoordinator(p Params) (*Coordinator, error) {
	switch {
	case p.DB == nil:
		return nil, errors.New("database client required")
	case p.Orders == nil:
		return nil, errors.New("orders repository required")
	case p.Machine == nil:
		return nil, errors.New("order state machine required")
	case p.Payments == nil:
		return nil, errors.New("payments repository required")
	case p.Gateways == nil:
		return nil, errors.New("gateway registry required")
	case p.Inventory == nil:
		return nil, errors.New("inventory ledger required")
	case p.Catalog == nil:
		return nil, errors.New("catalog reader required")
	case p.Pricing == nil:
		return nil, errors.New("pricing calculator required")
	case p.Outbox == nil:
		return nil, errors.New("outbox service required")
	case p.Logger == nil:
		return nil, errors.New("logger required")
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notifications.SinkFunc(func(context.Context, notifications.Request) {})
	}
	currency := p.Currency
	if currency == "" {
		currency = "USD"
	}
	timeout := p.InitiateTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	returnURL := p.ReturnURL
	if returnURL == nil {
		returnURL = func(string) string { return "" }
	}
	return &Coordinator{
		db:              p.DB,
		orders:          p.Orders,
		machine:         p.Machine,
		payments:        p.Payments,
		gateways:        p.Gateways,
		inventory:       p.Inventory,
		catalog:         p.Catalog,
		pricing:         p.Pricing,
		outbox:          p.Outbox,
		notifier:        notifier,
		logg:            p.Logger,
		metrics:         p.Metrics,
		currency:        currency,
		initiateTimeout: timeout,
		returnURL:       returnURL,
		now:             func() time.Time { return time.Now().UTC() },
		trackingNumber:  orders.NewTrackingNumber,
	}, nil
}

// notify hands every request to the sink. Only call after commit.
func (c *Coordinator) notify(ctx context.Context, reqs []notifications.Request) {
	for _, req := range reqs {
		c.notifier.Notify(ctx, req)
	}
}

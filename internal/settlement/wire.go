package settlement

import (
	"github.com/angelmondragon/settlement-engine/internal/catalog"
	"github.com/angelmondragon/settlement-engine/internal/inventory"
	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/internal/orders"
	"github.com/angelmondragon/settlement-engine/internal/payments"
	"github.com/angelmondragon/settlement-engine/internal/pricing"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	"github.com/angelmondragon/settlement-engine/pkg/metrics"
	"github.com/angelmondragon/settlement-engine/pkg/outbox"
)

// Deps are the process-level clients a binary hands to NewFromConfig.
type Deps struct {
	DB       *db.Client
	Outbox   *outbox.Service
	Notifier notifications.Sink
	Logger   *logger.Logger
	Metrics  *metrics.SettlementMetrics
}

// NewFromConfig builds the repositories, state machine, gateway registry and
// pricing calculator from cfg and returns a ready Coordinator.
func NewFromConfig(cfg *config.Config, deps Deps) (*Coordinator, error) {
	conn := deps.DB.DB()
	ledger := inventory.NewLedger(conn)
	ordersRepo := orders.NewRepository(conn)

	machine, err := orders.NewMachine(ordersRepo, ledger, cfg.Fulfillment.DeliveryEstimate())
	if err != nil {
		return nil, err
	}

	gatewayA, err := payments.NewGatewayA(cfg.GatewayA, cfg.Pricing.Currency)
	if err != nil {
		return nil, err
	}
	gatewayB, err := payments.NewGatewayB(cfg.GatewayB, cfg.Payments.WebhookURL(string(enums.PaymentMethodGatewayB)), cfg.Payments.InitiateTimeout)
	if err != nil {
		return nil, err
	}
	gateways, err := payments.NewRegistry(payments.NewCOD(), gatewayA, gatewayB)
	if err != nil {
		return nil, err
	}

	calculator, err := pricing.NewFromConfig(cfg.Pricing)
	if err != nil {
		return nil, err
	}

	return NewCoordinator(Params{
		DB:              deps.DB,
		Orders:          ordersRepo,
		Machine:         machine,
		Payments:        payments.NewRepository(conn),
		Gateways:        gateways,
		Inventory:       ledger,
		Catalog:         catalog.NewRepository(conn),
		Pricing:         calculator,
		Outbox:          deps.Outbox,
		Notifier:        deps.Notifier,
		Logger:          deps.Logger,
		Metrics:         deps.Metrics,
		Currency:        cfg.Pricing.Currency,
		InitiateTimeout: cfg.Payments.InitiateTimeout,
		ReturnURL:       cfg.Payments.ReturnURL,
	})
}

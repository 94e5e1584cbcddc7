package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/settlement-engine/api/controllers"
	ordercontrollers "github.com/angelmondragon/settlement-engine/api/controllers/orders"
	notificationcontrollers "github.com/angelmondragon/settlement-engine/api/controllers/notifications"
	webhookcontrollers "github.com/angelmondragon/settlement-engine/api/controllers/webhooks"
	"github.com/angelmondragon/settlement-engine/api/middleware"
	"github.com/angelmondragon/settlement-engine/internal/notifications"
	"github.com/angelmondragon/settlement-engine/pkg/config"
	"github.com/angelmondragon/settlement-engine/pkg/db"
	"github.com/angelmondragon/settlement-engine/pkg/enums"
	"github.com/angelmondragon/settlement-engine/pkg/logger"
	pkgredis "github.com/angelmondragon/settlement-engine/pkg/redis"
)

// Store is the Redis surface the HTTP layer needs.
type Store interface {
	pkgredis.IdempotencyStore
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
	Ping(ctx context.Context) error
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	store Store,
	tokens middleware.TokenVerifier,
	metricsHandler http.Handler,
	coordinator ordercontrollers.Coordinator,
	callbacks webhookcontrollers.CallbackService,
	notificationsService notifications.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive())
		r.Get("/ready", controllers.HealthReady(map[string]controllers.Pinger{
			"db":    dbP,
			"redis": store,
		}, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	callbackPolicy := middleware.NewRateLimitPolicy("payments_public", cfg.Webhooks.RateLimitWindow, cfg.Webhooks.RateLimitPerIP)

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(callbackPolicy, store, logg))
			r.Post("/webhooks/payments/{method}", webhookcontrollers.PaymentWebhook(callbacks, logg))
			r.Get("/payments/{method}/return", webhookcontrollers.PaymentReturn(callbacks, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(tokens, logg))
			r.Use(middleware.Idempotency(store, logg))

			r.Route("/orders", func(r chi.Router) {
				r.Post("/", ordercontrollers.Create(coordinator, logg))
				r.Get("/", ordercontrollers.List(coordinator, logg))
				r.Get("/tracking/{trackingNumber}", ordercontrollers.ByTracking(coordinator, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(coordinator, logg))
				r.Post("/{orderId}/cancel", ordercontrollers.Cancel(coordinator, logg))
				r.Post("/{orderId}/payments", ordercontrollers.InitiatePayment(coordinator, logg))
				r.Get("/{orderId}/payments", ordercontrollers.ListPayments(coordinator, logg))
			})
			r.Get("/payments/{transactionId}", ordercontrollers.PaymentByTransaction(coordinator, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationcontrollers.List(notificationsService, logg))
				r.Post("/{notificationId}/read", notificationcontrollers.MarkRead(notificationsService, logg))
				r.Post("/read-all", notificationcontrollers.MarkAllRead(notificationsService, logg))
			})

			r.Route("/admin/orders", func(r chi.Router) {
				r.Use(middleware.RequireRole(logg, enums.UserRoleAdmin))
				r.Get("/", ordercontrollers.AdminList(coordinator, logg))
				r.Patch("/{orderId}/status", ordercontrollers.AdminUpdateStatus(coordinator, logg))
				r.Post("/{orderId}/cod/confirm", ordercontrollers.AdminConfirmCOD(coordinator, logg))
			})
		})
	})

	return r
}

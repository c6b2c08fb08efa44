package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/dropship-settlements/api/controllers"
	webhookcontrollers "github.com/angelmondragon/dropship-settlements/api/controllers/webhooks"
	"github.com/angelmondragon/dropship-settlements/api/middleware"
	"github.com/angelmondragon/dropship-settlements/internal/debts"
	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/redis"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	metricsHandler http.Handler,
	debtService debts.Service,
	linkService controllers.SettlementLinkService,
	shipmentService controllers.ShipmentService,
	payoutAccounts controllers.PayoutAccountStore,
	ledger controllers.InventoryLedger,
	deadLetterService controllers.DeadLetterService,
	webhookService webhookcontrollers.InfinityPayWebhookService,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		rateStore        middleware.RateLimitStore
		redisPinger      controllers.Pinger
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		rateStore = redisClient
		redisPinger = redisClient
	}

	webhookPolicy := middleware.NewRateLimitPolicy("webhook", cfg.RateLimit.Window, cfg.RateLimit.WebhookIPLimit, 0)
	linkPolicy := middleware.NewRateLimitPolicy("links", cfg.RateLimit.Window, 0, cfg.RateLimit.LinkSellerLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"db":    dbP,
			"redis": redisPinger,
		}))
	})

	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.With(middleware.RateLimit(webhookPolicy, rateStore, logg)).
			Post("/infinitypay", webhookcontrollers.InfinityPayWebhook(webhookService, logg))
	})

	// Seller-facing surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.SellerContext(logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/api/v1/debts", func(r chi.Router) {
			r.Post("/", controllers.RecordDebt(debtService, logg))
			r.Get("/", controllers.ListDebts(debtService, logg))
			r.Get("/{debtId}", controllers.GetDebt(debtService, logg))
		})

		r.Route("/api/v1/settlements/links", func(r chi.Router) {
			r.With(middleware.RateLimit(linkPolicy, rateStore, logg)).
				Post("/", controllers.CreateSettlementLink(linkService, logg))
			r.Get("/{linkId}", controllers.GetSettlementLink(linkService, logg))
		})
	})

	// Supplier and operator surface.
	r.Group(func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/api/v1/suppliers/{supplierId}", func(r chi.Router) {
			r.Get("/shipments", controllers.ListSupplierShipments(shipmentService, logg))
			r.Post("/shipments/{shipmentId}/ship", controllers.MarkShipmentShipped(shipmentService, logg))
			r.Put("/payout-account", controllers.UpsertPayoutAccount(payoutAccounts, logg))
		})

		r.Route("/api/v1/inventory/{sku}", func(r chi.Router) {
			r.Get("/movements", controllers.ListStockMovements(ledger, logg))
			r.Get("/stock", controllers.GetStock(ledger, logg))
			r.Post("/restock", controllers.RestockSKU(ledger, logg))
		})

		r.Route("/api/v1/dead-letters", func(r chi.Router) {
			r.Get("/", controllers.ListDeadLetters(deadLetterService, logg))
			r.Post("/{deadLetterId}/resolve", controllers.ResolveDeadLetter(deadLetterService, logg))
		})
	})

	return r
}

package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/angelmondragon/dropship-settlements/internal/deadletters"
	"github.com/angelmondragon/dropship-settlements/internal/debts"
	"github.com/angelmondragon/dropship-settlements/internal/inventory"
	"github.com/angelmondragon/dropship-settlements/internal/settlements"
	"github.com/angelmondragon/dropship-settlements/internal/shipments"
	infinitypaywebhook "github.com/angelmondragon/dropship-settlements/internal/webhooks/infinitypay"
	"github.com/angelmondragon/dropship-settlements/pkg/config"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
	"github.com/angelmondragon/dropship-settlements/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubDebtService struct{ listed int }

func (s *stubDebtService) RecordDebt(context.Context, debts.RecordDebtInput) (*models.DebtRecord, error) {
	return &models.DebtRecord{ID: uuid.New(), Status: enums.DebtStatusPending}, nil
}

func (s *stubDebtService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.DebtRecord, error) {
	return &models.DebtRecord{ID: uuid.New()}, nil
}

func (s *stubDebtService) ListBySeller(context.Context, debts.ListParams) (*debts.ListResult, error) {
	s.listed++
	return &debts.ListResult{}, nil
}

type stubLinkService struct{ created int }

func (s *stubLinkService) CreateSettlementLink(_ context.Context, sellerID uuid.UUID, ids []uuid.UUID) (*settlements.LinkResult, error) {
	s.created++
	return &settlements.LinkResult{
		Link:               &models.SettlementLink{ID: uuid.New(), SellerID: sellerID, Status: enums.SettlementLinkStatusPending},
		AwaitingPaymentIDs: ids,
	}, nil
}

func (s *stubLinkService) Get(context.Context, uuid.UUID, uuid.UUID) (*models.SettlementLink, error) {
	return &models.SettlementLink{ID: uuid.New()}, nil
}

type stubShipments struct{}

func (stubShipments) ListBySupplier(context.Context, uuid.UUID, pagination.Params) (*shipments.ListResult, error) {
	return &shipments.ListResult{}, nil
}

func (stubShipments) MarkShipped(_ context.Context, supplierID, shipmentID uuid.UUID) (*models.ShipmentArtifact, error) {
	return &models.ShipmentArtifact{ID: shipmentID, SupplierID: supplierID, Status: enums.ShipmentStatusShipped}, nil
}

type stubPayouts struct{}

func (stubPayouts) UpsertPayoutAccount(_ context.Context, supplierID uuid.UUID, handle string) (*models.SupplierPayoutAccount, error) {
	return &models.SupplierPayoutAccount{SupplierID: supplierID, InfinityPayHandle: handle}, nil
}

type stubLedger struct{}

func (stubLedger) SumMovements(context.Context, string) (int64, error) { return 3, nil }

func (stubLedger) ListMovements(context.Context, string, int) ([]models.StockMovement, error) {
	return nil, nil
}

func (stubLedger) Restock(_ context.Context, input inventory.RestockInput) (*models.StockMovement, error) {
	return &models.StockMovement{ID: uuid.New(), SKU: input.SKU, QuantityDelta: input.Quantity}, nil
}

type stubDeadLetters struct{}

func (stubDeadLetters) List(context.Context, deadletters.ListParams) (*deadletters.ListResult, error) {
	return &deadletters.ListResult{}, nil
}

func (stubDeadLetters) Resolve(_ context.Context, id uuid.UUID, note string) (*models.SettlementDeadLetter, error) {
	return &models.SettlementDeadLetter{ID: id, ResolutionNote: &note}, nil
}

type stubWebhook struct{ calls int }

func (s *stubWebhook) HandleWebhook(context.Context, []byte, string) (*infinitypaywebhook.Result, error) {
	s.calls++
	return &infinitypaywebhook.Result{InvoiceSlug: "inv-1", Status: enums.ConfirmationStatusProcessed}, nil
}

type routerFixture struct {
	handler http.Handler
	debts   *stubDebtService
	links   *stubLinkService
	webhook *stubWebhook
}

func newFixture(t *testing.T, cfg *config.Config) routerFixture {
	t.Helper()
	mr := miniredis.RunT(t)
	raw := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = raw.Close() })

	fx := routerFixture{debts: &stubDebtService{}, links: &stubLinkService{}, webhook: &stubWebhook{}}
	fx.handler = NewRouter(
		cfg,
		logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		stubPinger{},
		redis.NewFromRaw(raw),
		nil,
		fx.debts,
		fx.links,
		stubShipments{},
		stubPayouts{},
		stubLedger{},
		stubDeadLetters{},
		fx.webhook,
	)
	return fx
}

func testConfig() *config.Config {
	return &config.Config{
		App:       config.AppConfig{Env: "dev", Port: "8080"},
		RateLimit: config.RateLimitConfig{Window: time.Minute, WebhookIPLimit: 100, LinkSellerLimit: 100},
	}
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthRoutes(t *testing.T) {
	fx := newFixture(t, testConfig())
	for _, path := range []string{"/health/live", "/health/ready"} {
		rec := serve(fx.handler, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200 got %d (%s)", path, rec.Code, rec.Body.String())
		}
		if rec.Header().Get("X-Request-Id") == "" {
			t.Fatalf("%s: expected request id header", path)
		}
	}
}

func TestMetricsRoute(t *testing.T) {
	fx := newFixture(t, testConfig())
	rec := serve(fx.handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rec.Code)
	}
}

func TestSellerRoutesRequireSellerHeader(t *testing.T) {
	fx := newFixture(t, testConfig())
	rec := serve(fx.handler, httptest.NewRequest(http.MethodGet, "/api/v1/debts", nil))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/debts", nil)
	req.Header.Set("X-Seller-Id", uuid.NewString())
	rec = serve(fx.handler, req)
	if rec.Code != http.StatusOK || fx.debts.listed != 1 {
		t.Fatalf("expected listing, code=%d listed=%d", rec.Code, fx.debts.listed)
	}
}

func TestCreateLinkRequiresIdempotencyKeyAndReplays(t *testing.T) {
	fx := newFixture(t, testConfig())
	sellerID := uuid.NewString()
	body := `{"debt_ids":["` + uuid.NewString() + `"]}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements/links", strings.NewReader(body))
	req.Header.Set("X-Seller-Id", sellerID)
	rec := serve(fx.handler, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without key, got %d", rec.Code)
	}

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements/links", strings.NewReader(body))
		req.Header.Set("X-Seller-Id", sellerID)
		req.Header.Set("Idempotency-Key", "link-1")
		rec := serve(fx.handler, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("attempt %d: expected 201 got %d (%s)", i, rec.Code, rec.Body.String())
		}
	}
	if fx.links.created != 1 {
		t.Fatalf("expected one link minted, got %d", fx.links.created)
	}
}

func TestWebhookRouteIsPublicAndThrottled(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit.WebhookIPLimit = 1
	fx := newFixture(t, cfg)

	send := func() int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/infinitypay", strings.NewReader(`{"invoice_slug":"inv-1"}`))
		req.RemoteAddr = "10.1.1.1:4000"
		return serve(fx.handler, req).Code
	}
	if code := send(); code != http.StatusOK {
		t.Fatalf("expected 200 got %d", code)
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 got %d", code)
	}
	if fx.webhook.calls != 1 {
		t.Fatalf("expected one webhook call, got %d", fx.webhook.calls)
	}
}

func TestOperatorRoutes(t *testing.T) {
	fx := newFixture(t, testConfig())
	supplierID := uuid.NewString()

	rec := serve(fx.handler, httptest.NewRequest(http.MethodGet, "/api/v1/inventory/SKU-1/stock", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("stock: expected 200 got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/suppliers/"+supplierID+"/shipments/"+uuid.NewString()+"/ship", nil)
	req.Header.Set("Idempotency-Key", "ship-1")
	rec = serve(fx.handler, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("ship: expected 200 got %d (%s)", rec.Code, rec.Body.String())
	}

	rec = serve(fx.handler, httptest.NewRequest(http.MethodGet, "/api/v1/dead-letters", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("dead letters: expected 200 got %d", rec.Code)
	}
}

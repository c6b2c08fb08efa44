package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/dropship-settlements/internal/deadletters"
	"github.com/angelmondragon/dropship-settlements/internal/debts"
	"github.com/angelmondragon/dropship-settlements/internal/inventory"
	"github.com/angelmondragon/dropship-settlements/internal/settlements"
	"github.com/angelmondragon/dropship-settlements/internal/shipments"
	"github.com/angelmondragon/dropship-settlements/internal/suppliers"
	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/db/dbtest"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/infinitypay"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

type fakeGateway struct {
	mu sync.Mutex
	n  int
}

func (f *fakeGateway) CreateCheckoutLink(_ context.Context, _ infinitypay.CheckoutRequest) (*infinitypay.CheckoutLink, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.n++
	return &infinitypay.CheckoutLink{URL: fmt.Sprintf("https://checkout.infinitepay.io/test/%d", f.n)}, nil
}

type pipeline struct {
	client     *db.Client
	debts      debts.Service
	links      *settlements.Service
	linkRepo   settlements.Repository
	suppliers  suppliers.Repository
	ledger     *inventory.Ledger
	reconciler *Reconciler
}

func newPipeline(t *testing.T) *pipeline {
	t.Helper()
	client := dbtest.Client(t)
	conn := client.DB()

	debtRepo := debts.NewRepository(conn)
	debtSvc, err := debts.NewService(debtRepo, nil)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), nil)
	linkRepo := settlements.NewRepository(conn)
	supplierRepo := suppliers.NewRepository(conn)

	linkSvc, err := settlements.NewService(settlements.ServiceParams{
		Debts:     debtRepo,
		Links:     linkRepo,
		Suppliers: supplierRepo,
		Gateway:   &fakeGateway{},
		Outbox:    emitter,
		TxRunner:  client,
	})
	require.NoError(t, err)

	ledger, err := inventory.NewLedger(inventory.NewRepository(conn), nil, nil)
	require.NoError(t, err)
	recorder, err := shipments.NewRecorder(shipments.RecorderParams{
		Repo:     shipments.NewRepository(conn),
		Ledger:   ledger,
		Outbox:   emitter,
		TxRunner: client,
	})
	require.NoError(t, err)
	deadLetters, err := deadletters.NewService(deadletters.NewRepository(conn), nil, nil)
	require.NoError(t, err)

	reconciler, err := NewReconciler(ReconcilerParams{
		Links:       linkRepo,
		Debts:       debtRepo,
		Shipments:   recorder,
		DeadLetters: deadLetters,
		Outbox:      emitter,
		TxRunner:    client,
	})
	require.NoError(t, err)

	return &pipeline{
		client:     client,
		debts:      debtSvc,
		links:      linkSvc,
		linkRepo:   linkRepo,
		suppliers:  supplierRepo,
		ledger:     ledger,
		reconciler: reconciler,
	}
}

// pendingLink aggregates two debts (49.90 and 30.00) into one link.
func (p *pipeline) pendingLink(t *testing.T) (*models.SettlementLink, []models.DebtRecord) {
	t.Helper()
	ctx := context.Background()
	seller, supplier := uuid.New(), uuid.New()
	_, err := p.suppliers.UpsertPayoutAccount(ctx, supplier, "loja-teste")
	require.NoError(t, err)

	var batch []models.DebtRecord
	for _, line := range []struct {
		sku   string
		price string
		qty   int
	}{{"SKU-CAMISA-P", "24.95", 2}, {"SKU-BONE", "30.00", 1}} {
		debt, err := p.debts.RecordDebt(ctx, debts.RecordDebtInput{
			SellerID:   seller,
			SupplierID: supplier,
			OrderRef:   uuid.NewString(),
			Recipient:  types.Address{RecipientName: "Ana", Line1: "Rua B, 1", City: "Recife", State: "PE", PostalCode: "50000-000"},
			Lines: []debts.LineInput{{
				SKU: line.sku, ProductName: line.sku, Quantity: line.qty, UnitPrice: decimal.RequireFromString(line.price),
			}},
		})
		require.NoError(t, err)
		batch = append(batch, *debt)
	}

	result, err := p.links.CreateSettlementLink(ctx, seller, []uuid.UUID{batch[0].ID, batch[1].ID})
	require.NoError(t, err)
	require.Equal(t, int64(7990), result.Link.AmountCents)
	return result.Link, batch
}

func (p *pipeline) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, p.client.DB().Model(model).Count(&n).Error)
	return n
}

func (p *pipeline) debtStatus(t *testing.T, id uuid.UUID) enums.DebtStatus {
	t.Helper()
	var debt models.DebtRecord
	require.NoError(t, p.client.DB().First(&debt, "id = ?", id).Error)
	return debt.Status
}

func confirmation(link *models.SettlementLink, slug string, paid int64) Confirmation {
	payload, _ := json.Marshal(map[string]any{"invoice_slug": slug, "order_nsu": link.Reference, "paid_amount": paid})
	return Confirmation{
		InvoiceSlug:     slug,
		Reference:       link.Reference,
		AmountCents:     paid,
		PaidAmountCents: paid,
		Receipt: shipments.Receipt{
			Installments:  1,
			CaptureMethod: "pix",
			TransactionID: "tx-" + slug,
			ReceiptURL:    "https://recibo.infinitepay.io/" + slug,
			OrderNSU:      link.Reference,
		},
		Payload: payload,
	}
}

func TestHandleConfirmationSettlesBatch(t *testing.T) {
	p := newPipeline(t)
	link, batch := p.pendingLink(t)

	outcome, err := p.reconciler.HandleConfirmation(context.Background(), confirmation(link, "inv-1", 7990))
	require.NoError(t, err)

	assert.Equal(t, enums.SettlementLinkStatusCompleted, outcome.Status)
	assert.False(t, outcome.Duplicate)
	assert.ElementsMatch(t, []uuid.UUID{batch[0].ID, batch[1].ID}, outcome.SettledDebtIDs)
	require.Len(t, outcome.ShipmentIDs, 1)
	assert.Equal(t, shipments.ShipmentID(link.ID, link.SupplierID), outcome.ShipmentIDs[0])

	for _, debt := range batch {
		assert.Equal(t, enums.DebtStatusSettled, p.debtStatus(t, debt.ID))
	}

	stored, err := p.linkRepo.FindByID(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementLinkStatusCompleted, stored.Status)
	require.NotNil(t, stored.GatewayInvoiceSlug)
	assert.Equal(t, "inv-1", *stored.GatewayInvoiceSlug)
	require.NotNil(t, stored.CaptureMethod)
	assert.Equal(t, "pix", *stored.CaptureMethod)

	assert.Equal(t, int64(1), p.count(t, &models.ShipmentArtifact{}))
	assert.Equal(t, int64(2), p.count(t, &models.StockMovement{}))

	sum, err := p.ledger.SumMovements(context.Background(), "SKU-CAMISA-P")
	require.NoError(t, err)
	assert.Equal(t, int64(-2), sum)

	var completed int64
	require.NoError(t, p.client.DB().Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ?", enums.EventSettlementCompleted, link.ID).
		Count(&completed).Error)
	assert.Equal(t, int64(1), completed)
}

func TestHandleConfirmationAmountMismatchFailsBatch(t *testing.T) {
	p := newPipeline(t)
	link, batch := p.pendingLink(t)

	outcome, err := p.reconciler.HandleConfirmation(context.Background(), confirmation(link, "inv-short", 5000))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch))
	require.NotNil(t, outcome)
	assert.Equal(t, enums.SettlementLinkStatusFailed, outcome.Status)
	assert.ElementsMatch(t, []uuid.UUID{batch[0].ID, batch[1].ID}, outcome.FailedDebtIDs)

	for _, debt := range batch {
		assert.Equal(t, enums.DebtStatusFailed, p.debtStatus(t, debt.ID))
	}
	stored, err := p.linkRepo.FindByID(context.Background(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementLinkStatusFailed, stored.Status)
	require.NotNil(t, stored.FailureReason)
	assert.Equal(t, "amount_mismatch", *stored.FailureReason)

	assert.Equal(t, int64(0), p.count(t, &models.ShipmentArtifact{}))
	assert.Equal(t, int64(0), p.count(t, &models.StockMovement{}))

	var letters []models.SettlementDeadLetter
	require.NoError(t, p.client.DB().Find(&letters).Error)
	require.Len(t, letters, 1)
	assert.Equal(t, enums.DeadLetterAmountMismatch, letters[0].Reason)
	assert.Equal(t, "inv-short", letters[0].InvoiceSlug)

	// Redelivering the short payment is a duplicate, not a second failure.
	again, err := p.reconciler.HandleConfirmation(context.Background(), confirmation(link, "inv-short", 5000))
	require.NoError(t, err)
	assert.True(t, again.Duplicate)
	assert.Equal(t, int64(1), p.count(t, &models.SettlementDeadLetter{}))
}

func TestHandleConfirmationIsIdempotent(t *testing.T) {
	p := newPipeline(t)
	link, _ := p.pendingLink(t)
	c := confirmation(link, "inv-dup", 7990)

	first, err := p.reconciler.HandleConfirmation(context.Background(), c)
	require.NoError(t, err)
	events := p.count(t, &models.OutboxEvent{})

	for i := 0; i < 3; i++ {
		again, err := p.reconciler.HandleConfirmation(context.Background(), c)
		require.NoError(t, err)
		require.True(t, again.Duplicate)
		replay := *again
		replay.Duplicate = false
		assert.Equal(t, first.LinkID, replay.LinkID)
		assert.Equal(t, first.Status, replay.Status)
		assert.Equal(t, first.ShipmentIDs, replay.ShipmentIDs)
		assert.ElementsMatch(t, first.SettledDebtIDs, replay.SettledDebtIDs)
	}

	assert.Equal(t, int64(1), p.count(t, &models.ShipmentArtifact{}))
	assert.Equal(t, int64(2), p.count(t, &models.StockMovement{}))
	assert.Equal(t, events, p.count(t, &models.OutboxEvent{}))
}

func TestHandleConfirmationSecondInvoiceIsDeadLettered(t *testing.T) {
	p := newPipeline(t)
	link, _ := p.pendingLink(t)

	_, err := p.reconciler.HandleConfirmation(context.Background(), confirmation(link, "inv-a", 7990))
	require.NoError(t, err)

	_, err = p.reconciler.HandleConfirmation(context.Background(), confirmation(link, "inv-b", 7990))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var letter models.SettlementDeadLetter
	require.NoError(t, p.client.DB().First(&letter, "invoice_slug = ?", "inv-b").Error)
	assert.Equal(t, enums.DeadLetterLinkNotPayable, letter.Reason)
	assert.Equal(t, int64(1), p.count(t, &models.ShipmentArtifact{}))
}

func TestHandleConfirmationRejectsMalformedReference(t *testing.T) {
	p := newPipeline(t)

	_, err := p.reconciler.HandleConfirmation(context.Background(), Confirmation{
		InvoiceSlug: "inv-bad",
		Reference:   "order-42",
		AmountCents: 100,
		Payload:     json.RawMessage(`{"order_nsu":"order-42"}`),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformedReference))

	var letter models.SettlementDeadLetter
	require.NoError(t, p.client.DB().First(&letter).Error)
	assert.Equal(t, enums.DeadLetterMalformedReference, letter.Reason)
	assert.Nil(t, letter.SettlementLinkID)
}

func TestHandleConfirmationRejectsUnknownLink(t *testing.T) {
	p := newPipeline(t)

	_, err := p.reconciler.HandleConfirmation(context.Background(), Confirmation{
		InvoiceSlug: "inv-ghost",
		Reference:   settlements.EncodeReference(uuid.Must(uuid.NewV7())),
		AmountCents: 100,
		Payload:     json.RawMessage(`{}`),
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnknownSettlement))

	var letter models.SettlementDeadLetter
	require.NoError(t, p.client.DB().First(&letter).Error)
	assert.Equal(t, enums.DeadLetterUnknownSettlement, letter.Reason)
}

func TestHandleConfirmationOnExpiredLink(t *testing.T) {
	p := newPipeline(t)
	link, batch := p.pendingLink(t)

	ok, err := p.linkRepo.MarkExpired(context.Background(), link.ID, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)

	_, err = p.reconciler.HandleConfirmation(context.Background(), confirmation(link, "inv-late", 7990))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	var letter models.SettlementDeadLetter
	require.NoError(t, p.client.DB().First(&letter).Error)
	assert.Equal(t, enums.DeadLetterLinkNotPayable, letter.Reason)
	assert.Equal(t, int64(0), p.count(t, &models.ShipmentArtifact{}))
	assert.Equal(t, enums.DebtStatusAwaitingPayment, p.debtStatus(t, batch[0].ID))
}

func TestHandleConfirmationZeroPaidFailsLink(t *testing.T) {
	p := newPipeline(t)
	link, batch := p.pendingLink(t)

	c := confirmation(link, "inv-zero", 0)
	c.AmountCents = link.AmountCents

	outcome, err := p.reconciler.HandleConfirmation(context.Background(), c)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeAmountMismatch))
	require.NotNil(t, outcome)
	assert.Equal(t, enums.SettlementLinkStatusFailed, outcome.Status)

	for _, debt := range batch {
		assert.Equal(t, enums.DebtStatusFailed, p.debtStatus(t, debt.ID))
	}
	assert.Equal(t, int64(0), p.count(t, &models.ShipmentArtifact{}))
	assert.Equal(t, int64(0), p.count(t, &models.StockMovement{}))

	var letter models.SettlementDeadLetter
	require.NoError(t, p.client.DB().First(&letter, "invoice_slug = ?", "inv-zero").Error)
	assert.Equal(t, enums.DeadLetterAmountMismatch, letter.Reason)
}

func TestHandleConfirmationConcurrentDeliveries(t *testing.T) {
	p := newPipeline(t)
	link, batch := p.pendingLink(t)
	c := confirmation(link, "inv-race", 7990)

	const workers = 8
	outcomes := make([]*SettlementOutcome, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = p.reconciler.HandleConfirmation(context.Background(), c)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, outcomes[i])
		assert.Equal(t, enums.SettlementLinkStatusCompleted, outcomes[i].Status)
		if !outcomes[i].Duplicate {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, int64(1), p.count(t, &models.ShipmentArtifact{}))
	assert.Equal(t, int64(2), p.count(t, &models.StockMovement{}))
	for _, debt := range batch {
		assert.Equal(t, enums.DebtStatusSettled, p.debtStatus(t, debt.ID))
	}
}

func TestHandleConfirmationResumesAfterCompletion(t *testing.T) {
	p := newPipeline(t)
	link, batch := p.pendingLink(t)
	ctx := context.Background()

	// Link completed, then the process died before touching debts.
	ok, err := p.linkRepo.MarkCompleted(ctx, link.ID, settlements.Completion{
		InvoiceSlug:     "inv-crash",
		PaidAmountCents: link.AmountCents,
		Installments:    1,
		CaptureMethod:   "pix",
		TransactionID:   "tx-inv-crash",
		ReceiptURL:      "https://recibo.infinitepay.io/inv-crash",
	}, time.Now().UTC())
	require.NoError(t, err)
	require.True(t, ok)
	for _, debt := range batch {
		assert.Equal(t, enums.DebtStatusAwaitingPayment, p.debtStatus(t, debt.ID))
	}

	outcome, err := p.reconciler.HandleConfirmation(ctx, confirmation(link, "inv-crash", 7990))
	require.NoError(t, err)
	assert.Equal(t, enums.SettlementLinkStatusCompleted, outcome.Status)
	assert.ElementsMatch(t, []uuid.UUID{batch[0].ID, batch[1].ID}, outcome.SettledDebtIDs)
	require.Len(t, outcome.ShipmentIDs, 1)

	for _, debt := range batch {
		assert.Equal(t, enums.DebtStatusSettled, p.debtStatus(t, debt.ID))
	}
	assert.Equal(t, int64(1), p.count(t, &models.ShipmentArtifact{}))
	assert.Equal(t, int64(2), p.count(t, &models.StockMovement{}))
}

func TestGroupBySupplierKeepsFirstSeenOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	groups := groupBySupplier([]models.DebtRecord{
		{ID: uuid.New(), SupplierID: b},
		{ID: uuid.New(), SupplierID: a},
		{ID: uuid.New(), SupplierID: b},
	})
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, b, groups[0][0].SupplierID)
	assert.Equal(t, a, groups[1][0].SupplierID)
}

package shipments

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/internal/inventory"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/payloads"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

var shipmentNamespace = uuid.MustParse("8d6f4a3e-2b7c-4e91-a5d0-6c3b9f1e2d47")

// ShipmentID derives the artifact key for one supplier's share of a link.
func ShipmentID(linkID, supplierID uuid.UUID) uuid.UUID {
	return uuid.NewSHA1(shipmentNamespace, []byte("shipment|"+linkID.String()+"|"+supplierID.String()))
}

// Receipt is the gateway payment proof copied onto the artifact.
type Receipt struct {
	Installments  int    `json:"installments"`
	CaptureMethod string `json:"capture_method"`
	TransactionID string `json:"transaction_id"`
	ReceiptURL    string `json:"receipt_url"`
	OrderNSU      string `json:"order_nsu"`
}

type movementAppender interface {
	Append(ctx context.Context, input inventory.AppendInput) (*models.StockMovement, error)
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// RecorderParams wires a Recorder.
type RecorderParams struct {
	Repo     Repository
	Ledger   movementAppender
	Outbox   outboxEmitter
	TxRunner txRunner
	Logger   *logger.Logger
	Clock    func() time.Time
}

// Recorder creates shipment artifacts and their stock movements.
type Recorder struct {
	repo     Repository
	ledger   movementAppender
	outbox   outboxEmitter
	txRunner txRunner
	logg     *logger.Logger
	now      func() time.Time
}

// ListResult wraps a page of shipments.
type ListResult struct {
	Items  []models.ShipmentArtifact `json:"items"`
	Cursor string                    `json:"cursor"`
}

// NewRecorder builds a shipment recorder.
func NewRecorder(params RecorderParams) (*Recorder, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipment repository required")
	}
	if params.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory ledger required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if params.TxRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Recorder{
		repo:     params.Repo,
		ledger:   params.Ledger,
		outbox:   params.Outbox,
		txRunner: params.TxRunner,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// RecordShipment stores the artifact for debts (all owned by one supplier of
// link) and appends one remove movement per SKU. Repeated calls return the
// stored artifact and append nothing new.
func (r *Recorder) RecordShipment(ctx context.Context, link *models.SettlementLink, debts []models.DebtRecord, receipt Receipt) (*models.ShipmentArtifact, error) {
	if link == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "settlement link required")
	}
	if len(debts) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one debt required")
	}
	supplierID := debts[0].SupplierID
	for _, debt := range debts {
		if debt.SupplierID != supplierID {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipment debts must share a supplier")
		}
		if !link.DebtRecordIDs.Contains(debt.ID) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "debt does not belong to settlement link").
				WithDetails(map[string]any{"debt_id": debt.ID})
		}
	}

	artifact := buildArtifact(link, supplierID, debts, receipt, r.now())
	err := r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		inserted, err := r.repo.WithTx(tx).InsertIfAbsent(ctx, artifact)
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		return r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventShipmentRecorded,
			AggregateType: enums.AggregateShipment,
			AggregateID:   artifact.ID,
			Actor:         outbox.SystemActor("shipment_recorder"),
			Data: payloads.ShipmentRecordedEvent{
				ShipmentID: artifact.ID,
				LinkID:     link.ID,
				SupplierID: supplierID,
				TotalItems: artifact.TotalItems,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shipment")
	}

	stored, err := r.repo.FindByID(ctx, artifact.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read back shipment")
	}
	if stored == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "shipment missing after insert")
	}

	// Movements derive from the stored parcels so a replay never re-prices.
	for _, movement := range movementsFor(stored) {
		if _, err := r.ledger.Append(ctx, movement); err != nil {
			return nil, err
		}
	}

	if r.logg != nil {
		logCtx := r.logg.WithFields(ctx, map[string]any{
			"shipment_id": stored.ID.String(),
			"supplier_id": supplierID.String(),
			"total_items": stored.TotalItems,
		})
		r.logg.Info(logCtx, "shipment recorded")
	}
	return stored, nil
}

func buildArtifact(link *models.SettlementLink, supplierID uuid.UUID, debts []models.DebtRecord, receipt Receipt, now time.Time) *models.ShipmentArtifact {
	parcels := make(types.Parcels, 0, len(debts))
	var amount int64
	for _, debt := range debts {
		parcels = append(parcels, types.Parcel{
			DebtID:    debt.ID,
			OrderRef:  debt.OrderRef,
			ShopRef:   debt.ShopRef,
			Recipient: debt.Recipient,
			Items:     debt.LineItems,
		})
		amount += debt.TotalAmountCents
	}
	paid := link.AmountCents
	if link.PaidAmountCents != nil {
		paid = *link.PaidAmountCents
	}
	return &models.ShipmentArtifact{
		ID:               ShipmentID(link.ID, supplierID),
		SettlementLinkID: link.ID,
		SupplierID:       supplierID,
		SellerID:         link.SellerID,
		Parcels:          parcels,
		TotalItems:       parcels.ItemCount(),
		AmountCents:      amount,
		Status:           enums.ShipmentStatusPaid,
		PaidAmountCents:  paid,
		Installments:     receipt.Installments,
		CaptureMethod:    receipt.CaptureMethod,
		TransactionID:    receipt.TransactionID,
		OrderNSU:         receipt.OrderNSU,
		ReceiptURL:       receipt.ReceiptURL,
		CreatedAt:        now,
	}
}

func movementsFor(artifact *models.ShipmentArtifact) []inventory.AppendInput {
	type skuTotal struct {
		productRef string
		quantity   int64
	}
	totals := map[string]*skuTotal{}
	for _, parcel := range artifact.Parcels {
		for _, item := range parcel.Items {
			sku := strings.TrimSpace(item.SKU)
			entry, ok := totals[sku]
			if !ok {
				entry = &skuTotal{productRef: item.ProductRef}
				totals[sku] = entry
			}
			entry.quantity += int64(item.Quantity)
		}
	}
	skus := make([]string, 0, len(totals))
	for sku := range totals {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	inputs := make([]inventory.AppendInput, 0, len(skus))
	for _, sku := range skus {
		entry := totals[sku]
		inputs = append(inputs, inventory.AppendInput{
			SKU:           sku,
			SupplierID:    artifact.SupplierID,
			ProductRef:    entry.productRef,
			QuantityDelta: -entry.quantity,
			Operation:     enums.StockOperationRemove,
			CauseRef:      artifact.ID.String(),
			OccurredAt:    artifact.CreatedAt,
		})
	}
	return inputs
}

// Get returns a supplier's shipment.
func (r *Recorder) Get(ctx context.Context, supplierID, shipmentID uuid.UUID) (*models.ShipmentArtifact, error) {
	artifact, err := r.repo.FindByID(ctx, shipmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipment")
	}
	if artifact == nil || artifact.SupplierID != supplierID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipment not found")
	}
	return artifact, nil
}

// ListBySupplier pages a supplier's shipments, newest first.
func (r *Recorder) ListBySupplier(ctx context.Context, supplierID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if supplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id required")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, next, err := r.repo.ListBySupplier(ctx, supplierID, params.Limit, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list shipments")
	}
	return &ListResult{Items: rows, Cursor: pagination.EncodeCursor(next)}, nil
}

// MarkShipped moves a paid shipment to shipped. Marking an already shipped
// artifact returns it unchanged.
func (r *Recorder) MarkShipped(ctx context.Context, supplierID, shipmentID uuid.UUID) (*models.ShipmentArtifact, error) {
	if _, err := r.repo.MarkShipped(ctx, supplierID, shipmentID, r.now()); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark shipped")
	}
	artifact, err := r.Get(ctx, supplierID, shipmentID)
	if err != nil {
		return nil, err
	}
	if artifact.Status != enums.ShipmentStatusShipped {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "shipment cannot be marked shipped").
			WithDetails(map[string]any{"status": artifact.Status})
	}
	return artifact, nil
}

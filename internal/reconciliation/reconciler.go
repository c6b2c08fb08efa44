package reconciliation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/internal/deadletters"
	"github.com/angelmondragon/dropship-settlements/internal/debts"
	"github.com/angelmondragon/dropship-settlements/internal/settlements"
	"github.com/angelmondragon/dropship-settlements/internal/shipments"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/payloads"
)

const (
	failureAmountMismatch = "amount_mismatch"
	// maxRaceRetries bounds re-reads after losing a conditional link write.
	maxRaceRetries = 3
)

type shipmentRecorder interface {
	RecordShipment(ctx context.Context, link *models.SettlementLink, debts []models.DebtRecord, receipt shipments.Receipt) (*models.ShipmentArtifact, error)
}

type deadLetterRecorder interface {
	Record(ctx context.Context, entry deadletters.Entry) error
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ReconcilerParams wires a Reconciler.
type ReconcilerParams struct {
	Links       settlements.Repository
	Debts       debts.Repository
	Shipments   shipmentRecorder
	DeadLetters deadLetterRecorder
	Outbox      outboxEmitter
	TxRunner    txRunner
	Logger      *logger.Logger
	Metrics     *metrics.SettlementMetrics
	Clock       func() time.Time
}

// Reconciler applies gateway confirmations to settlement links. Every write
// is a single-row conditional update or an insert-if-absent, so a
// confirmation can be handled any number of times.
type Reconciler struct {
	links       settlements.Repository
	debts       debts.Repository
	shipments   shipmentRecorder
	deadLetters deadLetterRecorder
	outbox      outboxEmitter
	txRunner    txRunner
	logg        *logger.Logger
	metrics     *metrics.SettlementMetrics
	now         func() time.Time
}

// NewReconciler builds the confirmation state machine.
func NewReconciler(params ReconcilerParams) (*Reconciler, error) {
	switch {
	case params.Links == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "link repository required")
	case params.Debts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "debt repository required")
	case params.Shipments == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "shipment recorder required")
	case params.DeadLetters == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "dead letter recorder required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Reconciler{
		links:       params.Links,
		debts:       params.Debts,
		shipments:   params.Shipments,
		deadLetters: params.DeadLetters,
		outbox:      params.Outbox,
		txRunner:    params.TxRunner,
		logg:        params.Logger,
		metrics:     params.Metrics,
		now:         now,
	}, nil
}

// HandleConfirmation settles or fails the link named by c.Reference.
//
// Errors coded MALFORMED_REFERENCE, UNKNOWN_SETTLEMENT, AMOUNT_MISMATCH and
// STATE_CONFLICT are final and have already been dead-lettered. Any other
// error is transient and the confirmation should be handled again.
func (r *Reconciler) HandleConfirmation(ctx context.Context, c Confirmation) (*SettlementOutcome, error) {
	if c.InvoiceSlug == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice slug required")
	}
	linkID, err := settlements.DecodeReference(c.Reference)
	if err != nil {
		return nil, r.reject(ctx, c, enums.DeadLetterMalformedReference, nil, err)
	}
	if r.logg != nil {
		ctx = r.logg.WithLinkID(ctx, linkID.String())
	}

	link, err := r.links.FindByID(ctx, linkID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement link")
	}
	if link == nil {
		notFound := pkgerrors.New(pkgerrors.CodeUnknownSettlement, "no settlement link for reference").
			WithDetails(map[string]any{"reference": c.Reference})
		return nil, r.reject(ctx, c, enums.DeadLetterUnknownSettlement, &linkID, notFound)
	}

	for attempt := 0; attempt < maxRaceRetries; attempt++ {
		outcome, done, err := r.apply(ctx, c, link)
		if done {
			return outcome, err
		}
		if link, err = r.links.FindByID(ctx, linkID); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload settlement link")
		}
		if link == nil {
			return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement link vanished")
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "settlement link kept changing under confirmation")
}

// apply runs one pass of the state machine. done=false means a conditional
// write lost a race and the link must be re-read.
func (r *Reconciler) apply(ctx context.Context, c Confirmation, link *models.SettlementLink) (*SettlementOutcome, bool, error) {
	switch link.Status {
	case enums.SettlementLinkStatusCompleted:
		if conflict := r.otherInvoice(ctx, c, link); conflict != nil {
			return nil, true, conflict
		}
		outcome, err := r.completeDownstream(ctx, link)
		if err != nil {
			return nil, true, err
		}
		outcome.Duplicate = true
		r.metrics.IncConfirmation("duplicate")
		return outcome, true, nil

	case enums.SettlementLinkStatusFailed:
		if link.FailureReason == nil || *link.FailureReason != failureAmountMismatch {
			return nil, true, r.notPayable(ctx, c, link, "settlement link failed during aggregation")
		}
		if conflict := r.otherInvoice(ctx, c, link); conflict != nil {
			return nil, true, conflict
		}
		outcome, err := r.failDownstream(ctx, c, link)
		if err != nil {
			return nil, true, err
		}
		// The first attempt may have failed the link but not reached the dead letter.
		if err := r.deadLetters.Record(ctx, deadletters.Entry{
			Reason:      enums.DeadLetterAmountMismatch,
			InvoiceSlug: c.InvoiceSlug,
			Reference:   c.Reference,
			LinkID:      &link.ID,
			Payload:     c.Payload,
			Err:         pkgerrors.New(pkgerrors.CodeAmountMismatch, "confirmed amount does not match settlement link"),
		}); err != nil {
			return nil, true, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record dead letter")
		}
		outcome.Duplicate = true
		r.metrics.IncConfirmation("duplicate")
		return outcome, true, nil

	case enums.SettlementLinkStatusExpired:
		return nil, true, r.notPayable(ctx, c, link, "settlement link expired and its debts were released")

	case enums.SettlementLinkStatusPending:
	default:
		return nil, true, pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("unknown link status %q", link.Status))
	}

	now := r.now()
	if confirmed := c.PaidAmountCents; confirmed != link.AmountCents {
		slug := c.InvoiceSlug
		ok, err := r.links.MarkFailed(ctx, link.ID, failureAmountMismatch, &slug, now)
		if err != nil {
			return nil, true, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail settlement link")
		}
		if !ok {
			return nil, false, nil
		}
		reason := failureAmountMismatch
		link.Status = enums.SettlementLinkStatusFailed
		link.FailureReason = &reason
		link.GatewayInvoiceSlug = &slug
		outcome, err := r.failDownstream(ctx, c, link)
		if err != nil {
			return nil, true, err
		}
		mismatch := pkgerrors.New(pkgerrors.CodeAmountMismatch, "confirmed amount does not match settlement link").
			WithDetails(map[string]any{
				"link_id":         link.ID,
				"expected_cents":  link.AmountCents,
				"confirmed_cents": confirmed,
				"failed_debt_ids": outcome.FailedDebtIDs,
			})
		return outcome, true, r.reject(ctx, c, enums.DeadLetterAmountMismatch, &link.ID, mismatch)
	}

	ok, err := r.links.MarkCompleted(ctx, link.ID, settlements.Completion{
		InvoiceSlug:     c.InvoiceSlug,
		PaidAmountCents: c.PaidAmountCents,
		Installments:    c.Receipt.Installments,
		CaptureMethod:   c.Receipt.CaptureMethod,
		TransactionID:   c.Receipt.TransactionID,
		ReceiptURL:      c.Receipt.ReceiptURL,
	}, now)
	if err != nil {
		return nil, true, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete settlement link")
	}
	if !ok {
		return nil, false, nil
	}

	completed, err := r.links.FindByID(ctx, link.ID)
	if err != nil || completed == nil {
		return nil, true, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload completed link")
	}
	outcome, err := r.completeDownstream(ctx, completed)
	if err != nil {
		return nil, true, err
	}
	r.metrics.IncConfirmation("completed")
	if r.logg != nil {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"invoice_slug":  c.InvoiceSlug,
			"settled_debts": len(outcome.SettledDebtIDs),
			"shipments":     len(outcome.ShipmentIDs),
		}), "settlement completed")
	}
	return outcome, true, nil
}

// completeDownstream settles the link's debts, records one shipment per
// supplier and emits settlement_completed. Each step is idempotent.
func (r *Reconciler) completeDownstream(ctx context.Context, link *models.SettlementLink) (*SettlementOutcome, error) {
	batch, err := r.debts.FindByIDs(ctx, link.DebtRecordIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load link debts")
	}
	at := r.now()
	if link.CompletedAt != nil {
		at = *link.CompletedAt
	}

	var settled []models.DebtRecord
	for _, debt := range batch {
		if !heldBy(debt, link.ID) {
			r.warn(ctx, "debt no longer held by completed link", debt.ID)
			continue
		}
		switch debt.Status {
		case enums.DebtStatusSettled:
			settled = append(settled, debt)
		case enums.DebtStatusAwaitingPayment:
			if _, err := r.debts.MarkSettled(ctx, debt.ID, link.ID, at); err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "settle debt")
			}
			current, err := r.debts.FindByID(ctx, debt.ID)
			if err != nil || current == nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload debt")
			}
			if current.Status != enums.DebtStatusSettled {
				r.warn(ctx, "debt could not be settled", debt.ID)
				continue
			}
			settled = append(settled, *current)
		default:
			r.warn(ctx, "debt in unexpected state for completed link", debt.ID)
		}
	}

	receipt := shipments.Receipt{OrderNSU: link.Reference}
	if link.Installments != nil {
		receipt.Installments = *link.Installments
	}
	if link.CaptureMethod != nil {
		receipt.CaptureMethod = *link.CaptureMethod
	}
	if link.TransactionID != nil {
		receipt.TransactionID = *link.TransactionID
	}
	if link.ReceiptURL != nil {
		receipt.ReceiptURL = *link.ReceiptURL
	}

	shipmentIDs := []uuid.UUID{}
	for _, group := range groupBySupplier(settled) {
		artifact, err := r.shipments.RecordShipment(ctx, link, group, receipt)
		if err != nil {
			return nil, err
		}
		shipmentIDs = append(shipmentIDs, artifact.ID)
	}

	settledIDs := idsOf(settled)
	invoiceSlug := ""
	if link.GatewayInvoiceSlug != nil {
		invoiceSlug = *link.GatewayInvoiceSlug
	}
	paid := link.AmountCents
	if link.PaidAmountCents != nil {
		paid = *link.PaidAmountCents
	}
	err = r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementCompleted,
			AggregateType: enums.AggregateSettlementLink,
			AggregateID:   link.ID,
			Actor:         outbox.GatewayActor(invoiceSlug),
			Data: payloads.SettlementCompletedEvent{
				LinkID:          link.ID,
				SellerID:        link.SellerID,
				SupplierID:      link.SupplierID,
				InvoiceSlug:     invoiceSlug,
				PaidAmountCents: paid,
				SettledDebtIDs:  settledIDs,
				ShipmentIDs:     shipmentIDs,
				CompletedAt:     at,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement completed")
	}

	return &SettlementOutcome{
		LinkID:         link.ID,
		Status:         enums.SettlementLinkStatusCompleted,
		SettledDebtIDs: settledIDs,
		ShipmentIDs:    shipmentIDs,
	}, nil
}

// failDownstream fails the link's debts and emits settlement_failed.
func (r *Reconciler) failDownstream(ctx context.Context, c Confirmation, link *models.SettlementLink) (*SettlementOutcome, error) {
	batch, err := r.debts.FindByIDs(ctx, link.DebtRecordIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load link debts")
	}
	at := r.now()
	if link.FailedAt != nil {
		at = *link.FailedAt
	}

	failed := []uuid.UUID{}
	for _, debt := range batch {
		if !heldBy(debt, link.ID) {
			continue
		}
		switch debt.Status {
		case enums.DebtStatusFailed:
			failed = append(failed, debt.ID)
		case enums.DebtStatusAwaitingPayment:
			ok, err := r.debts.MarkFailed(ctx, debt.ID, link.ID, at)
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fail debt")
			}
			if ok {
				failed = append(failed, debt.ID)
			}
		}
	}

	invoiceSlug := c.InvoiceSlug
	if link.GatewayInvoiceSlug != nil {
		invoiceSlug = *link.GatewayInvoiceSlug
	}
	err = r.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return r.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementFailed,
			AggregateType: enums.AggregateSettlementLink,
			AggregateID:   link.ID,
			Actor:         outbox.GatewayActor(invoiceSlug),
			Data: payloads.SettlementFailedEvent{
				LinkID:               link.ID,
				SellerID:             link.SellerID,
				SupplierID:           link.SupplierID,
				InvoiceSlug:          invoiceSlug,
				Reason:               failureAmountMismatch,
				ExpectedAmountCents:  link.AmountCents,
				ConfirmedAmountCents: c.PaidAmountCents,
				FailedDebtIDs:        failed,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement failed")
	}

	return &SettlementOutcome{
		LinkID:         link.ID,
		Status:         enums.SettlementLinkStatusFailed,
		SettledDebtIDs: []uuid.UUID{},
		FailedDebtIDs:  failed,
		ShipmentIDs:    []uuid.UUID{},
	}, nil
}

// otherInvoice rejects a second, different payment for an already decided link.
func (r *Reconciler) otherInvoice(ctx context.Context, c Confirmation, link *models.SettlementLink) error {
	if link.GatewayInvoiceSlug == nil || *link.GatewayInvoiceSlug == c.InvoiceSlug {
		return nil
	}
	return r.notPayable(ctx, c, link, "settlement link already decided by another invoice")
}

func (r *Reconciler) notPayable(ctx context.Context, c Confirmation, link *models.SettlementLink, message string) error {
	err := pkgerrors.New(pkgerrors.CodeStateConflict, message).WithDetails(map[string]any{
		"link_id": link.ID,
		"status":  link.Status,
	})
	return r.reject(ctx, c, enums.DeadLetterLinkNotPayable, &link.ID, err)
}

// reject dead-letters c and returns cause, or a retryable error when the
// dead letter itself could not be written.
func (r *Reconciler) reject(ctx context.Context, c Confirmation, reason enums.DeadLetterReason, linkID *uuid.UUID, cause error) error {
	if err := r.deadLetters.Record(ctx, deadletters.Entry{
		Reason:      reason,
		InvoiceSlug: c.InvoiceSlug,
		Reference:   c.Reference,
		LinkID:      linkID,
		Payload:     c.Payload,
		Err:         cause,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record dead letter")
	}
	r.metrics.IncConfirmation(string(reason))
	return cause
}

func (r *Reconciler) warn(ctx context.Context, msg string, debtID uuid.UUID) {
	if r.logg != nil {
		r.logg.Warn(r.logg.WithField(ctx, "debt_id", debtID.String()), msg)
	}
}

func heldBy(debt models.DebtRecord, linkID uuid.UUID) bool {
	return debt.SettlementLinkID != nil && *debt.SettlementLinkID == linkID
}

// groupBySupplier keeps first-seen supplier order.
func groupBySupplier(batch []models.DebtRecord) [][]models.DebtRecord {
	index := map[uuid.UUID]int{}
	var groups [][]models.DebtRecord
	for _, debt := range batch {
		i, ok := index[debt.SupplierID]
		if !ok {
			i = len(groups)
			index[debt.SupplierID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], debt)
	}
	return groups
}

func idsOf(batch []models.DebtRecord) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(batch))
	for _, debt := range batch {
		ids = append(ids, debt.ID)
	}
	return ids
}

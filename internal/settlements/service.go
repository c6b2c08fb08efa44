package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/internal/debts"
	"github.com/angelmondragon/dropship-settlements/internal/suppliers"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	dbtypes "github.com/angelmondragon/dropship-settlements/pkg/db/types"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
	"github.com/angelmondragon/dropship-settlements/pkg/infinitypay"
	"github.com/angelmondragon/dropship-settlements/pkg/logger"
	"github.com/angelmondragon/dropship-settlements/pkg/metrics"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox"
	"github.com/angelmondragon/dropship-settlements/pkg/outbox/payloads"
)

const failureAggregation = "aggregation_failed"

type checkoutCreator interface {
	CreateCheckoutLink(ctx context.Context, req infinitypay.CheckoutRequest) (*infinitypay.CheckoutLink, error)
}

type outboxEmitter interface {
	EmitIfNotExists(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// LinkResult reports the link and exactly which debts now await its payment.
type LinkResult struct {
	Link               *models.SettlementLink `json:"link"`
	AwaitingPaymentIDs []uuid.UUID            `json:"awaiting_payment_ids"`
	FailedIDs          []uuid.UUID            `json:"failed_ids,omitempty"`
}

// ServiceParams wires the aggregation service.
type ServiceParams struct {
	Debts     debts.Repository
	Links     Repository
	Suppliers suppliers.Repository
	Gateway   checkoutCreator
	Outbox    outboxEmitter
	TxRunner  txRunner
	Logger    *logger.Logger
	Metrics   *metrics.SettlementMetrics
	Clock     func() time.Time
}

// Service aggregates pending debts into settlement links.
type Service struct {
	debts     debts.Repository
	links     Repository
	suppliers suppliers.Repository
	gateway   checkoutCreator
	outbox    outboxEmitter
	txRunner  txRunner
	logg      *logger.Logger
	metrics   *metrics.SettlementMetrics
	now       func() time.Time
}

// NewService builds a link aggregator.
func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Debts == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "debt repository required")
	case params.Links == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "link repository required")
	case params.Suppliers == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "supplier repository required")
	case params.Gateway == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "payment gateway required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	case params.TxRunner == nil:
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	now := params.Clock
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{
		debts:     params.Debts,
		links:     params.Links,
		suppliers: params.Suppliers,
		gateway:   params.Gateway,
		outbox:    params.Outbox,
		txRunner:  params.TxRunner,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// CreateSettlementLink mints one hosted checkout for debtIDs.
//
// When some debts could not be moved to awaiting_payment the link is pruned
// to the ones that were, re-minted, and returned together with a
// PARTIAL_AGGREGATION_FAILURE error. Callers must inspect the result even
// when err is non-nil in that case.
func (s *Service) CreateSettlementLink(ctx context.Context, sellerID uuid.UUID, debtIDs []uuid.UUID) (*LinkResult, error) {
	batch, handle, err := s.validateBatch(ctx, sellerID, debtIDs)
	if err != nil {
		s.metrics.IncLink("rejected")
		return nil, err
	}

	linkID, err := uuid.NewV7()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "mint link id")
	}
	ctx = s.withLink(ctx, linkID)
	reference := EncodeReference(linkID)

	checkout, err := s.mintCheckout(ctx, handle, reference, batch)
	if err != nil {
		s.metrics.IncLink("gateway_error")
		return nil, err
	}

	ids := make(dbtypes.UUIDArray, 0, len(batch))
	for _, debt := range batch {
		ids = append(ids, debt.ID)
	}
	link := &models.SettlementLink{
		ID:            linkID,
		SellerID:      sellerID,
		SupplierID:    batch[0].SupplierID,
		DebtRecordIDs: ids,
		AmountCents:   sumDebts(batch),
		DebtCount:     len(ids),
		Status:        enums.SettlementLinkStatusPending,
		CheckoutURL:   checkout.URL,
		Reference:     reference,
	}
	if err := s.links.Create(ctx, link); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist settlement link")
	}

	var succeeded, failed []uuid.UUID
	var transitionErr error
	for _, debt := range batch {
		ok, err := s.debts.MarkAwaitingPayment(ctx, debt.ID, linkID)
		switch {
		case err != nil:
			failed = append(failed, debt.ID)
			transitionErr = multierr.Append(transitionErr, fmt.Errorf("debt %s: %w", debt.ID, err))
		case !ok:
			failed = append(failed, debt.ID)
			transitionErr = multierr.Append(transitionErr, fmt.Errorf("debt %s: no longer pending", debt.ID))
		default:
			succeeded = append(succeeded, debt.ID)
		}
	}

	if len(failed) == 0 {
		if err := s.emitCreated(ctx, link); err != nil {
			return nil, err
		}
		s.metrics.IncLink("created")
		s.info(ctx, "settlement link created")
		return &LinkResult{Link: link, AwaitingPaymentIDs: succeeded}, nil
	}

	return s.handlePartial(ctx, link, handle, batch, succeeded, failed, transitionErr)
}

func (s *Service) handlePartial(ctx context.Context, link *models.SettlementLink, handle string, batch []models.DebtRecord, succeeded, failed []uuid.UUID, cause error) (*LinkResult, error) {
	details := map[string]any{
		"link_id":       link.ID,
		"succeeded_ids": nonNil(succeeded),
		"failed_ids":    failed,
	}
	result := &LinkResult{Link: link, AwaitingPaymentIDs: nonNil(succeeded), FailedIDs: failed}

	if len(succeeded) == 0 {
		if _, err := s.links.MarkFailed(ctx, link.ID, failureAggregation, nil, s.now()); err != nil {
			cause = multierr.Append(cause, err)
		}
		if reloaded, err := s.links.FindByID(ctx, link.ID); err == nil && reloaded != nil {
			result.Link = reloaded
		}
		s.metrics.IncLink("failed")
		s.warn(ctx, "settlement link failed: no debt could be aggregated", cause)
		return result, pkgerrors.Wrap(pkgerrors.CodePartialAggregation, cause, "no debt could be moved to awaiting payment").WithDetails(details)
	}

	kept := make([]models.DebtRecord, 0, len(succeeded))
	keep := link.DebtRecordIDs.Only(succeeded)
	for _, debt := range batch {
		if keep.Contains(debt.ID) {
			kept = append(kept, debt)
		}
	}
	amount := sumDebts(kept)
	if _, err := s.links.Prune(ctx, link.ID, keep, amount); err != nil {
		cause = multierr.Append(cause, err)
	} else {
		link.DebtRecordIDs = keep
		link.DebtCount = len(keep)
		link.AmountCents = amount
		link.CheckoutURL = ""
		checkout, err := s.mintCheckout(ctx, handle, link.Reference, kept)
		if err != nil {
			cause = multierr.Append(cause, err)
			details["checkout_stale"] = true
		} else if _, err := s.links.UpdateCheckoutURL(ctx, link.ID, checkout.URL); err != nil {
			cause = multierr.Append(cause, err)
			details["checkout_stale"] = true
		} else {
			link.CheckoutURL = checkout.URL
		}
	}
	if err := s.emitCreated(ctx, link); err != nil {
		cause = multierr.Append(cause, err)
	}

	details["amount_cents"] = link.AmountCents
	s.metrics.IncLink("partial")
	s.warn(ctx, "settlement link created for a subset of debts", cause)
	return result, pkgerrors.Wrap(pkgerrors.CodePartialAggregation, cause, "some debts could not be moved to awaiting payment").WithDetails(details)
}

func (s *Service) validateBatch(ctx context.Context, sellerID uuid.UUID, debtIDs []uuid.UUID) ([]models.DebtRecord, string, error) {
	if sellerID == uuid.Nil {
		return nil, "", invalidBatch("seller id required", nil)
	}
	if len(debtIDs) == 0 {
		return nil, "", invalidBatch("at least one debt id required", nil)
	}
	seen := make(map[uuid.UUID]struct{}, len(debtIDs))
	var duplicates []uuid.UUID
	for _, id := range debtIDs {
		if _, ok := seen[id]; ok {
			duplicates = append(duplicates, id)
			continue
		}
		seen[id] = struct{}{}
	}
	if len(duplicates) > 0 {
		return nil, "", invalidBatch("duplicate debt ids", map[string]any{"duplicate_ids": duplicates})
	}

	batch, err := s.debts.FindByIDs(ctx, debtIDs)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load debts")
	}

	found := make(map[uuid.UUID]struct{}, len(batch))
	details := map[string]any{}
	var foreign, ineligible []uuid.UUID
	supplierSet := map[uuid.UUID]struct{}{}
	for _, debt := range batch {
		found[debt.ID] = struct{}{}
		if debt.SellerID != sellerID {
			foreign = append(foreign, debt.ID)
			continue
		}
		supplierSet[debt.SupplierID] = struct{}{}
		if debt.Status != enums.DebtStatusPending {
			ineligible = append(ineligible, debt.ID)
		}
	}
	var missing []uuid.UUID
	for _, id := range debtIDs {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		details["missing_ids"] = missing
	}
	if len(foreign) > 0 {
		details["foreign_ids"] = foreign
	}
	if len(ineligible) > 0 {
		details["not_pending_ids"] = ineligible
	}
	if len(supplierSet) > 1 {
		supplierIDs := make([]uuid.UUID, 0, len(supplierSet))
		for _, debt := range batch {
			if _, ok := supplierSet[debt.SupplierID]; ok {
				supplierIDs = append(supplierIDs, debt.SupplierID)
				delete(supplierSet, debt.SupplierID)
			}
		}
		details["supplier_ids"] = supplierIDs
	}
	if len(details) > 0 {
		return nil, "", invalidBatch("debt batch is not eligible for settlement", details)
	}

	handle, err := s.suppliers.FindPayoutHandle(ctx, batch[0].SupplierID)
	if errors.Is(err, suppliers.ErrNoPayoutAccount) {
		return nil, "", invalidBatch("supplier has no payout account", map[string]any{"supplier_id": batch[0].SupplierID})
	}
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout account")
	}
	return batch, handle, nil
}

func (s *Service) mintCheckout(ctx context.Context, handle, reference string, batch []models.DebtRecord) (*infinitypay.CheckoutLink, error) {
	items := make([]infinitypay.Item, 0, len(batch))
	for _, debt := range batch {
		for _, line := range debt.LineItems {
			items = append(items, infinitypay.Item{
				Quantity:    line.Quantity,
				Price:       line.UnitPriceCents,
				Description: line.Description(),
			})
		}
	}
	checkout, err := s.gateway.CreateCheckoutLink(ctx, infinitypay.CheckoutRequest{
		Handle:   handle,
		Items:    items,
		OrderNSU: reference,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create checkout link")
	}
	return checkout, nil
}

func (s *Service) emitCreated(ctx context.Context, link *models.SettlementLink) error {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.EmitIfNotExists(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSettlementLinkCreated,
			AggregateType: enums.AggregateSettlementLink,
			AggregateID:   link.ID,
			Actor:         outbox.SellerActor(link.SellerID.String()),
			Data: payloads.SettlementLinkCreatedEvent{
				LinkID:      link.ID,
				SellerID:    link.SellerID,
				SupplierID:  link.SupplierID,
				DebtIDs:     []uuid.UUID(link.DebtRecordIDs),
				AmountCents: link.AmountCents,
				CheckoutURL: link.CheckoutURL,
			},
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit settlement link created")
	}
	return nil
}

// Get returns a seller's settlement link.
func (s *Service) Get(ctx context.Context, sellerID, linkID uuid.UUID) (*models.SettlementLink, error) {
	link, err := s.links.FindByID(ctx, linkID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load settlement link")
	}
	if link == nil || link.SellerID != sellerID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "settlement link not found")
	}
	return link, nil
}

func (s *Service) withLink(ctx context.Context, linkID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithLinkID(ctx, linkID.String())
}

func (s *Service) info(ctx context.Context, msg string) {
	if s.logg != nil {
		s.logg.Info(ctx, msg)
	}
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logg != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", errString(err)), msg)
	}
}

func invalidBatch(message string, details map[string]any) error {
	err := pkgerrors.New(pkgerrors.CodeInvalidBatch, message)
	if details != nil {
		err = err.WithDetails(details)
	}
	return err
}

func sumDebts(batch []models.DebtRecord) int64 {
	var total int64
	for _, debt := range batch {
		total += debt.TotalAmountCents
	}
	return total
}

func nonNil(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

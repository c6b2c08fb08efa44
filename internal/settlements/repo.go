package settlements

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	dbtypes "github.com/angelmondragon/dropship-settlements/pkg/db/types"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	pkgerrors "github.com/angelmondragon/dropship-settlements/pkg/errors"
)

// Completion is the receipt stamped on a link when it is paid.
type Completion struct {
	InvoiceSlug     string
	PaidAmountCents int64
	Installments    int
	CaptureMethod   string
	TransactionID   string
	ReceiptURL      string
}

// Repository persists settlement links. Status changes are conditional on
// the link still being pending.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, link *models.SettlementLink) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementLink, error)
	Prune(ctx context.Context, id uuid.UUID, debtIDs dbtypes.UUIDArray, amountCents int64) (bool, error)
	UpdateCheckoutURL(ctx context.Context, id uuid.UUID, url string) (bool, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, completion Completion, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, invoiceSlug *string, at time.Time) (bool, error)
	MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error)
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.SettlementLink, error)
	ListExpiredHoldingDebts(ctx context.Context, limit int) ([]models.SettlementLink, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a link repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, link *models.SettlementLink) error {
	err := db.Retry(ctx, func() error {
		return r.db.WithContext(ctx).Create(link).Error
	})
	switch {
	case db.IsUniqueViolation(err, ""):
		return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "settlement link reference already taken")
	case err != nil:
		return fmt.Errorf("create settlement link: %w", err)
	}
	return nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementLink, error) {
	var link models.SettlementLink
	err := db.Retry(ctx, func() error {
		return r.db.WithContext(ctx).First(&link, "id = ?", id).Error
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find settlement link: %w", err)
	}
	return &link, nil
}

// Prune narrows a pending link to debtIDs and clears its checkout URL, which
// was minted for the old amount.
func (r *repository) Prune(ctx context.Context, id uuid.UUID, debtIDs dbtypes.UUIDArray, amountCents int64) (bool, error) {
	return r.transition(ctx, id, enums.SettlementLinkStatusPending, map[string]any{
		"debt_record_ids": debtIDs,
		"debt_count":      len(debtIDs),
		"amount_cents":    amountCents,
		"checkout_url":    "",
	})
}

func (r *repository) UpdateCheckoutURL(ctx context.Context, id uuid.UUID, url string) (bool, error) {
	return r.transition(ctx, id, enums.SettlementLinkStatusPending, map[string]any{
		"checkout_url": url,
	})
}

func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, completion Completion, at time.Time) (bool, error) {
	return r.transition(ctx, id, enums.SettlementLinkStatusPending, map[string]any{
		"status":               enums.SettlementLinkStatusCompleted,
		"gateway_invoice_slug": completion.InvoiceSlug,
		"paid_amount_cents":    completion.PaidAmountCents,
		"installments":         completion.Installments,
		"capture_method":       completion.CaptureMethod,
		"transaction_id":       completion.TransactionID,
		"receipt_url":          completion.ReceiptURL,
		"completed_at":         at,
	})
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string, invoiceSlug *string, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":         enums.SettlementLinkStatusFailed,
		"failure_reason": reason,
		"failed_at":      at,
	}
	if invoiceSlug != nil {
		updates["gateway_invoice_slug"] = *invoiceSlug
	}
	return r.transition(ctx, id, enums.SettlementLinkStatusPending, updates)
}

func (r *repository) MarkExpired(ctx context.Context, id uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, id, enums.SettlementLinkStatusPending, map[string]any{
		"status":     enums.SettlementLinkStatusExpired,
		"expired_at": at,
	})
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.SettlementLink, error) {
	var rows []models.SettlementLink
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.SettlementLinkStatusPending, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expirable links: %w", err)
	}
	return rows, nil
}

// ListExpiredHoldingDebts finds expired links whose debts were not all
// released, e.g. after a crash between the two writes.
func (r *repository) ListExpiredHoldingDebts(ctx context.Context, limit int) ([]models.SettlementLink, error) {
	held := r.db.Model(&models.DebtRecord{}).
		Select("1").
		Where("debt_records.settlement_link_id = settlement_links.id AND debt_records.status = ?", enums.DebtStatusAwaitingPayment)
	var rows []models.SettlementLink
	err := r.db.WithContext(ctx).
		Where("status = ? AND EXISTS (?)", enums.SettlementLinkStatusExpired, held).
		Order("expired_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list expired links holding debts: %w", err)
	}
	return rows, nil
}

func (r *repository) transition(ctx context.Context, id uuid.UUID, from enums.SettlementLinkStatus, updates map[string]any) (bool, error) {
	var affected int64
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).
			Model(&models.SettlementLink{}).
			Where("id = ? AND status = ?", id, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update settlement link: %w", err)
	}
	return affected > 0, nil
}

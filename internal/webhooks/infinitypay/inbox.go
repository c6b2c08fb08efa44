package infinitypaywebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
)

// InboxRepository persists received callbacks in payment_confirmations.
type InboxRepository interface {
	WithTx(tx *gorm.DB) InboxRepository
	InsertIfAbsent(ctx context.Context, row *models.PaymentConfirmation) (*models.PaymentConfirmation, bool, error)
	FindBySlug(ctx context.Context, invoiceSlug string) (*models.PaymentConfirmation, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, outcome json.RawMessage, at time.Time) (bool, error)
	MarkDeadLettered(ctx context.Context, id uuid.UUID, message string, outcome json.RawMessage, at time.Time) (bool, error)
	RecordFailure(ctx context.Context, id uuid.UUID, message string) (bool, error)
	ListStale(ctx context.Context, before time.Time, limit int) ([]models.PaymentConfirmation, error)
}

type inboxRepository struct {
	db *gorm.DB
}

// NewInboxRepository returns a confirmation inbox bound to db.
func NewInboxRepository(db *gorm.DB) InboxRepository {
	return &inboxRepository{db: db}
}

func (r *inboxRepository) WithTx(tx *gorm.DB) InboxRepository {
	if tx == nil {
		return r
	}
	return &inboxRepository{db: tx}
}

// InsertIfAbsent stores row unless its invoice slug was already received and
// returns the stored row either way.
func (r *inboxRepository) InsertIfAbsent(ctx context.Context, row *models.PaymentConfirmation) (*models.PaymentConfirmation, bool, error) {
	var inserted bool
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_slug"}},
			DoNothing: true,
		}).Create(row)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("insert payment confirmation: %w", err)
	}
	if inserted {
		return row, true, nil
	}
	stored, err := r.FindBySlug(ctx, row.InvoiceSlug)
	if err != nil {
		return nil, false, err
	}
	if stored == nil {
		return nil, false, fmt.Errorf("payment confirmation %s vanished after conflict", row.InvoiceSlug)
	}
	return stored, false, nil
}

func (r *inboxRepository) FindBySlug(ctx context.Context, invoiceSlug string) (*models.PaymentConfirmation, error) {
	var row models.PaymentConfirmation
	err := r.db.WithContext(ctx).First(&row, "invoice_slug = ?", invoiceSlug).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find payment confirmation: %w", err)
	}
	return &row, nil
}

func (r *inboxRepository) MarkProcessed(ctx context.Context, id uuid.UUID, outcome json.RawMessage, at time.Time) (bool, error) {
	return r.finish(ctx, id, map[string]any{
		"status":       enums.ConfirmationStatusProcessed,
		"outcome":      outcome,
		"last_error":   nil,
		"processed_at": at,
	})
}

func (r *inboxRepository) MarkDeadLettered(ctx context.Context, id uuid.UUID, message string, outcome json.RawMessage, at time.Time) (bool, error) {
	updates := map[string]any{
		"status":       enums.ConfirmationStatusDeadLettered,
		"last_error":   message,
		"processed_at": at,
	}
	if len(outcome) > 0 {
		updates["outcome"] = outcome
	}
	return r.finish(ctx, id, updates)
}

// RecordFailure counts a transient attempt and leaves the row received.
func (r *inboxRepository) RecordFailure(ctx context.Context, id uuid.UUID, message string) (bool, error) {
	return r.finish(ctx, id, map[string]any{
		"attempt_count": gorm.Expr("attempt_count + 1"),
		"last_error":    message,
	})
}

// ListStale returns received rows untouched since before, oldest first.
func (r *inboxRepository) ListStale(ctx context.Context, before time.Time, limit int) ([]models.PaymentConfirmation, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.PaymentConfirmation
	err := r.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", enums.ConfirmationStatusReceived, before).
		Order("received_at ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list stale confirmations: %w", err)
	}
	return rows, nil
}

func (r *inboxRepository) finish(ctx context.Context, id uuid.UUID, updates map[string]any) (bool, error) {
	var changed bool
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).
			Model(&models.PaymentConfirmation{}).
			Where("id = ? AND status = ?", id, enums.ConfirmationStatusReceived).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		changed = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update payment confirmation: %w", err)
	}
	return changed, nil
}

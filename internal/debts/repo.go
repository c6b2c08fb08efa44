package debts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
)

// Repository is the debt side of the settlement store. Every status change is
// a single-row conditional update; the bool result reports whether this call
// performed the transition.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateIfAbsent(ctx context.Context, debt *models.DebtRecord) (*models.DebtRecord, bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.DebtRecord, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.DebtRecord, error)
	List(ctx context.Context, params listParams) ([]models.DebtRecord, *pagination.Cursor, error)
	MarkAwaitingPayment(ctx context.Context, id, linkID uuid.UUID) (bool, error)
	MarkSettled(ctx context.Context, id, linkID uuid.UUID, at time.Time) (bool, error)
	MarkFailed(ctx context.Context, id, linkID uuid.UUID, at time.Time) (bool, error)
	Release(ctx context.Context, id, linkID uuid.UUID) (bool, error)
}

type listParams struct {
	SellerID uuid.UUID
	Status   enums.DebtStatus
	Limit    int
	Cursor   *pagination.Cursor
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a debt repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateIfAbsent inserts debt unless the (seller, supplier, order) key already
// exists, in which case the stored record is returned with created=false.
func (r *repository) CreateIfAbsent(ctx context.Context, debt *models.DebtRecord) (*models.DebtRecord, bool, error) {
	var created bool
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "seller_id"}, {Name: "supplier_id"}, {Name: "order_ref"}},
			DoNothing: true,
		}).Create(debt)
		if res.Error != nil {
			return res.Error
		}
		created = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("insert debt record: %w", err)
	}
	if created {
		return debt, true, nil
	}

	var existing models.DebtRecord
	err = r.db.WithContext(ctx).
		Where("seller_id = ? AND supplier_id = ? AND order_ref = ?", debt.SellerID, debt.SupplierID, debt.OrderRef).
		First(&existing).Error
	if err != nil {
		return nil, false, fmt.Errorf("read back debt record: %w", err)
	}
	return &existing, false, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.DebtRecord, error) {
	var debt models.DebtRecord
	err := r.db.WithContext(ctx).First(&debt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find debt record: %w", err)
	}
	return &debt, nil
}

// FindByIDs returns the records in ids order; missing ids are skipped.
func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.DebtRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.DebtRecord
	err := db.Retry(ctx, func() error {
		rows = nil
		return r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("find debt records: %w", err)
	}
	byID := make(map[uuid.UUID]models.DebtRecord, len(rows))
	for _, row := range rows {
		byID[row.ID] = row
	}
	ordered := make([]models.DebtRecord, 0, len(rows))
	for _, id := range ids {
		if row, ok := byID[id]; ok {
			ordered = append(ordered, row)
		}
	}
	return ordered, nil
}

func (r *repository) List(ctx context.Context, params listParams) ([]models.DebtRecord, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.DebtRecord{}).Where("seller_id = ?", params.SellerID)
	if params.Status != "" {
		query = query.Where("status = ?", params.Status)
	}
	var rows []models.DebtRecord
	if err := query.Scopes(pagination.Keyset(params.Cursor, params.Limit)).Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("list debt records: %w", err)
	}
	page, next := pagination.Trim(rows, params.Limit, func(d models.DebtRecord) pagination.Cursor {
		return pagination.Cursor{CreatedAt: d.CreatedAt, ID: d.ID}
	})
	return page, next, nil
}

func (r *repository) MarkAwaitingPayment(ctx context.Context, id, linkID uuid.UUID) (bool, error) {
	return r.transition(ctx, "debt_records.id = ? AND status = ?", []any{id, enums.DebtStatusPending}, map[string]any{
		"status":             enums.DebtStatusAwaitingPayment,
		"settlement_link_id": linkID,
	})
}

func (r *repository) MarkSettled(ctx context.Context, id, linkID uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, "debt_records.id = ? AND status = ? AND settlement_link_id = ?",
		[]any{id, enums.DebtStatusAwaitingPayment, linkID},
		map[string]any{
			"status":     enums.DebtStatusSettled,
			"settled_at": at,
		})
}

func (r *repository) MarkFailed(ctx context.Context, id, linkID uuid.UUID, at time.Time) (bool, error) {
	return r.transition(ctx, "debt_records.id = ? AND status = ? AND settlement_link_id = ?",
		[]any{id, enums.DebtStatusAwaitingPayment, linkID},
		map[string]any{
			"status":    enums.DebtStatusFailed,
			"failed_at": at,
		})
}

// Release returns a debt held by linkID to pending so it can be re-batched.
func (r *repository) Release(ctx context.Context, id, linkID uuid.UUID) (bool, error) {
	return r.transition(ctx, "debt_records.id = ? AND status = ? AND settlement_link_id = ?",
		[]any{id, enums.DebtStatusAwaitingPayment, linkID},
		map[string]any{
			"status":             enums.DebtStatusPending,
			"settlement_link_id": nil,
		})
}

func (r *repository) transition(ctx context.Context, where string, args []any, updates map[string]any) (bool, error) {
	var affected int64
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).
			Model(&models.DebtRecord{}).
			Where(where, args...).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("update debt record: %w", err)
	}
	return affected > 0, nil
}

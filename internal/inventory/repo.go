package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dropship-settlements/pkg/db"
	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
)

// Repository persists stock movements. Rows are never updated or deleted.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIfAbsent(ctx context.Context, movement *models.StockMovement) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockMovement, error)
	SumBySKU(ctx context.Context, sku string) (int64, error)
	ListBySKU(ctx context.Context, sku string, limit int) ([]models.StockMovement, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a movement repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertIfAbsent(ctx context.Context, movement *models.StockMovement) (bool, error) {
	var inserted bool
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(movement)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert stock movement: %w", err)
	}
	return inserted, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockMovement, error) {
	var movement models.StockMovement
	err := r.db.WithContext(ctx).First(&movement, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find stock movement: %w", err)
	}
	return &movement, nil
}

func (r *repository) SumBySKU(ctx context.Context, sku string) (int64, error) {
	var total int64
	err := db.Retry(ctx, func() error {
		return r.db.WithContext(ctx).
			Model(&models.StockMovement{}).
			Where("sku = ?", sku).
			Select("COALESCE(SUM(quantity_delta), 0)").
			Scan(&total).Error
	})
	if err != nil {
		return 0, fmt.Errorf("sum stock movements: %w", err)
	}
	return total, nil
}

func (r *repository) ListBySKU(ctx context.Context, sku string, limit int) ([]models.StockMovement, error) {
	var rows []models.StockMovement
	err := r.db.WithContext(ctx).
		Where("sku = ?", sku).
		Order("occurred_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list stock movements: %w", err)
	}
	return rows, nil
}

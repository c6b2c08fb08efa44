package shipments

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

// Repository persists shipment artifacts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIfAbsent(ctx context.Context, artifact *models.ShipmentArtifact) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.ShipmentArtifact, error)
	ListByLink(ctx context.Context, linkID uuid.UUID) ([]models.ShipmentArtifact, error)
	ListBySupplier(ctx context.Context, supplierID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ShipmentArtifact, *pagination.Cursor, error)
	MarkShipped(ctx context.Context, supplierID, id uuid.UUID, at time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a shipment repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertIfAbsent(ctx context.Context, artifact *models.ShipmentArtifact) (bool, error) {
	var inserted bool
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(artifact)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert shipment artifact: %w", err)
	}
	return inserted, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ShipmentArtifact, error) {
	var artifact models.ShipmentArtifact
	err := r.db.WithContext(ctx).First(&artifact, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find shipment artifact: %w", err)
	}
	return &artifact, nil
}

func (r *repository) ListByLink(ctx context.Context, linkID uuid.UUID) ([]models.ShipmentArtifact, error) {
	var rows []models.ShipmentArtifact
	if err := r.db.WithContext(ctx).Where("settlement_link_id = ?", linkID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list shipments by link: %w", err)
	}
	return rows, nil
}

func (r *repository) ListBySupplier(ctx context.Context, supplierID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ShipmentArtifact, *pagination.Cursor, error) {
	var rows []models.ShipmentArtifact
	err := r.db.WithContext(ctx).
		Where("supplier_id = ?", supplierID).
		Scopes(pagination.Keyset(cursor, limit)).
		Find(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("list shipments by supplier: %w", err)
	}
	page, next := pagination.Trim(rows, limit, func(a models.ShipmentArtifact) pagination.Cursor {
		return pagination.Cursor{CreatedAt: a.CreatedAt, ID: a.ID}
	})
	return page, next, nil
}

func (r *repository) MarkShipped(ctx context.Context, supplierID, id uuid.UUID, at time.Time) (bool, error) {
	var affected int64
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).
			Model(&models.ShipmentArtifact{}).
			Where("id = ? AND supplier_id = ? AND status = ?", id, supplierID, enums.ShipmentStatusPaid).
			Updates(map[string]any{
				"status":     enums.ShipmentStatusShipped,
				"shipped_at": at,
			})
		if res.Error != nil {
			return res.Error
		}
		affected = res.RowsAffected
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("mark shipment shipped: %w", err)
	}
	return affected > 0, nil
}

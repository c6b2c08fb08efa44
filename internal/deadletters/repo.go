package deadletters

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
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
)

// Repository stores confirmations parked for operator review.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertIfAbsent(ctx context.Context, letter *models.SettlementDeadLetter) (bool, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementDeadLetter, error)
	List(ctx context.Context, unresolvedOnly bool, limit int, cursor *pagination.Cursor) ([]models.SettlementDeadLetter, *pagination.Cursor, error)
	Resolve(ctx context.Context, id uuid.UUID, note string, at time.Time) (bool, error)
	DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a dead-letter repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) InsertIfAbsent(ctx context.Context, letter *models.SettlementDeadLetter) (bool, error) {
	var inserted bool
	err := db.Retry(ctx, func() error {
		res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "invoice_slug"}, {Name: "reason"}},
			DoNothing: true,
		}).Create(letter)
		if res.Error != nil {
			return res.Error
		}
		inserted = res.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("insert dead letter: %w", err)
	}
	return inserted, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.SettlementDeadLetter, error) {
	var letter models.SettlementDeadLetter
	err := r.db.WithContext(ctx).First(&letter, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find dead letter: %w", err)
	}
	return &letter, nil
}

func (r *repository) List(ctx context.Context, unresolvedOnly bool, limit int, cursor *pagination.Cursor) ([]models.SettlementDeadLetter, *pagination.Cursor, error) {
	query := r.db.WithContext(ctx).Model(&models.SettlementDeadLetter{})
	if unresolvedOnly {
		query = query.Where("resolved_at IS NULL")
	}
	var rows []models.SettlementDeadLetter
	if err := query.Scopes(pagination.Keyset(cursor, limit)).Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("list dead letters: %w", err)
	}
	page, next := pagination.Trim(rows, limit, func(l models.SettlementDeadLetter) pagination.Cursor {
		return pagination.Cursor{CreatedAt: l.CreatedAt, ID: l.ID}
	})
	return page, next, nil
}

func (r *repository) Resolve(ctx context.Context, id uuid.UUID, note string, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SettlementDeadLetter{}).
		Where("id = ? AND resolved_at IS NULL", id).
		Updates(map[string]any{
			"resolved_at":     at,
			"resolution_note": note,
		})
	if res.Error != nil {
		return false, fmt.Errorf("resolve dead letter: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// DeleteResolvedBefore prunes letters an operator resolved before cutoff.
func (r *repository) DeleteResolvedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Where("resolved_at IS NOT NULL AND resolved_at < ?", cutoff).
		Delete(&models.SettlementDeadLetter{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete resolved dead letters: %w", res.Error)
	}
	return res.RowsAffected, nil
}

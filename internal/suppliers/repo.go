package suppliers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
)

// ErrNoPayoutAccount is returned when a supplier has no gateway handle.
var ErrNoPayoutAccount = errors.New("supplier has no payout account")

// Repository manages supplier payout accounts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertPayoutAccount(ctx context.Context, supplierID uuid.UUID, handle string) (*models.SupplierPayoutAccount, error)
	FindPayoutHandle(ctx context.Context, supplierID uuid.UUID) (string, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a supplier repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) UpsertPayoutAccount(ctx context.Context, supplierID uuid.UUID, handle string) (*models.SupplierPayoutAccount, error) {
	handle = strings.TrimSpace(handle)
	if supplierID == uuid.Nil {
		return nil, fmt.Errorf("supplier id is required")
	}
	if handle == "" {
		return nil, fmt.Errorf("infinitypay handle is required")
	}
	account := &models.SupplierPayoutAccount{SupplierID: supplierID, InfinityPayHandle: handle}
	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "supplier_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"infinitypay_handle", "updated_at"}),
	}).Create(account).Error
	if err != nil {
		return nil, fmt.Errorf("upsert payout account: %w", err)
	}
	var stored models.SupplierPayoutAccount
	if err := r.db.WithContext(ctx).First(&stored, "supplier_id = ?", supplierID).Error; err != nil {
		return nil, fmt.Errorf("reload payout account: %w", err)
	}
	return &stored, nil
}

func (r *repository) FindPayoutHandle(ctx context.Context, supplierID uuid.UUID) (string, error) {
	var account models.SupplierPayoutAccount
	err := r.db.WithContext(ctx).First(&account, "supplier_id = ?", supplierID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNoPayoutAccount
	}
	if err != nil {
		return "", fmt.Errorf("find payout account: %w", err)
	}
	return account.InfinityPayHandle, nil
}

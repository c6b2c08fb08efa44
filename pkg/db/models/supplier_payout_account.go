package models

import (
	"time"

	"github.com/google/uuid"
)

// SupplierPayoutAccount maps a supplier to its InfinityPay handle.
type SupplierPayoutAccount struct {
	SupplierID        uuid.UUID `gorm:"column:supplier_id;type:uuid;primaryKey"`
	InfinityPayHandle string    `gorm:"column:infinitypay_handle;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

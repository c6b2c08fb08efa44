package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

// ShipmentArtifact is the packing record produced for one supplier once a
// settlement link is paid.
type ShipmentArtifact struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	SettlementLinkID uuid.UUID            `gorm:"column:settlement_link_id;type:uuid;not null;index"`
	SupplierID       uuid.UUID            `gorm:"column:supplier_id;type:uuid;not null;index:idx_shipments_supplier_created,priority:1"`
	SellerID         uuid.UUID            `gorm:"column:seller_id;type:uuid;not null"`
	Parcels          types.Parcels        `gorm:"column:parcels;not null"`
	TotalItems       int                  `gorm:"column:total_items;not null"`
	AmountCents      int64                `gorm:"column:amount_cents;not null"`
	Status           enums.ShipmentStatus `gorm:"column:status;type:varchar(32);not null"`

	PaidAmountCents int64  `gorm:"column:paid_amount_cents;not null"`
	Installments    int    `gorm:"column:installments"`
	CaptureMethod   string `gorm:"column:capture_method"`
	TransactionID   string `gorm:"column:transaction_id"`
	OrderNSU        string `gorm:"column:order_nsu"`
	ReceiptURL      string `gorm:"column:receipt_url"`

	ShippedAt *time.Time `gorm:"column:shipped_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_shipments_supplier_created,priority:2"`
}

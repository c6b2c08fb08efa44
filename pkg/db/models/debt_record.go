package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

// DebtRecord is one order's amount owed by a seller to a supplier.
type DebtRecord struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	SellerID         uuid.UUID        `gorm:"column:seller_id;type:uuid;not null;uniqueIndex:ux_debt_records_order,priority:1;index:idx_debt_records_seller_status,priority:1"`
	SupplierID       uuid.UUID        `gorm:"column:supplier_id;type:uuid;not null;uniqueIndex:ux_debt_records_order,priority:2"`
	OrderRef         string           `gorm:"column:order_ref;not null;uniqueIndex:ux_debt_records_order,priority:3"`
	ShopRef          string           `gorm:"column:shop_ref"`
	LineItems        types.LineItems  `gorm:"column:line_items;not null"`
	Recipient        types.Address    `gorm:"column:recipient;not null"`
	TotalAmountCents int64            `gorm:"column:total_amount_cents;not null"`
	Status           enums.DebtStatus `gorm:"column:status;type:varchar(32);not null;index:idx_debt_records_seller_status,priority:2"`
	SettlementLinkID *uuid.UUID       `gorm:"column:settlement_link_id;type:uuid;index"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime"`
	SettledAt        *time.Time       `gorm:"column:settled_at"`
	FailedAt         *time.Time       `gorm:"column:failed_at"`
}

// Validate enforces that the total equals the sum of its priced lines.
func (d *DebtRecord) Validate() error {
	if d.SellerID == uuid.Nil {
		return fmt.Errorf("debt record: seller_id required")
	}
	if d.SupplierID == uuid.Nil {
		return fmt.Errorf("debt record: supplier_id required")
	}
	if strings.TrimSpace(d.OrderRef) == "" {
		return fmt.Errorf("debt record: order_ref required")
	}
	if err := d.LineItems.Validate(); err != nil {
		return fmt.Errorf("debt record: %w", err)
	}
	if d.TotalAmountCents != d.LineItems.TotalCents() {
		return fmt.Errorf("debt record: total %d does not match line items %d", d.TotalAmountCents, d.LineItems.TotalCents())
	}
	if !d.Status.IsValid() {
		return fmt.Errorf("debt record: invalid status %q", d.Status)
	}
	return nil
}

func (d *DebtRecord) BeforeCreate(*gorm.DB) error {
	if err := assignID(&d.ID); err != nil {
		return err
	}
	if d.Status == "" {
		d.Status = enums.DebtStatusPending
	}
	return d.Validate()
}

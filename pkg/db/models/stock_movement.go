package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/enums"
)

// StockMovement is an immutable signed change to a SKU's on-hand quantity.
type StockMovement struct {
	ID            uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	SKU           string               `gorm:"column:sku;not null;uniqueIndex:ux_stock_movements_cause_sku,priority:2;index:idx_stock_movements_sku_occurred,priority:1"`
	SupplierID    uuid.UUID            `gorm:"column:supplier_id;type:uuid;not null"`
	ProductRef    string               `gorm:"column:product_ref"`
	QuantityDelta int64                `gorm:"column:quantity_delta;not null"`
	Operation     enums.StockOperation `gorm:"column:operation;type:varchar(16);not null"`
	CauseRef      string               `gorm:"column:cause_ref;not null;uniqueIndex:ux_stock_movements_cause_sku,priority:1"`
	OccurredAt    time.Time            `gorm:"column:occurred_at;not null;index:idx_stock_movements_sku_occurred,priority:2"`
	CreatedAt     time.Time            `gorm:"column:created_at;autoCreateTime"`
}

// Validate ties the delta sign to the operation.
func (m *StockMovement) Validate() error {
	if strings.TrimSpace(m.SKU) == "" {
		return fmt.Errorf("stock movement: sku required")
	}
	if strings.TrimSpace(m.CauseRef) == "" {
		return fmt.Errorf("stock movement: cause_ref required")
	}
	switch m.Operation {
	case enums.StockOperationAdd:
		if m.QuantityDelta <= 0 {
			return fmt.Errorf("stock movement: add requires a positive delta, got %d", m.QuantityDelta)
		}
	case enums.StockOperationRemove:
		if m.QuantityDelta >= 0 {
			return fmt.Errorf("stock movement: remove requires a negative delta, got %d", m.QuantityDelta)
		}
	default:
		return fmt.Errorf("stock movement: invalid operation %q", m.Operation)
	}
	return nil
}

func (m *StockMovement) BeforeCreate(*gorm.DB) error {
	return m.Validate()
}

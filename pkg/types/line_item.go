package types

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// LineItem is one SKU line of a marketplace order owed to a supplier.
type LineItem struct {
	SKU            string `json:"sku"`
	ProductRef     string `json:"product_ref"`
	ProductName    string `json:"product_name"`
	Color          string `json:"color,omitempty"`
	Size           string `json:"size,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unit_price_cents"`
}

// SubtotalCents is quantity × unit price.
func (l LineItem) SubtotalCents() int64 {
	return int64(l.Quantity) * l.UnitPriceCents
}

// Description is the checkout label shown to the payer.
func (l LineItem) Description() string {
	name := strings.TrimSpace(l.ProductName)
	if name == "" {
		return l.SKU
	}
	return fmt.Sprintf("%s (%s)", name, l.SKU)
}

// LineItems is stored as a JSON array.
type LineItems []LineItem

func (LineItems) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumn{}.GormDBDataType(db, field)
}

func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return valueJSON([]LineItem(l))
}

func (l *LineItems) Scan(value any) error {
	*l = LineItems{}
	return scanJSON(value, (*[]LineItem)(l), "line items")
}

// Validate rejects empty batches and non-positive quantities or prices.
func (l LineItems) Validate() error {
	if len(l) == 0 {
		return fmt.Errorf("line items: at least one line is required")
	}
	for i, item := range l {
		if strings.TrimSpace(item.SKU) == "" {
			return fmt.Errorf("line items[%d]: sku required", i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("line items[%d]: quantity must be positive", i)
		}
		if item.UnitPriceCents < 0 {
			return fmt.Errorf("line items[%d]: unit price must not be negative", i)
		}
	}
	return nil
}

// TotalCents sums every line subtotal.
func (l LineItems) TotalCents() int64 {
	var total int64
	for _, item := range l {
		total += item.SubtotalCents()
	}
	return total
}

// ItemCount sums line quantities.
func (l LineItems) ItemCount() int {
	total := 0
	for _, item := range l {
		total += item.Quantity
	}
	return total
}

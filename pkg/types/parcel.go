package types

import (
	"database/sql/driver"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Parcel is the packing-slip view of one settled debt inside a shipment.
type Parcel struct {
	DebtID    uuid.UUID `json:"debt_id"`
	OrderRef  string    `json:"order_ref"`
	ShopRef   string    `json:"shop_ref,omitempty"`
	Recipient Address   `json:"recipient"`
	Items     LineItems `json:"items"`
}

// Parcels is stored as a JSON array.
type Parcels []Parcel

func (Parcels) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumn{}.GormDBDataType(db, field)
}

func (p Parcels) Value() (driver.Value, error) {
	if p == nil {
		return "[]", nil
	}
	return valueJSON([]Parcel(p))
}

func (p *Parcels) Scan(value any) error {
	*p = Parcels{}
	return scanJSON(value, (*[]Parcel)(p), "parcels")
}

// ItemCount sums quantities across every parcel.
func (p Parcels) ItemCount() int {
	total := 0
	for _, parcel := range p {
		total += parcel.Items.ItemCount()
	}
	return total
}

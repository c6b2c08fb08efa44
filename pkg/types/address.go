package types

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// Address is the delivery snapshot copied from the originating marketplace
// order. It is stored as a JSON document.
type Address struct {
	RecipientName  string `json:"recipient_name" validate:"required"`
	RecipientPhone string `json:"recipient_phone,omitempty"`
	Line1          string `json:"line1" validate:"required"`
	Line2          string `json:"line2,omitempty"`
	City           string `json:"city" validate:"required"`
	State          string `json:"state" validate:"required"`
	PostalCode     string `json:"postal_code" validate:"required"`
	Country        string `json:"country,omitempty"`
}

func (Address) GormDBDataType(db *gorm.DB, field *schema.Field) string {
	return jsonColumn{}.GormDBDataType(db, field)
}

// Validate checks the fields a carrier label needs.
func (a Address) Validate() error {
	if strings.TrimSpace(a.RecipientName) == "" {
		return fmt.Errorf("address: missing recipient_name")
	}
	if strings.TrimSpace(a.Line1) == "" {
		return fmt.Errorf("address: missing line1")
	}
	if strings.TrimSpace(a.City) == "" {
		return fmt.Errorf("address: missing city")
	}
	if strings.TrimSpace(a.State) == "" {
		return fmt.Errorf("address: missing state")
	}
	if strings.TrimSpace(a.PostalCode) == "" {
		return fmt.Errorf("address: missing postal_code")
	}
	return nil
}

// Value marshals Address into JSON, defaulting the country to BR.
func (a Address) Value() (driver.Value, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(a.Country) == "" {
		a.Country = "BR"
	}
	return valueJSON(a)
}

// Scan decodes the stored JSON document.
func (a *Address) Scan(value any) error {
	*a = Address{}
	return scanJSON(value, a, "address")
}

// Label renders the single-line form printed on packing slips.
func (a Address) Label() string {
	parts := []string{a.Line1}
	if a.Line2 != "" {
		parts = append(parts, a.Line2)
	}
	parts = append(parts, a.City+"/"+a.State, a.PostalCode)
	return strings.Join(parts, ", ")
}

package debts

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/pagination"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

// LineInput is an order line priced in currency units.
type LineInput struct {
	SKU         string
	ProductRef  string
	ProductName string
	Color       string
	Size        string
	ImageURL    string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// RecordDebtInput describes the part of an order owed to one supplier.
type RecordDebtInput struct {
	SellerID   uuid.UUID
	SupplierID uuid.UUID
	OrderRef   string
	ShopRef    string
	Recipient  types.Address
	Lines      []LineInput
}

// ListParams filters a seller's debts.
type ListParams struct {
	SellerID uuid.UUID
	Status   enums.DebtStatus
	pagination.Params
}

// ListResult wraps a page of debts.
type ListResult struct {
	Items  []models.DebtRecord `json:"items"`
	Cursor string              `json:"cursor"`
}

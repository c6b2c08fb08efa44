package reconciliation

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/internal/shipments"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
)

// Confirmation is one gateway payment callback. Only PaidAmountCents is
// compared against the link; AmountCents is the invoice total as reported.
type Confirmation struct {
	InvoiceSlug     string
	Reference       string
	AmountCents     int64
	PaidAmountCents int64
	Receipt         shipments.Receipt
	Payload         json.RawMessage
}

// SettlementOutcome is what a confirmation did to its link.
type SettlementOutcome struct {
	LinkID         uuid.UUID                  `json:"link_id"`
	Status         enums.SettlementLinkStatus `json:"status"`
	SettledDebtIDs []uuid.UUID                `json:"settled_debt_ids"`
	FailedDebtIDs  []uuid.UUID                `json:"failed_debt_ids,omitempty"`
	ShipmentIDs    []uuid.UUID                `json:"shipment_ids"`
	Duplicate      bool                       `json:"duplicate"`
}

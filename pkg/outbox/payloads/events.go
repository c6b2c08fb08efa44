package payloads

import (
	"time"

	"github.com/google/uuid"
)

// SettlementLinkCreatedEvent announces a hosted checkout minted for a batch.
type SettlementLinkCreatedEvent struct {
	LinkID      uuid.UUID   `json:"link_id"`
	SellerID    uuid.UUID   `json:"seller_id"`
	SupplierID  uuid.UUID   `json:"supplier_id"`
	DebtIDs     []uuid.UUID `json:"debt_ids"`
	AmountCents int64       `json:"amount_cents"`
	CheckoutURL string      `json:"checkout_url"`
}

// SettlementCompletedEvent is emitted once per link after a matching payment.
type SettlementCompletedEvent struct {
	LinkID          uuid.UUID   `json:"link_id"`
	SellerID        uuid.UUID   `json:"seller_id"`
	SupplierID      uuid.UUID   `json:"supplier_id"`
	InvoiceSlug     string      `json:"invoice_slug"`
	PaidAmountCents int64       `json:"paid_amount_cents"`
	SettledDebtIDs  []uuid.UUID `json:"settled_debt_ids"`
	ShipmentIDs     []uuid.UUID `json:"shipment_ids"`
	CompletedAt     time.Time   `json:"completed_at"`
}

// SettlementFailedEvent is emitted when a confirmation cannot settle a link.
type SettlementFailedEvent struct {
	LinkID               uuid.UUID   `json:"link_id"`
	SellerID             uuid.UUID   `json:"seller_id"`
	SupplierID           uuid.UUID   `json:"supplier_id"`
	InvoiceSlug          string      `json:"invoice_slug"`
	Reason               string      `json:"reason"`
	ExpectedAmountCents  int64       `json:"expected_amount_cents"`
	ConfirmedAmountCents int64       `json:"confirmed_amount_cents"`
	FailedDebtIDs        []uuid.UUID `json:"failed_debt_ids"`
}

// SettlementLinkExpiredEvent reports a link that was never paid.
type SettlementLinkExpiredEvent struct {
	LinkID          uuid.UUID   `json:"link_id"`
	SellerID        uuid.UUID   `json:"seller_id"`
	ReleasedDebtIDs []uuid.UUID `json:"released_debt_ids"`
	ExpiredAt       time.Time   `json:"expired_at"`
}

// ShipmentRecordedEvent tells the supplier a paid shipment is ready to pack.
type ShipmentRecordedEvent struct {
	ShipmentID uuid.UUID `json:"shipment_id"`
	LinkID     uuid.UUID `json:"link_id"`
	SupplierID uuid.UUID `json:"supplier_id"`
	TotalItems int       `json:"total_items"`
}

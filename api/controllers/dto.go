package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/dropship-settlements/pkg/db/models"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
	"github.com/angelmondragon/dropship-settlements/pkg/money"
	"github.com/angelmondragon/dropship-settlements/pkg/types"
)

type debtResponse struct {
	ID               uuid.UUID        `json:"id"`
	SellerID         uuid.UUID        `json:"seller_id"`
	SupplierID       uuid.UUID        `json:"supplier_id"`
	OrderRef         string           `json:"order_ref"`
	ShopRef          string           `json:"shop_ref,omitempty"`
	LineItems        types.LineItems  `json:"line_items"`
	Recipient        types.Address    `json:"recipient"`
	TotalAmountCents int64            `json:"total_amount_cents"`
	TotalAmount      string           `json:"total_amount"`
	Status           enums.DebtStatus `json:"status"`
	SettlementLinkID *uuid.UUID       `json:"settlement_link_id,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	SettledAt        *time.Time       `json:"settled_at,omitempty"`
	FailedAt         *time.Time       `json:"failed_at,omitempty"`
}

func toDebtResponse(d *models.DebtRecord) debtResponse {
	return debtResponse{
		ID:               d.ID,
		SellerID:         d.SellerID,
		SupplierID:       d.SupplierID,
		OrderRef:         d.OrderRef,
		ShopRef:          d.ShopRef,
		LineItems:        d.LineItems,
		Recipient:        d.Recipient,
		TotalAmountCents: d.TotalAmountCents,
		TotalAmount:      money.Format(d.TotalAmountCents),
		Status:           d.Status,
		SettlementLinkID: d.SettlementLinkID,
		CreatedAt:        d.CreatedAt,
		SettledAt:        d.SettledAt,
		FailedAt:         d.FailedAt,
	}
}

type linkResponse struct {
	ID                 uuid.UUID                  `json:"id"`
	SellerID           uuid.UUID                  `json:"seller_id"`
	SupplierID         uuid.UUID                  `json:"supplier_id"`
	DebtRecordIDs      []uuid.UUID                `json:"debt_record_ids"`
	AmountCents        int64                      `json:"amount_cents"`
	Amount             string                     `json:"amount"`
	DebtCount          int                        `json:"debt_count"`
	Status             enums.SettlementLinkStatus `json:"status"`
	CheckoutURL        string                     `json:"checkout_url,omitempty"`
	Reference          string                     `json:"reference"`
	GatewayInvoiceSlug *string                    `json:"gateway_invoice_slug,omitempty"`
	PaidAmountCents    *int64                     `json:"paid_amount_cents,omitempty"`
	ReceiptURL         *string                    `json:"receipt_url,omitempty"`
	FailureReason      *string                    `json:"failure_reason,omitempty"`
	CreatedAt          time.Time                  `json:"created_at"`
	CompletedAt        *time.Time                 `json:"completed_at,omitempty"`
	FailedAt           *time.Time                 `json:"failed_at,omitempty"`
	ExpiredAt          *time.Time                 `json:"expired_at,omitempty"`
}

func toLinkResponse(l *models.SettlementLink) linkResponse {
	ids := make([]uuid.UUID, 0, len(l.DebtRecordIDs))
	ids = append(ids, l.DebtRecordIDs...)
	return linkResponse{
		ID:                 l.ID,
		SellerID:           l.SellerID,
		SupplierID:         l.SupplierID,
		DebtRecordIDs:      ids,
		AmountCents:        l.AmountCents,
		Amount:             money.Format(l.AmountCents),
		DebtCount:          l.DebtCount,
		Status:             l.Status,
		CheckoutURL:        l.CheckoutURL,
		Reference:          l.Reference,
		GatewayInvoiceSlug: l.GatewayInvoiceSlug,
		PaidAmountCents:    l.PaidAmountCents,
		ReceiptURL:         l.ReceiptURL,
		FailureReason:      l.FailureReason,
		CreatedAt:          l.CreatedAt,
		CompletedAt:        l.CompletedAt,
		FailedAt:           l.FailedAt,
		ExpiredAt:          l.ExpiredAt,
	}
}

type shipmentResponse struct {
	ID               uuid.UUID            `json:"id"`
	SettlementLinkID uuid.UUID            `json:"settlement_link_id"`
	SupplierID       uuid.UUID            `json:"supplier_id"`
	SellerID         uuid.UUID            `json:"seller_id"`
	Parcels          types.Parcels        `json:"parcels"`
	TotalItems       int                  `json:"total_items"`
	AmountCents      int64                `json:"amount_cents"`
	PaidAmountCents  int64                `json:"paid_amount_cents"`
	Status           enums.ShipmentStatus `json:"status"`
	TransactionID    string               `json:"transaction_id,omitempty"`
	OrderNSU         string               `json:"order_nsu,omitempty"`
	ReceiptURL       string               `json:"receipt_url,omitempty"`
	ShippedAt        *time.Time           `json:"shipped_at,omitempty"`
	CreatedAt        time.Time            `json:"created_at"`
}

func toShipmentResponse(s *models.ShipmentArtifact) shipmentResponse {
	return shipmentResponse{
		ID:               s.ID,
		SettlementLinkID: s.SettlementLinkID,
		SupplierID:       s.SupplierID,
		SellerID:         s.SellerID,
		Parcels:          s.Parcels,
		TotalItems:       s.TotalItems,
		AmountCents:      s.AmountCents,
		PaidAmountCents:  s.PaidAmountCents,
		Status:           s.Status,
		TransactionID:    s.TransactionID,
		OrderNSU:         s.OrderNSU,
		ReceiptURL:       s.ReceiptURL,
		ShippedAt:        s.ShippedAt,
		CreatedAt:        s.CreatedAt,
	}
}

type movementResponse struct {
	ID            uuid.UUID            `json:"id"`
	SKU           string               `json:"sku"`
	SupplierID    uuid.UUID            `json:"supplier_id"`
	ProductRef    string               `json:"product_ref,omitempty"`
	QuantityDelta int64                `json:"quantity_delta"`
	Operation     enums.StockOperation `json:"operation"`
	CauseRef      string               `json:"cause_ref"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

func toMovementResponse(m *models.StockMovement) movementResponse {
	return movementResponse{
		ID:            m.ID,
		SKU:           m.SKU,
		SupplierID:    m.SupplierID,
		ProductRef:    m.ProductRef,
		QuantityDelta: m.QuantityDelta,
		Operation:     m.Operation,
		CauseRef:      m.CauseRef,
		OccurredAt:    m.OccurredAt,
	}
}

type deadLetterResponse struct {
	ID               uuid.UUID              `json:"id"`
	Reason           enums.DeadLetterReason `json:"reason"`
	InvoiceSlug      string                 `json:"invoice_slug"`
	Reference        string                 `json:"reference,omitempty"`
	SettlementLinkID *uuid.UUID             `json:"settlement_link_id,omitempty"`
	ErrorMessage     string                 `json:"error_message,omitempty"`
	ResolvedAt       *time.Time             `json:"resolved_at,omitempty"`
	ResolutionNote   *string                `json:"resolution_note,omitempty"`
	CreatedAt        time.Time              `json:"created_at"`
}

func toDeadLetterResponse(l *models.SettlementDeadLetter) deadLetterResponse {
	return deadLetterResponse{
		ID:               l.ID,
		Reason:           l.Reason,
		InvoiceSlug:      l.InvoiceSlug,
		Reference:        l.Reference,
		SettlementLinkID: l.SettlementLinkID,
		ErrorMessage:     l.ErrorMessage,
		ResolvedAt:       l.ResolvedAt,
		ResolutionNote:   l.ResolutionNote,
		CreatedAt:        l.CreatedAt,
	}
}

type pageResponse[T any] struct {
	Items  []T    `json:"items"`
	Cursor string `json:"cursor,omitempty"`
}

func mapPage[M any, T any](rows []M, cursor string, fn func(*M) T) pageResponse[T] {
	items := make([]T, 0, len(rows))
	for i := range rows {
		items = append(items, fn(&rows[i]))
	}
	return pageResponse[T]{Items: items, Cursor: cursor}
}

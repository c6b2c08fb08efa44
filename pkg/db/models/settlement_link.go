package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/angelmondragon/dropship-settlements/pkg/db/types"
	"github.com/angelmondragon/dropship-settlements/pkg/enums"
)

// SettlementLink aggregates a batch of debts into one hosted checkout.
type SettlementLink struct {
	ID            uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	SellerID      uuid.UUID                  `gorm:"column:seller_id;type:uuid;not null;index"`
	SupplierID    uuid.UUID                  `gorm:"column:supplier_id;type:uuid;not null"`
	DebtRecordIDs dbtypes.UUIDArray          `gorm:"column:debt_record_ids;not null"`
	AmountCents   int64                      `gorm:"column:amount_cents;not null"`
	DebtCount     int                        `gorm:"column:debt_count;not null"`
	Status        enums.SettlementLinkStatus `gorm:"column:status;type:varchar(32);not null;index:idx_settlement_links_status_created,priority:1"`
	CheckoutURL   string                     `gorm:"column:checkout_url"`
	Reference     string                     `gorm:"column:reference;not null;uniqueIndex"`

	GatewayInvoiceSlug *string `gorm:"column:gateway_invoice_slug"`
	PaidAmountCents    *int64  `gorm:"column:paid_amount_cents"`
	Installments       *int    `gorm:"column:installments"`
	CaptureMethod      *string `gorm:"column:capture_method"`
	TransactionID      *string `gorm:"column:transaction_id"`
	ReceiptURL         *string `gorm:"column:receipt_url"`
	FailureReason      *string `gorm:"column:failure_reason"`

	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime;index:idx_settlement_links_status_created,priority:2"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt *time.Time `gorm:"column:completed_at"`
	FailedAt    *time.Time `gorm:"column:failed_at"`
	ExpiredAt   *time.Time `gorm:"column:expired_at"`
}

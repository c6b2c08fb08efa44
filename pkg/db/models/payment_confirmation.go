package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/enums"
)

// PaymentConfirmation is the durable inbox row for one gateway callback.
type PaymentConfirmation struct {
	ID              uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceSlug     string                   `gorm:"column:invoice_slug;not null;uniqueIndex"`
	Reference       string                   `gorm:"column:reference;not null"`
	AmountCents     int64                    `gorm:"column:amount_cents;not null"`
	PaidAmountCents int64                    `gorm:"column:paid_amount_cents;not null"`
	Payload         json.RawMessage          `gorm:"column:payload;type:jsonb;not null"`
	Status          enums.ConfirmationStatus `gorm:"column:status;type:varchar(32);not null;index:idx_payment_confirmations_status_received,priority:1"`
	AttemptCount    int                      `gorm:"column:attempt_count;not null;default:0"`
	LastError       *string                  `gorm:"column:last_error"`
	Outcome         json.RawMessage          `gorm:"column:outcome;type:jsonb"`
	ReceivedAt      time.Time                `gorm:"column:received_at;not null;index:idx_payment_confirmations_status_received,priority:2"`
	ProcessedAt     *time.Time               `gorm:"column:processed_at"`
	UpdatedAt       time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *PaymentConfirmation) BeforeCreate(*gorm.DB) error {
	if err := assignID(&c.ID); err != nil {
		return err
	}
	if c.Status == "" {
		c.Status = enums.ConfirmationStatusReceived
	}
	if c.ReceivedAt.IsZero() {
		c.ReceivedAt = time.Now().UTC()
	}
	return nil
}

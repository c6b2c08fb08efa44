package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dropship-settlements/pkg/enums"
)

// SettlementDeadLetter parks a gateway confirmation that cannot be applied.
type SettlementDeadLetter struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	Reason           enums.DeadLetterReason `gorm:"column:reason;type:varchar(32);not null;uniqueIndex:ux_dead_letters_slug_reason,priority:2"`
	InvoiceSlug      string                 `gorm:"column:invoice_slug;not null;uniqueIndex:ux_dead_letters_slug_reason,priority:1"`
	Reference        string                 `gorm:"column:reference"`
	SettlementLinkID *uuid.UUID             `gorm:"column:settlement_link_id;type:uuid"`
	Payload          json.RawMessage        `gorm:"column:payload;type:jsonb"`
	ErrorMessage     string                 `gorm:"column:error_message"`
	ResolvedAt       *time.Time             `gorm:"column:resolved_at;index"`
	ResolutionNote   *string                `gorm:"column:resolution_note"`
	CreatedAt        time.Time              `gorm:"column:created_at;autoCreateTime"`
}

func (d *SettlementDeadLetter) BeforeCreate(*gorm.DB) error {
	return assignID(&d.ID)
}

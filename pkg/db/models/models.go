package models

// All lists every persisted model, in dependency order, for AutoMigrate.
func All() []any {
	return []any{
		&SupplierPayoutAccount{},
		&DebtRecord{},
		&SettlementLink{},
		&ShipmentArtifact{},
		&StockMovement{},
		&PaymentConfirmation{},
		&SettlementDeadLetter{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

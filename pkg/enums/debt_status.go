package enums

import "slices"

// DebtStatus tracks a supplier debt through settlement.
type DebtStatus string

const (
	DebtStatusPending         DebtStatus = "pending"
	DebtStatusAwaitingPayment DebtStatus = "awaiting_payment"
	DebtStatusSettled         DebtStatus = "settled"
	DebtStatusFailed          DebtStatus = "failed"
)

var validDebtStatuses = []DebtStatus{
	DebtStatusPending,
	DebtStatusAwaitingPayment,
	DebtStatusSettled,
	DebtStatusFailed,
}

func (s DebtStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DebtStatus.
func (s DebtStatus) IsValid() bool {
	return slices.Contains(validDebtStatuses, s)
}

// ParseDebtStatus converts raw input into a DebtStatus.
func ParseDebtStatus(value string) (DebtStatus, error) {
	return parse(validDebtStatuses, value, "debt status")
}

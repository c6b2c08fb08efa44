package enums

import "slices"

// SettlementLinkStatus is the lifecycle of a hosted checkout link.
type SettlementLinkStatus string

const (
	SettlementLinkStatusPending   SettlementLinkStatus = "pending"
	SettlementLinkStatusCompleted SettlementLinkStatus = "completed"
	SettlementLinkStatusExpired   SettlementLinkStatus = "expired"
	SettlementLinkStatusFailed    SettlementLinkStatus = "failed"
)

var validSettlementLinkStatuses = []SettlementLinkStatus{
	SettlementLinkStatusPending,
	SettlementLinkStatusCompleted,
	SettlementLinkStatusExpired,
	SettlementLinkStatusFailed,
}

func (s SettlementLinkStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known SettlementLinkStatus.
func (s SettlementLinkStatus) IsValid() bool {
	return slices.Contains(validSettlementLinkStatuses, s)
}

// ParseSettlementLinkStatus converts raw input into a SettlementLinkStatus.
func ParseSettlementLinkStatus(value string) (SettlementLinkStatus, error) {
	return parse(validSettlementLinkStatuses, value, "settlement link status")
}

// IsTerminal reports whether no further transition is allowed.
func (s SettlementLinkStatus) IsTerminal() bool {
	return s != SettlementLinkStatusPending
}

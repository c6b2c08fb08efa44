package enums

import "slices"

// ConfirmationStatus is the processing state of an inbox row.
type ConfirmationStatus string

const (
	ConfirmationStatusReceived     ConfirmationStatus = "received"
	ConfirmationStatusProcessed    ConfirmationStatus = "processed"
	ConfirmationStatusDeadLettered ConfirmationStatus = "dead_lettered"
)

var validConfirmationStatuses = []ConfirmationStatus{
	ConfirmationStatusReceived,
	ConfirmationStatusProcessed,
	ConfirmationStatusDeadLettered,
}

func (s ConfirmationStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ConfirmationStatus.
func (s ConfirmationStatus) IsValid() bool {
	return slices.Contains(validConfirmationStatuses, s)
}

// ParseConfirmationStatus converts raw input into a ConfirmationStatus.
func ParseConfirmationStatus(value string) (ConfirmationStatus, error) {
	return parse(validConfirmationStatuses, value, "confirmation status")
}

package enums

import "slices"

// DeadLetterReason classifies confirmations parked for operators.
type DeadLetterReason string

const (
	DeadLetterMalformedReference DeadLetterReason = "malformed_reference"
	DeadLetterUnknownSettlement  DeadLetterReason = "unknown_settlement"
	DeadLetterAmountMismatch     DeadLetterReason = "amount_mismatch"
	DeadLetterLinkNotPayable     DeadLetterReason = "link_not_payable"
	DeadLetterMaxAttempts        DeadLetterReason = "max_attempts"
)

var validDeadLetterReasons = []DeadLetterReason{
	DeadLetterMalformedReference,
	DeadLetterUnknownSettlement,
	DeadLetterAmountMismatch,
	DeadLetterLinkNotPayable,
	DeadLetterMaxAttempts,
}

func (s DeadLetterReason) String() string {
	return string(s)
}

// IsValid reports whether the value is a known DeadLetterReason.
func (s DeadLetterReason) IsValid() bool {
	return slices.Contains(validDeadLetterReasons, s)
}

// ParseDeadLetterReason converts raw input into a DeadLetterReason.
func ParseDeadLetterReason(value string) (DeadLetterReason, error) {
	return parse(validDeadLetterReasons, value, "dead letter reason")
}

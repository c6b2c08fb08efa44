package enums

import "slices"

// ShipmentStatus tracks a shipment artifact after payment.
type ShipmentStatus string

const (
	ShipmentStatusPaid    ShipmentStatus = "paid"
	ShipmentStatusShipped ShipmentStatus = "shipped"
)

var validShipmentStatuses = []ShipmentStatus{
	ShipmentStatusPaid,
	ShipmentStatusShipped,
}

func (s ShipmentStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known ShipmentStatus.
func (s ShipmentStatus) IsValid() bool {
	return slices.Contains(validShipmentStatuses, s)
}

// ParseShipmentStatus converts raw input into a ShipmentStatus.
func ParseShipmentStatus(value string) (ShipmentStatus, error) {
	return parse(validShipmentStatuses, value, "shipment status")
}

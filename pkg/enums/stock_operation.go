package enums

import "slices"

// StockOperation is the direction of an inventory movement.
type StockOperation string

const (
	StockOperationAdd    StockOperation = "add"
	StockOperationRemove StockOperation = "remove"
)

var validStockOperations = []StockOperation{
	StockOperationAdd,
	StockOperationRemove,
}

func (s StockOperation) String() string {
	return string(s)
}

// IsValid reports whether the value is a known StockOperation.
func (s StockOperation) IsValid() bool {
	return slices.Contains(validStockOperations, s)
}

// ParseStockOperation converts raw input into a StockOperation.
func ParseStockOperation(value string) (StockOperation, error) {
	return parse(validStockOperations, value, "stock operation")
}

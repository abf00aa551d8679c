package enums

import "fmt"

// OrderItemKind classifies a rental order line.
type OrderItemKind string

const (
	OrderItemKindRental OrderItemKind = "rental"
	OrderItemKindExtra  OrderItemKind = "extra"
	OrderItemKindAddOn  OrderItemKind = "add-on"
)

var validOrderItemKinds = []OrderItemKind{
	OrderItemKindRental,
	OrderItemKindExtra,
	OrderItemKindAddOn,
}

// String implements fmt.Stringer.
func (k OrderItemKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known OrderItemKind.
func (k OrderItemKind) IsValid() bool {
	for _, candidate := range validOrderItemKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseOrderItemKind converts raw input into an OrderItemKind.
func ParseOrderItemKind(value string) (OrderItemKind, error) {
	for _, candidate := range validOrderItemKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order item kind %q", value)
}

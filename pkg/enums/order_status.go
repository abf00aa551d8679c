package enums

import "fmt"

// OrderStatus tracks the business lifecycle of a rental order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusProcessing,
	OrderStatusPaid,
	OrderStatusConfirmed,
	OrderStatusCancelled,
	OrderStatusRefunded,
}

// orderStatusTransitions enumerates the legal forward moves. A status absent
// from the map is terminal.
var orderStatusTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusProcessing, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusConfirmed, OrderStatusRefunded},
	OrderStatusConfirmed:  {OrderStatusRefunded},
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// CanTransitionTo reports whether moving from the current status to target is
// a legal lifecycle move. A no-op transition is always allowed.
func (o OrderStatus) CanTransitionTo(target OrderStatus) bool {
	if o == target {
		return true
	}
	for _, candidate := range orderStatusTransitions[o] {
		if candidate == target {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into an OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// Package delivery owns the release gate that keeps equipment from going out
// before the rental agreement is signed.
package delivery

import (
	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
)

// ComputeBlocked derives the delivery gate from the order's agreement state.
// Delivery is blocked unless the agreement is signed or an admin override is
// on record. An override is permanent: a later agreement decline does not
// re-block.
func ComputeBlocked(order *models.Order) bool {
	if order == nil {
		return true
	}
	if order.HasOverride() {
		return false
	}
	return order.AgreementStatus != enums.AgreementStatusSigned
}

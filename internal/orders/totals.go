package orders

import (
	"github.com/shopspring/decimal"

	"github.com/bouncebros/bouncebros-backend/pkg/db/models"
	"github.com/bouncebros/bouncebros-backend/pkg/enums"
	"github.com/bouncebros/bouncebros-backend/pkg/money"
)

// RecomputeTotals rebuilds every derived money field on the order from its
// items and recorded payments. It is the single place the financial
// invariants live: each line total is quantity times unit price, the order
// total is subtotal + tax + delivery + processing - discount (never below
// zero), and balance due is total minus deposit minus completed payments,
// clamped at zero.
func RecomputeTotals(order *models.Order, processingFeeRate decimal.Decimal) {
	recomputeTotals(order, func(subtotal money.Cents) money.Cents {
		return money.PercentOf(subtotal, processingFeeRate)
	})
}

// RecomputeTotalsWithFee rebuilds the derived money fields but keeps an
// explicitly supplied processing fee instead of deriving one from the rate.
func RecomputeTotalsWithFee(order *models.Order, processingFee money.Cents) {
	recomputeTotals(order, func(money.Cents) money.Cents {
		return processingFee
	})
}

func recomputeTotals(order *models.Order, processingFee func(subtotal money.Cents) money.Cents) {
	if order == nil {
		return
	}

	var subtotal money.Cents
	for i := range order.Items {
		line := order.Items[i].UnitPriceCents.Mul(order.Items[i].Quantity)
		order.Items[i].LineTotalCents = line
		subtotal += line
	}
	order.SubtotalCents = subtotal

	order.ProcessingFeeCents = processingFee(subtotal)

	total := money.Sum(
		subtotal,
		order.TaxCents,
		order.DeliveryFeeCents,
		order.ProcessingFeeCents,
	) - order.DiscountCents
	order.TotalCents = money.Max0(total)

	applyPayments(order)
}

// applyPayments refreshes balance due and the derived payment status from the
// recorded transactions.
func applyPayments(order *models.Order) {
	paid := order.CompletedPaymentCents()
	order.BalanceDueCents = money.Max0(order.TotalCents - order.DepositCents - paid)

	covered := order.BalanceDueCents == 0 && order.TotalCents > 0
	switch order.PaymentStatus {
	case enums.PaymentStatusRefunded, enums.PaymentStatusPartiallyRefunded:
		// refund states are set explicitly, never derived
	default:
		if covered {
			order.PaymentStatus = enums.PaymentStatusPaid
		} else if order.PaymentStatus == enums.PaymentStatusPaid {
			// new charges reopened the balance
			order.PaymentStatus = enums.PaymentStatusPending
		}
	}
}

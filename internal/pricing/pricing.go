// Package pricing computes GST-inclusive line and order amounts. All
// functions are deterministic and side-effect free: identical inputs
// always produce identical outputs, so committed sales can be re-priced
// for reconciliation.
package pricing

import (
	"errors"

	"github.com/shopspring/decimal"

	"pharmapos/m/domain"
)

var ErrNegativeUnitPrice = errors.New("unit price must not be negative")

// LineAmounts holds the priced breakdown of a single sale line.
// TaxAmount is rounded to cents half-up; Total = Subtotal + TaxAmount.
type LineAmounts struct {
	UnitPrice decimal.Decimal
	Quantity  int64
	TaxRate   decimal.Decimal
	Subtotal  decimal.Decimal
	TaxAmount decimal.Decimal
	Total     decimal.Decimal
}

// OrderAmounts aggregates line amounts across a sale.
type OrderAmounts struct {
	Subtotal decimal.Decimal
	Tax      decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// PriceLine prices quantity units at unitPrice with a percentage GST rate.
func PriceLine(unitPrice decimal.Decimal, quantity int64, taxRatePercent decimal.Decimal) (LineAmounts, error) {
	if quantity <= 0 {
		return LineAmounts{}, &domain.InvalidQuantityError{Quantity: quantity}
	}
	if unitPrice.IsNegative() {
		return LineAmounts{}, ErrNegativeUnitPrice
	}

	subtotal := unitPrice.Mul(decimal.NewFromInt(quantity)).Round(2)
	tax := subtotal.Mul(taxRatePercent).Div(decimal.NewFromInt(100)).Round(2)

	return LineAmounts{
		UnitPrice: unitPrice,
		Quantity:  quantity,
		TaxRate:   taxRatePercent,
		Subtotal:  subtotal,
		TaxAmount: tax,
		Total:     subtotal.Add(tax),
	}, nil
}

// PriceOrder sums line amounts and applies the order-level discount.
// The discount may not exceed subtotal + tax.
func PriceOrder(lines []LineAmounts, discount decimal.Decimal) (OrderAmounts, error) {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(line.Subtotal)
		tax = tax.Add(line.TaxAmount)
	}

	payable := subtotal.Add(tax)
	if discount.GreaterThan(payable) {
		return OrderAmounts{}, &domain.InvalidDiscountError{
			Discount: discount.StringFixed(2),
			Payable:  payable.StringFixed(2),
		}
	}

	total := payable.Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}

	return OrderAmounts{
		Subtotal: subtotal,
		Tax:      tax,
		Discount: discount,
		Total:    total,
	}, nil
}

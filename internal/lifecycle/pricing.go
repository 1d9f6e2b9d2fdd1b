package lifecycle

import "github.com/shopspring/decimal"

// GlobalAdminFeePercent is charged on every order on top of the payment method fee.
const GlobalAdminFeePercent = 2

var hundred = decimal.NewFromInt(100)

// Pricing is the creation-time breakdown of what the customer pays.
type Pricing struct {
	BasePrice        decimal.Decimal
	PaymentMethodFee decimal.Decimal
	GlobalAdminFee   decimal.Decimal
	TotalAdminFee    decimal.Decimal
	TotalAmountDue   decimal.Decimal
}

// ComputePricing derives every fee from the base price and payment method terms.
// TotalAmountDue is rounded up to a whole currency unit.
func ComputePricing(basePrice, flatFee, feePercent decimal.Decimal) Pricing {
	methodFee := flatFee.Add(basePrice.Mul(feePercent).Div(hundred))
	globalFee := basePrice.Mul(decimal.NewFromInt(GlobalAdminFeePercent)).Div(hundred)
	totalFee := methodFee.Add(globalFee)

	return Pricing{
		BasePrice:        basePrice,
		PaymentMethodFee: methodFee,
		GlobalAdminFee:   globalFee,
		TotalAdminFee:    totalFee,
		TotalAmountDue:   basePrice.Add(totalFee).Ceil(),
	}
}

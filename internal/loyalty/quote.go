package loyalty

import (
	"github.com/noah-isme/loyalty-api/internal/pricing"
)

// Rates holds the loyalty programme conversion constants. One point is worth
// RedeemRateMinor minor units of discount; one point is earned for every
// EarnDivisorMinor minor units of the final payable total.
type Rates struct {
	RedeemRateMinor  int64
	EarnDivisorMinor int64
}

func (r Rates) redeemRate() int64 {
	if r.RedeemRateMinor <= 0 {
		return 100
	}
	return r.RedeemRateMinor
}

func (r Rates) earnDivisor() int64 {
	if r.EarnDivisorMinor <= 0 {
		return 1000
	}
	return r.EarnDivisorMinor
}

// QuoteInput carries the values needed to compute a redemption suggestion.
type QuoteInput struct {
	UserPoints int64
	Subtotal   pricing.Money
	Shipping   pricing.Money
	Tax        pricing.Money
	MaxPoints  *int64
}

// Quote is a redemption suggestion for a checkout. Points are only usable
// against the discounted subtotal, never against shipping or tax.
type Quote struct {
	PointsSuggested  int64         `json:"pointsSuggested"`
	PointsValue      pricing.Money `json:"pointsValue"`
	TotalAfterPoints pricing.Money `json:"totalAfterPoints"`
	TotalPayable     pricing.Money `json:"totalPayable"`
}

// Quote computes the redemption suggestion for the given inputs. The result is
// a pure function of its arguments.
func (r Rates) Quote(in QuoteInput) Quote {
	points := in.UserPoints
	if points < 0 {
		points = 0
	}
	subtotal := in.Subtotal
	if subtotal < 0 {
		subtotal = 0
	}
	rate := r.redeemRate()

	maxUsable := subtotal / rate
	if points < maxUsable {
		maxUsable = points
	}
	if in.MaxPoints != nil && *in.MaxPoints >= 0 && *in.MaxPoints < maxUsable {
		maxUsable = *in.MaxPoints
	}

	value := maxUsable * rate
	after := subtotal - value
	if after < 0 {
		after = 0
	}
	shipping := in.Shipping
	if shipping < 0 {
		shipping = 0
	}
	tax := in.Tax
	if tax < 0 {
		tax = 0
	}
	return Quote{
		PointsSuggested:  maxUsable,
		PointsValue:      value,
		TotalAfterPoints: after,
		TotalPayable:     after + shipping + tax,
	}
}

// EarnEstimate returns the points that would be earned for the given final
// payable total.
func (r Rates) EarnEstimate(total pricing.Money) int64 {
	if total <= 0 {
		return 0
	}
	return total / r.earnDivisor()
}

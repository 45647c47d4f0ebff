package pricing

import (
	"fmt"

	"github.com/google/uuid"
)

// Money represents a monetary value stored in minor units.
type Money = int64

// ErrInvalidQuantity is returned when a line carries a non-positive quantity.
var ErrInvalidQuantity = fmt.Errorf("pricing: quantity must be a positive integer")

// Line describes a cart line entering the promotion calculation. UnitPrice is
// the authoritative base price and DiscountBps the per-item discount in basis
// points (0..10000).
type Line struct {
	ProductID   uuid.UUID
	Title       string
	Qty         int
	UnitPrice   Money
	DiscountBps int32
}

// Priced is a line after per-item discounts have been applied.
type Priced struct {
	ProductID   uuid.UUID `json:"productId"`
	Title       string    `json:"title"`
	Qty         int       `json:"qty"`
	BasePrice   Money     `json:"basePrice"`
	DiscountBps int32     `json:"discountBps"`
	UnitFinal   Money     `json:"unitFinalPrice"`
	LineTotal   Money     `json:"lineTotal"`
}

// ComputeLines applies per-item discounts and returns the priced lines with
// their subtotal. A non-positive quantity is an input error, never silently
// clamped. An empty input yields an empty result and a zero subtotal.
func ComputeLines(lines []Line) ([]Priced, Money, error) {
	if len(lines) == 0 {
		return []Priced{}, 0, nil
	}
	out := make([]Priced, 0, len(lines))
	var subtotal Money
	for i, line := range lines {
		if line.Qty <= 0 {
			return nil, 0, fmt.Errorf("line %d: qty %d: %w", i, line.Qty, ErrInvalidQuantity)
		}
		bps := line.DiscountBps
		if bps < 0 {
			bps = 0
		}
		if bps > 10000 {
			bps = 10000
		}
		base := line.UnitPrice
		if base < 0 {
			base = 0
		}
		unitFinal := DiscountedUnit(base, bps)
		lineTotal := unitFinal * Money(line.Qty)
		out = append(out, Priced{
			ProductID:   line.ProductID,
			Title:       line.Title,
			Qty:         line.Qty,
			BasePrice:   base,
			DiscountBps: bps,
			UnitFinal:   unitFinal,
			LineTotal:   lineTotal,
		})
		subtotal += lineTotal
	}
	return out, subtotal, nil
}

// DiscountedUnit applies a basis-point discount to a unit price, rounding half
// away from zero, matching currency display semantics.
func DiscountedUnit(base Money, bps int32) Money {
	if base <= 0 {
		return 0
	}
	if bps <= 0 {
		return base
	}
	if bps >= 10000 {
		return 0
	}
	num := base * Money(10000-bps)
	return (num + 5000) / 10000
}

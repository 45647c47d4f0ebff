package loyalty

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/loyalty-api/internal/catalog"
	"github.com/noah-isme/loyalty-api/internal/pricing"
)

// CatalogLookup resolves product pricing data for cart items.
type CatalogLookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (catalog.Product, error)
}

// BalanceReader reads a user's current point balance.
type BalanceReader interface {
	UserPoints(ctx context.Context, userID uuid.UUID) (int64, error)
}

// LedgerReader lists a user's point movements, newest first.
type LedgerReader interface {
	LedgerEntries(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]LedgerEntry, error)
}

// CartItem is one line of the cart submitted for a quote.
type CartItem struct {
	ProductID uuid.UUID      `json:"productId" validate:"required"`
	Qty       int            `json:"quantity" validate:"required,gt=0"`
	UnitPrice *pricing.Money `json:"unitPrice,omitempty" validate:"omitempty,gte=0"`
}

// ApplyInput is the request to price a cart and suggest a point redemption.
type ApplyInput struct {
	CartItems      []CartItem    `json:"cartItems" validate:"dive"`
	Shipping       pricing.Money `json:"shipping" validate:"gte=0"`
	Tax            pricing.Money `json:"tax" validate:"gte=0"`
	MaxPointsToUse *int64        `json:"maxPointsToUse,omitempty" validate:"omitempty,gte=0"`
}

// Promotions is the per-item discount breakdown of a quote.
type Promotions struct {
	Items    []pricing.Priced `json:"items"`
	Subtotal pricing.Money    `json:"subtotal"`
}

// ApplyOutput is the combined pricing/loyalty quote returned to checkout.
type ApplyOutput struct {
	Promotions           Promotions `json:"promotions"`
	Loyalty              Quote      `json:"loyalty"`
	EarnedPointsEstimate int64      `json:"earnedPointsEstimate"`
}

// Service composes the pricing engine, catalog, and redemption quoter into
// the checkout-facing quote operation.
type Service struct {
	Catalog CatalogLookup
	Balance BalanceReader
	Ledger  LedgerReader
	Rates   Rates
	Logger  *zerolog.Logger
}

// Apply prices the cart with current promotions and suggests a point
// redemption for the given user. The computation never mutates state.
func (s *Service) Apply(ctx context.Context, userID uuid.UUID, in ApplyInput) (ApplyOutput, error) {
	lines, err := s.resolveLines(ctx, in.CartItems)
	if err != nil {
		return ApplyOutput{}, err
	}

	priced, subtotal, err := pricing.ComputeLines(lines)
	if err != nil {
		return ApplyOutput{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}

	balance, err := s.Balance.UserPoints(ctx, userID)
	if err != nil {
		return ApplyOutput{}, err
	}

	quote := s.Rates.Quote(QuoteInput{
		UserPoints: balance,
		Subtotal:   subtotal,
		Shipping:   in.Shipping,
		Tax:        in.Tax,
		MaxPoints:  in.MaxPointsToUse,
	})

	return ApplyOutput{
		Promotions:           Promotions{Items: priced, Subtotal: subtotal},
		Loyalty:              quote,
		EarnedPointsEstimate: s.Rates.EarnEstimate(quote.TotalPayable),
	}, nil
}

// resolveLines turns cart items into pricing lines using catalog data. When a
// product is missing from the catalog the client-supplied price is used with
// no discount, so a stale cart still gets a quote.
func (s *Service) resolveLines(ctx context.Context, items []CartItem) ([]pricing.Line, error) {
	lines := make([]pricing.Line, 0, len(items))
	for _, item := range items {
		product, err := s.Catalog.Lookup(ctx, item.ProductID)
		switch {
		case err == nil:
			lines = append(lines, pricing.Line{
				ProductID:   product.ID,
				Title:       product.Title,
				Qty:         item.Qty,
				UnitPrice:   product.Price,
				DiscountBps: product.DiscountBps,
			})
		case errors.Is(err, catalog.ErrNotFound):
			if item.UnitPrice == nil {
				return nil, fmt.Errorf("product %s: %w", item.ProductID, ErrProductNotFound)
			}
			if s.Logger != nil {
				s.Logger.Debug().
					Str("product_id", item.ProductID.String()).
					Msg("product missing from catalog, using client price")
			}
			lines = append(lines, pricing.Line{
				ProductID: item.ProductID,
				Qty:       item.Qty,
				UnitPrice: *item.UnitPrice,
			})
		default:
			return nil, err
		}
	}
	return lines, nil
}

// History returns a page of the user's point ledger, newest first.
func (s *Service) History(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]LedgerEntry, error) {
	if s.Ledger == nil {
		return nil, errors.New("loyalty: ledger reader not configured")
	}
	return s.Ledger.LedgerEntries(ctx, userID, limit, offset)
}

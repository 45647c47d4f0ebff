package pos

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/noah-isme/loyalty-api/internal/catalog"
	"github.com/noah-isme/loyalty-api/internal/loyalty"
	"github.com/noah-isme/loyalty-api/internal/pricing"
)

// Lookup resolves products for scanning.
type Lookup interface {
	Lookup(ctx context.Context, id uuid.UUID) (catalog.Product, error)
	LookupSKU(ctx context.Context, sku string) (catalog.Product, error)
}

// Service encapsulates register operations: scanning items onto a terminal
// cart and quoting the transaction with promotions and loyalty.
type Service struct {
	Store   *Store
	Catalog Lookup
	Balance loyalty.BalanceReader
	Rates   loyalty.Rates
	Now     func() time.Time
}

func (s *Service) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Scan adds qty units of the product with the given SKU to the terminal cart,
// incrementing the line if the product was already scanned.
func (s *Service) Scan(ctx context.Context, terminalID, sku string, qty int) (Cart, error) {
	if s == nil || s.Store == nil || s.Catalog == nil {
		return Cart{}, errors.New("pos: service not configured")
	}
	if terminalID == "" {
		return Cart{}, fmt.Errorf("terminal id required: %w", ErrInvalidInput)
	}
	if qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	product, err := s.Catalog.LookupSKU(ctx, sku)
	if err != nil {
		return Cart{}, err
	}
	cart, err := s.Store.Load(ctx, terminalID)
	if err != nil {
		return Cart{}, err
	}
	found := false
	for i := range cart.Items {
		if cart.Items[i].ProductID == product.ID {
			cart.Items[i].Qty += qty
			found = true
			break
		}
	}
	if !found {
		cart.Items = append(cart.Items, Item{
			ProductID:   product.ID,
			Title:       product.Title,
			SKU:         product.SKU,
			Qty:         qty,
			UnitPrice:   product.Price,
			DiscountBps: product.DiscountBps,
		})
	}
	cart.UpdatedAt = s.now()
	if err := s.Store.Save(ctx, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

// SetQty overrides the quantity of a scanned line.
func (s *Service) SetQty(ctx context.Context, terminalID string, productID uuid.UUID, qty int) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("pos: service not configured")
	}
	if qty <= 0 {
		return Cart{}, fmt.Errorf("qty must be positive: %w", ErrInvalidInput)
	}
	cart, err := s.Store.Load(ctx, terminalID)
	if err != nil {
		return Cart{}, err
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items[i].Qty = qty
			cart.UpdatedAt = s.now()
			if err := s.Store.Save(ctx, cart); err != nil {
				return Cart{}, err
			}
			return cart, nil
		}
	}
	return Cart{}, fmt.Errorf("product %s not on cart: %w", productID, ErrNotFound)
}

// Remove drops a scanned line from the cart.
func (s *Service) Remove(ctx context.Context, terminalID string, productID uuid.UUID) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("pos: service not configured")
	}
	cart, err := s.Store.Load(ctx, terminalID)
	if err != nil {
		return Cart{}, err
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			cart.UpdatedAt = s.now()
			if err := s.Store.Save(ctx, cart); err != nil {
				return Cart{}, err
			}
			return cart, nil
		}
	}
	return Cart{}, fmt.Errorf("product %s not on cart: %w", productID, ErrNotFound)
}

// Get returns the current cart for a terminal.
func (s *Service) Get(ctx context.Context, terminalID string) (Cart, error) {
	if s == nil || s.Store == nil {
		return Cart{}, errors.New("pos: service not configured")
	}
	return s.Store.Load(ctx, terminalID)
}

// Clear empties the terminal cart after checkout or cancellation.
func (s *Service) Clear(ctx context.Context, terminalID string) error {
	if s == nil || s.Store == nil {
		return errors.New("pos: service not configured")
	}
	return s.Store.Clear(ctx, terminalID)
}

// QuoteResult is the priced view of a terminal cart, optionally with a
// loyalty redemption suggestion when a member is attached.
type QuoteResult struct {
	Items                []pricing.Priced `json:"items"`
	Subtotal             pricing.Money    `json:"subtotal"`
	Loyalty              *loyalty.Quote   `json:"loyalty,omitempty"`
	EarnedPointsEstimate int64            `json:"earnedPointsEstimate"`
}

// Quote prices the terminal cart with captured promotions. When memberID is
// set the member's balance drives a redemption suggestion.
func (s *Service) Quote(ctx context.Context, terminalID string, memberID *uuid.UUID) (QuoteResult, error) {
	if s == nil || s.Store == nil {
		return QuoteResult{}, errors.New("pos: service not configured")
	}
	cart, err := s.Store.Load(ctx, terminalID)
	if err != nil {
		return QuoteResult{}, err
	}
	lines := make([]pricing.Line, 0, len(cart.Items))
	for _, item := range cart.Items {
		lines = append(lines, pricing.Line{
			ProductID:   item.ProductID,
			Title:       item.Title,
			Qty:         item.Qty,
			UnitPrice:   item.UnitPrice,
			DiscountBps: item.DiscountBps,
		})
	}
	priced, subtotal, err := pricing.ComputeLines(lines)
	if err != nil {
		return QuoteResult{}, fmt.Errorf("%w: %s", ErrInvalidInput, err)
	}
	result := QuoteResult{
		Items:                priced,
		Subtotal:             subtotal,
		EarnedPointsEstimate: s.Rates.EarnEstimate(subtotal),
	}
	if memberID != nil && s.Balance != nil {
		balance, err := s.Balance.UserPoints(ctx, *memberID)
		if err != nil {
			return QuoteResult{}, err
		}
		quote := s.Rates.Quote(loyalty.QuoteInput{UserPoints: balance, Subtotal: subtotal})
		result.Loyalty = &quote
		result.EarnedPointsEstimate = s.Rates.EarnEstimate(quote.TotalPayable)
	}
	return result, nil
}

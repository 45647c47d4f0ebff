package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/noah-isme/loyalty-api/internal/cache"
	"github.com/noah-isme/loyalty-api/internal/pricing"
)

// ErrNotFound indicates the requested product does not exist or is inactive.
var ErrNotFound = errors.New("catalog: product not found")

// Product is the pricing-relevant view of a catalog entry. DiscountBps is the
// currently active promotion in basis points of the unit price.
type Product struct {
	ID          uuid.UUID     `json:"id"`
	Title       string        `json:"title"`
	SKU         string        `json:"sku"`
	Price       pricing.Money `json:"price"`
	DiscountBps int32         `json:"discountBps"`
	Active      bool          `json:"active"`
}

type queryProvider interface {
	ProductByID(ctx context.Context, id uuid.UUID) (Product, error)
	ProductBySKU(ctx context.Context, sku string) (Product, error)
}

// Service resolves products for pricing, with a Redis read-through cache in
// front of the store. Cache keys are tenant-prefixed.
type Service struct {
	queries queryProvider
	cache   *Cache
}

// NewService constructs a Service instance.
func NewService(queries queryProvider, c *Cache) (*Service, error) {
	if queries == nil {
		return nil, errors.New("catalog: queries provider is required")
	}
	return &Service{queries: queries, cache: c}, nil
}

// Lookup returns the product with the given id. Inactive products are treated
// as absent so expired listings stop pricing immediately.
func (s *Service) Lookup(ctx context.Context, id uuid.UUID) (Product, error) {
	key := cache.KeyProduct(ctx, id.String())
	if s.cache != nil {
		var cached Product
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			if !cached.Active {
				return Product{}, ErrNotFound
			}
			return cached, nil
		}
	}
	product, err := s.queries.ProductByID(ctx, id)
	if err != nil {
		return Product{}, err
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, product)
	}
	if !product.Active {
		return Product{}, ErrNotFound
	}
	return product, nil
}

// LookupSKU resolves a product by its barcode/SKU, used by POS scanning.
func (s *Service) LookupSKU(ctx context.Context, sku string) (Product, error) {
	if sku == "" {
		return Product{}, fmt.Errorf("%w: empty sku", ErrNotFound)
	}
	key := cache.KeyProductSKU(ctx, sku)
	if s.cache != nil {
		var cached Product
		ok, err := s.cache.GetJSON(ctx, key, &cached)
		if err == nil && ok {
			if !cached.Active {
				return Product{}, ErrNotFound
			}
			return cached, nil
		}
	}
	product, err := s.queries.ProductBySKU(ctx, sku)
	if err != nil {
		return Product{}, err
	}
	if s.cache != nil {
		_ = s.cache.SetJSON(ctx, key, product)
	}
	if !product.Active {
		return Product{}, ErrNotFound
	}
	return product, nil
}

// Evict drops the cached entries for a product after a catalog change.
func (s *Service) Evict(ctx context.Context, product Product) error {
	if s.cache == nil {
		return nil
	}
	var joined error
	if err := s.cache.Invalidate(ctx, cache.KeyProduct(ctx, product.ID.String())); err != nil {
		joined = errors.Join(joined, err)
	}
	if product.SKU != "" {
		if err := s.cache.Invalidate(ctx, cache.KeyProductSKU(ctx, product.SKU)); err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}

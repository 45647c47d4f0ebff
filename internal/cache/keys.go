package cache

import (
	"context"

	"github.com/noah-isme/loyalty-api/internal/tenant"
)

// KeyProduct returns a per-tenant cache key for a product.
func KeyProduct(ctx context.Context, id string) string {
	base := "product:" + id
	if t, ok := tenant.From(ctx); ok {
		return t + ":" + base
	}
	return base
}

// KeyProductSKU returns a per-tenant cache key for a barcode/SKU lookup.
func KeyProductSKU(ctx context.Context, sku string) string {
	base := "product:sku:" + sku
	if t, ok := tenant.From(ctx); ok {
		return t + ":" + base
	}
	return base
}

// KeyTerminalCart returns a per-tenant key for a POS terminal cart.
func KeyTerminalCart(ctx context.Context, terminalID string) string {
	base := "pos:cart:" + terminalID
	if t, ok := tenant.From(ctx); ok {
		return t + ":" + base
	}
	return base
}

// KeySettleLock returns a per-tenant lock key serialising settlement per user.
func KeySettleLock(ctx context.Context, userID string) string {
	base := "loyalty:settle:" + userID
	if t, ok := tenant.From(ctx); ok {
		return t + ":" + base
	}
	return base
}

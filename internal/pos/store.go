package pos

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/loyalty-api/internal/cache"
	"github.com/noah-isme/loyalty-api/internal/pricing"
)

// ErrNotFound indicates the requested terminal cart could not be located.
var ErrNotFound = errors.New("pos: cart not found")

// ErrInvalidInput is returned when the provided payload is invalid.
var ErrInvalidInput = errors.New("pos: invalid input")

// Item is one scanned line on a terminal cart. Pricing data is captured at
// scan time so the register does not shift mid-transaction.
type Item struct {
	ProductID   uuid.UUID     `json:"productId"`
	Title       string        `json:"title"`
	SKU         string        `json:"sku"`
	Qty         int           `json:"qty"`
	UnitPrice   pricing.Money `json:"unitPrice"`
	DiscountBps int32         `json:"discountBps"`
}

// Cart is the state of one register terminal. Each terminal has its own cart
// keyed by terminal id, so registers never see each other's scans.
type Cart struct {
	TerminalID string    `json:"terminalId"`
	Items      []Item    `json:"items"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Store keeps terminal carts in Redis with a rolling TTL. Abandoned carts
// expire on their own.
type Store struct {
	R   *redis.Client
	TTL time.Duration
}

func (s *Store) ttl() time.Duration {
	if s == nil || s.TTL <= 0 {
		return 4 * time.Hour
	}
	return s.TTL
}

// Load returns the cart for a terminal. A missing key yields an empty cart.
func (s *Store) Load(ctx context.Context, terminalID string) (Cart, error) {
	if s == nil || s.R == nil {
		return Cart{}, errors.New("pos: store not configured")
	}
	key := cache.KeyTerminalCart(ctx, terminalID)
	data, err := s.R.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return Cart{TerminalID: terminalID, Items: []Item{}}, nil
		}
		return Cart{}, err
	}
	var cart Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return Cart{}, err
	}
	if cart.Items == nil {
		cart.Items = []Item{}
	}
	cart.TerminalID = terminalID
	return cart, nil
}

// Save persists the cart and refreshes its TTL.
func (s *Store) Save(ctx context.Context, cart Cart) error {
	if s == nil || s.R == nil {
		return errors.New("pos: store not configured")
	}
	data, err := json.Marshal(cart)
	if err != nil {
		return err
	}
	return s.R.Set(ctx, cache.KeyTerminalCart(ctx, cart.TerminalID), data, s.ttl()).Err()
}

// Clear removes the cart for a terminal.
func (s *Store) Clear(ctx context.Context, terminalID string) error {
	if s == nil || s.R == nil {
		return errors.New("pos: store not configured")
	}
	return s.R.Del(ctx, cache.KeyTerminalCart(ctx, terminalID)).Err()
}

package loyalty

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/loyalty-api/internal/cache"
	"github.com/noah-isme/loyalty-api/internal/events"
	"github.com/noah-isme/loyalty-api/internal/lock"
	"github.com/noah-isme/loyalty-api/internal/obs"
	"github.com/noah-isme/loyalty-api/internal/pricing"
)

var (
	// ErrOrderNotFound indicates the order to settle does not exist.
	ErrOrderNotFound = errors.New("loyalty: order not found")
	// ErrUserNotFound indicates the order's owning user cannot be resolved.
	ErrUserNotFound = errors.New("loyalty: user not found")
	// ErrOrderNotPaid is returned when settlement is attempted before payment confirmation.
	ErrOrderNotPaid = errors.New("loyalty: order not paid")
	// ErrInvalidInput is returned when the provided arguments are invalid.
	ErrInvalidInput = errors.New("loyalty: invalid input")
	// ErrProductNotFound indicates a cart item references an unknown product
	// and no fallback price was supplied.
	ErrProductNotFound = errors.New("loyalty: product not found")
)

// StatusPaid is the order status recorded by the payment collaborator once
// payment succeeds. Settlement only runs against paid orders.
const StatusPaid = "PAID"

// Ledger entry kinds. Redeem entries log a negative point delta, earn entries
// a positive one, so the ledger sums to the current balance.
const (
	LedgerEarn   = "earn"
	LedgerRedeem = "redeem"
)

// Order is the slice of an order relevant to settlement.
type Order struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	TotalPrice    pricing.Money
	Status        string
	AppliedPoints int64
	EarnedPoints  int64
	BalanceAfter  int64
	SettledAt     *time.Time
}

// LedgerEntry is a single append-only point movement on a user's ledger.
type LedgerEntry struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"-"`
	OrderID   uuid.UUID `json:"orderId"`
	Kind      string    `json:"type"`
	Points    int64     `json:"points"`
	Note      string    `json:"note,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SettlementTx exposes the storage operations settlement performs inside a
// single transaction.
type SettlementTx interface {
	OrderForUpdate(ctx context.Context, orderID uuid.UUID) (Order, error)
	UserPointsForUpdate(ctx context.Context, userID uuid.UUID) (int64, error)
	SetUserPoints(ctx context.Context, userID uuid.UUID, balance int64) error
	AppendLedger(ctx context.Context, entry LedgerEntry) error
	MarkOrderSettled(ctx context.Context, orderID uuid.UUID, applied, earned, newBalance int64, at time.Time) error
}

// SettlementStore runs settlement transactions against durable storage.
type SettlementStore interface {
	OrderOwner(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error)
	InTx(ctx context.Context, fn func(SettlementTx) error) error
}

// Receipt is the result of a settlement. Replayed is set when the order had
// already been settled and the recorded values were returned without mutation.
type Receipt struct {
	Deducted   int64 `json:"deducted"`
	Earned     int64 `json:"earned"`
	NewBalance int64 `json:"newBalance"`
	Replayed   bool  `json:"replayed"`
}

// Settler applies the post-payment loyalty settlement: debit redeemed points,
// credit earned points, append ledger entries, and freeze the order's loyalty
// summary. Settlement is at-most-once per order; concurrent settlements for
// the same user are serialised by a per-user lock plus row locks inside the
// transaction.
type Settler struct {
	Store   SettlementStore
	Locker  lock.Locker
	LockTTL time.Duration
	Rates   Rates
	Events  *events.Bus
	Logger  *zerolog.Logger
	Now     func() time.Time
}

func (s *Settler) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Settle finalises loyalty accounting for a paid order. Calling it again for
// the same order returns the recorded receipt without touching the ledger.
func (s *Settler) Settle(ctx context.Context, orderID uuid.UUID, pointsUsed int64) (Receipt, error) {
	if s == nil || s.Store == nil {
		return Receipt{}, errors.New("loyalty: settler not configured")
	}
	if pointsUsed < 0 {
		return Receipt{}, fmt.Errorf("pointsUsed must not be negative: %w", ErrInvalidInput)
	}

	start := time.Now()
	userID, err := s.Store.OrderOwner(ctx, orderID)
	if err != nil {
		s.observe("error", start)
		return Receipt{}, err
	}

	var receipt Receipt
	run := func(ctx context.Context) error {
		return s.Store.InTx(ctx, func(tx SettlementTx) error {
			r, err := s.settleInTx(ctx, tx, orderID, pointsUsed)
			if err != nil {
				return err
			}
			receipt = r
			return nil
		})
	}

	if s.Locker.R != nil {
		key := cache.KeySettleLock(ctx, userID.String())
		err = s.Locker.WithLock(ctx, key, s.LockTTL, run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		s.observe("error", start)
		return Receipt{}, err
	}

	if receipt.Replayed {
		s.observe("replayed", start)
		return receipt, nil
	}
	s.observe("settled", start)
	if obs.PointsRedeemedTotal != nil {
		obs.PointsRedeemedTotal.Add(float64(receipt.Deducted))
	}
	if obs.PointsEarnedTotal != nil {
		obs.PointsEarnedTotal.Add(float64(receipt.Earned))
	}
	if s.Events != nil {
		payload := map[string]any{
			"orderId":    orderID.String(),
			"userId":     userID.String(),
			"deducted":   receipt.Deducted,
			"earned":     receipt.Earned,
			"newBalance": receipt.NewBalance,
		}
		if _, err := s.Events.Emit(ctx, events.TopicLoyaltySettled, orderID, payload); err != nil && s.Logger != nil {
			s.Logger.Error().Err(err).Str("order_id", orderID.String()).Msg("emit settlement event")
		}
	}
	return receipt, nil
}

func (s *Settler) settleInTx(ctx context.Context, tx SettlementTx, orderID uuid.UUID, pointsUsed int64) (Receipt, error) {
	order, err := tx.OrderForUpdate(ctx, orderID)
	if err != nil {
		return Receipt{}, err
	}

	if order.SettledAt != nil {
		// The order froze its post-settlement balance, so replays report the
		// same receipt even after later settlements moved the live balance.
		return Receipt{
			Deducted:   order.AppliedPoints,
			Earned:     order.EarnedPoints,
			NewBalance: order.BalanceAfter,
			Replayed:   true,
		}, nil
	}

	if order.Status != StatusPaid {
		return Receipt{}, fmt.Errorf("order %s status %q: %w", orderID, order.Status, ErrOrderNotPaid)
	}

	balance, err := tx.UserPointsForUpdate(ctx, order.UserID)
	if err != nil {
		return Receipt{}, err
	}

	toDeduct := pointsUsed
	if toDeduct > balance {
		// Policy carried from the original system: the redemption is clamped
		// to the live balance rather than rejected. A clamp can mean another
		// settlement raced this one, so it is logged and counted.
		toDeduct = balance
		if s.Logger != nil {
			s.Logger.Warn().
				Str("order_id", orderID.String()).
				Int64("requested", pointsUsed).
				Int64("deducted", toDeduct).
				Msg("redemption clamped to available balance")
		}
		if obs.SettlementClampTotal != nil {
			obs.SettlementClampTotal.Inc()
		}
	}

	earned := s.Rates.EarnEstimate(order.TotalPrice)
	newBalance := balance - toDeduct + earned
	if err := tx.SetUserPoints(ctx, order.UserID, newBalance); err != nil {
		return Receipt{}, err
	}

	now := s.now()
	if toDeduct > 0 {
		if err := tx.AppendLedger(ctx, LedgerEntry{
			ID:        uuid.New(),
			UserID:    order.UserID,
			OrderID:   orderID,
			Kind:      LedgerRedeem,
			Points:    -toDeduct,
			Note:      "redeemed at checkout",
			CreatedAt: now,
		}); err != nil {
			return Receipt{}, err
		}
	}
	if earned > 0 {
		if err := tx.AppendLedger(ctx, LedgerEntry{
			ID:        uuid.New(),
			UserID:    order.UserID,
			OrderID:   orderID,
			Kind:      LedgerEarn,
			Points:    earned,
			Note:      "earned on order total",
			CreatedAt: now,
		}); err != nil {
			return Receipt{}, err
		}
	}

	if err := tx.MarkOrderSettled(ctx, orderID, toDeduct, earned, newBalance, now); err != nil {
		return Receipt{}, err
	}

	return Receipt{Deducted: toDeduct, Earned: earned, NewBalance: newBalance}, nil
}

func (s *Settler) observe(result string, start time.Time) {
	if obs.SettlementTotal != nil {
		obs.SettlementTotal.WithLabelValues(result).Inc()
	}
	if obs.SettlementLatency != nil {
		obs.SettlementLatency.WithLabelValues(result).Observe(obs.DurationMillis(time.Since(start)))
	}
}

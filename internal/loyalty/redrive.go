package loyalty

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/loyalty-api/internal/tenant"
)

// PendingSettlement is a paid order whose loyalty accounting has not run yet,
// together with the tenant that owns it.
type PendingSettlement struct {
	Tenant        string
	OrderID       uuid.UUID
	UserID        uuid.UUID
	RequestedUsed int64
}

// PendingLister finds paid orders without a settlement across all tenants,
// oldest first. Orders created at or after olderThan are excluded.
type PendingLister interface {
	ListUnsettledPaid(ctx context.Context, olderThan time.Time, limit int32) ([]PendingSettlement, error)
}

// Redriver re-runs settlement for paid orders whose synchronous finalize call
// was lost. Each order settles under its own tenant so lock keys and queries
// scope to the right rows. Orders younger than Grace are left alone: the
// shopper's finalize may still be in flight, and settling first would freeze
// the order with a zero redemption.
type Redriver struct {
	Orders    PendingLister
	Settler   *Settler
	BatchSize int32
	Grace     time.Duration
	Logger    *zerolog.Logger
	Now       func() time.Time
}

func (r *Redriver) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// Run settles one batch of overdue orders. Per-order failures are logged and
// skipped so one bad order cannot stall the sweep.
func (r *Redriver) Run(ctx context.Context) error {
	if r == nil || r.Orders == nil || r.Settler == nil {
		return errors.New("loyalty: redriver not configured")
	}
	cutoff := r.now().Add(-r.Grace)
	pending, err := r.Orders.ListUnsettledPaid(ctx, cutoff, r.BatchSize)
	if err != nil {
		return err
	}
	for _, p := range pending {
		tctx := ctx
		if p.Tenant != "" {
			tctx = tenant.WithTenant(ctx, p.Tenant)
		}
		receipt, err := r.Settler.Settle(tctx, p.OrderID, p.RequestedUsed)
		if err != nil {
			if r.Logger != nil {
				r.Logger.Error().Err(err).
					Str("tenant", p.Tenant).
					Str("order_id", p.OrderID.String()).
					Msg("re-drive settlement")
			}
			continue
		}
		if r.Logger != nil {
			r.Logger.Info().
				Str("tenant", p.Tenant).
				Str("order_id", p.OrderID.String()).
				Int64("deducted", receipt.Deducted).
				Int64("earned", receipt.Earned).
				Bool("replayed", receipt.Replayed).
				Msg("settled order")
		}
	}
	return nil
}

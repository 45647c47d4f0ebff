package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/noah-isme/loyalty-api/internal/loyalty"
	"github.com/noah-isme/loyalty-api/internal/pricing"
)

// OrdersRepo manages order rows outside of settlement transactions.
type OrdersRepo struct {
	Pool *pgxpool.Pool
}

// CreateOrder inserts an order in the given status.
func (r OrdersRepo) CreateOrder(ctx context.Context, userID uuid.UUID, total pricing.Money, status string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := r.Pool.Exec(ctx,
		`INSERT INTO orders (id, tenant_id, user_id, total_price, status)
		 VALUES ($1, $2, $3, $4, $5)`,
		id, tenantSlug(ctx), userID, total, status)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

// MarkOrderPaid transitions an order into the paid status.
func (r OrdersRepo) MarkOrderPaid(ctx context.Context, orderID uuid.UUID) error {
	tag, err := r.Pool.Exec(ctx,
		`UPDATE orders SET status = $1 WHERE id = $2 AND tenant_id = $3`,
		loyalty.StatusPaid, orderID, tenantSlug(ctx))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return loyalty.ErrOrderNotFound
	}
	return nil
}

// ListUnsettledPaid returns paid orders without a settlement, oldest first.
// The worker re-drives these when the synchronous settlement call was lost.
// The sweep deliberately ignores the context's tenant: it runs across all
// tenants and each row carries its own tenant_id, so callers settle every
// order under the tenant that owns it.
func (r OrdersRepo) ListUnsettledPaid(ctx context.Context, olderThan time.Time, limit int32) ([]loyalty.PendingSettlement, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.Pool.Query(ctx,
		`SELECT tenant_id, id, user_id, loyalty_requested_points
		 FROM orders
		 WHERE status = $1 AND settled_at IS NULL AND created_at < $2
		 ORDER BY created_at ASC
		 LIMIT $3`,
		loyalty.StatusPaid, olderThan, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pending := make([]loyalty.PendingSettlement, 0, limit)
	for rows.Next() {
		var p loyalty.PendingSettlement
		if err := rows.Scan(&p.Tenant, &p.OrderID, &p.UserID, &p.RequestedUsed); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

// SetRequestedPoints records the redemption the shopper asked for at checkout
// so a re-driven settlement debits the same amount.
func (r OrdersRepo) SetRequestedPoints(ctx context.Context, orderID uuid.UUID, points int64) error {
	tag, err := r.Pool.Exec(ctx,
		`UPDATE orders SET loyalty_requested_points = $1 WHERE id = $2 AND tenant_id = $3`,
		points, orderID, tenantSlug(ctx))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return loyalty.ErrOrderNotFound
	}
	return nil
}

// OrderStatus fetches the current status of an order.
func (r OrdersRepo) OrderStatus(ctx context.Context, orderID uuid.UUID) (string, error) {
	var status string
	err := r.Pool.QueryRow(ctx,
		`SELECT status FROM orders WHERE id = $1 AND tenant_id = $2`,
		orderID, tenantSlug(ctx)).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", loyalty.ErrOrderNotFound
		}
		return "", err
	}
	return status, nil
}

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
)

// LoyaltyStore runs settlement transactions on Postgres. Row locks taken by
// the FOR UPDATE reads keep concurrent settlements for the same user serial
// even if the distributed lock is bypassed.
type LoyaltyStore struct {
	Pool *pgxpool.Pool
}

// OrderOwner resolves the user an order belongs to.
func (s LoyaltyStore) OrderOwner(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	var userID uuid.UUID
	err := s.Pool.QueryRow(ctx,
		`SELECT user_id FROM orders WHERE id = $1 AND tenant_id = $2`,
		orderID, tenantSlug(ctx)).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, loyalty.ErrOrderNotFound
		}
		return uuid.Nil, err
	}
	return userID, nil
}

// InTx executes fn inside a single database transaction.
func (s LoyaltyStore) InTx(ctx context.Context, fn func(loyalty.SettlementTx) error) error {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin settlement tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(settlementTx{tx: tx, tenant: tenantSlug(ctx)}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// LedgerEntries lists a user's point movements, newest first.
func (s LoyaltyStore) LedgerEntries(ctx context.Context, userID uuid.UUID, limit, offset int32) ([]loyalty.LedgerEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.Pool.Query(ctx,
		`SELECT id, user_id, order_id, kind, points, note, created_at
		 FROM loyalty_ledger
		 WHERE user_id = $1 AND tenant_id = $2
		 ORDER BY created_at DESC, id DESC
		 LIMIT $3 OFFSET $4`,
		userID, tenantSlug(ctx), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	entries := make([]loyalty.LedgerEntry, 0, limit)
	for rows.Next() {
		var e loyalty.LedgerEntry
		if err := rows.Scan(&e.ID, &e.UserID, &e.OrderID, &e.Kind, &e.Points, &e.Note, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

type settlementTx struct {
	tx     pgx.Tx
	tenant string
}

func (t settlementTx) OrderForUpdate(ctx context.Context, orderID uuid.UUID) (loyalty.Order, error) {
	var o loyalty.Order
	err := t.tx.QueryRow(ctx,
		`SELECT id, user_id, total_price, status, loyalty_applied_points, loyalty_earned_points, loyalty_balance_after, settled_at
		 FROM orders WHERE id = $1 AND tenant_id = $2
		 FOR UPDATE`,
		orderID, t.tenant).Scan(&o.ID, &o.UserID, &o.TotalPrice, &o.Status, &o.AppliedPoints, &o.EarnedPoints, &o.BalanceAfter, &o.SettledAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return loyalty.Order{}, loyalty.ErrOrderNotFound
		}
		return loyalty.Order{}, err
	}
	return o, nil
}

func (t settlementTx) UserPointsForUpdate(ctx context.Context, userID uuid.UUID) (int64, error) {
	var points int64
	err := t.tx.QueryRow(ctx,
		`SELECT loyalty_points FROM users WHERE id = $1 AND tenant_id = $2 FOR UPDATE`,
		userID, t.tenant).Scan(&points)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, loyalty.ErrUserNotFound
		}
		return 0, err
	}
	return points, nil
}

func (t settlementTx) SetUserPoints(ctx context.Context, userID uuid.UUID, balance int64) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE users SET loyalty_points = $1 WHERE id = $2 AND tenant_id = $3`,
		balance, userID, t.tenant)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return loyalty.ErrUserNotFound
	}
	return nil
}

func (t settlementTx) AppendLedger(ctx context.Context, entry loyalty.LedgerEntry) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO loyalty_ledger (id, tenant_id, user_id, order_id, kind, points, note, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ID, t.tenant, entry.UserID, entry.OrderID, entry.Kind, entry.Points, entry.Note, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("append ledger: %w", uniqueViolation(err, "ledger entry already recorded"))
	}
	return nil
}

func (t settlementTx) MarkOrderSettled(ctx context.Context, orderID uuid.UUID, applied, earned, newBalance int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders
		 SET loyalty_applied_points = $1, loyalty_earned_points = $2, loyalty_balance_after = $3, settled_at = $4
		 WHERE id = $5 AND tenant_id = $6 AND settled_at IS NULL`,
		applied, earned, newBalance, at, orderID, t.tenant)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return loyalty.ErrOrderNotFound
	}
	return nil
}

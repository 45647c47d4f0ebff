package loyalty_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loyalty-api/internal/lock"
	"github.com/noah-isme/loyalty-api/internal/loyalty"
)

type memStore struct {
	mu     sync.Mutex
	orders map[uuid.UUID]loyalty.Order
	points map[uuid.UUID]int64
	ledger []loyalty.LedgerEntry
}

func newMemStore() *memStore {
	return &memStore{
		orders: map[uuid.UUID]loyalty.Order{},
		points: map[uuid.UUID]int64{},
	}
}

func (m *memStore) OrderOwner(_ context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.orders[orderID]
	if !ok {
		return uuid.Nil, loyalty.ErrOrderNotFound
	}
	return order.UserID, nil
}

func (m *memStore) InTx(_ context.Context, fn func(loyalty.SettlementTx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(&memTx{store: m})
}

type memTx struct {
	store *memStore
}

func (t *memTx) OrderForUpdate(_ context.Context, orderID uuid.UUID) (loyalty.Order, error) {
	order, ok := t.store.orders[orderID]
	if !ok {
		return loyalty.Order{}, loyalty.ErrOrderNotFound
	}
	return order, nil
}

func (t *memTx) UserPointsForUpdate(_ context.Context, userID uuid.UUID) (int64, error) {
	balance, ok := t.store.points[userID]
	if !ok {
		return 0, loyalty.ErrUserNotFound
	}
	return balance, nil
}

func (t *memTx) SetUserPoints(_ context.Context, userID uuid.UUID, balance int64) error {
	t.store.points[userID] = balance
	return nil
}

func (t *memTx) AppendLedger(_ context.Context, entry loyalty.LedgerEntry) error {
	t.store.ledger = append(t.store.ledger, entry)
	return nil
}

func (t *memTx) MarkOrderSettled(_ context.Context, orderID uuid.UUID, applied, earned, newBalance int64, at time.Time) error {
	order := t.store.orders[orderID]
	order.AppliedPoints = applied
	order.EarnedPoints = earned
	order.BalanceAfter = newBalance
	order.SettledAt = &at
	t.store.orders[orderID] = order
	return nil
}

func seedOrder(store *memStore, status string, total int64, balance int64) (uuid.UUID, uuid.UUID) {
	orderID := uuid.New()
	userID := uuid.New()
	store.orders[orderID] = loyalty.Order{
		ID:         orderID,
		UserID:     userID,
		TotalPrice: total,
		Status:     status,
	}
	store.points[userID] = balance
	return orderID, userID
}

func TestSettleDebitsAndCredits(t *testing.T) {
	store := newMemStore()
	orderID, userID := seedOrder(store, loyalty.StatusPaid, 13000, 200)
	settler := &loyalty.Settler{Store: store}

	receipt, err := settler.Settle(context.Background(), orderID, 150)
	require.NoError(t, err)
	require.False(t, receipt.Replayed)
	require.Equal(t, int64(150), receipt.Deducted)
	require.Equal(t, int64(13), receipt.Earned)
	require.Equal(t, int64(63), receipt.NewBalance)
	require.Equal(t, int64(63), store.points[userID])

	require.Len(t, store.ledger, 2)
	require.Equal(t, loyalty.LedgerRedeem, store.ledger[0].Kind)
	require.Equal(t, int64(-150), store.ledger[0].Points)
	require.Equal(t, loyalty.LedgerEarn, store.ledger[1].Kind)
	require.Equal(t, int64(13), store.ledger[1].Points)

	order := store.orders[orderID]
	require.NotNil(t, order.SettledAt)
	require.Equal(t, int64(150), order.AppliedPoints)
	require.Equal(t, int64(13), order.EarnedPoints)
}

func TestSettleReplayIsANoOp(t *testing.T) {
	store := newMemStore()
	orderID, userID := seedOrder(store, loyalty.StatusPaid, 13000, 200)
	settler := &loyalty.Settler{Store: store}
	ctx := context.Background()

	first, err := settler.Settle(ctx, orderID, 150)
	require.NoError(t, err)

	second, err := settler.Settle(ctx, orderID, 150)
	require.NoError(t, err)
	require.True(t, second.Replayed)
	require.Equal(t, first.Deducted, second.Deducted)
	require.Equal(t, first.Earned, second.Earned)
	require.Equal(t, first.NewBalance, second.NewBalance)
	require.Equal(t, int64(63), store.points[userID])
	require.Len(t, store.ledger, 2)
}

func TestSettleReplayReportsSettledTimeBalance(t *testing.T) {
	store := newMemStore()
	firstOrder, userID := seedOrder(store, loyalty.StatusPaid, 13000, 200)
	secondOrder := uuid.New()
	store.orders[secondOrder] = loyalty.Order{
		ID:         secondOrder,
		UserID:     userID,
		TotalPrice: 5000,
		Status:     loyalty.StatusPaid,
	}
	settler := &loyalty.Settler{Store: store}
	ctx := context.Background()

	first, err := settler.Settle(ctx, firstOrder, 150)
	require.NoError(t, err)
	require.Equal(t, int64(63), first.NewBalance)

	// A later settlement moves the live balance.
	_, err = settler.Settle(ctx, secondOrder, 0)
	require.NoError(t, err)
	require.Equal(t, int64(68), store.points[userID])

	replay, err := settler.Settle(ctx, firstOrder, 150)
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Equal(t, first.NewBalance, replay.NewBalance)
}

func TestSettleClampsToBalance(t *testing.T) {
	store := newMemStore()
	orderID, userID := seedOrder(store, loyalty.StatusPaid, 13000, 100)
	settler := &loyalty.Settler{Store: store}

	receipt, err := settler.Settle(context.Background(), orderID, 150)
	require.NoError(t, err)
	require.Equal(t, int64(100), receipt.Deducted)
	require.Equal(t, int64(13), receipt.Earned)
	require.Equal(t, int64(13), receipt.NewBalance)
	require.Equal(t, int64(13), store.points[userID])
}

func TestSettleZeroPointsStillEarns(t *testing.T) {
	store := newMemStore()
	orderID, _ := seedOrder(store, loyalty.StatusPaid, 5000, 40)
	settler := &loyalty.Settler{Store: store}

	receipt, err := settler.Settle(context.Background(), orderID, 0)
	require.NoError(t, err)
	require.Equal(t, int64(0), receipt.Deducted)
	require.Equal(t, int64(5), receipt.Earned)
	require.Len(t, store.ledger, 1)
	require.Equal(t, loyalty.LedgerEarn, store.ledger[0].Kind)
}

func TestSettleRejectsUnpaidOrder(t *testing.T) {
	store := newMemStore()
	orderID, userID := seedOrder(store, "PENDING", 13000, 200)
	settler := &loyalty.Settler{Store: store}

	_, err := settler.Settle(context.Background(), orderID, 150)
	require.ErrorIs(t, err, loyalty.ErrOrderNotPaid)
	require.Equal(t, int64(200), store.points[userID])
	require.Empty(t, store.ledger)
}

func TestSettleUnknownOrder(t *testing.T) {
	settler := &loyalty.Settler{Store: newMemStore()}
	_, err := settler.Settle(context.Background(), uuid.New(), 10)
	require.ErrorIs(t, err, loyalty.ErrOrderNotFound)
}

func TestSettleNegativePoints(t *testing.T) {
	store := newMemStore()
	orderID, _ := seedOrder(store, loyalty.StatusPaid, 13000, 200)
	settler := &loyalty.Settler{Store: store}
	_, err := settler.Settle(context.Background(), orderID, -1)
	require.ErrorIs(t, err, loyalty.ErrInvalidInput)
}

func TestConcurrentSettlementsSettleOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newMemStore()
	orderID, userID := seedOrder(store, loyalty.StatusPaid, 13000, 200)
	settler := &loyalty.Settler{
		Store:   store,
		Locker:  lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond},
		LockTTL: time.Second,
	}

	const workers = 4
	receipts := make([]loyalty.Receipt, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			receipts[i], errs[i] = settler.Settle(context.Background(), orderID, 150)
		}(i)
	}
	wg.Wait()

	replayed := 0
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, int64(150), receipts[i].Deducted)
		require.Equal(t, int64(13), receipts[i].Earned)
		if receipts[i].Replayed {
			replayed++
		}
	}
	require.Equal(t, workers-1, replayed)
	require.Equal(t, int64(63), store.points[userID])
	require.Len(t, store.ledger, 2)
}

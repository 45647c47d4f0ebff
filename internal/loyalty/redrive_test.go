package loyalty_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loyalty-api/internal/loyalty"
	"github.com/noah-isme/loyalty-api/internal/tenant"
)

// tenantTrackingStore records which tenant each settlement ran under.
type tenantTrackingStore struct {
	*memStore
	recMu   sync.Mutex
	tenants []string
}

func (s *tenantTrackingStore) OrderOwner(ctx context.Context, orderID uuid.UUID) (uuid.UUID, error) {
	slug, _ := tenant.From(ctx)
	s.recMu.Lock()
	s.tenants = append(s.tenants, slug)
	s.recMu.Unlock()
	return s.memStore.OrderOwner(ctx, orderID)
}

// stubPendingLister hands out a fixed pending set, applying the cutoff
// against per-order creation times the way the database query would.
type stubPendingLister struct {
	pending   []loyalty.PendingSettlement
	createdAt map[uuid.UUID]time.Time
	olderThan time.Time
}

func (s *stubPendingLister) ListUnsettledPaid(_ context.Context, olderThan time.Time, _ int32) ([]loyalty.PendingSettlement, error) {
	s.olderThan = olderThan
	out := make([]loyalty.PendingSettlement, 0, len(s.pending))
	for _, p := range s.pending {
		if created, ok := s.createdAt[p.OrderID]; ok && !created.Before(olderThan) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

func TestRedriverSettlesEachOrderUnderItsTenant(t *testing.T) {
	store := &tenantTrackingStore{memStore: newMemStore()}
	acmeOrder, acmeUser := seedOrder(store.memStore, loyalty.StatusPaid, 13000, 200)
	umbrellaOrder, umbrellaUser := seedOrder(store.memStore, loyalty.StatusPaid, 5000, 50)

	lister := &stubPendingLister{pending: []loyalty.PendingSettlement{
		{Tenant: "acme", OrderID: acmeOrder, UserID: acmeUser, RequestedUsed: 150},
		{Tenant: "umbrella", OrderID: umbrellaOrder, UserID: umbrellaUser, RequestedUsed: 20},
	}}
	redriver := &loyalty.Redriver{
		Orders:  lister,
		Settler: &loyalty.Settler{Store: store},
	}

	require.NoError(t, redriver.Run(context.Background()))

	require.Equal(t, []string{"acme", "umbrella"}, store.tenants)
	require.Equal(t, int64(63), store.points[acmeUser])
	require.Equal(t, int64(35), store.points[umbrellaUser])
	require.NotNil(t, store.orders[acmeOrder].SettledAt)
	require.NotNil(t, store.orders[umbrellaOrder].SettledAt)
}

func TestRedriverPassesGraceCutoff(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lister := &stubPendingLister{}
	redriver := &loyalty.Redriver{
		Orders:  lister,
		Settler: &loyalty.Settler{Store: newMemStore()},
		Grace:   10 * time.Minute,
		Now:     func() time.Time { return now },
	}

	require.NoError(t, redriver.Run(context.Background()))
	require.Equal(t, now.Add(-10*time.Minute), lister.olderThan)
}

// A freshly paid order must not be swept before the shopper's finalize call
// lands, otherwise the order settles with a zero redemption and the real
// request replays it.
func TestRedriverLeavesFreshOrdersForClientFinalize(t *testing.T) {
	now := time.Now()
	store := newMemStore()
	orderID, userID := seedOrder(store, loyalty.StatusPaid, 13000, 200)
	settler := &loyalty.Settler{Store: store}

	lister := &stubPendingLister{
		pending:   []loyalty.PendingSettlement{{OrderID: orderID, UserID: userID}},
		createdAt: map[uuid.UUID]time.Time{orderID: now},
	}
	redriver := &loyalty.Redriver{
		Orders:  lister,
		Settler: settler,
		Grace:   10 * time.Minute,
		Now:     func() time.Time { return now },
	}

	require.NoError(t, redriver.Run(context.Background()))
	require.Empty(t, store.ledger)
	require.Nil(t, store.orders[orderID].SettledAt)

	receipt, err := settler.Settle(context.Background(), orderID, 150)
	require.NoError(t, err)
	require.False(t, receipt.Replayed)
	require.Equal(t, int64(150), receipt.Deducted)
	require.Equal(t, int64(63), store.points[userID])
}

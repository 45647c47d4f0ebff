package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/loyalty-api/internal/catalog"
)

type stubQueries struct {
	byID  map[uuid.UUID]catalog.Product
	bySKU map[string]catalog.Product
	calls int
}

func (s *stubQueries) ProductByID(_ context.Context, id uuid.UUID) (catalog.Product, error) {
	s.calls++
	p, ok := s.byID[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s *stubQueries) ProductBySKU(_ context.Context, sku string) (catalog.Product, error) {
	s.calls++
	p, ok := s.bySKU[sku]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func newTestService(t *testing.T, queries *stubQueries) *catalog.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	svc, err := catalog.NewService(queries, catalog.NewCache(client, time.Minute))
	require.NoError(t, err)
	return svc
}

func TestLookupCachesProduct(t *testing.T) {
	id := uuid.New()
	queries := &stubQueries{byID: map[uuid.UUID]catalog.Product{
		id: {ID: id, Title: "Kopi Arabika 250g", SKU: "KOPI-250", Price: 4500, DiscountBps: 1000, Active: true},
	}}
	svc := newTestService(t, queries)
	ctx := context.Background()

	first, err := svc.Lookup(ctx, id)
	require.NoError(t, err)
	require.Equal(t, int64(4500), first.Price)

	second, err := svc.Lookup(ctx, id)
	require.NoError(t, err)
	require.Equal(t, first, second)
	require.Equal(t, 1, queries.calls)
}

func TestLookupUnknownProduct(t *testing.T) {
	svc := newTestService(t, &stubQueries{byID: map[uuid.UUID]catalog.Product{}})
	_, err := svc.Lookup(context.Background(), uuid.New())
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestLookupInactiveProductIsAbsent(t *testing.T) {
	id := uuid.New()
	queries := &stubQueries{byID: map[uuid.UUID]catalog.Product{
		id: {ID: id, Title: "Discontinued", Price: 100, Active: false},
	}}
	svc := newTestService(t, queries)
	_, err := svc.Lookup(context.Background(), id)
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

func TestLookupSKU(t *testing.T) {
	id := uuid.New()
	queries := &stubQueries{bySKU: map[string]catalog.Product{
		"KOPI-250": {ID: id, Title: "Kopi Arabika 250g", SKU: "KOPI-250", Price: 4500, Active: true},
	}}
	svc := newTestService(t, queries)

	p, err := svc.LookupSKU(context.Background(), "KOPI-250")
	require.NoError(t, err)
	require.Equal(t, id, p.ID)

	_, err = svc.LookupSKU(context.Background(), "")
	require.ErrorIs(t, err, catalog.ErrNotFound)
}

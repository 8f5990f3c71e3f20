package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubStore struct {
	endpoints map[string][]Endpoint
	loads     atomic.Int64
}

func (s *stubStore) ListByMethod(ctx context.Context, method string) ([]Endpoint, error) {
	s.loads.Add(1)
	return s.endpoints[method], nil
}

func billingCatalog() *stubStore {
	return &stubStore{endpoints: map[string][]Endpoint{
		"GET": {
			{ID: 1, Service: "billing", Version: "v1", Method: "GET", Path: "/invoices/{id}", IsActive: true},
			{ID: 2, Service: "", Version: "", Method: "GET", Path: "/health", IsActive: true},
			{ID: 3, Service: "billing", Version: "v1", Method: "GET", Path: "/archive/**", IsActive: false},
		},
	}}
}

func TestResolveDirectTemplate(t *testing.T) {
	m := NewMatcher(billingCatalog())

	desc, err := m.Resolve(context.Background(), "GET", "/invoices/42")
	require.NoError(t, err)
	require.Equal(t, int64(1), desc.ID)
}

func TestResolveCompositePaths(t *testing.T) {
	m := NewMatcher(billingCatalog())

	for _, path := range []string{
		"/api/billing/v1/invoices/42",
		"/api/billing/invoices/42",
		"/invoices/42",
	} {
		desc, err := m.Resolve(context.Background(), "get", path)
		require.NoError(t, err, "path %s", path)
		require.Equal(t, int64(1), desc.ID, "path %s", path)
	}
}

func TestResolveNoCompositeWithoutService(t *testing.T) {
	m := NewMatcher(billingCatalog())

	_, err := m.Resolve(context.Background(), "GET", "/api/billing/health")
	require.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestResolveQueryStringIgnored(t *testing.T) {
	m := NewMatcher(billingCatalog())

	desc, err := m.Resolve(context.Background(), "GET", "/invoices/42?expand=lines")
	require.NoError(t, err)
	require.Equal(t, int64(1), desc.ID)
}

func TestResolveSkipsInactive(t *testing.T) {
	m := NewMatcher(billingCatalog())

	_, err := m.Resolve(context.Background(), "GET", "/archive/2024/01")
	require.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestResolveUncatalogedFailsClosed(t *testing.T) {
	m := NewMatcher(billingCatalog())

	_, err := m.Resolve(context.Background(), "PUT", "/api/unknown/thing")
	require.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestCacheServesWithinTTL(t *testing.T) {
	store := billingCatalog()
	m := NewMatcher(store)

	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	for i := 0; i < 5; i++ {
		_, err := m.Resolve(context.Background(), "GET", "/invoices/1")
		require.NoError(t, err)
	}
	require.Equal(t, int64(1), store.loads.Load())
}

func TestCacheRebuildsAfterTTL(t *testing.T) {
	store := billingCatalog()
	m := NewMatcher(store)

	now := time.Unix(1700000000, 0)
	m.now = func() time.Time { return now }

	_, err := m.Resolve(context.Background(), "GET", "/invoices/1")
	require.NoError(t, err)

	now = now.Add(31 * time.Second)
	_, err = m.Resolve(context.Background(), "GET", "/invoices/1")
	require.NoError(t, err)
	require.Equal(t, int64(2), store.loads.Load())
}

func TestInvalidateClearsCache(t *testing.T) {
	store := billingCatalog()
	m := NewMatcher(store)

	_, err := m.Resolve(context.Background(), "GET", "/invoices/1")
	require.NoError(t, err)

	m.Invalidate()
	_, err = m.Resolve(context.Background(), "GET", "/invoices/1")
	require.NoError(t, err)
	require.Equal(t, int64(2), store.loads.Load())
}

type failingStore struct{}

func (failingStore) ListByMethod(ctx context.Context, method string) ([]Endpoint, error) {
	return nil, errors.New("catalog unavailable")
}

func TestResolveStoreError(t *testing.T) {
	m := NewMatcher(failingStore{})

	_, err := m.Resolve(context.Background(), "GET", "/invoices/1")
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrEndpointNotFound)
}

func TestFirstInsertionOrderWins(t *testing.T) {
	store := &stubStore{endpoints: map[string][]Endpoint{
		"GET": {
			{ID: 10, Method: "GET", Path: "/things/{id}", IsActive: true},
			{ID: 11, Method: "GET", Path: "/things/*", IsActive: true},
		},
	}}
	m := NewMatcher(store)

	desc, err := m.Resolve(context.Background(), "GET", "/things/7")
	require.NoError(t, err)
	require.Equal(t, int64(10), desc.ID)
}

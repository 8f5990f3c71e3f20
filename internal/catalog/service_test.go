package catalog

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type adminStore struct {
	rows map[int64]Endpoint
}

func newAdminStore(rows ...Endpoint) *adminStore {
	s := &adminStore{rows: make(map[int64]Endpoint)}
	for _, e := range rows {
		s.rows[e.ID] = e
	}
	return s
}

func (s *adminStore) ListAll(_ context.Context) ([]Endpoint, error) {
	out := make([]Endpoint, 0, len(s.rows))
	for _, e := range s.rows {
		out = append(out, e)
	}
	return out, nil
}

func (s *adminStore) ListByMethod(_ context.Context, method string) ([]Endpoint, error) {
	var out []Endpoint
	for _, e := range s.rows {
		if e.Method == method {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *adminStore) FindByID(_ context.Context, id int64) (Endpoint, error) {
	e, ok := s.rows[id]
	if !ok {
		return Endpoint{}, httpx.ErrNotFound
	}
	return e, nil
}

func (s *adminStore) Create(_ context.Context, e Endpoint) (Endpoint, error) {
	e.ID = int64(len(s.rows) + 1)
	s.rows[e.ID] = e
	return e, nil
}

func (s *adminStore) Update(_ context.Context, e Endpoint) (Endpoint, error) {
	if _, ok := s.rows[e.ID]; !ok {
		return Endpoint{}, httpx.ErrNotFound
	}
	s.rows[e.ID] = e
	return e, nil
}

func (s *adminStore) SetActive(_ context.Context, id int64, active bool) (Endpoint, error) {
	e, ok := s.rows[id]
	if !ok {
		return Endpoint{}, httpx.ErrNotFound
	}
	e.IsActive = active
	s.rows[id] = e
	return e, nil
}

func (s *adminStore) Delete(_ context.Context, id int64) error {
	if _, ok := s.rows[id]; !ok {
		return httpx.ErrNotFound
	}
	delete(s.rows, id)
	return nil
}

func TestSetActiveReturnsUpdatedRowAndInvalidatesMatcher(t *testing.T) {
	store := newAdminStore(Endpoint{
		ID: 1, Service: "billing", Version: "v1", Method: "GET",
		Path: "/invoices/{id}", IsActive: true,
	})
	matcher := NewMatcher(store)
	service := NewService(store, matcher)

	desc, err := matcher.Resolve(context.Background(), "GET", "/invoices/42")
	require.NoError(t, err)
	require.Equal(t, int64(1), desc.ID)

	updated, err := service.SetActive(context.Background(), 1, false)
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, "/invoices/{id}", updated.Path)

	// No TTL wait: the mutation dropped the cache, so the deactivated
	// endpoint stops matching immediately.
	_, err = matcher.Resolve(context.Background(), "GET", "/invoices/42")
	require.ErrorIs(t, err, ErrEndpointNotFound)
}

func TestSetActiveUnknownEndpoint(t *testing.T) {
	service := NewService(newAdminStore(), NewMatcher(&stubStore{}))

	_, err := service.SetActive(context.Background(), 99, true)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestCreateRejectsUnknownMethod(t *testing.T) {
	service := NewService(newAdminStore(), NewMatcher(&stubStore{}))

	_, err := service.Create(context.Background(), Endpoint{Method: "FETCH", Path: "/x"})
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func newAdminRouter(store *adminStore) http.Handler {
	h := NewHandler(discardLogger(), NewService(store, NewMatcher(store)))
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func TestGetUnknownEndpointRespondsNotFound(t *testing.T) {
	router := newAdminRouter(newAdminStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	var problem map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, float64(http.StatusNotFound), problem["status"])
}

func TestSetActiveHandlerFlipsFlag(t *testing.T) {
	store := newAdminStore(Endpoint{
		ID: 1, Service: "billing", Version: "v1", Method: "GET",
		Path: "/invoices/{id}", IsActive: true,
	})
	router := newAdminRouter(store)

	req := httptest.NewRequest(http.MethodPatch, "/1/active", strings.NewReader(`{"isActive":false}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body Endpoint
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.False(t, body.IsActive)
	require.False(t, store.rows[1].IsActive)
}

func TestDeleteUnknownEndpointRespondsNotFound(t *testing.T) {
	router := newAdminRouter(newAdminStore())

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/99", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

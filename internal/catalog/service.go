package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/aegis-identity/aegis/internal/platform/httpx"
)

var knownMethods = map[string]struct{}{
	"GET": {}, "POST": {}, "PUT": {}, "PATCH": {}, "DELETE": {}, "HEAD": {}, "OPTIONS": {},
}

// Store is the persistence surface the admin service needs. *Repository
// satisfies it.
type Store interface {
	ListAll(ctx context.Context) ([]Endpoint, error)
	FindByID(ctx context.Context, id int64) (Endpoint, error)
	Create(ctx context.Context, e Endpoint) (Endpoint, error)
	Update(ctx context.Context, e Endpoint) (Endpoint, error)
	SetActive(ctx context.Context, id int64, active bool) (Endpoint, error)
	Delete(ctx context.Context, id int64) error
}

// Service wraps catalog administration. Mutations invalidate the matcher so
// edits surface without waiting out the cache TTL.
type Service struct {
	repo    Store
	matcher *Matcher
}

// NewService constructs a Service.
func NewService(repo Store, matcher *Matcher) *Service {
	return &Service{repo: repo, matcher: matcher}
}

// List returns the full catalog.
func (s *Service) List(ctx context.Context) ([]Endpoint, error) {
	return s.repo.ListAll(ctx)
}

// Get fetches one endpoint.
func (s *Service) Get(ctx context.Context, id int64) (Endpoint, error) {
	return s.repo.FindByID(ctx, id)
}

// Create validates and inserts a catalog entry.
func (s *Service) Create(ctx context.Context, e Endpoint) (Endpoint, error) {
	e, err := normalizeEndpoint(e)
	if err != nil {
		return Endpoint{}, err
	}
	created, err := s.repo.Create(ctx, e)
	if err != nil {
		return Endpoint{}, err
	}
	s.matcher.Invalidate()
	return created, nil
}

// Update rewrites a catalog entry.
func (s *Service) Update(ctx context.Context, e Endpoint) (Endpoint, error) {
	e, err := normalizeEndpoint(e)
	if err != nil {
		return Endpoint{}, err
	}
	updated, err := s.repo.Update(ctx, e)
	if err != nil {
		return Endpoint{}, err
	}
	s.matcher.Invalidate()
	return updated, nil
}

// SetActive toggles an endpoint's activity flag.
func (s *Service) SetActive(ctx context.Context, id int64, active bool) (Endpoint, error) {
	updated, err := s.repo.SetActive(ctx, id, active)
	if err != nil {
		return Endpoint{}, err
	}
	s.matcher.Invalidate()
	return updated, nil
}

// Delete removes a catalog entry.
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.matcher.Invalidate()
	return nil
}

func normalizeEndpoint(e Endpoint) (Endpoint, error) {
	e.Service = trimSlashes(strings.TrimSpace(e.Service))
	e.Version = trimSlashes(strings.TrimSpace(e.Version))
	e.Method = strings.ToUpper(strings.TrimSpace(e.Method))
	if strings.TrimSpace(e.Path) == "" {
		return Endpoint{}, fmt.Errorf("%w: endpoint path required", httpx.ErrValidation)
	}
	e.Path = NormalizePath(strings.TrimSpace(e.Path))
	if _, ok := knownMethods[e.Method]; !ok {
		return Endpoint{}, fmt.Errorf("%w: unknown HTTP method %q", httpx.ErrValidation, e.Method)
	}
	return e, nil
}

package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrEndpointNotFound indicates no cataloged template matched the request
// line. Callers on the decision path must treat this as deny.
var ErrEndpointNotFound = errors.New("catalog: endpoint not found")

const defaultCacheTTL = 30 * time.Second

// MatcherStore is the read side the matcher needs from the catalog.
type MatcherStore interface {
	ListByMethod(ctx context.Context, method string) ([]Endpoint, error)
}

// Matcher resolves a concrete request line (method, raw path) to at most one
// cataloged endpoint. It keeps a method-indexed descriptor cache with a global
// TTL: after expiry the whole map is cleared and rebuilt lazily per method.
type Matcher struct {
	store MatcherStore
	ttl   time.Duration
	now   func() time.Time

	mu       sync.RWMutex
	byMethod map[string][]Descriptor
	loadedAt atomic.Int64
	group    singleflight.Group
}

// NewMatcher constructs a Matcher with the default 30s cache TTL.
func NewMatcher(store MatcherStore) *Matcher {
	return NewMatcherWithTTL(store, defaultCacheTTL)
}

// NewMatcherWithTTL constructs a Matcher with a custom cache TTL. Zero or
// negative values fall back to the default.
func NewMatcherWithTTL(store MatcherStore, ttl time.Duration) *Matcher {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Matcher{
		store:    store,
		ttl:      ttl,
		byMethod: make(map[string][]Descriptor),
		now:      time.Now,
	}
}

// Resolve returns the first cataloged endpoint whose template matches the
// request line, or ErrEndpointNotFound. Inactive endpoints are skipped. When
// several templates could match, catalog insertion order wins; keeping
// templates disjoint is an authoring concern.
func (m *Matcher) Resolve(ctx context.Context, method, rawPath string) (Descriptor, error) {
	normalizedMethod := strings.ToUpper(strings.TrimSpace(method))
	if normalizedMethod == "" {
		normalizedMethod = "GET"
	}
	normalizedPath := NormalizePath(rawPath)

	candidates, err := m.endpointsForMethod(ctx, normalizedMethod)
	if err != nil {
		return Descriptor{}, err
	}
	for _, endpoint := range candidates {
		if !endpoint.Active {
			continue
		}
		endpointPath := NormalizePath(endpoint.Path)
		if antMatch(endpointPath, normalizedPath) {
			return endpoint, nil
		}
		for _, candidate := range compositePaths(endpoint, endpointPath) {
			if antMatch(candidate, normalizedPath) {
				return endpoint, nil
			}
		}
	}
	return Descriptor{}, ErrEndpointNotFound
}

// Invalidate drops the cached descriptor lists. The next lookup rebuilds.
func (m *Matcher) Invalidate() {
	m.mu.Lock()
	m.byMethod = make(map[string][]Descriptor)
	m.mu.Unlock()
	m.loadedAt.Store(m.now().UnixMilli())
}

func (m *Matcher) endpointsForMethod(ctx context.Context, method string) ([]Descriptor, error) {
	now := m.now().UnixMilli()
	if now-m.loadedAt.Load() >= m.ttl.Milliseconds() {
		m.mu.Lock()
		if now-m.loadedAt.Load() >= m.ttl.Milliseconds() {
			m.byMethod = make(map[string][]Descriptor)
			m.loadedAt.Store(now)
		}
		m.mu.Unlock()
	}

	m.mu.RLock()
	cached, ok := m.byMethod[method]
	m.mu.RUnlock()
	if ok {
		return cached, nil
	}

	// Single-flight per method key so a rebuild never blocks other methods
	// and concurrent callers share one load.
	result, err, _ := m.group.Do(method, func() (any, error) {
		endpoints, err := m.store.ListByMethod(ctx, method)
		if err != nil {
			return nil, err
		}
		descriptors := make([]Descriptor, len(endpoints))
		for i, e := range endpoints {
			descriptors[i] = Descriptor{
				ID:      e.ID,
				Path:    e.Path,
				Service: e.Service,
				Version: e.Version,
				Active:  e.IsActive,
			}
		}
		m.mu.Lock()
		m.byMethod[method] = descriptors
		m.mu.Unlock()
		return descriptors, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]Descriptor), nil
}

// NormalizePath applies the catalog's path normalization: strip the query
// component, force a single leading slash, drop the trailing slash unless the
// whole path is "/". Percent-escapes are left as the HTTP layer delivered them.
func NormalizePath(path string) string {
	if path == "" {
		return "/"
	}
	normalized := path
	if idx := strings.IndexByte(normalized, '?'); idx >= 0 {
		normalized = normalized[:idx]
	}
	if !strings.HasPrefix(normalized, "/") {
		normalized = "/" + normalized
	}
	if len(normalized) > 1 && strings.HasSuffix(normalized, "/") {
		normalized = normalized[:len(normalized)-1]
	}
	return normalized
}

// compositePaths returns the service/version-prefixed equivalents of an
// endpoint template: /api/{service}/{version}{path} and /api/{service}{path}.
// An endpoint without a service has no composite forms.
func compositePaths(endpoint Descriptor, normalizedEndpointPath string) []string {
	service := trimSlashes(endpoint.Service)
	if service == "" {
		return nil
	}
	version := trimSlashes(endpoint.Version)

	suffix := normalizedEndpointPath
	if !strings.HasPrefix(suffix, "/") {
		suffix = "/" + suffix
	}

	var candidates []string
	base := "/api/" + service
	if version != "" {
		base += "/" + version
	}
	candidates = append(candidates, mergePath(base, suffix))
	candidates = append(candidates, mergePath("/api/"+service, suffix))

	// Drop duplicates and anything equal to the original template.
	unique := candidates[:0]
	seen := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		if c == normalizedEndpointPath {
			continue
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		unique = append(unique, c)
	}
	return unique
}

func trimSlashes(value string) string {
	return strings.Trim(value, "/")
}

func mergePath(base, suffix string) string {
	switch {
	case strings.HasSuffix(base, "/") && strings.HasPrefix(suffix, "/"):
		return base[:len(base)-1] + suffix
	case !strings.HasSuffix(base, "/") && !strings.HasPrefix(suffix, "/"):
		return base + "/" + suffix
	default:
		return base + suffix
	}
}

package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ecoshop/storefront/internal/domain"
	"github.com/ecoshop/storefront/internal/sources"
)

// CatalogLoadFailedMessage is exposed on the catalog state when every remote source failed.
const CatalogLoadFailedMessage = "Failed to load external products"

const (
	defaultCatalogLoadTimeout = 30 * time.Second
	catalogLoadKey            = "catalog"
)

var (
	errCatalogBaselineRequired = errors.New("catalog store: baseline source is required")
	errCatalogBaselineFailed   = errors.New("catalog store: baseline source failed")
)

// ErrCatalogUnavailable indicates that no remote listing could be loaded.
var ErrCatalogUnavailable = errors.New("catalog store: unavailable")

// ErrCatalogProductNotFound indicates the requested product id is not in the catalog.
var ErrCatalogProductNotFound = errors.New("catalog store: product not found")

var catalogTracer = otel.Tracer("github.com/ecoshop/storefront/internal/services/catalog")

// CatalogLoadObserver is notified after every completed load attempt.
type CatalogLoadObserver func(products int, failedSources []string, ok bool)

// CatalogStoreDeps wires the sources the catalog is assembled from.
type CatalogStoreDeps struct {
	// Baseline provides the products served before the first successful load.
	Baseline sources.Source
	// Sources are merged after the baseline, in slice order.
	Sources     []sources.Source
	LoadTimeout time.Duration
	// FailureCooldown suppresses new fetches for this long after every remote source
	// failed. Zero retries on the next Load.
	FailureCooldown time.Duration
	Clock           func() time.Time
	Logger          func(context.Context, string, map[string]any)
	OnLoad          CatalogLoadObserver
}

// SourceResult is the outcome of one source fetch during a load.
type SourceResult struct {
	Source   string
	Remote   bool
	Products []domain.Product
	Err      error
}

// OK reports whether the fetch succeeded.
func (r SourceResult) OK() bool { return r.Err == nil }

// CatalogStore holds the merged product catalog shared by every session.
type CatalogStore struct {
	mu       sync.RWMutex
	state    domain.ProductCatalogState
	baseline []domain.Product
	version  uint64
	loadedAt time.Time
	retryAt  time.Time

	sources         []sources.Source
	loads           singleflight.Group
	loadTimeout     time.Duration
	failureCooldown time.Duration
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)
	onLoad      CatalogLoadObserver
}

// NewCatalogStore reads the baseline and returns a store that has not loaded remote data yet.
func NewCatalogStore(ctx context.Context, deps CatalogStoreDeps) (*CatalogStore, error) {
	if deps.Baseline == nil {
		return nil, errCatalogBaselineRequired
	}
	baseline, err := deps.Baseline.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errCatalogBaselineFailed, err)
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	timeout := deps.LoadTimeout
	if timeout <= 0 {
		timeout = defaultCatalogLoadTimeout
	}

	srcs := make([]sources.Source, 0, len(deps.Sources))
	for _, src := range deps.Sources {
		if src != nil {
			srcs = append(srcs, src)
		}
	}

	baseline = DedupProducts(baseline)
	return &CatalogStore{
		state: domain.ProductCatalogState{
			Products: domain.CloneProducts(baseline),
		},
		baseline:        baseline,
		sources:         srcs,
		loadTimeout:     timeout,
		failureCooldown: deps.FailureCooldown,
		now:             func() time.Time { return clock().UTC() },
		logger:          logger,
		onLoad:          deps.OnLoad,
	}, nil
}

// Load merges every source into the catalog once. It returns immediately when the catalog
// is already loaded, and concurrent callers share one in-flight load. The load itself is
// detached from ctx so a caller giving up does not abort it for the others. Within the
// failure cooldown it returns ErrCatalogUnavailable without fetching.
func (s *CatalogStore) Load(ctx context.Context) error {
	s.mu.RLock()
	loaded, retryAt := s.state.Loaded, s.retryAt
	s.mu.RUnlock()
	if loaded {
		return nil
	}
	if !retryAt.IsZero() && s.now().Before(retryAt) {
		return fmt.Errorf("%w: retry after %s", ErrCatalogUnavailable, retryAt.Format(time.RFC3339))
	}
	detached := context.WithoutCancel(ctx)
	ch := s.loads.DoChan(catalogLoadKey, func() (any, error) {
		return nil, s.load(detached)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Invalidate forces the next Load to fetch again, even within a failure cooldown.
// Current products stay visible.
func (s *CatalogStore) Invalidate() {
	s.mu.Lock()
	s.state.Loaded = false
	s.retryAt = time.Time{}
	s.mu.Unlock()
}

// Refresh invalidates then loads.
func (s *CatalogStore) Refresh(ctx context.Context) error {
	s.Invalidate()
	return s.Load(ctx)
}

func (s *CatalogStore) load(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.loadTimeout)
	defer cancel()
	ctx, span := catalogTracer.Start(ctx, "catalog.load")
	defer span.End()

	s.mu.Lock()
	if s.state.Loaded {
		s.mu.Unlock()
		return nil
	}
	s.state.IsLoading = true
	s.state.Error = ""
	s.mu.Unlock()

	results := s.fetchAll(ctx)

	var (
		remote     int
		remoteFail int
		failed     []string
		errs       map[string]string
	)
	for _, result := range results {
		if result.Remote {
			remote++
		}
		if result.OK() {
			continue
		}
		if result.Remote {
			remoteFail++
		}
		failed = append(failed, result.Source)
		if errs == nil {
			errs = make(map[string]string)
		}
		errs[result.Source] = result.Err.Error()
		s.logger(ctx, "catalog.source_failed", map[string]any{
			"source": result.Source,
			"error":  result.Err.Error(),
		})
	}
	span.SetAttributes(
		attribute.Int("catalog.sources", len(results)),
		attribute.Int("catalog.sources_failed", len(failed)),
	)

	if remote > 0 && remoteFail == remote {
		s.mu.Lock()
		s.state.IsLoading = false
		s.state.Error = CatalogLoadFailedMessage
		s.state.SourceErrors = errs
		if s.failureCooldown > 0 {
			s.retryAt = s.now().Add(s.failureCooldown)
		}
		count := len(s.state.Products)
		s.mu.Unlock()

		s.logger(ctx, "catalog.load_failed", map[string]any{
			"sources": failed,
			"error":   CatalogLoadFailedMessage,
		})
		s.observe(count, failed, false)
		span.SetStatus(codes.Error, CatalogLoadFailedMessage)
		return fmt.Errorf("%w: %s", ErrCatalogUnavailable, strings.Join(failed, ", "))
	}

	merged := domain.CloneProducts(s.baseline)
	for _, result := range results {
		if result.OK() {
			merged = append(merged, result.Products...)
		}
	}
	merged = DedupProducts(merged)

	s.mu.Lock()
	s.state.Products = merged
	s.state.IsLoading = false
	s.state.Error = ""
	s.state.Loaded = true
	s.state.SourceErrors = errs
	s.version++
	s.loadedAt = s.now()
	s.retryAt = time.Time{}
	s.mu.Unlock()

	s.logger(ctx, "catalog.loaded", map[string]any{
		"products":       len(merged),
		"sources_failed": failed,
	})
	s.observe(len(merged), failed, true)
	return nil
}

// fetchAll queries every source concurrently. A failing source never cancels the others.
func (s *CatalogStore) fetchAll(ctx context.Context) []SourceResult {
	results := make([]SourceResult, len(s.sources))
	var g errgroup.Group
	for i, src := range s.sources {
		i, src := i, src
		g.Go(func() error {
			products, err := fetchSource(ctx, src)
			results[i] = SourceResult{
				Source:   src.Name(),
				Remote:   src.Remote(),
				Products: products,
				Err:      err,
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func fetchSource(ctx context.Context, src sources.Source) (products []domain.Product, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			products, err = nil, fmt.Errorf("catalog store: source %s panicked: %v", src.Name(), rec)
		}
	}()
	return src.Fetch(ctx)
}

func (s *CatalogStore) observe(products int, failed []string, ok bool) {
	if s.onLoad != nil {
		s.onLoad(products, failed, ok)
	}
}

// DedupProducts removes duplicate ids. The last occurrence supplies the value while the
// first occurrence fixes the position.
func DedupProducts(products []domain.Product) []domain.Product {
	index := make(map[string]int, len(products))
	out := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if pos, ok := index[product.ID]; ok {
			out[pos] = product
			continue
		}
		index[product.ID] = len(out)
		out = append(out, product)
	}
	return out
}

// State returns a deep copy of the observable catalog state.
func (s *CatalogStore) State() domain.ProductCatalogState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state := s.state
	state.Products = domain.CloneProducts(s.state.Products)
	if s.state.SourceErrors != nil {
		state.SourceErrors = make(map[string]string, len(s.state.SourceErrors))
		for k, v := range s.state.SourceErrors {
			state.SourceErrors[k] = v
		}
	}
	return state
}

// Products returns a copy of the current product list.
func (s *CatalogStore) Products() []domain.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneProducts(s.state.Products)
}

// Snapshot returns the product list with the version it belongs to.
func (s *CatalogStore) Snapshot() ([]domain.Product, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.CloneProducts(s.state.Products), s.version
}

// Product looks up one product by id.
func (s *CatalogStore) Product(id string) (domain.Product, error) {
	id = strings.TrimSpace(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, product := range s.state.Products {
		if product.ID == id {
			return product.Clone(), nil
		}
	}
	return domain.Product{}, fmt.Errorf("%w: %s", ErrCatalogProductNotFound, id)
}

// Loaded reports whether a load has completed since construction or the last Invalidate.
func (s *CatalogStore) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Loaded
}

// Version increments whenever the product list changes.
func (s *CatalogStore) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// LoadedAt is the time of the last successful load, zero before one.
func (s *CatalogStore) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadedAt
}

// BaselineCount is the number of bundled products.
func (s *CatalogStore) BaselineCount() int {
	return len(s.baseline)
}

// SourceNames lists the configured sources after the baseline, in merge order.
func (s *CatalogStore) SourceNames() []string {
	names := make([]string, 0, len(s.sources))
	for _, src := range s.sources {
		names = append(names, src.Name())
	}
	return names
}

package resources

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/leofleet/fleet-console/internal/fleetapi"
	"github.com/leofleet/fleet-console/internal/platform/cache"
	"github.com/leofleet/fleet-console/internal/shared"
)

// DefaultReferenceTTL is how long a reference listing stays usable as fallback.
const DefaultReferenceTTL = 24 * time.Hour

// Service proxies collection operations to the fleet API.
type Service struct {
	store        Store
	cache        *cache.Cache
	referenceTTL time.Duration
	logger       *slog.Logger
}

// NewService constructs a Service. A nil cache disables the reference fallback.
func NewService(store Store, c *cache.Cache, referenceTTL time.Duration, logger *slog.Logger) *Service {
	if referenceTTL <= 0 {
		referenceTTL = DefaultReferenceTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, cache: c, referenceTTL: referenceTTL, logger: logger}
}

// List returns one page of kind. Reference kinds are listed whole and fall
// back to the last stored listing when the fleet API fails.
func (s *Service) List(ctx context.Context, kind Kind, page shared.Pagination, filters [][]any) (Page, error) {
	opts := fleetapi.ListOptions{Fields: kind.Fields, Filters: filters, Limit: page.PerPage, Offset: page.Offset()}
	if !kind.Reference() || len(filters) > 0 {
		records, err := s.store.List(ctx, kind.Collection, opts)
		if err != nil {
			return Page{}, fmt.Errorf("resources: list %s: %w", kind.Slug, err)
		}
		return Page{Data: records, Page: page.Page, PerPage: page.PerPage}, nil
	}

	var records []fleetapi.Record
	opts.Limit, opts.Offset = 0, 0
	stale, err := s.cache.FetchWithFallback(ctx, s.referenceKey(kind), &records, s.referenceTTL, func(ctx context.Context) (any, error) {
		return s.store.List(ctx, kind.Collection, opts)
	})
	if err != nil {
		return Page{}, fmt.Errorf("resources: list %s: %w", kind.Slug, err)
	}
	if stale {
		s.logger.Warn("serving cached reference data", slog.String("collection", string(kind.Collection)))
	}
	if records == nil {
		records = []fleetapi.Record{}
	}
	return Page{Data: records, Page: 1, PerPage: len(records), Stale: stale}, nil
}

// Get returns one record of kind.
func (s *Service) Get(ctx context.Context, kind Kind, id string) (fleetapi.Record, error) {
	rec, err := s.store.Get(ctx, kind.Collection, id)
	if err != nil {
		return nil, fmt.Errorf("resources: get %s %s: %w", kind.Slug, id, err)
	}
	return rec, nil
}

// Create stores a new record of kind.
func (s *Service) Create(ctx context.Context, kind Kind, rec fleetapi.Record) (fleetapi.Record, error) {
	out, err := s.store.Create(ctx, kind.Collection, rec)
	if err != nil {
		return nil, fmt.Errorf("resources: create %s: %w", kind.Slug, err)
	}
	return out, nil
}

// Update changes a record of kind.
func (s *Service) Update(ctx context.Context, kind Kind, id string, rec fleetapi.Record) (fleetapi.Record, error) {
	out, err := s.store.Update(ctx, kind.Collection, id, rec)
	if err != nil {
		return nil, fmt.Errorf("resources: update %s %s: %w", kind.Slug, id, err)
	}
	return out, nil
}

// Delete removes a record of kind.
func (s *Service) Delete(ctx context.Context, kind Kind, id string) error {
	if err := s.store.Delete(ctx, kind.Collection, id); err != nil {
		return fmt.Errorf("resources: delete %s %s: %w", kind.Slug, id, err)
	}
	return nil
}

func (s *Service) referenceKey(kind Kind) string {
	return s.cache.Key("reference", kind.Slug)
}

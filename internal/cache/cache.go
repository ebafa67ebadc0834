package cache

import (
	"context"
	"time"

	"servispos/backend/internal/domain"
)

// SalesCache holds precomputed dashboard sales series. Entries expire on a
// TTL; a stale or missing entry simply forces a recompute from the ledger.
type SalesCache interface {
	Get(ctx context.Context, key string) (*domain.SalesSeriesResponse, bool, error)
	Set(ctx context.Context, key string, value *domain.SalesSeriesResponse, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string) error
}

type NoopSalesCache struct{}

func (NoopSalesCache) Get(_ context.Context, _ string) (*domain.SalesSeriesResponse, bool, error) {
	return nil, false, nil
}

func (NoopSalesCache) Set(_ context.Context, _ string, _ *domain.SalesSeriesResponse, _ time.Duration) error {
	return nil
}

func (NoopSalesCache) Invalidate(_ context.Context, _ ...string) error {
	return nil
}

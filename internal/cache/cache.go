package cache

import (
	"context"
	"time"

	"khaosoi/backend/internal/domain"
)

// ProductSnapshot bundles a product with its variants for the price resolver.
type ProductSnapshot struct {
	Product  domain.Product   `json:"product"`
	Variants []domain.Variant `json:"variants"`
}

type ProductCache interface {
	Get(ctx context.Context, key string) (*ProductSnapshot, bool, error)
	Set(ctx context.Context, key string, value *ProductSnapshot, ttl time.Duration) error
}

type NoopProductCache struct{}

func (NoopProductCache) Get(_ context.Context, _ string) (*ProductSnapshot, bool, error) {
	return nil, false, nil
}

func (NoopProductCache) Set(_ context.Context, _ string, _ *ProductSnapshot, _ time.Duration) error {
	return nil
}

// Package pricing resolves catalog prices for cart lines. It is the only
// component that reads the product catalog; orders snapshot its quotes and
// never look back.
package pricing

import (
	"context"
	"fmt"
	"time"

	"khaosoi/backend/internal/cache"
	"khaosoi/backend/internal/store"
)

const snapshotTTL = 5 * time.Minute

// Quote is the resolved price for one cart line. All values are satang.
type Quote struct {
	ProductID       string
	VariantID       string
	ProductName     string
	VariantName     string
	UnitPriceSatang int64
	UnitCostSatang  int64
	Quantity        int
	LineTotalSatang int64
}

type Resolver struct {
	repo  store.Repository
	cache cache.ProductCache
}

func NewResolver(repo store.Repository, productCache cache.ProductCache) *Resolver {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	return &Resolver{repo: repo, cache: productCache}
}

// Resolve prices one cart line. Unknown or unavailable products return
// store.ErrProductNotFound; a variant that does not belong to the product
// returns store.ErrVariantNotFound. The cache is best-effort: a cache error
// falls through to the repository.
func (r *Resolver) Resolve(ctx context.Context, productID string, variantID string, quantity int) (*Quote, error) {
	if quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity must be positive", store.ErrInvalidInput)
	}

	snapshot, err := r.snapshot(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !snapshot.Product.Available {
		return nil, fmt.Errorf("%w: %s is unavailable", store.ErrProductNotFound, productID)
	}

	quote := &Quote{
		ProductID:       productID,
		ProductName:     snapshot.Product.Name,
		UnitPriceSatang: snapshot.Product.BasePriceSatang,
		UnitCostSatang:  snapshot.Product.CostPriceSatang,
		Quantity:        quantity,
	}

	if variantID != "" {
		var found bool
		for _, variant := range snapshot.Variants {
			if variant.ID == variantID {
				quote.VariantID = variant.ID
				quote.VariantName = variant.Name
				quote.UnitPriceSatang += variant.PriceModifierSatang
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: %s on product %s", store.ErrVariantNotFound, variantID, productID)
		}
	}

	quote.LineTotalSatang = quote.UnitPriceSatang * int64(quantity)
	return quote, nil
}

func (r *Resolver) snapshot(ctx context.Context, productID string) (*cache.ProductSnapshot, error) {
	key := "product:" + productID
	if cached, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}

	product, err := r.repo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	variants, err := r.repo.ListVariants(ctx, productID)
	if err != nil {
		return nil, err
	}

	snapshot := &cache.ProductSnapshot{Product: *product, Variants: variants}
	_ = r.cache.Set(ctx, key, snapshot, snapshotTTL)
	return snapshot, nil
}

package service

import (
	"context"
	"strings"
	"time"

	ierr "backoffice/internal/errors"
	"backoffice/internal/lineeditor"
	"backoffice/internal/logger"
	"backoffice/internal/upstream"

	"github.com/samber/lo"
	goCache "github.com/patrickmn/go-cache"
)

type CatalogService interface {
	// SearchProducts matches search against product and category names, case-insensitively.
	// An empty search returns the whole catalog.
	SearchProducts(ctx context.Context, search string) ([]lineeditor.Product, error)
	GetProduct(ctx context.Context, id int64) (lineeditor.Product, error)
	Invalidate()
}

const catalogCacheKey = "components"

type catalogService struct {
	api   upstream.API
	cache *goCache.Cache
	log   *logger.Logger
}

func NewCatalogService(api upstream.API, ttl time.Duration, log *logger.Logger) CatalogService {
	return &catalogService{
		api:   api,
		cache: goCache.New(ttl, 2*ttl),
		log:   log,
	}
}

func (s *catalogService) SearchProducts(ctx context.Context, search string) ([]lineeditor.Product, error) {
	products, err := s.products(ctx)
	if err != nil {
		return nil, err
	}

	term := strings.ToLower(strings.TrimSpace(search))
	if term == "" {
		return products, nil
	}
	return lo.Filter(products, func(p lineeditor.Product, _ int) bool {
		return strings.Contains(strings.ToLower(p.Name), term) ||
			strings.Contains(strings.ToLower(p.CategoryName), term)
	}), nil
}

// GetProduct looks id up in the cached catalog, refreshing once on a miss so
// products created since the last fetch can be added.
func (s *catalogService) GetProduct(ctx context.Context, id int64) (lineeditor.Product, error) {
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			s.Invalidate()
		}
		products, err := s.products(ctx)
		if err != nil {
			return lineeditor.Product{}, err
		}
		if p, ok := lo.Find(products, func(p lineeditor.Product) bool { return p.ID == id }); ok {
			return p, nil
		}
	}
	return lineeditor.Product{}, ierr.NewErrorf("component %d not found", id).
		WithHint("Product not found in the catalog").
		Mark(ierr.ErrNotFound)
}

func (s *catalogService) Invalidate() {
	s.cache.Delete(catalogCacheKey)
}

func (s *catalogService) products(ctx context.Context) ([]lineeditor.Product, error) {
	if cached, ok := s.cache.Get(catalogCacheKey); ok {
		return cached.([]lineeditor.Product), nil
	}

	components, err := s.api.ListComponents(ctx, "")
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not load the product catalog").
			Mark(ierr.ErrHTTPClient)
	}

	products := lo.Map(components, func(c upstream.Component, _ int) lineeditor.Product {
		return c.Product()
	})
	s.cache.Set(catalogCacheKey, products, goCache.DefaultExpiration)
	s.log.Debugw("catalog refreshed", "products", len(products))
	return products, nil
}

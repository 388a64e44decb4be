package repository

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-service/internal/domain"
)

const catalogCacheKey = "catalog:services"

// CachedCatalogRepository decorates a CatalogRepository with a read-through
// Redis cache for the unfiltered listing, the hot path for estimate pickers.
// Redis failures degrade to the underlying store.
type CachedCatalogRepository struct {
	inner  CatalogRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCatalogRepository wraps the repository with caching.
func NewCachedCatalogRepository(inner CatalogRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedCatalogRepository {
	return &CachedCatalogRepository{inner: inner, client: client, ttl: ttl, logger: logger}
}

func (r *CachedCatalogRepository) Create(ctx context.Context, svc *domain.CatalogService) error {
	if err := r.inner.Create(ctx, svc); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedCatalogRepository) Update(ctx context.Context, svc *domain.CatalogService) error {
	if err := r.inner.Update(ctx, svc); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedCatalogRepository) GetByID(ctx context.Context, id string) (*domain.CatalogService, error) {
	return r.inner.GetByID(ctx, id)
}

func (r *CachedCatalogRepository) List(ctx context.Context, search string) ([]domain.CatalogService, error) {
	if strings.TrimSpace(search) != "" || r.client == nil {
		return r.inner.List(ctx, search)
	}

	if cached, err := r.client.Get(ctx, catalogCacheKey).Bytes(); err == nil {
		var services []domain.CatalogService
		if jsonErr := json.Unmarshal(cached, &services); jsonErr == nil {
			return services, nil
		}
	} else if err != redis.Nil {
		r.logger.Warn("catalog cache read failed", zap.Error(err))
	}

	services, err := r.inner.List(ctx, search)
	if err != nil {
		return nil, err
	}

	if encoded, err := json.Marshal(services); err == nil {
		if err := r.client.Set(ctx, catalogCacheKey, encoded, r.ttl).Err(); err != nil {
			r.logger.Warn("catalog cache write failed", zap.Error(err))
		}
	}
	return services, nil
}

func (r *CachedCatalogRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.invalidate(ctx)
	return nil
}

func (r *CachedCatalogRepository) invalidate(ctx context.Context) {
	if r.client == nil {
		return
	}
	if err := r.client.Del(ctx, catalogCacheKey).Err(); err != nil {
		r.logger.Warn("catalog cache invalidation failed", zap.Error(err))
	}
}

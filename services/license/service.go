package license

import (
	"context"
	"time"

	"licensehub-engine/pkg/cache"
	"licensehub-engine/pkg/db/pagination"
	"licensehub-engine/pkg/errutil"
	"licensehub-engine/pkg/rediskey"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const cacheTTL = 5 * time.Minute

// Service is the thin record-in/record-out surface the rest of the admin
// panel talks to. Validation of caller input happens at the boundary, not
// here.
type Service struct {
	db    *gorm.DB
	store Store
	cache cache.Cache
	node  *snowflake.Node
}

type ServiceParams struct {
	fx.In
	DB    *gorm.DB
	Store Store       `optional:"true"`
	Cache cache.Cache `optional:"true"`
	Node  *snowflake.Node
}

func NewService(p ServiceParams) *Service {
	store := p.Store
	if store == nil {
		store = NewStore(p.DB)
	}

	return &Service{
		db:    p.DB,
		store: store,
		cache: p.Cache,
		node:  p.Node,
	}
}

func (s *Service) Store() Store {
	return s.store
}

// GetByKey looks up a license through the cache port, falling back to the
// store. Cancel-date anomalies are corrected on read.
func (s *Service) GetByKey(ctx context.Context, licenseKey string) (*License, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if licenseKey == "" {
		return nil, errutil.ValidationFailed("license key is required", nil)
	}

	cacheKey := rediskey.BuildLicenseKeyKey(licenseKey)
	if s.cache != nil {
		var cached License
		if hit, err := s.cache.Get(ctx, cacheKey, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	lic, err := s.store.FindByKey(ctx, licenseKey)
	if err != nil {
		zap.L().Error("failed to get license by key", zap.Error(err))
		return nil, errutil.Internal("failed to get license", err)
	}

	if lic == nil {
		return nil, errutil.NotFound("license not found", nil)
	}

	if lic.NormalizeCancelDate() {
		if err := s.store.Save(ctx, lic); err != nil {
			zap.L().Warn("failed to persist synthesized cancel date", zap.Error(err))
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, lic, cacheTTL); err != nil {
			zap.L().Debug("license cache set failed", zap.Error(err))
		}
	}

	return lic, nil
}

// List pages through licenses newest-first. The returned PageInfo carries
// the cursor for the next call.
func (s *Service) List(ctx context.Context, p pagination.Pagination) ([]*License, *pagination.PageInfo, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if p.Limit <= 0 {
		p.Limit = 10
	}
	if p.Limit > 250 {
		p.Limit = 250
	}

	lics, err := s.store.List(ctx, p)
	if err != nil {
		zap.L().Error("failed to list licenses", zap.Error(err))
		return nil, nil, errutil.Internal("failed to list licenses", err)
	}

	pageInfo := pagination.BuildCursorPageInfo(lics, int32(p.Limit), func(lic *License) string {
		cursor, err := pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: lic.CreatedAt.Format(time.RFC3339Nano),
			ID:        lic.ID,
		})
		if err != nil {
			return ""
		}
		return cursor
	})

	if len(lics) > p.Limit {
		lics = lics[:p.Limit]
	}

	return lics, pageInfo, nil
}

// Create persists an administratively-created license in pending status.
func (s *Service) Create(ctx context.Context, lic *License) (*License, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if lic.LicenseKey == "" {
		return nil, errutil.ValidationFailed("license key is required", nil)
	}

	if lic.ID == "" {
		lic.ID = s.node.Generate().String()
	}
	if lic.Status == "" {
		lic.Status = StatusPending
	}
	lic.RecomputeGracePeriodEnd()

	if err := s.store.Create(ctx, lic); err != nil {
		zap.L().Error("failed to create license", zap.Error(err))
		return nil, errutil.Internal("failed to create license", err)
	}

	return lic, nil
}

// Update applies field changes and keeps the grace boundary derived from the
// (possibly new) expiry. The cache entry is dropped, not rewritten.
func (s *Service) Update(ctx context.Context, lic *License) (*License, error) {
	span := trace.SpanFromContext(ctx)
	defer span.End()

	if lic.ID == "" {
		return nil, errutil.ValidationFailed("license id is required", nil)
	}

	lic.RecomputeGracePeriodEnd()
	lic.NormalizeCancelDate()

	if err := s.store.Save(ctx, lic); err != nil {
		zap.L().Error("failed to update license", zap.Error(err))
		return nil, errutil.Internal("failed to update license", err)
	}

	if s.cache != nil {
		if err := s.cache.Delete(ctx, rediskey.BuildLicenseKeyKey(lic.LicenseKey)); err != nil {
			zap.L().Debug("license cache invalidation failed", zap.Error(err))
		}
	}

	return lic, nil
}

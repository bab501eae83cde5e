package license

import (
	"context"

	"licensehub-engine/pkg/db/option"
	"licensehub-engine/pkg/db/pagination"
	"licensehub-engine/pkg/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Store is the narrow data-access surface the reconciliation and lifecycle
// engines depend on.
type Store interface {
	FindByAppID(ctx context.Context, appID string) (*License, error)
	FindByEmail(ctx context.Context, email string) (*License, error)
	FindByCountID(ctx context.Context, countID int64) (*License, error)
	FindByKey(ctx context.Context, licenseKey string) (*License, error)
	FindByID(ctx context.Context, id string) (*License, error)
	List(ctx context.Context, p pagination.Pagination) ([]*License, error)
	ListWithExternalIdentity(ctx context.Context) ([]*License, error)
	ListWithExpiry(ctx context.Context) ([]*License, error)
	Create(ctx context.Context, lic *License) error
	Save(ctx context.Context, lic *License) error
	BatchUpdateChunked(ctx context.Context, lics []*License, chunkSize int) []ItemError
}

// ItemError records a single failed write inside a batch without aborting
// its siblings.
type ItemError struct {
	LicenseID string
	Err       error
}

type gormStore struct {
	db   *gorm.DB
	repo repository.Repository[License]
}

func NewStore(db *gorm.DB) Store {
	return &gormStore{
		db:   db,
		repo: repository.ProvideStore[License](db),
	}
}

func (s *gormStore) FindByAppID(ctx context.Context, appID string) (*License, error) {
	return s.repo.FindOne(ctx, &License{ExternalAppID: &appID})
}

func (s *gormStore) FindByEmail(ctx context.Context, email string) (*License, error) {
	return s.repo.FindOne(ctx, &License{ExternalEmail: &email})
}

func (s *gormStore) FindByCountID(ctx context.Context, countID int64) (*License, error) {
	return s.repo.FindOne(ctx, &License{ExternalCountID: &countID})
}

func (s *gormStore) FindByKey(ctx context.Context, licenseKey string) (*License, error) {
	return s.repo.FindOne(ctx, &License{LicenseKey: licenseKey})
}

func (s *gormStore) FindByID(ctx context.Context, id string) (*License, error) {
	return s.repo.FindOne(ctx, &License{ID: id})
}

// List walks licenses newest-first with a cursor. One extra row is fetched
// so the caller can tell whether another page exists.
func (s *gormStore) List(ctx context.Context, p pagination.Pagination) ([]*License, error) {
	overshoot := p
	overshoot.Limit = p.Limit + 1

	return s.repo.Find(ctx, &License{},
		option.ApplyPagination(overshoot),
		option.WithSort("created_at", "desc"),
	)
}

func (s *gormStore) ListWithExternalIdentity(ctx context.Context) ([]*License, error) {
	return s.repo.Find(ctx, &License{},
		option.Where("external_appid IS NOT NULL OR external_email IS NOT NULL"),
	)
}

func (s *gormStore) ListWithExpiry(ctx context.Context) ([]*License, error) {
	return s.repo.Find(ctx, &License{},
		option.Where("expires_at IS NOT NULL"),
	)
}

func (s *gormStore) Create(ctx context.Context, lic *License) error {
	return s.repo.Create(ctx, lic)
}

func (s *gormStore) Save(ctx context.Context, lic *License) error {
	return s.db.WithContext(ctx).Save(lic).Error
}

// BatchUpdateChunked saves licenses in fixed-size chunks, one transaction per
// chunk to bound lock duration. Item failures inside a chunk are caught and
// recorded without rolling back siblings already applied in that chunk.
func (s *gormStore) BatchUpdateChunked(ctx context.Context, lics []*License, chunkSize int) []ItemError {
	if chunkSize <= 0 {
		chunkSize = 50
	}

	var failed []ItemError
	for start := 0; start < len(lics); start += chunkSize {
		end := start + chunkSize
		if end > len(lics) {
			end = len(lics)
		}
		chunk := lics[start:end]

		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, lic := range chunk {
				// per-item savepoint so one bad row cannot poison the chunk
				if err := tx.Transaction(func(sp *gorm.DB) error {
					return sp.Save(lic).Error
				}); err != nil {
					failed = append(failed, ItemError{LicenseID: lic.ID, Err: err})
					zap.L().Error("batch update item failed",
						zap.String("license_id", lic.ID),
						zap.Error(err),
					)
				}
			}
			return nil
		})
		if err != nil {
			for _, lic := range chunk {
				failed = append(failed, ItemError{LicenseID: lic.ID, Err: err})
			}
		}
	}

	return failed
}

package reconcile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"licensehub-engine/pkg/db/pagination"
	"licensehub-engine/services/extapi"
	"licensehub-engine/services/license"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type mockStore struct {
	findByAppIDFn   func(ctx context.Context, appID string) (*license.License, error)
	findByEmailFn   func(ctx context.Context, email string) (*license.License, error)
	findByCountIDFn func(ctx context.Context, countID int64) (*license.License, error)
	findByIDFn      func(ctx context.Context, id string) (*license.License, error)
	listIdentityFn  func(ctx context.Context) ([]*license.License, error)
	createFn        func(ctx context.Context, lic *license.License) error
	saveFn          func(ctx context.Context, lic *license.License) error
	batchFn         func(ctx context.Context, lics []*license.License, chunkSize int) []license.ItemError
}

func (m *mockStore) FindByAppID(ctx context.Context, appID string) (*license.License, error) {
	if m.findByAppIDFn != nil {
		return m.findByAppIDFn(ctx, appID)
	}
	return nil, nil
}

func (m *mockStore) FindByEmail(ctx context.Context, email string) (*license.License, error) {
	if m.findByEmailFn != nil {
		return m.findByEmailFn(ctx, email)
	}
	return nil, nil
}

func (m *mockStore) FindByCountID(ctx context.Context, countID int64) (*license.License, error) {
	if m.findByCountIDFn != nil {
		return m.findByCountIDFn(ctx, countID)
	}
	return nil, nil
}

func (m *mockStore) FindByKey(context.Context, string) (*license.License, error) { return nil, nil }

func (m *mockStore) FindByID(ctx context.Context, id string) (*license.License, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockStore) List(context.Context, pagination.Pagination) ([]*license.License, error) {
	return nil, nil
}

func (m *mockStore) ListWithExternalIdentity(ctx context.Context) ([]*license.License, error) {
	if m.listIdentityFn != nil {
		return m.listIdentityFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) ListWithExpiry(context.Context) ([]*license.License, error) { return nil, nil }

func (m *mockStore) Create(ctx context.Context, lic *license.License) error {
	if m.createFn != nil {
		return m.createFn(ctx, lic)
	}
	return nil
}

func (m *mockStore) Save(ctx context.Context, lic *license.License) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, lic)
	}
	return nil
}

func (m *mockStore) BatchUpdateChunked(ctx context.Context, lics []*license.License, chunkSize int) []license.ItemError {
	if m.batchFn != nil {
		return m.batchFn(ctx, lics, chunkSize)
	}
	return nil
}

func i64ptr(v int64) *int64 { return &v }

func strptr(s string) *string { return &s }

func TestMatcherPrefersAppID(t *testing.T) {
	store := &mockStore{
		findByAppIDFn: func(ctx context.Context, appID string) (*license.License, error) {
			return &license.License{ID: "by-appid"}, nil
		},
		findByEmailFn: func(ctx context.Context, email string) (*license.License, error) {
			return &license.License{ID: "by-email"}, nil
		},
	}

	lic, strategy, err := NewMatcher(store).Match(context.Background(), &extapi.ExternalLicense{
		AppID:   strptr("APP1"),
		Email:   strptr("a@b.com"),
		CountID: i64ptr(7),
	})
	require.NoError(t, err)
	require.Equal(t, "by-appid", lic.ID)
	require.Equal(t, "appid", strategy)
}

func TestMatcherFallsBackToEmailThenCountID(t *testing.T) {
	store := &mockStore{
		findByCountIDFn: func(ctx context.Context, countID int64) (*license.License, error) {
			require.Equal(t, int64(7), countID)
			return &license.License{ID: "by-countid"}, nil
		},
	}

	lic, strategy, err := NewMatcher(store).Match(context.Background(), &extapi.ExternalLicense{
		AppID:   strptr("APP1"),
		Email:   strptr("a@b.com"),
		CountID: i64ptr(7),
	})
	require.NoError(t, err)
	require.Equal(t, "by-countid", lic.ID)
	require.Equal(t, "countid", strategy)
}

func TestMatcherNoMatch(t *testing.T) {
	lic, strategy, err := NewMatcher(&mockStore{}).Match(context.Background(), &extapi.ExternalLicense{
		AppID: strptr("APP1"),
	})
	require.NoError(t, err)
	require.Nil(t, lic)
	require.Empty(t, strategy)
}

func TestMatcherSkipsAbsentIdentifiers(t *testing.T) {
	appIDChecked := false
	store := &mockStore{
		findByAppIDFn: func(ctx context.Context, appID string) (*license.License, error) {
			appIDChecked = true
			return nil, nil
		},
		findByEmailFn: func(ctx context.Context, email string) (*license.License, error) {
			return &license.License{ID: "by-email"}, nil
		},
	}

	lic, strategy, err := NewMatcher(store).Match(context.Background(), &extapi.ExternalLicense{
		Email: strptr("a@b.com"),
	})
	require.NoError(t, err)
	require.False(t, appIDChecked)
	require.Equal(t, "by-email", lic.ID)
	require.Equal(t, "email", strategy)
}

func TestMatcherPropagatesStoreError(t *testing.T) {
	boom := errors.New("db down")
	store := &mockStore{
		findByAppIDFn: func(ctx context.Context, appID string) (*license.License, error) {
			return nil, boom
		},
	}

	_, strategy, err := NewMatcher(store).Match(context.Background(), &extapi.ExternalLicense{
		AppID: strptr("APP1"),
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, "appid", strategy)
}

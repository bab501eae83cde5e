package license

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"licensehub-engine/pkg/db/pagination"
	"licensehub-engine/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newStoreWithLicenses(t *testing.T, lics ...*License) Store {
	t.Helper()

	db := testutil.NewTestDB(t, &License{})
	store := NewStore(db)

	ctx := context.Background()
	for _, lic := range lics {
		require.NoError(t, store.Create(ctx, lic))
	}

	return store
}

func strptr(s string) *string { return &s }

func i64ptr(v int64) *int64 { return &v }

func TestFindByIdentityAxes(t *testing.T) {
	store := newStoreWithLicenses(t,
		&License{ID: "1", LicenseKey: "KEY-1", Product: "p", ExternalAppID: strptr("APP1")},
		&License{ID: "2", LicenseKey: "KEY-2", Product: "p", ExternalEmail: strptr("a@b.com")},
		&License{ID: "3", LicenseKey: "KEY-3", Product: "p", ExternalCountID: i64ptr(77)},
	)

	ctx := context.Background()

	byApp, err := store.FindByAppID(ctx, "APP1")
	require.NoError(t, err)
	require.NotNil(t, byApp)
	require.Equal(t, "1", byApp.ID)

	byEmail, err := store.FindByEmail(ctx, "a@b.com")
	require.NoError(t, err)
	require.NotNil(t, byEmail)
	require.Equal(t, "2", byEmail.ID)

	byCount, err := store.FindByCountID(ctx, 77)
	require.NoError(t, err)
	require.NotNil(t, byCount)
	require.Equal(t, "3", byCount.ID)

	missing, err := store.FindByAppID(ctx, "NOPE")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestListWithExternalIdentity(t *testing.T) {
	store := newStoreWithLicenses(t,
		&License{ID: "1", LicenseKey: "KEY-1", Product: "p", ExternalAppID: strptr("APP1")},
		&License{ID: "2", LicenseKey: "KEY-2", Product: "p", ExternalEmail: strptr("a@b.com")},
		&License{ID: "3", LicenseKey: "KEY-3", Product: "p"}, // local-only
	)

	lics, err := store.ListWithExternalIdentity(context.Background())
	require.NoError(t, err)
	require.Len(t, lics, 2)
}

func TestCreateEnforcesUniqueLicenseKey(t *testing.T) {
	store := newStoreWithLicenses(t,
		&License{ID: "1", LicenseKey: "KEY-1", Product: "p"},
	)

	err := store.Create(context.Background(), &License{ID: "2", LicenseKey: "KEY-1", Product: "p"})
	require.Error(t, err)
}

func TestBatchUpdateChunkedAppliesAllChunks(t *testing.T) {
	var seed []*License
	for i := 0; i < 7; i++ {
		seed = append(seed, &License{
			ID:         fmt.Sprintf("lic-%d", i),
			LicenseKey: fmt.Sprintf("KEY-%d", i),
			Product:    "p",
			DBA:        "before",
		})
	}
	store := newStoreWithLicenses(t, seed...)

	for _, lic := range seed {
		lic.DBA = "after"
	}

	failed := store.BatchUpdateChunked(context.Background(), seed, 3)
	require.Empty(t, failed)

	for _, lic := range seed {
		got, err := store.FindByID(context.Background(), lic.ID)
		require.NoError(t, err)
		require.Equal(t, "after", got.DBA)
	}
}

func TestBatchUpdateChunkedIsolatesItemFailures(t *testing.T) {
	store := newStoreWithLicenses(t,
		&License{ID: "1", LicenseKey: "KEY-1", Product: "p", DBA: "before"},
		&License{ID: "2", LicenseKey: "KEY-2", Product: "p", DBA: "before"},
		&License{ID: "3", LicenseKey: "KEY-3", Product: "p", DBA: "before"},
	)

	ctx := context.Background()
	one, err := store.FindByID(ctx, "1")
	require.NoError(t, err)
	two, err := store.FindByID(ctx, "2")
	require.NoError(t, err)
	three, err := store.FindByID(ctx, "3")
	require.NoError(t, err)

	one.DBA = "after"
	two.DBA = "after"
	two.LicenseKey = "KEY-1" // collides with license 1
	three.DBA = "after"

	failed := store.BatchUpdateChunked(ctx, []*License{one, two, three}, 10)
	require.Len(t, failed, 1)
	require.Equal(t, "2", failed[0].LicenseID)

	gotOne, err := store.FindByID(ctx, "1")
	require.NoError(t, err)
	require.Equal(t, "after", gotOne.DBA)

	gotThree, err := store.FindByID(ctx, "3")
	require.NoError(t, err)
	require.Equal(t, "after", gotThree.DBA)

	gotTwo, err := store.FindByID(ctx, "2")
	require.NoError(t, err)
	require.Equal(t, "before", gotTwo.DBA)
	require.Equal(t, "KEY-2", gotTwo.LicenseKey)
}

func TestSavePersistsLifecycleColumns(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	store := newStoreWithLicenses(t,
		&License{ID: "1", LicenseKey: "KEY-1", Product: "p", GracePeriodDays: 30},
	)

	ctx := context.Background()
	lic, err := store.FindByID(ctx, "1")
	require.NoError(t, err)

	expiry := now.AddDate(0, 1, 0)
	lic.ExpiresAt = &expiry
	lic.RecomputeGracePeriodEnd()
	lic.MarkReminderSent(Reminder30Days, now)
	lic.AppendHistory("renewed", now, map[string]string{"source": "test"})
	require.NoError(t, store.Save(ctx, lic))

	got, err := store.FindByID(ctx, "1")
	require.NoError(t, err)
	require.True(t, got.HasReminder(Reminder30Days))
	require.NotNil(t, got.GracePeriodEnd)
	require.Len(t, got.History(), 1)
}

func TestListPagesNewestFirst(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	var lics []*License
	for i := 0; i < 5; i++ {
		lics = append(lics, &License{
			ID:         fmt.Sprintf("%d", i+1),
			LicenseKey: fmt.Sprintf("KEY-%d", i+1),
			Product:    "p",
			CreatedAt:  base.Add(time.Duration(i) * time.Hour),
		})
	}
	store := newStoreWithLicenses(t, lics...)

	ctx := context.Background()

	page, err := store.List(ctx, pagination.Pagination{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page, 3) // limit+1 so the caller can detect more rows
	require.Equal(t, "5", page[0].ID)
	require.Equal(t, "4", page[1].ID)

	cursor, err := pagination.EncodeCursor(pagination.Cursor{
		CreatedAt: page[1].CreatedAt.Format(time.RFC3339Nano),
		ID:        page[1].ID,
	})
	require.NoError(t, err)

	next, err := store.List(ctx, pagination.Pagination{Cursor: cursor, Limit: 10})
	require.NoError(t, err)
	require.Len(t, next, 3)
	require.Equal(t, "3", next[0].ID)
	require.Equal(t, "1", next[2].ID)
}

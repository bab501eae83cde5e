package reconcile

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"licensehub-engine/pkg/errutil"
	"licensehub-engine/services/extapi"
)

type mockGateway struct {
	mu       sync.Mutex
	pages    map[int]*extapi.ListResponse
	pageErrs map[int]error
	calls    []int

	updateByAppIDFn func(ctx context.Context, appID string, lic *extapi.ExternalLicense) (*extapi.ExternalLicense, error)
	updateByEmailFn func(ctx context.Context, email string, lic *extapi.ExternalLicense) (*extapi.ExternalLicense, error)
}

func (m *mockGateway) List(ctx context.Context, params extapi.ListParams) (*extapi.ListResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, params.Page)
	m.mu.Unlock()

	if err, ok := m.pageErrs[params.Page]; ok {
		return nil, err
	}
	if resp, ok := m.pages[params.Page]; ok {
		return resp, nil
	}
	return &extapi.ListResponse{Page: params.Page}, nil
}

func (m *mockGateway) UpdateByAppID(ctx context.Context, appID string, lic *extapi.ExternalLicense) (*extapi.ExternalLicense, error) {
	if m.updateByAppIDFn != nil {
		return m.updateByAppIDFn(ctx, appID, lic)
	}
	return lic, nil
}

func (m *mockGateway) UpdateByEmail(ctx context.Context, email string, lic *extapi.ExternalLicense) (*extapi.ExternalLicense, error) {
	if m.updateByEmailFn != nil {
		return m.updateByEmailFn(ctx, email, lic)
	}
	return lic, nil
}

func makePage(page, size, total int) *extapi.ListResponse {
	data := make([]*extapi.ExternalLicense, 0, size)
	for i := 0; i < size; i++ {
		appID := fmt.Sprintf("APP-%d-%d", page, i)
		data = append(data, &extapi.ExternalLicense{AppID: &appID})
	}
	return &extapi.ListResponse{Data: data, Total: total, Page: page}
}

func TestFetchAllWalksEveryPage(t *testing.T) {
	gw := &mockGateway{pages: map[int]*extapi.ListResponse{
		1: makePage(1, 10, 25),
		2: makePage(2, 10, 25),
		3: makePage(3, 5, 25),
	}}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10, Concurrency: 2})
	res, err := f.FetchAll(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Licenses, 25)
	require.Equal(t, 25, res.Valid)
	require.Equal(t, 0, res.Invalid)
	require.Equal(t, 3, res.PagesFetched)
	require.False(t, res.Truncated)
}

func TestFetchAllFirstPageFailureIsFatal(t *testing.T) {
	gw := &mockGateway{pageErrs: map[int]error{
		1: errutil.ServiceUnavailable("down", nil),
	}}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10})
	_, err := f.FetchAll(context.Background(), FetchOptions{})
	require.Error(t, err)
	require.Equal(t, errutil.StatusBadGateway, errutil.StatusOf(err))
}

func TestFetchAllLaterPageFailureIsRecorded(t *testing.T) {
	gw := &mockGateway{
		pages: map[int]*extapi.ListResponse{
			1: makePage(1, 10, 30),
			3: makePage(3, 10, 30),
		},
		pageErrs: map[int]error{
			2: errutil.ServiceUnavailable("flaky", nil),
		},
	}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10, Concurrency: 3})
	res, err := f.FetchAll(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Licenses, 20)
	require.Len(t, res.PageErrors, 1)
	require.Equal(t, 2, res.PageErrors[0].Page)
}

func TestFetchAllTruncatesAtCeiling(t *testing.T) {
	pages := map[int]*extapi.ListResponse{}
	for p := 1; p <= 10; p++ {
		pages[p] = makePage(p, 10, 100)
	}
	gw := &mockGateway{pages: pages}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10, Concurrency: 2, Ceiling: 35})
	res, err := f.FetchAll(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Len(t, res.Licenses, 35)
}

func TestFetchAllHonoursCallerCap(t *testing.T) {
	pages := map[int]*extapi.ListResponse{}
	for p := 1; p <= 10; p++ {
		pages[p] = makePage(p, 10, 100)
	}
	gw := &mockGateway{pages: pages}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10, Concurrency: 2})
	res, err := f.FetchAll(context.Background(), FetchOptions{MaxLicenses: 15})
	require.NoError(t, err)
	require.True(t, res.Truncated)
	require.Len(t, res.Licenses, 15)
}

func TestFetchAllStopsOnShortPage(t *testing.T) {
	gw := &mockGateway{pages: map[int]*extapi.ListResponse{
		1: makePage(1, 10, 1000), // total claims more pages than exist
		2: makePage(2, 3, 1000),
	}}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10, Concurrency: 1})
	res, err := f.FetchAll(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Licenses, 13)
}

func TestFetchAllDropsInvalidRecordsInLenientMode(t *testing.T) {
	page := makePage(1, 3, 3)
	page.Data[1] = &extapi.ExternalLicense{} // no identifier
	gw := &mockGateway{pages: map[int]*extapi.ListResponse{1: page}}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10})
	res, err := f.FetchAll(context.Background(), FetchOptions{})
	require.NoError(t, err)
	require.Len(t, res.Licenses, 2)
	require.Equal(t, 2, res.Valid)
	require.Equal(t, 1, res.Invalid)
}

func TestFetchAllStrictModeRejectsInvalidRecords(t *testing.T) {
	page := makePage(1, 3, 3)
	page.Data[1] = &extapi.ExternalLicense{}
	gw := &mockGateway{pages: map[int]*extapi.ListResponse{1: page}}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10, Strict: true})
	_, err := f.FetchAll(context.Background(), FetchOptions{})
	require.Error(t, err)
	require.Equal(t, errutil.StatusValidationFailed, errutil.StatusOf(err))
}

func TestFetchAllSkipValidationKeepsEverything(t *testing.T) {
	page := makePage(1, 3, 3)
	page.Data[1] = &extapi.ExternalLicense{}
	gw := &mockGateway{pages: map[int]*extapi.ListResponse{1: page}}

	f := NewFetcher(gw, FetcherConfig{PageSize: 10})
	res, err := f.FetchAll(context.Background(), FetchOptions{SkipValidation: true})
	require.NoError(t, err)
	require.Len(t, res.Licenses, 3)
}

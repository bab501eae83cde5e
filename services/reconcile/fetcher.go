package reconcile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"licensehub-engine/pkg/errutil"
	"licensehub-engine/services/extapi"
)

// RemoteGateway is the slice of the remote client the reconciliation path
// depends on. *extapi.Client satisfies it.
type RemoteGateway interface {
	List(ctx context.Context, params extapi.ListParams) (*extapi.ListResponse, error)
	UpdateByAppID(ctx context.Context, appID string, lic *extapi.ExternalLicense) (*extapi.ExternalLicense, error)
	UpdateByEmail(ctx context.Context, email string, lic *extapi.ExternalLicense) (*extapi.ExternalLicense, error)
}

// FetchOptions tune a single comprehensive fetch.
type FetchOptions struct {
	// MaxLicenses caps the number of records collected; zero means no
	// caller-imposed cap (the configured safety ceiling still applies).
	MaxLicenses int
	// SkipValidation collects records without shape-checking them.
	SkipValidation bool
}

// PageError records a page that failed after the first; the fetch continues
// past it.
type PageError struct {
	Page int
	Err  error
}

func (e PageError) Error() string {
	return fmt.Sprintf("page %d: %v", e.Page, e.Err)
}

// FetchResult is the outcome of one comprehensive fetch.
type FetchResult struct {
	Licenses     []*extapi.ExternalLicense
	Valid        int
	Invalid      int
	Total        int
	PagesFetched int
	PageErrors   []PageError
	Truncated    bool
	FetchedAt    time.Time
}

// Fetcher pulls the remote's full license population page by page, fanning
// out a bounded wave of page requests at a time.
type Fetcher struct {
	gateway     RemoteGateway
	pageSize    int
	concurrency int
	ceiling     int
	strict      bool
}

type FetcherConfig struct {
	PageSize    int
	Concurrency int
	// Ceiling is the absolute record cap protecting memory on unexpectedly
	// large remote populations.
	Ceiling int
	// Strict makes an invalid record abort the fetch instead of being
	// dropped and counted.
	Strict bool
}

func NewFetcher(gateway RemoteGateway, cfg FetcherConfig) *Fetcher {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 100
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.Ceiling <= 0 {
		cfg.Ceiling = 10000
	}

	return &Fetcher{
		gateway:     gateway,
		pageSize:    cfg.PageSize,
		concurrency: cfg.Concurrency,
		ceiling:     cfg.Ceiling,
		strict:      cfg.Strict,
	}
}

type pageResult struct {
	page int
	resp *extapi.ListResponse
	err  error
}

// FetchAll retrieves every page of the remote population. Page one is fetched
// alone to learn the pagination shape; its failure is fatal because nothing
// can be reconciled without it. Later pages run in waves of at most the
// configured concurrency, and individual failures are recorded and skipped so
// one bad page cannot void the whole run.
func (f *Fetcher) FetchAll(ctx context.Context, opts FetchOptions) (*FetchResult, error) {
	started := time.Now().UTC()

	first, err := f.gateway.List(ctx, extapi.ListParams{Page: 1, Limit: f.pageSize})
	if err != nil {
		return nil, errutil.BadGateway("unable to fetch first page of remote licenses", err)
	}

	result := &FetchResult{
		Total:        first.Total,
		PagesFetched: 1,
		FetchedAt:    started,
	}

	records := append([]*extapi.ExternalLicense(nil), first.Data...)
	totalPages := f.totalPages(first)
	lastPageSeen := len(first.Data) < f.pageSize

	limit := f.ceiling
	if opts.MaxLicenses > 0 && opts.MaxLicenses < limit {
		limit = opts.MaxLicenses
	}

	page := 2
	for page <= totalPages && !lastPageSeen && len(records) < limit {
		waveEnd := page + f.concurrency - 1
		if waveEnd > totalPages {
			waveEnd = totalPages
		}

		wave := make([]pageResult, waveEnd-page+1)
		g, gctx := errgroup.WithContext(ctx)
		for i := range wave {
			i := i
			p := page + i
			g.Go(func() error {
				resp, err := f.gateway.List(gctx, extapi.ListParams{Page: p, Limit: f.pageSize})
				wave[i] = pageResult{page: p, resp: resp, err: err}
				return nil
			})
		}
		_ = g.Wait()

		for _, pr := range wave {
			if pr.err != nil {
				result.PageErrors = append(result.PageErrors, PageError{Page: pr.page, Err: pr.err})
				zap.L().Warn("remote page fetch failed, continuing",
					zap.Int("page", pr.page),
					zap.Error(pr.err),
				)
				continue
			}

			result.PagesFetched++
			records = append(records, pr.resp.Data...)
			if len(pr.resp.Data) < f.pageSize {
				lastPageSeen = true
			}
			if pr.resp.HasNext != nil && !*pr.resp.HasNext {
				lastPageSeen = true
			}
		}

		page = waveEnd + 1
	}

	if len(records) > limit {
		zap.L().Warn("remote population exceeds fetch cap, truncating",
			zap.Int("fetched", len(records)),
			zap.Int("cap", limit),
		)
		records = records[:limit]
		result.Truncated = true
	}

	if opts.SkipValidation {
		result.Licenses = records
		result.Valid = len(records)
		return result, nil
	}

	for _, rec := range records {
		if err := rec.Validate(); err != nil {
			if f.strict {
				return nil, errutil.ValidationFailed(
					fmt.Sprintf("invalid remote record %s", rec.Identity()), err)
			}
			result.Invalid++
			zap.L().Warn("dropping invalid remote record",
				zap.String("identity", rec.Identity()),
				zap.Error(err),
			)
			continue
		}
		result.Licenses = append(result.Licenses, rec)
		result.Valid++
	}

	zap.L().Info("comprehensive fetch complete",
		zap.Int("valid", result.Valid),
		zap.Int("invalid", result.Invalid),
		zap.Int("pages", result.PagesFetched),
		zap.Int("page_errors", len(result.PageErrors)),
		zap.Bool("truncated", result.Truncated),
		zap.Duration("elapsed", time.Since(started)),
	)

	return result, nil
}

// totalPages derives the page count from the response metadata, preferring
// the remote's own figure when it reports one.
func (f *Fetcher) totalPages(resp *extapi.ListResponse) int {
	if resp.TotalPages != nil && *resp.TotalPages > 0 {
		return *resp.TotalPages
	}
	if resp.Total <= 0 {
		return 1
	}
	return (resp.Total + f.pageSize - 1) / f.pageSize
}

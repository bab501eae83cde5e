package reconcile

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"licensehub-engine/pkg/cache"
	"licensehub-engine/pkg/config"
	"licensehub-engine/pkg/rediskey"
	"licensehub-engine/services/extapi"
	"licensehub-engine/services/license"
)

// SyncSummary reports one reconciliation run. Failed counts records that
// could not be persisted or pushed; their errors are itemised so a partially
// failed run is still diagnosable.
type SyncSummary struct {
	Total     int           `json:"total"`
	Created   int           `json:"created"`
	Updated   int           `json:"updated"`
	Failed    int           `json:"failed"`
	Invalid   int           `json:"invalid"`
	Truncated bool          `json:"truncated"`
	Errors    []ItemFailure `json:"errors,omitempty"`
	FetchedAt time.Time     `json:"fetched_at"`
}

type ItemFailure struct {
	Identity string `json:"identity"`
	Reason   string `json:"reason"`
}

// PushSummary reports one outbound push run.
type PushSummary struct {
	Total  int           `json:"total"`
	Pushed int           `json:"pushed"`
	Failed int           `json:"failed"`
	Errors []ItemFailure `json:"errors,omitempty"`
}

type ServiceParams struct {
	fx.In
	Cfg     *config.Config
	Gateway RemoteGateway
	Store   license.Store
	Cache   cache.Cache `optional:"true"`
	Node    *snowflake.Node
}

// Service drives reconciliation between the internal license store and the
// remote authority.
type Service struct {
	cfg      *config.Config
	gateway  RemoteGateway
	store    license.Store
	cache    cache.Cache
	node     *snowflake.Node
	fetcher  *Fetcher
	matcher  *Matcher
	defaults CreationDefaults
}

func NewService(p ServiceParams) *Service {
	concurrency := p.Cfg.Sync.ConcurrencyLimit
	if p.Cfg.Sync.MaxConcurrentBatches > 0 && concurrency > p.Cfg.Sync.MaxConcurrentBatches {
		concurrency = p.Cfg.Sync.MaxConcurrentBatches
	}

	return &Service{
		cfg:     p.Cfg,
		gateway: p.Gateway,
		store:   p.Store,
		cache:   p.Cache,
		node:    p.Node,
		fetcher: NewFetcher(p.Gateway, FetcherConfig{
			PageSize:    p.Cfg.Sync.FetchBatchSize,
			Concurrency: concurrency,
			Ceiling:     p.Cfg.Sync.MaxLicensesForComprehensive,
			Strict:      p.Cfg.Sync.StrictValidation,
		}),
		matcher: NewMatcher(p.Store),
		defaults: CreationDefaults{
			Product: p.Cfg.Lifecycle.DefaultProduct,
			Plan:    "Basic",
			Term:    "monthly",
		},
	}
}

// SyncFromRemote pulls the full remote population and reconciles it into the
// internal store: matched records are selectively merged, unmatched records
// are created. The run is idempotent; repeating it against an unchanged
// remote only refreshes sync timestamps.
func (s *Service) SyncFromRemote(ctx context.Context, opts FetchOptions) (*SyncSummary, error) {
	res, err := s.fetcher.FetchAll(ctx, opts)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	summary := &SyncSummary{
		Total:     len(res.Licenses),
		Invalid:   res.Invalid,
		Truncated: res.Truncated,
		FetchedAt: res.FetchedAt,
	}

	var updates []*license.License
	for _, ext := range res.Licenses {
		lic, strategy, err := s.matcher.Match(ctx, ext)
		if err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, ItemFailure{
				Identity: ext.Identity(),
				Reason:   err.Error(),
			})
			continue
		}

		if lic == nil {
			if err := s.createFromExternal(ctx, ext, now); err != nil {
				summary.Failed++
				summary.Errors = append(summary.Errors, ItemFailure{
					Identity: ext.Identity(),
					Reason:   err.Error(),
				})
				continue
			}
			summary.Created++
			continue
		}

		ApplyExternal(lic, ext, now)
		updates = append(updates, lic)
		zap.L().Debug("merged external record",
			zap.String("license_id", lic.ID),
			zap.String("matched_by", strategy),
		)
	}

	summary.Updated = len(updates)
	for _, itemErr := range s.store.BatchUpdateChunked(ctx, updates, s.cfg.Sync.WriteBatchSize) {
		summary.Updated--
		summary.Failed++
		summary.Errors = append(summary.Errors, ItemFailure{
			Identity: itemErr.LicenseID,
			Reason:   itemErr.Err.Error(),
		})
	}

	s.invalidateCache(ctx)

	zap.L().Info("reconciliation complete",
		zap.Int("total", summary.Total),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Int("invalid", summary.Invalid),
		zap.Bool("truncated", summary.Truncated),
	)

	return summary, nil
}

// createFromExternal persists a new license built from an external record. A
// license-key collision gets one retry with a fresh suffix before giving up.
func (s *Service) createFromExternal(ctx context.Context, ext *extapi.ExternalLicense, now time.Time) error {
	lic := NewFromExternal(s.node, s.defaults, ext, now)
	err := s.store.Create(ctx, lic)
	if err == nil {
		return nil
	}
	if !isDuplicateKey(err) {
		return err
	}

	zap.L().Warn("license key collision, regenerating",
		zap.String("license_key", lic.LicenseKey))
	lic.LicenseKey = GenerateLicenseKey(ext, now)
	return s.store.Create(ctx, lic)
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

// PushToRemote writes locally-held changes back to the remote authority for
// every license that carries an external identity. Each license tries its
// appid first and falls back to email; the outcome lands on the sync
// envelope either way.
func (s *Service) PushToRemote(ctx context.Context) (*PushSummary, error) {
	lics, err := s.store.ListWithExternalIdentity(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	summary := &PushSummary{Total: len(lics)}

	for _, lic := range lics {
		payload := buildExternalPayload(lic)

		err := s.pushOne(ctx, lic, payload)
		if err != nil {
			lic.ExternalSyncStatus = license.SyncFailed
			reason := err.Error()
			lic.ExternalSyncError = &reason
			summary.Failed++
			summary.Errors = append(summary.Errors, ItemFailure{
				Identity: lic.ID,
				Reason:   reason,
			})
		} else {
			lic.ExternalSyncStatus = license.SyncSynced
			lic.ExternalSyncError = nil
			lic.LastExternalSync = &now
			summary.Pushed++
		}

		if saveErr := s.store.Save(ctx, lic); saveErr != nil {
			zap.L().Error("unable to record push outcome",
				zap.String("license_id", lic.ID),
				zap.Error(saveErr),
			)
		}
	}

	s.invalidateCache(ctx)

	zap.L().Info("push complete",
		zap.Int("total", summary.Total),
		zap.Int("pushed", summary.Pushed),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

func (s *Service) pushOne(ctx context.Context, lic *license.License, payload *extapi.ExternalLicense) error {
	var lastErr error

	if lic.ExternalAppID != nil && *lic.ExternalAppID != "" {
		if _, err := s.gateway.UpdateByAppID(ctx, *lic.ExternalAppID, payload); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lic.ExternalEmail != nil && *lic.ExternalEmail != "" {
		if _, err := s.gateway.UpdateByEmail(ctx, *lic.ExternalEmail, payload); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr == nil {
		lastErr = errors.New("license carries no pushable identifier")
	}
	return lastErr
}

// buildExternalPayload projects the internal record into the remote's shape.
// Only fields the remote owns are populated; internal-only lifecycle state
// never leaves the engine.
func buildExternalPayload(lic *license.License) *extapi.ExternalLicense {
	payload := &extapi.ExternalLicense{}

	if lic.DBA != "" {
		dba := lic.DBA
		payload.DBA = &dba
	}
	if lic.Plan != "" {
		plan := lic.Plan
		payload.Package = &plan
	}
	if lic.Notes != "" {
		notes := lic.Notes
		payload.Notes = &notes
	}
	if lic.SeatsTotal > 0 {
		seats := lic.SeatsTotal
		payload.Seats = &seats
	}

	sms := lic.SMSBalance
	payload.SMSBalance = &sms

	num := 0
	if lic.Status == license.StatusActive {
		num = 1
	}
	payload.Status = &extapi.StatusValue{Raw: lic.Status.String(), Num: &num}

	if lic.ExpiresAt != nil {
		expiry := lic.ExpiresAt.UTC().Format(time.RFC3339)
		payload.ExpiryDate = &expiry
	}

	return payload
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, rediskey.LicensePattern()); err != nil {
		zap.L().Warn("cache invalidation failed", zap.Error(err))
	}
}

package lifecycle

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"licensehub-engine/pkg/cache"
	"licensehub-engine/pkg/config"
	"licensehub-engine/pkg/errutil"
	"licensehub-engine/pkg/rediskey"
	"licensehub-engine/services/license"
)

// SweepSummary reports one expiration sweep.
type SweepSummary struct {
	Scanned   int `json:"scanned"`
	Expiring  int `json:"expiring"`
	Suspended int `json:"suspended"`
	Failed    int `json:"failed"`
}

// ReminderSummary reports one reminder run.
type ReminderSummary struct {
	Scanned int `json:"scanned"`
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
}

type ServiceParams struct {
	fx.In
	Cfg      *config.Config
	Store    license.Store
	Cache    cache.Cache      `optional:"true"`
	Notifier ReminderNotifier `optional:"true"`
}

// Service runs the time-based lifecycle transitions: expiry suspension after
// the grace period, renewal reminders, and explicit renew / suspend /
// reactivate operations.
type Service struct {
	cfg      *config.Config
	store    license.Store
	cache    cache.Cache
	notifier ReminderNotifier
}

func NewService(p ServiceParams) *Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = NewLogNotifier()
	}

	return &Service{
		cfg:      p.Cfg,
		store:    p.Store,
		cache:    p.Cache,
		notifier: notifier,
	}
}

// ProcessExpirations sweeps every license carrying an expiry and suspends the
// ones whose grace period has elapsed. Licenses inside their grace period are
// left alone; terminal statuses are never touched.
func (s *Service) ProcessExpirations(ctx context.Context) (*SweepSummary, error) {
	lics, err := s.store.ListWithExpiry(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	summary := &SweepSummary{Scanned: len(lics)}

	for _, lic := range lics {
		if IsExpiring(lic, now, s.cfg.Lifecycle.ExpiryThresholdDays) {
			summary.Expiring++
		}

		if !IsSuspensionEligible(lic, now) {
			continue
		}

		s.suspend(lic, now, "grace period elapsed after expiry")

		if err := s.store.Save(ctx, lic); err != nil {
			summary.Failed++
			zap.L().Error("unable to persist suspension",
				zap.String("license_id", lic.ID),
				zap.Error(err),
			)
			continue
		}
		summary.Suspended++
	}

	s.invalidateCache(ctx)

	zap.L().Info("expiration sweep complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("expiring", summary.Expiring),
		zap.Int("suspended", summary.Suspended),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// SendRenewalReminders delivers at most one reminder per license per window.
// A delivery failure leaves the sent set untouched so the reminder is retried
// on the next run.
func (s *Service) SendRenewalReminders(ctx context.Context) (*ReminderSummary, error) {
	lics, err := s.store.ListWithExpiry(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	summary := &ReminderSummary{Scanned: len(lics)}

	for _, lic := range lics {
		due, ok := DueReminder(lic, now)
		if !ok {
			continue
		}

		daysLeft := int(math.Ceil(lic.ExpiresAt.Sub(now).Hours() / 24))
		if err := s.notifier.SendRenewalReminder(ctx, lic, due, daysLeft); err != nil {
			summary.Failed++
			zap.L().Warn("reminder delivery failed, will retry next run",
				zap.String("license_id", lic.ID),
				zap.String("reminder", string(due)),
				zap.Error(err),
			)
			continue
		}

		lic.MarkReminderSent(due, now)
		if err := s.store.Save(ctx, lic); err != nil {
			summary.Failed++
			zap.L().Error("unable to persist reminder state",
				zap.String("license_id", lic.ID),
				zap.Error(err),
			)
			continue
		}
		summary.Sent++
	}

	zap.L().Info("reminder run complete",
		zap.Int("scanned", summary.Scanned),
		zap.Int("sent", summary.Sent),
		zap.Int("failed", summary.Failed),
	)

	return summary, nil
}

// ExtendExpiry renews a license to a new expiry date. The reminder set is
// cleared for the new cycle, the grace boundary is recomputed, and an expired
// or suspended license returns to active.
func (s *Service) ExtendExpiry(ctx context.Context, id string, newExpiry time.Time) (*license.License, error) {
	lic, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		return nil, errutil.NotFound(fmt.Sprintf("license %s not found", id), nil)
	}

	if lic.ExpiresAt != nil && !newExpiry.After(*lic.ExpiresAt) {
		return nil, errutil.BadRequest("new expiry must be later than the current one", nil)
	}

	now := time.Now().UTC()
	previous := ""
	if lic.ExpiresAt != nil {
		previous = lic.ExpiresAt.Format(time.RFC3339)
	}

	lic.ExpiresAt = &newExpiry
	lic.RenewalDueDate = &newExpiry
	lic.RecomputeGracePeriodEnd()
	lic.RenewalRemindersSent = nil
	lic.LastRenewalReminder = nil

	if lic.Status == license.StatusExpired {
		lic.Status = license.StatusActive
	}
	if lic.SuspendedAt != nil {
		s.reactivate(lic, now, "renewed")
	}

	lic.AppendHistory("renewed", now, map[string]string{
		"previous_expiry": previous,
		"new_expiry":      newExpiry.Format(time.RFC3339),
	})

	if err := s.store.Save(ctx, lic); err != nil {
		return nil, err
	}

	s.invalidateOne(ctx, lic)

	return lic, nil
}

// Suspend takes a license out of service for an operator-supplied reason.
func (s *Service) Suspend(ctx context.Context, id, reason string) (*license.License, error) {
	lic, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		return nil, errutil.NotFound(fmt.Sprintf("license %s not found", id), nil)
	}
	if lic.Status.Terminal() {
		return nil, errutil.Conflict("license is in a terminal status", nil)
	}

	s.suspend(lic, time.Now().UTC(), reason)

	if err := s.store.Save(ctx, lic); err != nil {
		return nil, err
	}

	s.invalidateOne(ctx, lic)

	return lic, nil
}

// Reactivate returns a suspended license to active.
func (s *Service) Reactivate(ctx context.Context, id, reason string) (*license.License, error) {
	lic, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if lic == nil {
		return nil, errutil.NotFound(fmt.Sprintf("license %s not found", id), nil)
	}
	if lic.SuspendedAt == nil {
		return nil, errutil.Conflict("license is not suspended", nil)
	}

	now := time.Now().UTC()
	s.reactivate(lic, now, reason)
	lic.AppendHistory("reactivated", now, map[string]string{"reason": reason})

	if err := s.store.Save(ctx, lic); err != nil {
		return nil, err
	}

	s.invalidateOne(ctx, lic)

	return lic, nil
}

func (s *Service) suspend(lic *license.License, now time.Time, reason string) {
	lic.Status = license.StatusExpired
	lic.SuspendedAt = &now
	lic.SuspensionReason = &reason
	lic.AppendHistory("suspended", now, map[string]string{"reason": reason})

	zap.L().Info("license suspended",
		zap.String("license_id", lic.ID),
		zap.String("license_key", lic.LicenseKey),
		zap.String("reason", reason),
	)
}

func (s *Service) reactivate(lic *license.License, now time.Time, reason string) {
	lic.Status = license.StatusActive
	lic.SuspendedAt = nil
	lic.SuspensionReason = nil
	lic.ReactivatedAt = &now

	zap.L().Info("license reactivated",
		zap.String("license_id", lic.ID),
		zap.String("reason", reason),
	)
}

func (s *Service) invalidateOne(ctx context.Context, lic *license.License) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, rediskey.BuildLicenseIDKey(lic.ID), rediskey.BuildLicenseKeyKey(lic.LicenseKey)); err != nil {
		zap.L().Warn("cache invalidation failed", zap.Error(err))
	}
}

func (s *Service) invalidateCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeletePattern(ctx, rediskey.LicensePattern()); err != nil {
		zap.L().Warn("cache invalidation failed", zap.Error(err))
	}
}

package lifecycle

import (
	"time"

	"licensehub-engine/services/license"
)

// reminder windows, measured as time remaining until expiry. Windows do not
// overlap, so at most one reminder type is due at any instant.
const (
	window1Day   = 24 * time.Hour
	window7Days  = 7 * 24 * time.Hour
	window30Days = 30 * 24 * time.Hour
)

// IsExpiring reports whether a non-terminal license expires within
// thresholdDays. Already-expired licenses are not "expiring"; they belong to
// the suspension path. Pending licenses count: an expiry date approaching
// before activation still needs attention.
func IsExpiring(lic *license.License, now time.Time, thresholdDays int) bool {
	if lic.Status.Terminal() || lic.ExpiresAt == nil {
		return false
	}

	until := lic.ExpiresAt.Sub(now)
	return until > 0 && until <= time.Duration(thresholdDays)*24*time.Hour
}

// IsExpired reports whether the license is past its expiry instant,
// regardless of status.
func IsExpired(lic *license.License, now time.Time) bool {
	return lic.ExpiresAt != nil && now.After(*lic.ExpiresAt)
}

// InGracePeriod reports whether the license is past expiry but still inside
// its grace window.
func InGracePeriod(lic *license.License, now time.Time) bool {
	if !IsExpired(lic, now) {
		return false
	}

	end := lic.EffectiveGracePeriodEnd()
	return end != nil && !now.After(*end)
}

// IsSuspensionEligible reports whether the sweep should suspend this license:
// it must be opted in to auto-suspension, expired, and past the end of its
// grace period. Terminal statuses are never touched; pending and active are
// both eligible.
func IsSuspensionEligible(lic *license.License, now time.Time) bool {
	if lic.Status.Terminal() || !lic.AutoSuspendEnabled {
		return false
	}
	if !IsExpired(lic, now) {
		return false
	}

	end := lic.EffectiveGracePeriodEnd()
	return end != nil && now.After(*end)
}

// DueReminder returns the reminder owed to an active license right now, if
// any. The narrowest matching window wins, and a reminder type already in the
// sent set is never owed again no matter when it was sent.
func DueReminder(lic *license.License, now time.Time) (license.ReminderType, bool) {
	if lic.Status != license.StatusActive || lic.ExpiresAt == nil {
		return "", false
	}

	until := lic.ExpiresAt.Sub(now)
	if until <= 0 {
		return "", false
	}

	var due license.ReminderType
	switch {
	case until <= window1Day:
		due = license.Reminder1Day
	case until <= window7Days:
		due = license.Reminder7Days
	case until <= window30Days:
		due = license.Reminder30Days
	default:
		return "", false
	}

	if lic.HasReminder(due) {
		return "", false
	}

	return due, true
}

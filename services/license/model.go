package license

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusCancel  Status = "cancel"
	// StatusRevoked is never produced by the engine but may arrive through
	// administrative writes; terminal-state checks recognise it.
	StatusRevoked Status = "revoked"
)

func (s Status) String() string {
	return string(s)
}

// Terminal reports whether the scheduler may still transition this status.
func (s Status) Terminal() bool {
	switch s {
	case StatusExpired, StatusCancel, StatusRevoked:
		return true
	default:
		return false
	}
}

type SyncStatus string

const (
	SyncPending SyncStatus = "pending"
	SyncSynced  SyncStatus = "synced"
	SyncFailed  SyncStatus = "failed"
)

// ReminderType tags one of the non-overlapping renewal reminder windows.
type ReminderType string

const (
	Reminder30Days ReminderType = "30days"
	Reminder7Days  ReminderType = "7days"
	Reminder1Day   ReminderType = "1day"
)

// HistoryEntry is one item of the append-only renewal history log.
type HistoryEntry struct {
	Action    string            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Details   map[string]string `json:"details,omitempty"`
}

// License is the internally-owned record. The external_* columns form the
// sync envelope tracking provenance and freshness of remotely-sourced data,
// independent of the business status.
type License struct {
	ID         string    `gorm:"column:id;primaryKey"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
	LicenseKey string    `gorm:"column:license_key;uniqueIndex;not null"`
	Product    string    `gorm:"column:product;not null"`
	Plan       string    `gorm:"column:plan;default:'Basic'"`
	Term       string    `gorm:"column:term;default:'monthly'"`
	Status     Status    `gorm:"column:status;default:'pending'"`
	DBA        string    `gorm:"column:dba"`
	SeatsTotal int       `gorm:"column:seats_total;default:0"`
	SeatsUsed  int       `gorm:"column:seats_used;default:0"`

	StartsAt   *time.Time `gorm:"column:starts_at"`
	ExpiresAt  *time.Time `gorm:"column:expires_at;index"`
	CancelDate *time.Time `gorm:"column:cancel_date"`

	Amount     float64 `gorm:"column:amount;default:0"`
	Currency   string  `gorm:"column:currency;default:'USD'"`
	SMSBalance float64 `gorm:"column:sms_balance;default:0"`
	Notes      string  `gorm:"column:notes"`

	// sync envelope
	ExternalAppID      *string    `gorm:"column:external_appid;index"`
	ExternalEmail      *string    `gorm:"column:external_email;index"`
	ExternalCountID    *int64     `gorm:"column:external_countid;index"`
	ExternalStatus     *string    `gorm:"column:external_status"`
	LastExternalSync   *time.Time `gorm:"column:last_external_sync"`
	ExternalSyncStatus SyncStatus `gorm:"column:external_sync_status;default:'pending'"`
	ExternalSyncError  *string    `gorm:"column:external_sync_error"`

	// lifecycle
	RenewalRemindersSent datatypes.JSON `gorm:"column:renewal_reminders_sent;type:text"`
	LastRenewalReminder  *time.Time     `gorm:"column:last_renewal_reminder"`
	RenewalDueDate       *time.Time     `gorm:"column:renewal_due_date"`
	AutoSuspendEnabled   bool           `gorm:"column:auto_suspend_enabled;default:true"`
	GracePeriodDays      int            `gorm:"column:grace_period_days;default:30"`
	GracePeriodEnd       *time.Time     `gorm:"column:grace_period_end"`
	SuspensionReason     *string        `gorm:"column:suspension_reason"`
	SuspendedAt          *time.Time     `gorm:"column:suspended_at"`
	ReactivatedAt        *time.Time     `gorm:"column:reactivated_at"`
	RenewalHistory       datatypes.JSON `gorm:"column:renewal_history;type:text"`
}

// RemindersSent decodes the reminder-set column. A corrupt column is treated
// as empty rather than failing the read.
func (l *License) RemindersSent() []ReminderType {
	if len(l.RenewalRemindersSent) == 0 {
		return nil
	}

	var sent []ReminderType
	if err := json.Unmarshal(l.RenewalRemindersSent, &sent); err != nil {
		zap.L().Warn("unreadable reminder set, treating as empty",
			zap.String("license_id", l.ID),
			zap.Error(err),
		)
		return nil
	}

	return sent
}

func (l *License) HasReminder(r ReminderType) bool {
	for _, sent := range l.RemindersSent() {
		if sent == r {
			return true
		}
	}
	return false
}

// MarkReminderSent appends the reminder type to the sent set and stamps the
// last-reminder time. Appending an already-present type is a no-op.
func (l *License) MarkReminderSent(r ReminderType, now time.Time) {
	if l.HasReminder(r) {
		return
	}

	sent := append(l.RemindersSent(), r)
	raw, err := json.Marshal(sent)
	if err != nil {
		return
	}

	l.RenewalRemindersSent = raw
	l.LastRenewalReminder = &now
}

// History decodes the renewal history log, oldest first.
func (l *License) History() []HistoryEntry {
	if len(l.RenewalHistory) == 0 {
		return nil
	}

	var entries []HistoryEntry
	if err := json.Unmarshal(l.RenewalHistory, &entries); err != nil {
		zap.L().Warn("unreadable renewal history",
			zap.String("license_id", l.ID),
			zap.Error(err),
		)
		return nil
	}

	return entries
}

// AppendHistory records an action on the append-only renewal log.
func (l *License) AppendHistory(action string, at time.Time, details map[string]string) {
	entries := append(l.History(), HistoryEntry{
		Action:    action,
		Timestamp: at,
		Details:   details,
	})

	raw, err := json.Marshal(entries)
	if err != nil {
		return
	}

	l.RenewalHistory = raw
}

// RecomputeGracePeriodEnd re-derives grace_period_end from the current
// expiry. Must be called whenever expires_at changes.
func (l *License) RecomputeGracePeriodEnd() {
	if l.ExpiresAt == nil {
		l.GracePeriodEnd = nil
		return
	}

	end := l.ExpiresAt.AddDate(0, 0, l.GracePeriodDays)
	l.GracePeriodEnd = &end
}

// EffectiveGracePeriodEnd returns the stored boundary, deriving it on the fly
// when the column was never populated.
func (l *License) EffectiveGracePeriodEnd() *time.Time {
	if l.GracePeriodEnd != nil {
		return l.GracePeriodEnd
	}
	if l.ExpiresAt == nil {
		return nil
	}
	end := l.ExpiresAt.AddDate(0, 0, l.GracePeriodDays)
	return &end
}

// NormalizeCancelDate enforces the invariant that a cancelled license carries
// a cancel date. A missing date is synthesized from the last update and the
// anomaly logged; rejecting the read would be worse than tagging it.
func (l *License) NormalizeCancelDate() bool {
	if l.Status != StatusCancel || l.CancelDate != nil {
		return false
	}

	synthesized := l.UpdatedAt
	l.CancelDate = &synthesized

	zap.L().Warn("cancelled license missing cancel date, synthesizing from last update",
		zap.String("license_id", l.ID),
		zap.String("license_key", l.LicenseKey),
		zap.Time("cancel_date", synthesized),
	)

	return true
}

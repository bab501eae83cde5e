package lifecycle

import (
	"context"

	"go.uber.org/zap"

	"licensehub-engine/services/license"
)

// ReminderNotifier delivers renewal reminders. The engine owns deciding when
// a reminder is due; delivery is pluggable.
type ReminderNotifier interface {
	SendRenewalReminder(ctx context.Context, lic *license.License, reminder license.ReminderType, daysLeft int) error
}

// LogNotifier is the default delivery channel: it records the reminder in the
// application log. Deployments wire a real channel by providing their own
// ReminderNotifier.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (n *LogNotifier) SendRenewalReminder(_ context.Context, lic *license.License, reminder license.ReminderType, daysLeft int) error {
	zap.L().Info("renewal reminder due",
		zap.String("license_id", lic.ID),
		zap.String("license_key", lic.LicenseKey),
		zap.String("reminder", string(reminder)),
		zap.Int("days_left", daysLeft),
	)
	return nil
}

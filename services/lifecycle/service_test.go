package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"licensehub-engine/pkg/config"
	"licensehub-engine/pkg/db/pagination"
	"licensehub-engine/services/license"
)

type mockStore struct {
	listExpiryFn func(ctx context.Context) ([]*license.License, error)
	findByIDFn   func(ctx context.Context, id string) (*license.License, error)
	saveFn       func(ctx context.Context, lic *license.License) error
}

func (m *mockStore) FindByAppID(context.Context, string) (*license.License, error) { return nil, nil }
func (m *mockStore) FindByEmail(context.Context, string) (*license.License, error) { return nil, nil }
func (m *mockStore) FindByCountID(context.Context, int64) (*license.License, error) {
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

func (m *mockStore) ListWithExternalIdentity(context.Context) ([]*license.License, error) {
	return nil, nil
}

func (m *mockStore) ListWithExpiry(ctx context.Context) ([]*license.License, error) {
	if m.listExpiryFn != nil {
		return m.listExpiryFn(ctx)
	}
	return nil, nil
}

func (m *mockStore) Create(context.Context, *license.License) error { return nil }

func (m *mockStore) Save(ctx context.Context, lic *license.License) error {
	if m.saveFn != nil {
		return m.saveFn(ctx, lic)
	}
	return nil
}

func (m *mockStore) BatchUpdateChunked(context.Context, []*license.License, int) []license.ItemError {
	return nil
}

type recordingNotifier struct {
	sent []license.ReminderType
	err  error
}

func (n *recordingNotifier) SendRenewalReminder(_ context.Context, _ *license.License, r license.ReminderType, _ int) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, r)
	return nil
}

func newTestLifecycle(store license.Store, notifier ReminderNotifier) *Service {
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	return NewService(ServiceParams{
		Cfg:      cfg,
		Store:    store,
		Notifier: notifier,
	})
}

func TestProcessExpirationsSuspendsPastGrace(t *testing.T) {
	now := time.Now().UTC()
	pastGrace := &license.License{
		ID:                 "past",
		Status:             license.StatusActive,
		AutoSuspendEnabled: true,
		GracePeriodDays:    30,
		ExpiresAt:          timeptr(now.AddDate(0, 0, -40)),
	}
	inGrace := &license.License{
		ID:                 "grace",
		Status:             license.StatusActive,
		AutoSuspendEnabled: true,
		GracePeriodDays:    30,
		ExpiresAt:          timeptr(now.AddDate(0, 0, -10)),
	}

	var saved []string
	store := &mockStore{
		listExpiryFn: func(ctx context.Context) ([]*license.License, error) {
			return []*license.License{pastGrace, inGrace}, nil
		},
		saveFn: func(ctx context.Context, lic *license.License) error {
			saved = append(saved, lic.ID)
			return nil
		},
	}

	svc := newTestLifecycle(store, nil)
	summary, err := svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Scanned)
	require.Equal(t, 1, summary.Suspended)
	require.Equal(t, []string{"past"}, saved)

	require.Equal(t, license.StatusExpired, pastGrace.Status)
	require.NotNil(t, pastGrace.SuspendedAt)
	require.NotNil(t, pastGrace.SuspensionReason)
	require.Equal(t, license.StatusActive, inGrace.Status)

	history := pastGrace.History()
	require.Len(t, history, 1)
	require.Equal(t, "suspended", history[0].Action)
}

func TestProcessExpirationsCountsExpiringWithinThreshold(t *testing.T) {
	now := time.Now().UTC()

	// default threshold is 30 days
	soonActive := &license.License{ID: "a", Status: license.StatusActive, ExpiresAt: timeptr(now.AddDate(0, 0, 20))}
	soonPending := &license.License{ID: "p", Status: license.StatusPending, ExpiresAt: timeptr(now.AddDate(0, 0, 10))}
	farOut := &license.License{ID: "f", Status: license.StatusActive, ExpiresAt: timeptr(now.AddDate(0, 0, 90))}
	cancelled := &license.License{ID: "c", Status: license.StatusCancel, ExpiresAt: timeptr(now.AddDate(0, 0, 10))}

	store := &mockStore{
		listExpiryFn: func(ctx context.Context) ([]*license.License, error) {
			return []*license.License{soonActive, soonPending, farOut, cancelled}, nil
		},
	}

	svc := newTestLifecycle(store, nil)
	summary, err := svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, summary.Scanned)
	require.Equal(t, 2, summary.Expiring)
	require.Equal(t, 0, summary.Suspended)
}

func TestProcessExpirationsSuspendsPendingPastGrace(t *testing.T) {
	now := time.Now().UTC()
	pending := &license.License{
		ID:                 "pending",
		Status:             license.StatusPending,
		AutoSuspendEnabled: true,
		GracePeriodDays:    30,
		ExpiresAt:          timeptr(now.AddDate(0, 0, -40)),
	}

	store := &mockStore{
		listExpiryFn: func(ctx context.Context) ([]*license.License, error) {
			return []*license.License{pending}, nil
		},
	}

	svc := newTestLifecycle(store, nil)
	summary, err := svc.ProcessExpirations(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Suspended)
	require.Equal(t, license.StatusExpired, pending.Status)
	require.NotNil(t, pending.SuspendedAt)
}

func TestSendRenewalRemindersMarksSentSet(t *testing.T) {
	now := time.Now().UTC()
	lic := &license.License{
		ID:        "lic-1",
		Status:    license.StatusActive,
		ExpiresAt: timeptr(now.Add(5 * 24 * time.Hour)),
	}

	notifier := &recordingNotifier{}
	store := &mockStore{
		listExpiryFn: func(ctx context.Context) ([]*license.License, error) {
			return []*license.License{lic}, nil
		},
	}

	svc := newTestLifecycle(store, notifier)
	summary, err := svc.SendRenewalReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Sent)
	require.Equal(t, []license.ReminderType{license.Reminder7Days}, notifier.sent)
	require.True(t, lic.HasReminder(license.Reminder7Days))

	// second run: nothing owed
	summary, err = svc.SendRenewalReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, summary.Sent)
	require.Len(t, notifier.sent, 1)
}

func TestSendRenewalRemindersRetriesDeliveryFailures(t *testing.T) {
	now := time.Now().UTC()
	lic := &license.License{
		ID:        "lic-1",
		Status:    license.StatusActive,
		ExpiresAt: timeptr(now.Add(12 * time.Hour)),
	}

	notifier := &recordingNotifier{err: errors.New("smtp down")}
	store := &mockStore{
		listExpiryFn: func(ctx context.Context) ([]*license.License, error) {
			return []*license.License{lic}, nil
		},
	}

	svc := newTestLifecycle(store, notifier)
	summary, err := svc.SendRenewalReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.False(t, lic.HasReminder(license.Reminder1Day))

	// delivery recovers; reminder goes out on the next run
	notifier.err = nil
	summary, err = svc.SendRenewalReminders(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Sent)
	require.True(t, lic.HasReminder(license.Reminder1Day))
}

func TestExtendExpiryResetsReminderCycle(t *testing.T) {
	now := time.Now().UTC()
	lic := &license.License{
		ID:              "lic-1",
		Status:          license.StatusExpired,
		GracePeriodDays: 30,
		ExpiresAt:       timeptr(now.AddDate(0, 0, -5)),
	}
	lic.MarkReminderSent(license.Reminder7Days, now.AddDate(0, 0, -10))

	store := &mockStore{
		findByIDFn: func(ctx context.Context, id string) (*license.License, error) {
			return lic, nil
		},
	}

	svc := newTestLifecycle(store, nil)
	newExpiry := now.AddDate(0, 1, 0)
	got, err := svc.ExtendExpiry(context.Background(), "lic-1", newExpiry)
	require.NoError(t, err)

	require.Equal(t, license.StatusActive, got.Status)
	require.Equal(t, newExpiry, *got.ExpiresAt)
	require.Empty(t, got.RemindersSent())
	require.Nil(t, got.LastRenewalReminder)
	require.Equal(t, newExpiry.AddDate(0, 0, 30), *got.GracePeriodEnd)

	history := got.History()
	require.Len(t, history, 1)
	require.Equal(t, "renewed", history[0].Action)
}

func TestExtendExpiryRejectsEarlierDate(t *testing.T) {
	now := time.Now().UTC()
	lic := &license.License{
		ID:        "lic-1",
		Status:    license.StatusActive,
		ExpiresAt: timeptr(now.AddDate(0, 1, 0)),
	}

	store := &mockStore{
		findByIDFn: func(ctx context.Context, id string) (*license.License, error) {
			return lic, nil
		},
	}

	svc := newTestLifecycle(store, nil)
	_, err := svc.ExtendExpiry(context.Background(), "lic-1", now)
	require.Error(t, err)
}

func TestSuspendAndReactivateRoundTrip(t *testing.T) {
	lic := &license.License{ID: "lic-1", Status: license.StatusActive}
	store := &mockStore{
		findByIDFn: func(ctx context.Context, id string) (*license.License, error) {
			return lic, nil
		},
	}

	svc := newTestLifecycle(store, nil)

	suspended, err := svc.Suspend(context.Background(), "lic-1", "billing dispute")
	require.NoError(t, err)
	require.Equal(t, license.StatusExpired, suspended.Status)
	require.NotNil(t, suspended.SuspendedAt)
	require.Equal(t, "billing dispute", *suspended.SuspensionReason)

	reactivated, err := svc.Reactivate(context.Background(), "lic-1", "dispute resolved")
	require.NoError(t, err)
	require.Equal(t, license.StatusActive, reactivated.Status)
	require.Nil(t, reactivated.SuspendedAt)
	require.Nil(t, reactivated.SuspensionReason)
	require.NotNil(t, reactivated.ReactivatedAt)
}

func TestReactivateRequiresSuspension(t *testing.T) {
	lic := &license.License{ID: "lic-1", Status: license.StatusActive}
	store := &mockStore{
		findByIDFn: func(ctx context.Context, id string) (*license.License, error) {
			return lic, nil
		},
	}

	svc := newTestLifecycle(store, nil)
	_, err := svc.Reactivate(context.Background(), "lic-1", "oops")
	require.Error(t, err)
}

func TestOperationsRejectUnknownLicense(t *testing.T) {
	svc := newTestLifecycle(&mockStore{}, nil)

	_, err := svc.ExtendExpiry(context.Background(), "ghost", time.Now().AddDate(0, 1, 0))
	require.Error(t, err)

	_, err = svc.Suspend(context.Background(), "ghost", "reason")
	require.Error(t, err)

	_, err = svc.Reactivate(context.Background(), "ghost", "reason")
	require.Error(t, err)
}

package taskname

// Task type identifiers shared by enqueuers and handlers.
const (
	LicenseSync      = "license:sync"
	LicensePush      = "license:push"
	LifecycleSweep   = "license:lifecycle_sweep"
	RenewalReminders = "license:renewal_reminders"
)

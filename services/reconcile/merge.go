package reconcile

import (
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"licensehub-engine/services/extapi"
	"licensehub-engine/services/license"
)

// CreationDefaults fill the fields the remote system does not carry when a
// license is created from an external record.
type CreationDefaults struct {
	Product string
	Plan    string
	Term    string
}

// mapExternalStatus translates the remote status into an internal business
// status. Unknown values map to nil so the merge leaves the internal status
// alone while the raw value is still recorded on the sync envelope.
func mapExternalStatus(sv *extapi.StatusValue) *license.Status {
	if sv == nil {
		return nil
	}

	if sv.Active() {
		s := license.StatusActive
		return &s
	}

	switch strings.ToLower(strings.TrimSpace(sv.Raw)) {
	case "cancel", "canceled", "cancelled":
		s := license.StatusCancel
		return &s
	case "expired", "inactive", "0":
		s := license.StatusExpired
		return &s
	}

	if sv.Num != nil && *sv.Num == 0 {
		s := license.StatusExpired
		return &s
	}

	return nil
}

// ApplyExternal merges an external record into an existing license. Only
// fields the external record actually carries overwrite internal state;
// absent fields leave internal data untouched. The sync envelope is always
// refreshed. Returns true when any business field changed.
func ApplyExternal(lic *license.License, ext *extapi.ExternalLicense, now time.Time) bool {
	changed := false

	if ext.DBA != nil && lic.DBA != *ext.DBA {
		lic.DBA = *ext.DBA
		changed = true
	}

	if ext.SMSBalance != nil && lic.SMSBalance != *ext.SMSBalance {
		lic.SMSBalance = *ext.SMSBalance
		changed = true
	}

	if ext.Seats != nil && lic.SeatsTotal != *ext.Seats {
		lic.SeatsTotal = *ext.Seats
		changed = true
	}

	if ext.Notes != nil && lic.Notes != *ext.Notes {
		lic.Notes = *ext.Notes
		changed = true
	}

	if ext.Package != nil && *ext.Package != "" && lic.Plan != *ext.Package {
		lic.Plan = *ext.Package
		changed = true
	}

	if expiry, err := ext.Expiry(); err == nil && expiry != nil {
		if lic.ExpiresAt == nil || !lic.ExpiresAt.Equal(*expiry) {
			lic.ExpiresAt = expiry
			lic.RenewalDueDate = expiry
			lic.RecomputeGracePeriodEnd()
			changed = true
		}
	}

	if mapped := mapExternalStatus(ext.Status); mapped != nil && lic.Status != *mapped {
		lic.Status = *mapped
		if *mapped == license.StatusCancel && lic.CancelDate == nil {
			lic.CancelDate = &now
		}
		changed = true
	}

	refreshEnvelope(lic, ext, now)

	return changed
}

// refreshEnvelope records the external identity and sync bookkeeping without
// touching business fields. Identity fields only fill in when the external
// record carries them; an absent identifier never erases a known one.
func refreshEnvelope(lic *license.License, ext *extapi.ExternalLicense, now time.Time) {
	if ext.AppID != nil && *ext.AppID != "" {
		lic.ExternalAppID = ext.AppID
	}
	if ext.Email != nil && *ext.Email != "" {
		lic.ExternalEmail = ext.Email
	}
	if ext.CountID != nil {
		lic.ExternalCountID = ext.CountID
	}
	if ext.Status != nil {
		raw := ext.Status.Raw
		lic.ExternalStatus = &raw
	}

	lic.LastExternalSync = &now
	lic.ExternalSyncStatus = license.SyncSynced
	lic.ExternalSyncError = nil
}

// NewFromExternal builds a fresh internal license for an external record that
// matched nothing.
func NewFromExternal(node *snowflake.Node, defaults CreationDefaults, ext *extapi.ExternalLicense, now time.Time) *license.License {
	lic := &license.License{
		ID:         node.Generate().String(),
		LicenseKey: GenerateLicenseKey(ext, now),
		Product:    defaults.Product,
		Plan:       defaults.Plan,
		Term:       defaults.Term,
		Status:     license.StatusPending,
		StartsAt:   &now,
	}

	ApplyExternal(lic, ext, now)

	if lic.Status == license.StatusPending {
		// Remote records without a recognisable status still represent
		// provisioned customers.
		lic.Status = license.StatusActive
	}

	lic.AppendHistory("imported", now, map[string]string{
		"identity": ext.Identity(),
	})

	zap.L().Info("created license from external record",
		zap.String("license_id", lic.ID),
		zap.String("identity", ext.Identity()),
	)

	return lic
}

// GenerateLicenseKey derives a key for an imported license. Preference order
// follows identifier reliability: appid, then countid, then a timestamp. The
// random suffix keeps keys unique even when identifiers repeat; a residual
// collision surfaces as a unique-index violation and the caller retries with
// a fresh suffix.
func GenerateLicenseKey(ext *extapi.ExternalLicense, now time.Time) string {
	var identifier string
	switch {
	case ext.AppID != nil && *ext.AppID != "":
		identifier = *ext.AppID
	case ext.CountID != nil:
		identifier = fmt.Sprintf("C%d", *ext.CountID)
	default:
		identifier = now.UTC().Format("20060102150405")
	}

	suffix := strings.ToUpper(uuid.NewString()[:8])

	return fmt.Sprintf("EXT-%s-%s", identifier, suffix)
}

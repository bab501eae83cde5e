package rediskey

import "fmt"

// License keys (global convention across the engine)
const (
	LicensePrefix      = "license"
	LicenseKeyPrefix   = "license:key"
	LicenseAppIDPrefix = "license:appid"
)

func NamespaceKey(namespace, key string) string {
	return fmt.Sprintf("%s:%s", namespace, key)
}

// BuildLicenseIDKey returns "license:{licenseID}"
func BuildLicenseIDKey(licenseID string) string {
	return NamespaceKey(LicensePrefix, licenseID)
}

// BuildLicenseKeyKey returns "license:key:{licenseKey}"
func BuildLicenseKeyKey(licenseKey string) string {
	return NamespaceKey(LicenseKeyPrefix, licenseKey)
}

// BuildLicenseAppIDKey returns "license:appid:{appID}"
func BuildLicenseAppIDKey(appID string) string {
	return NamespaceKey(LicenseAppIDPrefix, appID)
}

// LicensePattern matches every cached license entry, for bulk invalidation
// after a reconciliation run.
func LicensePattern() string {
	return LicensePrefix + ":*"
}

package config

import (
	"os"
	"strings"
)

// OverrideContactInfo makes imported email/phone values replace a person's
// existing primary contact info instead of being appended as secondary entries.
//
// Set via env:
// - IMPORT_OVERRIDE_CONTACT_INFO=true
func OverrideContactInfo() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("IMPORT_OVERRIDE_CONTACT_INFO")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// ResidentImportEnabledFor gates the import pipeline per provider while
// connections are migrated one at a time.
//
// Set via env:
// - RESIDENT_IMPORT_PROVIDERS="YARDI,MRI"
//
// Provider keys are case-insensitive.
func ResidentImportEnabledFor(provider string) bool {
	provider = strings.ToUpper(strings.TrimSpace(provider))
	if provider == "" {
		return false
	}
	raw := os.Getenv("RESIDENT_IMPORT_PROVIDERS")
	if strings.TrimSpace(raw) == "" {
		return true
	}
	for _, part := range strings.Split(raw, ",") {
		if strings.ToUpper(strings.TrimSpace(part)) == provider {
			return true
		}
	}
	return false
}

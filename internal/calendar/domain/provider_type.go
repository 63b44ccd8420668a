package domain

import "fmt"

// ProviderType identifies the calendar service behind a connection.
type ProviderType string

const (
	// ProviderGoogle is Google Calendar (OAuth2 + Calendar API v3).
	ProviderGoogle ProviderType = "google"
	// ProviderMicrosoft is Outlook/365 (OAuth2 + Microsoft Graph).
	ProviderMicrosoft ProviderType = "microsoft"
	// ProviderApple is iCloud Calendar (CalDAV with an app-specific password).
	ProviderApple ProviderType = "apple"
	// ProviderCalDAV is any other CalDAV server (Fastmail, Nextcloud, ...).
	ProviderCalDAV ProviderType = "caldav"
)

func (p ProviderType) String() string {
	return string(p)
}

// IsValid reports whether p is a supported provider.
func (p ProviderType) IsValid() bool {
	switch p {
	case ProviderGoogle, ProviderMicrosoft, ProviderApple, ProviderCalDAV:
		return true
	default:
		return false
	}
}

// RequiresOAuth reports whether the provider authenticates with OAuth2 tokens.
func (p ProviderType) RequiresOAuth() bool {
	return p == ProviderGoogle || p == ProviderMicrosoft
}

// RequiresCalDAV reports whether the provider speaks CalDAV.
func (p ProviderType) RequiresCalDAV() bool {
	return p == ProviderApple || p == ProviderCalDAV
}

// DisplayName returns a human-readable name for the provider.
func (p ProviderType) DisplayName() string {
	switch p {
	case ProviderGoogle:
		return "Google Calendar"
	case ProviderMicrosoft:
		return "Microsoft Outlook"
	case ProviderApple:
		return "Apple Calendar"
	case ProviderCalDAV:
		return "CalDAV"
	default:
		return string(p)
	}
}

// ParseProviderType validates a provider name from configuration or input.
func ParseProviderType(s string) (ProviderType, error) {
	p := ProviderType(s)
	if !p.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidProvider, s)
	}
	return p, nil
}

// AllProviderTypes returns every supported provider.
func AllProviderTypes() []ProviderType {
	return []ProviderType{ProviderGoogle, ProviderMicrosoft, ProviderApple, ProviderCalDAV}
}

package application

import (
	"strings"
	"time"
)

// SiteSettings resolves the site-wide values the engine evaluates against.
type SiteSettings interface {
	Location() *time.Location
	Currency() string
}

// StaticSettings is a SiteSettings with fixed values.
type StaticSettings struct {
	location *time.Location
	currency string
}

// NewStaticSettings returns settings for loc (UTC when nil) and currency.
func NewStaticSettings(loc *time.Location, currency string) StaticSettings {
	if loc == nil {
		loc = time.UTC
	}
	return StaticSettings{location: loc, currency: strings.ToUpper(strings.TrimSpace(currency))}
}

// Location returns the site timezone.
func (s StaticSettings) Location() *time.Location {
	if s.location == nil {
		return time.UTC
	}
	return s.location
}

// Currency returns the default ISO currency code.
func (s StaticSettings) Currency() string {
	return s.currency
}

func settingsOrDefault(settings SiteSettings) SiteSettings {
	if settings == nil {
		return NewStaticSettings(time.UTC, "")
	}
	return settings
}

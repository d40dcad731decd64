package analytics

import (
	"strings"
	"sync"

	"github.com/pariz/gountries"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/language/display"

	"pulse/internal/events"
	"pulse/internal/pkg/referrers"
)

var (
	countryQuery     *gountries.Query
	countryQueryOnce sync.Once
)

func countries() *gountries.Query {
	countryQueryOnce.Do(func() {
		countryQuery = gountries.New()
	})
	return countryQuery
}

// Label returns the display name of a breakdown value.
func Label(d events.Dimension, value string) string {
	if value == events.UnknownValue {
		return "Unknown"
	}

	switch d {
	case events.DimensionCountry:
		country, err := countries().FindCountryByAlpha(value)
		if err != nil {
			return cases.Upper(language.AmericanEnglish).String(value)
		}
		return country.Name.Common
	case events.DimensionReferer:
		return referrers.Label(value)
	case events.DimensionDevice:
		return cases.Title(language.AmericanEnglish).String(value)
	case events.DimensionOS:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "ios", "iphone os":
			return "iOS"
		case "ipados":
			return "iPadOS"
		case "macos", "mac os", "mac os x", "mac", "darwin":
			return "macOS"
		}
		return value
	case events.DimensionLanguage:
		tag, err := language.Parse(value)
		if err != nil {
			return value
		}
		if name := display.English.Tags().Name(tag); name != "" {
			return name
		}
		return value
	default:
		return value
	}
}

package events

import (
	"net/url"
	"strings"
)

// Dimension names a categorical attribute of a page view that is counted in
// archive buckets and breakdowns.
type Dimension string

const (
	DimensionReferer  Dimension = "referer"
	DimensionCountry  Dimension = "country"
	DimensionRegion   Dimension = "region"
	DimensionCity     Dimension = "city"
	DimensionDevice   Dimension = "device"
	DimensionBrowser  Dimension = "browser"
	DimensionOS       Dimension = "os"
	DimensionScreen   Dimension = "screen"
	DimensionLanguage Dimension = "language"
	DimensionTimezone Dimension = "timezone"
)

// Dimensions lists every counted dimension in display order.
var Dimensions = []Dimension{
	DimensionReferer,
	DimensionCountry,
	DimensionRegion,
	DimensionCity,
	DimensionDevice,
	DimensionBrowser,
	DimensionOS,
	DimensionScreen,
	DimensionLanguage,
	DimensionTimezone,
}

// Value returns the raw value of the dimension for pv.
func (d Dimension) Value(pv *PageView) string {
	switch d {
	case DimensionReferer:
		return pv.RefererValue()
	case DimensionCountry:
		return pv.Country
	case DimensionRegion:
		return pv.Region
	case DimensionCity:
		return pv.City
	case DimensionDevice:
		return pv.DeviceType
	case DimensionBrowser:
		return pv.Browser
	case DimensionOS:
		return pv.OS
	case DimensionScreen:
		return pv.ScreenSize
	case DimensionLanguage:
		return pv.Language
	case DimensionTimezone:
		return pv.Timezone
	default:
		return ""
	}
}

// CountKey returns the key under which pv is counted for this dimension.
// Referers without a value are not counted (ok is false); every other
// dimension buckets empty values as UnknownValue.
func (d Dimension) CountKey(pv *PageView) (key string, ok bool) {
	value := strings.TrimSpace(d.Value(pv))
	if d == DimensionReferer {
		if value == "" || value == UnknownValue {
			return "", false
		}
		return value, true
	}
	if value == "" {
		return UnknownValue, true
	}
	return value, true
}

// NormalizePath reduces a tracked location to its URL path. Full URLs are
// accepted; an empty result means there is no usable path.
func NormalizePath(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return ""
		}
		raw = u.Path
		if raw == "" {
			raw = "/"
		}
	} else if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}

	if raw == "" {
		return ""
	}
	if !strings.HasPrefix(raw, "/") {
		raw = "/" + raw
	}
	return raw
}

// PostSlug extracts the slug of a "/posts/{slug}" path.
func PostSlug(path string) *string {
	rest, found := strings.CutPrefix(path, "/posts/")
	if !found {
		return nil
	}
	slug := strings.Trim(rest, "/")
	if slug == "" || strings.Contains(slug, "/") {
		return nil
	}
	return &slug
}

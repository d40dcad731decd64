package analytics_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pulse/internal/analytics"
	"pulse/internal/archive"
	"pulse/internal/events"
	"pulse/internal/testsupport"
)

func TestLabel(t *testing.T) {
	testCases := []struct {
		dimension events.Dimension
		value     string
		expected  string
	}{
		{events.DimensionCountry, "US", "United States"},
		{events.DimensionCountry, "XX", "XX"},
		{events.DimensionCountry, events.UnknownValue, "Unknown"},
		{events.DimensionReferer, "https://news.ycombinator.com", "Hacker News"},
		{events.DimensionDevice, "mobile", "Mobile"},
		{events.DimensionOS, "Mac", "macOS"},
		{events.DimensionOS, "iOS", "iOS"},
		{events.DimensionOS, "Windows", "Windows"},
		{events.DimensionLanguage, "en-US", "American English"},
		{events.DimensionLanguage, "not a tag!", "not a tag!"},
		{events.DimensionCity, "Berlin", "Berlin"},
	}

	for _, tc := range testCases {
		t.Run(string(tc.dimension)+"/"+tc.value, func(t *testing.T) {
			assert.Equal(t, tc.expected, analytics.Label(tc.dimension, tc.value))
		})
	}
}

func TestBreakdownsMergeArchivedCounts(t *testing.T) {
	precise := testsupport.NewPageView("/", "v1", fixedNow)
	precise.City = ""

	bucket := archive.Bucket{Path: "/", Date: "2024-03-01"}
	bucket.SetCounts(events.DimensionCity, events.Counts{"Paris": 1, events.UnknownValue: 2})

	breakdowns := analytics.Breakdowns([]events.PageView{precise}, []archive.Bucket{bucket})

	assert.Equal(t, []analytics.BreakdownItem{
		{Value: events.UnknownValue, Label: "Unknown", Count: 3, Percentage: 75},
		{Value: "Paris", Label: "Paris", Count: 1, Percentage: 25},
	}, breakdowns[events.DimensionCity])
	assert.Empty(t, breakdowns[events.DimensionReferer])
	assert.Len(t, breakdowns, len(events.Dimensions))
}

package events_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/events"
)

func TestDimensionCountKey(t *testing.T) {
	referer := "https://google.com"
	pv := &events.PageView{
		Referer:    &referer,
		Country:    "DE",
		DeviceType: "mobile",
		Browser:    "Firefox",
	}

	testCases := []struct {
		dimension events.Dimension
		key       string
		ok        bool
	}{
		{events.DimensionReferer, "https://google.com", true},
		{events.DimensionCountry, "DE", true},
		{events.DimensionRegion, events.UnknownValue, true},
		{events.DimensionDevice, "mobile", true},
		{events.DimensionBrowser, "Firefox", true},
		{events.DimensionOS, events.UnknownValue, true},
		{events.DimensionTimezone, events.UnknownValue, true},
	}

	for _, tc := range testCases {
		t.Run(string(tc.dimension), func(t *testing.T) {
			key, ok := tc.dimension.CountKey(pv)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.key, key)
		})
	}

	t.Run("missing referer is not counted", func(t *testing.T) {
		_, ok := events.DimensionReferer.CountKey(&events.PageView{})
		assert.False(t, ok)

		unknown := events.UnknownValue
		_, ok = events.DimensionReferer.CountKey(&events.PageView{Referer: &unknown})
		assert.False(t, ok)
	})
}

func TestDimensionsAreComplete(t *testing.T) {
	assert.Len(t, events.Dimensions, 10)

	seen := map[events.Dimension]bool{}
	for _, d := range events.Dimensions {
		assert.False(t, seen[d], "duplicate dimension %s", d)
		seen[d] = true
	}
}

func TestNormalizePath(t *testing.T) {
	testCases := []struct {
		raw      string
		expected string
	}{
		{"/posts/hello", "/posts/hello"},
		{"https://blog.test/posts/hello?utm_source=x", "/posts/hello"},
		{"https://blog.test", "/"},
		{"/about?ref=nav#team", "/about"},
		{"about", "/about"},
		{"  ", ""},
		{"?x=1", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.raw, func(t *testing.T) {
			assert.Equal(t, tc.expected, events.NormalizePath(tc.raw))
		})
	}
}

func TestPostSlug(t *testing.T) {
	slug := events.PostSlug("/posts/hello-world")
	require.NotNil(t, slug)
	assert.Equal(t, "hello-world", *slug)

	slug = events.PostSlug("/posts/hello-world/")
	require.NotNil(t, slug)
	assert.Equal(t, "hello-world", *slug)

	assert.Nil(t, events.PostSlug("/posts/"))
	assert.Nil(t, events.PostSlug("/posts/a/b"))
	assert.Nil(t, events.PostSlug("/about"))
}

func TestComputeHashIsStable(t *testing.T) {
	ts := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	a := events.PageView{VisitorID: "v1", Path: "/", Timestamp: ts, IPAddress: "1.2.3.4", UserAgent: "ua"}
	b := a
	a.ComputeHash()
	b.ComputeHash()

	assert.NotEmpty(t, a.EventHash)
	assert.LessOrEqual(t, len(a.EventHash), 16)
	assert.Equal(t, a.EventHash, b.EventHash)

	c := a
	c.Path = "/other"
	c.ComputeHash()
	assert.NotEqual(t, a.EventHash, c.EventHash)
}

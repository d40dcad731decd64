package events_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pulse/internal/events"
)

func TestNormalizeReferer(t *testing.T) {
	testCases := []struct {
		name        string
		raw         string
		requestHost string
		expected    *string
	}{
		{"localhost with port", "http://localhost:3000/x", "example.com", nil},
		{"external with query", "https://example.com/p?q=1", "blog.test", ptr("https://example.com")},
		{"same host as request", "https://blog.test/about", "blog.test", nil},
		{"same host with port on request", "https://blog.test/about", "blog.test:8080", nil},
		{"same host different case", "https://Blog.Test/about", "blog.test", nil},
		{"malformed", "://nope", "blog.test", nil},
		{"no scheme", "not a url", "blog.test", nil},
		{"empty", "", "blog.test", nil},
		{"loopback ip", "http://127.0.0.1:8080/", "blog.test", nil},
		{"private ip", "http://192.168.1.20/admin", "blog.test", nil},
		{"ipv6 loopback", "http://[::1]:3000/", "blog.test", nil},
		{"link local", "http://169.254.10.1/", "blog.test", nil},
		{"mdns host", "http://printer.local/", "blog.test", nil},
		{"dev subdomain of localhost", "http://app.localhost/", "blog.test", nil},
		{"keeps port of external origin", "https://news.ycombinator.com:443/item?id=1", "blog.test", ptr("https://news.ycombinator.com:443")},
		{"public ip", "http://8.8.8.8/search", "blog.test", ptr("http://8.8.8.8")},
		{"subdomain is not self", "https://www.blog.test/", "blog.test", ptr("https://www.blog.test")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := events.NormalizeReferer(tc.raw, tc.requestHost)
			if tc.expected == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.expected, *got)
		})
	}
}

func TestRefererOrigin(t *testing.T) {
	assert.Equal(t, "https://google.com", events.RefererOrigin("https://google.com/search?q=pulse"))
	assert.Equal(t, "http://localhost:3000", events.RefererOrigin("http://localhost:3000/x"))
	assert.Equal(t, "", events.RefererOrigin("direct"))
	assert.Equal(t, "", events.RefererOrigin(""))
}

func TestIsSelfReferral(t *testing.T) {
	assert.True(t, events.IsSelfReferral("example.com", "example.com"))
	assert.True(t, events.IsSelfReferral("Example.com", "example.COM"))
	assert.False(t, events.IsSelfReferral("www.example.com", "example.com"))
	assert.False(t, events.IsSelfReferral("", "example.com"))
	assert.False(t, events.IsSelfReferral("example.com", ""))
}

func ptr(s string) *string {
	return &s
}

package geoip_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"pulse/internal/pkg/geoip"
	"pulse/internal/testsupport"
)

func TestResolverWithoutDatabase(t *testing.T) {
	testCases := []struct {
		name string
		path string
	}{
		{"not configured", ""},
		{"missing file", filepath.Join(t.TempDir(), "GeoLite2-City.mmdb")},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := geoip.Open(tc.path, testsupport.GetLogger())
			defer r.Close()

			assert.False(t, r.Enabled())
			assert.Equal(t, geoip.Location{}, r.Lookup("8.8.8.8"))
		})
	}
}

func TestLookupIgnoresLocalAddresses(t *testing.T) {
	r := geoip.Open("", testsupport.GetLogger())

	for _, ip := range []string{"127.0.0.1", "10.0.0.8", "::1", "not-an-ip", ""} {
		assert.Equal(t, geoip.Location{}, r.Lookup(ip), ip)
	}
}

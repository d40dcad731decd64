package geoip

import (
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Location is the result of an IP lookup. Empty fields mean unknown.
type Location struct {
	Country string
	Region  string
	City    string
}

// Resolver looks up IP addresses in a MaxMind GeoLite2 database. A resolver
// without a database resolves every address to an empty Location.
type Resolver struct {
	path   string
	logger *slog.Logger

	mu     sync.RWMutex
	reader *geoip2.Reader
	// cityLevel is false for Country databases, which only answer Country().
	cityLevel bool
}

// Open loads the database at path. GeoIP is optional: a missing or unreadable
// file yields a working resolver that returns empty locations.
func Open(path string, logger *slog.Logger) *Resolver {
	r := &Resolver{path: path, logger: logger}
	r.load()
	return r
}

func (r *Resolver) load() {
	if r.path == "" {
		r.logger.Debug("GeoIP database path not configured - GeoIP features disabled")
		return
	}

	fileInfo, err := os.Stat(r.path)
	if os.IsNotExist(err) {
		r.logger.Info("GeoLite2 database not found - GeoIP features disabled",
			slog.String("path", r.path),
			slog.String("hint", "Download from https://www.maxmind.com/en/geolite2/signup"))
		return
	} else if err != nil {
		r.logger.Warn("Error checking GeoLite2 database file",
			slog.String("path", r.path),
			slog.Any("error", err))
		return
	}

	reader, err := geoip2.Open(r.path)
	if err != nil {
		r.logger.Error("Failed to open GeoLite2 database",
			slog.String("path", r.path),
			slog.Any("error", err))
		return
	}

	// Probe with a public address to learn whether the database has city data.
	cityLevel := true
	if _, err := reader.City(net.ParseIP("8.8.8.8")); err != nil {
		var invalidMethod geoip2.InvalidMethodError
		if errors.As(err, &invalidMethod) {
			cityLevel = false
		}
	}

	r.mu.Lock()
	if r.reader != nil {
		r.reader.Close()
	}
	r.reader = reader
	r.cityLevel = cityLevel
	r.mu.Unlock()

	r.logger.Info("GeoLite2 database initialized successfully",
		slog.String("path", r.path),
		slog.Int64("size_bytes", fileInfo.Size()),
		slog.Bool("city_level", cityLevel))
}

// Enabled reports whether a database is loaded.
func (r *Resolver) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.reader != nil
}

// Lookup resolves ip. Unknown, private or malformed addresses give an empty Location.
func (r *Resolver) Lookup(ip string) Location {
	parsed := net.ParseIP(ip)
	if parsed == nil || parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() {
		return Location{}
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.reader == nil {
		return Location{}
	}

	if !r.cityLevel {
		record, err := r.reader.Country(parsed)
		if err != nil {
			r.logger.Debug("GeoIP country lookup failed", slog.String("ip", ip), slog.Any("error", err))
			return Location{}
		}
		return Location{Country: record.Country.IsoCode}
	}

	record, err := r.reader.City(parsed)
	if err != nil {
		r.logger.Debug("GeoIP city lookup failed", slog.String("ip", ip), slog.Any("error", err))
		return Location{}
	}

	loc := Location{
		Country: record.Country.IsoCode,
		City:    record.City.Names["en"],
	}
	if len(record.Subdivisions) > 0 {
		loc.Region = record.Subdivisions[0].Names["en"]
		if loc.Region == "" {
			loc.Region = record.Subdivisions[0].IsoCode
		}
	}
	return loc
}

// Reload reopens the database from disk, e.g. after a GeoLite2 update.
func (r *Resolver) Reload() {
	r.load()
}

func (r *Resolver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.reader == nil {
		return nil
	}
	err := r.reader.Close()
	r.reader = nil
	return err
}

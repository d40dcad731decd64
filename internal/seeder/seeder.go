// Package seeder generates synthetic traffic for local development.
package seeder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"pulse/internal/flush"
	"pulse/internal/ingest"
)

// Collector accepts page views, normally the Ingestor.
type Collector interface {
	Collect(ctx context.Context, input ingest.Input) ingest.Ack
}

// Flusher drains the queue after seeding.
type Flusher interface {
	Flush(ctx context.Context) flush.Result
}

type Options struct {
	// Views is the approximate number of page views to submit.
	Views int
	// Days spreads the views over the trailing window ending now.
	Days int
	Host string
	// Now and Rand are overridable for tests.
	Now  func() time.Time
	Rand *rand.Rand
}

// Summary reports what a seeding run produced.
type Summary struct {
	Sessions  int
	Submitted int
	Inserted  int64
}

// Seeder submits realistic visitor journeys through the regular ingestion path,
// so bot filtering and enrichment apply to seeded data too.
type Seeder struct {
	collector Collector
	flusher   Flusher
	logger    *slog.Logger
	opts      Options
}

func NewSeeder(collector Collector, flusher Flusher, logger *slog.Logger, opts Options) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Views < 1 {
		opts.Views = 1000
	}
	if opts.Days < 1 {
		opts.Days = 30
	}
	if opts.Host == "" {
		opts.Host = "example.com"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Seeder{collector: collector, flusher: flusher, logger: logger, opts: opts}
}

var journeyTemplates = [][]string{
	{"/", "/about", "/contact"},
	{"/", "/features", "/pricing", "/signup"},
	{"/", "/blog", "/posts/hello-world", "/signup"},
	{"/pricing", "/features", "/signup"},
	{"/", "/posts/release-notes", "/posts/hello-world"},
	{"/", "/docs", "/docs/getting-started", "/docs/api-reference"},
	{"/posts/hello-world"},
	{"/", "/signup"},
	{"/"},
	{"/posts/release-notes", "/about", "/pricing"},
}

var userAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Safari/605.1.15",
	"Mozilla/5.0 (iPhone; CPU iPhone OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36",
	"Mozilla/5.0 (X11; Ubuntu; Linux x86_64; rv:120.0) Gecko/20100101 Firefox/120.0",
	"Mozilla/5.0 (iPad; CPU OS 17_1 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.1 Mobile/15E148 Safari/604.1",
	"Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)",
}

var referers = []string{
	"",
	"",
	"https://www.google.com/",
	"https://duckduckgo.com/",
	"https://news.ycombinator.com/item?id=1",
	"https://www.reddit.com/r/golang/",
	"https://t.co/abc",
	"https://github.com/",
}

var languages = []string{"en-US", "en-GB", "de-DE", "fr-FR", "es-ES", "ja-JP"}

var screenSizes = []string{"1920x1080", "1440x900", "390x844", "412x915", "820x1180"}

var timezones = []string{"America/New_York", "Europe/London", "Europe/Berlin", "Asia/Tokyo", "UTC"}

// Run submits the journeys and flushes until the queue is empty.
func (s *Seeder) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	s.logger.Info("Starting seeding...",
		slog.Int("views", s.opts.Views),
		slog.Int("days", s.opts.Days),
		slog.String("host", s.opts.Host))

	var summary Summary
	now := s.opts.Now().UTC()
	window := time.Duration(s.opts.Days) * 24 * time.Hour
	ipPool := generateIPPool(s.opts.Rand, 100)

	for summary.Submitted < s.opts.Views {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		summary.Sessions++
		journey := pick(s.opts.Rand, journeyTemplates)
		visitorID := fmt.Sprintf("seed-%d", summary.Sessions)
		ip := pick(s.opts.Rand, ipPool)
		userAgent := pick(s.opts.Rand, userAgents)
		referer := pick(s.opts.Rand, referers)
		language := pick(s.opts.Rand, languages)
		screen := pick(s.opts.Rand, screenSizes)
		timezone := pick(s.opts.Rand, timezones)

		timestamp := now.Add(-time.Duration(s.opts.Rand.Int64N(int64(window))))
		for i, path := range journey {
			if i > 0 {
				timestamp = timestamp.Add(time.Duration(s.opts.Rand.IntN(110)+10) * time.Second)
				referer = ""
			}
			if timestamp.After(now) {
				break
			}

			s.collector.Collect(ctx, ingest.Input{
				Path:       path,
				Referer:    referer,
				VisitorID:  visitorID,
				ScreenSize: screen,
				Language:   language,
				Timezone:   timezone,
				IPAddress:  ip,
				UserAgent:  userAgent,
				Host:       s.opts.Host,
				Timestamp:  timestamp,
			})
			summary.Submitted++
		}
	}

	for {
		result := s.flusher.Flush(ctx)
		if result.Err != nil {
			return summary, fmt.Errorf("failed to flush seeded page views: %w", result.Err)
		}
		summary.Inserted += result.Inserted
		if result.Peeked == 0 {
			break
		}
	}

	s.logger.Info("Seeding completed successfully",
		slog.Int("sessions", summary.Sessions),
		slog.Int("submitted", summary.Submitted),
		slog.Int64("inserted", summary.Inserted),
		slog.Duration("elapsed", time.Since(start)))
	return summary, nil
}

func pick[T any](r *rand.Rand, values []T) T {
	return values[r.IntN(len(values))]
}

func generateIPPool(r *rand.Rand, count int) []string {
	seen := make(map[string]bool, count)
	ips := make([]string, 0, count)
	for len(ips) < count {
		ip := fmt.Sprintf("%d.%d.%d.%d", r.IntN(223)+1, r.IntN(256), r.IntN(256), r.IntN(254)+1)
		if !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}
	return ips
}

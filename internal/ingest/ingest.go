// Package ingest accepts tracked page views, enriches them and pushes them onto
// the write queue. Collect never reports failure to its caller.
package ingest

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/text/language"

	"pulse/internal/apperrors"
	"pulse/internal/events"
	"pulse/internal/pkg/geoip"
	"pulse/internal/pkg/user_agent"
	"pulse/internal/queue"
	"pulse/internal/telemetry"
	"pulse/internal/timeframe"
	"pulse/internal/visitors"
)

const (
	maxPathLength      = 2048
	maxUserAgentLength = 512
	maxFieldLength     = 64
)

// Drop reasons recorded on the dropped-events counter.
const (
	DropMissingPath = "missing_path"
	DropBot         = "bot"
	DropEncode      = "encode"
	DropPush        = "push"
)

// GeoResolver resolves an IP address to a location.
type GeoResolver interface {
	Lookup(ip string) geoip.Location
}

// UAParser parses a User-Agent header.
type UAParser interface {
	Parse(ua string) user_agent.UserAgent
}

// FlushTrigger starts a background flush without waiting for it.
type FlushTrigger interface {
	TriggerFlush()
}

// Input is one tracked page view. Path, Referer, VisitorID, ScreenSize,
// Language and Timezone come from the client; the rest is derived by the server.
type Input struct {
	Path       string
	Referer    string
	VisitorID  string
	ScreenSize string
	Language   string
	Timezone   string

	IPAddress string
	UserAgent string
	// Host is the host of the tracked site, used to drop internal referers.
	Host string
	// Timestamp defaults to now.
	Timestamp time.Time
}

// Ack is returned for every Collect call.
type Ack struct {
	Message string `json:"message"`
}

var okAck = Ack{Message: "ok"}

type Config struct {
	FlushThreshold  int
	PushMaxAttempts int
	PushRetryDelay  time.Duration
	// Secret keys the fallback visitor id.
	Secret string
}

type Ingestor struct {
	queue        queue.Queue
	geo          GeoResolver
	ua           UAParser
	trigger      FlushTrigger
	cfg          Config
	metrics      *telemetry.PipelineMetrics
	timeProvider timeframe.TimeProvider
	logger       *slog.Logger
}

type Option func(*Ingestor)

func WithMetrics(m *telemetry.PipelineMetrics) Option {
	return func(in *Ingestor) { in.metrics = m }
}

func WithTimeProvider(tp timeframe.TimeProvider) Option {
	return func(in *Ingestor) { in.timeProvider = tp }
}

func NewIngestor(q queue.Queue, geo GeoResolver, ua UAParser, trigger FlushTrigger, cfg Config, logger *slog.Logger, opts ...Option) *Ingestor {
	if cfg.PushMaxAttempts < 1 {
		cfg.PushMaxAttempts = 1
	}
	if cfg.FlushThreshold < 1 {
		cfg.FlushThreshold = 1
	}

	in := &Ingestor{
		queue:        q,
		geo:          geo,
		ua:           ua,
		trigger:      trigger,
		cfg:          cfg,
		timeProvider: &timeframe.DefaultTimeProvider{},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Collect validates and enriches input, then queues it. It always acknowledges.
func (in *Ingestor) Collect(ctx context.Context, input Input) (ack Ack) {
	defer func() {
		if r := recover(); r != nil {
			in.logger.Error("Panic recovered while collecting page view", slog.Any("panic", r))
			ack = okAck
		}
	}()

	pv, reason := in.build(input)
	if reason != "" {
		in.logger.Debug("Dropping page view",
			slog.String("reason", reason),
			slog.String("path", input.Path))
		in.metrics.Dropped(ctx, reason, 1)
		return okAck
	}

	payload, err := json.Marshal(pv)
	if err != nil {
		in.logger.Error("Failed to encode page view", slog.Any("error", err))
		in.metrics.Dropped(ctx, DropEncode, 1)
		return okAck
	}

	if err := in.pushWithRetry(ctx, payload); err != nil {
		in.logger.Error("Failed to queue page view",
			slog.Any("error", err),
			slog.String("path", pv.Path),
			slog.Int("attempts", in.cfg.PushMaxAttempts))
		in.metrics.PushFailed(ctx)
		in.metrics.Dropped(ctx, DropPush, 1)
		return okAck
	}
	in.metrics.Ingested(ctx)

	in.maybeTriggerFlush(ctx)
	return okAck
}

// build turns input into a page view, or returns the reason it was dropped.
func (in *Ingestor) build(input Input) (*events.PageView, string) {
	path := events.NormalizePath(input.Path)
	if path == "" {
		return nil, DropMissingPath
	}

	userAgent := truncate(strings.TrimSpace(input.UserAgent), maxUserAgentLength)
	ua := in.ua.Parse(userAgent)
	if ua.Bot {
		return nil, DropBot
	}

	timestamp := input.Timestamp
	if timestamp.IsZero() {
		timestamp = in.timeProvider.Now(time.UTC)
	}
	timestamp = timestamp.UTC()

	ip := strings.TrimSpace(input.IPAddress)
	visitorID := truncate(strings.TrimSpace(input.VisitorID), maxFieldLength)
	if visitorID == "" {
		visitorID = visitors.FallbackID(timestamp, input.Host, ip, userAgent, in.cfg.Secret)
	}

	location := in.geo.Lookup(ip)

	pv := &events.PageView{
		Path:           truncate(path, maxPathLength),
		Timestamp:      timestamp,
		VisitorID:      visitorID,
		IPAddress:      ip,
		UserAgent:      userAgent,
		Referer:        events.NormalizeReferer(input.Referer, input.Host),
		Country:        location.Country,
		Region:         location.Region,
		City:           location.City,
		Browser:        ua.Browser,
		BrowserVersion: ua.BrowserVersion,
		OS:             ua.OS,
		OSVersion:      ua.OSVersion,
		DeviceType:     DeviceType(ua),
		ScreenSize:     truncate(strings.TrimSpace(input.ScreenSize), maxFieldLength),
		Language:       CanonicalLanguage(input.Language),
		Timezone:       truncate(strings.TrimSpace(input.Timezone), maxFieldLength),
	}
	pv.ComputeHash()
	return pv, ""
}

// DeviceType uses the parser's explicit device type, else "mobile" when a
// vendor or model was recognised, else "desktop".
func DeviceType(ua user_agent.UserAgent) string {
	if ua.DeviceType != "" {
		return ua.DeviceType
	}
	if ua.Vendor != "" || ua.Model != "" {
		return user_agent.DeviceMobile
	}
	return user_agent.DeviceDesktop
}

// CanonicalLanguage formats a language tag in canonical BCP 47 form.
// Unparseable tags are kept as sent.
func CanonicalLanguage(raw string) string {
	raw = truncate(strings.TrimSpace(raw), maxFieldLength)
	if raw == "" {
		return ""
	}
	tag, err := language.Parse(raw)
	if err != nil {
		return raw
	}
	return tag.String()
}

func (in *Ingestor) pushWithRetry(ctx context.Context, payload []byte) error {
	var err error
	for attempt := 1; attempt <= in.cfg.PushMaxAttempts; attempt++ {
		err = in.queue.Push(ctx, payload)
		if err == nil {
			return nil
		}
		if !apperrors.IsTransient(err) || attempt == in.cfg.PushMaxAttempts {
			return err
		}

		in.metrics.PushRetried(ctx)
		in.logger.Warn("Queue push failed, retrying",
			slog.Any("error", err),
			slog.Int("attempt", attempt))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(in.cfg.PushRetryDelay):
		}
	}
	return err
}

func (in *Ingestor) maybeTriggerFlush(ctx context.Context) {
	if in.trigger == nil {
		return
	}
	n, err := in.queue.Len(ctx)
	if err != nil {
		in.logger.Warn("Failed to read queue length", slog.Any("error", err))
		return
	}
	if n >= in.cfg.FlushThreshold {
		in.trigger.TriggerFlush()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "")
}

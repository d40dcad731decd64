// Package v1 serves the public tracking endpoints and the analytics query API.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"

	"pulse/internal/analytics"
	"pulse/internal/apperrors"
	"pulse/internal/ingest"
)

// Collector accepts tracked page views.
type Collector interface {
	Collect(ctx context.Context, input ingest.Input) ingest.Ack
}

// Analytics answers dashboard queries.
type Analytics interface {
	GetAnalyticsStats(ctx context.Context, params analytics.StatsParams) (*analytics.Stats, error)
	GetPageViews(ctx context.Context, params analytics.PageViewsParams) (*analytics.PageViews, error)
	GetRealTimeStats(ctx context.Context, params analytics.RealTimeParams) (*analytics.RealTimeStats, error)
}

type Handlers struct {
	collector Collector
	analytics Analytics
}

func NewHandlers(collector Collector, queries Analytics) *Handlers {
	return &Handlers{collector: collector, analytics: queries}
}

// TrackParams is the body sent by the tracking script.
type TrackParams struct {
	Path       string `json:"path"`
	Referer    string `json:"referer"`
	VisitorID  string `json:"visitorId"`
	ScreenSize string `json:"screenSize"`
	Language   string `json:"language"`
	Timezone   string `json:"timezone"`
}

// TrackAction handles JSON page view posts.
func (h *Handlers) TrackAction(ctx *cartridge.Context) error {
	return h.collect(ctx)
}

// TrackBeaconAction handles navigator.sendBeacon posts, which arrive as text/plain.
func (h *Handlers) TrackBeaconAction(ctx *cartridge.Context) error {
	return h.collect(ctx)
}

// collect always acknowledges; malformed bodies are dropped by the ingestor.
func (h *Handlers) collect(ctx *cartridge.Context) error {
	var params TrackParams
	if err := json.Unmarshal(ctx.Body(), &params); err != nil {
		ctx.Logger.Debug("Failed to parse track request", slog.Any("error", err))
	}

	userAgent := ctx.Get(fiber.HeaderUserAgent)
	if forwardedUA := ctx.Get("X-Forwarded-User-Agent"); forwardedUA != "" {
		userAgent = forwardedUA
	}

	ack := h.collector.Collect(ctx.UserContext(), ingest.Input{
		Path:       params.Path,
		Referer:    params.Referer,
		VisitorID:  params.VisitorID,
		ScreenSize: params.ScreenSize,
		Language:   params.Language,
		Timezone:   params.Timezone,
		IPAddress:  clientIP(ctx.Ctx),
		UserAgent:  userAgent,
		Host:       siteHost(ctx.Ctx),
	})

	return ctx.Status(http.StatusAccepted).JSON(ack)
}

// siteHost is the host of the page that sent the event.
func siteHost(c *fiber.Ctx) string {
	for _, header := range []string{fiber.HeaderOrigin, fiber.HeaderReferer} {
		if value := c.Get(header); value != "" {
			if u, err := url.Parse(value); err == nil && u.Host != "" {
				return u.Host
			}
		}
	}
	return c.Hostname()
}

// writeError maps the error taxonomy to a JSON response.
func writeError(ctx *cartridge.Context, err error) error {
	var validationErr *apperrors.ValidationError
	if errors.As(err, &validationErr) {
		return ctx.Status(http.StatusBadRequest).JSON(fiber.Map{
			"error": validationErr.Error(),
			"code":  "VALIDATION_ERROR",
			"field": validationErr.Field,
		})
	}

	status := apperrors.HTTPStatus(err)
	ctx.Logger.Error("Analytics query failed",
		slog.String("path", ctx.Path()),
		slog.Int("status", status),
		slog.Any("error", err))

	if status == http.StatusServiceUnavailable {
		return ctx.Status(status).JSON(fiber.Map{
			"error": "Analytics store temporarily unavailable",
			"code":  "STORE_UNAVAILABLE",
		})
	}
	return ctx.Status(http.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
		"code":  "INTERNAL_ERROR",
	})
}

package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/karloscodes/cartridge"
	cartridgemiddleware "github.com/karloscodes/cartridge/middleware"

	v1 "pulse/api/v1"
	"pulse/internal/http"
)

// publicCORSConfig is shared by every endpoint the tracking script calls.
var publicCORSConfig = &cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// MountRoutes returns the route mount func for the server.
func MountRoutes(p *Pipeline) func(*cartridge.Server) {
	return func(srv *cartridge.Server) {
		MountRoutesWith(srv, v1.NewHandlers(p.Ingestor, p.Analytics), p.Queue, p.Config.IsProduction())
	}
}

// MountRoutesWith mounts the pulse routes on top of arbitrary handlers.
// Rate limiting applies only when production is true; in development and test
// it would interfere with load and integration testing.
func MountRoutesWith(srv *cartridge.Server, handlers *v1.Handlers, queue http.QueueDepth, production bool) {
	conditionalRateLimiter := func(limiter fiber.Handler) fiber.Handler {
		return func(c *fiber.Ctx) error {
			if production {
				return limiter(c)
			}
			return c.Next()
		}
	}

	// 70/min per IP covers a busy reader navigating a site.
	publicRateLimiter := conditionalRateLimiter(cartridgemiddleware.RateLimiter(
		cartridgemiddleware.WithMax(70),
		cartridgemiddleware.WithDuration(time.Minute),
	))

	publicAPIConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	sdkConfig := &cartridge.RouteConfig{
		EnableCORS:       true,
		CustomMiddleware: []fiber.Handler{publicRateLimiter},
		CORSConfig:       publicCORSConfig,
	}

	noContent := func(ctx *cartridge.Context) error {
		return ctx.SendStatus(fiber.StatusNoContent)
	}

	srv.Get("/_health", http.HealthIndexAction(queue))
	srv.Head("/_health", http.HealthIndexAction(queue))

	// === TRACKING ===
	srv.Post("/api/v1/track", handlers.TrackAction, publicAPIConfig)
	srv.Options("/api/v1/track", noContent, publicAPIConfig)
	srv.Post("/api/v1/track/beacon", handlers.TrackBeaconAction, publicAPIConfig)
	srv.Options("/api/v1/track/beacon", noContent, publicAPIConfig)

	srv.Get("/api/v1/sdk.js", v1.GetSDKAction, sdkConfig)

	// === ANALYTICS ===
	srv.Get("/api/v1/analytics/stats", handlers.StatsAction)
	srv.Get("/api/v1/analytics/pageviews", handlers.PageViewsAction)
	srv.Get("/api/v1/analytics/realtime", handlers.RealTimeAction)
}

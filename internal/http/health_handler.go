package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karloscodes/cartridge"
)

var errDatabaseUnavailable = errors.New("database connection unavailable")

// QueueDepth reports how many page views wait to be flushed.
type QueueDepth interface {
	Len(ctx context.Context) (int, error)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	DBStatus    string    `json:"db_status"`
	QueueStatus string    `json:"queue_status"`
	QueueDepth  int       `json:"queue_depth"`
}

// HealthIndexAction returns the health check handler. A failing database or
// queue reports "degraded" with 503 so load balancers stop routing here.
func HealthIndexAction(queue QueueDepth) func(ctx *cartridge.Context) error {
	return func(ctx *cartridge.Context) error {
		health := HealthStatus{
			Status:      "ok",
			Timestamp:   time.Now().UTC(),
			DBStatus:    "ok",
			QueueStatus: "ok",
		}

		if err := pingDatabase(ctx); err != nil {
			health.DBStatus = "error"
			ctx.Logger.Error("Database health check failed", slog.Any("error", err))
		}

		depth, err := queue.Len(ctx.UserContext())
		if err != nil {
			health.QueueStatus = "error"
			ctx.Logger.Error("Queue health check failed", slog.Any("error", err))
		}
		health.QueueDepth = depth

		if health.DBStatus != "ok" || health.QueueStatus != "ok" {
			health.Status = "degraded"
			return ctx.Status(fiber.StatusServiceUnavailable).JSON(health)
		}
		return ctx.JSON(health)
	}
}

func pingDatabase(ctx *cartridge.Context) error {
	db := ctx.DBManager.GetConnection()
	if db == nil {
		return errDatabaseUnavailable
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx.UserContext())
}

// main.go - HTTP server application
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pulse/internal"
	"pulse/internal/config"
	"pulse/internal/telemetry"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	cfg := config.GetConfig()

	shutdownTelemetry, err := telemetry.Setup(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to set up telemetry: %v", err)
	}

	// Migrations run inside NewApp.
	app, err := internal.NewAppWithConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	log.Println("Starting application...")
	if err := app.StartAsync(); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}
	log.Println("Application started successfully")

	waitForShutdownSignal(app, shutdownTelemetry)
}

// waitForShutdownSignal sets up signal handling and performs graceful shutdown
func waitForShutdownSignal(app *internal.Application, shutdownTelemetry func(context.Context) error) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	sig := <-sigChan
	log.Printf("Received signal: %v", sig)

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	log.Println("Initiating graceful shutdown...")
	if err := app.Shutdown(ctx); err != nil {
		log.Printf("Error during shutdown: %v", err)
		os.Exit(1)
	}
	if err := shutdownTelemetry(ctx); err != nil {
		log.Printf("Error flushing metrics: %v", err)
	}
	log.Println("Server shutdown complete")
}

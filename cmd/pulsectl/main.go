// main.go - Admin control tool for pulse
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/karloscodes/cartridge"
	"golang.org/x/term"

	"pulse/internal"
	"pulse/internal/analytics"
	"pulse/internal/config"
	"pulse/internal/database"
	"pulse/internal/seeder"
	"pulse/internal/settings"
)

// Command defines the interface for all command implementations
type Command interface {
	// Name returns the command name
	Name() string
	// Description returns the command description
	Description() string
	// Execute runs the command with the given environment and args
	Execute(ctx context.Context, env *Env, args []string) error
}

// The set of available commands
var commands = []Command{
	&MigrateCommand{},
	&FlushCommand{},
	&ArchiveCommand{},
	&CleanupCommand{},
	&StatsCommand{},
	&SettingsCommand{},
	&SeedCommand{},
	&StatusCommand{},
	&HelpCommand{},
}

// Env gives commands the database and, on demand, the pipeline. The write
// buffer is opened lazily because Badger holds a directory lock that a running
// server already owns.
type Env struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Out       io.Writer
	// JSON is set when stdout is not a terminal.
	JSON bool

	pipeline *internal.Pipeline
}

func (e *Env) Pipeline() (*internal.Pipeline, error) {
	if e.pipeline != nil {
		return e.pipeline, nil
	}
	p, err := internal.NewPipeline(e.Config, e.DBManager, e.Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open pipeline (is the server running?): %w", err)
	}
	e.pipeline = p
	return p, nil
}

func (e *Env) Close() {
	if e.pipeline != nil {
		if err := e.pipeline.Close(); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	}
	if sqlDB, err := e.DBManager.GetConnection().DB(); err == nil {
		if err := sqlDB.Close(); err != nil {
			log.Printf("Warning: Failed to close database: %v", err)
		}
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Warning: Failed to load .env: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := <-sigChan
		log.Printf("Received signal: %v, initiating cleanup...", sig)
		cancel()
	}()

	cmdName, args := parseArgs()

	cmd := findCommand(cmdName)
	if cmd == nil {
		showUsageAndExit()
	}

	if _, ok := cmd.(*HelpCommand); ok {
		cmd.Execute(ctx, &Env{Out: os.Stdout}, args)
		return
	}

	cfg := config.GetConfig()
	logger := cartridge.NewLogger(cfg, nil)

	dbManager, err := internal.OpenDatabase(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}

	env := &Env{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Out:       os.Stdout,
		JSON:      !term.IsTerminal(int(os.Stdout.Fd())),
	}

	err = cmd.Execute(ctx, env, args)
	env.Close()
	if err != nil {
		log.Fatalf("Command failed: %v", err)
	}

	log.Printf("Command %s completed successfully", cmd.Name())
}

// MigrateCommand runs database migrations
type MigrateCommand struct{}

func (c *MigrateCommand) Name() string        { return "migrate" }
func (c *MigrateCommand) Description() string { return "Runs database migrations" }

func (c *MigrateCommand) Execute(ctx context.Context, env *Env, args []string) error {
	log.Println("Running database migrations...")
	if err := env.DBManager.MigrateDatabase(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	log.Println("Migrations completed successfully")
	return nil
}

// FlushCommand drains the write buffer into the database
type FlushCommand struct{}

func (c *FlushCommand) Name() string        { return "flush" }
func (c *FlushCommand) Description() string { return "Moves every queued page view into the database" }

func (c *FlushCommand) Execute(ctx context.Context, env *Env, args []string) error {
	p, err := env.Pipeline()
	if err != nil {
		return err
	}

	var batches int
	var inserted int64
	for {
		result := p.Flusher.Flush(ctx)
		if result.Err != nil {
			return result.Err
		}
		if result.Peeked == 0 {
			break
		}
		batches++
		inserted += result.Inserted
	}

	return env.print(map[string]any{"batches": batches, "inserted": inserted}, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Batches:\t%d\n", batches)
		fmt.Fprintf(w, "Inserted:\t%d\n", inserted)
	})
}

// ArchiveCommand runs one archival pass
type ArchiveCommand struct{}

func (c *ArchiveCommand) Name() string { return "archive" }
func (c *ArchiveCommand) Description() string {
	return "Rolls page views older than the precision window into daily buckets"
}

func (c *ArchiveCommand) Execute(ctx context.Context, env *Env, args []string) error {
	p, err := env.Pipeline()
	if err != nil {
		return err
	}
	return p.Archiver.Archive(ctx)
}

// CleanupCommand expires archive buckets past the retention window
type CleanupCommand struct{}

func (c *CleanupCommand) Name() string        { return "cleanup" }
func (c *CleanupCommand) Description() string { return "Deletes archive buckets past the retention window" }

func (c *CleanupCommand) Execute(ctx context.Context, env *Env, args []string) error {
	p, err := env.Pipeline()
	if err != nil {
		return err
	}

	cfg := settings.LoadAnalytics(p.Settings, env.Logger)
	removed, err := p.Archiver.Cleaner().Cleanup(ctx, cfg.RetentionDays, time.Now().In(cfg.Location))
	if err != nil {
		return err
	}

	return env.print(map[string]any{"removed": removed, "retentionDays": cfg.RetentionDays}, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Retention days:\t%d\n", cfg.RetentionDays)
		fmt.Fprintf(w, "Buckets removed:\t%d\n", removed)
	})
}

// StatsCommand prints the analytics overview for a window
type StatsCommand struct{}

func (c *StatsCommand) Name() string        { return "stats" }
func (c *StatsCommand) Description() string { return "Prints analytics for a time window" }

func (c *StatsCommand) Execute(ctx context.Context, env *Env, args []string) error {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	days := fs.Int("days", 0, "trailing days")
	hours := fs.Int("hours", 0, "trailing hours")
	start := fs.String("start", "", "start date (YYYY-MM-DD)")
	end := fs.String("end", "", "end date (YYYY-MM-DD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := env.Pipeline()
	if err != nil {
		return err
	}

	stats, err := p.Analytics.GetAnalyticsStats(ctx, analytics.StatsParams{
		Days:      *days,
		Hours:     *hours,
		StartDate: *start,
		EndDate:   *end,
	})
	if err != nil {
		return err
	}

	return env.print(stats, func(w *tabwriter.Writer) {
		ov := stats.Overview
		fmt.Fprintf(w, "Window:\t%s .. %s\n", stats.From.Format(time.RFC3339), stats.To.Format(time.RFC3339))
		fmt.Fprintf(w, "Views:\t%d\n", ov.TotalViews)
		fmt.Fprintf(w, "Unique visitors:\t%d\n", ov.UniqueVisitors)
		fmt.Fprintf(w, "Sessions:\t%d\n", ov.TotalSessions)
		fmt.Fprintf(w, "Bounce rate:\t%.2f%%\n", ov.BounceRate)
		fmt.Fprintln(w, "\t")
		fmt.Fprintln(w, "Path\tViews\tShare")
		for _, path := range stats.TopPaths {
			fmt.Fprintf(w, "%s\t%d\t%.2f%%\n", path.Path, path.Count, path.Percentage)
		}
	})
}

// SettingsCommand lists or updates runtime settings
type SettingsCommand struct{}

func (c *SettingsCommand) Name() string { return "settings" }
func (c *SettingsCommand) Description() string {
	return "Lists settings, or sets one with: settings <key> <value>"
}

func (c *SettingsCommand) Execute(ctx context.Context, env *Env, args []string) error {
	store := settings.NewStore(env.DBManager, env.Logger)

	switch len(args) {
	case 0:
	case 2:
		if err := store.Set(ctx, args[0], args[1]); err != nil {
			return fmt.Errorf("failed to update setting: %w", err)
		}
	default:
		return fmt.Errorf("usage: %s [<key> <value>]", c.Name())
	}

	all, err := store.All(ctx)
	if err != nil {
		return err
	}
	return env.print(all, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "Key\tValue")
		for _, s := range all {
			fmt.Fprintf(w, "%s\t%s\n", s.Key, s.Value)
		}
	})
}

// SeedCommand populates the DB with synthetic traffic
type SeedCommand struct{}

func (c *SeedCommand) Name() string        { return "seed" }
func (c *SeedCommand) Description() string { return "Seeds the database with sample page views" }

func (c *SeedCommand) Execute(ctx context.Context, env *Env, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	views := fs.Int("views", 10000, "number of page views to generate")
	days := fs.Int("days", 30, "spread page views over this many trailing days")
	host := fs.String("host", "example.com", "host of the seeded site")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if env.Config.IsProduction() {
		return fmt.Errorf("refusing to seed a production database")
	}

	p, err := env.Pipeline()
	if err != nil {
		return err
	}

	summary, err := seeder.NewSeeder(p.Ingestor, p.Flusher, env.Logger, seeder.Options{
		Views: *views,
		Days:  *days,
		Host:  *host,
	}).Run(ctx)
	if err != nil {
		return err
	}

	return env.print(summary, func(w *tabwriter.Writer) {
		fmt.Fprintf(w, "Sessions:\t%d\n", summary.Sessions)
		fmt.Fprintf(w, "Submitted:\t%d\n", summary.Submitted)
		fmt.Fprintf(w, "Inserted:\t%d\n", summary.Inserted)
	})
}

// StatusCommand implements a command to check the system status
type StatusCommand struct{}

func (c *StatusCommand) Name() string        { return "status" }
func (c *StatusCommand) Description() string { return "Shows the current system status" }

func (c *StatusCommand) Execute(ctx context.Context, env *Env, args []string) error {
	db := env.DBManager.GetConnection()

	var views, buckets int64
	if err := db.WithContext(ctx).Table("page_views").Count(&views).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}
	if err := db.WithContext(ctx).Table("archive_buckets").Count(&buckets).Error; err != nil {
		return fmt.Errorf("database error: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get SQL DB: %w", err)
	}
	dbStats := sqlDB.Stats()

	status := map[string]any{
		"database":           "connected",
		"pageViews":          views,
		"archiveBuckets":     buckets,
		"maxOpenConnections": dbStats.MaxOpenConnections,
		"openConnections":    dbStats.OpenConnections,
		"inUse":              dbStats.InUse,
		"idle":               dbStats.Idle,
	}
	return env.print(status, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "Database:\tConnected")
		fmt.Fprintf(w, "Page views:\t%d\n", views)
		fmt.Fprintf(w, "Archive buckets:\t%d\n", buckets)
		fmt.Fprintf(w, "Max open connections:\t%d\n", dbStats.MaxOpenConnections)
		fmt.Fprintf(w, "Open connections:\t%d\n", dbStats.OpenConnections)
		fmt.Fprintf(w, "In use:\t%d\n", dbStats.InUse)
		fmt.Fprintf(w, "Idle:\t%d\n", dbStats.Idle)
	})
}

// HelpCommand implements a command to show usage information
type HelpCommand struct{}

func (c *HelpCommand) Name() string        { return "help" }
func (c *HelpCommand) Description() string { return "Shows usage information" }

func (c *HelpCommand) Execute(ctx context.Context, env *Env, args []string) error {
	printUsage(env.Out)
	return nil
}

// print writes v as indented JSON when piped, otherwise as an aligned table.
func (e *Env) print(v any, table func(w *tabwriter.Writer)) error {
	if e.JSON {
		enc := json.NewEncoder(e.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	w := tabwriter.NewWriter(e.Out, 0, 0, 2, ' ', 0)
	table(w)
	return w.Flush()
}

// Helper functions

// parseArgs parses the command name and arguments
func parseArgs() (string, []string) {
	args := os.Args[1:]
	if len(args) == 0 {
		return "help", []string{}
	}
	return args[0], args[1:]
}

// findCommand finds a command by name
func findCommand(name string) Command {
	for _, cmd := range commands {
		if cmd.Name() == name {
			return cmd
		}
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: pulsectl [command] [args...]")
	fmt.Fprintln(w, "Available commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s: %s\n", cmd.Name(), cmd.Description())
	}
}

// showUsageAndExit shows usage information and exits
func showUsageAndExit() {
	printUsage(os.Stdout)
	os.Exit(1)
}

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/dshills/skillmarket/internal/config"
	"github.com/dshills/skillmarket/internal/httpapi"
	"github.com/dshills/skillmarket/internal/mcp"
	"github.com/dshills/skillmarket/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

const usage = `usage: skillmarket [command]

commands:
  serve      run the HTTP API (default)
  mcp        run the MCP server on stdio
  reindex    embed every changed listing and exit (-force re-embeds all)
  --version  print build information`

func main() {
	command := "serve"
	args := []string{}
	if len(os.Args) > 1 {
		command, args = os.Args[1], os.Args[2:]
	}

	switch command {
	case "--version", "version":
		fmt.Printf("Skillmarket\n")
		fmt.Printf("Version: %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
		fmt.Printf("Vector Extension: %v\n", storage.VectorExtensionAvailable)
		return
	case "-h", "--help", "help":
		fmt.Println(usage)
		return
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	switch command {
	case "serve":
		err = runServe(cfg)
	case "mcp":
		err = runMCP(cfg)
	case "reindex":
		err = runReindex(cfg, args)
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", command, err)
	}
}

func runServe(cfg *config.Config) error {
	log.Printf("Skillmarket v%s starting...", version)
	log.Printf("Build Mode: %s, Driver: %s, Vector Extension: %v",
		storage.BuildMode, storage.DriverName, storage.VectorExtensionAvailable)
	if cfg.JWTSecret == "" {
		log.Printf("WARN: SKILLMARKET_JWT_SECRET is not set, bearer tokens will be rejected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	app.indexer.Start(ctx)

	h := httpapi.NewHandler(app.store, app.searcher, app.assistant, app.indexer, version)

	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	h.RegisterRoutes(e, httpapi.AuthConfig{
		Secret:   []byte(cfg.JWTSecret),
		AdminIDs: cfg.AdminIDs,
	})

	go func() {
		if err := e.Start(cfg.Addr()); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()
	log.Printf("HTTP API started on %s", cfg.Addr())

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Failed to shutdown server gracefully: %v", err)
	}

	// Drain queued embedding tasks before the store closes
	app.indexer.Stop()

	log.Println("Server stopped")
	return nil
}

func runMCP(cfg *config.Config) error {
	// stdout is reserved for the MCP protocol
	log.SetOutput(os.Stderr)
	log.Printf("Skillmarket MCP Server v%s starting...", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	server, err := mcp.NewServer(app.store, app.searcher, app.assistant, app.indexer)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		log.Println("MCP server ready, listening on stdio...")
		errChan <- server.Serve(ctx)
	}()

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	case err := <-errChan:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	log.Println("Server stopped")
	return nil
}

func runReindex(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("reindex", flag.ExitOnError)
	force := fs.Bool("force", false, "re-embed every listing ignoring content hashes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	stats, err := app.indexer.ReindexAll(ctx, *force)
	if err != nil {
		return err
	}

	fmt.Printf("Indexing Statistics:\n")
	fmt.Printf("  Listings Indexed: %d\n", stats.ListingsIndexed)
	fmt.Printf("  Listings Skipped: %d\n", stats.ListingsSkipped)
	fmt.Printf("  Listings Failed: %d\n", stats.ListingsFailed)
	fmt.Printf("  Duration: %v\n", stats.Duration)

	if len(stats.ErrorMessages) > 0 {
		fmt.Printf("\nErrors:\n")
		for _, msg := range stats.ErrorMessages {
			fmt.Printf("  - %s\n", msg)
		}
		return fmt.Errorf("%d listings failed", stats.ListingsFailed)
	}
	return nil
}

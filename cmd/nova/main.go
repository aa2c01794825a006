// nova - multi-provider LLM chat and debate server.
// Entry point: flag parsing, wiring, graceful shutdown.

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yblis/nova/internal/api"
	"github.com/yblis/nova/internal/domain/debate"
	"github.com/yblis/nova/internal/domain/history"
	"github.com/yblis/nova/internal/domain/provider"
	"github.com/yblis/nova/internal/infra/config"
	"github.com/yblis/nova/internal/infra/sqlite"
	"github.com/yblis/nova/internal/server"
	"github.com/yblis/nova/internal/version"
	"github.com/yblis/nova/pkg/secrets"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("nova", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")
	addr := fs.String("addr", "", "Listen address (overrides NOVA_ADDR)")

	if err := fs.Parse(args); err != nil {
		return 2
	}

	if *showVersion {
		fmt.Fprintln(out, version.String()) //nolint:errcheck
		return 0
	}

	if *showHelp {
		printHelp(out)
		return 0
	}

	if err := serve(*addr); err != nil {
		slog.Error("server failed", "error", err)
		return 1
	}
	return 0
}

// serve wires configuration, storage, the provider registry and the debate
// orchestrator, then runs the HTTP server until SIGINT/SIGTERM.
func serve(addrOverride string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if addrOverride != "" {
		cfg.Addr = addrOverride
	}
	setupLogging(cfg.LogLevel)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	sealer, err := secrets.FromEnv()
	if err != nil {
		return fmt.Errorf("init secrets: %w", err)
	}

	registry, err := provider.NewRegistry(cfg.ProvidersPath(), sealer)
	if err != nil {
		return fmt.Errorf("open provider registry: %w", err)
	}

	db, err := sqlite.NewDB(cfg.HistoryDBPath())
	if err != nil {
		return fmt.Errorf("open history db: %w", err)
	}
	if err := sqlite.MigrateUp(db); err != nil {
		db.Close() //nolint:errcheck
		return fmt.Errorf("migrate history db: %w", err)
	}

	deps := api.Deps{
		Registry:       registry,
		History:        history.NewStore(db),
		Orchestrator:   debate.NewOrchestrator(registry),
		DebateDefaults: debate.NewDefaultsStore(cfg.DebateDefaultsPath()),
	}

	srvConfig := server.DefaultConfig()
	srvConfig.Addr = cfg.Addr
	srv := server.NewServer(db, deps, srvConfig)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// setupLogging installs the process-wide slog handler.
func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func printHelp(out io.Writer) {
	helpText := `nova - multi-provider LLM chat and debate server

Usage:
  nova [options]

Options:
  --version    Show version information
  --help       Show this help message
  --addr       Listen address, e.g. :8080 (overrides NOVA_ADDR)

Environment:
  NOVA_CONFIG            Path to a YAML config file
  NOVA_ADDR              Listen address
  NOVA_DATA_DIR          Data directory (providers.json, history.sqlite)
  NOVA_LOG_LEVEL         debug | info | warn | error
  NOVA_ENCRYPTION_KEY    Base64 key for API credential sealing
  OLLAMA_BASE_URL        Default local Ollama URL

Examples:
  nova --version
  nova --addr :8080`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}

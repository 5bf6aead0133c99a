// Command palchat serves push-to-talk voice chat with animated characters.
//
// With -turn it runs a single conversation turn for a recorded clip instead
// and prints the result as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/palchat/internal/app"
	"github.com/MrWong99/palchat/internal/config"
	"github.com/MrWong99/palchat/internal/engine"
	"github.com/MrWong99/palchat/internal/observe"
	"github.com/MrWong99/palchat/pkg/audio"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	turnClip := flag.String("turn", "", "run one turn for this audio file or URL and exit")
	characterID := flag.String("character", "", "character for -turn (default: the catalog default)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	if err := config.LoadDotEnv(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "palchat: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	prepare := func(c *config.Config) { config.ApplyEnv(c, os.LookupEnv) }

	var (
		cfg     *config.Config
		watcher *config.Watcher
		err     error
	)
	if *configPath != "" {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			app.ApplyConfig(level, old, new)
		}, config.WithPrepare(prepare))
		if err != nil {
			fmt.Fprintf(os.Stderr, "palchat: %v\n", err)
			return 1
		}
		cfg = watcher.Current()
	} else {
		cfg = config.Default()
		prepare(cfg)
		if err := config.Validate(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "palchat: invalid configuration: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(cfg.Server.LogFormat, level))

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: cfg.Telemetry.ServiceName,
		SampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	application, err := app.New(ctx, cfg, providers, app.WithMetricsHandler(tel.MetricsHandler))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := application.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	if *turnClip != "" {
		return runOneTurn(ctx, application, *turnClip, *characterID)
	}

	slog.Info("palchat starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
		"characters", application.Characters().Len(),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return application.Run(gctx) })
	if watcher != nil {
		g.Go(func() error { return watcher.Run(gctx) })
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// runOneTurn runs a single turn with an empty history and prints the result.
func runOneTurn(ctx context.Context, a *app.App, clipURI, characterID string) int {
	c, err := a.Characters().Resolve(characterID)
	if err != nil {
		slog.Error("unknown character", "id", characterID, "err", err)
		return 1
	}

	res, err := a.Runner().RunTurn(ctx, audio.Clip{URI: clipURI}, c, nil)
	if err != nil {
		slog.Error("turn failed", "kind", engine.Kind(err), "err", err)
		fmt.Fprintln(os.Stderr, engine.FailureMessage)
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		slog.Error("failed to write result", "err", err)
		return 1
	}
	return 0
}

// newLogger creates an slog.Logger writing to stderr in the given format.
func newLogger(format config.LogFormat, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == config.LogJSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arnobt78/multimodel-chat/app"
	"github.com/arnobt78/multimodel-chat/config"
	"github.com/arnobt78/multimodel-chat/internal/observability"
	"github.com/arnobt78/multimodel-chat/services/providers"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("chatctl: %v", err))
		os.Exit(1)
	}
}

func run() error {
	provider := flag.String("provider", "", "pin a backend instead of automatic selection")
	plain := flag.Bool("plain", false, "print replies without markdown rendering")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if *provider != "" {
		if _, err := providers.ParseBackendID(*provider); err != nil {
			return err
		}
	}

	logger, err := observability.NewLogger(*logLevel, "console")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New(ctx)
	if err != nil {
		return err
	}
	// the REPL has no scrape endpoint
	cfg.Observability.MetricsEnabled = false

	deps, err := app.NewDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := deps.Close(closeCtx); err != nil {
			logger.Warn("shutdown error", zap.Error(err))
		}
	}()

	r := &repl{
		in:        os.Stdin,
		out:       os.Stdout,
		chat:      deps.Chat,
		lister:    deps.Orchestrator,
		provider:  *provider,
		sessionID: uuid.NewString(),
	}
	if !*plain {
		glam, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100))
		if err != nil {
			return err
		}
		r.render = glam.Render
	}

	fmt.Fprintf(os.Stdout, "%d of %d backends usable. Type /help for commands.\n", cfg.UsableBackends(), deps.Registry.Len())
	return r.run(ctx)
}

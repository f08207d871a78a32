// Command api runs the mailroom HTTP service.
//
// Startup wires the document store client, SMTP mailer, template renderer,
// and domain services, then serves the v1 API until SIGINT/SIGTERM triggers
// a graceful drain.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"mailroom/internal/api/handlers"
	"mailroom/internal/config"
	"mailroom/internal/core"
	"mailroom/internal/external"
	"mailroom/internal/newsletter"
	"mailroom/internal/render"
	"mailroom/internal/types"
	"mailroom/internal/verification"
)

const shutdownGracePeriod = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	logger.Info("starting mailroom",
		"env", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit)

	renderer := render.NewRenderer(cfg.Email.TemplateDir)
	mailer := external.NewSMTPMailer(cfg.SMTP, types.NewSlogLogger(logger.With("component", "smtp")))
	storeFactory := external.NewStoreFactory(cfg.Store, types.NewSlogLogger(logger.With("component", "store")))

	clock := types.RealClock{}

	dispatcher := newsletter.NewDispatcher(
		func(ctx context.Context) (newsletter.Store, error) { return storeFactory.Authed(ctx) },
		mailer,
		renderer,
		clock,
		types.NewSlogLogger(logger.With("component", "newsletter")),
		newsletter.Config{
			FromAddress:      cfg.Email.FromAddress,
			FromName:         cfg.Email.FromName,
			HeroImageURL:     cfg.Newsletter.HeroImageURL,
			DefaultPreheader: cfg.Newsletter.DefaultPreheader,
			MaxRecipients:    cfg.Newsletter.MaxRecipients,
		},
	)

	verifier := verification.NewService(
		func(ctx context.Context) (verification.Store, error) { return storeFactory.Authed(ctx) },
		mailer,
		renderer,
		types.NewSlogLogger(logger.With("component", "verification")),
		verification.Config{
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		},
	)

	server, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	emailsCfg := handlers.EmailsConfig{
		FromAddress:   cfg.Email.FromAddress,
		FromName:      cfg.Email.FromName,
		PublicBaseURL: strings.TrimRight(cfg.Server.PublicBaseURL, "/"),
	}

	emailsHandler := handlers.NewEmailsHandler(verifier, mailer, renderer, server.Validator, logger, emailsCfg)
	vendorsHandler := handlers.NewVendorsHandler(
		func(ctx context.Context) (handlers.VendorStore, error) { return storeFactory.Authed(ctx) },
		mailer, renderer, clock, logger, emailsCfg,
	)
	newsletterHandler := handlers.NewNewsletterHandler(dispatcher, server.Validator, logger)

	server.V1RouteRegistrars = []func(chi.Router){
		emailsHandler.RegisterRoutes,
		vendorsHandler.RegisterRoutes,
		newsletterHandler.RegisterRoutes,
	}
	server.HealthProbes = []core.HealthProbe{
		core.NewProbe("store", storeFactory.Ping),
		core.NewProbe("smtp", mailer.Ping),
	}
	server.MountRoutes()

	// Issues stranded in "sending" by a previous crash block future
	// dispatches; unlock them before accepting traffic.
	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 15*time.Second)
	if unlocked, err := dispatcher.UnlockStuck(startupCtx); err != nil {
		logger.Warn("stuck issue sweep failed", "error", err)
	} else if unlocked > 0 {
		logger.Info("stuck issues unlocked", "count", unlocked)
	}
	cancelStartup()

	httpServer := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      150 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case sig := <-stop:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("drain http server: %w", err)
	}
	return server.Shutdown(shutdownCtx)
}

// newLogger builds the process-wide JSON logger at the configured level.
func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("service", cfg.Service)
}

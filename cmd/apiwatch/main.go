package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/osbits/apiwatch/internal/app"
	"github.com/osbits/apiwatch/internal/checks"
	"github.com/osbits/apiwatch/internal/config"
	"github.com/osbits/apiwatch/internal/engine"
	"github.com/osbits/apiwatch/internal/observability"
	"github.com/osbits/apiwatch/internal/service"
	"github.com/osbits/apiwatch/internal/storage"
)

func main() {
	var (
		configPath      string
		listenOverride  string
		shutdownTimeout time.Duration
	)
	flag.StringVar(&configPath, "config", "config.yml", "path to configuration file")
	flag.StringVar(&listenOverride, "listen", "", "override listen address")
	flag.DurationVar(&shutdownTimeout, "shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	observability.LoadDotEnv(logger)

	rollbarEnabled, rollbarCleanup := observability.SetupRollbar(logger)
	defer rollbarCleanup()
	defer observability.CapturePanic(logger, rollbarEnabled)()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	listen := cfg.Service.Listen
	if listenOverride != "" {
		listen = listenOverride
	}
	if listen == "" {
		listen = ":8080"
	}

	bearerKey, err := cfg.Platform.BearerKey.Resolve("bearer_key")
	if err != nil {
		log.Fatalf("resolve bearer key: %v", err)
	}
	privilegedKey, err := cfg.Platform.PrivilegedKey.Resolve("privileged_key")
	if err != nil {
		log.Fatalf("resolve privileged key: %v", err)
	}

	var store *storage.Store
	if cfg.Storage.Path != "" {
		store, err = storage.Open(cfg.Storage.Path)
		if err != nil {
			log.Fatalf("open storage: %v", err)
		}
		defer func() { _ = store.Close() }()
		if err := store.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("ensure schema: %v", err)
		}
	}

	exec := engine.NewExecutor(engine.ExecutorConfig{
		BaseURL:        cfg.Platform.BaseURL,
		BearerKey:      bearerKey,
		PrivilegedKey:  privilegedKey,
		DefaultTimeout: cfg.Platform.Timeout.Duration,
		Logger:         logger,
	})

	runner := engine.NewRunner(exec, logger)
	for _, checkCfg := range cfg.Checks {
		check, err := checks.Build(checkCfg)
		if err != nil {
			log.Fatalf("build check %q: %v", checkCfg.ID, err)
		}
		if err := runner.Register(check); err != nil {
			log.Fatalf("register check %q: %v", checkCfg.ID, err)
		}
	}

	lock := engine.NewRunLock(cfg.Platform.LockStaleAfter.Duration, logger)
	svc := service.New(runner, lock, store, logger)

	if spec := cfg.Service.Schedule; spec != "" {
		scheduler := cron.New()
		_, err := scheduler.AddFunc(spec, func() {
			if _, err := svc.RunAll(context.Background()); err != nil {
				logger.Warn("scheduled run not started", "error", err)
			}
		})
		if err != nil {
			log.Fatalf("invalid schedule %q: %v", spec, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("scheduled runs enabled", "spec", spec)
	}

	application := app.New(svc, store, logger, cfg.Service.LogRequests)

	server := &http.Server{
		Addr:         listen,
		Handler:      application.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // a full run can take minutes
		IdleTimeout:  60 * time.Second,
	}

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-shutdownCh
		logger.Info("shutdown signal received", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	logger.Info("server listening", "addr", listen, "platform", cfg.Platform.BaseURL)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server stopped unexpectedly", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"resumecrew/internal/ai"
	"resumecrew/internal/config"
	"resumecrew/internal/crew"
	"resumecrew/internal/errors"
	"resumecrew/internal/fetch"
	"resumecrew/internal/notify"
	"resumecrew/internal/observability"
	"resumecrew/internal/pipeline"
)

// app holds the long-lived components shared by serve and customize.
type app struct {
	obs       *observability.ObservabilityManager
	executors *ai.ExecutorFactory
	notifier  notify.Publisher
	service   *pipeline.Service
	watcher   *crew.Watcher
	logger    *errors.Logger
}

// newApp wires the pipeline from configuration. The caller must call close.
func newApp(cfg *config.Config, logger *errors.Logger) (*app, error) {
	obs, err := observability.NewObservabilityManager(observability.GetObservabilityConfig(cfg, Version))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize observability: %w", err)
	}
	a := &app{obs: obs, logger: logger}

	executors, err := ai.NewExecutorFactory(cfg.AI, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.executors = executors

	store, err := crew.OpenStore(cfg.Crew.DefinitionFile)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to load crew definition: %w", err)
	}
	if cfg.Crew.DefinitionFile != "" && cfg.Crew.WatchDefinition {
		a.watcher = crew.NewWatcher(cfg.Crew.DefinitionFile, store, logger)
	}

	notifier, err := notify.New(cfg.Notify, logger)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to initialize notifications: %w", err)
	}
	a.notifier = notifier

	fetchOpts := fetch.Options{
		Timeout:         cfg.Fetch.Timeout,
		UserAgent:       cfg.Fetch.UserAgent,
		MaxBodyBytes:    cfg.Fetch.MaxBodyBytes,
		BrowserFallback: cfg.Fetch.BrowserFallback,
		BrowserTimeout:  cfg.Fetch.BrowserTimeout,
		MinTextLength:   cfg.Fetch.MinTextLength,
	}
	transport := obs.HTTPTransport(http.DefaultTransport)
	fetcher := fetch.New(fetchOpts, &http.Client{Timeout: cfg.Fetch.Timeout, Transport: transport}, logger)
	searchClient := &http.Client{Timeout: cfg.Fetch.Timeout, Transport: transport}

	a.service = pipeline.NewService(pipeline.Options{
		WorkDir: cfg.App.WorkDir,
		Defaults: crew.Credentials{
			GeminiAPIKey: cfg.Crew.Credentials.GeminiAPIKey,
			SerperAPIKey: cfg.Crew.Credentials.SerperAPIKey,
		},
		Fetcher:  fetcher,
		Factory:  pipeline.NewCrewFactory(store, executors, fetcher, searchClient, cfg.Crew, logger),
		Metrics:  obs.GetMetrics(),
		Notifier: notifier,
		Logger:   logger,
	})
	return a, nil
}

// watch reloads the crew definition in the background until ctx ends.
func (a *app) watch(ctx context.Context) {
	if a.watcher == nil {
		return
	}
	go func() {
		if err := a.watcher.Run(ctx); err != nil {
			a.logger.LogError(err, "Crew definition watcher stopped")
		}
	}()
}

func (a *app) close() {
	if a.notifier != nil {
		if err := a.notifier.Close(); err != nil {
			a.logger.LogError(err, "Failed to close notifier")
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.obs.Shutdown(ctx); err != nil {
		a.logger.LogError(err, "Failed to shutdown observability")
	}
}

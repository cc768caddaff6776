package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/shohag/aptnotify/internal/config"
	"github.com/shohag/aptnotify/internal/dispatch"
	"github.com/shohag/aptnotify/internal/events"
	"github.com/shohag/aptnotify/internal/gateway"
	"github.com/shohag/aptnotify/internal/history"
	"github.com/shohag/aptnotify/internal/models"
	"github.com/shohag/aptnotify/internal/storage"
)

// app holds the components shared by serve and the one-shot commands.
type app struct {
	store   storage.Storage
	gateway *gateway.Client
	history *history.Cache
	service *dispatch.Service
}

func newApp(cfg *config.Config, log zerolog.Logger) (*app, error) {
	store, err := setupStorage(cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("failed to setup storage: %w", err)
	}

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Msg("database migrations completed")

	cache := history.NewCache(cfg.History.CacheSize)
	recorder := history.NewRecorder(store, cache, log)
	if err := recorder.Warm(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load recent history")
	}

	bus := events.NewBus()
	bus.Subscribe(events.LogHandler(log))
	if cfg.Events.WebhookURL != "" {
		wh := events.NewWebhook(cfg.Events.WebhookURL, cfg.Events.WebhookSecret, cfg.Events.Timeout, log)
		bus.Subscribe(wh.Handle)
		log.Info().Str("url", cfg.Events.WebhookURL).Msg("dispatch events webhook enabled")
	}

	client := gateway.NewClient(cfg.Gateway.BaseURL, cfg.Gateway.Timeout, log)
	engine := dispatch.NewEngine(client, recorder, bus, dispatch.OptionsFromConfig(cfg.Dispatch, cfg.Dues), log)
	fallback := models.GatewayCredentials{
		InstanceID: cfg.Gateway.InstanceID,
		APIToken:   cfg.Gateway.APIToken,
	}

	return &app{
		store:   store,
		gateway: client,
		history: cache,
		service: dispatch.NewService(engine, store, fallback, log),
	}, nil
}

func (a *app) close() {
	a.store.Close()
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/barsync/internal/collector"
	"github.com/rickgao/barsync/internal/config"
	"github.com/rickgao/barsync/internal/keylock"
	"github.com/rickgao/barsync/internal/merge"
	"github.com/rickgao/barsync/internal/metrics"
	"github.com/rickgao/barsync/internal/provider"
	"github.com/rickgao/barsync/internal/store"
	"github.com/rickgao/barsync/internal/version"
)

// app holds the components shared by every command.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	registry  *prometheus.Registry
	metrics   *metrics.Collector
	provider  *provider.Client
	store     store.Store
	locker    keylock.Locker
	merger    *merge.Merger
	collector *collector.Collector
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New()
	if err := m.Register(reg); err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	client, err := newProvider(cfg.Provider, logger, m)
	if err != nil {
		return nil, err
	}

	s, err := store.Open(ctx, cfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	locker, err := keylock.Open(ctx, cfg.Lock, logger)
	if err != nil {
		s.Close(context.Background())
		return nil, fmt.Errorf("open lock: %w", err)
	}

	merger := merge.New(s, client, merge.Options{PageSize: cfg.Provider.PageSize}, logger, m)
	coll := collector.New(collector.Config{
		Width:          cfg.Workers.Width,
		DequeueTimeout: cfg.Workers.DequeueTimeout,
		QueueCapacity:  cfg.Workers.QueueCapacity,
	}, merger, s, locker, logger, m)

	return &app{
		cfg:       cfg,
		logger:    logger,
		registry:  reg,
		metrics:   m,
		provider:  client,
		store:     s,
		locker:    locker,
		merger:    merger,
		collector: coll,
	}, nil
}

// newProvider builds the REST client. A credentials file overrides the
// configured URL and key.
func newProvider(cfg config.ProviderConfig, logger *slog.Logger, m *metrics.Collector) (*provider.Client, error) {
	baseURL, apiKey := cfg.RestURL, cfg.APIKey
	if cfg.APIKeyFile != "" {
		creds, err := provider.LoadCredentials(cfg.APIKeyFile)
		if err != nil {
			return nil, err
		}
		if baseURL, err = provider.EnvironmentURL(creds.Environment); err != nil {
			return nil, err
		}
		apiKey = creds.AccessToken
	}

	opts := []provider.ClientOption{
		provider.WithName(cfg.Name),
		provider.WithLogger(logger),
		provider.WithMetrics(m),
		provider.WithTimeout(cfg.Timeout),
		provider.WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		provider.WithIncomplete(cfg.IncludeIncomplete),
		provider.WithBreaker(provider.BreakerSettings{
			MaxRequests:         cfg.Breaker.MaxRequests,
			Interval:            cfg.Breaker.Interval,
			Timeout:             cfg.Breaker.Timeout,
			ConsecutiveFailures: cfg.Breaker.ConsecutiveFailures,
		}),
	}
	if cfg.RateLimit > 0 {
		opts = append(opts, provider.WithRateLimit(cfg.RateLimit, cfg.RateBurst))
	}
	return provider.NewClient(baseURL, apiKey, opts...), nil
}

// Close releases the lock client and the store.
func (a *app) Close() {
	if c, ok := a.locker.(interface{ Close() error }); ok {
		if err := c.Close(); err != nil {
			a.logger.Warn("close lock client", "error", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.store.Close(ctx); err != nil {
		a.logger.Warn("close store", "error", err)
	}
}

// serveHealth runs the health and metrics server until ctx is done. A
// metrics port of zero disables it.
func (a *app) serveHealth(ctx context.Context) error {
	if a.cfg.Metrics.Port <= 0 {
		return nil
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", a.cfg.Metrics.Port),
		Handler: a.healthHandler(),
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("starting health server", "port", a.cfg.Metrics.Port)
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- fmt.Errorf("health server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// healthHandler serves /health and the metrics endpoint.
func (a *app) healthHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Version    string         `json:"version"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Version:    version.String(),
			Components: make(map[string]any),
		}

		names, err := a.store.CollectionNames(ctx)
		if err != nil {
			health.Status = "unhealthy"
			health.Components["store"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["store"] = map[string]any{
				"driver": a.cfg.Store.Driver,
				"series": len(names),
			}
		}
		health.Components["provider"] = a.provider.Name()

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}

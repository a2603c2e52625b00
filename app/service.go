// Package app wires the stores, resolvers and transports into a runnable
// service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apidispatch "github.com/eldlit/pet-dispatch-deploy/api/dispatch"
	apidrivers "github.com/eldlit/pet-dispatch-deploy/api/drivers"
	"github.com/eldlit/pet-dispatch-deploy/config"
	"github.com/eldlit/pet-dispatch-deploy/core/availability"
	corecalendar "github.com/eldlit/pet-dispatch-deploy/core/calendar"
	"github.com/eldlit/pet-dispatch-deploy/core/clock"
	"github.com/eldlit/pet-dispatch-deploy/core/dispatch"
	"github.com/eldlit/pet-dispatch-deploy/core/dispatch/logging"
	"github.com/eldlit/pet-dispatch-deploy/core/engine"
	"github.com/eldlit/pet-dispatch-deploy/core/schedule"
	infracalendar "github.com/eldlit/pet-dispatch-deploy/infra/calendar"
	"github.com/eldlit/pet-dispatch-deploy/infra/logger"
	"github.com/eldlit/pet-dispatch-deploy/infra/metrics"
	"github.com/eldlit/pet-dispatch-deploy/infra/notify"
	"github.com/eldlit/pet-dispatch-deploy/infra/sqlite"
	"github.com/eldlit/pet-dispatch-deploy/internal/eventbus"
)

// Service orchestrates the dispatch engine, the calendar syncer and the API
// server.
type Service struct {
	Engine *engine.Engine

	cfg      *config.Config
	store    *sqlite.Store
	syncer   *corecalendar.Syncer
	notifier *notify.Notifier
	audit    logging.LogStore
	bus      eventbus.EventBus
	log      logger.Logger
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	logg := logger.New("service")
	clk := clock.System()

	store, err := sqlite.Open(cfg.Database.Path, clk)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sink, err := metrics.NewFromConfig(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics sink: %w", err)
	}
	if cfg.Metrics.PrometheusEnabled {
		dispatch.MustRegisterMetrics(prometheus.DefaultRegisterer)
		corecalendar.MustRegisterMetrics(prometheus.DefaultRegisterer)
	}

	audit, err := newAuditStore(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("audit store: %w", err)
	}

	bus := eventbus.New()
	defaultDur := time.Duration(cfg.Dispatch.DefaultRideMinutes) * time.Minute

	resolver, err := availability.NewResolver(store, store, store, clk, defaultDur, logger.New("availability"))
	if err != nil {
		return nil, err
	}
	propagator, err := schedule.NewPropagator(store, logger.New("propagator"))
	if err != nil {
		return nil, err
	}

	var syncer *corecalendar.Syncer
	if cfg.Calendar.HTTP.BaseURL != "" {
		gw, err := infracalendar.NewHTTPGateway(cfg.Calendar.HTTP, store, logger.New("calendar"))
		if err != nil {
			return nil, fmt.Errorf("calendar gateway: %w", err)
		}
		retried := corecalendar.NewRetryGateway(gw, cfg.Calendar.Retry)
		syncer, err = corecalendar.NewSyncer(store, store, retried, logger.New("calendar_syncer"), sink, bus, defaultDur)
		if err != nil {
			return nil, fmt.Errorf("calendar syncer: %w", err)
		}
	}

	var coordSyncer dispatch.CalendarSyncer
	if syncer != nil {
		coordSyncer = syncer
	}
	coordinator, err := dispatch.NewCoordinator(store, store, store, store, resolver, coordSyncer, bus, sink, audit, logger.New("coordinator"), clk, cfg.Dispatch)
	if err != nil {
		return nil, fmt.Errorf("coordinator: %w", err)
	}

	eng, err := engine.New(resolver, propagator, coordinator, store, store, logg)
	if err != nil {
		return nil, err
	}

	var notifier *notify.Notifier
	if cfg.Notify.Enabled {
		notifier, err = notify.NewNotifier(cfg.Notify)
		if err != nil {
			return nil, fmt.Errorf("notifier: %w", err)
		}
	}

	return &Service{
		Engine:   eng,
		cfg:      cfg,
		store:    store,
		syncer:   syncer,
		notifier: notifier,
		audit:    audit,
		bus:      bus,
		log:      logg,
	}, nil
}

func newAuditStore(cfg config.LoggingConfig) (logging.LogStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return logging.NewSQLiteStore(cfg.Path)
	default:
		if cfg.MaxSizeMB > 0 {
			return logging.NewRotatingJSONLStore(cfg.Path, cfg.MaxSizeMB, cfg.MaxBackups, cfg.MaxAgeDays)
		}
		return logging.NewJSONLStore(cfg.Path)
	}
}

// Handler builds the API routing table.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/api/dispatch/assign", apidispatch.NewAssignHandler(s.Engine))
	mux.Handle("/api/dispatch/unassign", apidispatch.NewUnassignHandler(s.Engine))
	mux.Handle("/api/dispatch/board", apidispatch.NewBoardHandler(s.Engine))
	mux.Handle("/api/dispatch/logs", apidispatch.NewLogHandler(s.audit, s.cfg.Server.APIToken))
	mux.Handle("/api/drivers/", apidrivers.NewHandler(s.Engine))
	return mux
}

// Run starts the service and blocks until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if s.syncer != nil {
		interval := time.Duration(s.cfg.Calendar.SyncIntervalSeconds) * time.Second
		go s.syncer.Run(ctx, interval)
	}
	if s.notifier != nil {
		go s.notifier.Run(ctx, s.bus)
	}
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			if err := metrics.StartPromServer(ctx, s.cfg.Metrics.PrometheusPort); err != nil {
				s.log.Errorf("prom server: %v", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              s.cfg.Server.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Infof("API listening on %s", s.cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// DrainOutbox processes one batch of pending calendar jobs and returns how
// many remain. Without a configured calendar gateway there is nothing to do.
func (s *Service) DrainOutbox(ctx context.Context) (int, error) {
	if s.syncer == nil {
		return 0, fmt.Errorf("no calendar gateway configured")
	}
	return s.syncer.DrainOnce(ctx)
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	if s.notifier != nil {
		s.notifier.Close()
	}
	s.bus.Close()
	var errs []error
	if s.audit != nil {
		errs = append(errs, s.audit.Close())
	}
	errs = append(errs, s.store.Close())
	return errors.Join(errs...)
}

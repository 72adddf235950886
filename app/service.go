// Package app assembles the dispatch engine and its adapters from the
// configuration and runs them as one service.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	casesapi "github.com/kilianp07/medqueue/api/cases"
	"github.com/kilianp07/medqueue/config"
	"github.com/kilianp07/medqueue/core/dispatch"
	coremetrics "github.com/kilianp07/medqueue/core/metrics"
	coremon "github.com/kilianp07/medqueue/core/monitoring"
	corenotify "github.com/kilianp07/medqueue/core/notify"
	coreprediction "github.com/kilianp07/medqueue/core/prediction"
	"github.com/kilianp07/medqueue/core/queue"
	"github.com/kilianp07/medqueue/core/registry"
	"github.com/kilianp07/medqueue/core/scheduler"
	"github.com/kilianp07/medqueue/core/scoring"
	"github.com/kilianp07/medqueue/core/store"
	"github.com/kilianp07/medqueue/infra/logger"
	"github.com/kilianp07/medqueue/infra/metrics"
	"github.com/kilianp07/medqueue/infra/monitoring"
	_ "github.com/kilianp07/medqueue/infra/notify"
	"github.com/kilianp07/medqueue/infra/prediction"
	"github.com/kilianp07/medqueue/infra/redisqueue"
	"github.com/kilianp07/medqueue/infra/sqlstore"
	"github.com/kilianp07/medqueue/internal/eventbus"
)

// Service owns every long-lived resource of the dispatch process.
type Service struct {
	Engine    *dispatch.Engine
	Scheduler *scheduler.Scheduler
	Store     store.Store

	cfg       *config.Config
	loop      *dispatch.Loop
	sink      coremetrics.MetricsSink
	bus       *eventbus.Bus
	publisher corenotify.Publisher
	redis     *redis.Client
	monitor   coremon.Monitor
	gatherer  prometheus.Gatherer
	log       logger.Logger
	closeLogs func() error
}

// New creates a Service from the configuration. Resources opened before a
// failure are released.
func New(ctx context.Context, cfg *config.Config) (svc *Service, err error) {
	closeLogs, err := logger.Configure(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	s := &Service{cfg: cfg, log: logger.New("service"), closeLogs: closeLogs, gatherer: prometheus.DefaultGatherer}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()

	if s.monitor, err = monitoring.NewSentryMonitor(cfg.Sentry); err != nil {
		return nil, fmt.Errorf("sentry: %w", err)
	}
	if s.Store, err = openStore(ctx, cfg); err != nil {
		return nil, err
	}
	index, locker, err := s.openQueue(ctx)
	if err != nil {
		return nil, err
	}
	if s.sink, err = coremetrics.NewMetricsSink(cfg.Metrics.Sinks); err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	scorer, err := newScorer(cfg.Prediction)
	if err != nil {
		return nil, err
	}
	s.bus = eventbus.New()

	reg := registry.New(s.Store, logger.New("registry"))
	s.Engine, err = dispatch.NewEngine(dispatch.Deps{
		Store:    s.Store,
		Index:    index,
		Locker:   locker,
		Registry: reg,
		Scorer:   scorer,
		Sink:     s.sink,
		Bus:      s.bus,
		Log:      logger.New("dispatch"),
		Monitor:  s.monitor,
	}, cfg.Dispatch)
	if err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}
	s.loop = s.Engine.NewLoop()

	if s.Scheduler, err = scheduler.New(cfg.Housekeeping, reg, s.bus, logger.New("housekeeping"), s.monitor); err != nil {
		return nil, fmt.Errorf("housekeeping: %w", err)
	}
	if s.publisher, err = corenotify.NewPublisher(cfg.Notify); err != nil {
		return nil, fmt.Errorf("notify: %w", err)
	}
	return s, nil
}

func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	if cfg.Store.Backend != config.BackendSQL {
		return store.NewMemoryStore(), nil
	}
	st, err := sqlstore.Open(ctx, cfg.Database, logger.New("sqlstore"))
	if err != nil {
		return nil, fmt.Errorf("database: %w", err)
	}
	if cfg.Store.Migrate {
		if _, err := st.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}
	return st, nil
}

func (s *Service) openQueue(ctx context.Context) (queue.DeadlineIndex, queue.Locker, error) {
	if s.cfg.Queue.Backend != config.BackendRedis {
		return queue.NewMemoryIndex(), queue.NewMemoryLocker(), nil
	}
	rdb, err := redisqueue.NewClient(ctx, s.cfg.Redis)
	if err != nil {
		return nil, nil, fmt.Errorf("redis: %w", err)
	}
	s.redis = rdb
	return redisqueue.NewIndex(rdb), redisqueue.NewLocker(rdb), nil
}

func newScorer(cfg config.PredictionConfig) (scoring.Scorer, error) {
	if cfg.Type != config.PredictionLinear {
		return scoring.Scorer{Predictor: coreprediction.Nop{}}, nil
	}
	m, err := prediction.Load(cfg.ModelPath)
	if err != nil {
		return scoring.Scorer{}, err
	}
	return scoring.Scorer{Predictor: m, Weight: cfg.Weight}, nil
}

// Run starts the dispatch loop, the housekeeping scheduler, the metrics
// endpoint and the bus consumers, and blocks until ctx is canceled or one
// of them fails.
func (s *Service) Run(ctx context.Context) error {
	if err := s.Reconcile(ctx); err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)

	collector := metrics.StartEventCollector(ctx, s.bus, s.sink)
	notified := corenotify.Forward(ctx, s.bus, s.publisher, logger.New("notify"), s.monitor)
	g.Go(func() error {
		<-collector
		<-notified
		return nil
	})

	g.Go(func() error { return s.loop.Run(ctx) })
	g.Go(func() error { return s.Scheduler.Run(ctx) })
	if addr := s.cfg.Metrics.PrometheusAddr; addr != "" {
		mux := metrics.NewHandler(s.gatherer)
		if s.cfg.API.Enabled {
			mux.Handle("/api/cases", casesapi.NewHandler(s.Engine, s.cfg.API.Token))
		}
		g.Go(func() error { return metrics.Serve(ctx, addr, mux) })
	}

	s.log.Infof("service started (store=%s queue=%s)", s.cfg.Store.Backend, s.cfg.Queue.Backend)
	err := g.Wait()
	s.log.Infof("service stopped")
	return err
}

// Reconcile rebuilds the deadline index of every hospital from the store so
// that a fresh or restarted queue backend starts from the pending cases. A
// hospital whose queue lock is held elsewhere is skipped: the holder is
// rebuilding or admitting into that queue already.
func (s *Service) Reconcile(ctx context.Context) error {
	hospitals, err := s.Engine.ListHospitals(ctx)
	if err != nil {
		return fmt.Errorf("list hospitals: %w", err)
	}
	for _, h := range hospitals {
		n, err := s.Engine.Rebuild(ctx, h.ID)
		if errors.Is(err, queue.ErrLockNotAcquired) {
			s.log.Warnf("hospital %s: queue busy, skipping reconcile", h.ID)
			continue
		}
		if err != nil {
			return fmt.Errorf("rebuild %s: %w", h.ID, err)
		}
		s.log.Debugf("hospital %s: %d pending cases indexed", h.ID, n)
	}
	return nil
}

// Close releases resources held by the service.
func (s *Service) Close() error {
	var errs []error
	if s.bus != nil {
		s.bus.Close()
	}
	if s.publisher != nil {
		errs = append(errs, s.publisher.Close())
	}
	if s.redis != nil {
		errs = append(errs, s.redis.Close())
	}
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.monitor != nil {
		s.monitor.Flush(flushTimeout)
	}
	if s.closeLogs != nil {
		errs = append(errs, s.closeLogs())
	}
	return errors.Join(errs...)
}

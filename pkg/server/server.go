package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"mercator-hq/switchboard/pkg/circuit"
	"mercator-hq/switchboard/pkg/config"
	"mercator-hq/switchboard/pkg/failover"
	"mercator-hq/switchboard/pkg/health"
	"mercator-hq/switchboard/pkg/providers"
	"mercator-hq/switchboard/pkg/proxy"
	"mercator-hq/switchboard/pkg/storage"
	"mercator-hq/switchboard/pkg/takeover"
	telhealth "mercator-hq/switchboard/pkg/telemetry/health"
	"mercator-hq/switchboard/pkg/telemetry/metrics"
	"mercator-hq/switchboard/pkg/telemetry/tracing"
	"mercator-hq/switchboard/pkg/usage"
	"mercator-hq/switchboard/pkg/usage/retention"
)

// ErrNotRunning is returned by operations that need a bound listener.
var ErrNotRunning = errors.New("server is not running")

// Options carries optional collaborators. Zero values are replaced by
// defaults built from the configuration.
type Options struct {
	// ConfigPath is the file watched for provider changes when watch.enabled
	// is set, and re-read by the reload endpoint.
	ConfigPath string

	// DB is the state database. When nil, New opens storage.path and Stop
	// closes it.
	DB *storage.DB

	Metrics *metrics.Collector
	Tracer  *tracing.Tracer
	Logger  *slog.Logger

	// Prober sends active health probes. Default: health.HTTPProber.
	Prober health.Prober

	// Client forwards requests upstream. Default: proxy.NewClient.
	Client *http.Client

	Version   string
	Commit    string
	BuildTime string
}

// Server is the loopback proxy. It owns the failover switch, health tracker,
// takeover manager and usage pipeline, and serves both proxied CLI traffic
// and the /_switchboard/ control API on one listener.
type Server struct {
	cfg  *config.Config
	opts Options

	db      *storage.DB
	ownsDB  bool
	sw      *failover.Switch
	tracker *health.Tracker
	tk      *takeover.Manager

	usageStore  usage.Store
	usageLogger *usage.Logger
	pruner      *retention.Pruner
	scheduler   *retention.Scheduler

	router  *proxy.Router
	checker *telhealth.Checker
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	logger  *slog.Logger
	handler http.Handler

	mu         sync.RWMutex
	started    bool
	running    bool
	port       int
	startedAt  time.Time
	httpServer *http.Server
	cancel     context.CancelFunc
	bg         sync.WaitGroup
	serveErr   chan error
	stopOnce   sync.Once
	stopErr    error

	// takeoverErrs holds takeover-on-start failures by app.
	takeoverErrs map[providers.App]error
}

// New wires a server from configuration. It opens the state database but
// does not bind the listener; call Start for that.
func New(cfg *config.Config, opts Options) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}

	reg, err := cfg.BuildRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build provider registry: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		opts:     opts,
		db:       opts.DB,
		metrics:  opts.Metrics,
		tracer:   opts.Tracer,
		logger:   opts.Logger,
		serveErr: make(chan error, 1),
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "server")
	if s.metrics == nil {
		s.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}
	if s.tracer == nil {
		s.tracer = tracing.Noop()
	}

	if s.db == nil {
		db, err := OpenStorage(context.Background(), cfg)
		if err != nil {
			return nil, err
		}
		s.db = db
		s.ownsDB = true
	}

	usageStore, err := usage.NewSQLiteStore(s.db)
	if err != nil {
		s.closeDB()
		return nil, err
	}
	s.usageStore = usageStore
	s.usageLogger = usage.NewLogger(usageStore, usage.Config{
		Enabled:      config.BoolValue(cfg.Usage.Enabled, true),
		AsyncBuffer:  cfg.Usage.AsyncBuffer,
		WriteTimeout: cfg.Usage.WriteTimeout,
	})
	s.pruner = retention.NewPruner(usageStore, &retention.Config{
		RetentionDays: cfg.Usage.Retention.Days,
		MaxRecords:    cfg.Usage.Retention.MaxRecords,
		PruneSchedule: cfg.Usage.Retention.PruneSchedule,
	})
	s.scheduler = retention.NewScheduler(s.pruner)

	s.sw = failover.New(reg, circuit.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	})

	client := opts.Client
	if client == nil {
		client = proxy.NewClient(cfg.Proxy)
	}
	prober := opts.Prober
	if prober == nil {
		prober = &health.HTTPProber{Client: client}
	}
	s.tracker = health.NewTracker(s.sw, prober, health.Config{
		ProbeInterval:    cfg.Health.ProbeInterval,
		ProbeTimeout:     cfg.Health.ProbeTimeout,
		ProbeMinInterval: cfg.Health.ProbeMinInterval,
	})

	s.tk = takeover.NewManager(takeover.NewSQLiteStore(s.db), TakeoverPaths(cfg, s.logger))
	s.tk.SetLiveCheck(ProxyAlive)

	s.router = proxy.NewRouter(s.sw, proxy.ConfigFrom(cfg.Proxy),
		proxy.WithClient(client),
		proxy.WithUsage(s.usageLogger),
		proxy.WithMetrics(s.metrics),
		proxy.WithTracer(s.tracer),
		proxy.WithLogger(s.logger),
	)

	s.checker = telhealth.New(5 * time.Second)
	s.checker.RegisterCheck("storage", s.db.Ping)
	s.checker.RegisterCheck("listener", func(ctx context.Context) error {
		if !s.IsRunning() {
			return ErrNotRunning
		}
		return nil
	})

	s.wireObservers()
	s.handler = s.routes()
	return s, nil
}

// wireObservers connects component callbacks to metrics.
func (s *Server) wireObservers() {
	m := s.metrics

	s.sw.OnTransition(func(app providers.App, tr circuit.Transition) {
		m.RecordBreakerTransition(app.String(), tr)
	})
	// Registered after the tracker's own observer, so the badge is current.
	s.sw.OnOutcome(func(app providers.App, id string, _ circuit.Outcome) {
		m.UpdateProviderHealth(app.String(), id, s.tracker.Badge(app, id) == health.Available)
	})
	s.tracker.OnProbe(func(app providers.App, id string, o circuit.Outcome) {
		m.RecordProbe(app.String(), id, o)
		m.UpdateProviderHealth(app.String(), id, s.tracker.Badge(app, id) == health.Available)
	})
	s.tk.OnChange(func(app providers.App, enabled bool) {
		m.SetTakeover(app.String(), enabled)
	})
	s.usageLogger.OnDrop(m.RecordUsageDrop)
	s.pruner.OnPrune(func(res retention.Result) {
		m.RecordPruned(res.Total())
	})

	for _, app := range providers.Apps() {
		for _, st := range s.sw.States(app) {
			m.RecordBreakerState(app.String(), st.ProviderID, st.Status)
		}
	}
}

// Start binds the loopback listener, recovers takeovers left by a previous
// run and starts serving. Backups of a proxy that still answers its health
// endpoint are left alone. It returns once the listener is serving.
// Takeover-on-start failures do not fail Start; see TakeoverFailures.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.started = true
	s.mu.Unlock()

	// A port conflict must fail before anything on disk is touched.
	addr := net.JoinHostPort(s.cfg.Proxy.ListenHost, strconv.Itoa(s.cfg.Proxy.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	s.tk.SetPort(port)

	// Recovery must finish before the listener accepts traffic.
	report, err := s.tk.Recover(ctx)
	for _, w := range report.Warnings {
		s.logger.Warn("takeover recovered with conflict", "app", w.App.String(), "warning", w.Error())
	}
	if err != nil {
		s.logger.Error("takeover recovery incomplete", "error", err)
	}

	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: s.cfg.Proxy.ReadHeaderTimeout,
		IdleTimeout:       s.cfg.Proxy.IdleTimeout,
		MaxHeaderBytes:    s.cfg.Proxy.MaxHeaderBytes,
		ErrorLog:          slog.NewLogLogger(s.logger.Handler(), slog.LevelWarn),
	}

	bgCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.running = true
	s.port = port
	s.startedAt = time.Now().UTC()
	s.cancel = cancel
	s.mu.Unlock()

	go func() {
		s.logger.Info("starting proxy server", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serveErr <- fmt.Errorf("server error: %w", err)
		}
	}()

	s.startBackground(bgCtx)

	failed := make(map[providers.App]error)
	for _, app := range s.cfg.TakeoverApps() {
		if err := s.tk.Enable(ctx, app); err != nil {
			s.logger.Error("takeover failed", "app", app.String(), "error", err)
			failed[app] = err
		}
	}
	s.mu.Lock()
	s.takeoverErrs = failed
	s.mu.Unlock()
	return nil
}

// TakeoverFailures returns the apps configured for takeover at startup that
// Start could not take over, with the reason.
func (s *Server) TakeoverFailures() map[providers.App]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[providers.App]error, len(s.takeoverErrs))
	for app, err := range s.takeoverErrs {
		out[app] = err
	}
	return out
}

func (s *Server) startBackground(ctx context.Context) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		if err := s.tracker.Run(ctx); err != nil {
			s.logger.Error("health probe loop failed", "error", err)
		}
	}()

	if err := s.scheduler.Start(ctx); err != nil {
		s.logger.Error("failed to start retention scheduler", "error", err)
	}

	if s.cfg.Watch.Enabled && s.opts.ConfigPath != "" {
		w, err := config.NewWatcher(s.opts.ConfigPath, s.cfg.Watch.Debounce, s.logger)
		if err != nil {
			s.logger.Error("config watch disabled", "error", err)
			return
		}
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			if err := w.Watch(ctx, s.Reload); err != nil {
				s.logger.Error("config watcher stopped", "error", err)
			}
			_ = w.Stop()
		}()
	}
}

// Run starts the server and blocks until ctx is cancelled or the listener
// fails, then stops it.
func (s *Server) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	return s.Wait(ctx)
}

// Wait blocks until ctx is cancelled or the listener fails, then stops the
// server. It is meant for callers that Start the server themselves.
func (s *Server) Wait(ctx context.Context) error {
	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
	case serveErr = <-s.serveErr:
	}
	return errors.Join(serveErr, s.Stop(context.Background()))
}

// Stop gracefully shuts the server down. In-flight requests get
// proxy.shutdown_timeout to finish; remaining connections are then closed.
// Live takeovers pointing at this proxy are restored before Stop returns
// when takeover.restore_on_stop is set. Stop is idempotent.
func (s *Server) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.stopErr = s.stop(ctx)
	})
	return s.stopErr
}

func (s *Server) stop(ctx context.Context) error {
	var errs []error

	s.mu.Lock()
	wasRunning := s.running
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	if wasRunning {
		s.logger.Info("initiating graceful shutdown", "timeout", s.cfg.Proxy.ShutdownTimeout.String())
		shutdownCtx, done := context.WithTimeout(ctx, s.cfg.Proxy.ShutdownTimeout)
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn("grace period elapsed, closing remaining connections", "error", err)
			if cerr := s.httpServer.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("server close error: %w", cerr))
			}
		}
		done()
	}

	if cancel != nil {
		cancel()
	}
	s.scheduler.Stop()
	s.bg.Wait()

	if wasRunning && config.BoolValue(s.cfg.Takeover.RestoreOnStop, true) {
		report, err := s.tk.RestoreAll(context.WithoutCancel(ctx))
		for _, w := range report.Warnings {
			s.logger.Warn("takeover restored with conflict", "app", w.App.String(), "warning", w.Error())
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("takeover restore: %w", err))
		}
	}

	if err := s.usageLogger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("usage logger: %w", err))
	}
	if err := s.closeDB(); err != nil {
		errs = append(errs, err)
	}

	if wasRunning {
		s.logger.Info("proxy server stopped")
	}
	return errors.Join(errs...)
}

func (s *Server) closeDB() error {
	if !s.ownsDB || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("storage close: %w", err)
	}
	return nil
}

// Port returns the bound port, or 0 before Start.
func (s *Server) Port() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.port
}

// Addr returns the base URL of the listener.
func (s *Server) Addr() string {
	return "http://" + net.JoinHostPort(s.cfg.Proxy.ListenHost, strconv.Itoa(s.Port()))
}

// IsRunning reports whether the listener is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Handler returns the full handler: control API, metrics and proxy routes
// behind the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Switch returns the failover switch.
func (s *Server) Switch() *failover.Switch { return s.sw }

// Takeover returns the takeover manager.
func (s *Server) Takeover() *takeover.Manager { return s.tk }

// Tracker returns the health tracker.
func (s *Server) Tracker() *health.Tracker { return s.tracker }

// Usage returns the request log store.
func (s *Server) Usage() usage.Store { return s.usageStore }

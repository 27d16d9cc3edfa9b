// Command graphserver wires the physics core, the binary broadcaster and
// the websocket session layer into a running process: load settings, seed
// the graph, start the adaptive tick loop, and serve sessions until a
// shutdown signal arrives.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/jjohare/logseqSpringThing-sub000/internal/broadcaster"
	"github.com/jjohare/logseqSpringThing-sub000/internal/config"
	"github.com/jjohare/logseqSpringThing-sub000/internal/graphstore"
	"github.com/jjohare/logseqSpringThing-sub000/internal/idmap"
	"github.com/jjohare/logseqSpringThing-sub000/internal/integrator"
	"github.com/jjohare/logseqSpringThing-sub000/internal/metrics"
	"github.com/jjohare/logseqSpringThing-sub000/internal/provider"
	"github.com/jjohare/logseqSpringThing-sub000/internal/scheduler"
	"github.com/jjohare/logseqSpringThing-sub000/internal/session"
	"github.com/jjohare/logseqSpringThing-sub000/internal/wire"
)

var configPath = flag.String("config", "./config.yaml", "path to the settings file")

func buildLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	var zlevel zap.AtomicLevel
	if err := zlevel.UnmarshalText([]byte(level)); err != nil {
		zlevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	cfg.Level = zlevel
	cfg.Encoding = "console"
	cfg.EncoderConfig.TimeKey = "ts"
	return cfg.Build()
}

func runApp() error {
	flag.Parse()

	settings, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "graphserver: no usable config at %s (%v), using defaults\n", *configPath, err)
		d := config.Defaults()
		settings = &d
	}

	log, err := buildLogger(settings.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	app, err := newApp(settings, log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return app.Run(ctx)
}

// app owns every long-lived component wired together for one run.
type app struct {
	settings    *config.Settings
	log         *zap.Logger
	store       *graphstore.GraphStore
	integrator  *integrator.Integrator
	scheduler   *scheduler.Scheduler
	broadcaster *broadcaster.Broadcaster
	metrics     *metrics.Metrics
	upgrader    websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session.Session

	seeded    chanOnceFlag
	backendUp chanOnceFlag
}

// chanOnceFlag is a trivial readiness latch: closed exactly once, its
// channel is select-able and its zero value is immediately "not ready".
type chanOnceFlag struct {
	once sync.Once
	ch   chan struct{}
}

func newFlag() chanOnceFlag { return chanOnceFlag{ch: make(chan struct{})} }

func (f *chanOnceFlag) set() {
	f.once.Do(func() { close(f.ch) })
}

func (f *chanOnceFlag) isSet() bool {
	select {
	case <-f.ch:
		return true
	default:
		return false
	}
}

func newApp(settings *config.Settings, log *zap.Logger) (*app, error) {
	ids := idmap.New()
	store := graphstore.New(ids, settings.Seed)

	src, err := loadProviderSource(settings, log)
	if err != nil {
		return nil, err
	}
	loader := provider.NewLoader(src, store)
	if err := loader.LoadOnce(context.Background()); err != nil {
		return nil, fmt.Errorf("seed graph: %w", err)
	}

	a := &app{
		settings:  settings,
		log:       log,
		store:     store,
		metrics:   metrics.New(),
		upgrader:  websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		sessions:  make(map[string]*session.Session),
		seeded:    newFlag(),
		backendUp: newFlag(),
	}
	a.seeded.set()

	backend, err := integrator.NewAcceleratorBackend(context.Background(), settings.AcceleratorModule)
	if err != nil {
		log.Warn("accelerator backend unavailable at startup, starting on cpu", zap.Error(err))
		backend = nil
	}
	a.integrator = integrator.New(store, wrapBackend(backend), settings.Seed, log)
	a.integrator.SetParams(settings.SimulationParams())
	a.backendUp.set()

	codec := wire.NewCodec(settings.CompressionEnabled, settings.CompressionThreshold)
	a.broadcaster = broadcaster.New(codec, log)

	schedCfg := scheduler.Config{
		MinRate:         settings.MinUpdateRate,
		MaxRate:         settings.MaxUpdateRate,
		MotionThreshold: settings.MotionThreshold,
		MotionDamping:   settings.MotionDamping,
	}
	a.scheduler = scheduler.New(schedCfg, a.integrator, store, log, a.onTick)

	return a, nil
}

// wrapBackend adapts a possibly-nil *integrator.AcceleratorBackend to the
// nil-Backend-interface convention integrator.New expects: a nil
// *AcceleratorBackend stored in a non-nil Backend interface value would
// compare non-nil, so this returns a literal nil interface instead.
func wrapBackend(b *integrator.AcceleratorBackend) integrator.Backend {
	if b == nil {
		return nil
	}
	return b
}

func loadProviderSource(settings *config.Settings, log *zap.Logger) (provider.Source, error) {
	if settings.GraphSeedPath == "" {
		log.Info("no graph_seed_path configured, using built-in demo graph")
		return provider.NewStaticSource(provider.DemoSnapshot()), nil
	}
	snap, err := provider.LoadFixture(settings.GraphSeedPath)
	if err != nil {
		return nil, err
	}
	return provider.NewStaticSource(snap), nil
}

// onTick runs after every successful Integrator tick: it updates the
// tick-rate/motion-fraction gauges, broadcasts the new snapshot, and
// refreshes the accelerator-in-use gauge.
func (a *app) onTick(rate float64, motionFraction float64) {
	a.metrics.TickRate.Set(rate)
	a.metrics.MotionFraction.Set(motionFraction)
	a.metrics.SetAcceleratorInUse(a.integrator.BackendName() == "wasm")
	a.broadcaster.Broadcast(a.store.Snapshot())
}

func (a *app) Run(ctx context.Context) error {
	schedCtx, schedCancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Run(schedCtx)
	}()

	router := a.buildRouter()
	httpServer := &http.Server{
		Addr:    a.settings.ListenAddr,
		Handler: router,
	}
	metricsServer := &http.Server{
		Addr:    a.settings.MetricsAddr,
		Handler: promhttp.Handler(),
	}

	serveErr := make(chan error, 2)
	go func() { serveErr <- httpServer.ListenAndServe() }()
	go func() { serveErr <- metricsServer.ListenAndServe() }()

	a.log.Info("graphserver listening",
		zap.String("listen_addr", a.settings.ListenAddr),
		zap.String("metrics_addr", a.settings.MetricsAddr),
		zap.String("graph_path", a.settings.GraphPath))

	select {
	case <-ctx.Done():
		a.log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			a.log.Error("server exited unexpectedly", zap.Error(err))
		}
	}

	schedCancel()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.settings.ShutdownGrace())
	defer cancel()

	a.closeAllSessions()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	wg.Wait()
	return nil
}

func (a *app) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc(a.settings.GraphPath, a.serveGraphSocket)
	r.HandleFunc(a.settings.SpeechPath, a.serveSpeechSocket)
	r.HandleFunc("/healthz", a.serveHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.serveReadyz).Methods(http.MethodGet)
	return r
}

func (a *app) serveHealthz(w http.ResponseWriter, r *http.Request) {
	if !a.seeded.isSet() || a.scheduler.Rate() <= 0 {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (a *app) serveReadyz(w http.ResponseWriter, r *http.Request) {
	if !a.seeded.isSet() || !a.backendUp.isSet() {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// serveSpeechSocket is a reserved placeholder: the speech/voice channel is
// an out-of-scope collaborator, so this upgrades the connection (so clients
// probing the route get a real handshake) and immediately closes it.
func (a *app) serveSpeechSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "speech channel not available"))
	conn.Close()
}

func (a *app) serveGraphSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	id := uuid.NewString()
	cfg := session.Config{
		HeartbeatInterval: a.settings.HeartbeatInterval(),
		HeartbeatTimeout:  a.settings.HeartbeatTimeout(),
		MaxMessageSize:    int64(a.settings.MaxMessageSize),
		MaxViolations:     int32(a.settings.MaxViolations),
		BackpressureGrace: 5 * time.Second,
		OverrideRateLimit: rate.Limit(a.settings.OverrideRateLimitHz),
		OverrideBurst:     a.settings.OverrideBurst,
	}
	s := session.New(id, conn, a.store, a.integrator, cfg, a.log)

	a.broadcaster.Register(id, s)
	a.mu.Lock()
	a.sessions[id] = s
	a.mu.Unlock()
	a.metrics.ActiveSessions.Inc()

	cause := s.Run(r.Context())

	a.metrics.ActiveSessions.Dec()
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()
	a.broadcaster.Remove(id)

	a.log.Debug("session closed", zap.String("session_id", id), zap.String("cause", cause.String()))
}

// closeAllSessions asks every open session to close with a "going away"
// code, giving serveGraphSocket's own cleanup (broadcaster.Remove, map
// deletion) a chance to run as each Session.Run returns.
func (a *app) closeAllSessions() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.sessions {
		s.Shutdown()
	}
}

func main() {
	if err := runApp(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

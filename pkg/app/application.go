package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"clinicflow/pkg/config"
	"clinicflow/pkg/contracts"
	"clinicflow/pkg/middleware"

	"github.com/julienschmidt/httprouter"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Worker is a background loop that runs until the application stops.
type Worker interface {
	Run(ctx context.Context)
}

// Handlers groups the route sets served by the application.
type Handlers struct {
	Health   contracts.Handler
	Queue    contracts.Handler
	Realtime contracts.Handler
}

type Application struct {
	cfg              *config.Config
	server           *http.Server
	idempotencyStore *middleware.InMemoryIdempotencyStore
	rateLimiter      *middleware.TerminalRateLimiter
	healthHandler    http.Handler
	realtimeHandler  http.Handler
	appHttpHandler   http.Handler

	workers       []Worker
	stopWorkers   context.CancelFunc
	workersDone   chan struct{}
	shutdownHooks []func(context.Context) error
}

func NewApplication() *Application {
	return &Application{}
}

func (a *Application) SetApp(cfg *config.Config, handlers Handlers, workers ...Worker) {
	a.cfg = cfg
	a.workers = workers
	a.setHealthHandler(handlers.Health)
	a.setRealtimeHandler(handlers.Realtime)
	a.setAppHandler(handlers.Queue)
	a.setAppServer()
}

// OnShutdown registers a hook run after the HTTP server has stopped.
// Hooks run in reverse registration order.
func (a *Application) OnShutdown(hook func(context.Context) error) {
	a.shutdownHooks = append(a.shutdownHooks, hook)
}

func (a *Application) setHealthHandler(h contracts.Handler) {
	healthRouter := httprouter.New()
	h.RegisterRoutes(healthRouter)

	var healthHTTPHandler http.Handler = healthRouter
	healthHTTPHandler = middleware.RequestLogging(a.cfg.Log)(healthHTTPHandler)
	healthHTTPHandler = middleware.Recovery(a.cfg.Log)(healthHTTPHandler)
	a.healthHandler = healthHTTPHandler
	a.cfg.Log.Info("Health endpoints configured with minimal middleware (Recovery + Logging only)")
}

// setRealtimeHandler serves the display socket. Upgraded connections are
// long lived, so the request timeout and body checks do not apply.
func (a *Application) setRealtimeHandler(h contracts.Handler) {
	realtimeRouter := httprouter.New()
	h.RegisterRoutes(realtimeRouter)

	var realtimeHTTPHandler http.Handler = realtimeRouter
	realtimeHTTPHandler = middleware.RequestLogging(a.cfg.Log)(realtimeHTTPHandler)
	realtimeHTTPHandler = middleware.Recovery(a.cfg.Log)(realtimeHTTPHandler)
	a.realtimeHandler = realtimeHTTPHandler
	a.cfg.Log.Info("Realtime endpoints configured without request timeout")
}

func (a *Application) setAppHandler(h contracts.Handler) {
	appRouter := httprouter.New()
	h.RegisterRoutes(appRouter)

	a.idempotencyStore = middleware.NewInMemoryIdempotencyStore(a.cfg.IdempotencyTTL)
	a.rateLimiter = middleware.NewTerminalRateLimiter(
		a.cfg.RateLimitRequests,
		a.cfg.RateLimitWindow,
		middleware.DefaultTerminalExtractor,
		a.cfg.Log,
	)

	var appHttpHandler http.Handler = appRouter
	appHttpHandler = middleware.Idempotency(a.idempotencyStore, middleware.HeaderIdempotencyKey)(appHttpHandler)
	appHttpHandler = middleware.RequestTimeout(a.cfg.RequestTimeout)(appHttpHandler)
	appHttpHandler = middleware.TerminalRateLimit(a.rateLimiter)(appHttpHandler)
	appHttpHandler = middleware.ContentTypeValidation(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.MaxRequestSize(int64(a.cfg.MaxRequestSize))(appHttpHandler)
	appHttpHandler = middleware.RequestLogging(a.cfg.Log)(appHttpHandler)
	appHttpHandler = middleware.Recovery(a.cfg.Log)(appHttpHandler)
	a.appHttpHandler = appHttpHandler
	a.cfg.Log.Info("Application endpoints configured with full middleware stack")
}

func (a *Application) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/health", a.healthHandler)
	mux.Handle("/ready", a.healthHandler)
	mux.Handle("/ws", a.realtimeHandler)
	mux.Handle("/api/v1/realtime/", a.realtimeHandler)
	mux.Handle("/", a.appHttpHandler)

	return otelhttp.NewHandler(mux, "clinicflow.http",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

func (a *Application) setAppServer() {
	a.server = &http.Server{
		Addr:         ":" + a.cfg.Port,
		Handler:      a.routes(),
		ReadTimeout:  a.cfg.ReadTimeout,
		WriteTimeout: a.cfg.WriteTimeout,
		IdleTimeout:  a.cfg.IdleTimeout,
	}

	a.cfg.Log.Info("HTTP server configured", "port", a.cfg.Port)
}

func (a *Application) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	a.stopWorkers = cancel
	a.workersDone = make(chan struct{})

	remaining := make(chan struct{}, len(a.workers))
	for _, w := range a.workers {
		go func(w Worker) {
			defer func() { remaining <- struct{}{} }()
			w.Run(ctx)
		}(w)
	}
	go func() {
		for range a.workers {
			<-remaining
		}
		close(a.workersDone)
	}()

	a.cfg.Log.Info("Background workers started", "count", len(a.workers))
}

func (a *Application) Run() {
	a.startWorkers()

	serverErrors := make(chan error, 1)

	go func() {
		a.cfg.Log.Info("Starting HTTP server", "address", a.server.Addr)
		serverErrors <- a.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		a.cfg.Log.Fatal("HTTP server failed", "error", err)

	case sig := <-shutdown:
		a.cfg.Log.Info("Shutdown signal received", "signal", sig)
		a.gracefulShutdown()
	}
}

func (a *Application) gracefulShutdown() {
	a.cfg.Log.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil {
		a.cfg.Log.Error("Server shutdown failed", "error", err)
		if err := a.server.Close(); err != nil {
			a.cfg.Log.Fatal("Could not stop server gracefully", "error", err)
		}
	}
	a.cfg.Log.Info("Server stopped gracefully")

	a.cfg.Log.Info("Stopping background workers...")
	a.idempotencyStore.Stop()
	a.rateLimiter.Stop()
	a.stopWorkers()
	select {
	case <-a.workersDone:
		a.cfg.Log.Info("Background workers stopped")
	case <-ctx.Done():
		a.cfg.Log.Warn("Background workers did not stop before shutdown timeout")
	}

	for i := len(a.shutdownHooks) - 1; i >= 0; i-- {
		if err := a.shutdownHooks[i](ctx); err != nil {
			a.cfg.Log.Error("Shutdown hook failed", "error", err)
		}
	}

	a.cfg.Client.GracefulShutdown(a.cfg.Log, a.cfg.ShutdownTimeout)
}

// Command harvey runs the Harvey agent core: the chat facade with the
// ReAct loop, or (with the "mcp" subcommand) the first-party MCP server
// over stdio.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/isa-group/harvey/internal/adapter/amint"
	"github.com/isa-group/harvey/internal/adapter/analysis"
	"github.com/isa-group/harvey/internal/adapter/fsblob"
	harveyhttp "github.com/isa-group/harvey/internal/adapter/http"
	harveymcp "github.com/isa-group/harvey/internal/adapter/mcp"
	harveynats "github.com/isa-group/harvey/internal/adapter/nats"
	"github.com/isa-group/harvey/internal/adapter/openai"
	harveyotel "github.com/isa-group/harvey/internal/adapter/otel"
	"github.com/isa-group/harvey/internal/adapter/postgres"
	"github.com/isa-group/harvey/internal/adapter/redis"
	"github.com/isa-group/harvey/internal/adapter/ristretto"
	"github.com/isa-group/harvey/internal/adapter/ws"
	"github.com/isa-group/harvey/internal/bus"
	"github.com/isa-group/harvey/internal/config"
	"github.com/isa-group/harvey/internal/logger"
	"github.com/isa-group/harvey/internal/port/blobstore"
	"github.com/isa-group/harvey/internal/port/broadcast"
	"github.com/isa-group/harvey/internal/port/cache"
	"github.com/isa-group/harvey/internal/resilience"
	"github.com/isa-group/harvey/internal/service"
)

// Exit codes of the launcher.
const (
	exitOK       = 0
	exitConfig   = 2
	exitBind     = 3
	exitUpstream = 4
)

var errBind = errors.New("bind failed")
var errUpstream = errors.New("upstream unreachable")

func main() {
	configPath := flag.String("config", config.DefaultConfigFile, "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.LoadFrom(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(exitConfig)
	}

	log, logCloser := logger.New(cfg.Logging)
	slog.SetDefault(log)

	var runErr error
	if flag.Arg(0) == "mcp" {
		runErr = runMCP(cfg)
	} else {
		runErr = run(cfg)
	}

	code := exitOK
	switch {
	case runErr == nil:
	case errors.Is(runErr, errBind):
		slog.Error("bind failed", "error", runErr)
		code = exitBind
	case errors.Is(runErr, errUpstream):
		slog.Error("upstream unreachable", "error", runErr)
		code = exitUpstream
	default:
		slog.Error("fatal", "error", runErr)
		code = 1
	}

	logCloser.Close()
	os.Exit(code)
}

// run starts the chat facade.
func run(cfg *config.Config) error {
	ctx := context.Background()

	shutdownTelemetry, err := harveyotel.Setup(ctx, cfg.Telemetry, cfg.Logging.Service)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(shutdownCtx)
	}()

	metrics, err := harveyotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	// --- Downstream adapters ---
	extractorClient := amint.NewClient(cfg.AMint)
	extractorClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	analysisClient := analysis.NewClient(cfg.Analysis)
	analysisClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	llmClient := openai.NewClient(cfg.LLM)
	llmClient.SetBreaker(resilience.NewBreaker(cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))

	if ok, err := extractorClient.Health(ctx); err != nil || !ok {
		return fmt.Errorf("%w: amint at %s: %v", errUpstream, cfg.AMint.BaseURL, err)
	}
	if ok, err := analysisClient.Health(ctx); err != nil || !ok {
		return fmt.Errorf("%w: analysis at %s: %v", errUpstream, cfg.Analysis.BaseURL, err)
	}

	// --- Cache backend ---
	var byteCache cache.Cache
	switch cfg.Cache.Backend {
	case "redis":
		redisCache, err := redis.New(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			return fmt.Errorf("%w: redis at %s: %v", errUpstream, cfg.Cache.RedisAddr, err)
		}
		defer func() { _ = redisCache.Close() }()
		byteCache = redisCache
	default:
		l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
		if err != nil {
			return fmt.Errorf("ristretto: %w", err)
		}
		defer l1.Close()
		byteCache = l1
	}

	// --- Notification bus ---
	eventBus := bus.New(cfg.Bus.QueueSize, cfg.Bus.MaxOverflow)
	hub := ws.NewHub()
	publishers := bus.Fanout{eventBus, hub}
	if cfg.Bus.Backend == "nats" {
		natsPub, err := harveynats.Connect(ctx, cfg.Bus.NATSURL)
		if err != nil {
			return fmt.Errorf("%w: nats at %s: %v", errUpstream, cfg.Bus.NATSURL, err)
		}
		defer func() { _ = natsPub.Close() }()
		publishers = append(publishers, natsPub)
	}

	// --- Blob store ---
	var blobs blobstore.Store
	switch cfg.Blob.Backend {
	case "postgres":
		pool, err := postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("%w: postgres: %v", errUpstream, err)
		}
		defer pool.Close()
		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		blobs = postgres.NewBlobStore(pool)
	default:
		fsStore, err := fsblob.New(cfg.Blob.Dir)
		if err != nil {
			return fmt.Errorf("blob dir: %w", err)
		}
		blobs = fsStore
	}

	// --- Services ---
	pricingCache := service.NewPricingCache(cfg.Cache, byteCache, extractorClient, publishers)
	pricingCache.SetMetrics(metrics)

	grounding := service.NewGrounding(cfg.Grounding)
	workflow := service.NewWorkflow(pricingCache, analysisClient, grounding)

	registry := service.NewRegistry()
	service.RegisterBuiltins(registry, workflow)

	// Tool source: in-process registry by default; MCP host when an
	// external server command is configured.
	var toolSource service.ToolSource = registry
	if cfg.MCP.Command != "" {
		host := harveymcp.NewHost(cfg.MCP)
		defer func() { _ = host.Close() }()
		toolSource = service.NewMCPToolSource(host, registry)
	}

	sessions := service.NewSessionManager(cfg.Session)
	gcCtx, stopGC := context.WithCancel(ctx)
	defer stopGC()
	sessions.StartGC(gcCtx)

	agent := service.NewAgent(llmClient, toolSource, cfg.Agent, cfg.LLM)
	agent.SetMetrics(metrics)

	chat := service.NewChatService(sessions, pricingCache, agent)
	blobSvc := service.NewBlobService(blobs, cfg.Blob)

	// --- HTTP ---
	handlers := &harveyhttp.Handlers{
		Chat:  chat,
		Blobs: blobSvc,
		Bus:   eventBus,
	}

	r := chi.NewRouter()
	r.Use(harveyhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(harveyhttp.Logger)
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.Telemetry.Enabled {
		r.Use(harveyotel.HTTPMiddleware(cfg.Logging.Service))
	}

	r.Get("/ws", hub.HandleWS)
	harveyhttp.MountRoutes(r, handlers)

	addr := net.JoinHostPort(cfg.Server.Host, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", errBind, addr, err)
	}

	srv := &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// runMCP serves the tool registry over stdio MCP.
func runMCP(cfg *config.Config) error {
	extractorClient := amint.NewClient(cfg.AMint)
	analysisClient := analysis.NewClient(cfg.Analysis)

	l1, err := ristretto.New(cfg.Cache.MaxSizeMB << 20)
	if err != nil {
		return fmt.Errorf("ristretto: %w", err)
	}
	defer l1.Close()

	eventBus := bus.New(cfg.Bus.QueueSize, cfg.Bus.MaxOverflow)
	var publisher broadcast.Publisher = eventBus

	pricingCache := service.NewPricingCache(cfg.Cache, l1, extractorClient, publisher)
	grounding := service.NewGrounding(cfg.Grounding)
	workflow := service.NewWorkflow(pricingCache, analysisClient, grounding)

	registry := service.NewRegistry()
	service.RegisterBuiltins(registry, workflow)

	slog.Info("serving MCP over stdio")
	return harveymcp.NewServer(registry).ServeStdio()
}

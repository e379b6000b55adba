// Package main is the entry point of the application
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tecu23/chess-relay/pkg/config"
	"github.com/tecu23/chess-relay/pkg/engine"
	"github.com/tecu23/chess-relay/pkg/events"
	"github.com/tecu23/chess-relay/pkg/game"
	"github.com/tecu23/chess-relay/pkg/manager"
	"github.com/tecu23/chess-relay/pkg/metrics"
	"github.com/tecu23/chess-relay/pkg/repository"
	"github.com/tecu23/chess-relay/pkg/server"
)

// App encapsulates global dependencies
type application struct {
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Manager   *manager.Manager
	Hub       *server.Hub
	Engines   *engine.Pool
	Registry  *prometheus.Registry
	Server    *http.Server

	upgrader  websocket.Upgrader
	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "", "server port (overrides PORT)")
	flag.Parse()

	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}
	if *debug {
		cfg.Debug = true
	}
	if *port != "" {
		cfg.Port = *port
	}

	// Initialize logger
	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	if envErr != nil {
		logger.Warn("no .env file loaded, using process environment", zap.Error(envErr))
	}

	// Initialize event publisher and metrics
	publisher := events.NewPublisher()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.New(registry).Observe(publisher)

	// Initialize repository
	repo := repository.NewInMemoryRepository(logger)

	// Initialize game manager
	gm := manager.NewManager(repo, game.NewChessRules(), publisher, logger)

	var hubOpts []server.Option

	// Initialize engine pool
	var enginePool *engine.Pool
	if cfg.EngineEnabled() {
		enginePool = engine.NewEnginePool(cfg.EnginePath, cfg.EnginePoolSize, cfg.EngineMovetime, cfg.EngineOptions, logger)
		if err := enginePool.Initialize(); err != nil {
			logger.Fatal("initialize engine error", zap.Error(err))
		}
		hubOpts = append(hubOpts, server.WithEngine(enginePool, cfg.EngineTimeout))
	} else {
		logger.Info("ENGINE_PATH not set, engine moves disabled")
	}

	hub := server.NewHub(gm, publisher, logger, hubOpts...)

	app := newApplication(cfg, logger, publisher, gm, hub, enginePool, registry)

	go app.Hub.Run()

	err = app.serve()
	if err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func newApplication(
	cfg *config.Config,
	logger *zap.Logger,
	publisher *events.Publisher,
	gm *manager.Manager,
	hub *server.Hub,
	engines *engine.Pool,
	registry *prometheus.Registry,
) *application {
	app := &application{
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Manager:   gm,
		Hub:       hub,
		Engines:   engines,
		Registry:  registry,
		StartTime: time.Now(),
	}

	app.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,

		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || cfg.AllowsOrigin(origin)
		},
	}

	return app
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	// Shut down hub
	if app.Hub != nil {
		app.Hub.Shutdown()
	}

	if app.Engines != nil {
		app.Engines.Shutdown()
	}

	app.Publisher.Wait()

	app.Logger.Info("All components shut down successfully")
}

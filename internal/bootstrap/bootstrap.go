package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"image-processor-go/internal/core/providers/vlllm"
	"image-processor-go/internal/domain/eventbus"
	eventinfra "image-processor-go/internal/domain/eventbus/infrastructure"
	"image-processor-go/internal/domain/eventbus/repository"
	domainimage "image-processor-go/internal/domain/image"
	"image-processor-go/internal/domain/session"
	"image-processor-go/internal/domain/session/store"
	platformconfig "image-processor-go/internal/platform/config"
	platformerrors "image-processor-go/internal/platform/errors"
	platformlogging "image-processor-go/internal/platform/logging"
	platformobservability "image-processor-go/internal/platform/observability"
	platformstorage "image-processor-go/internal/platform/storage"
	httptransport "image-processor-go/internal/transport/http"
	"image-processor-go/internal/transport/http/studio"
	"image-processor-go/internal/transport/ws"
	"image-processor-go/internal/utils"
)

const (
	eventWorkers   = 4
	eventRetention = 7 * 24 * time.Hour
	cameraPath     = "/ws/camera"
)

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	config                *platformconfig.Config
	configPath            string
	generatedSecret       bool
	logProvider           *platformlogging.Logger
	logger                *utils.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	db                    *gorm.DB
	store                 store.Store
	bus                   *eventbus.AsyncEventBus
	events                repository.EventRepository
	provider              *vlllm.Provider
	pipeline              *domainimage.Pipeline
	sessions              *session.Service
}

// Run 启动整个服务生命周期，负责加载配置、初始化依赖和优雅关停。
func Run(ctx context.Context) error {
	state := &appState{}
	defer state.close()

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	logger := state.logger
	if state.config == nil || logger == nil || state.sessions == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger/session service not initialised",
		)
	}

	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		_ = group.Wait()
		return err
	}

	return waitForShutdown(signalCtx, groupCtx, cancel, logger, group)
}

// close releases everything the init steps acquired, in reverse order.
func (s *appState) close() {
	logger := s.logger
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.store.Close(ctx); err != nil {
			logger.WarnTag("Boot", "session store did not close cleanly: %v", err)
		}
		cancel()
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			logger.WarnTag("Boot", "database did not close cleanly: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(ctx); err != nil {
			logger.WarnTag("Boot", "observability did not shut down cleanly: %v", err)
		}
		cancel()
	}
	if s.logProvider != nil {
		logger.InfoTag("Boot", "shutdown complete")
		_ = s.logProvider.Close()
	}
}

func logBootstrapGraph(steps []initStep, logger *utils.Logger) {
	if logger == nil {
		return
	}
	logger.InfoTag("Boot", "init graph overview")
	for i, step := range steps {
		deps := "-"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		logger.InfoTag("Boot", "%d. %s (%s) after [%s]", i+1, step.ID, step.Title, deps)
	}
	logger.InfoTag("Boot", "starting services")
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"execute init steps",
			"nil bootstrap state",
		)
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(
					platformerrors.KindBootstrap,
					step.ID,
					fmt.Sprintf("dependency %s not satisfied", dep),
				)
			}
		}
		if step.Execute == nil {
			return platformerrors.New(
				platformerrors.KindBootstrap,
				step.ID,
				"missing execute function",
			)
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}

			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the init steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Initialise database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "session:init-store",
			Title:     "Initialise session store",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initSessionStoreStep,
		},
		{
			ID:        "eventbus:init",
			Title:     "Initialise event bus",
			DependsOn: []string{"storage:init-database", "observability:setup-hooks"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initEventBusStep,
		},
		{
			ID:        "vision:init-provider",
			Title:     "Initialise vision provider",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindVision,
			Execute:   initVisionStep,
		},
		{
			ID:        "image:init-pipeline",
			Title:     "Initialise image pipeline",
			DependsOn: []string{"config:load", "logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPipelineStep,
		},
		{
			ID:        "session:init-service",
			Title:     "Initialise session service",
			DependsOn: []string{"session:init-store", "eventbus:init", "vision:init-provider", "image:init-pipeline"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initSessionServiceStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configPath = result.Path
	state.generatedSecret = result.GeneratedSecret
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"logging:init-provider",
			"config not loaded",
		)
	}

	logProvider, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logProvider = logProvider
	state.logger = logProvider.Legacy()
	state.slogger = logProvider.Slog()
	utils.DefaultLogger = state.logger

	state.logger.InfoTag("Boot", "logger ready [%s] config=%s", state.config.Log.Level, state.configPath)
	if state.generatedSecret {
		state.logger.WarnTag("Boot", "server.token not set, using a random secret; session cookies reset on restart (set SERVER_TOKEN)")
	}
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	if state == nil || state.logger == nil || state.config == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"observability:setup-hooks",
			"config/logger not initialised",
		)
	}

	slogger := state.slogger
	if slogger == nil {
		slogger = state.logger.Slog()
	}

	shutdown, err := platformobservability.Setup(ctx, platformobservability.Config{
		Enabled: state.config.Obs.Enabled,
	}, slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

// initDatabaseStep opens the SQLite database. It backs the event log and,
// when selected, the session store.
func initDatabaseStep(_ context.Context, state *appState) error {
	db, err := platformstorage.Open(state.config.Session.SQLite.DSN)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "storage:init-database", "failed to initialize database", err)
	}
	state.db = db
	state.logger.InfoTag("Boot", "database ready: %s", state.config.Session.SQLite.DSN)
	return nil
}

func initSessionStoreStep(_ context.Context, state *appState) error {
	cfg := state.config.Session
	storeCfg := store.Config{
		Driver: cfg.Store,
		TTL:    cfg.TTL,
		Memory: &store.MemoryConfig{GCInterval: cfg.Cleanup},
	}
	if cfg.Store == store.DriverRedis {
		storeCfg.Redis = &store.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		}
	}

	s, err := store.New(storeCfg, store.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindStorage, "session:init-store", "failed to create session store", err)
	}
	state.store = s
	state.logger.InfoTag("Boot", "session store ready: driver=%s ttl=%s", cfg.Store, cfg.TTL)
	return nil
}

func initEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.New(eventWorkers, state.logger)
	events := eventinfra.NewEventRepository(state.db)
	handler := eventbus.NewDefaultEventHandler(state.logger, events)
	if err := eventbus.SetupEventHandlers(bus, handler); err != nil {
		bus.Stop()
		return platformerrors.Wrap(platformerrors.KindBootstrap, "eventbus:init", "failed to subscribe event handlers", err)
	}
	state.bus = bus
	state.events = events
	return nil
}

func initVisionStep(_ context.Context, state *appState) error {
	name, cfg, ok := state.config.SelectedVLLLM()
	if !ok {
		return platformerrors.New(
			platformerrors.KindConfig,
			"vision:init-provider",
			fmt.Sprintf("selected VLLLM provider %q not configured", state.config.Selected.VLLLM),
		)
	}
	provider, err := vlllm.NewProvider(vlllm.FromConfig(name, cfg), state.logger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindVision, "vision:init-provider", "failed to create vision provider", err)
	}
	state.provider = provider
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	security := platformconfig.DefaultSecurity()
	if _, cfg, ok := state.config.SelectedVLLLM(); ok {
		security = cfg.Security
	}
	pipeline, err := domainimage.NewPipeline(domainimage.Options{
		Security: security,
		Logger:   state.logger,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "image:init-pipeline", "failed to create image pipeline", err)
	}
	state.pipeline = pipeline
	return nil
}

func initSessionServiceStep(_ context.Context, state *appState) error {
	sessions, err := session.NewService(session.Options{
		Repo:           state.store,
		Images:         state.pipeline,
		Vision:         state.provider,
		Events:         state.bus,
		Logger:         state.logger,
		MaxPromptRunes: state.config.Web.MaxPromptRunes,
	})
	if err != nil {
		return err
	}
	state.sessions = sessions
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	httpRouter, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
		Static: studio.Assets(),
	})
	if err != nil {
		return nil, err
	}
	router := httpRouter.Engine

	router.NoRoute(func(c *gin.Context) {
		if strings.HasPrefix(c.Request.URL.Path, "/api") {
			c.JSON(http.StatusNotFound, httptransport.APIResponse{
				Success: false,
				Data:    gin.H{},
				Message: "api not found",
				Code:    http.StatusNotFound,
			})
			return
		}
		c.Redirect(http.StatusSeeOther, "/")
	})

	signer, err := session.NewTokenSigner(config.Server.Token, config.Server.CookieTTL)
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindConfig, "http:init-identity", "failed to create cookie signer", err)
	}
	identity := httptransport.NewIdentity(signer, config.Server.SecureCookie)

	studioService, err := studio.NewService(studio.Options{
		Config:   config,
		Logger:   logger,
		Sessions: state.sessions,
		Identity: identity,
		Vision:   state.provider,
		Pipeline: state.pipeline,
		Store:    state.store,
	})
	if err != nil {
		return nil, platformerrors.Wrap(platformerrors.KindTransport, "studio:new-service", "failed to create studio service", err)
	}
	if err := studioService.Register(groupCtx, httpRouter); err != nil {
		return nil, err
	}

	if config.Camera.Enabled {
		mountCamera(state, router, identity, g, groupCtx)
	}

	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Web.Port),
		Handler: router,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "server listening on http://localhost:%d", config.Web.Port)
		logger.InfoTag("HTTP", "API docs at http://localhost:%d/docs", config.Web.Port)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "server shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "server failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

// mountCamera serves the live capture websocket on the main HTTP port.
func mountCamera(state *appState, router *gin.Engine, identity *httptransport.Identity, g *errgroup.Group, groupCtx context.Context) {
	config := state.config
	logger := state.logger

	feeds := ws.NewFeeds(logger)
	camera := ws.NewCamera(ws.CameraOptions{
		Sessions:     state.sessions,
		Resolver:     identity,
		Events:       state.bus,
		Logger:       logger,
		MaxFrameSize: config.Camera.MaxFrameSize,
		IdleTimeout:  config.Camera.IdleTimeout,
	})
	wsRouter := ws.NewRouter(feeds, logger, ws.RouterOptions{BaseContext: groupCtx})
	wsRouter.SetHandlerBuilder(camera.Builder())
	router.GET(cameraPath, gin.WrapF(wsRouter.Handle))

	g.Go(func() error {
		<-groupCtx.Done()
		feeds.CloseAll(ws.ErrSessionShutdown)
		return nil
	})
	logger.InfoTag("WebSocket", "camera feed mounted at %s", cameraPath)
}

// startCleanup expires idle sessions and prunes the event log on a ticker.
func startCleanup(state *appState, g *errgroup.Group, groupCtx context.Context) {
	interval := state.config.Session.Cleanup
	logger := state.logger

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				if err := state.store.CleanupExpired(groupCtx); err != nil {
					logger.WarnTag("Session", "cleanup expired sessions failed: %v", err)
				}
				if state.events != nil {
					before := time.Now().Add(-eventRetention)
					if err := state.events.DeleteOldEvents(groupCtx, before); err != nil {
						logger.WarnTag("Event", "prune events failed: %v", err)
					}
				}
			}
		}
	})
}

func waitForShutdown(
	ctx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *utils.Logger,
	g *errgroup.Group,
) error {
	select {
	case <-ctx.Done():
		logger.InfoTag("Boot", "received %v, shutting down", context.Cause(ctx))
	case <-groupCtx.Done():
		logger.WarnTag("Boot", "a service stopped: %v", context.Cause(groupCtx))
	}

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("Boot", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("Boot", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("Boot", "shutdown timed out, forcing exit")
		return errors.New("shutdown timed out")
	}
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	startCleanup(state, g, groupCtx)
	return nil
}

// loadConfigAndLogger 加载配置和日志记录器（用于测试）
func loadConfigAndLogger() (*platformconfig.Config, *utils.Logger, error) {
	state := &appState{}
	steps := InitGraph()[:2]
	if err := executeInitSteps(context.Background(), steps, state); err != nil {
		return nil, nil, err
	}
	return state.config, state.logger, nil
}

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

	"imalink-core-go/internal/domain/eventbus"
	"imalink-core-go/internal/domain/photo"
	"imalink-core-go/internal/domain/rawimage"
	platformcache "imalink-core-go/internal/platform/cache"
	platformconfig "imalink-core-go/internal/platform/config"
	platformerrors "imalink-core-go/internal/platform/errors"
	platformlogging "imalink-core-go/internal/platform/logging"
	platformobservability "imalink-core-go/internal/platform/observability"
	httptransport "imalink-core-go/internal/transport/http"
	httpprocess "imalink-core-go/internal/transport/http/process"
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
	logger                *platformlogging.Logger
	slogger               *slog.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	records               *platformcache.RecordCache
	pipeline              *photo.Pipeline
}

// Run drives the whole service lifecycle: configuration, dependency
// initialisation, HTTP serving and graceful shutdown.
func Run(ctx context.Context) error {
	state := &appState{}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		return err
	}

	config := state.config
	logger := state.logger
	if config == nil || logger == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"config/logger not initialised",
		)
	}
	if state.pipeline == nil {
		return platformerrors.New(
			platformerrors.KindBootstrap,
			"bootstrap state validation",
			"pipeline not initialised",
		)
	}

	if shutdown := state.observabilityShutdown; shutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				logger.WarnTag("BOOT", "observability did not shut down cleanly: %v", err)
			}
		}()
	}

	if state.records != nil {
		defer func() {
			if err := state.records.Close(); err != nil {
				logger.WarnTag("CACHE", "record cache did not close cleanly: %v", err)
			}
		}()
	}

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)

	if _, err := startHTTPServer(state, group, groupCtx); err != nil {
		cancel()
		return fmt.Errorf("starting HTTP service failed: %w", err)
	}

	if err := waitForShutdown(signalCtx, cancel, logger, group); err != nil {
		return err
	}

	logger.InfoTag("BOOT", "service stopped")
	logger.Close()
	return nil
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
			ID:        "bus:subscribe-handlers",
			Title:     "Subscribe event handlers",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   subscribeEventHandlersStep,
		},
		{
			ID:        "raw:register-capability",
			Title:     "Register RAW decode capability",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   registerRawCapabilityStep,
		},
		{
			ID:        "cache:init",
			Title:     "Initialise record cache",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindCache,
			Execute:   initCacheStep,
		},
		{
			ID:        "pipeline:init",
			Title:     "Initialise processing pipeline",
			DependsOn: []string{"raw:register-capability", "bus:subscribe-handlers"},
			Kind:      platformerrors.KindBootstrap,
			Execute:   initPipelineStep,
		},
	}
}

func loadConfigStep(_ context.Context, state *appState) error {
	result, err := platformconfig.NewLoader().WithDotEnv(true).Load()
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindConfig, "config:load", "failed to load configuration", err)
	}
	state.config = result.Config
	state.configPath = result.Path
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

	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}

	state.logger = logger
	state.slogger = logger.Slog()
	platformlogging.DefaultLogger = logger

	logger.InfoTag("BOOT", "logging ready [%s] config from %s", state.config.Log.Level, state.configPath)
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

	cfg := platformobservability.Config{
		Enabled: strings.EqualFold(state.config.Log.Level, "debug"),
	}

	shutdown, err := platformobservability.Setup(ctx, cfg, state.slogger)
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func subscribeEventHandlersStep(_ context.Context, state *appState) error {
	logger := state.logger

	if err := eventbus.SubscribeAsync(eventbus.TopicPhotoProcessed, func(ev eventbus.ProcessedEvent) {
		logger.DebugTag("BUS", "processed %s in %dms (raw=%v)", ev.Filename, ev.DurationMs, ev.Raw)
	}); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bus:subscribe-handlers", "subscribing processed handler failed", err)
	}
	if err := eventbus.SubscribeAsync(eventbus.TopicPhotoFailed, func(ev eventbus.FailedEvent) {
		logger.DebugTag("BUS", "failed %s: %s", ev.Filename, ev.Kind)
	}); err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "bus:subscribe-handlers", "subscribing failed handler failed", err)
	}
	return nil
}

func registerRawCapabilityStep(_ context.Context, state *appState) error {
	if !state.config.Raw.Enabled {
		state.logger.InfoTag("RAW", "RAW capability disabled; RAW inputs will be rejected")
		return nil
	}
	decoder := rawimage.NewPreviewDecoder()
	rawimage.Register(decoder)
	state.logger.InfoTag("RAW", "capability %q registered (pool size %d)", decoder.Name(), state.config.Raw.PoolSize)
	return nil
}

func initCacheStep(_ context.Context, state *appState) error {
	if !state.config.Cache.Enabled {
		return nil
	}

	records, err := platformcache.New(platformcache.Config{
		Addr:     state.config.Cache.Redis.Addr,
		Username: state.config.Cache.Redis.Username,
		Password: state.config.Cache.Redis.Password,
		DB:       state.config.Cache.Redis.DB,
		Prefix:   state.config.Cache.Redis.Prefix,
		TTL:      state.config.Cache.TTL,
	}, state.logger)
	if err != nil {
		// A broken cache must not keep the service down.
		state.logger.WarnTag("CACHE", "record cache unavailable, continuing without it: %v", err)
		return nil
	}
	state.records = records
	state.logger.InfoTag("CACHE", "record cache connected at %s", state.config.Cache.Redis.Addr)
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	state.pipeline = photo.NewPipeline(photo.Options{
		Config: state.config,
		Logger: state.logger,
	})
	return nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	config := state.config
	logger := state.logger

	router, err := httptransport.Build(httptransport.Options{
		Config: config,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	router.Engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, httptransport.APIResponse{
			Success: false,
			Data:    gin.H{},
			Message: "not found",
			Code:    http.StatusNotFound,
		})
	})

	processService := httpprocess.NewService(config, logger, state.pipeline, state.records)
	processService.Register(router)

	httpServer := &http.Server{
		Addr:    config.Server.IP + ":" + strconv.Itoa(config.Server.Port),
		Handler: router.Engine,
	}

	g.Go(func() error {
		logger.InfoTag("HTTP", "service listening on http://%s", httpServer.Addr)

		go func() {
			<-groupCtx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "HTTP shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "HTTP service shut down cleanly")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "HTTP service failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func waitForShutdown(
	ctx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
) error {
	<-ctx.Done()
	logger.InfoTag("BOOT", "received signal %v, cleaning up", context.Cause(ctx))

	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "error during shutdown: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
	case <-time.After(15 * time.Second):
		logger.ErrorTag("BOOT", "shutdown timed out, exiting forcefully")
		return errors.New("shutdown timed out")
	}
	return nil
}

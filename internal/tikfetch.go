package internal

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/hbomb79/Tikfetch/internal/api"
	"github.com/hbomb79/Tikfetch/internal/cleanup"
	"github.com/hbomb79/Tikfetch/internal/extract"
	"github.com/hbomb79/Tikfetch/internal/fetch"
	"github.com/hbomb79/Tikfetch/internal/metrics"
	"github.com/hbomb79/Tikfetch/internal/store"
	"github.com/hbomb79/Tikfetch/internal/sweeper"
	"github.com/hbomb79/Tikfetch/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var log = logger.Get("Core")

type (
	RunnableService interface {
		Run(context.Context) error
	}

	RestGateway interface {
		RunnableService
		http.Handler
	}

	CleanupScheduler interface {
		Schedule(store.Key)
		Drain()
	}
)

// tikfetchImpl represents the top-level object for the server, and is
// responsible for constructing each of the components exactly once and
// managing the lifecycle of the long-running services.
type tikfetchImpl struct {
	config   TikfetchConfig
	registry *prometheus.Registry

	store       *store.Store
	coordinator *fetch.Coordinator
	cleanup     CleanupScheduler
	sweeper     RunnableService
	restGateway RestGateway
}

func New(config TikfetchConfig) (*tikfetchImpl, error) {
	log.Emit(logger.DEBUG, "Bootstrapping services using config: %#v\n", config)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	observer, err := metrics.New(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to construct metrics observer: %w", err)
	}

	fileStore, err := store.New(config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to construct file store: %w", err)
	}

	service := &tikfetchImpl{
		config:      config,
		registry:    registry,
		store:       fileStore,
		coordinator: fetch.NewCoordinator(extract.New(config.Extractor), fileStore, observer),
		cleanup:     cleanup.New(config.Cleanup, fileStore, observer),
		sweeper:     sweeper.New(config.Sweeper, fileStore, observer),
	}
	service.restGateway = api.NewRestGateway(&config.RestConfig, service.coordinator, service.cleanup, registry)

	log.Emit(logger.INFO, "Storing downloads in %s\n", fileStore.Dir())
	return service, nil
}

// Run starts the sweeper and the REST gateway, and will not return until
// the provided context is cancelled, or one of the services crashes. Before
// returning, any pending post-delivery cleanups are performed.
func (service *tikfetchImpl) Run(parent context.Context) error {
	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)

	crashHandler := func(label string, err error) {
		log.Emit(logger.FATAL, "Service crash (%s)! %s\n", label, err.Error())
		cancel(fmt.Errorf("service %s crashed: %w", label, err))
	}

	wg := &sync.WaitGroup{}
	service.spawnAsyncService(ctx, wg, service.sweeper, "sweeper", crashHandler)
	service.spawnAsyncService(ctx, wg, service.restGateway, "rest-gateway", crashHandler)
	log.Emit(logger.SUCCESS, "Services spawned!\n")

	wg.Wait()

	log.Emit(logger.STOP, "Services stopped, draining pending cleanups...\n")
	service.cleanup.Drain()

	if cause := context.Cause(ctx); cause != ctx.Err() {
		return cause
	}

	return nil
}

// spawnAsyncService will run the provided service as it's own
// go-routine, ensuring that the service waitgroup is updated correctly
func (service *tikfetchImpl) spawnAsyncService(ctx context.Context, wg *sync.WaitGroup, runnable RunnableService, serviceLabel string, crashHandler func(string, error)) {
	log.Emit(logger.NEW, "Spawning %s\n", serviceLabel)
	wg.Add(1)
	go func(wg *sync.WaitGroup, label string, crash func(string, error)) {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				crash(label, fmt.Errorf("panic %v", r))
			}
		}()

		if err := runnable.Run(ctx); err != nil {
			crash(label, err)
		}
	}(wg, serviceLabel, crashHandler)
}

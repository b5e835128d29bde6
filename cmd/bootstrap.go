package cmd

import (
	"context"

	"github.com/CzarCx/qr-brain/config"
	"github.com/CzarCx/qr-brain/internal/api/handlers"
	"github.com/CzarCx/qr-brain/internal/cache"
	"github.com/CzarCx/qr-brain/internal/database"
	"github.com/CzarCx/qr-brain/internal/feed"
	"github.com/CzarCx/qr-brain/internal/messaging"
	"github.com/CzarCx/qr-brain/internal/metrics"
	"github.com/CzarCx/qr-brain/internal/repository"
	"github.com/CzarCx/qr-brain/internal/search"
	"github.com/CzarCx/qr-brain/internal/service"
	"github.com/CzarCx/qr-brain/internal/storage"
	"github.com/CzarCx/qr-brain/internal/tracing"
	"github.com/CzarCx/qr-brain/internal/workflow"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// components is everything a command needs to run the workflow service
type components struct {
	cfg      config.Config
	metrics  *metrics.Metrics
	tracer   tracing.Tracer
	stores   *database.Stores
	redis    *cache.RedisCache
	elastic  *search.ElasticClient
	bus      *messaging.ServiceBus
	uploader *storage.Uploader
	hub      *feed.Hub
	notifier *feed.Notifier
	service  *service.Service
}

// bootstrap connects the stores and wires the service. Redis, Elasticsearch,
// Service Bus and S3 are optional: a failure is logged and the feature is skipped.
func bootstrap(ctx context.Context, cfg config.Config) (*components, error) {
	c := &components{cfg: cfg}

	if cfg.MetricsEnabled {
		c.metrics = metrics.NewMetrics()
	}

	tracer, err := tracing.NewTracer(cfg.Tracing)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		tracer = tracing.Noop()
	}
	c.tracer = tracer

	profiles, err := workflow.NewSet(cfg.Workflows)
	if err != nil {
		return nil, err
	}

	stores, err := database.Connect(cfg, c.metrics)
	if err != nil {
		return nil, err
	}
	c.stores = stores

	var labels repository.LabelRepository = repository.NewLabelRepository(stores.Labels)
	redisCache, err := cache.NewRedisCache(cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize Redis cache, continuing without caching")
	} else {
		c.redis = redisCache
		if redisCache.Enabled() {
			labels = cache.NewLabelRepository(labels, redisCache, cfg.Redis.LabelTTL)
		}
	}

	deps := service.Dependencies{
		Assignments: repository.NewAssignmentRepository(stores.Primary, stores.ReadOnly),
		Programmed:  repository.NewProgrammedRepository(stores.Primary, stores.ReadOnly),
		Labels:      labels,
		Personnel:   repository.NewPersonnelRepository(stores.Primary, stores.ReadOnly),
		Activity:    repository.NewActivityRepository(stores.Primary, stores.ReadOnly),
		Profiles:    profiles,
		Metrics:     c.metrics,
		Tracer:      c.tracer,
		Location:    cfg.Location(),
	}

	if cfg.Elastic.Enabled {
		elasticClient, err := search.NewElasticClient(cfg.Elastic)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize Elasticsearch client, continuing without search functionality")
		} else {
			c.elastic = elasticClient
			deps.Index = elasticClient
		}
	}

	uploader, err := storage.NewUploader(ctx, cfg.S3)
	switch {
	case errors.Is(err, storage.ErrNoBucket):
		log.Info().Msg("No S3 bucket configured, exports will not be uploaded")
	case err != nil:
		log.Warn().Err(err).Msg("Failed to initialize S3 uploader, continuing without uploads")
	default:
		c.uploader = uploader
		deps.Uploader = uploader
	}

	c.hub = feed.NewHub(c.metrics)
	c.notifier = feed.NewNotifier(c.hub)
	publishers := feed.Fanout{c.notifier}

	bus, err := messaging.NewServiceBus(cfg.Azure, c.metrics)
	switch {
	case errors.Is(err, messaging.ErrNotConfigured):
		log.Info().Msg("Service Bus not configured, changes are only pushed to websocket subscribers")
	case err != nil:
		log.Warn().Err(err).Msg("Failed to initialize Service Bus, continuing without the change queue")
	default:
		c.bus = bus
		publishers = append(publishers, bus)
	}
	deps.Publisher = publishers

	c.service = service.New(deps)
	c.notifier.Bind(c.service.LoteView)

	return c, nil
}

// healthChecks lists the dependency pings served at /health
func (c *components) healthChecks() []handlers.HealthCheck {
	checks := []handlers.HealthCheck{c.stores.Ping}
	if c.redis != nil && c.redis.Enabled() {
		checks = append(checks, func(ctx context.Context) map[string]error {
			return map[string]error{"redis": c.redis.Ping(ctx)}
		})
	}
	if c.elastic != nil {
		checks = append(checks, func(ctx context.Context) map[string]error {
			return map[string]error{"elasticsearch": c.elastic.Ping(ctx)}
		})
	}
	return checks
}

// Close releases every connection opened by bootstrap
func (c *components) Close() {
	if c.bus != nil {
		if err := c.bus.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Service Bus client")
		}
	}
	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if c.stores != nil {
		if err := c.stores.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close database connections")
		}
	}
	c.tracer.Close()
}

package bootstrap

import (
	"database/sql"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"

	"github.com/wanderplan/planner-api/config"
	"github.com/wanderplan/planner-api/internal/adapters/planner"
	"github.com/wanderplan/planner-api/internal/core"
	"github.com/wanderplan/planner-api/internal/data"
	"github.com/wanderplan/planner-api/internal/notify"
	"github.com/wanderplan/planner-api/internal/observability/statsd"
	"github.com/wanderplan/planner-api/internal/queue"
	"github.com/wanderplan/planner-api/internal/service"
)

// Container holds the wired services and shared adapters of one process.
type Container struct {
	Jobs      *service.JobService
	Callbacks *service.CallbackService
	Dispatch  *service.DispatchService
	Reaper    *service.ReaperService

	JobRepo   *data.JobRepo
	Publisher *queue.Publisher
	Metrics   *statsd.Client
}

// ContainerOptions groups the infrastructure handles services are built on.
type ContainerOptions struct {
	Config  *config.AppConfig
	DB      *sql.DB
	Channel *amqp.Channel
	Redis   redis.UniversalClient
	Logger  *slog.Logger
}

// BuildContainer wires repositories, adapters, and services.
func BuildContainer(opts ContainerOptions) (*Container, error) {
	cfg := opts.Config
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	metricsClient, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.Metrics.Enabled,
		Address: cfg.Metrics.Address,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create metrics client: %w", err)
	}

	jobRepo := data.NewJobRepo(opts.DB, data.JobRepoConfig{Logger: logger})
	surveyRepo := data.NewSurveyRepo(opts.DB)
	prefRepo := data.NewPreferenceRepo(opts.DB)
	itineraryRepo := data.NewItineraryRepo(opts.DB, data.ItineraryRepoConfig{Logger: logger})
	recommendationRepo := data.NewRecommendationRepo(opts.DB, data.RecommendationRepoConfig{Logger: logger})

	publisher, err := queue.NewPublisher(queue.PublisherOptions{
		Channel: opts.Channel,
		Queue:   cfg.Queue,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create publisher: %w", err)
	}

	var notifier core.TerminalNotifier
	if opts.Redis != nil {
		redisNotifier, err := notify.NewRedisNotifier(notify.RedisNotifierOptions{
			Client:        opts.Redis,
			ChannelPrefix: cfg.Redis.ChannelPrefix,
			Logger:        logger,
		})
		if err != nil {
			return nil, fmt.Errorf("create notifier: %w", err)
		}
		notifier = redisNotifier
	}

	plannerClient, err := planner.NewClient(planner.ClientOptions{
		Config: cfg.Planner,
		Logger: logger,
	})
	if err != nil {
		return nil, fmt.Errorf("create planner client: %w", err)
	}

	strategies, err := service.NewStrategyRegistry(
		&service.GenerationStrategy{Surveys: surveyRepo, Itineraries: itineraryRepo},
		&service.ModificationStrategy{Itineraries: itineraryRepo},
		&service.RecommendationStrategy{Preferences: prefRepo, Recommendations: recommendationRepo},
	)
	if err != nil {
		return nil, fmt.Errorf("build strategy registry: %w", err)
	}

	jobService, err := service.NewJobService(service.JobServiceOptions{
		Jobs:       jobRepo,
		Publisher:  publisher,
		Strategies: strategies,
		Notifier:   notifier,
		Logger:     logger,
		Metrics:    metricsClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create job service: %w", err)
	}

	callbackService, err := service.NewCallbackService(service.CallbackServiceOptions{
		Jobs:       jobRepo,
		Publisher:  publisher,
		Strategies: strategies,
		Notifier:   notifier,
		Logger:     logger,
		Metrics:    metricsClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create callback service: %w", err)
	}

	dispatchService, err := service.NewDispatchService(service.DispatchServiceOptions{
		Jobs:       jobRepo,
		Planner:    plannerClient,
		Strategies: strategies,
		Notifier:   notifier,
		Logger:     logger,
		Metrics:    metricsClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create dispatch service: %w", err)
	}

	reaperService, err := service.NewReaperService(service.ReaperServiceOptions{
		Jobs:      jobRepo,
		Sweeps:    jobRepo,
		Publisher: publisher,
		Config:    cfg.Reaper,
		Notifier:  notifier,
		Logger:    logger,
		Metrics:   metricsClient,
	})
	if err != nil {
		return nil, fmt.Errorf("create reaper service: %w", err)
	}

	return &Container{
		Jobs:      jobService,
		Callbacks: callbackService,
		Dispatch:  dispatchService,
		Reaper:    reaperService,
		JobRepo:   jobRepo,
		Publisher: publisher,
		Metrics:   metricsClient,
	}, nil
}

// Package app assembles the onboarding engine from configuration. Every entry point builds one App.
package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/onboarding-engine/internal/config"
	"github.com/kursadbilgin/onboarding-engine/internal/handler"
	"github.com/kursadbilgin/onboarding-engine/internal/infra/postgresql"
	"github.com/kursadbilgin/onboarding-engine/internal/infra/postgresql/migrations"
	infraredis "github.com/kursadbilgin/onboarding-engine/internal/infra/redis"
	"github.com/kursadbilgin/onboarding-engine/internal/infra/sqlite"
	"github.com/kursadbilgin/onboarding-engine/internal/observability"
	"github.com/kursadbilgin/onboarding-engine/internal/provider"
	"github.com/kursadbilgin/onboarding-engine/internal/queue"
	"github.com/kursadbilgin/onboarding-engine/internal/repository"
	"github.com/kursadbilgin/onboarding-engine/internal/retry"
	"github.com/kursadbilgin/onboarding-engine/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Options struct {
	// Collaborators replaces the collaborators selected by RUN_MODE.
	Collaborators *provider.Collaborators

	// WithBroker connects to RABBITMQ_URL when it is set.
	WithBroker bool
}

type App struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *observability.Metrics
	Runs          repository.RunRepository
	Collaborators provider.Collaborators
	Orchestrator  *service.Orchestrator
	Onboarding    *service.OnboardingService
	Broker        *queue.RabbitMQ
	Checks        map[string]handler.ReadinessCheck

	closers []func() error
}

func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
		Checks:  make(map[string]handler.ReadinessCheck),
	}

	if err := a.openStore(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}

	if opts.Collaborators != nil {
		a.Collaborators = *opts.Collaborators
	} else {
		collaborators, err := NewCollaborators(cfg)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.Collaborators = collaborators
	}

	var publisher queue.Publisher
	if opts.WithBroker && strings.TrimSpace(cfg.RabbitMQURL) != "" {
		broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("rabbitmq initialization failed: %w", err)
		}
		a.Broker = broker
		a.closers = append(a.closers, broker.Close)
		a.Checks["rabbitmq"] = broker.Ping
		publisher = queue.NewRabbitMQPublisher(broker)
	}

	adapter := retry.NewAdapter(cfg.RetryPolicy(), logger, a.Metrics)
	orchestrator, err := service.NewOrchestrator(a.Collaborators, adapter, a.Runs, cfg.OrchestratorOptions(), logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	orchestrator.SetMetrics(a.Metrics)
	if publisher != nil {
		orchestrator.SetEventPublisher(publisher)
	}
	a.Orchestrator = orchestrator

	onboarding, err := service.NewOnboardingService(orchestrator, a.Runs, publisher, logger)
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Onboarding = onboarding

	logger.Info("onboarding engine initialized",
		zap.String("runMode", cfg.RunMode),
		zap.String("store", cfg.StoreBackend),
		zap.Bool("broker", a.Broker != nil),
	)
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	cfg := a.Config

	switch cfg.StoreBackend {
	case config.StoreRedis:
		rdb, err := infraredis.NewRedis(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis initialization failed: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		a.Checks["redis"] = handler.RedisCheck(rdb)

		journal, err := infraredis.NewRunJournal(rdb, cfg.RecordTTL())
		if err != nil {
			return err
		}
		a.Runs = journal
		return nil

	case config.StorePostgres, config.StoreSQLite:
		var (
			db  *gorm.DB
			err error
		)
		if cfg.StoreBackend == config.StorePostgres {
			db, err = postgresql.NewPostgres(ctx, cfg.DatabaseDSN, cfg.DBMaxConns)
		} else {
			db, err = sqlite.NewSQLite(cfg.SQLitePath)
		}
		if err != nil {
			return fmt.Errorf("%s initialization failed: %w", cfg.StoreBackend, err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("%s underlying db init failed: %w", cfg.StoreBackend, err)
		}
		a.closers = append(a.closers, sqlDB.Close)
		a.Checks[cfg.StoreBackend] = handler.SQLCheck(sqlDB)

		if err := migrations.Migrate(db); err != nil {
			return fmt.Errorf("database migrations failed: %w", err)
		}
		a.Runs = repository.NewGormRunRepo(db)
		return nil
	}

	return fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
}

// NewCollaborators returns the live HTTP clients for RUN_MODE=live and the seeded stub otherwise.
func NewCollaborators(cfg *config.Config) (provider.Collaborators, error) {
	if !cfg.IsLive() {
		dataset, err := provider.DefaultDataset()
		if err != nil {
			return provider.Collaborators{}, err
		}
		return provider.NewStub(dataset, provider.WithFailureRate(cfg.StubFailureRate)).Collaborators(), nil
	}

	members, err := provider.NewMemberServiceClient(cfg.MemberServiceURL, cfg.LFXAPIKey, resty.New())
	if err != nil {
		return provider.Collaborators{}, err
	}
	projects, err := provider.NewProjectServiceClient(cfg.ProjectServiceURL, cfg.LFXAPIKey, resty.New())
	if err != nil {
		return provider.Collaborators{}, err
	}
	slack, err := provider.NewSlackClient(cfg.SlackAPIURL, cfg.SlackBotToken, resty.New())
	if err != nil {
		return provider.Collaborators{}, err
	}
	mailer, err := provider.NewEmailAPIClient(cfg.EmailAPIURL, cfg.EmailAPIKey, cfg.EmailFrom, resty.New())
	if err != nil {
		return provider.Collaborators{}, err
	}
	github, err := provider.NewGitHubLandscapeClient(cfg.GitHubAPIURL, cfg.GitHubToken, cfg.GitHubOrg, resty.New())
	if err != nil {
		return provider.Collaborators{}, err
	}

	return provider.Collaborators{
		Directory:  members,
		Projects:   projects,
		Committees: projects,
		Chat:       slack,
		Mailer:     mailer,
		CodeHost:   github,
	}, nil
}

// Close releases opened resources in reverse order.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

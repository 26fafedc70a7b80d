// Package app assembles the service's collaborators from configuration. Both
// the HTTP server and the operator CLI build on it.
package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/spec-kit/onboarding-service/internal/auth"
	"github.com/spec-kit/onboarding-service/internal/config"
	"github.com/spec-kit/onboarding-service/internal/events"
	"github.com/spec-kit/onboarding-service/internal/observability"
	"github.com/spec-kit/onboarding-service/internal/persistence"
	"github.com/spec-kit/onboarding-service/internal/repository"
	"github.com/spec-kit/onboarding-service/internal/scheduler"
	"github.com/spec-kit/onboarding-service/internal/service"
	"github.com/spec-kit/onboarding-service/internal/sla"
	"github.com/spec-kit/onboarding-service/internal/worker"
	"github.com/spec-kit/onboarding-service/internal/workflow"
)

// Repositories groups the storage ports.
type Repositories struct {
	Cases      repository.CaseRepository
	Activities repository.ActivityRepository
	Teams      repository.TeamRepository
	Staff      repository.StaffRepository
	History    repository.CaseHistoryRepository
}

// NewPostgresRepositories backs every port with pool.
func NewPostgresRepositories(pg *persistence.Postgres) Repositories {
	pool := pg.Pool
	return Repositories{
		Cases:      repository.NewCaseRepository(pool),
		Activities: repository.NewActivityRepository(pool),
		Teams:      repository.NewTeamRepository(pool),
		Staff:      repository.NewStaffRepository(pool),
		History:    repository.NewCaseHistoryRepository(pool),
	}
}

// NewMemoryRepositories backs every port with one process-local store.
func NewMemoryRepositories() Repositories {
	store := repository.NewMemoryStore()
	return Repositories{
		Cases:      store.Cases(),
		Activities: store.Activities(),
		Teams:      store.Teams(),
		Staff:      store.Staff(),
		History:    store.History(),
	}
}

// Container holds the wired service graph.
type Container struct {
	Config   *config.Config
	Logger   *zap.Logger
	Gatherer *prometheus.Registry
	Metrics  *observability.Metrics

	Postgres *persistence.Postgres
	Redis    *persistence.Redis
	NATS     *persistence.NATS

	Repos      Repositories
	Templates  *workflow.Registry
	Dispatcher events.Dispatcher
	Tokens     *auth.TokenManager

	Assignment   *service.AssignmentService
	Workflow     *service.WorkflowService
	Escalation   *service.EscalationService
	Staff        *service.StaffService
	Notification *service.NotificationService

	Tracker *sla.Tracker
	Driver  *scheduler.Driver
	Actions *worker.ActionWorker
}

// New connects the configured infrastructure and wires services on top of it.
// Without a Postgres DSN the service runs on the in-memory store; without
// Redis the sweep lock is process local; NATS forwarding is optional.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Container, error) {
	c := &Container{Config: cfg, Logger: logger}

	c.Gatherer = prometheus.NewRegistry()
	c.Gatherer.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	c.Metrics = observability.InitMetrics(c.Gatherer)

	templates := workflow.DefaultTemplates()
	if dir := cfg.Workflow.TemplatesDir; dir != "" {
		extra, err := workflow.LoadTemplatesFromDir(dir)
		if err != nil {
			return nil, fmt.Errorf("load workflow templates: %w", err)
		}
		logger.Info("loaded workflow templates", zap.String("dir", dir), zap.Int("count", len(extra)))
		templates = append(templates, extra...)
	}
	registry, err := workflow.NewRegistry(templates...)
	if err != nil {
		return nil, fmt.Errorf("build template registry: %w", err)
	}
	c.Templates = registry

	c.Postgres, err = persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if c.Postgres.Enabled() {
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, c.Postgres.Pool, cfg.Postgres.MigrationsDir, logger); err != nil {
				c.Close()
				return nil, fmt.Errorf("run migrations: %w", err)
			}
		}
		c.Repos = NewPostgresRepositories(c.Postgres)
	} else {
		logger.Warn("running on the in-memory store; state is lost on restart")
		c.Repos = NewMemoryRepositories()
	}

	c.Redis = persistence.NewRedis(ctx, cfg.Redis, logger)
	c.NATS, err = persistence.NewNATS(cfg.NATS, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	c.Dispatcher = events.NewInMemoryDispatcher()
	c.Tokens = auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.AccessTokenTTLMinutes)

	c.Assignment = service.NewAssignmentService(service.AssignmentDependencies{
		ActivityRepo: c.Repos.Activities,
		TeamRepo:     c.Repos.Teams,
		Dispatcher:   c.Dispatcher,
		Metrics:      c.Metrics,
		Logger:       logger.Named("assignment"),
	})
	c.Workflow = service.NewWorkflowService(service.WorkflowDependencies{
		Registry:     c.Templates,
		CaseRepo:     c.Repos.Cases,
		ActivityRepo: c.Repos.Activities,
		TeamRepo:     c.Repos.Teams,
		HistoryRepo:  c.Repos.History,
		Assignment:   c.Assignment,
		Dispatcher:   c.Dispatcher,
		Metrics:      c.Metrics,
		Logger:       logger.Named("workflow"),
	})
	c.Escalation = service.NewEscalationService(service.EscalationDependencies{
		CaseRepo:    c.Repos.Cases,
		HistoryRepo: c.Repos.History,
		Dispatcher:  c.Dispatcher,
		Metrics:     c.Metrics,
		Logger:      logger.Named("escalation"),
		PageSize:    cfg.Scheduler.EscalationPageSize,
	})
	c.Staff = service.NewStaffService(service.OrgDependencies{TeamRepo: c.Repos.Teams, StaffRepo: c.Repos.Staff})
	c.Notification = service.NewNotificationService(c.Dispatcher, logger.Named("notification"), cfg.Notification)

	var publisher *events.NatsPublisher
	if c.NATS != nil {
		publisher = events.NewNatsPublisher(c.NATS.JetStream, logger.Named("nats"))
	}
	worker.StartNotificationWorker(c.Dispatcher, c.Notification, publisher)

	c.Actions = worker.NewActionWorker(worker.ActionWorkerDependencies{
		Completer:   c.Workflow,
		Executors:   worker.DefaultExecutors(),
		Metrics:     c.Metrics,
		Logger:      logger.Named("actions"),
		Concurrency: cfg.Workflow.ActionWorkers,
		QueueSize:   cfg.Workflow.ActionQueueSize,
	})
	c.Actions.Attach(c.Dispatcher)

	c.Tracker = sla.NewTracker(c.Repos.Cases, cfg.Scheduler.WarningWindow(), logger.Named("sla"))
	deps := scheduler.Dependencies{
		Tracker:    c.Tracker,
		Escalation: c.Escalation,
		CaseRepo:   c.Repos.Cases,
		Metrics:    c.Metrics,
		Logger:     logger.Named("scheduler"),
		Interval:   cfg.Scheduler.Interval(),
	}
	if c.Redis.Enabled() {
		deps.Locker = scheduler.NewRedisLocker(c.Redis.Client, cfg.Scheduler.LockKey, cfg.Scheduler.LockTTL())
		deps.Warnings = scheduler.NewRedisWarningFilter(c.Redis.Client, cfg.Scheduler.WarningWindow())
	}
	c.Driver = scheduler.NewDriver(deps)

	return c, nil
}

// Close releases infrastructure connections. It is safe on a partially built
// container.
func (c *Container) Close() {
	if c.NATS != nil {
		c.NATS.Close()
	}
	c.Redis.Close()
	c.Postgres.Close()
}

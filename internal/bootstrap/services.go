package bootstrap

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/lci/lci-lookup/config"
	"github.com/lci/lci-lookup/internal/data"
	httpx "github.com/lci/lci-lookup/internal/http"
	"github.com/lci/lci-lookup/internal/observability/statsd"
	"github.com/lci/lci-lookup/internal/ports"
	"github.com/lci/lci-lookup/internal/service"
	"github.com/redis/go-redis/v9"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth          *AuthComponents
	Records       *service.RecordService
	Observability ObservabilityContainer
	HealthChecks  []httpx.HealthCheck
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
	Audit         *slog.Logger
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	// Directory overrides the LDAP adapter; nil in production.
	Directory ports.Directory
	Logger    *slog.Logger
}

// buildObservability configures the metrics sink. A sink that cannot be dialled is logged
// and replaced by a disabled client; metrics never block startup.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	var sink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  cfg.Metrics.Prefix,
			Logger:  logger,
		})
		if err != nil {
			logger.Error("failed to initialise statsd client", "error", err)
		} else {
			sink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   sink,
		MetricsConfig: cfg.Metrics,
		Audit:         InitAuditLogger(logger),
	}
}

// metricsSink returns the sink as an interface, keeping a nil client a nil interface.
//
//nolint:ireturn // statsd.Sink is the consumer-facing port.
func (o ObservabilityContainer) metricsSink() statsd.Sink {
	if o.MetricsSink == nil {
		return nil
	}
	return o.MetricsSink
}

// NewServices wires repositories, services and readiness checks.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}

	obs := buildObservability(logger, cfg.Observability)

	auth, err := BuildAuth(AuthConfig{
		Auth:         cfg.Auth,
		CookieDomain: cfg.HTTP.CookieDomain,
		RedisClient:  deps.RedisClient,
		Directory:    deps.Directory,
		Metrics:      obs.metricsSink(),
		Logger:       logger,
		Audit:        obs.Audit,
	})
	if err != nil {
		return ServiceContainer{}, err
	}

	var records *service.RecordService
	if deps.DB != nil {
		records = service.NewRecordService(service.RecordServiceOptions{
			Repo:   data.NewRecordRepo(deps.DB),
			Logger: logger,
		})
	}

	return ServiceContainer{
		Auth:          auth,
		Records:       records,
		Observability: obs,
		HealthChecks:  healthChecks(deps),
	}, nil
}

// healthChecks lists the readiness checks for the backing stores. The directory is left out:
// an unreachable directory only blocks new logins, restored sessions keep working.
func healthChecks(deps *ServiceDeps) []httpx.HealthCheck {
	var checks []httpx.HealthCheck
	if deps.DB != nil {
		db := deps.DB
		checks = append(checks, httpx.HealthCheck{Name: "database", Check: db.PingContext})
	}
	if deps.RedisClient != nil {
		client := deps.RedisClient
		checks = append(checks, httpx.HealthCheck{Name: "redis", Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		}})
	}
	return checks
}

package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"net"

	"github.com/lci/lci-lookup/config"
	ldapadapter "github.com/lci/lci-lookup/internal/adapters/ldap"
	redisadapter "github.com/lci/lci-lookup/internal/adapters/redis"
	"github.com/lci/lci-lookup/internal/observability/statsd"
	"github.com/lci/lci-lookup/internal/ports"
	"github.com/lci/lci-lookup/internal/service"
	"github.com/lci/lci-lookup/internal/session"
	"github.com/redis/go-redis/v9"
)

// AuthConfig contains configuration for the auth components.
type AuthConfig struct {
	Auth         config.AuthConfig
	CookieName   string
	CookieDomain string
	RedisClient  redis.UniversalClient
	// Directory overrides the LDAP adapter; tests pass a fake.
	Directory ports.Directory
	Metrics   statsd.Sink
	Logger    *slog.Logger
	Audit     *slog.Logger
}

// AuthComponents are the wired authentication pieces the HTTP layer needs.
type AuthComponents struct {
	Service        *service.AuthService
	Identities     *service.SessionIdentityStore
	Sessions       *session.Manager
	TrustedProxies []*net.IPNet
}

// BuildAuth wires the directory, the session backend and the login orchestrator.
func BuildAuth(cfg AuthConfig) (*AuthComponents, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	audit := cfg.Audit
	if audit == nil {
		audit = InitAuditLogger(logger)
	}

	store, err := buildSessionStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	trusted, err := cfg.Auth.TrustedNetworks()
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	dir := cfg.Directory
	if dir == nil {
		dir = ldapadapter.NewDirectory(ldapadapter.DirectoryOptions{
			Config: cfg.Auth.Directory,
			Logger: logger,
		})
	}

	identities := service.NewSessionIdentityStore(service.SessionIdentityStoreOptions{
		Logger:  logger,
		Metrics: cfg.Metrics,
	})
	svc := service.NewAuthService(service.AuthServiceOptions{
		Directory:  dir,
		Config:     cfg.Auth.Directory,
		Identities: identities,
		Logger:     logger,
		Audit:      audit,
		Metrics:    cfg.Metrics,
	})

	cookieName := cfg.CookieName
	if cookieName == "" {
		cookieName = cfg.Auth.Session.CookieName
	}
	sessions := session.NewManager(session.ManagerOptions{
		Store:        store,
		CookieName:   cookieName,
		CookieDomain: cfg.CookieDomain,
		TTL:          cfg.Auth.Session.TTL,
		Logger:       logger,
	})

	logger.Info("directory authentication configured",
		"host", cfg.Auth.Directory.Host,
		"bind_mode", cfg.Auth.Directory.BindMode,
		"tls_mode", cfg.Auth.Directory.TLSMode,
		"required_group", cfg.Auth.Directory.RequiredGroup,
		"session_store", cfg.Auth.Session.Store,
		"header_login", cfg.Auth.PrincipalHeader != "",
	)

	return &AuthComponents{
		Service:        svc,
		Identities:     identities,
		Sessions:       sessions,
		TrustedProxies: trusted,
	}, nil
}

//nolint:ireturn // the backend is chosen from config.
func buildSessionStore(cfg AuthConfig, logger *slog.Logger) (ports.SessionStore, error) {
	switch cfg.Auth.Session.Store {
	case config.SessionStoreMemory:
		logger.Warn("sessions are kept in process memory; they do not survive restarts or span replicas")
		return session.NewMemoryStore(), nil
	case config.SessionStoreRedis, "":
		if cfg.RedisClient == nil {
			return nil, errors.New("SESSION_STORE=redis requires a redis client")
		}
		return redisadapter.NewSessionStoreWithPrefix(cfg.RedisClient, cfg.Auth.Session.KeyPrefix), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Auth.Session.Store)
	}
}

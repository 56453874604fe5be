package bootstrap

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/lci/lci-lookup/config"
	mockauth "github.com/lci/lci-lookup/internal/mocks/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuthConfig() config.AuthConfig {
	return config.AuthConfig{
		Directory: config.DirectoryConfig{
			Host:          "dc01.corp.local",
			Port:          389,
			BaseDN:        "DC=corp,DC=local",
			Domain:        "LC",
			RequiredGroup: "g-app-webapp-cpdrlist",
			BindMode:      config.BindModeService,
			ServiceBindDN: "CN=svc-lci,OU=Service,DC=corp,DC=local",
			Timeout:       time.Second,
		},
		Session: config.SessionConfig{
			TTL:        time.Hour,
			CookieName: "lci_session",
			Store:      config.SessionStoreMemory,
		},
	}
}

func TestBuildAuth_MemoryStore(t *testing.T) {
	cfg := testAuthConfig()
	cfg.PrincipalHeader = "X-Remote-User"
	cfg.TrustedProxies = []string{"10.0.0.0/8", "192.168.1.10"}

	auth, err := BuildAuth(AuthConfig{
		Auth:      cfg,
		Directory: mockauth.NewFakeDirectory(nil),
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	require.NotNil(t, auth.Service)
	require.NotNil(t, auth.Identities)
	require.NotNil(t, auth.Sessions)
	assert.Equal(t, "g-app-webapp-cpdrlist", auth.Service.RequiredGroup())
	require.Len(t, auth.TrustedProxies, 2)
	assert.Equal(t, "192.168.1.10/32", auth.TrustedProxies[1].String())
}

func TestBuildAuth_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AuthConfig)
	}{
		{name: "redis store without client", mutate: func(c *config.AuthConfig) { c.Session.Store = config.SessionStoreRedis }},
		{name: "unknown store", mutate: func(c *config.AuthConfig) { c.Session.Store = "disk" }},
		{name: "bad trusted proxy", mutate: func(c *config.AuthConfig) { c.TrustedProxies = []string{"not-an-ip"} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testAuthConfig()
			tt.mutate(&cfg)
			_, err := BuildAuth(AuthConfig{Auth: cfg, Directory: mockauth.NewFakeDirectory(nil), Logger: discardLogger()})
			assert.Error(t, err)
		})
	}
}

func TestNewServices_WithoutDatabase(t *testing.T) {
	cfg := &config.AppConfig{Auth: testAuthConfig()}
	svcs, err := NewServices(&ServiceDeps{
		Config:    cfg,
		Directory: mockauth.NewFakeDirectory(nil),
		Logger:    discardLogger(),
	})
	require.NoError(t, err)
	assert.Nil(t, svcs.Records)
	assert.Empty(t, svcs.HealthChecks)
	assert.Nil(t, svcs.Observability.MetricsSink)
	assert.Nil(t, svcs.Observability.metricsSink())
	require.NotNil(t, svcs.Auth)
}

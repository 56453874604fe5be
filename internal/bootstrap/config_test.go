package bootstrap

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/lci/lci-lookup/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseEnv() map[string]string {
	return map[string]string{
		"LDAP_HOST":                  "dc01.corp.local",
		"LDAP_BASE_DN":               "DC=corp,DC=local",
		"LDAP_SERVICE_BIND_DN":       "CN=svc-lci,OU=Service,DC=corp,DC=local",
		"LDAP_SERVICE_BIND_PASSWORD": "svc-secret",
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(env.Options{Environment: baseEnv()})
	require.NoError(t, err)

	assert.Equal(t, 389, cfg.Auth.Directory.Port)
	assert.Equal(t, "LC", cfg.Auth.Directory.Domain)
	assert.Equal(t, "g-app-webapp-cpdrlist", cfg.Auth.Directory.RequiredGroup)
	assert.Equal(t, config.BindModeService, cfg.Auth.Directory.BindMode)
	assert.Equal(t, 10*time.Second, cfg.Auth.Directory.Timeout)
	assert.Equal(t, 8*time.Hour, cfg.Auth.Session.TTL)
	assert.Equal(t, "lci_session", cfg.Auth.Session.CookieName)
	assert.Equal(t, config.SessionStoreRedis, cfg.Auth.Session.Store)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.NoError(t, ValidateConfig(&cfg))
}

func TestParseConfig_Invalid(t *testing.T) {
	tests := []struct {
		name     string
		override map[string]string
		parseErr bool
	}{
		{name: "unknown bind mode", override: map[string]string{"LDAP_BIND_MODE": "anonymous"}, parseErr: true},
		{name: "unknown session store", override: map[string]string{"SESSION_STORE": "disk"}, parseErr: true},
		{name: "service mode without service dn", override: map[string]string{"LDAP_SERVICE_BIND_DN": ""}},
		{name: "header without trusted proxies", override: map[string]string{"AUTH_PRINCIPAL_HEADER": "X-Remote-User"}},
		{name: "bad proxy cidr", override: map[string]string{"AUTH_TRUSTED_PROXIES": "10.0.0.0/33"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vars := baseEnv()
			for k, v := range tt.override {
				vars[k] = v
			}
			cfg, err := parseConfig(env.Options{Environment: vars})
			if tt.parseErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Error(t, ValidateConfig(&cfg))
		})
	}
}

func TestValidateConfig_Nil(t *testing.T) {
	assert.Error(t, ValidateConfig(nil))
}

func keepDefaultLogger(t *testing.T) {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
}

func TestInitLogger_Level(t *testing.T) {
	keepDefaultLogger(t)
	var buf bytes.Buffer
	logger := initLogger(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &rec))
	assert.Equal(t, "shown", rec["msg"])
}

func TestInitAuditLogger_TagsChannel(t *testing.T) {
	keepDefaultLogger(t)
	var buf bytes.Buffer
	audit := InitAuditLogger(initLogger(&buf, ""))
	audit.Info("bind outcome")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec))
	assert.Equal(t, auditChannel, rec["channel"])
}

package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
)

// BindMode selects how the directory is bound during login.
type BindMode string

const (
	// BindModeService binds with a service account, looks the user up, then verifies
	// the user's password with a second bind as the user's entry DN.
	BindModeService BindMode = "service"
	// BindModeDirect binds as DOMAIN\account (or the UPN) with the user's own password.
	BindModeDirect BindMode = "direct"
)

// UnmarshalText implements encoding.TextUnmarshaler for BindMode.
func (m *BindMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "service", "direct":
		*m = BindMode(v)
		return nil
	default:
		return fmt.Errorf("invalid BindMode: %q (valid options: service, direct)", v)
	}
}

// TLSMode selects transport security for the directory connection.
type TLSMode string

const (
	TLSModeNone     TLSMode = "none"
	TLSModeStartTLS TLSMode = "starttls"
	TLSModeLDAPS    TLSMode = "ldaps"
)

// UnmarshalText implements encoding.TextUnmarshaler for TLSMode.
func (m *TLSMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "none", "starttls", "ldaps":
		*m = TLSMode(v)
		return nil
	default:
		return fmt.Errorf("invalid TLSMode: %q (valid options: none, starttls, ldaps)", v)
	}
}

// DirectoryConfig describes the LDAP/AD server used for login.
type DirectoryConfig struct {
	Host          string        `env:"HOST,required"`
	Port          int           `env:"PORT"                  envDefault:"389"`
	BaseDN        string        `env:"BASE_DN,required"`
	Domain        string        `env:"DOMAIN"                envDefault:"LC"`
	RequiredGroup string        `env:"REQUIRED_GROUP"        envDefault:"g-app-webapp-cpdrlist"`
	BindMode      BindMode      `env:"BIND_MODE"             envDefault:"service"`
	ServiceBindDN string        `env:"SERVICE_BIND_DN"`
	ServiceSecret string        `env:"SERVICE_BIND_PASSWORD"`
	Timeout       time.Duration `env:"TIMEOUT"               envDefault:"10s"`
	TLSMode       TLSMode       `env:"TLS_MODE"              envDefault:"none"`
	TLSSkipVerify bool          `env:"TLS_SKIP_VERIFY"       envDefault:"false"`
}

// Sanitize trims values and applies defaults for zero fields.
func (d *DirectoryConfig) Sanitize() {
	d.Host = strings.TrimSpace(d.Host)
	d.BaseDN = strings.TrimSpace(d.BaseDN)
	d.Domain = strings.ToUpper(strings.TrimSpace(d.Domain))
	d.RequiredGroup = strings.TrimSpace(d.RequiredGroup)
	d.ServiceBindDN = strings.TrimSpace(d.ServiceBindDN)
	if d.Port <= 0 {
		d.Port = 389
	}
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	if d.BindMode == "" {
		d.BindMode = BindModeService
	}
	if d.TLSMode == "" {
		d.TLSMode = TLSModeNone
	}
}

// Validate reports configuration that would make every login fail.
func (d *DirectoryConfig) Validate() error {
	var errs []error
	if d.Host == "" {
		errs = append(errs, errors.New("LDAP_HOST is required"))
	}
	if d.BaseDN == "" {
		errs = append(errs, errors.New("LDAP_BASE_DN is required"))
	}
	if d.RequiredGroup == "" {
		errs = append(errs, errors.New("LDAP_REQUIRED_GROUP must not be empty"))
	}
	if d.BindMode == BindModeService && d.ServiceBindDN == "" {
		errs = append(errs, errors.New("LDAP_SERVICE_BIND_DN is required when LDAP_BIND_MODE=service"))
	}
	return errors.Join(errs...)
}

// Address returns host:port.
func (d *DirectoryConfig) Address() string {
	return net.JoinHostPort(d.Host, fmt.Sprint(d.Port))
}

// SessionStoreKind selects the session backend.
type SessionStoreKind string

const (
	SessionStoreRedis  SessionStoreKind = "redis"
	SessionStoreMemory SessionStoreKind = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for SessionStoreKind.
func (k *SessionStoreKind) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "redis", "memory":
		*k = SessionStoreKind(v)
		return nil
	default:
		return fmt.Errorf("invalid SessionStoreKind: %q (valid options: redis, memory)", v)
	}
}

// SessionConfig controls the browser session.
type SessionConfig struct {
	TTL        time.Duration    `env:"TTL"         envDefault:"8h"`
	CookieName string           `env:"COOKIE_NAME" envDefault:"lci_session"`
	Store      SessionStoreKind `env:"STORE"       envDefault:"redis"`
	KeyPrefix  string           `env:"KEY_PREFIX"  envDefault:"lci:session:"`
}

// Sanitize applies defaults for zero fields.
func (s *SessionConfig) Sanitize() {
	if s.TTL <= 0 {
		s.TTL = 8 * time.Hour
	}
	if s.CookieName = strings.TrimSpace(s.CookieName); s.CookieName == "" {
		s.CookieName = "lci_session"
	}
	if s.Store == "" {
		s.Store = SessionStoreRedis
	}
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	Directory DirectoryConfig `envPrefix:"LDAP_"`
	Session   SessionConfig   `envPrefix:"SESSION_"`

	// PrincipalHeader names a header set by an authenticating reverse proxy
	// (for example X-Remote-User). Empty disables header logins.
	PrincipalHeader string `env:"AUTH_PRINCIPAL_HEADER"`

	// TrustedProxies lists the CIDRs allowed to supply PrincipalHeader.
	TrustedProxies []string `env:"AUTH_TRUSTED_PROXIES" envSeparator:","`
}

// Sanitize trims values in all sub-configs.
func (a *AuthConfig) Sanitize() {
	a.Directory.Sanitize()
	a.Session.Sanitize()
	a.PrincipalHeader = strings.TrimSpace(a.PrincipalHeader)
	proxies := a.TrustedProxies[:0]
	for _, p := range a.TrustedProxies {
		if p = strings.TrimSpace(p); p != "" {
			proxies = append(proxies, p)
		}
	}
	a.TrustedProxies = proxies
}

// Validate fails fast on a configuration that cannot authenticate anyone.
func (a *AuthConfig) Validate() error {
	errs := []error{a.Directory.Validate()}
	if a.PrincipalHeader != "" && len(a.TrustedProxies) == 0 {
		errs = append(errs, errors.New("AUTH_TRUSTED_PROXIES is required when AUTH_PRINCIPAL_HEADER is set"))
	}
	if a.PrincipalHeader != "" && a.Directory.BindMode != BindModeService {
		errs = append(errs, errors.New("AUTH_PRINCIPAL_HEADER requires LDAP_BIND_MODE=service"))
	}
	if _, err := a.TrustedNetworks(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// TrustedNetworks parses TrustedProxies. Bare IPs are accepted as single-host networks.
func (a *AuthConfig) TrustedNetworks() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(a.TrustedProxies))
	for _, raw := range a.TrustedProxies {
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", raw)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", raw, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

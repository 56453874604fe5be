// Package ldap implements ports.Directory over github.com/go-ldap/ldap/v3.
package ldap

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/go-ldap/ldap/v3"
	"github.com/lci/lci-lookup/config"
	"github.com/lci/lci-lookup/internal/ports"
)

// Conn is the subset of *ldap.Conn the adapter needs.
type Conn interface {
	Bind(username, password string) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
	SetTimeout(d time.Duration)
	Close() error
}

var _ Conn = (*ldap.Conn)(nil)

// Dialer opens a Conn to host:port. Tests replace it with an in-memory fake.
type Dialer interface {
	Dial(ctx context.Context, hostAndPort string) (Conn, error)
}

// DialerFunc adapts a func to Dialer.
type DialerFunc func(ctx context.Context, hostAndPort string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, hostAndPort string) (Conn, error) {
	return f(ctx, hostAndPort)
}

// DirectoryOptions configures a Directory.
type DirectoryOptions struct {
	Config config.DirectoryConfig
	// Dialer is nil in production; the TLS mode in Config then decides how to dial.
	Dialer Dialer
	Logger *slog.Logger
}

// Directory dials a fresh connection per Connect call. Nothing is pooled.
type Directory struct {
	cfg    config.DirectoryConfig
	dialer Dialer
	logger *slog.Logger
}

// NewDirectory constructs a Directory.
func NewDirectory(opts DirectoryOptions) *Directory {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	d := &Directory{cfg: opts.Config, dialer: opts.Dialer, logger: logger.With("component", "ldap_directory")}
	if d.dialer == nil {
		d.dialer = DialerFunc(d.dialDefault)
	}
	return d
}

// Connect dials the configured server and applies the operation timeout.
// Failures are wrapped as ldap.ErrorNetwork so callers can tell them from bind results.
func (d *Directory) Connect(ctx context.Context) (ports.DirectoryConn, error) {
	if err := ctx.Err(); err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}
	addr := d.cfg.Address()
	c, err := d.dialer.Dial(ctx, addr)
	if err != nil {
		var le *ldap.Error
		if !errors.As(err, &le) {
			err = ldap.NewError(ldap.ErrorNetwork, err)
		}
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	if d.cfg.Timeout > 0 {
		c.SetTimeout(d.cfg.Timeout)
	}
	d.logger.DebugContext(ctx, "directory connection opened", "addr", addr, "tls_mode", d.cfg.TLSMode)
	return &conn{raw: c, logger: d.logger}, nil
}

func (d *Directory) tlsConfig() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         d.cfg.Host,
		InsecureSkipVerify: d.cfg.TLSSkipVerify, //nolint:gosec // opt-in for lab directories
	}
}

// dialDefault dials with a bounded net.Dialer. go-ldap only speaks protocol v3 and does
// not chase referrals unless asked to.
func (d *Directory) dialDefault(ctx context.Context, hostAndPort string) (Conn, error) {
	nd := &net.Dialer{Timeout: d.cfg.Timeout}

	var (
		netConn net.Conn
		err     error
		isTLS   bool
	)
	if d.cfg.TLSMode == config.TLSModeLDAPS {
		td := &tls.Dialer{NetDialer: nd, Config: d.tlsConfig()}
		netConn, err = td.DialContext(ctx, "tcp", hostAndPort)
		isTLS = true
	} else {
		netConn, err = nd.DialContext(ctx, "tcp", hostAndPort)
	}
	if err != nil {
		return nil, ldap.NewError(ldap.ErrorNetwork, err)
	}

	c := ldap.NewConn(netConn, isTLS)
	c.Start()

	if d.cfg.TLSMode == config.TLSModeStartTLS {
		if err := c.StartTLS(d.tlsConfig()); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("starttls: %w", err)
		}
	}
	return c, nil
}

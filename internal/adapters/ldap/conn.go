package ldap

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"
	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/ports"
)

// Binary attributes are read through ByteValues; everything else as strings.
var binaryAttributes = map[string]bool{
	domainauth.AttrObjectGUID: true,
	"objectsid":               true,
}

type conn struct {
	raw    Conn
	logger *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// Bind authenticates the connection. Rejected credentials are (false, nil).
func (c *conn) Bind(ctx context.Context, identity, secret string) (bool, error) {
	// An empty password would be an unauthenticated simple bind, which many servers accept.
	if secret == "" {
		return false, nil
	}

	var err error
	if cerr := c.guard(ctx, func() { err = c.raw.Bind(identity, secret) }); cerr != nil {
		return false, cerr
	}
	switch {
	case err == nil:
		return true, nil
	case ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials):
		return false, nil
	default:
		return false, err
	}
}

// Search runs a subtree search. A size-limit result that still carries entries counts as success.
func (c *conn) Search(ctx context.Context, req ports.SearchRequest) ([]domainauth.RawEntry, error) {
	sr := ldap.NewSearchRequest(
		req.BaseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		req.SizeLimit,
		0,
		false,
		req.Filter,
		req.Attributes,
		nil,
	)

	var (
		res *ldap.SearchResult
		err error
	)
	if cerr := c.guard(ctx, func() { res, err = c.raw.Search(sr) }); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		if !ldap.IsErrorWithCode(err, ldap.LDAPResultSizeLimitExceeded) || res == nil || len(res.Entries) == 0 {
			return nil, err
		}
		c.logger.WarnContext(ctx, "directory search hit size limit", "filter", req.Filter, "entries", len(res.Entries))
	}
	if res == nil {
		return nil, nil
	}

	out := make([]domainauth.RawEntry, 0, len(res.Entries))
	for _, e := range res.Entries {
		out = append(out, toRawEntry(e))
	}
	return out, nil
}

// Close is idempotent.
func (c *conn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.raw.Close() })
	return c.closeErr
}

// guard runs op, closing the connection if ctx is cancelled first so the blocked call returns.
func (c *conn) guard(ctx context.Context, op func()) error {
	if err := ctx.Err(); err != nil {
		return ldap.NewError(ldap.ErrorNetwork, err)
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	op()
	if !stop() {
		if err := ctx.Err(); err != nil {
			return ldap.NewError(ldap.ErrorNetwork, errors.Join(err, errors.New("directory operation aborted")))
		}
	}
	return nil
}

func toRawEntry(e *ldap.Entry) domainauth.RawEntry {
	attrs := make(map[string]any, len(e.Attributes))
	for _, a := range e.Attributes {
		name := strings.ToLower(a.Name)
		if binaryAttributes[name] {
			attrs[name] = a.ByteValues
			continue
		}
		attrs[name] = a.Values
	}
	return domainauth.RawEntry{DN: e.DN, Attributes: attrs}
}

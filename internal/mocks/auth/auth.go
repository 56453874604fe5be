package auth

// Package auth contains simple hand-written test doubles for auth ports.
// These are lightweight and suitable for unit tests without codegen.

import (
	"context"
	"errors"
	"sync"

	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/ports"
)

// Ensure compile-time conformance to ports.
var (
	_ ports.Directory     = (*FakeDirectory)(nil)
	_ ports.DirectoryConn = (*FakeConn)(nil)
)

// FakeDirectory simulates a directory server. Accounts maps bind identities to passwords;
// Entries are returned for any search whose filter contains the entry's account name.
type FakeDirectory struct {
	ConnectErr error
	Accounts   map[string]string
	Entries    []domainauth.RawEntry

	// Optional overrides.
	BindFunc   func(identity, secret string) (bool, error)
	SearchFunc func(req ports.SearchRequest) ([]domainauth.RawEntry, error)

	mu       sync.Mutex
	connects int
	binds    []string
	searches []ports.SearchRequest
	conns    []*FakeConn
}

// NewFakeDirectory returns a directory holding the given accounts and entries.
func NewFakeDirectory(accounts map[string]string, entries ...domainauth.RawEntry) *FakeDirectory {
	return &FakeDirectory{Accounts: accounts, Entries: entries}
}

func (d *FakeDirectory) Connect(_ context.Context) (ports.DirectoryConn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connects++
	if d.ConnectErr != nil {
		return nil, d.ConnectErr
	}
	c := &FakeConn{dir: d}
	d.conns = append(d.conns, c)
	return c, nil
}

// Connects returns how many connections were requested.
func (d *FakeDirectory) Connects() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects
}

// Binds returns the bind identities attempted, in order.
func (d *FakeDirectory) Binds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.binds...)
}

// Searches returns the search requests issued, in order.
func (d *FakeDirectory) Searches() []ports.SearchRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]ports.SearchRequest(nil), d.searches...)
}

// Calls is the total number of directory interactions.
func (d *FakeDirectory) Calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.connects + len(d.binds) + len(d.searches)
}

// OpenConns counts connections not yet closed.
func (d *FakeDirectory) OpenConns() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	open := 0
	for _, c := range d.conns {
		if !c.closed {
			open++
		}
	}
	return open
}

// FakeConn is a connection handed out by FakeDirectory.
type FakeConn struct {
	dir    *FakeDirectory
	closed bool
}

// ErrConnClosed is returned when a closed FakeConn is used.
var ErrConnClosed = errors.New("fake directory connection closed")

func (c *FakeConn) Bind(_ context.Context, identity, secret string) (bool, error) {
	d := c.dir
	d.mu.Lock()
	if c.closed {
		d.mu.Unlock()
		return false, ErrConnClosed
	}
	d.binds = append(d.binds, identity)
	fn := d.BindFunc
	want, known := d.Accounts[identity]
	d.mu.Unlock()

	if fn != nil {
		return fn(identity, secret)
	}
	return known && secret != "" && want == secret, nil
}

func (c *FakeConn) Search(_ context.Context, req ports.SearchRequest) ([]domainauth.RawEntry, error) {
	d := c.dir
	d.mu.Lock()
	if c.closed {
		d.mu.Unlock()
		return nil, ErrConnClosed
	}
	d.searches = append(d.searches, req)
	fn := d.SearchFunc
	entries := append([]domainauth.RawEntry(nil), d.Entries...)
	d.mu.Unlock()

	if fn != nil {
		return fn(req)
	}

	var out []domainauth.RawEntry
	for _, e := range entries {
		if matchesFilter(e, req.Filter) {
			out = append(out, e)
		}
	}
	if req.SizeLimit > 0 && len(out) > req.SizeLimit {
		out = out[:req.SizeLimit]
	}
	return out, nil
}

func (c *FakeConn) Close() error {
	c.dir.mu.Lock()
	defer c.dir.mu.Unlock()
	c.closed = true
	return nil
}

// matchesFilter understands only (samAccountName=<value>) filters.
func matchesFilter(e domainauth.RawEntry, filter string) bool {
	id := domainauth.MapEntry(e)
	return id.AccountName != "" && filter == "(samAccountName="+id.AccountName+")"
}

package auth

// Package auth contains domain-level types for directory authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"log/slog"
	"strings"
)

// Identity is the normalized result of a directory lookup or a restored session.
// Empty strings mean the attribute was absent in the directory entry.
type Identity struct {
	CommonName        string
	DisplayName       string
	AccountName       string // samAccountName
	Email             string
	UserPrincipalName string
	GivenName         string
	Surname           string
	ObjectID          string // hex-encoded objectGUID
	Groups            []string
}

// StableID returns the identifier used to key the identity: the hex objectGUID when
// present, else the account name. Empty means the identity is unusable.
func (i Identity) StableID() string {
	if i.ObjectID != "" {
		return i.ObjectID
	}
	return i.AccountName
}

// Valid reports whether the identity carries a stable identifier.
func (i Identity) Valid() bool { return i.StableID() != "" }

// Name returns the best human-readable name for the identity.
func (i Identity) Name() string {
	switch {
	case i.DisplayName != "":
		return i.DisplayName
	case i.CommonName != "":
		return i.CommonName
	default:
		return i.AccountName
	}
}

// Credential is the transient login input. It must never be stored in a session;
// its String and LogValue forms omit the password.
type Credential struct {
	RawUsername string
	Domain      string // upper-cased NetBIOS-style domain, empty when not supplied
	AccountName string
	Password    string
}

// ParseUsername splits a raw login name into domain and account parts.
//
//	DOM\bob          -> domain DOM,  account bob
//	bob@corp.local   -> domain CORP, account bob
//	bob              -> no domain,   account bob
func ParseUsername(raw string) Credential {
	raw = strings.TrimSpace(raw)
	c := Credential{RawUsername: raw, AccountName: raw}

	if domain, name, ok := strings.Cut(raw, `\`); ok {
		c.Domain = strings.ToUpper(domain)
		c.AccountName = name
		return c
	}

	if name, domain, ok := strings.Cut(raw, "@"); ok {
		label, _, _ := strings.Cut(domain, ".")
		c.Domain = strings.ToUpper(label)
		c.AccountName = name
	}

	return c
}

// IsUPN reports whether the raw username was given in user@domain form with a domain part.
func (c Credential) IsUPN() bool {
	name, domain, ok := strings.Cut(c.RawUsername, "@")
	return ok && name != "" && domain != "" && !strings.Contains(c.RawUsername, `\`)
}

// ResolvedDomain returns the parsed domain or the supplied default.
func (c Credential) ResolvedDomain(defaultDomain string) string {
	if c.Domain != "" {
		return c.Domain
	}
	return strings.ToUpper(strings.TrimSpace(defaultDomain))
}

// BindIdentity returns the name used for a direct end-user bind. UPNs pass through
// unchanged since directories accept them as bind names.
func (c Credential) BindIdentity(defaultDomain string) string {
	if c.IsUPN() {
		return c.RawUsername
	}
	if domain := c.ResolvedDomain(defaultDomain); domain != "" {
		return domain + `\` + c.AccountName
	}
	return c.AccountName
}

// String implements fmt.Stringer without exposing the password.
func (c Credential) String() string {
	return "Credential{" + c.RawUsername + "}"
}

// GoString keeps %#v from printing the password.
func (c Credential) GoString() string { return c.String() }

// LogValue implements slog.LogValuer.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("input_username", c.RawUsername),
		slog.String("resolved_username", c.AccountName),
		slog.String("resolved_domain", c.Domain),
	)
}

// Session is the persisted session record handled by session backends.
// Values hold the session key-value bag; identity payloads live under well-known keys.
type Session struct {
	ID     string         `json:"id"`
	Values map[string]any `json:"values"`
}

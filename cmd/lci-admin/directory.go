package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/lci/lci-lookup/config"
	ldapadapter "github.com/lci/lci-lookup/internal/adapters/ldap"
	"github.com/lci/lci-lookup/internal/bootstrap"
	domainauth "github.com/lci/lci-lookup/internal/domain/auth"
	"github.com/lci/lci-lookup/internal/ports"
	"github.com/lci/lci-lookup/internal/service"
)

type directoryOptions struct {
	Timeout  time.Duration
	Username string
}

// newDirectoryService builds the login orchestrator without a session backend; the admin
// commands never persist identities.
func newDirectoryService(cfg config.DirectoryConfig, dir ports.Directory, logger *slog.Logger) *service.AuthService {
	if dir == nil {
		dir = ldapadapter.NewDirectory(ldapadapter.DirectoryOptions{Config: cfg, Logger: logger})
	}
	return service.NewAuthService(service.AuthServiceOptions{
		Directory:  dir,
		Config:     cfg,
		Identities: service.NewSessionIdentityStore(service.SessionIdentityStoreOptions{Logger: logger}),
		Logger:     logger,
		Audit:      bootstrap.InitAuditLogger(logger),
	})
}

func runLDAPTest(cmdCtx *commandContext, args []string) error {
	opts, err := parseDirectoryFlags("ldap-test", args, false)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	svc := newDirectoryService(cmdCtx.Config.Auth.Directory, nil, cmdCtx.Logger)
	return ldapTest(ctx, svc, cmdCtx.Config.Auth.Directory, cmdCtx.Out)
}

func ldapTest(ctx context.Context, svc *service.AuthService, cfg config.DirectoryConfig, out io.Writer) error {
	if err := svc.Ping(ctx); err != nil {
		kind := domainauth.KindOf(err)
		if writeErr := writef(out, "LDAP bind FAILED against %s [%s]: %s\n",
			cfg.Address(), kind, domainauth.UserMessage(kind)); writeErr != nil {
			return errors.Join(err, writeErr)
		}
		return err
	}
	what := "connection"
	if cfg.BindMode == config.BindModeService {
		what = "bind as " + cfg.ServiceBindDN
	}
	return writef(out, "LDAP %s successful (%s)\n", what, cfg.Address())
}

func runLookup(cmdCtx *commandContext, args []string) error {
	opts, err := parseDirectoryFlags("lookup", args, true)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, opts.Timeout)
	defer cancel()

	svc := newDirectoryService(cmdCtx.Config.Auth.Directory, nil, cmdCtx.Logger)
	return lookup(ctx, svc, opts.Username, cmdCtx.Out)
}

func lookup(ctx context.Context, svc *service.AuthService, username string, out io.Writer) error {
	res, err := svc.Lookup(ctx, username)
	if err != nil {
		if domainauth.KindOf(err) == domainauth.KindNotFound {
			return writef(out, "No directory entry for %q\n", username)
		}
		return fmt.Errorf("lookup %q: %w", username, err)
	}
	return printLookup(out, res, svc.RequiredGroup())
}

func printLookup(out io.Writer, res service.LookupResult, requiredGroup string) error {
	id := res.Identity
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Account", id.AccountName},
		{"Display name", id.DisplayName},
		{"Common name", id.CommonName},
		{"Given name", id.GivenName},
		{"Surname", id.Surname},
		{"Email", id.Email},
		{"UPN", id.UserPrincipalName},
		{"Object GUID", id.ObjectID},
		{"Groups", fmt.Sprintf("%d", len(id.Groups))},
	}
	for _, row := range rows {
		value := row[1]
		if value == "" {
			value = "-"
		}
		if _, err := fmt.Fprintf(tw, "%s:\t%s\n", row[0], value); err != nil {
			return err
		}
	}
	for _, g := range id.Groups {
		if _, err := fmt.Fprintf(tw, "\t%s\n", g); err != nil {
			return err
		}
	}
	verdict := "NO"
	if res.Authorized {
		verdict = "yes"
	}
	if _, err := fmt.Fprintf(tw, "Member of %s:\t%s\n", requiredGroup, verdict); err != nil {
		return err
	}
	return tw.Flush()
}

func parseDirectoryFlags(name string, args []string, wantUsername bool) (directoryOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	opts := directoryOptions{Timeout: defaultDirectoryTimeout}
	fs.DurationVar(&opts.Timeout, "timeout", defaultDirectoryTimeout, "Maximum duration for the directory round trip")

	if err := fs.Parse(args); err != nil {
		return directoryOptions{}, err
	}
	if opts.Timeout <= 0 {
		return directoryOptions{}, errors.New("--timeout must be greater than zero")
	}
	if wantUsername {
		if fs.NArg() != 1 || strings.TrimSpace(fs.Arg(0)) == "" {
			return directoryOptions{}, fmt.Errorf("usage: lci-admin %s [--timeout d] <username>", name)
		}
		opts.Username = strings.TrimSpace(fs.Arg(0))
	}
	return opts, nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"anchorledger/services/anchord/client"
	"anchorledger/services/anchord/journal"
	"anchorledger/services/anchord/server"
)

func runPause(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	return a.togglePause(ctx, fs, args, true)
}

func runUnpause(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	return a.togglePause(ctx, fs, args, false)
}

func (a *app) togglePause(ctx context.Context, fs *flag.FlagSet, args []string, pause bool) error {
	caller := fs.String("as", "", "Owner address the admin token is minted for")
	ttl := fs.Duration("token-ttl", 2*time.Minute, "Lifetime of the minted admin token")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	owner, err := parseUserFlag(*caller)
	if err != nil {
		return fmt.Errorf("-as: %w", err)
	}
	secret := strings.TrimSpace(os.Getenv(a.profile.AdminSecretEnv))
	if secret == "" {
		return fmt.Errorf("admin secret required; set %s", a.profile.AdminSecretEnv)
	}
	token, err := server.IssueAdminToken([]byte(secret), owner, a.profile.AdminIssuer, a.profile.AdminAudience, *ttl)
	if err != nil {
		return fmt.Errorf("mint admin token: %w", err)
	}
	c, err := client.New(a.profile.Server, append(a.clientOpts, client.WithToken(token))...)
	if err != nil {
		return err
	}
	if pause {
		resp, err := c.Pause(ctx)
		if err != nil {
			return err
		}
		return a.printJSON(resp)
	}
	resp, err := c.Unpause(ctx)
	if err != nil {
		return err
	}
	return a.printJSON(resp)
}

type exportResult struct {
	Path    string `json:"path"`
	Entries int    `json:"entries"`
}

// runExport reads the journal database directly; anchord need not be running.
func runExport(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error {
	out := fs.String("out", "", "Destination parquet file")
	driver := fs.String("driver", "", "Journal driver (default: profile JournalDriver)")
	dsn := fs.String("dsn", "", "Journal DSN (default: profile JournalDSN)")
	userFlag := fs.String("user", "", "Only events for this user")
	since := fs.Uint64("since", 0, "Only events anchored at or after this unix time")
	limit := fs.Int("limit", journal.MaxQueryLimit, "Maximum number of rows")
	if err := a.parse(fs, args); err != nil {
		return err
	}
	if strings.TrimSpace(*out) == "" {
		return errors.New("-out required")
	}
	source := firstNonEmpty(*dsn, a.profile.JournalDSN)
	if source == "" {
		return errors.New("journal dsn required")
	}
	filter := journal.Filter{Since: *since, Limit: *limit}
	if strings.TrimSpace(*userFlag) != "" {
		user, err := parseUserFlag(*userFlag)
		if err != nil {
			return err
		}
		filter.User = &user
	}
	j, err := journal.Open(firstNonEmpty(*driver, a.profile.JournalDriver), source, nil)
	if err != nil {
		return err
	}
	defer j.Close()
	n, err := j.ExportParquet(ctx, *out, filter)
	if err != nil {
		return err
	}
	return a.printJSON(exportResult{Path: *out, Entries: n})
}

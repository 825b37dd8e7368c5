package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/BurntSushi/toml"

	"anchorledger/crypto"
	"anchorledger/services/anchord/client"
)

const (
	defaultProfile        = "./anchorctl.toml"
	defaultServer         = "http://localhost:7081"
	defaultPassEnv        = "ANCHORCTL_PASSPHRASE"
	defaultAdminSecretEnv = "ANCHORD_ADMIN_JWT_SECRET"
)

// profile is the optional TOML file shared by all subcommands.
type profile struct {
	Server         string `toml:"Server"`
	Keystore       string `toml:"Keystore"`
	PassphraseEnv  string `toml:"PassphraseEnv"`
	Bech32Prefix   string `toml:"Bech32Prefix"`
	AdminSecretEnv string `toml:"AdminSecretEnv"`
	AdminIssuer    string `toml:"AdminIssuer"`
	AdminAudience  string `toml:"AdminAudience"`
	JournalDriver  string `toml:"JournalDriver"`
	JournalDSN     string `toml:"JournalDSN"`
}

func (p *profile) applyDefaults() {
	if p.Server == "" {
		p.Server = defaultServer
	}
	if p.PassphraseEnv == "" {
		p.PassphraseEnv = defaultPassEnv
	}
	if p.Bech32Prefix == "" {
		p.Bech32Prefix = crypto.DisplayPrefix
	}
	if p.AdminSecretEnv == "" {
		p.AdminSecretEnv = defaultAdminSecretEnv
	}
	if p.JournalDriver == "" {
		p.JournalDriver = "sqlite"
	}
}

// loadProfile reads path. A missing default profile is not an error.
func loadProfile(path string, explicit bool) (profile, error) {
	var p profile
	if strings.TrimSpace(path) != "" {
		if _, err := toml.DecodeFile(path, &p); err != nil {
			if !explicit && errors.Is(err, fs.ErrNotExist) {
				p.applyDefaults()
				return p, nil
			}
			return p, fmt.Errorf("read profile %s: %w", path, err)
		}
	}
	p.applyDefaults()
	return p, nil
}

type app struct {
	stdout      io.Writer
	profile     profile
	profilePath *string
	clientOpts  []client.Option
}

// parse parses the subcommand flags and loads the profile they select.
func (a *app) parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	path, explicit := *a.profilePath, true
	if path == "" {
		path, explicit = defaultProfile, false
	}
	p, err := loadProfile(path, explicit)
	if err != nil {
		return err
	}
	a.profile = p
	return nil
}

type command struct {
	name  string
	usage string
	run   func(a *app, ctx context.Context, fs *flag.FlagSet, args []string) error
}

var commands = []command{
	{"keygen", "create a signing key in an encrypted keystore", runKeygen},
	{"address", "print the address held by a keystore", runAddress},
	{"hash", "hash a document with keccak256 or blake3", runHash},
	{"anchor", "sign and submit an anchor", runAnchor},
	{"verify", "check whether a user anchored a hash", runVerify},
	{"status", "show a user's nonce, quota and cooldown", runStatus},
	{"history", "list a user's anchors", runHistory},
	{"domain", "show the typed-data domain and limits", runDomain},
	{"events", "read the audit journal", runEvents},
	{"pause", "pause anchoring (owner only)", runPause},
	{"unpause", "resume anchoring (owner only)", runUnpause},
	{"export", "export journal entries to parquet", runExport},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, opts ...client.Option) error {
	if len(args) < 1 {
		usage(stderr)
		return errors.New("missing command")
	}
	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		fs := flag.NewFlagSet(cmd.name, flag.ContinueOnError)
		fs.SetOutput(stderr)
		a := &app{stdout: stdout, clientOpts: opts}
		a.profilePath = fs.String("profile", "", "Path to the anchorctl TOML profile (default "+defaultProfile+")")
		return cmd.run(a, ctx, fs, args[1:])
	}
	usage(stderr)
	return fmt.Errorf("unknown command %q", args[0])
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "Usage: anchorctl <command> [flags]")
	fmt.Fprintln(w)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-10s %s\n", cmd.name, cmd.usage)
	}
}

func (a *app) client() (*client.Client, error) {
	return client.New(a.profile.Server, a.clientOpts...)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

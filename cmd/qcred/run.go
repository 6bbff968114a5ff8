package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kardianos/qcred"
	"github.com/kardianos/qcred/qdef"
	"github.com/kardianos/qcred/qgate"
	"github.com/kardianos/qcred/qhost"
	"golang.org/x/term"
)

// CommonOptions are shared by every mode.
type CommonOptions struct {
	Config  qhost.Config
	Verbose bool

	Service string
	Account string
	Long    bool
}

// keyLister is implemented by custodians that can enumerate their keys.
type keyLister interface {
	Keys() ([]string, error)
}

// keyDater is implemented by custodians that record key creation time.
type keyDater interface {
	Created(alias string) (time.Time, error)
}

// register binds the host flags, defaulting to the environment.
func (o *CommonOptions) register(fs *flag.FlagSet) {
	cfg, err := qhost.ConfigFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	o.Config = cfg
	fs.StringVar(&o.Config.AppID, "app", cfg.AppID, "Application ID that namespaces credentials")
	fs.StringVar(&o.Config.DataDir, "data", cfg.DataDir, "Data directory (default per-user directory)")
	fs.StringVar(&o.Config.Preferences, "prefs", cfg.Preferences, "Preference store: config, file, bolt, registry")
	fs.StringVar(&o.Config.PreferencesName, "name", cfg.PreferencesName, "Preference store name")
	fs.StringVar(&o.Config.Custodian, "custodian", cfg.Custodian, "Key custodian: sealed, keyring")
	fs.StringVar(&o.Config.KeyringBackend, "keyring-backend", cfg.KeyringBackend, "Keyring backend when -custodian=keyring")
	fs.BoolVar(&o.Verbose, "v", false, "Log debug output to stderr")
}

func (o *CommonOptions) parse(fs *flag.FlagSet, args []string) error {
	return fs.Parse(args)
}

func (o *CommonOptions) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func (o *CommonOptions) requireIdentity(needAccount bool) error {
	if o.Service == "" {
		return errors.New("-service is required")
	}
	if needAccount && o.Account == "" {
		return errors.New("-account is required")
	}
	return nil
}

// open builds a host and a store bound to it.
func (o *CommonOptions) open() (*qcred.Store, *qhost.Host, error) {
	logger := o.logger()
	host, err := qhost.Open(o.Config, logger)
	if err != nil {
		return nil, nil, err
	}
	gate := qgate.New(logger)
	if err := gate.Initialize(host); err != nil {
		host.Close()
		return nil, nil, err
	}
	store := qcred.New(gate, qcred.Options{
		Logger:      logger,
		Preferences: o.Config.PreferencesName,
	})
	return store, host, nil
}

func RunSet(opts *CommonOptions, in *os.File) error {
	if err := opts.requireIdentity(true); err != nil {
		return err
	}
	password, err := readPassword(in)
	if err != nil {
		return err
	}
	store, host, err := opts.open()
	if err != nil {
		return err
	}
	defer host.Close()

	return store.SetPassword(opts.Service, opts.Account, password)
}

func RunGet(opts *CommonOptions, w io.Writer) error {
	if err := opts.requireIdentity(true); err != nil {
		return err
	}
	store, host, err := opts.open()
	if err != nil {
		return err
	}
	defer host.Close()

	password, err := store.GetPassword(opts.Service, opts.Account)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, password)
	return err
}

func RunDelete(opts *CommonOptions) error {
	if err := opts.requireIdentity(true); err != nil {
		return err
	}
	store, host, err := opts.open()
	if err != nil {
		return err
	}
	defer host.Close()

	return store.DeletePassword(opts.Service, opts.Account)
}

func RunList(opts *CommonOptions, w io.Writer) error {
	if err := opts.requireIdentity(false); err != nil {
		return err
	}
	store, host, err := opts.open()
	if err != nil {
		return err
	}
	defer host.Close()

	accounts, err := store.FindCredentials(opts.Service)
	if err != nil {
		return err
	}
	var kd keyDater
	if opts.Long {
		c, err := host.Custodian()
		if err != nil {
			return err
		}
		kd, _ = c.(keyDater)
	}
	for _, a := range accounts {
		if kd == nil {
			if _, err := fmt.Fprintln(w, a); err != nil {
				return err
			}
			continue
		}
		alias := qdef.Identity{Service: opts.Service, Account: a}.Alias(host.AppID())
		created, err := kd.Created(alias)
		if err != nil {
			// The blob exists but its key does not.
			fmt.Fprintf(w, "%s\t-\n", a)
			continue
		}
		if _, err := fmt.Fprintf(w, "%s\t%s\n", a, created.Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}

func RunInfo(opts *CommonOptions, w io.Writer) error {
	store, host, err := opts.open()
	if err != nil {
		return err
	}
	defer host.Close()

	prefs, err := host.Preferences(opts.Config.PreferencesName)
	if err != nil {
		return err
	}
	cfg := host.Config()
	fmt.Fprintf(w, "vendor:      %s\n", store.Vendor())
	fmt.Fprintf(w, "id:          %s\n", store.ID())
	fmt.Fprintf(w, "app:         %s\n", cfg.AppID)
	fmt.Fprintf(w, "data:        %s\n", host.Dir())
	fmt.Fprintf(w, "preferences: %s (%s)\n", prefs.Path(), cfg.Preferences)
	fmt.Fprintf(w, "custodian:   %s\n", cfg.Custodian)
	c, err := host.Custodian()
	if err != nil {
		return err
	}
	if kl, ok := c.(keyLister); ok {
		keys, err := kl.Keys()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "keys:        %d\n", len(keys))
		return err
	}
	return nil
}

// readPassword prompts without echo on a terminal, or reads one line otherwise.
func readPassword(in *os.File) (string, error) {
	fd := int(in.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

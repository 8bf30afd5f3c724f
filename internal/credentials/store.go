// Package credentials stores the site login. The OS credential store is
// the default; an age-encrypted file serves hosts without one.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	logx "woonbot/pkg/logx"
)

const Service = "woonbot"

var (
	ErrNotFound     = errors.New("credentials: not found")
	ErrNoPassphrase = errors.New("credentials: passphrase required for file store")
)

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) Complete() bool { return c.Username != "" && c.Password != "" }

type Store interface {
	Get(ctx context.Context) (Credentials, error)
	Save(ctx context.Context, c Credentials) error
	Delete(ctx context.Context) error
	Name() string
}

type Options struct {
	// Backend is "auto", "keyring" or "file".
	Backend    string
	Path       string
	Passphrase string
	// EnvUsername and EnvPassword name variables that override stored
	// values. Empty names disable the override.
	EnvUsername string
	EnvPassword string
	Log         logx.Logger
}

// Open builds the configured store, wrapped with the environment override.
func Open(opts Options) (Store, error) {
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	var st Store
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", "auto":
		var fallback Store
		if opts.Passphrase != "" {
			fallback = NewFileStore(opts.Path, opts.Passphrase)
		}
		st = &autoStore{primary: NewKeyringStore(Service), fallback: fallback, log: log}
	case "keyring":
		st = NewKeyringStore(Service)
	case "file":
		if opts.Passphrase == "" {
			return nil, ErrNoPassphrase
		}
		st = NewFileStore(opts.Path, opts.Passphrase)
	default:
		return nil, fmt.Errorf("credentials: unknown backend %q", opts.Backend)
	}
	if opts.EnvUsername == "" && opts.EnvPassword == "" {
		return st, nil
	}
	return &envStore{Store: st, userVar: opts.EnvUsername, passVar: opts.EnvPassword}, nil
}

// autoStore uses the keyring and falls back to the file store when the
// keyring backend itself fails (no secret service, locked keychain).
type autoStore struct {
	primary  Store
	fallback Store
	log      logx.Logger
}

func (a *autoStore) Name() string { return "auto" }

func (a *autoStore) unavailable(err error) bool {
	return err != nil && !errors.Is(err, ErrNotFound) && a.fallback != nil
}

func (a *autoStore) Get(ctx context.Context) (Credentials, error) {
	c, err := a.primary.Get(ctx)
	if errors.Is(err, ErrNotFound) && a.fallback != nil {
		return a.fallback.Get(ctx)
	}
	if a.unavailable(err) {
		a.log.Warn("keyring unavailable; using credentials file", logx.Err(err))
		return a.fallback.Get(ctx)
	}
	return c, err
}

func (a *autoStore) Save(ctx context.Context, c Credentials) error {
	err := a.primary.Save(ctx, c)
	if a.unavailable(err) {
		a.log.Warn("keyring unavailable; saving to credentials file", logx.Err(err))
		return a.fallback.Save(ctx, c)
	}
	return err
}

func (a *autoStore) Delete(ctx context.Context) error {
	err := a.primary.Delete(ctx)
	if a.fallback != nil {
		if ferr := a.fallback.Delete(ctx); ferr != nil && !errors.Is(ferr, ErrNotFound) {
			return ferr
		}
		if errors.Is(err, ErrNotFound) || a.unavailable(err) {
			return nil
		}
	}
	return err
}

// envStore lets environment variables win over stored values. Writes go
// to the wrapped store.
type envStore struct {
	Store
	userVar, passVar string
}

func (e *envStore) Get(ctx context.Context) (Credentials, error) {
	env := Credentials{Username: lookup(e.userVar), Password: lookup(e.passVar)}
	if env.Complete() {
		return env, nil
	}
	c, err := e.Store.Get(ctx)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Credentials{}, err
	}
	if env.Username != "" {
		c.Username = env.Username
	}
	if env.Password != "" {
		c.Password = env.Password
	}
	if !c.Complete() {
		return Credentials{}, ErrNotFound
	}
	return c, nil
}

func lookup(name string) string {
	if name == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(name))
}

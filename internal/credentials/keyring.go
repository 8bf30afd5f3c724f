package credentials

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// usernameAccount holds the username; the password is stored under the
// username itself.
const usernameAccount = "username"

type KeyringStore struct {
	service string
}

func NewKeyringStore(service string) *KeyringStore {
	return &KeyringStore{service: service}
}

func (k *KeyringStore) Name() string { return "keyring" }

func (k *KeyringStore) Get(_ context.Context) (Credentials, error) {
	user, err := keyring.Get(k.service, usernameAccount)
	if err != nil {
		return Credentials{}, mapErr(err)
	}
	pass, err := keyring.Get(k.service, user)
	if err != nil {
		return Credentials{}, mapErr(err)
	}
	return Credentials{Username: user, Password: pass}, nil
}

func (k *KeyringStore) Save(ctx context.Context, c Credentials) error {
	if !c.Complete() {
		return errors.New("credentials: username and password are required")
	}
	// A changed username would orphan the old password entry.
	if old, err := k.Get(ctx); err == nil && old.Username != c.Username {
		_ = keyring.Delete(k.service, old.Username)
	}
	if err := keyring.Set(k.service, usernameAccount, c.Username); err != nil {
		return fmt.Errorf("keyring set username: %w", err)
	}
	if err := keyring.Set(k.service, c.Username, c.Password); err != nil {
		return fmt.Errorf("keyring set password: %w", err)
	}
	return nil
}

func (k *KeyringStore) Delete(_ context.Context) error {
	user, err := keyring.Get(k.service, usernameAccount)
	if err != nil {
		return mapErr(err)
	}
	if err := keyring.Delete(k.service, user); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return err
	}
	return mapErr(keyring.Delete(k.service, usernameAccount))
}

func mapErr(err error) error {
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

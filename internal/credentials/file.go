package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// FileStore keeps the credentials in a passphrase-encrypted age file.
type FileStore struct {
	path       string
	passphrase string
	workFactor int
}

func NewFileStore(path, passphrase string) *FileStore {
	return &FileStore{path: path, passphrase: passphrase}
}

func (f *FileStore) Name() string { return "file" }

type fileRecord struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (f *FileStore) Get(_ context.Context) (Credentials, error) {
	raw, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Credentials{}, ErrNotFound
	}
	if err != nil {
		return Credentials{}, err
	}
	id, err := age.NewScryptIdentity(f.passphrase)
	if err != nil {
		return Credentials{}, fmt.Errorf("scrypt identity: %w", err)
	}
	r, err := age.Decrypt(bytes.NewReader(raw), id)
	if err != nil {
		return Credentials{}, fmt.Errorf("decrypting %s: %w", filepath.Base(f.path), err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return Credentials{}, fmt.Errorf("reading decrypted credentials: %w", err)
	}
	var rec fileRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		return Credentials{}, fmt.Errorf("decoding credentials: %w", err)
	}
	return Credentials{Username: rec.Username, Password: rec.Password}, nil
}

func (f *FileStore) Save(_ context.Context, c Credentials) error {
	if !c.Complete() {
		return errors.New("credentials: username and password are required")
	}
	rcpt, err := age.NewScryptRecipient(f.passphrase)
	if err != nil {
		return fmt.Errorf("scrypt recipient: %w", err)
	}
	if f.workFactor > 0 {
		rcpt.SetWorkFactor(f.workFactor)
	}
	plain, err := json.Marshal(fileRecord{Username: c.Username, Password: c.Password})
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	w, err := age.Encrypt(&buf, rcpt)
	if err != nil {
		return fmt.Errorf("creating age encryptor: %w", err)
	}
	if _, err := w.Write(plain); err != nil {
		return fmt.Errorf("writing to age encryptor: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing age encryption: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return err
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, f.path)
}

func (f *FileStore) Delete(_ context.Context) error {
	err := os.Remove(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

package credentials

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/zalando/go-keyring"
)

func TestKeyringStoreLayout(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	st := NewKeyringStore("woonbot-test")

	if _, err := st.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty get err=%v", err)
	}
	if err := st.Save(ctx, Credentials{Username: "jan@example.nl", Password: "hunter2"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if u, _ := keyring.Get("woonbot-test", "username"); u != "jan@example.nl" {
		t.Fatalf("username entry %q", u)
	}
	if p, _ := keyring.Get("woonbot-test", "jan@example.nl"); p != "hunter2" {
		t.Fatalf("password entry %q", p)
	}

	// Switching accounts removes the old password entry.
	if err := st.Save(ctx, Credentials{Username: "piet@example.nl", Password: "x"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := keyring.Get("woonbot-test", "jan@example.nl"); !errors.Is(err, keyring.ErrNotFound) {
		t.Fatalf("old password still present: %v", err)
	}

	if err := st.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := st.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("after delete err=%v", err)
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "sub", "credentials.age")
	st := NewFileStore(path, "correct horse")
	st.workFactor = 10

	if _, err := st.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing file err=%v", err)
	}
	want := Credentials{Username: "jan", Password: "geheim"}
	if err := st.Save(ctx, want); err != nil {
		t.Fatalf("save: %v", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(string(raw), "geheim") {
		t.Fatalf("password stored in clear text")
	}
	got, err := st.Get(ctx)
	if err != nil || got != want {
		t.Fatalf("get=%+v err=%v", got, err)
	}

	wrong := NewFileStore(path, "wrong")
	if _, err := wrong.Get(ctx); err == nil {
		t.Fatalf("expected decrypt error with wrong passphrase")
	}
	if err := st.Delete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
}

func TestEnvOverride(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	t.Setenv("WB_TEST_USER", "env-user")
	t.Setenv("WB_TEST_PASS", "")

	st, err := Open(Options{Backend: "keyring", EnvUsername: "WB_TEST_USER", EnvPassword: "WB_TEST_PASS"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	// Username from env, no password anywhere.
	if _, err := st.Get(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v, want ErrNotFound", err)
	}
	if err := st.Save(ctx, Credentials{Username: "stored", Password: "pw"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := st.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Username != "env-user" || got.Password != "pw" {
		t.Fatalf("got %+v", got)
	}

	t.Setenv("WB_TEST_PASS", "env-pass")
	got, _ = st.Get(ctx)
	if got != (Credentials{Username: "env-user", Password: "env-pass"}) {
		t.Fatalf("got %+v", got)
	}
}

func TestAutoFallsBackWhenKeyringBroken(t *testing.T) {
	keyring.MockInitWithError(errors.New("no secret service"))
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials.age")

	st, err := Open(Options{Backend: "auto", Path: path, Passphrase: "pp"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := st.Save(ctx, Credentials{Username: "u", Password: "p"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("fallback file not written: %v", err)
	}
	got, err := st.Get(ctx)
	if err != nil || got.Username != "u" {
		t.Fatalf("get=%+v err=%v", got, err)
	}
}

func TestOpenFileRequiresPassphrase(t *testing.T) {
	t.Parallel()
	if _, err := Open(Options{Backend: "file", Path: "x"}); !errors.Is(err, ErrNoPassphrase) {
		t.Fatalf("err=%v", err)
	}
	if _, err := Open(Options{Backend: "vault"}); err == nil {
		t.Fatalf("expected unknown backend error")
	}
}

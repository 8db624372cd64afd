package tokenstore

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"filippo.io/age"
)

func TestFileBackendPersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "tokens.json")

	b, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := New(b).SaveSession(ctx, "a1", "r1", "u@example.com"); err != nil {
		t.Fatalf("save: %v", err)
	}

	reopened, err := NewFileBackend(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	got, err := New(reopened).Tokens(ctx)
	if err != nil {
		t.Fatalf("tokens: %v", err)
	}
	if got.AccessToken != "a1" || got.RefreshToken != "r1" || got.Email != "u@example.com" {
		t.Fatalf("unexpected tokens %+v", got)
	}
}

func TestFileBackendMissingFileIsEmpty(t *testing.T) {
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, ok, err := b.Get(context.Background(), KeyAccessToken); err != nil || ok {
		t.Fatalf("expected empty, ok=%v err=%v", ok, err)
	}
}

func TestFileBackendTTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	b, err := NewFileBackend(filepath.Join(t.TempDir(), "t.json"), WithFileClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.Set(ctx, KeyDeviceFPCache, "fp", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, ok, _ := b.Get(ctx, KeyDeviceFPCache); ok {
		t.Fatalf("expected expired entry")
	}
}

func TestFileBackendEncrypted(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tokens.age")

	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	b, err := NewFileBackend(path, WithAgeIdentity(id))
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := b.Set(ctx, KeyRefreshToken, "secret-refresh", 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(raw, []byte("secret-refresh")) {
		t.Fatalf("token stored in plaintext")
	}

	parsed, err := ParseAgeIdentity(id.String())
	if err != nil {
		t.Fatalf("parse identity: %v", err)
	}
	reopened, _ := NewFileBackend(path, WithAgeIdentity(parsed))
	v, ok, err := reopened.Get(ctx, KeyRefreshToken)
	if err != nil || !ok || v != "secret-refresh" {
		t.Fatalf("get: %q %v %v", v, ok, err)
	}

	other, _ := age.GenerateX25519Identity()
	wrong, _ := NewFileBackend(path, WithAgeIdentity(other))
	if _, _, err := wrong.Get(ctx, KeyRefreshToken); err == nil {
		t.Fatalf("expected decryption failure with foreign identity")
	}
}

func TestNewFileBackendRequiresPath(t *testing.T) {
	if _, err := NewFileBackend(""); err == nil {
		t.Fatalf("expected error for empty path")
	}
}

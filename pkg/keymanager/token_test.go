package keymanager

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTokenGeneratedOnce(t *testing.T) {
	dir := t.TempDir()

	token, err := LoadOrCreateToken(dir, "")
	if err != nil {
		t.Fatalf("LoadOrCreateToken: %s", err)
	}
	if len(token) != 64 {
		t.Fatalf("expected 32 hex-encoded bytes, got %q", token)
	}

	again, err := LoadOrCreateToken(dir, "")
	if err != nil {
		t.Fatalf("second LoadOrCreateToken: %s", err)
	}
	if token != again {
		t.Errorf("token changed between loads")
	}

	info, err := os.Stat(filepath.Join(dir, tokenFileName))
	if err != nil {
		t.Fatalf("token file missing: %s", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("token file permissions %o, expected 600", info.Mode().Perm())
	}
}

func TestTokenPathOverride(t *testing.T) {
	dir := t.TempDir()
	custom := filepath.Join(dir, "custom", "token.txt")

	token, err := LoadOrCreateToken(dir, custom)
	if err != nil {
		t.Fatalf("LoadOrCreateToken: %s", err)
	}
	if token == "" {
		t.Fatalf("empty token")
	}
	if _, err := os.Stat(custom); err != nil {
		t.Errorf("token not written to override path: %s", err)
	}
}

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()

	store, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("OpenStore: %s", err)
	}
	key := RemoteKey{Pubkey: "0xaa", URL: "http://signer:9000"}
	if err := store.Add(key); err != nil {
		t.Fatalf("Add: %s", err)
	}

	reopened, err := OpenStore(dir)
	if err != nil {
		t.Fatalf("reopen: %s", err)
	}
	keys := reopened.List()
	if len(keys) != 1 || keys[0] != key {
		t.Fatalf("unexpected keys after reopen: %+v", keys)
	}

	if err := reopened.Delete("0xaa"); err != nil {
		t.Fatalf("Delete: %s", err)
	}
	if len(reopened.List()) != 0 {
		t.Errorf("key survived deletion")
	}
}

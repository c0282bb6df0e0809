package keys

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreate_PersistsKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.key")

	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("key file not written: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("key file mode = %v, want 0600", info.Mode().Perm())
	}

	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !first.Equals(second) {
		t.Error("reloaded key differs from generated key")
	}
}

func TestLoadOrCreate_ReplacesCorruptKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.key")
	if err := os.WriteFile(path, []byte("garbage"), 0600); err != nil {
		t.Fatal(err)
	}

	k, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	again, err := LoadOrCreate(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !k.Equals(again) {
		t.Error("replacement key was not persisted")
	}
}

func TestSeed(t *testing.T) {
	k, err := LoadOrCreate(filepath.Join(t.TempDir(), "node.key"))
	if err != nil {
		t.Fatal(err)
	}
	seed, err := Seed(k)
	if err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if len(seed) == 0 {
		t.Error("empty seed")
	}
}

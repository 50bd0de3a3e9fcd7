package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("URBANLENS_TEST_ONLY=from-file\nURBANLENS_TEST_SET=from-file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("URBANLENS_TEST_SET", "from-env")
	t.Cleanup(func() { os.Unsetenv("URBANLENS_TEST_ONLY") })

	found, err := LoadEnv(path)
	if err != nil {
		t.Fatalf("LoadEnv: %v", err)
	}
	if !found {
		t.Fatal("expected file to be found")
	}
	if got := os.Getenv("URBANLENS_TEST_ONLY"); got != "from-file" {
		t.Errorf("URBANLENS_TEST_ONLY = %q, want from-file", got)
	}
	if got := os.Getenv("URBANLENS_TEST_SET"); got != "from-env" {
		t.Errorf("existing variable overridden: %q", got)
	}
}

func TestLoadEnvMissingFile(t *testing.T) {
	found, err := LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("missing file should not fail: %v", err)
	}
	if found {
		t.Fatal("missing file reported as found")
	}
}

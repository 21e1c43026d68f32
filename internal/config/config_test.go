package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTestConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTestConfig(t, `
port = 6287
domain = "localhost"
storage = "./data"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.DefaultListLimit != 100 {
		t.Fatalf("default_list_limit = %d, want 100", cfg.DefaultListLimit)
	}
	if cfg.MaxListLimit != 1000 {
		t.Fatalf("max_list_limit = %d, want 1000", cfg.MaxListLimit)
	}
}

func TestLoadRejectsMissingDomain(t *testing.T) {
	path := writeTestConfig(t, `
port = 6287
storage = "./data"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing domain")
	}
}

func TestLoadRejectsBadSecretKey(t *testing.T) {
	path := writeTestConfig(t, `
port = 6287
domain = "localhost"
storage = "./data"
secret_key = "not-hex"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for non-hex secret_key")
	}
}

func TestLoadRejectsShortSecretKey(t *testing.T) {
	path := writeTestConfig(t, `
port = 6287
domain = "localhost"
storage = "./data"
secret_key = "aabb"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for short secret_key")
	}
}

func TestLoadRejectsListLimitInversion(t *testing.T) {
	path := writeTestConfig(t, `
port = 6287
domain = "localhost"
storage = "./data"
default_list_limit = 2000
max_list_limit = 1000
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for default_list_limit > max_list_limit")
	}
}

func TestLoadExpandsStoragePath(t *testing.T) {
	path := writeTestConfig(t, `
port = 6287
domain = "localhost"
storage = "~/pubky-data"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage == "~/pubky-data" {
		t.Fatal("expected storage path to be expanded")
	}
}

func TestBootstrapListParsed(t *testing.T) {
	path := writeTestConfig(t, `
port = 6287
domain = "localhost"
storage = "./data"
bootstrap = ["node1.example.com:6881", "node2.example.com:6881"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Bootstrap) != 2 {
		t.Fatalf("bootstrap len = %d, want 2", len(cfg.Bootstrap))
	}
}

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tunebox/internal/config"
	"tunebox/internal/logging"
)

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		forceInit = false
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInitAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tunebox.toml")

	out, err := runCommand(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init failed: %v", err)
	}
	if !strings.Contains(out, path) {
		t.Errorf("unexpected output: %q", out)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}

	if _, err := runCommand(t, "config", "init", "--config", path); err == nil {
		t.Error("expected error when the file already exists")
	}
	if _, err := runCommand(t, "config", "init", "--config", path, "--force"); err != nil {
		t.Errorf("config init --force failed: %v", err)
	}

	out, err = runCommand(t, "config", "check", "--config", path)
	if err != nil {
		t.Fatalf("config check failed: %v", err)
	}
	if !strings.Contains(out, "storage=disk") {
		t.Errorf("unexpected check output: %q", out)
	}
}

func TestOpenBackendAndStore(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Storage.Backend = "memory"
	cfg.Database.Driver = "memory"

	logger := logging.Discard()

	st, err := openStore(cfg, logger)
	if err != nil {
		t.Fatalf("openStore() error: %v", err)
	}
	defer st.Close()

	cfg.Storage.Backend = "disk"
	cfg.Storage.DataDir = t.TempDir()
	backend, err := openBackend(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("openBackend() error: %v", err)
	}
	if backend == nil {
		t.Fatal("openBackend() returned nil backend")
	}
}

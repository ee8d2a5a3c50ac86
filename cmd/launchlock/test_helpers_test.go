package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"launchlock/internal/clock"
	"launchlock/internal/config"
	"launchlock/internal/listings"
	"launchlock/internal/queue"
	"launchlock/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	queue      *queue.Store
	listings   *listings.Store
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	configPath := filepath.Join(base, "launchlock.toml")
	writeTestConfig(t, configPath, cfg)

	db := testsupport.MustOpenDB(t, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		queue:      queue.NewStore(db, clock.Real()),
		listings:   listings.NewStore(db, clock.Real()),
	}
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	return runCLI(t, args, e.configPath)
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, stderr, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("launchlock %s: %v (stderr: %s)", strings.Join(args, " "), err, stderr)
	}
	return stdout
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\n\n[worker]\nid = %q\n\n[marketplace]\napi_key = %q\nbase_url = %q\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Worker.ID,
		cfg.Marketplace.APIKey,
		cfg.Marketplace.BaseURL,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

// queuedID extracts the command id from "Queued <type> command <id>".
func queuedID(t *testing.T, output string) string {
	t.Helper()
	fields := strings.Fields(strings.TrimSpace(output))
	if len(fields) == 0 {
		t.Fatalf("no command id in %q", output)
	}
	return fields[len(fields)-1]
}

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-matrix/internal/audit"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-matrix/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-matrix/migrations"
)

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config failure", err)
	}
}

// TestRun_MissingConnection verifies run refuses a config without a matrix URL.
func TestRun_MissingConnection(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
site:
  id: test-site

database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "test-client"

matrix:
  id: lounge
  connection: ""
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", configPath)
	t.Setenv("GRAYLOGIC_MATRIX_CONNECTION", "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail without matrix.connection")
	}
	if !strings.Contains(err.Error(), "matrix.connection") {
		t.Errorf("run() error = %v, want matrix.connection validation", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestChannelConfig(t *testing.T) {
	m := config.MatrixConfig{
		Connection:       "tcp://10.0.0.5:23",
		ConnectTimeout:   2 * time.Second,
		IdleTimeout:      250 * time.Millisecond,
		WriteTimeout:     time.Second,
		MaxResponseBytes: 4096,
	}
	got := channelConfig(m)
	if got.Connection != m.Connection || got.ConnectTimeout != m.ConnectTimeout ||
		got.IdleTimeout != m.IdleTimeout || got.WriteTimeout != m.WriteTimeout ||
		got.MaxResponseBytes != m.MaxResponseBytes {
		t.Errorf("channelConfig() = %+v", got)
	}
	if got.Framer != nil {
		t.Error("channelConfig() should leave the framer to the channel defaults")
	}
}

// TestPruneAudit verifies old entries go at startup and the loop exits on cancel.
func TestPruneAudit(t *testing.T) {
	db, err := database.Open(config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "audit.db"), WALMode: true, BusyTimeout: 5})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}

	repo := audit.NewSQLiteRepository(db.DB)
	old := &audit.Entry{Action: audit.ActionCommand, EntityType: audit.EntityMatrix, EntityID: "lounge", Source: "mqtt",
		CreatedAt: time.Now().AddDate(0, 0, -40)}
	recent := &audit.Entry{Action: audit.ActionCommand, EntityType: audit.EntityMatrix, EntityID: "lounge", Source: "mqtt"}
	for _, e := range []*audit.Entry{old, recent} {
		if err := repo.Create(ctx, e); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	done := make(chan struct{})
	go func() {
		pruneAudit(ctx, repo, 30, logging.Default())
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for {
		res, err := repo.List(ctx, audit.Filter{})
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		if res.Total == 1 {
			if res.Entries[0].ID != recent.ID {
				t.Errorf("kept %s, want %s", res.Entries[0].ID, recent.ID)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("entries = %d, want 1 after prune", res.Total)
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pruneAudit did not return after cancel")
	}
}

// TestRun_SuccessfulStartupAndShutdown tests full startup against a local broker.
// Requires MQTT broker at 127.0.0.1:1883.
func TestRun_SuccessfulStartupAndShutdown(t *testing.T) {
	if os.Getenv("GRAYLOGIC_TEST_MQTT") == "" {
		t.Skip("set GRAYLOGIC_TEST_MQTT=1 with a broker on 127.0.0.1:1883")
	}

	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "test-config.yaml")

	configContent := `
site:
  id: test-site

database:
  path: "` + filepath.Join(tmpDir, "test.db") + `"

mqtt:
  broker:
    host: "127.0.0.1"
    port: 1883
    client_id: "matrix-test-run"

influxdb:
  enabled: false

logging:
  level: debug
  format: text

matrix:
  id: test-matrix
  connection: "tcp://127.0.0.1:1"
  poll_interval: 1h
  trace_file: "` + filepath.Join(tmpDir, "wire.cbor") + `"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

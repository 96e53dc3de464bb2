package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "docSyncConfig.yaml"), []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return dir
}

func TestLoadFromFile(t *testing.T) {
	dir := writeConfig(t, `
running:
  port: 9090
storage:
  driver: memory
  documents:
    - id: D1
      owner: 1
  users: [1, 2]
kafka:
  brokers: ["k1:9092", "k2:9092"]
  topic: events
  basebackoff: 10ms
`)
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	assert.Equal(t, cfg.Running.Port, 9090)
	assert.Equal(t, cfg.Storage.Documents, []SeedDocument{{ID: "D1", Owner: 1}})
	assert.Equal(t, cfg.Storage.Users, []uint64{1, 2})
	assert.Equal(t, cfg.Kafka.Brokers, []string{"k1:9092", "k2:9092"})
	assert.Equal(t, cfg.Kafka.BaseBackoff, 10*time.Millisecond)
	// 未配置的项取默认值
	assert.Equal(t, cfg.Kafka.MaxBackoff, time.Second)
	assert.Equal(t, cfg.Collab.SubscriberBuffer, 32)
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load(t.TempDir())
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	assert.Equal(t, cfg.Running.Port, 8080)
	assert.Equal(t, cfg.Storage.Driver, DriverMemory)
	assert.Equal(t, cfg.Log.Level, "info")
}

func TestEnvOverrides(t *testing.T) {
	dir := writeConfig(t, "running:\n  port: 9090\n")
	t.Setenv("DOCSYNC_RUNNING_PORT", "7070")
	t.Setenv("DOCSYNC_AUTH_SECRET", "s3cret")
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	assert.Equal(t, cfg.Running.Port, 7070)
	assert.Equal(t, cfg.Auth.Secret, "s3cret")
}

func TestValidate(t *testing.T) {
	dir := writeConfig(t, "storage:\n  driver: mysql\n")
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error for mysql without dsn")
	}
	dir = writeConfig(t, "storage:\n  driver: rocks\n")
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}

func TestStringHidesSecrets(t *testing.T) {
	cfg := &Config{}
	cfg.Mysql.DSN = "root:pw@tcp(db)/x"
	cfg.Auth.Secret = "top"
	s := cfg.String()
	for _, secret := range []string{"pw@", "top"} {
		if strings.Contains(s, secret) {
			t.Fatalf("config string leaks %q: %s", secret, s)
		}
	}
}

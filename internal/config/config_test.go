package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "t", "owner_user_ids": [42]},
		"logging": {"level": "debug", "console": true},
		"robot": {"address": "feeder.example.cloud", "api_key": "k", "api_key_id": "kid"},
		"feeder": {"rpm": 500, "revolutions": -3},
		"camera": {"auto_refresh": true},
		"schedule": {"check_interval": "30s"}
	}`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Robot.Address != "feeder.example.cloud" || cfg.Feeder.Revolutions != -3 {
		t.Fatalf("cfg: %+v", cfg)
	}
	if got := m.Get(); got != cfg {
		t.Fatalf("Get returned a different config")
	}
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: t
  owner_user_ids: [42]
robot:
  address: feeder.example.cloud
schedule:
  check_interval: 45s
`)
	m := NewManager(path)
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Schedule.CheckInterval != "45s" || cfg.Telegram.OwnerUserIDs[0] != 42 {
		t.Fatalf("cfg: %+v", cfg)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}, "typo_section": {}}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatalf("unknown field must be rejected")
	}
}

func TestLoadRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram": {"token": "t"}}{"more": 1}`)
	if _, err := NewManager(path).Load(); err == nil {
		t.Fatalf("trailing data must be rejected")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FEEDBOT_ROBOT_API_KEY", "env-key")
	t.Setenv("FEEDBOT_ROBOT_API_KEY_ID", "env-key-id")
	t.Setenv("FEEDBOT_TELEGRAM_TOKEN", "env-token")

	path := writeConfig(t, "config.json", `{"robot": {"address": "a"}}`)
	cfg, err := NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Robot.APIKey != "env-key" || cfg.Robot.APIKeyID != "env-key-id" || cfg.Telegram.Token != "env-token" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}

	// File values win over the environment.
	path = writeConfig(t, "config.json", `{"robot": {"address": "a", "api_key": "file-key"}}`)
	cfg, err = NewManager(path).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Robot.APIKey != "file-key" {
		t.Fatalf("file credential overridden: %q", cfg.Robot.APIKey)
	}
}

func TestParseDurationField(t *testing.T) {
	if d, err := ParseDurationField("x", "30s"); err != nil || d != 30*time.Second {
		t.Fatalf("30s: %v %v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: %v %v", d, err)
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatalf("negative duration must be rejected")
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatalf("junk duration must be rejected")
	}
	if d, err := ParseDurationOrDefault("x", "", 9*time.Second); err != nil || d != 9*time.Second {
		t.Fatalf("default: %v %v", d, err)
	}
}

func TestCameraAutoRefreshDefaultOn(t *testing.T) {
	var c CameraConfig
	if !c.AutoRefreshEnabled() {
		t.Fatalf("auto refresh should default on")
	}
	off := false
	c.AutoRefresh = &off
	if c.AutoRefreshEnabled() {
		t.Fatalf("explicit false not honored")
	}
}

func TestSubscribePublishDropOldest(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b) // buffer full: oldest dropped, newest delivered

	got := <-ch
	if got != b {
		t.Fatalf("expected newest config to win")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected extra config: %v", extra)
	default:
	}
}

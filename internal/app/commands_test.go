package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"feedbot/internal/config"
	"feedbot/internal/feeder"
	"feedbot/internal/storage"
)

func TestNextFeedTime(t *testing.T) {
	times := []string{"06:00", "12:00", "16:02"}
	at := func(hhmm string) time.Time {
		ts, err := time.Parse("2006-01-02 15:04", "2026-08-31 "+hhmm)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		return ts
	}

	if got, ok := nextFeedTime(times, at("05:00")); !ok || got != "06:00 today" {
		t.Fatalf("05:00 -> %q %v", got, ok)
	}
	if got, ok := nextFeedTime(times, at("12:00")); !ok || got != "16:02 today" {
		t.Fatalf("12:00 -> %q %v", got, ok)
	}
	if got, ok := nextFeedTime(times, at("23:30")); !ok || got != "06:00 tomorrow" {
		t.Fatalf("23:30 -> %q %v", got, ok)
	}
	if _, ok := nextFeedTime(nil, at("05:00")); ok {
		t.Fatalf("empty schedule has no next feed")
	}
}

func TestRenderSchedule(t *testing.T) {
	out := renderSchedule([]string{"06:00", "12:00"})
	for _, want := range []string{"1. 06:00", "2. 12:00"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if out := renderSchedule(nil); !strings.Contains(out, "No feeding times") {
		t.Errorf("empty schedule render: %q", out)
	}
}

func TestRenderHistory(t *testing.T) {
	loc := time.UTC
	events := []storage.FeedEvent{
		{At: time.Date(2026, 8, 30, 6, 0, 0, 0, time.UTC), Trigger: "scheduled", OK: true, TookMS: 4200},
		{At: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC), Trigger: "manual", OK: false, Error: "motor jammed"},
	}
	out := renderHistory(events, loc)
	for _, want := range []string{"✓ scheduled", "(4.2s)", "✗ manual", "motor jammed"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in %q", want, out)
		}
	}
	if out := renderHistory(nil, loc); !strings.Contains(out, "No feed events") {
		t.Errorf("empty history render: %q", out)
	}
}

func TestFeedNotificationEscapesError(t *testing.T) {
	out := feedNotification(feeder.Result{Trigger: "scheduled", Err: errors.New("x < y")})
	if !strings.Contains(out, "&lt;") || strings.Contains(out, "x < y") {
		t.Errorf("error not escaped: %q", out)
	}
	ok := feedNotification(feeder.Result{Trigger: "manual", Took: 4 * time.Second})
	if !strings.Contains(ok, "manual") || !strings.Contains(ok, "4.0s") {
		t.Errorf("success notification: %q", ok)
	}
}

func TestShortDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30s"},
		{5 * time.Minute, "5m"},
		{90 * time.Minute, "1h30m"},
		{-time.Second, "0s"},
	}
	for _, c := range cases {
		if got := shortDuration(c.d); got != c.want {
			t.Errorf("shortDuration(%v) = %q", c.d, got)
		}
	}
}

func TestValidateConfig(t *testing.T) {
	good := &config.Config{}
	if err := validateConfig(context.Background(), good); err != nil {
		t.Fatalf("zero config should validate (defaults apply): %v", err)
	}

	bad := &config.Config{}
	bad.Schedule.CheckInterval = "5m"
	if err := validateConfig(context.Background(), bad); err == nil {
		t.Fatalf("check_interval over 60s must be rejected")
	}

	bad = &config.Config{}
	bad.Schedule.Timezone = "Mars/Olympus"
	if err := validateConfig(context.Background(), bad); err == nil {
		t.Fatalf("invalid timezone must be rejected")
	}

	bad = &config.Config{}
	bad.Storage = &config.StorageConfig{Driver: "redis"}
	if err := validateConfig(context.Background(), bad); err == nil {
		t.Fatalf("unknown storage driver must be rejected")
	}

	bad = &config.Config{}
	bad.Report = &config.ReportConfig{Enabled: true, Cron: "not a cron"}
	if err := validateConfig(context.Background(), bad); err == nil {
		t.Fatalf("invalid report cron must be rejected")
	}
}

func TestParseChat(t *testing.T) {
	if id, ok := parseChat("-100123456"); !ok || id != -100123456 {
		t.Fatalf("parseChat: %d %v", id, ok)
	}
	for _, s := range []string{"", "0", "abc"} {
		if _, ok := parseChat(s); ok {
			t.Errorf("parseChat(%q) accepted", s)
		}
	}
}

func TestResolveNotifyChat(t *testing.T) {
	cfg := &config.Config{}
	cfg.Telegram.GroupLog = "-100555"
	if got := resolveNotifyChat(cfg); got.ChatID != -100555 {
		t.Fatalf("group log target: %+v", got)
	}

	cfg = &config.Config{}
	cfg.Telegram.OwnerUserIDs = []int64{42}
	if got := resolveNotifyChat(cfg); got.ChatID != 42 {
		t.Fatalf("owner fallback: %+v", got)
	}

	if got := resolveNotifyChat(&config.Config{}); got.ChatID != 0 {
		t.Fatalf("empty config target: %+v", got)
	}
}

package metrics

import (
	"testing"
	"time"
)

func TestMetricsGather(t *testing.T) {
	m := New()
	m.ObserveFeed("scheduled", true, 4*time.Second)
	m.ObserveFeed("manual", false, time.Second)
	m.ObserveFrame(true)
	m.SetConnected(true)
	m.IncReconnect()
	// Basic scrape to ensure metrics encode without panic
	mfs, err := m.reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(mfs) == 0 {
		t.Fatalf("expected metrics, got none")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveFeed("manual", true, 0)
	m.ObserveFrame(false)
	m.SetConnected(false)
	m.IncReconnect()
	if m.Handler() == nil {
		t.Fatalf("nil handler")
	}
}

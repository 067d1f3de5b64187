package camera

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	logx "feedbot/pkg/logx"
)

type fakeSource struct {
	mu    sync.Mutex
	data  []byte
	err   error
	calls int
	mimes []string
}

func (f *fakeSource) GetImage(ctx context.Context, mimeType string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.mimes = append(f.mimes, mimeType)
	return f.data, f.err
}

func TestRefreshCachesFrame(t *testing.T) {
	src := &fakeSource{data: []byte{1, 2, 3}}
	s := New(Config{}, logx.Nop(), nil)

	f, err := s.Refresh(context.Background(), src)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if len(f.Data) != 3 || f.At.IsZero() {
		t.Fatalf("frame: %+v", f)
	}
	got, ok := s.Latest()
	if !ok || len(got.Data) != 3 {
		t.Fatalf("Latest: %v %v", got, ok)
	}
	if src.mimes[0] != "image/jpeg" {
		t.Fatalf("mime: %q", src.mimes[0])
	}
}

func TestRefreshRateLimitReturnsCached(t *testing.T) {
	src := &fakeSource{data: []byte{1}}
	s := New(Config{RefreshInterval: time.Hour}, logx.Nop(), nil)

	if _, err := s.Refresh(context.Background(), src); err != nil {
		t.Fatalf("first Refresh: %v", err)
	}
	f, err := s.Refresh(context.Background(), src)
	if err != nil {
		t.Fatalf("second Refresh: %v", err)
	}
	if len(f.Data) != 1 {
		t.Fatalf("expected cached frame, got %+v", f)
	}
	if src.calls != 1 {
		t.Fatalf("source calls: %d", src.calls)
	}
}

func TestRefreshRateLimitEmptyCache(t *testing.T) {
	src := &fakeSource{err: errors.New("camera offline")}
	s := New(Config{RefreshInterval: time.Hour}, logx.Nop(), nil)

	if _, err := s.Refresh(context.Background(), src); err == nil {
		t.Fatalf("expected fetch error")
	}
	if _, err := s.Refresh(context.Background(), src); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("expected ErrNoFrame, got %v", err)
	}
}

func TestRefreshFailureKeepsLastGoodFrame(t *testing.T) {
	src := &fakeSource{data: []byte{9}}
	s := New(Config{RefreshInterval: time.Nanosecond}, logx.Nop(), nil)

	if _, err := s.Refresh(context.Background(), src); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	src.mu.Lock()
	src.data, src.err = nil, errors.New("camera offline")
	src.mu.Unlock()

	time.Sleep(2 * time.Millisecond) // let the limiter refill
	if _, err := s.Refresh(context.Background(), src); err == nil {
		t.Fatalf("expected fetch error")
	}
	if got, ok := s.Latest(); !ok || len(got.Data) != 1 {
		t.Fatalf("cached frame lost: %v %v", got, ok)
	}
}

func TestObserveHook(t *testing.T) {
	var mu sync.Mutex
	var results []bool
	observe := func(ok bool) {
		mu.Lock()
		results = append(results, ok)
		mu.Unlock()
	}

	src := &fakeSource{data: []byte{1}}
	s := New(Config{RefreshInterval: time.Nanosecond}, logx.Nop(), observe)
	_, _ = s.Refresh(context.Background(), src)

	src.mu.Lock()
	src.data, src.err = nil, errors.New("boom")
	src.mu.Unlock()
	time.Sleep(2 * time.Millisecond)
	_, _ = s.Refresh(context.Background(), src)

	mu.Lock()
	defer mu.Unlock()
	if len(results) != 2 || !results[0] || results[1] {
		t.Fatalf("observe results: %v", results)
	}
}

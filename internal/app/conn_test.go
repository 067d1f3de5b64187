package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedbot/internal/robot"
	logx "feedbot/pkg/logx"
)

func waitForState(t *testing.T, c *connManager, want ConnState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		st, _, _ := c.State()
		if st == want {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never reached %s (now %s)", want, st)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestConnManagerConnects(t *testing.T) {
	c := newConnManager(logx.Nop(), func(ctx context.Context) (*robot.Client, error) {
		return &robot.Client{}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() { defer close(done); _ = c.Run(ctx) }()

	waitForState(t, c, ConnConnected)
	if _, err := c.Client(); err != nil {
		t.Fatalf("Client: %v", err)
	}

	cancel()
	<-done
	st, _, _ := c.State()
	if st != ConnDisconnected {
		t.Fatalf("state after stop: %s", st)
	}
	if _, err := c.Client(); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("Client after stop: %v", err)
	}
}

func TestConnManagerRetriesAfterDialFailure(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	c := newConnManager(logx.Nop(), func(ctx context.Context) (*robot.Client, error) {
		mu.Lock()
		defer mu.Unlock()
		attempts++
		if attempts == 1 {
			return nil, errors.New("dial tcp: refused")
		}
		return &robot.Client{}, nil
	})
	var reconnects int
	c.reconnect = func() { mu.Lock(); reconnects++; mu.Unlock() }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	waitForState(t, c, ConnConnected)
	mu.Lock()
	defer mu.Unlock()
	if attempts != 2 {
		t.Fatalf("attempts: %d", attempts)
	}
	if reconnects != 1 {
		t.Fatalf("reconnect callbacks: %d", reconnects)
	}
}

func TestConnManagerMarkBrokenRedials(t *testing.T) {
	var mu sync.Mutex
	dials := 0
	c := newConnManager(logx.Nop(), func(ctx context.Context) (*robot.Client, error) {
		mu.Lock()
		dials++
		mu.Unlock()
		return &robot.Client{}, nil
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = c.Run(ctx) }()

	waitForState(t, c, ConnConnected)
	c.MarkBroken(errors.New("broken pipe"))
	deadline := time.Now().Add(2 * time.Second)
	for !time.Now().After(deadline) {
		mu.Lock()
		d := dials
		mu.Unlock()
		if d >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	waitForState(t, c, ConnConnected)

	mu.Lock()
	defer mu.Unlock()
	if dials < 2 {
		t.Fatalf("dials: %d", dials)
	}
}

func TestMarkBrokenIgnoredWhileDown(t *testing.T) {
	c := newConnManager(logx.Nop(), nil)
	c.MarkBroken(errors.New("x"))
	select {
	case <-c.broken:
		t.Fatalf("broken signal queued while disconnected")
	default:
	}
}

func TestIsConnError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{robot.ErrClosed, true},
		{context.DeadlineExceeded, false},
		{context.Canceled, false},
		{errors.New("read: connection reset by peer"), true},
		{errors.New("write: broken pipe"), true},
		{errors.New("unexpected EOF"), true},
		{errors.New("motor jammed"), false},
	}
	for _, c := range cases {
		if got := isConnError(c.err); got != c.want {
			t.Errorf("isConnError(%v) = %v", c.err, got)
		}
	}
}

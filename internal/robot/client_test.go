package robot

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"
	"github.com/creachadair/jrpc2/handler"

	logx "feedbot/pkg/logx"
)

// fakePlatform records motor/camera calls served over an in-memory channel.
type fakePlatform struct {
	mu       sync.Mutex
	goFor    []goForParams
	stops    []string
	frame    []byte
	failAuth bool
}

func (f *fakePlatform) serve(t *testing.T) (*Client, func()) {
	t.Helper()

	cch, sch := channel.Direct()
	srv := jrpc2.NewServer(handler.Map{
		"session.authenticate": handler.New(func(ctx context.Context, p authParams) (authResult, error) {
			if f.failAuth || p.APIKey == "" || p.APIKeyID == "" {
				return authResult{}, errors.New("invalid credentials")
			}
			return authResult{Resources: []string{"stepper", "petcam", "pi"}}, nil
		}),
		"motor.go_for": handler.New(func(ctx context.Context, p goForParams) (struct{}, error) {
			f.mu.Lock()
			f.goFor = append(f.goFor, p)
			f.mu.Unlock()
			return struct{}{}, nil
		}),
		"motor.stop": handler.New(func(ctx context.Context, p stopParams) (struct{}, error) {
			f.mu.Lock()
			f.stops = append(f.stops, p.Name)
			f.mu.Unlock()
			return struct{}{}, nil
		}),
		"camera.get_image": handler.New(func(ctx context.Context, p getImageParams) (getImageResult, error) {
			return getImageResult{MimeType: p.MimeType, Data: f.frame}, nil
		}),
	}, nil).Start(sch)

	cfg := Config{APIKey: "key", APIKeyID: "key-id", CallTimeout: 5 * time.Second}
	c := newClient(cch, cfg, logx.Nop())
	if err := c.authenticate(context.Background(), cfg); err != nil {
		srv.Stop()
		t.Fatalf("authenticate: %v", err)
	}
	return c, func() {
		_ = c.Close()
		srv.Stop()
	}
}

func TestAuthenticateListsResources(t *testing.T) {
	c, done := (&fakePlatform{}).serve(t)
	defer done()

	if got := c.Resources(); len(got) != 3 {
		t.Fatalf("resources: %v", got)
	}
}

func TestAuthenticateFailure(t *testing.T) {
	cch, sch := channel.Direct()
	srv := jrpc2.NewServer(handler.Map{
		"session.authenticate": handler.New(func(ctx context.Context, p authParams) (authResult, error) {
			return authResult{}, errors.New("invalid credentials")
		}),
	}, nil).Start(sch)
	defer srv.Stop()

	cfg := Config{APIKey: "bad", APIKeyID: "bad", CallTimeout: 5 * time.Second}
	c := newClient(cch, cfg, logx.Nop())
	defer c.Close()

	if err := c.authenticate(context.Background(), cfg); err == nil {
		t.Fatalf("expected authenticate to fail")
	}
}

func TestMotorGoForAndStop(t *testing.T) {
	f := &fakePlatform{}
	c, done := f.serve(t)
	defer done()

	m := c.Motor("stepper")
	if err := m.GoFor(context.Background(), 500, -3); err != nil {
		t.Fatalf("GoFor: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.goFor) != 1 || f.goFor[0].Name != "stepper" || f.goFor[0].RPM != 500 || f.goFor[0].Revolutions != -3 {
		t.Fatalf("goFor calls: %+v", f.goFor)
	}
	if len(f.stops) != 1 || f.stops[0] != "stepper" {
		t.Fatalf("stop calls: %v", f.stops)
	}
}

func TestCameraGetImage(t *testing.T) {
	frame := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}
	c, done := (&fakePlatform{frame: frame}).serve(t)
	defer done()

	got, err := c.Camera("petcam").GetImage(context.Background(), "image/jpeg")
	if err != nil {
		t.Fatalf("GetImage: %v", err)
	}
	if !bytes.Equal(got, frame) {
		t.Fatalf("frame mismatch: got %v", got)
	}
}

func TestCallAfterClose(t *testing.T) {
	c, done := (&fakePlatform{}).serve(t)
	done()

	err := c.Motor("stepper").Stop(context.Background())
	if !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestDefaultComponentNames(t *testing.T) {
	c, done := (&fakePlatform{}).serve(t)
	defer done()

	if m := c.Motor(""); m.name != "stepper" {
		t.Fatalf("default motor name: %q", m.name)
	}
	if cam := c.Camera(""); cam.name != "petcam" {
		t.Fatalf("default camera name: %q", cam.name)
	}
}

func TestWSURL(t *testing.T) {
	if got := wsURL("petfeeder.example.cloud"); got != "wss://petfeeder.example.cloud/rpc" {
		t.Fatalf("wsURL: %q", got)
	}
	if got := wsURL("ws://localhost:8080/rpc"); got != "ws://localhost:8080/rpc" {
		t.Fatalf("wsURL with scheme: %q", got)
	}
}

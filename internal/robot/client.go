package robot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	cws "github.com/coder/websocket"
	"github.com/creachadair/jrpc2"
	"github.com/creachadair/jrpc2/channel"

	logx "feedbot/pkg/logx"
)

// ErrClosed is returned by calls made after Close().
var ErrClosed = errors.New("robot: connection closed")

type Config struct {
	Address  string
	APIKey   string
	APIKeyID string

	DialTimeout time.Duration // default 15s
	CallTimeout time.Duration // default 10s; bounds every remote call
}

// Client is an authenticated handle to the robot platform.
type Client struct {
	rpc *jrpc2.Client
	log logx.Logger

	callTimeout time.Duration
	closed      atomic.Bool

	// resources reported by the platform during authentication.
	resources []string
}

type authParams struct {
	APIKeyID string `json:"api_key_id"`
	APIKey   string `json:"api_key"`
}

type authResult struct {
	Resources []string `json:"resources"`
}

// Dial connects to the platform, authenticates and returns a handle.
func Dial(ctx context.Context, cfg Config, log logx.Logger) (*Client, error) {
	addr := strings.TrimSpace(cfg.Address)
	if addr == "" {
		return nil, errors.New("robot: address is empty")
	}
	if cfg.APIKey == "" || cfg.APIKeyID == "" {
		return nil, errors.New("robot: api key credentials missing")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dialTimeout := cfg.DialTimeout
	if dialTimeout <= 0 {
		dialTimeout = 15 * time.Second
	}

	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := cws.Dial(dctx, wsURL(addr), nil)
	if err != nil {
		return nil, fmt.Errorf("robot: dial %s: %w", addr, err)
	}
	// Camera frames can exceed the library default read limit.
	conn.SetReadLimit(8 << 20)

	c := newClient(&wsChannel{conn: conn, ctx: context.Background()}, cfg, log)
	if err := c.authenticate(ctx, cfg); err != nil {
		_ = c.Close()
		return nil, err
	}
	log.Info("connected", logx.String("addr", addr), logx.Int("resources", len(c.resources)))
	return c, nil
}

// newClient wraps an established jrpc2 channel. Split from Dial so tests can
// drive the client over an in-memory channel.
func newClient(ch channel.Channel, cfg Config, log logx.Logger) *Client {
	callTimeout := cfg.CallTimeout
	if callTimeout <= 0 {
		callTimeout = 10 * time.Second
	}
	return &Client{
		rpc:         jrpc2.NewClient(ch, nil),
		log:         log,
		callTimeout: callTimeout,
	}
}

func (c *Client) authenticate(ctx context.Context, cfg Config) error {
	var res authResult
	err := c.call(ctx, "session.authenticate", authParams{
		APIKeyID: cfg.APIKeyID,
		APIKey:   cfg.APIKey,
	}, &res)
	if err != nil {
		return fmt.Errorf("robot: authenticate: %w", err)
	}
	c.resources = res.Resources
	return nil
}

// Resources lists the component names the platform advertised at connect.
func (c *Client) Resources() []string { return c.resources }

// call performs one bounded remote call.
func (c *Client) call(ctx context.Context, method string, params, result any) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if result == nil {
		// jrpc2 requires a non-nil unmarshal target; discard the payload.
		result = &json.RawMessage{}
	}
	cctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()
	if err := c.rpc.CallResult(cctx, method, params, result); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

func (c *Client) Close() error {
	if c.closed.Swap(true) || c.rpc == nil {
		return nil
	}
	return c.rpc.Close()
}

// Motor returns the named motor-like actuator.
func (c *Client) Motor(name string) *Motor {
	if name == "" {
		name = "stepper"
	}
	return &Motor{c: c, name: name}
}

// Camera returns the named camera-like sensor.
func (c *Client) Camera(name string) *Camera {
	if name == "" {
		name = "petcam"
	}
	return &Camera{c: c, name: name}
}

func wsURL(addr string) string {
	if strings.Contains(addr, "://") {
		return addr
	}
	return "wss://" + addr + "/rpc"
}

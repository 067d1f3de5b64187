package app

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync"
	"time"

	"feedbot/internal/robot"
	logx "feedbot/pkg/logx"
)

// ErrNotConnected is returned by actions that need the robot platform while
// the connection is down.
var ErrNotConnected = errors.New("robot platform not connected")

type ConnState string

const (
	ConnDisconnected ConnState = "disconnected"
	ConnConnecting   ConnState = "connecting"
	ConnConnected    ConnState = "connected"
	ConnFailed       ConnState = "failed"
)

// connManager dials the platform, hands out the live client and redials with
// backoff after a failure. Triggers and commands observe the state; they are
// never blocked by a dial in progress.
type connManager struct {
	log  logx.Logger
	dial func(ctx context.Context) (*robot.Client, error)

	mu      sync.Mutex
	state   ConnState
	client  *robot.Client
	lastErr error
	since   time.Time

	broken    chan struct{}
	onChange  func(state ConnState)
	reconnect func()
}

func newConnManager(log logx.Logger, dial func(ctx context.Context) (*robot.Client, error)) *connManager {
	return &connManager{
		log:    log,
		dial:   dial,
		state:  ConnDisconnected,
		broken: make(chan struct{}, 1),
	}
}

// State returns the current state, the time it was entered, and the last
// dial or call error if any.
func (c *connManager) State() (ConnState, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.since, c.lastErr
}

// Client returns the live client or ErrNotConnected.
func (c *connManager) Client() (*robot.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != ConnConnected || c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

func (c *connManager) setState(st ConnState, err error) {
	c.mu.Lock()
	changed := c.state != st
	c.state = st
	c.since = time.Now()
	if err != nil || st == ConnConnected {
		c.lastErr = err
	}
	cb := c.onChange
	c.mu.Unlock()
	if changed && cb != nil {
		cb(st)
	}
}

// MarkBroken flags the connection as dead so the run loop redials. Call it
// when a remote call fails in a way that suggests the link is gone.
func (c *connManager) MarkBroken(err error) {
	c.mu.Lock()
	if c.state != ConnConnected {
		c.mu.Unlock()
		return
	}
	c.lastErr = err
	c.mu.Unlock()
	select {
	case c.broken <- struct{}{}:
	default:
	}
}

// Run keeps the connection alive until ctx is canceled. Dial failures back
// off exponentially (1s..2m with jitter); a broken live connection redials
// immediately.
func (c *connManager) Run(ctx context.Context) error {
	const (
		backoffMin = time.Second
		backoffMax = 2 * time.Minute
	)
	backoff := backoffMin

	for {
		if ctx.Err() != nil {
			c.setState(ConnDisconnected, nil)
			return ctx.Err()
		}

		c.setState(ConnConnecting, nil)
		client, err := c.dial(ctx)
		if err != nil {
			c.setState(ConnFailed, err)
			c.log.Warn("dial failed", logx.Err(err), logx.Duration("retry_in", backoff))
			if c.reconnect != nil {
				c.reconnect()
			}
			sleep := backoff + time.Duration(rand.Int63n(int64(backoff)/4+1))
			select {
			case <-ctx.Done():
				c.setState(ConnDisconnected, nil)
				return ctx.Err()
			case <-time.After(sleep):
			}
			if backoff *= 2; backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}

		backoff = backoffMin
		c.mu.Lock()
		c.client = client
		c.mu.Unlock()
		// Drain a stale broken signal from the previous connection.
		select {
		case <-c.broken:
		default:
		}
		c.setState(ConnConnected, nil)

		select {
		case <-ctx.Done():
			_ = client.Close()
			c.mu.Lock()
			c.client = nil
			c.mu.Unlock()
			c.setState(ConnDisconnected, nil)
			return ctx.Err()
		case <-c.broken:
			_ = client.Close()
			c.mu.Lock()
			c.client = nil
			lastErr := c.lastErr
			c.mu.Unlock()
			c.setState(ConnFailed, lastErr)
			c.log.Warn("connection lost, redialing", logx.Err(lastErr))
			if c.reconnect != nil {
				c.reconnect()
			}
		}
	}
}

// isConnError reports whether a remote call failure looks like a dead link
// rather than a bad request. Timeouts on a live link do not count.
func isConnError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, robot.ErrClosed) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"connection reset", "broken pipe", "use of closed", "EOF", "client is closed", "channel closed"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

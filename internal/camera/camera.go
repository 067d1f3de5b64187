// Package camera fetches single frames from the pet camera and caches the
// most recent one. A rate limiter keeps refreshes at most one per interval
// even when several callers ask at once.
package camera

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	logx "feedbot/pkg/logx"
)

// ErrNoFrame is returned when no frame has been fetched yet and the limiter
// disallows a fresh fetch.
var ErrNoFrame = errors.New("camera: no frame available")

// Source is the camera surface frames come from. *robot.Camera satisfies it.
type Source interface {
	GetImage(ctx context.Context, mimeType string) ([]byte, error)
}

type Config struct {
	MimeType        string        // default image/jpeg
	RefreshInterval time.Duration // default 1s; floor between fetches
	Timeout         time.Duration // default 5s; bounds one fetch
}

func (c Config) withDefaults() Config {
	if c.MimeType == "" {
		c.MimeType = "image/jpeg"
	}
	if c.RefreshInterval <= 0 {
		c.RefreshInterval = time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	return c
}

// Frame is one cached camera image.
type Frame struct {
	Data []byte
	At   time.Time
}

// Service caches the latest frame behind a fetch rate limit.
type Service struct {
	cfg     Config
	log     logx.Logger
	observe func(ok bool)
	limiter *rate.Limiter

	mu     sync.RWMutex
	latest Frame
}

// New builds the service. observe may be nil; when set it is called once per
// actual fetch with the outcome.
func New(cfg Config, log logx.Logger, observe func(ok bool)) *Service {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		cfg:     cfg,
		log:     log,
		observe: observe,
		limiter: rate.NewLimiter(rate.Every(cfg.RefreshInterval), 1),
	}
}

// Latest returns the cached frame, if any.
func (s *Service) Latest() (Frame, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, len(s.latest.Data) > 0
}

// Refresh fetches one frame and caches it. When the limiter disallows a
// fetch, the cached frame is returned instead; ErrNoFrame only happens when
// the cache is also empty.
func (s *Service) Refresh(ctx context.Context, src Source) (Frame, error) {
	if !s.limiter.Allow() {
		if f, ok := s.Latest(); ok {
			return f, nil
		}
		return Frame{}, ErrNoFrame
	}

	fctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	data, err := src.GetImage(fctx, s.cfg.MimeType)
	if s.observe != nil {
		s.observe(err == nil && len(data) > 0)
	}
	if err != nil {
		s.log.Warn("frame fetch failed", logx.Err(err))
		return Frame{}, err
	}
	if len(data) == 0 {
		return Frame{}, errors.New("camera: empty frame")
	}

	f := Frame{Data: data, At: time.Now()}
	s.mu.Lock()
	s.latest = f
	s.mu.Unlock()
	return f, nil
}

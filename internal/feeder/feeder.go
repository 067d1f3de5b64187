// Package feeder runs the dispense sequence: spin the auger motor a fixed
// number of revolutions, then always stop it. At most one dispense runs at a
// time regardless of trigger.
package feeder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"feedbot/internal/storage"
	logx "feedbot/pkg/logx"
)

// ErrBusy is returned when a dispense is already in flight.
var ErrBusy = errors.New("feeder: dispense already in progress")

// Actuator is the motor surface the feeder drives. *robot.Motor satisfies it.
type Actuator interface {
	GoFor(ctx context.Context, rpm, revolutions float64) error
	Stop(ctx context.Context) error
}

type Config struct {
	RPM         float64       // default 500
	Revolutions float64       // default -3; sign sets auger direction
	Timeout     time.Duration // default 30s; bounds the spin, not the stop
}

func (c Config) withDefaults() Config {
	if c.RPM == 0 {
		c.RPM = 500
	}
	if c.Revolutions == 0 {
		c.Revolutions = -3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Result describes one finished dispense attempt.
type Result struct {
	Trigger string
	At      time.Time
	Took    time.Duration
	Err     error
}

// Recorder receives the result of every attempt. Wired to storage, metrics
// and the owner notification by the app.
type Recorder func(Result)

// Service serializes dispense attempts against a single actuator.
type Service struct {
	cfg      Config
	log      logx.Logger
	record   Recorder
	inFlight atomic.Bool
	lastFeed atomic.Int64 // unix milli of last successful dispense
}

func New(cfg Config, log logx.Logger, record Recorder) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg.withDefaults(), log: log, record: record}
}

// Busy reports whether a dispense is currently running.
func (s *Service) Busy() bool { return s.inFlight.Load() }

// LastSuccess returns the time of the last successful dispense, or zero.
func (s *Service) LastSuccess() time.Time {
	ms := s.lastFeed.Load()
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}

// Feed runs one dispense. Overlapping calls get ErrBusy. The stop command is
// issued on a detached context so the motor is halted even when the caller's
// context is already canceled or the spin timed out.
func (s *Service) Feed(ctx context.Context, act Actuator, trigger string) error {
	if trigger == "" {
		trigger = storage.TriggerManual
	}
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer s.inFlight.Store(false)

	start := time.Now()
	s.log.Info("dispense start",
		logx.String("trigger", trigger),
		logx.Float64("rpm", s.cfg.RPM),
		logx.Float64("revolutions", s.cfg.Revolutions))

	spinCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	err := act.GoFor(spinCtx, s.cfg.RPM, s.cfg.Revolutions)
	cancel()

	// Stop unconditionally. The spin context may be dead by now, so the stop
	// gets its own deadline off context.Background().
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	stopErr := act.Stop(stopCtx)
	stopCancel()

	if err == nil {
		err = stopErr
	} else if stopErr != nil {
		s.log.Error("stop after failed spin", logx.Err(stopErr), logx.String("trigger", trigger))
	}

	took := time.Since(start)
	if err == nil {
		s.lastFeed.Store(start.UnixMilli())
		s.log.Info("dispense done", logx.String("trigger", trigger), logx.Duration("took", took))
	} else {
		s.log.Error("dispense failed", logx.Err(err), logx.String("trigger", trigger), logx.Duration("took", took))
	}

	if s.record != nil {
		s.record(Result{Trigger: trigger, At: start, Took: took, Err: err})
	}
	return err
}

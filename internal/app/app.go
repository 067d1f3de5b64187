// Package app wires the feeder together: config, logging, the Telegram
// surface, the robot platform connection and the schedule loop.
package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"feedbot/internal/camera"
	"feedbot/internal/config"
	"feedbot/internal/feeder"
	"feedbot/internal/metrics"
	"feedbot/internal/observability/debugserver"
	"feedbot/internal/robot"
	rtsup "feedbot/internal/runtime/supervisor"
	"feedbot/internal/schedule"
	"feedbot/internal/storage"
	kit "feedbot/internal/transport"
	telegram "feedbot/internal/transport/telegram/adapter"
	logx "feedbot/pkg/logx"
)

type App struct {
	cfgPath string
	cfgm    *config.Manager
	sup     *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service

	adapter kit.Adapter
	store   storage.Store
	mx      *metrics.Metrics
	feeder  *feeder.Service
	cam     *camera.Service
	conn    *connManager
	debug   *debugserver.Server

	schedStore *schedule.Store
	loc        *time.Location

	motorName     string
	cameraName    string
	checkInterval time.Duration
	refreshEvery  time.Duration
	autoRefresh   bool
	reportEnabled bool
	reportCron    string

	mu         sync.Mutex
	times      []string
	marker     string // HH:MM of the last fired minute
	owners     []int64
	notifyChat kit.ChatTarget

	updates chan kit.Update
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole("INFO").With(logx.String("comp", "telegram"))
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return nil, err
	}
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout,
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// Bootstrap with Telegram logging disabled, set the target, then Apply()
	// the final config so the sink never fires before it has a chat.
	logCfg := mapLogxConfig(cfg)
	bootCfg := logCfg
	bootCfg.Telegram.Enabled = false
	logSvc, log := logx.New(bootCfg, ad)
	log = log.With(logx.String("comp", "app"))
	if chat, ok := parseChat(cfg.Telegram.GroupLog); ok {
		logSvc.SetTelegramTarget(chat, cfg.Logging.Telegram.ThreadID)
	}
	logSvc.Apply(logCfg)

	a := &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		adapter: ad,
		updates: make(chan kit.Update, 256),
	}

	if err := a.initFromConfig(cfg); err != nil {
		return nil, err
	}
	return a, nil
}

// initFromConfig builds the services that are fixed for the process
// lifetime. Hot-reload only touches logging and ownership.
func (a *App) initFromConfig(cfg *config.Config) error {
	log := a.log

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
		loc = l
	}
	a.loc = loc

	checkInterval, err := config.ParseDurationOrDefault("schedule.check_interval", cfg.Schedule.CheckInterval, 30*time.Second)
	if err != nil {
		return err
	}
	if checkInterval <= 0 || checkInterval > time.Minute {
		return errors.New("schedule.check_interval must be in (0s, 60s] so no minute is skipped")
	}
	a.checkInterval = checkInterval

	a.schedStore = schedule.NewStore(cfg.Schedule.Path, log.With(logx.String("comp", "schedule")))
	a.times = a.schedStore.Load()

	// Storage (optional)
	if cfg.Storage != nil {
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 0)
		if err != nil {
			return err
		}
		st, err := storage.Open(storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}, log.With(logx.String("comp", "storage")))
		if err != nil {
			return err
		}
		if st != nil {
			a.store = st
			log.Info("storage enabled", logx.String("driver", cfg.Storage.Driver))
		}
	}

	a.mx = metrics.New()

	feedTimeout, err := config.ParseDurationOrDefault("feeder.timeout", cfg.Feeder.Timeout, 30*time.Second)
	if err != nil {
		return err
	}
	a.feeder = feeder.New(feeder.Config{
		RPM:         cfg.Feeder.RPM,
		Revolutions: cfg.Feeder.Revolutions,
		Timeout:     feedTimeout,
	}, log.With(logx.String("comp", "feeder")), a.recordFeed)

	refreshEvery, err := config.ParseDurationOrDefault("camera.refresh_interval", cfg.Camera.RefreshInterval, time.Second)
	if err != nil {
		return err
	}
	camTimeout, err := config.ParseDurationOrDefault("camera.timeout", cfg.Camera.Timeout, 5*time.Second)
	if err != nil {
		return err
	}
	a.refreshEvery = refreshEvery
	a.autoRefresh = cfg.Camera.AutoRefreshEnabled()
	a.cam = camera.New(camera.Config{
		MimeType:        cfg.Camera.MimeType,
		RefreshInterval: refreshEvery,
		Timeout:         camTimeout,
	}, log.With(logx.String("comp", "camera")), a.mx.ObserveFrame)

	a.motorName = cfg.Robot.MotorName
	a.cameraName = cfg.Robot.CameraName

	dialTimeout, err := config.ParseDurationOrDefault("robot.dial_timeout", cfg.Robot.DialTimeout, 15*time.Second)
	if err != nil {
		return err
	}
	callTimeout, err := config.ParseDurationOrDefault("robot.call_timeout", cfg.Robot.CallTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	robotCfg := robot.Config{
		Address:     cfg.Robot.Address,
		APIKey:      cfg.Robot.APIKey,
		APIKeyID:    cfg.Robot.APIKeyID,
		DialTimeout: dialTimeout,
		CallTimeout: callTimeout,
	}
	robotLog := log.With(logx.String("comp", "robot"))
	a.conn = newConnManager(robotLog, func(ctx context.Context) (*robot.Client, error) {
		return robot.Dial(ctx, robotCfg, robotLog)
	})
	a.conn.onChange = func(st ConnState) { a.mx.SetConnected(st == ConnConnected) }
	a.conn.reconnect = a.mx.IncReconnect

	if cfg.Report != nil && cfg.Report.Enabled {
		spec := strings.TrimSpace(cfg.Report.Cron)
		if spec == "" {
			spec = "0 8 * * *"
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("report.cron: invalid %q: %w", spec, err)
		}
		a.reportEnabled = true
		a.reportCron = spec
	}

	if cfg.Debug != nil && cfg.Debug.Enabled {
		a.debug = debugserver.New(debugserver.Config{
			Enabled:       true,
			Addr:          cfg.Debug.Addr,
			Token:         cfg.Debug.Token,
			AllowInsecure: cfg.Debug.AllowInsecure,
		}, log.With(logx.String("comp", "debug")), a.mx.Handler(), func() bool {
			st, _, _ := a.conn.State()
			return st == ConnConnected
		})
	}

	a.mu.Lock()
	a.owners = cfg.Telegram.OwnerUserIDs
	a.notifyChat = resolveNotifyChat(cfg)
	a.mu.Unlock()
	return nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(validateConfig)

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return err
	}
	if a.debug != nil {
		if err := a.debug.Start(a.sup); err != nil {
			return err
		}
	}

	a.sup.Go("conn.run", a.conn.Run)
	a.sup.Go0("schedule.tick", a.scheduleLoop)
	if a.autoRefresh {
		a.sup.Go0("camera.refresh", a.cameraLoop)
	}
	if a.reportEnabled {
		a.sup.Go0("report.daily", a.reportLoop)
	}
	a.sup.Go0("commands.dispatch", a.dispatchLoop)
	a.sup.Go0("config.reload", a.configReloadLoop)
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.updateCommandMenu(a.sup.Context())
	a.log.Info("app started",
		logx.Int("schedule_entries", len(a.scheduleTimes())),
		logx.Duration("check_interval", a.checkInterval))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping")
	a.sup.Cancel()

	_ = a.adapter.Stop(ctx)
	if a.debug != nil {
		a.debug.Stop()
	}
	err := a.sup.Wait(ctx)

	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
	return err
}

// ---- loops ----

// scheduleLoop polls the wall clock. Tick fires a time at most once per
// minute; the marker survives consecutive polls inside the same minute.
func (a *App) scheduleLoop(ctx context.Context) {
	t := time.NewTicker(a.checkInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			fire, at := a.tickSchedule(time.Now().In(a.loc))
			if !fire {
				continue
			}
			a.log.Info("schedule fired", logx.String("at", at))
			a.sup.Go0("feed.scheduled", func(c context.Context) {
				_ = a.dispense(c, storage.TriggerScheduled)
			})
		}
	}
}

// tickSchedule evaluates one poll and carries the dedup marker forward on
// every call, fired or not. Dropping the cleared marker on a non-matching
// minute would pin yesterday's minute and suppress the same time tomorrow.
func (a *App) tickSchedule(now time.Time) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fire, marker := schedule.Tick(a.times, now, a.marker)
	a.marker = marker
	return fire, marker
}

func (a *App) cameraLoop(ctx context.Context) {
	t := time.NewTicker(a.refreshEvery)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := a.conn.Client(); err != nil {
				continue
			}
			_, _ = a.cam.Refresh(ctx, connSource{a})
		}
	}
}

func (a *App) reportLoop(ctx context.Context) {
	spec, err := cron.ParseStandard(a.reportCron)
	if err != nil {
		a.log.Error("report cron invalid", logx.Err(err))
		return
	}
	for {
		next := spec.Next(time.Now().In(a.loc))
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			a.sendDailyReport(ctx)
		}
	}
}

func (a *App) configReloadLoop(ctx context.Context) {
	sub := a.cfgm.Subscribe(8)
	defer a.cfgm.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			a.applyReload(newCfg)
		}
	}
}

// applyReload covers the hot-reloadable subset: logging, owners, notify
// target. Robot, storage and schedule settings need a restart.
func (a *App) applyReload(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if chat, ok := parseChat(cfg.Telegram.GroupLog); ok {
		a.logs.SetTelegramTarget(chat, cfg.Logging.Telegram.ThreadID)
	} else {
		a.logs.SetTelegramTarget(0, 0)
	}
	a.logs.Apply(mapLogxConfig(cfg))

	a.mu.Lock()
	a.owners = cfg.Telegram.OwnerUserIDs
	a.notifyChat = resolveNotifyChat(cfg)
	a.mu.Unlock()

	a.log.Info("config reloaded")
}

// ---- actions ----

// connSource feeds the camera service from the live connection.
type connSource struct{ a *App }

func (s connSource) GetImage(ctx context.Context, mimeType string) ([]byte, error) {
	cl, err := s.a.conn.Client()
	if err != nil {
		return nil, err
	}
	data, err := cl.Camera(s.a.cameraName).GetImage(ctx, mimeType)
	if isConnError(err) {
		s.a.conn.MarkBroken(err)
	}
	return data, err
}

// dispense runs one feed against the live connection.
func (a *App) dispense(ctx context.Context, trigger string) error {
	cl, err := a.conn.Client()
	if err != nil {
		a.recordFeed(feeder.Result{Trigger: trigger, At: time.Now(), Err: err})
		return err
	}
	err = a.feeder.Feed(ctx, cl.Motor(a.motorName), trigger)
	if isConnError(err) {
		a.conn.MarkBroken(err)
	}
	return err
}

// snapshot fetches (or reuses) the latest camera frame.
func (a *App) snapshot(ctx context.Context) (camera.Frame, error) {
	if _, err := a.conn.Client(); err != nil {
		// Serve the cached frame when offline rather than nothing.
		if f, ok := a.cam.Latest(); ok {
			return f, nil
		}
		return camera.Frame{}, err
	}
	return a.cam.Refresh(ctx, connSource{a})
}

// recordFeed fans a finished dispense out to history, metrics and the owner
// chat. It runs on the feeder goroutine; keep it quick.
func (a *App) recordFeed(r feeder.Result) {
	a.mx.ObserveFeed(r.Trigger, r.Err == nil, r.Took)

	if a.store != nil {
		e := storage.FeedEvent{
			At:      r.At,
			Trigger: r.Trigger,
			OK:      r.Err == nil,
			TookMS:  r.Took.Milliseconds(),
		}
		if r.Err != nil {
			e.Error = r.Err.Error()
		}
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.store.AppendFeed(sctx, e); err != nil {
			a.log.Warn("history append failed", logx.Err(err))
		}
		cancel()
	}

	// Push scheduled outcomes and all failures to the owner chat. Manual
	// feeds already get a direct reply from the command handler.
	if r.Trigger == storage.TriggerScheduled || r.Err != nil {
		a.notify(feedNotification(r))
	}
}

func (a *App) notify(text string) {
	a.mu.Lock()
	to := a.notifyChat
	a.mu.Unlock()
	if to.ChatID == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := a.adapter.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "HTML"}); err != nil {
		a.log.Warn("notify failed", logx.Err(err))
	}
}

// ---- schedule ops ----

func (a *App) scheduleTimes() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.times))
	copy(out, a.times)
	return out
}

func (a *App) addScheduleTime(hm string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	next, ok := schedule.Add(a.times, hm)
	if !ok {
		if !schedule.Valid(hm) {
			return nil, fmt.Errorf("invalid time %q, want HH:MM (24h)", hm)
		}
		return nil, fmt.Errorf("%s is already scheduled", hm)
	}
	a.times = next
	_ = a.schedStore.Save(next)
	return next, nil
}

func (a *App) removeScheduleTime(i int) (string, []string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i < 0 || i >= len(a.times) {
		return "", nil, fmt.Errorf("no schedule entry #%d", i+1)
	}
	removed := a.times[i]
	next, _ := schedule.Remove(a.times, i)
	a.times = next
	_ = a.schedStore.Save(next)
	return removed, next, nil
}

// ---- mapping helpers ----

func mapLogxConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func parseChat(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

// resolveNotifyChat prefers the log group; otherwise DM the first owner.
func resolveNotifyChat(cfg *config.Config) kit.ChatTarget {
	if chat, ok := parseChat(cfg.Telegram.GroupLog); ok {
		return kit.ChatTarget{ChatID: chat, ThreadID: cfg.Logging.Telegram.ThreadID}
	}
	if len(cfg.Telegram.OwnerUserIDs) > 0 {
		return kit.ChatTarget{ChatID: cfg.Telegram.OwnerUserIDs[0]}
	}
	return kit.ChatTarget{}
}

// validateConfig rejects a bad hot-reload before commit.
func validateConfig(_ context.Context, cfg *config.Config) error {
	if _, err := config.ParseDurationField("telegram.poll_timeout", cfg.Telegram.PollTimeout); err != nil {
		return err
	}
	for _, f := range []struct{ path, raw string }{
		{"robot.dial_timeout", cfg.Robot.DialTimeout},
		{"robot.call_timeout", cfg.Robot.CallTimeout},
		{"feeder.timeout", cfg.Feeder.Timeout},
		{"camera.refresh_interval", cfg.Camera.RefreshInterval},
		{"camera.timeout", cfg.Camera.Timeout},
	} {
		if _, err := config.ParseDurationField(f.path, f.raw); err != nil {
			return err
		}
	}
	ci, err := config.ParseDurationOrDefault("schedule.check_interval", cfg.Schedule.CheckInterval, 30*time.Second)
	if err != nil {
		return err
	}
	if ci <= 0 || ci > time.Minute {
		return errors.New("schedule.check_interval must be in (0s, 60s]")
	}
	if tz := strings.TrimSpace(cfg.Schedule.Timezone); tz != "" {
		if _, err := time.LoadLocation(tz); err != nil {
			return fmt.Errorf("schedule.timezone: invalid %q: %w", tz, err)
		}
	}
	if cfg.Storage != nil {
		switch strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)) {
		case "", "none", "file", "sqlite", "sqlite3":
		default:
			return errors.New("unknown storage driver: " + cfg.Storage.Driver)
		}
		if _, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout); err != nil {
			return err
		}
	}
	if cfg.Report != nil && cfg.Report.Enabled {
		spec := strings.TrimSpace(cfg.Report.Cron)
		if spec == "" {
			spec = "0 8 * * *"
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("report.cron: invalid %q: %w", spec, err)
		}
	}
	return nil
}

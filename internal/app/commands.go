package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"feedbot/internal/feeder"
	"feedbot/internal/storage"
	kit "feedbot/internal/transport"
	logx "feedbot/pkg/logx"
	"feedbot/pkg/tgui"
)

const (
	cbFeed   = "feed"
	cbCam    = "cam"
	cbStatus = "status"
)

func (a *App) dispatchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-a.updates:
			if !ok {
				return
			}
			switch up.Kind {
			case kit.UpdateMessage:
				if up.Message != nil {
					a.handleMessage(ctx, *up.Message)
				}
			case kit.UpdateCallback:
				if up.Callback != nil {
					a.handleCallback(ctx, *up.Callback)
				}
			}
		}
	}
}

func (a *App) isOwner(id int64) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, o := range a.owners {
		if o == id {
			return true
		}
	}
	return false
}

func (a *App) handleMessage(ctx context.Context, msg kit.Message) {
	if !a.isOwner(msg.FromID) {
		a.log.Debug("ignoring non-owner message", logx.Int64("from", msg.FromID))
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	cmd, args, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(strings.ToLower(cmd), "@")
	args = strings.TrimSpace(args)
	to := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	switch cmd {
	case "/start", "/help":
		a.reply(ctx, to, helpText(), mainKeyboard())
	case "/status":
		a.reply(ctx, to, a.statusText(), mainKeyboard())
	case "/schedule":
		a.reply(ctx, to, renderSchedule(a.scheduleTimes()), nil)
	case "/add":
		a.handleAdd(ctx, to, args)
	case "/remove":
		a.handleRemove(ctx, to, args)
	case "/feed":
		a.startManualFeed(ctx, to)
	case "/cam":
		a.sendSnapshot(ctx, to)
	case "/history":
		a.handleHistory(ctx, to, args)
	default:
		a.reply(ctx, to, string(tgui.Esc("Unknown command. Try /help.")), nil)
	}
}

func (a *App) handleCallback(ctx context.Context, cb kit.Callback) {
	if !a.isOwner(cb.FromID) {
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "not allowed")
		return
	}
	to := kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID}
	action, _ := tgui.Parse(cb.Data)
	switch action {
	case cbFeed:
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "dispensing…")
		a.startManualFeed(ctx, to)
	case cbCam:
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "fetching frame…")
		a.sendSnapshot(ctx, to)
	case cbStatus:
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "")
		a.reply(ctx, to, a.statusText(), mainKeyboard())
	default:
		_ = a.adapter.AnswerCallback(ctx, cb.ID, "")
	}
}

func (a *App) handleAdd(ctx context.Context, to kit.ChatTarget, args string) {
	if args == "" {
		a.reply(ctx, to, "Usage: /add HH:MM", nil)
		return
	}
	next, err := a.addScheduleTime(args)
	if err != nil {
		a.reply(ctx, to, string(tgui.Esc(err.Error())), nil)
		return
	}
	a.log.Info("schedule entry added", logx.String("at", args))
	a.reply(ctx, to, renderSchedule(next), nil)
}

func (a *App) handleRemove(ctx context.Context, to kit.ChatTarget, args string) {
	n, err := strconv.Atoi(args)
	if err != nil {
		a.reply(ctx, to, "Usage: /remove N (see /schedule for numbers)", nil)
		return
	}
	removed, next, err := a.removeScheduleTime(n - 1)
	if err != nil {
		a.reply(ctx, to, string(tgui.Esc(err.Error())), nil)
		return
	}
	a.log.Info("schedule entry removed", logx.String("at", removed))
	a.reply(ctx, to, string(tgui.JoinH("\n",
		tgui.Esc("Removed "+removed+"."),
		tgui.Raw(renderSchedule(next)))), nil)
}

// startManualFeed runs the dispense off the dispatch goroutine so a slow
// motor never blocks command handling.
func (a *App) startManualFeed(ctx context.Context, to kit.ChatTarget) {
	if a.feeder.Busy() {
		a.reply(ctx, to, "A dispense is already running.", nil)
		return
	}
	a.sup.Go0("feed.manual", func(c context.Context) {
		err := a.dispense(c, storage.TriggerManual)
		switch {
		case err == nil:
			a.reply(c, to, "🍖 Dispensed.", nil)
		case errors.Is(err, feeder.ErrBusy):
			a.reply(c, to, "A dispense is already running.", nil)
		case errors.Is(err, ErrNotConnected):
			a.reply(c, to, "Robot platform is not connected; try again shortly.", nil)
		default:
			a.reply(c, to, string(tgui.JoinH(" ", "⚠️", tgui.Esc("Dispense failed: "+err.Error()))), nil)
		}
	})
}

func (a *App) sendSnapshot(ctx context.Context, to kit.ChatTarget) {
	a.sup.Go0("camera.snapshot", func(c context.Context) {
		f, err := a.snapshot(c)
		if err != nil {
			if errors.Is(err, ErrNotConnected) {
				a.reply(c, to, "Robot platform is not connected; no frame available.", nil)
				return
			}
			a.reply(c, to, string(tgui.JoinH(" ", "⚠️", tgui.Esc("Snapshot failed: "+err.Error()))), nil)
			return
		}
		name := a.cameraName
		if name == "" {
			name = "petcam"
		}
		caption := name + " " + f.At.In(a.loc).Format("15:04:05")
		sctx, cancel := context.WithTimeout(c, 30*time.Second)
		defer cancel()
		if _, err := a.adapter.SendPhoto(sctx, to, kit.Photo{Data: f.Data, Caption: caption}, nil); err != nil {
			a.log.Warn("send photo failed", logx.Err(err))
		}
	})
}

func (a *App) handleHistory(ctx context.Context, to kit.ChatTarget, args string) {
	if a.store == nil {
		a.reply(ctx, to, "History is disabled (no storage configured).", nil)
		return
	}
	n := 10
	if args != "" {
		if v, err := strconv.Atoi(args); err == nil && v > 0 && v <= 50 {
			n = v
		}
	}
	events, err := a.store.RecentFeeds(ctx, n)
	if err != nil {
		a.reply(ctx, to, string(tgui.Esc("History unavailable: "+err.Error())), nil)
		return
	}
	a.reply(ctx, to, renderHistory(events, a.loc), nil)
}

func (a *App) reply(ctx context.Context, to kit.ChatTarget, html string, markup *tgui.Inline) {
	opt := &kit.SendOptions{ParseMode: "HTML", DisablePreview: true}
	if markup != nil {
		opt.ReplyMarkupAdapter = markup.Markup()
	}
	sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := a.adapter.SendText(sctx, to, html, opt); err != nil {
		a.log.Warn("reply failed", logx.Err(err))
	}
}

func (a *App) updateCommandMenu(ctx context.Context) {
	up, ok := a.adapter.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	cmds := []kit.BotCommand{
		{Command: "status", Description: "Connection, schedule and last feed"},
		{Command: "feed", Description: "Dispense one portion now"},
		{Command: "cam", Description: "Fetch a camera snapshot"},
		{Command: "schedule", Description: "List feeding times"},
		{Command: "add", Description: "Add a feeding time (HH:MM)"},
		{Command: "remove", Description: "Remove feeding time number N"},
		{Command: "history", Description: "Recent feed events"},
		{Command: "help", Description: "Show usage"},
	}
	if err := up.UpdateMenuCommands(ctx, cmds); err != nil {
		a.log.Warn("command menu update failed", logx.Err(err))
	}
}

// ---- rendering ----

func mainKeyboard() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("🍖 Feed now", tgui.Data(cbFeed, "")), tgui.Btn("📷 Snapshot", tgui.Data(cbCam, ""))).
		Row(tgui.Btn("📋 Status", tgui.Data(cbStatus, "")))
}

func helpText() string {
	return string(tgui.JoinH("\n",
		tgui.B("Pet feeder"),
		tgui.Esc("/status – connection, schedule and last feed"),
		tgui.Esc("/feed – dispense one portion now"),
		tgui.Esc("/cam – fetch a camera snapshot"),
		tgui.Esc("/schedule – list feeding times"),
		tgui.Esc("/add HH:MM – add a feeding time"),
		tgui.Esc("/remove N – remove feeding time number N"),
		tgui.Esc("/history [n] – recent feed events"),
	))
}

func (a *App) statusText() string {
	st, since, lastErr := a.conn.State()
	now := time.Now().In(a.loc)

	var parts []tgui.H
	parts = append(parts, tgui.B("Pet feeder"))

	connLine := "Connection: " + string(st)
	if !since.IsZero() {
		connLine += " for " + shortDuration(now.Sub(since.In(a.loc)))
	}
	parts = append(parts, tgui.Esc(connLine))
	if lastErr != nil && st != ConnConnected {
		parts = append(parts, tgui.Esc("Last error: ")+tgui.Code(lastErr.Error()))
	}

	if a.feeder.Busy() {
		parts = append(parts, tgui.Esc("Dispensing right now…"))
	}
	if last := a.feeder.LastSuccess(); !last.IsZero() {
		parts = append(parts, tgui.Esc("Last fed: "+last.In(a.loc).Format("Mon 15:04")))
	}

	times := a.scheduleTimes()
	if next, ok := nextFeedTime(times, now); ok {
		parts = append(parts, tgui.Esc("Next feed: "+next))
	}
	parts = append(parts, tgui.Raw(renderSchedule(times)))
	return string(tgui.JoinH("\n", parts...))
}

func renderSchedule(times []string) string {
	if len(times) == 0 {
		return string(tgui.Esc("No feeding times scheduled."))
	}
	parts := make([]tgui.H, 0, len(times)+1)
	parts = append(parts, tgui.B("Feeding times"))
	for i, hm := range times {
		parts = append(parts, tgui.Esc(fmt.Sprintf("%d. %s", i+1, hm)))
	}
	return string(tgui.JoinH("\n", parts...))
}

func renderHistory(events []storage.FeedEvent, loc *time.Location) string {
	if len(events) == 0 {
		return string(tgui.Esc("No feed events recorded yet."))
	}
	parts := make([]tgui.H, 0, len(events)+1)
	parts = append(parts, tgui.B("Recent feeds"))
	for _, e := range events {
		mark := "✓"
		if !e.OK {
			mark = "✗"
		}
		line := fmt.Sprintf("%s %s %s", e.At.In(loc).Format("Jan 02 15:04"), mark, e.Trigger)
		if e.TookMS > 0 {
			line += fmt.Sprintf(" (%.1fs)", float64(e.TookMS)/1000)
		}
		h := tgui.Esc(line)
		if e.Error != "" {
			h += " " + tgui.Code(e.Error)
		}
		parts = append(parts, h)
	}
	return string(tgui.JoinH("\n", parts...))
}

func feedNotification(r feeder.Result) string {
	if r.Err != nil {
		return string(tgui.JoinH(" ", "⚠️",
			tgui.Esc(fmt.Sprintf("Feed failed (%s):", r.Trigger)),
			tgui.Code(r.Err.Error())))
	}
	return string(tgui.JoinH(" ", "🍖",
		tgui.Esc(fmt.Sprintf("Dispensed (%s, %.1fs).", r.Trigger, r.Took.Seconds()))))
}

// nextFeedTime picks the first schedule entry after now, wrapping to the
// next day. times must be sorted.
func nextFeedTime(times []string, now time.Time) (string, bool) {
	if len(times) == 0 {
		return "", false
	}
	cur := now.Format("15:04")
	for _, hm := range times {
		if hm > cur {
			return hm + " today", true
		}
	}
	return times[0] + " tomorrow", true
}

func shortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	default:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
}

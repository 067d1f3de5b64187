package app

import (
	"context"
	"fmt"
	"time"

	logx "feedbot/pkg/logx"
	"feedbot/pkg/tgui"
)

// sendDailyReport summarizes the last 24 hours of feed events to the owner
// chat. Without storage the report only carries the schedule.
func (a *App) sendDailyReport(ctx context.Context) {
	now := time.Now().In(a.loc)
	parts := []tgui.H{tgui.B("Daily feeder report")}

	if a.store != nil {
		sctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		total, failed, err := a.store.CountSince(sctx, now.Add(-24*time.Hour))
		cancel()
		if err != nil {
			a.log.Warn("report query failed", logx.Err(err))
			parts = append(parts, tgui.Esc("History unavailable: ")+tgui.Code(err.Error()))
		} else {
			line := fmt.Sprintf("Feeds in the last 24h: %d", total)
			if failed > 0 {
				line += fmt.Sprintf(" (%d failed)", failed)
			}
			parts = append(parts, tgui.Esc(line))
			if total == 0 {
				parts = append(parts, tgui.Esc("⚠️ Nothing was dispensed; check the feeder."))
			}
		}
	}

	if last := a.feeder.LastSuccess(); !last.IsZero() {
		parts = append(parts, tgui.Esc("Last fed: "+last.In(a.loc).Format("Mon 15:04")))
	}
	st, _, _ := a.conn.State()
	parts = append(parts, tgui.Esc("Connection: "+string(st)))
	if next, ok := nextFeedTime(a.scheduleTimes(), now); ok {
		parts = append(parts, tgui.Esc("Next feed: "+next))
	}

	a.notify(string(tgui.JoinH("\n", parts...)))
}

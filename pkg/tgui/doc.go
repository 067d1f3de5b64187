// Package tgui provides small Telegram UI helpers:
//   - Inline keyboard builders
//   - Callback data helpers (action:payload)
//   - Safe HTML for ParseMode="HTML" messages
package tgui

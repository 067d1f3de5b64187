package tgui

import "strings"

// Data formats inline callback data as "action" or "action:payload".
// Payload is kept as-is (no escaping).
func Data(action, payload string) string {
	action = strings.TrimSpace(action)
	if payload == "" {
		return action
	}
	return action + ":" + payload
}

// Parse splits callback data produced by Data. The payload may itself
// contain colons; only the first one separates action from payload.
func Parse(data string) (action, payload string) {
	action, payload, _ = strings.Cut(strings.TrimSpace(data), ":")
	return action, payload
}

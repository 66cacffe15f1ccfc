// Package callbacks decodes the callback data produced by telebot buttons.
package callbacks

import (
	"strings"

	tele "gopkg.in/telebot.v4"
)

// ParseData parses Telebot's "\f<unique>|<payload>" encoding.
// Data without the leading form feed is treated as a bare unique key.
func ParseData(raw string) (unique, payload string) {
	raw = strings.TrimPrefix(raw, "\f")
	parts := strings.SplitN(raw, "|", 2)
	unique = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		payload = parts[1]
	}
	return unique, payload
}

// ParseCallbackData returns the unique key and payload of cb.
// cb.Unique wins when telebot has already split the data.
func ParseCallbackData(cb *tele.Callback) (string, string) {
	if cb == nil {
		return "", ""
	}
	if cb.Unique != "" {
		return cb.Unique, cb.Data
	}
	return ParseData(cb.Data)
}

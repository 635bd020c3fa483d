package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/talking-ben/voicebot/internal/logging"
)

// maxPayload caps how much of an event body ends up in a debug log line.
const maxPayload = 4 * 1024

// sensitiveKeys lists JSON keys which should never be logged in plaintext.
var sensitiveKeys = map[string]struct{}{
	"token": {}, "session_id": {}, "access_token": {}, "refresh_token": {},
	"authorization": {}, "password": {}, "email": {}, "client_secret": {},
}

// redactAny walks a decoded JSON value (map[string]any / []any) and replaces
// values for sensitive keys with a placeholder. It modifies maps/slices in place.
func redactAny(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		for k, val := range vv {
			if _, ok := sensitiveKeys[strings.ToLower(k)]; ok {
				vv[k] = "<redacted>"
				continue
			}
			vv[k] = redactAny(val)
		}
		return vv
	case []any:
		for i, it := range vv {
			vv[i] = redactAny(it)
		}
		return vv
	default:
		return v
	}
}

// eventPayload renders a gateway event for logging: redacted and truncated.
func eventPayload(raw []byte) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "<raw data omitted>"
	}
	b, err := json.Marshal(redactAny(v))
	if err != nil {
		return "<raw data omitted>"
	}
	if len(b) > maxPayload {
		return string(b[:maxPayload]) + fmt.Sprintf("<truncated %d bytes>", len(b)-maxPayload)
	}
	return string(b)
}

// logEvent is registered only at debug level; it dumps every gateway event.
func logEvent(_ *discordgo.Session, evt *discordgo.Event) {
	if evt == nil {
		return
	}
	logging.Debugw("discord event", "type", evt.Type, "payload", eventPayload(evt.RawData))
}

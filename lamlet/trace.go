package lamlet

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sarchlab/lamlet/monitor"
)

// LevelTrace sits above Info so per-cycle chatter (router connections,
// cache slot transitions, drop/retry traffic) can be filtered in
// without drowning ordinary debug output.
const LevelTrace slog.Level = slog.LevelInfo + 1

var titleCaser = cases.Title(language.English)

// toTitleCase renders an ALL_CAPS wire name the way trace logs print it
// (e.g. "READ_MEM_WORD_REQ" -> "Read Mem Word Req").
func toTitleCase(s string) string {
	return titleCaser.String(strings.ToLower(strings.ReplaceAll(s, "_", " ")))
}

// LogHooks is a monitor.Hooks implementation that writes every message
// event to a structured logger at LevelTrace, the harness-side default
// when tracing is wanted without an attached akita monitor.
type LogHooks struct {
	Logger *slog.Logger

	nextSpan monitor.SpanID
}

func (h *LogHooks) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *LogHooks) MessageSent(kIndex, jInKIndex int, messageType string) {
	h.logger().Log(context.Background(), LevelTrace, "message sent",
		"kamlet", kIndex, "jamlet", jInKIndex, "type", toTitleCase(messageType))
}

func (h *LogHooks) MessageReceived(kIndex, jInKIndex int, messageType string) {
	h.logger().Log(context.Background(), LevelTrace, "message received",
		"kamlet", kIndex, "jamlet", jInKIndex, "type", toTitleCase(messageType))
}

func (h *LogHooks) WitemCreated(kIndex, instrIdent int, kind string) {
	h.logger().Debug("witem created", "kamlet", kIndex, "ident", instrIdent, "kind", kind)
}

func (h *LogHooks) SyncLocalEvent(ident, kIndex int) {
	h.logger().Log(context.Background(), LevelTrace, "sync local event",
		"ident", ident, "kamlet", kIndex)
}

func (h *LogHooks) SyncComplete(ident int) {
	h.logger().Debug("sync complete", "ident", ident)
}

func (h *LogHooks) SpanStart(kind string, instrIdent int) monitor.SpanID {
	h.nextSpan++
	h.logger().Debug("span start", "kind", kind, "ident", instrIdent, "span", uint64(h.nextSpan))
	return h.nextSpan
}

func (h *LogHooks) SpanEnd(id monitor.SpanID) {
	h.logger().Debug("span end", "span", uint64(id))
}

package pluginrt

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ThePerkinrex/gilbert/pluginapi"
)

// LogHook is a logrus.Hook that forwards every log entry to the host as a
// pluginapi.LogMessage via the Runtime's response stream, mirroring the
// Rust original's LoggingLayer (a tracing::Layer implementation) in
// gilbert-plugin/src/subscriber.rs.
type LogHook struct {
	rt   *Runtime
	name string
}

// NewLogHook builds a LogHook that tags every forwarded message with name
// (the plugin's own identity, reported back to the host for display).
func NewLogHook(rt *Runtime, name string) *LogHook {
	return &LogHook{rt: rt, name: name}
}

// Levels reports every logrus level is handled, matching the Rust
// subscriber's unconditional layer registration.
func (h *LogHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

// Fire converts entry into a LogMessage and forwards it.
func (h *LogHook) Fire(entry *logrus.Entry) error {
	fields := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = visitField(v)
	}

	msg := pluginapi.LogMessage{
		Level:  toLevel(entry.Level),
		Name:   h.name,
		Target: h.name,
		Fields: fields,
	}

	if entry.Caller != nil {
		msg.File = entry.Caller.File
		msg.Line = entry.Caller.Line
		msg.ModulePath = entry.Caller.Function
	}

	h.rt.LogResponse(msg)
	return nil
}

func toLevel(l logrus.Level) pluginapi.Level {
	switch l {
	case logrus.TraceLevel:
		return pluginapi.LevelTrace
	case logrus.DebugLevel:
		return pluginapi.LevelDebug
	case logrus.InfoLevel:
		return pluginapi.LevelInfo
	case logrus.WarnLevel:
		return pluginapi.LevelWarn
	default:
		return pluginapi.LevelError
	}
}

// visitField mirrors the Rust FieldsVisitor: primitives pass through
// untouched, anything else (including values that would need 128-bit
// precision) is rendered with %+v, see SPEC_FULL.md §4.9.
func visitField(v interface{}) interface{} {
	switch v.(type) {
	case bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return v
	default:
		return fmt.Sprintf("%+v", v)
	}
}

// Package pluginapi defines the line-delimited JSON wire protocol shared by
// the plugin host and a plugin/runner subprocess, grounded on
// original_source/gilbert-plugin-api/src/{lib.rs,runner_proto.rs} and
// alfred-plugin-api/src/log.rs.
package pluginapi

import "encoding/json"

// ProtoVersion is the plugin wire protocol version this host/runtime
// implements, checked by the plugin against a caret range ("^ProtoVersion")
// so that any 0.1.x host can talk to any 0.1.y plugin.
const ProtoVersion = "0.1.0"

// RequestKind tags a GilbertRequest's payload.
type RequestKind string

const (
	// RequestInit is the first message the host sends, carrying the task
	// config the plugin needs to initialize.
	RequestInit RequestKind = "init"

	// RequestIntoRunnerProtocol asks an initialized plugin to switch to the
	// runner wire protocol (RunnerRequest/RunnerResponse).
	RequestIntoRunnerProtocol RequestKind = "into_runner_protocol"
)

// GilbertRequest is a host→plugin message. Config is left as json.RawMessage
// so pluginhost can serialize any caller-supplied config type without this
// package needing to know its shape (Go has no generic wire struct the way
// GilbertRequest<Config> does in Rust, so the type parameter becomes a
// deferred-decode field instead).
type GilbertRequest struct {
	Kind   RequestKind     `json:"kind"`
	Config json.RawMessage `json:"config,omitempty"`

	GilbertVersion   string `json:"gilbert_version,omitempty"`
	ProtocolVersion  string `json:"protocol_version,omitempty"`
}

// NewInitRequest builds the Init request the host sends first.
func NewInitRequest(gilbertVersion string, config json.RawMessage) GilbertRequest {
	return GilbertRequest{
		Kind:            RequestInit,
		GilbertVersion:  gilbertVersion,
		ProtocolVersion: ProtoVersion,
		Config:          config,
	}
}

// NewIntoRunnerProtocolRequest builds the protocol-switch request.
func NewIntoRunnerProtocolRequest() GilbertRequest {
	return GilbertRequest{Kind: RequestIntoRunnerProtocol}
}

// ResponseKind tags a GeneralPluginResponse's payload.
type ResponseKind string

const (
	// ResponseInit answers RequestInit.
	ResponseInit ResponseKind = "init"

	// ResponseInitRunner answers RequestIntoRunnerProtocol.
	ResponseInitRunner ResponseKind = "init_runner"

	// ResponseLog carries a structured log record produced by the plugin.
	ResponseLog ResponseKind = "log"

	// ResponseInner carries a RunnerResponse once the protocol has
	// switched, or any other payload a specialized plugin defines.
	ResponseInner ResponseKind = "inner"
)

// GeneralPluginResponse is a plugin→host message.
type GeneralPluginResponse struct {
	Kind ResponseKind `json:"kind"`

	// Init / InitRunner
	PluginVersion         string   `json:"plugin_version,omitempty"`
	ProtocolVersionValid  bool     `json:"protocol_version_valid,omitempty"`
	AcceptedExtensions    []string `json:"accepted_extensions,omitempty"`

	// Log
	Log *LogMessage `json:"log,omitempty"`

	// Inner
	Inner json.RawMessage `json:"inner,omitempty"`
}

// Level mirrors alfred-plugin-api's log::Level.
type Level string

const (
	LevelTrace Level = "trace"
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// LogMessage is a structured log record forwarded from plugin to host,
// grounded on alfred-plugin-api/src/log.rs's LogMessage.
type LogMessage struct {
	Level      Level                  `json:"level"`
	Name       string                 `json:"name"`
	Target     string                 `json:"target"`
	ModulePath string                 `json:"module_path,omitempty"`
	File       string                 `json:"file,omitempty"`
	Line       int                    `json:"line,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

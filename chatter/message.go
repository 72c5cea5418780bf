/*
 * Copyright © 2020 Camilo Hernández <me@camiloh.com>
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 *  in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in
 * all copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 *  FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
 * THE SOFTWARE.
 */

// Package chatter defines the wire message exchanged between mesh peers
// once a Connection is established, and its gob encoding.
package chatter

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
)

// Kind identifies which fields of a Message are meaningful.
type Kind int

const (
	// KindHello is sent once right after a Connection is established.
	KindHello Kind = iota

	// KindQueueUpdate gossips the sender's current queue length.
	KindQueueUpdate

	// KindNodeConfigUpdate gossips a change to the sender's NodeConfig.
	KindNodeConfigUpdate

	// KindGeneralConfigUpdate gossips a diff against the cluster-wide GeneralConfig.
	// Reserved: the receiver logs and ignores it, see SPEC_FULL.md §9.
	KindGeneralConfigUpdate

	// KindTaskDispatch asks the receiver to run a task local to it.
	KindTaskDispatch

	// KindTaskResult carries back the outcome of a KindTaskDispatch.
	KindTaskResult

	// KindPing is a liveness probe carrying a nonce that must be echoed in Pong.
	KindPing

	// KindPong answers a Ping with the same nonce.
	KindPong
)

// String returns a human-readable name for the Kind, used in logs.
func (k Kind) String() string {
	switch k {
	case KindHello:
		return "Hello"
	case KindQueueUpdate:
		return "QueueUpdate"
	case KindNodeConfigUpdate:
		return "NodeConfigUpdate"
	case KindGeneralConfigUpdate:
		return "GeneralConfigUpdate"
	case KindTaskDispatch:
		return "TaskDispatch"
	case KindTaskResult:
		return "TaskResult"
	case KindPing:
		return "Ping"
	case KindPong:
		return "Pong"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Message is the flat, gob-friendly representation of the Rust original's
// ChatterMessage enum: one struct tagged by Kind, carrying only the fields
// relevant to that Kind. Unused fields for a given Kind are left zero.
type Message struct {
	Kind Kind

	// Hello
	HelloConfig    GeneralConfigSnapshot
	HelloPriority  uint32
	HelloConnected []string
	HelloToken     string

	// QueueUpdate
	QueueLength uint32

	// NodeConfigUpdate
	Priority uint32

	// GeneralConfigUpdate
	ConfigDiff GeneralConfigDiff

	// TaskDispatch / TaskResult
	JobID   string
	Task    string
	Params  []json.RawMessage
	Error   string
	Returns json.RawMessage

	// Ping / Pong
	Nonce uint32
}

// GeneralConfigSnapshot is the subset of GeneralConfig gossiped in Hello,
// used by the receiver to detect cluster-wide config drift.
type GeneralConfigSnapshot struct {
	ClusterName string
	TaskNames   []string
}

// Equal reports whether two snapshots describe the same cluster-wide
// config, the comparison behind Hello's ConfigsDontMatch check.
func (s GeneralConfigSnapshot) Equal(other GeneralConfigSnapshot) bool {
	if s.ClusterName != other.ClusterName || len(s.TaskNames) != len(other.TaskNames) {
		return false
	}
	for i, name := range s.TaskNames {
		if other.TaskNames[i] != name {
			return false
		}
	}
	return true
}

// GeneralConfigDiff is a field-level diff of GeneralConfig, supplementing
// the dropped config/src/url_diff.rs Diff derive. It is the payload of a
// KindGeneralConfigUpdate message; no code in this module builds one, and
// the receiver logs it and never applies it.
type GeneralConfigDiff struct {
	ClusterNameChanged bool
	ClusterName        string
	AddedTasks         []string
	RemovedTasks       []string
}

// Hello builds a KindHello message, carrying the sender's GeneralConfig
// snapshot and shared token for the receiver's ConfigsDontMatch check.
func Hello(cfg GeneralConfigSnapshot, priority uint32, connected []string, token string) Message {
	return Message{Kind: KindHello, HelloConfig: cfg, HelloPriority: priority, HelloConnected: connected, HelloToken: token}
}

// Ping builds a KindPing message with the given nonce.
func Ping(nonce uint32) Message {
	return Message{Kind: KindPing, Nonce: nonce}
}

// Pong builds a KindPong message answering the given nonce.
func Pong(nonce uint32) Message {
	return Message{Kind: KindPong, Nonce: nonce}
}

// QueueUpdate builds a KindQueueUpdate message.
func QueueUpdate(length uint32) Message {
	return Message{Kind: KindQueueUpdate, QueueLength: length}
}

// NodeConfigUpdate builds a KindNodeConfigUpdate message.
func NodeConfigUpdate(priority uint32) Message {
	return Message{Kind: KindNodeConfigUpdate, Priority: priority}
}

// TaskDispatch builds a KindTaskDispatch message.
func TaskDispatch(jobID, task string, params []json.RawMessage) Message {
	return Message{Kind: KindTaskDispatch, JobID: jobID, Task: task, Params: params}
}

// TaskResult builds a KindTaskResult message.
func TaskResult(jobID string, taskErr error, returns json.RawMessage) Message {
	m := Message{Kind: KindTaskResult, JobID: jobID, Returns: returns}
	if taskErr != nil {
		m.Error = taskErr.Error()
	}
	return m
}

// Summary returns a short string describing the message, for logging.
func (m Message) Summary() string {
	return fmt.Sprintf("[%s job=%s task=%s nonce=%d]", m.Kind, m.JobID, m.Task, m.Nonce)
}

// Encode returns the gob encoding of the message, ready to be handed to a
// transport.FrameWriter. Gob replaces the original's bincode: see DESIGN.md.
func Encode(m Message) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reverses Encode.
func Decode(data []byte) (Message, error) {
	var m Message
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&m); err != nil {
		return Message{}, err
	}
	return m, nil
}

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

// Package pluginrt is the plugin-side half of the pluginapi protocol: it
// reads the host's Init request, validates protocol compatibility, and
// drives an orderly-shutdown response printer, grounded on
// original_source/gilbert-plugin/src/{lib.rs,plugin.rs,sender.rs}.
package pluginrt

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ThePerkinrex/gilbert/pluginapi"
)

// printerState is the orderly-shutdown lifecycle of the response printer,
// mirroring the Rust original's Normal/Finishing/Finished states.
type printerState int

const (
	printerNormal printerState = iota
	printerFinishing
	printerFinished
)

// Runtime owns the plugin's stdout response stream: a channel with room for
// 64 responses, drained by a single printer goroutine so that Log
// forwarding from arbitrary goroutines does not wait on stdout I/O while
// there is room. The channel is not unbounded: once 64 responses are
// waiting, senders block until the printer catches up; nothing is dropped.
type Runtime struct {
	out     io.Writer
	queue   chan pluginapi.GeneralPluginResponse
	wg      sync.WaitGroup

	mu    sync.Mutex
	state printerState

	PluginVersion string
}

// Init reads one line from in as a pluginapi.GilbertRequest, validates it is
// an Init request with a compatible protocol_version, and replies on out.
// Any other first message, or a failed compatibility check, is fatal: per
// SPEC_FULL.md §6, the response is still sent before the caller exits
// non-zero. The returned *bufio.Scanner has already consumed the Init line;
// callers must keep reading subsequent requests from it rather than
// wrapping in a fresh one, or they will lose whatever Init's scanner already
// buffered past the first line.
func Init(in io.Reader, out io.Writer, pluginVersion string) (*Runtime, *bufio.Scanner, json.RawMessage, error) {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		return nil, nil, nil, fmt.Errorf("pluginrt: no init request received: %w", scanner.Err())
	}

	var req pluginapi.GilbertRequest
	if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
		return nil, nil, nil, fmt.Errorf("pluginrt: malformed init request: %w", err)
	}

	if req.Kind != pluginapi.RequestInit {
		return nil, nil, nil, fmt.Errorf("pluginrt: expected init request, got %q", req.Kind)
	}

	valid, err := pluginapi.CompatibleVersion(req.ProtocolVersion)
	if err != nil {
		valid = false
	}

	r := newRuntime(out, pluginVersion)

	r.enqueue(pluginapi.GeneralPluginResponse{
		Kind:                 pluginapi.ResponseInit,
		PluginVersion:        pluginVersion,
		ProtocolVersionValid: valid,
	})

	if !valid {
		r.Shutdown()
		return r, scanner, req.Config, fmt.Errorf("pluginrt: host protocol_version %q incompatible with %s", req.ProtocolVersion, pluginapi.ProtoVersion)
	}

	return r, scanner, req.Config, nil
}

func newRuntime(out io.Writer, pluginVersion string) *Runtime {
	r := &Runtime{
		out:           out,
		queue:         make(chan pluginapi.GeneralPluginResponse, 64),
		PluginVersion: pluginVersion,
	}

	r.wg.Add(1)
	go r.printer()

	return r
}

// printer drains queue onto out until Shutdown closes it and the queue is
// empty, implementing the Normal -> Finishing -> Finished lifecycle.
func (r *Runtime) printer() {
	defer r.wg.Done()

	encoder := json.NewEncoder(r.out)
	for resp := range r.queue {
		_ = encoder.Encode(resp)
	}

	r.mu.Lock()
	r.state = printerFinished
	r.mu.Unlock()
}

func (r *Runtime) enqueue(resp pluginapi.GeneralPluginResponse) {
	// Held across the send so Shutdown cannot close the queue in between.
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.state != printerNormal {
		return
	}

	r.queue <- resp
}

// LogResponse forwards a structured log record to the host.
func (r *Runtime) LogResponse(msg pluginapi.LogMessage) {
	r.enqueue(pluginapi.GeneralPluginResponse{Kind: pluginapi.ResponseLog, Log: &msg})
}

// InnerResponse forwards an arbitrary payload (e.g. a RunnerResponse) to the
// host, once the protocol has switched via IntoRunnerProtocol.
func (r *Runtime) InnerResponse(payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	r.enqueue(pluginapi.GeneralPluginResponse{Kind: pluginapi.ResponseInner, Inner: raw})
	return nil
}

// InitRunnerResponse answers an IntoRunnerProtocol request.
func (r *Runtime) InitRunnerResponse(extensions []string) {
	r.enqueue(pluginapi.GeneralPluginResponse{
		Kind:                 pluginapi.ResponseInitRunner,
		PluginVersion:        r.PluginVersion,
		ProtocolVersionValid: true,
		AcceptedExtensions:   extensions,
	})
}

// Shutdown transitions the printer to Finishing (no further enqueues are
// accepted), closes the queue once called, and blocks until every already
// queued response has been written and the printer goroutine exits
// (Finished). The process should os.Exit only after Shutdown returns.
func (r *Runtime) Shutdown() {
	r.mu.Lock()
	if r.state == printerNormal {
		r.state = printerFinishing
		close(r.queue)
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// Stdio returns the process's stdin/stdout, the usual in/out pair passed to
// Init by a plugin's main().
func Stdio() (io.Reader, io.Writer) {
	return os.Stdin, os.Stdout
}

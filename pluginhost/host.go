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

// Package pluginhost spawns and supervises a plugin subprocess, generalizing
// beekeeper's runLocalJob (lib/execute.go) from a single-shot encode/run/
// decode call into a long-lived line-delimited JSON session, grounded on
// original_source/plugin-manager/src/lib.rs.
package pluginhost

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ThePerkinrex/gilbert/pluginapi"
)

// ErrIncompatibleProtocol is returned when the plugin reports its protocol
// version does not satisfy the host's caret range.
var ErrIncompatibleProtocol = errors.New("pluginhost: incompatible plugin protocol version")

// InitTimeout bounds how long the host waits for the plugin's first
// response line, per SPEC_FULL.md §4.8.
const InitTimeout = 5 * time.Second

// Plugin is a live handle to a running plugin subprocess.
type Plugin struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Scanner

	cancel context.CancelFunc

	// Inner receives every ResponseInner payload the plugin sends after
	// the Init handshake completes.
	Inner chan json.RawMessage

	PluginVersion string
}

// Load spawns the plugin binary at path, sends the Init request carrying
// config, and blocks for up to InitTimeout on its first response. Log
// responses arriving before Init completes are forwarded to logrus just
// like ones arriving after.
func Load(ctx context.Context, path string, gilbertVersion string, config json.RawMessage) (*Plugin, error) {
	ctx, cancel := context.WithCancel(ctx)

	cmd := exec.CommandContext(ctx, path)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}

	cmd.Stderr = logrus.StandardLogger().WriterLevel(logrus.WarnLevel)

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, err
	}

	p := &Plugin{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewScanner(stdout),
		cancel: cancel,
		Inner:  make(chan json.RawMessage, 16),
	}
	p.stdout.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if err := p.sendLine(pluginapi.NewInitRequest(gilbertVersion, config)); err != nil {
		p.Close()
		return nil, err
	}

	version, valid, err := p.awaitInit(ctx)
	if err != nil {
		p.Close()
		return nil, err
	}
	if !valid {
		p.Close()
		return nil, ErrIncompatibleProtocol
	}
	p.PluginVersion = version

	go p.readLoop()

	return p, nil
}

func (p *Plugin) sendLine(req pluginapi.GilbertRequest) error {
	line, err := json.Marshal(req)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = p.stdin.Write(line)
	return err
}

// awaitInit reads response lines (forwarding Log lines to logrus) until the
// Init response arrives or InitTimeout elapses.
func (p *Plugin) awaitInit(ctx context.Context) (version string, valid bool, err error) {
	deadline := time.Now().Add(InitTimeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	type result struct {
		resp pluginapi.GeneralPluginResponse
		err  error
	}
	lineCh := make(chan result, 1)

	go func() {
		for p.stdout.Scan() {
			var resp pluginapi.GeneralPluginResponse
			if err := json.Unmarshal(p.stdout.Bytes(), &resp); err != nil {
				lineCh <- result{err: err}
				return
			}

			if resp.Kind == pluginapi.ResponseLog {
				logResponse(resp.Log)
				continue
			}

			lineCh <- result{resp: resp}
			return
		}
		lineCh <- result{err: p.stdout.Err()}
	}()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case r := <-lineCh:
		if r.err != nil {
			return "", false, r.err
		}
		return r.resp.PluginVersion, r.resp.ProtocolVersionValid, nil
	}
}

// readLoop forwards every subsequent response line: Log entries go to
// logrus, Inner payloads go to the Inner channel.
func (p *Plugin) readLoop() {
	for p.stdout.Scan() {
		var resp pluginapi.GeneralPluginResponse
		if err := json.Unmarshal(p.stdout.Bytes(), &resp); err != nil {
			logrus.WithError(err).Warn("pluginhost: dropping unparseable response line")
			continue
		}

		switch resp.Kind {
		case pluginapi.ResponseLog:
			logResponse(resp.Log)
		case pluginapi.ResponseInner:
			p.Inner <- resp.Inner
		}
	}
	close(p.Inner)
}

func logResponse(msg *pluginapi.LogMessage) {
	if msg == nil {
		return
	}

	entry := logrus.WithFields(logrus.Fields{
		"plugin": msg.Name,
		"target": msg.Target,
	})
	for k, v := range msg.Fields {
		entry = entry.WithField(k, v)
	}

	switch msg.Level {
	case pluginapi.LevelTrace:
		entry.Trace(msg.File)
	case pluginapi.LevelDebug:
		entry.Debug(msg.File)
	case pluginapi.LevelInfo:
		entry.Info(msg.File)
	case pluginapi.LevelWarn:
		entry.Warn(msg.File)
	case pluginapi.LevelError:
		entry.Error(msg.File)
	}
}

// IntoRunnerProtocol asks the plugin to switch to the runner wire protocol.
func (p *Plugin) IntoRunnerProtocol() error {
	return p.sendLine(pluginapi.NewIntoRunnerProtocolRequest())
}

// Close terminates the subprocess and releases its pipes.
func (p *Plugin) Close() {
	p.cancel()
	_ = p.stdin.Close()
	_ = p.cmd.Wait()
}

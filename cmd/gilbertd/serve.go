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

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ThePerkinrex/gilbert/chatter"
	"github.com/ThePerkinrex/gilbert/config"
	"github.com/ThePerkinrex/gilbert/httpapi"
	"github.com/ThePerkinrex/gilbert/mesh"
	"github.com/ThePerkinrex/gilbert/pluginhost"
	"github.com/ThePerkinrex/gilbert/tlsmesh"
)

var generalCfgPath string

// gilbertVersion is reported to plugins on Init so they can gate behavior on
// the running daemon's version, mirroring beekeeper's build-time version
// string. Gilbert has no release process yet, so this stays a fixed dev tag.
const gilbertVersion = "0.1.0-dev"

func newScanTicker() *time.Ticker {
	return time.NewTicker(config.DefaultScanTime)
}

// serveCmd joins the mesh and serves the HTTP API, the daemon equivalent of
// beekeeper's bee/cmd/start.go.
var serveCmd = &cobra.Command{
	Use:   "serve [-f cluster-config]",
	Short: "Join the mesh and start serving the HTTP API",
	Long: `serve loads this node's identity and the cluster-wide task catalog,
listens for incoming peer connections authenticated over mTLS, attempts to
connect to every configured peer, and routes dispatched tasks to locally
loaded plugins.`,
	Run: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&generalCfgPath, "cluster-config", "f", "", "cluster-wide config file path (nodes, tasks, plugins)")
}

func runServe(cmd *cobra.Command, args []string) {
	general, err := config.LoadGeneralConfig(generalCfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("unable to load cluster config")
	}
	generalFn := func() config.GeneralConfig { return general }

	store := tlsmesh.NewCertStore(nodeCfg.CAFile, nodeCfg.CertFile, nodeCfg.KeyFile)
	acceptor := tlsmesh.NewAcceptor(store)

	manager := mesh.NewNodeManager()

	host := newPluginHost(generalFn, manager)
	defer host.CloseAll()

	handlers := &mesh.Handlers{
		Self:     nodeCfg.Name,
		General:  generalFn,
		Store:    store,
		Manager:  manager,
		Priority: nodeCfg.Priority,
		Token:    nodeCfg.Token,
	}
	handlers.OnTask = host.handleTask

	server := httpapi.NewServer(manager, acceptor, generalFn, handlers, nodeCfg.Priority, nodeCfg.Token)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if !nodeCfg.DisableConnectionWatchdog {
		go mesh.StartConnectionWatchdog(ctx, manager)
	}

	go attemptConnectLoop(ctx, general, handlers)

	httpServer := &http.Server{Addr: nodeCfg.InboundAddr, Handler: server.Handler()}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sig
		logrus.Info("shutting down")
		cancel()
		_ = httpServer.Shutdown(context.Background())
	}()

	logrus.WithField("addr", nodeCfg.InboundAddr).Info("gilbertd listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logrus.WithError(err).Fatal("http server exited")
	}
}

// attemptConnectLoop periodically re-runs AttemptConnect against the full
// configured node list, the same cadence as beekeeper's scan loop
// (config.DefaultScanTime) but driven by EventHandlers instead of a
// broadcast scan.
func attemptConnectLoop(ctx context.Context, general config.GeneralConfig, handlers mesh.EventHandlers) {
	names := make([]string, 0, len(general.Nodes))
	for _, n := range general.Nodes {
		names = append(names, n.Name)
	}

	ticker := newScanTicker()
	defer ticker.Stop()

	for {
		handlers.AttemptConnect(names)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// pluginHost owns one pluginhost.Plugin per configured task/binary, loaded
// lazily on first dispatch and kept for the process lifetime.
type pluginHost struct {
	general func() config.GeneralConfig
	manager *mesh.NodeManager

	mu      sync.Mutex
	plugins map[string]*pluginhost.Plugin
}

func newPluginHost(general func() config.GeneralConfig, manager *mesh.NodeManager) *pluginHost {
	return &pluginHost{general: general, manager: manager, plugins: map[string]*pluginhost.Plugin{}}
}

// handleTask is the mesh.Handlers.OnTask callback. A TaskDispatch loads (or
// reuses) the plugin backing the task and switches it to the runner
// protocol; the task itself is not sent to the plugin and no TaskResult is
// sent back on success. If the plugin cannot be loaded, a TaskResult
// carrying the error is sent over the same Connection. A TaskResult is
// simply logged.
func (h *pluginHost) handleTask(peerName string, msg chatter.Message) {
	if msg.Kind == chatter.KindTaskResult {
		logrus.WithFields(logrus.Fields{"peer": peerName, "job": msg.JobID, "error": msg.Error}).Info("task result received")
		return
	}

	plugin, err := h.pluginFor(msg.Task)
	if err != nil {
		h.reply(peerName, chatter.TaskResult(msg.JobID, err, nil))
		return
	}

	_ = plugin.IntoRunnerProtocol()
	logrus.WithFields(logrus.Fields{"peer": peerName, "job": msg.JobID, "task": msg.Task}).Info("task dispatched to local plugin")
}

// reply sends msg back to peerName if it is still connected.
func (h *pluginHost) reply(peerName string, msg chatter.Message) {
	status, conn := h.manager.Get(peerName)
	if status != mesh.StatusUp || conn == nil {
		return
	}
	if err := conn.Send(msg); err != nil {
		logrus.WithField("peer", peerName).WithError(err).Warn("failed to reply with task result")
	}
}

// pluginFor loads (and memoizes) the plugin binary backing task, resolved
// against this node's GOOS/GOARCH from config.PluginConfig.Binaries.
func (h *pluginHost) pluginFor(task string) (*pluginhost.Plugin, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if p, ok := h.plugins[task]; ok {
		return p, nil
	}

	info, ok := h.general().Tasks[task]
	if !ok {
		return nil, fmt.Errorf("serve: unknown task %q", task)
	}

	plugin, ok := h.general().Plugins[info.Script]
	if !ok {
		return nil, fmt.Errorf("serve: no plugin configured for script %q", info.Script)
	}

	triple := runtime.GOOS + "/" + runtime.GOARCH
	bin, ok := plugin.Binaries[triple]
	if !ok {
		return nil, fmt.Errorf("serve: no %s binary for plugin %q", triple, info.Script)
	}

	if !filepath.IsAbs(bin) {
		if ex, err := os.Executable(); err == nil {
			bin = filepath.Join(filepath.Dir(ex), bin)
		}
	}

	cfg, err := json.Marshal(plugin.Args)
	if err != nil {
		return nil, err
	}

	p, err := pluginhost.Load(context.Background(), bin, gilbertVersion, cfg)
	if err != nil {
		return nil, err
	}

	h.plugins[task] = p
	return p, nil
}

// CloseAll terminates every loaded plugin subprocess.
func (h *pluginHost) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, p := range h.plugins {
		p.Close()
	}
}

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
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ThePerkinrex/gilbert/config"
	"github.com/ThePerkinrex/gilbert/mesh"
	"github.com/ThePerkinrex/gilbert/monitor"
	"github.com/ThePerkinrex/gilbert/tlsmesh"
)

// monitorCmd runs a node that only watches the mesh, the daemon equivalent
// of beekeeper's bee/cmd/monitor.go.
var monitorCmd = &cobra.Command{
	Use:   "monitor [-f cluster-config]",
	Short: "Watch cluster status from a terminal dashboard",
	Long: `monitor joins the mesh like serve, but never receives task
dispatches; it only attempts connections to the configured peers and renders
their live status in a paginated terminal UI.`,
	Run: runMonitor,
}

func init() {
	monitorCmd.Flags().StringVarP(&generalCfgPath, "cluster-config", "f", "", "cluster-wide config file path (nodes, tasks, plugins)")
}

func runMonitor(cmd *cobra.Command, args []string) {
	general, err := config.LoadGeneralConfig(generalCfgPath)
	if err != nil {
		logrus.WithError(err).Fatal("unable to load cluster config")
	}
	generalFn := func() config.GeneralConfig { return general }

	store := tlsmesh.NewCertStore(nodeCfg.CAFile, nodeCfg.CertFile, nodeCfg.KeyFile)
	manager := mesh.NewNodeManager()

	handlers := &mesh.Handlers{
		Self:     nodeCfg.Name,
		General:  generalFn,
		Store:    store,
		Manager:  manager,
		Priority: nodeCfg.Priority,
		Token:    nodeCfg.Token,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go attemptConnectLoop(ctx, general, handlers)

	m := monitor.NewMonitor(nodeCfg.Name)
	if err := m.Run(manager, time.Second); err != nil {
		logrus.WithError(err).Fatal("monitor exited")
	}
}

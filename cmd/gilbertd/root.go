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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ThePerkinrex/gilbert/config"
)

var cfgFilePath string

var tokenOverride string
var debugOverride bool
var addrOverride string

var nodeCfg config.NodeConfig

// rootCmd mirrors beekeeper's bee/cmd/root.go: persistent flags overriding
// a viper-loaded config file, applied in initConfig via cobra.OnInitialize.
var rootCmd = &cobra.Command{
	Use:   "gilbertd [command]",
	Short: "Gilbert cluster node daemon",
	Long: `gilbertd joins a Gilbert mesh, authenticating peers with mTLS over a
WebSocket overlay, and dispatches tasks to locally configured plugins.`,
}

// Execute runs the root command, printing any error and exiting non-zero.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFilePath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVarP(&tokenOverride, "token", "t", "", "sets the cluster token")
	rootCmd.PersistentFlags().BoolVar(&debugOverride, "debug", false, "enables debug logging")
	rootCmd.PersistentFlags().StringVarP(&addrOverride, "addr", "a", "", "overrides the inbound listen address")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(monitorCmd)
}

func initConfig() {
	nodeCfg = findConfig(cfgFilePath)

	if debugOverride {
		nodeCfg.Debug = true
	}
	if tokenOverride != "" {
		nodeCfg.Token = tokenOverride
	}
	if addrOverride != "" {
		nodeCfg.InboundAddr = addrOverride
	}

	if nodeCfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
}

// findConfig mirrors beekeeper's findConfig (bee/cmd/root.go): an explicit
// path wins, otherwise it looks for a "gilbert.*" file beside the binary,
// falling back to defaults.
func findConfig(path string) config.NodeConfig {
	if path != "" {
		cfg, err := config.LoadNodeConfig(path)
		if err != nil {
			logrus.WithError(err).Warn("unable to use config file, using default values")
			return config.NewDefaultNodeConfig()
		}
		return cfg
	}

	ex, err := os.Executable()
	if err != nil {
		return config.NewDefaultNodeConfig()
	}

	dir := filepath.Dir(ex)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return config.NewDefaultNodeConfig()
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		name := entry.Name()
		if strings.HasPrefix(name, "gilbert.") {
			cfg, err := config.LoadNodeConfig(filepath.Join(dir, name))
			if err != nil {
				return config.NewDefaultNodeConfig()
			}
			return cfg
		}
	}

	return config.NewDefaultNodeConfig()
}

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

// Package config holds Gilbert's cluster and node configuration types and
// their viper-backed file loading, generalized from beekeeper's single flat
// Config into the cluster-wide/per-node split the mesh needs.
package config

import (
	"os"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/ThePerkinrex/gilbert/chatter"
)

const (
	// DefaultPort is the default port gilbertd listens and dials on.
	DefaultPort = 7020

	// DefaultScanTime is the interval between AttemptConnect sweeps.
	DefaultScanTime = time.Second * 2
)

// WatchdogSleep is the time between liveness pings sent to peers.
var WatchdogSleep = time.Second * 15

// Node describes one member of the cluster as known from the local config
// file, before any connection has been attempted.
type Node struct {
	// Name is the node's identity, used as the WebSocket/TLS ServerName.
	Name string `mapstructure:"name"`

	// Address is the base HTTP(S) URL the node is reached at, e.g.
	// "https://10.0.0.2:7020". The scheme is rewritten to ws/wss and
	// "/api/chatter" is appended when dialing.
	Address string `mapstructure:"address"`
}

// TaskInfo describes one task a plugin can run, and which nodes may run it.
type TaskInfo struct {
	// Params lists the named parameters the task accepts.
	Params []Param `mapstructure:"params"`

	// AllowedNodes restricts execution to these node names, if non-empty.
	AllowedNodes []string `mapstructure:"allowed_nodes"`

	// DisallowedNodes excludes these node names from running the task.
	DisallowedNodes []string `mapstructure:"disallowed_nodes"`

	// Script is the key of the GeneralConfig.Plugins entry whose binary
	// implements this task; it is not resolved as a file path.
	Script string `mapstructure:"script"`
}

// Param describes one parameter accepted by a TaskInfo.
type Param struct {
	Name string    `mapstructure:"name"`
	Type ParamType `mapstructure:"type"`
}

// ParamType enumerates the accepted parameter value shapes.
type ParamType string

const (
	ParamNumber ParamType = "number"
	ParamString ParamType = "string"
	ParamObject ParamType = "object"
	ParamArray  ParamType = "array"
)

// PluginConfig names a plugin binary per build target (GOOS/GOARCH triple),
// supplementing config/src/repo.rs's Plugin{args, binaries}.
type PluginConfig struct {
	Args     []string          `mapstructure:"args"`
	Binaries map[string]string `mapstructure:"binaries"`
}

// GeneralConfig is the cluster-wide configuration shared by every node:
// the node list, the task catalog, and the plugin repository.
type GeneralConfig struct {
	ClusterName string                  `mapstructure:"cluster_name"`
	Nodes       []Node                  `mapstructure:"nodes"`
	Tasks       map[string]TaskInfo     `mapstructure:"tasks"`
	Plugins     map[string]PluginConfig `mapstructure:"plugins"`
}

// TaskNames returns the sorted task name list, used to build a
// GeneralConfigSnapshot for Hello and to serve GET /api/jobs. Sorted rather
// than map-iteration order so two nodes with byte-identical Tasks always
// compute the same snapshot for Hello's config comparison.
func (c GeneralConfig) TaskNames() []string {
	names := make([]string, 0, len(c.Tasks))
	for name := range c.Tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NodeConfig holds the settings local to this process: identity, transport,
// TLS material locations and limits. It is the Go analogue of beekeeper's
// flat Config, split out from the cluster-wide GeneralConfig.
type NodeConfig struct {
	// Name of this node. Defaults to the system hostname.
	Name string `mapstructure:"name"`

	// Debug toggles verbose (logrus Debug-level) logging.
	Debug bool `mapstructure:"debug"`

	// Token is a shared passphrase gossiped in Hello and compared against
	// the peer's; a mismatch is fatal, the same as a GeneralConfig mismatch.
	Token string `mapstructure:"token"`

	// Priority affects this node's ranking in the balancer for ties.
	Priority uint32 `mapstructure:"priority"`

	// InboundAddr is the address gilbertd listens on, e.g. ":7020".
	InboundAddr string `mapstructure:"inbound_addr"`

	// CAFile, CertFile and KeyFile locate this node's mTLS material. If
	// CertFile and KeyFile are empty, a single self-signed certificate is
	// bootstrapped and cached under ~/.gilbert (see tlsmesh.CertStore).
	CAFile   string `mapstructure:"ca_file"`
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`

	// MaxMessageSize is read from the config file and defaults to 1 MiB. It
	// is not applied to the mesh transport: frames are bounded by
	// transport.DefaultMaxFrameSize.
	MaxMessageSize uint32 `mapstructure:"max_message_size"`

	// DisableConnectionWatchdog turns off periodic Ping liveness checks.
	DisableConnectionWatchdog bool `mapstructure:"disable_connection_watchdog"`
}

// NewDefaultNodeConfig returns a NodeConfig with sensible defaults, mirroring
// beekeeper's NewDefaultConfig.
func NewDefaultNodeConfig() NodeConfig {
	c := NodeConfig{
		InboundAddr:    ":7020",
		MaxMessageSize: 1 << 20,
	}

	name, err := os.Hostname()
	if err != nil {
		logrus.WithError(err).Warn("could not determine hostname, leaving node name empty")
	} else {
		c.Name = name
	}

	return c
}

// LoadNodeConfig reads path (or viper's discovered config file if path is
// empty) into a NodeConfig, applying defaults first.
func LoadNodeConfig(path string) (NodeConfig, error) {
	if path != "" {
		viper.SetConfigFile(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		return NodeConfig{}, err
	}

	c := NewDefaultNodeConfig()
	if err := viper.Unmarshal(&c); err != nil {
		return NodeConfig{}, err
	}

	return c, nil
}

// LoadGeneralConfig reads path (or viper's discovered config file) into a
// GeneralConfig.
func LoadGeneralConfig(path string) (GeneralConfig, error) {
	if path != "" {
		viper.SetConfigFile(path)
	}

	if err := viper.ReadInConfig(); err != nil {
		return GeneralConfig{}, err
	}

	var c GeneralConfig
	if err := viper.Unmarshal(&c); err != nil {
		return GeneralConfig{}, err
	}

	return c, nil
}

// Snapshot converts the cluster-wide config into the compact form gossiped
// in a Hello message.
func (c GeneralConfig) Snapshot() chatter.GeneralConfigSnapshot {
	return chatter.GeneralConfigSnapshot{ClusterName: c.ClusterName, TaskNames: c.TaskNames()}
}

// Diff compares old and next field by field, supplementing
// config/src/url_diff.rs's Diff derive. It reports whether anything changed,
// whether the cluster name changed, and the task names added and removed
// (in no particular order); it does not build a chatter.GeneralConfigDiff.
func Diff(old, next GeneralConfig) (changed bool, clusterNameChanged bool, added, removed []string) {
	oldTasks := make(map[string]struct{}, len(old.Tasks))
	for name := range old.Tasks {
		oldTasks[name] = struct{}{}
	}
	newTasks := make(map[string]struct{}, len(next.Tasks))
	for name := range next.Tasks {
		newTasks[name] = struct{}{}
	}

	for name := range newTasks {
		if _, ok := oldTasks[name]; !ok {
			added = append(added, name)
		}
	}
	for name := range oldTasks {
		if _, ok := newTasks[name]; !ok {
			removed = append(removed, name)
		}
	}

	clusterNameChanged = old.ClusterName != next.ClusterName
	changed = clusterNameChanged || len(added) > 0 || len(removed) > 0

	return changed, clusterNameChanged, added, removed
}

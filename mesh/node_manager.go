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

// Package mesh tracks cluster peers and their live Connections, generalizing
// beekeeper's Server.nodes registry (node.go, server.go) into the
// NodeManager/Connection/EventHandlers split from the Rust original
// (original_source/server/src/node_manager.go and its event_triggers.rs).
package mesh

import (
	"sync"

	"github.com/olekukonko/tablewriter"
	"io"
	"os"
)

// Status is the lifecycle state of a peer as known to the local NodeManager.
type Status int

const (
	// StatusUnknown is the zero value: no attempt has been made yet.
	StatusUnknown Status = iota

	// StatusDown means the last known Connection ended or was never made.
	StatusDown

	// StatusUp means a Connection is live.
	StatusUp
)

// String renders Status for PrettyPrint and logs.
func (s Status) String() string {
	switch s {
	case StatusDown:
		return "disconnected"
	case StatusUp:
		return "connected"
	default:
		return "unknown"
	}
}

// nodeSlot pairs a Status with the live Connection, if any.
type nodeSlot struct {
	status Status
	conn   *Connection
}

// NodeManager is a registry of peer name to live status/Connection, guarded
// by a single RWMutex, mirroring beekeeper's Server.nodesLock but keyed by
// logical node name instead of IP address (node.go's updateNode).
type NodeManager struct {
	mu    sync.RWMutex
	nodes map[string]nodeSlot
}

// NewNodeManager returns an empty NodeManager.
func NewNodeManager() *NodeManager {
	return &NodeManager{nodes: make(map[string]nodeSlot)}
}

// Get returns the current status and Connection (nil unless StatusUp) for
// name. Unknown names report StatusUnknown, matching the Rust original's
// Cow<NodeStatus> default.
func (m *NodeManager) Get(name string) (Status, *Connection) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	slot, ok := m.nodes[name]
	if !ok {
		return StatusUnknown, nil
	}
	return slot.status, slot.conn
}

// Down marks name as disconnected and drops any stored Connection.
func (m *NodeManager) Down(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes[name] = nodeSlot{status: StatusDown}
}

// Up stores conn as the live Connection for name.
func (m *NodeManager) Up(name string, conn *Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nodes[name] = nodeSlot{status: StatusUp, conn: conn}
}

// Connected returns the names of every peer currently StatusUp.
func (m *NodeManager) Connected() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var names []string
	for name, slot := range m.nodes {
		if slot.status == StatusUp {
			names = append(names, name)
		}
	}
	return names
}

// Snapshot returns every known name and its Status, for the /api/nodes
// endpoint and the monitor TUI.
func (m *NodeManager) Snapshot() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]Status, len(m.nodes))
	for name, slot := range m.nodes {
		out[name] = slot.status
	}
	return out
}

// PrettyPrint renders the current registry as a table, grounded on
// beekeeper's Nodes.PrettyPrint (node.go).
func (m *NodeManager) PrettyPrint(writer ...io.Writer) {
	var out io.Writer = os.Stdout
	if len(writer) > 0 {
		out = writer[0]
	}

	table := tablewriter.NewWriter(out)
	table.SetHeader([]string{"Name", "Status"})
	table.SetAlignment(tablewriter.ALIGN_CENTER)

	for name, status := range m.Snapshot() {
		table.Append([]string{name, status.String()})
	}

	table.Render()
}

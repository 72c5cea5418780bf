package mesh

import (
	"encoding/json"

	"github.com/ThePerkinrex/gilbert/balancer"
	"github.com/ThePerkinrex/gilbert/chatter"
)

// ClusterTask is the balancer.Task instantiation used across the mesh: a
// task dispatched by name with JSON-encoded parameters, restricted to a
// set of allowed/disallowed node names (config.TaskInfo).
type ClusterTask struct {
	JobID   string
	Name    string
	Params  []json.RawMessage
	Allowed []string
	Denied  []string
}

// CanRun implements balancer.Task. An empty Allowed list means "any node
// not explicitly denied", matching config.TaskInfo's allowed/disallowed
// pair.
func (t ClusterTask) CanRun(nodeID string) bool {
	for _, d := range t.Denied {
		if d == nodeID {
			return false
		}
	}

	if len(t.Allowed) == 0 {
		return true
	}

	for _, a := range t.Allowed {
		if a == nodeID {
			return true
		}
	}

	return false
}

// PeerNode adapts a *Connection (plus its name) to balancer.Node[ClusterTask],
// the concrete instantiation exercising the balancer's send_task over the
// mesh (SPEC_FULL.md §4.6).
type PeerNode struct {
	name string
	conn *Connection
}

// NewPeerNode wraps conn for use with balancer.Balancer.
func NewPeerNode(name string, conn *Connection) *PeerNode {
	return &PeerNode{name: name, conn: conn}
}

var _ balancer.Node[ClusterTask] = (*PeerNode)(nil)

// SendTask implements balancer.Node by sending a TaskDispatch message.
func (p *PeerNode) SendTask(task ClusterTask) {
	_ = p.conn.Send(chatter.TaskDispatch(task.JobID, task.Name, task.Params))
}

// QueueLength implements balancer.Node from the last gossiped value.
func (p *PeerNode) QueueLength() int { return int(p.conn.State.QueueLength()) }

// Priority implements balancer.Node from the last gossiped value.
func (p *PeerNode) Priority() int { return int(p.conn.State.Priority()) }

// ID implements balancer.Node.
func (p *PeerNode) ID() string { return p.name }

// PeerNodes builds balancer.Node values for every currently connected peer,
// for rebuilding a Balancer after membership changes.
func PeerNodes(manager *NodeManager) []balancer.Node[ClusterTask] {
	var nodes []balancer.Node[ClusterTask]
	for _, name := range manager.Connected() {
		if status, conn := manager.Get(name); status == StatusUp && conn != nil {
			nodes = append(nodes, NewPeerNode(name, conn))
		}
	}
	return nodes
}

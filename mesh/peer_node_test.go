package mesh

import (
	"testing"

	"github.com/ThePerkinrex/gilbert/chatter"
)

func TestClusterTaskCanRun(t *testing.T) {
	cases := []struct {
		name string
		task ClusterTask
		node string
		want bool
	}{
		{"no restrictions", ClusterTask{}, "any-node", true},
		{"allowed list hit", ClusterTask{Allowed: []string{"a", "b"}}, "a", true},
		{"allowed list miss", ClusterTask{Allowed: []string{"a", "b"}}, "c", false},
		{"denied wins over allowed", ClusterTask{Allowed: []string{"a"}, Denied: []string{"a"}}, "a", false},
		{"denied only", ClusterTask{Denied: []string{"a"}}, "b", true},
	}

	for _, c := range cases {
		if got := c.task.CanRun(c.node); got != c.want {
			t.Errorf("%s: CanRun(%q) = %v, want %v", c.name, c.node, got, c.want)
		}
	}
}

func TestPeerNodeSendTaskDispatches(t *testing.T) {
	manager := NewNodeManager()
	conn, other := pipeConnections(t, manager, NoopEventHandlers{})
	defer conn.Close()

	node := NewPeerNode("peer-a", conn)
	// net.Pipe is unbuffered: the write only completes once ReadFrame below
	// reads it, so the send runs on its own goroutine.
	go node.SendTask(ClusterTask{JobID: "job-1", Name: "build"})

	frame, err := other.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	msg, err := chatter.Decode(frame)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if msg.Kind != chatter.KindTaskDispatch || msg.JobID != "job-1" || msg.Task != "build" {
		t.Errorf("got %+v, want TaskDispatch(job-1, build)", msg)
	}
}

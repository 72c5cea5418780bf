package mesh

import (
	"net"
	"testing"
	"time"

	"github.com/ThePerkinrex/gilbert/chatter"
	"github.com/ThePerkinrex/gilbert/transport"
)

type recordingHandlers struct {
	pongs     chan uint32
	connected chan []string
	configOK  bool
}

func (h *recordingHandlers) Pong(nonce uint32) { h.pongs <- nonce }
func (h *recordingHandlers) AttemptConnect(names []string) {
	if h.connected != nil {
		h.connected <- names
	}
}
func (h *recordingHandlers) Task(string, chatter.Message) {}
func (h *recordingHandlers) ConfigMatches(chatter.GeneralConfigSnapshot, string) bool {
	return h.configOK
}

func pipeConnections(t *testing.T, manager *NodeManager, handlers EventHandlers) (*Connection, *transport.FramedConn) {
	t.Helper()

	a, b := net.Pipe()
	conn := Accepted("peer-a", transport.NewFramedConn(a), a, manager, handlers)
	return conn, transport.NewFramedConn(b)
}

func TestConnectionRepliesToPing(t *testing.T) {
	manager := NewNodeManager()
	conn, other := pipeConnections(t, manager, NoopEventHandlers{})
	defer conn.Close()

	payload, err := chatter.Encode(chatter.Ping(7))
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if err := other.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	reply, err := other.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}

	msg, err := chatter.Decode(reply)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if msg.Kind != chatter.KindPong || msg.Nonce != 7 {
		t.Errorf("got %+v, want Pong(7)", msg)
	}
}

func TestConnectionInvokesPongHandler(t *testing.T) {
	manager := NewNodeManager()
	handlers := &recordingHandlers{pongs: make(chan uint32, 1)}
	conn, other := pipeConnections(t, manager, handlers)
	defer conn.Close()

	payload, _ := chatter.Encode(chatter.Pong(99))
	if err := other.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case nonce := <-handlers.pongs:
		if nonce != 99 {
			t.Errorf("pong nonce = %d, want 99", nonce)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Pong handler invocation")
	}
}

func TestConnectionTracksQueueUpdate(t *testing.T) {
	manager := NewNodeManager()
	conn, other := pipeConnections(t, manager, NoopEventHandlers{})
	defer conn.Close()

	payload, _ := chatter.Encode(chatter.QueueUpdate(42))
	if err := other.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for conn.State.QueueLength() != 42 {
		if time.Now().After(deadline) {
			t.Fatalf("QueueLength() = %d, want 42", conn.State.QueueLength())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestConnectionHelloMismatchDropsConnection(t *testing.T) {
	manager := NewNodeManager()
	handlers := &recordingHandlers{pongs: make(chan uint32, 1), configOK: false}
	conn, other := pipeConnections(t, manager, handlers)
	manager.Up("peer-a", conn)

	payload, _ := chatter.Encode(chatter.Hello(chatter.GeneralConfigSnapshot{ClusterName: "hive"}, 1, nil, "wrong-token"))
	if err := other.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for receiver to exit after config mismatch")
	}

	if status, _ := manager.Get("peer-a"); status != StatusDown {
		t.Errorf("status after ConfigsDontMatch = %v, want StatusDown", status)
	}
}

func TestConnectionHelloTriggersAttemptConnectWithGossipedNames(t *testing.T) {
	manager := NewNodeManager()
	handlers := &recordingHandlers{pongs: make(chan uint32, 1), connected: make(chan []string, 1), configOK: true}
	conn, other := pipeConnections(t, manager, handlers)
	defer conn.Close()

	payload, _ := chatter.Encode(chatter.Hello(chatter.GeneralConfigSnapshot{ClusterName: "hive"}, 7, []string{"carol"}, "secret"))
	if err := other.WriteFrame(payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}

	select {
	case names := <-handlers.connected:
		if len(names) != 1 || names[0] != "carol" {
			t.Errorf("AttemptConnect names = %v, want [carol]", names)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for AttemptConnect invocation")
	}

	deadline := time.Now().Add(time.Second)
	for conn.State.Priority() != 7 {
		if time.Now().After(deadline) {
			t.Fatalf("Priority() = %d, want 7", conn.State.Priority())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestNodeManagerMarksDownOnReceiverExit(t *testing.T) {
	manager := NewNodeManager()
	conn, _ := pipeConnections(t, manager, NoopEventHandlers{})
	manager.Up("peer-a", conn)

	if status, _ := manager.Get("peer-a"); status != StatusUp {
		t.Fatalf("status before close = %v, want StatusUp", status)
	}

	conn.Close()

	select {
	case <-conn.Done():
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for receiver to exit")
	}

	if status, _ := manager.Get("peer-a"); status != StatusDown {
		t.Errorf("status after close = %v, want StatusDown", status)
	}
}

package mesh

import (
	"errors"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/ThePerkinrex/gilbert/chatter"
	"github.com/ThePerkinrex/gilbert/transport"
)

// ErrConfigsDontMatch is the fatal Hello condition from SPEC_FULL.md §4.4:
// the peer's gossiped GeneralConfig snapshot or shared token doesn't match
// ours, so the connection is dropped rather than trusted.
var ErrConfigsDontMatch = errors.New("mesh: peer's config or token does not match local")

// ConnState holds the gossiped, frequently-updated fields of a peer
// Connection: its last-known queue length and priority, read by the
// balancer's PeerNode adapter.
type ConnState struct {
	mu          sync.RWMutex
	priority    uint32
	queueLength uint32
}

func (s *ConnState) setPriority(p uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.priority = p
}

func (s *ConnState) setQueueLength(l uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queueLength = l
}

// Priority returns the last priority value gossiped by this peer.
func (s *ConnState) Priority() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.priority
}

// QueueLength returns the last queue length value gossiped by this peer.
func (s *ConnState) QueueLength() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queueLength
}

// origin distinguishes which side of the handshake created a Connection,
// mirroring the Rust original's ConnectionSink::{Accepted,Connected}.
type origin int

const (
	originAccepted origin = iota
	originConnected
)

// Connection is a live, authenticated peer link: a locked send sink plus a
// background receiver goroutine, generalized from beekeeper's Conn (a bare
// *tls.Conn) into the shared-handle design the Rust original uses to break
// the circular ownership between the receiver and the NodeManager it
// updates (see EventHandlers).
type Connection struct {
	peerName string
	origin   origin

	sinkMu sync.Mutex
	frame  *transport.FramedConn
	closer io.Closer

	State *ConnState

	handlers EventHandlers
	manager  *NodeManager

	done chan struct{}
}

func newConnection(peerName string, frame *transport.FramedConn, closer io.Closer, o origin, manager *NodeManager, handlers EventHandlers) *Connection {
	c := &Connection{
		peerName: peerName,
		origin:   o,
		frame:    frame,
		closer:   closer,
		State:    &ConnState{},
		handlers: handlers,
		manager:  manager,
		done:     make(chan struct{}),
	}

	go c.receive()

	return c
}

// Accepted builds a Connection for a peer link established by accepting an
// inbound WebSocket+TLS handshake.
func Accepted(peerName string, frame *transport.FramedConn, closer io.Closer, manager *NodeManager, handlers EventHandlers) *Connection {
	return newConnection(peerName, frame, closer, originAccepted, manager, handlers)
}

// Connected builds a Connection for a peer link established by dialing out.
func Connected(peerName string, frame *transport.FramedConn, closer io.Closer, manager *NodeManager, handlers EventHandlers) *Connection {
	return newConnection(peerName, frame, closer, originConnected, manager, handlers)
}

// PeerName returns the identity this Connection authenticated as.
func (c *Connection) PeerName() string { return c.peerName }

// Send encodes and writes msg to the peer, serialized against concurrent
// senders by sinkMu (the Rust original's Arc<RwLock<ConnectionSink>>).
func (c *Connection) Send(msg chatter.Message) error {
	payload, err := chatter.Encode(msg)
	if err != nil {
		return err
	}

	c.sinkMu.Lock()
	defer c.sinkMu.Unlock()

	return c.frame.WriteFrame(payload)
}

// Close tears down the underlying transport. The receiver goroutine will
// then observe the read error and mark the peer Down exactly once.
func (c *Connection) Close() error {
	return c.closer.Close()
}

// Done is closed once the receiver goroutine has exited.
func (c *Connection) Done() <-chan struct{} { return c.done }

// receive is the Connection's background reader: the table in
// SPEC_FULL.md §4.4, generalized from the Rust original's
// Connection::receiver (original_source/server/src/node_manager.rs).
func (c *Connection) receive() {
	defer close(c.done)
	defer c.manager.Down(c.peerName)

	log := logrus.WithField("peer", c.peerName)

	for {
		payload, err := c.frame.ReadFrame()
		if err != nil {
			if err != io.EOF {
				log.WithError(err).Debug("connection receiver exiting")
			}
			return
		}

		msg, err := chatter.Decode(payload)
		if err != nil {
			log.WithError(err).Warn("dropping undecodable frame")
			continue
		}

		if !c.dispatch(log, msg) {
			return
		}
	}
}

// dispatch handles one decoded message and reports whether the receiver
// should keep reading. Only a Hello ConfigsDontMatch is fatal: it closes
// the transport and returns false, on which receive returns and its
// deferred manager.Down marks the peer Down, per SPEC_FULL.md §4.4.
func (c *Connection) dispatch(log *logrus.Entry, msg chatter.Message) bool {
	switch msg.Kind {
	case chatter.KindPing:
		if err := c.Send(chatter.Pong(msg.Nonce)); err != nil {
			log.WithError(err).Warn("failed to reply to ping")
		}

	case chatter.KindPong:
		if c.handlers != nil {
			c.handlers.Pong(msg.Nonce)
		}

	case chatter.KindQueueUpdate:
		c.State.setQueueLength(msg.QueueLength)

	case chatter.KindNodeConfigUpdate:
		c.State.setPriority(msg.Priority)

	case chatter.KindGeneralConfigUpdate:
		// Reserved: logged and otherwise ignored, see SPEC_FULL.md §9.
		log.WithField("diff", msg.ConfigDiff).Warn("ignoring general config update")

	case chatter.KindHello:
		if c.handlers != nil && !c.handlers.ConfigMatches(msg.HelloConfig, msg.HelloToken) {
			log.WithError(ErrConfigsDontMatch).Error("hello mismatch, dropping connection")
			_ = c.Close()
			return false
		}

		c.State.setPriority(msg.HelloPriority)
		if c.handlers != nil {
			c.handlers.AttemptConnect(msg.HelloConnected)
		}

	case chatter.KindTaskDispatch, chatter.KindTaskResult:
		if c.handlers != nil {
			c.handlers.Task(c.peerName, msg)
		}

	default:
		log.WithField("kind", msg.Kind).Warn("unhandled chatter message kind")
	}

	return true
}

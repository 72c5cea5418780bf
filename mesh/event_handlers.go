package mesh

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ThePerkinrex/gilbert/chatter"
	"github.com/ThePerkinrex/gilbert/config"
	"github.com/ThePerkinrex/gilbert/tlsmesh"
	"github.com/ThePerkinrex/gilbert/transport"
)

// EventHandlers reacts to events observed by a Connection's receiver. It
// exists to break the circular ownership between a Connection (which needs
// to trigger cluster-wide effects on events) and the NodeManager it would
// otherwise need to own directly, mirroring
// original_source/server/src/node_manager/event_triggers.rs.
type EventHandlers interface {
	// Pong is invoked when a peer answers a liveness probe.
	Pong(nonce uint32)

	// AttemptConnect is invoked after a Hello names peers we might not be
	// connected to yet; it dials any of them we aren't already Up with.
	AttemptConnect(names []string)

	// Task is invoked when a peer sends a TaskDispatch/TaskResult message,
	// routed to the balancer/plugin host by the caller's implementation.
	Task(peerName string, msg chatter.Message)

	// ConfigMatches reports whether a peer's gossiped Hello config snapshot
	// and shared token match the local ones. false is the fatal
	// ConfigsDontMatch condition from SPEC_FULL.md §4.4.
	ConfigMatches(remote chatter.GeneralConfigSnapshot, token string) bool
}

// NoopEventHandlers discards every event; it is the mock implementation for
// tests, mirroring the Rust original's MockEv.
type NoopEventHandlers struct{}

func (NoopEventHandlers) Pong(uint32)                  {}
func (NoopEventHandlers) AttemptConnect([]string)      {}
func (NoopEventHandlers) Task(string, chatter.Message) {}
func (NoopEventHandlers) ConfigMatches(chatter.GeneralConfigSnapshot, string) bool {
	return true
}

var _ EventHandlers = NoopEventHandlers{}

// Handlers is the production EventHandlers implementation: it holds shared
// references to the node's config, client TLS config and NodeManager, the
// same shape as the Rust original's EventHandlersImpl.
type Handlers struct {
	Self    string
	General func() config.GeneralConfig
	Store   *tlsmesh.CertStore
	Manager *NodeManager

	// Priority is gossiped in this node's own Hello messages.
	Priority uint32

	// Token is the shared passphrase gossiped in Hello and compared
	// against a peer's, per config.NodeConfig.Token.
	Token string

	// OnTask is invoked for every TaskDispatch/TaskResult a peer sends;
	// wired to the balancer/plugin host by the caller.
	OnTask func(peerName string, msg chatter.Message)

	// connectMu serializes AttemptConnect sweeps.
	connectMu sync.Mutex
}

var _ EventHandlers = (*Handlers)(nil)

// Pong logs the round trip. The watchdog does not wait for Pongs: it marks
// a peer Down only when sending its Ping fails.
func (h *Handlers) Pong(nonce uint32) {
	logrus.WithField("nonce", nonce).Debug("pong received")
}

// Task forwards to OnTask if set.
func (h *Handlers) Task(peerName string, msg chatter.Message) {
	if h.OnTask != nil {
		h.OnTask(peerName, msg)
	}
}

// ConfigMatches implements EventHandlers: the Hello fatal-break check from
// SPEC_FULL.md §4.4, extended to also require the gossiped token to match,
// per config.NodeConfig.Token's doc comment.
func (h *Handlers) ConfigMatches(remote chatter.GeneralConfigSnapshot, token string) bool {
	if !h.General().Snapshot().Equal(remote) {
		return false
	}
	return h.Token == token
}

// AttemptConnect dials every named peer this node isn't already Up with,
// sequentially, matching the Rust original's write-lock-per-connect
// behavior (event_triggers.rs's attempt_connect holds the NodeManager
// write lock across each dial so two AttemptConnect sweeps can't race on
// the same peer). Here connectMu is held across the whole sweep, so a
// concurrent call waits and then sees the peers the first one brought Up.
func (h *Handlers) AttemptConnect(names []string) {
	h.connectMu.Lock()
	defer h.connectMu.Unlock()

	gen := h.General()

	candidates := map[string]string{}
	for _, n := range gen.Nodes {
		candidates[n.Name] = n.Address
	}

	for _, name := range names {
		if name == h.Self {
			continue
		}

		addr, known := candidates[name]
		if !known {
			continue
		}

		if status, _ := h.Manager.Get(name); status == StatusUp {
			continue
		}

		if err := Dial(context.Background(), name, addr, h.Self, h.Store, h.Manager, h, gen, h.Priority, h.Token); err != nil {
			logrus.WithField("peer", name).WithError(err).Warn("attempt_connect dial failed")
		}
	}
}

// Dial performs the outbound connection procedure from SPEC_FULL.md §4.3:
// rewrite the HTTP(S) scheme to ws/wss, append "/api/chatter", open the
// WebSocket, run the client mTLS handshake over it, wrap the result in a
// FramedConn, build the Connection, send Hello and store Up.
func Dial(ctx context.Context, peerName, address, selfName string, store *tlsmesh.CertStore, manager *NodeManager, handlers EventHandlers, general config.GeneralConfig, priority uint32, token string) error {
	wsURL, err := chatterURL(address)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, _, err := dialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return err
	}

	wsConn := transport.NewWSConn(ws)

	connector := tlsmesh.NewConnector(store)
	tlsConn, _, err := connector.Dial(ctx, wsConn, peerName)
	if err != nil {
		_ = ws.Close()
		return err
	}

	frame := transport.NewFramedConn(tlsConn)
	conn := Connected(peerName, frame, tlsConn, manager, handlers)

	hello := chatter.Hello(general.Snapshot(), priority, manager.Connected(), token)
	if err := conn.Send(hello); err != nil {
		_ = conn.Close()
		return err
	}

	manager.Up(peerName, conn)

	_ = selfName
	return nil
}

// chatterURL rewrites an http(s) base address into the ws(s) /api/chatter
// URL dialed for the mesh overlay. Any other scheme is kept as it is, so an
// unsupported one fails when the WebSocket is dialed.
func chatterURL(address string) (string, error) {
	switch {
	case strings.HasPrefix(address, "https://"):
		address = "wss://" + strings.TrimPrefix(address, "https://")
	case strings.HasPrefix(address, "http://"):
		address = "ws://" + strings.TrimPrefix(address, "http://")
	default:
		// ws://, wss:// or any other scheme: left unchanged
	}

	address = strings.TrimSuffix(address, "/")
	return address + "/api/chatter", nil
}

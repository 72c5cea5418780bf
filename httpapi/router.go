// Package httpapi wires the three HTTP endpoints a gilbertd process
// exposes: the WebSocket upgrade peers dial into, the node registry
// snapshot, and the task catalog, grounded on
// original_source/server/src/{lib.rs,api.rs} (an axum router) translated to
// net/http + gorilla/websocket.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ThePerkinrex/gilbert/chatter"
	"github.com/ThePerkinrex/gilbert/config"
	"github.com/ThePerkinrex/gilbert/mesh"
	"github.com/ThePerkinrex/gilbert/tlsmesh"
	"github.com/ThePerkinrex/gilbert/transport"
)

// Server bundles the dependencies the HTTP handlers need.
type Server struct {
	Manager  *mesh.NodeManager
	Acceptor *tlsmesh.Acceptor
	General  func() config.GeneralConfig
	Handlers mesh.EventHandlers

	// Priority and Token are gossiped in the Hello this node sends on every
	// accepted connection, mirroring what Dial sends on the outbound side.
	Priority uint32
	Token    string

	upgrader websocket.Upgrader
}

// NewServer builds a Server and its http.Handler.
func NewServer(manager *mesh.NodeManager, acceptor *tlsmesh.Acceptor, general func() config.GeneralConfig, handlers mesh.EventHandlers, priority uint32, token string) *Server {
	return &Server{
		Manager:  manager,
		Acceptor: acceptor,
		General:  general,
		Handlers: handlers,
		Priority: priority,
		Token:    token,
		upgrader: websocket.Upgrader{Subprotocols: []string{"gilbert-chatter"}},
	}
}

// Handler returns the net/http.Handler exposing /api/chatter, /api/nodes,
// /api/jobs and /api/jobs/{name}.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/chatter", s.handleChatter)
	mux.HandleFunc("/api/nodes", s.handleNodes)
	mux.HandleFunc("/api/jobs/", s.handleJobDetail)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	return mux
}

// handleChatter upgrades the request to a WebSocket, runs the inner mTLS
// accept handshake over it, sends this node's Hello and registers the
// resulting Connection as Up under the peer's authenticated identity, per
// SPEC_FULL.md §4.3/§4.4 (the inbound half of what Dial does outbound).
func (s *Server) handleChatter(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	wsConn := transport.NewWSConn(ws)

	tlsConn, identity, err := s.Acceptor.Accept(r.Context(), wsConn)
	if err != nil {
		logrus.WithError(err).Warn("mTLS accept failed")
		_ = ws.Close()
		return
	}

	frame := transport.NewFramedConn(tlsConn)
	conn := mesh.Accepted(identity, frame, tlsConn, s.Manager, s.Handlers)

	hello := chatter.Hello(s.General().Snapshot(), s.Priority, s.Manager.Connected(), s.Token)
	if err := conn.Send(hello); err != nil {
		logrus.WithError(err).WithField("peer", identity).Warn("failed to send hello")
		_ = conn.Close()
		return
	}

	s.Manager.Up(identity, conn)
}

// handleNodes serves the current node registry snapshot as connected /
// disconnected, omitting any self entry the caller's Manager doesn't track
// (self is simply never inserted into the registry).
func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snapshot := s.Manager.Snapshot()

	out := make(map[string]string, len(snapshot))
	for name, status := range snapshot {
		out[name] = status.String()
	}

	writeJSON(w, http.StatusOK, out)
}

// handleJobs serves the cluster-wide task name catalog.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.General().TaskNames())
}

// handleJobDetail is reserved per SPEC_FULL.md §6.
func (s *Server) handleJobDetail(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

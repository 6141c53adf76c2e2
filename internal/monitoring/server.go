// Package monitoring exposes a session's and service table's live state
// over HTTP, for operators debugging a running meshrpc host. It is not on
// the request path of any RPC call; a host mounts it on its own listener
// (or not at all) purely for introspection. Routed with gorilla/mux,
// adapted from the teacher's own real-time monitoring dashboard, which
// used mux.Router the same way for its live metrics endpoints.
package monitoring

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/ocx/meshrpc/internal/service"
	"github.com/ocx/meshrpc/internal/sessiongroup"
)

// Server serves a read-only debug view of one host's registered methods
// and live sessions.
type Server struct {
	router *mux.Router
	table  *service.Table
	group  *sessiongroup.Group
}

// NewServer builds a Server. table and group may be nil; a nil table
// reports an empty method list, a nil group reports an empty session
// list.
func NewServer(table *service.Table, group *sessiongroup.Group) *Server {
	s := &Server{router: mux.NewRouter(), table: table, group: group}
	s.router.HandleFunc("/debug/methods", s.handleMethods).Methods(http.MethodGet)
	s.router.HandleFunc("/debug/sessions", s.handleSessions).Methods(http.MethodGet)
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	return s
}

// ServeHTTP lets Server be mounted directly as an http.Handler, or served
// standalone via http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleMethods(w http.ResponseWriter, r *http.Request) {
	var methods []string
	if s.table != nil {
		methods = s.table.Methods()
	}
	writeJSON(w, map[string]any{"methods": methods})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	var sessions []sessionView
	if s.group != nil {
		for _, p := range s.group.Snapshot() {
			sessions = append(sessions, sessionView{
				LocalID:      p.LocalID,
				RemoteID:     p.RemoteID,
				TenantID:     p.TenantID,
				PeerName:     p.PeerName,
				PeerIdentity: p.PeerIdentity,
				TotalRead:    p.TotalRead,
				TotalWrite:   p.TotalWrite,
			})
		}
		totals := s.group.Totals()
		writeJSON(w, map[string]any{
			"sessions":      sessions,
			"group_len":     s.group.Len(),
			"group_totals":  totals,
		})
		return
	}
	writeJSON(w, map[string]any{"sessions": sessions})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// sessionView is the JSON projection of session.Profile this server
// exposes; kept separate from session.Profile itself so a wire-format
// change on one side doesn't silently change the other.
type sessionView struct {
	LocalID      string `json:"local_id"`
	RemoteID     string `json:"remote_id,omitempty"`
	TenantID     string `json:"tenant_id,omitempty"`
	PeerName     string `json:"peer_name,omitempty"`
	PeerIdentity string `json:"peer_identity,omitempty"`
	TotalRead    uint64 `json:"total_read"`
	TotalWrite   uint64 `json:"total_write"`
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

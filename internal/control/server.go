// Package control implements the admin side-channel: a small HTTP surface
// bound to a local unix-domain socket (a named pipe on Windows) that lets an
// operator inspect and nudge the running daemon without touching the wire
// protocol. Grounded on the teacher's krd/control_server.go, which serves
// its own operator surface (/version, /pair, /enclave, /ping) the same way:
// http.NewServeMux plus http.Serve over a net.Listener obtained from
// kr.DaemonListen.
package control

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"

	"github.com/agrinman/abd"
	"github.com/op/go-logging"
)

// Server answers the admin HTTP surface described in SPEC_FULL.md §6.
type Server struct {
	transports *abd.TransportList
	metrics    *abd.Metrics
	log        *logging.Logger
}

// NewServer builds a Server over the daemon's shared transport list. metrics
// may be nil, in which case /metrics answers 404.
func NewServer(transports *abd.TransportList, metrics *abd.Metrics, log *logging.Logger) *Server {
	return &Server{transports: transports, metrics: metrics, log: log}
}

// Serve blocks handling requests on listener until it is closed, mirroring
// the teacher's HandleControlHTTP(listener net.Listener) shape.
func (s *Server) Serve(listener net.Listener) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/version", s.handleVersion)
	mux.HandleFunc("/transports", s.handleTransports)
	mux.HandleFunc("/kick", s.handleKick)
	mux.HandleFunc("/ping", s.handlePing)
	if s.metrics != nil {
		mux.HandleFunc("/metrics", s.handleMetrics)
	}
	return http.Serve(listener, mux)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte(abd.CURRENT_VERSION.String()))
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// transportInfo is the JSON shape documented in SPEC_FULL.md §6 for
// GET /transports: transport_id/serial/state/features.
type transportInfo struct {
	TransportID string   `json:"transport_id"`
	Serial      string   `json:"serial"`
	State       string   `json:"state"`
	Features    []string `json:"features"`
}

func (s *Server) handleTransports(w http.ResponseWriter, r *http.Request) {
	snapshot := s.transports.Snapshot()
	out := make([]transportInfo, 0, len(snapshot))
	for _, t := range snapshot {
		out = append(out, transportInfo{
			TransportID: strconv.FormatUint(t.ID(), 10),
			Serial:      t.Serial(),
			State:       t.State().String(),
			Features:    t.Features(),
		})
	}
	if err := json.NewEncoder(w).Encode(out); err != nil {
		s.log.Error("encoding /transports response:", err)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.Set().WritePrometheus(w)
}

func (s *Server) handleKick(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	idParam := r.URL.Query().Get("transport_id")
	id, err := strconv.ParseUint(idParam, 10, 64)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("invalid or missing transport_id"))
		return
	}
	t := s.transports.Get(id)
	if t == nil {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	t.Kick()
	w.WriteHeader(http.StatusOK)
}

package httpserver

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/asyncd/asyncd/internal/runtime/worker"
	"github.com/asyncd/asyncd/pkg/logging"
)

// ManagementRouter is the net/http-facing surface that sits alongside the
// raw, reactor-driven acceptor: a stats endpoint and a browser-friendly
// WebSocket echo endpoint built on gorilla/mux and gorilla/websocket
// instead of the fd-level wsproto path, for callers that want the
// standard library's connection model rather than the task runtime's.
type ManagementRouter struct {
	Pool *worker.Pool
	log  *logging.Logger

	upgrader websocket.Upgrader
}

// NewManagementRouter builds the *mux.Router serving "/", "/stats", and
// "/ws".
func NewManagementRouter(pool *worker.Pool, log *logging.Logger) *mux.Router {
	if log == nil {
		log = logging.GetGlobalLogger()
	}
	m := &ManagementRouter{
		Pool: pool,
		log:  log.WithComponent("httpserver"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}

	router := mux.NewRouter()
	router.HandleFunc("/", m.handleIndex).Methods(http.MethodGet)
	router.HandleFunc("/stats", m.handleStats).Methods(http.MethodGet)
	router.HandleFunc("/ws", m.handleWebSocket).Methods(http.MethodGet)
	return router
}

func (m *ManagementRouter) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.Write([]byte("asyncd task runtime\n"))
}

func (m *ManagementRouter) handleStats(w http.ResponseWriter, r *http.Request) {
	stats := m.Pool.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(stats)
}

func (m *ManagementRouter) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if err := conn.WriteMessage(msgType, data); err != nil {
			return
		}
	}
}

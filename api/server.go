/*
 * api/server.go
 *
 * HTTP surface: a point-in-time snapshot endpoint and a WebSocket event
 * stream, both served over the enriched sbom.Store. Grounded on
 * backend/refresh/api/server.go's Register(mux)/correlation-id shape, with
 * CORS widened to allow-any-origin per the original Rust server's actix-cors
 * configuration rather than the teacher's narrower echo-origin applyCORS.
 */

package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/ctron/bommer/internal/config"
	"github.com/ctron/bommer/internal/logging"
	"github.com/ctron/bommer/sbom"
)

// CorrelationIDHeader identifies a request across logs for troubleshooting.
const CorrelationIDHeader = "X-Correlation-ID"

// Server exposes the public HTTP/WebSocket surface over an enriched store.
type Server struct {
	store    *sbom.Store
	upgrader websocket.Upgrader
	logger   logging.Logger
}

// NewServer constructs a Server backed by store.
func NewServer(store *sbom.Store, logger logging.Logger) *Server {
	if logger == nil {
		logger = logging.NoopLogger{}
	}
	return &Server{
		store:  store,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Register attaches the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.Handle("/api/v1/workload", withCORS(http.HandlerFunc(s.handleSnapshot)))
	mux.Handle("/api/v1/workload_stream", withCORS(http.HandlerFunc(s.handleStream)))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)
	setCorrelationID(w, correlationID)

	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snapshot := s.store.Snapshot()
	images := make(map[string]Image, len(snapshot))
	for key, entry := range snapshot {
		images[key] = imageFromEntry(entry)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(images); err != nil {
		s.logger.Warnf("encoding snapshot response (correlation %s): %v", correlationID, err)
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	correlationID := getCorrelationID(r)

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("websocket upgrade failed (correlation %s): %v", correlationID, err)
		return
	}
	defer conn.Close()

	sub := s.store.Subscribe(config.StreamSubscriberCapacity)
	defer s.store.Unsubscribe(sub.ID)

	s.logger.Debugf("workload stream subscriber connected (correlation %s)", correlationID)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-sub.Events:
			if !ok {
				s.logger.Debugf("workload stream subscriber dropped (correlation %s)", correlationID)
				return
			}
			if err := conn.WriteJSON(WireEvent{Event: evt}); err != nil {
				s.logger.Debugf("workload stream write failed (correlation %s): %v", correlationID, err)
				return
			}
		}
	}
}

func getCorrelationID(r *http.Request) string {
	if id := r.Header.Get(CorrelationIDHeader); id != "" {
		return id
	}
	return uuid.NewString()[:8]
}

func setCorrelationID(w http.ResponseWriter, correlationID string) {
	w.Header().Set(CorrelationIDHeader, correlationID)
}

// withCORS allows any origin, method and header, matching the original
// server's actix-cors configuration (send_wildcard + allow_any_method +
// allow_any_header) rather than echoing the request's Origin.
func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")
		w.Header().Set("Access-Control-Allow-Headers", "*")
		w.Header().Set("Access-Control-Max-Age", "3600")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

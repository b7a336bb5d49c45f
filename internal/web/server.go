// Package web serves the verbot JSON-RPC request API and a status page.
package web

import (
	"context"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/sweeney/verbot/internal/status"
)

// Server serves the request API and status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	requester  Requester
	limiter    *rate.Limiter
}

// New creates a Server that reads state from the given tracker and forwards
// verbot_action calls to requester. A nil limiter disables rate limiting.
func New(addr string, tracker *status.Tracker, requester Requester, limiter *rate.Limiter) *Server {
	s := &Server{tracker: tracker, requester: requester, limiter: limiter}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRoot)
	mux.HandleFunc("/index.html", s.handleIndex)
	mux.HandleFunc("/index.json", s.handleJSON)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the server's request handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	switch r.Method {
	case http.MethodPost:
		s.handleRPC(w, r)
	case http.MethodGet, http.MethodHead:
		s.handleIndex(w, r)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(snap))
}

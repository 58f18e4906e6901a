// Package web serves a run over HTTP: JSON status and snapshot endpoints,
// SSE streams of both and Prometheus metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/ritzau/angioflow/pkg/logging"
	"github.com/ritzau/angioflow/pkg/metrics"
	"github.com/ritzau/angioflow/pkg/pubsub"
	"github.com/ritzau/angioflow/pkg/sim"
)

// ErrRunActive is returned by Run while another run is in progress.
var ErrRunActive = errors.New("a run is already active")

// Server represents the web server
type Server struct {
	router    *mux.Router
	publisher *pubsub.SSEPublisher
	metrics   *metrics.Registry

	mu     sync.RWMutex
	status pubsub.RunStatus
	latest *sim.Snapshot
	cancel context.CancelFunc
}

// NewServer creates a server. reg may be nil, in which case /metrics is
// not served.
func NewServer(reg *metrics.Registry) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		publisher: pubsub.NewSSEPublisher(),
		metrics:   reg,
		status:    pubsub.RunStatus{State: "idle"},
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/subscribe/{topic:run_status|snapshot}", s.handleSubscribe).Methods("GET")
	api.HandleFunc("/status", s.handleStatus).Methods("GET")
	api.HandleFunc("/snapshot", s.handleSnapshot).Methods("GET")
	api.HandleFunc("/cancel", s.handleCancel).Methods("POST")
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods("GET")
	}
}

// Handler returns the routes wrapped in the request logging middleware.
func (s *Server) Handler() http.Handler {
	return logging.RequestIDMiddleware(s.router)
}

// Run executes c, streaming its snapshots and status until it ends. Only one
// run may be active at a time; POST /api/cancel stops it.
func (s *Server) Run(ctx context.Context, c *sim.Controller) (sim.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return sim.Result{}, ErrRunActive
	}
	s.cancel = cancel
	s.latest = nil
	s.status = pubsub.RunStatus{State: "running", Total: c.Params().Duration, Tips: len(c.Network().Tips())}
	status := s.status
	s.mu.Unlock()

	s.publisher.Reset(pubsub.TopicRunStatus)
	s.publisher.Reset(pubsub.TopicSnapshot)
	s.publish(pubsub.TopicRunStatus, "started", status)

	c.WithMetrics(s.metrics).WithObserver(sim.ObserverFunc(s.observe))
	res, err := c.Run(ctx)

	s.mu.Lock()
	s.cancel = nil
	s.status.RunID = res.RunID
	s.status.State = string(res.Outcome)
	s.status.Step = res.Steps
	s.status.Time = res.Time
	s.status.Tips = res.Tips
	s.status.Vessels = res.Vessels
	s.status.Message = res.AbortReason
	if err != nil {
		s.status.Message = err.Error()
	}
	status = s.status
	s.mu.Unlock()

	s.publish(pubsub.TopicRunStatus, status.State, status)
	return res, err
}

// observe is the snapshot observer of the active run.
func (s *Server) observe(snap *sim.Snapshot) {
	s.mu.Lock()
	s.latest = snap
	s.status.RunID = snap.RunID
	s.status.Step = snap.Step
	s.status.Time = snap.Time
	s.status.Tips = len(snap.Tips)
	s.status.Vessels = 0
	for _, v := range snap.Vessels {
		if !v.Closed {
			s.status.Vessels++
		}
	}
	status := s.status
	s.mu.Unlock()

	s.publish(pubsub.TopicSnapshot, "step", snap)
	s.publish(pubsub.TopicRunStatus, "progress", status)
}

func (s *Server) publish(topic, eventType string, data any) {
	if err := s.publisher.Publish(topic, eventType, data); err != nil {
		logging.Warn("publish failed", "topic", topic, "error", err)
	}
}

// Status returns the current run status.
func (s *Server) Status() pubsub.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	topic := mux.Vars(r)["topic"]

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	sub, err := s.publisher.Subscribe(r.Context(), topic)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	// initial comment so the client sees the stream open
	fmt.Fprintf(w, ": connected\n\n")
	flush(w)

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := pubsub.WriteSSE(w, event); err != nil {
				logging.DebugContext(r.Context(), "SSE client gone", "error", err)
				return
			}
			flush(w)
		}
	}
}

func flush(w http.ResponseWriter) {
	if flusher, ok := w.(http.Flusher); ok {
		flusher.Flush()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Status())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	snap := s.latest
	s.mu.RUnlock()
	if snap == nil {
		http.Error(w, "no snapshot yet", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()
	if cancel == nil {
		http.Error(w, "no active run", http.StatusConflict)
		return
	}
	cancel()
	logging.InfoContext(r.Context(), "run cancelled by client")
	w.WriteHeader(http.StatusAccepted)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Debug("failed to write response", "error", err)
	}
}

// Start serves on port until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.publisher.Close()
		_ = srv.Shutdown(shutdown)
	}()

	logging.Info("starting web server", "url", fmt.Sprintf("http://localhost:%d", port))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

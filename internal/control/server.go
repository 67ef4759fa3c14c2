package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"

	"camera-effects/internal/effects"
	"camera-effects/internal/metrics"
)

const (
	defaultJPEGQuality = 85
	maxPatchBytes      = 64 << 10
	writeTimeout       = 5 * time.Second
)

// FrameSource is the processed stream the server reports on
type FrameSource interface {
	Snapshot(dst *gocv.Mat) bool
	SnapshotInput(dst *gocv.Mat) bool
	Stats() metrics.Snapshot
}

// Message is pushed to WebSocket clients
type Message struct {
	Type  string        `json:"type"`
	State effects.State `json:"state"`
}

type ServerOption func(*Server)

func WithServerLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithJPEGQuality(q int) ServerOption {
	return func(s *Server) {
		if q > 0 && q <= 100 {
			s.jpegQuality = q
		}
	}
}

// Server exposes the filter state and the live stream over HTTP and WebSocket
type Server struct {
	store       *Store
	upgrader    *websocket.Upgrader
	evaluator   *metrics.Evaluator
	logger      *logrus.Logger
	jpegQuality int

	mu     sync.RWMutex
	source FrameSource

	done      chan struct{}
	closeOnce sync.Once
}

func NewServer(store *Store, opts ...ServerOption) *Server {
	s := &Server{
		store:       store,
		upgrader:    &websocket.Upgrader{},
		evaluator:   metrics.NewEvaluator(),
		logger:      logrus.StandardLogger(),
		jpegQuality: defaultJPEGQuality,
		done:        make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetSource switches the stream the frame endpoints read from. nil detaches it.
func (s *Server) SetSource(src FrameSource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.source = src
}

func (s *Server) frameSource() FrameSource {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/state", s.handleState)
	mux.HandleFunc("/api/effects", s.handleEffects)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/snapshot.jpg", s.handleSnapshot)
	mux.HandleFunc("/api/quality", s.handleQuality)
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe serves until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{
			"function": "Server.ListenAndServe",
			"addr":     addr,
		}).Info("Control server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		return fmt.Errorf("control server: %w", err)
	case <-ctx.Done():
	}

	s.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("control server shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("control server: %w", err)
	}
	return nil
}

// Close disconnects every WebSocket client
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.writeJSON(w, http.StatusOK, s.store.State())
	case http.MethodPut, http.MethodPatch, http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPatchBytes))
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		st, err := s.applyPatch(body)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err)
			return
		}
		s.writeJSON(w, http.StatusOK, st)
	default:
		w.Header().Set("Allow", "GET, PUT, PATCH, POST")
		s.writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
	}
}

// applyPatch merges the fields present in data into the current state
func (s *Server) applyPatch(data []byte) (effects.State, error) {
	return s.store.Modify(func(st *effects.State) error {
		if err := json.Unmarshal(data, st); err != nil {
			return fmt.Errorf("decode state patch: %w", err)
		}
		return nil
	})
}

func (s *Server) handleEffects(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, effects.Catalog())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	src := s.frameSource()
	if src == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("no active session"))
		return
	}
	s.writeJSON(w, http.StatusOK, src.Stats())
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	src := s.frameSource()
	if src == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("no active session"))
		return
	}

	frame := gocv.NewMat()
	defer frame.Close()
	if !src.Snapshot(&frame) {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("no frame rendered yet"))
		return
	}

	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, frame, []int{gocv.IMWriteJpegQuality, s.jpegQuality})
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("encode snapshot: %w", err))
		return
	}
	defer buf.Close()

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	if _, err := w.Write(buf.GetBytes()); err != nil {
		s.logger.WithFields(logrus.Fields{
			"function": "Server.handleSnapshot",
			"error":    err.Error(),
		}).Debug("Failed to write snapshot")
	}
}

// QualityReport compares the presented frame with the input it was rendered from
type QualityReport struct {
	Metrics map[string]float64      `json:"metrics"`
	Info    map[string]metrics.Info `json:"info"`
	Effect  effects.Kind            `json:"effect"`
}

func (s *Server) handleQuality(w http.ResponseWriter, r *http.Request) {
	src := s.frameSource()
	if src == nil {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("no active session"))
		return
	}

	// the input is copied first: if a tick lands in between, the presented
	// frame is newer than its reference rather than missing
	input := gocv.NewMat()
	defer input.Close()
	output := gocv.NewMat()
	defer output.Close()
	if !src.SnapshotInput(&input) || !src.Snapshot(&output) {
		s.writeError(w, http.StatusServiceUnavailable, errors.New("no frame rendered yet"))
		return
	}

	values, err := s.evaluator.CalculateAll(input, output)
	if err != nil {
		s.writeError(w, http.StatusConflict, err)
		return
	}
	s.writeJSON(w, http.StatusOK, QualityReport{
		Metrics: values,
		Info:    s.evaluator.Info(),
		Effect:  s.store.State().Effect,
	})
}

// handleWS pushes the state on connect and after every change. Text messages
// from the client are applied as state patches.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"function": "Server.handleWS",
			"error":    err.Error(),
		}).Warn("WebSocket upgrade failed")
		return
	}
	defer func() {
		if err := conn.Close(); err != nil {
			s.logger.WithFields(logrus.Fields{
				"function": "Server.handleWS",
				"error":    err.Error(),
			}).Debug("Failed to close websocket connection")
		}
	}()

	// latest state wins when the client falls behind
	updates := make(chan effects.State, 1)
	unsubscribe := s.store.Subscribe(func(cur, _ effects.State) {
		select {
		case updates <- cur:
		default:
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- cur:
			default:
			}
		}
	})
	defer unsubscribe()

	closed := make(chan struct{})
	go s.readPatches(conn, closed)

	logger := s.logger.WithFields(logrus.Fields{
		"function": "Server.handleWS",
		"remote":   r.RemoteAddr,
	})
	logger.Debug("WebSocket client connected")

	if err := s.push(conn, s.store.State()); err != nil {
		logger.WithField("error", err.Error()).Debug("Initial push failed")
		return
	}
	for {
		select {
		case st := <-updates:
			if err := s.push(conn, st); err != nil {
				logger.WithField("error", err.Error()).Debug("Push failed, dropping client")
				return
			}
		case <-closed:
			logger.Debug("WebSocket client disconnected")
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
				time.Now().Add(writeTimeout))
			return
		}
	}
}

func (s *Server) readPatches(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	for {
		kind, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if _, err := s.applyPatch(data); err != nil {
			s.logger.WithFields(logrus.Fields{
				"function": "Server.readPatches",
				"error":    err.Error(),
			}).Warn("Rejected state patch from websocket client")
		}
	}
}

func (s *Server) push(conn *websocket.Conn, st effects.State) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(Message{Type: "state", State: st})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithFields(logrus.Fields{
			"function": "Server.writeJSON",
			"error":    err.Error(),
		}).Debug("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

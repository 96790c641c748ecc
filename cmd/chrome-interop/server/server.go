// Package server serves the Chrome interop page and answers its WebRTC offers
// with a Pion peer connection that asks the browser for key frames over RTCP.
// Tests start and stop it in-process; cmd/chrome-interop wraps it for manual
// runs.
package server

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Config holds server configuration options.
type Config struct {
	Addr         string // Listen address, ":0" picks a free port
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// KeyFrameInterval is how often a key frame is requested for every
	// received video track.
	KeyFrameInterval time.Duration

	// Logger receives server and feedback logs. Nil means the logrus
	// standard logger.
	Logger logrus.FieldLogger
}

// DefaultConfig returns a configuration suitable for testing.
func DefaultConfig() Config {
	return Config{
		Addr:             ":0",
		ReadTimeout:      30 * time.Second,
		WriteTimeout:     30 * time.Second,
		KeyFrameInterval: time.Second,
	}
}

// FeedbackStats sums the feedback counters of every open session.
type FeedbackStats struct {
	Sessions       int    `json:"sessions"`
	PacketsSent    uint64 `json:"packetsSent"`
	DatagramsSent  uint64 `json:"datagramsSent"`
	FIRReceived    uint64 `json:"firReceived"`
	PLIReceived    uint64 `json:"pliReceived"`
	PacketsDropped uint64 `json:"packetsDropped"`
}

// Server serves the interop page, the /offer signaling endpoint and the
// /stats feedback counters.
type Server struct {
	log    logrus.FieldLogger
	http   *http.Server
	offers *offerHandler

	mu      sync.Mutex
	addr    string
	running bool
}

// NewServer creates a server. Nothing listens until Start.
func NewServer(cfg Config) (*Server, error) {
	if cfg.KeyFrameInterval <= 0 {
		return nil, errors.New("key frame interval must be positive")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	log := cfg.Logger.WithField("component", "chrome-interop")
	s := &Server{
		log:    log,
		offers: newOfferHandler(cfg.KeyFrameInterval, log),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.servePage)
	mux.Handle("/offer", s.offers)
	mux.HandleFunc("/stats", s.serveStats)

	s.http = &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return s, nil
}

func (s *Server) servePage(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte(HTMLPage))
}

func (s *Server) serveStats(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.FeedbackStats()); err != nil {
		s.log.WithError(err).Debug("Failed to write stats")
	}
}

// FeedbackStats returns the summed counters of the open sessions.
func (s *Server) FeedbackStats() FeedbackStats {
	return s.offers.stats()
}

// Start listens and serves in the background. It returns the bound address,
// which differs from Config.Addr when the port was 0. Starting a running
// server returns its address.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return s.addr, nil
	}

	ln, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return "", errors.Wrap(err, "failed to listen")
	}
	s.addr = ln.Addr().String()
	s.running = true

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Warn("HTTP server stopped")
		}
	}()

	s.log.WithField("addr", s.addr).Info("Serving interop page")
	return s.addr, nil
}

// Shutdown stops accepting offers and closes every open peer connection,
// which stops their key-frame requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	err := s.http.Shutdown(ctx)
	n, closeErr := s.offers.closeAll()
	if err == nil {
		err = closeErr
	}

	s.log.WithFields(logrus.Fields{
		"addr":     s.addr,
		"sessions": n,
	}).Info("Server stopped")
	return err
}

// Addr returns the address the server listens on, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

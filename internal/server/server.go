// Package server hosts a player over HTTP. Scroll position arrives as a query
// parameter and the rendered surface goes back as PNG.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ivlev/framescroll/internal/engine"
)

type Server struct {
	player *engine.Player
	log    zerolog.Logger

	listener net.Listener
	server   *http.Server
}

func New(player *engine.Player, log zerolog.Logger) *Server {
	s := &Server{
		player: player,
		log:    log.With().Str("component", "server").Logger(),
	}
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/frame.png", s.handleFrame)
	mux.HandleFunc("/resize", s.handleResize)
	return mux
}

// Start listens on bind and serves until ctx ends.
func (s *Server) Start(ctx context.Context, bind string) error {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return fmt.Errorf("listen %s: %w", bind, err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("server error")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info().Str("address", listener.Addr().String()).Msg("listening")
	return nil
}

// Addr is the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.player.Status())
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	var (
		index int
		drawn bool
		img   *image.RGBA
	)
	switch {
	case q.Has("progress"):
		progress, err := strconv.ParseFloat(q.Get("progress"), 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid progress")
			return
		}
		u, frame := s.player.Capture(progress)
		index, drawn, img = u.Index, u.Drawn, frame
	case q.Has("offset"):
		offset, err := strconv.ParseFloat(q.Get("offset"), 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		u, frame := s.player.CaptureAt(offset)
		index, drawn, img = u.Index, u.Drawn, frame
	default:
		// Current surface as is.
		drawn = s.player.Renderer().Draws() > 0
		index, img = s.player.Renderer().Current()
	}

	if !drawn {
		w.Header().Set("Retry-After", "1")
		s.writeError(w, http.StatusServiceUnavailable, "no frame loaded yet")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Index", strconv.Itoa(index))
	if err := png.Encode(w, img); err != nil {
		s.log.Error().Err(err).Msg("failed to encode frame")
	}
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	width, errW := strconv.Atoi(q.Get("w"))
	height, errH := strconv.Atoi(q.Get("h"))
	if errW != nil || errH != nil || width <= 0 || height <= 0 {
		s.writeError(w, http.StatusBadRequest, "w and h must be positive integers")
		return
	}
	s.player.Resize(width, height)
	s.writeJSON(w, http.StatusOK, s.player.Status())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

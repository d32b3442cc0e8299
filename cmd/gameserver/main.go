// Package main implements the arcade racing game server.
//
// Architecture Overview:
// - Uses WebSocket for real-time bidirectional communication with clients
// - Frames are JSON envelopes {"event", "data"} with one payload shape per event
// - A single event loop owns the roster, the race session and the economy
// - Clients simulate their own vehicles; the server relays poses and
//   arbitrates the race and the money
//
// Connection Flow:
// 1. Client connects via WebSocket to /ws endpoint
// 2. Server assigns a participant id and sends welcome with the full snapshot
// 3. Client streams move frames, and may buy, equip and join the race
// 4. Server relays poses and broadcasts race, roster and economy changes
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/race/arcade/config"
	"github.com/race/arcade/internal/game"
	"github.com/race/arcade/internal/history"
	"github.com/race/arcade/internal/hub"
	"github.com/race/arcade/internal/level"
	"github.com/race/arcade/internal/logging"
	"github.com/race/arcade/internal/metrics"
	"github.com/race/arcade/internal/schedule"
)

// GameServer is the main server instance. It handles WebSocket upgrades
// and feeds connection events into the game loop.
type GameServer struct {
	config   *config.ServerConfig
	game     *game.Game
	hub      *hub.Hub
	archive  *history.Archiver
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	server, err := NewGameServer(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("server setup")
	}

	logger.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int("level", cfg.Level).
		Int("laps", cfg.LapTarget).
		Int("min_entrants", cfg.MinEntrants).
		Dur("countdown", cfg.Countdown).
		Msg("arcade racing server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("server error")
	}
}

// NewGameServer wires the game, its archive and the connection hub.
func NewGameServer(cfg *config.ServerConfig, logger zerolog.Logger) (*GameServer, error) {
	world, err := level.Build(cfg.Level, cfg.TerrainSeed)
	if err != nil {
		return nil, err
	}
	m, err := metrics.New()
	if err != nil {
		return nil, errors.Wrap(err, "metrics")
	}
	store, err := history.Open(cfg.HistorySize)
	if err != nil {
		return nil, err
	}
	archive := history.NewArchiver(store, cfg.HistorySize, logger)

	g := game.New(game.ConfigFrom(cfg, world.Layout.Len()), schedule.SystemClock{}, logger, m, archive)

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
	if cfg.EnableCORS {
		// the default check only admits same origin pages
		upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}

	return &GameServer{
		config:   cfg,
		game:     g,
		hub:      hub.New(config.MaxConnections),
		archive:  archive,
		upgrader: upgrader,
		logger:   logger,
	}, nil
}

// Router registers the HTTP endpoints.
func (s *GameServer) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebSocket)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	if s.config.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *GameServer) Run(ctx context.Context) error {
	s.game.Start()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.config.Host, s.config.Port),
		Handler:      s.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Wrap(err, "listen")
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		s.shutdown()
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.shutdown()
	return errors.Wrap(err, "shutdown")
}

func (s *GameServer) shutdown() {
	// hijacked websockets are not closed by http.Server.Shutdown
	if n := s.hub.CloseAll(); n > 0 {
		s.logger.Info().Int("connections", n).Msg("closed connections")
	}
	s.game.Stop()
	s.archive.Close()
	s.archive.Store().Close()
}

// handleHealth responds to health check requests.
func (s *GameServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

type statsResponse struct {
	Game  game.Stats           `json:"game"`
	Hub   hub.Stats            `json:"hub"`
	Races []history.RaceRecord `json:"races"`
}

// handleStats returns the server state and recent races, as JSON or as a
// text board with ?format=text.
func (s *GameServer) handleStats(w http.ResponseWriter, r *http.Request) {
	races, err := s.archive.Store().Recent(10)
	if err != nil {
		s.logger.Error().Err(err).Msg("recent races")
		http.Error(w, "history unavailable", http.StatusInternalServerError)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(history.Board(races)))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(statsResponse{
		Game:  s.game.Stats(),
		Hub:   s.hub.GetStats(),
		Races: races,
	})
}

// handleWebSocket upgrades HTTP connections to WebSocket and manages client lifecycle.
// Each client gets two goroutines: one for reading, one for writing.
func (s *GameServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	conn := newClientConnection(ws, s)
	id, err := s.hub.Register(conn)
	if err != nil {
		s.logger.Warn().Err(err).Str("addr", conn.RemoteAddr()).Msg("connection refused")
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()),
			time.Now().Add(time.Second))
		ws.Close()
		return
	}
	conn.id = id
	conn.logger = logging.Component(s.logger, "conn").With().Str("id", id).Logger()

	go conn.writePump()
	if !s.game.Connect(id, conn) {
		conn.cleanup()
		return
	}
	go conn.readPump()
}

// Package game is the authoritative server: the roster, the shared race
// session and the economy, mutated only by one event loop.
package game

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/metric/noop"
	"golang.org/x/time/rate"

	"github.com/race/arcade/config"
	"github.com/race/arcade/internal/economy"
	"github.com/race/arcade/internal/history"
	"github.com/race/arcade/internal/metrics"
	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/race"
	"github.com/race/arcade/internal/schedule"
)

// Config of one game.
type Config struct {
	Race           race.Config
	Level          int
	Seed           int64
	Checkpoints    int
	StartBalance   int
	WinnerPayout   int
	FinisherPayout int
	WorldLimit     float64
	MoveRate       float64
	MoveBurst      int
	InboxSize      int
	TickRate       int
}

// ConfigFrom derives a game config from the process settings.
func ConfigFrom(sc *config.ServerConfig, checkpoints int) Config {
	return Config{
		Race: race.Config{
			MinEntrants: sc.MinEntrants,
			LapTarget:   sc.LapTarget,
			Countdown:   sc.Countdown,
			FinishGrace: sc.FinishGrace,
			GridSpacing: config.GridSpacing,
		},
		Level:          sc.Level,
		Seed:           sc.TerrainSeed,
		Checkpoints:    checkpoints,
		StartBalance:   config.StartingBalance,
		WinnerPayout:   config.WinnerPayout,
		FinisherPayout: config.FinisherPayout,
		WorldLimit:     config.WorldLimit,
		MoveRate:       config.MoveRatePerSec,
		MoveBurst:      config.MoveBurst,
		InboxSize:      config.InboxSize,
		TickRate:       config.ServerTickRate,
	}
}

// Game holds all shared server state.
//
// Thread Safety:
// Every mutation runs on the event loop goroutine. mu is held for the
// duration of each event so readers such as Stats see a consistent view.
// Methods with a lower case name expect mu to be held.
type Game struct {
	mu sync.Mutex

	cfg      Config
	players  map[string]*Player
	race     *race.Coordinator
	ledger   *economy.Ledger
	sched    *schedule.Scheduler
	protocol *network.Protocol
	check    *Validator
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	archive  *history.Archiver

	// per race bookkeeping for the archive
	payouts map[string]int
	names   map[string]string

	inbox    chan event
	running  atomic.Bool
	stopChan chan struct{}
	done     chan struct{}
}

// New creates a game. m and archive may be nil.
func New(cfg Config, clock schedule.Clock, logger zerolog.Logger, m *metrics.Metrics, archive *history.Archiver) *Game {
	if m == nil {
		m, _ = metrics.NewWithMeter(noop.NewMeterProvider().Meter("game"))
	}
	if cfg.InboxSize <= 0 {
		cfg.InboxSize = config.InboxSize
	}
	if cfg.TickRate <= 0 {
		cfg.TickRate = config.ServerTickRate
	}
	g := &Game{
		cfg:      cfg,
		players:  make(map[string]*Player),
		ledger:   economy.NewLedger(economy.DefaultCatalog(), cfg.StartBalance),
		sched:    schedule.New(clock),
		protocol: network.NewProtocol(cfg.WorldLimit),
		check:    NewValidator(cfg.Checkpoints),
		logger:   logger.With().Str("component", "game").Logger(),
		metrics:  m,
		archive:  archive,
		payouts:  make(map[string]int),
		names:    make(map[string]string),
		inbox:    make(chan event, cfg.InboxSize),
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
	g.race = race.NewCoordinator(cfg.Race, g.sched, hooks{g}, logger)
	return g
}

type eventKind int

const (
	eventConnect eventKind = iota
	eventMessage
	eventDisconnect
)

type event struct {
	kind eventKind
	id   string
	conn PlayerConnection
	data []byte
}

// Start runs the event loop in its own goroutine.
// Safe to call multiple times.
func (g *Game) Start() {
	if g.running.Swap(true) {
		return
	}
	go g.loop()
	g.logger.Info().Int("level", g.cfg.Level).Int("laps", g.cfg.Race.LapTarget).Msg("game started")
}

// Stop ends the event loop and waits for it.
// Safe to call multiple times.
func (g *Game) Stop() {
	if !g.running.Swap(false) {
		return
	}
	close(g.stopChan)
	<-g.done
	g.logger.Info().Msg("game stopped")
}

func (g *Game) loop() {
	defer close(g.done)

	ticker := time.NewTicker(time.Second / time.Duration(g.cfg.TickRate))
	defer ticker.Stop()

	for {
		select {
		case <-g.stopChan:
			return
		case ev := <-g.inbox:
			switch ev.kind {
			case eventConnect:
				g.HandleConnect(ev.id, ev.conn)
			case eventMessage:
				g.HandleMessage(ev.id, ev.data)
			case eventDisconnect:
				g.HandleDisconnect(ev.id)
			}
		case <-ticker.C:
			g.Tick()
		}
	}
}

func (g *Game) enqueue(ev event) bool {
	if !g.running.Load() {
		return false
	}
	select {
	case g.inbox <- ev:
		return true
	case <-g.stopChan:
		return false
	}
}

// Connect queues a new connection for the loop.
func (g *Game) Connect(id string, conn PlayerConnection) bool {
	return g.enqueue(event{kind: eventConnect, id: id, conn: conn})
}

// Message queues one inbound frame. Connections keep their frames in order
// because each connection has a single reader.
func (g *Game) Message(id string, data []byte) bool {
	return g.enqueue(event{kind: eventMessage, id: id, data: data})
}

// Disconnect queues the removal of a connection.
func (g *Game) Disconnect(id string) bool {
	return g.enqueue(event{kind: eventDisconnect, id: id})
}

// Tick fires due timers.
func (g *Game) Tick() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sched.RunDue()
}

// HandleConnect registers a participant and sends the welcome snapshot.
func (g *Game) HandleConnect(id string, conn PlayerConnection) *Player {
	g.mu.Lock()
	defer g.mu.Unlock()

	if p, ok := g.players[id]; ok {
		return p
	}

	now := g.sched.Clock().Now()
	limiter := rate.NewLimiter(rate.Limit(g.cfg.MoveRate), g.cfg.MoveBurst)
	if g.cfg.MoveRate <= 0 {
		limiter = nil
	}
	p := NewPlayer(id, conn, limiter, now)
	wallet := g.ledger.Open(id)
	p.Car = wallet.Car
	g.players[id] = p

	list := make(map[string]network.PlayerState, len(g.players))
	for pid, other := range g.players {
		list[pid] = other.State()
	}
	g.send(p, g.protocol.EncodeWelcome(network.Welcome{
		ID:      id,
		List:    list,
		Shop:    g.ledger.Catalog(),
		Race:    g.race.Snapshot(),
		Level:   g.cfg.Level,
		Seed:    g.cfg.Seed,
		Economy: wallet,
	}))
	g.broadcastExcept(g.protocol.EncodePlayerJoin(p.State()), id)
	g.broadcast(g.protocol.EncodeCountUpdate(len(g.players)))

	g.metrics.Connected()
	g.logger.Info().Str("id", id).Str("addr", conn.RemoteAddr()).Int("players", len(g.players)).Msg("player connected")
	return p
}

// HandleDisconnect removes a participant, leaving the race if entered.
// Safe to call with unknown ids.
func (g *Game) HandleDisconnect(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[id]
	if !ok {
		return
	}
	delete(g.players, id)
	g.ledger.Close(id)
	g.race.Leave(id)

	g.broadcast(g.protocol.EncodePlayerLeave(id))
	g.broadcast(g.protocol.EncodeCountUpdate(len(g.players)))
	p.Connection.Close()

	g.metrics.Disconnected()
	g.logger.Info().Str("id", id).Int("players", len(g.players)).Msg("player disconnected")
}

// PlayerCount returns the number of connected participants.
func (g *Game) PlayerCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.players)
}

// Stats is a read only summary for the HTTP status endpoint.
type Stats struct {
	Players int           `json:"players"`
	Level   int           `json:"level"`
	Race    race.Snapshot `json:"race"`
	Pending int           `json:"pendingTimers"`
}

// Stats returns a consistent snapshot.
func (g *Game) Stats() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Stats{
		Players: len(g.players),
		Level:   g.cfg.Level,
		Race:    g.race.Snapshot(),
		Pending: g.sched.Pending(),
	}
}

// Race exposes the coordinator. Callers must not use it concurrently with
// the loop.
func (g *Game) Race() *race.Coordinator { return g.race }

// Ledger exposes the economy for tests and tooling, under the same rule.
func (g *Game) Ledger() *economy.Ledger { return g.ledger }

func (g *Game) send(p *Player, data []byte) {
	if data == nil {
		return
	}
	if err := p.Connection.Send(data); err != nil {
		g.metrics.Dropped()
		g.logger.Debug().Err(err).Str("id", p.ID).Msg("send failed")
	}
}

func (g *Game) sendTo(id string, data []byte) {
	if p, ok := g.players[id]; ok {
		g.send(p, data)
	}
}

// broadcast sends a message to all players.
func (g *Game) broadcast(data []byte) {
	for _, p := range g.players {
		g.send(p, data)
	}
}

// broadcastExcept sends a message to all players except one.
func (g *Game) broadcastExcept(data []byte, exceptID string) {
	for id, p := range g.players {
		if id == exceptID {
			continue
		}
		g.send(p, data)
	}
}

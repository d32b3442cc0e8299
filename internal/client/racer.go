// Package client is a headless racing client. It runs the same simulation a
// browser client runs: vehicle dynamics over the terrain chunk ring, the
// local progress tracker and the sync layer.
package client

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/race/arcade/config"
	"github.com/race/arcade/internal/economy"
	"github.com/race/arcade/internal/level"
	"github.com/race/arcade/internal/netsync"
	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/progress"
	"github.com/race/arcade/internal/race"
	"github.com/race/arcade/internal/terrain"
	"github.com/race/arcade/internal/vehicle"
)

// Config for a Racer.
type Config struct {
	Level int
	Seed  int64
	// Field overrides the level's terrain, and pins it: a welcome naming
	// another level will not rebuild the world.
	Field    terrain.Sampler
	Tuning   vehicle.Tuning
	Interval time.Duration
	Logger   zerolog.Logger
}

// Racer is one client. HandleFrame may be called from the transport reader
// while the simulation calls Tick.
type Racer struct {
	mu sync.Mutex

	cfg      Config
	protocol *network.Protocol
	out      netsync.Sender
	queue    *pending
	logger   zerolog.Logger

	world   *level.World
	field   terrain.Sampler
	chunks  *terrain.ChunkGrid
	dyn     *vehicle.Dynamics
	state   *vehicle.State
	tracker *progress.Tracker

	pub     *netsync.Publisher
	relay   *netsync.Relay
	remotes *netsync.Interpolator

	id      string
	catalog economy.Catalog
	wallet  economy.Snapshot
	status  race.Status
	laps    int
	notice  string
	result  *network.RaceOver
}

// NewRacer builds the world for cfg.Level and places the car at its spawn.
// Frames go to out.
func NewRacer(cfg Config, out netsync.Sender) (*Racer, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = config.SyncRateMS * time.Millisecond
	}
	if cfg.Tuning == (vehicle.Tuning{}) {
		cfg.Tuning = vehicle.DefaultTuning()
	}
	p := network.NewProtocol(config.WorldLimit)
	q := &pending{}
	r := &Racer{
		cfg:      cfg,
		protocol: p,
		out:      out,
		queue:    q,
		logger:   cfg.Logger.With().Str("component", "racer").Logger(),
		pub:      netsync.NewPublisher(p, q, cfg.Interval),
		relay:    netsync.NewRelay(p, q),
		remotes:  netsync.NewInterpolator(netsync.DefaultBlendRate),
		catalog:  economy.DefaultCatalog(),
		status:   race.Idle,
		laps:     config.DefaultLapTarget,
	}
	r.wallet.Car = economy.DefaultVehicleID
	if err := r.load(cfg.Level, cfg.Seed); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Racer) load(id int, seed int64) error {
	w, err := level.Build(id, seed)
	if err != nil {
		return errors.Wrap(err, "load level")
	}
	r.world = w
	r.field = w.Field
	if r.cfg.Field != nil {
		r.field = r.cfg.Field
	}
	r.chunks = terrain.NewChunkGrid(r.field, config.ChunkSize, config.ChunkResolution, config.RenderDistance)
	r.tracker = progress.NewTracker(w.Layout, config.CheckpointRadius, r.laps)
	r.dyn = vehicle.New(r.cfg.Tuning, r.classOf(r.wallet.Car))

	spawn := w.Layout.Spawn()
	r.state = vehicle.NewState(r.lift(spawn.X(), spawn.Z()), w.Layout.Direction(0))
	r.chunks.Update(spawn.X(), spawn.Z())
	r.cfg.Level, r.cfg.Seed = id, seed
	return nil
}

func (r *Racer) classOf(car int) vehicle.Class {
	v, ok := r.catalog.Get(car)
	if !ok {
		v, _ = economy.DefaultCatalog().Get(economy.DefaultVehicleID)
	}
	return vehicle.ClassFor(v.SpeedFactor, v.GripFactor)
}

func (r *Racer) lift(x, z float64) mgl64.Vec3 {
	return mgl64.Vec3{x, r.field.Height(x, z) + config.SpawnLift, z}
}

// pending collects frames produced under the racer lock. Tick sends them
// once the lock is released, so a slow transport never holds up HandleFrame.
type pending struct {
	frames [][]byte
}

func (p *pending) Send(data []byte) error {
	p.frames = append(p.frames, data)
	return nil
}

func (p *pending) take() [][]byte {
	f := p.frames
	p.frames = nil
	return f
}

// Tick advances the local simulation by dt and publishes what the server
// needs to hear about.
func (r *Racer) Tick(now time.Time, dt float64, in vehicle.Input) error {
	frames, err := r.step(now, dt, in)
	for _, f := range frames {
		if sendErr := r.out.Send(f); sendErr != nil {
			return sendErr
		}
	}
	return err
}

func (r *Racer) step(now time.Time, dt float64, in vehicle.Input) ([][]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.dyn.Step(r.state, in, dt, r.chunks)
	pos := r.state.Position
	if loaded, _ := r.chunks.Update(pos.X(), pos.Z()); len(loaded) > 0 {
		r.logger.Trace().Int("chunks", r.chunks.Loaded()).Msg("terrain chunks loaded")
	}
	r.remotes.Step(dt)

	events := r.tracker.Update(pos)
	for _, ev := range events {
		if ev.Kind == progress.LapCompleted {
			r.logger.Info().Int("lap", ev.Lap).Msg("lap complete")
		}
	}
	if err := r.relay.Forward(events); err != nil {
		return r.queue.take(), err
	}

	steer := 0.0
	switch {
	case in.Left && !in.Right:
		steer = 1
	case in.Right && !in.Left:
		steer = -1
	}
	_, err := r.pub.Publish(now, netsync.PoseOf(r.state, steer))
	return r.queue.take(), err
}

// Respawn puts the car back on the track at its last passed checkpoint,
// facing the next one. Race progress is kept. Before the first checkpoint
// the nearest one is used.
func (r *Racer) Respawn() {
	r.mu.Lock()
	defer r.mu.Unlock()

	layout := r.world.Layout
	idx := r.tracker.LastPassed()
	if idx < 0 {
		idx = layout.Nearest(r.state.Position.X(), r.state.Position.Z())
	}
	cp := layout.At(idx)
	r.state.Place(r.lift(cp.X(), cp.Z()), layout.Direction(idx))
	r.logger.Debug().Int("checkpoint", idx).Msg("respawned")
}

// Target is the point the car should head for: the next checkpoint while
// racing, otherwise the checkpoint after the nearest one.
func (r *Racer) Target() mgl64.Vec3 {
	r.mu.Lock()
	defer r.mu.Unlock()
	layout := r.world.Layout
	if r.tracker.Phase() == progress.Armed {
		return layout.At(r.tracker.Next())
	}
	return layout.At(layout.Next(layout.Nearest(r.state.Position.X(), r.state.Position.Z())))
}

// JoinRace asks the server for a place in the race.
func (r *Racer) JoinRace() error {
	return r.out.Send(r.protocol.EncodeJoinRace())
}

// Buy asks the server to buy item.
func (r *Racer) Buy(item int) error {
	return r.out.Send(r.protocol.EncodeBuy(item))
}

// Equip asks the server to equip item.
func (r *Racer) Equip(item int) error {
	return r.out.Send(r.protocol.EncodeEquip(item))
}

// HandleFrame applies one server frame.
func (r *Racer) HandleFrame(data []byte) error {
	env, err := network.ParseEnvelope(data)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch env.Event {
	case network.EventWelcome:
		var w network.Welcome
		if err := decode(env, &w); err != nil {
			return err
		}
		return r.welcome(w)

	case network.EventPlayerJoin:
		var s network.PlayerState
		if err := decode(env, &s); err != nil {
			return err
		}
		if s.ID != r.id {
			r.remotes.Snap(s.ID, netsync.PoseFromState(s))
		}

	case network.EventPlayerLeave:
		var id string
		if err := decode(env, &id); err != nil {
			return err
		}
		r.remotes.Remove(id)

	case network.EventPlayerUpdate:
		var u network.PlayerUpdate
		if err := decode(env, &u); err != nil {
			return err
		}
		if u.ID != r.id {
			r.remotes.Apply(u.ID, u.Move)
		}

	case network.EventEconomyUpdate:
		var s economy.Snapshot
		if err := decode(env, &s); err != nil {
			return err
		}
		if s.Car != r.wallet.Car {
			r.dyn.Class = r.classOf(s.Car)
		}
		r.wallet = s
		r.logger.Info().Int("money", s.Money).Int("car", s.Car).Msg("economy update")

	case network.EventCarChanged:
		var c network.CarChanged
		if err := decode(env, &c); err != nil {
			return err
		}
		if c.ID == r.id {
			r.wallet.Car = c.Car
			r.dyn.Class = r.classOf(c.Car)
		}

	case network.EventRaceStatus:
		var s network.RaceStatus
		if err := decode(env, &s); err != nil {
			return err
		}
		r.status = s.Status
		if s.Status == race.Idle {
			r.tracker.Reset()
		}

	case network.EventRaceStart:
		var s network.RaceStart
		if err := decode(env, &s); err != nil {
			return err
		}
		r.start(s)

	case network.EventRaceOver:
		var o network.RaceOver
		if err := decode(env, &o); err != nil {
			return err
		}
		r.result = &o
		r.logger.Info().Strs("order", o.Order).Str("winner", o.Winner).Msg("race over")

	case network.EventServerMsg:
		var text string
		if err := decode(env, &text); err != nil {
			return err
		}
		r.notice = text
		r.logger.Info().Str("notice", text).Msg("server message")

	case network.EventCountUpdate:
	default:
		r.logger.Debug().Str("event", env.Event).Msg("unhandled event")
	}
	return nil
}

func (r *Racer) welcome(w network.Welcome) error {
	r.id = w.ID
	if len(w.Shop) > 0 {
		r.catalog = w.Shop
	}
	r.wallet = w.Economy
	r.status = w.Race.Status
	if w.Race.LapTarget > 0 {
		r.laps = w.Race.LapTarget
	}
	if r.cfg.Field == nil && (w.Level != r.cfg.Level || w.Seed != r.cfg.Seed) {
		if err := r.load(w.Level, w.Seed); err != nil {
			return err
		}
	} else {
		r.tracker = progress.NewTracker(r.world.Layout, config.CheckpointRadius, r.laps)
		r.dyn.Class = r.classOf(r.wallet.Car)
	}
	for id, s := range w.List {
		if id != r.id {
			r.remotes.Snap(id, netsync.PoseFromState(s))
		}
	}
	r.logger.Info().Str("id", w.ID).Int("level", w.Level).Int("players", len(w.List)).Msg("welcome")
	return nil
}

func (r *Racer) start(s network.RaceStart) {
	r.status = race.Racing
	r.result = nil
	if s.Laps > 0 && s.Laps != r.laps {
		r.laps = s.Laps
		r.tracker = progress.NewTracker(r.world.Layout, config.CheckpointRadius, r.laps)
	}
	slot, ok := s.Grid[r.id]
	if !ok {
		// someone else's race
		r.tracker.Reset()
		r.logger.Debug().Str("race", s.ID).Msg("race started without us")
		return
	}
	x, z := r.world.Layout.GridPosition(slot.X, slot.Z)
	r.state.Place(r.lift(x, z), r.world.Layout.Direction(0))
	r.tracker.Arm()
	r.logger.Info().Str("race", s.ID).Int("laps", s.Laps).Msg("race start")
}

func decode(env network.Envelope, v any) error {
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.Wrapf(network.ErrInvalidMessage, "%s: %v", env.Event, err)
	}
	return nil
}

// ID is the participant id the server assigned, empty before welcome.
func (r *Racer) ID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.id
}

// Vehicle returns a copy of the simulated state.
func (r *Racer) Vehicle() vehicle.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return *r.state
}

// Progress reports the tracker phase, lap and next checkpoint.
func (r *Racer) Progress() (progress.Phase, int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tracker.Phase(), r.tracker.Lap(), r.tracker.Next()
}

// Wallet is the last economy snapshot from the server.
func (r *Racer) Wallet() economy.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wallet
}

// Catalog is the shop as the server advertised it.
func (r *Racer) Catalog() economy.Catalog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.catalog
}

// Status is the race status as last reported by the server.
func (r *Racer) Status() race.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Notice is the last server message.
func (r *Racer) Notice() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.notice
}

// Result is the last race result, nil until a race is over.
func (r *Racer) Result() *network.RaceOver {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.result
}

// Remotes exposes the smoothed poses of the other participants.
func (r *Racer) Remotes() *netsync.Interpolator { return r.remotes }

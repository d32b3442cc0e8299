package client

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/race/arcade/internal/economy"
	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/progress"
	"github.com/race/arcade/internal/race"
	"github.com/race/arcade/internal/terrain"
	"github.com/race/arcade/internal/vehicle"
)

type outbox struct {
	mu     sync.Mutex
	frames []network.Envelope
}

func (o *outbox) Send(data []byte) error {
	env, err := network.ParseEnvelope(data)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.frames = append(o.frames, env)
	o.mu.Unlock()
	return nil
}

func (o *outbox) laps(t *testing.T) []int {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []int
	for _, f := range o.frames {
		if f.Event == network.EventLapComplete {
			var l network.LapComplete
			require.NoError(t, json.Unmarshal(f.Data, &l))
			out = append(out, l.Lap)
		}
	}
	return out
}

func (o *outbox) count(event string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := 0
	for _, f := range o.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

var wire = network.NewProtocol(1e6)

func newFlatRacer(t *testing.T) (*Racer, *outbox) {
	t.Helper()
	out := &outbox{}
	r, err := NewRacer(Config{Field: terrain.Flat(10), Logger: zerolog.Nop()}, out)
	require.NoError(t, err)
	return r, out
}

func welcome(laps int) []byte {
	return wire.EncodeWelcome(network.Welcome{
		ID: "me",
		List: map[string]network.PlayerState{
			"me":    {ID: "me", QW: 1},
			"other": {ID: "other", X: 50, QW: 1},
		},
		Shop:    economy.DefaultCatalog(),
		Race:    race.Snapshot{Status: race.Idle, LapTarget: laps},
		Economy: economy.Snapshot{Money: 100, Owned: []int{0}},
	})
}

func TestWelcome(t *testing.T) {
	r, _ := newFlatRacer(t)
	require.NoError(t, r.HandleFrame(welcome(3)))

	assert.Equal(t, "me", r.ID())
	assert.Equal(t, 100, r.Wallet().Money)
	assert.Equal(t, race.Idle, r.Status())
	assert.Equal(t, 1, r.Remotes().Len(), "self is not a remote")

	p, ok := r.Remotes().Pose("other")
	require.True(t, ok)
	assert.Equal(t, 50.0, p.Position.X())

	phase, _, _ := r.Progress()
	assert.Equal(t, progress.Waiting, phase)
}

func TestRosterFrames(t *testing.T) {
	r, _ := newFlatRacer(t)
	require.NoError(t, r.HandleFrame(welcome(3)))

	require.NoError(t, r.HandleFrame(wire.EncodePlayerJoin(network.PlayerState{ID: "third", Z: 5, QW: 1})))
	assert.Equal(t, 2, r.Remotes().Len())

	// relayed poses of self are ignored
	require.NoError(t, r.HandleFrame(wire.EncodePlayerUpdate(network.PlayerUpdate{ID: "me", Move: network.Move{X: 9, QW: 1}})))
	assert.Equal(t, 2, r.Remotes().Len())

	require.NoError(t, r.HandleFrame(wire.EncodePlayerUpdate(network.PlayerUpdate{ID: "third", Move: network.Move{Z: 25, QW: 1, Seq: 1}})))
	for i := 0; i < 300; i++ {
		require.NoError(t, r.Tick(time.Now(), 1.0/60, vehicle.Input{}))
	}
	p, _ := r.Remotes().Pose("third")
	assert.InDelta(t, 25, p.Position.Z(), 1e-3)

	require.NoError(t, r.HandleFrame(wire.EncodePlayerLeave("third")))
	assert.Equal(t, 1, r.Remotes().Len())

	require.NoError(t, r.HandleFrame(wire.EncodeServerMsg(race.WaitingNotice)))
	assert.Equal(t, race.WaitingNotice, r.Notice())

	assert.Error(t, r.HandleFrame([]byte("garbage")))
	assert.Error(t, r.HandleFrame([]byte(`{"event":"raceStart","data":"nope"}`)))
}

func TestCarChangesClass(t *testing.T) {
	r, _ := newFlatRacer(t)
	require.NoError(t, r.HandleFrame(welcome(3)))

	require.NoError(t, r.HandleFrame(wire.EncodeEconomyUpdate(economy.Snapshot{Money: 0, Owned: []int{0, 3}, Car: 3})))
	assert.Equal(t, vehicle.ClassFor(2.1, 0.98), r.dyn.Class)

	require.NoError(t, r.HandleFrame(wire.EncodeCarChanged("other", 1)))
	assert.Equal(t, vehicle.ClassFor(2.1, 0.98), r.dyn.Class, "someone else's car")

	require.NoError(t, r.HandleFrame(wire.EncodeCarChanged("me", 0)))
	assert.Equal(t, vehicle.ClassFor(1.0, 0.94), r.dyn.Class)
	assert.Equal(t, 0, r.Wallet().Car)
}

func TestRaceStartTakesGridSlot(t *testing.T) {
	r, _ := newFlatRacer(t)
	require.NoError(t, r.HandleFrame(welcome(3)))

	require.NoError(t, r.HandleFrame(wire.EncodeRaceStart(network.RaceStart{
		ID:   "race-1",
		Laps: 2,
		Grid: map[string]race.Slot{"me": {X: 4, Z: 8}, "other": {X: -4, Z: 8}},
	})))

	x, z := r.world.Layout.GridPosition(4, 8)
	v := r.Vehicle()
	assert.InDelta(t, x, v.Position.X(), 1e-9)
	assert.InDelta(t, z, v.Position.Z(), 1e-9)
	assert.Equal(t, race.Racing, r.Status())

	phase, lap, next := r.Progress()
	assert.Equal(t, progress.Armed, phase)
	assert.Equal(t, 1, lap)
	assert.Zero(t, next)
	assert.Equal(t, 2, r.tracker.LapTarget())

	require.NoError(t, r.HandleFrame(wire.EncodeRaceStatus(network.RaceStatus{Status: race.Idle})))
	phase, _, _ = r.Progress()
	assert.Equal(t, progress.Waiting, phase)
}

func TestRaceStartWithoutUsStaysWaiting(t *testing.T) {
	r, out := newFlatRacer(t)
	require.NoError(t, r.HandleFrame(welcome(1)))
	before := r.Vehicle().Position

	require.NoError(t, r.HandleFrame(wire.EncodeRaceStart(network.RaceStart{
		ID:   "race-1",
		Laps: 1,
		Grid: map[string]race.Slot{"a": {X: 4}, "b": {X: -4}},
	})))

	phase, _, _ := r.Progress()
	assert.Equal(t, progress.Waiting, phase)
	assert.Equal(t, race.Racing, r.Status())
	assert.Equal(t, before, r.Vehicle().Position, "no grid slot taken")

	// driving the whole track claims nothing
	layout := r.world.Layout
	for i := 0; i < layout.Len(); i++ {
		cp := layout.At(i)
		r.state.Place(mgl64.Vec3{cp.X(), 10, cp.Z()}, layout.Direction(i))
		require.NoError(t, r.Tick(time.Now(), 1.0/60, vehicle.Input{}))
	}
	assert.Zero(t, out.count(network.EventCheckpoint))
	assert.Empty(t, out.laps(t))
}

// gatedSender blocks every send until release is closed.
type gatedSender struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSender) Send([]byte) error {
	select {
	case g.entered <- struct{}{}:
	default:
	}
	<-g.release
	return nil
}

func TestSlowSendDoesNotBlockFrames(t *testing.T) {
	s := &gatedSender{entered: make(chan struct{}, 1), release: make(chan struct{})}
	r, err := NewRacer(Config{Field: terrain.Flat(10), Logger: zerolog.Nop()}, s)
	require.NoError(t, err)

	ticked := make(chan error, 1)
	go func() { ticked <- r.Tick(time.Now(), 1.0/60, vehicle.Input{}) }()

	select {
	case <-s.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("tick never sent its pose")
	}

	handled := make(chan error, 1)
	go func() { handled <- r.HandleFrame(welcome(3)) }()
	select {
	case err := <-handled:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("frame handling waited on the transport")
	}
	assert.Equal(t, "me", r.ID())

	close(s.release)
	require.NoError(t, <-ticked)
}

func TestAutopilotFinishesARace(t *testing.T) {
	r, out := newFlatRacer(t)
	require.NoError(t, r.HandleFrame(welcome(1)))
	require.NoError(t, r.HandleFrame(wire.EncodeRaceStart(network.RaceStart{
		ID: "race-1", Laps: 1, Grid: map[string]race.Slot{"me": {X: -4}},
	})))

	pilot := DefaultAutopilot()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	const dt = 1.0 / 60
	for i := 0; i < 60*180; i++ {
		if phase, _, _ := r.Progress(); phase == progress.Finished {
			break
		}
		if pilot.Stuck() {
			r.Respawn()
			pilot.Unstick()
		}
		in := pilot.Drive(r.Vehicle(), r.Target(), dt)
		now = now.Add(time.Second / 60)
		require.NoError(t, r.Tick(now, dt, in))
	}

	phase, lap, _ := r.Progress()
	require.Equal(t, progress.Finished, phase)
	assert.Equal(t, 2, lap)
	assert.Equal(t, []int{2}, out.laps(t))
	assert.Equal(t, 40, out.count(network.EventCheckpoint))
	assert.Greater(t, out.count(network.EventMove), 100)

	// every frame the racer sends is one the server accepts
	out.mu.Lock()
	defer out.mu.Unlock()
	for _, f := range out.frames {
		b, err := json.Marshal(f)
		require.NoError(t, err)
		_, err = wire.Decode(b)
		require.NoError(t, err, f.Event)
	}
}

func TestRespawn(t *testing.T) {
	r, _ := newFlatRacer(t)
	require.NoError(t, r.HandleFrame(welcome(3)))
	layout := r.world.Layout

	// before any checkpoint: the nearest one
	far := layout.At(7)
	r.state.Place(mgl64.Vec3{far.X() + 3, 10, far.Z() + 3}, mgl64.Vec3{0, 0, 1})
	r.state.Speed = 40
	r.Respawn()
	v := r.Vehicle()
	assert.InDelta(t, far.X(), v.Position.X(), 1e-9)
	assert.InDelta(t, far.Z(), v.Position.Z(), 1e-9)
	assert.Greater(t, v.Position.Y(), 10.0)
	assert.Zero(t, v.Speed)
	assert.InDelta(t, 1, v.Forward.Dot(layout.Direction(7)), 1e-6)

	// during a race: the last passed checkpoint, progress kept
	require.NoError(t, r.HandleFrame(wire.EncodeRaceStart(network.RaceStart{
		Laps: 3, Grid: map[string]race.Slot{"me": {}},
	})))
	require.NoError(t, r.Tick(time.Now(), 1.0/60, vehicle.Input{}))
	require.Equal(t, 0, r.tracker.LastPassed())

	r.state.Place(mgl64.Vec3{5000, 10, 5000}, mgl64.Vec3{1, 0, 0})
	r.Respawn()
	v = r.Vehicle()
	assert.InDelta(t, layout.At(0).X(), v.Position.X(), 1e-9)
	_, lap, next := r.Progress()
	assert.Equal(t, 1, lap)
	assert.Equal(t, 1, next)
}

func TestAutopilotSteering(t *testing.T) {
	a := DefaultAutopilot()
	s := *vehicle.NewState(mgl64.Vec3{}, mgl64.Vec3{0, 0, 1})

	in := a.Drive(s, mgl64.Vec3{100, 0, 100}, 1.0/60)
	assert.True(t, in.Left)
	assert.True(t, in.Forward)

	in = a.Drive(s, mgl64.Vec3{-100, 0, 100}, 1.0/60)
	assert.True(t, in.Right)

	in = a.Drive(s, mgl64.Vec3{0, 0, 100}, 1.0/60)
	assert.False(t, in.Left || in.Right)

	s.Speed = 60
	in = a.Drive(s, mgl64.Vec3{0, 0, -100}, 1.0/60)
	assert.False(t, in.Forward, "brakes into a hairpin")
}

func TestAutopilotStuck(t *testing.T) {
	a := DefaultAutopilot()
	s := *vehicle.NewState(mgl64.Vec3{}, mgl64.Vec3{0, 0, 1})
	for i := 0; i < 60*2; i++ {
		a.Drive(s, mgl64.Vec3{0, 0, 100}, 1.0/60)
	}
	assert.False(t, a.Stuck())
	for i := 0; i < 60*2; i++ {
		a.Drive(s, mgl64.Vec3{0, 0, 100}, 1.0/60)
	}
	assert.True(t, a.Stuck())
	a.Unstick()
	assert.False(t, a.Stuck())
}

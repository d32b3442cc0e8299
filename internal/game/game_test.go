package game

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/race/arcade/internal/economy"
	"github.com/race/arcade/internal/history"
	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/race"
	"github.com/race/arcade/internal/schedule"
)

type fakeConn struct {
	mu     sync.Mutex
	frames []network.Envelope
	closed bool
	full   bool
}

func (c *fakeConn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errors.New("send buffer full")
	}
	env, err := network.ParseEnvelope(data)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	return nil
}

func (c *fakeConn) RemoteAddr() string { return "127.0.0.1:0" }

func (c *fakeConn) count(event string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Event == event {
			n++
		}
	}
	return n
}

// last decodes the newest frame of event into v.
func (c *fakeConn) last(t *testing.T, event string, v any) bool {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.frames) - 1; i >= 0; i-- {
		if c.frames[i].Event == event {
			require.NoError(t, json.Unmarshal(c.frames[i].Data, v))
			return true
		}
	}
	return false
}

func (c *fakeConn) texts(t *testing.T) []string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []string
	for _, f := range c.frames {
		if f.Event == network.EventServerMsg {
			var s string
			require.NoError(t, json.Unmarshal(f.Data, &s))
			out = append(out, s)
		}
	}
	return out
}

func (c *fakeConn) reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

var wire = network.NewProtocol(1e6)

func testConfig() Config {
	return Config{
		Race: race.Config{
			MinEntrants: 2,
			LapTarget:   3,
			Countdown:   5 * time.Second,
			FinishGrace: 3 * time.Second,
			GridSpacing: 8,
		},
		Checkpoints:    40,
		StartBalance:   100,
		WinnerPayout:   500,
		FinisherPayout: 100,
		WorldLimit:     1e6,
		MoveRate:       90,
		MoveBurst:      30,
	}
}

func newTestGame(t *testing.T, archive *history.Archiver) (*Game, *schedule.ManualClock) {
	t.Helper()
	clock := schedule.NewManualClock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	return New(testConfig(), clock, zerolog.Nop(), nil, archive), clock
}

func TestWelcomeAndRoster(t *testing.T) {
	g, _ := newTestGame(t, nil)
	a, b := &fakeConn{}, &fakeConn{}

	g.HandleConnect("aaaa-1", a)
	g.HandleConnect("bbbb-2", b)

	var w network.Welcome
	require.True(t, b.last(t, network.EventWelcome, &w))
	assert.Equal(t, "bbbb-2", w.ID)
	assert.Len(t, w.List, 2)
	assert.Equal(t, "Racer aaaa", w.List["aaaa-1"].Name)
	assert.Equal(t, 100, w.Economy.Money)
	assert.Equal(t, []int{economy.DefaultVehicleID}, w.Economy.Owned)
	assert.Equal(t, race.Idle, w.Race.Status)
	assert.Len(t, w.Shop, len(economy.DefaultCatalog()))

	var joined network.PlayerState
	require.True(t, a.last(t, network.EventPlayerJoin, &joined))
	assert.Equal(t, "bbbb-2", joined.ID)
	assert.Zero(t, b.count(network.EventPlayerJoin), "no self join")

	var n int
	require.True(t, a.last(t, network.EventCountUpdate, &n))
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, g.PlayerCount())
}

func TestTwoPlayerRace(t *testing.T) {
	store, err := history.Open(10)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	archive := history.NewArchiver(store, 4, zerolog.Nop())

	g, clock := newTestGame(t, archive)
	a, b := &fakeConn{}, &fakeConn{}
	g.HandleConnect("a", a)
	g.HandleConnect("b", b)

	g.HandleMessage("a", wire.EncodeJoinRace())
	assert.Contains(t, a.texts(t), race.WaitingNotice)
	assert.NotContains(t, b.texts(t), race.WaitingNotice)

	var st network.RaceStatus
	require.True(t, b.last(t, network.EventRaceStatus, &st))
	assert.Equal(t, network.RaceStatus{Count: 1, Status: race.Idle}, st)

	g.HandleMessage("b", wire.EncodeJoinRace())
	require.True(t, a.last(t, network.EventRaceStatus, &st))
	assert.Equal(t, race.Countdown, st.Status)
	assert.Contains(t, b.texts(t), "RACE STARTING IN 5...")

	clock.Advance(4 * time.Second)
	g.Tick()
	assert.Zero(t, a.count(network.EventRaceStart))

	clock.Advance(time.Second)
	g.Tick()
	var start network.RaceStart
	require.True(t, b.last(t, network.EventRaceStart, &start))
	assert.Equal(t, 3, start.Laps)
	assert.Len(t, start.Grid, 2)
	assert.NotEqual(t, start.Grid["a"], start.Grid["b"])

	for lap := 2; lap <= 4; lap++ {
		g.HandleMessage("a", wire.EncodeLapComplete(lap))
	}
	var wallet economy.Snapshot
	require.True(t, a.last(t, network.EventEconomyUpdate, &wallet))
	assert.Equal(t, 600, wallet.Money)
	assert.Zero(t, b.count(network.EventEconomyUpdate), "payouts are private")
	assert.Zero(t, a.count(network.EventRaceOver))

	// a repeated finish claim pays nothing
	a.reset()
	g.HandleMessage("a", wire.EncodeLapComplete(5))
	assert.Zero(t, a.count(network.EventEconomyUpdate))

	g.HandleMessage("b", wire.EncodeLapComplete(4))
	require.True(t, b.last(t, network.EventEconomyUpdate, &wallet))
	assert.Equal(t, 200, wallet.Money)

	var over network.RaceOver
	require.True(t, a.last(t, network.EventRaceOver, &over))
	assert.Equal(t, []string{"a", "b"}, over.Order)
	assert.Equal(t, "Racer a", over.Winner)
	assert.Equal(t, race.Racing, g.Race().Status())

	clock.Advance(3 * time.Second)
	g.Tick()
	require.True(t, a.last(t, network.EventRaceStatus, &st))
	assert.Equal(t, network.RaceStatus{Count: 0, Status: race.Idle}, st)
	assert.Equal(t, race.Idle, g.Stats().Race.Status)

	archive.Close()
	races, err := store.Recent(1)
	require.NoError(t, err)
	require.Len(t, races, 1)
	assert.False(t, races[0].Cancelled)
	require.Len(t, races[0].Finishers, 2)
	assert.Equal(t, "a", races[0].Finishers[0].Participant)
	assert.Equal(t, 500, races[0].Finishers[0].Payout)
	assert.Equal(t, 100, races[0].Finishers[1].Payout)
}

func startRace(t *testing.T, g *Game, clock *schedule.ManualClock, ids ...string) {
	t.Helper()
	for _, id := range ids {
		g.HandleMessage(id, wire.EncodeJoinRace())
	}
	clock.Advance(5 * time.Second)
	g.Tick()
	require.Equal(t, race.Racing, g.Race().Status())
}

func TestDisconnectCancelsRace(t *testing.T) {
	g, clock := newTestGame(t, nil)
	a, b := &fakeConn{}, &fakeConn{}
	g.HandleConnect("a", a)
	g.HandleConnect("b", b)
	startRace(t, g, clock, "a", "b")

	g.HandleDisconnect("b")
	assert.True(t, b.closed)
	assert.Contains(t, a.texts(t), race.CancelledNotice)
	assert.Equal(t, race.Idle, g.Race().Status())

	var left string
	require.True(t, a.last(t, network.EventPlayerLeave, &left))
	assert.Equal(t, "b", left)
	assert.Equal(t, 1, g.PlayerCount())

	// unknown and repeated disconnects are harmless
	g.HandleDisconnect("b")
	g.HandleDisconnect("nobody")
	assert.Equal(t, 1, g.PlayerCount())
}

func TestMoveRelayAndFloodGuard(t *testing.T) {
	g, _ := newTestGame(t, nil)
	a, b := &fakeConn{}, &fakeConn{}
	g.HandleConnect("a", a)
	g.HandleConnect("b", b)

	move := network.Move{X: 1, Y: 2, Z: 3, QW: 1, Seq: 7, S: 12}
	g.HandleMessage("a", wire.EncodeMove(move))

	var upd network.PlayerUpdate
	require.True(t, b.last(t, network.EventPlayerUpdate, &upd))
	assert.Equal(t, "a", upd.ID)
	assert.Equal(t, 3.0, upd.Z)
	assert.EqualValues(t, 7, upd.Seq)
	assert.Zero(t, a.count(network.EventPlayerUpdate), "not echoed to sender")

	b.reset()
	for i := 0; i < 100; i++ {
		g.HandleMessage("a", wire.EncodeMove(move))
	}
	// the clock is frozen so only the remaining burst gets through
	assert.Equal(t, 29, b.count(network.EventPlayerUpdate))
}

func TestMalformedInputIgnored(t *testing.T) {
	g, _ := newTestGame(t, nil)
	a, b := &fakeConn{}, &fakeConn{}
	g.HandleConnect("a", a)
	g.HandleConnect("b", b)
	b.reset()

	for _, frame := range []string{
		`not json`,
		`{"event":"teleport","data":{}}`,
		`{"event":"move","data":{"x":1e400,"y":0,"z":0}}`,
		`{"event":"move","data":{"x":5e6,"y":0,"z":0,"qw":1}}`,
		`{"event":"buy","data":"car"}`,
	} {
		g.HandleMessage("a", []byte(frame))
	}
	assert.Zero(t, b.count(network.EventPlayerUpdate))
	assert.Equal(t, 2, g.PlayerCount())
	assert.False(t, a.closed)

	// frames from unknown senders are dropped
	g.HandleMessage("ghost", wire.EncodeJoinRace())
	assert.Equal(t, race.Idle, g.Race().Status())
	assert.Empty(t, g.Race().Entrants())
}

func TestShop(t *testing.T) {
	cfg := testConfig()
	cfg.StartBalance = 600
	g := New(cfg, schedule.NewManualClock(time.Now()), zerolog.Nop(), nil, nil)
	a, b := &fakeConn{}, &fakeConn{}
	g.HandleConnect("a", a)
	g.HandleConnect("b", b)

	g.HandleMessage("a", wire.EncodeBuy(3))
	assert.Zero(t, a.count(network.EventEconomyUpdate), "unaffordable")
	assert.Zero(t, b.count(network.EventCarChanged))

	g.HandleMessage("a", wire.EncodeEquip(1))
	assert.Zero(t, b.count(network.EventCarChanged), "not owned")

	g.HandleMessage("a", wire.EncodeBuy(1))
	var wallet economy.Snapshot
	require.True(t, a.last(t, network.EventEconomyUpdate, &wallet))
	assert.Equal(t, economy.Snapshot{Money: 100, Owned: []int{0, 1}, Car: 1}, wallet)
	assert.Zero(t, b.count(network.EventEconomyUpdate))

	var changed network.CarChanged
	require.True(t, b.last(t, network.EventCarChanged, &changed))
	assert.Equal(t, network.CarChanged{ID: "a", Car: 1}, changed)

	// owning it already
	a.reset()
	g.HandleMessage("a", wire.EncodeBuy(1))
	assert.Zero(t, a.count(network.EventEconomyUpdate))

	g.HandleMessage("a", wire.EncodeEquip(economy.DefaultVehicleID))
	require.True(t, b.last(t, network.EventCarChanged, &changed))
	assert.Equal(t, economy.DefaultVehicleID, changed.Car)
}

func TestCheckpointOnlyWhileRacing(t *testing.T) {
	g, clock := newTestGame(t, nil)
	a, b := &fakeConn{}, &fakeConn{}
	pa := g.HandleConnect("a", a)
	g.HandleConnect("b", b)

	g.HandleMessage("a", wire.EncodeCheckpoint(3))
	assert.Zero(t, pa.Checkpoint)

	startRace(t, g, clock, "a", "b")
	g.HandleMessage("a", wire.EncodeCheckpoint(3))
	assert.Equal(t, 3, pa.Checkpoint)

	g.HandleMessage("a", wire.EncodeCheckpoint(40))
	assert.Equal(t, 3, pa.Checkpoint, "out of range")

	g.HandleMessage("a", wire.EncodeLapComplete(2))
	assert.Equal(t, 2, pa.Lap)
	g.HandleMessage("a", wire.EncodeLapComplete(2))
	assert.Equal(t, 2, pa.Lap)
}

func TestSendFailuresDoNotStall(t *testing.T) {
	g, _ := newTestGame(t, nil)
	a, b := &fakeConn{}, &fakeConn{full: true}
	g.HandleConnect("a", a)
	g.HandleConnect("b", b)

	g.HandleMessage("a", wire.EncodeMove(network.Move{QW: 1}))
	assert.Equal(t, 2, g.PlayerCount())
	assert.False(t, b.closed)
}

func TestLoopProcessesQueuedEvents(t *testing.T) {
	clock := schedule.NewManualClock(time.Now())
	g := New(testConfig(), clock, zerolog.Nop(), nil, nil)
	g.Start()
	g.Start()
	defer g.Stop()

	a := &fakeConn{}
	require.True(t, g.Connect("a", a))
	require.True(t, g.Message("a", wire.EncodeJoinRace()))

	assert.Eventually(t, func() bool {
		return len(a.texts(t)) > 0
	}, time.Second, 5*time.Millisecond)

	require.True(t, g.Disconnect("a"))
	assert.Eventually(t, func() bool { return g.PlayerCount() == 0 }, time.Second, 5*time.Millisecond)

	g.Stop()
	assert.False(t, g.Connect("b", &fakeConn{}), "stopped game refuses events")
}

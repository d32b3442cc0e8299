package game

import (
	"hash/fnv"
	"time"

	"golang.org/x/time/rate"

	"github.com/race/arcade/internal/network"
)

// PlayerConnection interface for network abstraction
type PlayerConnection interface {
	Send(data []byte) error
	Close() error
	RemoteAddr() string
}

// Player is a connected participant as the server tracks it. Money and
// ownership live in the ledger.
type Player struct {
	ID         string
	Name       string
	Color      uint32
	Connection PlayerConnection

	Pose       network.Move
	Car        int
	Lap        int
	Checkpoint int

	limiter     *rate.Limiter
	ConnectedAt time.Time
	LastMoveAt  time.Time
}

// NewPlayer creates a player at the origin with the default car.
func NewPlayer(id string, conn PlayerConnection, limiter *rate.Limiter, now time.Time) *Player {
	short := id
	if len(short) > 4 {
		short = short[:4]
	}
	return &Player{
		ID:          id,
		Name:        "Racer " + short,
		Color:       colorFor(id),
		Connection:  conn,
		Pose:        network.Move{QW: 1},
		limiter:     limiter,
		ConnectedAt: now,
	}
}

// State returns the public roster entry.
func (p *Player) State() network.PlayerState {
	return network.PlayerState{
		ID:         p.ID,
		Name:       p.Name,
		Color:      p.Color,
		X:          p.Pose.X,
		Y:          p.Pose.Y,
		Z:          p.Pose.Z,
		QX:         p.Pose.QX,
		QY:         p.Pose.QY,
		QZ:         p.Pose.QZ,
		QW:         p.Pose.QW,
		Speed:      p.Pose.S,
		Steering:   p.Pose.St,
		Car:        p.Car,
		Lap:        p.Lap,
		Checkpoint: p.Checkpoint,
	}
}

// ApplyMove stores a validated pose.
func (p *Player) ApplyMove(m network.Move, now time.Time) {
	p.Pose = m
	p.LastMoveAt = now
}

// ResetProgress clears race progress at the start of a race.
func (p *Player) ResetProgress() {
	p.Lap = 0
	p.Checkpoint = 0
}

// colorFor gives every id a stable 24-bit body colour.
func colorFor(id string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(id))
	return h.Sum32() & 0xffffff
}

// Package netsync is the client side of the network sync layer: it publishes
// the local pose at a fixed cadence, relays tracker events to the server and
// smooths the poses of remote vehicles.
package netsync

import (
	"github.com/go-gl/mathgl/mgl64"

	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/vehicle"
)

// Sender is the outbound half of a transport.
type Sender interface {
	Send(data []byte) error
}

// Pose is a vehicle as other participants see it.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
	Speed       float64
	Steer       float64
}

// PoseOf captures the rendered pose of a simulated vehicle.
func PoseOf(s *vehicle.State, steer float64) Pose {
	return Pose{
		Position:    s.Position,
		Orientation: s.Orientation,
		Speed:       s.Speed,
		Steer:       steer,
	}
}

// Move converts the pose to its wire form.
func (p Pose) Move(seq uint32) network.Move {
	q := p.Orientation
	return network.Move{
		X:   p.Position.X(),
		Y:   p.Position.Y(),
		Z:   p.Position.Z(),
		QX:  q.V.X(),
		QY:  q.V.Y(),
		QZ:  q.V.Z(),
		QW:  q.W,
		Seq: seq,
		S:   p.Speed,
		St:  p.Steer,
	}
}

// PoseFromMove is the inverse of Move.
func PoseFromMove(m network.Move) Pose {
	return Pose{
		Position:    mgl64.Vec3{m.X, m.Y, m.Z},
		Orientation: mgl64.Quat{W: m.QW, V: mgl64.Vec3{m.QX, m.QY, m.QZ}},
		Speed:       m.S,
		Steer:       m.St,
	}
}

// PoseFromState converts a roster entry.
func PoseFromState(s network.PlayerState) Pose {
	return Pose{
		Position:    mgl64.Vec3{s.X, s.Y, s.Z},
		Orientation: mgl64.Quat{W: s.QW, V: mgl64.Vec3{s.QX, s.QY, s.QZ}},
		Speed:       s.Speed,
		Steer:       s.Steering,
	}
}

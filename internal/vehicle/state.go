// Package vehicle implements the arcade vehicle simulation: throttle and
// steering response, terrain following, slope alignment and ramp launches.
package vehicle

import (
	"github.com/go-gl/mathgl/mgl64"
)

// Input is one tick's control snapshot.
type Input struct {
	Forward  bool
	Backward bool
	Left     bool
	Right    bool
	Drift    bool
}

func (in Input) throttle() float64 {
	switch {
	case in.Forward && !in.Backward:
		return 1
	case in.Backward && !in.Forward:
		return -1
	}
	return 0
}

// steer is positive for left.
func (in Input) steer() float64 {
	switch {
	case in.Left && !in.Right:
		return 1
	case in.Right && !in.Left:
		return -1
	}
	return 0
}

// State is the simulated state of one vehicle. Forward and Up are always
// unit length and mutually orthogonal after Place or Step.
type State struct {
	Position mgl64.Vec3
	Forward  mgl64.Vec3
	Up       mgl64.Vec3

	// Velocity is the horizontal velocity; it chases Forward*Speed at the
	// rate allowed by grip.
	Velocity         mgl64.Vec3
	Speed            float64
	VerticalVelocity float64
	YawRate          float64
	Grounded         bool

	// Orientation is the rendered orientation, blended towards the basis.
	Orientation mgl64.Quat
}

// NewState creates a vehicle at pos facing the horizontal direction facing.
func NewState(pos, facing mgl64.Vec3) *State {
	s := &State{}
	s.Place(pos, facing)
	return s
}

// Place teleports the vehicle and clears its motion. Used on spawn,
// respawn and when taking a grid slot.
func (s *State) Place(pos, facing mgl64.Vec3) {
	if !finiteVec(pos) {
		pos = mgl64.Vec3{}
	}
	fwd, _ := horizontal(facing)

	s.Position = pos
	s.Forward = fwd
	s.Up = worldUp
	s.Velocity = mgl64.Vec3{}
	s.Speed = 0
	s.VerticalVelocity = 0
	s.YawRate = 0
	s.Grounded = false
	s.Orientation = basisQuat(s.Forward, s.Up)
}

// Basis returns the unblended orientation built from Forward and Up.
func (s *State) Basis() mgl64.Quat {
	return basisQuat(s.Forward, s.Up)
}

// sanitize zeroes non-finite motion so one bad value cannot poison the run.
func (s *State) sanitize() {
	if !finiteVec(s.Position) {
		s.Position = mgl64.Vec3{}
	}
	if !finiteVec(s.Velocity) {
		s.Velocity = mgl64.Vec3{}
	}
	if !finite(s.Speed) {
		s.Speed = 0
	}
	if !finite(s.VerticalVelocity) {
		s.VerticalVelocity = 0
	}
	if !finite(s.YawRate) {
		s.YawRate = 0
	}
	if f, u, ok := orthonormalize(s.Forward, s.Up); ok {
		s.Forward, s.Up = f, u
	} else {
		fwd, _ := horizontal(s.Forward)
		s.Forward, s.Up = fwd, worldUp
	}
	if !finiteQuat(s.Orientation) || s.Orientation.Len() < epsilon {
		s.Orientation = basisQuat(s.Forward, s.Up)
	}
}

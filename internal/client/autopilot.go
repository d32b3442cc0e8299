package client

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/race/arcade/internal/vehicle"
)

// Autopilot steers a vehicle towards a target point.
type Autopilot struct {
	MaxSpeed    float64 // throttle is released above this
	CornerSpeed float64 // and above this when the target is off the nose
	Deadband    float64 // radians of heading error ignored
	StuckAfter  float64 // seconds below StuckSpeed before Stuck reports true
	StuckSpeed  float64

	slow float64
}

// DefaultAutopilot is tuned for the stock tracks with the starter car.
func DefaultAutopilot() *Autopilot {
	return &Autopilot{
		MaxSpeed:    90,
		CornerSpeed: 45,
		Deadband:    0.05,
		StuckAfter:  3,
		StuckSpeed:  2,
	}
}

// Drive returns the input for one tick of dt seconds.
func (a *Autopilot) Drive(s vehicle.State, target mgl64.Vec3, dt float64) vehicle.Input {
	if math.Abs(s.Speed) < a.StuckSpeed {
		a.slow += dt
	} else {
		a.slow = 0
	}

	to := mgl64.Vec3{target.X() - s.Position.X(), 0, target.Z() - s.Position.Z()}
	fwd := mgl64.Vec3{s.Forward.X(), 0, s.Forward.Z()}
	if to.Len() < 1e-6 || fwd.Len() < 1e-6 {
		return vehicle.Input{Forward: true}
	}
	to, fwd = to.Normalize(), fwd.Normalize()

	// positive yaw turns +Z towards +X, which is "left" for the dynamics
	side := fwd.Cross(to).Y()
	angle := math.Atan2(side, fwd.Dot(to))

	in := vehicle.Input{}
	switch {
	case angle > a.Deadband:
		in.Left = true
	case angle < -a.Deadband:
		in.Right = true
	}

	limit := a.MaxSpeed
	if math.Abs(angle) > math.Pi/4 {
		limit = a.CornerSpeed
	}
	in.Forward = s.Speed < limit
	return in
}

// Stuck reports whether the car has been crawling for too long.
func (a *Autopilot) Stuck() bool {
	return a.slow >= a.StuckAfter
}

// Unstick clears the crawl timer, after a respawn.
func (a *Autopilot) Unstick() {
	a.slow = 0
}

package vehicle

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// HeightField is anything the vehicle can drive on.
type HeightField interface {
	Height(x, z float64) float64
}

// minNormalY rejects surface normals that are nearly horizontal.
const minNormalY = 0.05

// Dynamics advances vehicle states with one tuning and class.
type Dynamics struct {
	Tuning Tuning
	Class  Class
}

// New returns dynamics for the given tuning and class.
func New(t Tuning, c Class) *Dynamics {
	t.Drag = clamp(t.Drag, 0, 0.9999)
	t.AirDrag = clamp(t.AirDrag, 0, 0.9999)
	t.AngularDrag = clamp(t.AngularDrag, 0, 0.9999)
	c.Grip = clamp(c.Grip, 0, 1)
	return &Dynamics{Tuning: t, Class: c}
}

// TerminalSpeed is the fixed point of speed*drag + accel.
func (d *Dynamics) TerminalSpeed() float64 {
	return d.Class.Accel / (1 - d.Tuning.Drag)
}

// ReverseCap is the highest reverse speed, as a positive number.
func (d *Dynamics) ReverseCap() float64 {
	return d.TerminalSpeed() * d.Tuning.ReverseSpeedRatio
}

// Step advances s by dt seconds over field. A non-finite or non-positive dt
// leaves the state untouched.
func (d *Dynamics) Step(s *State, in Input, dt float64, field HeightField) {
	if !finite(dt) || dt <= 0 {
		return
	}
	t := d.Tuning
	if dt > t.MaxDT {
		dt = t.MaxDT
	}
	s.sanitize()

	d.integrateVertical(s, field, dt)
	d.integrateSpeed(s, in)
	d.integrateHeading(s, in, dt)
	heading := d.translate(s, in, field, dt)
	if s.Grounded {
		d.alignToSlope(s, field, heading, dt)
		d.checkLaunch(s, field, heading)
	}
	s.Orientation = slerpShortest(s.Orientation, s.Basis(), smoothing(t.BlendRate, dt))
}

func (d *Dynamics) ground(field HeightField, x, z, fallback float64) float64 {
	h := field.Height(x, z)
	if !finite(h) {
		return fallback
	}
	return h + d.Tuning.RideHeight
}

func (d *Dynamics) integrateVertical(s *State, field HeightField, dt float64) {
	y := s.Position.Y()
	ground := d.ground(field, s.Position.X(), s.Position.Z(), y)

	s.VerticalVelocity -= d.Tuning.Gravity * dt
	y += s.VerticalVelocity * dt
	if y <= ground {
		y = ground
		s.VerticalVelocity = 0
		s.Grounded = true
	} else {
		s.Grounded = false
	}
	s.Position[1] = y
}

func (d *Dynamics) integrateSpeed(s *State, in Input) {
	t := d.Tuning
	if !s.Grounded {
		s.Speed *= t.AirDrag
		return
	}

	s.Speed *= t.Drag
	switch in.throttle() {
	case 1:
		s.Speed += d.Class.Accel
	case -1:
		s.Speed -= d.Class.Accel * t.ReverseAccelRatio
	}
	if rc := d.ReverseCap(); s.Speed < -rc {
		s.Speed = -rc
	}
}

func (d *Dynamics) integrateHeading(s *State, in Input, dt float64) {
	t := d.Tuning

	if steer := in.steer(); steer != 0 && math.Abs(s.Speed) > t.MinSteerSpeed {
		authority := d.Class.Turn
		if !s.Grounded {
			authority *= t.AirTurnFactor
		}
		if s.Speed < 0 && t.InvertReverseSteer {
			steer = -steer
		}
		s.YawRate += steer * authority
	}
	s.YawRate *= t.AngularDrag

	if s.YawRate != 0 {
		axis := s.Up
		if !s.Grounded {
			axis = worldUp
		}
		q := mgl64.QuatRotate(s.YawRate*dt, axis)
		up := s.Up
		if !s.Grounded {
			up = q.Rotate(up)
		}
		if f, u, ok := orthonormalize(q.Rotate(s.Forward), up); ok {
			s.Forward, s.Up = f, u
		}
	}

	if !s.Grounded {
		// the chassis settles towards level flight
		up := lerpUnit(s.Up, worldUp, smoothing(t.AirLevelRate, dt))
		if f, u, ok := orthonormalize(s.Forward, up); ok {
			s.Forward, s.Up = f, u
		}
	}
}

// translate moves the car horizontally and returns the heading it used.
func (d *Dynamics) translate(s *State, in Input, field HeightField, dt float64) mgl64.Vec3 {
	t := d.Tuning

	heading, ok := horizontal(s.Forward)
	if !ok {
		heading, _ = horizontal(s.Velocity)
	}

	if s.Grounded {
		grip := d.Class.Grip
		if in.Drift {
			grip *= t.DriftGripScale
		}
		target := heading.Mul(s.Speed)
		s.Velocity = s.Velocity.Add(target.Sub(s.Velocity).Mul(clamp(grip, 0, 1)))
		s.Velocity[1] = 0
	}

	s.Position[0] += s.Velocity.X() * dt
	s.Position[2] += s.Velocity.Z() * dt

	if s.Grounded {
		g := d.ground(field, s.Position.X(), s.Position.Z(), s.Position.Y())
		if g >= s.Position.Y()-t.StickDistance {
			s.Position[1] = g
		} else {
			s.Grounded = false
		}
	}
	return heading
}

// alignToSlope chases the surface normal estimated from four probes.
func (d *Dynamics) alignToSlope(s *State, field HeightField, heading mgl64.Vec3, dt float64) {
	n, ok := d.surfaceNormal(field, s.Position, heading)
	if !ok {
		return
	}
	up := lerpUnit(s.Up, n, smoothing(d.Tuning.AlignRate, dt))
	if f, u, ok := orthonormalize(s.Forward, up); ok {
		s.Forward, s.Up = f, u
	}
}

func (d *Dynamics) surfaceNormal(field HeightField, pos, heading mgl64.Vec3) (mgl64.Vec3, bool) {
	o := d.Tuning.SampleOffset
	side := mgl64.Vec3{heading.Z(), 0, -heading.X()}
	x, z := pos.X(), pos.Z()

	hF := field.Height(x+heading.X()*o, z+heading.Z()*o)
	hB := field.Height(x-heading.X()*o, z-heading.Z()*o)
	hR := field.Height(x+side.X()*o, z+side.Z()*o)
	hL := field.Height(x-side.X()*o, z-side.Z()*o)
	if !finite(hF) || !finite(hB) || !finite(hR) || !finite(hL) {
		return mgl64.Vec3{}, false
	}

	tf := mgl64.Vec3{2 * o * heading.X(), hF - hB, 2 * o * heading.Z()}
	ts := mgl64.Vec3{2 * o * side.X(), hR - hL, 2 * o * side.Z()}
	n := tf.Cross(ts)
	l := n.Len()
	if l < epsilon || !finite(l) {
		return mgl64.Vec3{}, false
	}
	n = n.Mul(1 / l)
	if n.Y() <= minNormalY {
		return mgl64.Vec3{}, false
	}
	return n, true
}

// checkLaunch hops the car when the terrain ahead rises sharply at speed.
func (d *Dynamics) checkLaunch(s *State, field HeightField, heading mgl64.Vec3) {
	t := d.Tuning
	speed := math.Abs(s.Speed)
	if speed <= t.LaunchMinSpeed {
		return
	}
	dir := heading
	if s.Speed < 0 {
		dir = dir.Mul(-1)
	}

	x, z := s.Position.X(), s.Position.Z()
	here := field.Height(x, z)
	ahead := field.Height(x+dir.X()*t.LaunchProbe, z+dir.Z()*t.LaunchProbe)
	if !finite(here) || !finite(ahead) {
		return
	}
	if delta := ahead - here; delta > t.LaunchThreshold {
		s.VerticalVelocity = math.Min(t.LaunchGain*speed*delta, t.MaxLaunchSpeed)
		s.Grounded = false
	}
}

package netsync

import (
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/race/arcade/internal/network"
)

// DefaultBlendRate is how fast remote vehicles close on their latest pose, 1/s.
const DefaultBlendRate = 10.0

type remote struct {
	current Pose
	target  Pose
	seq     uint32
}

// Interpolator smooths remote vehicles towards the newest pose received
// for each of them. Updates may arrive late or not at all; a stale update
// is dropped and a missing one just leaves the vehicle easing towards the
// last target.
//
// Apply is called from the transport reader, Step from the simulation loop.
type Interpolator struct {
	mu      sync.RWMutex
	rate    float64
	remotes map[string]*remote
}

// NewInterpolator creates an interpolator blending at rate per second.
func NewInterpolator(rate float64) *Interpolator {
	if rate <= 0 {
		rate = DefaultBlendRate
	}
	return &Interpolator{rate: rate, remotes: make(map[string]*remote)}
}

// Apply records an update for id. The first pose of a vehicle is adopted
// immediately. Sequenced updates not newer than the last one seen are
// dropped; a zero seq is unsequenced and always accepted.
func (ip *Interpolator) Apply(id string, m network.Move) bool {
	pose := PoseFromMove(m)
	if !finitePose(pose) {
		return false
	}

	ip.mu.Lock()
	defer ip.mu.Unlock()

	r, ok := ip.remotes[id]
	if !ok {
		ip.remotes[id] = &remote{current: pose, target: pose, seq: m.Seq}
		return true
	}
	if m.Seq != 0 && r.seq != 0 && !newer(m.Seq, r.seq) {
		return false
	}
	r.target = pose
	if m.Seq != 0 {
		r.seq = m.Seq
	}
	return true
}

// Snap places id at pose without blending, e.g. from a roster snapshot.
func (ip *Interpolator) Snap(id string, pose Pose) {
	ip.mu.Lock()
	defer ip.mu.Unlock()
	if r, ok := ip.remotes[id]; ok {
		r.current, r.target = pose, pose
		return
	}
	ip.remotes[id] = &remote{current: pose, target: pose}
}

// Step advances every remote vehicle by dt seconds.
func (ip *Interpolator) Step(dt float64) {
	if !(dt > 0) || math.IsInf(dt, 0) {
		return
	}
	f := 1 - math.Exp(-ip.rate*dt)

	ip.mu.Lock()
	defer ip.mu.Unlock()
	for _, r := range ip.remotes {
		r.current = blend(r.current, r.target, f)
	}
}

// Pose returns the smoothed pose of id.
func (ip *Interpolator) Pose(id string) (Pose, bool) {
	ip.mu.RLock()
	defer ip.mu.RUnlock()
	r, ok := ip.remotes[id]
	if !ok {
		return Pose{}, false
	}
	return r.current, true
}

// Remove forgets id.
func (ip *Interpolator) Remove(id string) {
	ip.mu.Lock()
	delete(ip.remotes, id)
	ip.mu.Unlock()
}

// Len returns the number of tracked vehicles.
func (ip *Interpolator) Len() int {
	ip.mu.RLock()
	defer ip.mu.RUnlock()
	return len(ip.remotes)
}

// newer compares sequence numbers with wraparound.
func newer(a, b uint32) bool {
	return int32(a-b) > 0
}

func blend(from, to Pose, f float64) Pose {
	return Pose{
		Position:    from.Position.Add(to.Position.Sub(from.Position).Mul(f)),
		Orientation: slerp(from.Orientation, to.Orientation, f),
		Speed:       from.Speed + (to.Speed-from.Speed)*f,
		Steer:       from.Steer + (to.Steer-from.Steer)*f,
	}
}

func slerp(from, to mgl64.Quat, f float64) mgl64.Quat {
	if to.Len() < 1e-9 {
		return from
	}
	if from.Len() < 1e-9 {
		return to.Normalize()
	}
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	return mgl64.QuatSlerp(from.Normalize(), to.Normalize(), f).Normalize()
}

func finitePose(p Pose) bool {
	for _, v := range []float64{
		p.Position.X(), p.Position.Y(), p.Position.Z(),
		p.Orientation.W, p.Orientation.V.X(), p.Orientation.V.Y(), p.Orientation.V.Z(),
		p.Speed, p.Steer,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

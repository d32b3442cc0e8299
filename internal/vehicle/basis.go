package vehicle

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

const epsilon = 1e-9

var (
	worldUp      = mgl64.Vec3{0, 1, 0}
	worldForward = mgl64.Vec3{0, 0, 1}
)

// orthonormalize returns unit vectors with fwd projected off up. ok is false
// when either input is degenerate; callers keep their previous basis then.
func orthonormalize(fwd, up mgl64.Vec3) (mgl64.Vec3, mgl64.Vec3, bool) {
	if !finiteVec(fwd) || !finiteVec(up) {
		return fwd, up, false
	}
	ul := up.Len()
	if ul < epsilon {
		return fwd, up, false
	}
	u := up.Mul(1 / ul)

	f := fwd.Sub(u.Mul(fwd.Dot(u)))
	fl := f.Len()
	if fl < 1e-6 {
		return fwd, up, false
	}
	return f.Mul(1 / fl), u, true
}

// horizontal projects v onto the ground plane and normalizes it.
func horizontal(v mgl64.Vec3) (mgl64.Vec3, bool) {
	h := mgl64.Vec3{v.X(), 0, v.Z()}
	l := h.Len()
	if l < 1e-6 || !finite(l) {
		return worldForward, false
	}
	return h.Mul(1 / l), true
}

// lerpUnit moves unit vector a towards unit vector b by f and renormalizes.
func lerpUnit(a, b mgl64.Vec3, f float64) mgl64.Vec3 {
	v := a.Add(b.Sub(a).Mul(f))
	l := v.Len()
	if l < epsilon || !finite(l) {
		return a
	}
	return v.Mul(1 / l)
}

// basisQuat converts an orthonormal (forward, up) pair to a rotation that
// maps +Z to forward and +Y to up.
func basisQuat(fwd, up mgl64.Vec3) mgl64.Quat {
	side := up.Cross(fwd)
	m := mgl64.Mat4{
		side.X(), side.Y(), side.Z(), 0,
		up.X(), up.Y(), up.Z(), 0,
		fwd.X(), fwd.Y(), fwd.Z(), 0,
		0, 0, 0, 1,
	}
	return mgl64.Mat4ToQuat(m).Normalize()
}

// slerpShortest interpolates along the shorter arc. A degenerate start
// snaps to the target.
func slerpShortest(from, to mgl64.Quat, f float64) mgl64.Quat {
	if from.Len() < epsilon || !finiteQuat(from) {
		return to
	}
	if from.Dot(to) < 0 {
		to = to.Scale(-1)
	}
	q := mgl64.QuatSlerp(from, to, clamp(f, 0, 1)).Normalize()
	if !finiteQuat(q) {
		return to
	}
	return q
}

// smoothing converts a rate in 1/s into a per step interpolation factor.
func smoothing(rate, dt float64) float64 {
	return 1 - math.Exp(-rate*dt)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteVec(v mgl64.Vec3) bool {
	return finite(v[0]) && finite(v[1]) && finite(v[2])
}

func finiteQuat(q mgl64.Quat) bool {
	return finite(q.W) && finiteVec(q.V)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Package track builds the closed checkpoint loop a race is run on.
package track

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"
)

var (
	ErrTooFewControlPoints = errors.New("track: closed spline needs at least 3 control points")
	ErrInvalidCount        = errors.New("track: checkpoint count must be at least 2")
	ErrDegenerateCurve     = errors.New("track: curve has zero length")
)

// samplesPerSegment controls the arc length table resolution.
const samplesPerSegment = 64

// Spline is a closed uniform Catmull-Rom curve through its control points.
type Spline struct {
	points []mgl64.Vec3
}

// NewSpline creates a closed spline. The control points are copied.
func NewSpline(points []mgl64.Vec3) (*Spline, error) {
	if len(points) < 3 {
		return nil, ErrTooFewControlPoints
	}
	cp := make([]mgl64.Vec3, len(points))
	copy(cp, points)
	return &Spline{points: cp}, nil
}

// Point evaluates the curve at t in [0, 1); t wraps.
func (s *Spline) Point(t float64) mgl64.Vec3 {
	n := len(s.points)
	t = t - float64(int(t))
	if t < 0 {
		t++
	}

	p := t * float64(n)
	i := int(p)
	if i >= n {
		i = n - 1
	}
	u := p - float64(i)

	p0 := s.points[(i-1+n)%n]
	p1 := s.points[i]
	p2 := s.points[(i+1)%n]
	p3 := s.points[(i+2)%n]

	return catmullRom(p0, p1, p2, p3, u)
}

func catmullRom(p0, p1, p2, p3 mgl64.Vec3, u float64) mgl64.Vec3 {
	u2 := u * u
	u3 := u2 * u

	a := p1.Mul(2)
	b := p2.Sub(p0).Mul(u)
	c := p0.Mul(2).Sub(p1.Mul(5)).Add(p2.Mul(4)).Sub(p3).Mul(u2)
	d := p1.Mul(3).Sub(p0).Sub(p2.Mul(3)).Add(p3).Mul(u3)

	return a.Add(b).Add(c).Add(d).Mul(0.5)
}

// SpacedPoints resamples the curve into n points evenly spaced by arc length.
// The first point is the first control point and the sequence is closed:
// index 0 follows index n-1.
func (s *Spline) SpacedPoints(n int) ([]mgl64.Vec3, float64, error) {
	if n < 2 {
		return nil, 0, ErrInvalidCount
	}

	samples, lengths := s.arcTable()
	total := len(samples) - 1

	length := lengths[total]
	if length <= 0 {
		return nil, 0, ErrDegenerateCurve
	}

	out := make([]mgl64.Vec3, n)
	j := 0
	for k := 0; k < n; k++ {
		target := length * float64(k) / float64(n)
		for j < total-1 && lengths[j+1] < target {
			j++
		}
		seg := lengths[j+1] - lengths[j]
		f := 0.0
		if seg > 0 {
			f = (target - lengths[j]) / seg
		}
		out[k] = samples[j].Add(samples[j+1].Sub(samples[j]).Mul(f))
	}

	return out, length, nil
}

// arcTable samples the curve as a closed polyline. lengths[i] is the
// distance along the polyline from the start to samples[i].
func (s *Spline) arcTable() ([]mgl64.Vec3, []float64) {
	total := len(s.points) * samplesPerSegment
	samples := make([]mgl64.Vec3, total+1)
	lengths := make([]float64, total+1)
	for i := 0; i <= total; i++ {
		samples[i] = s.Point(float64(i) / float64(total))
		if i > 0 {
			lengths[i] = lengths[i-1] + samples[i].Sub(samples[i-1]).Len()
		}
	}
	return samples, lengths
}

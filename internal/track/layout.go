package track

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Layout is a resampled closed checkpoint loop.
type Layout struct {
	Checkpoints []mgl64.Vec3
	Length      float64
}

// NewLayout resamples the closed spline through controls into count checkpoints.
func NewLayout(controls []mgl64.Vec3, count int) (*Layout, error) {
	s, err := NewSpline(controls)
	if err != nil {
		return nil, err
	}
	cps, length, err := s.SpacedPoints(count)
	if err != nil {
		return nil, err
	}
	return &Layout{Checkpoints: cps, Length: length}, nil
}

// Len returns the number of checkpoints.
func (l *Layout) Len() int {
	return len(l.Checkpoints)
}

// Next returns the index following i, wrapping to 0.
func (l *Layout) Next(i int) int {
	n := len(l.Checkpoints)
	return ((i+1)%n + n) % n
}

// At returns checkpoint i with wraparound.
func (l *Layout) At(i int) mgl64.Vec3 {
	n := len(l.Checkpoints)
	return l.Checkpoints[((i%n)+n)%n]
}

// Spawn returns the start position.
func (l *Layout) Spawn() mgl64.Vec3 {
	return l.Checkpoints[0]
}

// Direction returns the horizontal unit direction from checkpoint i towards
// checkpoint i+1. Falls back to +Z when the two coincide.
func (l *Layout) Direction(i int) mgl64.Vec3 {
	a := l.At(i)
	b := l.At(i + 1)
	d := mgl64.Vec3{b.X() - a.X(), 0, b.Z() - a.Z()}
	if d.Len() < 1e-9 {
		return mgl64.Vec3{0, 0, 1}
	}
	return d.Normalize()
}

// GridPosition converts a starting grid offset (lateral, back) into a world
// (x, z) position relative to the spawn, facing checkpoint 1.
func (l *Layout) GridPosition(lateral, back float64) (x, z float64) {
	fwd := l.Direction(0)
	side := mgl64.Vec3{fwd.Z(), 0, -fwd.X()}
	p := l.Spawn().Add(side.Mul(lateral)).Sub(fwd.Mul(back))
	return p.X(), p.Z()
}

// Nearest returns the index of the checkpoint closest to (x, z).
func (l *Layout) Nearest(x, z float64) int {
	best, bestD := 0, math.Inf(1)
	for i, c := range l.Checkpoints {
		dx, dz := c.X()-x, c.Z()-z
		if d := dx*dx + dz*dz; d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

// Package terrain implements the procedural height field the vehicles drive on.
package terrain

import (
	"math"

	"github.com/ojrac/opensimplex-go"

	"github.com/race/arcade/config"
)

// Shelf raises every point east of MinX by Lift.
type Shelf struct {
	MinX float64
	Lift float64
}

// Profile describes how rugged a level's terrain is.
type Profile struct {
	Amplitude       float64
	Frequency       float64
	DetailAmplitude float64 // zero disables the second octave
	DetailFrequency float64
	HubRadius       float64
	HubHeight       float64
	Shelf           *Shelf
}

// DefaultProfile returns the gentle rolling profile.
func DefaultProfile() Profile {
	return Profile{
		Amplitude: 15,
		Frequency: config.NoiseFrequency,
		HubRadius: config.HubRadius,
		HubHeight: config.HubHeight,
	}
}

// Field is a deterministic height field for one level and seed.
// It is safe for concurrent use.
type Field struct {
	profile Profile
	base    opensimplex.Noise
	detail  opensimplex.Noise
}

// New creates a height field.
func New(profile Profile, seed int64) *Field {
	if profile.Frequency <= 0 {
		profile.Frequency = config.NoiseFrequency
	}
	if profile.DetailFrequency <= 0 {
		profile.DetailFrequency = config.DetailFrequency
	}
	return &Field{
		profile: profile,
		base:    opensimplex.New(seed),
		detail:  opensimplex.New(seed ^ 0x5f3759df),
	}
}

// Profile returns the profile the field was built from.
func (f *Field) Profile() Profile {
	return f.profile
}

// Height returns the ground elevation at (x, z). Never negative, never NaN.
func (f *Field) Height(x, z float64) float64 {
	if !finite(x) || !finite(z) {
		x, z = 0, 0
	}

	p := f.profile
	if x*x+z*z < p.HubRadius*p.HubRadius {
		return p.HubHeight
	}

	h := f.base.Eval2(x*p.Frequency, -z*p.Frequency) * p.Amplitude
	if p.DetailAmplitude > 0 {
		h += f.detail.Eval2(x*p.DetailFrequency, z*p.DetailFrequency) * p.DetailAmplitude
	}
	if p.Shelf != nil && x > p.Shelf.MinX {
		h += p.Shelf.Lift
	}

	return math.Max(0, h)
}

// Flat is a constant height field, mostly useful in tests and for the hub.
type Flat float64

// Height returns the constant elevation.
func (f Flat) Height(x, z float64) float64 {
	return float64(f)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

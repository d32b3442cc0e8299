package vehicle

// Tuning is the numeric personality of the simulation. Speeds are world
// units per second; Accel, Turn and Grip are applied once per tick.
type Tuning struct {
	Gravity    float64 // units/s^2
	RideHeight float64 // chassis clearance above the terrain
	MaxDT      float64 // larger steps are clamped

	Drag              float64 // per tick multiplier on the ground, < 1
	AirDrag           float64 // per tick multiplier while airborne, gentler than Drag
	ReverseAccelRatio float64 // reverse throttle strength relative to Accel
	ReverseSpeedRatio float64 // reverse cap relative to forward terminal speed

	MinSteerSpeed      float64
	AngularDrag        float64 // per tick multiplier on the yaw rate
	AirTurnFactor      float64 // steering authority kept while airborne
	InvertReverseSteer bool

	DriftGripScale float64 // grip multiplier while the drift modifier is held

	SampleOffset float64 // distance of the four slope probes
	AlignRate    float64 // 1/s, how fast up chases the surface normal
	AirLevelRate float64 // 1/s, how fast up relaxes to vertical in the air
	BlendRate    float64 // 1/s, rendered orientation smoothing

	StickDistance   float64 // terrain drop under which the car stays glued
	LaunchProbe     float64
	LaunchThreshold float64
	LaunchMinSpeed  float64
	LaunchGain      float64
	MaxLaunchSpeed  float64
}

// DefaultTuning returns the reference arcade feel at 60Hz.
func DefaultTuning() Tuning {
	return Tuning{
		Gravity:    40,
		RideHeight: 0.5,
		MaxDT:      0.1,

		Drag:              0.99,
		AirDrag:           0.998,
		ReverseAccelRatio: 0.5,
		ReverseSpeedRatio: 0.4,

		MinSteerSpeed:      6,
		AngularDrag:        0.85,
		AirTurnFactor:      0.35,
		InvertReverseSteer: true,

		DriftGripScale: 0.1,

		SampleOffset: 2,
		AlignRate:    10,
		AirLevelRate: 1.5,
		BlendRate:    12,

		StickDistance:   1.5,
		LaunchProbe:     4,
		LaunchThreshold: 1.5,
		LaunchMinSpeed:  60,
		LaunchGain:      0.04,
		MaxLaunchSpeed:  30,
	}
}

// Class is the per vehicle part of the tuning, derived from the catalog.
type Class struct {
	Accel float64 // speed gained per tick at full throttle
	Turn  float64 // yaw rate gained per tick at full lock, rad/s
	Grip  float64 // fraction of the velocity error corrected per tick, (0, 1]
}

const (
	baseAccel = 2.25
	baseTurn  = 0.2
	baseGrip  = 0.2
)

// ClassFor derives a class from catalog speed and grip factors.
func ClassFor(speedFactor, gripFactor float64) Class {
	if !finite(speedFactor) || speedFactor <= 0 {
		speedFactor = 1
	}
	if !finite(gripFactor) || gripFactor <= 0 {
		gripFactor = 1
	}
	return Class{
		Accel: baseAccel * speedFactor,
		Turn:  baseTurn,
		Grip:  clamp(baseGrip*gripFactor, 0.01, 1),
	}
}

package game

import (
	"time"
)

// ValidationResult represents the result of a trust boundary check
type ValidationResult int

const (
	ValidationValid ValidationResult = iota
	ValidationIgnoreInput
	ValidationReject
)

func (r ValidationResult) String() string {
	switch r {
	case ValidationValid:
		return "valid"
	case ValidationIgnoreInput:
		return "flood"
	case ValidationReject:
		return "rejected"
	}
	return "unknown"
}

// Validator holds the server side checks on client claims. Pose sanity is
// enforced by the protocol; lap claims by the race coordinator.
type Validator struct {
	checkpoints int
}

// NewValidator creates a validator for a track of n checkpoints.
func NewValidator(checkpoints int) *Validator {
	return &Validator{checkpoints: checkpoints}
}

// ValidateInputRate drops moves beyond the player's token bucket.
func (v *Validator) ValidateInputRate(p *Player, now time.Time) ValidationResult {
	if p.limiter == nil || p.limiter.AllowN(now, 1) {
		return ValidationValid
	}
	return ValidationIgnoreInput
}

// ValidateCheckpoint checks a reported checkpoint index against the track.
func (v *Validator) ValidateCheckpoint(index int) ValidationResult {
	if index < 0 || index >= v.checkpoints {
		return ValidationReject
	}
	return ValidationValid
}

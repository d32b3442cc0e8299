// Package progress tracks a single vehicle's way around the checkpoint loop.
// It runs on the client and is trusted only locally; the server decides
// whether a finish counts.
package progress

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Phase of a tracker.
type Phase int

const (
	Waiting Phase = iota
	Armed
	Finished
)

func (p Phase) String() string {
	switch p {
	case Waiting:
		return "waiting"
	case Armed:
		return "armed"
	case Finished:
		return "finished"
	}
	return "unknown"
}

// EventKind identifies what an Event reports.
type EventKind int

const (
	CheckpointPassed EventKind = iota
	LapCompleted
	RaceFinished
)

func (k EventKind) String() string {
	switch k {
	case CheckpointPassed:
		return "checkpoint"
	case LapCompleted:
		return "lap"
	case RaceFinished:
		return "finish"
	}
	return "unknown"
}

// Event is emitted by Update for the sync layer to relay.
type Event struct {
	Kind       EventKind
	Checkpoint int
	Lap        int
}

// Course is the closed checkpoint loop. *track.Layout satisfies it.
type Course interface {
	Len() int
	At(i int) mgl64.Vec3
}

// Tracker is the per vehicle waiting -> armed -> finished state machine.
// Laps are numbered from 1; crossing the last checkpoint increments the lap,
// and a lap beyond the target finishes the race.
type Tracker struct {
	course    Course
	radius    float64
	lapTarget int

	phase Phase
	next  int
	lap   int
	last  int
}

// NewTracker returns a waiting tracker.
func NewTracker(course Course, radius float64, lapTarget int) *Tracker {
	if lapTarget < 1 {
		lapTarget = 1
	}
	return &Tracker{
		course:    course,
		radius:    radius,
		lapTarget: lapTarget,
		last:      -1,
	}
}

// Arm starts a fresh race: lap 1, checkpoint 0 next.
func (t *Tracker) Arm() {
	t.phase = Armed
	t.next = 0
	t.lap = 1
	t.last = -1
}

// Reset drops back to waiting.
func (t *Tracker) Reset() {
	t.phase = Waiting
	t.next = 0
	t.lap = 0
	t.last = -1
}

func (t *Tracker) Phase() Phase   { return t.phase }
func (t *Tracker) Lap() int       { return t.lap }
func (t *Tracker) Next() int      { return t.next }
func (t *Tracker) LapTarget() int { return t.lapTarget }

// LastPassed is the most recently passed checkpoint, or -1.
func (t *Tracker) LastPassed() int { return t.last }

// Update consumes at most one checkpoint per call so a fast car crossing
// two tolerance circles in one tick cannot skip or double count.
func (t *Tracker) Update(pos mgl64.Vec3) []Event {
	n := t.course.Len()
	if t.phase != Armed || n == 0 || !finite(pos) {
		return nil
	}

	cp := t.course.At(t.next)
	dx, dz := pos.X()-cp.X(), pos.Z()-cp.Z()
	if dx*dx+dz*dz >= t.radius*t.radius {
		return nil
	}

	passed := t.next
	t.last = passed
	t.next = (passed + 1) % n
	events := []Event{{Kind: CheckpointPassed, Checkpoint: passed, Lap: t.lap}}
	if t.next != 0 {
		return events
	}

	t.lap++
	events = append(events, Event{Kind: LapCompleted, Checkpoint: passed, Lap: t.lap})
	if t.lap > t.lapTarget {
		t.phase = Finished
		events = append(events, Event{Kind: RaceFinished, Checkpoint: passed, Lap: t.lap})
	}
	return events
}

func finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

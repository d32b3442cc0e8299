// Package race implements the server side race lifecycle:
// idle -> countdown -> racing -> idle.
package race

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/race/arcade/internal/schedule"
)

// Status of the shared session.
type Status string

const (
	Idle      Status = "idle"
	Countdown Status = "countdown"
	Racing    Status = "racing"
)

// Notices sent to participants.
const (
	WaitingNotice   = "Waiting for opponent..."
	CancelledNotice = "Race cancelled: not enough racers"
)

// Config tunes one coordinator.
type Config struct {
	MinEntrants int
	LapTarget   int
	Countdown   time.Duration
	FinishGrace time.Duration
	GridSpacing float64
}

// Hooks receives the coordinator's outbound effects. They are invoked
// synchronously from within the call that caused them.
type Hooks interface {
	// StatusChanged reports the entrant count and status.
	StatusChanged(count int, status Status)
	// Notice sends a human readable message; an empty to means everyone.
	Notice(to, text string)
	Started(raceID string, grid map[string]Slot)
	Finished(id string, rank int)
	// Over fires once every entrant has finished, before the grace delay.
	Over(order []string)
	// Closed fires when a race that had started returns to idle.
	Closed(result Result)
}

// Result describes a race that reached the racing status.
type Result struct {
	ID        string
	Started   time.Time
	Ended     time.Time
	LapTarget int
	Entrants  []string
	Order     []string
	Cancelled bool
}

// Snapshot is the public view sent in welcome.
type Snapshot struct {
	Status    Status   `json:"status"`
	Count     int      `json:"count"`
	Entrants  []string `json:"entrants"`
	Finished  []string `json:"finished"`
	LapTarget int      `json:"laps"`
}

// Coordinator owns the single shared race session. It is not safe for
// concurrent use; the game loop serializes every call, including the
// scheduler's RunDue.
type Coordinator struct {
	cfg    Config
	sched  *schedule.Scheduler
	hooks  Hooks
	logger zerolog.Logger

	status   Status
	entrants []string
	laps     map[string]int
	finished []string
	grid     map[string]Slot

	// epoch changes on every status transition; pending timers compare it
	// before acting.
	epoch      uint64
	closing    bool
	finalOrder []string
	raceID     string
	startedAt  time.Time
}

// NewCoordinator returns an idle coordinator.
func NewCoordinator(cfg Config, sched *schedule.Scheduler, hooks Hooks, logger zerolog.Logger) *Coordinator {
	if cfg.MinEntrants < 1 {
		cfg.MinEntrants = 1
	}
	if cfg.LapTarget < 1 {
		cfg.LapTarget = 1
	}
	return &Coordinator{
		cfg:    cfg,
		sched:  sched,
		hooks:  hooks,
		logger: logger.With().Str("component", "race").Logger(),
		status: Idle,
		laps:   make(map[string]int),
	}
}

func (c *Coordinator) Status() Status { return c.status }
func (c *Coordinator) LapTarget() int { return c.cfg.LapTarget }

// Entrants returns the entrants in join order.
func (c *Coordinator) Entrants() []string { return append([]string(nil), c.entrants...) }

// Finished returns the finish order so far.
func (c *Coordinator) Finished() []string { return append([]string(nil), c.finished...) }

// Laps returns the last accepted lap claim of id.
func (c *Coordinator) Laps(id string) int { return c.laps[id] }

// Grid returns the starting offsets of the current race.
func (c *Coordinator) Grid() map[string]Slot {
	out := make(map[string]Slot, len(c.grid))
	for k, v := range c.grid {
		out[k] = v
	}
	return out
}

// IsEntrant reports whether id is in the session.
func (c *Coordinator) IsEntrant(id string) bool {
	return c.indexOf(c.entrants, id) >= 0
}

// Snapshot returns the public view of the session.
func (c *Coordinator) Snapshot() Snapshot {
	return Snapshot{
		Status:    c.status,
		Count:     len(c.entrants),
		Entrants:  c.Entrants(),
		Finished:  c.Finished(),
		LapTarget: c.cfg.LapTarget,
	}
}

// Join enrolls id. Only accepted while idle; joining twice is a no-op.
func (c *Coordinator) Join(id string) bool {
	if c.status != Idle || c.IsEntrant(id) {
		return false
	}
	c.entrants = append(c.entrants, id)
	c.laps[id] = 0

	if len(c.entrants) < c.cfg.MinEntrants {
		c.hooks.StatusChanged(len(c.entrants), c.status)
		c.hooks.Notice(id, WaitingNotice)
		return true
	}
	c.beginCountdown()
	return true
}

func (c *Coordinator) beginCountdown() {
	c.transition(Countdown)
	epoch := c.epoch

	c.logger.Info().Int("entrants", len(c.entrants)).Dur("countdown", c.cfg.Countdown).Msg("countdown started")
	c.hooks.StatusChanged(len(c.entrants), c.status)
	c.hooks.Notice("", fmt.Sprintf("RACE STARTING IN %d...", int(c.cfg.Countdown.Round(time.Second)/time.Second)))

	c.sched.After(c.cfg.Countdown, c.still(Countdown, epoch), c.start)
}

func (c *Coordinator) start() {
	c.transition(Racing)
	c.finished = nil
	c.finalOrder = nil
	c.closing = false
	for _, id := range c.entrants {
		c.laps[id] = 0
	}
	c.grid = gridSlots(c.entrants, c.cfg.GridSpacing)
	c.raceID = uuid.NewString()
	c.startedAt = c.sched.Clock().Now()

	c.logger.Info().Str("race", c.raceID).Strs("entrants", c.entrants).Msg("race started")
	c.hooks.StatusChanged(len(c.entrants), c.status)
	c.hooks.Started(c.raceID, c.Grid())
}

// ClaimLap records a lap claim. Claims are accepted only from entrants while
// racing, must increase, and a claim beyond the lap target finishes the
// claimant exactly once.
func (c *Coordinator) ClaimLap(id string, lap int) bool {
	if c.status != Racing || !c.IsEntrant(id) {
		return false
	}
	if c.indexOf(c.finished, id) >= 0 || lap <= c.laps[id] {
		return false
	}
	c.laps[id] = lap
	if lap <= c.cfg.LapTarget {
		return true
	}

	c.finished = append(c.finished, id)
	rank := len(c.finished)
	c.logger.Info().Str("race", c.raceID).Str("id", id).Int("rank", rank).Msg("finisher")
	c.hooks.Finished(id, rank)
	c.checkAllFinished()
	return true
}

func (c *Coordinator) checkAllFinished() {
	if c.status != Racing || c.closing || len(c.entrants) == 0 || len(c.finished) < len(c.entrants) {
		return
	}
	c.closing = true
	c.finalOrder = c.Finished()
	epoch := c.epoch

	c.logger.Info().Str("race", c.raceID).Strs("order", c.finalOrder).Msg("race over")
	c.hooks.Over(c.Finished())
	c.sched.After(c.cfg.FinishGrace, c.still(Racing, epoch), func() { c.close(false) })
}

// Leave removes id from the session at any status. A countdown or race that
// drops below the minimum entrant count is cancelled on the spot.
func (c *Coordinator) Leave(id string) bool {
	i := c.indexOf(c.entrants, id)
	if i < 0 {
		return false
	}
	c.entrants = append(c.entrants[:i], c.entrants[i+1:]...)
	if j := c.indexOf(c.finished, id); j >= 0 {
		c.finished = append(c.finished[:j], c.finished[j+1:]...)
	}
	delete(c.laps, id)
	delete(c.grid, id)

	if c.status != Idle && len(c.entrants) < c.cfg.MinEntrants {
		if !c.closing {
			c.logger.Info().Str("id", id).Str("status", string(c.status)).Msg("race cancelled")
			c.hooks.Notice("", CancelledNotice)
		}
		c.close(!c.closing)
		return true
	}

	c.hooks.StatusChanged(len(c.entrants), c.status)
	c.checkAllFinished()
	return true
}

// close returns to idle and clears the session unconditionally.
func (c *Coordinator) close(cancelled bool) {
	wasRacing := c.status == Racing
	result := Result{
		ID:        c.raceID,
		Started:   c.startedAt,
		Ended:     c.sched.Clock().Now(),
		LapTarget: c.cfg.LapTarget,
		Entrants:  c.Entrants(),
		Order:     c.Finished(),
		Cancelled: cancelled,
	}
	if c.closing {
		// everyone had finished; later leavers still count
		result.Entrants = append([]string(nil), c.finalOrder...)
		result.Order = append([]string(nil), c.finalOrder...)
	}

	c.transition(Idle)
	c.entrants = nil
	c.finished = nil
	c.finalOrder = nil
	c.laps = make(map[string]int)
	c.grid = nil
	c.closing = false
	c.raceID = ""

	c.hooks.StatusChanged(0, Idle)
	if wasRacing {
		c.logger.Info().Str("race", result.ID).Bool("cancelled", cancelled).Msg("race closed")
		c.hooks.Closed(result)
	}
}

func (c *Coordinator) transition(s Status) {
	c.status = s
	c.epoch++
}

// still builds the validity check of a timer armed in status s at epoch.
func (c *Coordinator) still(s Status, epoch uint64) func() bool {
	return func() bool { return c.status == s && c.epoch == epoch }
}

func (c *Coordinator) indexOf(list []string, id string) int {
	for i, v := range list {
		if v == id {
			return i
		}
	}
	return -1
}

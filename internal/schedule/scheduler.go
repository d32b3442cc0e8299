// Package schedule runs deferred tasks against an injectable clock. A task
// carries a validity check that is evaluated when it fires, so a later event
// supersedes a pending task by changing state instead of cancelling it.
package schedule

import (
	"container/heap"
	"sync"
	"time"
)

// Clock is the time source of a Scheduler.
type Clock interface {
	Now() time.Time
}

// SystemClock reads wall time.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock starts at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type task struct {
	at    time.Time
	seq   uint64
	valid func() bool
	run   func()
}

type taskHeap []*task

func (h taskHeap) Len() int { return len(h) }
func (h taskHeap) Less(i, j int) bool {
	if h[i].at.Equal(h[j].at) {
		return h[i].seq < h[j].seq
	}
	return h[i].at.Before(h[j].at)
}
func (h taskHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *taskHeap) Push(x any)   { *h = append(*h, x.(*task)) }
func (h *taskHeap) Pop() any {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}

// Scheduler holds pending tasks. It is not tied to a goroutine: the owner
// calls RunDue from its own loop, which keeps task bodies on that loop.
type Scheduler struct {
	mu      sync.Mutex
	clock   Clock
	tasks   taskHeap
	seq     uint64
	skipped uint64
}

// New returns a scheduler on clock.
func New(clock Clock) *Scheduler {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Scheduler{clock: clock}
}

// Clock returns the scheduler's clock.
func (s *Scheduler) Clock() Clock { return s.clock }

// After schedules run to fire d from now if valid still reports true then.
// A nil valid always runs.
func (s *Scheduler) After(d time.Duration, valid func() bool, run func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	heap.Push(&s.tasks, &task{
		at:    s.clock.Now().Add(d),
		seq:   s.seq,
		valid: valid,
		run:   run,
	})
}

// RunDue fires every task whose time has come, in time then insertion order,
// and returns how many ran. Tasks scheduled by a running task are eligible
// in the same call if already due.
func (s *Scheduler) RunDue() int {
	ran := 0
	for {
		t := s.popDue()
		if t == nil {
			return ran
		}
		if t.valid != nil && !t.valid() {
			s.mu.Lock()
			s.skipped++
			s.mu.Unlock()
			continue
		}
		t.run()
		ran++
	}
}

func (s *Scheduler) popDue() *task {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.tasks) == 0 || s.tasks[0].at.After(s.clock.Now()) {
		return nil
	}
	return heap.Pop(&s.tasks).(*task)
}

// Pending is the number of tasks not yet fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// Skipped counts tasks whose validity check failed when they fired.
func (s *Scheduler) Skipped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.skipped
}

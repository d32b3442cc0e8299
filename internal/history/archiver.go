package history

import (
	"sync"

	"github.com/rs/zerolog"
)

// Archiver saves records on a worker goroutine so the game loop never waits
// on the database. When the queue is full new records are dropped.
type Archiver struct {
	store  *Store
	queue  chan RaceRecord
	logger zerolog.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewArchiver starts the worker.
func NewArchiver(store *Store, size int, logger zerolog.Logger) *Archiver {
	if size < 1 {
		size = 1
	}
	a := &Archiver{
		store:  store,
		queue:  make(chan RaceRecord, size),
		logger: logger.With().Str("component", "history").Logger(),
	}
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *Archiver) run() {
	defer a.wg.Done()
	for rec := range a.queue {
		if err := a.store.Save(&rec); err != nil {
			a.logger.Error().Err(err).Msg("archive race")
			continue
		}
		a.logger.Info().Str("race", rec.ID).Bool("cancelled", rec.Cancelled).
			Msg("race archived\n" + RaceBoard(rec))
	}
}

// Submit queues rec. It reports false if the queue is full or closed.
func (a *Archiver) Submit(rec RaceRecord) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return false
	}
	select {
	case a.queue <- rec:
		return true
	default:
		a.logger.Warn().Str("race", rec.ID).Msg("history queue full, dropping race")
		return false
	}
}

// Store returns the archive being written to.
func (a *Archiver) Store() *Store { return a.store }

// Close drains the queue and stops the worker.
func (a *Archiver) Close() {
	a.closeOnce.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.queue)
		a.mu.Unlock()
	})
	a.wg.Wait()
}

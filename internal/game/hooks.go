package game

import (
	"github.com/race/arcade/internal/history"
	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/race"
)

// hooks turns race coordinator effects into frames. The coordinator calls
// them from inside a locked event, so they use the lock-held helpers.
type hooks struct {
	g *Game
}

func (h hooks) StatusChanged(count int, status race.Status) {
	h.g.broadcast(h.g.protocol.EncodeRaceStatus(network.RaceStatus{Count: count, Status: status}))
}

func (h hooks) Notice(to, text string) {
	frame := h.g.protocol.EncodeServerMsg(text)
	if to == "" {
		h.g.broadcast(frame)
		return
	}
	h.g.sendTo(to, frame)
}

func (h hooks) Started(raceID string, grid map[string]race.Slot) {
	g := h.g
	g.payouts = make(map[string]int)
	g.names = make(map[string]string)
	for id := range grid {
		if p, ok := g.players[id]; ok {
			p.ResetProgress()
			g.names[id] = p.Name
		}
	}
	g.metrics.Race("started")
	g.broadcast(g.protocol.EncodeRaceStart(network.RaceStart{
		ID:   raceID,
		Laps: g.race.LapTarget(),
		Grid: grid,
	}))
}

func (h hooks) Finished(id string, rank int) {
	g := h.g
	amount := g.cfg.FinisherPayout
	if rank == 1 {
		amount = g.cfg.WinnerPayout
	}
	wallet, ok := g.ledger.Payout(id, amount)
	if !ok {
		return
	}
	g.payouts[id] = amount
	g.metrics.Payout(amount, rank)
	g.sendTo(id, g.protocol.EncodeEconomyUpdate(wallet))
}

func (h hooks) Over(order []string) {
	g := h.g
	winner := ""
	if len(order) > 0 {
		winner = g.nameOf(order[0])
	}
	g.broadcast(g.protocol.EncodeRaceOver(network.RaceOver{Order: order, Winner: winner}))
}

func (h hooks) Closed(result race.Result) {
	g := h.g
	if result.Cancelled {
		g.metrics.Race("cancelled")
	} else {
		g.metrics.Race("finished")
	}
	if g.archive == nil {
		return
	}

	rec := history.RaceRecord{
		ID:        result.ID,
		Level:     g.cfg.Level,
		LapTarget: result.LapTarget,
		Entrants:  len(result.Entrants),
		Cancelled: result.Cancelled,
		StartedAt: result.Started,
		EndedAt:   result.Ended,
	}
	for i, id := range result.Order {
		rec.Finishers = append(rec.Finishers, history.Finisher{
			Place:       i + 1,
			Participant: id,
			Name:        g.nameOf(id),
			Payout:      g.payouts[id],
		})
	}
	if !g.archive.Submit(rec) {
		g.logger.Warn().Str("race", result.ID).Msg("race archive full, result dropped")
	}
}

// nameOf falls back to the name captured at race start for participants
// that have since disconnected.
func (g *Game) nameOf(id string) string {
	if p, ok := g.players[id]; ok {
		return p.Name
	}
	if n, ok := g.names[id]; ok {
		return n
	}
	return id
}

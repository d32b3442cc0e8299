package game

import (
	"github.com/pkg/errors"

	"github.com/race/arcade/internal/network"
	"github.com/race/arcade/internal/race"
)

// HandleMessage decodes and applies one frame from a connected participant.
// Malformed or unknown frames are dropped; the connection stays open.
func (g *Game) HandleMessage(id string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()

	p, ok := g.players[id]
	if !ok {
		return
	}

	msg, err := g.protocol.Decode(data)
	if err != nil {
		event := "unknown"
		if env, perr := network.ParseEnvelope(data); perr == nil {
			event = env.Event
		}
		reason := "invalid"
		if errors.Is(err, network.ErrUnknownEvent) {
			reason = "unknown_event"
		}
		g.metrics.Rejected(event, reason)
		g.logger.Debug().Err(err).Str("id", id).Msg("message rejected")
		return
	}
	g.metrics.Message(msg.Event())

	switch m := msg.(type) {
	case network.Move:
		g.handleMove(p, m)
	case network.Buy:
		g.handleBuy(p, m.Item)
	case network.Equip:
		g.handleEquip(p, m.Item)
	case network.JoinRace:
		g.race.Join(p.ID)
	case network.LapComplete:
		if g.race.ClaimLap(p.ID, m.Lap) {
			p.Lap = m.Lap
		}
	case network.Checkpoint:
		g.handleCheckpoint(p, m.Index)
	}
}

func (g *Game) handleMove(p *Player, m network.Move) {
	now := g.sched.Clock().Now()
	if res := g.check.ValidateInputRate(p, now); res != ValidationValid {
		g.metrics.Rejected(network.EventMove, res.String())
		return
	}
	p.ApplyMove(m, now)
	g.broadcastExcept(g.protocol.EncodePlayerUpdate(network.PlayerUpdate{ID: p.ID, Move: m}), p.ID)
}

func (g *Game) handleBuy(p *Player, item int) {
	wallet, ok := g.ledger.Purchase(p.ID, item)
	if !ok {
		g.logger.Debug().Str("id", p.ID).Int("item", item).Msg("purchase refused")
		return
	}
	g.metrics.Purchase(item)
	g.send(p, g.protocol.EncodeEconomyUpdate(wallet))

	// purchases equip the new car
	p.Car = wallet.Car
	g.broadcast(g.protocol.EncodeCarChanged(p.ID, p.Car))
}

func (g *Game) handleEquip(p *Player, item int) {
	if !g.ledger.Equip(p.ID, item) {
		g.logger.Debug().Str("id", p.ID).Int("item", item).Msg("equip refused")
		return
	}
	p.Car = item
	g.broadcast(g.protocol.EncodeCarChanged(p.ID, item))
}

func (g *Game) handleCheckpoint(p *Player, index int) {
	if !g.race.IsEntrant(p.ID) || g.race.Status() != race.Racing {
		return
	}
	if res := g.check.ValidateCheckpoint(index); res != ValidationValid {
		g.metrics.Rejected(network.EventCheckpoint, res.String())
		return
	}
	p.Checkpoint = index
}

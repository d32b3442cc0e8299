// Package network defines the wire protocol: named events in a JSON envelope
// with one explicit payload shape per event.
package network

import (
	"encoding/json"
	"math"

	"github.com/pkg/errors"

	"github.com/race/arcade/internal/economy"
)

var (
	ErrInvalidMessage = errors.New("invalid message")
	ErrUnknownEvent   = errors.New("unknown event")
)

// Envelope is the frame every message travels in.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Protocol encodes and decodes frames.
type Protocol struct {
	worldLimit float64
}

// NewProtocol returns a protocol rejecting poses beyond worldLimit on any axis.
func NewProtocol(worldLimit float64) *Protocol {
	if worldLimit <= 0 {
		worldLimit = math.MaxFloat64
	}
	return &Protocol{worldLimit: worldLimit}
}

// ParseEnvelope splits a frame into event name and raw payload.
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return env, errors.Wrap(ErrInvalidMessage, err.Error())
	}
	if env.Event == "" {
		return env, errors.Wrap(ErrInvalidMessage, "missing event")
	}
	return env, nil
}

// Decode parses and validates a client frame.
func (p *Protocol) Decode(data []byte) (ClientMessage, error) {
	env, err := ParseEnvelope(data)
	if err != nil {
		return nil, err
	}

	switch env.Event {
	case EventMove:
		var m Move
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		if err := p.validateMove(&m); err != nil {
			return nil, err
		}
		return m, nil

	case EventBuy:
		var item int
		if err := unmarshal(env, &item); err != nil {
			return nil, err
		}
		return Buy{Item: item}, nil

	case EventEquip:
		var item int
		if err := unmarshal(env, &item); err != nil {
			return nil, err
		}
		return Equip{Item: item}, nil

	case EventJoinRace:
		return JoinRace{}, nil

	case EventLapComplete:
		var m LapComplete
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		if m.Lap < 0 {
			return nil, errors.Wrap(ErrInvalidMessage, "negative lap")
		}
		return m, nil

	case EventCheckpoint:
		var m Checkpoint
		if err := unmarshal(env, &m); err != nil {
			return nil, err
		}
		if m.Index < 0 {
			return nil, errors.Wrap(ErrInvalidMessage, "negative checkpoint")
		}
		return m, nil
	}
	return nil, errors.Wrap(ErrUnknownEvent, env.Event)
}

func unmarshal(env Envelope, v any) error {
	if len(env.Data) == 0 {
		return errors.Wrapf(ErrInvalidMessage, "%s: missing data", env.Event)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return errors.Wrapf(ErrInvalidMessage, "%s: %v", env.Event, err)
	}
	return nil
}

// validateMove rejects non-finite or out of world poses and normalizes the
// quaternion in place. Telemetry fields that are not finite are zeroed.
func (p *Protocol) validateMove(m *Move) error {
	for _, v := range []float64{m.X, m.Y, m.Z, m.QX, m.QY, m.QZ, m.QW} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrap(ErrInvalidMessage, "move: non-finite value")
		}
	}
	if math.Abs(m.X) >= p.worldLimit || math.Abs(m.Y) >= p.worldLimit || math.Abs(m.Z) >= p.worldLimit {
		return errors.Wrap(ErrInvalidMessage, "move: outside world")
	}

	l := math.Sqrt(m.QX*m.QX + m.QY*m.QY + m.QZ*m.QZ + m.QW*m.QW)
	if l < 1e-9 || math.IsInf(l, 0) {
		return errors.Wrap(ErrInvalidMessage, "move: degenerate rotation")
	}
	m.QX, m.QY, m.QZ, m.QW = m.QX/l, m.QY/l, m.QZ/l, m.QW/l

	if math.IsNaN(m.S) || math.IsInf(m.S, 0) {
		m.S = 0
	}
	if math.IsNaN(m.St) || math.IsInf(m.St, 0) {
		m.St = 0
	}
	return nil
}

// Encode wraps data under event.
func (p *Protocol) Encode(event string, data any) ([]byte, error) {
	env := struct {
		Event string `json:"event"`
		Data  any    `json:"data,omitempty"`
	}{event, data}
	b, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", event)
	}
	return b, nil
}

// encode is Encode for payloads that cannot fail to marshal.
func (p *Protocol) encode(event string, data any) []byte {
	b, _ := p.Encode(event, data)
	return b
}

// Server -> client

func (p *Protocol) EncodeWelcome(w Welcome) []byte {
	return p.encode(EventWelcome, w)
}

func (p *Protocol) EncodePlayerJoin(s PlayerState) []byte {
	return p.encode(EventPlayerJoin, s)
}

func (p *Protocol) EncodePlayerLeave(id string) []byte {
	return p.encode(EventPlayerLeave, id)
}

func (p *Protocol) EncodePlayerUpdate(u PlayerUpdate) []byte {
	return p.encode(EventPlayerUpdate, u)
}

func (p *Protocol) EncodeCountUpdate(n int) []byte {
	return p.encode(EventCountUpdate, n)
}

func (p *Protocol) EncodeEconomyUpdate(s economy.Snapshot) []byte {
	return p.encode(EventEconomyUpdate, s)
}

func (p *Protocol) EncodeCarChanged(id string, car int) []byte {
	return p.encode(EventCarChanged, CarChanged{ID: id, Car: car})
}

func (p *Protocol) EncodeRaceStatus(s RaceStatus) []byte {
	return p.encode(EventRaceStatus, s)
}

func (p *Protocol) EncodeRaceStart(s RaceStart) []byte {
	return p.encode(EventRaceStart, s)
}

func (p *Protocol) EncodeRaceOver(o RaceOver) []byte {
	return p.encode(EventRaceOver, o)
}

func (p *Protocol) EncodeServerMsg(text string) []byte {
	return p.encode(EventServerMsg, text)
}

// Client -> server

func (p *Protocol) EncodeMove(m Move) []byte {
	return p.encode(EventMove, m)
}

func (p *Protocol) EncodeBuy(item int) []byte {
	return p.encode(EventBuy, item)
}

func (p *Protocol) EncodeEquip(item int) []byte {
	return p.encode(EventEquip, item)
}

func (p *Protocol) EncodeJoinRace() []byte {
	return p.encode(EventJoinRace, nil)
}

func (p *Protocol) EncodeLapComplete(lap int) []byte {
	return p.encode(EventLapComplete, LapComplete{Lap: lap})
}

func (p *Protocol) EncodeCheckpoint(index int) []byte {
	return p.encode(EventCheckpoint, Checkpoint{Index: index})
}

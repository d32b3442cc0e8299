package network

import (
	"github.com/race/arcade/internal/economy"
	"github.com/race/arcade/internal/race"
)

// Event names, client -> server
const (
	EventMove        = "move"
	EventBuy         = "buy"
	EventEquip       = "equip"
	EventJoinRace    = "joinRace"
	EventLapComplete = "lapComplete"
	EventCheckpoint  = "checkpoint"
)

// Event names, server -> client
const (
	EventWelcome       = "welcome"
	EventPlayerJoin    = "playerJoin"
	EventPlayerLeave   = "playerLeave"
	EventPlayerUpdate  = "playerUpdate"
	EventCountUpdate   = "countUpdate"
	EventEconomyUpdate = "economyUpdate"
	EventCarChanged    = "carChanged"
	EventRaceStatus    = "raceStatus"
	EventRaceStart     = "raceStart"
	EventRaceOver      = "raceOver"
	EventServerMsg     = "serverMsg"
)

// ClientMessage is the closed set of messages a client may send.
type ClientMessage interface {
	Event() string
}

// Move reports the sender's pose. Seq, S and St are optional.
type Move struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	Z  float64 `json:"z"`
	QX float64 `json:"qx"`
	QY float64 `json:"qy"`
	QZ float64 `json:"qz"`
	QW float64 `json:"qw"`

	Seq uint32  `json:"seq,omitempty"`
	S   float64 `json:"s,omitempty"`
	St  float64 `json:"st,omitempty"`
}

// Buy requests a catalog purchase.
type Buy struct{ Item int }

// Equip selects an owned vehicle.
type Equip struct{ Item int }

// JoinRace enrolls the sender in the race session.
type JoinRace struct{}

// LapComplete claims lap progress.
type LapComplete struct {
	Lap int `json:"lap"`
}

// Checkpoint reports the last checkpoint the sender passed.
type Checkpoint struct {
	Index int `json:"index"`
}

func (Move) Event() string        { return EventMove }
func (Buy) Event() string         { return EventBuy }
func (Equip) Event() string       { return EventEquip }
func (JoinRace) Event() string    { return EventJoinRace }
func (LapComplete) Event() string { return EventLapComplete }
func (Checkpoint) Event() string  { return EventCheckpoint }

// PlayerState is a roster entry as other participants see it. Money stays
// private to the owner.
type PlayerState struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	Color      uint32  `json:"color"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	QX         float64 `json:"qx"`
	QY         float64 `json:"qy"`
	QZ         float64 `json:"qz"`
	QW         float64 `json:"qw"`
	Speed      float64 `json:"s"`
	Steering   float64 `json:"st"`
	Car        int     `json:"car"`
	Lap        int     `json:"lap"`
	Checkpoint int     `json:"checkpoint"`
}

// Welcome is the full snapshot sent on connect.
type Welcome struct {
	ID      string                 `json:"id"`
	List    map[string]PlayerState `json:"list"`
	Shop    economy.Catalog        `json:"shop"`
	Race    race.Snapshot          `json:"race"`
	Level   int                    `json:"level"`
	Seed    int64                  `json:"seed"`
	Economy economy.Snapshot       `json:"economy"`
}

// PlayerUpdate relays one participant's pose to the others.
type PlayerUpdate struct {
	ID string `json:"id"`
	Move
}

// CarChanged announces an equip.
type CarChanged struct {
	ID  string `json:"id"`
	Car int    `json:"car"`
}

// RaceStatus is the lobby view of the session.
type RaceStatus struct {
	Count  int         `json:"count"`
	Status race.Status `json:"status"`
}

// RaceStart carries the grid offsets.
type RaceStart struct {
	ID   string               `json:"id"`
	Laps int                  `json:"laps"`
	Grid map[string]race.Slot `json:"grid"`
}

// RaceOver is broadcast once every entrant has finished.
type RaceOver struct {
	Order  []string `json:"order"`
	Winner string   `json:"winner"`
}

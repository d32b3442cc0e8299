// Package level holds the fixed set of playable levels.
package level

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/pkg/errors"

	"github.com/race/arcade/config"
	"github.com/race/arcade/internal/terrain"
	"github.com/race/arcade/internal/track"
)

// Level pairs a terrain profile with the control points of its track.
type Level struct {
	ID       int
	Name     string
	Terrain  terrain.Profile
	Controls []mgl64.Vec3
}

var levels = []Level{
	{
		ID:      0,
		Name:    "Serpent",
		Terrain: terrain.DefaultProfile(),
		Controls: []mgl64.Vec3{
			{0, 10, 0}, {200, 10, -100}, {400, 10, 0},
			{300, 10, 300}, {0, 10, 200}, {-200, 10, 100},
		},
	},
	{
		ID:      1,
		Name:    "City",
		Terrain: terrain.DefaultProfile(),
		Controls: []mgl64.Vec3{
			{0, 10, 0}, {0, 10, -400}, {400, 10, -400},
			{400, 10, 0}, {200, 10, 200}, {-200, 10, 200},
		},
	},
	{
		ID:   2,
		Name: "Rally",
		Terrain: terrain.Profile{
			Amplitude:       40,
			Frequency:       config.NoiseFrequency,
			DetailAmplitude: 6,
			DetailFrequency: config.DetailFrequency,
			HubRadius:       config.HubRadius,
			HubHeight:       config.HubHeight,
			Shelf:           &terrain.Shelf{MinX: 200, Lift: 20},
		},
		Controls: []mgl64.Vec3{
			{0, 10, 0}, {300, 30, -300}, {600, 0, 0},
			{300, 40, 400}, {-200, 20, 200},
		},
	},
}

// Get returns the level with the given id.
func Get(id int) (Level, bool) {
	if id < 0 || id >= len(levels) {
		return Level{}, false
	}
	return levels[id], true
}

// Count returns the number of levels.
func Count() int {
	return len(levels)
}

// World is a level realized for a seed: its height field and checkpoint loop.
type World struct {
	Level  Level
	Field  *terrain.Field
	Layout *track.Layout
}

// Build realizes level id.
func Build(id int, seed int64) (*World, error) {
	lvl, ok := Get(id)
	if !ok {
		return nil, errors.Errorf("unknown level %d", id)
	}
	layout, err := track.NewLayout(lvl.Controls, config.CheckpointCount)
	if err != nil {
		return nil, errors.Wrapf(err, "level %s", lvl.Name)
	}
	return &World{
		Level:  lvl,
		Field:  terrain.New(lvl.Terrain, seed),
		Layout: layout,
	}, nil
}

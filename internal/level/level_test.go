package level

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/race/arcade/config"
)

func TestBuild_AllLevels(t *testing.T) {
	for id := 0; id < Count(); id++ {
		w, err := Build(id, 1)
		require.NoError(t, err, "level %d", id)

		assert.Equal(t, config.CheckpointCount, w.Layout.Len())
		spawn := w.Layout.Spawn()
		assert.Equal(t, config.HubHeight, w.Field.Height(spawn.X(), spawn.Z()), "spawn must sit on the hub")
	}
}

func TestBuild_UnknownLevel(t *testing.T) {
	_, err := Build(99, 1)
	assert.Error(t, err)

	_, ok := Get(-1)
	assert.False(t, ok)
}

func TestRallyIsRugged(t *testing.T) {
	rally, ok := Get(2)
	require.True(t, ok)
	serpent, ok := Get(0)
	require.True(t, ok)

	assert.Greater(t, rally.Terrain.Amplitude, serpent.Terrain.Amplitude)
	assert.NotNil(t, rally.Terrain.Shelf)
}

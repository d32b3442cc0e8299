package terrain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/race/arcade/config"
)

func ruggedProfile() Profile {
	p := DefaultProfile()
	p.Amplitude = 40
	p.DetailAmplitude = 6
	p.Shelf = &Shelf{MinX: 200, Lift: 20}
	return p
}

func TestField_HubIsFlat(t *testing.T) {
	f := New(ruggedProfile(), 7)

	for _, pt := range [][2]float64{{0, 0}, {30, -30}, {-59, 0}, {0, 59.9}} {
		assert.Equal(t, f.Profile().HubHeight, f.Height(pt[0], pt[1]), "point %v", pt)
	}
}

func TestField_NonNegativeAndDeterministic(t *testing.T) {
	a := New(ruggedProfile(), 42)
	b := New(ruggedProfile(), 42)

	for x := -1500.0; x <= 1500; x += 37 {
		for z := -1500.0; z <= 1500; z += 41 {
			h := a.Height(x, z)
			require.GreaterOrEqual(t, h, 0.0)
			require.False(t, math.IsNaN(h))
			require.Equal(t, h, b.Height(x, z))
		}
	}
}

func TestField_SeedChangesTerrain(t *testing.T) {
	a := New(ruggedProfile(), 1)
	b := New(ruggedProfile(), 2)

	differs := false
	for x := 100.0; x < 1000; x += 50 {
		if a.Height(x, 400) != b.Height(x, 400) {
			differs = true
			break
		}
	}
	assert.True(t, differs)
}

func TestField_InvalidCoordinatesFallBackToHub(t *testing.T) {
	f := New(DefaultProfile(), 3)

	assert.Equal(t, f.Profile().HubHeight, f.Height(math.NaN(), 10))
	assert.Equal(t, f.Profile().HubHeight, f.Height(5, math.Inf(1)))
}

func TestField_ShelfLiftsEastSide(t *testing.T) {
	p := DefaultProfile()
	p.Amplitude = 0
	p.Shelf = &Shelf{MinX: 200, Lift: 20}
	f := New(p, 1)

	assert.Equal(t, 0.0, f.Height(150, 300))
	assert.Equal(t, 20.0, f.Height(250, 300))
}

func TestChunkGrid_KeyFor(t *testing.T) {
	g := NewChunkGrid(Flat(0), 100, 4, 1)

	assert.Equal(t, ChunkKey{0, 0}, g.KeyFor(0, 0))
	assert.Equal(t, ChunkKey{0, 0}, g.KeyFor(99.9, 99.9))
	assert.Equal(t, ChunkKey{-1, -1}, g.KeyFor(-0.1, -0.1))
	assert.Equal(t, ChunkKey{2, -3}, g.KeyFor(250, -201))
}

func TestChunkGrid_NonFiniteAndBadSize(t *testing.T) {
	g := NewChunkGrid(Flat(0), 0, 4, 1)
	assert.Equal(t, ChunkKey{0, 0}, g.KeyFor(config.ChunkSize-1, 1))
	assert.Equal(t, ChunkKey{1, 0}, g.KeyFor(config.ChunkSize+1, 1))

	g = NewChunkGrid(Flat(0), -50, 4, 1)
	assert.Equal(t, ChunkKey{-1, 0}, g.KeyFor(-1, 0))

	g = NewChunkGrid(Flat(0), 100, 4, 1)
	assert.Equal(t, ChunkKey{}, g.KeyFor(math.Inf(1), 10))
	assert.Equal(t, ChunkKey{}, g.KeyFor(10, math.Inf(-1)))
	assert.Equal(t, ChunkKey{}, g.KeyFor(math.NaN(), 10))
}

func TestChunkGrid_EnsureIsIdempotent(t *testing.T) {
	g := NewChunkGrid(Flat(3), 100, 4, 1)

	c1, created := g.Ensure(ChunkKey{1, 1})
	require.True(t, created)
	c2, created := g.Ensure(ChunkKey{1, 1})
	assert.False(t, created)
	assert.Same(t, c1, c2)
	assert.Equal(t, 1, g.Generated())

	assert.Len(t, c1.Heights, 25)
	assert.Equal(t, 3.0, c1.At(4, 4))
}

func TestChunkGrid_UpdateLoadsRing(t *testing.T) {
	g := NewChunkGrid(Flat(0), 100, 2, 2)

	loaded, evicted := g.Update(50, 50)
	assert.Len(t, loaded, 25)
	assert.Empty(t, evicted)
	assert.Equal(t, 25, g.Loaded())

	loaded, evicted = g.Update(60, 40)
	assert.Empty(t, loaded, "same chunk must not regenerate")
	assert.Empty(t, evicted)
	assert.Equal(t, 25, g.Generated())
}

func TestChunkGrid_UpdateEvictsByChebyshevDistance(t *testing.T) {
	g := NewChunkGrid(Flat(0), 100, 2, 1)
	g.Update(0, 0)
	require.Equal(t, 9, g.Loaded())

	loaded, evicted := g.Update(150, 50) // center moves to (1, 0)

	assert.Len(t, loaded, 3)
	assert.Len(t, evicted, 3)
	for _, k := range evicted {
		assert.Equal(t, int64(-1), k.X)
	}
	assert.True(t, g.Has(ChunkKey{2, 1}))
	assert.False(t, g.Has(ChunkKey{-1, 0}))
	assert.Equal(t, 9, g.Loaded())
}

func TestChunkKey_Chebyshev(t *testing.T) {
	assert.Equal(t, int64(3), ChunkKey{0, 0}.Chebyshev(ChunkKey{-3, 2}))
	assert.Equal(t, int64(0), ChunkKey{4, 4}.Chebyshev(ChunkKey{4, 4}))
}

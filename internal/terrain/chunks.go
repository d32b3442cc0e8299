package terrain

import (
	"math"
	"sort"
	"sync"

	"github.com/race/arcade/config"
)

// Sampler is anything that can answer a height query.
type Sampler interface {
	Height(x, z float64) float64
}

// ChunkKey identifies a chunk in the chunk grid.
type ChunkKey struct {
	X, Z int64
}

// Chebyshev returns the chessboard distance between two chunk keys.
func (k ChunkKey) Chebyshev(o ChunkKey) int64 {
	dx := k.X - o.X
	if dx < 0 {
		dx = -dx
	}
	dz := k.Z - o.Z
	if dz < 0 {
		dz = -dz
	}
	if dx > dz {
		return dx
	}
	return dz
}

// Chunk is a square patch of sampled heights. Heights is row-major with
// (Resolution+1)^2 entries so neighbouring chunks share their edges.
type Chunk struct {
	Key        ChunkKey
	Size       float64
	Resolution int
	Heights    []float64
}

// Origin returns the world (x, z) of the chunk's minimum corner.
func (c *Chunk) Origin() (float64, float64) {
	return float64(c.Key.X) * c.Size, float64(c.Key.Z) * c.Size
}

// At returns the sampled height at grid vertex (i, j).
func (c *Chunk) At(i, j int) float64 {
	return c.Heights[j*(c.Resolution+1)+i]
}

// ChunkGrid realizes a height field as lazily generated chunks around a
// moving focus point, evicting chunks outside the render distance.
type ChunkGrid struct {
	mu         sync.RWMutex
	source     Sampler
	size       float64
	resolution int
	radius     int64
	chunks     map[ChunkKey]*Chunk
	generated  int
}

// NewChunkGrid creates a chunk grid over source.
func NewChunkGrid(source Sampler, size float64, resolution, radius int) *ChunkGrid {
	if resolution < 1 {
		resolution = 1
	}
	if radius < 0 {
		radius = 0
	}
	if !(size > 0) || math.IsInf(size, 1) {
		size = config.ChunkSize
	}
	return &ChunkGrid{
		source:     source,
		size:       size,
		resolution: resolution,
		radius:     int64(radius),
		chunks:     make(map[ChunkKey]*Chunk),
	}
}

// KeyFor returns the chunk key containing world position (x, z).
func (g *ChunkGrid) KeyFor(x, z float64) ChunkKey {
	if !finite(x) || !finite(z) {
		return ChunkKey{}
	}
	return ChunkKey{
		X: int64(math.Floor(x / g.size)),
		Z: int64(math.Floor(z / g.size)),
	}
}

// Ensure generates the chunk at key if it is not loaded. Requesting a loaded
// chunk is a no-op; created reports whether generation happened.
func (g *ChunkGrid) Ensure(key ChunkKey) (chunk *Chunk, created bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.ensureLocked(key)
}

func (g *ChunkGrid) ensureLocked(key ChunkKey) (*Chunk, bool) {
	if c, ok := g.chunks[key]; ok {
		return c, false
	}

	n := g.resolution + 1
	c := &Chunk{
		Key:        key,
		Size:       g.size,
		Resolution: g.resolution,
		Heights:    make([]float64, n*n),
	}
	ox, oz := c.Origin()
	step := g.size / float64(g.resolution)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			c.Heights[j*n+i] = g.source.Height(ox+float64(i)*step, oz+float64(j)*step)
		}
	}

	g.chunks[key] = c
	g.generated++
	return c, true
}

// Update loads every chunk within the render distance of (x, z) and evicts
// those outside it. Returned keys are sorted for deterministic consumers.
func (g *ChunkGrid) Update(x, z float64) (loaded, evicted []ChunkKey) {
	g.mu.Lock()
	defer g.mu.Unlock()

	center := g.KeyFor(x, z)

	for key := range g.chunks {
		if key.Chebyshev(center) > g.radius {
			delete(g.chunks, key)
			evicted = append(evicted, key)
		}
	}

	for dz := -g.radius; dz <= g.radius; dz++ {
		for dx := -g.radius; dx <= g.radius; dx++ {
			key := ChunkKey{X: center.X + dx, Z: center.Z + dz}
			if _, created := g.ensureLocked(key); created {
				loaded = append(loaded, key)
			}
		}
	}

	sortKeys(loaded)
	sortKeys(evicted)
	return loaded, evicted
}

// Has reports whether key is loaded.
func (g *ChunkGrid) Has(key ChunkKey) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	_, ok := g.chunks[key]
	return ok
}

// Loaded returns the number of resident chunks.
func (g *ChunkGrid) Loaded() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.chunks)
}

// Generated returns how many chunks have been built over the grid's life.
func (g *ChunkGrid) Generated() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.generated
}

// Height answers height queries from the source field; chunks are a
// realization for consumers that need meshes, not a cache for physics.
func (g *ChunkGrid) Height(x, z float64) float64 {
	return g.source.Height(x, z)
}

func sortKeys(keys []ChunkKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Z != keys[j].Z {
			return keys[i].Z < keys[j].Z
		}
		return keys[i].X < keys[j].X
	})
}
